package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/stocktide/api/internal/domain"
	pfirestore "github.com/stocktide/api/internal/platform/firestore"
	"github.com/stocktide/api/internal/repositories"
)

const ordersCollection = "orders"

type orderItemDocument struct {
	ProductRef string `firestore:"productRef"`
	Name       string `firestore:"name"`
	SKU        string `firestore:"sku"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Total      int64  `firestore:"total"`
}

type orderStatusChangeDocument struct {
	Status string    `firestore:"status"`
	Actor  string    `firestore:"actor"`
	At     time.Time `firestore:"at"`
}

type orderDocument struct {
	OrderNumber         string                      `firestore:"orderNumber"`
	CustomerRef         string                      `firestore:"customerRef"`
	CustomerName        string                      `firestore:"customerName"`
	CustomerSegment     string                      `firestore:"customerSegment"`
	Items               []orderItemDocument         `firestore:"items"`
	Subtotal            int64                       `firestore:"subtotal"`
	Discount            int64                       `firestore:"discount"`
	NetPayable          int64                       `firestore:"netPayable"`
	AmountPaid          int64                       `firestore:"amountPaid"`
	BalanceRemaining    int64                       `firestore:"balanceRemaining"`
	PaymentStatus       string                      `firestore:"paymentStatus"`
	Status              string                      `firestore:"status"`
	StatusHistory       []orderStatusChangeDocument `firestore:"statusHistory"`
	SpecialInstructions string                      `firestore:"specialInstructions,omitempty"`
	RequestRef          string                      `firestore:"requestRef,omitempty"`
	CreatedAt           time.Time                   `firestore:"createdAt"`
	UpdatedAt           time.Time                   `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:         order.OrderNumber,
		CustomerRef:         order.CustomerRef,
		CustomerName:        order.CustomerName,
		CustomerSegment:     string(order.CustomerSegment),
		Subtotal:            order.Subtotal,
		Discount:            order.Discount,
		NetPayable:          order.NetPayable,
		AmountPaid:          order.Payment.AmountPaid,
		BalanceRemaining:    order.Payment.BalanceRemaining,
		PaymentStatus:       string(order.Payment.Status),
		Status:              string(order.Status),
		SpecialInstructions: order.SpecialInstructions,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
	}
	if order.RequestRef != nil {
		doc.RequestRef = *order.RequestRef
	}
	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			SKU:        item.SKU,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total,
		})
	}
	doc.StatusHistory = make([]orderStatusChangeDocument, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, orderStatusChangeDocument{
			Status: string(change.Status),
			Actor:  change.Actor,
			At:     change.At.UTC(),
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		CustomerRef:     d.CustomerRef,
		CustomerName:    d.CustomerName,
		CustomerSegment: domain.CustomerSegment(d.CustomerSegment),
		Subtotal:        d.Subtotal,
		Discount:        d.Discount,
		NetPayable:      d.NetPayable,
		Payment: domain.OrderPayment{
			AmountPaid:       d.AmountPaid,
			BalanceRemaining: d.BalanceRemaining,
			Status:           domain.PaymentStatus(d.PaymentStatus),
		},
		Status:              domain.OrderStatus(d.Status),
		SpecialInstructions: d.SpecialInstructions,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
	if d.RequestRef != "" {
		ref := d.RequestRef
		order.RequestRef = &ref
	}
	order.Items = make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			SKU:        item.SKU,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.Total,
		})
	}
	order.StatusHistory = make([]domain.OrderStatusChange, 0, len(d.StatusHistory))
	for _, change := range d.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.OrderStatusChange{
			Status: domain.OrderStatus(change.Status),
			Actor:  change.Actor,
			At:     change.At,
		})
	}
	return order
}

// OrderRepository persists committed orders in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: base}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	var existing orderDocument
	if err := snap.DataTo(&existing); err != nil {
		return fmt.Errorf("decode order %s: %w", order.ID, err)
	}
	doc := newOrderDocument(order)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := setDocument(ctx, ref, doc); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	ref, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if err := deleteDocument(ctx, ref); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	ref, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := normalisePageSize(filter.Pagination.PageSize)
	var cursor *listCursor
	if filter.Pagination.PageToken != "" {
		decoded, err := decodeListCursor(filter.Pagination.PageToken)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: %w", err)
		}
		cursor = &decoded
	}

	// Firestore allows a single disjunctive filter per query, so the status
	// filter goes to the backend and the payment status filter is applied
	// after decoding.
	paymentFilter := make(map[domain.PaymentStatus]struct{}, len(filter.PaymentStatus))
	for _, ps := range filter.PaymentStatus {
		paymentFilter[ps] = struct{}{}
	}

	page := domain.CursorPage[domain.Order]{}
	for {
		docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
			if filter.CustomerID != "" {
				q = q.Where("customerRef", "==", filter.CustomerID)
			}
			if len(filter.Status) > 0 {
				statuses := make([]string, 0, len(filter.Status))
				for _, s := range filter.Status {
					statuses = append(statuses, string(s))
				}
				q = q.Where("status", "in", statuses)
			}
			if filter.DateRange.From != nil {
				q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
			}
			if filter.DateRange.To != nil {
				q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
			}
			q = q.OrderBy("createdAt", firestore.Desc).
				OrderBy(firestore.DocumentID, firestore.Desc)
			if cursor != nil {
				q = q.StartAfter(cursor.At, cursor.ID)
			}
			return q.Limit(pageSize + 1)
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}

		for _, doc := range docs {
			if len(paymentFilter) > 0 {
				if _, ok := paymentFilter[domain.PaymentStatus(doc.Data.PaymentStatus)]; !ok {
					continue
				}
			}
			if len(page.Items) == pageSize {
				prev := page.Items[len(page.Items)-1]
				token, err := encodeListCursor(listCursor{At: prev.CreatedAt, ID: prev.ID})
				if err != nil {
					return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: encode page token: %w", err)
				}
				page.NextPageToken = token
				return page, nil
			}
			page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
		}

		if len(docs) <= pageSize {
			return page, nil
		}
		last := docs[len(docs)-1]
		cursor = &listCursor{At: last.Data.CreatedAt, ID: last.ID}
	}
}

func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}
