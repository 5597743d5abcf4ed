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

const orderRequestsCollection = "orderRequests"

type orderRequestItemDocument struct {
	ProductRef string `firestore:"productRef"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"quantity"`
}

type orderRequestDocument struct {
	CustomerRef  string                     `firestore:"customerRef"`
	CustomerName string                     `firestore:"customerName"`
	Items        []orderRequestItemDocument `firestore:"items"`
	Status       string                     `firestore:"status"`
	DecisionNote string                     `firestore:"decisionNote,omitempty"`
	DecidedBy    string                     `firestore:"decidedBy,omitempty"`
	DecidedAt    *time.Time                 `firestore:"decidedAt,omitempty"`
	OrderRef     string                     `firestore:"orderRef,omitempty"`
	CreatedAt    time.Time                  `firestore:"createdAt"`
	UpdatedAt    time.Time                  `firestore:"updatedAt"`
}

func newOrderRequestDocument(request domain.OrderRequest) orderRequestDocument {
	doc := orderRequestDocument{
		CustomerRef:  request.CustomerRef,
		CustomerName: request.CustomerName,
		Status:       string(request.Status),
		DecisionNote: request.DecisionNote,
		DecidedBy:    request.DecidedBy,
		CreatedAt:    request.CreatedAt.UTC(),
		UpdatedAt:    request.UpdatedAt.UTC(),
	}
	if request.DecidedAt != nil {
		at := request.DecidedAt.UTC()
		doc.DecidedAt = &at
	}
	if request.OrderRef != nil {
		doc.OrderRef = *request.OrderRef
	}
	doc.Items = make([]orderRequestItemDocument, 0, len(request.Items))
	for _, item := range request.Items {
		doc.Items = append(doc.Items, orderRequestItemDocument{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
		})
	}
	return doc
}

func (d orderRequestDocument) toDomain(id string) domain.OrderRequest {
	request := domain.OrderRequest{
		ID:           id,
		CustomerRef:  d.CustomerRef,
		CustomerName: d.CustomerName,
		Status:       domain.OrderRequestStatus(d.Status),
		DecisionNote: d.DecisionNote,
		DecidedBy:    d.DecidedBy,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.DecidedAt != nil {
		at := *d.DecidedAt
		request.DecidedAt = &at
	}
	if d.OrderRef != "" {
		ref := d.OrderRef
		request.OrderRef = &ref
	}
	request.Items = make([]domain.OrderRequestItem, 0, len(d.Items))
	for _, item := range d.Items {
		request.Items = append(request.Items, domain.OrderRequestItem{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
		})
	}
	return request
}

// OrderRequestRepository persists customer order requests in Firestore.
type OrderRequestRepository struct {
	provider *pfirestore.Provider
	requests *pfirestore.BaseRepository[orderRequestDocument]
}

var _ repositories.OrderRequestRepository = (*OrderRequestRepository)(nil)

// NewOrderRequestRepository constructs a Firestore-backed order request repository.
func NewOrderRequestRepository(provider *pfirestore.Provider) (*OrderRequestRepository, error) {
	if provider == nil {
		return nil, errors.New("order request repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderRequestDocument](provider, orderRequestsCollection, nil, nil)
	return &OrderRequestRepository{provider: provider, requests: base}, nil
}

func (r *OrderRequestRepository) Insert(ctx context.Context, request domain.OrderRequest) error {
	if r == nil || r.provider == nil {
		return errors.New("order request repository not initialised")
	}
	if strings.TrimSpace(request.ID) == "" {
		return errors.New("order request insert: id is required")
	}
	ref, err := r.requests.DocumentRef(ctx, request.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newOrderRequestDocument(request)); err != nil {
		return pfirestore.WrapError("orderrequests.insert", err)
	}
	return nil
}

func (r *OrderRequestRepository) Update(ctx context.Context, request domain.OrderRequest) error {
	if r == nil || r.provider == nil {
		return errors.New("order request repository not initialised")
	}
	ref, err := r.requests.DocumentRef(ctx, request.ID)
	if err != nil {
		return err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return pfirestore.WrapError("orderrequests.update", err)
	}
	var existing orderRequestDocument
	if err := snap.DataTo(&existing); err != nil {
		return fmt.Errorf("decode order request %s: %w", request.ID, err)
	}
	doc := newOrderRequestDocument(request)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := setDocument(ctx, ref, doc); err != nil {
		return pfirestore.WrapError("orderrequests.update", err)
	}
	return nil
}

func (r *OrderRequestRepository) FindByID(ctx context.Context, requestID string) (domain.OrderRequest, error) {
	if r == nil || r.provider == nil {
		return domain.OrderRequest{}, errors.New("order request repository not initialised")
	}
	ref, err := r.requests.DocumentRef(ctx, requestID)
	if err != nil {
		return domain.OrderRequest{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return domain.OrderRequest{}, pfirestore.WrapError("orderrequests.get", err)
	}
	var doc orderRequestDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.OrderRequest{}, fmt.Errorf("decode order request %s: %w", requestID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *OrderRequestRepository) List(ctx context.Context, filter repositories.OrderRequestListFilter) (domain.CursorPage[domain.OrderRequest], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.OrderRequest]{}, errors.New("order request repository not initialised")
	}

	pageSize := normalisePageSize(filter.Pagination.PageSize)
	var cursor *listCursor
	if filter.Pagination.PageToken != "" {
		decoded, err := decodeListCursor(filter.Pagination.PageToken)
		if err != nil {
			return domain.CursorPage[domain.OrderRequest]{}, fmt.Errorf("orderrequests.list: %w", err)
		}
		cursor = &decoded
	}

	docs, err := r.requests.Query(ctx, func(q firestore.Query) firestore.Query {
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
		q = q.OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			q = q.StartAfter(cursor.At, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.OrderRequest]{}, err
	}

	page := domain.CursorPage[domain.OrderRequest]{}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := encodeListCursor(listCursor{At: last.Data.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.OrderRequest]{}, fmt.Errorf("orderrequests.list: encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}
