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

const stockActivitiesCollection = "stockActivities"

type stockActivityDocument struct {
	ProductRef    string    `firestore:"productRef"`
	ProductName   string    `firestore:"productName"`
	Action        string    `firestore:"action"`
	Quantity      int       `firestore:"quantity"`
	PreviousStock int       `firestore:"previousStock"`
	NewStock      int       `firestore:"newStock"`
	Remarks       string    `firestore:"remarks,omitempty"`
	Actor         string    `firestore:"actor,omitempty"`
	OccurredAt    time.Time `firestore:"occurredAt"`
}

func newStockActivityDocument(activity domain.StockActivity) stockActivityDocument {
	return stockActivityDocument{
		ProductRef:    activity.ProductRef,
		ProductName:   activity.ProductName,
		Action:        string(activity.Action),
		Quantity:      activity.Quantity,
		PreviousStock: activity.PreviousStock,
		NewStock:      activity.NewStock,
		Remarks:       activity.Remarks,
		Actor:         activity.Actor,
		OccurredAt:    activity.OccurredAt.UTC(),
	}
}

func (d stockActivityDocument) toDomain(id string) domain.StockActivity {
	return domain.StockActivity{
		ID:            id,
		ProductRef:    d.ProductRef,
		ProductName:   d.ProductName,
		Action:        domain.StockAction(d.Action),
		Quantity:      d.Quantity,
		PreviousStock: d.PreviousStock,
		NewStock:      d.NewStock,
		Remarks:       d.Remarks,
		Actor:         d.Actor,
		OccurredAt:    d.OccurredAt,
	}
}

// StockActivityRepository appends and queries the stock movement audit trail.
type StockActivityRepository struct {
	provider   *pfirestore.Provider
	activities *pfirestore.BaseRepository[stockActivityDocument]
}

var _ repositories.StockActivityRepository = (*StockActivityRepository)(nil)

// NewStockActivityRepository constructs a Firestore-backed stock activity repository.
func NewStockActivityRepository(provider *pfirestore.Provider) (*StockActivityRepository, error) {
	if provider == nil {
		return nil, errors.New("stock activity repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[stockActivityDocument](provider, stockActivitiesCollection, nil, nil)
	return &StockActivityRepository{provider: provider, activities: base}, nil
}

// Append writes a new audit row. The trail is append only, so no update or
// delete operations exist.
func (r *StockActivityRepository) Append(ctx context.Context, activity domain.StockActivity) error {
	if r == nil || r.provider == nil {
		return errors.New("stock activity repository not initialised")
	}
	if strings.TrimSpace(activity.ID) == "" {
		return errors.New("stock activity append: id is required")
	}
	if strings.TrimSpace(activity.ProductRef) == "" {
		return errors.New("stock activity append: product ref is required")
	}
	ref, err := r.activities.DocumentRef(ctx, activity.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newStockActivityDocument(activity)); err != nil {
		return pfirestore.WrapError("stockactivities.append", err)
	}
	return nil
}

func (r *StockActivityRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockActivity], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.StockActivity]{}, errors.New("stock activity repository not initialised")
	}
	if strings.TrimSpace(productID) == "" {
		return domain.CursorPage[domain.StockActivity]{}, errors.New("stockactivities.list: product id is required")
	}

	pageSize := normalisePageSize(pager.PageSize)
	var cursor *listCursor
	if pager.PageToken != "" {
		decoded, err := decodeListCursor(pager.PageToken)
		if err != nil {
			return domain.CursorPage[domain.StockActivity]{}, fmt.Errorf("stockactivities.list: %w", err)
		}
		cursor = &decoded
	}

	docs, err := r.activities.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("productRef", "==", productID).
			OrderBy("occurredAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			q = q.StartAfter(cursor.At, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.StockActivity]{}, err
	}

	page := domain.CursorPage[domain.StockActivity]{}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := encodeListCursor(listCursor{At: last.Data.OccurredAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.StockActivity]{}, fmt.Errorf("stockactivities.list: encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (r *StockActivityRepository) ListRecent(ctx context.Context, limit int) ([]domain.StockActivity, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("stock activity repository not initialised")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	docs, err := r.activities.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("occurredAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	activities := make([]domain.StockActivity, 0, len(docs))
	for _, doc := range docs {
		activities = append(activities, doc.Data.toDomain(doc.ID))
	}
	return activities, nil
}

// ListSince returns every movement at or after the given instant in
// chronological order, feeding the activity chart aggregation.
func (r *StockActivityRepository) ListSince(ctx context.Context, since time.Time) ([]domain.StockActivity, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("stock activity repository not initialised")
	}
	docs, err := r.activities.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("occurredAt", ">=", since.UTC()).
			OrderBy("occurredAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	activities := make([]domain.StockActivity, 0, len(docs))
	for _, doc := range docs {
		activities = append(activities, doc.Data.toDomain(doc.ID))
	}
	return activities, nil
}
