package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/stocktide/api/internal/domain"
	pfirestore "github.com/stocktide/api/internal/platform/firestore"
	"github.com/stocktide/api/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	Name              string    `firestore:"name"`
	NameLower         string    `firestore:"nameLower"`
	SKU               string    `firestore:"sku"`
	CategoryRef       string    `firestore:"categoryRef"`
	Stock             int       `firestore:"stock"`
	LowStock          bool      `firestore:"lowStock"`
	PriceRetail       int64     `firestore:"priceRetail"`
	PriceWholesale    int64     `firestore:"priceWholesale"`
	LowStockThreshold int       `firestore:"lowStockThreshold"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// recalculate refreshes the denormalised lowStock flag. Firestore cannot
// compare two document fields in a query, so the flag is maintained on every
// write instead.
func (d *productDocument) recalculate() {
	d.NameLower = strings.ToLower(strings.TrimSpace(d.Name))
	d.LowStock = d.Stock <= d.LowStockThreshold
}

func newProductDocument(product domain.Product) productDocument {
	doc := productDocument{
		Name:              product.Name,
		SKU:               product.SKU,
		CategoryRef:       product.CategoryRef,
		Stock:             product.Stock,
		PriceRetail:       product.PriceRetail,
		PriceWholesale:    product.PriceWholesale,
		LowStockThreshold: product.LowStockThreshold,
		CreatedAt:         product.CreatedAt.UTC(),
		UpdatedAt:         product.UpdatedAt.UTC(),
	}
	doc.recalculate()
	return doc
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:                id,
		Name:              d.Name,
		SKU:               d.SKU,
		CategoryRef:       d.CategoryRef,
		Stock:             d.Stock,
		PriceRetail:       d.PriceRetail,
		PriceWholesale:    d.PriceWholesale,
		LowStockThreshold: d.LowStockThreshold,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// ProductRepository persists catalogue products in Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, products: base}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product insert: id is required")
	}
	ref, err := r.products.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	ref, err := r.products.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return pfirestore.WrapError("products.update", err)
	}
	var existing productDocument
	if err := snap.DataTo(&existing); err != nil {
		return fmt.Errorf("decode product %s: %w", product.ID, err)
	}
	doc := newProductDocument(product)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := setDocument(ctx, ref, doc); err != nil {
		return pfirestore.WrapError("products.update", err)
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	ref, err := r.products.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	if err := deleteDocument(ctx, ref); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	ref, err := r.products.DocumentRef(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.get", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindByIDs fetches the requested products in one batch. Missing IDs are
// simply absent from the result map.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ref, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	var snaps []*firestore.DocumentSnapshot
	if tx, ok := transactionFrom(ctx); ok {
		var err error
		snaps, err = tx.GetAll(refs)
		if err != nil {
			return nil, pfirestore.WrapError("products.getall", err)
		}
	} else {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return nil, err
		}
		snaps, err = client.GetAll(ctx, refs)
		if err != nil {
			return nil, pfirestore.WrapError("products.getall", err)
		}
	}

	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		out[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return out, nil
}

// AdjustStock applies delta to the on-hand count, refusing to go below zero.
// Inside a unit of work the read and write join the ambient transaction;
// standalone calls open their own.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, productID, 0, "product id is required", nil)
	}

	now := time.Now().UTC()
	var updated domain.Product
	mutate := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, id, 0, fmt.Sprintf("product %s not found", id), err)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", id, err)
		}
		next := doc.Stock + delta
		if next < 0 {
			return repositories.NewStockError(repositories.StockErrorInsufficientStock, id, doc.Stock, fmt.Sprintf("insufficient stock for %s", id), nil)
		}
		doc.Stock = next
		doc.UpdatedAt = now
		doc.recalculate()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	}

	var err error
	if tx, ok := transactionFrom(ctx); ok {
		err = mutate(ctx, tx)
	} else {
		err = r.provider.RunTransaction(ctx, mutate)
	}
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return domain.Product{}, stockErr
		}
		return domain.Product{}, pfirestore.WrapError("products.adjuststock", err)
	}
	return updated, nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := normalisePageSize(filter.Pagination.PageSize)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	var cursor *listCursor
	if filter.Pagination.PageToken != "" {
		decoded, err := decodeListCursor(filter.Pagination.PageToken)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("products.list: %w", err)
		}
		cursor = &decoded
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CategoryID != "" {
			q = q.Where("categoryRef", "==", filter.CategoryID)
		}
		if filter.LowStockOnly {
			q = q.Where("lowStock", "==", true)
		}
		if search != "" {
			// Prefix match over the lowercased name; the inequality field
			// must lead the ordering.
			q = q.Where("nameLower", ">=", search).
				Where("nameLower", "<", search+"").
				OrderBy("nameLower", firestore.Asc).
				OrderBy(firestore.DocumentID, firestore.Asc)
			if cursor != nil {
				q = q.StartAfter(cursor.Key, cursor.ID)
			}
		} else {
			q = q.OrderBy("createdAt", firestore.Desc).
				OrderBy(firestore.DocumentID, firestore.Desc)
			if cursor != nil {
				q = q.StartAfter(cursor.At, cursor.ID)
			}
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := encodeListCursor(listCursor{At: last.Data.CreatedAt, Key: last.Data.NameLower, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("products.list: encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}
