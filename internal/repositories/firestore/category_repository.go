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

const categoriesCollection = "categories"

type categoryDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newCategoryDocument(category domain.Category) categoryDocument {
	return categoryDocument{
		Name:        category.Name,
		Description: category.Description,
		CreatedAt:   category.CreatedAt.UTC(),
		UpdatedAt:   category.UpdatedAt.UTC(),
	}
}

func (d categoryDocument) toDomain(id string) domain.Category {
	return domain.Category{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// CategoryRepository persists product categories in Firestore.
type CategoryRepository struct {
	provider   *pfirestore.Provider
	categories *pfirestore.BaseRepository[categoryDocument]
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection, nil, nil)
	return &CategoryRepository{provider: provider, categories: base}, nil
}

func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if r == nil || r.provider == nil {
		return errors.New("category repository not initialised")
	}
	if strings.TrimSpace(category.ID) == "" {
		return errors.New("category insert: id is required")
	}
	ref, err := r.categories.DocumentRef(ctx, category.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newCategoryDocument(category)); err != nil {
		return pfirestore.WrapError("categories.insert", err)
	}
	return nil
}

func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	if r == nil || r.provider == nil {
		return errors.New("category repository not initialised")
	}
	ref, err := r.categories.DocumentRef(ctx, category.ID)
	if err != nil {
		return err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return pfirestore.WrapError("categories.update", err)
	}
	var existing categoryDocument
	if err := snap.DataTo(&existing); err != nil {
		return fmt.Errorf("decode category %s: %w", category.ID, err)
	}
	doc := newCategoryDocument(category)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := setDocument(ctx, ref, doc); err != nil {
		return pfirestore.WrapError("categories.update", err)
	}
	return nil
}

func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if r == nil || r.provider == nil {
		return errors.New("category repository not initialised")
	}
	ref, err := r.categories.DocumentRef(ctx, categoryID)
	if err != nil {
		return err
	}
	if err := deleteDocument(ctx, ref); err != nil {
		return pfirestore.WrapError("categories.delete", err)
	}
	return nil
}

func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.provider == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	ref, err := r.categories.DocumentRef(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return domain.Category{}, pfirestore.WrapError("categories.get", err)
	}
	var doc categoryDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Category{}, fmt.Errorf("decode category %s: %w", categoryID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *CategoryRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Category], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Category]{}, errors.New("category repository not initialised")
	}

	pageSize := normalisePageSize(pager.PageSize)
	var cursor *listCursor
	if pager.PageToken != "" {
		decoded, err := decodeListCursor(pager.PageToken)
		if err != nil {
			return domain.CursorPage[domain.Category]{}, fmt.Errorf("categories.list: %w", err)
		}
		cursor = &decoded
	}

	docs, err := r.categories.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			q = q.StartAfter(cursor.At, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Category]{}, err
	}

	page := domain.CursorPage[domain.Category]{}
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
			return domain.CursorPage[domain.Category]{}, fmt.Errorf("categories.list: encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}
