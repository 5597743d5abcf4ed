package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/stocktide/api/internal/domain"
)

type stubCategoryRepo struct {
	insertFn func(context.Context, domain.Category) error
	updateFn func(context.Context, domain.Category) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.Category, error)
	listFn   func(context.Context, domain.Pagination) (domain.CursorPage[domain.Category], error)
}

func (s *stubCategoryRepo) Insert(ctx context.Context, category domain.Category) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, category)
	}
	return nil
}

func (s *stubCategoryRepo) Update(ctx context.Context, category domain.Category) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, category)
	}
	return nil
}

func (s *stubCategoryRepo) Delete(ctx context.Context, categoryID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, categoryID)
	}
	return nil
}

func (s *stubCategoryRepo) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if s.findFn != nil {
		return s.findFn(ctx, categoryID)
	}
	return domain.Category{}, errors.New("not implemented")
}

func (s *stubCategoryRepo) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Category], error) {
	if s.listFn != nil {
		return s.listFn(ctx, pager)
	}
	return domain.CursorPage[domain.Category]{}, nil
}

func catalogTestDeps(now time.Time) (CatalogServiceDeps, *stubProductRepo, *stubActivityRepo, *captureMutations) {
	productRepo := newStubProductRepo(domain.Product{
		ID:                "prd_1",
		Name:              "Steel Hinge",
		Stock:             10,
		PriceRetail:       120,
		PriceWholesale:    100,
		LowStockThreshold: 5,
	})
	activityRepo := &stubActivityRepo{}
	events := &captureMutations{}

	deps := CatalogServiceDeps{
		Products:        productRepo,
		Categories:      &stubCategoryRepo{},
		StockActivities: activityRepo,
		UnitOfWork:      &stubUnitOfWork{},
		Clock:           func() time.Time { return now },
		IDGenerator:     func() string { return "000TEST" },
		Events:          events,
	}
	return deps, productRepo, activityRepo, events
}

func newTestCatalogService(t *testing.T, deps CatalogServiceDeps) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(deps)
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return svc
}

func TestCatalogServiceCreateProductDefaults(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	deps, productRepo, _, events := catalogTestDeps(now)

	svc := newTestCatalogService(t, deps)

	product, err := svc.CreateProduct(ctx, UpsertProductCommand{
		Name:           "  Brass Knob  ",
		SKU:            "KNB-02",
		PriceRetail:    80,
		PriceWholesale: 60,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.ID != "prd_000TEST" {
		t.Fatalf("unexpected product id %s", product.ID)
	}
	if product.Name != "Brass Knob" {
		t.Fatalf("expected trimmed name, got %q", product.Name)
	}
	if product.Stock != 0 {
		t.Fatalf("expected zero initial stock got %d", product.Stock)
	}
	if product.LowStockThreshold != 5 {
		t.Fatalf("expected default threshold 5 got %d", product.LowStockThreshold)
	}
	if _, ok := productRepo.products["prd_000TEST"]; !ok {
		t.Fatalf("expected product to be persisted")
	}
	got := events.all()
	if len(got) != 1 || got[0].Entity != "product" || got[0].Op != "create" {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestCatalogServiceUpdateProductNeverMutatesStock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	deps, productRepo, _, _ := catalogTestDeps(now)

	svc := newTestCatalogService(t, deps)

	product, err := svc.UpdateProduct(ctx, UpsertProductCommand{
		ProductID:      "prd_1",
		Name:           "Steel Hinge XL",
		PriceRetail:    130,
		PriceWholesale: 105,
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if product.Name != "Steel Hinge XL" || product.PriceRetail != 130 {
		t.Fatalf("unexpected product %+v", product)
	}
	if product.Stock != 10 {
		t.Fatalf("profile edits must leave stock alone, got %d", product.Stock)
	}
	if productRepo.products["prd_1"].Stock != 10 {
		t.Fatalf("persisted stock changed unexpectedly")
	}
}

func TestCatalogServiceAdjustStock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC)
	deps, productRepo, activityRepo, events := catalogTestDeps(now)

	svc := newTestCatalogService(t, deps)

	product, err := svc.AdjustStock(ctx, AdjustStockCommand{
		ProductID: "prd_1",
		Action:    domain.StockActionAdd,
		Quantity:  5,
		Remarks:   "supplier delivery",
		ActorID:   "admin-1",
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if product.Stock != 15 {
		t.Fatalf("expected stock 15 got %d", product.Stock)
	}
	if len(activityRepo.appended) != 1 {
		t.Fatalf("expected audit row, got %d", len(activityRepo.appended))
	}
	row := activityRepo.appended[0]
	if row.Action != domain.StockActionAdd || row.Quantity != 5 || row.PreviousStock != 10 || row.NewStock != 15 {
		t.Fatalf("unexpected audit row %+v", row)
	}
	if row.Remarks != "supplier delivery" {
		t.Fatalf("unexpected remarks %q", row.Remarks)
	}

	product, err = svc.AdjustStock(ctx, AdjustStockCommand{
		ProductID: "prd_1",
		Action:    domain.StockActionReduce,
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("reduce stock: %v", err)
	}
	if product.Stock != 12 {
		t.Fatalf("expected stock 12 got %d", product.Stock)
	}
	if productRepo.products["prd_1"].Stock != 12 {
		t.Fatalf("persisted stock mismatch")
	}

	got := events.all()
	if len(got) != 2 || got[0].Entity != "stock" || got[0].Op != "update" {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestCatalogServiceAdjustStockRejectsReducePastZero(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	deps, _, activityRepo, events := catalogTestDeps(now)

	svc := newTestCatalogService(t, deps)

	_, err := svc.AdjustStock(ctx, AdjustStockCommand{
		ProductID: "prd_1",
		Action:    domain.StockActionReduce,
		Quantity:  11,
	})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError got %v", err)
	}
	if stockErr.Available != 10 {
		t.Fatalf("expected available 10 got %d", stockErr.Available)
	}
	if stockErr.Requested != 11 {
		t.Fatalf("expected requested 11 got %d", stockErr.Requested)
	}
	if len(activityRepo.appended) != 0 {
		t.Fatalf("expected no audit row on rejection")
	}
	if len(events.all()) != 0 {
		t.Fatalf("expected no events on rejection")
	}
}

func TestCatalogServiceAdjustStockValidatesInput(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC)
	deps, _, _, _ := catalogTestDeps(now)

	svc := newTestCatalogService(t, deps)

	if _, err := svc.AdjustStock(ctx, AdjustStockCommand{ProductID: "prd_1", Action: domain.StockActionAdd, Quantity: 0}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for zero quantity, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, AdjustStockCommand{ProductID: "prd_1", Action: "transfer", Quantity: 1}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for unknown action, got %v", err)
	}
}

func TestCatalogServiceCategoryLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 6, 8, 0, 0, 0, time.UTC)
	deps, _, _, events := catalogTestDeps(now)

	stored := map[string]domain.Category{}
	deps.Categories = &stubCategoryRepo{
		insertFn: func(_ context.Context, category domain.Category) error {
			stored[category.ID] = category
			return nil
		},
		findFn: func(_ context.Context, id string) (domain.Category, error) {
			category, ok := stored[id]
			if !ok {
				return domain.Category{}, notFoundError{}
			}
			return category, nil
		},
		updateFn: func(_ context.Context, category domain.Category) error {
			stored[category.ID] = category
			return nil
		},
		deleteFn: func(_ context.Context, id string) error {
			delete(stored, id)
			return nil
		},
	}

	svc := newTestCatalogService(t, deps)

	category, err := svc.CreateCategory(ctx, UpsertCategoryCommand{Name: "Hardware", Description: "fasteners and fittings"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if category.ID != "cat_000TEST" || category.Name != "Hardware" {
		t.Fatalf("unexpected category %+v", category)
	}

	category, err = svc.UpdateCategory(ctx, UpsertCategoryCommand{CategoryID: category.ID, Name: "Hardware & Fittings"})
	if err != nil {
		t.Fatalf("update category: %v", err)
	}
	if category.Name != "Hardware & Fittings" {
		t.Fatalf("unexpected updated name %q", category.Name)
	}

	if err := svc.DeleteCategory(ctx, category.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("expected category removed")
	}

	got := events.all()
	if len(got) != 3 {
		t.Fatalf("expected create, update and delete events, got %+v", got)
	}
	for i, op := range []string{"create", "update", "delete"} {
		if got[i].Entity != "category" || got[i].Op != op {
			t.Fatalf("unexpected event %d: %+v", i, got[i])
		}
	}

	if _, err := svc.UpdateCategory(ctx, UpsertCategoryCommand{CategoryID: "cat_missing", Name: "x"}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound got %v", err)
	}
}
