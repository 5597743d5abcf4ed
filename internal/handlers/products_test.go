package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/services"
)

type stubCatalogService struct {
	createProductFn  func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
	updateProductFn  func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
	deleteProductFn  func(ctx context.Context, productID string) error
	getProductFn     func(ctx context.Context, productID string) (services.Product, error)
	listProductsFn   func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error)
	createCategoryFn func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error)
	updateCategoryFn func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error)
	deleteCategoryFn func(ctx context.Context, categoryID string) error
	listCategoriesFn func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Category], error)
	adjustStockFn    func(ctx context.Context, cmd services.AdjustStockCommand) (services.Product, error)
	stockHistoryFn   func(ctx context.Context, productID string, pager services.Pagination) (domain.CursorPage[services.StockActivity], error)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.createProductFn == nil {
		return services.Product{}, nil
	}
	return s.createProductFn(ctx, cmd)
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.updateProductFn == nil {
		return services.Product{}, nil
	}
	return s.updateProductFn(ctx, cmd)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteProductFn == nil {
		return nil
	}
	return s.deleteProductFn(ctx, productID)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getProductFn == nil {
		return services.Product{}, nil
	}
	return s.getProductFn(ctx, productID)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listProductsFn == nil {
		return domain.CursorPage[services.Product]{}, nil
	}
	return s.listProductsFn(ctx, filter)
}

func (s *stubCatalogService) CreateCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
	if s.createCategoryFn == nil {
		return services.Category{}, nil
	}
	return s.createCategoryFn(ctx, cmd)
}

func (s *stubCatalogService) UpdateCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
	if s.updateCategoryFn == nil {
		return services.Category{}, nil
	}
	return s.updateCategoryFn(ctx, cmd)
}

func (s *stubCatalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s.deleteCategoryFn == nil {
		return nil
	}
	return s.deleteCategoryFn(ctx, categoryID)
}

func (s *stubCatalogService) ListCategories(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Category], error) {
	if s.listCategoriesFn == nil {
		return domain.CursorPage[services.Category]{}, nil
	}
	return s.listCategoriesFn(ctx, pager)
}

func (s *stubCatalogService) AdjustStock(ctx context.Context, cmd services.AdjustStockCommand) (services.Product, error) {
	if s.adjustStockFn == nil {
		return services.Product{}, nil
	}
	return s.adjustStockFn(ctx, cmd)
}

func (s *stubCatalogService) StockHistory(ctx context.Context, productID string, pager services.Pagination) (domain.CursorPage[services.StockActivity], error) {
	if s.stockHistoryFn == nil {
		return domain.CursorPage[services.StockActivity]{}, nil
	}
	return s.stockHistoryFn(ctx, productID, pager)
}

func sampleProduct() domain.Product {
	created := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	return domain.Product{
		ID:                "prd_001",
		Name:              "Widget",
		SKU:               "W-1",
		CategoryRef:       "cat_001",
		Stock:             3,
		PriceRetail:       150,
		PriceWholesale:    100,
		LowStockThreshold: 5,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func productRouter(svc services.CatalogService) chi.Router {
	r := chi.NewRouter()
	r.Route("/products", NewProductHandlers(svc).Routes)
	return r
}

func TestProductHandlersListParsesFilters(t *testing.T) {
	var captured services.ProductListFilter
	svc := &stubCatalogService{
		listProductsFn: func(_ context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			captured = filter
			return domain.CursorPage[services.Product]{Items: []services.Product{sampleProduct()}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/products/?categoryId=cat_001&search=wid&lowStock=true&pageSize=10", nil)
	rr := httptest.NewRecorder()

	productRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CategoryID != "cat_001" || captured.Search != "wid" || !captured.LowStockOnly {
		t.Fatalf("unexpected filter: %+v", captured)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", captured.Pagination.PageSize)
	}

	var envelope struct {
		Data productListPayload `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("expected one product, got %d", len(envelope.Data.Items))
	}
	if !envelope.Data.Items[0].LowStock {
		t.Fatalf("expected product flagged low on stock")
	}
}

func TestProductHandlersCreate(t *testing.T) {
	var captured services.UpsertProductCommand
	svc := &stubCatalogService{
		createProductFn: func(_ context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
			captured = cmd
			return sampleProduct(), nil
		},
	}

	body := `{"name":"Widget","sku":"W-1","categoryId":"cat_001","stock":3,"priceRetail":150,"priceWholesale":100}`
	req := httptest.NewRequest(http.MethodPost, "/products/", strings.NewReader(body))
	rr := httptest.NewRecorder()

	productRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Name != "Widget" || captured.SKU != "W-1" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.Stock == nil || *captured.Stock != 3 {
		t.Fatalf("expected stock pointer 3, got %v", captured.Stock)
	}
	if captured.LowStockThreshold != nil {
		t.Fatalf("expected threshold unset, got %v", captured.LowStockThreshold)
	}
}

func TestProductHandlersCreateInvalidInput(t *testing.T) {
	svc := &stubCatalogService{
		createProductFn: func(context.Context, services.UpsertProductCommand) (services.Product, error) {
			return services.Product{}, services.ErrCatalogInvalidInput
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/products/", strings.NewReader(`{"name":""}`))
	rr := httptest.NewRecorder()

	productRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestProductHandlersDeleteConflict(t *testing.T) {
	svc := &stubCatalogService{
		deleteProductFn: func(context.Context, string) error {
			return services.ErrCatalogConflict
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/products/prd_001", nil)
	rr := httptest.NewRecorder()

	productRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}
