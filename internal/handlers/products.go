package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/platform/httpx"
	"github.com/stocktide/api/internal/platform/pagination"
	"github.com/stocktide/api/internal/platform/requestctx"
	"github.com/stocktide/api/internal/services"
)

const (
	defaultListPageSize = 20
	maxListPageSize     = 100
)

var listPageOptions = pagination.Options{
	DefaultPageSize: defaultListPageSize,
	MaxPageSize:     maxListPageSize,
}

// ProductHandlers exposes the product catalogue endpoints.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Post("/", h.createProduct)
	r.Get("/{productID}", h.getProduct)
	r.Put("/{productID}", h.updateProduct)
	r.Delete("/{productID}", h.deleteProduct)
}

type productRequest struct {
	Name              string `json:"name"`
	SKU               string `json:"sku"`
	CategoryID        string `json:"categoryId"`
	Stock             *int   `json:"stock"`
	PriceRetail       int64  `json:"priceRetail"`
	PriceWholesale    int64  `json:"priceWholesale"`
	LowStockThreshold *int   `json:"lowStockThreshold"`
}

type productPayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	SKU               string `json:"sku"`
	CategoryID        string `json:"categoryId,omitempty"`
	Stock             int    `json:"stock"`
	PriceRetail       int64  `json:"priceRetail"`
	PriceWholesale    int64  `json:"priceWholesale"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	LowStock          bool   `json:"lowStock"`
	CreatedAt         string `json:"createdAt,omitempty"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

type productListPayload struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func buildProductPayload(p domain.Product) productPayload {
	return productPayload{
		ID:                p.ID,
		Name:              p.Name,
		SKU:               p.SKU,
		CategoryID:        p.CategoryRef,
		Stock:             p.Stock,
		PriceRetail:       p.PriceRetail,
		PriceWholesale:    p.PriceWholesale,
		LowStockThreshold: p.LowStockThreshold,
		LowStock:          p.LowOnStock(),
		CreatedAt:         formatTime(p.CreatedAt),
		UpdatedAt:         formatTime(p.UpdatedAt),
	}
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params, err := pagination.FromRequest(r, listPageOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.ProductListFilter{
		CategoryID:   strings.TrimSpace(query.Get("categoryId")),
		Search:       strings.TrimSpace(query.Get("search")),
		LowStockOnly: strings.EqualFold(strings.TrimSpace(query.Get("lowStock")), "true"),
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeData(w, http.StatusOK, productListPayload{Items: items, NextPageToken: page.NextPageToken})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req productRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.CreateProduct(ctx, productCommand(ctx, "", req))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusCreated, buildProductPayload(product))
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req productRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, productCommand(ctx, productID, req))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeNoContent(w)
}

func productCommand(ctx context.Context, productID string, req productRequest) services.UpsertProductCommand {
	actor, _ := requestctx.Actor(ctx)
	return services.UpsertProductCommand{
		ProductID:         productID,
		Name:              strings.TrimSpace(req.Name),
		SKU:               strings.TrimSpace(req.SKU),
		CategoryID:        strings.TrimSpace(req.CategoryID),
		Stock:             req.Stock,
		PriceRetail:       req.PriceRetail,
		PriceWholesale:    req.PriceWholesale,
		LowStockThreshold: req.LowStockThreshold,
		ActorID:           actor,
	}
}
