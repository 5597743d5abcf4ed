package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/platform/httpx"
	"github.com/stocktide/api/internal/platform/pagination"
	"github.com/stocktide/api/internal/platform/requestctx"
	"github.com/stocktide/api/internal/services"
)

// InventoryHandlers exposes manual stock movements and the inventory views of
// the dashboard. The view endpoints read from the latest analytics snapshot
// rather than querying Firestore directly.
type InventoryHandlers struct {
	catalog   services.CatalogService
	analytics services.AnalyticsService
}

// NewInventoryHandlers constructs a new InventoryHandlers instance.
func NewInventoryHandlers(catalog services.CatalogService, analytics services.AnalyticsService) *InventoryHandlers {
	return &InventoryHandlers{catalog: catalog, analytics: analytics}
}

// Routes registers the /inventory endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Patch("/update-stock/{productID}", h.updateStock)
	r.Get("/stock-history/{productID}", h.stockHistory)
	r.Get("/overview", h.overview)
	r.Get("/alerts", h.alerts)
	r.Get("/most-updated-products", h.mostUpdatedProducts)
	r.Get("/order-snapshot", h.orderSnapshot)
	r.Get("/recent-stock-updates", h.recentStockUpdates)
	r.Get("/stock-activity-chart", h.stockActivityChart)
}

type updateStockRequest struct {
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
	Remarks  string `json:"remarks"`
}

type stockActivityPayload struct {
	ID            string `json:"id"`
	ProductID     string `json:"productId"`
	ProductName   string `json:"productName,omitempty"`
	Action        string `json:"action"`
	Quantity      int    `json:"quantity"`
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
	Remarks       string `json:"remarks,omitempty"`
	Actor         string `json:"actor,omitempty"`
	OccurredAt    string `json:"occurredAt"`
}

type stockActivityListPayload struct {
	Items         []stockActivityPayload `json:"items"`
	NextPageToken string                 `json:"nextPageToken,omitempty"`
}

type inventoryOverviewPayload struct {
	ProductCount     int   `json:"productCount"`
	TotalStockUnits  int   `json:"totalStockUnits"`
	StockValueRetail int64 `json:"stockValueRetail"`
	LowStockCount    int   `json:"lowStockCount"`
	OutOfStockCount  int   `json:"outOfStockCount"`
}

type lowStockAlertPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

type mostUpdatedProductPayload struct {
	ProductID   string `json:"productId"`
	Name        string `json:"name"`
	UpdateCount int    `json:"updateCount"`
}

type orderSnapshotPayload struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

type stockActivityPointPayload struct {
	Day     string `json:"day"`
	Added   int    `json:"added"`
	Reduced int    `json:"reduced"`
}

func buildStockActivityPayload(a domain.StockActivity) stockActivityPayload {
	return stockActivityPayload{
		ID:            a.ID,
		ProductID:     a.ProductRef,
		ProductName:   a.ProductName,
		Action:        string(a.Action),
		Quantity:      a.Quantity,
		PreviousStock: a.PreviousStock,
		NewStock:      a.NewStock,
		Remarks:       a.Remarks,
		Actor:         a.Actor,
		OccurredAt:    formatTime(a.OccurredAt),
	}
}

func (h *InventoryHandlers) updateStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req updateStockRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	action := domain.StockAction(strings.ToLower(strings.TrimSpace(req.Action)))
	if action != domain.StockActionAdd && action != domain.StockActionReduce {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "action must be add or reduce", http.StatusBadRequest))
		return
	}

	actor, _ := requestctx.Actor(ctx)
	product, err := h.catalog.AdjustStock(ctx, services.AdjustStockCommand{
		ProductID: productID,
		Action:    action,
		Quantity:  req.Quantity,
		Remarks:   strings.TrimSpace(req.Remarks),
		ActorID:   actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildProductPayload(product))
}

func (h *InventoryHandlers) stockHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	params, err := pagination.FromRequest(r, listPageOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.StockHistory(ctx, productID, domain.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]stockActivityPayload, 0, len(page.Items))
	for _, activity := range page.Items {
		items = append(items, buildStockActivityPayload(activity))
	}
	writeData(w, http.StatusOK, stockActivityListPayload{Items: items, NextPageToken: page.NextPageToken})
}

func (h *InventoryHandlers) snapshot(w http.ResponseWriter, r *http.Request) (domain.AnalyticsSnapshot, bool) {
	snapshot, err := h.analytics.Snapshot(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return domain.AnalyticsSnapshot{}, false
	}
	return snapshot, true
}

func (h *InventoryHandlers) overview(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, inventoryOverviewPayload{
		ProductCount:     snapshot.InventoryOverview.ProductCount,
		TotalStockUnits:  snapshot.InventoryOverview.TotalStockUnits,
		StockValueRetail: snapshot.InventoryOverview.StockValueRetail,
		LowStockCount:    snapshot.InventoryOverview.LowStockCount,
		OutOfStockCount:  snapshot.InventoryOverview.OutOfStockCount,
	})
}

func (h *InventoryHandlers) alerts(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := make([]lowStockAlertPayload, 0, len(snapshot.LowStockAlerts))
	for _, alert := range snapshot.LowStockAlerts {
		items = append(items, lowStockAlertPayload{
			ProductID: alert.ProductRef,
			Name:      alert.Name,
			SKU:       alert.SKU,
			Stock:     alert.Stock,
			Threshold: alert.Threshold,
		})
	}
	writeData(w, http.StatusOK, items)
}

func (h *InventoryHandlers) mostUpdatedProducts(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := make([]mostUpdatedProductPayload, 0, len(snapshot.MostUpdatedProducts))
	for _, product := range snapshot.MostUpdatedProducts {
		items = append(items, mostUpdatedProductPayload{
			ProductID:   product.ProductRef,
			Name:        product.Name,
			UpdateCount: product.UpdateCount,
		})
	}
	writeData(w, http.StatusOK, items)
}

func (h *InventoryHandlers) orderSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, orderSnapshotPayload{
		Pending:    snapshot.OrderSnapshot.Pending,
		Processing: snapshot.OrderSnapshot.Processing,
		Completed:  snapshot.OrderSnapshot.Completed,
		Cancelled:  snapshot.OrderSnapshot.Cancelled,
	})
}

func (h *InventoryHandlers) recentStockUpdates(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := make([]stockActivityPayload, 0, len(snapshot.RecentStockUpdates))
	for _, activity := range snapshot.RecentStockUpdates {
		items = append(items, buildStockActivityPayload(activity))
	}
	writeData(w, http.StatusOK, items)
}

func (h *InventoryHandlers) stockActivityChart(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	points := make([]stockActivityPointPayload, 0, len(snapshot.StockActivityChart))
	for _, point := range snapshot.StockActivityChart {
		points = append(points, stockActivityPointPayload{
			Day:     point.Day,
			Added:   point.Added,
			Reduced: point.Reduced,
		})
	}
	writeData(w, http.StatusOK, points)
}
