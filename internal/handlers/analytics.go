package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/services"
)

// AnalyticsHandlers serves the dashboard aggregates out of the latest
// analytics snapshot.
type AnalyticsHandlers struct {
	analytics services.AnalyticsService
}

// NewAnalyticsHandlers constructs a new AnalyticsHandlers instance.
func NewAnalyticsHandlers(analytics services.AnalyticsService) *AnalyticsHandlers {
	return &AnalyticsHandlers{analytics: analytics}
}

// Routes registers the /analytics endpoints.
func (h *AnalyticsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/kpi", h.kpi)
	r.Get("/expenses/breakdown", h.expenseBreakdown)
	r.Get("/expenses/trend", h.expenseTrend)
	r.Get("/sales-by-category", h.salesByCategory)
	r.Get("/revenue-breakdown", h.revenueBreakdown)
	r.Get("/revenue-vs-expense", h.revenueVsExpense)
}

// ReportRoutes registers the /reports endpoints.
func (h *AnalyticsHandlers) ReportRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/top-selling-products", h.topSellingProducts)
}

type kpiPayload struct {
	TotalRevenue      int64 `json:"totalRevenue"`
	TotalExpenses     int64 `json:"totalExpenses"`
	NetProfit         int64 `json:"netProfit"`
	OrderCount        int   `json:"orderCount"`
	PendingOrders     int   `json:"pendingOrders"`
	CustomerCount     int   `json:"customerCount"`
	LowStockCount     int   `json:"lowStockCount"`
	OutstandingAmount int64 `json:"outstandingAmount"`
}

type expenseBreakdownPayload struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
	Count    int    `json:"count"`
}

type expenseTrendPayload struct {
	Month  string `json:"month"`
	Amount int64  `json:"amount"`
}

type categorySalesPayload struct {
	CategoryID string `json:"categoryId,omitempty"`
	Category   string `json:"category"`
	Revenue    int64  `json:"revenue"`
	UnitsSold  int    `json:"unitsSold"`
	OrderCount int    `json:"orderCount"`
}

type revenueBreakdownPayload struct {
	RetailRevenue    int64 `json:"retailRevenue"`
	WholesaleRevenue int64 `json:"wholesaleRevenue"`
	CollectedAmount  int64 `json:"collectedAmount"`
	ReceivableAmount int64 `json:"receivableAmount"`
}

type revenueExpensePayload struct {
	Month    string `json:"month"`
	Revenue  int64  `json:"revenue"`
	Expenses int64  `json:"expenses"`
}

type topProductPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitsSold int    `json:"unitsSold"`
	Revenue   int64  `json:"revenue"`
}

func (h *AnalyticsHandlers) snapshot(w http.ResponseWriter, r *http.Request) (domain.AnalyticsSnapshot, bool) {
	snapshot, err := h.analytics.Snapshot(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return domain.AnalyticsSnapshot{}, false
	}
	return snapshot, true
}

func (h *AnalyticsHandlers) kpi(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, kpiPayload{
		TotalRevenue:      snapshot.KPI.TotalRevenue,
		TotalExpenses:     snapshot.KPI.TotalExpenses,
		NetProfit:         snapshot.KPI.NetProfit,
		OrderCount:        snapshot.KPI.OrderCount,
		PendingOrders:     snapshot.KPI.PendingOrders,
		CustomerCount:     snapshot.KPI.CustomerCount,
		LowStockCount:     snapshot.KPI.LowStockCount,
		OutstandingAmount: snapshot.KPI.OutstandingAmount,
	})
}

func (h *AnalyticsHandlers) expenseBreakdown(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := make([]expenseBreakdownPayload, 0, len(snapshot.ExpenseBreakdown))
	for _, entry := range snapshot.ExpenseBreakdown {
		items = append(items, expenseBreakdownPayload{
			Category: entry.Category,
			Amount:   entry.Amount,
			Count:    entry.Count,
		})
	}
	writeData(w, http.StatusOK, items)
}

func (h *AnalyticsHandlers) expenseTrend(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := make([]expenseTrendPayload, 0, len(snapshot.ExpenseTrend))
	for _, point := range snapshot.ExpenseTrend {
		items = append(items, expenseTrendPayload{Month: point.Month, Amount: point.Amount})
	}
	writeData(w, http.StatusOK, items)
}

func (h *AnalyticsHandlers) salesByCategory(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := make([]categorySalesPayload, 0, len(snapshot.SalesByCategory))
	for _, sales := range snapshot.SalesByCategory {
		items = append(items, categorySalesPayload{
			CategoryID: sales.CategoryRef,
			Category:   sales.Category,
			Revenue:    sales.Revenue,
			UnitsSold:  sales.UnitsSold,
			OrderCount: sales.OrderCount,
		})
	}
	writeData(w, http.StatusOK, items)
}

func (h *AnalyticsHandlers) revenueBreakdown(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, revenueBreakdownPayload{
		RetailRevenue:    snapshot.RevenueBreakdown.RetailRevenue,
		WholesaleRevenue: snapshot.RevenueBreakdown.WholesaleRevenue,
		CollectedAmount:  snapshot.RevenueBreakdown.CollectedAmount,
		ReceivableAmount: snapshot.RevenueBreakdown.ReceivableAmount,
	})
}

func (h *AnalyticsHandlers) revenueVsExpense(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := make([]revenueExpensePayload, 0, len(snapshot.RevenueVsExpense))
	for _, point := range snapshot.RevenueVsExpense {
		items = append(items, revenueExpensePayload{
			Month:    point.Month,
			Revenue:  point.Revenue,
			Expenses: point.Expenses,
		})
	}
	writeData(w, http.StatusOK, items)
}

func (h *AnalyticsHandlers) topSellingProducts(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	items := make([]topProductPayload, 0, len(snapshot.TopProducts))
	for _, product := range snapshot.TopProducts {
		items = append(items, topProductPayload{
			ProductID: product.ProductRef,
			Name:      product.Name,
			UnitsSold: product.UnitsSold,
			Revenue:   product.Revenue,
		})
	}
	writeData(w, http.StatusOK, items)
}
