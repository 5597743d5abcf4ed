package domain

import "time"

// KPISummary captures the headline figures shown on the dashboard.
type KPISummary struct {
	TotalRevenue      int64
	TotalExpenses     int64
	NetProfit         int64
	OrderCount        int
	PendingOrders     int
	CustomerCount     int
	LowStockCount     int
	OutstandingAmount int64
}

// CategorySales aggregates revenue and units sold per product category.
type CategorySales struct {
	CategoryRef string
	Category    string
	Revenue     int64
	UnitsSold   int
	OrderCount  int
}

// RevenueBreakdown splits revenue by customer segment and payment state.
type RevenueBreakdown struct {
	RetailRevenue    int64
	WholesaleRevenue int64
	CollectedAmount  int64
	ReceivableAmount int64
}

// RevenueExpensePoint is one month of the revenue vs expense trend.
type RevenueExpensePoint struct {
	Month    string
	Revenue  int64
	Expenses int64
}

// TopProduct ranks a product by units sold across committed orders.
type TopProduct struct {
	ProductRef string
	Name       string
	UnitsSold  int
	Revenue    int64
}

// InventoryOverview summarises catalogue stock levels for the admin console.
type InventoryOverview struct {
	ProductCount     int
	TotalStockUnits  int
	StockValueRetail int64
	LowStockCount    int
	OutOfStockCount  int
}

// LowStockAlert flags a product at or below its alert threshold.
type LowStockAlert struct {
	ProductRef string
	Name       string
	SKU        string
	Stock      int
	Threshold  int
}

// OrderSnapshot counts orders per lifecycle status.
type OrderSnapshot struct {
	Pending    int
	Processing int
	Completed  int
	Cancelled  int
}

// StockActivityPoint is one day of stock movement totals for the activity chart.
type StockActivityPoint struct {
	Day     string
	Added   int
	Reduced int
}

// MostUpdatedProduct ranks products by number of stock adjustments.
type MostUpdatedProduct struct {
	ProductRef  string
	Name        string
	UpdateCount int
}

// ExpenseBreakdownEntry aggregates spend per expense category.
type ExpenseBreakdownEntry struct {
	Category string
	Amount   int64
	Count    int
}

// ExpenseTrendPoint is one month of the expense trend.
type ExpenseTrendPoint struct {
	Month  string
	Amount int64
}

// AnalyticsSnapshot bundles every derived aggregate refreshed by the
// invalidation pipeline, stamped with the time it was computed.
type AnalyticsSnapshot struct {
	KPI                 KPISummary
	ExpenseBreakdown    []ExpenseBreakdownEntry
	ExpenseTrend        []ExpenseTrendPoint
	SalesByCategory     []CategorySales
	RevenueBreakdown    RevenueBreakdown
	RevenueVsExpense    []RevenueExpensePoint
	TopProducts         []TopProduct
	InventoryOverview   InventoryOverview
	LowStockAlerts      []LowStockAlert
	MostUpdatedProducts []MostUpdatedProduct
	OrderSnapshot       OrderSnapshot
	RecentOrders        []Order
	RecentStockUpdates  []StockActivity
	StockActivityChart  []StockActivityPoint
	RefreshedAt         time.Time
}
