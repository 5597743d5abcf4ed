package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/repositories"
)

const (
	analyticsPageSize       = 500
	analyticsRecentOrders   = 10
	analyticsRecentUpdates  = 10
	analyticsTopProducts    = 5
	analyticsMostUpdated    = 5
	analyticsTrendMonths    = 6
	analyticsActivityWindow = 7 * 24 * time.Hour
)

// ErrAnalyticsUnavailable indicates the aggregates could not be computed.
var ErrAnalyticsUnavailable = errors.New("analytics: unavailable")

// AnalyticsServiceDeps bundles the repositories the aggregate queries read from.
type AnalyticsServiceDeps struct {
	Orders          repositories.OrderRepository
	Expenses        repositories.ExpenseRepository
	Products        repositories.ProductRepository
	Categories      repositories.CategoryRepository
	Customers       repositories.CustomerRepository
	StockActivities repositories.StockActivityRepository
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type analyticsService struct {
	orders     repositories.OrderRepository
	expenses   repositories.ExpenseRepository
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	customers  repositories.CustomerRepository
	activities repositories.StockActivityRepository
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)

	mu       sync.RWMutex
	snapshot AnalyticsSnapshot
	fresh    bool
}

// NewAnalyticsService wires dependencies into a concrete AnalyticsService.
func NewAnalyticsService(deps AnalyticsServiceDeps) (AnalyticsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("analytics service: order repository is required")
	}
	if deps.Expenses == nil {
		return nil, errors.New("analytics service: expense repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("analytics service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("analytics service: category repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("analytics service: customer repository is required")
	}
	if deps.StockActivities == nil {
		return nil, errors.New("analytics service: stock activity repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &analyticsService{
		orders:     deps.Orders,
		expenses:   deps.Expenses,
		products:   deps.Products,
		categories: deps.Categories,
		customers:  deps.Customers,
		activities: deps.StockActivities,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Snapshot returns the last refreshed aggregate set, computing one on demand
// when nothing has been cached yet.
func (s *analyticsService) Snapshot(ctx context.Context) (AnalyticsSnapshot, error) {
	s.mu.RLock()
	snapshot, fresh := s.snapshot, s.fresh
	s.mu.RUnlock()
	if fresh {
		return snapshot, nil
	}
	return s.Refresh(ctx)
}

// Refresh recomputes every derived aggregate. The source collections load in
// parallel and the aggregate computations fan out in parallel as well; one
// failing aggregate does not stop the others, and the combined error reports
// everything that went wrong.
func (s *analyticsService) Refresh(ctx context.Context) (AnalyticsSnapshot, error) {
	now := s.clock()

	src, err := s.loadSources(ctx, now)
	if err != nil {
		return AnalyticsSnapshot{}, fmt.Errorf("%w: %v", ErrAnalyticsUnavailable, err)
	}

	snapshot := AnalyticsSnapshot{RefreshedAt: now}

	var (
		group    errgroup.Group
		mu       sync.Mutex
		failures []error
	)
	run := func(name string, compute func() error) {
		group.Go(func() error {
			if err := compute(); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}

	run("kpi", func() error {
		snapshot.KPI = computeKPI(src)
		return nil
	})
	run("expense_breakdown", func() error {
		snapshot.ExpenseBreakdown = computeExpenseBreakdown(src.expenses)
		return nil
	})
	run("expense_trend", func() error {
		snapshot.ExpenseTrend = computeExpenseTrend(src.expenses, now)
		return nil
	})
	run("sales_by_category", func() error {
		snapshot.SalesByCategory = computeSalesByCategory(src)
		return nil
	})
	run("revenue_breakdown", func() error {
		snapshot.RevenueBreakdown = computeRevenueBreakdown(src.orders)
		return nil
	})
	run("revenue_vs_expense", func() error {
		snapshot.RevenueVsExpense = computeRevenueVsExpense(src.orders, src.expenses, now)
		return nil
	})
	run("top_products", func() error {
		snapshot.TopProducts = computeTopProducts(src.orders)
		return nil
	})
	run("inventory_overview", func() error {
		snapshot.InventoryOverview = computeInventoryOverview(src.products)
		return nil
	})
	run("low_stock", func() error {
		snapshot.LowStockAlerts = computeLowStockAlerts(src.products)
		return nil
	})
	run("most_updated", func() error {
		snapshot.MostUpdatedProducts = computeMostUpdated(src.activities)
		return nil
	})
	run("order_snapshot", func() error {
		snapshot.OrderSnapshot = computeOrderSnapshot(src.orders)
		return nil
	})
	run("recent_orders", func() error {
		orders, err := s.orders.ListRecent(ctx, analyticsRecentOrders)
		if err != nil {
			return err
		}
		snapshot.RecentOrders = orders
		return nil
	})
	run("recent_stock_updates", func() error {
		updates, err := s.activities.ListRecent(ctx, analyticsRecentUpdates)
		if err != nil {
			return err
		}
		snapshot.RecentStockUpdates = updates
		return nil
	})
	run("stock_activity_chart", func() error {
		snapshot.StockActivityChart = computeStockActivityChart(src.activities, now)
		return nil
	})

	_ = group.Wait()

	if len(failures) > 0 {
		return AnalyticsSnapshot{}, fmt.Errorf("%w: %v", ErrAnalyticsUnavailable, errors.Join(failures...))
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.fresh = true
	s.mu.Unlock()

	return snapshot, nil
}

// analyticsSources holds the raw collections the aggregates derive from.
type analyticsSources struct {
	orders     []Order
	expenses   []Expense
	products   []Product
	categories []Category
	customers  []Customer
	activities []StockActivity
}

func (s *analyticsService) loadSources(ctx context.Context, now time.Time) (analyticsSources, error) {
	var src analyticsSources

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		orders, err := listAll(groupCtx, func(pager domain.Pagination) (domain.CursorPage[Order], error) {
			return s.orders.List(groupCtx, repositories.OrderListFilter{Pagination: pager})
		})
		src.orders = orders
		return err
	})
	group.Go(func() error {
		expenses, err := listAll(groupCtx, func(pager domain.Pagination) (domain.CursorPage[Expense], error) {
			return s.expenses.List(groupCtx, repositories.ExpenseListFilter{Pagination: pager})
		})
		src.expenses = expenses
		return err
	})
	group.Go(func() error {
		products, err := listAll(groupCtx, func(pager domain.Pagination) (domain.CursorPage[Product], error) {
			return s.products.List(groupCtx, repositories.ProductListFilter{Pagination: pager})
		})
		src.products = products
		return err
	})
	group.Go(func() error {
		categories, err := listAll(groupCtx, func(pager domain.Pagination) (domain.CursorPage[Category], error) {
			return s.categories.List(groupCtx, pager)
		})
		src.categories = categories
		return err
	})
	group.Go(func() error {
		customers, err := listAll(groupCtx, func(pager domain.Pagination) (domain.CursorPage[Customer], error) {
			return s.customers.List(groupCtx, repositories.CustomerListFilter{Pagination: pager})
		})
		src.customers = customers
		return err
	})
	group.Go(func() error {
		activities, err := s.activities.ListSince(groupCtx, now.Add(-analyticsActivityWindow))
		src.activities = activities
		return err
	})

	if err := group.Wait(); err != nil {
		return analyticsSources{}, err
	}
	return src, nil
}

func listAll[T any](ctx context.Context, fetch func(domain.Pagination) (domain.CursorPage[T], error)) ([]T, error) {
	var (
		items []T
		token string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(domain.Pagination{PageSize: analyticsPageSize, PageToken: token})
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if page.NextPageToken == "" {
			return items, nil
		}
		token = page.NextPageToken
	}
}

func computeKPI(src analyticsSources) domain.KPISummary {
	kpi := domain.KPISummary{
		OrderCount:    len(src.orders),
		CustomerCount: len(src.customers),
	}
	for _, order := range src.orders {
		kpi.TotalRevenue += order.NetPayable
		kpi.OutstandingAmount += order.Payment.BalanceRemaining
		if order.Status == domain.OrderStatusPending {
			kpi.PendingOrders++
		}
	}
	for _, expense := range src.expenses {
		kpi.TotalExpenses += expense.Amount
	}
	for _, product := range src.products {
		if product.LowOnStock() {
			kpi.LowStockCount++
		}
	}
	kpi.NetProfit = kpi.TotalRevenue - kpi.TotalExpenses
	return kpi
}

func computeExpenseBreakdown(expenses []Expense) []domain.ExpenseBreakdownEntry {
	byCategory := map[string]*domain.ExpenseBreakdownEntry{}
	order := []string{}
	for _, expense := range expenses {
		entry, ok := byCategory[expense.Category]
		if !ok {
			entry = &domain.ExpenseBreakdownEntry{Category: expense.Category}
			byCategory[expense.Category] = entry
			order = append(order, expense.Category)
		}
		entry.Amount += expense.Amount
		entry.Count++
	}
	sort.Strings(order)
	out := make([]domain.ExpenseBreakdownEntry, 0, len(order))
	for _, category := range order {
		out = append(out, *byCategory[category])
	}
	return out
}

func computeExpenseTrend(expenses []Expense, now time.Time) []domain.ExpenseTrendPoint {
	points := monthBuckets(now)
	totals := map[string]int64{}
	for _, expense := range expenses {
		totals[expense.IncurredAt.UTC().Format("2006-01")] += expense.Amount
	}
	out := make([]domain.ExpenseTrendPoint, 0, len(points))
	for _, month := range points {
		out = append(out, domain.ExpenseTrendPoint{Month: month, Amount: totals[month]})
	}
	return out
}

func computeSalesByCategory(src analyticsSources) []domain.CategorySales {
	categoryByProduct := make(map[string]string, len(src.products))
	for _, product := range src.products {
		categoryByProduct[product.ID] = product.CategoryRef
	}
	names := make(map[string]string, len(src.categories))
	for _, category := range src.categories {
		names[category.ID] = category.Name
	}

	byCategory := map[string]*domain.CategorySales{}
	for _, order := range src.orders {
		touched := map[string]bool{}
		for _, item := range order.Items {
			categoryID := categoryByProduct[item.ProductRef]
			entry, ok := byCategory[categoryID]
			if !ok {
				entry = &domain.CategorySales{CategoryRef: categoryID, Category: names[categoryID]}
				byCategory[categoryID] = entry
			}
			entry.Revenue += item.Total
			entry.UnitsSold += item.Quantity
			if !touched[categoryID] {
				entry.OrderCount++
				touched[categoryID] = true
			}
		}
	}

	out := make([]domain.CategorySales, 0, len(byCategory))
	for _, entry := range byCategory {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revenue > out[j].Revenue })
	return out
}

func computeRevenueBreakdown(orders []Order) domain.RevenueBreakdown {
	var breakdown domain.RevenueBreakdown
	for _, order := range orders {
		if order.CustomerSegment == domain.SegmentWholesaler {
			breakdown.WholesaleRevenue += order.NetPayable
		} else {
			breakdown.RetailRevenue += order.NetPayable
		}
		breakdown.CollectedAmount += order.Payment.AmountPaid
		breakdown.ReceivableAmount += order.Payment.BalanceRemaining
	}
	return breakdown
}

func computeRevenueVsExpense(orders []Order, expenses []Expense, now time.Time) []domain.RevenueExpensePoint {
	months := monthBuckets(now)
	revenue := map[string]int64{}
	spend := map[string]int64{}
	for _, order := range orders {
		revenue[order.CreatedAt.UTC().Format("2006-01")] += order.NetPayable
	}
	for _, expense := range expenses {
		spend[expense.IncurredAt.UTC().Format("2006-01")] += expense.Amount
	}
	out := make([]domain.RevenueExpensePoint, 0, len(months))
	for _, month := range months {
		out = append(out, domain.RevenueExpensePoint{Month: month, Revenue: revenue[month], Expenses: spend[month]})
	}
	return out
}

func computeTopProducts(orders []Order) []domain.TopProduct {
	byProduct := map[string]*domain.TopProduct{}
	for _, order := range orders {
		for _, item := range order.Items {
			entry, ok := byProduct[item.ProductRef]
			if !ok {
				entry = &domain.TopProduct{ProductRef: item.ProductRef, Name: item.Name}
				byProduct[item.ProductRef] = entry
			}
			entry.UnitsSold += item.Quantity
			entry.Revenue += item.Total
		}
	}
	out := make([]domain.TopProduct, 0, len(byProduct))
	for _, entry := range byProduct {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitsSold > out[j].UnitsSold })
	if len(out) > analyticsTopProducts {
		out = out[:analyticsTopProducts]
	}
	return out
}

func computeInventoryOverview(products []Product) domain.InventoryOverview {
	overview := domain.InventoryOverview{ProductCount: len(products)}
	for _, product := range products {
		overview.TotalStockUnits += product.Stock
		overview.StockValueRetail += product.PriceRetail * int64(product.Stock)
		if product.Stock == 0 {
			overview.OutOfStockCount++
		}
		if product.LowOnStock() {
			overview.LowStockCount++
		}
	}
	return overview
}

func computeLowStockAlerts(products []Product) []domain.LowStockAlert {
	alerts := []domain.LowStockAlert{}
	for _, product := range products {
		if product.LowOnStock() {
			alerts = append(alerts, domain.LowStockAlert{
				ProductRef: product.ID,
				Name:       product.Name,
				SKU:        product.SKU,
				Stock:      product.Stock,
				Threshold:  product.LowStockThreshold,
			})
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Stock < alerts[j].Stock })
	return alerts
}

func computeMostUpdated(activities []StockActivity) []domain.MostUpdatedProduct {
	byProduct := map[string]*domain.MostUpdatedProduct{}
	for _, activity := range activities {
		entry, ok := byProduct[activity.ProductRef]
		if !ok {
			entry = &domain.MostUpdatedProduct{ProductRef: activity.ProductRef, Name: activity.ProductName}
			byProduct[activity.ProductRef] = entry
		}
		entry.UpdateCount++
	}
	out := make([]domain.MostUpdatedProduct, 0, len(byProduct))
	for _, entry := range byProduct {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdateCount > out[j].UpdateCount })
	if len(out) > analyticsMostUpdated {
		out = out[:analyticsMostUpdated]
	}
	return out
}

func computeOrderSnapshot(orders []Order) domain.OrderSnapshot {
	var snapshot domain.OrderSnapshot
	for _, order := range orders {
		switch order.Status {
		case domain.OrderStatusPending:
			snapshot.Pending++
		case domain.OrderStatusProcessing:
			snapshot.Processing++
		case domain.OrderStatusCompleted:
			snapshot.Completed++
		case domain.OrderStatusCancelled:
			snapshot.Cancelled++
		}
	}
	return snapshot
}

func computeStockActivityChart(activities []StockActivity, now time.Time) []domain.StockActivityPoint {
	days := make([]string, 0, 7)
	totals := map[string]*domain.StockActivityPoint{}
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		days = append(days, day)
		totals[day] = &domain.StockActivityPoint{Day: day}
	}
	for _, activity := range activities {
		day := activity.OccurredAt.UTC().Format("2006-01-02")
		point, ok := totals[day]
		if !ok {
			continue
		}
		switch activity.Action {
		case domain.StockActionAdd:
			point.Added += activity.Quantity
		case domain.StockActionReduce:
			point.Reduced += activity.Quantity
		}
	}
	out := make([]domain.StockActivityPoint, 0, len(days))
	for _, day := range days {
		out = append(out, *totals[day])
	}
	return out
}

// monthBuckets returns the trailing months, oldest first, formatted YYYY-MM.
func monthBuckets(now time.Time) []string {
	months := make([]string, 0, analyticsTrendMonths)
	for i := analyticsTrendMonths - 1; i >= 0; i-- {
		months = append(months, now.AddDate(0, -i, 0).Format("2006-01"))
	}
	return months
}
