package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/repositories"
)

func analyticsFixture(now time.Time) AnalyticsServiceDeps {
	orders := []domain.Order{
		{
			ID: "ord_1", CustomerSegment: domain.SegmentWholesaler, NetPayable: 1000,
			Payment:   domain.OrderPayment{AmountPaid: 600, BalanceRemaining: 400, Status: domain.PaymentStatusPartiallyPaid},
			Status:    domain.OrderStatusPending,
			Items:     []domain.OrderItem{{ProductRef: "prd_1", Name: "Steel Hinge", Quantity: 10, Total: 1000}},
			CreatedAt: now.Add(-24 * time.Hour),
		},
		{
			ID: "ord_2", CustomerSegment: domain.SegmentRetailer, NetPayable: 500,
			Payment:   domain.OrderPayment{AmountPaid: 500, Status: domain.PaymentStatusPaid},
			Status:    domain.OrderStatusCompleted,
			Items:     []domain.OrderItem{{ProductRef: "prd_2", Name: "Brass Knob", Quantity: 5, Total: 500}},
			CreatedAt: now.Add(-48 * time.Hour),
		},
	}
	expenses := []domain.Expense{
		{ID: "exp_1", Category: "Logistics", Amount: 300, IncurredAt: now.Add(-24 * time.Hour)},
		{ID: "exp_2", Category: "Logistics", Amount: 200, IncurredAt: now.Add(-24 * time.Hour)},
		{ID: "exp_3", Category: "Rent", Amount: 400, IncurredAt: now.Add(-24 * time.Hour)},
	}
	products := []domain.Product{
		{ID: "prd_1", Name: "Steel Hinge", CategoryRef: "cat_1", Stock: 3, PriceRetail: 120, LowStockThreshold: 5},
		{ID: "prd_2", Name: "Brass Knob", CategoryRef: "cat_1", Stock: 20, PriceRetail: 80, LowStockThreshold: 5},
		{ID: "prd_3", Name: "Door Seal", CategoryRef: "cat_2", Stock: 0, PriceRetail: 40, LowStockThreshold: 5},
	}
	categories := []domain.Category{
		{ID: "cat_1", Name: "Hardware"},
		{ID: "cat_2", Name: "Sealing"},
	}
	customers := []domain.Customer{
		{ID: "cus_1", Segment: domain.SegmentWholesaler},
		{ID: "cus_2", Segment: domain.SegmentRetailer},
	}
	activities := []domain.StockActivity{
		{ProductRef: "prd_1", ProductName: "Steel Hinge", Action: domain.StockActionReduce, Quantity: 10, OccurredAt: now.Add(-2 * time.Hour)},
		{ProductRef: "prd_1", ProductName: "Steel Hinge", Action: domain.StockActionAdd, Quantity: 6, OccurredAt: now.Add(-3 * time.Hour)},
		{ProductRef: "prd_2", ProductName: "Brass Knob", Action: domain.StockActionReduce, Quantity: 5, OccurredAt: now.Add(-26 * time.Hour)},
	}

	productRepo := newStubProductRepo(products...)
	return AnalyticsServiceDeps{
		Orders: &stubOrderRepo{
			listFn: func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
				return domain.CursorPage[domain.Order]{Items: orders}, nil
			},
			listRecentFn: func(_ context.Context, limit int) ([]domain.Order, error) {
				if limit > len(orders) {
					limit = len(orders)
				}
				return orders[:limit], nil
			},
		},
		Expenses: &stubExpenseRepo{
			listFn: func(context.Context, repositories.ExpenseListFilter) (domain.CursorPage[domain.Expense], error) {
				return domain.CursorPage[domain.Expense]{Items: expenses}, nil
			},
		},
		Products:   productRepo,
		Categories: &stubCategoryRepo{
			listFn: func(context.Context, domain.Pagination) (domain.CursorPage[domain.Category], error) {
				return domain.CursorPage[domain.Category]{Items: categories}, nil
			},
		},
		Customers: &stubCustomerRepo{
			listFn: func(context.Context, repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
				return domain.CursorPage[domain.Customer]{Items: customers}, nil
			},
		},
		StockActivities: &stubActivityRepo{
			listSince: func(context.Context, time.Time) ([]domain.StockActivity, error) {
				return activities, nil
			},
			listRecent: func(_ context.Context, limit int) ([]domain.StockActivity, error) {
				if limit > len(activities) {
					limit = len(activities)
				}
				return activities[:limit], nil
			},
		},
		Clock: func() time.Time { return now },
	}
}

func newTestAnalyticsService(t *testing.T, deps AnalyticsServiceDeps) AnalyticsService {
	t.Helper()
	svc, err := NewAnalyticsService(deps)
	if err != nil {
		t.Fatalf("new analytics service: %v", err)
	}
	return svc
}

func TestAnalyticsRefreshAggregates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	svc := newTestAnalyticsService(t, analyticsFixture(now))

	snapshot, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if snapshot.KPI.TotalRevenue != 1500 {
		t.Fatalf("expected revenue 1500 got %d", snapshot.KPI.TotalRevenue)
	}
	if snapshot.KPI.TotalExpenses != 900 {
		t.Fatalf("expected expenses 900 got %d", snapshot.KPI.TotalExpenses)
	}
	if snapshot.KPI.NetProfit != 600 {
		t.Fatalf("expected profit 600 got %d", snapshot.KPI.NetProfit)
	}
	if snapshot.KPI.OrderCount != 2 || snapshot.KPI.PendingOrders != 1 || snapshot.KPI.CustomerCount != 2 {
		t.Fatalf("unexpected counts %+v", snapshot.KPI)
	}
	if snapshot.KPI.OutstandingAmount != 400 {
		t.Fatalf("expected outstanding 400 got %d", snapshot.KPI.OutstandingAmount)
	}
	if snapshot.KPI.LowStockCount != 2 {
		t.Fatalf("expected 2 low stock products got %d", snapshot.KPI.LowStockCount)
	}

	if snapshot.RevenueBreakdown.WholesaleRevenue != 1000 || snapshot.RevenueBreakdown.RetailRevenue != 500 {
		t.Fatalf("unexpected revenue breakdown %+v", snapshot.RevenueBreakdown)
	}
	if snapshot.RevenueBreakdown.CollectedAmount != 1100 || snapshot.RevenueBreakdown.ReceivableAmount != 400 {
		t.Fatalf("unexpected settlement totals %+v", snapshot.RevenueBreakdown)
	}

	if len(snapshot.TopProducts) != 2 || snapshot.TopProducts[0].ProductRef != "prd_1" || snapshot.TopProducts[0].UnitsSold != 10 {
		t.Fatalf("unexpected top products %+v", snapshot.TopProducts)
	}

	if len(snapshot.ExpenseBreakdown) != 2 {
		t.Fatalf("expected 2 expense categories got %+v", snapshot.ExpenseBreakdown)
	}
	if snapshot.ExpenseBreakdown[0].Category != "Logistics" || snapshot.ExpenseBreakdown[0].Amount != 500 || snapshot.ExpenseBreakdown[0].Count != 2 {
		t.Fatalf("unexpected logistics entry %+v", snapshot.ExpenseBreakdown[0])
	}

	if snapshot.InventoryOverview.ProductCount != 3 || snapshot.InventoryOverview.TotalStockUnits != 23 {
		t.Fatalf("unexpected inventory overview %+v", snapshot.InventoryOverview)
	}
	if snapshot.InventoryOverview.OutOfStockCount != 1 || snapshot.InventoryOverview.LowStockCount != 2 {
		t.Fatalf("unexpected stock counts %+v", snapshot.InventoryOverview)
	}
	if snapshot.InventoryOverview.StockValueRetail != 3*120+20*80 {
		t.Fatalf("unexpected stock value %d", snapshot.InventoryOverview.StockValueRetail)
	}

	if len(snapshot.LowStockAlerts) != 2 || snapshot.LowStockAlerts[0].ProductRef != "prd_3" {
		t.Fatalf("expected alerts sorted by stock ascending, got %+v", snapshot.LowStockAlerts)
	}

	if snapshot.OrderSnapshot.Pending != 1 || snapshot.OrderSnapshot.Completed != 1 {
		t.Fatalf("unexpected order snapshot %+v", snapshot.OrderSnapshot)
	}

	if len(snapshot.MostUpdatedProducts) != 2 || snapshot.MostUpdatedProducts[0].ProductRef != "prd_1" || snapshot.MostUpdatedProducts[0].UpdateCount != 2 {
		t.Fatalf("unexpected most updated %+v", snapshot.MostUpdatedProducts)
	}

	if len(snapshot.StockActivityChart) != 7 {
		t.Fatalf("expected 7 chart days got %d", len(snapshot.StockActivityChart))
	}
	today := snapshot.StockActivityChart[6]
	if today.Day != "2026-07-15" || today.Added != 6 || today.Reduced != 10 {
		t.Fatalf("unexpected chart point %+v", today)
	}
	yesterday := snapshot.StockActivityChart[5]
	if yesterday.Reduced != 5 {
		t.Fatalf("expected 5 reduced yesterday, got %+v", yesterday)
	}

	if len(snapshot.ExpenseTrend) != 6 || snapshot.ExpenseTrend[5].Month != "2026-07" || snapshot.ExpenseTrend[5].Amount != 900 {
		t.Fatalf("unexpected expense trend %+v", snapshot.ExpenseTrend)
	}
	if len(snapshot.RevenueVsExpense) != 6 || snapshot.RevenueVsExpense[5].Revenue != 1500 {
		t.Fatalf("unexpected revenue trend %+v", snapshot.RevenueVsExpense)
	}

	if len(snapshot.RecentOrders) != 2 || len(snapshot.RecentStockUpdates) != 3 {
		t.Fatalf("unexpected recent lists %d/%d", len(snapshot.RecentOrders), len(snapshot.RecentStockUpdates))
	}
	if !snapshot.RefreshedAt.Equal(now) {
		t.Fatalf("unexpected refresh time %v", snapshot.RefreshedAt)
	}
}

func TestAnalyticsSnapshotServesCachedResult(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 16, 12, 0, 0, 0, time.UTC)
	deps := analyticsFixture(now)

	loads := 0
	deps.Expenses = &stubExpenseRepo{
		listFn: func(context.Context, repositories.ExpenseListFilter) (domain.CursorPage[domain.Expense], error) {
			loads++
			return domain.CursorPage[domain.Expense]{}, nil
		},
	}

	svc := newTestAnalyticsService(t, deps)

	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected one source load for cached snapshots, got %d", loads)
	}

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected refresh to reload sources, got %d", loads)
	}
}

func TestAnalyticsRefreshReportsEveryFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 17, 12, 0, 0, 0, time.UTC)
	deps := analyticsFixture(now)

	recentErr := errors.New("recent orders query failed")
	deps.Orders = &stubOrderRepo{
		listFn: func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{}, nil
		},
		listRecentFn: func(context.Context, int) ([]domain.Order, error) {
			return nil, recentErr
		},
	}

	svc := newTestAnalyticsService(t, deps)

	_, err := svc.Refresh(ctx)
	if !errors.Is(err, ErrAnalyticsUnavailable) {
		t.Fatalf("expected ErrAnalyticsUnavailable got %v", err)
	}

	// A failed refresh must not poison the cache with a partial snapshot.
	deps = analyticsFixture(now)
	svc2 := newTestAnalyticsService(t, deps)
	if _, err := svc2.Refresh(ctx); err != nil {
		t.Fatalf("healthy refresh: %v", err)
	}
}
