package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/repositories"
)

type stubOrderRepo struct {
	insertFn     func(context.Context, domain.Order) error
	updateFn     func(context.Context, domain.Order) error
	deleteFn     func(context.Context, string) error
	findFn       func(context.Context, string) (domain.Order, error)
	listFn       func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listRecentFn func(context.Context, int) ([]domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	if s.listRecentFn != nil {
		return s.listRecentFn(ctx, limit)
	}
	return nil, nil
}

type stockAdjustment struct {
	ProductID string
	Delta     int
}

type stubProductRepo struct {
	mu          sync.Mutex
	products    map[string]domain.Product
	adjustments []stockAdjustment
	adjustErr   error
	findByIDsFn func(context.Context, []string) (map[string]domain.Product, error)
	listFn      func(context.Context, repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
}

func newStubProductRepo(products ...domain.Product) *stubProductRepo {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &stubProductRepo{products: byID}
}

func (s *stubProductRepo) Insert(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	return nil
}

func (s *stubProductRepo) Update(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	return nil
}

func (s *stubProductRepo) Delete(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, productID)
	return nil
}

func (s *stubProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, notFoundError{}
	}
	return product, nil
}

func (s *stubProductRepo) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findByIDsFn != nil {
		return s.findByIDsFn(ctx, productIDs)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := s.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

func (s *stubProductRepo) AdjustStock(_ context.Context, productID string, delta int) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adjustErr != nil {
		return domain.Product{}, s.adjustErr
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, productID, 0, "", nil)
	}
	next := product.Stock + delta
	if next < 0 {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInsufficientStock, productID, product.Stock, "", nil)
	}
	product.Stock = next
	s.products[productID] = product
	s.adjustments = append(s.adjustments, stockAdjustment{ProductID: productID, Delta: delta})
	return product, nil
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	page := domain.CursorPage[domain.Product]{}
	for _, product := range s.products {
		page.Items = append(page.Items, product)
	}
	return page, nil
}

type stubCustomerRepo struct {
	findFn   func(context.Context, string) (domain.Customer, error)
	insertFn func(context.Context, domain.Customer) error
	updateFn func(context.Context, domain.Customer) error
	deleteFn func(context.Context, string) error
	listFn   func(context.Context, repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error)
}

func (s *stubCustomerRepo) Insert(ctx context.Context, customer domain.Customer) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, customer)
	}
	return nil
}

func (s *stubCustomerRepo) Update(ctx context.Context, customer domain.Customer) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, customer)
	}
	return nil
}

func (s *stubCustomerRepo) Delete(ctx context.Context, customerID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, customerID)
	}
	return nil
}

func (s *stubCustomerRepo) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if s.findFn != nil {
		return s.findFn(ctx, customerID)
	}
	return domain.Customer{}, errors.New("not implemented")
}

func (s *stubCustomerRepo) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Customer]{}, nil
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type stubActivityRepo struct {
	mu         sync.Mutex
	appended   []domain.StockActivity
	appendErr  error
	byProduct  func(context.Context, string, domain.Pagination) (domain.CursorPage[domain.StockActivity], error)
	listRecent func(context.Context, int) ([]domain.StockActivity, error)
	listSince  func(context.Context, time.Time) ([]domain.StockActivity, error)
}

func (s *stubActivityRepo) Append(_ context.Context, activity domain.StockActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, activity)
	return nil
}

func (s *stubActivityRepo) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockActivity], error) {
	if s.byProduct != nil {
		return s.byProduct(ctx, productID, pager)
	}
	return domain.CursorPage[domain.StockActivity]{}, nil
}

func (s *stubActivityRepo) ListRecent(ctx context.Context, limit int) ([]domain.StockActivity, error) {
	if s.listRecent != nil {
		return s.listRecent(ctx, limit)
	}
	return nil, nil
}

func (s *stubActivityRepo) ListSince(ctx context.Context, since time.Time) ([]domain.StockActivity, error) {
	if s.listSince != nil {
		return s.listSince(ctx, since)
	}
	return nil, nil
}

type captureMutations struct {
	mu     sync.Mutex
	events []MutationEvent
}

func (c *captureMutations) PublishMutation(_ context.Context, event MutationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureMutations) all() []MutationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MutationEvent, len(c.events))
	copy(out, c.events)
	return out
}

type stubUnitOfWork struct {
	runFn func(context.Context, func(context.Context) error) error
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.runFn != nil {
		return s.runFn(ctx, fn)
	}
	return fn(ctx)
}

type notFoundError struct{}

func (notFoundError) Error() string       { return "not found" }
func (notFoundError) IsNotFound() bool    { return true }
func (notFoundError) IsConflict() bool    { return false }
func (notFoundError) IsUnavailable() bool { return false }

type conflictError struct{}

func (conflictError) Error() string       { return "conflict" }
func (conflictError) IsNotFound() bool    { return false }
func (conflictError) IsConflict() bool    { return true }
func (conflictError) IsUnavailable() bool { return false }

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func wholesaleTestDeps(now time.Time) (OrderServiceDeps, *stubOrderRepo, *stubProductRepo, *stubActivityRepo, *captureMutations) {
	orderRepo := &stubOrderRepo{}
	productRepo := newStubProductRepo(domain.Product{
		ID:             "prd_1",
		Name:           "Steel Hinge",
		SKU:            "HNG-01",
		Stock:          10,
		PriceRetail:    120,
		PriceWholesale: 100,
	})
	activityRepo := &stubActivityRepo{}
	events := &captureMutations{}

	deps := OrderServiceDeps{
		Orders:   orderRepo,
		Products: productRepo,
		Customers: &stubCustomerRepo{
			findFn: func(_ context.Context, id string) (domain.Customer, error) {
				return domain.Customer{ID: id, Name: "Acme Traders", Segment: domain.SegmentWholesaler}, nil
			},
		},
		Counters: &stubCounterRepo{
			nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
				if counterID != "orders" || step != 1 {
					return 0, errors.New("unexpected counter call")
				}
				return 42, nil
			},
		},
		StockActivities: activityRepo,
		Pricing:         NewPricingResolver(),
		Stock:           NewStockValidator(),
		Payments:        NewPaymentCalculator(),
		UnitOfWork:      &stubUnitOfWork{},
		Clock:           func() time.Time { return now },
		IDGenerator:     func() string { return "000TEST" },
		Events:          events,
	}
	return deps, orderRepo, productRepo, activityRepo, events
}

func TestOrderServiceCreateWholesalePricing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	deps, orderRepo, productRepo, activityRepo, events := wholesaleTestDeps(now)

	var inserted []domain.Order
	orderRepo.insertFn = func(_ context.Context, order domain.Order) error {
		inserted = append(inserted, order)
		return nil
	}

	svc := newTestOrderService(t, deps)

	order, err := svc.Create(ctx, CreateOrderCommand{
		CustomerID: "cus_1",
		Items:      []OrderLineInput{{ProductID: "prd_1", Quantity: 3}},
		Discount:   50,
		AmountPaid: 250,
		ActorID:    "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if order.ID != "ord_000TEST" {
		t.Fatalf("unexpected order id %s", order.ID)
	}
	if order.OrderNumber != "SO-2026-000042" {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}
	if order.Subtotal != 300 {
		t.Fatalf("expected wholesale subtotal 300 got %d", order.Subtotal)
	}
	if order.NetPayable != 250 {
		t.Fatalf("expected net payable 250 got %d", order.NetPayable)
	}
	if order.Payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected Paid got %s", order.Payment.Status)
	}
	if order.Payment.BalanceRemaining != 0 {
		t.Fatalf("expected zero balance got %d", order.Payment.BalanceRemaining)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected Pending got %s", order.Status)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != domain.OrderStatusPending {
		t.Fatalf("expected initial history entry, got %+v", order.StatusHistory)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected 1 insert got %d", len(inserted))
	}
	if len(productRepo.adjustments) != 1 || productRepo.adjustments[0] != (stockAdjustment{ProductID: "prd_1", Delta: -3}) {
		t.Fatalf("unexpected stock adjustments %+v", productRepo.adjustments)
	}
	if len(activityRepo.appended) != 1 {
		t.Fatalf("expected 1 activity row got %d", len(activityRepo.appended))
	}
	row := activityRepo.appended[0]
	if row.Action != domain.StockActionReduce || row.Quantity != 3 || row.PreviousStock != 10 || row.NewStock != 7 {
		t.Fatalf("unexpected activity row %+v", row)
	}
	got := events.all()
	if len(got) != 1 || got[0].Entity != "order" || got[0].Op != "create" {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestOrderServiceCreateFloorsNetPayableAtZero(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	deps, orderRepo, _, _, _ := wholesaleTestDeps(now)

	var inserted []domain.Order
	orderRepo.insertFn = func(_ context.Context, order domain.Order) error {
		inserted = append(inserted, order)
		return nil
	}

	svc := newTestOrderService(t, deps)

	order, err := svc.Create(ctx, CreateOrderCommand{
		CustomerID: "cus_1",
		Items:      []OrderLineInput{{ProductID: "prd_1", Quantity: 3}},
		Discount:   500,
		ActorID:    "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if order.Subtotal != 300 {
		t.Fatalf("expected subtotal 300 got %d", order.Subtotal)
	}
	if order.Discount != 500 {
		t.Fatalf("expected recorded discount 500 got %d", order.Discount)
	}
	if order.NetPayable != 0 {
		t.Fatalf("expected net payable floored at 0 got %d", order.NetPayable)
	}
	if order.Payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected settled payment got %s", order.Payment.Status)
	}
	if order.Payment.BalanceRemaining != 0 {
		t.Fatalf("expected zero balance got %d", order.Payment.BalanceRemaining)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected 1 insert got %d", len(inserted))
	}
}

func TestOrderServiceCreateInsufficientStock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	deps, orderRepo, productRepo, _, events := wholesaleTestDeps(now)

	inserts := 0
	orderRepo.insertFn = func(context.Context, domain.Order) error {
		inserts++
		return nil
	}

	svc := newTestOrderService(t, deps)

	_, err := svc.Create(ctx, CreateOrderCommand{
		CustomerID: "cus_1",
		Items:      []OrderLineInput{{ProductID: "prd_1", Quantity: 11}},
	})

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError got %v", err)
	}
	if stockErr.Available != 10 || stockErr.Requested != 11 {
		t.Fatalf("unexpected error detail %+v", stockErr)
	}
	if inserts != 0 {
		t.Fatalf("expected no insert on rejection")
	}
	if len(productRepo.adjustments) != 0 {
		t.Fatalf("expected no stock mutation on rejection")
	}
	if len(events.all()) != 0 {
		t.Fatalf("expected no events on rejection")
	}
}

func TestOrderServiceCreateCommitRaceKeepsRequestedQuantity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	deps, orderRepo, productRepo, _, events := wholesaleTestDeps(now)

	// Validation sees stock 10, but a concurrent commit drains it before the
	// write lands; the repository then reports only 1 unit left.
	productRepo.adjustErr = repositories.NewStockError(repositories.StockErrorInsufficientStock, "prd_1", 1, "", nil)

	orderRepo.insertFn = func(context.Context, domain.Order) error { return nil }

	svc := newTestOrderService(t, deps)

	_, err := svc.Create(ctx, CreateOrderCommand{
		CustomerID: "cus_1",
		Items:      []OrderLineInput{{ProductID: "prd_1", Quantity: 3}},
	})

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError got %v", err)
	}
	if stockErr.Requested != 3 {
		t.Fatalf("requested = %d, want the ordered quantity 3", stockErr.Requested)
	}
	if stockErr.Available != 1 {
		t.Fatalf("available = %d, want 1", stockErr.Available)
	}
	if len(events.all()) != 0 {
		t.Fatalf("expected no events on failed commit")
	}
}

func TestOrderServiceUpdateReservedQuantityCountsAsAvailable(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	deps, orderRepo, productRepo, _, _ := wholesaleTestDeps(now)

	// Live stock 2, but the order already holds 5, so up to 7 must pass.
	productRepo.products["prd_1"] = domain.Product{
		ID: "prd_1", Name: "Steel Hinge", Stock: 2, PriceRetail: 120, PriceWholesale: 100,
	}

	existing := domain.Order{
		ID:              "ord_1",
		OrderNumber:     "SO-2026-000001",
		CustomerRef:     "cus_1",
		CustomerSegment: domain.SegmentWholesaler,
		Items:           []domain.OrderItem{{ProductRef: "prd_1", Quantity: 5, UnitPrice: 100, Total: 500}},
		Subtotal:        500,
		NetPayable:      500,
		Status:          domain.OrderStatusPending,
		StatusHistory:   []domain.OrderStatusChange{{Status: domain.OrderStatusPending, At: now}},
	}
	orderRepo.findFn = func(context.Context, string) (domain.Order, error) {
		return existing, nil
	}
	var updated domain.Order
	orderRepo.updateFn = func(_ context.Context, order domain.Order) error {
		updated = order
		return nil
	}

	svc := newTestOrderService(t, deps)

	// One past the combined availability must be rejected with available 7.
	_, err := svc.Update(ctx, UpdateOrderCommand{
		OrderID:    "ord_1",
		CustomerID: "cus_1",
		Items:      []OrderLineInput{{ProductID: "prd_1", Quantity: 8}},
	})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError got %v", err)
	}
	if stockErr.Available != 7 || stockErr.Requested != 8 {
		t.Fatalf("expected requested 8 of 7 available, got %+v", stockErr)
	}
	if len(productRepo.adjustments) != 0 {
		t.Fatalf("expected no stock mutation on rejection")
	}

	order, err := svc.Update(ctx, UpdateOrderCommand{
		OrderID:    "ord_1",
		CustomerID: "cus_1",
		Items:      []OrderLineInput{{ProductID: "prd_1", Quantity: 7}},
		AmountPaid: 0,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if order.Subtotal != 700 {
		t.Fatalf("expected subtotal 700 got %d", order.Subtotal)
	}
	if updated.ID != "ord_1" {
		t.Fatalf("expected order update to persist")
	}
	// Growing 5 -> 7 takes two more units from the live count.
	if len(productRepo.adjustments) != 1 || productRepo.adjustments[0].Delta != -2 {
		t.Fatalf("unexpected adjustments %+v", productRepo.adjustments)
	}
}

func TestOrderServiceUpdateCustomerLocked(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	deps, orderRepo, _, _, events := wholesaleTestDeps(now)

	orderRepo.findFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_1", CustomerRef: "cus_1", CustomerSegment: domain.SegmentWholesaler}, nil
	}

	svc := newTestOrderService(t, deps)

	_, err := svc.Update(ctx, UpdateOrderCommand{
		OrderID:    "ord_1",
		CustomerID: "cus_2",
		Items:      []OrderLineInput{{ProductID: "prd_1", Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderCustomerLocked) {
		t.Fatalf("expected ErrOrderCustomerLocked got %v", err)
	}
	if len(events.all()) != 0 {
		t.Fatalf("expected no events on locked edit")
	}
}

func TestOrderServiceUpdateRestoresRemovedLines(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	deps, orderRepo, productRepo, activityRepo, _ := wholesaleTestDeps(now)

	productRepo.products["prd_2"] = domain.Product{
		ID: "prd_2", Name: "Brass Knob", Stock: 4, PriceRetail: 80, PriceWholesale: 60,
	}

	orderRepo.findFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{
			ID:              "ord_1",
			OrderNumber:     "SO-2026-000002",
			CustomerRef:     "cus_1",
			CustomerSegment: domain.SegmentWholesaler,
			Items: []domain.OrderItem{
				{ProductRef: "prd_1", Quantity: 2, UnitPrice: 100, Total: 200},
				{ProductRef: "prd_2", Quantity: 3, UnitPrice: 60, Total: 180},
			},
			Status: domain.OrderStatusPending,
		}, nil
	}
	orderRepo.updateFn = func(context.Context, domain.Order) error { return nil }

	svc := newTestOrderService(t, deps)

	_, err := svc.Update(ctx, UpdateOrderCommand{
		OrderID: "ord_1",
		Items:   []OrderLineInput{{ProductID: "prd_1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// Dropping prd_2 entirely must give its 3 units back.
	if len(productRepo.adjustments) != 1 || productRepo.adjustments[0] != (stockAdjustment{ProductID: "prd_2", Delta: 3}) {
		t.Fatalf("unexpected adjustments %+v", productRepo.adjustments)
	}
	if len(activityRepo.appended) != 1 || activityRepo.appended[0].Action != domain.StockActionAdd {
		t.Fatalf("expected restoring activity row, got %+v", activityRepo.appended)
	}
}

func TestOrderServiceDeleteRestoresStock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	deps, orderRepo, productRepo, _, events := wholesaleTestDeps(now)

	orderRepo.findFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{
			ID:          "ord_1",
			OrderNumber: "SO-2026-000003",
			CustomerRef: "cus_1",
			Items:       []domain.OrderItem{{ProductRef: "prd_1", Quantity: 4, UnitPrice: 100, Total: 400}},
		}, nil
	}
	deleted := ""
	orderRepo.deleteFn = func(_ context.Context, orderID string) error {
		deleted = orderID
		return nil
	}

	svc := newTestOrderService(t, deps)

	if err := svc.Delete(ctx, DeleteOrderCommand{OrderID: "ord_1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != "ord_1" {
		t.Fatalf("expected delete of ord_1 got %q", deleted)
	}
	if len(productRepo.adjustments) != 1 || productRepo.adjustments[0] != (stockAdjustment{ProductID: "prd_1", Delta: 4}) {
		t.Fatalf("expected restore of 4 units, got %+v", productRepo.adjustments)
	}
	got := events.all()
	if len(got) != 1 || got[0].Op != "delete" {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestOrderServiceTransitionStatusAppendsHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	deps, orderRepo, _, _, events := wholesaleTestDeps(now)

	orderRepo.findFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{
			ID:            "ord_1",
			Status:        domain.OrderStatusPending,
			StatusHistory: []domain.OrderStatusChange{{Status: domain.OrderStatusPending}},
		}, nil
	}
	var updated domain.Order
	orderRepo.updateFn = func(_ context.Context, order domain.Order) error {
		updated = order
		return nil
	}

	svc := newTestOrderService(t, deps)

	order, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusProcessing,
		ActorID:      "admin-1",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected Processing got %s", order.Status)
	}
	if len(updated.StatusHistory) != 2 || updated.StatusHistory[1].Status != domain.OrderStatusProcessing {
		t.Fatalf("expected appended history, got %+v", updated.StatusHistory)
	}
	got := events.all()
	if len(got) != 1 || got[0].Op != "status.changed" {
		t.Fatalf("unexpected events %+v", got)
	}

	// Transitioning to the current status is a no-op.
	events.events = nil
	if _, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusPending,
	}); err != nil {
		t.Fatalf("idempotent transition: %v", err)
	}
	if len(events.all()) != 0 {
		t.Fatalf("expected no event for no-op transition")
	}
}

func TestOrderServiceCreateSingleFlight(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)
	deps, orderRepo, _, _, _ := wholesaleTestDeps(now)

	gate := make(chan struct{})
	var mu sync.Mutex
	inserts := 0
	orderRepo.insertFn = func(context.Context, domain.Order) error {
		<-gate
		mu.Lock()
		inserts++
		mu.Unlock()
		return nil
	}

	svc := newTestOrderService(t, deps)

	cmd := CreateOrderCommand{
		CustomerID: "cus_1",
		Items:      []OrderLineInput{{ProductID: "prd_1", Quantity: 1}},
		DraftKey:   "draft-abc",
	}

	var wg sync.WaitGroup
	results := make([]Order, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Create(ctx, cmd)
		}(i)
	}

	// Let both submissions reach the in-flight call before it completes.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("create %d: %v", i, errs[i])
		}
	}
	if inserts != 1 {
		t.Fatalf("expected a single shared insert, got %d", inserts)
	}
	if results[0].ID != results[1].ID {
		t.Fatalf("expected both callers to share one order, got %s and %s", results[0].ID, results[1].ID)
	}
}

func TestOrderServiceConflictSurfacesWithoutRetry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
	deps, orderRepo, _, _, _ := wholesaleTestDeps(now)

	calls := 0
	orderRepo.insertFn = func(context.Context, domain.Order) error {
		calls++
		return conflictError{}
	}

	svc := newTestOrderService(t, deps)

	_, err := svc.Create(ctx, CreateOrderCommand{
		CustomerID: "cus_1",
		Items:      []OrderLineInput{{ProductID: "prd_1", Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
}
