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
	"github.com/stocktide/api/internal/platform/requestctx"
	"github.com/stocktide/api/internal/services"
)

type stubOrderService struct {
	createFn     func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	updateFn     func(ctx context.Context, cmd services.UpdateOrderCommand) (services.Order, error)
	deleteFn     func(ctx context.Context, cmd services.DeleteOrderCommand) error
	transitionFn func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	getFn        func(ctx context.Context, orderID string) (services.Order, error)
	listFn       func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	recentFn     func(ctx context.Context, limit int) ([]services.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn == nil {
		return services.Order{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) Update(ctx context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
	if s.updateFn == nil {
		return services.Order{}, nil
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubOrderService) Delete(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, cmd)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn == nil {
		return services.Order{}, nil
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn == nil {
		return services.Order{}, nil
	}
	return s.getFn(ctx, orderID)
}

func (s *stubOrderService) List(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) ListRecent(ctx context.Context, limit int) ([]services.Order, error) {
	if s.recentFn == nil {
		return nil, nil
	}
	return s.recentFn(ctx, limit)
}

func sampleOrder() domain.Order {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	requestRef := "orq_001"
	return domain.Order{
		ID:              "ord_001",
		OrderNumber:     "SO-2024-000042",
		CustomerRef:     "cus_001",
		CustomerName:    "Acme Traders",
		CustomerSegment: domain.SegmentWholesaler,
		Items: []domain.OrderItem{
			{ProductRef: "prd_001", Name: "Widget", SKU: "W-1", Quantity: 3, UnitPrice: 100, Total: 300},
		},
		Subtotal:   300,
		Discount:   50,
		NetPayable: 250,
		Payment: domain.OrderPayment{
			AmountPaid:       100,
			BalanceRemaining: 150,
			Status:           domain.PaymentStatusPartiallyPaid,
		},
		Status: domain.OrderStatusPending,
		StatusHistory: []domain.OrderStatusChange{
			{Status: domain.OrderStatusPending, Actor: "admin", At: created},
		},
		RequestRef: &requestRef,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func orderRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	r.Route("/orders", NewOrderHandlers(svc).Routes)
	return r
}

func TestOrderHandlersCreate(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}

	body := `{"customerId":"cus_001","items":[{"productId":"prd_001","quantity":3}],"discount":50,"amountPaid":100}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(body))
	req.Header.Set(draftKeyHeader, "draft-abc")
	req = req.WithContext(requestctx.WithActor(req.Context(), "admin"))
	rr := httptest.NewRecorder()

	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CustomerID != "cus_001" {
		t.Fatalf("expected customer cus_001, got %q", captured.CustomerID)
	}
	if captured.DraftKey != "draft-abc" {
		t.Fatalf("expected draft key to flow from header, got %q", captured.DraftKey)
	}
	if captured.ActorID != "admin" {
		t.Fatalf("expected actor admin, got %q", captured.ActorID)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 3 {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}

	var envelope struct {
		Data orderPayload `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if envelope.Data.ID != "ord_001" {
		t.Fatalf("expected order ord_001, got %q", envelope.Data.ID)
	}
	if envelope.Data.PaymentStatus != string(domain.PaymentStatusPartiallyPaid) {
		t.Fatalf("expected partially paid, got %q", envelope.Data.PaymentStatus)
	}
	if envelope.Data.BalanceRemaining != 150 {
		t.Fatalf("expected balance 150, got %d", envelope.Data.BalanceRemaining)
	}
	if envelope.Data.RequestID != "orq_001" {
		t.Fatalf("expected request ref orq_001, got %q", envelope.Data.RequestID)
	}
}

func TestOrderHandlersCreateInsufficientStock(t *testing.T) {
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return services.Order{}, &services.InsufficientStockError{
				ProductID: "prd_001",
				Name:      "Widget",
				Requested: 8,
				Available: 7,
			}
		},
	}

	body := `{"customerId":"cus_001","items":[{"productId":"prd_001","quantity":8}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(body))
	rr := httptest.NewRecorder()

	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if envelope["error"] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock code, got %v", envelope["error"])
	}
	if envelope["available"] != float64(7) {
		t.Fatalf("expected available 7 in details, got %v", envelope["available"])
	}
	if envelope["requested"] != float64(8) {
		t.Fatalf("expected requested 8 in details, got %v", envelope["requested"])
	}
}

func TestOrderHandlersCreateRejectsInvalidStatus(t *testing.T) {
	svc := &stubOrderService{}
	body := `{"customerId":"cus_001","items":[{"productId":"prd_001","quantity":1}],"status":"Shipped"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(body))
	rr := httptest.NewRecorder()

	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetNotFound(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil)
	rr := httptest.NewRecorder()

	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersUpdateCustomerLocked(t *testing.T) {
	svc := &stubOrderService{
		updateFn: func(context.Context, services.UpdateOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderCustomerLocked
		},
	}

	body := `{"customerId":"cus_002","items":[{"productId":"prd_001","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPut, "/orders/ord_001", strings.NewReader(body))
	rr := httptest.NewRecorder()

	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestOrderHandlersDelete(t *testing.T) {
	var captured services.DeleteOrderCommand
	svc := &stubOrderService{
		deleteFn: func(_ context.Context, cmd services.DeleteOrderCommand) error {
			captured = cmd
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/orders/ord_001", nil)
	req = req.WithContext(requestctx.WithActor(req.Context(), "admin"))
	rr := httptest.NewRecorder()

	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if captured.OrderID != "ord_001" || captured.ActorID != "admin" {
		t.Fatalf("unexpected delete command: %+v", captured)
	}
}

func TestOrderHandlersTransitionStatus(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	svc := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = cmd.TargetStatus
			return order, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/orders/ord_001/status", strings.NewReader(`{"status":"Processing"}`))
	rr := httptest.NewRecorder()

	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.TargetStatus != domain.OrderStatusProcessing {
		t.Fatalf("expected target Processing, got %q", captured.TargetStatus)
	}
}

func TestOrderHandlersListParsesFilters(t *testing.T) {
	var captured services.OrderListFilter
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder()}, NextPageToken: "next"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/orders/?customerId=cus_001&status=Pending,Processing&paymentStatus=Unpaid&pageSize=5", nil)
	rr := httptest.NewRecorder()

	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CustomerID != "cus_001" {
		t.Fatalf("expected customer filter, got %q", captured.CustomerID)
	}
	if len(captured.Status) != 2 {
		t.Fatalf("expected two status filters, got %v", captured.Status)
	}
	if len(captured.PaymentStatus) != 1 || captured.PaymentStatus[0] != domain.PaymentStatusUnpaid {
		t.Fatalf("expected unpaid filter, got %v", captured.PaymentStatus)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", captured.Pagination.PageSize)
	}

	var envelope struct {
		Data orderListPayload `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.NextPageToken != "next" {
		t.Fatalf("unexpected list payload: %+v", envelope.Data)
	}
}

func TestOrderHandlersRecent(t *testing.T) {
	var capturedLimit int
	svc := &stubOrderService{
		recentFn: func(_ context.Context, limit int) ([]services.Order, error) {
			capturedLimit = limit
			return []services.Order{sampleOrder()}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/orders/recent?limit=5", nil)
	rr := httptest.NewRecorder()

	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedLimit != 5 {
		t.Fatalf("expected limit 5, got %d", capturedLimit)
	}
}
