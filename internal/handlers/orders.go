package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/platform/httpx"
	"github.com/stocktide/api/internal/platform/pagination"
	"github.com/stocktide/api/internal/platform/requestctx"
	"github.com/stocktide/api/internal/services"
)

// draftKeyHeader carries the client-generated submission key used to collapse
// duplicate order submissions from double-clicked forms.
const draftKeyHeader = "X-Draft-Key"

const defaultRecentOrderLimit = 10

// OrderHandlers exposes the order endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/recent", h.recentOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}", h.updateOrder)
	r.Delete("/{orderID}", h.deleteOrder)
	r.Patch("/{orderID}/status", h.transitionStatus)
}

type orderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderRequestBody struct {
	CustomerID          string             `json:"customerId"`
	Items               []orderLineRequest `json:"items"`
	Discount            int64              `json:"discount"`
	AmountPaid          int64              `json:"amountPaid"`
	SpecialInstructions string             `json:"specialInstructions"`
	Status              string             `json:"status"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Total     int64  `json:"total"`
}

type orderStatusChangePayload struct {
	Status string `json:"status"`
	Actor  string `json:"actor,omitempty"`
	At     string `json:"at"`
}

type orderPayload struct {
	ID                  string                     `json:"id"`
	OrderNumber         string                     `json:"orderNumber"`
	CustomerID          string                     `json:"customerId"`
	CustomerName        string                     `json:"customerName,omitempty"`
	CustomerSegment     string                     `json:"customerSegment"`
	Items               []orderItemPayload         `json:"items"`
	Subtotal            int64                      `json:"subtotal"`
	Discount            int64                      `json:"discount"`
	NetPayable          int64                      `json:"netPayable"`
	AmountPaid          int64                      `json:"amountPaid"`
	BalanceRemaining    int64                      `json:"balanceRemaining"`
	PaymentStatus       string                     `json:"paymentStatus"`
	Status              string                     `json:"status"`
	StatusHistory       []orderStatusChangePayload `json:"statusHistory,omitempty"`
	SpecialInstructions string                     `json:"specialInstructions,omitempty"`
	RequestID           string                     `json:"requestId,omitempty"`
	CreatedAt           string                     `json:"createdAt,omitempty"`
	UpdatedAt           string                     `json:"updatedAt,omitempty"`
}

type orderListPayload struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func buildOrderPayload(o domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductRef,
			Name:      item.Name,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	history := make([]orderStatusChangePayload, 0, len(o.StatusHistory))
	for _, change := range o.StatusHistory {
		history = append(history, orderStatusChangePayload{
			Status: string(change.Status),
			Actor:  change.Actor,
			At:     formatTime(change.At),
		})
	}
	payload := orderPayload{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		CustomerID:          o.CustomerRef,
		CustomerName:        o.CustomerName,
		CustomerSegment:     string(o.CustomerSegment),
		Items:               items,
		Subtotal:            o.Subtotal,
		Discount:            o.Discount,
		NetPayable:          o.NetPayable,
		AmountPaid:          o.Payment.AmountPaid,
		BalanceRemaining:    o.Payment.BalanceRemaining,
		PaymentStatus:       string(o.Payment.Status),
		Status:              string(o.Status),
		StatusHistory:       history,
		SpecialInstructions: o.SpecialInstructions,
		CreatedAt:           formatTime(o.CreatedAt),
		UpdatedAt:           formatTime(o.UpdatedAt),
	}
	if o.RequestRef != nil {
		payload.RequestID = *o.RequestRef
	}
	return payload
}

func orderLines(items []orderLineRequest) []services.OrderLineInput {
	lines := make([]services.OrderLineInput, 0, len(items))
	for _, item := range items {
		lines = append(lines, services.OrderLineInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}
	return lines
}

func parseOrderStatus(raw string) (*domain.OrderStatus, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	status := domain.OrderStatus(raw)
	if !status.Valid() {
		return nil, false
	}
	return &status, true
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params, err := pagination.FromRequest(r, listPageOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		CustomerID: strings.TrimSpace(query.Get("customerId")),
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		filter.Status = append(filter.Status, status)
	}
	for _, raw := range parseFilterValues(query["paymentStatus"]) {
		switch status := domain.PaymentStatus(raw); status {
		case domain.PaymentStatusUnpaid, domain.PaymentStatusPartiallyPaid, domain.PaymentStatusPaid:
			filter.PaymentStatus = append(filter.PaymentStatus, status)
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentStatus must be a valid payment status", http.StatusBadRequest))
			return
		}
	}
	if raw := strings.TrimSpace(query.Get("createdAfter")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdAfter must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("createdBefore")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdBefore must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &ts
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeData(w, http.StatusOK, orderListPayload{Items: items, NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) recentOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultRecentOrderLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	orders, err := h.orders.ListRecent(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeData(w, http.StatusOK, orderListPayload{Items: items})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req orderRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	status, ok := parseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	actor, _ := requestctx.Actor(ctx)
	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		CustomerID:          strings.TrimSpace(req.CustomerID),
		Items:               orderLines(req.Items),
		Discount:            req.Discount,
		AmountPaid:          req.AmountPaid,
		SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
		Status:              status,
		ActorID:             actor,
		DraftKey:            strings.TrimSpace(r.Header.Get(draftKeyHeader)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req orderRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	status, ok := parseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	actor, _ := requestctx.Actor(ctx)
	order, err := h.orders.Update(ctx, services.UpdateOrderCommand{
		OrderID:             orderID,
		CustomerID:          strings.TrimSpace(req.CustomerID),
		Items:               orderLines(req.Items),
		Discount:            req.Discount,
		AmountPaid:          req.AmountPaid,
		SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
		Status:              status,
		ActorID:             actor,
		DraftKey:            strings.TrimSpace(r.Header.Get(draftKeyHeader)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	actor, _ := requestctx.Actor(ctx)
	if err := h.orders.Delete(ctx, services.DeleteOrderCommand{OrderID: orderID, ActorID: actor}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeNoContent(w)
}

func (h *OrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req orderStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	status := domain.OrderStatus(strings.TrimSpace(req.Status))
	if !status.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	actor, _ := requestctx.Actor(ctx)
	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: status,
		ActorID:      actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderPayload(order))
}

func parseFilterValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func parseTimeParam(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}
