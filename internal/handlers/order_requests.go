package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/platform/httpx"
	"github.com/stocktide/api/internal/platform/pagination"
	"github.com/stocktide/api/internal/platform/requestctx"
	"github.com/stocktide/api/internal/services"
)

// OrderRequestHandlers exposes the customer request queue endpoints.
type OrderRequestHandlers struct {
	requests services.OrderRequestService
}

// NewOrderRequestHandlers constructs a new OrderRequestHandlers instance.
func NewOrderRequestHandlers(requests services.OrderRequestService) *OrderRequestHandlers {
	return &OrderRequestHandlers{requests: requests}
}

// Routes registers the /order-requests endpoints.
func (h *OrderRequestHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listRequests)
	r.Post("/", h.createRequest)
	r.Get("/{requestID}", h.getRequest)
	r.Put("/approve/{requestID}", h.approveRequest)
	r.Put("/reject/{requestID}", h.rejectRequest)
}

type orderRequestCreateBody struct {
	CustomerID string             `json:"customerId"`
	Items      []orderLineRequest `json:"items"`
}

type orderRequestDecisionBody struct {
	DecisionNote string `json:"decisionNote"`
}

type orderRequestItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type orderRequestPayload struct {
	ID           string                    `json:"id"`
	CustomerID   string                    `json:"customerId"`
	CustomerName string                    `json:"customerName,omitempty"`
	Items        []orderRequestItemPayload `json:"items"`
	Status       string                    `json:"status"`
	DecisionNote string                    `json:"decisionNote,omitempty"`
	DecidedBy    string                    `json:"decidedBy,omitempty"`
	DecidedAt    string                    `json:"decidedAt,omitempty"`
	OrderID      string                    `json:"orderId,omitempty"`
	CreatedAt    string                    `json:"createdAt,omitempty"`
	UpdatedAt    string                    `json:"updatedAt,omitempty"`
}

type orderRequestListPayload struct {
	Items         []orderRequestPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

func buildOrderRequestPayload(req domain.OrderRequest) orderRequestPayload {
	items := make([]orderRequestItemPayload, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orderRequestItemPayload{
			ProductID: item.ProductRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
		})
	}
	payload := orderRequestPayload{
		ID:           req.ID,
		CustomerID:   req.CustomerRef,
		CustomerName: req.CustomerName,
		Items:        items,
		Status:       string(req.Status),
		DecisionNote: req.DecisionNote,
		DecidedBy:    req.DecidedBy,
		DecidedAt:    formatTimePtr(req.DecidedAt),
		CreatedAt:    formatTime(req.CreatedAt),
		UpdatedAt:    formatTime(req.UpdatedAt),
	}
	if req.OrderRef != nil {
		payload.OrderID = *req.OrderRef
	}
	return payload
}

func (h *OrderRequestHandlers) listRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params, err := pagination.FromRequest(r, listPageOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.OrderRequestFilter{
		CustomerID: strings.TrimSpace(query.Get("customerId")),
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	for _, raw := range parseFilterValues(query["status"]) {
		switch status := domain.OrderRequestStatus(raw); status {
		case domain.OrderRequestStatusPending, domain.OrderRequestStatusApproved, domain.OrderRequestStatusRejected:
			filter.Status = append(filter.Status, status)
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid request status", http.StatusBadRequest))
			return
		}
	}

	page, err := h.requests.List(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderRequestPayload, 0, len(page.Items))
	for _, request := range page.Items {
		items = append(items, buildOrderRequestPayload(request))
	}
	writeData(w, http.StatusOK, orderRequestListPayload{Items: items, NextPageToken: page.NextPageToken})
}

func (h *OrderRequestHandlers) createRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req orderRequestCreateBody
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	actor, _ := requestctx.Actor(ctx)
	request, err := h.requests.Create(ctx, services.CreateOrderRequestCommand{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Items:      orderLines(req.Items),
		ActorID:    actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusCreated, buildOrderRequestPayload(request))
}

func (h *OrderRequestHandlers) getRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request id is required", http.StatusBadRequest))
		return
	}

	request, err := h.requests.Get(ctx, requestID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderRequestPayload(request))
}

func (h *OrderRequestHandlers) approveRequest(w http.ResponseWriter, r *http.Request) {
	h.decideRequest(w, r, h.requests.Approve)
}

func (h *OrderRequestHandlers) rejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decideRequest(w, r, h.requests.Reject)
}

func (h *OrderRequestHandlers) decideRequest(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, cmd services.DecideOrderRequestCommand) (services.OrderRequest, error)) {
	ctx := r.Context()
	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request id is required", http.StatusBadRequest))
		return
	}

	// The decision body is optional; an empty body means no note.
	var req orderRequestDecisionBody
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	actor, _ := requestctx.Actor(ctx)
	request, err := decide(ctx, services.DecideOrderRequestCommand{
		RequestID:    requestID,
		DecisionNote: strings.TrimSpace(req.DecisionNote),
		ActorID:      actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildOrderRequestPayload(request))
}
