package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/platform/httpx"
	"github.com/stocktide/api/internal/platform/pagination"
	"github.com/stocktide/api/internal/platform/requestctx"
	"github.com/stocktide/api/internal/services"
)

// ExpenseHandlers exposes the operating expense endpoints.
type ExpenseHandlers struct {
	expenses services.ExpenseService
}

// NewExpenseHandlers constructs a new ExpenseHandlers instance.
func NewExpenseHandlers(expenses services.ExpenseService) *ExpenseHandlers {
	return &ExpenseHandlers{expenses: expenses}
}

// Routes registers the /expenses endpoints.
func (h *ExpenseHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listExpenses)
	r.Post("/", h.createExpense)
	r.Put("/{expenseID}", h.updateExpense)
	r.Delete("/{expenseID}", h.deleteExpense)
}

type expenseRequest struct {
	Category   string `json:"category"`
	Amount     int64  `json:"amount"`
	Note       string `json:"note"`
	IncurredAt string `json:"incurredAt"`
}

type expensePayload struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	Amount     int64  `json:"amount"`
	Note       string `json:"note,omitempty"`
	IncurredAt string `json:"incurredAt"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

type expenseListPayload struct {
	Items         []expensePayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

func buildExpensePayload(e domain.Expense) expensePayload {
	return expensePayload{
		ID:         e.ID,
		Category:   e.Category,
		Amount:     e.Amount,
		Note:       e.Note,
		IncurredAt: formatTime(e.IncurredAt),
		CreatedAt:  formatTime(e.CreatedAt),
		UpdatedAt:  formatTime(e.UpdatedAt),
	}
}

func (h *ExpenseHandlers) listExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params, err := pagination.FromRequest(r, listPageOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.ExpenseListFilter{
		Category: strings.TrimSpace(query.Get("category")),
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	if raw := strings.TrimSpace(query.Get("incurredAfter")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "incurredAfter must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("incurredBefore")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "incurredBefore must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &ts
	}

	page, err := h.expenses.List(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]expensePayload, 0, len(page.Items))
	for _, expense := range page.Items {
		items = append(items, buildExpensePayload(expense))
	}
	writeData(w, http.StatusOK, expenseListPayload{Items: items, NextPageToken: page.NextPageToken})
}

func (h *ExpenseHandlers) createExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req expenseRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd, err := expenseCommand(ctx, "", req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	expense, err := h.expenses.Create(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusCreated, buildExpensePayload(expense))
}

func (h *ExpenseHandlers) updateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	expenseID := strings.TrimSpace(chi.URLParam(r, "expenseID"))
	if expenseID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expense id is required", http.StatusBadRequest))
		return
	}

	var req expenseRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd, err := expenseCommand(ctx, expenseID, req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	expense, err := h.expenses.Update(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeData(w, http.StatusOK, buildExpensePayload(expense))
}

func (h *ExpenseHandlers) deleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	expenseID := strings.TrimSpace(chi.URLParam(r, "expenseID"))
	if expenseID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expense id is required", http.StatusBadRequest))
		return
	}

	if err := h.expenses.Delete(ctx, expenseID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeNoContent(w)
}

func expenseCommand(ctx context.Context, expenseID string, req expenseRequest) (services.UpsertExpenseCommand, error) {
	actor, _ := requestctx.Actor(ctx)
	cmd := services.UpsertExpenseCommand{
		ExpenseID: expenseID,
		Category:  strings.TrimSpace(req.Category),
		Amount:    req.Amount,
		Note:      strings.TrimSpace(req.Note),
		ActorID:   actor,
	}
	if raw := strings.TrimSpace(req.IncurredAt); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return services.UpsertExpenseCommand{}, errInvalidIncurredAt
		}
		cmd.IncurredAt = &ts
	}
	return cmd, nil
}

var errInvalidIncurredAt = errors.New("incurredAt must be a valid RFC3339 timestamp")
