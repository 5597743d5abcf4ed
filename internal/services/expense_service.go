package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/repositories"
)

const (
	mutationEntityExpense = "expense"

	expenseIDPrefix = "exp_"
)

var (
	// ErrExpenseInvalidInput signals the caller provided invalid data.
	ErrExpenseInvalidInput = errors.New("expense: invalid input")
	// ErrExpenseNotFound indicates the expense could not be located.
	ErrExpenseNotFound = errors.New("expense: not found")
	// ErrExpenseConflict indicates concurrent modification.
	ErrExpenseConflict = errors.New("expense: conflict")
)

// ExpenseServiceDeps bundles collaborators required to construct the expense service.
type ExpenseServiceDeps struct {
	Expenses    repositories.ExpenseRepository
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	Events      MutationPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type expenseService struct {
	expenses repositories.ExpenseRepository
	clock    func() time.Time
	newID    func() string
	sanitize func(string) string
	events   MutationPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewExpenseService wires dependencies into a concrete ExpenseService implementation.
func NewExpenseService(deps ExpenseServiceDeps) (ExpenseService, error) {
	if deps.Expenses == nil {
		return nil, errors.New("expense service: expense repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = strings.TrimSpace
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &expenseService{
		expenses: deps.Expenses,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		events:   deps.Events,
		logger:   logger,
	}, nil
}

func (s *expenseService) Create(ctx context.Context, cmd UpsertExpenseCommand) (Expense, error) {
	category := strings.TrimSpace(cmd.Category)
	if category == "" {
		return Expense{}, fmt.Errorf("%w: expense category is required", ErrExpenseInvalidInput)
	}
	if cmd.Amount <= 0 {
		return Expense{}, fmt.Errorf("%w: expense amount must be positive", ErrExpenseInvalidInput)
	}

	now := s.clock()
	incurred := now
	if cmd.IncurredAt != nil {
		incurred = cmd.IncurredAt.UTC()
	}

	expense := Expense{
		ID:         expenseIDPrefix + s.newID(),
		Category:   category,
		Amount:     cmd.Amount,
		Note:       s.sanitize(cmd.Note),
		IncurredAt: incurred,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.expenses.Insert(ctx, domain.Expense(expense)); err != nil {
		return Expense{}, s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityExpense,
		Op:         mutationOpCreate,
		EntityID:   expense.ID,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		OccurredAt: now,
	})

	return expense, nil
}

func (s *expenseService) Update(ctx context.Context, cmd UpsertExpenseCommand) (Expense, error) {
	expenseID := strings.TrimSpace(cmd.ExpenseID)
	if expenseID == "" {
		return Expense{}, fmt.Errorf("%w: expense id is required", ErrExpenseInvalidInput)
	}

	expense, err := s.expenses.FindByID(ctx, expenseID)
	if err != nil {
		return Expense{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	if category := strings.TrimSpace(cmd.Category); category != "" {
		expense.Category = category
	}
	if cmd.Amount > 0 {
		expense.Amount = cmd.Amount
	}
	if cmd.Note != "" {
		expense.Note = s.sanitize(cmd.Note)
	}
	if cmd.IncurredAt != nil {
		expense.IncurredAt = cmd.IncurredAt.UTC()
	}
	expense.UpdatedAt = now

	if err := s.expenses.Update(ctx, expense); err != nil {
		return Expense{}, s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityExpense,
		Op:         mutationOpUpdate,
		EntityID:   expense.ID,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		OccurredAt: now,
	})

	return expense, nil
}

func (s *expenseService) Delete(ctx context.Context, expenseID string) error {
	expenseID = strings.TrimSpace(expenseID)
	if expenseID == "" {
		return fmt.Errorf("%w: expense id is required", ErrExpenseInvalidInput)
	}

	if err := s.expenses.Delete(ctx, expenseID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityExpense,
		Op:         mutationOpDelete,
		EntityID:   expenseID,
		OccurredAt: s.clock(),
	})

	return nil
}

func (s *expenseService) List(ctx context.Context, filter ExpenseListFilter) (domain.CursorPage[Expense], error) {
	page, err := s.expenses.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Expense]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *expenseService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrExpenseNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrExpenseConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("expense: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *expenseService) publishMutation(ctx context.Context, event MutationEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMutation(ctx, event); err != nil {
		s.logger(ctx, "expense.event.publish.failed", map[string]any{
			"entity": event.Entity,
			"op":     event.Op,
			"id":     event.EntityID,
			"error":  err.Error(),
		})
	}
}
