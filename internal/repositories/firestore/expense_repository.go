package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/stocktide/api/internal/domain"
	pfirestore "github.com/stocktide/api/internal/platform/firestore"
	"github.com/stocktide/api/internal/repositories"
)

const expensesCollection = "expenses"

type expenseDocument struct {
	Category   string    `firestore:"category"`
	Amount     int64     `firestore:"amount"`
	Note       string    `firestore:"note,omitempty"`
	IncurredAt time.Time `firestore:"incurredAt"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func newExpenseDocument(expense domain.Expense) expenseDocument {
	return expenseDocument{
		Category:   expense.Category,
		Amount:     expense.Amount,
		Note:       expense.Note,
		IncurredAt: expense.IncurredAt.UTC(),
		CreatedAt:  expense.CreatedAt.UTC(),
		UpdatedAt:  expense.UpdatedAt.UTC(),
	}
}

func (d expenseDocument) toDomain(id string) domain.Expense {
	return domain.Expense{
		ID:         id,
		Category:   d.Category,
		Amount:     d.Amount,
		Note:       d.Note,
		IncurredAt: d.IncurredAt,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// ExpenseRepository persists operating expenses in Firestore.
type ExpenseRepository struct {
	provider *pfirestore.Provider
	expenses *pfirestore.BaseRepository[expenseDocument]
}

var _ repositories.ExpenseRepository = (*ExpenseRepository)(nil)

// NewExpenseRepository constructs a Firestore-backed expense repository.
func NewExpenseRepository(provider *pfirestore.Provider) (*ExpenseRepository, error) {
	if provider == nil {
		return nil, errors.New("expense repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[expenseDocument](provider, expensesCollection, nil, nil)
	return &ExpenseRepository{provider: provider, expenses: base}, nil
}

func (r *ExpenseRepository) Insert(ctx context.Context, expense domain.Expense) error {
	if r == nil || r.provider == nil {
		return errors.New("expense repository not initialised")
	}
	if strings.TrimSpace(expense.ID) == "" {
		return errors.New("expense insert: id is required")
	}
	ref, err := r.expenses.DocumentRef(ctx, expense.ID)
	if err != nil {
		return err
	}
	if err := createDocument(ctx, ref, newExpenseDocument(expense)); err != nil {
		return pfirestore.WrapError("expenses.insert", err)
	}
	return nil
}

func (r *ExpenseRepository) Update(ctx context.Context, expense domain.Expense) error {
	if r == nil || r.provider == nil {
		return errors.New("expense repository not initialised")
	}
	ref, err := r.expenses.DocumentRef(ctx, expense.ID)
	if err != nil {
		return err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return pfirestore.WrapError("expenses.update", err)
	}
	var existing expenseDocument
	if err := snap.DataTo(&existing); err != nil {
		return fmt.Errorf("decode expense %s: %w", expense.ID, err)
	}
	doc := newExpenseDocument(expense)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := setDocument(ctx, ref, doc); err != nil {
		return pfirestore.WrapError("expenses.update", err)
	}
	return nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, expenseID string) error {
	if r == nil || r.provider == nil {
		return errors.New("expense repository not initialised")
	}
	ref, err := r.expenses.DocumentRef(ctx, expenseID)
	if err != nil {
		return err
	}
	if err := deleteDocument(ctx, ref); err != nil {
		return pfirestore.WrapError("expenses.delete", err)
	}
	return nil
}

func (r *ExpenseRepository) FindByID(ctx context.Context, expenseID string) (domain.Expense, error) {
	if r == nil || r.provider == nil {
		return domain.Expense{}, errors.New("expense repository not initialised")
	}
	ref, err := r.expenses.DocumentRef(ctx, expenseID)
	if err != nil {
		return domain.Expense{}, err
	}
	snap, err := getDocument(ctx, ref)
	if err != nil {
		return domain.Expense{}, pfirestore.WrapError("expenses.get", err)
	}
	var doc expenseDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Expense{}, fmt.Errorf("decode expense %s: %w", expenseID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *ExpenseRepository) List(ctx context.Context, filter repositories.ExpenseListFilter) (domain.CursorPage[domain.Expense], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Expense]{}, errors.New("expense repository not initialised")
	}

	pageSize := normalisePageSize(filter.Pagination.PageSize)
	var cursor *listCursor
	if filter.Pagination.PageToken != "" {
		decoded, err := decodeListCursor(filter.Pagination.PageToken)
		if err != nil {
			return domain.CursorPage[domain.Expense]{}, fmt.Errorf("expenses.list: %w", err)
		}
		cursor = &decoded
	}

	docs, err := r.expenses.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Category != "" {
			q = q.Where("category", "==", filter.Category)
		}
		if filter.DateRange.From != nil {
			q = q.Where("incurredAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("incurredAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("incurredAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor != nil {
			q = q.StartAfter(cursor.At, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Expense]{}, err
	}

	page := domain.CursorPage[domain.Expense]{}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := encodeListCursor(listCursor{At: last.Data.IncurredAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Expense]{}, fmt.Errorf("expenses.list: encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}
