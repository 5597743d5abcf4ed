package services

import (
	"errors"
	"testing"

	domain "github.com/stocktide/api/internal/domain"
)

func TestStockValidatorAvailable(t *testing.T) {
	validator := NewStockValidator()

	if got := validator.Available(domain.Product{Stock: 2}, 5); got != 7 {
		t.Fatalf("expected availability 7 got %d", got)
	}
	if got := validator.Available(domain.Product{Stock: 2}, 0); got != 2 {
		t.Fatalf("expected availability 2 got %d", got)
	}
	if got := validator.Available(domain.Product{Stock: 0}, -3); got != 0 {
		t.Fatalf("expected negative reservation to floor at 0, got %d", got)
	}
}

func TestStockValidatorEditHeadroom(t *testing.T) {
	validator := NewStockValidator()
	products := map[string]domain.Product{
		"prd_1": {ID: "prd_1", Name: "Steel Hinge", Stock: 2},
	}
	reserved := map[string]int{"prd_1": 5}

	if err := validator.ValidateLines([]OrderLineInput{{ProductID: "prd_1", Quantity: 7}}, products, reserved); err != nil {
		t.Fatalf("expected 7 of 7 available to pass, got %v", err)
	}

	err := validator.ValidateLines([]OrderLineInput{{ProductID: "prd_1", Quantity: 8}}, products, reserved)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError got %v", err)
	}
	if stockErr.ProductID != "prd_1" || stockErr.Requested != 8 || stockErr.Available != 7 {
		t.Fatalf("unexpected error detail %+v", stockErr)
	}
	if stockErr.Name != "Steel Hinge" {
		t.Fatalf("expected product name on error, got %q", stockErr.Name)
	}
}

func TestStockValidatorOutOfStockProductCannotBeAdded(t *testing.T) {
	validator := NewStockValidator()
	products := map[string]domain.Product{
		"prd_1": {ID: "prd_1", Name: "Steel Hinge", Stock: 0},
	}

	// No prior reservation means a sold-out product admits nothing.
	err := validator.ValidateLines([]OrderLineInput{{ProductID: "prd_1", Quantity: 1}}, products, nil)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError got %v", err)
	}
	if stockErr.Available != 0 {
		t.Fatalf("expected available 0 got %d", stockErr.Available)
	}
}

func TestStockValidatorAccumulatesDuplicateLines(t *testing.T) {
	validator := NewStockValidator()
	products := map[string]domain.Product{
		"prd_1": {ID: "prd_1", Stock: 5},
	}

	err := validator.ValidateLines([]OrderLineInput{
		{ProductID: "prd_1", Quantity: 3},
		{ProductID: "prd_1", Quantity: 3},
	}, products, nil)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected accumulated quantity to exceed stock, got %v", err)
	}
	if stockErr.Requested != 6 || stockErr.Available != 5 {
		t.Fatalf("unexpected error detail %+v", stockErr)
	}
}

func TestStockValidatorRejectsBadLines(t *testing.T) {
	validator := NewStockValidator()
	products := map[string]domain.Product{
		"prd_1": {ID: "prd_1", Stock: 5},
	}

	if err := validator.ValidateLines(nil, products, nil); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for empty lines, got %v", err)
	}
	if err := validator.ValidateLines([]OrderLineInput{{ProductID: "prd_1", Quantity: -1}}, products, nil); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for negative quantity, got %v", err)
	}
	if err := validator.ValidateLines([]OrderLineInput{{ProductID: "prd_9", Quantity: 1}}, products, nil); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for unknown product, got %v", err)
	}
}
