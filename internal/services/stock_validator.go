package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStockInvalidInput signals lines that cannot be evaluated against stock.
var ErrStockInvalidInput = errors.New("stock: invalid input")

type stockValidator struct{}

// NewStockValidator constructs the availability validator used by the order
// commit and request approval paths.
func NewStockValidator() StockValidator {
	return stockValidator{}
}

// Available returns the quantity an order may claim for the product: the live
// stock count plus whatever the order being edited already holds. A fresh
// order passes zero reserved and sees the raw stock count.
func (stockValidator) Available(product Product, originalReserved int) int {
	if originalReserved < 0 {
		originalReserved = 0
	}
	available := product.Stock + originalReserved
	if available < 0 {
		return 0
	}
	return available
}

// ValidateLines evaluates the whole submission and rejects it on the first
// line exceeding availability. Quantities for the same product accumulate
// before the check so duplicated lines cannot sidestep the limit.
func (v stockValidator) ValidateLines(lines []OrderLineInput, products map[string]Product, reserved map[string]int) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrStockInvalidInput)
	}

	requested := make(map[string]int, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return fmt.Errorf("%w: line product id is required", ErrStockInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line quantity must be positive for product %s", ErrStockInvalidInput, productID)
		}
		if _, seen := requested[productID]; !seen {
			order = append(order, productID)
		}
		requested[productID] += line.Quantity
	}

	for _, productID := range order {
		product, ok := products[productID]
		if !ok {
			return fmt.Errorf("%w: unknown product %s", ErrStockInvalidInput, productID)
		}
		available := v.Available(product, reserved[productID])
		if requested[productID] > available {
			return &InsufficientStockError{
				ProductID: productID,
				Name:      product.Name,
				Requested: requested[productID],
				Available: available,
			}
		}
	}

	return nil
}
