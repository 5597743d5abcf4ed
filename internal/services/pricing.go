package services

import (
	"errors"
	"fmt"
	"math"
	"strings"

	domain "github.com/stocktide/api/internal/domain"
)

var (
	// ErrPricingInvalidInput signals the caller provided lines that cannot be priced.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingOverflow indicates a line or subtotal exceeded the representable range.
	ErrPricingOverflow = errors.New("pricing: amount overflow")
)

type pricingResolver struct{}

// NewPricingResolver constructs the segment-based price resolver.
func NewPricingResolver() PricingResolver {
	return pricingResolver{}
}

// UnitPriceFor selects the wholesale price for wholesalers and the retail
// price for everyone else.
func (pricingResolver) UnitPriceFor(segment CustomerSegment, product Product) int64 {
	if segment == domain.SegmentWholesaler {
		return product.PriceWholesale
	}
	return product.PriceRetail
}

// PriceLines resolves every line against the supplied catalogue snapshot and
// returns the priced items plus their subtotal. Prices are always taken from
// the snapshot; any unit price supplied by the client is ignored.
func (r pricingResolver) PriceLines(segment CustomerSegment, lines []OrderLineInput, products map[string]Product) ([]OrderItem, int64, error) {
	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("%w: at least one line is required", ErrPricingInvalidInput)
	}

	items := make([]OrderItem, 0, len(lines))
	var subtotal int64
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, 0, fmt.Errorf("%w: line product id is required", ErrPricingInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: line quantity must be positive for product %s", ErrPricingInvalidInput, productID)
		}
		product, ok := products[productID]
		if !ok {
			return nil, 0, fmt.Errorf("%w: unknown product %s", ErrPricingInvalidInput, productID)
		}

		unitPrice := r.UnitPriceFor(segment, product)
		if unitPrice < 0 {
			return nil, 0, fmt.Errorf("%w: product %s has a negative price", ErrPricingInvalidInput, productID)
		}
		if unitPrice > 0 && int64(line.Quantity) > math.MaxInt64/unitPrice {
			return nil, 0, fmt.Errorf("%w: line total for product %s", ErrPricingOverflow, productID)
		}
		total := unitPrice * int64(line.Quantity)
		if subtotal > math.MaxInt64-total {
			return nil, 0, fmt.Errorf("%w: subtotal", ErrPricingOverflow)
		}
		subtotal += total

		items = append(items, OrderItem{
			ProductRef: productID,
			Name:       product.Name,
			SKU:        product.SKU,
			Quantity:   line.Quantity,
			UnitPrice:  unitPrice,
			Total:      total,
		})
	}

	return items, subtotal, nil
}
