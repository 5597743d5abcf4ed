package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CustomerSegment classifies a customer for pricing purposes.
type CustomerSegment string

const (
	// SegmentRetailer buys at the retail unit price.
	SegmentRetailer CustomerSegment = "Retailer"
	// SegmentWholesaler buys at the wholesale unit price.
	SegmentWholesaler CustomerSegment = "Wholesaler"
)

// Valid reports whether the segment is one of the recognised values.
func (s CustomerSegment) Valid() bool {
	return s == SegmentRetailer || s == SegmentWholesaler
}

// PaymentStatus is derived from the paid amount and the net payable; it is
// never stored independently of those two figures.
type PaymentStatus string

const (
	// PaymentStatusUnpaid indicates no money has been received.
	PaymentStatusUnpaid PaymentStatus = "Unpaid"
	// PaymentStatusPartiallyPaid indicates a payment short of the net payable.
	PaymentStatusPartiallyPaid PaymentStatus = "Partially Paid"
	// PaymentStatusPaid indicates the order is settled in full.
	PaymentStatusPaid PaymentStatus = "Paid"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been recorded but not picked up.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusCompleted indicates the order has been fulfilled.
	OrderStatusCompleted OrderStatus = "Completed"
	// OrderStatusCancelled indicates the order was abandoned before fulfilment.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// Valid reports whether the status is one of the recognised values.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderRequestStatus enumerates lifecycle states for customer order requests.
// Approved and Rejected are terminal.
type OrderRequestStatus string

const (
	// OrderRequestStatusPending indicates the request awaits an admin decision.
	OrderRequestStatusPending OrderRequestStatus = "Pending"
	// OrderRequestStatusApproved indicates the request was converted into an order.
	OrderRequestStatusApproved OrderRequestStatus = "Approved"
	// OrderRequestStatusRejected indicates the request was declined.
	OrderRequestStatusRejected OrderRequestStatus = "Rejected"
)

// StockAction identifies the direction of a manual stock adjustment.
type StockAction string

const (
	// StockActionAdd increases on-hand stock.
	StockActionAdd StockAction = "add"
	// StockActionReduce decreases on-hand stock.
	StockActionReduce StockAction = "reduce"
)

// Category groups products for catalogue browsing and sales analytics.
type Category struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is a catalogue entry with dual price points and a live stock count.
// Monetary fields are minor currency units.
type Product struct {
	ID                string
	Name              string
	SKU               string
	CategoryRef       string
	Stock             int
	PriceRetail       int64
	PriceWholesale    int64
	LowStockThreshold int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LowOnStock reports whether the product sits at or below its alert threshold.
func (p Product) LowOnStock() bool {
	return p.Stock <= p.LowStockThreshold
}

// Customer captures the buyer record orders and requests reference.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	City      string
	Segment   CustomerSegment
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is a priced order line. UnitPrice is resolved from the customer
// segment at commit time and Total is always Quantity * UnitPrice.
type OrderItem struct {
	ProductRef string
	Name       string
	SKU        string
	Quantity   int
	UnitPrice  int64
	Total      int64
}

// OrderPayment rolls up the monetary settlement state of an order.
type OrderPayment struct {
	AmountPaid       int64
	BalanceRemaining int64
	Status           PaymentStatus
}

// OrderStatusChange is an append-only history entry for order transitions.
type OrderStatusChange struct {
	Status OrderStatus
	Actor  string
	At     time.Time
}

// Order is the committed record of a sale, including the price and segment
// snapshot taken when it was written.
type Order struct {
	ID                  string
	OrderNumber         string
	CustomerRef         string
	CustomerName        string
	CustomerSegment     CustomerSegment
	Items               []OrderItem
	Subtotal            int64
	Discount            int64
	NetPayable          int64
	Payment             OrderPayment
	Status              OrderStatus
	StatusHistory       []OrderStatusChange
	SpecialInstructions string
	RequestRef          *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// QuantityByProduct returns the committed quantity per product reference.
func (o Order) QuantityByProduct() map[string]int {
	out := make(map[string]int, len(o.Items))
	for _, item := range o.Items {
		out[item.ProductRef] += item.Quantity
	}
	return out
}

// OrderRequestItem is an unpriced request line; pricing happens at approval.
type OrderRequestItem struct {
	ProductRef string
	Name       string
	Quantity   int
}

// OrderRequest is a customer-submitted order awaiting an admin decision.
type OrderRequest struct {
	ID           string
	CustomerRef  string
	CustomerName string
	Items        []OrderRequestItem
	Status       OrderRequestStatus
	DecisionNote string
	DecidedBy    string
	DecidedAt    *time.Time
	OrderRef     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Resolved reports whether the request has reached a terminal state.
func (r OrderRequest) Resolved() bool {
	return r.Status == OrderRequestStatusApproved || r.Status == OrderRequestStatusRejected
}

// Expense records money spent outside of inventory purchases.
type Expense struct {
	ID         string
	Category   string
	Amount     int64
	Note       string
	IncurredAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StockActivity is the audit trail row written for every stock movement,
// whether a manual adjustment or an order commit.
type StockActivity struct {
	ID            string
	ProductRef    string
	ProductName   string
	Action        StockAction
	Quantity      int
	PreviousStock int
	NewStock      int
	Remarks       string
	Actor         string
	OccurredAt    time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
