package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	CustomerSegment    = domain.CustomerSegment
	PaymentStatus      = domain.PaymentStatus
	OrderStatus        = domain.OrderStatus
	OrderRequestStatus = domain.OrderRequestStatus
	StockAction        = domain.StockAction
	Category           = domain.Category
	Product            = domain.Product
	Customer           = domain.Customer
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderPayment       = domain.OrderPayment
	OrderStatusChange  = domain.OrderStatusChange
	OrderRequest       = domain.OrderRequest
	OrderRequestItem   = domain.OrderRequestItem
	Expense            = domain.Expense
	StockActivity      = domain.StockActivity
	AnalyticsSnapshot  = domain.AnalyticsSnapshot
	SystemHealthReport = domain.SystemHealthReport
	OrderListFilter    = repositories.OrderListFilter
	OrderRequestFilter = repositories.OrderRequestListFilter
	ProductListFilter  = repositories.ProductListFilter
	CustomerListFilter = repositories.CustomerListFilter
	ExpenseListFilter  = repositories.ExpenseListFilter
)

// PricingResolver maps a customer segment onto the unit price charged for a product.
type PricingResolver interface {
	UnitPriceFor(segment CustomerSegment, product Product) int64
	PriceLines(segment CustomerSegment, lines []OrderLineInput, products map[string]Product) ([]OrderItem, int64, error)
}

// StockValidator checks requested quantities against availability. Availability
// counts quantities already committed to the order being edited, so an edit can
// always keep what it holds.
type StockValidator interface {
	Available(product Product, originalReserved int) int
	ValidateLines(lines []OrderLineInput, products map[string]Product, reserved map[string]int) error
}

// PaymentCalculator derives settlement state from the paid amount and the net payable.
type PaymentCalculator interface {
	StatusFor(amountPaid, netPayable int64) PaymentStatus
	Balance(netPayable, amountPaid int64) int64
	ClampAmountPaid(amountPaid, netPayable int64) int64
	Build(amountPaid, netPayable int64) OrderPayment
}

// OrderService owns the order commit path: pricing, stock validation, and the
// all-or-nothing write of order plus stock deltas.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Update(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) error
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListRecent(ctx context.Context, limit int) ([]Order, error)
}

// OrderRequestService manages the customer request queue and its terminal decisions.
type OrderRequestService interface {
	Create(ctx context.Context, cmd CreateOrderRequestCommand) (OrderRequest, error)
	Approve(ctx context.Context, cmd DecideOrderRequestCommand) (OrderRequest, error)
	Reject(ctx context.Context, cmd DecideOrderRequestCommand) (OrderRequest, error)
	Get(ctx context.Context, requestID string) (OrderRequest, error)
	List(ctx context.Context, filter OrderRequestFilter) (domain.CursorPage[OrderRequest], error)
}

// CatalogService manages products, categories, and manual stock adjustments.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)

	CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
	ListCategories(ctx context.Context, pager Pagination) (domain.CursorPage[Category], error)

	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Product, error)
	StockHistory(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[StockActivity], error)
}

// CustomerService manages buyer records.
type CustomerService interface {
	Create(ctx context.Context, cmd UpsertCustomerCommand) (Customer, error)
	Update(ctx context.Context, cmd UpsertCustomerCommand) (Customer, error)
	Delete(ctx context.Context, customerID string) error
	Get(ctx context.Context, customerID string) (Customer, error)
	List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[Customer], error)
}

// ExpenseService manages operating expense records.
type ExpenseService interface {
	Create(ctx context.Context, cmd UpsertExpenseCommand) (Expense, error)
	Update(ctx context.Context, cmd UpsertExpenseCommand) (Expense, error)
	Delete(ctx context.Context, expenseID string) error
	List(ctx context.Context, filter ExpenseListFilter) (domain.CursorPage[Expense], error)
}

// AnalyticsService recomputes the derived aggregates and serves the latest snapshot.
type AnalyticsService interface {
	Snapshot(ctx context.Context) (AnalyticsSnapshot, error)
	Refresh(ctx context.Context) (AnalyticsSnapshot, error)
}

// SystemService surfaces operational health for probes and dashboards.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// MutationEvent describes one committed write, consumed by the analytics
// pipeline and mirrored to Pub/Sub for external consumers.
type MutationEvent struct {
	Entity     string
	Op         string
	EntityID   string
	ActorID    string
	OccurredAt time.Time
}

// MutationPublisher accepts committed mutation notifications. Publishing is
// fire-and-forget from the caller's perspective; failures are logged, never
// returned to the mutating request.
type MutationPublisher interface {
	PublishMutation(ctx context.Context, event MutationEvent) error
}

// InsufficientStockError reports the first order line whose requested quantity
// exceeded availability. The whole submission is rejected when one is returned.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Command DTOs -------------------------------------------------------------

// OrderLineInput is an unpriced line as submitted by a client.
type OrderLineInput struct {
	ProductID string
	Quantity  int
}

type CreateOrderCommand struct {
	CustomerID          string
	Items               []OrderLineInput
	Discount            int64
	AmountPaid          int64
	SpecialInstructions string
	Status              *OrderStatus
	RequestRef          *string
	ActorID             string
	DraftKey            string
}

type UpdateOrderCommand struct {
	OrderID             string
	CustomerID          string
	Items               []OrderLineInput
	Discount            int64
	AmountPaid          int64
	SpecialInstructions string
	Status              *OrderStatus
	ActorID             string
	DraftKey            string
}

type DeleteOrderCommand struct {
	OrderID string
	ActorID string
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
}

type CreateOrderRequestCommand struct {
	CustomerID string
	Items      []OrderLineInput
	ActorID    string
}

type DecideOrderRequestCommand struct {
	RequestID    string
	DecisionNote string
	ActorID      string
}

type UpsertProductCommand struct {
	ProductID         string
	Name              string
	SKU               string
	CategoryID        string
	Stock             *int
	PriceRetail       int64
	PriceWholesale    int64
	LowStockThreshold *int
	ActorID           string
}

type UpsertCategoryCommand struct {
	CategoryID  string
	Name        string
	Description string
	ActorID     string
}

type AdjustStockCommand struct {
	ProductID string
	Action    StockAction
	Quantity  int
	Remarks   string
	ActorID   string
}

type UpsertCustomerCommand struct {
	CustomerID string
	Name       string
	Email      string
	Phone      string
	City       string
	Segment    CustomerSegment
	ActorID    string
}

type UpsertExpenseCommand struct {
	ExpenseID  string
	Category   string
	Amount     int64
	Note       string
	IncurredAt *time.Time
	ActorID    string
}
