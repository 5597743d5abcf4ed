package repositories

import (
	"context"
	"time"

	domain "github.com/stocktide/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Categories() CategoryRepository
	Products() ProductRepository
	Customers() CustomerRepository
	Orders() OrderRepository
	OrderRequests() OrderRequestRepository
	Expenses() ExpenseRepository
	StockActivities() StockActivityRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CategoryRepository persists product categories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Category], error)
}

// ProductRepository persists catalogue products, including their live stock count.
// AdjustStock is transaction-aware: inside a unit of work the read and write both
// go through the surrounding transaction so concurrent commits cannot oversell.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// CustomerRepository persists buyer records.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	Delete(ctx context.Context, customerID string) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[domain.Customer], error)
}

// OrderRepository persists order documents and provides query helpers for admin surfaces.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListRecent(ctx context.Context, limit int) ([]domain.Order, error)
}

// OrderRequestRepository persists customer order requests and their decisions.
type OrderRequestRepository interface {
	Insert(ctx context.Context, request domain.OrderRequest) error
	Update(ctx context.Context, request domain.OrderRequest) error
	FindByID(ctx context.Context, requestID string) (domain.OrderRequest, error)
	List(ctx context.Context, filter OrderRequestListFilter) (domain.CursorPage[domain.OrderRequest], error)
}

// ExpenseRepository persists operating expenses.
type ExpenseRepository interface {
	Insert(ctx context.Context, expense domain.Expense) error
	Update(ctx context.Context, expense domain.Expense) error
	Delete(ctx context.Context, expenseID string) error
	FindByID(ctx context.Context, expenseID string) (domain.Expense, error)
	List(ctx context.Context, filter ExpenseListFilter) (domain.CursorPage[domain.Expense], error)
}

// StockActivityRepository appends and queries the stock movement audit trail.
type StockActivityRepository interface {
	Append(ctx context.Context, activity domain.StockActivity) error
	ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockActivity], error)
	ListRecent(ctx context.Context, limit int) ([]domain.StockActivity, error)
	ListSince(ctx context.Context, since time.Time) ([]domain.StockActivity, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	CategoryID   string
	Search       string
	LowStockOnly bool
	Pagination   domain.Pagination
}

type CustomerListFilter struct {
	Segment    *domain.CustomerSegment
	Search     string
	Pagination domain.Pagination
}

type OrderListFilter struct {
	CustomerID    string
	Status        []domain.OrderStatus
	PaymentStatus []domain.PaymentStatus
	DateRange     domain.RangeQuery[time.Time]
	Pagination    domain.Pagination
}

type OrderRequestListFilter struct {
	CustomerID string
	Status     []domain.OrderRequestStatus
	Pagination domain.Pagination
}

type ExpenseListFilter struct {
	Category   string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
