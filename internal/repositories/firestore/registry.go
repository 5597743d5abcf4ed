package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/stocktide/api/internal/platform/firestore"
	"github.com/stocktide/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind a single handle and
// implements the unit of work by running every enrolled call inside one
// Firestore transaction.
type Registry struct {
	provider *pfirestore.Provider

	categories      *CategoryRepository
	products        *ProductRepository
	customers       *CustomerRepository
	orders          *OrderRepository
	orderRequests   *OrderRequestRepository
	expenses        *ExpenseRepository
	stockActivities *StockActivityRepository
	counters        *CounterRepository
	health          repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the full repository set on a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	categories, err := NewCategoryRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	orderRequests, err := NewOrderRequestRepository(provider)
	if err != nil {
		return nil, err
	}
	expenses, err := NewExpenseRepository(provider)
	if err != nil {
		return nil, err
	}
	stockActivities, err := NewStockActivityRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "firestore", Check: firestorePing(provider)},
	})
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:        provider,
		categories:      categories,
		products:        products,
		customers:       customers,
		orders:          orders,
		orderRequests:   orderRequests,
		expenses:        expenses,
		stockActivities: stockActivities,
		counters:        counters,
		health:          health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a single Firestore transaction. Repository calls
// made with the supplied context join that transaction, so reads are
// consistent and writes commit or roll back together. Nested calls reuse the
// ambient transaction instead of opening a second one.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	if _, ok := transactionFrom(ctx); ok {
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(withTransaction(ctx, tx))
	})
}

func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Customers() repositories.CustomerRepository { return r.customers }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) OrderRequests() repositories.OrderRequestRepository { return r.orderRequests }

func (r *Registry) Expenses() repositories.ExpenseRepository { return r.expenses }

func (r *Registry) StockActivities() repositories.StockActivityRepository { return r.stockActivities }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// firestorePing probes connectivity with a single document read. A missing
// document still proves the backend answered.
func firestorePing(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		_, err = client.Collection("system").Doc("health").Get(ctx)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return err
	}
}
