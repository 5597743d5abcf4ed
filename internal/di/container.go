package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stocktide/api/internal/platform/config"
	"github.com/stocktide/api/internal/repositories"
	"github.com/stocktide/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	OrderRequests services.OrderRequestService
	Catalog       services.CatalogService
	Customers     services.CustomerService
	Expenses      services.ExpenseService
	Analytics     services.AnalyticsService
	System        services.SystemService
}

// Deps carries cross-cutting collaborators shared by every service: the
// mutation publisher, logging, ID generation, and input sanitisation.
type Deps struct {
	Events      services.MutationPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
	Sanitizer   func(string) string
	Build       services.BuildInfo
	Clock       func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides a
// Firestore-backed registry, while tests can supply in-memory fakes.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, deps Deps) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	pricing := services.NewPricingResolver()
	stock := services.NewStockValidator()
	payments := services.NewPaymentCalculator()

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          reg.Orders(),
		Products:        reg.Products(),
		Customers:       reg.Customers(),
		Counters:        reg.Counters(),
		StockActivities: reg.StockActivities(),
		Pricing:         pricing,
		Stock:           stock,
		Payments:        payments,
		UnitOfWork:      reg,
		Clock:           clock,
		IDGenerator:     deps.IDGenerator,
		Sanitizer:       deps.Sanitizer,
		Events:          deps.Events,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	requestSvc, err := services.NewOrderRequestService(services.OrderRequestServiceDeps{
		Requests:        reg.OrderRequests(),
		Orders:          reg.Orders(),
		Products:        reg.Products(),
		Customers:       reg.Customers(),
		Counters:        reg.Counters(),
		StockActivities: reg.StockActivities(),
		Pricing:         pricing,
		Stock:           stock,
		Payments:        payments,
		UnitOfWork:      reg,
		Clock:           clock,
		IDGenerator:     deps.IDGenerator,
		Sanitizer:       deps.Sanitizer,
		Events:          deps.Events,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order request service: %w", err)
	}
	svc.OrderRequests = requestSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:        reg.Products(),
		Categories:      reg.Categories(),
		StockActivities: reg.StockActivities(),
		UnitOfWork:      reg,
		Clock:           clock,
		IDGenerator:     deps.IDGenerator,
		Sanitizer:       deps.Sanitizer,
		Events:          deps.Events,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	customerSvc, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers:   reg.Customers(),
		Clock:       clock,
		IDGenerator: deps.IDGenerator,
		Events:      deps.Events,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build customer service: %w", err)
	}
	svc.Customers = customerSvc

	expenseSvc, err := services.NewExpenseService(services.ExpenseServiceDeps{
		Expenses:    reg.Expenses(),
		Clock:       clock,
		IDGenerator: deps.IDGenerator,
		Sanitizer:   deps.Sanitizer,
		Events:      deps.Events,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build expense service: %w", err)
	}
	svc.Expenses = expenseSvc

	analyticsSvc, err := services.NewAnalyticsService(services.AnalyticsServiceDeps{
		Orders:          reg.Orders(),
		Expenses:        reg.Expenses(),
		Products:        reg.Products(),
		Categories:      reg.Categories(),
		Customers:       reg.Customers(),
		StockActivities: reg.StockActivities(),
		Clock:           clock,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build analytics service: %w", err)
	}
	svc.Analytics = analyticsSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
