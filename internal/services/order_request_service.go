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
	mutationEntityOrderRequest = "orderRequest"

	mutationOpApprove = "approve"
	mutationOpReject  = "reject"

	orderRequestIDPrefix = "orq_"
)

var (
	// ErrOrderRequestInvalidInput signals the caller provided invalid data.
	ErrOrderRequestInvalidInput = errors.New("order request: invalid input")
	// ErrOrderRequestNotFound indicates the request could not be located.
	ErrOrderRequestNotFound = errors.New("order request: not found")
	// ErrOrderRequestAlreadyResolved indicates the request already reached a terminal decision.
	ErrOrderRequestAlreadyResolved = errors.New("order request: already resolved")
	// ErrOrderRequestConflict indicates concurrent modification.
	ErrOrderRequestConflict = errors.New("order request: conflict")
)

// OrderRequestServiceDeps bundles collaborators for the request workflow.
type OrderRequestServiceDeps struct {
	Requests        repositories.OrderRequestRepository
	Orders          repositories.OrderRepository
	Products        repositories.ProductRepository
	Customers       repositories.CustomerRepository
	Counters        repositories.CounterRepository
	StockActivities repositories.StockActivityRepository
	Pricing         PricingResolver
	Stock           StockValidator
	Payments        PaymentCalculator
	UnitOfWork      repositories.UnitOfWork
	Clock           func() time.Time
	IDGenerator     func() string
	Sanitizer       func(string) string
	Events          MutationPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderRequestService struct {
	requests   repositories.OrderRequestRepository
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	customers  repositories.CustomerRepository
	counters   repositories.CounterRepository
	activities repositories.StockActivityRepository
	pricing    PricingResolver
	stock      StockValidator
	payments   PaymentCalculator
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	sanitize   func(string) string
	events     MutationPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderRequestService wires dependencies into a concrete OrderRequestService.
func NewOrderRequestService(deps OrderRequestServiceDeps) (OrderRequestService, error) {
	if deps.Requests == nil {
		return nil, errors.New("order request service: request repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order request service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order request service: product repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order request service: customer repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order request service: counter repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order request service: pricing resolver is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order request service: stock validator is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order request service: payment calculator is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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

	return &orderRequestService{
		requests:   deps.Requests,
		orders:     deps.Orders,
		products:   deps.Products,
		customers:  deps.Customers,
		counters:   deps.Counters,
		activities: deps.StockActivities,
		pricing:    deps.Pricing,
		stock:      deps.Stock,
		payments:   deps.Payments,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		events:   deps.Events,
		logger:   logger,
	}, nil
}

func (s *orderRequestService) Create(ctx context.Context, cmd CreateOrderRequestCommand) (OrderRequest, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return OrderRequest{}, fmt.Errorf("%w: customer id is required", ErrOrderRequestInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return OrderRequest{}, fmt.Errorf("%w: request must contain at least one item", ErrOrderRequestInvalidInput)
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return OrderRequest{}, s.mapRepositoryError(err)
	}

	products, err := s.loadProducts(ctx, cmd.Items)
	if err != nil {
		return OrderRequest{}, err
	}

	items := make([]OrderRequestItem, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		productID := strings.TrimSpace(line.ProductID)
		if line.Quantity <= 0 {
			return OrderRequest{}, fmt.Errorf("%w: line quantity must be positive for product %s", ErrOrderRequestInvalidInput, productID)
		}
		product, ok := products[productID]
		if !ok {
			return OrderRequest{}, fmt.Errorf("%w: unknown product %s", ErrOrderRequestInvalidInput, productID)
		}
		items = append(items, OrderRequestItem{
			ProductRef: productID,
			Name:       product.Name,
			Quantity:   line.Quantity,
		})
	}

	now := s.now()
	request := OrderRequest{
		ID:           orderRequestIDPrefix + s.newID(),
		CustomerRef:  customer.ID,
		CustomerName: customer.Name,
		Items:        items,
		Status:       domain.OrderRequestStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.requests.Insert(ctx, domain.OrderRequest(request)); err != nil {
		return OrderRequest{}, s.mapRepositoryError(err)
	}

	return request, nil
}

// Approve converts a pending request into an order. Stock is re-validated and
// prices are resolved at approval time, not at submission time. A request that
// fails validation stays Pending and can be retried once stock returns.
func (s *orderRequestService) Approve(ctx context.Context, cmd DecideOrderRequestCommand) (OrderRequest, error) {
	requestID := strings.TrimSpace(cmd.RequestID)
	if requestID == "" {
		return OrderRequest{}, fmt.Errorf("%w: request id is required", ErrOrderRequestInvalidInput)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	var request OrderRequest
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.requests.FindByID(txCtx, requestID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if existing.Resolved() {
			return fmt.Errorf("%w: request %s is %s", ErrOrderRequestAlreadyResolved, requestID, existing.Status)
		}

		customer, err := s.customers.FindByID(txCtx, existing.CustomerRef)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		lines := requestLines(existing.Items)
		products, err := s.loadProducts(txCtx, lines)
		if err != nil {
			return err
		}

		if err := s.stock.ValidateLines(lines, products, nil); err != nil {
			return err
		}

		items, subtotal, err := s.pricing.PriceLines(customer.Segment, lines, products)
		if err != nil {
			return err
		}

		// Allocate the sequence number only once the approval is certain to
		// create an order; rejected or failing approvals must not burn one.
		number, err := s.generateOrderNumber(txCtx, now)
		if err != nil {
			return err
		}

		order := Order{
			ID:              orderIDPrefix + s.newID(),
			OrderNumber:     number,
			CustomerRef:     customer.ID,
			CustomerName:    customer.Name,
			CustomerSegment: customer.Segment,
			Items:           items,
			Subtotal:        subtotal,
			NetPayable:      subtotal,
			Payment:         s.payments.Build(0, subtotal),
			Status:          domain.OrderStatusPending,
			StatusHistory:   []OrderStatusChange{{Status: domain.OrderStatusPending, Actor: actor, At: now}},
			RequestRef:      &existing.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := s.orders.Insert(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}

		if err := s.commitStock(txCtx, order, products, actor, now); err != nil {
			return err
		}

		request = existing
		request.Status = domain.OrderRequestStatusApproved
		request.DecisionNote = s.sanitize(cmd.DecisionNote)
		request.DecidedBy = actor
		request.DecidedAt = &now
		request.OrderRef = &order.ID
		request.UpdatedAt = now

		if err := s.requests.Update(txCtx, domain.OrderRequest(request)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return OrderRequest{}, err
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityOrderRequest,
		Op:         mutationOpApprove,
		EntityID:   request.ID,
		ActorID:    actor,
		OccurredAt: now,
	})
	if request.OrderRef != nil {
		s.publishMutation(ctx, MutationEvent{
			Entity:     mutationEntityOrder,
			Op:         mutationOpCreate,
			EntityID:   *request.OrderRef,
			ActorID:    actor,
			OccurredAt: now,
		})
	}

	return request, nil
}

// Reject marks the request rejected. It never touches stock and never creates
// an order; repeated decisions on a resolved request are refused.
func (s *orderRequestService) Reject(ctx context.Context, cmd DecideOrderRequestCommand) (OrderRequest, error) {
	requestID := strings.TrimSpace(cmd.RequestID)
	if requestID == "" {
		return OrderRequest{}, fmt.Errorf("%w: request id is required", ErrOrderRequestInvalidInput)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	var request OrderRequest
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.requests.FindByID(txCtx, requestID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if existing.Resolved() {
			return fmt.Errorf("%w: request %s is %s", ErrOrderRequestAlreadyResolved, requestID, existing.Status)
		}

		request = existing
		request.Status = domain.OrderRequestStatusRejected
		request.DecisionNote = s.sanitize(cmd.DecisionNote)
		request.DecidedBy = actor
		request.DecidedAt = &now
		request.UpdatedAt = now

		if err := s.requests.Update(txCtx, domain.OrderRequest(request)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return OrderRequest{}, err
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityOrderRequest,
		Op:         mutationOpReject,
		EntityID:   request.ID,
		ActorID:    actor,
		OccurredAt: now,
	})

	return request, nil
}

func (s *orderRequestService) Get(ctx context.Context, requestID string) (OrderRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return OrderRequest{}, fmt.Errorf("%w: request id is required", ErrOrderRequestInvalidInput)
	}
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return OrderRequest{}, s.mapRepositoryError(err)
	}
	return request, nil
}

func (s *orderRequestService) List(ctx context.Context, filter OrderRequestFilter) (domain.CursorPage[OrderRequest], error) {
	page, err := s.requests.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[OrderRequest]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderRequestService) commitStock(ctx context.Context, order Order, products map[string]Product, actor string, now time.Time) error {
	for productID, qty := range order.QuantityByProduct() {
		updated, err := s.products.AdjustStock(ctx, productID, -qty)
		if err != nil {
			return s.mapStockError(err, products, qty)
		}
		if s.activities == nil {
			continue
		}
		activity := domain.StockActivity{
			ID:            stockActivityIDPrefix + s.newID(),
			ProductRef:    productID,
			ProductName:   updated.Name,
			Action:        domain.StockActionReduce,
			Quantity:      qty,
			PreviousStock: updated.Stock + qty,
			NewStock:      updated.Stock,
			Remarks:       "order " + order.OrderNumber + " committed",
			Actor:         actor,
			OccurredAt:    now,
		}
		if err := s.activities.Append(ctx, activity); err != nil {
			return s.mapRepositoryError(err)
		}
	}
	return nil
}

func (s *orderRequestService) loadProducts(ctx context.Context, lines []OrderLineInput) (map[string]Product, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: request must reference at least one product", ErrOrderRequestInvalidInput)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return products, nil
}

func (s *orderRequestService) mapStockError(err error, products map[string]Product, requested int) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorInsufficientStock {
		name := stockErr.ProductID
		if product, ok := products[stockErr.ProductID]; ok {
			name = product.Name
		}
		return &InsufficientStockError{
			ProductID: stockErr.ProductID,
			Name:      name,
			Requested: requested,
			Available: stockErr.Available,
		}
	}
	return s.mapRepositoryError(err)
}

func (s *orderRequestService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderRequestNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderRequestConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order request: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderRequestService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SO-%04d-%06d", now.Year(), seq), nil
}

func (s *orderRequestService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderRequestService) now() time.Time {
	return s.clock()
}

func (s *orderRequestService) publishMutation(ctx context.Context, event MutationEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMutation(ctx, event); err != nil {
		s.logger(ctx, "order_request.event.publish.failed", map[string]any{
			"entity": event.Entity,
			"op":     event.Op,
			"id":     event.EntityID,
			"error":  err.Error(),
		})
	}
}

func requestLines(items []OrderRequestItem) []OrderLineInput {
	lines := make([]OrderLineInput, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderLineInput{ProductID: item.ProductRef, Quantity: item.Quantity})
	}
	return lines
}
