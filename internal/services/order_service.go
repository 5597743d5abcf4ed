package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	domain "github.com/stocktide/api/internal/domain"
	"github.com/stocktide/api/internal/repositories"
)

const (
	mutationEntityOrder = "order"

	mutationOpCreate = "create"
	mutationOpUpdate = "update"
	mutationOpDelete = "delete"
	mutationOpStatus = "status.changed"

	orderIDPrefix       = "ord_"
	orderNumberCounter  = "orders"
	recentOrdersDefault = 10
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates concurrent modification or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderCustomerLocked indicates an edit attempted to move the order to a different customer.
	ErrOrderCustomerLocked = errors.New("order: customer cannot change after creation")
	// ErrOrderRepositoryUnavailable indicates the persistence layer could not be reached.
	ErrOrderRepositoryUnavailable = errors.New("order: repository unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
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

type orderService struct {
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
	flights    singleflight.Group
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing resolver is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock validator is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment calculator is required")
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

	return &orderService{
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

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if key := strings.TrimSpace(cmd.DraftKey); key != "" {
		result, err, _ := s.flights.Do("create:"+key, func() (any, error) {
			return s.create(ctx, cmd)
		})
		if err != nil {
			return Order{}, err
		}
		return result.(Order), nil
	}
	return s.create(ctx, cmd)
}

func (s *orderService) create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if cmd.Discount < 0 {
		return Order{}, fmt.Errorf("%w: discount cannot be negative", ErrOrderInvalidInput)
	}

	status := domain.OrderStatusPending
	if cmd.Status != nil {
		if !cmd.Status.Valid() {
			return Order{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, *cmd.Status)
		}
		status = *cmd.Status
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	var order Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		customer, err := s.customers.FindByID(txCtx, customerID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		products, err := s.loadProducts(txCtx, cmd.Items)
		if err != nil {
			return err
		}

		if err := s.stock.ValidateLines(cmd.Items, products, nil); err != nil {
			return err
		}

		items, subtotal, err := s.pricing.PriceLines(customer.Segment, cmd.Items, products)
		if err != nil {
			return err
		}
		netPayable := netPayableAfterDiscount(subtotal, cmd.Discount)

		number, err := s.generateOrderNumber(txCtx, now)
		if err != nil {
			return err
		}

		order = Order{
			ID:                  orderIDPrefix + s.newID(),
			OrderNumber:         number,
			CustomerRef:         customer.ID,
			CustomerName:        customer.Name,
			CustomerSegment:     customer.Segment,
			Items:               items,
			Subtotal:            subtotal,
			Discount:            cmd.Discount,
			NetPayable:          netPayable,
			Payment:             s.payments.Build(cmd.AmountPaid, netPayable),
			Status:              status,
			StatusHistory:       []OrderStatusChange{{Status: status, Actor: actor, At: now}},
			SpecialInstructions: s.sanitize(cmd.SpecialInstructions),
			RequestRef:          cloneStringPtr(cmd.RequestRef),
			CreatedAt:           now,
			UpdatedAt:           now,
		}

		if err := s.orders.Insert(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}

		return s.applyStockDeltas(txCtx, order.QuantityByProduct(), products, stockDeltaContext{
			remarks: "order " + order.OrderNumber + " committed",
			actor:   actor,
			now:     now,
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityOrder,
		Op:         mutationOpCreate,
		EntityID:   order.ID,
		ActorID:    actor,
		OccurredAt: now,
	})

	return order, nil
}

func (s *orderService) Update(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	if key := strings.TrimSpace(cmd.DraftKey); key != "" {
		result, err, _ := s.flights.Do("update:"+key, func() (any, error) {
			return s.update(ctx, cmd)
		})
		if err != nil {
			return Order{}, err
		}
		return result.(Order), nil
	}
	return s.update(ctx, cmd)
}

func (s *orderService) update(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if cmd.Discount < 0 {
		return Order{}, fmt.Errorf("%w: discount cannot be negative", ErrOrderInvalidInput)
	}
	if cmd.Status != nil && !cmd.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, *cmd.Status)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	var order Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		if requested := strings.TrimSpace(cmd.CustomerID); requested != "" && requested != existing.CustomerRef {
			return fmt.Errorf("%w: order %s belongs to customer %s", ErrOrderCustomerLocked, orderID, existing.CustomerRef)
		}

		reserved := existing.QuantityByProduct()

		products, err := s.loadProducts(txCtx, cmd.Items)
		if err != nil {
			return err
		}

		if err := s.stock.ValidateLines(cmd.Items, products, reserved); err != nil {
			return err
		}

		items, subtotal, err := s.pricing.PriceLines(existing.CustomerSegment, cmd.Items, products)
		if err != nil {
			return err
		}
		netPayable := netPayableAfterDiscount(subtotal, cmd.Discount)

		order = existing
		order.Items = items
		order.Subtotal = subtotal
		order.Discount = cmd.Discount
		order.NetPayable = netPayable
		order.Payment = s.payments.Build(cmd.AmountPaid, netPayable)
		order.SpecialInstructions = s.sanitize(cmd.SpecialInstructions)
		order.UpdatedAt = now

		if cmd.Status != nil && *cmd.Status != existing.Status {
			order.Status = *cmd.Status
			order.StatusHistory = append(cloneStatusHistory(existing.StatusHistory), OrderStatusChange{
				Status: *cmd.Status,
				Actor:  actor,
				At:     now,
			})
		}

		if err := s.orders.Update(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}

		// Deltas restore stock for shrunk or removed lines and claim it for grown ones.
		deltas := diffQuantities(reserved, order.QuantityByProduct())
		restockProducts, err := s.ensureProducts(txCtx, products, deltas)
		if err != nil {
			return err
		}
		return s.applyStockDeltas(txCtx, deltas, restockProducts, stockDeltaContext{
			remarks: "order " + order.OrderNumber + " revised",
			actor:   actor,
			now:     now,
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityOrder,
		Op:         mutationOpUpdate,
		EntityID:   order.ID,
		ActorID:    actor,
		OccurredAt: now,
	})

	return order, nil
}

func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		if err := s.orders.Delete(txCtx, orderID); err != nil {
			return s.mapRepositoryError(err)
		}

		// Deleting an order returns every committed unit to stock.
		restock := make(map[string]int, len(order.Items))
		for productID, qty := range order.QuantityByProduct() {
			restock[productID] = -qty
		}
		products, err := s.ensureProducts(txCtx, nil, restock)
		if err != nil {
			return err
		}
		return s.applyStockDeltas(txCtx, restock, products, stockDeltaContext{
			remarks: "order " + order.OrderNumber + " deleted",
			actor:   actor,
			now:     now,
		})
	})
	if err != nil {
		return err
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityOrder,
		Op:         mutationOpDelete,
		EntityID:   orderID,
		ActorID:    actor,
		OccurredAt: now,
	})

	return nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.TargetStatus.Valid() {
		return Order{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.Status == cmd.TargetStatus {
		return order, nil
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	order.Status = cmd.TargetStatus
	order.StatusHistory = append(cloneStatusHistory(order.StatusHistory), OrderStatusChange{
		Status: cmd.TargetStatus,
		Actor:  actor,
		At:     now,
	})
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityOrder,
		Op:         mutationOpStatus,
		EntityID:   order.ID,
		ActorID:    actor,
		OccurredAt: now,
	})

	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListRecent(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = recentOrdersDefault
	}
	orders, err := s.orders.ListRecent(ctx, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// stockDeltaContext carries audit metadata shared by a batch of stock writes.
type stockDeltaContext struct {
	remarks string
	actor   string
	now     time.Time
}

// applyStockDeltas decrements stock for positive deltas and restores it for
// negative ones, appending one audit row per touched product. Callers run it
// inside the order transaction so a failed line aborts the whole commit.
func (s *orderService) applyStockDeltas(ctx context.Context, deltas map[string]int, products map[string]Product, meta stockDeltaContext) error {
	for productID, delta := range deltas {
		if delta == 0 {
			continue
		}
		updated, err := s.products.AdjustStock(ctx, productID, -delta)
		if err != nil {
			return s.mapStockError(err, products, delta)
		}

		if s.activities == nil {
			continue
		}
		action := domain.StockActionReduce
		quantity := delta
		if delta < 0 {
			action = domain.StockActionAdd
			quantity = -delta
		}
		activity := domain.StockActivity{
			ID:            stockActivityIDPrefix + s.newID(),
			ProductRef:    productID,
			ProductName:   updated.Name,
			Action:        action,
			Quantity:      quantity,
			PreviousStock: updated.Stock + delta,
			NewStock:      updated.Stock,
			Remarks:       meta.remarks,
			Actor:         meta.actor,
			OccurredAt:    meta.now,
		}
		if err := s.activities.Append(ctx, activity); err != nil {
			return s.mapRepositoryError(err)
		}
	}
	return nil
}

func (s *orderService) loadProducts(ctx context.Context, lines []OrderLineInput) (map[string]Product, error) {
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
		return nil, fmt.Errorf("%w: order must reference at least one product", ErrOrderInvalidInput)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return products, nil
}

// ensureProducts backfills catalogue entries for delta keys missing from the
// already-loaded set, such as lines removed in an edit or a deleted order.
func (s *orderService) ensureProducts(ctx context.Context, loaded map[string]Product, deltas map[string]int) (map[string]Product, error) {
	missing := make([]string, 0, len(deltas))
	for productID := range deltas {
		if _, ok := loaded[productID]; !ok {
			missing = append(missing, productID)
		}
	}
	if len(missing) == 0 {
		return loaded, nil
	}
	fetched, err := s.products.FindByIDs(ctx, missing)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	merged := make(map[string]Product, len(loaded)+len(fetched))
	for id, product := range loaded {
		merged[id] = product
	}
	for id, product := range fetched {
		merged[id] = product
	}
	return merged, nil
}

func (s *orderService) mapStockError(err error, products map[string]Product, requested int) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficientStock:
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
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: unknown product %s", ErrOrderInvalidInput, stockErr.ProductID)
		}
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderRepositoryUnavailable, err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SO-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishMutation(ctx context.Context, event MutationEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMutation(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"entity": event.Entity,
			"op":     event.Op,
			"id":     event.EntityID,
			"error":  err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// diffQuantities computes per-product stock claims: positive values take stock,
// negative values give it back.
// netPayableAfterDiscount floors at zero; a discount larger than the
// subtotal settles the order rather than producing a negative balance.
func netPayableAfterDiscount(subtotal, discount int64) int64 {
	net := subtotal - discount
	if net < 0 {
		return 0
	}
	return net
}

func diffQuantities(previous, next map[string]int) map[string]int {
	deltas := make(map[string]int, len(previous)+len(next))
	for productID, qty := range next {
		deltas[productID] = qty - previous[productID]
	}
	for productID, qty := range previous {
		if _, ok := next[productID]; !ok {
			deltas[productID] = -qty
		}
	}
	return deltas
}

func cloneStatusHistory(history []OrderStatusChange) []OrderStatusChange {
	cloned := make([]OrderStatusChange, len(history))
	copy(cloned, history)
	return cloned
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	ref := *value
	return &ref
}
