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
	mutationEntityCustomer = "customer"

	customerIDPrefix = "cus_"
)

var (
	// ErrCustomerInvalidInput signals the caller provided invalid data.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates the customer could not be located.
	ErrCustomerNotFound = errors.New("customer: not found")
	// ErrCustomerConflict indicates concurrent modification or duplicates.
	ErrCustomerConflict = errors.New("customer: conflict")
)

// CustomerServiceDeps bundles collaborators required to construct the customer service.
type CustomerServiceDeps struct {
	Customers   repositories.CustomerRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      MutationPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type customerService struct {
	customers repositories.CustomerRepository
	clock     func() time.Time
	newID     func() string
	events    MutationPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewCustomerService wires dependencies into a concrete CustomerService implementation.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
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

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &customerService{
		customers: deps.Customers,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *customerService) Create(ctx context.Context, cmd UpsertCustomerCommand) (Customer, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Customer{}, fmt.Errorf("%w: customer name is required", ErrCustomerInvalidInput)
	}
	if !cmd.Segment.Valid() {
		return Customer{}, fmt.Errorf("%w: unknown customer segment %q", ErrCustomerInvalidInput, cmd.Segment)
	}

	now := s.clock()
	customer := Customer{
		ID:        customerIDPrefix + s.newID(),
		Name:      name,
		Email:     strings.TrimSpace(cmd.Email),
		Phone:     strings.TrimSpace(cmd.Phone),
		City:      strings.TrimSpace(cmd.City),
		Segment:   cmd.Segment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.customers.Insert(ctx, domain.Customer(customer)); err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityCustomer,
		Op:         mutationOpCreate,
		EntityID:   customer.ID,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		OccurredAt: now,
	})

	return customer, nil
}

func (s *customerService) Update(ctx context.Context, cmd UpsertCustomerCommand) (Customer, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	if name := strings.TrimSpace(cmd.Name); name != "" {
		customer.Name = name
	}
	if email := strings.TrimSpace(cmd.Email); email != "" {
		customer.Email = email
	}
	if phone := strings.TrimSpace(cmd.Phone); phone != "" {
		customer.Phone = phone
	}
	if city := strings.TrimSpace(cmd.City); city != "" {
		customer.City = city
	}
	if cmd.Segment != "" {
		if !cmd.Segment.Valid() {
			return Customer{}, fmt.Errorf("%w: unknown customer segment %q", ErrCustomerInvalidInput, cmd.Segment)
		}
		// Existing orders keep the segment and prices they were committed
		// with; the new segment only affects future pricing.
		customer.Segment = cmd.Segment
	}
	customer.UpdatedAt = now

	if err := s.customers.Update(ctx, customer); err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityCustomer,
		Op:         mutationOpUpdate,
		EntityID:   customer.ID,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		OccurredAt: now,
	})

	return customer, nil
}

func (s *customerService) Delete(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}

	if err := s.customers.Delete(ctx, customerID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityCustomer,
		Op:         mutationOpDelete,
		EntityID:   customerID,
		OccurredAt: s.clock(),
	})

	return nil
}

func (s *customerService) Get(ctx context.Context, customerID string) (Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}
	return customer, nil
}

func (s *customerService) List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[Customer], error) {
	page, err := s.customers.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Customer]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *customerService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCustomerConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("customer: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *customerService) publishMutation(ctx context.Context, event MutationEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMutation(ctx, event); err != nil {
		s.logger(ctx, "customer.event.publish.failed", map[string]any{
			"entity": event.Entity,
			"op":     event.Op,
			"id":     event.EntityID,
			"error":  err.Error(),
		})
	}
}
