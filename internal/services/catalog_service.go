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
	mutationEntityProduct  = "product"
	mutationEntityCategory = "category"
	mutationEntityStock    = "stock"

	productIDPrefix       = "prd_"
	categoryIDPrefix      = "cat_"
	stockActivityIDPrefix = "sa_"

	defaultLowStockThreshold = 5
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product or category could not be located.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates concurrent modification or duplicates.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products        repositories.ProductRepository
	Categories      repositories.CategoryRepository
	StockActivities repositories.StockActivityRepository
	UnitOfWork      repositories.UnitOfWork
	Clock           func() time.Time
	IDGenerator     func() string
	Sanitizer       func(string) string
	Events          MutationPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	activities repositories.StockActivityRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	sanitize   func(string) string
	events     MutationPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
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

	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		activities: deps.StockActivities,
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

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.PriceRetail < 0 || cmd.PriceWholesale < 0 {
		return Product{}, fmt.Errorf("%w: prices cannot be negative", ErrCatalogInvalidInput)
	}

	stock := 0
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
		}
		stock = *cmd.Stock
	}

	threshold := defaultLowStockThreshold
	if cmd.LowStockThreshold != nil {
		if *cmd.LowStockThreshold < 0 {
			return Product{}, fmt.Errorf("%w: low stock threshold cannot be negative", ErrCatalogInvalidInput)
		}
		threshold = *cmd.LowStockThreshold
	}

	now := s.now()
	product := Product{
		ID:                productIDPrefix + s.newID(),
		Name:              name,
		SKU:               strings.TrimSpace(cmd.SKU),
		CategoryRef:       strings.TrimSpace(cmd.CategoryID),
		Stock:             stock,
		PriceRetail:       cmd.PriceRetail,
		PriceWholesale:    cmd.PriceWholesale,
		LowStockThreshold: threshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.products.Insert(ctx, domain.Product(product)); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityProduct,
		Op:         mutationOpCreate,
		EntityID:   product.ID,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		OccurredAt: now,
	})

	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if cmd.PriceRetail < 0 || cmd.PriceWholesale < 0 {
		return Product{}, fmt.Errorf("%w: prices cannot be negative", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	now := s.now()
	if name := strings.TrimSpace(cmd.Name); name != "" {
		product.Name = name
	}
	if sku := strings.TrimSpace(cmd.SKU); sku != "" {
		product.SKU = sku
	}
	if category := strings.TrimSpace(cmd.CategoryID); category != "" {
		product.CategoryRef = category
	}
	product.PriceRetail = cmd.PriceRetail
	product.PriceWholesale = cmd.PriceWholesale
	if cmd.LowStockThreshold != nil && *cmd.LowStockThreshold >= 0 {
		product.LowStockThreshold = *cmd.LowStockThreshold
	}
	// Stock is only mutated through AdjustStock and order commits so the
	// audit trail stays consistent with the live count.
	product.UpdatedAt = now

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityProduct,
		Op:         mutationOpUpdate,
		EntityID:   product.ID,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		OccurredAt: now,
	})

	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityProduct,
		Op:         mutationOpDelete,
		EntityID:   productID,
		OccurredAt: s.now(),
	})

	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}

	now := s.now()
	category := Category{
		ID:          categoryIDPrefix + s.newID(),
		Name:        name,
		Description: s.sanitize(cmd.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.categories.Insert(ctx, domain.Category(category)); err != nil {
		return Category{}, s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityCategory,
		Op:         mutationOpCreate,
		EntityID:   category.ID,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		OccurredAt: now,
	})

	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}

	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, s.mapRepositoryError(err)
	}

	now := s.now()
	if name := strings.TrimSpace(cmd.Name); name != "" {
		category.Name = name
	}
	if cmd.Description != "" {
		category.Description = s.sanitize(cmd.Description)
	}
	category.UpdatedAt = now

	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityCategory,
		Op:         mutationOpUpdate,
		EntityID:   category.ID,
		ActorID:    strings.TrimSpace(cmd.ActorID),
		OccurredAt: now,
	})

	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}

	if err := s.categories.Delete(ctx, categoryID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityCategory,
		Op:         mutationOpDelete,
		EntityID:   categoryID,
		OccurredAt: s.now(),
	})

	return nil
}

func (s *catalogService) ListCategories(ctx context.Context, pager Pagination) (domain.CursorPage[Category], error) {
	page, err := s.categories.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Category]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// AdjustStock applies a manual add/reduce adjustment and records the audit row.
// A reduce past zero is rejected before anything is written.
func (s *catalogService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Product{}, fmt.Errorf("%w: quantity must be positive", ErrCatalogInvalidInput)
	}

	var delta int
	switch cmd.Action {
	case domain.StockActionAdd:
		delta = cmd.Quantity
	case domain.StockActionReduce:
		delta = -cmd.Quantity
	default:
		return Product{}, fmt.Errorf("%w: unknown stock action %q", ErrCatalogInvalidInput, cmd.Action)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	var product Product
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		updated, err := s.products.AdjustStock(txCtx, productID, delta)
		if err != nil {
			return s.mapStockError(err, cmd.Quantity)
		}
		product = updated

		if s.activities == nil {
			return nil
		}
		activity := domain.StockActivity{
			ID:            stockActivityIDPrefix + s.newID(),
			ProductRef:    productID,
			ProductName:   updated.Name,
			Action:        cmd.Action,
			Quantity:      cmd.Quantity,
			PreviousStock: updated.Stock - delta,
			NewStock:      updated.Stock,
			Remarks:       s.sanitize(cmd.Remarks),
			Actor:         actor,
			OccurredAt:    now,
		}
		if err := s.activities.Append(txCtx, activity); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	s.publishMutation(ctx, MutationEvent{
		Entity:     mutationEntityStock,
		Op:         mutationOpUpdate,
		EntityID:   productID,
		ActorID:    actor,
		OccurredAt: now,
	})

	return product, nil
}

func (s *catalogService) StockHistory(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[StockActivity], error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[StockActivity]{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if s.activities == nil {
		return domain.CursorPage[StockActivity]{}, errors.New("catalog service: stock activity repository not configured")
	}
	page, err := s.activities.ListByProduct(ctx, productID, pager)
	if err != nil {
		return domain.CursorPage[StockActivity]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) mapStockError(err error, requested int) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficientStock:
			return &InsufficientStockError{
				ProductID: stockErr.ProductID,
				Requested: requested,
				Available: stockErr.Available,
			}
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		}
	}
	return s.mapRepositoryError(err)
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *catalogService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *catalogService) now() time.Time {
	return s.clock()
}

func (s *catalogService) publishMutation(ctx context.Context, event MutationEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMutation(ctx, event); err != nil {
		s.logger(ctx, "catalog.event.publish.failed", map[string]any{
			"entity": event.Entity,
			"op":     event.Op,
			"id":     event.EntityID,
			"error":  err.Error(),
		})
	}
}
