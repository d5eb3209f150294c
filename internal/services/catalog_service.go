package services

import (
	"context"
	"time"

	"example.com/backstage/services/catalog/internal/catalog"
	"example.com/backstage/services/catalog/internal/models"
	"example.com/backstage/services/catalog/internal/pipeline"
	"example.com/backstage/services/catalog/internal/repositories"
	"example.com/backstage/services/catalog/internal/tracing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	priceScale      = 2
)

// ErrSearchUnavailable is returned by Search when no index is configured
var ErrSearchUnavailable = errors.New("product search is not available")

// ValidationError reports an invalid product request
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid product: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ProductCache caches product snapshots
type ProductCache interface {
	GetProduct(ctx context.Context, id string) (catalog.Snapshot, error)
	SetProduct(ctx context.Context, snapshot catalog.Snapshot) error
	InvalidateProduct(ctx context.Context, id string) error
}

// ProductIndex keeps the search index in step with the store
type ProductIndex interface {
	IndexProduct(ctx context.Context, product catalog.Snapshot) error
	DeleteProduct(ctx context.Context, id string) error
	SearchProducts(ctx context.Context, query string, size int) ([]catalog.Snapshot, error)
}

// ProductPage is one page of a product listing
type ProductPage struct {
	Items  []catalog.Snapshot `json:"items"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// CatalogService handles product business logic. Every successful mutation
// is handed to the event pipeline; cache, index and pipeline problems are
// logged and never fail the mutation.
type CatalogService struct {
	repo     repositories.ProductStore
	cache    ProductCache
	index    ProductIndex
	events   pipeline.Notifier
	tracer   tracing.Tracer
	validate *validator.Validate
}

// NewCatalogService creates a new catalog service. cache and index may be nil.
func NewCatalogService(
	repo repositories.ProductStore,
	cache ProductCache,
	index ProductIndex,
	events pipeline.Notifier,
	tracer tracing.Tracer,
) *CatalogService {
	if tracer == nil {
		tracer = tracing.Disabled()
	}
	return &CatalogService{
		repo:     repo,
		cache:    cache,
		index:    index,
		events:   events,
		tracer:   tracer,
		validate: validator.New(),
	}
}

func (s *CatalogService) validateInput(input models.ProductInput) error {
	if err := s.validate.Struct(input); err != nil {
		return &ValidationError{Err: err}
	}
	if input.Price.IsNegative() {
		return &ValidationError{Err: errors.New("price must not be negative")}
	}
	// prices are stored as numeric(12,2)
	if !input.Price.Equal(input.Price.Round(priceScale)) {
		return &ValidationError{Err: errors.Errorf("price must have at most %d decimal places", priceScale)}
	}
	return nil
}

// Create stores a new product
func (s *CatalogService) Create(ctx context.Context, input models.ProductInput) (catalog.Snapshot, error) {
	txn := s.tracer.StartTransaction("create-product")
	defer s.tracer.EndTransaction(txn)

	if err := s.validateInput(input); err != nil {
		return catalog.Snapshot{}, err
	}

	product := &models.Product{ID: uuid.New()}
	input.Apply(product)

	span := s.tracer.StartSpan("db-create-product", txn)
	err := s.repo.Create(ctx, product)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return catalog.Snapshot{}, err
	}

	created := product.ToSnapshot()
	log.Info().
		Str("product_id", created.ID).
		Str("category", created.Category).
		Msg("Product created")

	s.reindex(ctx, created)
	s.events.OnCreate(created)

	return created, nil
}

// Update replaces the editable fields of a product
func (s *CatalogService) Update(ctx context.Context, id string, input models.ProductInput) (catalog.Snapshot, error) {
	txn := s.tracer.StartTransaction("update-product")
	defer s.tracer.EndTransaction(txn)

	if err := s.validateInput(input); err != nil {
		return catalog.Snapshot{}, err
	}

	productID, err := parseID(id)
	if err != nil {
		return catalog.Snapshot{}, err
	}

	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return catalog.Snapshot{}, err
	}
	old := product.ToSnapshot()

	input.Apply(product)
	product.UpdatedAt = time.Now().UTC()

	// invalidated again after the write so a concurrent read cannot re-cache the old row
	s.invalidate(ctx, old.ID)

	span := s.tracer.StartSpan("db-update-product", txn)
	err = s.repo.Update(ctx, product)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return catalog.Snapshot{}, err
	}

	updated := product.ToSnapshot()
	log.Info().Str("product_id", updated.ID).Msg("Product updated")

	s.invalidate(ctx, updated.ID)
	s.reindex(ctx, updated)
	s.events.OnUpdate(old, updated)

	return updated, nil
}

// Delete removes a product
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	txn := s.tracer.StartTransaction("delete-product")
	defer s.tracer.EndTransaction(txn)

	productID, err := parseID(id)
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	if err := s.repo.Delete(ctx, productID); err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	log.Info().Str("product_id", id).Msg("Product deleted")

	s.invalidate(ctx, id)
	if s.index != nil {
		if err := s.index.DeleteProduct(ctx, id); err != nil {
			log.Warn().Err(err).Str("product_id", id).Msg("Failed to remove product from search index")
		}
	}
	s.events.OnDelete(id)

	return nil
}

// Get returns a product, reading through the cache
func (s *CatalogService) Get(ctx context.Context, id string) (catalog.Snapshot, error) {
	productID, err := parseID(id)
	if err != nil {
		return catalog.Snapshot{}, err
	}

	if s.cache != nil {
		if snapshot, err := s.cache.GetProduct(ctx, id); err == nil {
			return snapshot, nil
		}
	}

	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return catalog.Snapshot{}, err
	}

	snapshot := product.ToSnapshot()
	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, snapshot); err != nil {
			log.Debug().Err(err).Str("product_id", id).Msg("Failed to cache product")
		}
	}
	return snapshot, nil
}

// List returns a page of products
func (s *CatalogService) List(ctx context.Context, limit, offset int) (ProductPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	products, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return ProductPage{}, err
	}

	items := make([]catalog.Snapshot, 0, len(products))
	for _, p := range products {
		items = append(items, p.ToSnapshot())
	}
	return ProductPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// Search runs a full-text query against the product index
func (s *CatalogService) Search(ctx context.Context, query string) ([]catalog.Snapshot, error) {
	if s.index == nil {
		return nil, ErrSearchUnavailable
	}
	if query == "" {
		return nil, &ValidationError{Err: errors.New("search query must not be empty")}
	}
	return s.index.SearchProducts(ctx, query, maxPageSize)
}

func (s *CatalogService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProduct(ctx, id); err != nil {
		log.Debug().Err(err).Str("product_id", id).Msg("Failed to invalidate cached product")
	}
}

func (s *CatalogService) reindex(ctx context.Context, snapshot catalog.Snapshot) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexProduct(ctx, snapshot); err != nil {
		log.Warn().Err(err).Str("product_id", snapshot.ID).Msg("Failed to index product")
	}
}

func parseID(id string) (uuid.UUID, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		// an id that cannot exist is reported as missing
		return uuid.Nil, repositories.ErrProductNotFound
	}
	return productID, nil
}
