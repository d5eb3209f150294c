package repositories

import (
	"context"

	"example.com/backstage/services/catalog/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrProductNotFound is returned when no product matches the id
var ErrProductNotFound = errors.New("product not found")

// ProductStore is the persistence contract used by the catalog service
type ProductStore interface {
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, limit, offset int) ([]models.Product, int64, error)
}

// ProductRepository provides access to product data
type ProductRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewProductRepository creates a new product repository. readOnlyDB may be
// nil, in which case reads use db.
func NewProductRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ProductRepository {
	if readOnlyDB == nil {
		readOnlyDB = db
	}
	return &ProductRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create creates a new product
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return errors.Wrap(err, "failed to create product")
	}
	return nil
}

// Update saves all fields of an existing product
func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	result := r.db.WithContext(ctx).
		Model(product).
		Select("name", "description", "price", "inventory_count", "category", "updated_at").
		Updates(product)

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update product")
	}
	if result.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Delete soft-deletes a product
func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete product")
	}
	if result.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetByID gets a product by ID
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get product by ID")
	}
	return &product, nil
}

// List returns a page of products ordered by creation time and the total count
func (r *ProductRepository) List(ctx context.Context, limit, offset int) ([]models.Product, int64, error) {
	var (
		products []models.Product
		total    int64
	)

	query := r.readOnlyDB.WithContext(ctx).Model(&models.Product{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count products")
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&products).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list products")
	}
	return products, total, nil
}
