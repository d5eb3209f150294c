package models

import (
	"time"

	"example.com/backstage/services/catalog/internal/catalog"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a catalog item
type Product struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
	Name           string          `gorm:"not null" json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	InventoryCount int             `gorm:"not null;default:0" json:"inventory_count"`
	Category       string          `gorm:"not null;index" json:"category"`
}

// BeforeCreate assigns an id to new products
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ToSnapshot returns the immutable view used for event derivation
func (p Product) ToSnapshot() catalog.Snapshot {
	return catalog.Snapshot{
		ID:             p.ID.String(),
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		InventoryCount: p.InventoryCount,
		Category:       p.Category,
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

// ProductInput represents a create or update request payload
type ProductInput struct {
	Name           string          `json:"name" validate:"required,max=255"`
	Description    string          `json:"description" validate:"max=4000"`
	Price          decimal.Decimal `json:"price"`
	InventoryCount *int            `json:"inventory_count" validate:"required,gte=0"`
	Category       string          `json:"category" validate:"required,max=100"`
}

// Apply copies the input onto p
func (in ProductInput) Apply(p *Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	if in.InventoryCount != nil {
		p.InventoryCount = *in.InventoryCount
	}
	p.Category = in.Category
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	if err := db.AutoMigrate(&Product{}); err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
