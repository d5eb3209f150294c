package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is an immutable view of a catalog product at one point in time.
// It is read from the persistence store before and after a mutation and is
// always passed by value.
type Snapshot struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	InventoryCount int             `json:"inventory_count"`
	Category       string          `json:"category"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
