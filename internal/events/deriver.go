package events

import (
	"time"

	"example.com/backstage/services/catalog/internal/catalog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NotApplicable is the percentage change reported when the old price is zero
const NotApplicable = "N/A"

var hundred = decimal.NewFromInt(100)

// Deriver turns catalog mutations into ordered domain events. It holds no
// mutable state and is safe for concurrent use.
type Deriver struct {
	threshold int
	now       func() time.Time
	newID     func() string
}

// DeriverOption configures a Deriver
type DeriverOption func(*Deriver)

// WithClock sets the clock used for OccurredAt and time payload fields
func WithClock(now func() time.Time) DeriverOption {
	return func(d *Deriver) {
		d.now = now
	}
}

// WithIDGenerator sets the generator for pre-assigned event ids
func WithIDGenerator(newID func() string) DeriverOption {
	return func(d *Deriver) {
		d.newID = newID
	}
}

// NewDeriver creates a deriver that reports inventory at or below threshold
// as low.
func NewDeriver(threshold int, opts ...DeriverOption) *Deriver {
	d := &Deriver{
		threshold: threshold,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Threshold returns the low inventory threshold
func (d *Deriver) Threshold() int {
	return d.threshold
}

// OnCreate derives the events for a newly created product: Created, then
// InventoryLow if the initial stock is at or below the threshold.
func (d *Deriver) OnCreate(created catalog.Snapshot) []DomainEvent {
	at := d.now()

	out := []DomainEvent{
		d.event(ProductCreated, created.ID, at, Payload{
			{"name", created.Name},
			{"description", created.Description},
			{"price", created.Price},
			{"inventoryCount", created.InventoryCount},
			{"category", created.Category},
		}),
	}

	if created.InventoryCount <= d.threshold {
		out = append(out, d.inventoryLow(created, at))
	}

	return out
}

// OnUpdate derives the events for an update. The order is fixed: Updated,
// PriceChanged, CategoryChanged, then the inventory crossing event.
func (d *Deriver) OnUpdate(old, updated catalog.Snapshot) []DomainEvent {
	at := d.now()
	diff := catalog.Diff(old, updated)

	out := []DomainEvent{
		d.event(ProductUpdated, updated.ID, at, Payload{
			{"name", updated.Name},
			{"description", updated.Description},
			{"price", updated.Price},
			{"inventoryCount", updated.InventoryCount},
			{"category", updated.Category},
			{"updatedAt", updated.UpdatedAt},
		}),
	}

	if oldPrice, newPrice, ok := diff.Price(); ok {
		out = append(out, d.event(ProductPriceChanged, updated.ID, at, Payload{
			{"name", updated.Name},
			{"oldPrice", oldPrice},
			{"newPrice", newPrice},
			{"priceChange", newPrice.Sub(oldPrice)},
			{"percentageChange", PercentageChange(oldPrice, newPrice)},
		}))
	}

	if oldCategory, newCategory, ok := diff.Category(); ok {
		out = append(out, d.event(ProductCategoryChanged, updated.ID, at, Payload{
			{"name", updated.Name},
			{"oldCategory", oldCategory},
			{"newCategory", newCategory},
			{"changedAt", at},
		}))
	}

	if oldCount, newCount, ok := diff.InventoryCount(); ok {
		switch {
		case oldCount > d.threshold && newCount <= d.threshold:
			out = append(out, d.inventoryLow(updated, at))
		case oldCount <= d.threshold && newCount > d.threshold:
			out = append(out, d.event(ProductInventoryRestocked, updated.ID, at, Payload{
				{"name", updated.Name},
				{"previousInventory", oldCount},
				{"currentInventory", newCount},
				{"threshold", d.threshold},
				{"category", updated.Category},
			}))
		}
	}

	return out
}

// OnDelete derives the single Deleted event for a removed product
func (d *Deriver) OnDelete(entityID string) []DomainEvent {
	at := d.now()
	return []DomainEvent{
		d.event(ProductDeleted, entityID, at, Payload{
			{"deletedAt", at},
		}),
	}
}

func (d *Deriver) inventoryLow(s catalog.Snapshot, at time.Time) DomainEvent {
	return d.event(ProductInventoryLow, s.ID, at, Payload{
		{"name", s.Name},
		{"currentInventory", s.InventoryCount},
		{"threshold", d.threshold},
		{"category", s.Category},
	})
}

func (d *Deriver) event(t Type, entityID string, at time.Time, payload Payload) DomainEvent {
	return DomainEvent{
		EventID:    d.newID(),
		EventType:  t,
		EntityID:   entityID,
		OccurredAt: at,
		Payload:    payload,
	}
}

// PercentageChange renders (new-old)/old*100 with two decimals and a percent
// sign. A zero old price yields NotApplicable.
func PercentageChange(old, new decimal.Decimal) string {
	if old.IsZero() {
		return NotApplicable
	}
	return new.Sub(old).Div(old).Mul(hundred).StringFixed(2) + "%"
}
