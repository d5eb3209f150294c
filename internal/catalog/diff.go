package catalog

import (
	"github.com/shopspring/decimal"
)

// Field names a snapshot field that takes part in event derivation.
type Field string

// Diffed fields, in the order they are reported
const (
	FieldPrice          Field = "price"
	FieldCategory       Field = "category"
	FieldInventoryCount Field = "inventoryCount"
)

// Change holds the old and new value of a single changed field.
type Change struct {
	Field Field
	Old   interface{}
	New   interface{}
}

// FieldDiff is the set of changed fields between two snapshots of the same
// product. The zero value is an empty diff.
type FieldDiff struct {
	changes []Change
}

// Diff compares the fields of old and new that drive event derivation.
// Price uses decimal equality, so 10 and 10.00 are equal.
func Diff(old, new Snapshot) FieldDiff {
	var d FieldDiff

	if !old.Price.Equal(new.Price) {
		d.changes = append(d.changes, Change{Field: FieldPrice, Old: old.Price, New: new.Price})
	}
	if old.Category != new.Category {
		d.changes = append(d.changes, Change{Field: FieldCategory, Old: old.Category, New: new.Category})
	}
	if old.InventoryCount != new.InventoryCount {
		d.changes = append(d.changes, Change{Field: FieldInventoryCount, Old: old.InventoryCount, New: new.InventoryCount})
	}

	return d
}

// IsEmpty reports whether no diffed field changed
func (d FieldDiff) IsEmpty() bool {
	return len(d.changes) == 0
}

// Changed reports whether the given field changed
func (d FieldDiff) Changed(field Field) bool {
	_, ok := d.get(field)
	return ok
}

// Changes returns the changed fields in price, category, inventoryCount order.
func (d FieldDiff) Changes() []Change {
	out := make([]Change, len(d.changes))
	copy(out, d.changes)
	return out
}

// Fields returns the names of the changed fields
func (d FieldDiff) Fields() []Field {
	fields := make([]Field, 0, len(d.changes))
	for _, c := range d.changes {
		fields = append(fields, c.Field)
	}
	return fields
}

// Price returns the old and new price if the price changed
func (d FieldDiff) Price() (old, new decimal.Decimal, ok bool) {
	c, ok := d.get(FieldPrice)
	if !ok {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return c.Old.(decimal.Decimal), c.New.(decimal.Decimal), true
}

// Category returns the old and new category if the category changed
func (d FieldDiff) Category() (old, new string, ok bool) {
	c, ok := d.get(FieldCategory)
	if !ok {
		return "", "", false
	}
	return c.Old.(string), c.New.(string), true
}

// InventoryCount returns the old and new inventory count if it changed
func (d FieldDiff) InventoryCount() (old, new int, ok bool) {
	c, ok := d.get(FieldInventoryCount)
	if !ok {
		return 0, 0, false
	}
	return c.Old.(int), c.New.(int), true
}

func (d FieldDiff) get(field Field) (Change, bool) {
	for _, c := range d.changes {
		if c.Field == field {
			return c, true
		}
	}
	return Change{}, false
}
