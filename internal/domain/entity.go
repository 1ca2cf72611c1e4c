package domain

import "fmt"

// Meta holds the sync bookkeeping shared by every synchronized record.
type Meta struct {
	ID        string
	OwnerID   string
	UpdatedAt int64 // epoch milliseconds, authoritative for conflict resolution
	Deleted   bool
	Dirty     bool
}

// Entity is any record that takes part in synchronization.
type Entity interface {
	GetMeta() *Meta
}

func (m *Meta) GetMeta() *Meta { return m }

// Category identifies a synchronized entity category and its checkpoint key.
type Category string

const (
	CategoryProfile        Category = "profile"
	CategoryCategories     Category = "categories"
	CategorySuppliers      Category = "suppliers"
	CategoryOfferings      Category = "offerings"
	CategoryLinkedOffering Category = "linked_offerings"
	CategoryDeliveries     Category = "deliveries"
	CategoryBills          Category = "bills"

	// CategoryAll selects every category for a full sync pass.
	CategoryAll Category = "all"
)

// syncOrder is the fixed dependency order: later categories may reference
// identifiers introduced by earlier ones.
var syncOrder = []Category{
	CategoryProfile,
	CategoryCategories,
	CategorySuppliers,
	CategoryOfferings,
	CategoryLinkedOffering,
	CategoryDeliveries,
	CategoryBills,
}

// AllCategories returns every category in sync order.
func AllCategories() []Category {
	out := make([]Category, len(syncOrder))
	copy(out, syncOrder)
	return out
}

func (c Category) Valid() bool {
	for _, known := range syncOrder {
		if c == known {
			return true
		}
	}
	return false
}

// Order returns the position of c in the sync order, or -1.
// LinkedSupplierCheckpoint is the checkpoint key recording that the
// offerings of one linked supplier were pulled in full.
func LinkedSupplierCheckpoint(supplierID string) Category {
	return CategoryLinkedOffering + "/" + Category(supplierID)
}

func (c Category) Order() int {
	for i, known := range syncOrder {
		if c == known {
			return i
		}
	}
	return -1
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// DirtyMark identifies the exact version of a record captured in a dirty
// snapshot. Clearing compares UpdatedAt so later edits stay dirty.
type DirtyMark struct {
	ID        string
	UpdatedAt int64
}

// MarksOf captures the exact versions of entities for ClearDirty.
func MarksOf(entities []Entity) []DirtyMark {
	marks := make([]DirtyMark, 0, len(entities))
	for _, e := range entities {
		m := e.GetMeta()
		marks = append(marks, DirtyMark{ID: m.ID, UpdatedAt: m.UpdatedAt})
	}
	return marks
}

// Query is the predicate accepted by the local store.
type Query struct {
	OwnerID        string
	IDs            []string
	IncludeDeleted bool
	DirtyOnly      bool
	SortBy         string
	Descending     bool
	Limit          int
}
