package domain

type CatalogCategory struct {
	Meta
	Name     string
	ParentID string
	Position int
}

// Offering is a sellable catalog item. Linked offerings come from linked
// suppliers and are read-mostly on this device.
type Offering struct {
	Meta
	SupplierID  string
	CategoryID  string
	Name        string
	Description string
	Unit        string
	Linked      bool
	Variants    []Variant
	Prices      []Price
	Sources     []Source
}

type Variant struct {
	ID         string
	OfferingID string
	Name       string
	SKU        string
	Deleted    bool
}

type Price struct {
	ID          string
	OfferingID  string
	VariantID   string
	AmountMinor int64
	Currency    string
	Deleted     bool
}

// Source links an offering to the supplier offering it was derived from.
type Source struct {
	ID               string
	OfferingID       string
	SupplierID       string
	SourceOfferingID string
	Deleted          bool
}
