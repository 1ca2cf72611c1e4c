package remote

import (
	"encoding/json"
	"fmt"

	"bizsync/internal/domain"
)

type pushRequest struct {
	OwnerID string `json:"owner_id"`
	Records []any  `json:"records"`
}

type pushResponse struct {
	Accepted   []string          `json:"accepted"`
	Rejected   map[string]string `json:"rejected"`
	ServerTime int64             `json:"server_time"`
}

type pullResponse[T any] struct {
	Records    []T   `json:"records"`
	ServerTime int64 `json:"server_time"`
}

// metaWire carries the replicated bookkeeping. Dirty is local state and is
// never sent.
type metaWire struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	UpdatedAt int64  `json:"updated_at"`
	Deleted   bool   `json:"deleted"`
}

type profileWire struct {
	metaWire
	BusinessName string         `json:"business_name"`
	ContactName  string         `json:"contact_name"`
	Phone        string         `json:"phone"`
	Email        string         `json:"email"`
	Supplier     *supplierWire  `json:"supplier,omitempty"`
	Locations    []locationWire `json:"locations"`
}

type locationWire struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Deleted   bool    `json:"deleted"`
}

type supplierWire struct {
	metaWire
	ProfileID string `json:"profile_id,omitempty"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Linked    bool   `json:"linked"`
}

type categoryWire struct {
	metaWire
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
	Position int    `json:"position"`
}

type offeringWire struct {
	metaWire
	SupplierID  string        `json:"supplier_id"`
	CategoryID  string        `json:"category_id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Unit        string        `json:"unit"`
	Variants    []variantWire `json:"variants"`
	Prices      []priceWire   `json:"prices"`
	Sources     []sourceWire  `json:"sources"`
}

type variantWire struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SKU     string `json:"sku"`
	Deleted bool   `json:"deleted"`
}

type priceWire struct {
	ID          string `json:"id"`
	VariantID   string `json:"variant_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Deleted     bool   `json:"deleted"`
}

type sourceWire struct {
	ID               string `json:"id"`
	SupplierID       string `json:"supplier_id"`
	SourceOfferingID string `json:"source_offering_id"`
	Deleted          bool   `json:"deleted"`
}

type deliveryWire struct {
	metaWire
	BillID       string `json:"bill_id"`
	CustomerName string `json:"customer_name"`
	Address      string `json:"address"`
	Status       string `json:"status"`
	ScheduledAt  int64  `json:"scheduled_at"`
}

type billWire struct {
	metaWire
	CustomerName string `json:"customer_name"`
	TotalMinor   int64  `json:"total_minor"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	IssuedAt     int64  `json:"issued_at"`
}

func metaToWire(m *domain.Meta) metaWire {
	return metaWire{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		UpdatedAt: m.UpdatedAt,
		Deleted:   m.Deleted,
	}
}

func (w metaWire) toDomain() domain.Meta {
	return domain.Meta{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		UpdatedAt: w.UpdatedAt,
		Deleted:   w.Deleted,
	}
}

// toWire converts a local record into the wire shape of its category.
func toWire(category domain.Category, e domain.Entity) (any, error) {
	switch category {
	case domain.CategoryProfile:
		if p, ok := e.(*domain.Profile); ok {
			return profileToWire(p), nil
		}
	case domain.CategoryCategories:
		if c, ok := e.(*domain.CatalogCategory); ok {
			return categoryWire{
				metaWire: metaToWire(&c.Meta),
				Name:     c.Name,
				ParentID: c.ParentID,
				Position: c.Position,
			}, nil
		}
	case domain.CategorySuppliers:
		if s, ok := e.(*domain.Supplier); ok {
			return supplierToWire(s), nil
		}
	case domain.CategoryOfferings, domain.CategoryLinkedOffering:
		if o, ok := e.(*domain.Offering); ok {
			return offeringToWire(o), nil
		}
	case domain.CategoryDeliveries:
		if d, ok := e.(*domain.Delivery); ok {
			return deliveryWire{
				metaWire:     metaToWire(&d.Meta),
				BillID:       d.BillID,
				CustomerName: d.CustomerName,
				Address:      d.Address,
				Status:       d.Status,
				ScheduledAt:  d.ScheduledAt,
			}, nil
		}
	case domain.CategoryBills:
		if b, ok := e.(*domain.Bill); ok {
			return billWire{
				metaWire:     metaToWire(&b.Meta),
				CustomerName: b.CustomerName,
				TotalMinor:   b.TotalMinor,
				Currency:     b.Currency,
				Status:       b.Status,
				IssuedAt:     b.IssuedAt,
			}, nil
		}
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}
	return nil, fmt.Errorf("%s: unexpected entity %T", category, e)
}

func profileToWire(p *domain.Profile) profileWire {
	w := profileWire{
		metaWire:     metaToWire(&p.Meta),
		BusinessName: p.BusinessName,
		ContactName:  p.ContactName,
		Phone:        p.Phone,
		Email:        p.Email,
		Locations:    make([]locationWire, 0, len(p.Locations)),
	}
	if p.Supplier != nil {
		s := supplierToWire(p.Supplier)
		w.Supplier = &s
	}
	for _, l := range p.Locations {
		w.Locations = append(w.Locations, locationWire{
			ID:        l.ID,
			Label:     l.Label,
			Address:   l.Address,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			Deleted:   l.Deleted,
		})
	}
	return w
}

func supplierToWire(s *domain.Supplier) supplierWire {
	return supplierWire{
		metaWire:  metaToWire(&s.Meta),
		ProfileID: s.ProfileID,
		Name:      s.Name,
		Phone:     s.Phone,
		Email:     s.Email,
		Linked:    s.Linked,
	}
}

func offeringToWire(o *domain.Offering) offeringWire {
	w := offeringWire{
		metaWire:    metaToWire(&o.Meta),
		SupplierID:  o.SupplierID,
		CategoryID:  o.CategoryID,
		Name:        o.Name,
		Description: o.Description,
		Unit:        o.Unit,
		Variants:    make([]variantWire, 0, len(o.Variants)),
		Prices:      make([]priceWire, 0, len(o.Prices)),
		Sources:     make([]sourceWire, 0, len(o.Sources)),
	}
	for _, v := range o.Variants {
		w.Variants = append(w.Variants, variantWire{ID: v.ID, Name: v.Name, SKU: v.SKU, Deleted: v.Deleted})
	}
	for _, p := range o.Prices {
		w.Prices = append(w.Prices, priceWire{
			ID:          p.ID,
			VariantID:   p.VariantID,
			AmountMinor: p.AmountMinor,
			Currency:    p.Currency,
			Deleted:     p.Deleted,
		})
	}
	for _, s := range o.Sources {
		w.Sources = append(w.Sources, sourceWire{
			ID:               s.ID,
			SupplierID:       s.SupplierID,
			SourceOfferingID: s.SourceOfferingID,
			Deleted:          s.Deleted,
		})
	}
	return w
}

func (w profileWire) toDomain() domain.Entity {
	p := &domain.Profile{
		Meta:         w.metaWire.toDomain(),
		BusinessName: w.BusinessName,
		ContactName:  w.ContactName,
		Phone:        w.Phone,
		Email:        w.Email,
	}
	if w.Supplier != nil {
		p.Supplier = w.Supplier.toSupplier()
		p.Supplier.ProfileID = p.ID
	}
	for _, l := range w.Locations {
		p.Locations = append(p.Locations, domain.Location{
			ID:        l.ID,
			ProfileID: p.ID,
			Label:     l.Label,
			Address:   l.Address,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			Deleted:   l.Deleted,
		})
	}
	return p
}

func (w supplierWire) toSupplier() *domain.Supplier {
	return &domain.Supplier{
		Meta:      w.metaWire.toDomain(),
		ProfileID: w.ProfileID,
		Name:      w.Name,
		Phone:     w.Phone,
		Email:     w.Email,
		Linked:    w.Linked,
	}
}

func (w supplierWire) toDomain() domain.Entity { return w.toSupplier() }

func (w categoryWire) toDomain() domain.Entity {
	return &domain.CatalogCategory{
		Meta:     w.metaWire.toDomain(),
		Name:     w.Name,
		ParentID: w.ParentID,
		Position: w.Position,
	}
}

func (w offeringWire) toOffering(linked bool) *domain.Offering {
	o := &domain.Offering{
		Meta:        w.metaWire.toDomain(),
		SupplierID:  w.SupplierID,
		CategoryID:  w.CategoryID,
		Name:        w.Name,
		Description: w.Description,
		Unit:        w.Unit,
		Linked:      linked,
	}
	for _, v := range w.Variants {
		o.Variants = append(o.Variants, domain.Variant{
			ID:         v.ID,
			OfferingID: o.ID,
			Name:       v.Name,
			SKU:        v.SKU,
			Deleted:    v.Deleted,
		})
	}
	for _, p := range w.Prices {
		o.Prices = append(o.Prices, domain.Price{
			ID:          p.ID,
			OfferingID:  o.ID,
			VariantID:   p.VariantID,
			AmountMinor: p.AmountMinor,
			Currency:    p.Currency,
			Deleted:     p.Deleted,
		})
	}
	for _, s := range w.Sources {
		o.Sources = append(o.Sources, domain.Source{
			ID:               s.ID,
			OfferingID:       o.ID,
			SupplierID:       s.SupplierID,
			SourceOfferingID: s.SourceOfferingID,
			Deleted:          s.Deleted,
		})
	}
	return o
}

func (w deliveryWire) toDomain() domain.Entity {
	return &domain.Delivery{
		Meta:         w.metaWire.toDomain(),
		BillID:       w.BillID,
		CustomerName: w.CustomerName,
		Address:      w.Address,
		Status:       w.Status,
		ScheduledAt:  w.ScheduledAt,
	}
}

func (w billWire) toDomain() domain.Entity {
	return &domain.Bill{
		Meta:         w.metaWire.toDomain(),
		CustomerName: w.CustomerName,
		TotalMinor:   w.TotalMinor,
		Currency:     w.Currency,
		Status:       w.Status,
		IssuedAt:     w.IssuedAt,
	}
}

type wireRecord interface {
	toDomain() domain.Entity
	meta() metaWire
}

func (w metaWire) meta() metaWire { return w }

// decodeRecords parses a whole pull response. Nothing is returned unless
// every record decodes and carries an ID.
func decodeRecords(category domain.Category, body []byte) ([]domain.Entity, error) {
	switch category {
	case domain.CategoryProfile:
		return decodeAs[profileWire](body)
	case domain.CategoryCategories:
		return decodeAs[categoryWire](body)
	case domain.CategorySuppliers:
		return decodeAs[supplierWire](body)
	case domain.CategoryOfferings, domain.CategoryLinkedOffering:
		var resp pullResponse[offeringWire]
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		linked := category == domain.CategoryLinkedOffering
		out := make([]domain.Entity, 0, len(resp.Records))
		for i, w := range resp.Records {
			if w.ID == "" {
				return nil, fmt.Errorf("record %d has no id", i)
			}
			out = append(out, w.toOffering(linked))
		}
		return out, nil
	case domain.CategoryDeliveries:
		return decodeAs[deliveryWire](body)
	case domain.CategoryBills:
		return decodeAs[billWire](body)
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}
}

func decodeAs[T wireRecord](body []byte) ([]domain.Entity, error) {
	var resp pullResponse[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Entity, 0, len(resp.Records))
	for i, w := range resp.Records {
		if w.meta().ID == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
		out = append(out, w.toDomain())
	}
	return out, nil
}
