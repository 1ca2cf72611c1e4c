package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"bizsync/internal/domain"
)

// offeringTable serves both the owner's offerings and the offerings pulled
// from linked suppliers; the linked column separates them.
type offeringTable struct {
	linked bool
}

type offeringRow struct {
	metaRow
	SupplierID  string `db:"supplier_id"`
	CategoryID  string `db:"category_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Unit        string `db:"unit"`
	Linked      bool   `db:"linked"`
}

type variantRow struct {
	ID         string `db:"id"`
	OfferingID string `db:"offering_id"`
	Name       string `db:"name"`
	SKU        string `db:"sku"`
	Deleted    bool   `db:"deleted"`
}

type priceRow struct {
	ID          string `db:"id"`
	OfferingID  string `db:"offering_id"`
	VariantID   string `db:"variant_id"`
	AmountMinor int64  `db:"amount_minor"`
	Currency    string `db:"currency"`
	Deleted     bool   `db:"deleted"`
}

type sourceRow struct {
	ID               string `db:"id"`
	OfferingID       string `db:"offering_id"`
	SupplierID       string `db:"supplier_id"`
	SourceOfferingID string `db:"source_offering_id"`
	Deleted          bool   `db:"deleted"`
}

const (
	offeringColumns = metaColumns + ", supplier_id, category_id, name, description, unit, linked"
	variantColumns  = "id, offering_id, name, sku, deleted"
	priceColumns    = "id, offering_id, variant_id, amount_minor, currency, deleted"
	sourceColumns   = "id, offering_id, supplier_id, source_offering_id, deleted"
)

func (offeringTable) name() string { return "offerings" }

func (t offeringTable) scope() (string, []any) {
	return "linked = ?", []any{t.linked}
}

func (offeringTable) sortColumns() map[string]string {
	return map[string]string{
		"updated_at":  "updated_at",
		"name":        "name",
		"supplier_id": "supplier_id",
		"category_id": "category_id",
	}
}

func (offeringTable) load(ctx context.Context, ex sqlx.ExtContext, clause string, args []any) ([]domain.Entity, error) {
	var rows []offeringRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind("SELECT "+offeringColumns+" FROM offerings"+clause), args...); err != nil {
		return nil, fmt.Errorf("select offerings: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	offerings := make([]*domain.Offering, len(rows))
	byID := make(map[string]*domain.Offering, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		o := r.toDomain()
		offerings[i] = o
		byID[o.ID] = o
		ids[i] = o.ID
	}

	variants, err := loadChildren[variantRow](ctx, ex, "variants", variantColumns, "offering_id", ids)
	if err != nil {
		return nil, fmt.Errorf("select variants: %w", err)
	}
	for _, v := range variants {
		o := byID[v.OfferingID]
		o.Variants = append(o.Variants, domain.Variant{
			ID:         v.ID,
			OfferingID: v.OfferingID,
			Name:       v.Name,
			SKU:        v.SKU,
			Deleted:    v.Deleted,
		})
	}

	prices, err := loadChildren[priceRow](ctx, ex, "prices", priceColumns, "offering_id", ids)
	if err != nil {
		return nil, fmt.Errorf("select prices: %w", err)
	}
	for _, p := range prices {
		o := byID[p.OfferingID]
		o.Prices = append(o.Prices, domain.Price{
			ID:          p.ID,
			OfferingID:  p.OfferingID,
			VariantID:   p.VariantID,
			AmountMinor: p.AmountMinor,
			Currency:    p.Currency,
			Deleted:     p.Deleted,
		})
	}

	sources, err := loadChildren[sourceRow](ctx, ex, "offering_sources", sourceColumns, "offering_id", ids)
	if err != nil {
		return nil, fmt.Errorf("select offering sources: %w", err)
	}
	for _, s := range sources {
		o := byID[s.OfferingID]
		o.Sources = append(o.Sources, domain.Source{
			ID:               s.ID,
			OfferingID:       s.OfferingID,
			SupplierID:       s.SupplierID,
			SourceOfferingID: s.SourceOfferingID,
			Deleted:          s.Deleted,
		})
	}

	out := make([]domain.Entity, len(offerings))
	for i, o := range offerings {
		out[i] = o
	}
	return out, nil
}

func (t offeringTable) save(ctx context.Context, ex sqlx.ExtContext, e domain.Entity) error {
	o, ok := e.(*domain.Offering)
	if !ok {
		return unexpected("offerings", e)
	}

	query := ex.Rebind(`
		INSERT INTO offerings (
			id, owner_id, updated_at, deleted, dirty,
			supplier_id, category_id, name, description, unit, linked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			supplier_id = excluded.supplier_id,
			category_id = excluded.category_id,
			name = excluded.name,
			description = excluded.description,
			unit = excluded.unit,
			linked = excluded.linked`)

	_, err := ex.ExecContext(ctx, query,
		o.ID,
		o.OwnerID,
		o.UpdatedAt,
		o.Deleted,
		o.Dirty,
		o.SupplierID,
		o.CategoryID,
		o.Name,
		o.Description,
		o.Unit,
		t.linked,
	)
	if err != nil {
		return fmt.Errorf("upsert offering %s: %w", o.ID, err)
	}

	return saveOfferingChildren(ctx, ex, o)
}

func saveOfferingChildren(ctx context.Context, ex sqlx.ExtContext, o *domain.Offering) error {
	for _, table := range []string{"variants", "prices", "offering_sources"} {
		if err := dropChildren(ctx, ex, table, "offering_id", o.ID); err != nil {
			return fmt.Errorf("drop %s of %s: %w", table, o.ID, err)
		}
	}

	variantQuery := ex.Rebind(`
		INSERT INTO variants (id, offering_id, name, sku, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			offering_id = excluded.offering_id,
			name = excluded.name,
			sku = excluded.sku,
			deleted = excluded.deleted`)
	for _, v := range o.Variants {
		if _, err := ex.ExecContext(ctx, variantQuery, v.ID, o.ID, v.Name, v.SKU, v.Deleted || o.Deleted); err != nil {
			return fmt.Errorf("upsert variant %s: %w", v.ID, err)
		}
	}

	priceQuery := ex.Rebind(`
		INSERT INTO prices (id, offering_id, variant_id, amount_minor, currency, deleted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			offering_id = excluded.offering_id,
			variant_id = excluded.variant_id,
			amount_minor = excluded.amount_minor,
			currency = excluded.currency,
			deleted = excluded.deleted`)
	for _, p := range o.Prices {
		if _, err := ex.ExecContext(ctx, priceQuery, p.ID, o.ID, p.VariantID, p.AmountMinor, p.Currency, p.Deleted || o.Deleted); err != nil {
			return fmt.Errorf("upsert price %s: %w", p.ID, err)
		}
	}

	sourceQuery := ex.Rebind(`
		INSERT INTO offering_sources (id, offering_id, supplier_id, source_offering_id, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			offering_id = excluded.offering_id,
			supplier_id = excluded.supplier_id,
			source_offering_id = excluded.source_offering_id,
			deleted = excluded.deleted`)
	for _, s := range o.Sources {
		if _, err := ex.ExecContext(ctx, sourceQuery, s.ID, o.ID, s.SupplierID, s.SourceOfferingID, s.Deleted || o.Deleted); err != nil {
			return fmt.Errorf("upsert offering source %s: %w", s.ID, err)
		}
	}

	return nil
}

func (offeringTable) cascade(ctx context.Context, ex sqlx.ExtContext, id string) error {
	for _, table := range []string{"variants", "prices", "offering_sources"} {
		if err := tombstoneChildren(ctx, ex, table, "offering_id", id); err != nil {
			return fmt.Errorf("tombstone %s of %s: %w", table, id, err)
		}
	}
	return nil
}

func (r offeringRow) toDomain() *domain.Offering {
	return &domain.Offering{
		Meta:        r.metaRow.toDomain(),
		SupplierID:  r.SupplierID,
		CategoryID:  r.CategoryID,
		Name:        r.Name,
		Description: r.Description,
		Unit:        r.Unit,
		Linked:      r.Linked,
	}
}
