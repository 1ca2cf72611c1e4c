package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"bizsync/internal/domain"
)

type categoryTable struct{}

type categoryRow struct {
	metaRow
	Name     string `db:"name"`
	ParentID string `db:"parent_id"`
	Position int    `db:"position"`
}

const categoryColumns = metaColumns + ", name, parent_id, position"

func (categoryTable) name() string { return "catalog_categories" }

func (categoryTable) scope() (string, []any) { return "", nil }

func (categoryTable) sortColumns() map[string]string {
	return map[string]string{
		"updated_at": "updated_at",
		"name":       "name",
		"position":   "position",
	}
}

func (categoryTable) load(ctx context.Context, ex sqlx.ExtContext, clause string, args []any) ([]domain.Entity, error) {
	var rows []categoryRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind("SELECT "+categoryColumns+" FROM catalog_categories"+clause), args...); err != nil {
		return nil, fmt.Errorf("select catalog categories: %w", err)
	}

	out := make([]domain.Entity, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.CatalogCategory{
			Meta:     r.metaRow.toDomain(),
			Name:     r.Name,
			ParentID: r.ParentID,
			Position: r.Position,
		})
	}
	return out, nil
}

func (categoryTable) save(ctx context.Context, ex sqlx.ExtContext, e domain.Entity) error {
	c, ok := e.(*domain.CatalogCategory)
	if !ok {
		return unexpected("catalog_categories", e)
	}

	query := ex.Rebind(`
		INSERT INTO catalog_categories (
			id, owner_id, updated_at, deleted, dirty, name, parent_id, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			name = excluded.name,
			parent_id = excluded.parent_id,
			position = excluded.position`)

	_, err := ex.ExecContext(ctx, query,
		c.ID, c.OwnerID, c.UpdatedAt, c.Deleted, c.Dirty, c.Name, c.ParentID, c.Position,
	)
	if err != nil {
		return fmt.Errorf("upsert catalog category %s: %w", c.ID, err)
	}
	return nil
}

func (categoryTable) cascade(context.Context, sqlx.ExtContext, string) error { return nil }

// supplierTable holds affiliates. The profile's own supplier shares the
// suppliers table but is reached through the profile.
type supplierTable struct{}

type supplierRow struct {
	metaRow
	ProfileID string `db:"profile_id"`
	Name      string `db:"name"`
	Phone     string `db:"phone"`
	Email     string `db:"email"`
	Linked    bool   `db:"linked"`
}

const supplierColumns = metaColumns + ", profile_id, name, phone, email, linked"

func (supplierTable) name() string { return "suppliers" }

func (supplierTable) scope() (string, []any) {
	return "profile_id = ?", []any{""}
}

func (supplierTable) sortColumns() map[string]string {
	return map[string]string{
		"updated_at": "updated_at",
		"name":       "name",
	}
}

func (supplierTable) load(ctx context.Context, ex sqlx.ExtContext, clause string, args []any) ([]domain.Entity, error) {
	var rows []supplierRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind("SELECT "+supplierColumns+" FROM suppliers"+clause), args...); err != nil {
		return nil, fmt.Errorf("select suppliers: %w", err)
	}

	out := make([]domain.Entity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (supplierTable) save(ctx context.Context, ex sqlx.ExtContext, e domain.Entity) error {
	s, ok := e.(*domain.Supplier)
	if !ok {
		return unexpected("suppliers", e)
	}
	affiliate := *s
	affiliate.ProfileID = ""
	return upsertSupplier(ctx, ex, &affiliate)
}

func (supplierTable) cascade(context.Context, sqlx.ExtContext, string) error { return nil }

func upsertSupplier(ctx context.Context, ex sqlx.ExtContext, s *domain.Supplier) error {
	query := ex.Rebind(`
		INSERT INTO suppliers (
			id, owner_id, updated_at, deleted, dirty, profile_id, name, phone, email, linked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			profile_id = excluded.profile_id,
			name = excluded.name,
			phone = excluded.phone,
			email = excluded.email,
			linked = excluded.linked`)

	_, err := ex.ExecContext(ctx, query,
		s.ID, s.OwnerID, s.UpdatedAt, s.Deleted, s.Dirty, s.ProfileID, s.Name, s.Phone, s.Email, s.Linked,
	)
	if err != nil {
		return fmt.Errorf("upsert supplier %s: %w", s.ID, err)
	}
	return nil
}

func (r supplierRow) toDomain() *domain.Supplier {
	return &domain.Supplier{
		Meta:      r.metaRow.toDomain(),
		ProfileID: r.ProfileID,
		Name:      r.Name,
		Phone:     r.Phone,
		Email:     r.Email,
		Linked:    r.Linked,
	}
}
