package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"bizsync/internal/domain"
)

type profileTable struct{}

type profileRow struct {
	metaRow
	BusinessName string `db:"business_name"`
	ContactName  string `db:"contact_name"`
	Phone        string `db:"phone"`
	Email        string `db:"email"`
}

type locationRow struct {
	ID        string  `db:"id"`
	ProfileID string  `db:"profile_id"`
	Label     string  `db:"label"`
	Address   string  `db:"address"`
	Latitude  float64 `db:"latitude"`
	Longitude float64 `db:"longitude"`
	Deleted   bool    `db:"deleted"`
}

const (
	profileColumns  = metaColumns + ", business_name, contact_name, phone, email"
	locationColumns = "id, profile_id, label, address, latitude, longitude, deleted"
)

func (profileTable) name() string { return "profiles" }

func (profileTable) scope() (string, []any) { return "", nil }

func (profileTable) sortColumns() map[string]string {
	return map[string]string{
		"updated_at":    "updated_at",
		"business_name": "business_name",
	}
}

func (profileTable) load(ctx context.Context, ex sqlx.ExtContext, clause string, args []any) ([]domain.Entity, error) {
	var rows []profileRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind("SELECT "+profileColumns+" FROM profiles"+clause), args...); err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	profiles := make([]*domain.Profile, len(rows))
	byID := make(map[string]*domain.Profile, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		p := r.toDomain()
		profiles[i] = p
		byID[p.ID] = p
		ids[i] = p.ID
	}

	locations, err := loadChildren[locationRow](ctx, ex, "locations", locationColumns, "profile_id", ids)
	if err != nil {
		return nil, fmt.Errorf("select locations: %w", err)
	}
	for _, l := range locations {
		p := byID[l.ProfileID]
		p.Locations = append(p.Locations, domain.Location{
			ID:        l.ID,
			ProfileID: l.ProfileID,
			Label:     l.Label,
			Address:   l.Address,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			Deleted:   l.Deleted,
		})
	}

	suppliers, err := loadChildren[supplierRow](ctx, ex, "suppliers", supplierColumns, "profile_id", ids)
	if err != nil {
		return nil, fmt.Errorf("select profile suppliers: %w", err)
	}
	for _, s := range suppliers {
		p := byID[s.ProfileID]
		// a replaced supplier stays behind as a tombstone; prefer the live one
		if p.Supplier != nil && !p.Supplier.Deleted {
			continue
		}
		p.Supplier = s.toDomain()
	}

	out := make([]domain.Entity, len(profiles))
	for i, p := range profiles {
		out[i] = p
	}
	return out, nil
}

func (profileTable) save(ctx context.Context, ex sqlx.ExtContext, e domain.Entity) error {
	p, ok := e.(*domain.Profile)
	if !ok {
		return unexpected("profiles", e)
	}

	query := ex.Rebind(`
		INSERT INTO profiles (
			id, owner_id, updated_at, deleted, dirty,
			business_name, contact_name, phone, email
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			business_name = excluded.business_name,
			contact_name = excluded.contact_name,
			phone = excluded.phone,
			email = excluded.email`)

	_, err := ex.ExecContext(ctx, query,
		p.ID,
		p.OwnerID,
		p.UpdatedAt,
		p.Deleted,
		p.Dirty,
		p.BusinessName,
		p.ContactName,
		p.Phone,
		p.Email,
	)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.ID, err)
	}

	if err := dropChildren(ctx, ex, "locations", "profile_id", p.ID); err != nil {
		return fmt.Errorf("drop locations of %s: %w", p.ID, err)
	}

	locationQuery := ex.Rebind(`
		INSERT INTO locations (id, profile_id, label, address, latitude, longitude, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			profile_id = excluded.profile_id,
			label = excluded.label,
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			deleted = excluded.deleted`)
	for _, l := range p.Locations {
		_, err := ex.ExecContext(ctx, locationQuery,
			l.ID, p.ID, l.Label, l.Address, l.Latitude, l.Longitude, l.Deleted || p.Deleted,
		)
		if err != nil {
			return fmt.Errorf("upsert location %s: %w", l.ID, err)
		}
	}

	// the profile owns at most one supplier: retire any other
	keep := ""
	if p.Supplier != nil {
		keep = p.Supplier.ID
	}
	_, err = ex.ExecContext(ctx,
		ex.Rebind(`UPDATE suppliers SET deleted = ? WHERE profile_id = ? AND id <> ?`),
		true, p.ID, keep,
	)
	if err != nil {
		return fmt.Errorf("retire suppliers of %s: %w", p.ID, err)
	}

	if p.Supplier != nil {
		s := *p.Supplier
		s.ProfileID = p.ID
		if s.OwnerID == "" {
			s.OwnerID = p.OwnerID
		}
		if s.UpdatedAt == 0 {
			s.UpdatedAt = p.UpdatedAt
		}
		s.Deleted = s.Deleted || p.Deleted
		s.Dirty = false
		if err := upsertSupplier(ctx, ex, &s); err != nil {
			return err
		}
	}

	return nil
}

func (profileTable) cascade(ctx context.Context, ex sqlx.ExtContext, id string) error {
	if err := tombstoneChildren(ctx, ex, "locations", "profile_id", id); err != nil {
		return fmt.Errorf("tombstone locations of %s: %w", id, err)
	}
	if err := tombstoneChildren(ctx, ex, "suppliers", "profile_id", id); err != nil {
		return fmt.Errorf("tombstone supplier of %s: %w", id, err)
	}
	return nil
}

func (r profileRow) toDomain() *domain.Profile {
	return &domain.Profile{
		Meta:         r.metaRow.toDomain(),
		BusinessName: r.BusinessName,
		ContactName:  r.ContactName,
		Phone:        r.Phone,
		Email:        r.Email,
	}
}
