package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"bizsync/internal/domain"
)

type deliveryTable struct{}

type deliveryRow struct {
	metaRow
	BillID       string `db:"bill_id"`
	CustomerName string `db:"customer_name"`
	Address      string `db:"address"`
	Status       string `db:"status"`
	ScheduledAt  int64  `db:"scheduled_at"`
}

const deliveryColumns = metaColumns + ", bill_id, customer_name, address, status, scheduled_at"

func (deliveryTable) name() string { return "deliveries" }

func (deliveryTable) scope() (string, []any) { return "", nil }

func (deliveryTable) sortColumns() map[string]string {
	return map[string]string{
		"updated_at":   "updated_at",
		"scheduled_at": "scheduled_at",
		"status":       "status",
	}
}

func (deliveryTable) load(ctx context.Context, ex sqlx.ExtContext, clause string, args []any) ([]domain.Entity, error) {
	var rows []deliveryRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind("SELECT "+deliveryColumns+" FROM deliveries"+clause), args...); err != nil {
		return nil, fmt.Errorf("select deliveries: %w", err)
	}

	out := make([]domain.Entity, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.Delivery{
			Meta:         r.metaRow.toDomain(),
			BillID:       r.BillID,
			CustomerName: r.CustomerName,
			Address:      r.Address,
			Status:       r.Status,
			ScheduledAt:  r.ScheduledAt,
		})
	}
	return out, nil
}

func (deliveryTable) save(ctx context.Context, ex sqlx.ExtContext, e domain.Entity) error {
	d, ok := e.(*domain.Delivery)
	if !ok {
		return unexpected("deliveries", e)
	}

	query := ex.Rebind(`
		INSERT INTO deliveries (
			id, owner_id, updated_at, deleted, dirty,
			bill_id, customer_name, address, status, scheduled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			bill_id = excluded.bill_id,
			customer_name = excluded.customer_name,
			address = excluded.address,
			status = excluded.status,
			scheduled_at = excluded.scheduled_at`)

	_, err := ex.ExecContext(ctx, query,
		d.ID, d.OwnerID, d.UpdatedAt, d.Deleted, d.Dirty,
		d.BillID, d.CustomerName, d.Address, d.Status, d.ScheduledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert delivery %s: %w", d.ID, err)
	}
	return nil
}

func (deliveryTable) cascade(context.Context, sqlx.ExtContext, string) error { return nil }

type billTable struct{}

type billRow struct {
	metaRow
	CustomerName string `db:"customer_name"`
	TotalMinor   int64  `db:"total_minor"`
	Currency     string `db:"currency"`
	Status       string `db:"status"`
	IssuedAt     int64  `db:"issued_at"`
}

const billColumns = metaColumns + ", customer_name, total_minor, currency, status, issued_at"

func (billTable) name() string { return "bills" }

func (billTable) scope() (string, []any) { return "", nil }

func (billTable) sortColumns() map[string]string {
	return map[string]string{
		"updated_at": "updated_at",
		"issued_at":  "issued_at",
		"status":     "status",
	}
}

func (billTable) load(ctx context.Context, ex sqlx.ExtContext, clause string, args []any) ([]domain.Entity, error) {
	var rows []billRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind("SELECT "+billColumns+" FROM bills"+clause), args...); err != nil {
		return nil, fmt.Errorf("select bills: %w", err)
	}

	out := make([]domain.Entity, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.Bill{
			Meta:         r.metaRow.toDomain(),
			CustomerName: r.CustomerName,
			TotalMinor:   r.TotalMinor,
			Currency:     r.Currency,
			Status:       r.Status,
			IssuedAt:     r.IssuedAt,
		})
	}
	return out, nil
}

func (billTable) save(ctx context.Context, ex sqlx.ExtContext, e domain.Entity) error {
	b, ok := e.(*domain.Bill)
	if !ok {
		return unexpected("bills", e)
	}

	query := ex.Rebind(`
		INSERT INTO bills (
			id, owner_id, updated_at, deleted, dirty,
			customer_name, total_minor, currency, status, issued_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			customer_name = excluded.customer_name,
			total_minor = excluded.total_minor,
			currency = excluded.currency,
			status = excluded.status,
			issued_at = excluded.issued_at`)

	_, err := ex.ExecContext(ctx, query,
		b.ID, b.OwnerID, b.UpdatedAt, b.Deleted, b.Dirty,
		b.CustomerName, b.TotalMinor, b.Currency, b.Status, b.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert bill %s: %w", b.ID, err)
	}
	return nil
}

func (billTable) cascade(context.Context, sqlx.ExtContext, string) error { return nil }
