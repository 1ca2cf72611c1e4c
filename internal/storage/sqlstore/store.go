package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"bizsync/internal/domain"
)

// table maps one category onto its SQL tables.
type table interface {
	name() string
	// scope restricts a shared table to the rows of one category.
	scope() (string, []any)
	sortColumns() map[string]string
	load(ctx context.Context, ex sqlx.ExtContext, clause string, args []any) ([]domain.Entity, error)
	save(ctx context.Context, ex sqlx.ExtContext, e domain.Entity) error
	cascade(ctx context.Context, ex sqlx.ExtContext, id string) error
}

// Store is the category-addressed record store used by the tracker and the
// sync engine.
type Store struct {
	db     *sqlx.DB
	tx     *TransactionManager
	tables map[domain.Category]table
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db: db,
		tx: NewTransactionManager(db),
		tables: map[domain.Category]table{
			domain.CategoryProfile:        profileTable{},
			domain.CategoryCategories:     categoryTable{},
			domain.CategorySuppliers:      supplierTable{},
			domain.CategoryOfferings:      offeringTable{linked: false},
			domain.CategoryLinkedOffering: offeringTable{linked: true},
			domain.CategoryDeliveries:     deliveryTable{},
			domain.CategoryBills:          billTable{},
		},
	}
}

func (s *Store) table(category domain.Category) (table, error) {
	t, ok := s.tables[category]
	if !ok {
		return nil, fmt.Errorf("no table for category %q", category)
	}
	return t, nil
}

// Query returns the records of category matching q. Tombstones are
// excluded unless q.IncludeDeleted is set.
func (s *Store) Query(ctx context.Context, category domain.Category, q domain.Query) ([]domain.Entity, error) {
	t, err := s.table(category)
	if err != nil {
		return nil, err
	}
	if q.IDs != nil && len(q.IDs) == 0 {
		return nil, nil
	}

	conds, args := s.conditions(t, q)

	order, err := orderBy(t, q)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(order)
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(q.Limit))
	}

	clause, args, err := sqlx.In(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	return t.load(ctx, GetExecutor(ctx, s.db), clause, args)
}

func (s *Store) conditions(t table, q domain.Query) ([]string, []any) {
	var conds []string
	var args []any

	if pred, pargs := t.scope(); pred != "" {
		conds = append(conds, pred)
		args = append(args, pargs...)
	}
	if q.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if !q.IncludeDeleted {
		conds = append(conds, "deleted = ?")
		args = append(args, false)
	}
	if q.DirtyOnly {
		conds = append(conds, "dirty = ?")
		args = append(args, true)
	}
	if len(q.IDs) > 0 {
		conds = append(conds, "id IN (?)")
		args = append(args, q.IDs)
	}
	return conds, args
}

func orderBy(t table, q domain.Query) (string, error) {
	column := "updated_at"
	if q.SortBy != "" {
		c, ok := t.sortColumns()[q.SortBy]
		if !ok {
			return "", fmt.Errorf("unsupported sort key %q for %s", q.SortBy, t.name())
		}
		column = c
	}

	dir := " ASC"
	if q.Descending {
		dir = " DESC"
	}
	return " ORDER BY " + column + dir + ", id" + dir, nil
}

// Get resolves a record by ID, tombstones included.
func (s *Store) Get(ctx context.Context, category domain.Category, id string) (domain.Entity, error) {
	found, err := s.Query(ctx, category, domain.Query{IDs: []string{id}, IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.ErrNotFound
	}
	return found[0], nil
}

// Upsert inserts e or fully replaces the stored record with the same ID,
// children included.
func (s *Store) Upsert(ctx context.Context, category domain.Category, e domain.Entity) error {
	t, err := s.table(category)
	if err != nil {
		return err
	}
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return t.save(ctx, GetExecutor(ctx, s.db), e)
	})
}

// Delete tombstones the record and its children. The record becomes dirty
// with updatedAt as its new version.
func (s *Store) Delete(ctx context.Context, category domain.Category, id string, updatedAt int64) error {
	t, err := s.table(category)
	if err != nil {
		return err
	}

	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		ex := GetExecutor(ctx, s.db)

		query := `UPDATE ` + t.name() + ` SET deleted = ?, dirty = ?, updated_at = ? WHERE id = ?`
		args := []any{true, true, updatedAt, id}
		if pred, pargs := t.scope(); pred != "" {
			query += " AND " + pred
			args = append(args, pargs...)
		}

		res, err := ex.ExecContext(ctx, ex.Rebind(query), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}

		return t.cascade(ctx, ex, id)
	})
}

// ClearDirty clears the dirty flag of every record still at the version
// captured in marks. Records edited since are left dirty.
func (s *Store) ClearDirty(ctx context.Context, category domain.Category, marks []domain.DirtyMark) (int64, error) {
	t, err := s.table(category)
	if err != nil {
		return 0, err
	}
	if len(marks) == 0 {
		return 0, nil
	}

	var cleared int64
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		ex := GetExecutor(ctx, s.db)
		query := ex.Rebind(`UPDATE ` + t.name() + ` SET dirty = ? WHERE id = ? AND updated_at = ? AND dirty = ?`)

		for _, m := range marks {
			res, err := ex.ExecContext(ctx, query, false, m.ID, m.UpdatedAt, true)
			if err != nil {
				return fmt.Errorf("clear dirty %s: %w", m.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			cleared += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cleared, nil
}

type metaRow struct {
	ID        string `db:"id"`
	OwnerID   string `db:"owner_id"`
	UpdatedAt int64  `db:"updated_at"`
	Deleted   bool   `db:"deleted"`
	Dirty     bool   `db:"dirty"`
}

func (r metaRow) toDomain() domain.Meta {
	return domain.Meta{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		UpdatedAt: r.UpdatedAt,
		Deleted:   r.Deleted,
		Dirty:     r.Dirty,
	}
}

const metaColumns = "id, owner_id, updated_at, deleted, dirty"

var errUnexpectedEntity = errors.New("unexpected entity type")

func unexpected(table string, e domain.Entity) error {
	return fmt.Errorf("%s: %w %T", table, errUnexpectedEntity, e)
}
