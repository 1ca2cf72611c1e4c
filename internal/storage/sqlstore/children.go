package sqlstore

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// loadChildren selects every row of table whose parent key is in parentIDs.
func loadChildren[T any](ctx context.Context, ex sqlx.ExtContext, table, columns, parentKey string, parentIDs []string) ([]T, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+columns+" FROM "+table+" WHERE "+parentKey+" IN (?) ORDER BY "+parentKey+", id",
		parentIDs,
	)
	if err != nil {
		return nil, err
	}

	var rows []T
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(query), args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// dropChildren removes the child rows of a parent before they are rewritten.
func dropChildren(ctx context.Context, ex sqlx.ExtContext, table, parentKey, parentID string) error {
	_, err := ex.ExecContext(ctx, ex.Rebind("DELETE FROM "+table+" WHERE "+parentKey+" = ?"), parentID)
	return err
}

// tombstoneChildren marks every child row of a parent as deleted.
func tombstoneChildren(ctx context.Context, ex sqlx.ExtContext, table, parentKey, parentID string) error {
	_, err := ex.ExecContext(ctx, ex.Rebind("UPDATE "+table+" SET deleted = ? WHERE "+parentKey+" = ?"), true, parentID)
	return err
}
