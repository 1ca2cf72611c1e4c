package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"bizsync/internal/domain"
)

// SecretStore is an opaque key/value store for session credentials.
type SecretStore struct {
	db *sqlx.DB
}

func NewSecretStore(db *sqlx.DB) *SecretStore {
	return &SecretStore{db: db}
}

// Get returns domain.ErrNotFound when key is not set.
func (s *SecretStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	query := s.db.Rebind(`SELECT value FROM secrets WHERE key = ?`)
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &value, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SecretStore) Set(ctx context.Context, key, value string) error {
	query := s.db.Rebind(`
		INSERT INTO secrets (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, key, value)
	return err
}

func (s *SecretStore) Delete(ctx context.Context, key string) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, s.db.Rebind(`DELETE FROM secrets WHERE key = ?`), key)
	return err
}

func (s *SecretStore) Clear(ctx context.Context) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM secrets`)
	return err
}
