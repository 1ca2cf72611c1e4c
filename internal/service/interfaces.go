package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"bizsync/internal/domain"
)

type RecordStore interface {
	Query(ctx context.Context, category domain.Category, q domain.Query) ([]domain.Entity, error)
	Get(ctx context.Context, category domain.Category, id string) (domain.Entity, error)
	Upsert(ctx context.Context, category domain.Category, e domain.Entity) error
}

type DirtyTracker interface {
	ListDirty(ctx context.Context, category domain.Category, ownerID string) ([]domain.Entity, error)
	ClearDirty(ctx context.Context, category domain.Category, marks []domain.DirtyMark) (int64, error)
}

type CheckpointStore interface {
	Get(ctx context.Context, ownerID string, category domain.Category) (int64, error)
	Set(ctx context.Context, ownerID string, category domain.Category, ts int64) (bool, error)
	Clear(ctx context.Context, ownerID string, categories ...domain.Category) error
	List(ctx context.Context, ownerID string) (map[domain.Category]int64, error)
}

type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

type RemoteClient interface {
	Push(ctx context.Context, category domain.Category, ownerID string, records []domain.Entity) (*domain.PushAck, error)
	Pull(ctx context.Context, req domain.PullRequest) ([]domain.Entity, error)
}

type SessionProvider interface {
	Session(ctx context.Context) (*domain.Session, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishReport(ctx context.Context, report *domain.SyncReport) error
	Close() error
}
