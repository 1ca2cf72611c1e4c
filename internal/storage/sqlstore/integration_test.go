//go:build integration

package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"bizsync/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := Open(s.ctx, Config{Driver: DriverPostgres, DSN: connStr})
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	for _, table := range []string{
		"variants", "prices", "offering_sources", "offerings", "locations", "suppliers",
		"profiles", "catalog_categories", "deliveries", "bills", "sync_checkpoints", "secrets",
	} {
		_, _ = s.db.ExecContext(s.ctx, "DELETE FROM "+table)
	}
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestStore_OfferingRoundTrip() {
	store := NewStore(s.db)

	o := testOffering("o1", 100)
	o.Dirty = true
	s.Require().NoError(store.Upsert(s.ctx, domain.CategoryOfferings, o))

	got, err := store.Get(s.ctx, domain.CategoryOfferings, "o1")
	s.Require().NoError(err)

	stored := got.(*domain.Offering)
	s.Equal("Tomatoes o1", stored.Name)
	s.True(stored.Dirty)
	s.Len(stored.Variants, 2)
	s.Len(stored.Prices, 1)
	s.Len(stored.Sources, 1)
}

func (s *PostgresIntegrationSuite) TestStore_DirtyQueryAndClear() {
	store := NewStore(s.db)

	for i, id := range []string{"b1", "b2", "b3"} {
		b := &domain.Bill{
			Meta:         domain.Meta{ID: id, OwnerID: "U1", UpdatedAt: int64(10 * (i + 1)), Dirty: i != 1},
			CustomerName: "Customer " + id,
		}
		s.Require().NoError(store.Upsert(s.ctx, domain.CategoryBills, b))
	}

	dirty, err := store.Query(s.ctx, domain.CategoryBills, domain.Query{OwnerID: "U1", DirtyOnly: true})
	s.Require().NoError(err)
	s.Len(dirty, 2)

	n, err := store.ClearDirty(s.ctx, domain.CategoryBills, domain.MarksOf(dirty))
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	dirty, err = store.Query(s.ctx, domain.CategoryBills, domain.Query{OwnerID: "U1", DirtyOnly: true})
	s.Require().NoError(err)
	s.Empty(dirty)
}

func (s *PostgresIntegrationSuite) TestStore_DeleteCascades() {
	store := NewStore(s.db)
	s.Require().NoError(store.Upsert(s.ctx, domain.CategoryOfferings, testOffering("o1", 100)))
	s.Require().NoError(store.Delete(s.ctx, domain.CategoryOfferings, "o1", 200))

	var live int
	err := s.db.GetContext(s.ctx, &live, "SELECT COUNT(*) FROM variants WHERE offering_id = $1 AND deleted = FALSE", "o1")
	s.NoError(err)
	s.Zero(live)
}

func (s *PostgresIntegrationSuite) TestCheckpointStore_Monotonic() {
	store := NewCheckpointStore(s.db)

	advanced, err := store.Set(s.ctx, "U1", domain.CategoryProfile, 100)
	s.NoError(err)
	s.True(advanced)

	advanced, err = store.Set(s.ctx, "U1", domain.CategoryProfile, 50)
	s.NoError(err)
	s.False(advanced)

	ts, err := store.Get(s.ctx, "U1", domain.CategoryProfile)
	s.NoError(err)
	s.Equal(int64(100), ts)
}

func (s *PostgresIntegrationSuite) TestSecretStore_Upsert() {
	store := NewSecretStore(s.db)
	s.NoError(store.Set(s.ctx, "token", "a"))
	s.NoError(store.Set(s.ctx, "token", "b"))

	v, err := store.Get(s.ctx, "token")
	s.NoError(err)
	s.Equal("b", v)
}
