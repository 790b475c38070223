// Package testutil provides integration test helpers for the storage backends.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/cory-johannsen/initiative/internal/config"
	"github.com/cory-johannsen/initiative/internal/storage/postgres"
)

const postgresImage = "postgres:16-alpine"

// PostgresContainer is a disposable PostgreSQL server holding the tracker schema.
type PostgresContainer struct {
	Pool   *postgres.Pool
	Config config.DatabaseConfig
	dsn    string
}

// NewPostgresContainer starts PostgreSQL, applies the migrations and connects
// a pool. The test is skipped when no container runtime is reachable.
//
// Postcondition: The encounters and combatants tables exist and are empty.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()
	start := time.Now()

	ctr, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("tracker"),
		tcpostgres.WithUsername("tracker"),
		tcpostgres.WithPassword("tracker"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("building connection string: %v", err)
	}
	if err := postgres.MigrateUp(dsn); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}
	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "tracker",
		Password:        "tracker",
		Name:            "tracker",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	t.Logf("postgres ready with migrations [%s]", time.Since(start))
	return &PostgresContainer{Pool: pool, Config: cfg, dsn: dsn}
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return pc.dsn
}

// Truncate empties every tracker table.
func (pc *PostgresContainer) Truncate(t *testing.T) {
	t.Helper()
	if _, err := pc.Pool.DB().Exec(context.Background(), `TRUNCATE combatants, encounters RESTART IDENTITY`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}

// Store empties the tables and returns an EncounterStore over the pool.
func (pc *PostgresContainer) Store(t *testing.T) *postgres.EncounterStore {
	t.Helper()
	pc.Truncate(t)
	return postgres.NewEncounterStore(pc.Pool.DB())
}
