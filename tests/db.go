package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/abiaedu/portal/storage/database"
)

// mutable tables, children first
var tables = []string{"activity_log", "facts", "submissions", "users"}

// TestDB is a migrated throwaway postgres database.
type TestDB struct {
	DB        *sqlx.DB
	DSN       string
	container *postgres.PostgresContainer
}

// OpenDB starts a postgres container, or reuses TEST_DATABASE_URL when set, and migrates it.
func OpenDB(ctx context.Context) (*TestDB, error) {
	tdb := new(TestDB)
	tdb.DSN = os.Getenv("TEST_DATABASE_URL")
	if tdb.DSN == "" {
		ctr, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("abia"),
			postgres.WithUsername("abia"),
			postgres.WithPassword("abia"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			return nil, errors.Wrap(err, "starting postgres container")
		}
		tdb.container = ctr
		if tdb.DSN, err = ctr.ConnectionString(ctx, "sslmode=disable"); err != nil {
			tdb.Close(ctx)
			return nil, errors.Wrap(err, "resolving connection string")
		}
	}

	db, err := sqlx.Open("postgres", tdb.DSN)
	if err != nil {
		tdb.Close(ctx)
		return nil, errors.Wrap(err, "opening database")
	}
	tdb.DB = db
	if err = database.Migrate(db.DB); err != nil {
		tdb.Close(ctx)
		return nil, err
	}
	return tdb, nil
}

// Reset truncates every mutable table. The seeded districts stay.
func (tdb *TestDB) Reset(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, tdb.DSN)
	if err != nil {
		t.Fatalf("ResetDB(): %v", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err = conn.Exec(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE"); err != nil {
		t.Fatalf("ResetDB(): %v", err)
	}
}

func (tdb *TestDB) Close(ctx context.Context) {
	if tdb.DB != nil {
		_ = tdb.DB.Close()
	}
	if tdb.container != nil {
		_ = tdb.container.Terminate(context.Background())
	}
}

// RunWithDB runs m against a fresh database and exits. Without docker nor TEST_DATABASE_URL the
// tests run with a nil database and are expected to skip via RequireDB.
func RunWithDB(m interface{ Run() int }, tdb **TestDB) int {
	ctx := context.Background()
	db, err := OpenDB(ctx)
	if err != nil {
		skipReason = err.Error()
		return m.Run()
	}
	*tdb = db
	defer db.Close(ctx)
	return m.Run()
}

var skipReason string

// RequireDB skips t when no database could be started.
func RequireDB(t *testing.T, tdb *TestDB) {
	t.Helper()
	if tdb == nil {
		t.Skipf("postgres unavailable: %s", skipReason)
	}
}
