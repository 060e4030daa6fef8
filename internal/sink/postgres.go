package sink

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/groblegark/footfall/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresSink writes cycle records to PostgreSQL, the query store the
// dashboard reads from. Optional: most deployments run JSONL-only and
// load the database off-box.
type PostgresSink struct {
	db *sql.DB
}

// Compile-time check that PostgresSink implements Sink.
var _ Sink = (*PostgresSink)(nil)

// NewPostgresSink opens a connection to the database at the given URL,
// configures the connection pool, and runs any pending migrations.
func NewPostgresSink(databaseURL string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The sink sees one insert per logged cycle; a tiny pool is plenty
	// on sensor hardware.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresSink{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

const insertRecordQuery = `
	INSERT INTO cycle_records (ts, run_id, cycle, transient_count, stationary_count, tokens_transient)
	VALUES ($1, $2, $3, $4, $5, $6)`

// Persist inserts one record.
func (s *PostgresSink) Persist(ctx context.Context, rec *model.CycleRecord) error {
	tokens, err := json.Marshal(rec.TokensTransient)
	if err != nil {
		return fmt.Errorf("marshaling tokens: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insertRecordQuery,
		rec.Timestamp, rec.RunID, rec.Cycle,
		rec.TransientCount, rec.StationaryCount, tokens,
	)
	if err != nil {
		return fmt.Errorf("insert cycle record: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
