package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql

	"github.com/fathomsearch/fathom/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresConfig holds connection settings for the audit database.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the pgx-compatible connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// PostgresSink persists audit records to Postgres. Migrations are embedded
// and applied on construction.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink opens the connection pool, verifies connectivity, and
// applies pending migrations.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// NewPostgresSinkFromDB wraps an existing connection and applies
// migrations. Used by integration tests.
func NewPostgresSinkFromDB(db *sql.DB, database string) (*PostgresSink, error) {
	if err := runMigrations(db, database); err != nil {
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func runMigrations(db *sql.DB, database string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Close only the source driver: closing m would also close the shared
	// *sql.DB passed through postgres.WithInstance.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, rec *models.AuditRecord) error {
	budget, err := json.Marshal(rec.Budget)
	if err != nil {
		return fmt.Errorf("marshal budget: %w", err)
	}
	lanes, err := json.Marshal(orEmpty(rec.Lanes))
	if err != nil {
		return fmt.Errorf("marshal lanes: %w", err)
	}
	docIDs, err := json.Marshal(orEmpty(rec.FusedDocIDs))
	if err != nil {
		return fmt.Errorf("marshal fused doc ids: %w", err)
	}
	sentences, err := json.Marshal(orEmpty(rec.Sentences))
	if err != nil {
		return fmt.Errorf("marshal sentences: %w", err)
	}
	citations, err := json.Marshal(orEmpty(rec.Citations))
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	bibliography, err := json.Marshal(orEmpty(rec.Bibliography))
	if err != nil {
		return fmt.Errorf("marshal bibliography: %w", err)
	}
	disagreements, err := json.Marshal(orEmpty(rec.Disagreements))
	if err != nil {
		return fmt.Errorf("marshal disagreements: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			trace_id, query_id, query_text, mode, budget, lanes,
			fused_doc_ids, sentences, citations, bibliography, disagreements,
			total_latency_ms, ttft_ms, answered_under_sla, partial, cancelled, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (trace_id) DO NOTHING`,
		rec.TraceID, rec.QueryID, rec.QueryText, string(rec.Mode), budget, lanes,
		docIDs, sentences, citations, bibliography, disagreements,
		rec.TotalLatencyMS, rec.TTFTMS, rec.AnsweredUnderSLA, rec.Partial, rec.Cancelled, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	if affected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresSink) Get(ctx context.Context, traceID string) (*models.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trace_id, query_id, query_text, mode, budget, lanes,
		       fused_doc_ids, sentences, citations, bibliography, disagreements,
		       total_latency_ms, ttft_ms, answered_under_sla, partial, cancelled, created_at
		FROM audit_records WHERE trace_id = $1`, traceID)

	var rec models.AuditRecord
	var mode string
	var budget, lanes, docIDs, sentences, citations, bibliography, disagreements []byte
	err := row.Scan(
		&rec.TraceID, &rec.QueryID, &rec.QueryText, &mode, &budget, &lanes,
		&docIDs, &sentences, &citations, &bibliography, &disagreements,
		&rec.TotalLatencyMS, &rec.TTFTMS, &rec.AnsweredUnderSLA, &rec.Partial, &rec.Cancelled, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit record: %w", err)
	}

	rec.Mode = models.Mode(mode)
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{budget, &rec.Budget},
		{lanes, &rec.Lanes},
		{docIDs, &rec.FusedDocIDs},
		{sentences, &rec.Sentences},
		{citations, &rec.Citations},
		{bibliography, &rec.Bibliography},
		{disagreements, &rec.Disagreements},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode audit record %s: %w", traceID, err)
		}
	}
	return &rec, nil
}

func (s *PostgresSink) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep audit records: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// orEmpty keeps JSON columns as [] rather than null for nil slices.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var _ Sink = (*PostgresSink)(nil)
