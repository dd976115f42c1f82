// Package postgres provides the Postgres-backed lead store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cantikdist/edge-intake/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for lead rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Leads writes and reads lead rows in Postgres.
type Leads struct {
	pool  pool
	table string
}

// New creates a Postgres-backed lead store using the provided config.
func New(ctx context.Context, cfg Config) (*Leads, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "leads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Leads{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Leads, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "leads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Leads{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Leads) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Insert writes one lead row. The idempotency key is unique; a conflict
// means a replayed submission and reports false with no error.
func (s *Leads) Insert(ctx context.Context, rec pipeline.Record) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("lead store is not configured")
	}
	if rec.ID == "" {
		return false, fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	idempotency_key,
	business_name,
	contact_name,
	phone,
	city,
	category,
	email,
	message,
	instagram,
	referral_source,
	initial_page_url,
	current_page_url,
	user_agent,
	forwarded_for,
	real_ip,
	submitted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
) ON CONFLICT (idempotency_key) DO NOTHING`, s.table)

	args := []any{
		rec.ID,
		rec.IdempotencyKey,
		rec.Lead.BusinessName,
		rec.Lead.ContactName,
		rec.Lead.NormalizedPhone,
		rec.Lead.City,
		rec.Lead.Category,
		rec.Lead.Email,
		rec.Lead.Message,
		rec.Lead.Instagram,
		rec.Lead.ReferralSource,
		rec.Lead.InitialPageURL,
		rec.Lead.CurrentPageURL,
		rec.Client.UserAgent,
		rec.Client.ForwardedFor,
		rec.Client.RealIP,
		rec.SubmittedAt,
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert lead: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExportRow is one lead as surfaced by the export endpoint.
type ExportRow struct {
	ID           string
	BusinessName string
	ContactName  string
	Phone        string
	City         string
	Category     string
	Email        string
	SubmittedAt  time.Time
}

// List returns lead rows newest first, bounded by limit/offset.
func (s *Leads) List(ctx context.Context, limit, offset int) ([]ExportRow, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("lead store is not configured")
	}
	query := fmt.Sprintf(`
SELECT id, business_name, contact_name, phone, city, category, email, submitted_at
FROM %s
ORDER BY submitted_at DESC
LIMIT $1 OFFSET $2`, s.table)

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []ExportRow
	for rows.Next() {
		var row ExportRow
		if err := rows.Scan(
			&row.ID,
			&row.BusinessName,
			&row.ContactName,
			&row.Phone,
			&row.City,
			&row.Category,
			&row.Email,
			&row.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead rows: %w", err)
	}
	return out, nil
}

// Ping reports whether the store is reachable.
func (s *Leads) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("lead store is not configured")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
