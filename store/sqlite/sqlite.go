/*
Package sqlite provides a SQLite-backed implementation of every storage
interface in the module.

PURPOSE:
  One Store value serves the commission resolver, earnings ledger, points
  engine, delivery workflow, ad partnership engine, awards calculator and
  the user/product directory. In production the same patterns apply to
  PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  commission.Store   base rate, promotions
  earnings.Store     earning records and their lines
  rewards.Store      points accounts and the transaction ledger
  delivery.Store     deliveries with conditional updates
  adpartner.Store    partnerships and ad earnings
  awards.Store       month stats, trainer awards, award runs
  delivery.Directory, delivery.Catalog, notify.Directory

IDEMPOTENCY GUARDS (unique indexes):
  earnings.order_id                               one record per order
  point_transactions.idempotency_key              one award per key
  deliveries(order_id, order_item_id)             one delivery per line
  ad_earnings(partnership_id, period_start)       one earning per period
  trainer_awards(trainer_id, award_type, award_key)

CONCURRENCY:
  sync.RWMutex for reads vs writes within the process, and every state
  transition is an UPDATE guarded by the expected state, checked through
  RowsAffected. Point writes run in one SQL transaction under the write
  lock, so a trainer's balance chain cannot interleave.

TIME:
  Instants are stored as fixed-width UTC text (timeLayout), so string
  comparison in SQL is chronological.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

USAGE:
  store, err := sqlite.New("./data/earnings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: ":memory:" databases are per connection, and SQLite
	// has a single writer anyway
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Platform settings (base commission rate)
	CREATE TABLE IF NOT EXISTS platform_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Product promotions (Special Product Fees)
	CREATE TABLE IF NOT EXISTS promotions (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		bonus_rate TEXT NOT NULL,
		valid_from TEXT,
		valid_until TEXT,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_promotions_product
		ON promotions(product_id);

	-- User directory
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_role
		ON users(role);

	-- Product catalog
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		requires_trainer_delivery BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Earning records (one per order, immutable except status)
	CREATE TABLE IF NOT EXISTS earnings (
		order_id TEXT PRIMARY KEY,
		trainer_id TEXT NOT NULL,
		bundle_id TEXT,
		bundle_title TEXT,
		client_id TEXT,
		client_name TEXT,
		product_commission TEXT NOT NULL,
		service_revenue TEXT NOT NULL,
		total_earnings TEXT NOT NULL,
		order_total TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_earnings_trainer_date
		ON earnings(trainer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_earnings_trainer_client
		ON earnings(trainer_id, client_id, created_at);

	-- Per-line earnings (product attribution)
	CREATE TABLE IF NOT EXISTS earning_lines (
		order_id TEXT NOT NULL REFERENCES earnings(order_id),
		item_id TEXT NOT NULL,
		line_type TEXT NOT NULL,
		product_id TEXT,
		name TEXT,
		quantity INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		amount TEXT NOT NULL,
		rate TEXT NOT NULL,
		earnings TEXT NOT NULL,
		promotion_id TEXT,
		PRIMARY KEY (order_id, item_id)
	);

	-- Points accounts (created lazily)
	CREATE TABLE IF NOT EXISTS points_accounts (
		trainer_id TEXT PRIMARY KEY,
		total_points INTEGER NOT NULL DEFAULT 0,
		lifetime_points INTEGER NOT NULL DEFAULT 0,
		current_tier TEXT NOT NULL DEFAULT 'bronze',
		ytd_points INTEGER NOT NULL DEFAULT 0,
		ytd_revenue TEXT NOT NULL DEFAULT '0',
		ytd_year INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Point transactions (append-only ledger, seq gives chain order)
	CREATE TABLE IF NOT EXISTS point_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		trainer_id TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		points INTEGER NOT NULL,
		reference_type TEXT,
		reference_id TEXT,
		description TEXT,
		balance_before INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL,
		CHECK (balance_after = balance_before + points)
	);

	CREATE INDEX IF NOT EXISTS idx_point_transactions_trainer
		ON point_transactions(trainer_id, seq DESC);

	-- Deliveries
	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		order_item_id TEXT NOT NULL,
		trainer_id TEXT NOT NULL,
		client_id TEXT,
		product_id TEXT,
		product_name TEXT,
		quantity INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'pending',
		scheduled_date TEXT,
		delivered_at TEXT,
		confirmed_at TEXT,
		disputed_at TEXT,
		delivery_method TEXT,
		tracking_number TEXT,
		delivery_notes TEXT,
		client_notes TEXT,
		issue_notes TEXT,
		resolved_at TEXT,
		resolved_by TEXT,
		resolution_type TEXT,
		resolution_notes TEXT,
		reschedule_status TEXT NOT NULL DEFAULT 'none',
		proposed_date TEXT,
		reschedule_reason TEXT,
		reschedule_response TEXT,
		reschedule_requested_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_deliveries_order_item
		ON deliveries(order_id, order_item_id);
	CREATE INDEX IF NOT EXISTS idx_deliveries_trainer_status
		ON deliveries(trainer_id, status);
	CREATE INDEX IF NOT EXISTS idx_deliveries_client
		ON deliveries(client_id);

	-- Ad partnerships (package fields are a snapshot)
	CREATE TABLE IF NOT EXISTS ad_partnerships (
		id TEXT PRIMARY KEY,
		trainer_id TEXT NOT NULL,
		business_id TEXT NOT NULL,
		package_tier TEXT NOT NULL,
		monthly_fee TEXT NOT NULL,
		trainer_commission_rate TEXT NOT NULL,
		bonus_points_awarded INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		renewal_date TEXT NOT NULL,
		auto_renew INTEGER NOT NULL DEFAULT 1,
		approved_by TEXT,
		approved_at TEXT,
		cancelled_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ad_partnerships_trainer
		ON ad_partnerships(trainer_id);
	CREATE INDEX IF NOT EXISTS idx_ad_partnerships_status
		ON ad_partnerships(status, renewal_date);

	CREATE TABLE IF NOT EXISTS ad_earnings (
		id TEXT PRIMARY KEY,
		trainer_id TEXT NOT NULL,
		partnership_id TEXT NOT NULL REFERENCES ad_partnerships(id),
		business_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		monthly_fee TEXT NOT NULL,
		commission_rate TEXT NOT NULL,
		commission_earned TEXT NOT NULL,
		bonus_points INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_ad_earnings_period
		ON ad_earnings(partnership_id, period_start);
	CREATE INDEX IF NOT EXISTS idx_ad_earnings_trainer
		ON ad_earnings(trainer_id);

	-- Trainer awards
	CREATE TABLE IF NOT EXISTS trainer_awards (
		id TEXT PRIMARY KEY,
		trainer_id TEXT NOT NULL,
		award_type TEXT NOT NULL,
		award_key TEXT NOT NULL,
		title TEXT NOT NULL,
		points INTEGER NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		milestone INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_trainer_awards_identity
		ON trainer_awards(trainer_id, award_type, award_key);
	CREATE INDEX IF NOT EXISTS idx_trainer_awards_month
		ON trainer_awards(year, month);

	-- Award runs (one row per ProcessMonthlyAwards call)
	CREATE TABLE IF NOT EXISTS award_runs (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		awards_granted INTEGER DEFAULT 0,
		points_granted INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_award_runs_month
		ON award_runs(year, month, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction while holding the write lock.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// USERS AND PRODUCTS (delivery.Directory, delivery.Catalog, notify.Directory)
// =============================================================================

// SaveUser inserts or replaces a directory entry.
func (s *Store) SaveUser(ctx context.Context, u generic.User) error {
	if !u.Role.Valid() {
		return generic.Invalid("role", "unknown role "+string(u.Role))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, phone, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, role = excluded.role,
			phone = excluded.phone, email = excluded.email
	`, u.ID, u.Name, string(u.Role), nullString(u.Phone), nullString(u.Email), fmtTime(time.Now()))
	return err
}

// GetUser returns nil, nil for an unknown id.
func (s *Store) GetUser(ctx context.Context, id string) (*generic.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		u            generic.User
		role         string
		phone, email sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, role, phone, email FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &role, &phone, &email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role, u.Phone, u.Email = generic.Role(role), phone.String, email.String
	return &u, nil
}

// ListUsersByRole returns the users holding any of roles, by id.
func (s *Store) ListUsersByRole(ctx context.Context, roles ...generic.Role) ([]generic.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = string(r)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, role, phone, email FROM users WHERE role IN (`+placeholders(len(roles))+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []generic.User
	for rows.Next() {
		var (
			u            generic.User
			role         string
			phone, email sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Name, &role, &phone, &email); err != nil {
			return nil, err
		}
		u.Role, u.Phone, u.Email = generic.Role(role), phone.String, email.String
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveProduct inserts or replaces a catalog entry.
func (s *Store) SaveProduct(ctx context.Context, p generic.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, requires_trainer_delivery, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, price = excluded.price,
			requires_trainer_delivery = excluded.requires_trainer_delivery
	`, p.ID, p.Name, p.Price.String(), p.RequiresTrainerDelivery, fmtTime(time.Now()))
	return err
}

// GetProduct returns nil, nil for an unknown id.
func (s *Store) GetProduct(ctx context.Context, id string) (*generic.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p     generic.Product
		price string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, price, requires_trainer_delivery FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &price, &p.RequiresTrainerDelivery)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Price = generic.MustParseDecimal(price)
	return &p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	return generic.MustParseDecimal(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Reset deletes every row. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"earning_lines", "earnings", "point_transactions", "points_accounts",
		"deliveries", "ad_earnings", "ad_partnerships", "trainer_awards",
		"award_runs", "promotions", "platform_settings", "products", "users",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
