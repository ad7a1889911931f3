// Package store wraps the internal SQLite datastore holding domains and
// dead_letters: the source of truth the save/delete drainers, reconciler,
// and peer-sync worker all read and write.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Domain is one row of the domains table: spec.md §3's persistent Domain.
type Domain struct {
	ZoneName               string
	UpstreamServerHostname string
	UpstreamUsername       string
	ManagedBy              string
	ZoneData               string
	ZoneUpdatedAt          time.Time
}

// DeadLetter is one row of the dead_letters table.
type DeadLetter struct {
	ID           string
	Kind         string // "write" or "delete"
	ZoneName     string
	Payload      string // zone text, for write dead letters
	Backends     []string
	Cause        string
	FirstFailure time.Time
	LastFailure  time.Time
	Attempts     int
}

// Store wraps a SQLite connection with the transactional operations the
// rest of the daemon needs.
type Store struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open opens or creates the SQLite database at path, then applies
// migrations and the additive legacy-row backfill.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}

	if err := s.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := s.backfillLegacyDomainColumns(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("backfill legacy domain columns: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) Health() error { return s.conn.Ping() }

func (s *Store) runMigrations() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// backfillLegacyDomainColumns adds zone_data/zone_updated_at/managed_by
// to a domains table that predates them — e.g. one imported from an
// external system that only ever tracked zone_name and the owning
// hostname. Fresh installs already have every column via the initial
// migration, so each ALTER here is a no-op in that case.
func (s *Store) backfillLegacyDomainColumns() error {
	existing, err := s.domainColumns()
	if err != nil {
		return err
	}
	additions := []struct{ name, ddl string }{
		{"zone_data", "ALTER TABLE domains ADD COLUMN zone_data TEXT NOT NULL DEFAULT ''"},
		{"zone_updated_at", "ALTER TABLE domains ADD COLUMN zone_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"},
		{"managed_by", "ALTER TABLE domains ADD COLUMN managed_by TEXT NOT NULL DEFAULT 'directadmin'"},
		{"upstream_server_hostname", "ALTER TABLE domains ADD COLUMN upstream_server_hostname TEXT NOT NULL DEFAULT ''"},
		{"upstream_username", "ALTER TABLE domains ADD COLUMN upstream_username TEXT NOT NULL DEFAULT ''"},
	}
	for _, a := range additions {
		if existing[a.name] {
			continue
		}
		if _, err := s.conn.Exec(a.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", a.name, err)
		}
	}
	return nil
}

func (s *Store) domainColumns() (map[string]bool, error) {
	rows, err := s.conn.Query("PRAGMA table_info(domains)")
	if err != nil {
		return nil, fmt.Errorf("inspect domains columns: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// UpsertDomain inserts or replaces a domain row.
func (s *Store) UpsertDomain(ctx context.Context, d Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO domains (zone_name, upstream_server_hostname, upstream_username, managed_by, zone_data, zone_updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(zone_name) DO UPDATE SET
			upstream_server_hostname = excluded.upstream_server_hostname,
			upstream_username        = excluded.upstream_username,
			managed_by               = excluded.managed_by,
			zone_data                = excluded.zone_data,
			zone_updated_at          = excluded.zone_updated_at
	`, d.ZoneName, d.UpstreamServerHostname, d.UpstreamUsername, d.ManagedBy, d.ZoneData, d.ZoneUpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert domain %s: %w", d.ZoneName, err)
	}
	return nil
}

// GetDomain returns the row for zoneName, or (nil, nil) if absent.
func (s *Store) GetDomain(ctx context.Context, zoneName string) (*Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.conn.QueryRowContext(ctx, `
		SELECT zone_name, upstream_server_hostname, upstream_username, managed_by, zone_data, zone_updated_at
		FROM domains WHERE zone_name = ?
	`, zoneName)
	d, err := scanDomain(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", zoneName, err)
	}
	return d, nil
}

// ListDomains returns every domain row, ordered by zone_name.
func (s *Store) ListDomains(ctx context.Context) ([]Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT zone_name, upstream_server_hostname, upstream_username, managed_by, zone_data, zone_updated_at
		FROM domains ORDER BY zone_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []Domain
	for rows.Next() {
		d, err := scanDomainRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain row: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DeleteDomain removes a domain row. Deleting an absent row is not an error.
func (s *Store) DeleteDomain(ctx context.Context, zoneName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.ExecContext(ctx, `DELETE FROM domains WHERE zone_name = ?`, zoneName); err != nil {
		return fmt.Errorf("delete domain %s: %w", zoneName, err)
	}
	return nil
}

// TransferOwnership rewrites upstream_server_hostname/upstream_username
// for an ownership-transfer push, without touching zone_data.
func (s *Store) TransferOwnership(ctx context.Context, zoneName, newHostname, newUsername string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		UPDATE domains SET upstream_server_hostname = ?, upstream_username = ? WHERE zone_name = ?
	`, newHostname, newUsername, zoneName)
	if err != nil {
		return fmt.Errorf("transfer ownership of %s: %w", zoneName, err)
	}
	return nil
}

// CreateDeadLetter records an exhausted retry item. Dead letters are
// never auto-deleted.
func (s *Store) CreateDeadLetter(ctx context.Context, dl DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO dead_letters (id, kind, zone_name, payload, backends, cause, first_failure, last_failure, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, dl.ID, dl.Kind, dl.ZoneName, dl.Payload, joinBackends(dl.Backends), dl.Cause,
		dl.FirstFailure.UTC(), dl.LastFailure.UTC(), dl.Attempts)
	if err != nil {
		return fmt.Errorf("create dead letter for %s: %w", dl.ZoneName, err)
	}
	return nil
}

// ListDeadLetters returns every dead letter, most recent first.
func (s *Store) ListDeadLetters(ctx context.Context) ([]DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, kind, zone_name, payload, backends, cause, first_failure, last_failure, attempts
		FROM dead_letters ORDER BY last_failure DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		var backends string
		if err := rows.Scan(&dl.ID, &dl.Kind, &dl.ZoneName, &dl.Payload, &backends, &dl.Cause,
			&dl.FirstFailure, &dl.LastFailure, &dl.Attempts); err != nil {
			return nil, fmt.Errorf("scan dead letter row: %w", err)
		}
		dl.Backends = splitBackends(backends)
		out = append(out, dl)
	}
	return out, rows.Err()
}

// CountDeadLetters is used by /status to decide whether overall state
// should degrade.
func (s *Store) CountDeadLetters(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// SetConfig persists a daemon tunable, e.g. the reconciler's last
// successful run timestamp, so /status can report it across restarts
// before the first post-restart cycle completes.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// GetConfig retrieves a daemon tunable, or "" if unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get config %s: %w", key, err)
	}
	return value, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*Domain, error) {
	return scanDomainRows(row)
}

func scanDomainRows(row rowScanner) (*Domain, error) {
	var d Domain
	if err := row.Scan(&d.ZoneName, &d.UpstreamServerHostname, &d.UpstreamUsername, &d.ManagedBy, &d.ZoneData, &d.ZoneUpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func joinBackends(backends []string) string {
	out := ""
	for i, b := range backends {
		if i > 0 {
			out += ","
		}
		out += b
	}
	return out
}

func splitBackends(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
