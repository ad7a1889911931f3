// Package dbdriver implements the backend.Driver contract as row-level
// upsert/delete against a dedicated backend_records table, independent
// of the control-plane domains/dead_letters schema in internal/store.
package dbdriver

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/zonecourier/zonecourier/internal/zonefile"
)

// Config configures one database-backed backend instance.
type Config struct {
	Enabled bool
	Driver  string
	DSN     string
}

// Driver writes parsed zone records as rows, one per resource record,
// with in-zone targets always rendered as absolute FQDNs.
type Driver struct {
	cfg  Config
	conn *sql.DB
}

// Open opens the backend database and ensures its schema exists.
func Open(cfg Config) (*Driver, error) {
	driverName := cfg.Driver
	if driverName == "" {
		driverName = "sqlite"
	}
	conn, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open backend database: %w", err)
	}
	d := &Driver{cfg: cfg, conn: conn}
	if err := d.ensureSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure backend schema: %w", err)
	}
	return d, nil
}

func (d *Driver) Close() error { return d.conn.Close() }

func (d *Driver) Name() string  { return "db" }
func (d *Driver) Enabled() bool { return d.cfg.Enabled }

func (d *Driver) ensureSchema() error {
	_, err := d.conn.Exec(`
		CREATE TABLE IF NOT EXISTS backend_records (
			zone_name TEXT NOT NULL,
			name      TEXT NOT NULL,
			type      TEXT NOT NULL,
			ttl       INTEGER NOT NULL,
			rdata     TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_backend_records_zone ON backend_records(zone_name)`)
	return err
}

// WriteZone replaces every row for zoneName with the parsed contents of
// zoneText, in a single transaction.
func (d *Driver) WriteZone(ctx context.Context, zoneName, zoneText string) error {
	zone, err := zonefile.ParseText(zoneText)
	if err != nil {
		return fmt.Errorf("parse zone %s: %w", zoneName, err)
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", zoneName, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backend_records WHERE zone_name = ?`, zoneName); err != nil {
		return fmt.Errorf("clear existing rows for %s: %w", zoneName, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backend_records (zone_name, name, type, ttl, rdata) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert for %s: %w", zoneName, err)
	}
	defer stmt.Close()

	for _, rec := range zone.Records {
		if _, err := stmt.ExecContext(ctx, zoneName, rec.Name, rec.Type, rec.TTL, rec.RData); err != nil {
			return fmt.Errorf("insert record %s/%s for %s: %w", rec.Name, rec.Type, zoneName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write for %s: %w", zoneName, err)
	}
	return nil
}

// DeleteZone removes every row for zoneName. Deleting an absent zone is
// not an error.
func (d *Driver) DeleteZone(ctx context.Context, zoneName string) error {
	if _, err := d.conn.ExecContext(ctx, `DELETE FROM backend_records WHERE zone_name = ?`, zoneName); err != nil {
		return fmt.Errorf("delete zone %s: %w", zoneName, err)
	}
	return nil
}

func (d *Driver) ZoneExists(ctx context.Context, zoneName string) (bool, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM backend_records WHERE zone_name = ?`, zoneName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check zone exists %s: %w", zoneName, err)
	}
	return n > 0, nil
}

// CountRecords uses the same counting rule as the parser: every row is
// one authoritative record, SOA included.
func (d *Driver) CountRecords(ctx context.Context, zoneName string) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM backend_records WHERE zone_name = ?`, zoneName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records for %s: %w", zoneName, err)
	}
	return n, nil
}

// Reconcile is a full delete-then-insert, same as WriteZone: a
// transactional replace has no stale-row residue to separately prune.
func (d *Driver) Reconcile(ctx context.Context, zoneName, zoneText string) error {
	return d.WriteZone(ctx, zoneName, zoneText)
}
