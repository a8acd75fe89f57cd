package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/SeanSwan/Apex-sub007/internal/report"
)

// ErrClientNotFound is returned when a client ID has no directory row.
var ErrClientNotFound = errors.New("client not found")

// ClientDirectory lists the monitored sites reports can be produced
// for.
type ClientDirectory interface {
	List(ctx context.Context) ([]report.Client, error)
	Get(ctx context.Context, id string) (report.Client, error)
}

// SQLiteClientDirectory is the durable client roster. Branding is
// stored as a JSON blob per client; a missing or corrupt blob falls
// back to the stock theme.
type SQLiteClientDirectory struct {
	db *sql.DB
}

// NewSQLiteClientDirectory opens (or creates) the roster database
// under dataDir.
func NewSQLiteClientDirectory(dataDir string) (*SQLiteClientDirectory, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "clients.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open client directory: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	dir := &SQLiteClientDirectory{db: db}
	if err := dir.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("Client directory initialized")
	return dir, nil
}

func (d *SQLiteClientDirectory) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			contact_email TEXT NOT NULL DEFAULT '',
			branding TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create client schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a client row.
func (d *SQLiteClientDirectory) Upsert(ctx context.Context, c report.Client) error {
	branding, err := json.Marshal(c.Branding)
	if err != nil {
		return fmt.Errorf("failed to encode branding: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, location, contact_email, branding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			contact_email = excluded.contact_email,
			branding = excluded.branding`,
		c.ID, c.Name, c.Location, c.ContactEmail, string(branding), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}
	return nil
}

// List returns every client ordered by name.
func (d *SQLiteClientDirectory) List(ctx context.Context) ([]report.Client, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, location, contact_email, branding FROM clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var out []report.Client
	for rows.Next() {
		c, err := scanClient(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns a single client by ID.
func (d *SQLiteClientDirectory) Get(ctx context.Context, id string) (report.Client, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, location, contact_email, branding FROM clients WHERE id = ?`, id)
	c, err := scanClient(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Client{}, ErrClientNotFound
	}
	return c, err
}

// Close releases the database handle.
func (d *SQLiteClientDirectory) Close() error {
	return d.db.Close()
}

func scanClient(scan func(...any) error) (report.Client, error) {
	var c report.Client
	var branding string
	if err := scan(&c.ID, &c.Name, &c.Location, &c.ContactEmail, &branding); err != nil {
		return report.Client{}, err
	}
	c.Branding = report.DefaultBranding()
	if err := json.Unmarshal([]byte(branding), &c.Branding); err != nil {
		log.Warn().Str("client", c.ID).Err(err).Msg("Corrupt branding blob, using default theme")
		c.Branding = report.DefaultBranding()
	}
	return c, nil
}
