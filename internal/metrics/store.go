// Package metrics provides persistent storage for per-client daily
// security counts using SQLite for durability across restarts.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/SeanSwan/Apex-sub007/internal/report"
)

// Store persists daily intrusion counts and weekly scalar readings per
// client. The report workflow reads a week at a time; ingestion writes
// one day at a time.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the metrics database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metrics.db")
	// WAL mode for concurrent readers alongside the single writer.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("Metrics store initialized")
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
		-- One row per client/day/category count.
		CREATE TABLE IF NOT EXISTS daily_counts (
			client_id TEXT NOT NULL,
			day DATE NOT NULL,
			category TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (client_id, day, category)
		);

		CREATE INDEX IF NOT EXISTS idx_daily_counts_client_day
		ON daily_counts(client_id, day);

		-- Latest scalar readings per client (accuracy, uptime, response
		-- time, camera counts). One row per client/name pair.
		CREATE TABLE IF NOT EXISTS scalar_readings (
			client_id TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (client_id, name)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record upserts one day's count for a client. Negative counts clamp
// to zero before they reach the database.
func (s *Store) Record(ctx context.Context, clientID string, date time.Time, category report.MetricCategory, count int) error {
	if count < 0 {
		count = 0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_counts (client_id, day, category, count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_id, day, category)
		DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`,
		clientID, date.Format("2006-01-02"), string(category), count, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record daily count: %w", err)
	}
	return nil
}

// RecordScalar upserts one named scalar reading for a client.
func (s *Store) RecordScalar(ctx context.Context, clientID, name string, value float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scalar_readings (client_id, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id, name)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		clientID, name, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record scalar: %w", err)
	}
	return nil
}

// WeekSnapshot assembles the stored counts for the given range into a
// snapshot keyed by canonical weekday. Days without rows stay at zero;
// a client with no data at all yields a fully zeroed snapshot rather
// than an error.
func (s *Store) WeekSnapshot(ctx context.Context, clientID string, window report.DateRange) (report.MetricsSnapshot, error) {
	snapshot := report.NewMetricsSnapshot()

	rows, err := s.db.QueryContext(ctx, `
		SELECT day, category, count FROM daily_counts
		WHERE client_id = ? AND day >= ? AND day <= ?`,
		clientID, window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))
	if err != nil {
		return snapshot, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dayStr, category string
		var count int
		if err := rows.Scan(&dayStr, &category, &count); err != nil {
			return snapshot, fmt.Errorf("failed to scan daily count: %w", err)
		}
		date, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			log.Warn().Str("day", dayStr).Msg("Skipping unparseable day in metrics store")
			continue
		}
		weekday, err := report.ParseWeekday(date.Weekday().String())
		if err != nil {
			continue
		}
		cat := report.MetricCategory(category)
		if days, ok := snapshot.Counts[cat]; ok {
			days[weekday] = count
		}
	}
	if err := rows.Err(); err != nil {
		return snapshot, fmt.Errorf("failed to read daily counts: %w", err)
	}

	scalars, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM scalar_readings WHERE client_id = ?`, clientID)
	if err != nil {
		return snapshot, fmt.Errorf("failed to query scalar readings: %w", err)
	}
	defer scalars.Close()

	for scalars.Next() {
		var name string
		var value float64
		if err := scalars.Scan(&name, &value); err != nil {
			return snapshot, fmt.Errorf("failed to scan scalar: %w", err)
		}
		switch name {
		case "aiAccuracy":
			snapshot.AIAccuracy = value
		case "operationalUptime":
			snapshot.OperationalUptime = value
		case "responseTime":
			snapshot.ResponseTime = value
		case "totalCameras":
			snapshot.TotalCameras = int(value)
		case "camerasOnline":
			snapshot.CamerasOnline = int(value)
		default:
			log.Debug().Str("name", name).Msg("Ignoring unknown scalar reading")
		}
	}
	if err := scalars.Err(); err != nil {
		return snapshot, fmt.Errorf("failed to read scalar readings: %w", err)
	}

	// Re-merge through a patch so stored values pick up the same
	// clamping rules as manual edits.
	clamped := report.NewMetricsSnapshot()
	clamped.Merge(report.MetricsPatch{
		Counts:            snapshot.Counts,
		AIAccuracy:        &snapshot.AIAccuracy,
		OperationalUptime: &snapshot.OperationalUptime,
		ResponseTime:      &snapshot.ResponseTime,
		TotalCameras:      &snapshot.TotalCameras,
		CamerasOnline:     &snapshot.CamerasOnline,
	})
	return clamped, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
