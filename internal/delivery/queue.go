package delivery

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// JobState tracks a scheduled send through its lifecycle. A report is
// considered sent once its job is queued; the job row records whether
// the deferred dispatch eventually went out.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobDispatched JobState = "dispatched"
	JobFailed     JobState = "failed"
)

// ScheduledJob is one deferred delivery.
type ScheduledJob struct {
	ID          int64     `json:"id"`
	DraftID     string    `json:"draftId"`
	ClientID    string    `json:"clientId"`
	RunAt       time.Time `json:"runAt"`
	State       JobState  `json:"state"`
	LastError   string    `json:"lastError,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// ScheduleQueue is the durable queue for scheduled deliveries. Jobs
// survive restarts; the worker polls for due jobs.
type ScheduleQueue struct {
	db *sql.DB
}

// NewScheduleQueue opens (or creates) the queue database under
// dataDir.
func NewScheduleQueue(dataDir string) (*ScheduleQueue, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "schedule.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule queue: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	q := &ScheduleQueue{db: db}
	if err := q.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("Schedule queue initialized")
	return q, nil
}

func (q *ScheduleQueue) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			draft_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			run_at INTEGER NOT NULL,
			state TEXT NOT NULL DEFAULT 'queued',
			last_error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			completed_at INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_due
		ON scheduled_jobs(state, run_at);
	`
	if _, err := q.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create queue schema: %w", err)
	}
	return nil
}

// Enqueue records a deferred delivery. The caller treats the report
// as sent from this point; the job tracks the actual dispatch.
func (q *ScheduleQueue) Enqueue(ctx context.Context, draftID, clientID string, runAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (draft_id, client_id, run_at, state, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		draftID, clientID, runAt.Unix(), string(JobQueued), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read job id: %w", err)
	}
	log.Info().Int64("job", id).Str("draft", draftID).Time("runAt", runAt).Msg("Delivery scheduled")
	return id, nil
}

// Due returns queued jobs whose run time has passed, oldest first.
func (q *ScheduleQueue) Due(ctx context.Context, now time.Time) ([]ScheduledJob, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, draft_id, client_id, run_at, state, last_error, created_at, COALESCE(completed_at, 0)
		FROM scheduled_jobs
		WHERE state = ? AND run_at <= ?
		ORDER BY run_at`, string(JobQueued), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// List returns every job for a draft, newest first.
func (q *ScheduleQueue) List(ctx context.Context, draftID string) ([]ScheduledJob, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, draft_id, client_id, run_at, state, last_error, created_at, COALESCE(completed_at, 0)
		FROM scheduled_jobs
		WHERE draft_id = ?
		ORDER BY created_at DESC`, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// MarkDispatched finalizes a job after a successful deferred send.
func (q *ScheduleQueue) MarkDispatched(ctx context.Context, id int64) error {
	return q.setState(ctx, id, JobDispatched, "")
}

// MarkFailed finalizes a job whose deferred send failed. The report's
// status does not revert; the failure lives on the job row.
func (q *ScheduleQueue) MarkFailed(ctx context.Context, id int64, cause string) error {
	return q.setState(ctx, id, JobFailed, cause)
}

func (q *ScheduleQueue) setState(ctx context.Context, id int64, state JobState, lastError string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET state = ?, last_error = ?, completed_at = ?
		WHERE id = ? AND state = ?`,
		string(state), lastError, time.Now().Unix(), id, string(JobQueued))
	if err != nil {
		return fmt.Errorf("failed to update job state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm job update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %d is not queued", id)
	}
	return nil
}

// Close releases the database handle.
func (q *ScheduleQueue) Close() error {
	return q.db.Close()
}

func scanJobs(rows *sql.Rows) ([]ScheduledJob, error) {
	var out []ScheduledJob
	for rows.Next() {
		var j ScheduledJob
		var runAt, createdAt, completedAt int64
		if err := rows.Scan(&j.ID, &j.DraftID, &j.ClientID, &runAt, &j.State, &j.LastError, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		j.RunAt = time.Unix(runAt, 0)
		j.CreatedAt = time.Unix(createdAt, 0)
		if completedAt > 0 {
			j.CompletedAt = time.Unix(completedAt, 0)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
