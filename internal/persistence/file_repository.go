package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SeanSwan/Apex-sub007/internal/report"
)

const defaultDebounce = 200 * time.Millisecond

// draftMeta carries the draft fields that are not interesting enough
// to get their own file.
type draftMeta struct {
	ID                  string        `json:"id"`
	ClientID            string        `json:"clientId"`
	Status              report.Status `json:"status"`
	UploadedDocumentURL string        `json:"uploadedDocumentUrl,omitempty"`
	LastSavedAt         time.Time     `json:"lastSavedAt"`
}

// field describes one independently persisted slice of the draft.
type field struct {
	file    string
	extract func(d *report.ReportDraft) ([]byte, error)
	apply   func(d *report.ReportDraft, raw []byte) error
}

// FileRepository stores each draft field in its own file under a data
// directory. Writes are atomic (temp file + rename) and debounced per
// Save call; fields whose bytes have not changed are skipped.
type FileRepository struct {
	mu       sync.Mutex
	dataDir  string
	debounce time.Duration
	fields   []field
	lastSeen map[string][]byte
	pending  *report.ReportDraft
	timer    *time.Timer
	closed   bool
}

// NewFileRepository creates the repository and its data directory.
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if dataDir == "" {
		if envDir := os.Getenv("APEX_DATA_DIR"); envDir != "" {
			dataDir = envDir
		} else {
			dataDir = "/var/lib/apex-report"
		}
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	r := &FileRepository{
		dataDir:  dataDir,
		debounce: defaultDebounce,
		lastSeen: make(map[string][]byte),
	}
	r.fields = []field{
		jsonField("meta.json",
			func(d *report.ReportDraft) any {
				return draftMeta{ID: d.ID, ClientID: d.ClientID, Status: d.Status, UploadedDocumentURL: d.UploadedDocumentURL, LastSavedAt: d.LastSavedAt}
			},
			func(d *report.ReportDraft, raw []byte) error {
				var m draftMeta
				if err := json.Unmarshal(raw, &m); err != nil {
					return err
				}
				d.ID, d.ClientID, d.Status = m.ID, m.ClientID, m.Status
				d.UploadedDocumentURL, d.LastSavedAt = m.UploadedDocumentURL, m.LastSavedAt
				return nil
			}),
		jsonField("range.json",
			func(d *report.ReportDraft) any { return d.DateRange },
			decodeInto(func(d *report.ReportDraft) any { return &d.DateRange })),
		jsonField("metrics.json",
			func(d *report.ReportDraft) any { return d.Metrics },
			decodeInto(func(d *report.ReportDraft) any { return &d.Metrics })),
		jsonField("narratives.json",
			func(d *report.ReportDraft) any { return d.DailyNarratives },
			decodeInto(func(d *report.ReportDraft) any { return &d.DailyNarratives })),
		jsonField("summary.json",
			func(d *report.ReportDraft) any { return d.SummaryText },
			decodeInto(func(d *report.ReportDraft) any { return &d.SummaryText })),
		jsonField("signature.json",
			func(d *report.ReportDraft) any { return d.Signature },
			decodeInto(func(d *report.ReportDraft) any { return &d.Signature })),
		jsonField("theme.json",
			func(d *report.ReportDraft) any { return d.Theme },
			decodeInto(func(d *report.ReportDraft) any { return &d.Theme })),
		jsonField("media.json",
			func(d *report.ReportDraft) any { return d.Media },
			decodeInto(func(d *report.ReportDraft) any { return &d.Media })),
		jsonField("delivery.json",
			func(d *report.ReportDraft) any { return d.Delivery },
			decodeInto(func(d *report.ReportDraft) any { return &d.Delivery })),
		{
			// Raw PNG bytes, not JSON.
			file: "chart.png",
			extract: func(d *report.ReportDraft) ([]byte, error) {
				return d.RenderedChartImage, nil
			},
			apply: func(d *report.ReportDraft, raw []byte) error {
				if len(raw) > 0 {
					d.RenderedChartImage = raw
				}
				return nil
			},
		},
	}
	return r, nil
}

// SetDebounce overrides the write debounce interval (tests use 0).
func (r *FileRepository) SetDebounce(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debounce = d
}

// DataDir returns the repository's directory.
func (r *FileRepository) DataDir() string {
	return r.dataDir
}

// Save mirrors the draft, debounced. The draft is cloned immediately
// so later mutations cannot race the flush.
func (r *FileRepository) Save(draft *report.ReportDraft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("repository closed")
	}

	r.pending = draft.Clone()
	r.pending.LastSavedAt = time.Now()

	if r.debounce <= 0 {
		return r.flushLocked()
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.flushLocked(); err != nil {
			log.Error().Err(err).Msg("Debounced draft flush failed")
		}
	})
	return nil
}

// Flush writes any pending draft synchronously.
func (r *FileRepository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *FileRepository) flushLocked() error {
	if r.pending == nil {
		return nil
	}
	draft := r.pending
	r.pending = nil

	var firstErr error
	for _, f := range r.fields {
		data, err := f.extract(draft)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("encode %s: %w", f.file, err)
			}
			continue
		}
		if prev, ok := r.lastSeen[f.file]; ok && bytes.Equal(prev, data) {
			continue // unchanged field, skip the write
		}
		path := filepath.Join(r.dataDir, f.file)
		if len(data) == 0 {
			// Empty optional field (e.g. no chart yet).
			r.lastSeen[f.file] = data
			continue
		}
		if err := writeFileAtomic(path, data, 0600); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.lastSeen[f.file] = data
	}
	return firstErr
}

// Load restores the draft field by field. A missing or corrupt field
// logs a warning and keeps the empty-draft default for that field.
func (r *FileRepository) Load() (*report.ReportDraft, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft := report.NewDraft(time.Now())
	found := false
	for _, f := range r.fields {
		path := filepath.Join(r.dataDir, f.file)
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Err(err).Str("file", f.file).Msg("Failed to read draft field")
			}
			continue
		}
		found = true
		if err := f.apply(draft, raw); err != nil {
			log.Warn().Err(err).Str("file", f.file).Msg("Draft field corrupt, using default")
			continue
		}
		r.lastSeen[f.file] = raw
	}
	if !found {
		return nil, false, nil
	}
	return draft, true, nil
}

// Clear removes every persisted field.
func (r *FileRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	var firstErr error
	for _, f := range r.fields {
		path := filepath.Join(r.dataDir, f.file)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
		}
		delete(r.lastSeen, f.file)
	}
	return firstErr
}

// Close flushes pending writes and stops the debounce timer.
func (r *FileRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	return r.flushLocked()
}

func jsonField(file string, get func(d *report.ReportDraft) any, apply func(d *report.ReportDraft, raw []byte) error) field {
	return field{
		file: file,
		extract: func(d *report.ReportDraft) ([]byte, error) {
			return json.Marshal(get(d))
		},
		apply: apply,
	}
}

func decodeInto(target func(d *report.ReportDraft) any) func(d *report.ReportDraft, raw []byte) error {
	return func(d *report.ReportDraft, raw []byte) error {
		return json.Unmarshal(raw, target(d))
	}
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
