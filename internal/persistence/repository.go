// Package persistence provides durable local storage for the
// in-progress report draft, enabling crash/reload recovery. Every
// top-level draft field is stored independently so partial corruption
// of one field never invalidates the rest.
package persistence

import (
	"github.com/SeanSwan/Apex-sub007/internal/report"
)

// DraftRepository is the storage seam injected into the workflow
// controller. Implementations must be idempotent and last-write-wins:
// Save mirrors the draft after every observable mutation.
type DraftRepository interface {
	// Save persists the draft. Implementations may debounce writes
	// per field; a crash loses at most the most recent update.
	Save(draft *report.ReportDraft) error

	// Load restores the persisted draft. The second return is false
	// when no draft has ever been saved. A field that fails to parse
	// falls back to its zero value without failing the load.
	Load() (*report.ReportDraft, bool, error)

	// Clear removes the persisted draft (explicit discard/new-report).
	Clear() error

	// Close flushes any pending debounced writes.
	Close() error
}
