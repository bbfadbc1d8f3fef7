package intent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tradecore/internal/model"
)

// AuditWriter appends intents to an NDJSON file partitioned by UTC date:
// <root>/agent_intents/YYYY-MM-DD/intents.ndjson. Indicator maps are
// redacted before anything touches disk.
type AuditWriter struct {
	root string

	mu      sync.Mutex
	curDate string
	file    *os.File
}

// NewAuditWriter creates a writer rooted at dir (typically
// "audit_artifacts").
func NewAuditWriter(dir string) *AuditWriter {
	return &AuditWriter{root: dir}
}

// Append writes one intent line. Writing the same intent twice yields
// two byte-identical lines; content depends only on the intent itself.
func (w *AuditWriter) Append(in *model.AgentIntent) error {
	sanitized := *in
	sanitized.Rationale.Indicators = Redact(in.Rationale.Indicators)
	line := sanitized.JSON()

	w.mu.Lock()
	defer w.mu.Unlock()

	date := in.CreatedAt.UTC().Format("2006-01-02")
	if w.file == nil || w.curDate != date {
		if err := w.rotate(date); err != nil {
			return err
		}
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("intent audit: write: %w", err)
	}
	return nil
}

func (w *AuditWriter) rotate(date string) error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	dir := filepath.Join(w.root, "agent_intents", date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("intent audit: mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "intents.ndjson"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("intent audit: open: %w", err)
	}
	w.file = f
	w.curDate = date
	return nil
}

// Close releases the current file handle.
func (w *AuditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// auditPath returns the partition path for a given day; exposed for
// tests.
func (w *AuditWriter) auditPath(ts time.Time) string {
	return filepath.Join(w.root, "agent_intents", ts.UTC().Format("2006-01-02"), "intents.ndjson")
}
