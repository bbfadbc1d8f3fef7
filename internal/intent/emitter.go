package intent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"tradecore/internal/model"
)

// Outcome of an intent emission.
type Outcome string

const (
	OutcomeStarted Outcome = "started"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// LogRecord is one line of the intent log stream.
type LogRecord struct {
	Timestamp     string          `json:"timestamp"`
	Level         string          `json:"level"`
	RepoID        string          `json:"repo_id"`
	AgentName     string          `json:"agent_name"`
	AgentRole     string          `json:"agent_role"`
	AgentMode     string          `json:"agent_mode"`
	GitSHA        string          `json:"git_sha"`
	IntentID      string          `json:"intent_id"`
	CorrelationID string          `json:"correlation_id"`
	TraceID       string          `json:"trace_id"`
	IntentType    string          `json:"intent_type"`
	IntentSummary string          `json:"intent_summary"`
	IntentPayload json.RawMessage `json:"intent_payload"`
	Outcome       Outcome         `json:"outcome"`
	DurationMS    *int64          `json:"duration_ms,omitempty"`
}

// Emitter writes the intent log stream (one JSON object per line) and
// mirrors every intent into the audit file. Both channels are written
// on each call; an audit failure is reported but the log line still
// goes out.
type Emitter struct {
	RepoID    string
	AgentName string
	AgentRole string
	AgentMode string
	GitSHA    string

	Audit *AuditWriter

	mu  sync.Mutex
	out io.Writer
}

// NewEmitter creates an Emitter writing log lines to out; nil means
// stdout.
func NewEmitter(out io.Writer, audit *AuditWriter) *Emitter {
	if out == nil {
		out = os.Stdout
	}
	return &Emitter{out: out, Audit: audit}
}

// Emit writes the log line and audit record for one intent. durationMS
// is attached for terminal outcomes only when non-negative.
func (e *Emitter) Emit(in *model.AgentIntent, traceID string, outcome Outcome, durationMS int64) error {
	rec := LogRecord{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         "INFO",
		RepoID:        e.RepoID,
		AgentName:     e.AgentName,
		AgentRole:     e.AgentRole,
		AgentMode:     e.AgentMode,
		GitSHA:        e.GitSHA,
		IntentID:      in.IntentID,
		CorrelationID: in.CorrelationID,
		TraceID:       traceID,
		IntentType:    string(in.Kind),
		IntentSummary: summarize(in),
		IntentPayload: payloadOf(in),
		Outcome:       outcome,
	}
	if outcome == OutcomeFailure {
		rec.Level = "ERROR"
	}
	if durationMS >= 0 && outcome != OutcomeStarted {
		rec.DurationMS = &durationMS
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("intent log: marshal: %w", err)
	}

	e.mu.Lock()
	_, werr := e.out.Write(append(line, '\n'))
	e.mu.Unlock()

	var aerr error
	if e.Audit != nil {
		aerr = e.Audit.Append(in)
	}
	if werr != nil {
		return fmt.Errorf("intent log: write: %w", werr)
	}
	return aerr
}

func summarize(in *model.AgentIntent) string {
	return fmt.Sprintf("%s %s %s (%s)", in.Side, in.Symbol, string(in.Kind), in.StrategyName)
}

// payloadOf is the redacted intent body embedded in the log line.
func payloadOf(in *model.AgentIntent) json.RawMessage {
	sanitized := *in
	sanitized.Rationale.Indicators = Redact(in.Rationale.Indicators)
	return sanitized.JSON()
}
