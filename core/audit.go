package core

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// AuditLogLevel defines the verbosity of audit logging
type AuditLogLevel string

const (
	// AuditLogLevelMinimal logs only warnings and failures
	AuditLogLevelMinimal AuditLogLevel = "minimal"

	// AuditLogLevelStandard logs every run event
	AuditLogLevelStandard AuditLogLevel = "standard"

	// AuditLogLevelVerbose adds per-row detail
	AuditLogLevelVerbose AuditLogLevel = "verbose"
)

// AuditLogSeverity defines the severity of audit log events
type AuditLogSeverity string

const (
	SeverityInfo    AuditLogSeverity = "info"
	SeverityWarning AuditLogSeverity = "warning"
	SeverityError   AuditLogSeverity = "error"
)

// Audit event types
const (
	EventRunStarted       = "run_started"
	EventConfigLoaded     = "config_loaded"
	EventMethodLoaded     = "method_loaded"
	EventMethodSkipped    = "method_skipped"
	EventRowsSkipped      = "rows_skipped"
	EventScenarioComputed = "scenario_computed"
	EventReportWritten    = "report_written"
	EventRunFailed        = "run_failed"
)

// Longest message kept at standard level
const maxStandardMessage = 200

// AuditEvent is one JSONL line of the audit log
type AuditEvent struct {
	EventID   string            `json:"event_id"`
	RunID     string            `json:"run_id"`
	Timestamp string            `json:"timestamp"`
	EventType string            `json:"event_type"`
	Severity  AuditLogSeverity  `json:"severity"`
	Method    string            `json:"method,omitempty"`
	Path      string            `json:"path,omitempty"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Per-row detail, written only at verbose level
	Detail bool `json:"-"`
}

// AuditLogger writes the audit trail of a single run. A nil *AuditLogger is
// valid and discards everything.
type AuditLogger struct {
	mu      sync.Mutex
	runID   string
	level   AuditLogLevel
	writer  io.Writer
	closer  io.Closer
	now     func() time.Time
	entropy io.Reader
}

// NewAuditLogger creates a logger writing JSONL to w
func NewAuditLogger(w io.Writer, level AuditLogLevel) *AuditLogger {
	if level == "" {
		level = AuditLogLevelStandard
	}
	return &AuditLogger{
		runID:   uuid.NewString(),
		level:   level,
		writer:  w,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// OpenAuditLogger opens the audit log described by cfg, appending to an
// existing file. It returns nil when neither a file nor console output is configured.
func OpenAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	var writers []io.Writer
	var closer io.Closer

	if cfg.Path != "" {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, newReconError(CategoryWriteFailure, "", cfg.Path, fmt.Errorf("failed to create log directory: %w", err))
			}
		}
		f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, newReconError(CategoryWriteFailure, "", cfg.Path, fmt.Errorf("failed to open log file: %w", err))
		}
		writers = append(writers, f)
		closer = f
	}
	if cfg.Console {
		writers = append(writers, os.Stderr)
	}
	if len(writers) == 0 {
		return nil, nil
	}

	l := NewAuditLogger(io.MultiWriter(writers...), cfg.Level)
	l.closer = closer
	return l, nil
}

// WithClock replaces the time source, for reproducible logs
func (l *AuditLogger) WithClock(now func() time.Time) *AuditLogger {
	if l != nil {
		l.now = now
	}
	return l
}

// RunID returns the identifier shared by every event of the run
func (l *AuditLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Log writes an event, filling in the IDs and timestamp
func (l *AuditLogger) Log(event AuditEvent) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	// Apply log level filtering
	switch l.level {
	case AuditLogLevelMinimal:
		if event.Severity == SeverityInfo || event.Detail {
			return nil
		}
		event.Metadata = nil
	case AuditLogLevelStandard:
		if event.Detail {
			return nil
		}
		if len(event.Message) > maxStandardMessage {
			cut := maxStandardMessage
			for cut > 0 && !utf8.RuneStart(event.Message[cut]) {
				cut--
			}
			event.Message = event.Message[:cut] + "... [truncated]"
		}
	}

	now := l.now()
	id, err := ulid.New(ulid.Timestamp(now), l.entropy)
	if err != nil {
		return fmt.Errorf("failed to generate event id: %w", err)
	}
	event.EventID = id.String()
	event.RunID = l.runID
	event.Timestamp = now.UTC().Format(time.RFC3339Nano)

	entry, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	if _, err := fmt.Fprintln(l.writer, string(entry)); err != nil {
		return fmt.Errorf("failed to write to log: %w", err)
	}
	return nil
}

// Info logs an informational event
func (l *AuditLogger) Info(eventType, method, message string, metadata map[string]string) error {
	return l.Log(AuditEvent{EventType: eventType, Severity: SeverityInfo, Method: method, Message: message, Metadata: metadata})
}

// Warn logs a recovered failure
func (l *AuditLogger) Warn(eventType, method, message string, metadata map[string]string) error {
	return l.Log(AuditEvent{EventType: eventType, Severity: SeverityWarning, Method: method, Message: message, Metadata: metadata})
}

// Fail logs the error that ended the run
func (l *AuditLogger) Fail(err error) error {
	event := AuditEvent{EventType: EventRunFailed, Severity: SeverityError, Message: err.Error()}
	if rerr, ok := asReconError(err); ok {
		event.Method = rerr.Method
		event.Path = rerr.Path
		event.Metadata = map[string]string{"category": string(rerr.Category)}
	}
	return l.Log(event)
}

// Close releases the log file
func (l *AuditLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closer.Close()
}
