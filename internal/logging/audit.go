package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType classifies an audit trail entry.
type AuditEventType string

// Audit event types.
const (
	AuditEventStartup      AuditEventType = "startup"
	AuditEventShutdown     AuditEventType = "shutdown"
	AuditEventConfigChange AuditEventType = "config_change"
	AuditEventChannelReset AuditEventType = "channel_reset"
	AuditEventLayerChange  AuditEventType = "layer_change"
	AuditEventError        AuditEventType = "error"
)

// AuditEvent is one line of the configuration audit trail: who changed
// which channel, when, and to what.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType AuditEventType         `json:"event_type"`
	Component string                 `json:"component"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource,omitempty"`
	Result    string                 `json:"result"` // "success" or "failure"
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit trail.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool

	// Component is the component name stamped on events.
	Component string
}

// DefaultAuditConfig returns default audit trail configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   defaultAuditLogPath(),
		MaxSize:    20, // 20 MB
		MaxAge:     90, // 90 days
		MaxBackups: 5,
		Compress:   true,
		Component:  "pointerd",
	}
}

func defaultAuditLogPath() string {
	return filepath.Join(filepath.Dir(defaultLogPath()), "audit.log")
}

// AuditLogger appends configuration-change events to a JSON-lines
// audit file with rotation. All methods are safe for concurrent use.
type AuditLogger struct {
	config  *AuditLoggerConfig
	rotator *logFile
	mu      sync.Mutex
}

// NewAuditLogger creates an audit trail writer.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}

	rotator, err := openLogFile(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &AuditLogger{config: cfg, rotator: rotator}, nil
}

// Log appends one event to the audit trail. The timestamp and
// component are filled in when unset.
func (a *AuditLogger) Log(ev AuditEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Component == "" {
		ev.Component = a.config.Component
	}
	if ev.Result == "" {
		ev.Result = "success"
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.rotator.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogConfigChange records a persistent channel configuration change.
func (a *AuditLogger) LogConfigChange(channel string, details map[string]interface{}) {
	if err := a.Log(AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    "set",
		Resource:  channel,
		Details:   details,
	}); err != nil {
		Warn("audit trail write failed", "error", err)
	}
}

// LogChannelReset records a channel reset to defaults.
func (a *AuditLogger) LogChannelReset(channel string) {
	if err := a.Log(AuditEvent{
		EventType: AuditEventChannelReset,
		Action:    "reset",
		Resource:  channel,
	}); err != nil {
		Warn("audit trail write failed", "error", err)
	}
}

// LogLayerChange records a layer activation or deactivation.
func (a *AuditLogger) LogLayerChange(layer string, active bool) {
	action := "deactivate"
	if active {
		action = "activate"
	}
	if err := a.Log(AuditEvent{
		EventType: AuditEventLayerChange,
		Action:    action,
		Resource:  layer,
	}); err != nil {
		Warn("audit trail write failed", "error", err)
	}
}

// Close flushes and closes the audit file.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rotator.Close()
}

// ReadEvents loads audit events from the current audit file, newest
// last. Intended for diagnostics tooling.
func ReadEvents(path string) ([]AuditEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []AuditEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var ev AuditEvent
		if err := dec.Decode(&ev); err != nil {
			break
		}
		events = append(events, ev)
	}
	return events, nil
}
