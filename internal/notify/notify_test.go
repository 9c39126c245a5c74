package notify

import (
	"path/filepath"
	"testing"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/layers"
	"github.com/te9no/pointerd/internal/logging"
)

type recorder struct {
	events []Event
}

func (r *recorder) record(ev Event) {
	r.events = append(r.events, ev)
}

func TestHubConfigChanged(t *testing.T) {
	hub := NewHub(Options{})
	rec := &recorder{}
	hub.Subscribe(rec.record)

	cfg := channel.DefaultConfig()
	cfg.ScaleMultiplier = 3
	hub.ConfigChanged(2, "trackball", cfg)

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Kind != KindConfigChanged {
		t.Errorf("expected kind %q, got %q", KindConfigChanged, ev.Kind)
	}
	if ev.ChannelID != 2 || ev.Channel != "trackball" {
		t.Errorf("expected channel 2/trackball, got %d/%s", ev.ChannelID, ev.Channel)
	}
	if ev.Config == nil || ev.Config.ScaleMultiplier != 3 {
		t.Errorf("expected config snapshot with multiplier 3, got %+v", ev.Config)
	}
}

func TestHubConfigSnapshotIsolated(t *testing.T) {
	hub := NewHub(Options{})
	rec := &recorder{}
	hub.Subscribe(rec.record)

	cfg := channel.DefaultConfig()
	cfg.RotationDegrees = 90
	hub.ConfigChanged(0, "trackball", cfg)

	// Mutating the caller's copy must not reach the delivered event.
	cfg.RotationDegrees = 180
	if got := rec.events[0].Config.RotationDegrees; got != 90 {
		t.Errorf("expected delivered rotation 90, got %d", got)
	}
}

func TestHubChannelReset(t *testing.T) {
	hub := NewHub(Options{})
	rec := &recorder{}
	hub.Subscribe(rec.record)

	hub.ChannelReset(1, "touchpad")

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Kind != KindChannelReset {
		t.Errorf("expected kind %q, got %q", KindChannelReset, ev.Kind)
	}
	if ev.ChannelID != 1 || ev.Channel != "touchpad" {
		t.Errorf("expected channel 1/touchpad, got %d/%s", ev.ChannelID, ev.Channel)
	}
	if ev.Config != nil {
		t.Errorf("expected no config on reset event, got %+v", ev.Config)
	}
}

func TestHubLayerChanged(t *testing.T) {
	hub := NewHub(Options{})
	rec := &recorder{}
	hub.Subscribe(rec.record)

	hub.LayerChanged(layers.Event{ID: 2, Name: "mouse", Active: true})
	hub.LayerChanged(layers.Event{ID: 2, Name: "mouse", Active: false})

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	up, down := rec.events[0], rec.events[1]
	if up.Kind != KindLayerChanged || up.LayerID != 2 || up.LayerName != "mouse" || !up.Active {
		t.Errorf("unexpected activation event %+v", up)
	}
	if down.Active {
		t.Errorf("expected deactivation event, got %+v", down)
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(Options{})
	first := &recorder{}
	second := &recorder{}
	hub.Subscribe(first.record)
	hub.Subscribe(second.record)

	hub.ChannelReset(0, "trackball")

	if len(first.events) != 1 || len(second.events) != 1 {
		t.Errorf("expected both subscribers notified, got %d and %d",
			len(first.events), len(second.events))
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(Options{})
	rec := &recorder{}
	cancel := hub.Subscribe(rec.record)

	hub.ChannelReset(0, "trackball")
	cancel()
	hub.ChannelReset(0, "trackball")

	if len(rec.events) != 1 {
		t.Errorf("expected 1 event after unsubscribe, got %d", len(rec.events))
	}

	// Cancel is idempotent.
	cancel()
}

func TestHubAuditTrail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	audit, err := logging.NewAuditLogger(&logging.AuditLoggerConfig{FilePath: path})
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer audit.Close()

	hub := NewHub(Options{Audit: audit})

	cfg := channel.DefaultConfig()
	cfg.SnapThreshold = 75
	hub.ConfigChanged(0, "trackball", cfg)
	hub.ChannelReset(0, "trackball")
	hub.LayerChanged(layers.Event{ID: 1, Name: "nav", Active: true})

	events, err := logging.ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(events))
	}

	change := events[0]
	if change.EventType != logging.AuditEventConfigChange {
		t.Errorf("expected config_change, got %q", change.EventType)
	}
	if change.Resource != "trackball" {
		t.Errorf("expected resource trackball, got %q", change.Resource)
	}
	// JSON numbers decode as float64.
	if got, ok := change.Details["snap_threshold"].(float64); !ok || got != 75 {
		t.Errorf("expected snap_threshold 75 in details, got %v", change.Details["snap_threshold"])
	}

	reset := events[1]
	if reset.EventType != logging.AuditEventChannelReset || reset.Action != "reset" {
		t.Errorf("unexpected reset event %+v", reset)
	}

	layer := events[2]
	if layer.EventType != logging.AuditEventLayerChange || layer.Action != "activate" {
		t.Errorf("unexpected layer event %+v", layer)
	}
	if layer.Resource != "nav" {
		t.Errorf("expected resource nav, got %q", layer.Resource)
	}
}
