package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMonitorFiresAfterDeviceChange(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan struct{}, 1)

	m, err := NewMonitor(MonitorOptions{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		OnChange: func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	defer m.Stop()

	if err := os.WriteFile(filepath.Join(dir, "event3"), nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change callback")
	}
}

func TestMonitorIgnoresOtherNodes(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan struct{}, 1)

	m, err := NewMonitor(MonitorOptions{
		Dir:      dir,
		Debounce: 20 * time.Millisecond,
		OnChange: func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	defer m.Stop()

	if err := os.WriteFile(filepath.Join(dir, "mouse0"), nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-changed:
		t.Fatal("non-event nodes must not trigger a rescan")
	case <-time.After(200 * time.Millisecond):
	}
}
