package source

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/te9no/pointerd/internal/logging"
)

// defaultDebounce coalesces the burst of node churn a single hotplug
// produces into one rescan.
const defaultDebounce = 500 * time.Millisecond

// MonitorOptions configures a hotplug monitor.
type MonitorOptions struct {
	// Dir is the watched directory. Empty watches /dev/input.
	Dir string

	// Debounce is the quiet period before OnChange fires.
	Debounce time.Duration

	// OnChange runs on the monitor goroutine after device nodes have
	// settled.
	OnChange func()

	Log *logging.Logger
}

// Monitor watches the input device directory and reports settled
// changes, so the engine can rescan and rebind.
type Monitor struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func()
	log      *logging.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// NewMonitor starts watching for device node changes.
func NewMonitor(opts MonitorOptions) (*Monitor, error) {
	dir := opts.Dir
	if dir == "" {
		dir = devInputDir
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	log := opts.Log
	if log == nil {
		log = logging.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	m := &Monitor{
		watcher:  watcher,
		debounce: debounce,
		onChange: opts.OnChange,
		log:      log.WithComponent("source"),
		done:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.run()
	return m, nil
}

// Stop shuts the monitor down.
func (m *Monitor) Stop() error {
	close(m.done)
	err := m.watcher.Close()
	m.wg.Wait()
	return err
}

func (m *Monitor) run() {
	defer m.wg.Done()

	timer := time.NewTimer(m.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-m.done:
			return

		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), "event") {
				continue
			}
			m.log.Debug("device node changed", "node", ev.Name, "op", ev.Op.String())
			timer.Reset(m.debounce)

		case <-timer.C:
			if m.onChange != nil {
				m.onChange()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn("device watch error", "error", err)
		}
	}
}
