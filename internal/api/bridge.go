// Package api serves the HTTP/WebSocket bridge for browser
// configurators.
//
// The bridge exposes a read-only channel listing over plain HTTP and a
// WebSocket endpoint that carries the same message types, payloads and
// RequestID correlation as the unix socket, re-framed as JSON text
// messages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/ipc"
	"github.com/te9no/pointerd/internal/logging"
	"github.com/te9no/pointerd/internal/notify"
)

// DefaultListenAddr is the bridge bind address when none is configured.
const DefaultListenAddr = "127.0.0.1:8489"

const (
	// writeWait bounds a single WebSocket write.
	writeWait = 5 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead. Pings go out at a third of that.
	pongWait     = 60 * time.Second
	pingInterval = 20 * time.Second
)

// Frame is the JSON envelope carried in each WebSocket text message.
// It mirrors the unix-socket framing: the same message types, payloads
// and RequestID correlation, with the WebSocket's own message
// boundaries standing in for the binary header.
type Frame struct {
	Type      ipc.MessageType `json:"type"`
	RequestID uint32          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Options configures the bridge.
type Options struct {
	// ListenAddr is the bind address. Empty uses DefaultListenAddr.
	ListenAddr string

	// Handler resolves RPC frames. The daemon passes the same handler
	// the unix socket uses.
	Handler ipc.Handler

	// Registry backs the channel listing endpoint.
	Registry *channel.Registry

	// Hub feeds the event stream. Nil disables event delivery.
	Hub *notify.Hub

	Log *logging.Logger
}

// Bridge is the HTTP/WebSocket control surface.
type Bridge struct {
	addr     string
	handler  ipc.Handler
	registry *channel.Registry
	hub      *notify.Hub
	log      *logging.Logger

	upgrader websocket.Upgrader

	mu          sync.Mutex
	listener    net.Listener
	server      *http.Server
	sessions    map[*wsSession]struct{}
	unsubscribe func()

	wg      sync.WaitGroup
	running atomic.Bool
}

// NewBridge creates a bridge. Start must be called before it serves.
func NewBridge(opts Options) *Bridge {
	addr := opts.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	log := opts.Log
	if log == nil {
		log = logging.Default()
	}

	return &Bridge{
		addr:     addr,
		handler:  opts.Handler,
		registry: opts.Registry,
		hub:      opts.Hub,
		log:      log.WithComponent("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Configurator pages load from arbitrary origins; the
			// listener itself binds loopback unless configured
			// otherwise.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[*wsSession]struct{}),
	}
}

// Start binds the listener and begins serving.
func (b *Bridge) Start() error {
	listener, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", b.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/channels", b.handleChannels)
	mux.HandleFunc("/v1/ws", b.handleWS)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	b.mu.Lock()
	b.listener = listener
	b.server = server
	if b.hub != nil {
		b.unsubscribe = b.hub.Subscribe(b.publish)
	}
	b.mu.Unlock()

	b.running.Store(true)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Warn("serve failed", "error", err)
		}
	}()

	b.log.Info("listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address. Before Start it returns the
// configured one.
func (b *Bridge) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener != nil {
		return b.listener.Addr().String()
	}
	return b.addr
}

// Stop notifies subscribed sessions, shuts the server down and closes
// every WebSocket. Safe to call more than once.
func (b *Bridge) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}

	b.mu.Lock()
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	sessions := make([]*wsSession, 0, len(b.sessions))
	for sess := range b.sessions {
		sessions = append(sessions, sess)
	}
	server := b.server
	b.mu.Unlock()

	// Tell subscribers the stream is ending before connections drop.
	shutdown := &ipc.Event{Type: ipc.EventDaemonShutdown, Timestamp: time.Now()}
	for _, sess := range sessions {
		if sess.wants(ipc.EventDaemonShutdown) {
			sess.writeEvent(shutdown)
		}
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			b.log.Warn("shutdown failed", "error", err)
		}
	}

	// Shutdown does not cover upgraded connections.
	for _, sess := range sessions {
		sess.close()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		b.log.Warn("shutdown timed out waiting for sessions")
	}

	return nil
}

// publish fans a hub notification out to subscribed sessions. It is
// registered with notify.Hub.Subscribe and must not block.
func (b *Bridge) publish(ev notify.Event) {
	wire := ipc.EventFromNotification(ev)
	if wire == nil {
		return
	}

	b.mu.Lock()
	sessions := make([]*wsSession, 0, len(b.sessions))
	for sess := range b.sessions {
		sessions = append(sessions, sess)
	}
	b.mu.Unlock()

	for _, sess := range sessions {
		if sess.wants(wire.Type) {
			sess.enqueue(wire)
		}
	}
}

// handleChannels serves the channel listing, the same shape the unix
// socket returns for a list request.
func (b *Bridge) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := ipc.ListChannelsResponse{}
	b.registry.ForEach(func(ch *channel.Channel) error {
		resp.Channels = append(resp.Channels, ipc.ChannelSummary{
			ID:         ch.ID(),
			Name:       ch.Name(),
			Persistent: ch.PersistentSnapshot(),
		})
		return nil
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// handleWS upgrades the connection and runs a session until the peer
// goes away.
func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("upgrade failed", "error", err)
		return
	}

	sess := newWSSession(b, conn)

	b.mu.Lock()
	b.sessions[sess] = struct{}{}
	b.mu.Unlock()

	b.log.Debug("session connected", "session", sess.id, "remote", conn.RemoteAddr().String())

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		sess.pingLoop()
	}()
	go func() {
		defer b.wg.Done()
		sess.eventPump()
	}()

	sess.readLoop()
	sess.close()

	b.mu.Lock()
	delete(b.sessions, sess)
	b.mu.Unlock()

	b.log.Debug("session closed", "session", sess.id)
}
