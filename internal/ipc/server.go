package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/te9no/pointerd/internal/logging"
	"github.com/te9no/pointerd/internal/notify"
)

// Handler processes IPC messages.
type Handler interface {
	HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler.
type HandlerFunc func(ctx context.Context, client *Client, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	return f(ctx, client, msg)
}

// Server is the IPC server that manages client connections.
type Server struct {
	mu          sync.RWMutex
	listener    net.Listener
	socketPath  string
	handler     Handler
	clients     map[string]*Client
	subscribers map[string]*subscription
	maxClients  int
	readTimeout time.Duration
	log         *logging.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	nextRequestID atomic.Uint32

	eventChan chan *Event
}

// Client represents a connected client.
type Client struct {
	mu           sync.Mutex
	ID           string
	conn         net.Conn
	ConnectedAt  time.Time
	LastActivity time.Time

	// Write serialization
	writeMu sync.Mutex
}

// subscription tracks one client's event subscription.
type subscription struct {
	clientID string
	events   map[EventType]bool
}

func (s *subscription) wants(t EventType) bool {
	return len(s.events) == 0 || s.events[t]
}

// ServerConfig configures the IPC server.
type ServerConfig struct {
	SocketPath     string
	ReadTimeout    time.Duration
	MaxConnections int
	Log            *logging.Logger
}

// NewServer creates an IPC server. Start must be called before the
// socket accepts connections.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 64
	}
	log := cfg.Log
	if log == nil {
		log = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath:  cfg.SocketPath,
		handler:     handler,
		clients:     make(map[string]*Client),
		subscribers: make(map[string]*subscription),
		maxClients:  cfg.MaxConnections,
		readTimeout: cfg.ReadTimeout,
		log:         log.WithComponent("ipc"),
		ctx:         ctx,
		cancel:      cancel,
		eventChan:   make(chan *Event, 100),
	}
}

// Start begins listening on the unix socket. The socket file is owner
// access only.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(2)
	go s.eventBroadcaster()
	go s.acceptLoop()

	s.log.Info("listening", "socket", s.socketPath)
	return nil
}

// Stop notifies subscribers, closes every connection and removes the
// socket file. Safe to call more than once.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	// Tell subscribers the stream is ending before connections drop.
	shutdown := &Event{Type: EventDaemonShutdown, Timestamp: time.Now()}
	s.mu.RLock()
	for clientID, sub := range s.subscribers {
		if sub.wants(EventDaemonShutdown) {
			if client, ok := s.clients[clientID]; ok {
				s.sendEvent(client, shutdown)
			}
		}
	}
	s.mu.RUnlock()

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("shutdown timed out waiting for connections")
	}

	os.Remove(s.socketPath)
	return nil
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast queues an event for all subscribed clients. Events are
// dropped rather than blocking the caller when the queue is full.
func (s *Server) Broadcast(event *Event) {
	select {
	case s.eventChan <- event:
	default:
		s.log.Warn("event queue full, dropping event", "type", event.Type)
	}
}

// PublishNotification converts a hub notification to a wire event and
// broadcasts it. Registered with notify.Hub.Subscribe.
func (s *Server) PublishNotification(ev notify.Event) {
	if wire := EventFromNotification(ev); wire != nil {
		s.Broadcast(wire)
	}
}

// EventFromNotification maps a notify.Event onto the wire form shared
// by the unix socket and the HTTP bridge.
func EventFromNotification(ev notify.Event) *Event {
	now := time.Now()
	switch ev.Kind {
	case notify.KindConfigChanged:
		if ev.Config == nil {
			return nil
		}
		return &Event{Type: EventConfigChanged, Timestamp: now, Data: ConfigChangedEvent{
			ID:         ev.ChannelID,
			Name:       ev.Channel,
			Persistent: *ev.Config,
		}}
	case notify.KindChannelReset:
		return &Event{Type: EventChannelReset, Timestamp: now, Data: ChannelResetEvent{
			ID:   ev.ChannelID,
			Name: ev.Channel,
		}}
	case notify.KindLayerChanged:
		return &Event{Type: EventLayerChanged, Timestamp: now, Data: LayerChangedEvent{
			ID:     ev.LayerID,
			Name:   ev.LayerName,
			Active: ev.Active,
		}}
	default:
		return nil
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Warn("accept failed", "error", err)
				continue
			}
		}

		s.mu.RLock()
		count := len(s.clients)
		s.mu.RUnlock()
		if count >= s.maxClients {
			s.log.Warn("connection limit reached, rejecting client")
			conn.Close()
			continue
		}

		client := &Client{
			ID:           generateClientID(),
			conn:         conn,
			ConnectedAt:  time.Now(),
			LastActivity: time.Now(),
		}

		s.mu.Lock()
		s.clients[client.ID] = client
		s.mu.Unlock()

		s.logPeer(client)

		s.wg.Add(1)
		go s.handleConnection(client)
	}
}

func (s *Server) handleConnection(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		delete(s.subscribers, client.ID)
		s.mu.Unlock()
		client.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		client.conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		msg, err := ReadMessage(client.conn)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return
			}
			// Idle connection: ping to keep it alive.
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.sendPing(client)
				continue
			}
			s.log.Debug("read failed", "client", client.ID, "error", err)
			return
		}

		client.mu.Lock()
		client.LastActivity = time.Now()
		client.mu.Unlock()

		response, err := s.processMessage(client, msg)
		if err != nil {
			response = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if response != nil {
			if err := s.sendMessage(client, response); err != nil {
				return
			}
		}
	}
}

func (s *Server) processMessage(client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil

	case MsgPong:
		// Reply to our keepalive, nothing to do.
		return nil, nil

	case MsgSubscribe:
		return s.handleSubscribe(client, msg)

	case MsgUnsubscribe:
		return s.handleUnsubscribe(client, msg)

	default:
		if s.handler == nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "no handler"), nil
		}
		return s.handler.HandleMessage(s.ctx, client, msg)
	}
}

func (s *Server) handleSubscribe(client *Client, msg *Message) (*Message, error) {
	var req SubscribeRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid subscribe request"), nil
		}
	}

	sub := &subscription{
		clientID: client.ID,
		events:   make(map[EventType]bool, len(req.Events)),
	}
	for _, et := range req.Events {
		sub.events[et] = true
	}

	s.mu.Lock()
	s.subscribers[client.ID] = sub
	s.mu.Unlock()

	return NewResponse(MsgSubscribeResp, msg.Header.RequestID, &SubscribeResponse{
		Success:        true,
		SubscriptionID: client.ID,
	})
}

func (s *Server) handleUnsubscribe(client *Client, msg *Message) (*Message, error) {
	s.mu.Lock()
	delete(s.subscribers, client.ID)
	s.mu.Unlock()

	return NewMessage(MsgUnsubscribeResp, msg.Header.RequestID, nil), nil
}

func (s *Server) eventBroadcaster() {
	defer s.wg.Done()

	for event := range s.eventChan {
		s.mu.RLock()
		for clientID, sub := range s.subscribers {
			if sub.wants(event.Type) {
				if client, ok := s.clients[clientID]; ok {
					go s.sendEvent(client, event)
				}
			}
		}
		s.mu.RUnlock()
	}
}

func (s *Server) sendEvent(client *Client, event *Event) {
	payload, err := Encode(event)
	if err != nil {
		return
	}
	msg := NewMessage(MsgEvent, s.nextRequestID.Add(1), payload)
	s.sendMessage(client, msg)
}

func (s *Server) sendMessage(client *Client, msg *Message) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return msg.Write(client.conn)
}

func (s *Server) sendPing(client *Client) {
	msg := NewMessage(MsgPing, s.nextRequestID.Add(1), nil)
	s.sendMessage(client, msg)
}

func (s *Server) logPeer(client *Client) {
	if cred, err := peerCredentials(client.conn); err == nil {
		s.log.Debug("client connected", "client", client.ID, "pid", cred.PID, "uid", cred.UID)
	} else {
		s.log.Debug("client connected", "client", client.ID)
	}
}

func generateClientID() string {
	return fmt.Sprintf("client-%d", time.Now().UnixNano())
}
