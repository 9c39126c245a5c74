package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/layers"
)

// Common client errors.
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// IPCClient talks to the pointerd daemon over its unix socket.
type IPCClient struct {
	mu         sync.RWMutex
	conn       net.Conn
	socketPath string

	connected    atomic.Bool
	reconnecting atomic.Bool

	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32

	// Write serialization: a frame is two writes, header then payload.
	writeMu sync.Mutex

	eventChan    chan *Event
	eventHandler EventHandler
	eventMu      sync.RWMutex

	autoReconnect bool
	reconnectWait time.Duration
	maxReconnect  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	config ClientConfig
}

// ClientConfig configures the IPC client.
type ClientConfig struct {
	SocketPath     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	AutoReconnect  bool
	ReconnectWait  time.Duration
	MaxReconnect   int
}

// DefaultClientConfig returns client defaults for the given socket.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
		AutoReconnect:  false,
		ReconnectWait:  time.Second,
		MaxReconnect:   3,
	}
}

// EventHandler is called when streamed events are received.
type EventHandler func(event *Event)

// NewClient creates an IPC client. Connect must be called before use.
func NewClient(cfg ClientConfig) *IPCClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &IPCClient{
		socketPath:    cfg.SocketPath,
		pending:       make(map[uint32]chan *Message),
		eventChan:     make(chan *Event, 100),
		autoReconnect: cfg.AutoReconnect,
		reconnectWait: cfg.ReconnectWait,
		maxReconnect:  cfg.MaxReconnect,
		ctx:           ctx,
		cancel:        cancel,
		config:        cfg,
	}
}

// Connect establishes the connection to the daemon.
func (c *IPCClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return nil
	}

	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.Dial("unix", c.socketPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("connect: %w", err)
	}

	c.conn = conn
	c.connected.Store(true)

	c.wg.Add(1)
	go c.readLoop()

	return nil
}

// Close shuts the client down.
func (c *IPCClient) Close() error {
	c.cancel()
	c.close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}

	close(c.eventChan)
	return nil
}

// close tears the connection down without signaling shutdown.
func (c *IPCClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)

	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *Message)
	c.pendingMu.Unlock()
}

// IsConnected reports whether the client is connected.
func (c *IPCClient) IsConnected() bool {
	return c.connected.Load()
}

// SetEventHandler sets the handler for streamed events.
func (c *IPCClient) SetEventHandler(handler EventHandler) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.eventHandler = handler
}

// Events returns the channel streamed events arrive on.
func (c *IPCClient) Events() <-chan *Event {
	return c.eventChan
}

// request sends a request and waits for the response.
func (c *IPCClient) request(msgType MessageType, payload any) (*Message, error) {
	return c.requestWithTimeout(msgType, payload, c.config.RequestTimeout)
}

func (c *IPCClient) requestWithTimeout(msgType MessageType, payload any, timeout time.Duration) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	msg := NewMessage(msgType, reqID, data)

	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	if err := c.writeMessage(msg); err != nil {
		c.close()
		return nil, fmt.Errorf("write message: %w", err)
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *IPCClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			// Reconnecting starts a fresh read loop; this one is done
			// either way.
			if c.autoReconnect {
				c.tryReconnect()
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		msg, err := ReadMessage(conn)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.sendPing()
				continue
			}
			c.close()
			if c.autoReconnect {
				c.tryReconnect()
			}
			return
		}

		c.handleMessage(msg)
	}
}

func (c *IPCClient) handleMessage(msg *Message) {
	switch msg.Header.Type {
	case MsgPing:
		c.writeMessage(NewMessage(MsgPong, msg.Header.RequestID, nil))

	case MsgEvent:
		var event Event
		if err := Decode(msg.Payload, &event); err == nil {
			select {
			case c.eventChan <- &event:
			default:
				// Queue full, drop.
			}

			c.eventMu.RLock()
			handler := c.eventHandler
			c.eventMu.RUnlock()
			if handler != nil {
				go handler(&event)
			}
		}

	default:
		// Responses, including pongs. Unsolicited pongs answering our
		// keepalive pings have no pending entry and fall through.
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		c.pendingMu.Unlock()
	}
}

func (c *IPCClient) sendPing() {
	c.writeMessage(NewMessage(MsgPing, c.nextReqID.Add(1), nil))
}

// writeMessage serializes frame writes onto the connection.
func (c *IPCClient) writeMessage(msg *Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return msg.Write(conn)
}

func (c *IPCClient) tryReconnect() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer c.reconnecting.Store(false)

	for i := 0; i < c.maxReconnect; i++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.reconnectWait):
		}
		if err := c.Connect(); err == nil {
			return
		}
	}
}

// decodeResponse checks for an error reply and decodes the payload.
func decodeResponse(resp *Message, want MessageType, v any) error {
	if resp.Header.Type == MsgError {
		var errResp ErrorResponse
		if err := Decode(resp.Payload, &errResp); err != nil {
			return fmt.Errorf("daemon error (undecodable payload)")
		}
		return fmt.Errorf("%s", errResp.Message)
	}
	if resp.Header.Type != want {
		return fmt.Errorf("unexpected response type: 0x%04x", uint16(resp.Header.Type))
	}
	if v == nil {
		return nil
	}
	return Decode(resp.Payload, v)
}

// High-level API

// Ping checks the daemon is responsive.
func (c *IPCClient) Ping() error {
	resp, err := c.requestWithTimeout(MsgPing, nil, 5*time.Second)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response type: 0x%04x", uint16(resp.Header.Type))
	}
	return nil
}

// Status requests daemon status.
func (c *IPCClient) Status() (*StatusResponse, error) {
	resp, err := c.request(MsgStatus, nil)
	if err != nil {
		return nil, err
	}
	var status StatusResponse
	if err := decodeResponse(resp, MsgStatusResp, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListChannels lists all channels with their persistent snapshots.
func (c *IPCClient) ListChannels() ([]ChannelSummary, error) {
	resp, err := c.request(MsgListChannels, nil)
	if err != nil {
		return nil, err
	}
	var list ListChannelsResponse
	if err := decodeResponse(resp, MsgListChannelsResp, &list); err != nil {
		return nil, err
	}
	return list.Channels, nil
}

// GetChannel fetches the full state of one channel.
func (c *IPCClient) GetChannel(id uint8) (*channel.Status, error) {
	return c.stateRequest(MsgGetChannel, &ChannelRequest{ID: id})
}

// SetScaleMultiplier sets the persistent scale multiplier.
func (c *IPCClient) SetScaleMultiplier(id uint8, value uint32) (*channel.Status, error) {
	return c.stateRequest(MsgSetScaleMultiplier, &SetScaleRequest{ID: id, Value: value})
}

// SetScaleDivisor sets the persistent scale divisor.
func (c *IPCClient) SetScaleDivisor(id uint8, value uint32) (*channel.Status, error) {
	return c.stateRequest(MsgSetScaleDivisor, &SetScaleRequest{ID: id, Value: value})
}

// SetRotation sets the persistent rotation angle.
func (c *IPCClient) SetRotation(id uint8, degrees int32) (*channel.Status, error) {
	return c.stateRequest(MsgSetRotation, &SetRotationRequest{ID: id, Degrees: degrees})
}

// SetTempLayerEnabled toggles the automatic overlay.
func (c *IPCClient) SetTempLayerEnabled(id uint8, enabled bool) (*channel.Status, error) {
	return c.stateRequest(MsgSetTempLayerEnabled, &SetBoolRequest{ID: id, Enabled: enabled})
}

// SetTempLayerID selects the overlay layer.
func (c *IPCClient) SetTempLayerID(id, layer uint8) (*channel.Status, error) {
	return c.stateRequest(MsgSetTempLayerID, &SetLayerIDRequest{ID: id, Layer: layer})
}

// SetActivationDelay sets the overlay activation delay.
func (c *IPCClient) SetActivationDelay(id uint8, ms uint16) (*channel.Status, error) {
	return c.stateRequest(MsgSetActivationDelay, &SetDelayRequest{ID: id, Ms: ms})
}

// SetDeactivationDelay sets the overlay deactivation delay.
func (c *IPCClient) SetDeactivationDelay(id uint8, ms uint16) (*channel.Status, error) {
	return c.stateRequest(MsgSetDeactivationDelay, &SetDelayRequest{ID: id, Ms: ms})
}

// SetTempLayer configures the automatic overlay in one call.
func (c *IPCClient) SetTempLayer(id uint8, enabled bool, layer uint8, activationMs, deactivationMs uint16) (*channel.Status, error) {
	return c.stateRequest(MsgSetTempLayer, &SetTempLayerRequest{
		ID:             id,
		Enabled:        enabled,
		Layer:          layer,
		ActivationMs:   activationMs,
		DeactivationMs: deactivationMs,
	})
}

// SetActiveLayers sets the layer gate bitmask.
func (c *IPCClient) SetActiveLayers(id uint8, mask uint32) (*channel.Status, error) {
	return c.stateRequest(MsgSetActiveLayers, &SetActiveLayersRequest{ID: id, Mask: mask})
}

// SetSnapMode sets the axis-snap mode ("none", "x" or "y").
func (c *IPCClient) SetSnapMode(id uint8, mode string) (*channel.Status, error) {
	return c.stateRequest(MsgSetSnapMode, &SetSnapModeRequest{ID: id, Mode: mode})
}

// SetSnapThreshold sets the axis-snap threshold.
func (c *IPCClient) SetSnapThreshold(id uint8, value uint16) (*channel.Status, error) {
	return c.stateRequest(MsgSetSnapThreshold, &SetSnapValueRequest{ID: id, Value: value})
}

// SetSnapTimeout sets the axis-snap decay timeout.
func (c *IPCClient) SetSnapTimeout(id uint8, ms uint16) (*channel.Status, error) {
	return c.stateRequest(MsgSetSnapTimeout, &SetSnapValueRequest{ID: id, Value: ms})
}

// SetAxisSnap configures axis snapping in one call.
func (c *IPCClient) SetAxisSnap(id uint8, mode string, threshold, timeoutMs uint16) (*channel.Status, error) {
	return c.stateRequest(MsgSetAxisSnap, &SetAxisSnapRequest{
		ID:        id,
		Mode:      mode,
		Threshold: threshold,
		TimeoutMs: timeoutMs,
	})
}

// SetCodeMap sets the output code mapping flags.
func (c *IPCClient) SetCodeMap(id uint8, xyToScroll, swapXY bool) (*channel.Status, error) {
	return c.stateRequest(MsgSetCodeMap, &SetCodeMapRequest{ID: id, XYToScroll: xyToScroll, SwapXY: swapXY})
}

// SetInvert sets the axis inversion flags.
func (c *IPCClient) SetInvert(id uint8, x, y bool) (*channel.Status, error) {
	return c.stateRequest(MsgSetInvert, &SetInvertRequest{ID: id, X: x, Y: y})
}

// ResetChannel resets a channel to compile-time defaults.
func (c *IPCClient) ResetChannel(id uint8) (*channel.Status, error) {
	return c.stateRequest(MsgResetChannel, &ChannelRequest{ID: id})
}

// LayerInfo lists the configured layers.
func (c *IPCClient) LayerInfo() ([]layers.Info, error) {
	resp, err := c.request(MsgGetLayerInfo, nil)
	if err != nil {
		return nil, err
	}
	var info LayerInfoResponse
	if err := decodeResponse(resp, MsgGetLayerInfoResp, &info); err != nil {
		return nil, err
	}
	return info.Layers, nil
}

// SetLayer manually activates or deactivates a layer.
func (c *IPCClient) SetLayer(layer uint8, active bool) ([]layers.Info, error) {
	resp, err := c.request(MsgSetLayer, &SetLayerRequest{Layer: layer, Active: active})
	if err != nil {
		return nil, err
	}
	var info LayerInfoResponse
	if err := decodeResponse(resp, MsgGetLayerInfoResp, &info); err != nil {
		return nil, err
	}
	return info.Layers, nil
}

// Subscribe starts the event stream. An empty event list subscribes to
// everything.
func (c *IPCClient) Subscribe(events ...EventType) error {
	resp, err := c.request(MsgSubscribe, &SubscribeRequest{Events: events})
	if err != nil {
		return err
	}
	var sub SubscribeResponse
	if err := decodeResponse(resp, MsgSubscribeResp, &sub); err != nil {
		return err
	}
	if !sub.Success {
		return errors.New("subscribe rejected")
	}
	return nil
}

// Unsubscribe stops the event stream.
func (c *IPCClient) Unsubscribe() error {
	resp, err := c.request(MsgUnsubscribe, nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, MsgUnsubscribeResp, nil)
}

func (c *IPCClient) stateRequest(msgType MessageType, payload any) (*channel.Status, error) {
	resp, err := c.request(msgType, payload)
	if err != nil {
		return nil, err
	}
	var status channel.Status
	if err := decodeResponse(resp, MsgChannelState, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
