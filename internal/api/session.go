package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/te9no/pointerd/internal/ipc"
)

// wsSession is one upgraded WebSocket connection. Reads run on the
// HTTP handler goroutine; a ping ticker and an event pump write
// concurrently, serialized by writeMu.
type wsSession struct {
	id     string
	bridge *Bridge
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu         sync.Mutex
	subscribed bool
	events     map[ipc.EventType]bool

	queue chan *ipc.Event
	done  chan struct{}
	once  sync.Once
}

func newWSSession(b *Bridge, conn *websocket.Conn) *wsSession {
	return &wsSession{
		id:     fmt.Sprintf("ws-%d", time.Now().UnixNano()),
		bridge: b,
		conn:   conn,
		queue:  make(chan *ipc.Event, 100),
		done:   make(chan struct{}),
	}
}

func (s *wsSession) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// wants reports whether the session subscribed to the event type. An
// empty filter means everything.
func (s *wsSession) wants(t ipc.EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed && (len(s.events) == 0 || s.events[t])
}

// enqueue hands an event to the pump. Events are dropped rather than
// blocking the caller when the queue is full.
func (s *wsSession) enqueue(ev *ipc.Event) {
	select {
	case s.queue <- ev:
	default:
		s.bridge.log.Warn("event queue full, dropping event", "session", s.id, "type", ev.Type)
	}
}

func (s *wsSession) readLoop() {
	s.conn.SetReadLimit(ipc.MaxPayload)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.writeError(0, ipc.ErrInvalidRequest, "invalid frame")
			continue
		}
		s.dispatch(&frame)
	}
}

func (s *wsSession) dispatch(frame *Frame) {
	switch frame.Type {
	case ipc.MsgPing:
		s.writeFrame(&Frame{Type: ipc.MsgPong, RequestID: frame.RequestID})

	case ipc.MsgSubscribe:
		s.handleSubscribe(frame)

	case ipc.MsgUnsubscribe:
		s.mu.Lock()
		s.subscribed = false
		s.events = nil
		s.mu.Unlock()
		s.writeFrame(&Frame{Type: ipc.MsgUnsubscribeResp, RequestID: frame.RequestID})

	default:
		s.relay(frame)
	}
}

// relay hands the frame to the daemon handler, the same one the unix
// socket dispatches to.
func (s *wsSession) relay(frame *Frame) {
	if s.bridge.handler == nil {
		s.writeError(frame.RequestID, ipc.ErrInvalidRequest, "no handler")
		return
	}

	msg := ipc.NewMessage(frame.Type, frame.RequestID, frame.Data)
	resp, err := s.bridge.handler.HandleMessage(context.Background(), nil, msg)
	if err != nil {
		resp = ipc.NewErrorMessage(frame.RequestID, ipc.ErrInternalError, err.Error())
	}
	if resp != nil {
		s.writeFrame(&Frame{
			Type:      resp.Header.Type,
			RequestID: resp.Header.RequestID,
			Data:      resp.Payload,
		})
	}
}

func (s *wsSession) handleSubscribe(frame *Frame) {
	var req ipc.SubscribeRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			s.writeError(frame.RequestID, ipc.ErrInvalidRequest, "invalid subscribe request")
			return
		}
	}

	events := make(map[ipc.EventType]bool, len(req.Events))
	for _, et := range req.Events {
		events[et] = true
	}

	s.mu.Lock()
	s.subscribed = true
	s.events = events
	s.mu.Unlock()

	payload, err := ipc.Encode(&ipc.SubscribeResponse{
		Success:        true,
		SubscriptionID: s.id,
	})
	if err != nil {
		s.writeError(frame.RequestID, ipc.ErrInternalError, err.Error())
		return
	}
	s.writeFrame(&Frame{Type: ipc.MsgSubscribeResp, RequestID: frame.RequestID, Data: payload})
}

// eventPump delivers queued events in order.
func (s *wsSession) eventPump() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			if err := s.writeEvent(ev); err != nil {
				s.close()
				return
			}
		}
	}
}

// pingLoop keeps the connection alive; the pong handler in readLoop
// extends the read deadline.
func (s *wsSession) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *wsSession) writeEvent(ev *ipc.Event) error {
	payload, err := ipc.Encode(ev)
	if err != nil {
		return err
	}
	return s.writeFrame(&Frame{Type: ipc.MsgEvent, Data: payload})
}

func (s *wsSession) writeError(requestID uint32, code int, message string) {
	payload, _ := ipc.Encode(&ipc.ErrorResponse{Code: code, Message: message})
	s.writeFrame(&Frame{Type: ipc.MsgError, RequestID: requestID, Data: payload})
}

func (s *wsSession) writeFrame(frame *Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
