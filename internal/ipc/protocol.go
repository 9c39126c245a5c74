// Package ipc implements the framed unix-socket protocol between the
// pointerd daemon and its clients (pointerctl, the HTTP bridge,
// third-party tools).
//
// Every message is a fixed 16-byte big-endian header followed by a
// JSON payload. Requests carry a client-chosen RequestID that the
// response echoes, so one connection can interleave commands with the
// event stream.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/layers"
)

// Protocol identity.
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x50495043 // "PIPC"
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing  MessageType = 0x0001
	MsgPong  MessageType = 0x0002
	MsgError MessageType = 0x0005

	// Daemon status (0x01xx)
	MsgStatus     MessageType = 0x0100
	MsgStatusResp MessageType = 0x0101

	// Channel queries (0x02xx)
	MsgListChannels     MessageType = 0x0200
	MsgListChannelsResp MessageType = 0x0201
	MsgGetChannel       MessageType = 0x0202
	MsgChannelState     MessageType = 0x0203 // response to gets, sets and resets

	// Channel setters (0x03xx). All of them apply persistently and
	// respond with MsgChannelState carrying the updated snapshot.
	MsgSetScaleMultiplier   MessageType = 0x0300
	MsgSetScaleDivisor      MessageType = 0x0301
	MsgSetRotation          MessageType = 0x0302
	MsgSetTempLayerEnabled  MessageType = 0x0303
	MsgSetTempLayerID       MessageType = 0x0304
	MsgSetActivationDelay   MessageType = 0x0305
	MsgSetDeactivationDelay MessageType = 0x0306
	MsgSetTempLayer         MessageType = 0x0307
	MsgSetActiveLayers      MessageType = 0x0308
	MsgSetSnapMode          MessageType = 0x0309
	MsgSetSnapThreshold     MessageType = 0x030A
	MsgSetSnapTimeout       MessageType = 0x030B
	MsgSetAxisSnap          MessageType = 0x030C
	MsgSetCodeMap           MessageType = 0x030D
	MsgSetInvert            MessageType = 0x030E
	MsgResetChannel         MessageType = 0x0310

	// Layer state (0x04xx)
	MsgGetLayerInfo     MessageType = 0x0400
	MsgGetLayerInfoResp MessageType = 0x0401
	MsgSetLayer         MessageType = 0x0402

	// Event streaming (0x05xx)
	MsgSubscribe       MessageType = 0x0500
	MsgSubscribeResp   MessageType = 0x0501
	MsgUnsubscribe     MessageType = 0x0502
	MsgUnsubscribeResp MessageType = 0x0503
	MsgEvent           MessageType = 0x0504
)

// EventType identifies the type of streamed event.
type EventType uint16

const (
	EventConfigChanged  EventType = 0x0001
	EventLayerChanged   EventType = 0x0002
	EventChannelReset   EventType = 0x0003
	EventDaemonShutdown EventType = 0x0004
)

// Header is the fixed-size message header (16 bytes).
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes.
const HeaderSize = 16

// FlagJSON marks the payload as JSON. Currently the only encoding.
const FlagJSON uint8 = 0x04

// MaxPayload caps payload size; pointerd messages are small, anything
// bigger is a framing error.
const MaxPayload = 1 << 20

// Message wraps a header and payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a message with the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer.
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ErrorResponse is sent when an operation fails.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrUnknown         = 1
	ErrInvalidRequest  = 2
	ErrNotFound        = 3
	ErrInvalidArgument = 4
	ErrInternalError   = 5
)

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Version    string        `json:"version"`
	Uptime     time.Duration `json:"uptime"`
	StartedAt  time.Time     `json:"started_at"`
	Channels   int           `json:"channels"`
	Layers     int           `json:"layers"`
	Clients    int           `json:"clients"`
	StorePath  string        `json:"store_path,omitempty"`
	StoreOK    bool          `json:"store_ok"`
	BridgeAddr string        `json:"bridge_addr,omitempty"`
	DBus       bool          `json:"dbus"`
}

// ChannelSummary is one row of a channel listing.
type ChannelSummary struct {
	ID         uint8          `json:"id"`
	Name       string         `json:"name"`
	Persistent channel.Config `json:"persistent"`
}

// ListChannelsResponse contains the channel listing.
type ListChannelsResponse struct {
	Channels []ChannelSummary `json:"channels"`
}

// ChannelRequest addresses one channel by id.
type ChannelRequest struct {
	ID uint8 `json:"id"`
}

// MsgChannelState responses carry a channel.Status payload: the full
// active and persistent snapshot after the operation.

// SetScaleRequest carries one scale factor.
type SetScaleRequest struct {
	ID    uint8  `json:"id"`
	Value uint32 `json:"value"`
}

// SetRotationRequest sets the rotation angle.
type SetRotationRequest struct {
	ID      uint8 `json:"id"`
	Degrees int32 `json:"degrees"`
}

// SetBoolRequest carries one boolean field.
type SetBoolRequest struct {
	ID      uint8 `json:"id"`
	Enabled bool  `json:"enabled"`
}

// SetLayerIDRequest selects the automatic overlay layer.
type SetLayerIDRequest struct {
	ID    uint8 `json:"id"`
	Layer uint8 `json:"layer"`
}

// SetDelayRequest carries one delay in milliseconds.
type SetDelayRequest struct {
	ID uint8  `json:"id"`
	Ms uint16 `json:"ms"`
}

// SetTempLayerRequest configures the automatic overlay in one call.
type SetTempLayerRequest struct {
	ID             uint8  `json:"id"`
	Enabled        bool   `json:"enabled"`
	Layer          uint8  `json:"layer"`
	ActivationMs   uint16 `json:"activation_ms"`
	DeactivationMs uint16 `json:"deactivation_ms"`
}

// SetActiveLayersRequest sets the layer gate bitmask.
type SetActiveLayersRequest struct {
	ID   uint8  `json:"id"`
	Mask uint32 `json:"mask"`
}

// SetSnapModeRequest selects the axis-snap mode by name.
type SetSnapModeRequest struct {
	ID   uint8  `json:"id"`
	Mode string `json:"mode"` // "none", "x" or "y"
}

// SetSnapValueRequest carries the snap threshold or timeout.
type SetSnapValueRequest struct {
	ID    uint8  `json:"id"`
	Value uint16 `json:"value"`
}

// SetAxisSnapRequest configures axis snapping in one call.
type SetAxisSnapRequest struct {
	ID        uint8  `json:"id"`
	Mode      string `json:"mode"`
	Threshold uint16 `json:"threshold"`
	TimeoutMs uint16 `json:"timeout_ms"`
}

// SetCodeMapRequest sets the output code mapping.
type SetCodeMapRequest struct {
	ID         uint8 `json:"id"`
	XYToScroll bool  `json:"xy_to_scroll"`
	SwapXY     bool  `json:"swap_xy"`
}

// SetInvertRequest sets the axis inversion flags.
type SetInvertRequest struct {
	ID uint8 `json:"id"`
	X  bool  `json:"x"`
	Y  bool  `json:"y"`
}

// LayerInfoResponse lists the configured layers.
type LayerInfoResponse struct {
	Layers []layers.Info `json:"layers"`
}

// SetLayerRequest manually activates or deactivates a layer.
type SetLayerRequest struct {
	Layer  uint8 `json:"layer"`
	Active bool  `json:"active"`
}

// SubscribeRequest requests event subscription. An empty event list
// subscribes to everything.
type SubscribeRequest struct {
	Events []EventType `json:"events"`
}

// SubscribeResponse acknowledges subscription.
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed event.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// ConfigChangedEvent carries a channel's persistent snapshot.
type ConfigChangedEvent struct {
	ID         uint8          `json:"id"`
	Name       string         `json:"name"`
	Persistent channel.Config `json:"persistent"`
}

// LayerChangedEvent reports a layer activation edge.
type LayerChangedEvent struct {
	ID     uint8  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ChannelResetEvent reports a channel reset to defaults.
type ChannelResetEvent struct {
	ID   uint8  `json:"id"`
	Name string `json:"name"`
}

// Encode encodes a payload to JSON bytes.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload.
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
