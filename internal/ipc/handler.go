package ipc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/layers"
	"github.com/te9no/pointerd/internal/transform"
)

// DaemonHandler resolves IPC messages against the channel registry and
// layer state. Every setter applies persistently; the resulting save
// and notification fan-out run through the channel itself.
type DaemonHandler struct {
	version   string
	startedAt time.Time

	registry *channel.Registry
	layers   *layers.State

	storePath string
	storePing func() error

	bridgeAddr string
	dbus       bool

	clientCount func() int

	// broadcaster, when set, lets list requests replay channel state
	// to subscribers.
	broadcaster func(*Event)
}

// DaemonHandlerConfig configures the daemon handler.
type DaemonHandlerConfig struct {
	Version  string
	Registry *channel.Registry
	Layers   *layers.State

	// StorePath and StorePing feed the status response.
	StorePath string
	StorePing func() error

	BridgeAddr string
	DBus       bool

	// ClientCount reports connected clients for status.
	ClientCount func() int
}

// NewDaemonHandler creates a daemon handler.
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	return &DaemonHandler{
		version:     cfg.Version,
		startedAt:   time.Now(),
		registry:    cfg.Registry,
		layers:      cfg.Layers,
		storePath:   cfg.StorePath,
		storePing:   cfg.StorePing,
		bridgeAddr:  cfg.BridgeAddr,
		dbus:        cfg.DBus,
		clientCount: cfg.ClientCount,
	}
}

// SetBroadcaster sets the function used to replay events to
// subscribers.
func (h *DaemonHandler) SetBroadcaster(broadcaster func(*Event)) {
	h.broadcaster = broadcaster
}

// HandleMessage processes an IPC message.
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgStatus:
		return h.handleStatus(msg)

	case MsgListChannels:
		return h.handleListChannels(msg)

	case MsgGetChannel:
		return h.handleGetChannel(msg)

	case MsgSetScaleMultiplier, MsgSetScaleDivisor:
		return h.handleSetScale(msg)

	case MsgSetRotation:
		return h.handleSetRotation(msg)

	case MsgSetTempLayerEnabled:
		return h.handleSetTempLayerEnabled(msg)

	case MsgSetTempLayerID:
		return h.handleSetTempLayerID(msg)

	case MsgSetActivationDelay, MsgSetDeactivationDelay:
		return h.handleSetDelay(msg)

	case MsgSetTempLayer:
		return h.handleSetTempLayer(msg)

	case MsgSetActiveLayers:
		return h.handleSetActiveLayers(msg)

	case MsgSetSnapMode:
		return h.handleSetSnapMode(msg)

	case MsgSetSnapThreshold, MsgSetSnapTimeout:
		return h.handleSetSnapValue(msg)

	case MsgSetAxisSnap:
		return h.handleSetAxisSnap(msg)

	case MsgSetCodeMap:
		return h.handleSetCodeMap(msg)

	case MsgSetInvert:
		return h.handleSetInvert(msg)

	case MsgResetChannel:
		return h.handleResetChannel(msg)

	case MsgGetLayerInfo:
		return h.handleGetLayerInfo(msg)

	case MsgSetLayer:
		return h.handleSetLayer(msg)

	default:
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
			fmt.Sprintf("unknown message type: 0x%04x", uint16(msg.Header.Type))), nil
	}
}

func (h *DaemonHandler) handleStatus(msg *Message) (*Message, error) {
	resp := &StatusResponse{
		Version:    h.version,
		Uptime:     time.Since(h.startedAt),
		StartedAt:  h.startedAt,
		Channels:   h.registry.Len(),
		Layers:     h.layers.Count(),
		StorePath:  h.storePath,
		BridgeAddr: h.bridgeAddr,
		DBus:       h.dbus,
	}
	if h.storePing != nil {
		resp.StoreOK = h.storePing() == nil
	}
	if h.clientCount != nil {
		resp.Clients = h.clientCount()
	}
	return NewResponse(MsgStatusResp, msg.Header.RequestID, resp)
}

func (h *DaemonHandler) handleListChannels(msg *Message) (*Message, error) {
	resp := &ListChannelsResponse{}
	h.registry.ForEach(func(ch *channel.Channel) error {
		persistent := ch.PersistentSnapshot()
		resp.Channels = append(resp.Channels, ChannelSummary{
			ID:         ch.ID(),
			Name:       ch.Name(),
			Persistent: persistent,
		})
		// Listing doubles as a state replay for subscribers.
		if h.broadcaster != nil {
			h.broadcaster(&Event{
				Type:      EventConfigChanged,
				Timestamp: time.Now(),
				Data: ConfigChangedEvent{
					ID:         ch.ID(),
					Name:       ch.Name(),
					Persistent: persistent,
				},
			})
		}
		return nil
	})
	return NewResponse(MsgListChannelsResp, msg.Header.RequestID, resp)
}

func (h *DaemonHandler) handleGetChannel(msg *Message) (*Message, error) {
	var req ChannelRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetScale(msg *Message) (*Message, error) {
	var req SetScaleRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}

	// The untouched factor keeps its persistent value.
	persistent := ch.PersistentSnapshot()
	multiplier, divisor := persistent.ScaleMultiplier, persistent.ScaleDivisor
	if msg.Header.Type == MsgSetScaleMultiplier {
		multiplier = req.Value
	} else {
		divisor = req.Value
	}

	if err := ch.SetScaling(multiplier, divisor, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetRotation(msg *Message) (*Message, error) {
	var req SetRotationRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	if err := ch.SetRotation(req.Degrees, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetTempLayerEnabled(msg *Message) (*Message, error) {
	var req SetBoolRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	if err := ch.SetTempLayerEnabled(req.Enabled, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetTempLayerID(msg *Message) (*Message, error) {
	var req SetLayerIDRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	if err := ch.SetTempLayerID(req.Layer, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetDelay(msg *Message) (*Message, error) {
	var req SetDelayRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}

	var err error
	if msg.Header.Type == MsgSetActivationDelay {
		err = ch.SetActivationDelay(req.Ms, true)
	} else {
		err = ch.SetDeactivationDelay(req.Ms, true)
	}
	if err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetTempLayer(msg *Message) (*Message, error) {
	var req SetTempLayerRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	if err := ch.SetTempLayer(req.Enabled, req.Layer, req.ActivationMs, req.DeactivationMs, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetActiveLayers(msg *Message) (*Message, error) {
	var req SetActiveLayersRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	if err := ch.SetActiveLayers(req.Mask, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetSnapMode(msg *Message) (*Message, error) {
	var req SetSnapModeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	mode, err := transform.ParseSnapMode(req.Mode)
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidArgument, err.Error()), nil
	}
	if err := ch.SetSnapMode(mode, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetSnapValue(msg *Message) (*Message, error) {
	var req SetSnapValueRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}

	var err error
	if msg.Header.Type == MsgSetSnapThreshold {
		err = ch.SetSnapThreshold(req.Value, true)
	} else {
		err = ch.SetSnapTimeout(req.Value, true)
	}
	if err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetAxisSnap(msg *Message) (*Message, error) {
	var req SetAxisSnapRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	mode, err := transform.ParseSnapMode(req.Mode)
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidArgument, err.Error()), nil
	}
	if err := ch.SetAxisSnap(mode, req.Threshold, req.TimeoutMs, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetCodeMap(msg *Message) (*Message, error) {
	var req SetCodeMapRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	if err := ch.SetCodeMap(req.XYToScroll, req.SwapXY, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleSetInvert(msg *Message) (*Message, error) {
	var req SetInvertRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	if err := ch.SetInvert(req.X, req.Y, true); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleResetChannel(msg *Message) (*Message, error) {
	var req ChannelRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}
	ch, errMsg := h.findChannel(msg, req.ID)
	if errMsg != nil {
		return errMsg, nil
	}
	if err := ch.Reset(); err != nil {
		return setterError(msg, err), nil
	}
	return channelState(msg, ch)
}

func (h *DaemonHandler) handleGetLayerInfo(msg *Message) (*Message, error) {
	return NewResponse(MsgGetLayerInfoResp, msg.Header.RequestID, &LayerInfoResponse{
		Layers: h.layers.Snapshot(),
	})
}

func (h *DaemonHandler) handleSetLayer(msg *Message) (*Message, error) {
	var req SetLayerRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return invalidRequest(msg), nil
	}

	var err error
	if req.Active {
		err = h.layers.Activate(req.Layer)
	} else {
		err = h.layers.Deactivate(req.Layer)
	}
	if errors.Is(err, layers.ErrUnknownLayer) {
		return NewErrorMessage(msg.Header.RequestID, ErrNotFound, err.Error()), nil
	}
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	return NewResponse(MsgGetLayerInfoResp, msg.Header.RequestID, &LayerInfoResponse{
		Layers: h.layers.Snapshot(),
	})
}

func (h *DaemonHandler) findChannel(msg *Message, id uint8) (*channel.Channel, *Message) {
	ch, ok := h.registry.FindByID(id)
	if !ok {
		return nil, NewErrorMessage(msg.Header.RequestID, ErrNotFound,
			fmt.Sprintf("unknown channel id %d", id))
	}
	return ch, nil
}

func channelState(msg *Message, ch *channel.Channel) (*Message, error) {
	return NewResponse(MsgChannelState, msg.Header.RequestID, ch.Status())
}

func invalidRequest(msg *Message) *Message {
	return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request payload")
}

func setterError(msg *Message, err error) *Message {
	code := ErrInternalError
	if errors.Is(err, channel.ErrInvalidArgument) {
		code = ErrInvalidArgument
	}
	return NewErrorMessage(msg.Header.RequestID, code, err.Error())
}
