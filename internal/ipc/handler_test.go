package ipc

import (
	"context"
	"testing"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/layers"
	"github.com/te9no/pointerd/internal/schedule"
	"github.com/te9no/pointerd/internal/transform"
)

func testLayerState(t *testing.T) *layers.State {
	t.Helper()
	st, err := layers.New([]layers.Definition{
		{Name: "base", Default: true},
		{Name: "nav"},
	})
	if err != nil {
		t.Fatalf("layers.New: %v", err)
	}
	return st
}

func testHandler(t *testing.T) (*DaemonHandler, *channel.Registry) {
	t.Helper()
	st := testLayerState(t)

	reg := channel.NewRegistry()
	for i, name := range []string{"trackball", "touchpad"} {
		ch, err := channel.New(uint8(i), channel.Options{
			Name:      name,
			Layers:    st,
			Scheduler: schedule.NewManual(),
		})
		if err != nil {
			t.Fatalf("channel.New(%s): %v", name, err)
		}
		if err := reg.Add(ch); err != nil {
			t.Fatalf("registry.Add(%s): %v", name, err)
		}
	}

	h := NewDaemonHandler(DaemonHandlerConfig{
		Version:     "test",
		Registry:    reg,
		Layers:      st,
		StorePath:   "/tmp/settings.db",
		StorePing:   func() error { return nil },
		BridgeAddr:  "127.0.0.1:8489",
		ClientCount: func() int { return 3 },
	})
	return h, reg
}

func dispatch(t *testing.T, h *DaemonHandler, msgType MessageType, payload any) *Message {
	t.Helper()
	var data []byte
	if payload != nil {
		var err error
		data, err = Encode(payload)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	resp, err := h.HandleMessage(context.Background(), nil, NewMessage(msgType, 1, data))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response message")
	}
	return resp
}

func decodeState(t *testing.T, resp *Message) channel.Status {
	t.Helper()
	if resp.Header.Type != MsgChannelState {
		var errResp ErrorResponse
		Decode(resp.Payload, &errResp)
		t.Fatalf("expected channel state, got type 0x%04x (%s)", uint16(resp.Header.Type), errResp.Message)
	}
	var status channel.Status
	if err := Decode(resp.Payload, &status); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return status
}

func decodeError(t *testing.T, resp *Message) ErrorResponse {
	t.Helper()
	if resp.Header.Type != MsgError {
		t.Fatalf("expected error, got type 0x%04x", uint16(resp.Header.Type))
	}
	var errResp ErrorResponse
	if err := Decode(resp.Payload, &errResp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return errResp
}

func TestHandlerStatus(t *testing.T) {
	h, _ := testHandler(t)

	resp := dispatch(t, h, MsgStatus, nil)
	if resp.Header.Type != MsgStatusResp {
		t.Fatalf("expected status response, got 0x%04x", uint16(resp.Header.Type))
	}

	var status StatusResponse
	if err := Decode(resp.Payload, &status); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if status.Version != "test" {
		t.Errorf("expected version test, got %q", status.Version)
	}
	if status.Channels != 2 || status.Layers != 2 {
		t.Errorf("expected 2 channels and 2 layers, got %d/%d", status.Channels, status.Layers)
	}
	if !status.StoreOK {
		t.Error("expected store ok")
	}
	if status.Clients != 3 {
		t.Errorf("expected 3 clients, got %d", status.Clients)
	}
}

func TestHandlerListChannelsReplaysState(t *testing.T) {
	h, _ := testHandler(t)

	var replayed []*Event
	h.SetBroadcaster(func(ev *Event) { replayed = append(replayed, ev) })

	resp := dispatch(t, h, MsgListChannels, nil)
	if resp.Header.Type != MsgListChannelsResp {
		t.Fatalf("expected list response, got 0x%04x", uint16(resp.Header.Type))
	}

	var list ListChannelsResponse
	if err := Decode(resp.Payload, &list); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(list.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(list.Channels))
	}
	if list.Channels[0].Name != "trackball" || list.Channels[1].Name != "touchpad" {
		t.Errorf("unexpected order: %s, %s", list.Channels[0].Name, list.Channels[1].Name)
	}

	if len(replayed) != 2 {
		t.Fatalf("expected 2 replayed events, got %d", len(replayed))
	}
	for _, ev := range replayed {
		if ev.Type != EventConfigChanged {
			t.Errorf("expected config changed replay, got 0x%04x", uint16(ev.Type))
		}
	}
}

func TestHandlerGetChannel(t *testing.T) {
	h, _ := testHandler(t)

	status := decodeState(t, dispatch(t, h, MsgGetChannel, &ChannelRequest{ID: 1}))
	if status.ID != 1 || status.Name != "touchpad" {
		t.Errorf("expected 1/touchpad, got %d/%s", status.ID, status.Name)
	}
}

func TestHandlerUnknownChannel(t *testing.T) {
	h, _ := testHandler(t)

	errResp := decodeError(t, dispatch(t, h, MsgGetChannel, &ChannelRequest{ID: 9}))
	if errResp.Code != ErrNotFound {
		t.Errorf("expected code %d, got %d", ErrNotFound, errResp.Code)
	}
}

func TestHandlerSetScaleKeepsOtherFactor(t *testing.T) {
	h, _ := testHandler(t)

	status := decodeState(t, dispatch(t, h, MsgSetScaleMultiplier, &SetScaleRequest{ID: 0, Value: 5}))
	if status.Persistent.ScaleMultiplier != 5 || status.Persistent.ScaleDivisor != 1 {
		t.Errorf("expected 5/1, got %d/%d", status.Persistent.ScaleMultiplier, status.Persistent.ScaleDivisor)
	}

	status = decodeState(t, dispatch(t, h, MsgSetScaleDivisor, &SetScaleRequest{ID: 0, Value: 2}))
	if status.Persistent.ScaleMultiplier != 5 || status.Persistent.ScaleDivisor != 2 {
		t.Errorf("expected 5/2, got %d/%d", status.Persistent.ScaleMultiplier, status.Persistent.ScaleDivisor)
	}
	if status.Active.ScaleMultiplier != 5 || status.Active.ScaleDivisor != 2 {
		t.Errorf("expected active copy updated, got %d/%d", status.Active.ScaleMultiplier, status.Active.ScaleDivisor)
	}
}

func TestHandlerSetScaleRejectsZero(t *testing.T) {
	h, _ := testHandler(t)

	errResp := decodeError(t, dispatch(t, h, MsgSetScaleMultiplier, &SetScaleRequest{ID: 0, Value: 0}))
	if errResp.Code != ErrInvalidArgument {
		t.Errorf("expected code %d, got %d", ErrInvalidArgument, errResp.Code)
	}
}

func TestHandlerSetRotation(t *testing.T) {
	h, _ := testHandler(t)

	status := decodeState(t, dispatch(t, h, MsgSetRotation, &SetRotationRequest{ID: 0, Degrees: -45}))
	if status.Persistent.RotationDegrees != -45 {
		t.Errorf("expected -45, got %d", status.Persistent.RotationDegrees)
	}
}

func TestHandlerSetSnapMode(t *testing.T) {
	h, _ := testHandler(t)

	status := decodeState(t, dispatch(t, h, MsgSetSnapMode, &SetSnapModeRequest{ID: 0, Mode: "y"}))
	if status.Persistent.SnapMode != transform.SnapY {
		t.Errorf("expected snap y, got %v", status.Persistent.SnapMode)
	}

	errResp := decodeError(t, dispatch(t, h, MsgSetSnapMode, &SetSnapModeRequest{ID: 0, Mode: "diagonal"}))
	if errResp.Code != ErrInvalidArgument {
		t.Errorf("expected code %d, got %d", ErrInvalidArgument, errResp.Code)
	}
}

func TestHandlerSetAxisSnap(t *testing.T) {
	h, _ := testHandler(t)

	status := decodeState(t, dispatch(t, h, MsgSetAxisSnap, &SetAxisSnapRequest{
		ID: 0, Mode: "x", Threshold: 80, TimeoutMs: 750,
	}))
	got := status.Persistent
	if got.SnapMode != transform.SnapX || got.SnapThreshold != 80 || got.SnapTimeoutMS != 750 {
		t.Errorf("unexpected snap config %v/%d/%d", got.SnapMode, got.SnapThreshold, got.SnapTimeoutMS)
	}
}

func TestHandlerSetTempLayer(t *testing.T) {
	h, _ := testHandler(t)

	status := decodeState(t, dispatch(t, h, MsgSetTempLayer, &SetTempLayerRequest{
		ID: 0, Enabled: true, Layer: 1, ActivationMs: 50, DeactivationMs: 600,
	}))
	got := status.Persistent
	if !got.TempLayerEnabled || got.TempLayer != 1 {
		t.Errorf("expected overlay enabled on layer 1, got %v/%d", got.TempLayerEnabled, got.TempLayer)
	}
	if got.ActivationDelayMS != 50 || got.DeactivationDelayMS != 600 {
		t.Errorf("expected delays 50/600, got %d/%d", got.ActivationDelayMS, got.DeactivationDelayMS)
	}
}

func TestHandlerSetActiveLayers(t *testing.T) {
	h, _ := testHandler(t)

	status := decodeState(t, dispatch(t, h, MsgSetActiveLayers, &SetActiveLayersRequest{ID: 0, Mask: 0x3}))
	if status.Persistent.ActiveLayers != 0x3 {
		t.Errorf("expected mask 0x3, got 0x%x", status.Persistent.ActiveLayers)
	}
}

func TestHandlerSetCodeMapAndInvert(t *testing.T) {
	h, _ := testHandler(t)

	status := decodeState(t, dispatch(t, h, MsgSetCodeMap, &SetCodeMapRequest{ID: 0, XYToScroll: true}))
	if !status.Persistent.XYToScroll || status.Persistent.SwapXY {
		t.Errorf("unexpected code map %v/%v", status.Persistent.XYToScroll, status.Persistent.SwapXY)
	}

	status = decodeState(t, dispatch(t, h, MsgSetInvert, &SetInvertRequest{ID: 0, Y: true}))
	if status.Persistent.InvertX || !status.Persistent.InvertY {
		t.Errorf("unexpected invert %v/%v", status.Persistent.InvertX, status.Persistent.InvertY)
	}
}

func TestHandlerResetChannel(t *testing.T) {
	h, _ := testHandler(t)

	decodeState(t, dispatch(t, h, MsgSetRotation, &SetRotationRequest{ID: 0, Degrees: 90}))
	status := decodeState(t, dispatch(t, h, MsgResetChannel, &ChannelRequest{ID: 0}))

	defaults := channel.DefaultConfig()
	if status.Persistent != defaults {
		t.Errorf("expected defaults after reset, got %+v", status.Persistent)
	}
	if status.Active != defaults {
		t.Errorf("expected active defaults after reset, got %+v", status.Active)
	}
}

func TestHandlerLayerInfo(t *testing.T) {
	h, _ := testHandler(t)

	resp := dispatch(t, h, MsgGetLayerInfo, nil)
	if resp.Header.Type != MsgGetLayerInfoResp {
		t.Fatalf("expected layer info, got 0x%04x", uint16(resp.Header.Type))
	}

	var info LayerInfoResponse
	if err := Decode(resp.Payload, &info); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(info.Layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(info.Layers))
	}
	if !info.Layers[0].Active || info.Layers[1].Active {
		t.Errorf("expected only the default layer active: %+v", info.Layers)
	}
}

func TestHandlerSetLayer(t *testing.T) {
	h, _ := testHandler(t)

	resp := dispatch(t, h, MsgSetLayer, &SetLayerRequest{Layer: 1, Active: true})
	var info LayerInfoResponse
	if err := Decode(resp.Payload, &info); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !info.Layers[1].Active {
		t.Error("expected layer 1 active")
	}

	errResp := decodeError(t, dispatch(t, h, MsgSetLayer, &SetLayerRequest{Layer: 9, Active: true}))
	if errResp.Code != ErrNotFound {
		t.Errorf("expected code %d, got %d", ErrNotFound, errResp.Code)
	}
}

func TestHandlerUnknownMessageType(t *testing.T) {
	h, _ := testHandler(t)

	errResp := decodeError(t, dispatch(t, h, MessageType(0xffff), nil))
	if errResp.Code != ErrInvalidRequest {
		t.Errorf("expected code %d, got %d", ErrInvalidRequest, errResp.Code)
	}
}
