package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/ipc"
	"github.com/te9no/pointerd/internal/layers"
	"github.com/te9no/pointerd/internal/notify"
	"github.com/te9no/pointerd/internal/schedule"
)

func startTestBridge(t *testing.T) (*Bridge, *channel.Registry, *notify.Hub) {
	t.Helper()

	st, err := layers.New([]layers.Definition{
		{Name: "base", Default: true},
		{Name: "nav"},
	})
	if err != nil {
		t.Fatalf("layers.New: %v", err)
	}

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

	handler := ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
		Version:  "test",
		Registry: reg,
		Layers:   st,
	})
	hub := notify.NewHub(notify.Options{})

	b := NewBridge(Options{
		ListenAddr: "127.0.0.1:0",
		Handler:    handler,
		Registry:   reg,
		Hub:        hub,
	})
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { b.Stop() })

	return b, reg, hub
}

func dialTestWS(t *testing.T, b *Bridge) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+b.Addr()+"/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, msgType ipc.MessageType, requestID uint32, payload any) {
	t.Helper()
	frame := Frame{Type: msgType, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		frame.Data = data
	}
	if err := conn.WriteJSON(&frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return &frame
}

func decodeFrame(t *testing.T, frame *Frame, want ipc.MessageType, v any) {
	t.Helper()
	if frame.Type == ipc.MsgError && want != ipc.MsgError {
		var errResp ipc.ErrorResponse
		json.Unmarshal(frame.Data, &errResp)
		t.Fatalf("expected type 0x%04x, got error: %s", uint16(want), errResp.Message)
	}
	if frame.Type != want {
		t.Fatalf("expected type 0x%04x, got 0x%04x", uint16(want), uint16(frame.Type))
	}
	if v != nil {
		if err := json.Unmarshal(frame.Data, v); err != nil {
			t.Fatalf("decode frame data: %v", err)
		}
	}
}

func TestBridgeChannelListing(t *testing.T) {
	b, _, _ := startTestBridge(t)

	resp, err := http.Get("http://" + b.Addr() + "/v1/channels")
	if err != nil {
		t.Fatalf("GET /v1/channels: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}

	var list ipc.ListChannelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(list.Channels))
	}
	if list.Channels[0].Name != "trackball" || list.Channels[1].Name != "touchpad" {
		t.Fatalf("unexpected channel order: %q, %q", list.Channels[0].Name, list.Channels[1].Name)
	}
	if list.Channels[0].Persistent != channel.DefaultConfig() {
		t.Fatalf("expected default persistent config, got %+v", list.Channels[0].Persistent)
	}
}

func TestBridgeChannelListingRejectsPost(t *testing.T) {
	b, _, _ := startTestBridge(t)

	resp, err := http.Post("http://"+b.Addr()+"/v1/channels", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/channels: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestBridgeRPCRoundTrip(t *testing.T) {
	b, reg, _ := startTestBridge(t)
	conn := dialTestWS(t, b)

	sendFrame(t, conn, ipc.MsgStatus, 7, nil)
	frame := readFrame(t, conn)
	if frame.RequestID != 7 {
		t.Fatalf("expected request id 7, got %d", frame.RequestID)
	}
	var status ipc.StatusResponse
	decodeFrame(t, frame, ipc.MsgStatusResp, &status)
	if status.Channels != 2 {
		t.Fatalf("expected 2 channels, got %d", status.Channels)
	}

	sendFrame(t, conn, ipc.MsgSetRotation, 8, &ipc.SetRotationRequest{ID: 0, Degrees: 30})
	var state channel.Status
	decodeFrame(t, readFrame(t, conn), ipc.MsgChannelState, &state)
	if state.Persistent.RotationDegrees != 30 {
		t.Fatalf("expected rotation 30, got %d", state.Persistent.RotationDegrees)
	}

	ch, ok := reg.FindByID(0)
	if !ok {
		t.Fatal("channel 0 missing")
	}
	if got := ch.PersistentSnapshot().RotationDegrees; got != 30 {
		t.Fatalf("expected rotation 30 on the channel, got %d", got)
	}
}

func TestBridgeRPCErrors(t *testing.T) {
	b, _, _ := startTestBridge(t)
	conn := dialTestWS(t, b)

	sendFrame(t, conn, ipc.MsgGetChannel, 1, &ipc.ChannelRequest{ID: 9})
	var errResp ipc.ErrorResponse
	decodeFrame(t, readFrame(t, conn), ipc.MsgError, &errResp)
	if errResp.Code != ipc.ErrNotFound {
		t.Fatalf("expected code %d, got %d", ipc.ErrNotFound, errResp.Code)
	}

	// The session survives daemon-side errors.
	sendFrame(t, conn, ipc.MsgPing, 2, nil)
	frame := readFrame(t, conn)
	if frame.Type != ipc.MsgPong || frame.RequestID != 2 {
		t.Fatalf("expected pong for request 2, got type 0x%04x id %d", uint16(frame.Type), frame.RequestID)
	}
}

func TestBridgeEventStream(t *testing.T) {
	b, _, hub := startTestBridge(t)
	conn := dialTestWS(t, b)

	sendFrame(t, conn, ipc.MsgSubscribe, 1, nil)
	var sub ipc.SubscribeResponse
	decodeFrame(t, readFrame(t, conn), ipc.MsgSubscribeResp, &sub)
	if !sub.Success {
		t.Fatal("expected subscription success")
	}

	cfg := channel.DefaultConfig()
	cfg.RotationDegrees = 15
	hub.ConfigChanged(0, "trackball", cfg)

	var event ipc.Event
	decodeFrame(t, readFrame(t, conn), ipc.MsgEvent, &event)
	if event.Type != ipc.EventConfigChanged {
		t.Fatalf("expected config changed event, got 0x%04x", uint16(event.Type))
	}
	data, ok := event.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected event data object, got %T", event.Data)
	}
	if data["name"] != "trackball" {
		t.Fatalf("expected channel trackball, got %v", data["name"])
	}
}

func TestBridgeSubscriptionFilter(t *testing.T) {
	b, _, hub := startTestBridge(t)
	conn := dialTestWS(t, b)

	sendFrame(t, conn, ipc.MsgSubscribe, 1, &ipc.SubscribeRequest{
		Events: []ipc.EventType{ipc.EventChannelReset},
	})
	decodeFrame(t, readFrame(t, conn), ipc.MsgSubscribeResp, nil)

	// The config change is filtered; the reset must be the next frame.
	hub.ConfigChanged(0, "trackball", channel.DefaultConfig())
	hub.ChannelReset(1, "touchpad")

	var event ipc.Event
	decodeFrame(t, readFrame(t, conn), ipc.MsgEvent, &event)
	if event.Type != ipc.EventChannelReset {
		t.Fatalf("expected channel reset event, got 0x%04x", uint16(event.Type))
	}
}

func TestBridgeUnsubscribeStopsStream(t *testing.T) {
	b, _, hub := startTestBridge(t)
	conn := dialTestWS(t, b)

	sendFrame(t, conn, ipc.MsgSubscribe, 1, nil)
	decodeFrame(t, readFrame(t, conn), ipc.MsgSubscribeResp, nil)

	sendFrame(t, conn, ipc.MsgUnsubscribe, 2, nil)
	decodeFrame(t, readFrame(t, conn), ipc.MsgUnsubscribeResp, nil)

	hub.ChannelReset(0, "trackball")

	// Nothing was queued, so the pong is the next frame.
	sendFrame(t, conn, ipc.MsgPing, 3, nil)
	frame := readFrame(t, conn)
	if frame.Type != ipc.MsgPong {
		t.Fatalf("expected pong, got 0x%04x", uint16(frame.Type))
	}
}

func TestBridgeShutdownNotifiesSessions(t *testing.T) {
	b, _, _ := startTestBridge(t)
	conn := dialTestWS(t, b)

	sendFrame(t, conn, ipc.MsgSubscribe, 1, nil)
	decodeFrame(t, readFrame(t, conn), ipc.MsgSubscribeResp, nil)

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var event ipc.Event
	decodeFrame(t, readFrame(t, conn), ipc.MsgEvent, &event)
	if event.Type != ipc.EventDaemonShutdown {
		t.Fatalf("expected shutdown event, got 0x%04x", uint16(event.Type))
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
