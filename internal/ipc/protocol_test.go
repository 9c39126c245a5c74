package ipc

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	payload, err := Encode(&SetRotationRequest{ID: 3, Degrees: -90})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg := NewMessage(MsgSetRotation, 42, payload)

	var buf bytes.Buffer
	if err := msg.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != HeaderSize+len(payload) {
		t.Errorf("expected %d bytes on the wire, got %d", HeaderSize+len(payload), buf.Len())
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Header.Type != MsgSetRotation {
		t.Errorf("expected type 0x%04x, got 0x%04x", uint16(MsgSetRotation), uint16(got.Header.Type))
	}
	if got.Header.RequestID != 42 {
		t.Errorf("expected request id 42, got %d", got.Header.RequestID)
	}
	if got.Header.Flags&FlagJSON == 0 {
		t.Error("expected JSON flag set")
	}

	var req SetRotationRequest
	if err := Decode(got.Payload, &req); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.ID != 3 || req.Degrees != -90 {
		t.Errorf("expected 3/-90, got %d/%d", req.ID, req.Degrees)
	}
}

func TestMessageRoundTripEmptyPayload(t *testing.T) {
	msg := NewMessage(MsgPing, 7, nil)

	var buf bytes.Buffer
	if err := msg.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Header.Type != MsgPing || got.Header.Length != 0 || len(got.Payload) != 0 {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], 0xdeadbeef)

	_, err := ReadHeader(bytes.NewReader(buf))
	if err == nil || !strings.Contains(err.Error(), "invalid magic") {
		t.Errorf("expected magic error, got %v", err)
	}
}

func TestReadHeaderRejectsNewerVersion(t *testing.T) {
	msg := NewMessage(MsgPing, 1, nil)
	msg.Header.Version = ProtocolVersion + 1

	var buf bytes.Buffer
	if err := msg.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err := ReadMessage(&buf)
	if err == nil || !strings.Contains(err.Error(), "unsupported protocol version") {
		t.Errorf("expected version error, got %v", err)
	}
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	msg := NewMessage(MsgStatus, 1, nil)
	msg.Header.Length = MaxPayload + 1

	var buf bytes.Buffer
	if err := msg.Header.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err := ReadMessage(&buf)
	if err == nil || !strings.Contains(err.Error(), "payload too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(9, ErrNotFound, "unknown channel id 4")
	if msg.Header.Type != MsgError {
		t.Fatalf("expected error type, got 0x%04x", uint16(msg.Header.Type))
	}

	var resp ErrorResponse
	if err := Decode(msg.Payload, &resp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.Code != ErrNotFound || resp.Message != "unknown channel id 4" {
		t.Errorf("unexpected error payload %+v", resp)
	}
}
