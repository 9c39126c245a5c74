package channel

import (
	"encoding/binary"
	"fmt"

	"github.com/te9no/pointerd/internal/transform"
)

// Config holds the tunable state of a channel. Every channel carries two
// copies: the active copy drives the pipeline, the persistent copy is what
// the settings store writes out. Setters mutate the active copy always and
// the persistent copy only when asked to.
type Config struct {
	// Rational motion scale. A factor of 0 makes scaling a passthrough.
	ScaleMultiplier uint32 `json:"scale_multiplier"`
	ScaleDivisor    uint32 `json:"scale_divisor"`

	// RotationDegrees rotates paired X/Y motion. 0 disables rotation.
	RotationDegrees int32 `json:"rotation_degrees"`

	// Overlay layer activation.
	TempLayerEnabled    bool   `json:"temp_layer_enabled"`
	TempLayer           uint8  `json:"temp_layer"`
	ActivationDelayMS   uint16 `json:"activation_delay_ms"`
	DeactivationDelayMS uint16 `json:"deactivation_delay_ms"`

	// ActiveLayers gates the pipeline on layer state. 0 means always
	// active; otherwise a bitmask over layer indices.
	ActiveLayers uint32 `json:"active_layers"`

	// Axis snapping.
	SnapMode      transform.SnapMode `json:"snap_mode"`
	SnapThreshold uint16             `json:"snap_threshold"`
	SnapTimeoutMS uint16             `json:"snap_timeout_ms"`

	// Output code mapping. XYToScroll wins over SwapXY.
	XYToScroll bool `json:"xy_to_scroll"`
	SwapXY     bool `json:"swap_xy"`

	// Axis inversion, applied after rotation.
	InvertX bool `json:"invert_x"`
	InvertY bool `json:"invert_y"`
}

// DefaultConfig returns the factory configuration: identity scaling, no
// rotation, overlay and snap features off.
func DefaultConfig() Config {
	return Config{
		ScaleMultiplier:     1,
		ScaleDivisor:        1,
		ActivationDelayMS:   100,
		DeactivationDelayMS: 500,
		SnapThreshold:       100,
		SnapTimeoutMS:       1000,
	}
}

// RecordSize is the encoded length of a channel settings record. Loads
// reject records of any other length.
const RecordSize = 31

// EncodeRecord serializes a configuration into the fixed-layout
// little-endian settings record.
func EncodeRecord(c Config) []byte {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.ScaleMultiplier)
	binary.LittleEndian.PutUint32(buf[4:8], c.ScaleDivisor)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(c.RotationDegrees))
	buf[12] = boolByte(c.TempLayerEnabled)
	buf[13] = c.TempLayer
	binary.LittleEndian.PutUint16(buf[14:16], c.ActivationDelayMS)
	binary.LittleEndian.PutUint16(buf[16:18], c.DeactivationDelayMS)
	binary.LittleEndian.PutUint32(buf[18:22], c.ActiveLayers)
	buf[22] = byte(c.SnapMode)
	binary.LittleEndian.PutUint16(buf[23:25], c.SnapThreshold)
	binary.LittleEndian.PutUint16(buf[25:27], c.SnapTimeoutMS)
	buf[27] = boolByte(c.XYToScroll)
	buf[28] = boolByte(c.SwapXY)
	buf[29] = boolByte(c.InvertX)
	buf[30] = boolByte(c.InvertY)
	return buf
}

// DecodeRecord parses a settings record. Records with the wrong length or
// out-of-range fields are rejected whole rather than partially applied.
func DecodeRecord(data []byte) (Config, error) {
	if len(data) != RecordSize {
		return Config{}, fmt.Errorf("%w: record length %d, want %d", ErrPersistenceFailure, len(data), RecordSize)
	}
	c := Config{
		ScaleMultiplier:     binary.LittleEndian.Uint32(data[0:4]),
		ScaleDivisor:        binary.LittleEndian.Uint32(data[4:8]),
		RotationDegrees:     int32(binary.LittleEndian.Uint32(data[8:12])),
		TempLayerEnabled:    data[12] != 0,
		TempLayer:           data[13],
		ActivationDelayMS:   binary.LittleEndian.Uint16(data[14:16]),
		DeactivationDelayMS: binary.LittleEndian.Uint16(data[16:18]),
		ActiveLayers:        binary.LittleEndian.Uint32(data[18:22]),
		SnapMode:            transform.SnapMode(data[22]),
		SnapThreshold:       binary.LittleEndian.Uint16(data[23:25]),
		SnapTimeoutMS:       binary.LittleEndian.Uint16(data[25:27]),
		XYToScroll:          data[27] != 0,
		SwapXY:              data[28] != 0,
		InvertX:             data[29] != 0,
		InvertY:             data[30] != 0,
	}
	if !c.SnapMode.Valid() {
		return Config{}, fmt.Errorf("%w: snap mode %d out of range", ErrPersistenceFailure, data[22])
	}
	return c, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
