package transform

import (
	"testing"

	"github.com/te9no/pointerd/internal/event"
)

func TestMapCode(t *testing.T) {
	tests := []struct {
		name     string
		axis     Axis
		code     uint16
		toScroll bool
		swap     bool
		want     uint16
	}{
		{"passthrough x", AxisX, event.RelX, false, false, event.RelX},
		{"passthrough y", AxisY, event.RelY, false, false, event.RelY},
		{"scroll x", AxisX, event.RelX, true, false, event.RelHWheel},
		{"scroll y", AxisY, event.RelY, true, false, event.RelWheel},
		{"swap x", AxisX, event.RelX, false, true, event.RelY},
		{"swap y", AxisY, event.RelY, false, true, event.RelX},
		{"scroll wins over swap", AxisY, event.RelY, true, true, event.RelWheel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapCode(tt.axis, tt.code, tt.toScroll, tt.swap)
			if got != tt.want {
				t.Errorf("MapCode(%s, %#x, %v, %v) = %#x, want %#x",
					tt.axis, tt.code, tt.toScroll, tt.swap, got, tt.want)
			}
		})
	}
}
