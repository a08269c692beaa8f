package clock

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/rba/parser"
	"github.com/podtrace/rbatrace/internal/rba/rbatest"
)

func newTestConverter(t *testing.T) *Converter {
	t.Helper()
	hdr, err := parser.ReadHeader(bytes.NewReader(rbatest.DefaultHeader().Bytes()))
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	return New(hdr)
}

func TestTickToTime(t *testing.T) {
	conv := newTestConverter(t)
	anchor := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		tick uint64
		want time.Time
	}{
		{0, anchor},
		{1000, anchor.Add(time.Microsecond)},
		{1_000_000_000, anchor.Add(time.Second)},
		{1_500_000_000_000, anchor.Add(1500 * time.Second)},
	}
	for _, tt := range tests {
		if got := conv.TickToTime(tt.tick); !got.Equal(tt.want) {
			t.Errorf("TickToTime(%d) = %v, want %v", tt.tick, got, tt.want)
		}
	}
}

func TestTickToAbsolute_BeforeAnchor(t *testing.T) {
	conv := NewFromFrequency(rbatest.DefaultFreq, 1_000_000, config.NTToUnixEpoch+50)
	// 1000 ticks before the anchor is 1us, i.e. 10 units of 100ns.
	if got := conv.TickToAbsolute(999_000); got != config.NTToUnixEpoch+40 {
		t.Errorf("TickToAbsolute = %d, want %d", got, config.NTToUnixEpoch+40)
	}
}

func TestTickDeltaToMilliseconds(t *testing.T) {
	conv := newTestConverter(t)
	tests := []struct {
		delta uint64
		want  float64
	}{
		{0, 0},
		{1000, 0.001},
		{1_000_000, 1},
		{2_500_000_000, 2500},
	}
	for _, tt := range tests {
		if got := conv.TickDeltaToMilliseconds(tt.delta); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("TickDeltaToMilliseconds(%d) = %f, want %f", tt.delta, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	conv := NewFromFrequency(3_000_000, 0, 0)
	// 3 ticks per microsecond.
	if got := conv.Duration(3); got != time.Microsecond {
		t.Errorf("Duration(3) = %v, want 1us", got)
	}
	if got := conv.Duration(1); got != 333*time.Nanosecond {
		t.Errorf("Duration(1) = %v, want 333ns", got)
	}
	if conv.TicksPerMicrosecond() != 3 {
		t.Errorf("Expected 3 ticks/us, got %f", conv.TicksPerMicrosecond())
	}
}

func TestAbsoluteToTime_Clamp(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	if got := AbsoluteToTime(0); !got.Equal(epoch) {
		t.Errorf("AbsoluteToTime(0) = %v, want %v", got, epoch)
	}
	if got := AbsoluteToTime(config.NTToUnixEpoch - 1); !got.Equal(epoch) {
		t.Errorf("AbsoluteToTime below epoch = %v, want %v", got, epoch)
	}
	if got := AbsoluteToTime(config.NTToUnixEpoch + 15); !got.Equal(epoch.Add(1500 * time.Nanosecond)) {
		t.Errorf("AbsoluteToTime(epoch+15) = %v", got)
	}
}
