// Package clock converts trace ticks into wall-clock time using the anchor
// stored in the trace header.
package clock

import (
	"math"
	"time"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/rba/parser"
)

// Converter maps ticks to absolute time. The anchor pairs a tick value with
// the NT system time (100ns units since 1601) sampled at that tick.
type Converter struct {
	ticksPerMicrosecond float64
	anchorTick          uint64
	anchorAbs           int64
}

// New builds a converter from a parsed header. The header parser already
// rejects a non-positive clock frequency.
func New(hdr *parser.Header) *Converter {
	return &Converter{
		ticksPerMicrosecond: hdr.TicksPerMicrosecond,
		anchorTick:          hdr.ClockAnchor,
		anchorAbs:           hdr.SystemTime,
	}
}

// NewFromFrequency builds a converter without a header.
func NewFromFrequency(freqHz int64, anchorTick uint64, anchorAbs int64) *Converter {
	return &Converter{
		ticksPerMicrosecond: float64(freqHz) / config.MicrosecondsPerSecond,
		anchorTick:          anchorTick,
		anchorAbs:           anchorAbs,
	}
}

func (c *Converter) TicksPerMicrosecond() float64 {
	return c.ticksPerMicrosecond
}

// ticksToHundredNS converts a signed tick delta to 100ns units.
func (c *Converter) ticksToHundredNS(delta float64) int64 {
	return int64(math.Round(delta * 10 / c.ticksPerMicrosecond))
}

// TickToAbsolute returns the NT system time for tick.
func (c *Converter) TickToAbsolute(tick uint64) int64 {
	var delta float64
	if tick >= c.anchorTick {
		delta = float64(tick - c.anchorTick)
	} else {
		delta = -float64(c.anchorTick - tick)
	}
	return c.anchorAbs + c.ticksToHundredNS(delta)
}

// TickDeltaToMilliseconds converts a tick count to milliseconds.
func (c *Converter) TickDeltaToMilliseconds(delta uint64) float64 {
	return float64(delta) / c.ticksPerMicrosecond / 1000
}

// Duration converts a tick count to a time.Duration, rounded to the nanosecond.
func (c *Converter) Duration(delta uint64) time.Duration {
	return time.Duration(math.Round(float64(delta) * 1000 / c.ticksPerMicrosecond))
}

// AbsoluteToTime converts an NT system time to a UTC time. Values before the
// Unix epoch clamp to it.
func AbsoluteToTime(abs int64) time.Time {
	if abs < config.NTToUnixEpoch {
		return time.Unix(0, 0).UTC()
	}
	since := abs - config.NTToUnixEpoch
	sec := since / config.HundredNSPerSecond
	nsec := (since % config.HundredNSPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}

func (c *Converter) TickToTime(tick uint64) time.Time {
	return AbsoluteToTime(c.TickToAbsolute(tick))
}
