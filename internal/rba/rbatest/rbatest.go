// Package rbatest builds synthetic trace files for tests.
package rbatest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/rba"
)

// DefaultFreq is a 1 GHz clock: 1000 ticks per microsecond.
const DefaultFreq = 1000000000

// HeaderSpec describes the fields a test wants in a header block.
type HeaderSpec struct {
	Magic        string
	Major        uint8
	Minor        uint8
	RingID       uint8
	HeadSize     uint64
	Elements     uint32
	RTCFreq      int64
	Stamp        int64
	SystemTime   int64
	RelativeTime int64
}

// DefaultHeader anchors tick 0 at 2020-01-01T00:00:00Z.
func DefaultHeader() HeaderSpec {
	return HeaderSpec{
		Magic:      config.HeaderMagic,
		Major:      config.SupportedMajor,
		RingID:     4,
		Elements:   65536,
		RTCFreq:    DefaultFreq,
		Stamp:      0,
		SystemTime: config.NTToUnixEpoch + 1577836800*config.HundredNSPerSecond,
	}
}

// Bytes renders the full 512-byte header block.
func (h HeaderSpec) Bytes() []byte {
	block := make([]byte, config.HeaderBlockSize)
	le := binary.LittleEndian
	copy(block[0:8], h.Magic)
	block[8] = h.Major
	block[9] = h.Minor
	block[10] = h.RingID
	headSize := h.HeadSize
	if headSize == 0 {
		headSize = config.HeaderBlockSize
	}
	le.PutUint64(block[16:24], headSize)
	le.PutUint64(block[24:32], config.RecordSize)
	le.PutUint64(block[32:40], uint64(h.Elements)*config.RecordSize)
	le.PutUint32(block[48:52], h.Elements)
	le.PutUint64(block[56:64], uint64(h.RTCFreq))
	le.PutUint64(block[64:72], uint64(h.Stamp))
	le.PutUint64(block[72:80], uint64(h.SystemTime))
	le.PutUint64(block[96:104], uint64(h.RelativeTime))
	return block
}

// EncodeRecord renders one 56-byte tuple.
func EncodeRecord(raw rba.RawEvent) []byte {
	out := make([]byte, config.RecordSize)
	le := binary.LittleEndian
	le.PutUint64(out[0:8], raw.Stamp)
	le.PutUint64(out[8:16], raw.Thread)
	le.PutUint64(out[16:24], raw.ID)
	le.PutUint64(out[24:32], raw.A0)
	le.PutUint64(out[32:40], raw.A1)
	le.PutUint64(out[40:48], raw.A2)
	le.PutUint64(out[48:56], raw.A3)
	return out
}

// Build renders a header followed by records.
func Build(h HeaderSpec, raws ...rba.RawEvent) []byte {
	var buf bytes.Buffer
	buf.Write(h.Bytes())
	for _, raw := range raws {
		buf.Write(EncodeRecord(raw))
	}
	return buf.Bytes()
}

// WriteFile writes data into a temp file and returns its path.
func WriteFile(t testing.TB, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.rba")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write trace file: %v", err)
	}
	return path
}

// WriteTrace writes a header and records into a temp file.
func WriteTrace(t testing.TB, h HeaderSpec, raws ...rba.RawEvent) string {
	t.Helper()
	return WriteFile(t, Build(h, raws...))
}

// LUN builds a logical-unit record. word carries the command, done bit and
// priority bits; the object id goes into a3 bits 16-31.
func LUN(stamp uint64, lun uint16, lba uint64, blocks uint32, word uint16) rba.RawEvent {
	return rba.RawEvent{
		Stamp: stamp,
		ID:    uint64(rba.TrafficLUN),
		A0:    lba >> 32,
		A1:    lba & 0xFFFFFFFF,
		A2:    uint64(blocks),
		A3:    uint64(lun)<<16 | uint64(word),
	}
}

// Start and Done build a LUN read start/completion pair for one object.
func Start(stamp uint64, lun uint16, lba uint64, blocks uint32) rba.RawEvent {
	return LUN(stamp, lun, lba, blocks, uint16(rba.CommandRead))
}

func Done(stamp uint64, lun uint16, lba uint64, blocks uint32) rba.RawEvent {
	return LUN(stamp, lun, lba, blocks, uint16(rba.CommandRead)|config.CommandDoneBit)
}

// WriteStart and WriteDone are the write-command variants of Start and Done.
func WriteStart(stamp uint64, lun uint16, lba uint64, blocks uint32) rba.RawEvent {
	return LUN(stamp, lun, lba, blocks, uint16(rba.CommandWrite))
}

func WriteDone(stamp uint64, lun uint16, lba uint64, blocks uint32) rba.RawEvent {
	return LUN(stamp, lun, lba, blocks, uint16(rba.CommandWrite)|config.CommandDoneBit)
}

// Tagged builds an arbitrary tuple.
func Tagged(tag uint64, stamp, a0, a1, a2, a3 uint64) rba.RawEvent {
	return rba.RawEvent{Stamp: stamp, ID: tag, A0: a0, A1: a1, A2: a2, A3: a3}
}
