package parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/podtrace/rbatrace/internal/config"
)

const (
	headerLayoutSize = config.HeaderLayoutSize
	recordSize       = config.RecordSize
)

var binaryRead = binary.Read

// rawHeader mirrors the packed on-disk layout of the first 104 header bytes.
type rawHeader struct {
	Magic        [8]byte
	Major        uint8
	Minor        uint8
	RingID       uint8
	_            uint8
	_            uint32
	HeadSize     uint64
	DataSize     uint64
	RingSize     uint64
	StringSize   uint64
	Elements     uint32
	_            uint32
	RTCFreq      int64
	Stamp        int64
	SystemTime   int64
	NameOffset   uint16
	TextOffset   uint16
	BaseAddr     uint32
	WrapPos      int64
	RelativeTime int64
}

// Header is the immutable per-file trace header.
type Header struct {
	Major        uint8
	Minor        uint8
	RingID       uint8
	HeadSize     uint64
	DataSize     uint64
	RingSize     uint64
	StringSize   uint64
	Elements     uint32
	ClockFreq    int64
	ClockAnchor  uint64
	SystemTime   int64
	NameOffset   uint16
	TextOffset   uint16
	BaseAddr     uint32
	WrapPos      int64
	RelativeTime int64

	// TicksPerMicrosecond is derived from ClockFreq and is never zero.
	TicksPerMicrosecond float64
}

// Relative reports whether timestamps are relative to a split point.
func (h *Header) Relative() bool {
	return h.RelativeTime != 0
}

// ReadHeader consumes the 512-byte header block from r. A block shorter than
// 512 bytes but covering the fixed layout is accepted; the stream then holds
// no records.
func ReadHeader(r io.Reader) (*Header, error) {
	block := make([]byte, config.HeaderBlockSize)
	n, err := io.ReadFull(r, block)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, newIOError(int64(n), err)
	}
	if n < headerLayoutSize {
		return nil, newTruncatedHeaderError(n)
	}
	return ParseHeader(block[:n])
}

// ParseHeader decodes an in-memory header block.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < headerLayoutSize {
		return nil, newTruncatedHeaderError(len(data))
	}

	var raw rawHeader
	if err := binaryRead(bytes.NewReader(data[:headerLayoutSize]), binary.LittleEndian, &raw); err != nil {
		return nil, newIOError(0, err)
	}

	if string(raw.Magic[:]) != config.HeaderMagic {
		return nil, newBadMagicError(raw.Magic[:])
	}
	if raw.Major != config.SupportedMajor {
		return nil, newUnsupportedVersionError(raw.Major, raw.Minor)
	}
	// The reader always starts records at the end of the 512-byte block.
	if raw.HeadSize != config.HeaderBlockSize {
		return nil, newBadHeadSizeError(raw.HeadSize)
	}

	if raw.RTCFreq <= 0 {
		return nil, newZeroClockError(raw.RTCFreq)
	}
	tpus := float64(raw.RTCFreq) / config.MicrosecondsPerSecond

	return &Header{
		Major:               raw.Major,
		Minor:               raw.Minor,
		RingID:              raw.RingID,
		HeadSize:            raw.HeadSize,
		DataSize:            raw.DataSize,
		RingSize:            raw.RingSize,
		StringSize:          raw.StringSize,
		Elements:            raw.Elements,
		ClockFreq:           raw.RTCFreq,
		ClockAnchor:         uint64(raw.Stamp),
		SystemTime:          raw.SystemTime,
		NameOffset:          raw.NameOffset,
		TextOffset:          raw.TextOffset,
		BaseAddr:            raw.BaseAddr,
		WrapPos:             raw.WrapPos,
		RelativeTime:        raw.RelativeTime,
		TicksPerMicrosecond: tpus,
	}, nil
}
