package parser

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/rba"
)

// Reader streams fixed-size records that follow the header block.
type Reader struct {
	br     *bufio.Reader
	offset int64
	buf    [recordSize]byte
	count  uint64
}

// NewReader wraps r, which must be positioned at the first record. offset is
// the byte position of r within the file and is only used in errors.
func NewReader(r io.Reader, offset int64) *Reader {
	return &Reader{
		br:     bufio.NewReaderSize(r, config.ReadBufferSize),
		offset: offset,
	}
}

// Next decodes the next record into raw. It returns io.EOF at a clean record
// boundary and a *FormatError when the stream ends mid-record.
func (r *Reader) Next(raw *rba.RawEvent) error {
	n, err := io.ReadFull(r.br, r.buf[:])
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return newTruncatedRecordError(r.offset, n)
	default:
		return newIOError(r.offset+int64(n), err)
	}

	DecodeRaw(r.buf[:], raw)
	r.offset += recordSize
	r.count++
	return nil
}

// Offset is the file position of the next record.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Count is the number of complete records read so far.
func (r *Reader) Count() uint64 {
	return r.count
}

// DecodeRaw decodes one 56-byte little-endian tuple. data must hold at least
// recordSize bytes.
func DecodeRaw(data []byte, raw *rba.RawEvent) {
	le := binary.LittleEndian
	raw.Stamp = le.Uint64(data[0:8])
	raw.Thread = le.Uint64(data[8:16])
	raw.ID = le.Uint64(data[16:24])
	raw.A0 = le.Uint64(data[24:32])
	raw.A1 = le.Uint64(data[32:40])
	raw.A2 = le.Uint64(data[40:48])
	raw.A3 = le.Uint64(data[48:56])
}

// ParseRaw is the allocation-returning form of DecodeRaw for callers holding
// a single tuple. It returns nil when data is short.
func ParseRaw(data []byte) *rba.RawEvent {
	if len(data) < recordSize {
		return nil
	}
	raw := &rba.RawEvent{}
	DecodeRaw(data, raw)
	return raw
}

// File is an open trace file positioned after its header.
type File struct {
	*Reader
	Header *Header
	f      *os.File
}

// OpenFile opens path, validates the header and returns a record reader.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	adviseSequential(f)

	hdr, err := ReadHeader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &File{
		Reader: NewReader(f, config.HeaderBlockSize),
		Header: hdr,
		f:      f,
	}, nil
}

func (f *File) Close() error {
	return f.f.Close()
}
