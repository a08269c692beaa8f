package parser

import (
	"errors"
	"fmt"

	"github.com/podtrace/rbatrace/internal/config"
)

type ErrorCode int

const (
	ErrCodeTruncatedHeader ErrorCode = iota + 1
	ErrCodeBadMagic
	ErrCodeZeroClock
	ErrCodeTruncatedRecord
	ErrCodeIO
	ErrCodeUnsupportedVersion
	ErrCodeBadHeadSize
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeTruncatedHeader:
		return "truncated_header"
	case ErrCodeBadMagic:
		return "bad_magic"
	case ErrCodeZeroClock:
		return "zero_clock"
	case ErrCodeTruncatedRecord:
		return "truncated_record"
	case ErrCodeIO:
		return "io"
	case ErrCodeUnsupportedVersion:
		return "unsupported_version"
	case ErrCodeBadHeadSize:
		return "bad_head_size"
	default:
		return "unknown"
	}
}

// FormatError is fatal to a session. Records decoded before it stay valid.
type FormatError struct {
	Code    ErrorCode
	Offset  int64
	Message string
	Err     error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rba format error at offset %d: %s: %v", e.Offset, e.Message, e.Err)
	}
	return fmt.Sprintf("rba format error at offset %d: %s", e.Offset, e.Message)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// FormatErrorCode returns the code of the first FormatError in err's chain.
func FormatErrorCode(err error) (ErrorCode, bool) {
	var fe *FormatError
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return 0, false
}

func newTruncatedHeaderError(got int) *FormatError {
	return &FormatError{
		Code:    ErrCodeTruncatedHeader,
		Offset:  int64(got),
		Message: fmt.Sprintf("header needs %d bytes, got %d", headerLayoutSize, got),
	}
}

func newBadMagicError(magic []byte) *FormatError {
	return &FormatError{
		Code:    ErrCodeBadMagic,
		Message: fmt.Sprintf("bad magic %q", magic),
	}
}

func newUnsupportedVersionError(major, minor uint8) *FormatError {
	return &FormatError{
		Code:    ErrCodeUnsupportedVersion,
		Offset:  8,
		Message: fmt.Sprintf("format version %d.%d, only major %d is supported", major, minor, config.SupportedMajor),
	}
}

func newBadHeadSizeError(size uint64) *FormatError {
	return &FormatError{
		Code:    ErrCodeBadHeadSize,
		Offset:  16,
		Message: fmt.Sprintf("head size %d, records must start at %d", size, config.HeaderBlockSize),
	}
}

func newZeroClockError(freq int64) *FormatError {
	return &FormatError{
		Code:    ErrCodeZeroClock,
		Offset:  56,
		Message: fmt.Sprintf("clock frequency %d gives no usable ticks per microsecond", freq),
	}
}

func newTruncatedRecordError(offset int64, got int) *FormatError {
	return &FormatError{
		Code:    ErrCodeTruncatedRecord,
		Offset:  offset,
		Message: fmt.Sprintf("record needs %d bytes, got %d", recordSize, got),
	}
}

func newIOError(offset int64, err error) *FormatError {
	return &FormatError{
		Code:    ErrCodeIO,
		Offset:  offset,
		Message: "read failed",
		Err:     err,
	}
}
