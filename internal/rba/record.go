package rba

import (
	"fmt"

	"github.com/podtrace/rbatrace/internal/config"
)

// RawEvent is one 56-byte trace ring entry as it appears on disk.
type RawEvent struct {
	Stamp  uint64
	Thread uint64
	ID     uint64
	A0     uint64
	A1     uint64
	A2     uint64
	A3     uint64
}

// Tag returns the traffic tag with the producer's high bits masked off.
func (r *RawEvent) Tag() TrafficType {
	return TrafficType(r.ID & config.TrafficTagMask)
}

type Command uint8

const (
	CommandRead    Command = 0x0
	CommandWrite   Command = 0x2
	CommandZero    Command = 0x4
	CommandCrptCRC Command = 0x6
	CommandMove    Command = 0x8
	CommandXchange Command = 0xa
	CommandCommit  Command = 0xc
	CommandNoOp    Command = 0xe
)

// CommandFromWord extracts the opcode from a command word.
func CommandFromWord(word uint64) Command {
	return Command(word & config.CommandOpcodeMask)
}

func (c Command) String() string {
	switch c {
	case CommandRead:
		return "read"
	case CommandWrite:
		return "write"
	case CommandZero:
		return "zero"
	case CommandCrptCRC:
		return "crpt_crc"
	case CommandMove:
		return "move"
	case CommandXchange:
		return "xchange"
	case CommandCommit:
		return "commit"
	case CommandNoOp:
		return "no_op"
	default:
		return fmt.Sprintf("cmd_0x%x", uint8(c))
	}
}

type Priority uint8

const (
	PriorityUnset Priority = iota
	PriorityLow
	PriorityNormal
	PriorityUrgent
)

// PriorityFromWord tests the priority bit patterns in strict order.
func PriorityFromWord(word uint64) Priority {
	switch {
	case word&config.PriorityUrgentMask == config.PriorityUrgentMask:
		return PriorityUrgent
	case word&config.PriorityLowBit != 0:
		return PriorityLow
	case word&config.PriorityNormalBit != 0:
		return PriorityNormal
	default:
		return PriorityUnset
	}
}

// NormalizePriority coerces anything outside [Low..Urgent] to Normal. The
// second return value is true when a coercion happened.
func NormalizePriority(p Priority) (Priority, bool) {
	if p < PriorityLow || p > PriorityUrgent {
		return PriorityNormal, true
	}
	return p, false
}

func (p Priority) String() string {
	switch p {
	case PriorityUnset:
		return "unset"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityUrgent:
		return "urgent"
	default:
		return fmt.Sprintf("priority_%d", uint8(p))
	}
}

type State uint8

const (
	StatePending State = iota
	StateMatched
	StateUnmatched
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateMatched:
		return "matched"
	case StateUnmatched:
		return "unmatched"
	default:
		return "unknown"
	}
}

// ObjectKey identifies one traced object.
type ObjectKey struct {
	Type TrafficType
	ID   uint64
}

func (k ObjectKey) String() string {
	return fmt.Sprintf("%s:%d", k.Type, k.ID)
}

// Record is a decoded traffic event. The correlation engine fills in State,
// ResponseTicks, QueueDepth and Peer.
type Record struct {
	Seq         uint64
	Type        TrafficType
	Stamp       uint64
	Thread      uint64
	CPU         uint8
	CommandWord uint64
	Command     Command
	Completion  bool
	Error       bool
	Priority    Priority
	ObjectID    uint64
	ObjectName  string
	LBA         uint64
	Blocks      uint64

	State         State
	ResponseTicks uint64
	QueueDepth    int
	Peer          *Record
}

func (r *Record) Key() ObjectKey {
	return ObjectKey{Type: r.Type, ID: r.ObjectID}
}

func (r *Record) Matched() bool {
	return r.State == StateMatched
}

func (r *Record) IsRead() bool {
	return r.Command == CommandRead
}

func (r *Record) IsWrite() bool {
	return r.Command == CommandWrite
}

func (r *Record) Bytes() uint64 {
	return r.Blocks * config.BytesPerBlock
}

func (r *Record) String() string {
	action := "start"
	if r.Completion {
		action = "done"
	}
	return fmt.Sprintf("%s %s %s obj=%s lba=0x%x blks=%d", r.Type, r.Command, action, r.ObjectName, r.LBA, r.Blocks)
}

// LiveObject tracks in-flight operations for one object.
type LiveObject struct {
	Key            ObjectKey
	Name           string
	QueueDepth     int
	MaxQueueDepth  int
	TotalIssued    uint64
	TotalCompleted uint64
	TotalAbandoned uint64
}
