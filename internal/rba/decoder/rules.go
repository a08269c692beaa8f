package decoder

import (
	"fmt"
	"strconv"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/rba"
)

type word int

const (
	wordA0 word = iota
	wordA1
	wordA2
	wordA3
)

func (w word) of(raw *rba.RawEvent) uint64 {
	switch w {
	case wordA0:
		return raw.A0
	case wordA1:
		return raw.A1
	case wordA2:
		return raw.A2
	default:
		return raw.A3
	}
}

type lbaLayout int

const (
	// lbaSplit joins a0 (high half) and a1 (low half).
	lbaSplit lbaLayout = iota
	// lbaWide takes a0 as a full 64-bit LBA.
	lbaWide
	// lbaLow32 takes the low word of a0 only.
	lbaLow32
)

func (l lbaLayout) of(raw *rba.RawEvent) uint64 {
	switch l {
	case lbaWide:
		return raw.A0
	case lbaLow32:
		return raw.A0 & 0xFFFFFFFF
	default:
		return raw.A0<<32 | raw.A1&0xFFFFFFFF
	}
}

// fieldSpec is a regular extraction rule: object id is a shifted and masked
// slice of one word.
type fieldSpec struct {
	objWord  word
	objShift uint
	objMask  uint64
	lba      lbaLayout
	cmdMask  uint64
	namer    func(uint64) string
}

func (s *fieldSpec) apply(raw *rba.RawEvent, rec *rba.Record) {
	id := s.objWord.of(raw) >> s.objShift
	if s.objMask != 0 {
		id &= s.objMask
	}
	rec.ObjectID = id
	rec.LBA = s.lba.of(raw)
	rec.Blocks = raw.A2 & 0xFFFFFFFF
	setCommand(rec, raw.A3&s.cmdMask, s.cmdMask)
	rec.ObjectName = s.namer(id)
}

// Rule decodes one traffic type. Regular rules carry a fieldSpec; irregular
// packings use a dedicated function.
type Rule struct {
	Shape string
	spec  *fieldSpec
	fn    func(raw *rba.RawEvent, rec *rba.Record)
}

func (r Rule) apply(raw *rba.RawEvent, rec *rba.Record) {
	if r.fn != nil {
		r.fn(raw, rec)
		return
	}
	r.spec.apply(raw, rec)
}

// RuleFunc wraps a custom extraction function.
func RuleFunc(shape string, fn func(raw *rba.RawEvent, rec *rba.Record)) Rule {
	return Rule{Shape: shape, fn: fn}
}

func setCommand(rec *rba.Record, cmd, mask uint64) {
	rec.CommandWord = cmd
	rec.Command = rba.CommandFromWord(cmd)
	rec.Completion = cmd&config.CommandDoneBit != 0
	rec.Error = mask&config.CommandErrorBit != 0 && cmd&config.CommandErrorBit != 0
	rec.Priority = rba.PriorityFromWord(cmd)
}

func decimalName(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// driveName renders a 48-bit drive id as port_enclosure_slot.
func driveName(id uint64) string {
	return fmt.Sprintf("%d_%d_%d", (id>>32)&0xFFFF, (id>>16)&0xFFFF, id&0xFFFF)
}

func raidPositionName(id uint64) string {
	return fmt.Sprintf("%d_%d", id>>16, id&0xFFFF)
}

func poolLUName(id uint64) string {
	return fmt.Sprintf("%d_%d", (id>>16)&0xFFFF, id&0xFFFF)
}

// narrowName splits an a3>>12 id into the object number and the 4-bit
// session or clone index below it.
func narrowName(id uint64) string {
	return fmt.Sprintf("%d.%d", id>>4, id&0xF)
}

var (
	logicalUnitRule = Rule{Shape: "logical_unit", spec: &fieldSpec{
		objWord: wordA3, objShift: 16, objMask: 0xFFFF,
		lba: lbaSplit, cmdMask: config.CommandWordMask, namer: decimalName,
	}}
	legacyDriveRule = Rule{Shape: "legacy_drive", spec: &fieldSpec{
		objWord: wordA3, objShift: 16, objMask: 0xFFFF,
		lba: lbaSplit, cmdMask: config.CommandWordMask, namer: decimalName,
	}}
	physicalDriveRule = Rule{Shape: "physical_drive", spec: &fieldSpec{
		objWord: wordA3, objShift: 16,
		lba: lbaSplit, cmdMask: config.CommandWordMask, namer: driveName,
	}}
	objectBlocksRule = Rule{Shape: "object_blocks", spec: &fieldSpec{
		objWord: wordA2, objShift: 32, objMask: 0xFFFFFFFF,
		lba: lbaWide, cmdMask: config.CommandWordMask, namer: decimalName,
	}}
	provisionDriveRule = Rule{Shape: "provision_drive", spec: &fieldSpec{
		objWord: wordA3, objShift: 16, objMask: 0xFFFF,
		lba: lbaWide, cmdMask: config.CommandWordMask, namer: decimalName,
	}}
	raidGroupRule = Rule{Shape: "raid_group", spec: &fieldSpec{
		objWord: wordA3, objShift: 16, objMask: 0xFFFF,
		lba: lbaLow32, cmdMask: config.CommandWordMask, namer: decimalName,
	}}
	dedupRule = Rule{Shape: "dedup", spec: &fieldSpec{
		objWord: wordA2, objShift: 32, objMask: 0xFFFFFFFF,
		lba: lbaWide, cmdMask: config.CommandWordMask, namer: poolLUName,
	}}
	narrowSplitRule = Rule{Shape: "narrow", spec: &fieldSpec{
		objWord: wordA3, objShift: 12,
		lba: lbaSplit, cmdMask: config.NarrowCommandMask, namer: narrowName,
	}}
	narrowWideRule = Rule{Shape: "narrow", spec: &fieldSpec{
		objWord: wordA3, objShift: 12,
		lba: lbaWide, cmdMask: config.NarrowCommandMask, namer: narrowName,
	}}
	raidPositionRule = RuleFunc("raid_position", decodeRaidPosition)
)

// decodeRaidPosition packs the raid group number (a2 bits 48-63) above the
// fru position (a1 bits 0-15).
func decodeRaidPosition(raw *rba.RawEvent, rec *rba.Record) {
	rg := (raw.A2 >> 48) & 0xFFFF
	pos := raw.A1 & 0xFFFF
	rec.ObjectID = rg<<16 | pos
	rec.ObjectName = raidPositionName(rec.ObjectID)
	rec.LBA = raw.A0
	rec.Blocks = raw.A2 & 0xFFFFFFFF
	setCommand(rec, raw.A3&config.CommandWordMask, config.CommandWordMask)
}
