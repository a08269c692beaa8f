package rba

import "testing"

func TestPriorityFromWord(t *testing.T) {
	tests := []struct {
		name string
		word uint64
		want Priority
	}{
		{"urgent", 0xC0, PriorityUrgent},
		{"urgent wins over low", 0xC2, PriorityUrgent},
		{"low", 0x40, PriorityLow},
		{"normal", 0x80, PriorityNormal},
		{"unset", 0x02, PriorityUnset},
		{"upper bits ignored", 0xFF00, PriorityUnset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PriorityFromWord(tt.word); got != tt.want {
				t.Errorf("PriorityFromWord(0x%x) = %v, want %v", tt.word, got, tt.want)
			}
		})
	}
}

func TestNormalizePriority(t *testing.T) {
	tests := []struct {
		in      Priority
		want    Priority
		coerced bool
	}{
		{PriorityUnset, PriorityNormal, true},
		{PriorityLow, PriorityLow, false},
		{PriorityNormal, PriorityNormal, false},
		{PriorityUrgent, PriorityUrgent, false},
		{Priority(9), PriorityNormal, true},
	}
	for _, tt := range tests {
		got, coerced := NormalizePriority(tt.in)
		if got != tt.want || coerced != tt.coerced {
			t.Errorf("NormalizePriority(%v) = (%v, %v), want (%v, %v)", tt.in, got, coerced, tt.want, tt.coerced)
		}
	}
}

func TestRawEventTagMasksHighBits(t *testing.T) {
	raw := RawEvent{ID: 0x1_00000009}
	if raw.Tag() != TrafficLUN {
		t.Errorf("expected LUN, got %v", raw.Tag())
	}
}

func TestTrafficTypeNames(t *testing.T) {
	if TrafficTDX != 0x2b {
		t.Fatalf("tag table shifted: TDX = 0x%x", uint32(TrafficTDX))
	}
	if TrafficCCB != 0x28 {
		t.Fatalf("tag table shifted: CCB = 0x%x", uint32(TrafficCCB))
	}
	if TrafficFBERG.String() != "FBE_RG" {
		t.Errorf("unexpected name %q", TrafficFBERG.String())
	}
	if TrafficType(0x77).String() != "0x77" {
		t.Errorf("unexpected name for unknown tag: %q", TrafficType(0x77).String())
	}
	if TrafficType(0x77).Known() {
		t.Error("0x77 should not be a known tag")
	}

	got, ok := ParseTrafficType("PVD")
	if !ok || got != TrafficPVD {
		t.Errorf("ParseTrafficType(PVD) = %v, %v", got, ok)
	}
	if _, ok := ParseTrafficType("nope"); ok {
		t.Error("expected unknown name to fail")
	}
	if len(TrafficTypes()) != 0x2c {
		t.Errorf("expected 44 tags, got %d", len(TrafficTypes()))
	}
}

func TestCommandFromWord(t *testing.T) {
	tests := []struct {
		word uint64
		want Command
		name string
	}{
		{0x0000, CommandRead, "read"},
		{0x0001, CommandRead, "read"},
		{0x0003, CommandWrite, "write"},
		{0x00C4, CommandZero, "zero"},
		{0x000e, CommandNoOp, "no_op"},
	}
	for _, tt := range tests {
		got := CommandFromWord(tt.word)
		if got != tt.want {
			t.Errorf("CommandFromWord(0x%x) = %v, want %v", tt.word, got, tt.want)
		}
		if got.String() != tt.name {
			t.Errorf("String() = %q, want %q", got.String(), tt.name)
		}
	}
}

func TestRecordHelpers(t *testing.T) {
	r := &Record{Type: TrafficLUN, ObjectID: 5, ObjectName: "5", Command: CommandWrite, Blocks: 8, State: StateMatched}
	if !r.Matched() || !r.IsWrite() || r.IsRead() {
		t.Error("unexpected helper results")
	}
	if r.Bytes() != 4096 {
		t.Errorf("expected 4096 bytes, got %d", r.Bytes())
	}
	if r.Key() != (ObjectKey{Type: TrafficLUN, ID: 5}) {
		t.Errorf("unexpected key %v", r.Key())
	}
	if r.Key().String() != "LUN:5" {
		t.Errorf("unexpected key string %q", r.Key().String())
	}
}
