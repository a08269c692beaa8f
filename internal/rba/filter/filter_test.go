package filter

import (
	"testing"

	"github.com/podtrace/rbatrace/internal/rba"
	"github.com/podtrace/rbatrace/internal/rba/rbatest"
)

func tagged(t rba.TrafficType) *rba.RawEvent {
	raw := rbatest.Tagged(uint64(t), 1, 0, 0, 8, 0)
	return &raw
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
		keep []rba.TrafficType
		drop []rba.TrafficType
	}{
		{"lun", LogicalUnitOnly(), []rba.TrafficType{rba.TrafficLUN, rba.TrafficFBELUN, rba.TrafficVD, rba.TrafficMLU}, []rba.TrafficType{rba.TrafficPDO, rba.TrafficPVD}},
		{"drive", PhysicalDriveOnly(), []rba.TrafficType{rba.TrafficPDO, rba.TrafficLDO, rba.TrafficFRU, rba.TrafficDBE, rba.TrafficFBE}, []rba.TrafficType{rba.TrafficLUN}},
		{"rg", RaidGroupOnly(), []rba.TrafficType{rba.TrafficFBERG, rba.TrafficFBERGFRU}, []rba.TrafficType{rba.TrafficFBE}},
		{"pvd", ProvisionDriveOnly(), []rba.TrafficType{rba.TrafficPVD}, []rba.TrafficType{rba.TrafficVD}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, ty := range tt.keep {
				if tt.pred(tagged(ty)) == nil {
					t.Errorf("%s should pass", ty)
				}
			}
			for _, ty := range tt.drop {
				if tt.pred(tagged(ty)) != nil {
					t.Errorf("%s should be dropped", ty)
				}
			}
		})
	}
}

func TestTraffic_MasksTag(t *testing.T) {
	raw := rbatest.Tagged(0x1_00000009, 1, 0, 0, 8, 0)
	if LogicalUnitOnly()(&raw) == nil {
		t.Error("high tag bits should be ignored")
	}
}

func TestCompose(t *testing.T) {
	if Compose() != nil || Compose(nil, nil) != nil {
		t.Error("empty composition should be nil")
	}

	both := Compose(Traffic(rba.TrafficLUN, rba.TrafficPDO), nil, LogicalUnitOnly())
	if both(tagged(rba.TrafficLUN)) == nil {
		t.Error("LUN should pass both predicates")
	}
	if both(tagged(rba.TrafficPDO)) != nil {
		t.Error("PDO should fail the second predicate")
	}

	rewrite := func(raw *rba.RawEvent) *rba.RawEvent {
		cp := *raw
		cp.A0 = 99
		return &cp
	}
	got := Compose(rewrite, LogicalUnitOnly())(tagged(rba.TrafficLUN))
	if got == nil || got.A0 != 99 {
		t.Errorf("rewritten event should flow through the chain, got %+v", got)
	}
}

func TestApply_NilPasses(t *testing.T) {
	raw := tagged(rba.TrafficTDX)
	if Apply(nil, raw) != raw {
		t.Error("nil predicate should pass everything")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		wantNil bool
		wantErr bool
		pass    rba.TrafficType
		fail    rba.TrafficType
	}{
		{name: "all", wantNil: true},
		{name: "", wantNil: true},
		{name: "LUN", pass: rba.TrafficLUN, fail: rba.TrafficPDO},
		{name: "drive", pass: rba.TrafficFBE, fail: rba.TrafficLUN},
		{name: "rg", pass: rba.TrafficFBERG, fail: rba.TrafficPVD},
		{name: "pvd", pass: rba.TrafficPVD, fail: rba.TrafficFBERG},
		{name: "dds, spc", pass: rba.TrafficSPC, fail: rba.TrafficLUN},
		{name: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := Parse(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if tt.wantNil {
				if pred != nil {
					t.Error("expected nil predicate")
				}
				return
			}
			if pred(tagged(tt.pass)) == nil {
				t.Errorf("%s should pass", tt.pass)
			}
			if pred(tagged(tt.fail)) != nil {
				t.Errorf("%s should be dropped", tt.fail)
			}
		})
	}
}
