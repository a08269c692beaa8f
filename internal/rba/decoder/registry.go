package decoder

import (
	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/rba"
)

// Registry maps traffic tags to decode rules. A Registry is owned by one
// session; it is not safe to mutate while decoding.
type Registry struct {
	rules map[rba.TrafficType]Rule
}

// NewRegistry returns a registry holding the standard rules.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[rba.TrafficType]Rule)}

	for _, t := range []rba.TrafficType{
		rba.TrafficTCD, rba.TrafficPSM, rba.TrafficLUN, rba.TrafficSFE,
		rba.TrafficDML, rba.TrafficMVS, rba.TrafficMVA, rba.TrafficMLU,
		rba.TrafficSnap, rba.TrafficAgg, rba.TrafficMig, rba.TrafficCPM,
		rba.TrafficFEDisk, rba.TrafficCompression, rba.TrafficFCT, rba.TrafficCCB,
	} {
		r.Register(t, logicalUnitRule)
	}
	for _, t := range []rba.TrafficType{rba.TrafficFRU, rba.TrafficDBE, rba.TrafficFBE} {
		r.Register(t, legacyDriveRule)
	}
	r.Register(rba.TrafficPDO, physicalDriveRule)
	r.Register(rba.TrafficLDO, physicalDriveRule)
	r.Register(rba.TrafficFBELUN, objectBlocksRule)
	r.Register(rba.TrafficVD, objectBlocksRule)
	r.Register(rba.TrafficSPC, objectBlocksRule)
	r.Register(rba.TrafficPVD, provisionDriveRule)
	r.Register(rba.TrafficFBERGFRU, raidPositionRule)
	r.Register(rba.TrafficFBERG, raidGroupRule)
	r.Register(rba.TrafficDDS, dedupRule)
	r.Register(rba.TrafficClone, narrowSplitRule)
	r.Register(rba.TrafficCBFS, narrowWideRule)

	return r
}

func (r *Registry) Register(t rba.TrafficType, rule Rule) {
	r.rules[t] = rule
}

// Rule returns the rule for t, if any.
func (r *Registry) Rule(t rba.TrafficType) (Rule, bool) {
	rule, ok := r.rules[t]
	return rule, ok
}

func (r *Registry) Supported(t rba.TrafficType) bool {
	_, ok := r.rules[t]
	return ok
}

// Decode turns a raw tuple into a typed record. The second return value is
// false for unsupported tags; that is not an error.
func (r *Registry) Decode(raw *rba.RawEvent) (*rba.Record, bool) {
	t := raw.Tag()
	rule, ok := r.rules[t]
	if !ok {
		return nil, false
	}

	rec := &rba.Record{
		Type:   t,
		Stamp:  raw.Stamp,
		Thread: raw.Thread,
		CPU:    uint8(raw.Thread & config.CPUMask),
	}
	rule.apply(raw, rec)
	return rec, true
}
