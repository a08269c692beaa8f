// Package filter holds record predicates applied before decoding.
package filter

import (
	"fmt"
	"strings"

	"github.com/podtrace/rbatrace/internal/rba"
)

// Predicate passes a raw event through, or returns nil to drop it. A
// predicate may also hand back a modified event.
type Predicate func(*rba.RawEvent) *rba.RawEvent

// Traffic keeps events whose tag is one of types.
func Traffic(types ...rba.TrafficType) Predicate {
	set := make(map[rba.TrafficType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(raw *rba.RawEvent) *rba.RawEvent {
		if _, ok := set[raw.Tag()]; ok {
			return raw
		}
		return nil
	}
}

func LogicalUnitOnly() Predicate {
	return Traffic(rba.LogicalUnitTraffic...)
}

func PhysicalDriveOnly() Predicate {
	return Traffic(rba.PhysicalDriveTraffic...)
}

func RaidGroupOnly() Predicate {
	return Traffic(rba.RaidGroupTraffic...)
}

func ProvisionDriveOnly() Predicate {
	return Traffic(rba.ProvisionTraffic...)
}

// Compose chains predicates left to right. Nil entries are skipped.
func Compose(preds ...Predicate) Predicate {
	var chain []Predicate
	for _, p := range preds {
		if p != nil {
			chain = append(chain, p)
		}
	}
	if len(chain) == 0 {
		return nil
	}
	return func(raw *rba.RawEvent) *rba.RawEvent {
		for _, p := range chain {
			if raw = p(raw); raw == nil {
				return nil
			}
		}
		return raw
	}
}

// Apply runs p on raw. A nil predicate passes everything.
func Apply(p Predicate, raw *rba.RawEvent) *rba.RawEvent {
	if p == nil {
		return raw
	}
	return p(raw)
}

var builtins = map[string]func() Predicate{
	"all":   func() Predicate { return nil },
	"lun":   LogicalUnitOnly,
	"drive": PhysicalDriveOnly,
	"rg":    RaidGroupOnly,
	"pvd":   ProvisionDriveOnly,
}

// Names lists the filter names Parse accepts.
func Names() []string {
	return []string{"all", "lun", "drive", "rg", "pvd"}
}

// Parse resolves a filter name. Besides the built-in family names it accepts
// a comma-separated list of traffic tag names such as "LUN,PVD".
func Parse(name string) (Predicate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if mk, ok := builtins[strings.ToLower(name)]; ok {
		return mk(), nil
	}

	var types []rba.TrafficType
	for _, part := range strings.Split(name, ",") {
		t, ok := rba.ParseTrafficType(strings.ToUpper(strings.TrimSpace(part)))
		if !ok {
			return nil, fmt.Errorf("unknown filter %q", part)
		}
		types = append(types, t)
	}
	return Traffic(types...), nil
}
