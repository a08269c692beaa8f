package correlator

import (
	"go.uber.org/zap"

	"github.com/podtrace/rbatrace/internal/rba"
)

type AnomalyKind string

const (
	AnomalyClockRegression  AnomalyKind = "clock_regression"
	AnomalyNegativeDuration AnomalyKind = "negative_duration"
	AnomalyQueueUnderflow   AnomalyKind = "queue_underflow"
	AnomalyOrphanCompletion AnomalyKind = "orphan_completion"
)

// Anomaly describes a record the engine could not correlate cleanly.
type Anomaly struct {
	Kind   AnomalyKind
	Record *rba.Record
	// Start is set for negative durations.
	Start *rba.Record
	// HighWater and Abandoned are set for clock regressions.
	HighWater uint64
	Abandoned int
}

func (a Anomaly) fields() []zap.Field {
	fields := []zap.Field{zap.String("kind", string(a.Kind))}
	if r := a.Record; r != nil {
		fields = append(fields,
			zap.Uint64("seq", r.Seq),
			zap.Stringer("object", r.Key()),
			zap.Uint64("stamp", r.Stamp),
			zap.Uint64("lba", r.LBA),
		)
	}
	switch a.Kind {
	case AnomalyNegativeDuration:
		if a.Start != nil {
			fields = append(fields, zap.Uint64("start_stamp", a.Start.Stamp))
		}
	case AnomalyClockRegression:
		fields = append(fields,
			zap.Uint64("high_water", a.HighWater),
			zap.Int("abandoned", a.Abandoned))
	}
	return fields
}
