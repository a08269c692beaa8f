package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// Measurement is a computed per-object value aggregates can be ranked by.
type Measurement string

const (
	MeasureCount         Measurement = "count"
	MeasureReads         Measurement = "reads"
	MeasureWrites        Measurement = "writes"
	MeasureAvgResponse   Measurement = "avg_response"
	MeasureMaxResponse   Measurement = "max_response"
	MeasureP95Response   Measurement = "p95_response"
	MeasureAvgQueueDepth Measurement = "avg_queue_depth"
	MeasureMaxQueueDepth Measurement = "max_queue_depth"
	MeasureBlocks        Measurement = "blocks"
	MeasureIOPS          Measurement = "iops"
	MeasureThroughput    Measurement = "mbps"
	MeasureUnmatched     Measurement = "unmatched"
)

var measurements = map[Measurement]func(*ObjectAggregate) float64{
	MeasureCount:         func(a *ObjectAggregate) float64 { return float64(a.Count) },
	MeasureReads:         func(a *ObjectAggregate) float64 { return float64(a.Reads) },
	MeasureWrites:        func(a *ObjectAggregate) float64 { return float64(a.Writes) },
	MeasureAvgResponse:   func(a *ObjectAggregate) float64 { return a.AvgResponseMS },
	MeasureMaxResponse:   func(a *ObjectAggregate) float64 { return a.MaxResponseMS },
	MeasureP95Response:   func(a *ObjectAggregate) float64 { return a.P95ResponseMS },
	MeasureAvgQueueDepth: func(a *ObjectAggregate) float64 { return a.AvgQueueDepth },
	MeasureMaxQueueDepth: func(a *ObjectAggregate) float64 { return float64(a.MaxQueueDepth) },
	MeasureBlocks:        func(a *ObjectAggregate) float64 { return float64(a.TotalBlocks) },
	MeasureIOPS:          func(a *ObjectAggregate) float64 { return a.IOPS },
	MeasureThroughput:    func(a *ObjectAggregate) float64 { return a.MBps },
	MeasureUnmatched:     func(a *ObjectAggregate) float64 { return float64(a.Unmatched) },
}

// Measurements lists every name ParseMeasurement accepts, sorted.
func Measurements() []string {
	out := make([]string, 0, len(measurements))
	for m := range measurements {
		out = append(out, string(m))
	}
	sort.Strings(out)
	return out
}

func ParseMeasurement(name string) (Measurement, error) {
	m := Measurement(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := measurements[m]; !ok {
		return "", fmt.Errorf("unknown measurement %q", name)
	}
	return m, nil
}

// Value returns the measurement for a. Unknown measurements yield zero.
func (m Measurement) Value(a *ObjectAggregate) float64 {
	if fn, ok := measurements[m]; ok {
		return fn(a)
	}
	return 0
}

// SortBy returns a copy of aggs ordered by m, largest first. Ties keep their
// input order.
func SortBy(aggs []*ObjectAggregate, m Measurement) []*ObjectAggregate {
	out := make([]*ObjectAggregate, len(aggs))
	copy(out, aggs)
	sort.SliceStable(out, func(i, j int) bool {
		return m.Value(out[i]) > m.Value(out[j])
	})
	return out
}

// Top returns at most n aggregates. n <= 0 returns all of them.
func Top(aggs []*ObjectAggregate, n int) []*ObjectAggregate {
	if n <= 0 || n >= len(aggs) {
		return aggs
	}
	return aggs[:n]
}
