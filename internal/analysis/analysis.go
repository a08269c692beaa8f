// Package analysis computes read-only statistics over correlated records.
package analysis

import (
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/logger"
	"github.com/podtrace/rbatrace/internal/rba"
	"github.com/podtrace/rbatrace/internal/rba/clock"
)

type ResponseSummary struct {
	Count      int
	Reads      int
	Writes     int
	AvgMS      float64
	AvgReadMS  float64
	AvgWriteMS float64
	P50MS      float64
	P95MS      float64
	P99MS      float64
	MaxMS      float64
}

// ResponseTimes summarizes matched start records. Completions and unmatched
// starts are skipped.
func ResponseTimes(records []*rba.Record, conv *clock.Converter) ResponseSummary {
	var all, reads, writes []float64
	for _, r := range records {
		if r.Completion || !r.Matched() {
			continue
		}
		ms := conv.TickDeltaToMilliseconds(r.ResponseTicks)
		all = append(all, ms)
		switch {
		case r.IsRead():
			reads = append(reads, ms)
		case r.IsWrite():
			writes = append(writes, ms)
		}
	}

	s := ResponseSummary{Count: len(all), Reads: len(reads), Writes: len(writes)}
	if len(all) == 0 {
		return s
	}
	s.AvgMS, _ = stats.Mean(all)
	s.AvgReadMS = mean(reads)
	s.AvgWriteMS = mean(writes)
	s.P50MS = percentile(all, 50)
	s.P95MS = percentile(all, 95)
	s.P99MS = percentile(all, 99)
	s.MaxMS, _ = stats.Max(all)
	return s
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m, _ := stats.Mean(data)
	return m
}

func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	v, err := stats.Percentile(data, p)
	if err != nil {
		// Small samples fall below the first rank.
		v, _ = stats.Min(data)
	}
	return v
}

// ObjectAggregate collects per-object statistics over matched starts.
type ObjectAggregate struct {
	Key  rba.ObjectKey
	Name string

	Count     int
	Reads     int
	Writes    int
	Unmatched int

	AvgResponseMS float64
	MaxResponseMS float64
	P95ResponseMS float64

	AvgQueueDepth float64
	MaxQueueDepth int

	TotalBlocks uint64
	FirstStamp  uint64
	LastStamp   uint64
	IOPS        float64
	MBps        float64

	// Priorities counts matched starts by normalized priority.
	Priorities map[rba.Priority]int
	Coerced    int

	responses  []float64
	depthTotal int
}

// Aggregate groups records by object. The result is in first-seen order.
func Aggregate(records []*rba.Record, conv *clock.Converter) []*ObjectAggregate {
	index := make(map[rba.ObjectKey]*ObjectAggregate)
	var out []*ObjectAggregate
	coerced := 0

	for _, r := range records {
		if r.Completion {
			continue
		}
		k := r.Key()
		agg, ok := index[k]
		if !ok {
			agg = &ObjectAggregate{Key: k, Name: r.ObjectName, Priorities: make(map[rba.Priority]int)}
			index[k] = agg
			out = append(out, agg)
		}
		if !r.Matched() {
			agg.Unmatched++
			continue
		}
		if agg.add(r, conv) {
			coerced++
		}
	}

	for _, agg := range out {
		agg.finish(conv)
	}
	if coerced > 0 {
		logger.Debug("Coerced out-of-range priorities to normal", zap.Int("records", coerced))
	}
	return out
}

// add folds one matched start in and reports whether its priority had to be
// coerced.
func (a *ObjectAggregate) add(r *rba.Record, conv *clock.Converter) bool {
	ms := conv.TickDeltaToMilliseconds(r.ResponseTicks)
	if a.Count == 0 || r.Stamp < a.FirstStamp {
		a.FirstStamp = r.Stamp
	}
	if end := r.Stamp + r.ResponseTicks; end > a.LastStamp {
		a.LastStamp = end
	}

	a.Count++
	switch {
	case r.IsRead():
		a.Reads++
	case r.IsWrite():
		a.Writes++
	}
	a.responses = append(a.responses, ms)
	if ms > a.MaxResponseMS {
		a.MaxResponseMS = ms
	}
	a.depthTotal += r.QueueDepth
	if r.QueueDepth > a.MaxQueueDepth {
		a.MaxQueueDepth = r.QueueDepth
	}
	a.TotalBlocks += r.Blocks

	p, changed := rba.NormalizePriority(r.Priority)
	if changed {
		a.Coerced++
	}
	a.Priorities[p]++
	return changed
}

func (a *ObjectAggregate) finish(conv *clock.Converter) {
	if a.Count == 0 {
		return
	}
	a.AvgResponseMS = mean(a.responses)
	a.P95ResponseMS = percentile(a.responses, config.DefaultPercentileSample)
	a.AvgQueueDepth = float64(a.depthTotal) / float64(a.Count)

	span := conv.Duration(a.LastStamp - a.FirstStamp).Seconds()
	if span > 0 {
		a.IOPS = float64(a.Count) / span
		a.MBps = float64(a.TotalBlocks*config.BytesPerBlock) / config.MB / span
	}
	a.responses = nil
}
