// Package correlator pairs start and completion records into I/O operations
// and tracks per-object queue depth.
package correlator

import (
	"sort"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/logger"
	"github.com/podtrace/rbatrace/internal/metricsexporter"
	"github.com/podtrace/rbatrace/internal/rba"
)

// key identifies the start a completion answers. The done and error bits are
// not part of it.
type key struct {
	typ    rba.TrafficType
	object uint64
	lba    uint64
	blocks uint64
	cmd    uint64
}

// narrowKeyTypes report a block count on completion that may differ from the
// start, so their key leaves blocks out.
var narrowKeyTypes = map[rba.TrafficType]bool{
	rba.TrafficDDS: true,
	rba.TrafficSPC: true,
}

func keyOf(r *rba.Record) key {
	k := key{
		typ:    r.Type,
		object: r.ObjectID,
		lba:    r.LBA,
		blocks: r.Blocks,
		cmd:    r.CommandWord &^ (config.CommandDoneBit | config.CommandErrorBit),
	}
	if narrowKeyTypes[r.Type] {
		k.blocks = 0
	}
	return k
}

type Stats struct {
	Starts            uint64
	Completions       uint64
	Matched           uint64
	Orphan            uint64
	NegativeDurations uint64
	QueueUnderflows   uint64
	ClockRegressions  uint64
	Abandoned         uint64
	Dropped           uint64
}

type Option func(*Engine)

// WithAnomalyHook registers fn to receive every anomaly, unthrottled.
func WithAnomalyHook(fn func(Anomaly)) Option {
	return func(e *Engine) {
		e.onAnomaly = fn
	}
}

// WithAbandonHook registers fn to receive the starts abandoned by a clock
// regression, in arrival order.
func WithAbandonHook(fn func([]*rba.Record)) Option {
	return func(e *Engine) {
		e.onAbandon = fn
	}
}

// WithDiagnostics replaces the default rate-limited diagnostic logger.
func WithDiagnostics(l *logger.Limited) Option {
	return func(e *Engine) {
		e.diag = l
	}
}

// Engine is the correlation state for one pass over a trace. It is not safe
// for concurrent use.
type Engine struct {
	pending      map[key][]*rba.Record
	pendingCount int
	objects      map[rba.ObjectKey]*rba.LiveObject

	highWater uint64
	inReset   bool

	stats     Stats
	diag      *logger.Limited
	onAnomaly func(Anomaly)
	onAbandon func([]*rba.Record)
}

func New(opts ...Option) *Engine {
	e := &Engine{
		pending: make(map[key][]*rba.Record),
		objects: make(map[rba.ObjectKey]*rba.LiveObject),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.diag == nil {
		e.diag = logger.NewLimited(config.DiagRatePerSec, config.DiagBurst)
	}
	return e
}

// Process feeds one decoded record through the engine. It returns false when
// the record was dropped because it arrived behind the clock.
func (e *Engine) Process(r *rba.Record) bool {
	if r.Stamp < e.highWater && !e.inReset {
		e.regress(r)
		return false
	}
	if e.inReset && r.Stamp >= e.highWater {
		e.inReset = false
	}
	if r.Stamp > e.highWater {
		e.highWater = r.Stamp
	}

	if r.Completion {
		e.complete(r)
	} else {
		e.start(r)
	}
	return true
}

func (e *Engine) object(r *rba.Record) *rba.LiveObject {
	k := r.Key()
	obj, ok := e.objects[k]
	if !ok {
		obj = &rba.LiveObject{Key: k, Name: r.ObjectName}
		e.objects[k] = obj
	}
	return obj
}

func (e *Engine) start(r *rba.Record) {
	e.stats.Starts++
	r.State = rba.StatePending

	k := keyOf(r)
	e.pending[k] = append(e.pending[k], r)
	e.pendingCount++

	obj := e.object(r)
	obj.QueueDepth++
	obj.TotalIssued++
	if obj.QueueDepth > obj.MaxQueueDepth {
		obj.MaxQueueDepth = obj.QueueDepth
	}
	r.QueueDepth = obj.QueueDepth
	metricsexporter.ObserveQueueDepth(r.Type, obj.QueueDepth)
}

func (e *Engine) complete(r *rba.Record) {
	e.stats.Completions++

	k := keyOf(r)
	queue := e.pending[k]
	if len(queue) == 0 {
		e.stats.Orphan++
		r.State = rba.StateUnmatched
		e.report(Anomaly{Kind: AnomalyOrphanCompletion, Record: r})
		return
	}

	start := queue[0]
	queue[0] = nil
	if len(queue) == 1 {
		delete(e.pending, k)
	} else {
		e.pending[k] = queue[1:]
	}
	e.pendingCount--

	start.Peer = r
	r.Peer = start
	if r.Stamp < start.Stamp {
		e.stats.NegativeDurations++
		start.ResponseTicks = 0
		start.State = rba.StateUnmatched
		r.State = rba.StateUnmatched
		e.report(Anomaly{Kind: AnomalyNegativeDuration, Record: r, Start: start})
	} else {
		e.stats.Matched++
		start.ResponseTicks = r.Stamp - start.Stamp
		start.State = rba.StateMatched
		r.State = rba.StateMatched
		r.ResponseTicks = start.ResponseTicks
	}

	// Depth and the pending index move together, so this branch only fires
	// if an object's depth was reset while starts were still indexed.
	obj := e.object(r)
	if obj.QueueDepth > 0 {
		obj.QueueDepth--
	} else {
		e.stats.QueueUnderflows++
		e.report(Anomaly{Kind: AnomalyQueueUnderflow, Record: r})
	}
	obj.TotalCompleted++
	r.QueueDepth = obj.QueueDepth
}

// regress handles a record stamped behind the high-water mark: the ring
// wrapped or the producer restarted, so nothing pending can still complete.
func (e *Engine) regress(r *rba.Record) {
	e.stats.ClockRegressions++
	e.stats.Dropped++
	abandoned := e.abandonAll()
	e.inReset = true
	e.report(Anomaly{Kind: AnomalyClockRegression, Record: r, HighWater: e.highWater, Abandoned: len(abandoned)})
	if e.onAbandon != nil && len(abandoned) > 0 {
		e.onAbandon(abandoned)
	}
}

func (e *Engine) abandonAll() []*rba.Record {
	out := make([]*rba.Record, 0, e.pendingCount)
	for _, queue := range e.pending {
		for _, start := range queue {
			start.State = rba.StateUnmatched
			if obj, ok := e.objects[start.Key()]; ok {
				if obj.QueueDepth > 0 {
					obj.QueueDepth--
				}
				obj.TotalAbandoned++
			}
			out = append(out, start)
		}
	}
	e.stats.Abandoned += uint64(len(out))
	e.pending = make(map[key][]*rba.Record)
	e.pendingCount = 0
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Drain abandons every pending start and returns them in arrival order.
func (e *Engine) Drain() []*rba.Record {
	out := e.abandonAll()
	metricsexporter.SetPendingStarts(0)
	return out
}

// Pending reports how many starts are waiting for a completion.
func (e *Engine) Pending() int {
	return e.pendingCount
}

// PendingStarts returns the starts still waiting for a completion, in arrival
// order. They stay pending.
func (e *Engine) PendingStarts() []*rba.Record {
	out := make([]*rba.Record, 0, e.pendingCount)
	for _, queue := range e.pending {
		out = append(out, queue...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (e *Engine) InReset() bool {
	return e.inReset
}

func (e *Engine) HighWater() uint64 {
	return e.highWater
}

func (e *Engine) Stats() Stats {
	return e.stats
}

// Objects returns a copy of the per-object state.
func (e *Engine) Objects() map[rba.ObjectKey]rba.LiveObject {
	out := make(map[rba.ObjectKey]rba.LiveObject, len(e.objects))
	for k, obj := range e.objects {
		out[k] = *obj
	}
	return out
}

func (e *Engine) report(a Anomaly) {
	metricsexporter.RecordAnomaly(string(a.Kind))
	if e.onAnomaly != nil {
		e.onAnomaly(a)
	}
	e.diag.Warn("Correlation anomaly", a.fields()...)
}

// Suppressed reports how many diagnostics the limiter has held back since the
// last one it wrote.
func (e *Engine) Suppressed() uint64 {
	return e.diag.Suppressed()
}
