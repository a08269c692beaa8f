// Package session drives one trace file through decoding and correlation.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/correlator"
	"github.com/podtrace/rbatrace/internal/logger"
	"github.com/podtrace/rbatrace/internal/metricsexporter"
	"github.com/podtrace/rbatrace/internal/rba"
	"github.com/podtrace/rbatrace/internal/rba/clock"
	"github.com/podtrace/rbatrace/internal/rba/decoder"
	"github.com/podtrace/rbatrace/internal/rba/filter"
	"github.com/podtrace/rbatrace/internal/rba/parser"
)

// Options control which records a pass yields. By default only matched start
// records are yielded, each as soon as its completion is read.
type Options struct {
	Filter             filter.Predicate
	KeepUnmatched      bool
	IncludeCompletions bool
	// FileOrder yields records in file order instead. A start is held back
	// until it resolves, but never more than config.ReorderWindow records;
	// older heads are released in whatever state they are in.
	FileOrder bool
}

type Stats struct {
	Total             uint64
	Decoded           uint64
	Ignored           uint64
	Filtered          uint64
	Matched           uint64
	Pending           uint64
	Orphan            uint64
	NegativeDurations uint64
	QueueUnderflows   uint64
	ClockRegressions  uint64
	Abandoned         uint64
	Dropped           uint64
	Released          uint64
}

type Option func(*Session)

// WithRegistry replaces the standard decoder rules.
func WithRegistry(reg *decoder.Registry) Option {
	return func(s *Session) {
		s.registry = reg
	}
}

// WithAnomalyHook forwards correlation anomalies to fn.
func WithAnomalyHook(fn func(correlator.Anomaly)) Option {
	return func(s *Session) {
		s.onAnomaly = fn
	}
}

// Session owns one trace file. It is not safe for concurrent use; separate
// files may be processed by separate sessions in parallel.
type Session struct {
	id       uuid.UUID
	path     string
	header   *parser.Header
	clock    *clock.Converter
	registry *decoder.Registry

	onAnomaly func(correlator.Anomaly)

	engine   *correlator.Engine
	total    uint64
	decoded  uint64
	ignored  uint64
	filtered uint64
	released uint64
	ready    []*rba.Record
}

// Open reads and validates the header of the trace at path.
func Open(path string, opts ...Option) (*Session, error) {
	f, err := parser.OpenFile(path)
	if err != nil {
		if code, ok := parser.FormatErrorCode(err); ok {
			metricsexporter.RecordFormatError(code.String())
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	s := &Session{
		id:     uuid.New(),
		path:   path,
		header: f.Header,
		clock:  clock.New(f.Header),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = decoder.NewRegistry()
	}

	logger.Info("Opened trace",
		zap.String("session", s.id.String()),
		zap.String("path", path),
		zap.Uint8("major", f.Header.Major),
		zap.Uint8("minor", f.Header.Minor),
		zap.Uint8("ring", f.Header.RingID),
		zap.Int64("rtc_freq", f.Header.ClockFreq),
		zap.Time("anchor", s.clock.TickToTime(f.Header.ClockAnchor)))
	return s, nil
}

func (s *Session) ID() string {
	return s.id.String()
}

func (s *Session) Path() string {
	return s.path
}

func (s *Session) Header() *parser.Header {
	return s.header
}

func (s *Session) Clock() *clock.Converter {
	return s.clock
}

func (s *Session) reset(opts Options) {
	var engineOpts []correlator.Option
	if s.onAnomaly != nil {
		engineOpts = append(engineOpts, correlator.WithAnomalyHook(s.onAnomaly))
	}
	if !opts.FileOrder {
		engineOpts = append(engineOpts, correlator.WithAbandonHook(func(abandoned []*rba.Record) {
			s.ready = append(s.ready, abandoned...)
		}))
	}
	s.engine = correlator.New(engineOpts...)
	s.total, s.decoded, s.ignored, s.filtered, s.released = 0, 0, 0, 0, 0
	s.ready = s.ready[:0]
}

// Records streams correlated records. Each call reopens the file and restarts
// correlation. A start is yielded once it resolves: matched by its completion,
// or abandoned by a clock regression. Starts still pending at EOF are yielded
// only with KeepUnmatched and keep StatePending.
func (s *Session) Records(ctx context.Context, opts Options) iter.Seq2[*rba.Record, error] {
	return func(yield func(*rba.Record, error) bool) {
		f, err := parser.OpenFile(s.path)
		if err != nil {
			yield(nil, fmt.Errorf("failed to reopen trace: %w", err))
			return
		}
		defer func() { _ = f.Close() }()

		s.reset(opts)
		q := &reorderQueue{}
		window := max(config.ReorderWindow, 1)
		var raw rba.RawEvent

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			began := time.Now()
			err := f.Next(&raw)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if code, ok := parser.FormatErrorCode(err); ok {
					metricsexporter.RecordFormatError(code.String())
				}
				yield(nil, err)
				return
			}
			s.total++

			rec := s.step(&raw, opts.Filter)
			metricsexporter.RecordProcessingLatency(time.Since(began))

			if opts.FileOrder {
				if rec != nil && (!rec.Completion || opts.IncludeCompletions) {
					q.push(rec)
				}
				for q.Len() > window {
					s.released++
					if !s.emit(q.release(), opts, yield) {
						return
					}
				}
				for r := q.pop(); r != nil; r = q.pop() {
					if !s.emit(r, opts, yield) {
						return
					}
				}
				continue
			}

			if rec != nil && rec.Completion {
				if rec.Peer != nil {
					s.ready = append(s.ready, rec.Peer)
				}
				if opts.IncludeCompletions {
					s.ready = append(s.ready, rec)
				}
			}
			for i, r := range s.ready {
				s.ready[i] = nil
				if !s.emit(r, opts, yield) {
					s.ready = s.ready[:0]
					return
				}
			}
			s.ready = s.ready[:0]
		}

		pending := s.engine.Pending()
		metricsexporter.SetPendingStarts(pending)
		s.logSummary()

		rest := q.rest()
		if !opts.FileOrder {
			rest = s.engine.PendingStarts()
		}
		for _, r := range rest {
			if !s.emit(r, opts, yield) {
				return
			}
		}
	}
}

// step filters, decodes and correlates one raw event. It returns the
// correlated record, or nil if the record was filtered, unsupported or
// dropped.
func (s *Session) step(raw *rba.RawEvent, pred filter.Predicate) *rba.Record {
	ev := filter.Apply(pred, raw)
	if ev == nil {
		s.filtered++
		metricsexporter.RecordOutcome(raw.Tag(), metricsexporter.OutcomeFiltered)
		return nil
	}
	rec, ok := s.registry.Decode(ev)
	if !ok {
		s.ignored++
		metricsexporter.RecordOutcome(ev.Tag(), metricsexporter.OutcomeIgnored)
		return nil
	}
	s.decoded++
	metricsexporter.RecordOutcome(rec.Type, metricsexporter.OutcomeDecoded)

	rec.Seq = s.total
	if !s.engine.Process(rec) {
		return nil
	}
	return rec
}

func (s *Session) emit(r *rba.Record, opts Options, yield func(*rba.Record, error) bool) bool {
	if !r.Completion && r.Matched() {
		metricsexporter.ExportMatched(r, s.clock.Duration(r.ResponseTicks))
	}
	switch {
	case r.Completion:
	case r.Matched():
	case opts.KeepUnmatched:
	default:
		return true
	}
	return yield(r, nil)
}

func (s *Session) logSummary() {
	st := s.Stats()
	logger.Debug("Trace pass complete",
		zap.String("session", s.id.String()),
		zap.Uint64("total", st.Total),
		zap.Uint64("decoded", st.Decoded),
		zap.Uint64("ignored", st.Ignored),
		zap.Uint64("filtered", st.Filtered),
		zap.Uint64("matched", st.Matched),
		zap.Uint64("pending", st.Pending),
		zap.Uint64("orphan", st.Orphan),
		zap.Uint64("regressions", st.ClockRegressions),
		zap.Uint64("released", st.Released))
	if n := s.engine.Suppressed(); n > 0 {
		logger.Warn("Correlation diagnostics suppressed",
			zap.String("session", s.id.String()),
			zap.Uint64("suppressed", n))
	}
}

// Collect drains Records into a slice.
func (s *Session) Collect(ctx context.Context, opts Options) ([]*rba.Record, error) {
	var out []*rba.Record
	for r, err := range s.Records(ctx, opts) {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Objects returns the object table of the most recent pass.
func (s *Session) Objects() map[rba.ObjectKey]rba.LiveObject {
	if s.engine == nil {
		return map[rba.ObjectKey]rba.LiveObject{}
	}
	return s.engine.Objects()
}

// Stats returns the counters of the most recent pass.
func (s *Session) Stats() Stats {
	st := Stats{
		Total:    s.total,
		Decoded:  s.decoded,
		Ignored:  s.ignored,
		Filtered: s.filtered,
		Released: s.released,
	}
	if s.engine == nil {
		return st
	}
	es := s.engine.Stats()
	st.Matched = es.Matched
	st.Pending = uint64(s.engine.Pending())
	st.Orphan = es.Orphan
	st.NegativeDurations = es.NegativeDurations
	st.QueueUnderflows = es.QueueUnderflows
	st.ClockRegressions = es.ClockRegressions
	st.Abandoned = es.Abandoned
	st.Dropped = es.Dropped
	return st
}
