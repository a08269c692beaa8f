package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/logger"
	"github.com/podtrace/rbatrace/internal/rba"
	"github.com/podtrace/rbatrace/internal/rba/clock"
	"github.com/podtrace/rbatrace/internal/tracing/exporter"
)

type recordExporter interface {
	ExportRecords(ctx context.Context, sessionID string, conv *clock.Converter, records []*rba.Record) int
	Shutdown(ctx context.Context) error
}

type batch struct {
	sessionID string
	conv      *clock.Converter
	records   []*rba.Record
}

// Manager buffers matched records and hands them to the span exporter in the
// background.
type Manager struct {
	enabled        bool
	exporter       recordExporter
	exportInterval time.Duration
	maxPending     int

	mu       sync.Mutex
	batches  map[string]*batch
	pending  int
	exported int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewManager() (*Manager, error) {
	if !config.TracingEnabled {
		return &Manager{enabled: false}, nil
	}

	otlpExporter, err := exporter.NewOTLPExporter(config.OTLPEndpoint, config.TracingSampleRate)
	if err != nil {
		return nil, err
	}
	return newManager(otlpExporter), nil
}

func newManager(exp recordExporter) *Manager {
	return &Manager{
		enabled:        true,
		exporter:       exp,
		exportInterval: 5 * time.Second,
		maxPending:     config.DefaultTracingBatchSize,
		batches:        make(map[string]*batch),
		stopCh:         make(chan struct{}),
	}
}

func (m *Manager) Enabled() bool {
	return m != nil && m.enabled
}

// Add queues a record for export. Only matched starts are kept. A full
// buffer is flushed inline.
func (m *Manager) Add(sessionID string, conv *clock.Converter, r *rba.Record) {
	if !m.Enabled() || r == nil || r.Completion || !r.Matched() {
		return
	}

	m.mu.Lock()
	b, ok := m.batches[sessionID]
	if !ok {
		b = &batch{sessionID: sessionID, conv: conv}
		m.batches[sessionID] = b
	}
	b.records = append(b.records, r)
	m.pending++
	full := m.pending >= m.maxPending
	m.mu.Unlock()

	if full {
		m.exportRecords(context.Background())
	}
}

func (m *Manager) Start(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	m.wg.Add(1)
	go m.exportLoop(ctx)
	return nil
}

func (m *Manager) exportLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.exportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.exportRecords(ctx)
		}
	}
}

func (m *Manager) exportRecords(ctx context.Context) {
	m.mu.Lock()
	batches := m.batches
	m.batches = make(map[string]*batch)
	m.pending = 0
	m.mu.Unlock()

	n := 0
	for _, b := range batches {
		n += m.exporter.ExportRecords(ctx, b.sessionID, b.conv, b.records)
	}
	if n == 0 {
		return
	}

	m.mu.Lock()
	m.exported += n
	m.mu.Unlock()
	logger.Debug("Exported operation spans", zap.Int("spans", n))
}

// Exported reports how many operation spans have been handed off.
func (m *Manager) Exported() int {
	if !m.Enabled() {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exported
}

// Shutdown stops the export loop and flushes what is buffered. It is safe to
// call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.exportRecords(ctx)

	if err := m.exporter.Shutdown(ctx); err != nil {
		logger.Warn("Failed to shutdown OTLP exporter", zap.Error(err))
	}
	return nil
}
