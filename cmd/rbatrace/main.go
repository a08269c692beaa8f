package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/podtrace/rbatrace/internal/analysis"
	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/correlator"
	"github.com/podtrace/rbatrace/internal/logger"
	"github.com/podtrace/rbatrace/internal/metricsexporter"
	"github.com/podtrace/rbatrace/internal/rba"
	"github.com/podtrace/rbatrace/internal/rba/filter"
	"github.com/podtrace/rbatrace/internal/session"
	"github.com/podtrace/rbatrace/internal/tracing"
	"github.com/podtrace/rbatrace/internal/validation"
)

var (
	trafficFilter       string
	keepUnmatched       bool
	includeCompletions  bool
	sortKey             string
	topLimit            int
	exportFormat        string
	logLevel            string
	enableMetrics       bool
	enableTracing       bool
	tracingOTLPEndpoint string
	tracingSampleRate   float64

	stdout   io.Writer
	exitFunc func(int)
)

func init() {
	stdout = os.Stdout
	exitFunc = os.Exit
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", zap.Error(err))
		logger.Sync()
		exitFunc(1)
	}
	logger.Sync()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "rbatrace <trace-file>",
		Short:        "Decode and correlate RBA storage traces",
		Long:         `rbatrace reads a binary RBA ring-buffer trace, pairs each I/O start with its completion and prints per-object response time and queue depth statistics.`,
		Args:         cobra.ExactArgs(1),
		RunE:         runRBATrace,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&trafficFilter, "filter", config.DefaultFilter, "Traffic filter ("+strings.Join(filter.Names(), ", ")+") or comma-separated traffic names")
	rootCmd.Flags().BoolVar(&keepUnmatched, "keep-unmatched", false, "Include starts that never completed")
	rootCmd.Flags().BoolVar(&includeCompletions, "include-completions", false, "Include completion records in JSON output")
	rootCmd.Flags().StringVar(&sortKey, "sort-by", config.DefaultSortKey, "Rank objects by ("+strings.Join(analysis.Measurements(), ", ")+")")
	rootCmd.Flags().IntVar(&topLimit, "top", config.TopObjectsLimit, "Number of objects to print (0 for all)")
	rootCmd.Flags().StringVar(&exportFormat, "export", "", "Output format (text, json)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error, fatal). Overrides RBATRACE_LOG_LEVEL environment variable")
	rootCmd.Flags().BoolVar(&enableMetrics, "metrics", false, "Enable Prometheus metrics server")
	rootCmd.Flags().BoolVar(&enableTracing, "tracing", config.DefaultTracingEnabled, "Export matched I/Os as OpenTelemetry spans")
	rootCmd.Flags().StringVar(&tracingOTLPEndpoint, "tracing-otlp-endpoint", config.DefaultOTLPEndpoint, "OpenTelemetry OTLP endpoint")
	rootCmd.Flags().Float64Var(&tracingSampleRate, "tracing-sample-rate", config.DefaultTracingSampleRate, "Tracing sample rate (0.0-1.0)")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if logLevel != "" {
			logger.SetLevel(logLevel)
		}
	}
	return rootCmd
}

func validateFlags(path string) error {
	if err := validation.ValidateTracePath(path); err != nil {
		return fmt.Errorf("invalid trace file: %w", err)
	}
	if err := validation.ValidateFilter(trafficFilter); err != nil {
		return err
	}
	if err := validation.ValidateSortKey(sortKey); err != nil {
		return err
	}
	if err := validation.ValidateTopLimit(topLimit); err != nil {
		return fmt.Errorf("invalid top limit: %w", err)
	}
	if err := validation.ValidateExportFormat(exportFormat); err != nil {
		return fmt.Errorf("invalid export format: %w", err)
	}
	if enableTracing {
		if err := validation.ValidateSampleRate(tracingSampleRate); err != nil {
			return fmt.Errorf("invalid tracing sample rate: %w", err)
		}
	}
	return nil
}

func runRBATrace(cmd *cobra.Command, args []string) error {
	path := args[0]
	if err := validateFlags(path); err != nil {
		return err
	}

	if enableTracing {
		config.TracingEnabled = true
		if tracingOTLPEndpoint != "" {
			config.OTLPEndpoint = tracingOTLPEndpoint
		}
		config.TracingSampleRate = tracingSampleRate
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *metricsexporter.Server
	if enableMetrics {
		metricsServer = metricsexporter.StartServer()
		defer metricsServer.Shutdown()
	}

	tracingManager, err := tracing.NewManager()
	if err != nil {
		logger.Warn("Failed to create tracing manager", zap.Error(err))
		tracingManager = nil
	} else if tracingManager.Enabled() {
		if err := tracingManager.Start(ctx); err != nil {
			logger.Warn("Failed to start tracing manager", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
			defer cancel()
			_ = tracingManager.Shutdown(shutdownCtx)
		}()
	}

	anomalies := make(map[correlator.AnomalyKind]int)
	sess, err := session.Open(path, session.WithAnomalyHook(func(a correlator.Anomaly) {
		anomalies[a.Kind]++
	}))
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}

	pred, err := filter.Parse(trafficFilter)
	if err != nil {
		return err
	}
	opts := session.Options{
		Filter:             pred,
		KeepUnmatched:      keepUnmatched,
		IncludeCompletions: includeCompletions,
	}

	start := time.Now()
	var records []*rba.Record
	for r, err := range sess.Records(ctx, opts) {
		if err != nil {
			return fmt.Errorf("failed to read trace: %w", err)
		}
		records = append(records, r)
		tracingManager.Add(sess.ID(), sess.Clock(), r)
	}
	logger.Info("Trace processed",
		zap.String("session", sess.ID()),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))

	measure, _ := analysis.ParseMeasurement(sortKey)
	rep := buildReport(sess, records, measure, topLimit)
	rep.setAnomalies(anomalies)

	if strings.EqualFold(exportFormat, "json") {
		return writeJSON(stdout, rep, records)
	}
	return writeText(stdout, rep)
}
