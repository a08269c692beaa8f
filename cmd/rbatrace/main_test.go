package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/rba"
	"github.com/podtrace/rbatrace/internal/rba/rbatest"
)

func resetFlags(t *testing.T) *bytes.Buffer {
	t.Helper()
	trafficFilter = config.DefaultFilter
	keepUnmatched = false
	includeCompletions = false
	sortKey = config.DefaultSortKey
	topLimit = config.DefaultTopObjectsLimit
	exportFormat = ""
	logLevel = ""
	enableMetrics = false
	enableTracing = false
	tracingOTLPEndpoint = config.DefaultOTLPEndpoint
	tracingSampleRate = config.DefaultTracingSampleRate

	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = orig })
	return &buf
}

func sampleTrace(t *testing.T) string {
	t.Helper()
	return rbatest.WriteTrace(t, rbatest.DefaultHeader(),
		rbatest.Start(1000, 3, 0x100, 8),
		rbatest.WriteStart(1500, 4, 0x200, 16),
		rbatest.Done(3000, 3, 0x100, 8),
		rbatest.Start(4000, 3, 0x300, 8),
		rbatest.WriteDone(9500, 4, 0x200, 16),
		rbatest.Tagged(uint64(rba.TrafficPort), 9600, 0, 0, 0, 0),
	)
}

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{
		"filter", "keep-unmatched", "include-completions", "sort-by", "top", "export",
		"log-level", "metrics", "tracing", "tracing-otlp-endpoint", "tracing-sample-rate",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("expected an error without a trace file argument")
	}
	if err := cmd.Args(cmd, []string{"a", "b"}); err == nil {
		t.Error("expected an error with two arguments")
	}
}

func TestRunRBATrace_Text(t *testing.T) {
	buf := resetFlags(t)
	path := sampleTrace(t)

	if err := runRBATrace(nil, []string{path}); err != nil {
		t.Fatalf("runRBATrace() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Trace:     " + path,
		"6 total, 5 decoded, 1 ignored, 0 filtered",
		"Matched:   2, pending 1",
		"2 ops (1 reads, 1 writes)",
		"Top objects by avg_response:",
		"LUN",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunRBATrace_JSON(t *testing.T) {
	buf := resetFlags(t)
	exportFormat = "json"
	keepUnmatched = true

	if err := runRBATrace(nil, []string{sampleTrace(t)}); err != nil {
		t.Fatalf("runRBATrace() error = %v", err)
	}

	var rep report
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if rep.Stats.Matched != 2 || rep.Stats.Pending != 1 || rep.Stats.Ignored != 1 {
		t.Errorf("unexpected stats %+v", rep.Stats)
	}
	if rep.Response.Count != 2 {
		t.Errorf("Expected 2 matched operations, got %d", rep.Response.Count)
	}
	if len(rep.Records) != 3 {
		t.Fatalf("Expected 2 matched starts and 1 pending start, got %d records", len(rep.Records))
	}
	if rep.Records[0].State != "matched" || rep.Records[0].ResponseMS <= 0 {
		t.Errorf("first record should be a matched start with a response time: %+v", rep.Records[0])
	}
	if rep.Records[2].State != "pending" {
		t.Errorf("last record should still be pending, got %q", rep.Records[2].State)
	}
	if len(rep.Objects) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(rep.Objects))
	}
	if rep.Objects[0].Object != "4" {
		t.Errorf("slowest object should rank first, got %q", rep.Objects[0].Object)
	}
	if rep.Objects[0].Bytes != 16*config.BytesPerBlock {
		t.Errorf("Expected %d bytes, got %d", 16*config.BytesPerBlock, rep.Objects[0].Bytes)
	}
	if len(rep.Window) != 2 || rep.Window[1].Before(rep.Window[0]) {
		t.Errorf("unexpected window %v", rep.Window)
	}
}

func TestRunRBATrace_IncludeCompletions(t *testing.T) {
	buf := resetFlags(t)
	exportFormat = "json"
	includeCompletions = true

	if err := runRBATrace(nil, []string{sampleTrace(t)}); err != nil {
		t.Fatalf("runRBATrace() error = %v", err)
	}
	var rep report
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	completions := 0
	for _, r := range rep.Records {
		if r.Completion {
			completions++
		}
	}
	if completions != 2 || len(rep.Records) != 4 {
		t.Errorf("Expected 2 starts and 2 completions, got %d records with %d completions", len(rep.Records), completions)
	}
}

func TestRunRBATrace_Filter(t *testing.T) {
	buf := resetFlags(t)
	exportFormat = "json"
	trafficFilter = "drive"

	if err := runRBATrace(nil, []string{sampleTrace(t)}); err != nil {
		t.Fatalf("runRBATrace() error = %v", err)
	}
	var rep report
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if rep.Stats.Filtered != 6 || rep.Response.Count != 0 || len(rep.Objects) != 0 {
		t.Errorf("drive filter should drop every LUN record, got %+v", rep.Stats)
	}
}

func TestRunRBATrace_InvalidInput(t *testing.T) {
	path := sampleTrace(t)
	tests := []struct {
		name  string
		setup func()
		path  string
		want  string
	}{
		{"missing file", func() {}, filepath.Join(t.TempDir(), "missing.rba"), "invalid trace file"},
		{"bad filter", func() { trafficFilter = "dns" }, path, "invalid filter"},
		{"bad sort key", func() { sortKey = "latency" }, path, "invalid sort key"},
		{"bad top", func() { topLimit = -1 }, path, "invalid top limit"},
		{"bad export", func() { exportFormat = "csv" }, path, "invalid export format"},
		{"bad sample rate", func() { enableTracing = true; tracingSampleRate = 2 }, path, "invalid tracing sample rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			tt.setup()
			err := runRBATrace(nil, []string{tt.path})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRunRBATrace_BadMagic(t *testing.T) {
	resetFlags(t)
	hdr := rbatest.DefaultHeader()
	hdr.Magic = "NOTRBA!!"
	path := rbatest.WriteTrace(t, hdr)

	err := runRBATrace(nil, []string{path})
	if err == nil || !strings.Contains(err.Error(), "failed to open trace") {
		t.Errorf("Expected open failure, got %v", err)
	}
}
