package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/podtrace/rbatrace/internal/config"
)

func TestValidateTracePath(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.rba")
	if err := os.WriteFile(good, make([]byte, config.HeaderBlockSize), 0o644); err != nil {
		t.Fatal(err)
	}
	short := filepath.Join(dir, "short.rba")
	if err := os.WriteFile(short, make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"valid", good, false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", config.MaxTracePathLength+1), true},
		{"nul byte", "trace\x00.rba", true},
		{"missing", filepath.Join(dir, "missing.rba"), true},
		{"directory", dir, true},
		{"short", short, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTracePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		filter  string
		wantErr bool
	}{
		{"", false},
		{"all", false},
		{"lun", false},
		{"drive", false},
		{"rg", false},
		{"pvd", false},
		{"LUN,PVD", false},
		{"dns", true},
		{strings.Repeat("x", 300), true},
	}
	for _, tt := range tests {
		if err := ValidateFilter(tt.filter); (err != nil) != tt.wantErr {
			t.Errorf("ValidateFilter(%q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
		}
	}
}

func TestValidateSortKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"avg_response", false},
		{"iops", false},
		{"MAX_QUEUE_DEPTH", false},
		{"", true},
		{"latency", true},
		{strings.Repeat("x", 40), true},
	}
	for _, tt := range tests {
		if err := ValidateSortKey(tt.key); (err != nil) != tt.wantErr {
			t.Errorf("ValidateSortKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

func TestValidateTopLimit(t *testing.T) {
	tests := []struct {
		n       int
		wantErr bool
	}{
		{0, false},
		{10, false},
		{config.MaxTopObjectsLimit, false},
		{-1, true},
		{config.MaxTopObjectsLimit + 1, true},
	}
	for _, tt := range tests {
		if err := ValidateTopLimit(tt.n); (err != nil) != tt.wantErr {
			t.Errorf("ValidateTopLimit(%d) error = %v, wantErr %v", tt.n, err, tt.wantErr)
		}
	}
}

func TestValidateSampleRate(t *testing.T) {
	for _, rate := range []float64{0, 0.5, 1} {
		if err := ValidateSampleRate(rate); err != nil {
			t.Errorf("ValidateSampleRate(%v) unexpected error: %v", rate, err)
		}
	}
	for _, rate := range []float64{-0.1, 1.5} {
		if err := ValidateSampleRate(rate); err == nil {
			t.Errorf("ValidateSampleRate(%v) expected error", rate)
		}
	}
}

func TestValidateExportFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"", false},
		{"json", false},
		{"JSON", false},
		{"text", false},
		{"csv", true},
		{"verylongformat", true},
	}
	for _, tt := range tests {
		if err := ValidateExportFormat(tt.format); (err != nil) != tt.wantErr {
			t.Errorf("ValidateExportFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}
