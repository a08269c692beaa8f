package validation

import (
	"fmt"
	"os"
	"strings"

	"github.com/podtrace/rbatrace/internal/analysis"
	"github.com/podtrace/rbatrace/internal/config"
	"github.com/podtrace/rbatrace/internal/rba/filter"
)

var (
	maxExportFormatLength = 10
	maxFilterLength       = 256
	maxSortKeyLength      = 32
)

func ValidateTracePath(path string) error {
	if path == "" {
		return fmt.Errorf("trace path cannot be empty")
	}
	if len(path) > config.MaxTracePathLength {
		return fmt.Errorf("trace path exceeds maximum length of %d characters", config.MaxTracePathLength)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("trace path contains a NUL byte")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access trace file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("trace path %q is not a regular file", path)
	}
	if info.Size() < config.HeaderLayoutSize {
		return fmt.Errorf("trace file is %d bytes, shorter than the %d-byte header", info.Size(), config.HeaderLayoutSize)
	}
	return nil
}

func ValidateFilter(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > maxFilterLength {
		return fmt.Errorf("filter exceeds maximum length of %d characters", maxFilterLength)
	}
	if _, err := filter.Parse(name); err != nil {
		return fmt.Errorf("invalid filter: %w (valid: %s, or traffic names such as LUN,PVD)", err, strings.Join(filter.Names(), ", "))
	}
	return nil
}

func ValidateSortKey(key string) error {
	if len(key) > maxSortKeyLength {
		return fmt.Errorf("sort key exceeds maximum length of %d characters", maxSortKeyLength)
	}
	if _, err := analysis.ParseMeasurement(key); err != nil {
		return fmt.Errorf("invalid sort key: %w (valid: %s)", err, strings.Join(analysis.Measurements(), ", "))
	}
	return nil
}

func ValidateTopLimit(n int) error {
	if n < 0 || n > config.MaxTopObjectsLimit {
		return fmt.Errorf("top limit must be between 0 and %d", config.MaxTopObjectsLimit)
	}
	return nil
}

func ValidateSampleRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1")
	}
	return nil
}

func ValidateExportFormat(format string) error {
	if format == "" {
		return nil
	}
	if len(format) > maxExportFormatLength {
		return fmt.Errorf("export format exceeds maximum length of %d characters", maxExportFormatLength)
	}
	format = strings.ToLower(format)
	if format != "json" && format != "text" {
		return fmt.Errorf("export format must be 'json' or 'text'")
	}
	return nil
}
