package config

import (
	"os"
	"strconv"
	"time"
)

const (
	DefaultLogLevel          = "info"
	DefaultMetricsPort       = 3000
	DefaultMetricsHost       = "127.0.0.1"
	DefaultTracingEnabled    = false
	DefaultTracingSampleRate = 1.0
	DefaultOTLPEndpoint      = "localhost:4318"
	DefaultFilter            = "all"
	DefaultSortKey           = "avg_response"
	DefaultVersion           = "v0.3.0"
)

// Trace file layout.
const (
	HeaderMagic       = "KtrcBack"
	HeaderMagicLength = 8
	HeaderBlockSize   = 512
	HeaderLayoutSize  = 104
	RecordWords       = 7
	RecordSize        = RecordWords * 8
	SupportedMajor    = 8
)

// Record command word bits.
const (
	CommandDoneBit     = 0x0001
	CommandOpcodeMask  = 0x000E
	CommandErrorBit    = 0x8000
	CommandWordMask    = 0xFFFF
	NarrowCommandMask  = 0x0FFF
	TrafficTagMask     = 0xFFFFFFFF
	CPUMask            = 0xF
	PriorityUrgentMask = 0xC0
	PriorityLowBit     = 0x40
	PriorityNormalBit  = 0x80
)

const (
	MicrosecondsPerSecond = 1000000
	HundredNSPerSecond    = 10000000
	// NTToUnixEpoch is 1970-01-01 expressed in 100ns ticks since 1601-01-01.
	NTToUnixEpoch = 116444736000000000
	BytesPerBlock = 512
	NSPerMS       = 1000000
)

const (
	DefaultMetricsReadTimeout     = 5 * time.Second
	DefaultMetricsWriteTimeout    = 10 * time.Second
	DefaultMetricsShutdownTimeout = 5 * time.Second
	DefaultTracingExporterTimeout = 10 * time.Second
	DefaultShutdownTimeout        = 5 * time.Second
)

const (
	MaxRequestSize          = 1024 * 1024
	DefaultRateLimitPerSec  = 10
	DefaultRateLimitBurst   = 20
	DefaultReadBufferKB     = 256
	DefaultDiagRatePerSec   = 20
	DefaultDiagBurst        = 50
	DefaultTopObjectsLimit  = 10
	MaxTopObjectsLimit      = 10000
	MaxTracePathLength      = 4096
	DefaultPercentileSample = 95.0
	DefaultTracingBatchSize = 4096
	DefaultReorderWindow    = 65536
)

const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

var (
	ReadBufferSize    = getIntEnvOrDefault("RBATRACE_READ_BUFFER_KB", DefaultReadBufferKB) * KB
	DiagRatePerSec    = getFloatEnvOrDefault("RBATRACE_DIAG_RATE_PER_SEC", DefaultDiagRatePerSec)
	DiagBurst         = getIntEnvOrDefault("RBATRACE_DIAG_BURST", DefaultDiagBurst)
	TracingEnabled    = getEnvOrDefault("RBATRACE_TRACING_ENABLED", "false") == "true"
	TracingSampleRate = getFloatEnvOrDefault("RBATRACE_TRACING_SAMPLE_RATE", DefaultTracingSampleRate)
	OTLPEndpoint      = getEnvOrDefault("RBATRACE_OTLP_ENDPOINT", DefaultOTLPEndpoint)
	TopObjectsLimit   = getIntEnvOrDefault("RBATRACE_TOP_OBJECTS_LIMIT", DefaultTopObjectsLimit)
	ReorderWindow     = getIntEnvOrDefault("RBATRACE_REORDER_WINDOW", DefaultReorderWindow)
	RateLimitPerSec   = getIntEnvOrDefault("RBATRACE_RATE_LIMIT_PER_SEC", DefaultRateLimitPerSec)
	RateLimitBurst    = getIntEnvOrDefault("RBATRACE_RATE_LIMIT_BURST", DefaultRateLimitBurst)
	Version           = getEnvOrDefault("RBATRACE_VERSION", DefaultVersion)
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil && i > 0 {
			return i
		}
	}
	return defaultValue
}

func GetLogLevel() string {
	return getEnvOrDefault("RBATRACE_LOG_LEVEL", DefaultLogLevel)
}

func GetMetricsAddress() string {
	addr := os.Getenv("RBATRACE_METRICS_ADDR")
	if addr == "" {
		addr = DefaultMetricsHost + ":" + strconv.Itoa(DefaultMetricsPort)
	}
	return addr
}

func AllowNonLoopbackMetrics() bool {
	return os.Getenv("RBATRACE_METRICS_INSECURE_ALLOW_ANY_ADDR") == "1"
}

func GetVersion() string {
	return Version
}

func GetUserAgent() string {
	return "rbatrace/" + Version
}
