package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/podtrace/rbatrace/internal/config"
)

var (
	log         *zap.Logger
	atomicLevel zap.AtomicLevel
)

func init() {
	level := parseLogLevel(config.GetLogLevel())
	atomicLevel = zap.NewAtomicLevelAt(level)
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		atomicLevel,
	)

	log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func Debug(msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	log.Fatal(msg, fields...)
}

func Logger() *zap.Logger {
	return log
}

func Sync() {
	_ = log.Sync()
}

func SetLevel(levelStr string) {
	level := parseLogLevel(levelStr)
	atomicLevel.SetLevel(level)
}

// Limited wraps the global logger with a token bucket. Messages over the
// budget are counted instead of written.
type Limited struct {
	limiter    *rate.Limiter
	suppressed uint64
}

func NewLimited(perSecond float64, burst int) *Limited {
	if perSecond <= 0 {
		perSecond = config.DefaultDiagRatePerSec
	}
	if burst <= 0 {
		burst = config.DefaultDiagBurst
	}
	return &Limited{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) Warn(msg string, fields ...zap.Field) bool {
	if l == nil {
		Warn(msg, fields...)
		return true
	}
	if !l.limiter.Allow() {
		l.suppressed++
		return false
	}
	if l.suppressed > 0 {
		fields = append(fields, zap.Uint64("suppressed", l.suppressed))
		l.suppressed = 0
	}
	Warn(msg, fields...)
	return true
}

func (l *Limited) Suppressed() uint64 {
	if l == nil {
		return 0
	}
	return l.suppressed
}

func parseLogLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
