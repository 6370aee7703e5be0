package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gestri/gestri-bff/internal/config"
	"github.com/gestri/gestri-bff/model"
)

// loggerKey carries the request-scoped logger through the context.
type loggerKey struct{}

// Redacted replaces credential values in payload logging.
const Redacted = "[REDACTED]"

// NewLogger builds the process logger: JSON lines on stdout, ISO8601
// timestamps, millisecond durations, level taken from configuration. An
// unknown level string falls back to info so a config typo never silences the
// service.
//
// Level conventions:
//   - error: backend unreachable, unhandled panics, 5xx relayed to clients
//   - warn:  4xx outcomes, open circuit, compensation failures, spec drift
//   - info:  request completion, workflow milestones, startup and shutdown
//   - debug: normalized payloads (redacted), forwarded headers
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Sampling = nil
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.MessageKey = "msg"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or the provided
// fallback if none is found.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger enriched with caller identity and
// correlation fields. Anonymous requests carry the correlation id without a
// subject.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := make([]zap.Field, 0, 3)
	if rctx.SubjectID != "" {
		fields = append(fields, zap.String("subject_id", rctx.SubjectID))
	}
	fields = append(fields, zap.String("correlation_id", rctx.CorrelationID))
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}

	return logger.With(fields...)
}

// credentialKeys are the payload field names masked in debug logging,
// matched case-insensitively. The set covers the user-route credentials and
// the token names that show up in forwarded bodies.
var credentialKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,
	"authorization": true,
}

// RedactBody deep-copies body with credential fields masked, descending into
// nested objects and lists. extra names are matched the same way. Intended
// for debug payload logging only.
func RedactBody(body map[string]any, extra []string) map[string]any {
	if body == nil {
		return nil
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		if isCredentialKey(k, extra) {
			out[k] = Redacted
			continue
		}
		out[k] = redactValue(v, extra)
	}
	return out
}

func redactValue(v any, extra []string) any {
	switch t := v.(type) {
	case map[string]any:
		return RedactBody(t, extra)
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = redactValue(item, extra)
		}
		return items
	default:
		return v
	}
}

func isCredentialKey(key string, extra []string) bool {
	if credentialKeys[strings.ToLower(key)] {
		return true
	}
	for _, name := range extra {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}
