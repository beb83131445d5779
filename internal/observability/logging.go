package observability

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/callwire/internal/config"
	"github.com/pitabwire/callwire/model"
)

type loggerKey struct{}

// NewLogger builds the process logger. Output goes to w, which the command
// sets to stderr so that call results on stdout stay machine readable.
//
// Levels:
//   - warn:  failed exchanges, 5xx responses, circuit breaker transitions
//   - info:  descriptor loading
//   - debug: every completed exchange with redacted payloads, resolution failures
func NewLogger(cfg config.ObservabilityConfig, w io.Writer) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	var enc zapcore.Encoder
	if cfg.LogFormat == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	return zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level))
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in ctx, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger enriched with the caller identity
// of the RequestContext and the active trace ID. Empty values are omitted.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	var fields []zap.Field
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		add("tenant_id", rctx.TenantID)
		add("subject_id", rctx.SubjectID)
		add("partition_id", rctx.PartitionID)
		add("correlation_id", rctx.CorrelationID)
	}
	add("trace_id", TraceIDFromContext(ctx))

	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// CallFields identifies the call an exchange belongs to.
func CallFields(req model.Request) []zap.Field {
	return []zap.Field{
		zap.String("call", req.FullName()),
		zap.String("kind", string(req.Kind)),
	}
}

const redacted = "[REDACTED]"

// defaultSensitiveFields are always redacted, in addition to configured ones.
var defaultSensitiveFields = []string{
	"password",
	"secret",
	"token",
	"access_token",
	"refresh_token",
	"api_key",
	"authorization",
	"credit_card",
	"ssn",
	"pin",
}

// Redactor masks sensitive fields of exchange payloads before they are
// logged. Field names match case-insensitively at any depth.
type Redactor struct {
	fields map[string]bool
}

// NewRedactor creates a Redactor for the default fields plus extra.
func NewRedactor(extra []string) *Redactor {
	r := &Redactor{fields: make(map[string]bool, len(defaultSensitiveFields)+len(extra))}
	for _, f := range defaultSensitiveFields {
		r.fields[f] = true
	}
	for _, f := range extra {
		r.fields[strings.ToLower(f)] = true
	}
	return r
}

// Value returns a redacted copy of a decoded JSON value. The input is not
// modified.
func (r *Redactor) Value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if r.fields[strings.ToLower(k)] {
				out[k] = redacted
				continue
			}
			out[k] = r.Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.Value(val)
		}
		return out
	default:
		return v
	}
}

// Payload renders a raw payload for a debug log line. JSON and form bodies
// are redacted field by field; anything else is summarized by its size.
func (r *Redactor) Payload(data []byte, contentType string) string {
	if len(data) == 0 {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "application/x-www-form-urlencoded" {
		if values, err := url.ParseQuery(string(data)); err == nil {
			for k := range values {
				if r.fields[strings.ToLower(k)] {
					values[k] = []string{redacted}
				}
			}
			return values.Encode()
		}
	}

	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		switch v.(type) {
		case map[string]any, []any:
			if out, err := json.Marshal(r.Value(v)); err == nil {
				return string(out)
			}
		}
	}
	return "<" + strconv.Itoa(len(data)) + " bytes>"
}
