package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/callwire/internal/config"
	"github.com/pitabwire/callwire/model"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log entry is not JSON: %v (%s)", err, buf.String())
	}
	return entry
}

func TestNewLogger_levels(t *testing.T) {
	tests := []struct {
		level     string
		enabled   zapcore.Level
		disabled  zapcore.Level
		checkDown bool
	}{
		{"debug", zapcore.DebugLevel, 0, false},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel, true},
		{"warn", zapcore.WarnLevel, zapcore.InfoLevel, true},
		{"bogus", zapcore.InfoLevel, zapcore.DebugLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewLogger(config.ObservabilityConfig{LogLevel: tt.level}, &bytes.Buffer{})
			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("%v should be enabled", tt.enabled)
			}
			if tt.checkDown && logger.Core().Enabled(tt.disabled) {
				t.Errorf("%v should be disabled", tt.disabled)
			}
		})
	}
}

func TestNewLogger_jsonToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"}, &buf)

	logger.Named("httpclient").Info("descriptors loaded", zap.Int("interfaces", 2))

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "descriptors loaded" || entry["level"] != "info" {
		t.Errorf("entry = %v", entry)
	}
	if entry["logger"] != "httpclient" {
		t.Errorf("logger = %v, want httpclient", entry["logger"])
	}
	if entry["interfaces"] != float64(2) {
		t.Errorf("interfaces = %v", entry["interfaces"])
	}
}

func TestNewLogger_console(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.ObservabilityConfig{LogLevel: "info", LogFormat: "console"}, &buf)

	logger.Warn("circuit breaker state changed", zap.String("host", "api.local"))

	out := buf.String()
	if json.Valid(buf.Bytes()) {
		t.Errorf("console output should not be JSON: %s", out)
	}
	if !strings.Contains(out, "circuit breaker state changed") || !strings.Contains(out, `"host": "api.local"`) {
		t.Errorf("output = %q", out)
	}
}

func TestLoggerFrom(t *testing.T) {
	stored, fallback := zap.NewNop(), zap.NewNop()

	if got := LoggerFrom(WithLogger(context.Background(), stored), fallback); got != stored {
		t.Error("LoggerFrom should return the stored logger")
	}
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom should return the fallback")
	}
}

func TestRequestLogger(t *testing.T) {
	traced := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x01, 0x02},
		SpanID:  trace.SpanID{0x03},
	}))

	tests := []struct {
		name    string
		ctx     context.Context
		want    map[string]string
		missing []string
	}{
		{
			name: "identity and trace",
			ctx: model.WithRequestContext(traced, &model.RequestContext{
				TenantID:      "tenant-1",
				SubjectID:     "user-42",
				PartitionID:   "part-1",
				CorrelationID: "corr-abc",
			}),
			want: map[string]string{
				"tenant_id":      "tenant-1",
				"subject_id":     "user-42",
				"partition_id":   "part-1",
				"correlation_id": "corr-abc",
				"trace_id":       "01020000000000000000000000000000",
			},
		},
		{
			name: "partial identity",
			ctx: model.WithRequestContext(context.Background(), &model.RequestContext{
				CorrelationID: "corr-abc",
			}),
			want:    map[string]string{"correlation_id": "corr-abc"},
			missing: []string{"tenant_id", "subject_id", "trace_id"},
		},
		{
			name:    "trace only",
			ctx:     traced,
			want:    map[string]string{"trace_id": "01020000000000000000000000000000"},
			missing: []string{"correlation_id"},
		},
		{
			name:    "bare context",
			ctx:     context.Background(),
			missing: []string{"tenant_id", "trace_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(config.ObservabilityConfig{LogLevel: "debug"}, &buf)

			RequestLogger(tt.ctx, logger).Info("exchange completed")

			entry := decodeEntry(t, &buf)
			for key, want := range tt.want {
				if got := entry[key]; got != want {
					t.Errorf("%s = %v, want %q", key, got, want)
				}
			}
			for _, key := range tt.missing {
				if _, ok := entry[key]; ok {
					t.Errorf("%s should be omitted", key)
				}
			}
		})
	}
}

func TestCallFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.ObservabilityConfig{LogLevel: "info"}, &buf)

	logger.Info("x", CallFields(model.Request{Interface: "Users", Method: "List", Kind: model.KindPOST})...)

	entry := decodeEntry(t, &buf)
	if entry["call"] != "Users.List" || entry["kind"] != "POST" {
		t.Errorf("entry = %v", entry)
	}
}

func TestRedactor_Value(t *testing.T) {
	r := NewRedactor([]string{"Card_Number"})
	in := map[string]any{
		"name":     "qibin",
		"Password": "hunter2",
		"payment": map[string]any{
			"card_number": "4111",
			"amount":      10,
		},
		"items": []any{
			map[string]any{"sku": "A-1", "api_key": "k"},
		},
	}

	out := r.Value(in).(map[string]any)

	if out["name"] != "qibin" {
		t.Errorf("name = %v", out["name"])
	}
	if out["Password"] != "[REDACTED]" {
		t.Errorf("Password = %v, matching is case-insensitive", out["Password"])
	}
	payment := out["payment"].(map[string]any)
	if payment["card_number"] != "[REDACTED]" || payment["amount"] != 10 {
		t.Errorf("payment = %v", payment)
	}
	item := out["items"].([]any)[0].(map[string]any)
	if item["api_key"] != "[REDACTED]" || item["sku"] != "A-1" {
		t.Errorf("item = %v", item)
	}
	if in["Password"] != "hunter2" {
		t.Error("input was modified")
	}
}

func TestRedactor_Payload(t *testing.T) {
	r := NewRedactor([]string{"email"})
	tests := []struct {
		name        string
		in          string
		contentType string
		want        string
	}{
		{"empty", "", "application/json", ""},
		{"json object", `{"name":"qibin","password":"x"}`, "application/json", `{"name":"qibin","password":"[REDACTED]"}`},
		{"json without content type", `{"email":"a@b.c"}`, "", `{"email":"[REDACTED]"}`},
		{"json array", `[{"token":"t"}]`, "application/json", `[{"token":"[REDACTED]"}]`},
		{"form", "name=qibin&pin=1234", "application/x-www-form-urlencoded; charset=utf-8", "name=qibin&pin=%5BREDACTED%5D"},
		{"json scalar", `"hello"`, "application/json", "<7 bytes>"},
		{"yaml", "name: qibin\n", "application/yaml", "<12 bytes>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Payload([]byte(tt.in), tt.contentType); got != tt.want {
				t.Errorf("Payload(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
