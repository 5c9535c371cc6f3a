package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestParseLogrusLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"fatal", logrus.FatalLevel},
		{"panic", logrus.PanicLevel},
		{"unknown", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogrusLevel(tt.input))
		})
	}
}

func TestNewStandardLogger_Formatter(t *testing.T) {
	dev := NewStandardLogger("info", "development")
	assert.IsType(t, &logrus.TextFormatter{}, dev.Logger().Formatter)

	prod := NewStandardLogger("warn", "production")
	assert.IsType(t, &logrus.JSONFormatter{}, prod.Logger().Formatter)
	assert.Equal(t, logrus.WarnLevel, prod.Logger().GetLevel())
}

func TestStandardLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLoggerWithOutput("debug", "production", &buf)

	logger.WithService("preparation").Info("hello")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "preparation", entry["service"])
	assert.Equal(t, "hello", entry["msg"])

	buf.Reset()
	logger.WithSymbol("AAPL").Warn("short series")
	entry = decodeLine(t, &buf)
	assert.Equal(t, "AAPL", entry["symbol"])
	assert.Equal(t, "warning", entry["level"])

	buf.Reset()
	logger.WithError(errors.New("boom")).Error("failed")
	entry = decodeLine(t, &buf)
	assert.Equal(t, "boom", entry["error"])

	buf.Reset()
	logger.WithComponent("api").WithField("x", 1).Debug("detail")
	entry = decodeLine(t, &buf)
	assert.Equal(t, "api", entry["component"])

	buf.Reset()
	logger.WithRequestID("req-1").Info("request")
	entry = decodeLine(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestStandardLogger_LogStartupAndShutdown(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLoggerWithOutput("info", "production", &buf)

	logger.LogStartup("borsa-aslani", "1.0.0", 8080)
	entry := decodeLine(t, &buf)
	assert.Equal(t, "startup", entry["event"])
	assert.Equal(t, float64(8080), entry["port"])
	assert.Equal(t, "1.0.0", entry["version"])

	buf.Reset()
	logger.LogShutdown("borsa-aslani", "signal")
	entry = decodeLine(t, &buf)
	assert.Equal(t, "shutdown", entry["event"])
	assert.Equal(t, "signal", entry["reason"])
}

func TestStandardLogger_LogStage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLoggerWithOutput("debug", "production", &buf)

	logger.LogStage("MSFT", "enrich", 250, 231, 1500*time.Microsecond)
	entry := decodeLine(t, &buf)
	assert.Equal(t, "MSFT", entry["symbol"])
	assert.Equal(t, "enrich", entry["stage"])
	assert.Equal(t, float64(250), entry["rows_in"])
	assert.Equal(t, float64(231), entry["rows_out"])
	assert.Equal(t, float64(1), entry["duration_ms"])

	buf.Reset()
	quiet := NewStandardLoggerWithOutput("info", "production", &buf)
	quiet.LogStage("MSFT", "enrich", 1, 1, time.Millisecond)
	assert.Empty(t, buf.String(), "stage logs are debug level")
}

func TestStandardLogger_LogStorageOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLoggerWithOutput("debug", "production", &buf)

	logger.LogStorageOperation("scaler_save", "scaler_state:abc", 2*time.Millisecond, nil)
	entry := decodeLine(t, &buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "scaler_state:abc", entry["key"])

	buf.Reset()
	logger.LogStorageOperation("scaler_load", "scaler_state:abc", time.Millisecond, errors.New("timeout"))
	entry = decodeLine(t, &buf)
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "timeout", entry["error"])
}

func TestStandardLogger_LogAPIRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLoggerWithOutput("info", "production", &buf)

	logger.LogAPIRequest("req-1", "POST", "/api/v1/datasets/tree", 200, 12*time.Millisecond)
	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, float64(200), entry["status_code"])
	assert.Equal(t, float64(12), entry["duration_ms"])
	assert.Equal(t, "info", entry["level"])

	buf.Reset()
	logger.LogAPIRequest("req-2", "POST", "/api/v1/datasets/tree", 422, time.Millisecond)
	assert.Equal(t, "warning", decodeLine(t, &buf)["level"])

	buf.Reset()
	logger.LogAPIRequest("req-3", "GET", "/api/v1/scalers", 500, time.Millisecond)
	assert.Equal(t, "error", decodeLine(t, &buf)["level"])
}
