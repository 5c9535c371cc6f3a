package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// StandardLogger provides standardized, field-based logging on top of logrus
type StandardLogger struct {
	logger *logrus.Logger
}

// NewStandardLogger creates a logger for the given level and environment.
// Development gets human-readable text, everything else JSON.
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	return NewStandardLoggerWithOutput(logLevel, environment, os.Stdout)
}

// NewStandardLoggerWithOutput is NewStandardLogger writing to out.
func NewStandardLoggerWithOutput(logLevel string, environment string, out io.Writer) *StandardLogger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(ParseLogrusLevel(logLevel))

	if strings.EqualFold(environment, "development") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &StandardLogger{logger: logger}
}

// Logger returns the underlying *logrus.Logger
func (l *StandardLogger) Logger() *logrus.Logger {
	return l.logger
}

// WithService creates a logger with service context
func (l *StandardLogger) WithService(serviceName string) *logrus.Entry {
	return l.logger.WithField("service", serviceName)
}

// WithComponent creates a logger with component context
func (l *StandardLogger) WithComponent(componentName string) *logrus.Entry {
	return l.logger.WithField("component", componentName)
}

// WithRequestID creates a logger with request ID context
func (l *StandardLogger) WithRequestID(requestID string) *logrus.Entry {
	return l.logger.WithField("request_id", requestID)
}

// WithSymbol creates a logger with symbol context
func (l *StandardLogger) WithSymbol(symbol string) *logrus.Entry {
	return l.logger.WithField("symbol", symbol)
}

// WithError creates a logger with error context
func (l *StandardLogger) WithError(err error) *logrus.Entry {
	return l.logger.WithError(err)
}

// LogStartup logs application startup information
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.WithFields(logrus.Fields{
		"service": serviceName,
		"version": version,
		"port":    port,
		"event":   "startup",
	}).Info("Service starting")
}

// LogShutdown logs application shutdown information
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.WithFields(logrus.Fields{
		"service": serviceName,
		"reason":  reason,
		"event":   "shutdown",
	}).Info("Service shutting down")
}

// LogStage logs the outcome of one pipeline stage for a symbol
func (l *StandardLogger) LogStage(symbol string, stage string, rowsIn int, rowsOut int, duration time.Duration) {
	l.logger.WithFields(logrus.Fields{
		"symbol":      symbol,
		"stage":       stage,
		"rows_in":     rowsIn,
		"rows_out":    rowsOut,
		"duration_ms": duration.Milliseconds(),
	}).Debug("Pipeline stage completed")
}

// LogStorageOperation logs repository and cache operations
func (l *StandardLogger) LogStorageOperation(operation string, key string, duration time.Duration, err error) {
	entry := l.logger.WithFields(logrus.Fields{
		"operation":   operation,
		"key":         key,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("Storage operation failed")
		return
	}
	entry.Debug("Storage operation completed")
}

// LogAPIRequest logs API requests in a standardized format
func (l *StandardLogger) LogAPIRequest(requestID string, method string, path string, statusCode int, duration time.Duration) {
	entry := l.logger.WithFields(logrus.Fields{
		"request_id":  requestID,
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case statusCode >= 500:
		entry.Error("API request")
	case statusCode >= 400:
		entry.Warn("API request")
	default:
		entry.Info("API request")
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
