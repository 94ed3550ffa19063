// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxLogValueLength is the longest logged value; longer values are truncated
const MaxLogValueLength = 1024

// Logger receives the library's structured log entries. keysAndValues
// alternate between keys and values.
//
// The library ships NoOpLogger (the default), DefaultLogger over the
// standard log package and ZapLogger. Other backends need four methods:
//
//	type slogLogger struct{ l *slog.Logger }
//
//	func (s slogLogger) Debug(ctx context.Context, msg string, kv ...any) {
//	    s.l.DebugContext(ctx, msg, kv...)
//	}
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Warn(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// LogLevel is the minimum severity a DefaultLogger writes
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	// LogLevelNone disables logging
	LogLevelNone
)

var logLevelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "NONE"}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(logLevelNames) {
		return fmt.Sprintf("UNKNOWN(%d)", int(l))
	}
	return logLevelNames[l]
}

// DefaultLogger writes through the standard log package, one line per entry:
//
//	[WARN] UCS refresh failed host=10.0.0.10 auto_relogin=true
//
// Entries below the configured level are dropped.
type DefaultLogger struct {
	level LogLevel
}

// NewDefaultLogger creates a DefaultLogger with the specified log level
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{level: level}
}

func (l *DefaultLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	l.output(LogLevelDebug, msg, keysAndValues)
}

func (l *DefaultLogger) Info(_ context.Context, msg string, keysAndValues ...any) {
	l.output(LogLevelInfo, msg, keysAndValues)
}

func (l *DefaultLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	l.output(LogLevelWarn, msg, keysAndValues)
}

func (l *DefaultLogger) Error(_ context.Context, msg string, keysAndValues ...any) {
	l.output(LogLevelError, msg, keysAndValues)
}

// output renders msg followed by the sanitised pairs. msg itself is library
// text and is written as is.
func (l *DefaultLogger) output(level LogLevel, msg string, keysAndValues []any) {
	if level < l.level {
		return
	}
	var b strings.Builder
	b.Grow(len(msg) + 8 + 24*len(keysAndValues))
	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)

	pairs := sanitizeKeysAndValues(keysAndValues)
	for i := 0; i < len(pairs); i += 2 {
		fmt.Fprintf(&b, " %s=%s", pairs[i], pairs[i+1])
	}
	log.Println(b.String())
}

// ParseLogLevel parses a level name such as "debug" or "WARN"
func ParseLogLevel(s string) (LogLevel, error) {
	for l := LogLevelDebug; l <= LogLevelNone; l++ {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	if strings.EqualFold(s, "warning") {
		return LogLevelWarn, nil
	}
	return LogLevelNone, fmt.Errorf("unknown log level %q", s)
}

const truncatedSuffix = "...[TRUNCATED]"

// sanitizeLogValue renders val for a single log line. Control characters
// cannot start a new entry or move the cursor, zero-width and bidi override
// characters are neutralised, invalid UTF-8 shows as '.', and values longer
// than MaxLogValueLength are cut.
func sanitizeLogValue(val any) string {
	s := fmt.Sprint(val)
	if len(s) > MaxLogValueLength {
		s = s[:MaxLogValueLength] + truncatedSuffix
	}
	return strings.Map(sanitizeRune, s)
}

func sanitizeRune(r rune) rune {
	switch r {
	case '\n', '\r', '\t', '\f', '\u202e':
		return ' '
	case '\u200b', '\u200c', '\u200d', '\ufeff':
		return -1
	case utf8.RuneError:
		return '.'
	}
	if unicode.IsControl(r) {
		return '.'
	}
	return r
}

// NoOpLogger discards everything. Clients use it unless WithLogger is given.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(_ context.Context, _ string, _ ...any) {}
func (n *NoOpLogger) Info(_ context.Context, _ string, _ ...any)  {}
func (n *NoOpLogger) Warn(_ context.Context, _ string, _ ...any)  {}
func (n *NoOpLogger) Error(_ context.Context, _ string, _ ...any) {}

// ZapLogger adapts a *zap.Logger to the Logger interface
//
// Values are sanitized the same way DefaultLogger sanitizes them before they
// reach zap's encoder.
//
// Example:
//
//	zl, _ := zap.NewProduction()
//	client, _ := ucs.NewClient("ucsm.example.com",
//	    ucs.Username("admin"),
//	    ucs.Password("secret"),
//	    ucs.WithLogger(ucs.NewZapLogger(zl)))
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// NewZapLogger wraps the given zap logger. A nil logger yields zap's no-op logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Sugar()}
}

// Debug logs a debug message with structured key-value pairs
func (z *ZapLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	z.logger.Debugw(msg, sanitizeKeysAndValues(keysAndValues)...)
}

// Info logs an informational message with structured key-value pairs
func (z *ZapLogger) Info(_ context.Context, msg string, keysAndValues ...any) {
	z.logger.Infow(msg, sanitizeKeysAndValues(keysAndValues)...)
}

// Warn logs a warning message with structured key-value pairs
func (z *ZapLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	z.logger.Warnw(msg, sanitizeKeysAndValues(keysAndValues)...)
}

// Error logs an error message with structured key-value pairs
func (z *ZapLogger) Error(_ context.Context, msg string, keysAndValues ...any) {
	z.logger.Errorw(msg, sanitizeKeysAndValues(keysAndValues)...)
}

// sanitizeKeysAndValues returns a copy of keysAndValues with every key
// converted to a sanitized string and every value sanitized. A trailing key
// without a value is paired with "<MISSING>".
func sanitizeKeysAndValues(keysAndValues []any) []any {
	out := make([]any, 0, len(keysAndValues)+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		out = append(out, sanitizeLogValue(keysAndValues[i]))
		if i+1 < len(keysAndValues) {
			out = append(out, sanitizeLogValue(keysAndValues[i+1]))
		} else {
			out = append(out, "<MISSING>")
		}
	}
	return out
}
