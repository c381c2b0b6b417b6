// Package logger provides a custom logger with trace id support and more.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

// TraceIDFn knows how to extract trace id from the context passed to it.
// client of this package need to implement that logic.
type TraceIDFn func(ctx context.Context) string

// Level represent the logging levels used by logger, we define this so client
// is abstracted from slog.Level and we have flexibility to change in future.
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// Environment represents the environment that logger being used.
type Environment int

const (
	EnvironmentDev  Environment = 1
	EnvironmentProd Environment = 2
)

// Logger represents a logger with a custom handler to log information.
type Logger struct {
	handler slog.Handler

	//discard allows the logger to skip the logging.
	discard bool

	//traceIDFn extract the traceID from ctx.
	traceIDFn TraceIDFn
}

// New creates a logger and returns it.
func New(w io.Writer, minLevel Level, env Environment, serviceName string, traceIDFn TraceIDFn) *Logger {
	handler := createHandler(w, serviceName, minLevel, env)
	return &Logger{
		handler:   handler,
		discard:   w == io.Discard,
		traceIDFn: traceIDFn,
	}
}

// Debug logs at the LevelDebug.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	if l.discard {
		return
	}

	//frame 0: runtime.Callers()
	//frame 1: write()
	//frame 2: Debug()
	//frame 3: debug caller (what we want) so we skip those 3
	l.write(ctx, LevelDebug, 3, msg, args...)
}

// Info logs at the LevelInfo.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	if l.discard {
		return
	}

	l.write(ctx, LevelInfo, 3, msg, args...)
}

// Warn logs at the LevelWarn.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	if l.discard {
		return
	}

	l.write(ctx, LevelWarn, 3, msg, args...)
}

// Error logs at the LevelError.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	if l.discard {
		return
	}

	l.write(ctx, LevelError, 3, msg, args...)
}

// StdLogger returns a standard logger that can be used in http.Server to log
// error messages.
func (l *Logger) StdLogger(level Level) *log.Logger {
	return slog.NewLogLogger(l.handler, slog.Level(level))
}

func (l *Logger) write(ctx context.Context, level Level, skipStack int, msg string, args ...any) {
	slogLevel := slog.Level(level)
	if !l.handler.Enabled(ctx, slogLevel) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(skipStack, pcs[:])

	logRecord := slog.NewRecord(time.Now(), slog.Level(level), msg, pcs[0])

	if l.traceIDFn != nil {
		args = append(args, "traceID", l.traceIDFn(ctx))
	}

	logRecord.Add(args...)

	l.handler.Handle(ctx, logRecord)
}

//==============================================================================

func createHandler(w io.Writer, service string, minLevel Level, env Environment) slog.Handler {
	//custom file name
	fn := func(groups []string, attr slog.Attr) slog.Attr {
		if attr.Key == slog.SourceKey {
			source, ok := attr.Value.Any().(*slog.Source)
			if !ok {
				return attr
			}

			filename := fmt.Sprintf("%s:%d", filepath.Base(source.File), source.Line)
			return slog.Attr{Key: "file", Value: slog.StringValue(filename)}
		}

		return attr
	}

	var handler slog.Handler

	if env == EnvironmentProd {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: slog.Level(minLevel), ReplaceAttr: fn})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{AddSource: true, Level: slog.Level(minLevel), ReplaceAttr: fn})
	}

	attrs := []slog.Attr{
		{Key: "service", Value: slog.StringValue(service)},
	}

	handler = handler.WithAttrs(attrs)
	return handler
}
