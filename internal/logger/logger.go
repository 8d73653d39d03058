// Package logger is the chatbot's structured logger. It writes JSON lines
// through gookit/slog and stamps the service name on every structured entry.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/gookit/slog"
	"github.com/gookit/slog/handler"
)

// DefaultServiceName is reported when SERVICE_NAME is unset.
const DefaultServiceName = "chatbot"

// Logger is the minimal logging interface used across the application.
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Fields are structured log fields.
type Fields map[string]any

// Options configure the global logger.
type Options struct {
	// Level is a gookit/slog level name. Empty or unknown names mean info.
	Level string
	// ServiceName overrides SERVICE_NAME.
	ServiceName string
	// Output defaults to the console.
	Output io.Writer
}

var (
	// Log is the global logger. It works at info level before Init is called.
	Log Logger = New(Options{})

	serviceName = resolveServiceName("")
)

// Init replaces the global logger with a console logger at level.
func Init(level string) {
	Setup(Options{Level: level})
}

// Setup replaces the global logger. It is meant to run once at startup,
// before any goroutine logs.
func Setup(opts Options) {
	Log = New(opts)
	serviceName = resolveServiceName(opts.ServiceName)
}

// New builds a JSON-lines logger that emits every level up to opts.Level.
func New(opts Options) Logger {
	level := strings.ToLower(strings.TrimSpace(opts.Level))
	if level == "" {
		level = "info"
	}
	maxLevel := slog.LevelByName(level)

	var levels slog.Levels
	for _, lv := range slog.AllLevels {
		if lv <= maxLevel {
			levels = append(levels, lv)
		}
	}

	formatter := slog.NewJSONFormatter(func(f *slog.JSONFormatter) {
		f.Fields = []string{
			slog.FieldKeyDatetime,
			slog.FieldKeyLevel,
			slog.FieldKeyMessage,
		}
		f.TimeFormat = "2006-01-02T15:04:05"
	})

	if opts.Output == nil {
		h := handler.NewConsoleHandler(levels)
		h.SetFormatter(formatter)
		return slog.NewWithHandlers(h)
	}
	h := handler.NewIOWriterHandler(opts.Output, levels)
	h.SetFormatter(formatter)
	return slog.NewWithHandlers(h)
}

func resolveServiceName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if name = os.Getenv("SERVICE_NAME"); name != "" {
		return name
	}
	return DefaultServiceName
}

// InfoWithFields logs msg with structured fields.
func InfoWithFields(msg string, fields Fields) {
	logWithFields(slog.InfoLevel, msg, fields)
}

// WarnWithFields logs msg at warn level with structured fields.
func WarnWithFields(msg string, fields Fields) {
	logWithFields(slog.WarnLevel, msg, fields)
}

// ErrorWithFields logs msg at error level with structured fields.
func ErrorWithFields(msg string, fields Fields) {
	logWithFields(slog.ErrorLevel, msg, fields)
}

// logWithFields copies fields so callers may reuse their map. A service_name
// given by the caller wins over the configured one.
func logWithFields(level slog.Level, msg string, fields Fields) {
	data := make(slog.M, len(fields)+1)
	data["service_name"] = serviceName
	for k, v := range fields {
		data[k] = v
	}

	if lg, ok := Log.(*slog.Logger); ok {
		lg.WithFields(data).Log(level, msg)
		return
	}
	switch level {
	case slog.ErrorLevel:
		Log.Errorf("%s %v", msg, data)
	case slog.WarnLevel:
		Log.Warnf("%s %v", msg, data)
	default:
		Log.Infof("%s %v", msg, data)
	}
}
