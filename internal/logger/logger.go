package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"example.com/spaserve/internal/config"
)

// timestampFormat is ISO 8601 in UTC with millisecond precision.
const timestampFormat = "2006-01-02T15:04:05.000Z"

// LogFields carries structured key/value pairs attached to a log entry.
type LogFields map[string]interface{}

// AccessEntry describes one handled connection for the access log.
type AccessEntry struct {
	ConnID        string
	RemoteAddr    string
	Method        string
	URI           string
	Status        int
	ResponseBytes int64
	Duration      time.Duration
	TargetKind    string
	Error         string // set when the response could not be fully sent
}

// Logger is a general logger that contains specific loggers for access and errors.
// A nil access logger means access logging is disabled.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *zerolog.Logger
	files     []*fileWriter
	now       func() time.Time
}

// fileWriter is an append-only log file that can be reopened after rotation.
type fileWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openFileWriter(path string) (*fileWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileWriter{path: path, f: f}, nil
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Write(p)
}

func (w *fileWriter) reopen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to reopen log file %s: %w", w.path, err)
	}
	old := w.f
	w.f = f
	return old.Close()
}

func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// NewLogger creates and configures a new Logger instance.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	l := &Logger{now: time.Now}

	errorTarget, errorFormat := "stderr", config.LogFormatJSON
	if cfg.ErrorLog != nil {
		if cfg.ErrorLog.Target != nil {
			errorTarget = *cfg.ErrorLog.Target
		}
		if cfg.ErrorLog.Format != "" {
			errorFormat = cfg.ErrorLog.Format
		}
	}
	errorOut, err := l.openTarget(errorTarget, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}
	l.errorLog = newZerolog(errorOut, errorFormat).Level(zerologLevel(cfg.LogLevel))

	if cfg.AccessLog != nil && (cfg.AccessLog.Enabled == nil || *cfg.AccessLog.Enabled) {
		accessTarget := "stdout"
		if cfg.AccessLog.Target != nil {
			accessTarget = *cfg.AccessLog.Target
		}
		accessOut, err := l.openTarget(accessTarget, os.Stdout)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log: %w", err)
		}
		access := newZerolog(accessOut, cfg.AccessLog.Format)
		l.accessLog = &access
	}

	return l, nil
}

// NewTestLogger returns a logger that writes DEBUG and above plus access
// entries, all as JSON, to out.
func NewTestLogger(out io.Writer) *Logger {
	errLog := zerolog.New(out).Level(zerolog.DebugLevel)
	access := zerolog.New(out)
	return &Logger{errorLog: errLog, accessLog: &access, now: time.Now}
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *Logger {
	return &Logger{errorLog: zerolog.Nop(), now: time.Now}
}

func (l *Logger) openTarget(target string, fallback *os.File) (io.Writer, error) {
	switch target {
	case "":
		return fallback, nil
	case "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	fw, err := openFileWriter(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", target, err)
	}
	l.files = append(l.files, fw)
	return fw, nil
}

func newZerolog(out io.Writer, format string) zerolog.Logger {
	if format == config.LogFormatText {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: timestampFormat}
	}
	return zerolog.New(out)
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child logger whose entries all carry fields.
func (l *Logger) With(fields LogFields) *Logger {
	child := &Logger{
		errorLog: l.errorLog.With().Fields(map[string]interface{}(fields)).Logger(),
		files:    l.files,
		now:      l.now,
	}
	if l.accessLog != nil {
		access := l.accessLog.With().Fields(map[string]interface{}(fields)).Logger()
		child.accessLog = &access
	}
	return child
}

func (l *Logger) log(e *zerolog.Event, msg string, fields []LogFields) {
	if e == nil {
		return
	}
	e = e.Str("ts", l.now().UTC().Format(timestampFormat))
	for _, f := range fields {
		if f != nil {
			e = e.Fields(map[string]interface{}(f))
		}
	}
	e.Msg(msg)
}

// Convenience methods for the error log.

func (l *Logger) Debug(msg string, fields ...LogFields) {
	l.log(l.errorLog.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...LogFields) {
	l.log(l.errorLog.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...LogFields) {
	l.log(l.errorLog.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...LogFields) {
	l.log(l.errorLog.Error(), msg, fields)
}

// Access writes one access log entry. It is a no-op when access logging is disabled.
func (l *Logger) Access(entry AccessEntry) {
	if l.accessLog == nil {
		return
	}
	size := entry.ResponseBytes
	if size < 0 {
		size = 0
	}
	e := l.accessLog.Log().
		Str("ts", l.now().UTC().Format(timestampFormat))
	// Loggers carrying conn_id from With pass an empty ConnID.
	if entry.ConnID != "" {
		e = e.Str("conn_id", entry.ConnID)
	}
	e = e.Str("remote_addr", entry.RemoteAddr).
		Str("method", entry.Method).
		Str("uri", entry.URI).
		Int("status", entry.Status).
		Int64("resp_bytes", entry.ResponseBytes).
		Str("resp_size", humanize.Bytes(uint64(size))).
		Int64("duration_ms", entry.Duration.Milliseconds())
	if entry.TargetKind != "" {
		e = e.Str("target_kind", entry.TargetKind)
	}
	if entry.Error != "" {
		e = e.Str("error", entry.Error)
	}
	e.Send()
}

// ReopenLogFiles reopens every file-backed log target, for use after log rotation.
func (l *Logger) ReopenLogFiles() error {
	var errs []error
	for _, fw := range l.files {
		if err := fw.reopen(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseLogFiles closes any open log files. Standard streams are left open.
func (l *Logger) CloseLogFiles() error {
	var errs []error
	for _, fw := range l.files {
		if err := fw.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.files = nil
	return errors.Join(errs...)
}
