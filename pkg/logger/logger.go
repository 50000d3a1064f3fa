// Package logger is the service-wide structured logger. It is a thin layer
// over zap: fields are zap fields, and the package adds the domain field
// helpers and the JSON layout every binary shares.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a zap level.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// Anything else yields LevelInfo.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil || lvl > LevelError {
		return LevelInfo
	}
	return lvl
}

// Field is a zap field.
type Field = zap.Field

func String(key, value string) Field             { return zap.String(key, value) }
func Int(key string, value int) Field            { return zap.Int(key, value) }
func Int64(key string, value int64) Field        { return zap.Int64(key, value) }
func Bool(key string, value bool) Field          { return zap.Bool(key, value) }
func Duration(key string, d time.Duration) Field { return zap.Duration(key, d) }
func Time(key string, t time.Time) Field         { return zap.Time(key, t) }
func Any(key string, value interface{}) Field    { return zap.Any(key, value) }

// Err logs err under "error". A nil error adds nothing.
func Err(err error) Field { return zap.Error(err) }

// Fields shared across the progress engine.
func StudentID(id string) Field     { return zap.String("student_id", id) }
func CourseID(id string) Field      { return zap.String("course_id", id) }
func ModuleID(id string) Field      { return zap.String("module_id", id) }
func EnrollmentID(id string) Field  { return zap.String("enrollment_id", id) }
func Certificate(id string) Field   { return zap.String("certificate_id", id) }
func Percentage(p int) Field        { return zap.Int("percentage", p) }
func Component(name string) Field   { return zap.String("component", name) }
func Latency(d time.Duration) Field { return zap.Duration("latency", d) }

// Options configures New.
type Options struct {
	Output    io.Writer // stdout when nil
	Level     Level
	Format    string // "json" or "console"
	AddCaller bool
}

// DefaultOptions is JSON at info level on stdout, with caller.
func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, Format: "json", AddCaller: true}
}

// Logger wraps a zap logger whose level can be changed at runtime.
// Loggers derived with With share that level.
type Logger struct {
	z     *zap.Logger
	level zap.AtomicLevel
}

// New builds a logger. JSON output uses "timestamp" and "message" keys,
// upper-case levels, ISO8601 times and durations as strings like "1.5s".
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder = zapcore.NewJSONEncoder(ec)
	if strings.EqualFold(opts.Format, "console") {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	}

	level := zap.NewAtomicLevelAt(opts.Level)
	var zopts []zap.Option
	if opts.AddCaller {
		// Skip the Logger method frame.
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &Logger{
		z:     zap.New(zapcore.NewCore(enc, zapcore.AddSync(out), level), zopts...),
		level: level,
	}
}

// Default is New(DefaultOptions()).
func Default() *Logger { return New(DefaultOptions()) }

// Nop discards everything.
func Nop() *Logger {
	return &Logger{z: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(fields...), level: l.level}
}

// SetLevel changes the level of l and every logger derived from it.
func (l *Logger) SetLevel(level Level) { l.level.SetLevel(level) }

func (l *Logger) Sync() error { return l.z.Sync() }

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

