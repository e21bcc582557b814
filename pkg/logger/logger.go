package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

type Config struct {
	Level Level
	// Format is "json" or "console"; anything else is console
	Format     string
	TimeFormat string
	// Service is attached to every entry when set
	Service string
	Output  io.Writer
}

// Logger is a thin key/value facade over zerolog. Variadic fields are
// alternating keys and values.
type Logger struct {
	zl zerolog.Logger
}

func NewLogger(cfg *Config) *Logger {
	c := Config{Level: InfoLevel, TimeFormat: time.RFC3339}
	if cfg != nil {
		c = *cfg
	}
	out := c.Output
	if out == nil {
		out = os.Stdout
	}
	if c.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: c.TimeFormat}
	}

	ctx := zerolog.New(out).Level(c.Level).With().Timestamp().Caller()
	if c.Service != "" {
		ctx = ctx.Str("service", c.Service)
	}
	return &Logger{zl: ctx.Logger()}
}

func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ParseLevel accepts zerolog level names case-insensitively; unknown or
// empty input means info.
func ParseLevel(level string) Level {
	if level == "" {
		return InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return InfoLevel
	}
	return lvl
}

// Zerolog hands the underlying logger to packages that log with zerolog directly
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// With returns a child logger carrying fields on every entry
func (l *Logger) With(fields ...interface{}) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.zl.Debug().Fields(fields).Msg(msg)
}

func (l *Logger) Info(msg string, fields ...interface{}) {
	l.zl.Info().Fields(fields).Msg(msg)
}

func (l *Logger) Warn(err error, msg string, fields ...interface{}) {
	l.zl.Warn().Err(err).Fields(fields).Msg(msg)
}

func (l *Logger) Error(err error, msg string, fields ...interface{}) {
	l.zl.Error().Err(err).Fields(fields).Msg(msg)
}

func (l *Logger) Fatal(err error, msg string, fields ...interface{}) {
	l.zl.Fatal().Err(err).Fields(fields).Msg(msg)
}
