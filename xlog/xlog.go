// Package xlog provides the structured Logger interface used throughout
// the client, generalizing the teacher's level-named interface to carry
// structured key/value pairs, backed by log/slog.
package xlog

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger is the logging capability every package in this client depends
// on. Infof/Warnf/Errorf keep the teacher's printf-style call sites; With
// attaches structured fields to every subsequent call on the returned
// Logger.
type Logger interface {
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

var _ Logger = (*slogLogger)(nil)

// New returns a Logger backed by log/slog writing JSON to stderr.
func New() Logger {
	h := slog.NewJSONHandler(os.Stderr, nil)
	return &slogLogger{l: slog.New(h)}
}

// NewText returns a Logger backed by log/slog writing human-readable text
// to stderr, more useful for local development than New's JSON output.
func NewText() Logger {
	h := slog.NewTextHandler(os.Stderr, nil)
	return &slogLogger{l: slog.New(h)}
}

// NewWithHandler wraps an arbitrary slog.Handler, letting callers route
// logs wherever their own observability stack expects.
func NewWithHandler(h slog.Handler) Logger {
	return &slogLogger{l: slog.New(h)}
}

func (s *slogLogger) Infof(format string, v ...any) {
	s.l.Info(fmt.Sprintf(format, v...))
}

func (s *slogLogger) Warnf(format string, v ...any) {
	s.l.Warn(fmt.Sprintf(format, v...))
}

func (s *slogLogger) Errorf(format string, v ...any) {
	s.l.Error(fmt.Sprintf(format, v...))
}

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

// Nop is a Logger that discards everything, useful as a zero-value default
// in tests and in options that don't set a logger explicitly.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)   {}
func (nopLogger) Warnf(string, ...any)   {}
func (nopLogger) Errorf(string, ...any)  {}
func (nopLogger) With(...any) Logger     { return Nop }
