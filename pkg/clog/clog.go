package clog

import (
	"fmt"
	"io"
	"sync"

	"github.com/apex/log"
)

// Logging contexts used across mcsync. Each can be given its own level or
// output; anything without its own logger falls back to the global one.
const (
	GlobalCtx    = "global"
	TransfersCtx = "transfers"
	RunnerCtx    = "runner"
	MigrationCtx = "migration"
	BackupCtx    = "backup"
	APICtx       = "api"
)

const ctxField = "ctx"

type ContextLogger struct {
	GlobalLogger   *log.Logger
	globalHandler  *Handler
	ContextLoggers sync.Map
}

func NewContextLogger(globalWriter io.WriteCloser) *ContextLogger {
	h := NewHandler(globalWriter)
	return &ContextLogger{
		GlobalLogger:  &log.Logger{Handler: h, Level: log.InfoLevel},
		globalHandler: h,
	}
}

// AddLoggingContext gives ctx its own logger writing to w.
func (l *ContextLogger) AddLoggingContext(ctx string, w io.WriteCloser) {
	logger := &log.Logger{Handler: NewHandler(w), Level: l.GlobalLogger.Level}
	if old, loaded := l.ContextLoggers.Swap(ctx, logger); loaded {
		if h := handlerOf(old); h != nil {
			h.Close()
		}
	}
}

func (l *ContextLogger) RemoveLoggingContext(ctx string) {
	logger, ok := l.ContextLoggers.LoadAndDelete(ctx)
	if !ok {
		return
	}

	if h := handlerOf(logger); h != nil {
		h.Close()
	}
}

func (l *ContextLogger) SetLevel(ctx string, level log.Level) {
	if ctx == GlobalCtx {
		l.GlobalLogger.Level = level
		return
	}

	if logger := l.contextLogger(ctx); logger != nil {
		logger.Level = level
	}
}

func (l *ContextLogger) SetLevelFromString(ctx, s string) error {
	level, err := log.ParseLevel(s)
	if err != nil {
		return err
	}

	l.SetLevel(ctx, level)
	return nil
}

func (l *ContextLogger) SetOutput(ctx string, w io.WriteCloser) error {
	if ctx == GlobalCtx {
		l.globalHandler.SetOutput(w)
		return nil
	}

	h := handlerOf(l.contextLogger(ctx))
	if h == nil {
		return fmt.Errorf("no such logging context %s", ctx)
	}

	h.SetOutput(w)
	return nil
}

// UsingCtx returns an entry tagged with ctx, routed to the context's own
// logger when one was added.
func (l *ContextLogger) UsingCtx(ctx string) *log.Entry {
	if logger := l.contextLogger(ctx); logger != nil {
		return logger.WithField(ctxField, ctx)
	}

	return l.GlobalLogger.WithField(ctxField, ctx)
}

func (l *ContextLogger) Global() *log.Entry {
	return l.UsingCtx(GlobalCtx)
}

func (l *ContextLogger) contextLogger(ctx string) *log.Logger {
	logger, ok := l.ContextLoggers.Load(ctx)
	if !ok {
		return nil
	}

	clogger, _ := logger.(*log.Logger)
	return clogger
}

func handlerOf(logger interface{}) *Handler {
	clogger, ok := logger.(*log.Logger)
	if !ok || clogger == nil {
		return nil
	}

	h, _ := clogger.Handler.(*Handler)
	return h
}
