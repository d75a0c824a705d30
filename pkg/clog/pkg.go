package clog

import (
	"io"
	"os"

	"github.com/apex/log"
)

var clogger = NewContextLogger(os.Stdout)

func AddLoggingContext(ctx string, w io.WriteCloser) {
	clogger.AddLoggingContext(ctx, w)
}

func RemoveLoggingContext(ctx string) {
	clogger.RemoveLoggingContext(ctx)
}

func SetLevel(ctx string, level log.Level) {
	clogger.SetLevel(ctx, level)
}

func SetGlobalLoggerLevel(level log.Level) {
	clogger.SetLevel(GlobalCtx, level)
}

func SetLevelFromString(ctx, s string) error {
	return clogger.SetLevelFromString(ctx, s)
}

func SetGlobalLoggerLevelFromString(s string) error {
	return clogger.SetLevelFromString(GlobalCtx, s)
}

func SetOutput(ctx string, w io.WriteCloser) error {
	return clogger.SetOutput(ctx, w)
}

func SetGlobalOutput(w io.WriteCloser) error {
	return clogger.SetOutput(GlobalCtx, w)
}

func UsingCtx(ctx string) *log.Entry {
	return clogger.UsingCtx(ctx)
}

func Global() *log.Entry {
	return clogger.Global()
}

// UseForPackageLogger routes apex/log's package level functions through the
// global logger so they share its level and output.
func UseForPackageLogger() {
	log.Log = clogger.GlobalLogger
}
