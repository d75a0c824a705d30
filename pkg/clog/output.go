package clog

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// OpenOutput returns stdout, stderr or a rotating file writer for output.
// A file output must be writable.
func OpenOutput(output string) (io.WriteCloser, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log output %s", output)
	}
	_ = f.Close()

	return &lumberjack.Logger{
		Filename:   output,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
	}, nil
}
