package clog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
)

// Handler is an apex/log handler writing one line per entry:
//
//	LEVEL 2006-01-02 15:04:05 [ctx] message  key=value ...
type Handler struct {
	mu     sync.Mutex
	Writer io.WriteCloser
}

var levelToStrings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  "INFO",
	log.WarnLevel:  "WARN",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

func NewHandler(w io.WriteCloser) *Handler {
	return &Handler{Writer: w}
}

// SetOutput swaps the writer, closing the previous one unless it is stdout/stderr.
func (h *Handler) SetOutput(w io.WriteCloser) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closeWriter()
	h.Writer = w
}

func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeWriter()
}

func (h *Handler) closeWriter() {
	if h.Writer == nil || h.Writer == os.Stdout || h.Writer == os.Stderr {
		return
	}

	_ = h.Writer.Close()
}

func (h *Handler) HandleLog(e *log.Entry) error {
	var b bytes.Buffer
	_, _ = fmt.Fprintf(&b, "%5s %s", levelToStrings[e.Level], time.Now().Format(time.DateTime))

	if ctx, ok := e.Fields[ctxField]; ok {
		_, _ = fmt.Fprintf(&b, " [%v]", ctx)
	}

	_, _ = fmt.Fprintf(&b, " %-25s", e.Message)

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		if name != ctxField {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		_, _ = fmt.Fprintf(&b, " %s=%v", name, e.Fields[name])
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, _ = fmt.Fprintln(h.Writer, b.String())

	return nil
}
