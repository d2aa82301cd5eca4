// Package transport owns the stdio wire discipline: the standard output
// stream carries only JSON-RPC frames, written unbuffered and flushed
// after every line, while every diagnostic goes to standard error through
// the host's structured logger. It drives the main read-dispatch-write
// loop and observes both the router's dispatch outcome and the shutdown
// coordinator's drain state.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/aria-project/pluginhost/rpc"
	"github.com/aria-project/pluginhost/shutdown"
)

// Writer serializes responses as compact, newline-terminated JSON and
// flushes after every frame. Safe for concurrent use: responses for
// requests completing out of order must never interleave mid-line.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter wraps out. out should already be configured for unbuffered,
// write-through output; reconfiguring it is the caller's responsibility
// and must happen before the first call to Write.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Write serializes and writes one response frame, followed by a newline,
// then flushes if out supports it.
func (w *Writer) Write(resp rpc.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if f, ok := w.out.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	if f, ok := w.out.(interface{ Sync() error }); ok {
		_ = f.Sync()
	}
	return nil
}

// Loop drives the per-request read/dispatch/write cycle described in the
// package documentation. It returns when the input stream closes or the
// shutdown flag is observed.
type Loop struct {
	reader *bufio.Scanner
	writer *Writer
	router *rpc.Router
	coord  *shutdown.Coordinator
	inFlight *shutdown.InFlightSet
	logger *slog.Logger
}

// NewLoop builds the main loop. in should be the process's standard input
// (or an equivalent stream for testing); out should already be
// unbuffered-configured before this call, per the stream-discipline
// invariant.
func NewLoop(in io.Reader, writer *Writer, router *rpc.Router, coord *shutdown.Coordinator, inFlight *shutdown.InFlightSet, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Loop{reader: scanner, writer: writer, router: router, coord: coord, inFlight: inFlight, logger: logger}
}

// EndOfInputCause is returned by Run when the input stream closed, so the
// caller can drive shutdown with the correct cause.
type EndOfInputCause struct{}

func (EndOfInputCause) Error() string { return "input stream closed" }

// Run executes the loop until shutdown is requested or the input stream
// ends. It returns ErrEndOfInput when the stream closed naturally.
func (l *Loop) Run(ctx context.Context) error {
	for !l.coord.Requested() {
		if !l.reader.Scan() {
			if err := l.reader.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return ErrEndOfInput
		}

		line := strings.TrimSpace(l.reader.Text())
		if line == "" {
			continue
		}

		l.handleLine(ctx, line)
	}
	return nil
}

// ErrEndOfInput is returned by Run when stdin closes before shutdown was
// otherwise requested.
var ErrEndOfInput = EndOfInputCause{}

func (l *Loop) handleLine(ctx context.Context, line string) {
	var req rpc.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		l.writeResponse(rpc.Failure(nil, rpc.CodeParseError, fmt.Sprintf("Parse error: %v", err), nil), false)
		return
	}

	if req.JSONRPC != rpc.ProtocolVersion || req.Method == "" {
		l.writeResponse(rpc.Failure(req.ID, rpc.CodeInvalidRequest, "invalid request object", nil), req.ID == nil)
		return
	}

	isNotification := req.IsNotification()
	l.inFlight.Insert(req.ID)
	resp := l.router.Dispatch(ctx, req)
	l.inFlight.Remove(req.ID)

	l.writeResponse(resp, isNotification)
}

func (l *Loop) writeResponse(resp rpc.Response, suppress bool) {
	if suppress {
		return
	}
	if err := l.writer.Write(resp); err != nil {
		l.logger.Error("failed to write response", "error", err)
	}
}
