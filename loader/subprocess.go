// Package loader brings a discovered plugin into the process: it spawns
// the plugin as an isolated child process, performs the handshake that
// resolves its self-reported capability surface, and returns a
// plugin.Plugin the rest of the host can treat exactly like the in-process
// test doubles built with package plugin.
//
// Module isolation is realized as one child process per plugin rather than
// a shared-object load: reload is kill-and-relaunch, a plugin crash cannot
// bring the host down, and unloading a plugin fully removes its code and
// open handles so a later load starts from a clean slate.
package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	pluginhost "github.com/aria-project/pluginhost"
	"github.com/aria-project/pluginhost/discovery"
	"github.com/aria-project/pluginhost/manifest"
	"github.com/aria-project/pluginhost/plugin"
	"github.com/aria-project/pluginhost/rpc"
	"github.com/aria-project/pluginhost/types"
)

// handshakeMethod is the host-to-plugin method every subprocess must
// answer on its very first request.
const handshakeMethod = "handshake"

// handshakeResult is the expected shape of a handshake response.
type handshakeResult struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Contract string   `json:"contract"`
	Methods  []string `json:"methods"`
}

// Options controls how a plugin subprocess is spawned.
type Options struct {
	// HandshakeTimeout bounds the initial handshake call. Defaults to 10s.
	HandshakeTimeout time.Duration

	// CallTimeout bounds every subsequent request-response round trip
	// made directly against the subprocess (separate from the isolated
	// executor's own per-invocation deadline, which wraps calls made
	// through the manager). Defaults to 30s.
	CallTimeout time.Duration

	// Logger receives subprocess lifecycle diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.CallTimeout == 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Subprocess is a plugin.Plugin backed by a live child process speaking
// line-delimited JSON-RPC over its own stdin/stdout.
type Subprocess struct {
	manifest *manifest.Manifest
	opts     Options

	// instanceID distinguishes this child process from any earlier or
	// later one spawned for the same plugin name (reload, hot-swap), so
	// log lines and crash reports from overlapping lifetimes never get
	// attributed to the wrong process.
	instanceID string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Scanner

	mu     sync.Mutex
	nextID atomic.Int64
	desc   handshakeResult
}

// Spawn starts the plugin subprocess declared by rec's manifest and
// performs the handshake. The returned Subprocess is in the equivalent of
// lifecycle state Unloaded: it answers Methods()/Name()/Version() but has
// not yet been Initialize()d.
func Spawn(ctx context.Context, rec discovery.Record, opts Options) (*Subprocess, error) {
	opts = opts.withDefaults()

	if rec.Manifest == nil {
		return nil, pluginhost.NewValidationError("loader.Spawn", fmt.Errorf("discovered record %s has no manifest", rec.Name))
	}

	entryPath := rec.Path + "/" + rec.Manifest.EntryPoint
	cmd := exec.CommandContext(ctx, entryPath)
	cmd.Dir = rec.Path
	cmd.Stderr = nil // the child's own diagnostics inherit nothing; it must log to its own stderr, never the host's stdout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, pluginhost.NewExecutionError("loader.Spawn", fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, pluginhost.NewExecutionError("loader.Spawn", fmt.Errorf("stdout pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, pluginhost.NewExecutionError("loader.Spawn", fmt.Errorf("start %s: %w", entryPath, err))
	}

	sp := &Subprocess{
		manifest:   rec.Manifest,
		opts:       opts,
		instanceID: uuid.NewString(),
		cmd:        cmd,
		stdin:      stdin,
		reader:     bufio.NewScanner(stdout),
	}
	sp.reader.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	opts.Logger.Debug("plugin subprocess spawned", "plugin", rec.Name, "instance", sp.instanceID, "pid", cmd.Process.Pid)

	hctx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
	defer cancel()

	result, err := sp.call(hctx, handshakeMethod, map[string]any{})
	if err != nil {
		_ = sp.terminate()
		return nil, pluginhost.NewExecutionError("loader.Spawn", fmt.Errorf("handshake: %w", err))
	}

	var hs handshakeResult
	raw, err := json.Marshal(result)
	if err != nil {
		_ = sp.terminate()
		return nil, pluginhost.NewExecutionError("loader.Spawn", fmt.Errorf("handshake response encoding: %w", err))
	}
	if err := json.Unmarshal(raw, &hs); err != nil {
		_ = sp.terminate()
		return nil, pluginhost.NewExecutionError("loader.Spawn", fmt.Errorf("handshake response shape: %w", err))
	}
	sp.desc = hs

	return sp, nil
}

// Handshake spawns a throwaway subprocess purely to resolve its
// self-reported method list and tears it down immediately after. It is
// the validator.HandshakeFunc used by deep validation, which must not
// leave a process running outside the manager's control.
func Handshake(ctx context.Context, rec discovery.Record, opts Options) ([]string, error) {
	sp, err := Spawn(ctx, rec, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sp.terminate() }()
	return sp.desc.Methods, nil
}

// call writes one JSON-RPC request line and blocks for its response. It
// holds s.mu for the whole round trip, so at most one request is
// outstanding on a subprocess at a time and a simple write-then-read
// round trip is sufficient; no response correlation table is needed.
func (s *Subprocess) call(ctx context.Context, method string, params map[string]any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID.Add(1)
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	req := rpc.Request{JSONRPC: rpc.ProtocolVersion, ID: id, Method: method, Params: paramsRaw}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	type readResult struct {
		resp rpc.Response
		err  error
	}
	done := make(chan readResult, 1)

	go func() {
		if _, err := s.stdin.Write(append(line, '\n')); err != nil {
			done <- readResult{err: fmt.Errorf("write request: %w", err)}
			return
		}
		if !s.reader.Scan() {
			if err := s.reader.Err(); err != nil {
				done <- readResult{err: fmt.Errorf("read response: %w", err)}
				return
			}
			done <- readResult{err: io.ErrUnexpectedEOF}
			return
		}
		var resp rpc.Response
		if err := json.Unmarshal(s.reader.Bytes(), &resp); err != nil {
			done <- readResult{err: fmt.Errorf("decode response: %w", err)}
			return
		}
		done <- readResult{resp: resp}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.Error != nil {
			if r.resp.Error.Code == rpc.CodeResourceExhausted {
				return nil, fmt.Errorf("%w: plugin error %d: %s", pluginhost.ErrResourceExhausted, r.resp.Error.Code, r.resp.Error.Message)
			}
			return nil, fmt.Errorf("plugin error %d: %s", r.resp.Error.Code, r.resp.Error.Message)
		}
		return r.resp.Result, nil
	}
}

// terminate kills the child process and releases its pipes. Equivalent to
// clearing the plugin's module from the process namespace.
func (s *Subprocess) terminate() error {
	pluginhost.CloseWithLog(s.stdin, s.opts.Logger, "plugin.stdin")
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.opts.Logger.Debug("plugin subprocess terminated", "instance", s.instanceID)
	return nil
}

// Name, Version, Description, Methods implement plugin.Plugin from the
// handshake result.
func (s *Subprocess) Name() string        { return s.desc.Name }
func (s *Subprocess) Version() string     { return s.desc.Version }
func (s *Subprocess) Description() string { return s.manifest.Description }

func (s *Subprocess) Methods() []plugin.MethodDescriptor {
	descs := make([]plugin.MethodDescriptor, 0, len(s.desc.Methods))
	for _, name := range s.desc.Methods {
		descs = append(descs, plugin.MethodDescriptor{Name: name})
	}
	return descs
}

// Query invokes a named method on the subprocess with the request's
// parameters as keyword arguments.
func (s *Subprocess) Query(ctx context.Context, method string, params map[string]any) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.call(cctx, method, params)
}

// Initialize calls the plugin's initialize lifecycle method.
func (s *Subprocess) Initialize(ctx context.Context, config map[string]any) error {
	result, err := s.Query(ctx, "initialize", map[string]any{"config": config})
	if err != nil {
		return err
	}
	ok, _ := result.(bool)
	if !ok {
		return fmt.Errorf("initialize returned false")
	}
	return nil
}

// Shutdown calls the plugin's shutdown lifecycle method and then tears
// down the child process regardless of the call's outcome.
func (s *Subprocess) Shutdown(ctx context.Context) error {
	result, callErr := s.Query(ctx, "shutdown", map[string]any{})
	_ = s.terminate()
	if callErr != nil {
		return callErr
	}
	ok, _ := result.(bool)
	if !ok {
		return fmt.Errorf("shutdown returned false")
	}
	return nil
}

// Health calls the plugin's health_check lifecycle method.
func (s *Subprocess) Health(ctx context.Context) types.HealthStatus {
	result, err := s.Query(ctx, "health_check", map[string]any{})
	if err != nil {
		return types.NewUnhealthyStatus(err.Error(), nil)
	}
	m, ok := result.(map[string]any)
	if !ok {
		return types.NewUnhealthyStatus("malformed health response", nil)
	}
	if healthy, _ := m["healthy"].(bool); healthy {
		msg, _ := m["message"].(string)
		return types.NewHealthyStatus(msg)
	}
	msg, _ := m["message"].(string)
	return types.NewUnhealthyStatus(msg, nil)
}
