package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pluginhost "github.com/aria-project/pluginhost"
	"github.com/aria-project/pluginhost/executor"
	"github.com/aria-project/pluginhost/manager"
)

// HostVersion is the version string returned by the status built-in.
const HostVersion = "1.0.0"

// pluginNamespace is the reserved method namespace for host-administration
// methods (plugin/load, plugin/unload, ...). A request whose namespace
// equals this word is never routed to a plugin contract slot.
const pluginNamespace = "plugin"

// errShuttingDown is returned by plugin-routed dispatch once the router has
// been told a shutdown is in progress, per the open-question resolution
// that a request arriving after acknowledgment but before drain completes
// must be rejected, not silently dropped.
var errShuttingDown = errors.New("shutdown in progress")

// Router parses requests into dispatch decisions and owns the built-in
// host methods. Plugin-routed methods go through the manager and the
// isolated executor.
type Router struct {
	manager  *manager.Manager
	executor *executor.Executor

	startedAt time.Time

	mu              sync.Mutex
	requestCount    int64
	errorCount      int64
	lastRequestTime time.Time

	shuttingDown atomic.Bool
}

// New builds a Router bound to a manager and executor.
func New(m *manager.Manager, e *executor.Executor) *Router {
	return &Router{manager: m, executor: e, startedAt: time.Now()}
}

// SetShuttingDown flips the router into reject-new-requests mode. Already
// in-flight requests are unaffected; this only governs requests observed
// after the call.
func (r *Router) SetShuttingDown(v bool) {
	r.shuttingDown.Store(v)
}

// Dispatch handles one parsed request and always returns a Response; the
// caller (the transport) is responsible for suppressing the write when the
// request was a notification.
func (r *Router) Dispatch(ctx context.Context, req Request) Response {
	r.mu.Lock()
	r.requestCount++
	r.lastRequestTime = time.Now()
	r.mu.Unlock()

	resp := r.route(ctx, req)
	if resp.Error != nil {
		r.mu.Lock()
		r.errorCount++
		r.mu.Unlock()
	}
	return resp
}

func (r *Router) route(ctx context.Context, req Request) Response {
	params, err := req.ParamsAsMap()
	if err != nil {
		return Failure(req.ID, CodeInvalidParams, err.Error(), nil)
	}

	switch {
	case req.Method == "ping":
		return Success(req.ID, "pong")
	case req.Method == "status":
		return Success(req.ID, r.status())
	case req.Method == "shutdown":
		r.SetShuttingDown(true)
		return Success(req.ID, map[string]any{"acknowledged": true})
	case strings.HasPrefix(req.Method, pluginNamespace+"/"):
		return r.dispatchHostMethod(ctx, strings.TrimPrefix(req.Method, pluginNamespace+"/"), req.ID, params)
	case strings.Contains(req.Method, "/"):
		return r.dispatchPluginMethod(ctx, req, params)
	default:
		return Failure(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

func (r *Router) status() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{
		"version":         HostVersion,
		"uptime_ms":       time.Since(r.startedAt).Milliseconds(),
		"request_count":   r.requestCount,
		"error_count":     r.errorCount,
		"last_request_at": r.lastRequestTime,
		"methods":         []string{"ping", "status", "plugin/list", "plugin/load", "plugin/unload", "plugin/swap", "plugin/health", "shutdown"},
	}
}

func (r *Router) dispatchHostMethod(ctx context.Context, op string, id any, params map[string]any) Response {
	switch op {
	case "list":
		records := r.manager.Discover()
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			_, loaded := r.manager.Get(rec.Name)
			out = append(out, map[string]any{
				"name":     rec.Name,
				"contract": rec.Contract,
				"valid":    rec.Valid,
				"loaded":   loaded,
				"errors":   rec.Errors,
			})
		}
		return Success(id, out)

	case "load":
		name, _ := params["name"].(string)
		if name == "" {
			return Failure(id, CodeInvalidParams, "missing required parameter: name", nil)
		}
		config, _ := params["config"].(map[string]any)
		lp, err := r.manager.Load(ctx, name, config, true)
		if err != nil {
			return errorResponse(id, err)
		}
		return Success(id, map[string]any{
			"name":     lp.Name,
			"contract": lp.Contract,
			"status":   lp.State.String(),
		})

	case "unload":
		name, _ := params["name"].(string)
		if name == "" {
			return Failure(id, CodeInvalidParams, "missing required parameter: name", nil)
		}
		ok, err := r.manager.Unload(ctx, name)
		if err != nil {
			return errorResponse(id, err)
		}
		return Success(id, map[string]any{"success": ok, "plugin": name})

	case "swap":
		oldName, _ := params["old"].(string)
		newName, _ := params["new"].(string)
		if oldName == "" || newName == "" {
			return Failure(id, CodeInvalidParams, "missing required parameters: old, new", nil)
		}
		config, _ := params["config"].(map[string]any)
		result, err := r.manager.HotSwap(ctx, oldName, newName, config)
		if err != nil {
			return errorResponse(id, err)
		}
		return Success(id, map[string]any{
			"success":            result.Success,
			"rollback_performed": result.RollbackPerformed,
			"rollback_failed":    result.RollbackFailed,
			"elapsed_ms":         result.Elapsed.Milliseconds(),
			"error":              result.Error,
		})

	case "health":
		if name, ok := params["name"].(string); ok && name != "" {
			status, err := r.manager.HealthCheck(ctx, name)
			if err != nil {
				return errorResponse(id, err)
			}
			return Success(id, status)
		}
		return Success(id, r.manager.HealthCheckAll(ctx))

	default:
		return Failure(id, CodeMethodNotFound, fmt.Sprintf("Method not found: plugin/%s", op), nil)
	}
}

func (r *Router) dispatchPluginMethod(ctx context.Context, req Request, params map[string]any) Response {
	if r.shuttingDown.Load() {
		return Failure(req.ID, CodeShuttingDown, errShuttingDown.Error(), nil)
	}

	idx := strings.Index(req.Method, "/")
	contract := req.Method[:idx]
	operation := req.Method[idx+1:]

	lp, ok := r.manager.GetByContract(contract)
	if !ok {
		return Failure(req.ID, CodePluginNotFound, fmt.Sprintf("no plugin serves contract %q", contract), &ErrorData{Method: req.Method})
	}
	if !lp.State.Serviceable() {
		return Failure(req.ID, CodePluginNotReady, fmt.Sprintf("plugin %q is not ready", lp.Name), &ErrorData{Plugin: lp.Name, Method: operation})
	}

	found := false
	for _, m := range lp.Instance.Methods() {
		if m.Name == operation {
			found = true
			break
		}
	}
	if !found {
		return Failure(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), &ErrorData{Plugin: lp.Name, Method: operation})
	}

	result, err := r.executor.Invoke(ctx, lp.Name, operation, params, req.ID, func(cctx context.Context) (any, error) {
		return lp.Instance.Query(cctx, operation, params)
	})
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return Success(req.ID, result.Value)
}

// errorResponse maps an internal error into a JSON-RPC error frame using
// pluginhost.Error's Kind when present, falling back to INTERNAL_ERROR.
func errorResponse(id any, err error) Response {
	var herr *pluginhost.Error
	if errors.As(err, &herr) {
		switch herr.Kind {
		case pluginhost.KindNotFound:
			return Failure(id, CodePluginNotFound, herr.Error(), nil)
		case pluginhost.KindValidation:
			return Failure(id, CodeManifestInvalid, herr.Error(), nil)
		case pluginhost.KindTimeout:
			return Failure(id, CodeExecutionTimeout, herr.Error(), nil)
		case pluginhost.KindExecution:
			return Failure(id, CodePluginException, herr.Error(), nil)
		case pluginhost.KindConfiguration:
			return Failure(id, CodePluginLoadFailed, herr.Error(), nil)
		case pluginhost.KindAlreadyLoaded:
			return Failure(id, CodePluginAlreadyLoaded, herr.Error(), nil)
		case pluginhost.KindContractMismatch:
			return Failure(id, CodeContractMismatch, herr.Error(), nil)
		case pluginhost.KindLoadFailed:
			return Failure(id, CodePluginLoadFailed, herr.Error(), nil)
		case pluginhost.KindInitializeFailed:
			return Failure(id, CodePluginInitializeFailed, herr.Error(), nil)
		case pluginhost.KindShutdownFailed:
			return Failure(id, CodePluginShutdownFailed, herr.Error(), nil)
		case pluginhost.KindResourceExhausted:
			return Failure(id, CodeResourceExhausted, herr.Error(), nil)
		}
	}
	return Failure(id, CodeInternalError, err.Error(), nil)
}
