// Package manager owns every loaded plugin for the lifetime of the host
// process. It drives the lifecycle state machine, serializes load/unload/
// swap against the single cooperative execution context, and performs
// hot-swap with rollback.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	pluginhost "github.com/aria-project/pluginhost"
	"github.com/aria-project/pluginhost/contracts"
	"github.com/aria-project/pluginhost/discovery"
	"github.com/aria-project/pluginhost/manifest"
	"github.com/aria-project/pluginhost/plugin"
	"github.com/aria-project/pluginhost/types"
	"github.com/aria-project/pluginhost/validator"
)

// LoadFunc brings a discovered plugin's module into the process and
// returns an uninitialized plugin.Plugin. Supplied by the caller (the
// loader package's Load function satisfies this signature) so manager has
// no compile-time dependency on how loading is actually implemented.
type LoadFunc func(ctx context.Context, rec discovery.Record) (plugin.Plugin, error)

// LoadedPlugin is the manager's record for one plugin occupying a contract
// slot.
type LoadedPlugin struct {
	Name     string
	Contract string
	Manifest *manifest.Manifest
	Instance plugin.Plugin
	State    State
	Config   map[string]any
	Warnings []string
}

// HotSwapResult is the outcome of a hot-swap attempt.
type HotSwapResult struct {
	Success           bool
	RollbackPerformed bool
	RollbackFailed    bool
	Elapsed           time.Duration
	Error             string
}

// Hooks are optional callbacks fired after a successful load, unload, or
// swap. Any subset may be nil.
type Hooks struct {
	OnLoad  func(name string)
	OnUnload func(name string)
	OnSwap  func(oldName, newName string)
}

// Manager is the lifecycle owner for every loaded plugin.
type Manager struct {
	pluginsDir string
	prefixes   *contracts.PrefixRegistry
	contracts  *contracts.ContractRegistry

	load      LoadFunc
	handshake validator.HandshakeFunc

	hooks Hooks

	mu      sync.Mutex
	plugins map[string]*LoadedPlugin // keyed by plugin name
}

// New constructs a Manager. load and handshake are required collaborators
// supplied by the loader package at wiring time.
func New(pluginsDir string, prefixes *contracts.PrefixRegistry, registry *contracts.ContractRegistry, load LoadFunc, handshake validator.HandshakeFunc, hooks Hooks) *Manager {
	return &Manager{
		pluginsDir: pluginsDir,
		prefixes:   prefixes,
		contracts:  registry,
		load:       load,
		handshake:  handshake,
		hooks:      hooks,
		plugins:    make(map[string]*LoadedPlugin),
	}
}

// Discover forwards to the discovery package.
func (m *Manager) Discover() []discovery.Record {
	return discovery.Scan(m.pluginsDir, m.prefixes, nil)
}

// findRecord locates a discovered record by plugin name.
func (m *Manager) findRecord(name string) (discovery.Record, bool) {
	for _, rec := range m.Discover() {
		if rec.Name == name {
			return rec, true
		}
	}
	return discovery.Record{}, false
}

// Validate runs shallow or deep validation against a discovered plugin.
func (m *Manager) Validate(ctx context.Context, name string, deep bool) (validator.Result, error) {
	rec, ok := m.findRecord(name)
	if !ok {
		return validator.Result{}, pluginhost.NewNotFoundError("Manager.Validate", fmt.Errorf("plugin %q not discovered", name))
	}
	if deep {
		return validator.Deep(ctx, rec, m.contracts, m.handshake), nil
	}
	return validator.Shallow(rec, m.contracts), nil
}

// Load discovers, shallow-validates, loads, and optionally initializes a
// plugin. If initialization fails, the plugin is unloaded and the load
// fails.
func (m *Manager) Load(ctx context.Context, name string, config map[string]any, autoInit bool) (*LoadedPlugin, error) {
	m.mu.Lock()
	if _, exists := m.plugins[name]; exists {
		m.mu.Unlock()
		return nil, pluginhost.NewAlreadyLoadedError("Manager.Load", fmt.Errorf("%w: %s", pluginhost.ErrAlreadyLoaded, name))
	}
	m.mu.Unlock()

	rec, ok := m.findRecord(name)
	if !ok {
		return nil, pluginhost.NewNotFoundError("Manager.Load", fmt.Errorf("%w: %s", pluginhost.ErrPluginNotFound, name))
	}

	shallow := validator.Shallow(rec, m.contracts)
	if !shallow.Valid() {
		return nil, pluginhost.NewValidationError("Manager.Load", fmt.Errorf("manifest or contract invalid: %v", shallow.Errors))
	}

	if _, taken := m.GetByContract(rec.Contract); taken {
		return nil, pluginhost.NewAlreadyLoadedError("Manager.Load", fmt.Errorf("%w: contract %q already has a loaded plugin", pluginhost.ErrAlreadyLoaded, rec.Contract))
	}

	instance, err := m.load(ctx, rec)
	if err != nil {
		return nil, pluginhost.NewLoadFailedError("Manager.Load", fmt.Errorf("loader: %w", err))
	}

	merged := rec.Manifest.MergeConfig(config)
	if err := rec.Manifest.ValidateConfig(merged); err != nil {
		_ = instance.Shutdown(ctx)
		return nil, pluginhost.NewValidationError("Manager.Load", fmt.Errorf("config_schema: %w", err))
	}

	lp := &LoadedPlugin{
		Name:     name,
		Contract: rec.Contract,
		Manifest: rec.Manifest,
		Instance: instance,
		State:    StateUnloaded,
		Config:   merged,
	}

	m.mu.Lock()
	m.plugins[name] = lp
	m.mu.Unlock()

	if autoInit {
		if err := m.initialize(ctx, lp); err != nil {
			m.mu.Lock()
			delete(m.plugins, name)
			m.mu.Unlock()
			_ = instance.Shutdown(ctx)
			return nil, pluginhost.NewInitializeFailedError("Manager.Load", fmt.Errorf("initialize: %w", err))
		}
	}

	if m.hooks.OnLoad != nil {
		m.hooks.OnLoad(name)
	}

	return lp, nil
}

// initialize drives the Unloaded -> Initializing -> Ready/Error transition.
func (m *Manager) initialize(ctx context.Context, lp *LoadedPlugin) error {
	lp.State = StateInitializing
	if err := lp.Instance.Initialize(ctx, lp.Config); err != nil {
		lp.State = StateError
		return err
	}
	lp.State = StateReady
	return nil
}

// Unload shuts down (if initialized) and removes a plugin from the
// manager.
func (m *Manager) Unload(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	lp, ok := m.plugins[name]
	m.mu.Unlock()
	if !ok {
		return false, pluginhost.NewNotFoundError("Manager.Unload", fmt.Errorf("%w: %s", pluginhost.ErrPluginNotFound, name))
	}

	lp.State = StateShuttingDown
	err := lp.Instance.Shutdown(ctx)
	if err != nil {
		lp.State = StateError
	} else {
		lp.State = StateStopped
	}

	m.mu.Lock()
	delete(m.plugins, name)
	m.mu.Unlock()

	if m.hooks.OnUnload != nil {
		m.hooks.OnUnload(name)
	}

	if err != nil {
		return false, pluginhost.NewShutdownFailedError("Manager.Unload", fmt.Errorf("shutdown: %w", err))
	}
	return true, nil
}

// Reload unloads (if loaded) and loads a fresh instance.
func (m *Manager) Reload(ctx context.Context, name string, config map[string]any) (*LoadedPlugin, error) {
	m.mu.Lock()
	_, loaded := m.plugins[name]
	m.mu.Unlock()
	if loaded {
		if _, err := m.Unload(ctx, name); err != nil {
			return nil, err
		}
	}
	return m.Load(ctx, name, config, true)
}

// Get returns the loaded plugin with the given name, if any. The
// manager guarantees at most one loaded plugin per contract slot.
func (m *Manager) Get(name string) (*LoadedPlugin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lp, ok := m.plugins[name]
	return lp, ok
}

// GetByContract returns the loaded plugin currently occupying a contract
// slot.
func (m *Manager) GetByContract(contract string) (*LoadedPlugin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lp := range m.plugins {
		if lp.Contract == contract {
			return lp, true
		}
	}
	return nil, false
}

// List returns every currently loaded plugin.
func (m *Manager) List() []*LoadedPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*LoadedPlugin, 0, len(m.plugins))
	for _, lp := range m.plugins {
		out = append(out, lp)
	}
	return out
}

// HotSwap replaces the plugin currently serving oldName's contract slot
// with newName, with rollback to the old plugin on any failure of the new
// one.
func (m *Manager) HotSwap(ctx context.Context, oldName, newName string, config map[string]any) (HotSwapResult, error) {
	start := time.Now()

	m.mu.Lock()
	old, ok := m.plugins[oldName]
	m.mu.Unlock()
	if !ok {
		return HotSwapResult{}, pluginhost.NewNotFoundError("Manager.HotSwap", fmt.Errorf("%w: %s", pluginhost.ErrPluginNotFound, oldName))
	}

	newRec, ok := m.findRecord(newName)
	if !ok {
		return HotSwapResult{}, pluginhost.NewNotFoundError("Manager.HotSwap", fmt.Errorf("%w: %s", pluginhost.ErrPluginNotFound, newName))
	}
	if newRec.Contract != old.Contract {
		return HotSwapResult{}, pluginhost.NewContractMismatchError("Manager.HotSwap", fmt.Errorf("contract mismatch: %s serves %q, %s declares %q", oldName, old.Contract, newName, newRec.Contract))
	}

	newInstance, err := m.load(ctx, newRec)
	if err != nil {
		return HotSwapResult{Success: false, Error: err.Error()}, nil
	}

	merged := newRec.Manifest.MergeConfig(config)
	if err := newRec.Manifest.ValidateConfig(merged); err != nil {
		_ = newInstance.Shutdown(ctx)
		return HotSwapResult{Success: false, Error: fmt.Sprintf("config_schema: %v", err)}, nil
	}

	oldConfig := old.Config
	old.State = StateShuttingDown
	_ = old.Instance.Shutdown(ctx) // result retained only informally; not fatal to the swap

	newLP := &LoadedPlugin{
		Name:     newName,
		Contract: newRec.Contract,
		Manifest: newRec.Manifest,
		Instance: newInstance,
		State:    StateInitializing,
		Config:   merged,
	}

	if err := newInstance.Initialize(ctx, merged); err != nil {
		// Rollback: unload B, attempt to re-initialize A with its prior config.
		_ = newInstance.Shutdown(ctx)

		old.State = StateInitializing
		if rbErr := old.Instance.Initialize(ctx, oldConfig); rbErr != nil {
			old.State = StateError
			return HotSwapResult{
				Success:           false,
				RollbackPerformed: true,
				RollbackFailed:    true,
				Elapsed:           time.Since(start),
				Error:             fmt.Sprintf("swap failed: %v; rollback also failed: %v", err, rbErr),
			}, nil
		}
		old.State = StateReady

		return HotSwapResult{
			Success:           false,
			RollbackPerformed: true,
			Elapsed:           time.Since(start),
			Error:             err.Error(),
		}, nil
	}
	newLP.State = StateReady

	m.mu.Lock()
	delete(m.plugins, oldName)
	m.plugins[newName] = newLP
	m.mu.Unlock()

	if m.hooks.OnSwap != nil {
		m.hooks.OnSwap(oldName, newName)
	}

	return HotSwapResult{Success: true, Elapsed: time.Since(start)}, nil
}

// HealthCheck reports the health of a single loaded plugin, with the
// manager's own lifecycle state folded in alongside whatever the plugin
// reports about itself.
func (m *Manager) HealthCheck(ctx context.Context, name string) (types.HealthStatus, error) {
	lp, ok := m.Get(name)
	if !ok {
		return types.HealthStatus{}, pluginhost.NewNotFoundError("Manager.HealthCheck", fmt.Errorf("%w: %s", pluginhost.ErrPluginNotFound, name))
	}
	return annotateLifecycleState(lp.Instance.Health(ctx), lp.State), nil
}

// HealthCheckAll reports the health of every loaded plugin, keyed by name.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]types.HealthStatus {
	out := make(map[string]types.HealthStatus)
	for _, lp := range m.List() {
		out[lp.Name] = annotateLifecycleState(lp.Instance.Health(ctx), lp.State)
	}
	return out
}

// annotateLifecycleState merges the manager's lifecycle state for a plugin
// into its self-reported health status under the "lifecycle_state" detail
// key. A plugin can report itself healthy while the manager still
// considers it Initializing or mid-rollback; callers that need to tell
// those apart (e.g. confirming a rolled-back plugin is Ready again) read
// this key rather than cross-referencing plugin/list.
func annotateLifecycleState(status types.HealthStatus, state State) types.HealthStatus {
	merged := make(map[string]any, len(status.Details)+1)
	for k, v := range status.Details {
		merged[k] = v
	}
	merged["lifecycle_state"] = state.String()
	status.Details = merged
	return status
}

// ShutdownAll calls Shutdown on every loaded plugin, in no particular
// order, continuing past individual failures. It returns the names whose
// shutdown call failed.
func (m *Manager) ShutdownAll(ctx context.Context) []string {
	var failed []string
	for _, lp := range m.List() {
		lp.State = StateShuttingDown
		if err := lp.Instance.Shutdown(ctx); err != nil {
			lp.State = StateError
			failed = append(failed, lp.Name)
			continue
		}
		lp.State = StateStopped
	}
	m.mu.Lock()
	m.plugins = make(map[string]*LoadedPlugin)
	m.mu.Unlock()
	return failed
}
