// Package types provides core type definitions shared across the plugin host.
//
// These are small, dependency-free value types used by several packages
// (plugin, manager, contracts, loader, health) so that none of them needs to import the
// others just to talk about health or timeouts.
//
// # Health Types
//
// Health types represent the operational status of a loaded plugin:
//
//	status := types.NewHealthyStatus("all systems operational")
//	if status.IsHealthy() {
//	    // Plugin is serviceable
//	}
//
//	degraded := types.NewDegradedStatus("high latency", map[string]any{
//	    "latency_ms": 500,
//	})
//
// # Timeout Types
//
// TimeoutConfig expresses default/min/max deadline bounds for a plugin
// invocation. No other package consults it: the executor applies its own
// single Options.DefaultTimeout to every call, with no per-method default.
//
//	cfg := types.TimeoutConfig{Default: 30 * time.Second, Max: 2 * time.Minute}
//	effective := cfg.ResolveTimeout(requested)
package types
