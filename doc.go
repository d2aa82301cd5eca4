// Package pluginhost implements the Aria plugin host: a long-running
// supervisor process that discovers, validates, loads, and operates
// user-supplied plugins (text-to-speech, speech-to-text, large language
// model, and further domains declared only by a contract tag), exposing
// their capabilities to a single external controller over a line-delimited
// JSON-RPC 2.0 channel on stdio.
//
// # Core Concepts
//
//   - Manifest: a YAML document describing a plugin's name, version,
//     contract, entry point, and requirements (see package manifest).
//   - Contract: a named method surface (tts, stt, llm, ...) a plugin
//     declares conformance to (see package contracts).
//   - Discovery: the scan that turns a plugins directory into candidate
//     plugin records by folder-name prefix (see package discovery).
//   - Loader: spawns a plugin as an isolated child process and performs
//     its handshake (see package loader).
//   - Manager: owns the lifecycle state machine for every loaded plugin,
//     including hot-swap with rollback (see package manager).
//   - Isolated Executor: wraps every plugin invocation with a timeout,
//     crash capture, and rate-limited diagnostics (see package executor).
//   - Router: dispatches incoming JSON-RPC requests to either a built-in
//     host method or a loaded plugin (see package rpc).
//   - Shutdown Coordinator: drains in-flight requests and tears the host
//     down in a fixed order on signal or fatal error (see package shutdown).
//
// # Error Handling
//
// This package exports the structured Error type and a handful of
// sentinel errors used across the host. Callers should prefer errors.Is
// and errors.As over string matching:
//
//	if err != nil {
//		if errors.Is(err, pluginhost.ErrPluginNotFound) {
//			// handle missing plugin
//		}
//	}
//
// # Observability
//
// Logging is structured (log/slog) and always written to stderr; stdout
// is reserved for the JSON-RPC wire protocol and must never carry a log
// line, a panic trace, or anything else that is not a protocol message.
// Every plugin invocation is wrapped in an OpenTelemetry span exported to
// a stderr-only span writer, never to stdout or a network collector.
package pluginhost
