package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aria-project/pluginhost/discovery"
	"github.com/aria-project/pluginhost/manifest"
)

// echoPluginScript is a minimal shell "plugin" that answers handshake,
// initialize, a greet method, shutdown, and health_check by pattern
// matching the incoming method name. It stands in for a real out-of-process
// plugin binary for exercising the subprocess wire protocol.
const echoPluginScript = `#!/bin/sh
while IFS= read -r line; do
  case "$line" in
    *'"method":"handshake"'*)
      id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
      echo '{"jsonrpc":"2.0","id":'"$id"',"result":{"name":"echo_example_plugin","version":"1.0.0","contract":"tts","methods":["greet"]}}'
      ;;
    *'"method":"initialize"'*)
      id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
      echo '{"jsonrpc":"2.0","id":'"$id"',"result":true}'
      ;;
    *'"method":"shutdown"'*)
      id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
      echo '{"jsonrpc":"2.0","id":'"$id"',"result":true}'
      exit 0
      ;;
    *'"method":"health_check"'*)
      id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
      echo '{"jsonrpc":"2.0","id":'"$id"',"result":{"healthy":true,"message":"ok"}}'
      ;;
    *'"method":"greet"'*)
      id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
      echo '{"jsonrpc":"2.0","id":'"$id"',"result":"hello"}'
      ;;
    *)
      id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
      echo '{"jsonrpc":"2.0","id":'"$id"',"error":{"code":-32601,"message":"method not found"}}'
      ;;
  esac
done
`

func writeEchoPlugin(t *testing.T) discovery.Record {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fixture plugin requires a POSIX shell")
	}

	dir := t.TempDir()
	entry := filepath.Join(dir, "plugin")
	require.NoError(t, os.WriteFile(entry, []byte(echoPluginScript), 0o755))

	return discovery.Record{
		Path:     dir,
		Name:     "echo_example_plugin",
		Contract: "tts",
		Manifest: &manifest.Manifest{
			Name:        "echo_example_plugin",
			Version:     "1.0.0",
			Contract:    "tts",
			EntryPoint:  "plugin",
			Description: "test fixture plugin",
		},
		Valid: true,
	}
}

func TestSpawn_HandshakeSucceeds(t *testing.T) {
	rec := writeEchoPlugin(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sp, err := Spawn(ctx, rec, Options{})
	require.NoError(t, err)
	defer sp.terminate()

	assert.Equal(t, "echo_example_plugin", sp.Name())
	assert.Equal(t, "1.0.0", sp.Version())
	assert.ElementsMatch(t, []string{"greet"}, sp.desc.Methods)
}

func TestSpawn_MissingManifest(t *testing.T) {
	rec := discovery.Record{Path: t.TempDir(), Name: "broken_plugin"}
	_, err := Spawn(context.Background(), rec, Options{})
	assert.Error(t, err)
}

func TestSubprocess_InitializeQueryShutdown(t *testing.T) {
	rec := writeEchoPlugin(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sp, err := Spawn(ctx, rec, Options{})
	require.NoError(t, err)

	require.NoError(t, sp.Initialize(ctx, map[string]any{}))

	result, err := sp.Query(ctx, "greet", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)

	health := sp.Health(ctx)
	assert.True(t, health.IsHealthy())

	require.NoError(t, sp.Shutdown(ctx))
}

func TestHandshake_ReturnsMethodsAndTerminates(t *testing.T) {
	rec := writeEchoPlugin(t)

	methods, err := Handshake(context.Background(), rec, Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"greet"}, methods)
}

func TestSpawn_NonexistentEntryPoint(t *testing.T) {
	dir := t.TempDir()
	rec := discovery.Record{
		Path: dir,
		Name: "missing_binary_plugin",
		Manifest: &manifest.Manifest{
			Name:       "missing_binary_plugin",
			Version:    "1.0.0",
			Contract:   "tts",
			EntryPoint: "does-not-exist",
		},
	}
	_, err := Spawn(context.Background(), rec, Options{})
	assert.Error(t, err)
}

func TestSpawn_HandshakeTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fixture plugin requires a POSIX shell")
	}

	dir := t.TempDir()
	entry := filepath.Join(dir, "plugin")
	require.NoError(t, os.WriteFile(entry, []byte("#!/bin/sh\nsleep 5\n"), 0o755))

	rec := discovery.Record{
		Path: dir,
		Name: "slow_example_plugin",
		Manifest: &manifest.Manifest{
			Name:       "slow_example_plugin",
			Version:    "1.0.0",
			Contract:   "tts",
			EntryPoint: "plugin",
		},
	}

	_, err := Spawn(context.Background(), rec, Options{HandshakeTimeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "handshake")
}
