package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pluginhost "github.com/aria-project/pluginhost"
	"github.com/aria-project/pluginhost/discovery"
	hexec "github.com/aria-project/pluginhost/exec"
	"github.com/aria-project/pluginhost/health"
	"github.com/aria-project/pluginhost/manifest"
)

// installerBinary is the package manager invoked to satisfy a missing
// dependency. A fixed choice rather than a configurable one: every
// manifest dependency name is assumed to be a package name this tool
// understands.
const installerBinary = "pip"

// interpreterBinary is the Python interpreter whose version is checked
// against a manifest's declared python_requires constraint before a
// plugin is spawned.
const interpreterBinary = "python3"

// depCheckTimeout bounds a single dependency's presence check.
const depCheckTimeout = 5 * time.Second

// depInstallTimeout bounds a single dependency's install attempt.
const depInstallTimeout = 60 * time.Second

// LoadOptions controls Load's dependency handling in addition to the
// subprocess spawn options.
type LoadOptions struct {
	Subprocess Options

	// AutoInstallDeps, when true, attempts to install any manifest
	// dependency missing from the current interpreter environment before
	// spawning the plugin. When false, a missing dependency fails Load.
	AutoInstallDeps bool

	Logger *slog.Logger
}

func (o LoadOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Load satisfies a discovered plugin's dependencies, spawns it, and
// performs the handshake, returning a ready-to-initialize plugin.Plugin.
func Load(ctx context.Context, rec discovery.Record, opts LoadOptions) (*Subprocess, error) {
	logger := opts.logger()

	if rec.Manifest != nil {
		if err := checkInterpreter(rec.Manifest.InterpreterRequires); err != nil {
			return nil, pluginhost.NewConfigurationError("loader.Load", err)
		}
		if err := ensureDependencies(ctx, rec.Manifest.Dependencies, opts.AutoInstallDeps, logger); err != nil {
			return nil, pluginhost.NewConfigurationError("loader.Load", err)
		}
	}

	sub, err := Spawn(ctx, rec, opts.Subprocess)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// checkInterpreter verifies the host's Python interpreter satisfies a
// manifest's python_requires constraint (e.g. ">=3.9"). Only the version
// number is compared; any leading comparator (">=", "==", "~=", ...) is
// stripped since the taxonomy of PEP 440 operators is not otherwise
// needed here.
func checkInterpreter(requires string) error {
	if requires == "" {
		return nil
	}
	i := 0
	for i < len(requires) && (requires[i] < '0' || requires[i] > '9') {
		i++
	}
	constraint := requires[i:]
	if constraint == "" {
		return nil
	}
	status := health.BinaryVersionCheck(interpreterBinary, constraint, "--version")
	if status.IsUnhealthy() {
		return fmt.Errorf("interpreter requirement %q not met: %s", requires, status.Message)
	}
	return nil
}

// ensureDependencies checks each dependency's package name against the
// installer and, when autoInstall is set, installs whatever is missing.
// Each check and each install attempt carries its own bounded timeout so
// one misbehaving dependency cannot stall the whole load.
func ensureDependencies(ctx context.Context, deps []manifest.Dependency, autoInstall bool, logger *slog.Logger) error {
	if len(deps) == 0 {
		return nil
	}

	if status := health.BinaryCheck(installerBinary); status.IsUnhealthy() {
		return fmt.Errorf("dependency installer %q not found in PATH: %s", installerBinary, status.Message)
	}

	var missing []manifest.Dependency
	for _, dep := range deps {
		result, err := hexec.Run(ctx, hexec.Config{
			Command: installerBinary,
			Args:    []string{"show", dep.Name},
			Timeout: depCheckTimeout,
		})
		if err != nil {
			return fmt.Errorf("checking dependency %q: %w", dep.Name, err)
		}
		if result.ExitCode != 0 {
			missing = append(missing, dep)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	if !autoInstall {
		names := make([]string, len(missing))
		for i, dep := range missing {
			names[i] = dep.Name
		}
		return fmt.Errorf("missing dependencies %v (auto-install disabled)", names)
	}

	for _, dep := range missing {
		spec := dep.Name
		if dep.Version != "" {
			spec = fmt.Sprintf("%s==%s", dep.Name, dep.Version)
		}
		logger.Info("installing plugin dependency", "package", spec)
		result, err := hexec.Run(ctx, hexec.Config{
			Command: installerBinary,
			Args:    []string{"install", spec},
			Timeout: depInstallTimeout,
		})
		if err != nil {
			return fmt.Errorf("installing dependency %q: %w", dep.Name, err)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("installing dependency %q: exit code %d: %s", dep.Name, result.ExitCode, result.Stderr)
		}
	}

	return nil
}
