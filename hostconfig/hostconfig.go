// Package hostconfig resolves the host's command-line surface and loads the
// process-scoped declarative documents under the config directory: the
// prefix registry, the contract registry, and the manifest schema.
package hostconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aria-project/pluginhost/contracts"
	"github.com/aria-project/pluginhost/schema"
)

// Flags holds every command-line flag the host accepts.
type Flags struct {
	PluginsDir      string
	ConfigDir       string
	LogLevel        string
	AutoLoad        bool
	AutoInstallDeps bool
	SyncMode        bool
	ForceAsync      bool
}

// BindFlags registers every host flag on cmd and returns the struct they
// populate once cmd.Execute() has parsed argv.
func BindFlags(cmd *cobra.Command) *Flags {
	f := &Flags{}
	cmd.Flags().StringVar(&f.PluginsDir, "plugins-dir", "./plugins", "directory to scan for plugins")
	cmd.Flags().StringVar(&f.ConfigDir, "config-dir", "./config", "directory holding the prefix registry, contract registry, and manifest schema")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "INFO", "DEBUG, INFO, WARNING, ERROR, or CRITICAL")
	cmd.Flags().BoolVar(&f.AutoLoad, "auto-load", false, "on startup, load every plugin whose shallow validation passes")
	cmd.Flags().BoolVar(&f.AutoInstallDeps, "auto-install-deps", false, "allow the loader to install missing plugin dependencies")
	cmd.Flags().BoolVar(&f.SyncMode, "sync-mode", false, "force the blocking read loop")
	cmd.Flags().BoolVar(&f.ForceAsync, "force-async", false, "has no effect: the host always runs the blocking read loop")
	return f
}

// Filenames for the three config-directory documents.
const (
	PrefixRegistryFile   = "prefixes.yaml"
	ContractRegistryFile = "contracts.yaml"
	ManifestSchemaFile   = "manifest_schema.json"
)

// Registries bundles the process-scoped documents loaded once at startup.
type Registries struct {
	Prefixes       *contracts.PrefixRegistry
	Contracts      *contracts.ContractRegistry
	ManifestSchema *schema.JSON
}

// Load reads the three config-directory documents. A missing manifest
// schema file is tolerated (manifests then only undergo the required-field
// checks discovery and the validator already perform); a missing prefix or
// contract registry is fatal, since nothing could ever be discovered or
// dispatched without them.
func Load(configDir string) (*Registries, error) {
	prefixData, err := os.ReadFile(filepath.Join(configDir, PrefixRegistryFile))
	if err != nil {
		return nil, fmt.Errorf("reading prefix registry: %w", err)
	}
	prefixes, err := contracts.LoadPrefixRegistry(prefixData)
	if err != nil {
		return nil, fmt.Errorf("parsing prefix registry: %w", err)
	}

	contractData, err := os.ReadFile(filepath.Join(configDir, ContractRegistryFile))
	if err != nil {
		return nil, fmt.Errorf("reading contract registry: %w", err)
	}
	registry, err := contracts.LoadContractRegistry(contractData)
	if err != nil {
		return nil, fmt.Errorf("parsing contract registry: %w", err)
	}

	result := &Registries{Prefixes: prefixes, Contracts: registry}

	schemaPath := filepath.Join(configDir, ManifestSchemaFile)
	if schemaData, err := os.ReadFile(schemaPath); err == nil {
		var s schema.JSON
		if err := json.Unmarshal(schemaData, &s); err != nil {
			return nil, fmt.Errorf("parsing manifest schema: %w", err)
		}
		result.ManifestSchema = &s
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading manifest schema: %w", err)
	}

	return result, nil
}
