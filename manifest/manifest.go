// Package manifest loads and parses the per-plugin manifest.yaml document
// that discovery reads out of every plugin folder.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aria-project/pluginhost/schema"
)

// Filename is the expected manifest file name inside a plugin folder.
// manifest.yml is also accepted for compatibility.
const Filename = "manifest.yaml"

// altFilename is tried when Filename is absent.
const altFilename = "manifest.yml"

// Dependency describes one required package, with an optional version
// constraint string (e.g. ">=2.0.0").
type Dependency struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version,omitempty"`
}

// Manifest is the declarative, per-plugin metadata document. It is parsed
// once by discovery and held immutable for the lifetime of the loaded
// plugin.
type Manifest struct {
	// Required fields.
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Contract   string `yaml:"contract"`
	EntryPoint string `yaml:"entry_point"`

	// Optional display metadata.
	DisplayName string `yaml:"display_name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Author      string `yaml:"author,omitempty"`
	License     string `yaml:"license,omitempty"`

	// Dependencies and runtime requirements.
	Dependencies         []Dependency `yaml:"dependencies,omitempty"`
	InterpreterRequires  string       `yaml:"python_requires,omitempty"`
	GPURequired          bool         `yaml:"gpu_required,omitempty"`
	GPURecommended       bool         `yaml:"gpu_recommended,omitempty"`
	MinMemoryMB          int          `yaml:"min_memory_mb,omitempty"`

	// Categorization and declared capability surface.
	Tags         []string `yaml:"tags,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`

	// Configuration contract.
	ConfigSchema  schema.JSON    `yaml:"config_schema,omitempty"`
	DefaultConfig map[string]any `yaml:"default_config,omitempty"`
}

// RequiredFieldErrors returns the names of required fields that are empty.
// Discovery and the validator use this for shallow, structural checks.
func (m *Manifest) RequiredFieldErrors() []string {
	var missing []string
	if m.Name == "" {
		missing = append(missing, "name")
	}
	if m.Version == "" {
		missing = append(missing, "version")
	}
	if m.Contract == "" {
		missing = append(missing, "contract")
	}
	if m.EntryPoint == "" {
		missing = append(missing, "entry_point")
	}
	return missing
}

// MergeConfig overlays caller-supplied configuration on top of the
// manifest's default_config, per spec: manifest defaults first, then the
// caller's values win on key collision. Neither input is mutated.
func (m *Manifest) MergeConfig(callerConfig map[string]any) map[string]any {
	merged := make(map[string]any, len(m.DefaultConfig)+len(callerConfig))
	for k, v := range m.DefaultConfig {
		merged[k] = v
	}
	for k, v := range callerConfig {
		merged[k] = v
	}
	return merged
}

// ValidateConfig checks merged configuration against the manifest's
// declared config_schema, when one is present. A manifest that declares no
// config_schema (the JSON zero value) accepts any configuration.
func (m *Manifest) ValidateConfig(merged map[string]any) error {
	if m.ConfigSchema.Type == "" && len(m.ConfigSchema.Properties) == 0 {
		return nil
	}
	return m.ConfigSchema.Validate(merged)
}

// Load reads and parses a manifest file from the given plugin folder path.
// It tries Filename first, then altFilename.
func Load(pluginDir string) (*Manifest, error) {
	path := filepath.Join(pluginDir, Filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read manifest %s: %w", path, err)
		}
		altPath := filepath.Join(pluginDir, altFilename)
		data, err = os.ReadFile(altPath)
		if err != nil {
			return nil, fmt.Errorf("no %s or %s found in %s", Filename, altFilename, pluginDir)
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	return &m, nil
}
