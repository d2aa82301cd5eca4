// Package discovery scans a plugins directory, matches folder names
// against the configured prefix rules, parses each candidate's manifest,
// and cross-validates folder name, manifest, and the contract tag the
// prefix registry assigns to the folder's prefix against each other. Discovery never throws: every problem it finds is recorded
// on the resulting Record instead of aborting the scan.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aria-project/pluginhost/contracts"
	"github.com/aria-project/pluginhost/health"
	"github.com/aria-project/pluginhost/manifest"
)

// folderNamePattern matches "<prefix>_<body>_plugin" where body is
// non-empty, lowercase, and may contain underscores. The prefix itself is
// checked separately against the prefix registry since prefixes are
// config-driven, not a fixed set.
var folderNamePattern = regexp.MustCompile(`^([a-z][a-z0-9]*)_([a-z][a-z0-9_]*)_plugin$`)

// Record is a discovered-plugin record: the outcome of scanning one folder,
// whether or not it turned out to be valid.
type Record struct {
	// Path is the absolute folder path.
	Path string

	// Name is the folder's base name (the would-be plugin identifier).
	Name string

	// Contract is the contract tag the prefix registry maps the folder's
	// prefix to; empty if the name did not match the pattern or the prefix
	// is not registered.
	Contract string

	// Manifest is nil if the manifest could not be parsed.
	Manifest *manifest.Manifest

	// Valid is true only when Errors is empty.
	Valid bool

	// Errors accumulates every validation problem found for this folder.
	Errors []string
}

// addError appends msg to r.Errors.
func (r *Record) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Scan walks the immediate children of pluginsDir and returns one Record
// per directory entry that is not skipped. A missing pluginsDir produces an
// empty result and a warning log, not an error.
func Scan(pluginsDir string, prefixes *contracts.PrefixRegistry, logger *slog.Logger) []Record {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		logger.Warn("plugins directory not readable, treating as empty", "dir", pluginsDir, "error", err)
		return nil
	}

	var records []Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}

		records = append(records, scanOne(filepath.Join(pluginsDir, name), name, prefixes))
	}

	return records
}

// scanOne runs the discovery algorithm against a single candidate folder.
func scanOne(path, name string, prefixes *contracts.PrefixRegistry) Record {
	r := Record{Path: path, Name: name}

	match := folderNamePattern.FindStringSubmatch(name)
	if match == nil {
		r.addError("folder name %q does not match the <prefix>_<body>_plugin pattern", name)
		return r
	}

	prefix := match[1]
	contractTag, ok := prefixes.ContractForPrefix(prefix)
	if !ok {
		r.addError("folder prefix %q is not a registered contract prefix", prefix)
		return r
	}
	r.Contract = contractTag

	m, err := manifest.Load(path)
	if err != nil {
		r.addError("manifest: %v", err)
		return r
	}
	r.Manifest = m

	if missing := m.RequiredFieldErrors(); len(missing) > 0 {
		r.addError("manifest missing required fields: %s", strings.Join(missing, ", "))
	}
	if m.Name != "" && m.Name != name {
		r.addError("manifest name %q does not match folder name %q", m.Name, name)
	}
	if m.Contract != "" && m.Contract != contractTag {
		r.addError("manifest contract %q does not match folder prefix contract %q", m.Contract, contractTag)
	}
	if m.EntryPoint != "" {
		entryPath := filepath.Join(path, m.EntryPoint)
		if status := health.FileCheck(entryPath); status.IsUnhealthy() {
			r.addError("entry point %q not found in %s", m.EntryPoint, path)
		}
	}

	r.Valid = len(r.Errors) == 0
	return r
}
