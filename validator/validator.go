// Package validator checks a discovered plugin at two depths: a shallow,
// pre-load check of the manifest's required fields and of its contract tag
// against the contract registry, and a deep, load-time check that
// additionally talks to the plugin process and compares its self-reported
// method list against the contract's required operations. Manifests are
// not validated against the manifest schema document; value kinds and
// enum values are not checked.
package validator

import (
	"context"
	"fmt"

	"github.com/aria-project/pluginhost/contracts"
	"github.com/aria-project/pluginhost/discovery"
)

// Result is the outcome of a validation pass.
type Result struct {
	// ManifestValid is true when the manifest passed structural checks.
	ManifestValid bool

	// ContractValid is true when the plugin's declared or observed
	// methods satisfy the contract's required set. In a shallow-only
	// result it is true when the contract tag exists in the registry
	// (false when it does not, or when the manifest check failed first);
	// only Deep compares methods.
	ContractValid bool

	// FoundMethods, MissingMethods, ExtraMethods are only populated by
	// Deep.
	FoundMethods   []string
	MissingMethods []string
	ExtraMethods   []string

	Errors   []string
	Warnings []string
}

// Valid reports overall validity: both the manifest and the contract
// surface must check out, and there must be no fatal errors.
func (r Result) Valid() bool {
	return r.ManifestValid && r.ContractValid && len(r.Errors) == 0
}

// Shallow re-checks a discovered record's manifest against required fields
// and confirms its contract tag is registered. It does not talk to the
// plugin process.
func Shallow(rec discovery.Record, registry *contracts.ContractRegistry) Result {
	var res Result

	if rec.Manifest == nil {
		res.Errors = append(res.Errors, "manifest failed to parse")
		return res
	}

	if missing := rec.Manifest.RequiredFieldErrors(); len(missing) > 0 {
		for _, m := range missing {
			res.Errors = append(res.Errors, fmt.Sprintf("manifest missing required field %q", m))
		}
		return res
	}
	res.ManifestValid = true

	if _, ok := registry.Lookup(rec.Manifest.Contract); !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("contract %q is not registered", rec.Manifest.Contract))
		return res
	}
	res.ContractValid = true

	return res
}

// HandshakeFunc performs the load-time handshake against a candidate
// plugin process and returns the method names it self-reports. Supplied by
// the loader package at call sites to avoid an import cycle between
// validator and loader.
type HandshakeFunc func(ctx context.Context, rec discovery.Record) ([]string, error)

// Deep performs shallow validation and then, if it passes, invokes
// handshake to compare the plugin's self-reported methods against the
// contract's required set. Missing required methods is fatal.
func Deep(ctx context.Context, rec discovery.Record, registry *contracts.ContractRegistry, handshake HandshakeFunc) Result {
	res := Shallow(rec, registry)
	if !res.Valid() {
		return res
	}

	contract, _ := registry.Lookup(rec.Manifest.Contract)
	required := contract.RequiredNames()

	methods, err := handshake(ctx, rec)
	if err != nil {
		res.ContractValid = false
		res.Errors = append(res.Errors, fmt.Sprintf("handshake failed: %v", err))
		return res
	}
	res.FoundMethods = methods

	present := make(map[string]bool, len(methods))
	for _, m := range methods {
		present[m] = true
	}

	for name := range required {
		if !present[name] {
			res.MissingMethods = append(res.MissingMethods, name)
		}
	}
	for _, m := range methods {
		if !required[m] {
			res.ExtraMethods = append(res.ExtraMethods, m)
		}
	}

	if len(res.MissingMethods) > 0 {
		res.ContractValid = false
		res.Errors = append(res.Errors, fmt.Sprintf("missing required methods: %v", res.MissingMethods))
	}

	return res
}
