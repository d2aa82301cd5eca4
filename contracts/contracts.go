// Package contracts declares the capability sets plugins implement (TTS,
// STT, LLM, and the base lifecycle every plugin shares) and the two
// process-scoped registries loaded once at startup: the contract registry
// (contract tag -> required/optional method specs) and the prefix registry
// (folder-name prefix -> contract tag).
//
// Plugins in this host run out-of-process (see package loader), so these
// Go interfaces are reference material for documentation and for the
// in-process test doubles built with package plugin; the actual
// "does this plugin implement its contract" check happens at the
// handshake against the method list the plugin self-reports, compared
// against the MethodSpec tables declared here.
package contracts

import (
	"context"

	"gopkg.in/yaml.v3"

	"github.com/aria-project/pluginhost/types"
)

// Lifecycle is the base capability every plugin satisfies regardless of
// contract tag.
type Lifecycle interface {
	Initialize(ctx context.Context, config map[string]any) (bool, error)
	Shutdown(ctx context.Context) (bool, error)
	HealthCheck(ctx context.Context) types.HealthStatus
}

// TTS is the text-to-speech contract.
type TTS interface {
	Lifecycle
	Synthesize(ctx context.Context, text, voiceID string, options map[string]any) (SynthesisResult, error)
	ListVoices(ctx context.Context) ([]Voice, error)
	SetVoice(ctx context.Context, voiceID string) error
}

// SynthesisResult is the on-the-wire shape of a TTS synthesis response.
type SynthesisResult struct {
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
	VoiceID     string `json:"voice_id"`
	DurationMS  int64  `json:"duration_ms"`
}

// Voice describes one selectable TTS voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
}

// STT is the speech-to-text contract. Streaming is optional: a plugin may
// implement StartStreaming/FeedAudioChunk/StopStreaming in addition to the
// required Transcribe.
type STT interface {
	Lifecycle
	Transcribe(ctx context.Context, audio []byte, options map[string]any) (TranscriptionResult, error)
}

// STTStreaming is the optional streaming sub-protocol for STT plugins.
type STTStreaming interface {
	StartStreaming(ctx context.Context, options map[string]any) (string, error)
	FeedAudioChunk(ctx context.Context, sessionID string, chunk []byte) error
	StopStreaming(ctx context.Context, sessionID string) (TranscriptionResult, error)
}

// TranscriptionResult is the on-the-wire shape of an STT transcription response.
type TranscriptionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// LLM is the large-language-model contract.
type LLM interface {
	Lifecycle
	Complete(ctx context.Context, messages []Message, options map[string]any) (CompletionResult, error)
	ListModels(ctx context.Context) ([]string, error)
}

// LLMStreaming is the optional streaming sub-protocol for LLM plugins.
type LLMStreaming interface {
	CompleteStream(ctx context.Context, messages []Message, options map[string]any) (<-chan StreamChunk, error)
}

// Message is a single chat message in the on-the-wire form LLM plugins consume.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResult is the on-the-wire shape of an LLM completion response.
type CompletionResult struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
}

// MethodSpec describes one required or optional operation a contract
// demands, as declared in the contract registry document.
type MethodSpec struct {
	Name    string       `yaml:"name"`
	Params  []ParamSpec  `yaml:"params,omitempty"`
	Returns ReturnSpec   `yaml:"returns,omitempty"`
}

// ParamSpec describes one named parameter of a MethodSpec.
type ParamSpec struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Required bool   `yaml:"required,omitempty"`
}

// ReturnSpec describes the declared return shape of a MethodSpec.
type ReturnSpec struct {
	Kind string `yaml:"kind,omitempty"`
}

// Contract is one entry of the contract registry: the required and
// optional method surface a plugin claiming this tag must/may implement.
type Contract struct {
	Required []MethodSpec `yaml:"required"`
	Optional []MethodSpec `yaml:"optional,omitempty"`
}

// RequiredNames returns the set of required method names for quick lookup.
func (c Contract) RequiredNames() map[string]bool {
	names := make(map[string]bool, len(c.Required))
	for _, m := range c.Required {
		names[m.Name] = true
	}
	return names
}

// ContractRegistry is the process-scoped mapping from contract tag to its
// method surface. Loaded once at startup and held read-only thereafter.
type ContractRegistry struct {
	contracts map[string]Contract
}

// contractDocument is the on-disk shape of the contract registry file:
// a flat map of tag -> Contract.
type contractDocument map[string]Contract

// LoadContractRegistry parses a contract registry YAML document.
func LoadContractRegistry(data []byte) (*ContractRegistry, error) {
	var doc contractDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &ContractRegistry{contracts: doc}, nil
}

// Lookup returns the Contract registered under tag, and whether it exists.
func (r *ContractRegistry) Lookup(tag string) (Contract, bool) {
	c, ok := r.contracts[tag]
	return c, ok
}

// Tags returns every registered contract tag.
func (r *ContractRegistry) Tags() []string {
	tags := make([]string, 0, len(r.contracts))
	for t := range r.contracts {
		tags = append(tags, t)
	}
	return tags
}

// PrefixEntry is one mapping from a folder-name prefix to its contract tag.
type PrefixEntry struct {
	Contract    string `yaml:"contract"`
	Description string `yaml:"description,omitempty"`
}

// prefixDocument is the on-disk shape of the prefix registry file: a flat
// map of prefix -> PrefixEntry.
type prefixDocument map[string]PrefixEntry

// PrefixRegistry is the process-scoped mapping from an allowed folder-name
// prefix to a contract tag. Loaded once at startup.
type PrefixRegistry struct {
	prefixes map[string]PrefixEntry
}

// LoadPrefixRegistry parses a prefix registry YAML document.
func LoadPrefixRegistry(data []byte) (*PrefixRegistry, error) {
	var doc prefixDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &PrefixRegistry{prefixes: doc}, nil
}

// ContractForPrefix returns the contract tag registered for prefix, and
// whether the prefix is registered at all.
func (r *PrefixRegistry) ContractForPrefix(prefix string) (string, bool) {
	e, ok := r.prefixes[prefix]
	if !ok {
		return "", false
	}
	return e.Contract, true
}

// Prefixes returns every registered prefix.
func (r *PrefixRegistry) Prefixes() []string {
	prefixes := make([]string, 0, len(r.prefixes))
	for p := range r.prefixes {
		prefixes = append(prefixes, p)
	}
	return prefixes
}
