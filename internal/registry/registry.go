// Package registry holds the static catalog of providers and their model
// alias tables. The catalog is immutable after construction.
package registry

import (
	"fmt"
	"sort"

	"chispart/internal/core"
)

// AuthScheme selects how the credential travels on the wire.
type AuthScheme string

const (
	AuthBearer     AuthScheme = "bearer"
	AuthXAPIKey    AuthScheme = "x_api_key_with_version"
	AuthQueryParam AuthScheme = "query_param"
)

// Dialect selects the request/response JSON convention a provider speaks.
type Dialect string

const (
	DialectOpenAIChat        Dialect = "openai_chat"
	DialectAnthropicMessages Dialect = "anthropic_messages"
)

// Descriptor is the immutable description of one upstream provider.
type Descriptor struct {
	ID             string
	DisplayName    string
	BaseURL        string
	Auth           AuthScheme
	Dialect        Dialect
	SupportsVision bool
	SupportsPDF    bool
	// EnvVars are checked in order when the key store has no credential.
	EnvVars []string
}

// Capabilities is the vision/pdf capability pair for a provider.
type Capabilities struct {
	SupportsVision bool `json:"supports_vision"`
	SupportsPDF    bool `json:"supports_pdf"`
}

// Registry is the static provider catalog.
type Registry struct {
	descriptors map[string]Descriptor
	aliases     map[string]map[string]string
	defaults    map[string]string
	defaultID   string
}

// New returns the seed catalog. Two provider ids may share a base URL and
// dialect; blackbox is the designated default used for fallback routing.
func New() *Registry {
	return &Registry{
		descriptors: descriptors,
		aliases:     modelAliases,
		defaults:    defaultModels,
		defaultID:   "blackbox",
	}
}

// Default returns the id of the designated default provider.
func (r *Registry) Default() string { return r.defaultID }

// Describe returns the descriptor for a provider id.
func (r *Registry) Describe(id string) (Descriptor, error) {
	d, ok := r.descriptors[id]
	if !ok {
		return Descriptor{}, core.NewConfigError(fmt.Sprintf("unknown provider %q", id), nil)
	}
	return d, nil
}

// ResolveModel maps a model alias to the upstream model identifier for the
// given provider.
func (r *Registry) ResolveModel(id, alias string) (string, error) {
	table, ok := r.aliases[id]
	if !ok {
		return "", core.NewConfigError(fmt.Sprintf("unknown provider %q", id), nil)
	}
	upstream, ok := table[alias]
	if !ok {
		return "", core.NewConfigError(fmt.Sprintf("unknown model %q for provider %q", alias, id), nil)
	}
	return upstream, nil
}

// DefaultModel returns the default model alias for a provider.
func (r *Registry) DefaultModel(id string) (string, error) {
	alias, ok := r.defaults[id]
	if !ok {
		return "", core.NewConfigError(fmt.Sprintf("unknown provider %q", id), nil)
	}
	return alias, nil
}

// Capabilities returns the vision/pdf capability pair for a provider.
func (r *Registry) Capabilities(id string) (Capabilities, error) {
	d, err := r.Describe(id)
	if err != nil {
		return Capabilities{}, err
	}
	return Capabilities{SupportsVision: d.SupportsVision, SupportsPDF: d.SupportsPDF}, nil
}

// List returns all provider ids in stable order.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.descriptors))
	for id := range r.descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Models returns the alias table for a provider, sorted by alias.
func (r *Registry) Models(id string) ([]string, error) {
	table, ok := r.aliases[id]
	if !ok {
		return nil, core.NewConfigError(fmt.Sprintf("unknown provider %q", id), nil)
	}
	aliases := make([]string, 0, len(table))
	for a := range table {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	return aliases, nil
}

var descriptors = map[string]Descriptor{
	"blackbox": {
		ID: "blackbox", DisplayName: "BlackboxAI",
		BaseURL: "https://api.blackbox.ai",
		Auth:    AuthBearer, Dialect: DialectOpenAIChat,
		SupportsVision: true, SupportsPDF: true,
		EnvVars: []string{"BLACKBOX_API_KEY", "CHISPART_API_KEY"},
	},
	"openai": {
		ID: "openai", DisplayName: "OpenAI",
		BaseURL: "https://api.openai.com/v1",
		Auth:    AuthBearer, Dialect: DialectOpenAIChat,
		SupportsVision: true, SupportsPDF: true,
		EnvVars: []string{"OPENAI_API_KEY"},
	},
	"anthropic": {
		ID: "anthropic", DisplayName: "Anthropic Claude",
		BaseURL: "https://api.anthropic.com",
		Auth:    AuthXAPIKey, Dialect: DialectAnthropicMessages,
		SupportsVision: true, SupportsPDF: false,
		EnvVars: []string{"ANTHROPIC_API_KEY"},
	},
	"groq": {
		ID: "groq", DisplayName: "Groq",
		BaseURL: "https://api.groq.com/openai/v1",
		Auth:    AuthBearer, Dialect: DialectOpenAIChat,
		EnvVars: []string{"GROQ_API_KEY"},
	},
	"together": {
		ID: "together", DisplayName: "Together AI",
		BaseURL: "https://api.together.xyz/v1",
		Auth:    AuthBearer, Dialect: DialectOpenAIChat,
		EnvVars: []string{"TOGETHER_API_KEY"},
	},
	"qwen": {
		ID: "qwen", DisplayName: "Qwen",
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Auth:    AuthBearer, Dialect: DialectOpenAIChat,
		SupportsVision: true, SupportsPDF: true,
		EnvVars: []string{"QWEN_API_KEY", "DASHSCOPE_API_KEY"},
	},
	"gemini": {
		ID: "gemini", DisplayName: "Google Gemini",
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Auth:    AuthQueryParam, Dialect: DialectOpenAIChat,
		SupportsVision: true, SupportsPDF: true,
		EnvVars: []string{"GEMINI_API_KEY"},
	},
	"codestral": {
		ID: "codestral", DisplayName: "Codestral",
		BaseURL: "https://codestral.mistral.ai/v1",
		Auth:    AuthBearer, Dialect: DialectOpenAIChat,
		SupportsPDF: true,
		EnvVars: []string{"CODESTRAL_API_KEY", "MISTRAL_API_KEY"},
	},
}

var defaultModels = map[string]string{
	"blackbox":  "gpt-4",
	"openai":    "gpt-4",
	"anthropic": "claude-3-sonnet",
	"groq":      "llama-3.1-70b",
	"together":  "llama-3.1-70b",
	"qwen":      "qwen-max",
	"gemini":    "gemini-2.0-flash",
	"codestral": "codestral",
}

var modelAliases = map[string]map[string]string{
	"blackbox": {
		"gpt-4":             "blackboxai/openai/gpt-4",
		"gpt-4o":            "blackboxai/openai/gpt-4o",
		"gpt-4o-mini":       "blackboxai/openai/gpt-4o-mini",
		"gpt-4-turbo":       "blackboxai/openai/gpt-4-turbo",
		"gpt-3.5-turbo":     "blackboxai/openai/gpt-3.5-turbo",
		"claude-3.5-sonnet": "blackboxai/anthropic/claude-3.5-sonnet",
		"claude-3.5-haiku":  "blackboxai/anthropic/claude-3.5-haiku",
		"claude-3-opus":     "blackboxai/anthropic/claude-3-opus",
		"claude-3-sonnet":   "blackboxai/anthropic/claude-3-sonnet",
		"claude-3-haiku":    "blackboxai/anthropic/claude-3-haiku",
		"llama-3.1-405b":    "blackboxai/meta-llama/llama-3.1-405b-instruct",
		"llama-3.1-70b":     "blackboxai/meta-llama/llama-3.1-70b-instruct",
		"llama-3.1-8b":      "blackboxai/meta-llama/llama-3.1-8b-instruct",
		"llama-3.3-70b":     "blackboxai/meta-llama/llama-3.3-70b-instruct",
		"gemini-2.5-flash":  "blackboxai/google/gemini-2.5-flash",
		"gemini-2.0-flash":  "blackboxai/google/gemini-2.0-flash-001",
		"gemini-flash-1.5":  "blackboxai/google/gemini-flash-1.5",
		"mixtral-8x7b":      "blackboxai/mistralai/mixtral-8x7b-instruct",
		"mixtral-8x22b":     "blackboxai/mistralai/mixtral-8x22b-instruct",
		"mistral-large":     "blackboxai/mistralai/mistral-large-2411",
		"deepseek-r1":       "blackboxai/deepseek/deepseek-r1",
		"deepseek-chat":     "blackboxai/deepseek/deepseek-chat",
		"qwen-max":          "blackboxai/qwen/qwen-max",
		"qwen-2.5-72b":      "blackboxai/qwen/qwen-2.5-72b-instruct",
	},
	"openai": {
		"gpt-4":             "gpt-4",
		"gpt-4o":            "gpt-4o",
		"gpt-4o-mini":       "gpt-4o-mini",
		"gpt-4-turbo":       "gpt-4-turbo-preview",
		"gpt-4-vision":      "gpt-4-vision-preview",
		"gpt-3.5-turbo":     "gpt-3.5-turbo",
		"gpt-3.5-turbo-16k": "gpt-3.5-turbo-16k",
	},
	"anthropic": {
		"claude-3.5-sonnet": "claude-3-5-sonnet-20241022",
		"claude-3.5-haiku":  "claude-3-5-haiku-20241022",
		"claude-3-opus":     "claude-3-opus-20240229",
		"claude-3-sonnet":   "claude-3-sonnet-20240229",
		"claude-3-haiku":    "claude-3-haiku-20240307",
		"claude-2.1":        "claude-2.1",
		"claude-2":          "claude-2.0",
	},
	"groq": {
		"llama-3.1-70b": "llama-3.1-70b-versatile",
		"llama-3.1-8b":  "llama-3.1-8b-instant",
		"mixtral-8x7b":  "mixtral-8x7b-32768",
		"gemma-7b":      "gemma-7b-it",
	},
	"together": {
		"llama-3.1-70b": "meta-llama/Llama-3.1-70B-Instruct-Turbo",
		"llama-3.1-8b":  "meta-llama/Llama-3.1-8B-Instruct-Turbo",
		"mixtral-8x7b":  "mistralai/Mixtral-8x7B-Instruct-v0.1",
		"qwen-2-72b":    "Qwen/Qwen2-72B-Instruct",
	},
	"qwen": {
		"qwen-max":     "qwen-max",
		"qwen-plus":    "qwen-plus",
		"qwen-turbo":   "qwen-turbo",
		"qwen-2.5-72b": "qwen2.5-72b-instruct",
	},
	"gemini": {
		"gemini-2.0-flash": "gemini-2.0-flash",
		"gemini-1.5-pro":   "gemini-1.5-pro",
		"gemini-1.5-flash": "gemini-1.5-flash",
	},
	"codestral": {
		"codestral":       "codestral-latest",
		"codestral-mamba": "codestral-mamba-latest",
	},
}
