// Package ai maps user-facing model aliases to concrete providers.
package ai

import (
	"sort"

	"github.com/pedramamini/pedster/errors"
)

// Provider selects which chat client backs a model alias.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
)

// ModelSpec binds an alias to a provider and its model identifier.
type ModelSpec struct {
	Alias    string
	Provider Provider
	Model    string
}

// registry of CLI-facing aliases. deepseek runs locally via Ollama;
// everything else is routed through OpenRouter.
var registry = map[string]ModelSpec{
	"gpt4o":    {Alias: "gpt4o", Provider: ProviderOpenRouter, Model: "openai/gpt-4o"},
	"claude":   {Alias: "claude", Provider: ProviderOpenRouter, Model: "anthropic/claude-3.5-sonnet"},
	"o3mini":   {Alias: "o3mini", Provider: ProviderOpenRouter, Model: "openai/o3-mini"},
	"deepseek": {Alias: "deepseek", Provider: ProviderOllama, Model: "deepseek-r1:14b"},
}

// Resolve looks up a model alias.
func Resolve(alias string) (ModelSpec, error) {
	spec, ok := registry[alias]
	if !ok {
		return ModelSpec{}, errors.Newf("unknown model alias %q (known: %v)", alias, Aliases())
	}
	return spec, nil
}

// Aliases returns the known aliases sorted for stable help output.
func Aliases() []string {
	out := make([]string, 0, len(registry))
	for a := range registry {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
