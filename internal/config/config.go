package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Supported backend names. The set is closed: the dispatcher matches against
// these and nothing else.
const (
	BackendGroq   = "groq"
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
	BackendOllama = "ollama"
)

// credentialEnv maps each provider to the environment variable carrying its
// API key. Providers absent from the map need no credential.
var credentialEnv = map[string]string{
	BackendGroq:   "GROQ_API_KEY",
	BackendOpenAI: "OPENAI_API_KEY",
	BackendGemini: "GEMINI_API_KEY",
}

// Backends returns the full supported provider set.
func Backends() []string {
	return []string{BackendGroq, BackendOpenAI, BackendGemini, BackendOllama}
}

// ProviderOptions holds the selectable models for one provider.
type ProviderOptions struct {
	Models       []string `toml:"models"`
	DefaultModel string   `toml:"default_model"`
}

// Options is the TOML-backed part of the configuration: page metadata and
// model choices per provider.
type Options struct {
	PageTitle     string                     `toml:"page_title"`
	HistoryWindow int                        `toml:"history_window"`
	Providers     map[string]ProviderOptions `toml:"providers"`
}

// Config holds application configuration
type Config struct {
	Addr           string
	LogDir         string
	ArchivePath    string
	DefaultBackend string
	RequestTimeout time.Duration
	CacheTTL       time.Duration
	Debug          bool

	// MCP configuration
	MCPEnabled       bool     // Enable MCP tool support
	MCPLocalServers  []string // Paths to local MCP server scripts
	MCPRemoteServers []string // URLs to remote MCP servers (http:// or ws://)

	Options Options
}

// defaultOptions are used when no TOML file is given.
func defaultOptions() Options {
	return Options{
		PageTitle:     "AgentChat",
		HistoryWindow: 20,
		Providers: map[string]ProviderOptions{
			BackendGroq:   {Models: []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}, DefaultModel: "llama-3.3-70b-versatile"},
			BackendOpenAI: {Models: []string{"gpt-4o", "gpt-4o-mini"}, DefaultModel: "gpt-4o-mini"},
			BackendGemini: {Models: []string{"gemini-2.0-flash", "gemini-1.5-pro"}, DefaultModel: "gemini-2.0-flash"},
			BackendOllama: {Models: []string{"llama3:latest"}, DefaultModel: "llama3:latest"},
		},
	}
}

// LoadOptions reads the TOML options file. An empty path yields the built-in
// defaults; a file only overrides what it sets.
func LoadOptions(path string) (Options, error) {
	opts := defaultOptions()
	if path == "" {
		return opts, nil
	}

	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to load options file %s: %w", path, err)
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaultOptions().HistoryWindow
	}
	return opts, nil
}

// Model returns the configured default model for a provider.
func (o Options) Model(provider string) string {
	if p, ok := o.Providers[provider]; ok && p.DefaultModel != "" {
		return p.DefaultModel
	}
	return ""
}

// Credential returns the provider's API key from the environment. Providers
// without a credentialEnv entry return the empty string and need none.
func Credential(provider string) string {
	envVar, ok := credentialEnv[provider]
	if !ok {
		return ""
	}
	return os.Getenv(envVar)
}

// ValidateCredentials verifies that every provider in the set has its
// credential present. A missing credential is a configuration error caught
// at startup, before any request can select the provider.
func ValidateCredentials(providers []string, getenv func(string) string) error {
	for _, provider := range providers {
		envVar, ok := credentialEnv[provider]
		if !ok {
			continue
		}
		if getenv(envVar) == "" {
			return fmt.Errorf("provider %s enabled but %s is not set", provider, envVar)
		}
	}
	return nil
}
