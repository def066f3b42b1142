package cli

import (
	"sync"

	"relay/internal/compress"
	"relay/internal/config"
	"relay/internal/generate"
)

// CLIContext carries shared state into command handlers.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Verbose    bool
	Quiet      bool

	clientOnce sync.Once
	client     *generate.Client
	clientErr  error
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// GetClient returns the backend client, creating it on first use.
func (c *CLIContext) GetClient() (*generate.Client, error) {
	c.clientOnce.Do(func() {
		b := c.Config.Backend
		c.client, c.clientErr = generate.NewClient(generate.Config{
			BaseURL:         b.BaseURL,
			APIKey:          b.APIKey,
			Model:           b.Model,
			Headers:         b.Headers,
			Proxy:           b.Proxy,
			Debug:           b.Debug,
			Timeout:         b.GetTimeout(),
			Temperature:     b.Temperature,
			TopP:            b.TopP,
			MaxOutputTokens: b.MaxOutputTokens,
		})
	})
	return c.client, c.clientErr
}

// NewSession creates a session wired with the configured system prompt and
// compression settings.
func (c *CLIContext) NewSession() (*generate.Session, error) {
	client, err := c.GetClient()
	if err != nil {
		return nil, err
	}

	systemPrompt, err := c.Config.Session.ResolveSystemPrompt()
	if err != nil {
		return nil, err
	}

	var compression compress.Options
	if c.Config.Compression.Auto {
		compression = compress.Options{
			Threshold:        c.Config.Compression.Threshold,
			PreserveFraction: c.Config.Compression.PreserveFraction,
		}
	} else {
		// Threshold above 1 never triggers against the context limit.
		compression = compress.Options{Threshold: 2}
	}

	return generate.NewSession(client, generate.SessionConfig{
		SystemInstruction: systemPrompt,
		Compression:       compression,
	})
}
