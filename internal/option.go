package internal

import (
	"github.com/verho/replayd/internal/hook"
	"github.com/verho/replayd/internal/hostinput"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	backend  hostinput.Backend
	source   hook.Source
	mcpStdio bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithBackend replaces the OS input backend. Tests inject a fake here.
func WithBackend(b hostinput.Backend) Option {
	return func(a *application) {
		a.backend = b
	}
}

// WithHookSource replaces the global input hook. Tests inject a fake
// here.
func WithHookSource(s hook.Source) Option {
	return func(a *application) {
		a.source = s
	}
}

// WithMCPStdio runs the MCP stdio server instead of the HTTP server.
func WithMCPStdio() Option {
	return func(a *application) {
		a.mcpStdio = true
	}
}
