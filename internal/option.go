package internal

import "io"

// Mode selects what Run does.
type Mode string

// Run modes.
const (
	ModeBuild Mode = "build" // compile once and write the package
	ModeWatch Mode = "watch" // rebuild the package on every change
	ModeServe Mode = "serve" // watch plus the preview API
	ModeMCP   Mode = "mcp"   // MCP tools over stdio
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	mode   Mode
	logOut io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMode sets the run mode. The default is ModeBuild.
func WithMode(m Mode) Option {
	return func(a *application) {
		a.mode = m
	}
}

// WithLogOutput sets where logs are written. The default is stderr, which
// keeps stdout free for the MCP transport.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
