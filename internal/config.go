package internal

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mdcards/internal/assembler"
	"github.com/starford/mdcards/internal/mapper"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultOutput is the package written when no output path is configured.
const DefaultOutput = "notes_deck.apkg"

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Scan     ScanConfig        `yaml:"scan"`
	Deck     DeckConfig        `yaml:"deck"`
	Model    ModelConfig       `yaml:"model"`
	Output   OutputConfig      `yaml:"output"`
	Media    MediaConfig       `yaml:"media"`
	Markdown MarkdownConfig    `yaml:"markdown"`
	Serve    ServeConfig       `yaml:"serve"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Scan.Validate(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.Media.Validate(); err != nil {
		return fmt.Errorf("media: %w", err)
	}
	if err := c.Markdown.Validate(); err != nil {
		return fmt.Errorf("markdown: %w", err)
	}
	if err := c.Serve.Validate(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatText
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatText, LogFormatJSON)),
	)
}

// ScanConfig selects the markdown files that are compiled.
type ScanConfig struct {
	Root    string   `yaml:"root"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	Workers int      `yaml:"workers"` // 0 means one per CPU
}

// Validate validates the scan configuration. Root is checked when a
// command needs it, since the CLI may supply it as an argument.
func (c *ScanConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Include, validation.Each(validation.By(globPattern))),
		validation.Field(&c.Exclude, validation.Each(validation.By(globPattern))),
		validation.Field(&c.Workers, validation.Min(0)),
	)
}

func globPattern(value interface{}) error {
	p, _ := value.(string)
	if !doublestar.ValidatePattern(p) {
		return errors.New("invalid glob pattern")
	}
	return nil
}

// DeckConfig controls directory-derived deck names.
type DeckConfig struct {
	RootName        string `yaml:"root_name"`        // empty means the scan root's base name
	IncludeFilename bool   `yaml:"include_filename"` // add the file name as the last segment
}

// ModelConfig points at the note type definition.
type ModelConfig struct {
	Path string `yaml:"path"` // empty means the built-in model
}

// OutputConfig holds the package destination.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the output configuration.
func (c *OutputConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// MediaConfig holds the missing image policy.
type MediaConfig struct {
	Missing string `yaml:"missing"`
}

// Validate validates the media configuration.
func (c *MediaConfig) Validate() error {
	if c.Missing == "" {
		c.Missing = string(assembler.MissingSkip)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Missing, validation.In(string(assembler.MissingSkip), string(assembler.MissingKeep))),
	)
}

// Policy returns the configured policy.
func (c *MediaConfig) Policy() assembler.MissingPolicy {
	return assembler.MissingPolicy(c.Missing)
}

// MarkdownConfig controls rendering of text fields.
type MarkdownConfig struct {
	Render     bool     `yaml:"render"`
	Extensions []string `yaml:"extensions"` // goldmark extensions; empty means gfm
}

// Validate validates the markdown configuration.
func (c *MarkdownConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Extensions, validation.Each(validation.By(func(value interface{}) error {
			name, _ := value.(string)
			if !mapper.KnownExtension(name) {
				return fmt.Errorf("unknown extension %q", name)
			}
			return nil
		}))),
	)
}

// ServeConfig holds preview server configuration.
type ServeConfig struct {
	HTTP HTTPConfig `yaml:"http"`
	Auth AuthConfig `yaml:"auth"`
}

// Validate validates the serve configuration.
func (c *ServeConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatText,
		},
		Output: OutputConfig{
			Path: DefaultOutput,
		},
		Media: MediaConfig{
			Missing: string(assembler.MissingSkip),
		},
		Serve: ServeConfig{
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
	}
}
