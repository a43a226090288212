package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the run-scoped configuration. It is built once at
// process start (YAML file plus environment overrides) and passed into
// each component; no component reads ambient global state.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Docs       DocsConfig        `yaml:"docs"`
	Confluence ConfluenceConfig  `yaml:"confluence"`
	Journal    JournalConfig     `yaml:"journal"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Docs.Validate(); err != nil {
		return err
	}
	return c.Confluence.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// DocsConfig holds the path to the documentation directory.
type DocsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the docs configuration.
func (c *DocsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ConfluenceConfig holds the remote instance credentials and run-wide
// defaults. BaseURL, Username, and APIToken come from the CI environment
// (CONFLUENCE_BASE_URL, CONFLUENCE_USER_NAME, CONFLUENCE_API_TOKEN).
type ConfluenceConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	APIToken string `yaml:"api_token"`
	// SpaceKey is the default space for documents whose frontmatter
	// carries no confluence_space_key.
	SpaceKey string `yaml:"space_key"`
	// ParentID is the default parent for newly created pages. Optional.
	ParentID string `yaml:"parent_id"`
}

// Validate validates the Confluence configuration.
func (c *ConfluenceConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.APIToken, validation.Required),
		validation.Field(&c.SpaceKey, validation.Required),
	); err != nil {
		return fmt.Errorf("confluence: %w", err)
	}
	return nil
}

// JournalConfig holds the optional sync journal location. An empty path
// disables the journal entirely; the tool then keeps no local state.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether a journal should be opened.
func (c *JournalConfig) Enabled() bool {
	return c.Path != ""
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Docs: DocsConfig{
			Path: "docs",
		},
		Confluence: ConfluenceConfig{
			SpaceKey: "DOCS",
		},
	}
}
