package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir       = ".trend-researcher"
	minContentMaxTokens    = 2000
	settingsFilename       = "settings.yaml"
	defaultNotionMaxBlocks = 90
)

// ConfigOverrides allows overriding embedded defaults with file paths
type ConfigOverrides struct {
	ConfigDir          *string
	KeywordsDir        *string
	ReportsDir         *string
	SystemPromptPath   *string
	UserPromptPath     *string
	OutputSchemaPath   *string
	ReportTemplatePath *string
}

// Embedded configuration files
//
//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/synthesizer-system-prompt.md
var defaultSystemPrompt string

//go:embed config/synthesizer-user-prompt.md
var defaultUserPrompt string

//go:embed config/synthesizer-output-schema.json
var defaultOutputSchema string

//go:embed config/report-template.md
var defaultReportTemplate string

// AgentSettings configures a language model call
type AgentSettings struct {
	Model            string  `yaml:"model" validate:"required"`
	MaxTokens        int     `yaml:"max_tokens" validate:"gt=0"`
	Temperature      float64 `yaml:"temperature" validate:"gte=0,lte=1"`
	ContentMaxTokens int     `yaml:"content_max_tokens"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	KeywordsDirectory string `yaml:"keywords_directory" validate:"required"`
	ReportsDirectory  string `yaml:"reports_directory" validate:"required"`
	Selection         struct {
		MaxActive int     `yaml:"max_active" validate:"gt=0"`
		MinScore  float64 `yaml:"min_score" validate:"gte=0,lte=1"`
	} `yaml:"selection"`
	Discovery struct {
		InitialScore   float64 `yaml:"initial_score" validate:"gt=0,lte=1"`
		BlendWeight    float64 `yaml:"blend_weight" validate:"gte=0,lte=1"`
		MaxNewKeywords int     `yaml:"max_new_keywords" validate:"gte=0"`
	} `yaml:"discovery"`
	Research struct {
		Platforms         []string `yaml:"platforms" validate:"required,min=1,dive,oneof=youtube github hackernews arxiv web"`
		MaxResults        int      `yaml:"max_results" validate:"gt=0,lte=50"`
		Concurrency       int      `yaml:"concurrency" validate:"gt=0"`
		RequestsPerSecond float64  `yaml:"requests_per_second" validate:"gt=0"`
		EnrichTopN        int      `yaml:"enrich_top_n" validate:"gte=0"`
	} `yaml:"research"`
	Agents struct {
		Synthesizer AgentSettings `yaml:"synthesizer"`
	} `yaml:"agents"`
	Timeouts struct {
		Collection time.Duration `yaml:"collection" validate:"gt=0"`
		Synthesis  time.Duration `yaml:"synthesis" validate:"gt=0"`
		Publish    time.Duration `yaml:"publish" validate:"gt=0"`
	} `yaml:"timeouts"`
	Notion struct {
		MaxBlocks int `yaml:"max_blocks" validate:"gte=0,lte=100"`
	} `yaml:"notion"`
	SeedKeywords []string `yaml:"seed_keywords"`
}

// BlendRule returns the discovery blending rule configured in settings
func (s *Settings) BlendRule() BlendRule {
	return BlendRule{InitialScore: s.Discovery.InitialScore, Weight: s.Discovery.BlendWeight}
}

// Credentials holds the secrets read from the environment
type Credentials struct {
	AnthropicAPIKey    string
	YouTubeAPIKey      string
	GitHubToken        string
	NotionAPIKey       string
	NotionParentPageID string
	DatabaseURL        string
	TranscriptAPIKey   string
	TranscriptAPIURL   string
	PushgatewayURL     string
}

// LoadCredentials reads credentials from the environment
func LoadCredentials() Credentials {
	return Credentials{
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		YouTubeAPIKey:      os.Getenv("YOUTUBE_API_KEY"),
		GitHubToken:        os.Getenv("GITHUB_PERSONAL_ACCESS_TOKEN"),
		NotionAPIKey:       os.Getenv("NOTION_API_KEY"),
		NotionParentPageID: os.Getenv("NOTION_PARENT_PAGE_ID"),
		DatabaseURL:        os.Getenv("SUPABASE_DB_URL"),
		TranscriptAPIKey:   os.Getenv("YOUTUBE_TRANSCRIPT_API_KEY"),
		TranscriptAPIURL:   os.Getenv("YOUTUBE_TRANSCRIPT_API_URL"),
		PushgatewayURL:     os.Getenv("PUSHGATEWAY_URL"),
	}
}

// Validate fails only for the language model key; every other missing
// credential just disables the source or sink that needs it.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.AnthropicAPIKey) == "" {
		return &ConfigurationError{Setting: "ANTHROPIC_API_KEY", Reason: "required to synthesize reports"}
	}
	return nil
}

// NotionEnabled reports whether both Notion settings are present
func (c Credentials) NotionEnabled() bool {
	return c.NotionAPIKey != "" && c.NotionParentPageID != ""
}

// Config holds settings, credentials and overrides
type Config struct {
	Settings    *Settings
	Credentials Credentials
	Overrides   *ConfigOverrides
}

// NewConfig creates a new Config with settings and overrides
func NewConfig(overrides *ConfigOverrides, creds Credentials) (*Config, error) {
	dir := defaultConfigDir
	if overrides != nil && overrides.ConfigDir != nil {
		dir = *overrides.ConfigDir
	}

	if err := ensureConfigExists(dir); err != nil {
		return nil, fmt.Errorf("ensuring config files exist: %w", err)
	}

	settings, err := loadSettings(filepath.Join(dir, settingsFilename))
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		if overrides.KeywordsDir != nil {
			settings.KeywordsDirectory = *overrides.KeywordsDir
		}
		if overrides.ReportsDir != nil {
			settings.ReportsDirectory = *overrides.ReportsDir
		}
	}

	return &Config{
		Settings:    settings,
		Credentials: creds,
		Overrides:   overrides,
	}, nil
}

// GetSystemPrompt returns the synthesizer system prompt (from override file or embedded)
func (c *Config) GetSystemPrompt() (string, error) {
	return c.overrideOr(c.Overrides.systemPromptPath(), defaultSystemPrompt)
}

// GetUserPrompt returns the synthesizer user prompt template (from override file or embedded)
func (c *Config) GetUserPrompt() (string, error) {
	return c.overrideOr(c.Overrides.userPromptPath(), defaultUserPrompt)
}

// GetOutputSchema returns the synthesizer JSON schema (from override file or embedded)
func (c *Config) GetOutputSchema() (string, error) {
	return c.overrideOr(c.Overrides.outputSchemaPath(), defaultOutputSchema)
}

// GetReportTemplate returns the markdown report template (from override file or embedded)
func (c *Config) GetReportTemplate() (string, error) {
	return c.overrideOr(c.Overrides.reportTemplatePath(), defaultReportTemplate)
}

// overrideOr reads path when set. An explicit override that cannot be read is
// an error rather than a silent fallback.
func (c *Config) overrideOr(path *string, embedded string) (string, error) {
	if path == nil {
		return strings.TrimSpace(embedded), nil
	}
	content, err := os.ReadFile(*path)
	if err != nil {
		return "", &ConfigurationError{Setting: *path, Reason: err.Error()}
	}
	return strings.TrimSpace(string(content)), nil
}

func (o *ConfigOverrides) systemPromptPath() *string {
	if o == nil {
		return nil
	}
	return o.SystemPromptPath
}

func (o *ConfigOverrides) userPromptPath() *string {
	if o == nil {
		return nil
	}
	return o.UserPromptPath
}

func (o *ConfigOverrides) outputSchemaPath() *string {
	if o == nil {
		return nil
	}
	return o.OutputSchemaPath
}

func (o *ConfigOverrides) reportTemplatePath() *string {
	if o == nil {
		return nil
	}
	return o.ReportTemplatePath
}

// loadSettings parses and validates a settings file, starting from the
// embedded defaults so partial files keep sane values.
func loadSettings(settingsPath string) (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal([]byte(defaultSettings), &settings); err != nil {
		return nil, fmt.Errorf("parsing embedded settings: %w", err)
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", settingsPath, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, &ConfigurationError{Setting: settingsPath, Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}

	// Ensure ContentMaxTokens is at least the minimum
	if settings.Agents.Synthesizer.ContentMaxTokens < minContentMaxTokens {
		settings.Agents.Synthesizer.ContentMaxTokens = minContentMaxTokens
	}
	if settings.Notion.MaxBlocks == 0 {
		settings.Notion.MaxBlocks = defaultNotionMaxBlocks
	}

	if err := validateSettings(&settings); err != nil {
		return nil, &ConfigurationError{Setting: settingsPath, Reason: err.Error()}
	}
	return &settings, nil
}

var settingsValidator = validator.New(validator.WithRequiredStructEnabled())

func validateSettings(settings *Settings) error {
	err := settingsValidator.Struct(settings)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ensureConfigExists creates the config directory and writes settings.yaml if needed
func ensureConfigExists(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsPath := filepath.Join(dir, settingsFilename)
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", settingsFilename, err)
		}
	}
	return nil
}
