package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sha1n/ngram-viewer/internal/frequency"
	"github.com/sha1n/ngram-viewer/internal/match"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by LoadSettings.
const EnvPrefix = "NGRAM_VIEWER"

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Transport constants
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// DefaultMirrors are the Project Gutenberg URL templates tried in order when
// downloading a book. {id} is replaced by the ebook number.
var DefaultMirrors = []string{
	"https://www.gutenberg.org/files/{id}/{id}-0.txt",
	"https://www.gutenberg.org/files/{id}/{id}.txt",
	"https://www.gutenberg.org/ebooks/{id}.txt.utf-8",
}

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// FetchSettings configuration for downloading book texts
type FetchSettings struct {
	Enabled     bool          `mapstructure:"enabled"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"` // requests per second
	MaxParallel int           `mapstructure:"max_parallel"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	Mirrors     []string      `mapstructure:"mirrors"`
}

// CorpusSettings configuration for the book corpus
type CorpusSettings struct {
	Dataset   string        `mapstructure:"dataset"`
	DataDir   string        `mapstructure:"data_dir"`
	Normalize bool          `mapstructure:"normalize"`
	Fetch     FetchSettings `mapstructure:"fetch"`
}

// SearchSettings configuration for pattern queries
type SearchSettings struct {
	Algorithm  string `mapstructure:"algorithm"`
	Bucket     string `mapstructure:"bucket"`
	MinYear    int    `mapstructure:"min_year"`
	MaxYear    int    `mapstructure:"max_year"`
	Workers    int    `mapstructure:"workers"`
	PerMillion bool   `mapstructure:"per_million"`
}

// ChartSettings configuration for the console bar chart
type ChartSettings struct {
	Width int  `mapstructure:"width"` // 0 sizes the chart to the terminal
	Color bool `mapstructure:"color"`
}

// Settings application settings
type Settings struct {
	LogLevel  string         `mapstructure:"log_level"`
	Corpus    CorpusSettings `mapstructure:"corpus"`
	Search    SearchSettings `mapstructure:"search"`
	Chart     ChartSettings  `mapstructure:"chart"`
	Transport string         `mapstructure:"transport"`
	Host      string         `mapstructure:"host"`
	Port      int            `mapstructure:"port"`
	Auth      AuthSettings   `mapstructure:"auth"`
}

// flagBindings maps CLI flag names to settings keys.
// Flags that are not registered on the current command are skipped.
var flagBindings = map[string]string{
	"log-level":           "log_level",
	"dataset":             "corpus.dataset",
	"data-dir":            "corpus.data_dir",
	"normalize":           "corpus.normalize",
	"fetch":               "corpus.fetch.enabled",
	"fetch-timeout":       "corpus.fetch.timeout",
	"rate-limit":          "corpus.fetch.rate_limit",
	"max-parallel":        "corpus.fetch.max_parallel",
	"lock-timeout":        "corpus.fetch.lock_timeout",
	"mirrors":             "corpus.fetch.mirrors",
	"algorithm":           "search.algorithm",
	"bucket":              "search.bucket",
	"min-year":            "search.min_year",
	"max-year":            "search.max_year",
	"workers":             "search.workers",
	"per-million":         "search.per_million",
	"width":               "chart.width",
	"color":               "chart.color",
	"transport":           "transport",
	"host":                "host",
	"port":                "port",
	"auth-type":           "auth.type",
	"auth-basic-username": "auth.basic.username",
	"auth-basic-password": "auth.basic.password",
	"auth-api-keys":       "auth.api_keys",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")

	// Corpus defaults
	v.SetDefault("corpus.dataset", filepath.Join("data", "books_database.json"))
	v.SetDefault("corpus.data_dir", defaultDataDir())
	v.SetDefault("corpus.normalize", true)
	v.SetDefault("corpus.fetch.enabled", true)
	v.SetDefault("corpus.fetch.timeout", 15*time.Second)
	v.SetDefault("corpus.fetch.rate_limit", 2.0)
	v.SetDefault("corpus.fetch.max_parallel", 4)
	v.SetDefault("corpus.fetch.lock_timeout", 60*time.Second)
	v.SetDefault("corpus.fetch.mirrors", DefaultMirrors)

	// Search defaults
	v.SetDefault("search.algorithm", "kmp")
	v.SetDefault("search.bucket", "decade")
	v.SetDefault("search.min_year", 1500)
	v.SetDefault("search.max_year", time.Now().Year())
	v.SetDefault("search.workers", 1)
	v.SetDefault("search.per_million", false)

	v.SetDefault("chart.width", 40)
	v.SetDefault("chart.color", true)

	// Server defaults
	v.SetDefault("transport", TransportStdio)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	// Environment variables: NGRAM_VIEWER_CORPUS_DATA_DIR -> corpus.data_dir
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are invisible to AutomaticEnv during Unmarshal
	_ = v.BindEnv("auth.basic.username", EnvPrefix+"_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", EnvPrefix+"_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", EnvPrefix+"_AUTH_API_KEYS")

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for name, key := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	settings.Auth.APIKeys = splitListEnv(settings.Auth.APIKeys, EnvPrefix+"_AUTH_API_KEYS")
	settings.Corpus.Fetch.Mirrors = splitListEnv(settings.Corpus.Fetch.Mirrors, EnvPrefix+"_CORPUS_FETCH_MIRRORS")

	settings.Corpus.DataDir = expandHomeDir(settings.Corpus.DataDir)
	settings.Corpus.Dataset = expandHomeDir(settings.Corpus.Dataset)

	return &settings, nil
}

// splitListEnv handles list values provided through an environment variable
// as a single comma-separated string, then trims and drops empty items.
func splitListEnv(values []string, envVar string) []string {
	if raw := os.Getenv(envVar); raw != "" {
		if len(values) == 0 || (len(values) == 1 && strings.Contains(values[0], ",")) {
			values = strings.Split(raw, ",")
		}
	}

	var result []string
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}

// defaultDataDir returns the default directory for downloaded books and indexes
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ngram-viewer"
	}
	return filepath.Join(home, ".ngram-viewer")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// ValidateSettings checks for invalid or conflicting configurations.
func ValidateSettings(s *Settings) error {
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log-level must be one of debug, info, warn, error, got: %s", s.LogLevel)
	}

	if err := validateCorpusSettings(&s.Corpus); err != nil {
		return err
	}
	if err := validateSearchSettings(&s.Search); err != nil {
		return err
	}
	if s.Chart.Width < 0 {
		return errors.New("width cannot be negative")
	}

	switch s.Transport {
	case TransportStdio, TransportSSE:
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	return validateAuthSettings(&s.Auth)
}

func validateCorpusSettings(c *CorpusSettings) error {
	if c.Dataset == "" {
		return errors.New("dataset path cannot be empty")
	}
	if c.DataDir == "" {
		return errors.New("data-dir cannot be empty")
	}

	f := &c.Fetch
	if !f.Enabled {
		return nil // Download limits are irrelevant when fetching is disabled
	}
	if f.Timeout <= 0 {
		return errors.New("fetch-timeout must be positive")
	}
	if f.RateLimit <= 0 {
		return errors.New("rate-limit must be positive")
	}
	if f.MaxParallel <= 0 {
		return errors.New("max-parallel must be positive")
	}
	if f.LockTimeout <= 0 {
		return errors.New("lock-timeout must be positive")
	}
	if len(f.Mirrors) == 0 {
		return errors.New("fetching requires at least one mirror URL template")
	}
	for _, m := range f.Mirrors {
		if !strings.Contains(m, "{id}") {
			return fmt.Errorf("mirror URL template must contain {id}: %s", m)
		}
	}
	return nil
}

func validateSearchSettings(s *SearchSettings) error {
	if _, err := match.ParseKind(s.Algorithm); err != nil {
		return err
	}
	if _, err := frequency.ParseLevel(s.Bucket); err != nil {
		return err
	}

	if s.MinYear > s.MaxYear {
		return fmt.Errorf("min-year (%d) cannot be greater than max-year (%d)", s.MinYear, s.MaxYear)
	}
	if s.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	return nil
}

func validateAuthSettings(a *AuthSettings) error {
	hasBasicCreds := a.Basic.Username != "" || a.Basic.Password != ""
	hasAPIKeys := len(a.APIKeys) > 0

	switch a.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if a.Basic.Username == "" || a.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + a.Type)
	}
	return nil
}
