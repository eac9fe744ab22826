package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete thedocs configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	FullText   FullTextConfig   `yaml:"fulltext" json:"fulltext"`
	Enrichment EnrichmentConfig `yaml:"enrichment" json:"enrichment"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" json:"reconcile"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`

	// baseDir anchors relative paths. Set by Load.
	baseDir string
}

// PathsConfig locates the document tree. Relative paths resolve against the
// directory Load was called with.
type PathsConfig struct {
	DocumentsDir string `yaml:"documents_dir" json:"documents_dir"`
	DatabaseDir  string `yaml:"database_dir" json:"database_dir"`
	PromptsDir   string `yaml:"prompts_dir" json:"prompts_dir"`
}

// SearchConfig tunes the lexicon engine and the facade.
type SearchConfig struct {
	// SnippetWindow is the number of characters kept on each side of a match.
	SnippetWindow int `yaml:"snippet_window" json:"snippet_window"`
	// MaxResults caps a single response (0 = no cap).
	MaxResults int `yaml:"max_results" json:"max_results"`
	// CacheSize is the number of document bodies the lexicon engine keeps in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// FullTextConfig configures the optional full-text backend.
// Endpoint scheme selects the backend: http(s):// (Elasticsearch),
// bleve://<dir>, sqlite://<file>. Empty disables full-text search.
type FullTextConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Index    string `yaml:"index" json:"index"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	Timeout  string `yaml:"timeout" json:"timeout"`
	// BreakerFailures consecutive query failures skip the backend for BreakerCooldown.
	BreakerFailures int    `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerCooldown string `yaml:"breaker_cooldown" json:"breaker_cooldown"`
}

// EnrichmentConfig configures the metadata generator.
type EnrichmentConfig struct {
	// Provider is "ollama", "openai" or "none".
	Provider   string `yaml:"provider" json:"provider"`
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Model      string `yaml:"model" json:"model"`
	APIKey     string `yaml:"api_key" json:"-"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	PromptFile string `yaml:"prompt_file" json:"prompt_file"`
}

// ReconcileConfig configures the reconciliation routine.
type ReconcileConfig struct {
	// Concurrency bounds in-flight enrichment calls. 1 means sequential.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
	// SyncFullText pushes every on-disk record to the full-text index on each run.
	SyncFullText bool `yaml:"sync_fulltext" json:"sync_fulltext"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Environment string `yaml:"environment" json:"environment"`
	Dir         string `yaml:"dir" json:"dir"`
	Level       string `yaml:"level" json:"level"`
	MaxSizeMB   int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles    int    `yaml:"max_files" json:"max_files"`
}

// ServerConfig configures `thedocs serve`.
type ServerConfig struct {
	// IncludePrivate treats MCP clients as authenticated viewers.
	IncludePrivate bool `yaml:"include_private" json:"include_private"`
	// MetricsAddr serves /metrics and /healthz when set (e.g. ":9102").
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// WatchConfig configures `thedocs watch`.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

var validProviders = map[string]bool{"ollama": true, "openai": true, "none": true}

var validEnvironments = map[string]bool{"development": true, "testing": true, "production": true}

var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DocumentsDir: "markdown_files",
			DatabaseDir:  "database",
			PromptsDir:   "prompts",
		},
		Search: SearchConfig{
			SnippetWindow: 25,
			MaxResults:    100,
			CacheSize:     256,
		},
		FullText: FullTextConfig{
			Index:           "markdown_files",
			Timeout:         "5s",
			BreakerFailures: 3,
			BreakerCooldown: "30s",
		},
		Enrichment: EnrichmentConfig{
			Provider:   "ollama",
			Endpoint:   "http://localhost:11434",
			Model:      "qwen3:0.6b",
			Timeout:    "30s",
			PromptFile: "summarize_markdown.md",
		},
		Reconcile: ReconcileConfig{
			Concurrency:  1,
			SyncFullText: true,
		},
		Logging: LoggingConfig{
			Environment: "development",
			MaxSizeMB:   5,
			MaxFiles:    5,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
	}
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/thedocs/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/thedocs/config.yaml
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "thedocs", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "thedocs", "config.yaml")
	}
	return filepath.Join(home, ".config", "thedocs", "config.yaml")
}

// Load loads configuration for the project rooted at dir, in increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/thedocs/config.yaml)
//  3. Project config (.thedocs.yaml or .thedocs.yml in dir)
//  4. Environment variables (THEDOCS_*, plus RUN_ENVIRONMENT, PATH_TO_LOGS,
//     LOG_MAX_SIZE, LOG_MAX_FILES, OPENAI_API_KEY)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()
	cfg.baseDir = dir

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{".thedocs.yaml", ".thedocs.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// sync_fulltext may be set to false explicitly, which the zero-value merge can't see
	var raw struct {
		Reconcile map[string]any `yaml:"reconcile"`
		Server    map[string]any `yaml:"server"`
	}
	_ = yaml.Unmarshal(data, &raw)

	c.mergeWith(&parsed)
	if _, ok := raw.Reconcile["sync_fulltext"]; ok {
		c.Reconcile.SyncFullText = parsed.Reconcile.SyncFullText
	}
	if _, ok := raw.Server["include_private"]; ok {
		c.Server.IncludePrivate = parsed.Server.IncludePrivate
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	mergeString(&c.Paths.DocumentsDir, other.Paths.DocumentsDir)
	mergeString(&c.Paths.DatabaseDir, other.Paths.DatabaseDir)
	mergeString(&c.Paths.PromptsDir, other.Paths.PromptsDir)

	mergeInt(&c.Search.SnippetWindow, other.Search.SnippetWindow)
	mergeInt(&c.Search.MaxResults, other.Search.MaxResults)
	mergeInt(&c.Search.CacheSize, other.Search.CacheSize)

	mergeString(&c.FullText.Endpoint, other.FullText.Endpoint)
	mergeString(&c.FullText.Index, other.FullText.Index)
	mergeString(&c.FullText.Username, other.FullText.Username)
	mergeString(&c.FullText.Password, other.FullText.Password)
	mergeString(&c.FullText.Timeout, other.FullText.Timeout)
	mergeInt(&c.FullText.BreakerFailures, other.FullText.BreakerFailures)
	mergeString(&c.FullText.BreakerCooldown, other.FullText.BreakerCooldown)

	mergeString(&c.Enrichment.Provider, other.Enrichment.Provider)
	mergeString(&c.Enrichment.Endpoint, other.Enrichment.Endpoint)
	mergeString(&c.Enrichment.Model, other.Enrichment.Model)
	mergeString(&c.Enrichment.APIKey, other.Enrichment.APIKey)
	mergeString(&c.Enrichment.Timeout, other.Enrichment.Timeout)
	mergeString(&c.Enrichment.PromptFile, other.Enrichment.PromptFile)

	mergeInt(&c.Reconcile.Concurrency, other.Reconcile.Concurrency)

	mergeString(&c.Logging.Environment, other.Logging.Environment)
	mergeString(&c.Logging.Dir, other.Logging.Dir)
	mergeString(&c.Logging.Level, other.Logging.Level)
	mergeInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	mergeInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)

	mergeString(&c.Server.MetricsAddr, other.Server.MetricsAddr)

	mergeString(&c.Watch.Debounce, other.Watch.Debounce)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func (c *Config) applyEnvOverrides() {
	envString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	envInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	envString(&c.Paths.DocumentsDir, "THEDOCS_DOCUMENTS_DIR")
	envString(&c.Paths.DatabaseDir, "THEDOCS_DATABASE_DIR")
	envString(&c.Paths.PromptsDir, "THEDOCS_PROMPTS_DIR")

	envString(&c.FullText.Endpoint, "THEDOCS_FULLTEXT_ENDPOINT", "ELASTICSEARCH_URL")
	envString(&c.FullText.Index, "THEDOCS_FULLTEXT_INDEX")
	envString(&c.FullText.Username, "THEDOCS_FULLTEXT_USERNAME", "ELASTICSEARCH_USERNAME")
	envString(&c.FullText.Password, "THEDOCS_FULLTEXT_PASSWORD", "ELASTICSEARCH_PASSWORD")

	envString(&c.Enrichment.Provider, "THEDOCS_ENRICH_PROVIDER")
	envString(&c.Enrichment.Endpoint, "THEDOCS_ENRICH_ENDPOINT")
	envString(&c.Enrichment.Model, "THEDOCS_ENRICH_MODEL")
	envString(&c.Enrichment.APIKey, "THEDOCS_ENRICH_API_KEY", "OPENAI_API_KEY")
	envString(&c.Enrichment.Timeout, "THEDOCS_ENRICH_TIMEOUT")

	envInt(&c.Reconcile.Concurrency, "THEDOCS_RECONCILE_CONCURRENCY")

	envString(&c.Logging.Environment, "RUN_ENVIRONMENT")
	envString(&c.Logging.Dir, "PATH_TO_LOGS")
	envString(&c.Logging.Level, "THEDOCS_LOG_LEVEL")
	envInt(&c.Logging.MaxSizeMB, "LOG_MAX_SIZE")
	envInt(&c.Logging.MaxFiles, "LOG_MAX_FILES")

	envString(&c.Server.MetricsAddr, "THEDOCS_METRICS_ADDR")
	if v := os.Getenv("THEDOCS_INCLUDE_PRIVATE"); v != "" {
		c.Server.IncludePrivate = parseBool(v)
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

// Validate returns an error describing the first invalid setting.
func (c *Config) Validate() error {
	if c.Paths.DocumentsDir == "" {
		return fmt.Errorf("paths.documents_dir must not be empty")
	}
	if c.Paths.DatabaseDir == "" {
		return fmt.Errorf("paths.database_dir must not be empty")
	}
	if c.Search.SnippetWindow <= 0 {
		return fmt.Errorf("search.snippet_window must be positive, got %d", c.Search.SnippetWindow)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.CacheSize < 0 {
		return fmt.Errorf("search.cache_size must be non-negative, got %d", c.Search.CacheSize)
	}

	if c.FullText.Endpoint != "" {
		u, err := url.Parse(c.FullText.Endpoint)
		if err != nil {
			return fmt.Errorf("fulltext.endpoint is not a valid URL: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "bleve", "sqlite":
		default:
			return fmt.Errorf("fulltext.endpoint scheme must be http, https, bleve or sqlite, got %q", u.Scheme)
		}
	}
	if err := checkDuration("fulltext.timeout", c.FullText.Timeout); err != nil {
		return err
	}
	if err := checkDuration("fulltext.breaker_cooldown", c.FullText.BreakerCooldown); err != nil {
		return err
	}

	if !validProviders[strings.ToLower(c.Enrichment.Provider)] {
		return fmt.Errorf("enrichment.provider must be 'ollama', 'openai' or 'none', got %s", c.Enrichment.Provider)
	}
	if err := checkDuration("enrichment.timeout", c.Enrichment.Timeout); err != nil {
		return err
	}

	if c.Reconcile.Concurrency < 1 {
		return fmt.Errorf("reconcile.concurrency must be at least 1, got %d", c.Reconcile.Concurrency)
	}

	if !validEnvironments[strings.ToLower(c.Logging.Environment)] {
		return fmt.Errorf("logging.environment must be 'development', 'testing' or 'production', got %s", c.Logging.Environment)
	}
	if strings.EqualFold(c.Logging.Environment, "production") && c.Logging.Dir == "" {
		return fmt.Errorf("logging.dir (PATH_TO_LOGS) is required in production")
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn' or 'error', got %s", c.Logging.Level)
	}

	return checkDuration("watch.debounce", c.Watch.Debounce)
}

func checkDuration(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.ParseDuration(v); err != nil {
		return fmt.Errorf("%s must be a duration like \"5s\", got %q", field, v)
	}
	return nil
}

// Duration parses v, returning def for empty or invalid values.
func Duration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// BaseDir returns the directory relative paths resolve against.
func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// DocumentsDir returns the resolved documents directory.
func (c *Config) DocumentsDir() string {
	return c.resolve(c.Paths.DocumentsDir)
}

// TablePath returns the resolved path of the record table.
func (c *Config) TablePath() string {
	return filepath.Join(c.resolve(c.Paths.DatabaseDir), "index.csv")
}

// PromptsDir returns the resolved prompts directory.
func (c *Config) PromptsDir() string {
	return c.resolve(c.Paths.PromptsDir)
}

// PromptPath returns the resolved path of the enrichment prompt template.
func (c *Config) PromptPath() string {
	if filepath.IsAbs(c.Enrichment.PromptFile) {
		return c.Enrichment.PromptFile
	}
	return filepath.Join(c.PromptsDir(), c.Enrichment.PromptFile)
}

// LogDir returns the resolved log directory, or "".
func (c *Config) LogDir() string {
	return c.resolve(c.Logging.Dir)
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
