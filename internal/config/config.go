package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources     Sources     `yaml:"sources"`
	Limit       int         `yaml:"limit"`
	LLM         LLM         `yaml:"llm"`
	Content     Content     `yaml:"content"`
	Competitive Competitive `yaml:"competitive"`
	Scoring     Scoring     `yaml:"scoring"`
	HTTP        HTTP        `yaml:"http"`
	Output      Output      `yaml:"output"`
}

type Sources struct {
	Reddit      RedditSource      `yaml:"reddit"`
	ProductHunt ProductHuntSource `yaml:"producthunt"`
	AppStore    AppStoreSource    `yaml:"appstore"`
	ChromeStore ChromeStoreSource `yaml:"chromestore"`
}

type RedditSource struct {
	Enabled    bool     `yaml:"enabled"`
	Subreddits []string `yaml:"subreddits"`
	Timeframe  string   `yaml:"timeframe"`
	// TokenEnv names an env var holding an API token. When set, a
	// missing token disables this adapter, not the whole run (unless
	// it is the only usable source).
	TokenEnv string `yaml:"token_env"`
}

type ProductHuntSource struct {
	Enabled  bool   `yaml:"enabled"`
	ForumURL string `yaml:"forum_url"`
}

type AppStoreSource struct {
	Enabled bool     `yaml:"enabled"`
	AppIDs  []string `yaml:"app_ids"`
	Country string   `yaml:"country"`
}

type ChromeStoreSource struct {
	Enabled  bool   `yaml:"enabled"`
	Category string `yaml:"category"`
}

type LLM struct {
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
	BaseURL       string `yaml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	MaxTokens     int    `yaml:"max_tokens"`
	BatchSize     int    `yaml:"batch_size"`
}

type Content struct {
	// FetchLinks enables readability extraction for link-only posts
	// before they reach the extractor.
	FetchLinks bool `yaml:"fetch_links"`
}

type Competitive struct {
	CacheDir        string   `yaml:"cache_dir"`
	CacheTTLHours   int      `yaml:"cache_ttl_hours"`
	DefaultKeywords []string `yaml:"default_keywords"`
	SearchLimit     int      `yaml:"search_limit"`
	TopExtensions   int      `yaml:"top_extensions"`
}

type Scoring struct {
	GoldMinOpportunity float64 `yaml:"gold_min_opportunity"`
	GoldMinDemand      float64 `yaml:"gold_min_demand"`
	GoldMaxSupply      float64 `yaml:"gold_max_supply"`
}

type HTTP struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxAttempts    int    `yaml:"max_attempts"`
	UserAgent      string `yaml:"user_agent"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

// ConfigDir returns the XDG config directory for radar.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "radar")
}

// DataDir returns the XDG data directory for radar.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "radar")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/radar/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'radar init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, _ := parse(nil)
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			Reddit: RedditSource{
				Enabled:    true,
				Subreddits: []string{"macapps", "iphone", "chrome_extensions"},
				Timeframe:  "week",
			},
			ProductHunt: ProductHuntSource{
				Enabled:  true,
				ForumURL: "https://www.producthunt.com/p/general",
			},
			AppStore: AppStoreSource{
				Enabled: true,
				AppIDs:  []string{"1232780281", "310633997", "1274495053"},
				Country: "us",
			},
			ChromeStore: ChromeStoreSource{
				Enabled:  true,
				Category: "extensions",
			},
		},
		Limit: 25,
		LLM: LLM{
			Model:         "gpt-4o-mini",
			FallbackModel: "gpt-3.5-turbo",
			BaseURL:       "https://api.openai.com/v1",
			APIKeyEnv:     "OPENAI_API_KEY",
			MaxTokens:     512,
			BatchSize:     10,
		},
		Content: Content{FetchLinks: true},
		Competitive: Competitive{
			CacheTTLHours:   24,
			DefaultKeywords: []string{"app", "tool"},
			SearchLimit:     5,
			TopExtensions:   100,
		},
		Scoring: Scoring{
			GoldMinOpportunity: 70,
			GoldMinDemand:      50,
			GoldMaxSupply:      30,
		},
		HTTP: HTTP{
			TimeoutSeconds: 30,
			MaxAttempts:    3,
		},
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetCacheDir returns the competitive-data cache directory.
func (c *Config) GetCacheDir() string {
	if c.Competitive.CacheDir != "" {
		return c.Competitive.CacheDir
	}
	return filepath.Join(c.GetDataDir(), "cache")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
