// Package config provides configuration management for webmirror.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for webmirror.
type Config struct {
	// ── Mirror ───────────────────────────────────────────────────────────────
	// BaseURL: the site to mirror, e.g. https://www.example.org
	BaseURL   string   `mapstructure:"base_url"`
	OutputDir string   `mapstructure:"output_dir"`
	SeedURLs  []string `mapstructure:"seed_urls"`
	// SitemapURL: optional sitemap.xml whose <loc> entries seed the crawl.
	SitemapURL string `mapstructure:"sitemap_url"`
	// Concurrency: number of parallel page workers.
	Concurrency  int    `mapstructure:"concurrency"`
	FetchTimeout int    `mapstructure:"fetch_timeout_seconds"`
	UserAgent    string `mapstructure:"user_agent"`
	// SkipPatterns: regexes for URLs that must never be fetched
	// (broken CDN endpoints, tracking widgets, fragment-carrying font URLs).
	SkipPatterns []string `mapstructure:"skip_patterns"`
	MaxRetries   int      `mapstructure:"max_retries"`
	// FollowLinks: also crawl same-host <a href> targets discovered on
	// mirrored pages instead of fetching only the configured seeds.
	FollowLinks bool `mapstructure:"follow_links"`

	// ── Store ────────────────────────────────────────────────────────────────
	DBPath string `mapstructure:"db_path"`

	// ── Preview server ───────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`
	// JWTSecret: HS256 signing key for dashboard login tokens.
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminUser string `mapstructure:"admin_user"`
	AdminPass string `mapstructure:"admin_pass"`
	// APIToken: pre-shared key for automation hooks.
	// Format on wire: "Authorization: Bearer <api_token>"
	APIToken string `mapstructure:"api_token"`

	// ── Deploy (self-hosted target over SSH) ─────────────────────────────────
	DeployHost      string `mapstructure:"deploy_host"`
	DeployUser      string `mapstructure:"deploy_user"`
	DeployPassword  string `mapstructure:"deploy_password"`
	DeployKeyPath   string `mapstructure:"deploy_key_path"`
	DeployRemoteDir string `mapstructure:"deploy_remote_dir"`

	// ── Logging ──────────────────────────────────────────────────────────────
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// defaultUserAgent matches what mainstream browsers send; several site
// builders refuse requests with obviously non-browser agents.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Load reads config from file (./config.yaml or ~/.webmirror/config.yaml)
// and falls back to smart defaults. Environment variables with prefix
// WEBMIRROR_ override file values.
func Load() (*Config, error) {
	v := viper.New()

	// --- Smart Defaults ---
	v.SetDefault("base_url", "")
	v.SetDefault("output_dir", "mirror")
	v.SetDefault("seed_urls", []string{})
	v.SetDefault("sitemap_url", "")
	v.SetDefault("concurrency", 5)
	v.SetDefault("fetch_timeout_seconds", 30)
	v.SetDefault("user_agent", defaultUserAgent)
	v.SetDefault("skip_patterns", []string{})
	v.SetDefault("max_retries", 2)
	v.SetDefault("follow_links", false)

	v.SetDefault("db_path", "webmirror.db")

	v.SetDefault("server_host", "127.0.0.1")
	v.SetDefault("server_port", 8000)

	// Security defaults — MUST be overridden via config.yaml or env vars
	// before exposing the preview server beyond localhost.
	v.SetDefault("jwt_secret", "Wm$Kq3@dT8!xP5#nR2^vB7&hL1*cJ")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass", "admin")
	v.SetDefault("api_token", "webmirror-hook-token-123")

	v.SetDefault("deploy_host", "")
	v.SetDefault("deploy_user", "root")
	v.SetDefault("deploy_password", "")
	v.SetDefault("deploy_key_path", "~/.ssh/id_rsa")
	v.SetDefault("deploy_remote_dir", "/var/www/site")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.webmirror")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("WEBMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
