package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix namespaces every environment variable read here.
const envPrefix = "BROWSERFETCH_"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Challenge ChallengeConfig `yaml:"challenge"`
	OCR       OCRConfig       `yaml:"ocr"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig selects and tunes the browser driver.
type BrowserConfig struct {
	// Driver is "rod" (Chromium family over CDP) or "playwright".
	Driver string `yaml:"driver"` // default: "rod"

	// Engine is chromium, chrome, edge, firefox or webkit.
	Engine string `yaml:"engine"` // default: "chromium"

	Headless bool `yaml:"headless"` // default: true

	// DefaultProxy is used by requests that do not name a proxy.
	DefaultProxy string `yaml:"default_proxy"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"`

	// BrowserBin overrides the browser binary path (rod only).
	BrowserBin string `yaml:"browser_bin"`

	// InstallPlaywright downloads playwright browsers on first launch.
	InstallPlaywright bool `yaml:"install_playwright"`
}

// FetchConfig controls the fetch helper.
type FetchConfig struct {
	// RunTimeout bounds the network-idle wait of extraction fetches.
	RunTimeout time.Duration `yaml:"run_timeout"` // default: 30s

	// HTMLTimeout bounds the network-idle wait of HTML fetches.
	HTMLTimeout time.Duration `yaml:"html_timeout"` // default: 20s

	// MaxTimeout caps the per-request timeout a client may ask for.
	MaxTimeout time.Duration `yaml:"max_timeout"` // default: 120s

	// MaxConcurrent caps simultaneous browser sessions; 0 is unbounded.
	MaxConcurrent int `yaml:"max_concurrent"` // default: 4
}

// ChallengeConfig controls the challenge solving loop.
type ChallengeConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`  // default: 10
	PollInterval time.Duration `yaml:"poll_interval"` // default: 1s
	ReloadEvery  int           `yaml:"reload_every"`  // default: 4
	TabPresses   int           `yaml:"tab_presses"`   // default: 10

	// Image captcha form selectors. The captcha step is off unless the image
	// and input selectors are set and OCR.Host is configured.
	CaptchaImage  string `yaml:"captcha_image"`
	CaptchaInput  string `yaml:"captcha_input"`
	CaptchaSubmit string `yaml:"captcha_submit"`
}

// OCRConfig points at the captcha OCR service.
type OCRConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"` // default: 10s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"` // default: true
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 2

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 4
}

// CacheConfig controls the fetch response cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"` // default: 500
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "release"},
		Browser: BrowserConfig{Driver: "rod", Engine: "chromium", Headless: true},
		Fetch: FetchConfig{
			RunTimeout:    30 * time.Second,
			HTMLTimeout:   20 * time.Second,
			MaxTimeout:    120 * time.Second,
			MaxConcurrent: 4,
		},
		Challenge: ChallengeConfig{
			MaxAttempts:  10,
			PollInterval: time.Second,
			ReloadEvery:  4,
			TabPresses:   10,
		},
		OCR:       OCRConfig{Timeout: 10 * time.Second},
		Auth:      AuthConfig{Enabled: true},
		RateLimit: RateLimitConfig{RequestsPerSecond: 2, Burst: 4},
		Cache:     CacheConfig{MaxEntries: 500},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from the defaults, then the YAML file named
// by BROWSERFETCH_CONFIG (if any), then BROWSERFETCH_* environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("HOST", c.Server.Host)
	c.Server.Port = envIntOr("PORT", c.Server.Port)
	c.Server.Mode = envOr("MODE", c.Server.Mode)

	c.Browser.Driver = envOr("DRIVER", c.Browser.Driver)
	c.Browser.Engine = envOr("ENGINE", c.Browser.Engine)
	c.Browser.Headless = envBoolOr("HEADLESS", c.Browser.Headless)
	c.Browser.DefaultProxy = envOr("PROXY", c.Browser.DefaultProxy)
	c.Browser.NoSandbox = envBoolOr("NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("BROWSER_BIN", c.Browser.BrowserBin)
	c.Browser.InstallPlaywright = envBoolOr("INSTALL_PLAYWRIGHT", c.Browser.InstallPlaywright)

	c.Fetch.RunTimeout = envDurationOr("RUN_TIMEOUT", c.Fetch.RunTimeout)
	c.Fetch.HTMLTimeout = envDurationOr("HTML_TIMEOUT", c.Fetch.HTMLTimeout)
	c.Fetch.MaxTimeout = envDurationOr("MAX_TIMEOUT", c.Fetch.MaxTimeout)
	c.Fetch.MaxConcurrent = envIntOr("MAX_CONCURRENT", c.Fetch.MaxConcurrent)

	c.Challenge.MaxAttempts = envIntOr("CHALLENGE_MAX_ATTEMPTS", c.Challenge.MaxAttempts)
	c.Challenge.PollInterval = envDurationOr("CHALLENGE_POLL_INTERVAL", c.Challenge.PollInterval)
	c.Challenge.ReloadEvery = envIntOr("CHALLENGE_RELOAD_EVERY", c.Challenge.ReloadEvery)
	c.Challenge.TabPresses = envIntOr("CHALLENGE_TAB_PRESSES", c.Challenge.TabPresses)
	c.Challenge.CaptchaImage = envOr("CAPTCHA_IMAGE", c.Challenge.CaptchaImage)
	c.Challenge.CaptchaInput = envOr("CAPTCHA_INPUT", c.Challenge.CaptchaInput)
	c.Challenge.CaptchaSubmit = envOr("CAPTCHA_SUBMIT", c.Challenge.CaptchaSubmit)

	c.OCR.Host = envOr("OCR_HOST", c.OCR.Host)
	c.OCR.Timeout = envDurationOr("OCR_TIMEOUT", c.OCR.Timeout)

	c.Auth.Enabled = envBoolOr("AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("RATE_BURST", c.RateLimit.Burst)

	c.Cache.MaxEntries = envIntOr("CACHE_MAX_ENTRIES", c.Cache.MaxEntries)

	c.Log.Level = envOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("LOG_FORMAT", c.Log.Format)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(envPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(envPrefix + key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
