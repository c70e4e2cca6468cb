// Package config holds the playerwatch YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Page       PageConfig       `yaml:"page"`
	Widget     WidgetConfig     `yaml:"widget"`
	Timing     TimingConfig     `yaml:"timing"`
	Completion CompletionConfig `yaml:"completion"`
	Store      StoreConfig      `yaml:"store"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Headful          bool          `yaml:"headful"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// PageConfig names the LMS page to host.
type PageConfig struct {
	URL string `yaml:"url"`
	// Format forces a layout tag; empty means detect it from the page.
	Format string `yaml:"format"`
}

// WidgetConfig is what the widget is booted with.
type WidgetConfig struct {
	BootstrapURL     string        `yaml:"bootstrap_url"`
	ClientID         string        `yaml:"client_id"`
	DeploymentDomain string        `yaml:"deployment_domain"`
	Locale           string        `yaml:"locale"`
	SSOToken         string        `yaml:"sso_token"`
	LoginURL         string        `yaml:"login_url"`
	MediaTitle       string        `yaml:"media_title"`
	MediaDescription string        `yaml:"media_description"`
	Group            GroupConfig   `yaml:"group"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
}

// GroupConfig is the course the media belongs to.
type GroupConfig struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// TimingConfig tunes the reconciler. Settle is keyed by format tag.
type TimingConfig struct {
	Settle        map[string]time.Duration `yaml:"settle"`
	ModalOpen     time.Duration            `yaml:"modal_open"`
	ModalClose    time.Duration            `yaml:"modal_close"`
	Failsafe      time.Duration            `yaml:"failsafe"`
	RetryAttempts int                      `yaml:"retry_attempts"`
	RetryInterval time.Duration            `yaml:"retry_interval"`
}

// CompletionConfig describes the activity and the learner.
type CompletionConfig struct {
	ActivityID string `yaml:"activity_id"`
	Enabled    bool   `yaml:"enabled"`
	TotalView  string `yaml:"totalview"`
	Comments   string `yaml:"comments"`
	Replies    string `yaml:"replies"`
	Enrolled   bool   `yaml:"enrolled"`
	Moderator  bool   `yaml:"moderator"`
}

// StoreConfig locates the SQLite file for progress and routes.
type StoreConfig struct {
	Path          string        `yaml:"path"`
	RoutesRefresh time.Duration `yaml:"routes_refresh"`
}

// HTTPConfig is the debug/query HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default is the configuration of an empty file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Widget.ReadyTimeout <= 0 {
		c.Widget.ReadyTimeout = 10 * time.Second
	}
	if c.Timing.ModalOpen <= 0 {
		c.Timing.ModalOpen = 1500 * time.Millisecond
	}
	if c.Timing.ModalClose <= 0 {
		c.Timing.ModalClose = 200 * time.Millisecond
	}
	if c.Timing.Failsafe <= 0 {
		c.Timing.Failsafe = time.Second
	}
	if c.Timing.RetryAttempts <= 0 {
		c.Timing.RetryAttempts = 20
	}
	if c.Timing.RetryInterval <= 0 {
		c.Timing.RetryInterval = 200 * time.Millisecond
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/playerwatch.db"
	}
	if c.Store.RoutesRefresh <= 0 {
		c.Store.RoutesRefresh = time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8089"
	}
}
