package playerwatch

import (
	"time"

	"github.com/hazyhaar/playerwatch/format"
	"github.com/hazyhaar/playerwatch/playerwatch/internal/config"
	"github.com/hazyhaar/playerwatch/progress"
	"github.com/hazyhaar/playerwatch/retry"
	"github.com/hazyhaar/playerwatch/widget"
)

// Config is the top-level configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome.
type BrowserConfig = config.BrowserConfig

// WidgetConfig is what the widget is booted with.
type WidgetConfig = config.WidgetConfig

// TimingConfig tunes the reconciler.
type TimingConfig = config.TimingConfig

// CompletionConfig describes the activity and the learner.
type CompletionConfig = config.CompletionConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig is the configuration of an empty file.
func DefaultConfig() *Config {
	return config.Default()
}

// TimingFrom converts file timing to engine timing.
func TimingFrom(cfg *Config) Timing {
	t := Timing{
		ModalOpen:    cfg.Timing.ModalOpen,
		ModalClose:   cfg.Timing.ModalClose,
		Failsafe:     cfg.Timing.Failsafe,
		Retry:        retry.Policy{Attempts: cfg.Timing.RetryAttempts, Interval: cfg.Timing.RetryInterval},
		ReadyTimeout: cfg.Widget.ReadyTimeout,
	}
	if len(cfg.Timing.Settle) > 0 {
		t.Settle = make(map[format.Tag]time.Duration, len(cfg.Timing.Settle))
		for tag, d := range cfg.Timing.Settle {
			t.Settle[format.Tag(tag)] = d
		}
	}
	return t
}

// ParamsFrom builds Setup parameters from the file configuration.
func ParamsFrom(cfg *Config) Params {
	w := cfg.Widget
	p := Params{
		Format:       format.Tag(cfg.Page.Format),
		BootstrapURL: w.BootstrapURL,
		Widget: widget.Config{
			ClientID: w.ClientID,
			SSOToken: w.SSOToken,
			Locale:   w.Locale,
		},
		ActivityID: cfg.Completion.ActivityID,
		Learner: progress.Learner{
			Enrolled:  cfg.Completion.Enrolled,
			HasToken:  w.SSOToken != "",
			Moderator: cfg.Completion.Moderator,
		},
	}
	if w.DeploymentDomain != "" {
		p.Widget.Backend = &widget.Backend{Domain: w.DeploymentDomain}
	}
	if w.Group.ID != "" {
		p.Widget.Group = &widget.Group{ID: w.Group.ID, Title: w.Group.Title, Description: w.Group.Description}
	}
	c := cfg.Completion
	if c.Enabled {
		p.Requirements = &progress.Requirements{
			Enabled:   true,
			TotalView: c.TotalView,
			Comments:  c.Comments,
			Replies:   c.Replies,
		}
	}
	return p
}
