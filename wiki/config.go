package wiki

import (
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds connection and pacing settings for one remote wiki.
type Config struct {
	// BaseURL is the wiki API endpoint (e.g. https://wiki.example.com/w/api.php)
	BaseURL string `env:"WIKI_API_URL"`

	// Username and Password are bot credentials. They are only ever supplied
	// by the caller; nothing in this package embeds them.
	Username string `env:"WIKI_USERNAME"`
	Password string `env:"WIKI_PASSWORD"`

	// UserAgent identifies the client to the wiki.
	UserAgent string `env:"WIKI_USER_AGENT,default=mwclient/1.0 (https://github.com/olavsk/mwclient)"`

	// Timeout applies to every API request.
	Timeout time.Duration `env:"WIKI_TIMEOUT,default=30s"`

	// Throttle is the minimum delay between consecutive mutating calls.
	// Values below one second disable throttling.
	Throttle time.Duration `env:"WIKI_THROTTLE,default=10s"`

	// MaxLag is the replication-lag threshold in seconds. Zero or negative
	// disables the lag check.
	MaxLag int `env:"WIKI_MAXLAG,default=5"`

	// StatusInterval is how many mutating calls pass between identity
	// re-checks.
	StatusInterval int `env:"WIKI_STATUS_INTERVAL,default=100"`

	// DisableGZIP turns off compressed transfer encoding. Compression is on
	// by default on both the env and the direct construction path.
	DisableGZIP bool `env:"WIKI_DISABLE_GZIP,default=false"`
}

// LoadConfig populates a Config from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, &ValidationError{Field: "WIKI_API_URL", Message: "endpoint is required"}
	}
	return &cfg, nil
}

// HasCredentials returns true if authentication credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// withDefaults fills zero fields so directly-constructed configs behave like
// env-loaded ones. Throttle and MaxLag stay at zero: pacing is opt-in when
// the config is built by hand.
func (c *Config) withDefaults() *Config {
	out := *c
	if out.UserAgent == "" {
		out.UserAgent = "mwclient/1.0 (https://github.com/olavsk/mwclient)"
	}
	if out.Timeout == 0 {
		out.Timeout = 30 * time.Second
	}
	if out.StatusInterval == 0 {
		out.StatusInterval = 100
	}
	return &out
}
