package vision

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the vision call policy. The model endpoint itself is a
// go-agents AgentConfig held at the root of the service configuration.
type Config struct {
	ClassifyTimeout    string `toml:"classify_timeout"`
	ConcernsTimeout    string `toml:"concerns_timeout"`
	MaxRetries         int    `toml:"max_retries"`
	InitialBackoff     string `toml:"initial_backoff"`
	MaxBackoff         string `toml:"max_backoff"`
	LowConfidenceFloor int    `toml:"low_confidence_floor"`
	ReviewThreshold    int    `toml:"review_threshold"`
	BreakerFailures    int    `toml:"breaker_failures"`
	BreakerCooldown    string `toml:"breaker_cooldown"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	ClassifyTimeout string
	ConcernsTimeout string
	MaxRetries      string
}

// ClassifyTimeoutDuration returns ClassifyTimeout as a time.Duration.
func (c *Config) ClassifyTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ClassifyTimeout)
	return d
}

// ConcernsTimeoutDuration returns ConcernsTimeout as a time.Duration.
func (c *Config) ConcernsTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConcernsTimeout)
	return d
}

// InitialBackoffDuration returns InitialBackoff as a time.Duration.
func (c *Config) InitialBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.InitialBackoff)
	return d
}

// MaxBackoffDuration returns MaxBackoff as a time.Duration.
func (c *Config) MaxBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxBackoff)
	return d
}

// BreakerCooldownDuration returns BreakerCooldown as a time.Duration.
func (c *Config) BreakerCooldownDuration() time.Duration {
	d, _ := time.ParseDuration(c.BreakerCooldown)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.ClassifyTimeout != "" {
		c.ClassifyTimeout = overlay.ClassifyTimeout
	}
	if overlay.ConcernsTimeout != "" {
		c.ConcernsTimeout = overlay.ConcernsTimeout
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
	if overlay.InitialBackoff != "" {
		c.InitialBackoff = overlay.InitialBackoff
	}
	if overlay.MaxBackoff != "" {
		c.MaxBackoff = overlay.MaxBackoff
	}
	if overlay.LowConfidenceFloor != 0 {
		c.LowConfidenceFloor = overlay.LowConfidenceFloor
	}
	if overlay.ReviewThreshold != 0 {
		c.ReviewThreshold = overlay.ReviewThreshold
	}
	if overlay.BreakerFailures != 0 {
		c.BreakerFailures = overlay.BreakerFailures
	}
	if overlay.BreakerCooldown != "" {
		c.BreakerCooldown = overlay.BreakerCooldown
	}
}

func (c *Config) loadDefaults() {
	if c.ClassifyTimeout == "" {
		c.ClassifyTimeout = "30s"
	}
	if c.ConcernsTimeout == "" {
		c.ConcernsTimeout = "60s"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == "" {
		c.InitialBackoff = "1s"
	}
	if c.MaxBackoff == "" {
		c.MaxBackoff = "10s"
	}
	if c.LowConfidenceFloor == 0 {
		c.LowConfidenceFloor = 30
	}
	if c.ReviewThreshold == 0 {
		c.ReviewThreshold = 60
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown == "" {
		c.BreakerCooldown = "30s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.ClassifyTimeout != "" {
		if v := os.Getenv(env.ClassifyTimeout); v != "" {
			c.ClassifyTimeout = v
		}
	}
	if env.ConcernsTimeout != "" {
		if v := os.Getenv(env.ConcernsTimeout); v != "" {
			c.ConcernsTimeout = v
		}
	}
	if env.MaxRetries != "" {
		if v := os.Getenv(env.MaxRetries); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxRetries = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid max_retries: %d", c.MaxRetries)
	}
	if c.LowConfidenceFloor < 0 || c.LowConfidenceFloor > 100 {
		return fmt.Errorf("invalid low_confidence_floor: %d", c.LowConfidenceFloor)
	}
	if c.ReviewThreshold < c.LowConfidenceFloor || c.ReviewThreshold > 100 {
		return fmt.Errorf("invalid review_threshold: %d", c.ReviewThreshold)
	}
	for name, v := range map[string]string{
		"classify_timeout": c.ClassifyTimeout,
		"concerns_timeout": c.ConcernsTimeout,
		"initial_backoff":  c.InitialBackoff,
		"max_backoff":      c.MaxBackoff,
		"breaker_cooldown": c.BreakerCooldown,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	return nil
}
