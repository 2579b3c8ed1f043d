package classify

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the pipeline policy: calibration and approval weights, extra
// crisis domains and the release schedule. The self-harm hold window is fixed
// in the distress package and is not configurable.
type Config struct {
	MinCorrections  int      `toml:"min_corrections"`
	ApprovalPenalty int      `toml:"approval_penalty"`
	ApprovalBonus   int      `toml:"approval_bonus"`
	CrisisDomains   []string `toml:"crisis_domains"`
	FlagConcurrency int      `toml:"flag_concurrency"`
	DebugRecords    bool     `toml:"debug_records"`
	DescribeTimeout string   `toml:"describe_timeout"`
	ReleaseSchedule string   `toml:"release_schedule"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	MinCorrections  string
	ApprovalPenalty string
	ApprovalBonus   string
	CrisisDomains   string
	DebugRecords    string
	ReleaseSchedule string
}

// DescribeTimeoutDuration returns DescribeTimeout as a time.Duration.
func (c *Config) DescribeTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.DescribeTimeout)
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

// Merge overwrites non-zero fields from overlay. Overlay crisis domains
// are appended.
func (c *Config) Merge(overlay *Config) {
	if overlay.MinCorrections != 0 {
		c.MinCorrections = overlay.MinCorrections
	}
	if overlay.ApprovalPenalty != 0 {
		c.ApprovalPenalty = overlay.ApprovalPenalty
	}
	if overlay.ApprovalBonus != 0 {
		c.ApprovalBonus = overlay.ApprovalBonus
	}
	c.CrisisDomains = append(c.CrisisDomains, overlay.CrisisDomains...)
	if overlay.FlagConcurrency != 0 {
		c.FlagConcurrency = overlay.FlagConcurrency
	}
	if overlay.DebugRecords {
		c.DebugRecords = true
	}
	if overlay.DescribeTimeout != "" {
		c.DescribeTimeout = overlay.DescribeTimeout
	}
	if overlay.ReleaseSchedule != "" {
		c.ReleaseSchedule = overlay.ReleaseSchedule
	}
}

func (c *Config) loadDefaults() {
	if c.MinCorrections <= 0 {
		c.MinCorrections = 10
	}
	if c.ApprovalPenalty <= 0 {
		c.ApprovalPenalty = 20
	}
	if c.ApprovalBonus <= 0 {
		c.ApprovalBonus = 15
	}
	if c.FlagConcurrency <= 0 {
		c.FlagConcurrency = 4
	}
	if c.DescribeTimeout == "" {
		c.DescribeTimeout = "10s"
	}
	if c.ReleaseSchedule == "" {
		c.ReleaseSchedule = "@every 15m"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.MinCorrections != "" {
		if v := os.Getenv(env.MinCorrections); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MinCorrections = n
			}
		}
	}
	if env.ApprovalPenalty != "" {
		if v := os.Getenv(env.ApprovalPenalty); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.ApprovalPenalty = n
			}
		}
	}
	if env.ApprovalBonus != "" {
		if v := os.Getenv(env.ApprovalBonus); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.ApprovalBonus = n
			}
		}
	}
	if env.CrisisDomains != "" {
		if v := os.Getenv(env.CrisisDomains); v != "" {
			for _, host := range strings.Split(v, ",") {
				if host = strings.TrimSpace(host); host != "" {
					c.CrisisDomains = append(c.CrisisDomains, host)
				}
			}
		}
	}
	if env.DebugRecords != "" {
		if v := os.Getenv(env.DebugRecords); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.DebugRecords = b
			}
		}
	}
	if env.ReleaseSchedule != "" {
		if v := os.Getenv(env.ReleaseSchedule); v != "" {
			c.ReleaseSchedule = v
		}
	}
}

func (c *Config) validate() error {
	if c.ApprovalPenalty > 100 || c.ApprovalBonus > 100 {
		return fmt.Errorf("approval adjustments must be at most 100")
	}
	d, err := time.ParseDuration(c.DescribeTimeout)
	if err != nil {
		return fmt.Errorf("invalid describe_timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("describe_timeout must be positive")
	}
	if _, err := cron.ParseStandard(c.ReleaseSchedule); err != nil {
		return fmt.Errorf("invalid release_schedule: %w", err)
	}
	return nil
}
