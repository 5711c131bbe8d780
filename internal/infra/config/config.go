// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/quillduel/quillduel/internal/domain/match"
)

// Config represents the coordinator configuration.
type Config struct {
	Session    SessionConfig    `yaml:"session"`
	Transition TransitionConfig `yaml:"transition"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	AI         AIConfig         `yaml:"ai"`
	Tiers      TierTable        `yaml:"tiers"`
}

// SessionConfig holds the timing constants of the session lifecycle.
type SessionConfig struct {
	HeartbeatIntervalSec int            `yaml:"heartbeat_interval_sec" default:"5" validate:"gte=1"`
	StaleThresholdSec    int            `yaml:"stale_threshold_sec" default:"15" validate:"gte=1"`
	AbandonThresholdSec  int            `yaml:"abandon_threshold_sec" default:"300" validate:"gte=1"`
	DefaultDurations     PhaseDurations `yaml:"default_durations"`
}

// PhaseDurations holds per-phase durations used when no rank is available.
type PhaseDurations struct {
	Phase1Sec int `yaml:"phase1_sec" json:"phase1_sec" default:"240" validate:"gte=1"`
	Phase2Sec int `yaml:"phase2_sec" json:"phase2_sec" default:"180" validate:"gte=1"`
	Phase3Sec int `yaml:"phase3_sec" json:"phase3_sec" default:"180" validate:"gte=1"`
}

// TransitionConfig configures the phase-transition worker pool.
type TransitionConfig struct {
	Workers int `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
}

// SweeperConfig configures the stale-connection sweeper.
type SweeperConfig struct {
	IntervalSec int `yaml:"interval_sec" default:"60" validate:"gte=1"`
}

// AIConfig configures the external AI-submission collaborator.
type AIConfig struct {
	MaxAttempts     int     `yaml:"max_attempts" default:"20" validate:"gte=1"`
	PollIntervalSec int     `yaml:"poll_interval_sec" default:"5" validate:"gte=1"`
	FallbackEnabled bool    `yaml:"fallback_enabled" default:"true"`
	FallbackScore   float64 `yaml:"fallback_score" default:"70" validate:"gte=0,lte=100"`
}

// TierDurations holds the phase durations for one rank tier, in seconds.
type TierDurations struct {
	Phase2Sec int `yaml:"phase2_sec" json:"phase2_sec" validate:"gte=1"`
	Phase3Sec int `yaml:"phase3_sec" json:"phase3_sec" validate:"gte=1"`
}

// TierTable maps rank tiers to phase durations.
type TierTable struct {
	Bronze   TierDurations `yaml:"bronze" default:"{\"phase2_sec\": 150, \"phase3_sec\": 150}"`
	Silver   TierDurations `yaml:"silver" default:"{\"phase2_sec\": 180, \"phase3_sec\": 180}"`
	Gold     TierDurations `yaml:"gold" default:"{\"phase2_sec\": 210, \"phase3_sec\": 210}"`
	Platinum TierDurations `yaml:"platinum" default:"{\"phase2_sec\": 240, \"phase3_sec\": 240}"`
	Diamond  TierDurations `yaml:"diamond" default:"{\"phase2_sec\": 240, \"phase3_sec\": 240}"`
	Master   TierDurations `yaml:"master" default:"{\"phase2_sec\": 240, \"phase3_sec\": 240}"`
}

// Load loads configuration from a YAML file. Environment variables take
// precedence over file values for operational tuning knobs.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns a configuration with every field at its default value.
func Default() (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	return &cfg, nil
}

// overrideFromEnv overrides tuning knobs with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("QUILLDUEL_SWEEP_INTERVAL_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid QUILLDUEL_SWEEP_INTERVAL_SEC")
		}
		c.Sweeper.IntervalSec = n
	}
	if v := os.Getenv("QUILLDUEL_TRANSITION_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid QUILLDUEL_TRANSITION_WORKERS")
		}
		c.Transition.Workers = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return c.validateTimingConsistency()
}

// validateTimingConsistency checks that the staleness threshold leaves
// room for at least one missed heartbeat.
func (c *Config) validateTimingConsistency() error {
	if c.Session.StaleThresholdSec <= c.Session.HeartbeatIntervalSec {
		return errors.Newf("stale_threshold_sec (%d) must exceed heartbeat_interval_sec (%d)",
			c.Session.StaleThresholdSec, c.Session.HeartbeatIntervalSec)
	}
	return nil
}

// HeartbeatInterval returns the heartbeat period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Session.HeartbeatIntervalSec) * time.Second
}

// StaleThreshold returns how long a heartbeat may lapse before a player
// counts as disconnected.
func (c *Config) StaleThreshold() time.Duration {
	return time.Duration(c.Session.StaleThresholdSec) * time.Second
}

// AbandonThreshold returns the minimum session age before abandonment.
func (c *Config) AbandonThreshold() time.Duration {
	return time.Duration(c.Session.AbandonThresholdSec) * time.Second
}

// SweepInterval returns the sweeper period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.IntervalSec) * time.Second
}

// AIPollInterval returns the AI-submission polling period.
func (c *Config) AIPollInterval() time.Duration {
	return time.Duration(c.AI.PollIntervalSec) * time.Second
}

// TierDurationsFor returns the duration row for a tier.
func (c *Config) TierDurationsFor(t match.Tier) TierDurations {
	switch t {
	case match.TierBronze:
		return c.Tiers.Bronze
	case match.TierGold:
		return c.Tiers.Gold
	case match.TierPlatinum:
		return c.Tiers.Platinum
	case match.TierDiamond:
		return c.Tiers.Diamond
	case match.TierMaster:
		return c.Tiers.Master
	default:
		return c.Tiers.Silver
	}
}

// DefaultDurationSec returns the rank-less default duration for a phase.
func (c *Config) DefaultDurationSec(phase int) int {
	switch phase {
	case 1:
		return c.Session.DefaultDurations.Phase1Sec
	case 2:
		return c.Session.DefaultDurations.Phase2Sec
	default:
		return c.Session.DefaultDurations.Phase3Sec
	}
}

// PhaseDurationSec returns the duration for a phase given the
// representative rank. An empty rank falls back to the defaults table.
func (c *Config) PhaseDurationSec(rank string, phase int) int {
	if rank == "" || phase <= 1 {
		return c.DefaultDurationSec(phase)
	}
	row := c.TierDurationsFor(match.TierOf(rank))
	if phase == 2 {
		return row.Phase2Sec
	}
	return row.Phase3Sec
}
