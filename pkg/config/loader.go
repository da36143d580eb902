package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fathomsearch/fathom/pkg/models"
)

// fileConfig is the fathom.yaml structure. All sections are optional;
// anything omitted keeps its built-in default. Durations are expressed
// in milliseconds in the file.
type fileConfig struct {
	Server *struct {
		Port              string `yaml:"port"`
		ShutdownTimeoutMS int64  `yaml:"shutdown_timeout_ms"`
	} `yaml:"server"`
	SLA *struct {
		ModeDeadlinesMS map[string]int64            `yaml:"mode_deadlines_ms"`
		LaneProfilesMS  map[string]map[string]int64 `yaml:"lane_profiles_ms"`
		SynthesisMS     map[string]int64            `yaml:"synthesis_ms"`
		ReserveFloorMS  int64                       `yaml:"reserve_floor_ms"`
		PreflightMS     int64                       `yaml:"preflight_ms"`
	} `yaml:"sla"`
	Lanes map[string]*struct {
		Enabled      *bool   `yaml:"enabled"`
		BudgetMS     int64   `yaml:"budget_ms"`
		RateLimitRPS float64 `yaml:"rate_limit_rps"`
		RateBurst    int     `yaml:"rate_burst"`
		MaxRetries   *int    `yaml:"max_retries"`
	} `yaml:"lanes"`
	Fusion *struct {
		RRFK      int                `yaml:"rrf_k"`
		Authority map[string]float64 `yaml:"authority"`
	} `yaml:"fusion"`
	Audit *struct {
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"audit"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Merge optional fathom.yaml from configDir (env vars expanded)
//  3. Apply environment variable overrides
//  4. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg := Default()
	cfg.configDir = configDir

	if configDir != "" {
		path := filepath.Join(configDir, "fathom.yaml")
		if err := mergeFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"enabled_lanes", len(cfg.EnabledLanes()),
		"reserve_floor", cfg.SLA.ReserveFloor,
		"retention_days", cfg.Audit.RetentionDays)
	return cfg, nil
}

// mergeFile merges an optional YAML config file into cfg. A missing file
// is not an error.
func mergeFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No config file found, using defaults", "path", path)
			return nil
		}
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &fc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	if fc.Server != nil {
		if fc.Server.Port != "" {
			cfg.Server.Port = fc.Server.Port
		}
		if fc.Server.ShutdownTimeoutMS > 0 {
			cfg.Server.ShutdownTimeout = time.Duration(fc.Server.ShutdownTimeoutMS) * time.Millisecond
		}
	}
	if fc.SLA != nil {
		for mode, ms := range fc.SLA.ModeDeadlinesMS {
			cfg.SLA.ModeDeadlines[models.Mode(mode)] = time.Duration(ms) * time.Millisecond
		}
		for mode, lanes := range fc.SLA.LaneProfilesMS {
			profile, ok := cfg.SLA.LaneProfiles[models.Mode(mode)]
			if !ok {
				profile = make(map[models.LaneID]time.Duration)
				cfg.SLA.LaneProfiles[models.Mode(mode)] = profile
			}
			for lane, ms := range lanes {
				profile[models.LaneID(lane)] = time.Duration(ms) * time.Millisecond
			}
		}
		for mode, ms := range fc.SLA.SynthesisMS {
			cfg.SLA.SynthesisBudgets[models.Mode(mode)] = time.Duration(ms) * time.Millisecond
		}
		if fc.SLA.ReserveFloorMS > 0 {
			cfg.SLA.ReserveFloor = time.Duration(fc.SLA.ReserveFloorMS) * time.Millisecond
		}
		if fc.SLA.PreflightMS > 0 {
			cfg.SLA.PreflightBudget = time.Duration(fc.SLA.PreflightMS) * time.Millisecond
		}
	}
	for lane, ls := range fc.Lanes {
		settings, ok := cfg.Lanes[models.LaneID(lane)]
		if !ok {
			continue // unknown lanes are rejected later by Validate
		}
		if ls.Enabled != nil {
			settings.Enabled = *ls.Enabled
		}
		if ls.BudgetMS > 0 {
			settings.BudgetOverride = time.Duration(ls.BudgetMS) * time.Millisecond
		}
		if ls.RateLimitRPS > 0 {
			settings.RateLimitRPS = ls.RateLimitRPS
		}
		if ls.RateBurst > 0 {
			settings.RateBurst = ls.RateBurst
		}
		if ls.MaxRetries != nil {
			settings.MaxRetries = *ls.MaxRetries
		}
	}
	if fc.Fusion != nil {
		if fc.Fusion.RRFK > 0 {
			cfg.Fusion.RRFK = fc.Fusion.RRFK
		}
		for domain, score := range fc.Fusion.Authority {
			cfg.Fusion.Authority[domain] = score
		}
	}
	if fc.Audit != nil && fc.Audit.RetentionDays > 0 {
		cfg.Audit.RetentionDays = fc.Audit.RetentionDays
	}

	slog.Info("Merged config file", "path", path)
	return nil
}

// applyEnvOverrides applies the documented environment variables on top
// of file and default configuration.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HTTP_PORT"); v != "" {
		cfg.Server.Port = v
	}

	// SLA_MODE_DEADLINES_MS="simple=5000,technical=7000,..."
	if v := os.Getenv("SLA_MODE_DEADLINES_MS"); v != "" {
		for _, pair := range strings.Split(v, ",") {
			mode, ms, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				return fmt.Errorf("SLA_MODE_DEADLINES_MS: malformed entry %q", pair)
			}
			n, err := strconv.ParseInt(ms, 10, 64)
			if err != nil || n <= 0 {
				return fmt.Errorf("SLA_MODE_DEADLINES_MS: invalid deadline %q", ms)
			}
			cfg.SLA.ModeDeadlines[models.Mode(mode)] = time.Duration(n) * time.Millisecond
		}
	}

	// Per-lane toggles and budget overrides:
	// LANE_ENABLED_WEB=false, LANE_BUDGET_MS_VECTOR=1200, ...
	allLanes := append(append([]models.LaneID{}, models.RetrievalLanes...), models.LanePreflight)
	for _, id := range allLanes {
		suffix := strings.ToUpper(string(id))
		if v := os.Getenv("LANE_ENABLED_" + suffix); v != "" {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("LANE_ENABLED_%s: %w", suffix, err)
			}
			cfg.Lanes[id].Enabled = enabled
		}
		if v := os.Getenv("LANE_BUDGET_MS_" + suffix); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				return fmt.Errorf("LANE_BUDGET_MS_%s: invalid budget %q", suffix, v)
			}
			cfg.Lanes[id].BudgetOverride = time.Duration(n) * time.Millisecond
		}
	}

	if err := envInt("RRF_K", &cfg.Fusion.RRFK); err != nil {
		return err
	}
	if err := envFloat("DOMAIN_BOOST", &cfg.Fusion.DomainBoost); err != nil {
		return err
	}
	if err := envFloat("RECENCY_BOOST", &cfg.Fusion.RecencyBoostDay); err != nil {
		return err
	}
	if err := envFloat("CITATION_SIM_THRESHOLD", &cfg.Citation.SimThreshold); err != nil {
		return err
	}
	if err := envInt("CITATION_TOP_K", &cfg.Citation.TopK); err != nil {
		return err
	}
	if err := envDurationMS("TTFT_TARGET_MS", &cfg.Stream.TTFTTarget); err != nil {
		return err
	}
	if err := envDurationMS("HEARTBEAT_INTERVAL_MS", &cfg.Stream.HeartbeatInterval); err != nil {
		return err
	}
	if err := envInt("AUDIT_RETENTION_DAYS", &cfg.Audit.RetentionDays); err != nil {
		return err
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envDurationMS(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s: invalid millisecond value %q", key, v)
	}
	*dst = time.Duration(n) * time.Millisecond
	return nil
}
