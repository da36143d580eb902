package config

import (
	"fmt"
	"math"

	"github.com/fathomsearch/fathom/pkg/models"
)

// Validate checks configuration consistency. Called once by Initialize;
// a validation failure is a startup failure.
func Validate(cfg *Config) error {
	if cfg.Server == nil || cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if cfg.SLA == nil {
		return fmt.Errorf("sla configuration is nil")
	}
	for _, mode := range []models.Mode{models.ModeSimple, models.ModeTechnical, models.ModeResearch, models.ModeMultimedia} {
		deadline, ok := cfg.SLA.ModeDeadlines[mode]
		if !ok || deadline <= 0 {
			return fmt.Errorf("mode %s: missing or non-positive deadline", mode)
		}
		if deadline <= cfg.SLA.ReserveFloor {
			return fmt.Errorf("mode %s: deadline %v must exceed reserve floor %v", mode, deadline, cfg.SLA.ReserveFloor)
		}
		if _, ok := cfg.SLA.LaneProfiles[mode]; !ok {
			return fmt.Errorf("mode %s: missing lane budget profile", mode)
		}
		if synth, ok := cfg.SLA.SynthesisBudgets[mode]; !ok || synth <= 0 {
			return fmt.Errorf("mode %s: missing or non-positive synthesis budget", mode)
		}
	}
	if cfg.SLA.ReserveFloor <= 0 {
		return fmt.Errorf("reserve_floor must be positive")
	}
	if cfg.SLA.PreflightBudget <= 0 {
		return fmt.Errorf("preflight_budget must be positive")
	}

	for id, s := range cfg.Lanes {
		if id != models.LanePreflight && !knownRetrievalLane(id) {
			return fmt.Errorf("unknown lane %q in configuration", id)
		}
		if s.MaxRetries < 0 || s.MaxRetries > 2 {
			return fmt.Errorf("lane %s: max_retries must be between 0 and 2", id)
		}
		if s.RateLimitRPS < 0 {
			return fmt.Errorf("lane %s: rate_limit_rps must not be negative", id)
		}
	}

	if cfg.Fusion.RRFK <= 0 {
		return fmt.Errorf("rrf_k must be positive")
	}
	weightSum := cfg.Fusion.WeightRRF + cfg.Fusion.WeightAuthority + cfg.Fusion.WeightQuality + cfg.Fusion.WeightLength
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("ranking weights must sum to 1.0, got %.4f", weightSum)
	}
	for domain, score := range cfg.Fusion.Authority {
		if score < 0 || score > 1 {
			return fmt.Errorf("authority score for %s must be within [0,1], got %.2f", domain, score)
		}
	}

	if cfg.Citation.SimThreshold <= 0 || cfg.Citation.SimThreshold > 1 {
		return fmt.Errorf("citation sim_threshold must be within (0,1], got %.2f", cfg.Citation.SimThreshold)
	}
	if cfg.Citation.TopK < 1 {
		return fmt.Errorf("citation top_k must be at least 1")
	}

	if cfg.Stream.TTFTTarget <= 0 {
		return fmt.Errorf("ttft_target must be positive")
	}
	if cfg.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if cfg.Stream.BufferSize < 1 {
		return fmt.Errorf("stream buffer_size must be at least 1")
	}

	if cfg.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit retention_days must be at least 1")
	}
	return nil
}

func knownRetrievalLane(id models.LaneID) bool {
	for _, l := range models.RetrievalLanes {
		if l == id {
			return true
		}
	}
	return false
}
