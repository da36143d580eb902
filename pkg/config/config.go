// Package config loads, validates, and exposes the process-wide
// configuration. The Config returned by Initialize is immutable after
// startup: components receive it by pointer and never write to it.
package config

import (
	"time"

	"github.com/fathomsearch/fathom/pkg/models"
)

// Config is the umbrella configuration object returned by Initialize and
// passed through the application. No hidden reads, no mutation after init.
type Config struct {
	configDir string

	Server   *ServerConfig
	SLA      *SLAConfig
	Lanes    map[models.LaneID]*LaneSettings
	Fusion   *FusionConfig
	Citation *CitationConfig
	Stream   *StreamConfig
	Audit    *AuditConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SLAConfig holds the mode deadline table and per-lane budget profiles.
type SLAConfig struct {
	// ModeDeadlines maps each mode to its global deadline.
	ModeDeadlines map[models.Mode]time.Duration `yaml:"mode_deadlines"`

	// LaneProfiles maps each mode to its per-lane budget table.
	LaneProfiles map[models.Mode]map[models.LaneID]time.Duration `yaml:"lane_profiles"`

	// SynthesisBudgets maps each mode to the LLM synthesis budget.
	SynthesisBudgets map[models.Mode]time.Duration `yaml:"synthesis_budgets"`

	// ReserveFloor is the minimum orchestrator reserve carved out of the
	// global deadline for fusion, alignment, and stream completion.
	ReserveFloor time.Duration `yaml:"reserve_floor"`

	// PreflightBudget is the fixed budget of the pre-flight refinement lane.
	PreflightBudget time.Duration `yaml:"preflight_budget"`
}

// LaneSettings controls a single lane.
type LaneSettings struct {
	// Enabled gates the lane. Disabled lanes report status "disabled".
	Enabled bool `yaml:"enabled"`

	// BudgetOverride replaces the profile budget for this lane when > 0.
	BudgetOverride time.Duration `yaml:"budget_override"`

	// RateLimitRPS is the sustained request rate allowed against the
	// lane's provider. Zero disables rate limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`

	// RateBurst is the token-bucket burst size.
	RateBurst int `yaml:"rate_burst"`

	// MaxRetries bounds retries inside the lane (0–2).
	MaxRetries int `yaml:"max_retries"`
}

// FusionConfig holds fusion, boost, and ranking knobs.
type FusionConfig struct {
	// RRFK is the k constant of reciprocal rank fusion.
	RRFK int `yaml:"rrf_k"`

	// DomainBoost is added to the first document seen from a domain;
	// the second receives half of it, subsequent ones DomainBoost/(n+1).
	DomainBoost float64 `yaml:"domain_boost"`

	// Recency boosts by publication age.
	RecencyBoostDay   float64 `yaml:"recency_boost_day"`
	RecencyBoostWeek  float64 `yaml:"recency_boost_week"`
	RecencyBoostMonth float64 `yaml:"recency_boost_month"`

	// TitleJaccard is the fuzzy-title dedup threshold.
	TitleJaccard float64 `yaml:"title_jaccard"`

	// Final ranking weights. Must sum to 1.0.
	WeightRRF       float64 `yaml:"weight_rrf"`
	WeightAuthority float64 `yaml:"weight_authority"`
	WeightQuality   float64 `yaml:"weight_quality"`
	WeightLength    float64 `yaml:"weight_length"`

	// Authority maps domains to a bounded [0,1] authority score.
	Authority map[string]float64 `yaml:"authority"`
}

// CitationConfig holds citation alignment knobs.
type CitationConfig struct {
	// SimThreshold is the minimum passage similarity for a citation.
	SimThreshold float64 `yaml:"sim_threshold"`

	// TopK is the number of supporting passages kept per sentence.
	TopK int `yaml:"top_k"`
}

// StreamConfig holds streaming envelope settings.
type StreamConfig struct {
	// TTFTTarget is the time-to-first-token target.
	TTFTTarget time.Duration `yaml:"ttft_target"`

	// HeartbeatInterval is the maximum gap between emitted events; a
	// heartbeat is synthesized when no real event occurred.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// BufferSize is the outbound event channel capacity.
	BufferSize int `yaml:"buffer_size"`

	// CancelGrace is how long lanes have to observe cancellation.
	CancelGrace time.Duration `yaml:"cancel_grace"`
}

// AuditConfig holds audit sink settings.
type AuditConfig struct {
	// RetentionDays bounds audit record age; older records are swept.
	RetentionDays int `yaml:"retention_days"`

	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// LaneEnabled reports whether the given lane is enabled.
func (c *Config) LaneEnabled(id models.LaneID) bool {
	s, ok := c.Lanes[id]
	return ok && s.Enabled
}

// EnabledLanes returns the enabled retrieval lanes in stable order.
func (c *Config) EnabledLanes() []models.LaneID {
	out := make([]models.LaneID, 0, len(models.RetrievalLanes))
	for _, id := range models.RetrievalLanes {
		if c.LaneEnabled(id) {
			out = append(out, id)
		}
	}
	return out
}

// LaneSetting returns the settings for a lane, or conservative defaults
// for unknown lanes.
func (c *Config) LaneSetting(id models.LaneID) *LaneSettings {
	if s, ok := c.Lanes[id]; ok {
		return s
	}
	return &LaneSettings{Enabled: false}
}
