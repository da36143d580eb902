package config

import (
	"time"

	"github.com/fathomsearch/fathom/pkg/models"
)

// Default returns the built-in configuration. Env and file overrides are
// applied on top of this by Initialize.
func Default() *Config {
	return &Config{
		Server: &ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 15 * time.Second,
		},
		SLA:      DefaultSLAConfig(),
		Lanes:    DefaultLaneSettings(),
		Fusion:   DefaultFusionConfig(),
		Citation: DefaultCitationConfig(),
		Stream:   DefaultStreamConfig(),
		Audit: &AuditConfig{
			RetentionDays: 90,
			SweepInterval: 1 * time.Hour,
		},
	}
}

// DefaultSLAConfig returns the mode deadline table and per-lane budget
// profiles.
func DefaultSLAConfig() *SLAConfig {
	return &SLAConfig{
		ModeDeadlines: map[models.Mode]time.Duration{
			models.ModeSimple:     5000 * time.Millisecond,
			models.ModeTechnical:  7000 * time.Millisecond,
			models.ModeResearch:   10000 * time.Millisecond,
			models.ModeMultimedia: 10000 * time.Millisecond,
		},
		LaneProfiles: map[models.Mode]map[models.LaneID]time.Duration{
			models.ModeSimple: {
				models.LaneWeb:     1000 * time.Millisecond,
				models.LaneVector:  1000 * time.Millisecond,
				models.LaneKG:      1000 * time.Millisecond,
				models.LaneKeyword: 500 * time.Millisecond,
				models.LaneNews:    300 * time.Millisecond,
				models.LaneMarkets: 300 * time.Millisecond,
			},
			models.ModeTechnical: {
				models.LaneWeb:     1500 * time.Millisecond,
				models.LaneVector:  1500 * time.Millisecond,
				models.LaneKG:      1500 * time.Millisecond,
				models.LaneKeyword: 750 * time.Millisecond,
				models.LaneNews:    500 * time.Millisecond,
				models.LaneMarkets: 500 * time.Millisecond,
			},
			models.ModeResearch: {
				models.LaneWeb:     2000 * time.Millisecond,
				models.LaneVector:  2000 * time.Millisecond,
				models.LaneKG:      2000 * time.Millisecond,
				models.LaneKeyword: 1000 * time.Millisecond,
				models.LaneNews:    800 * time.Millisecond,
				models.LaneMarkets: 800 * time.Millisecond,
			},
			models.ModeMultimedia: {
				models.LaneWeb:     2000 * time.Millisecond,
				models.LaneVector:  2000 * time.Millisecond,
				models.LaneKG:      2000 * time.Millisecond,
				models.LaneKeyword: 1000 * time.Millisecond,
				models.LaneNews:    800 * time.Millisecond,
				models.LaneMarkets: 800 * time.Millisecond,
			},
		},
		SynthesisBudgets: map[models.Mode]time.Duration{
			models.ModeSimple:     1000 * time.Millisecond,
			models.ModeTechnical:  1500 * time.Millisecond,
			models.ModeResearch:   2000 * time.Millisecond,
			models.ModeMultimedia: 2000 * time.Millisecond,
		},
		ReserveFloor:    500 * time.Millisecond,
		PreflightBudget: 500 * time.Millisecond,
	}
}

// DefaultLaneSettings enables all retrieval lanes with polite provider
// rate limits and bounded retries.
func DefaultLaneSettings() map[models.LaneID]*LaneSettings {
	settings := make(map[models.LaneID]*LaneSettings, len(models.RetrievalLanes)+1)
	for _, id := range models.RetrievalLanes {
		settings[id] = &LaneSettings{
			Enabled:      true,
			RateLimitRPS: 10,
			RateBurst:    20,
			MaxRetries:   2,
		}
	}
	settings[models.LanePreflight] = &LaneSettings{
		Enabled:      true,
		RateLimitRPS: 10,
		RateBurst:    10,
		MaxRetries:   0,
	}
	return settings
}

// DefaultFusionConfig returns the fusion constants.
func DefaultFusionConfig() *FusionConfig {
	return &FusionConfig{
		RRFK:              60,
		DomainBoost:       0.10,
		RecencyBoostDay:   0.05,
		RecencyBoostWeek:  0.025,
		RecencyBoostMonth: 0.01,
		TitleJaccard:      0.8,
		WeightRRF:         0.70,
		WeightAuthority:   0.15,
		WeightQuality:     0.10,
		WeightLength:      0.05,
		Authority: map[string]float64{
			"wikipedia.org": 0.90,
			"nature.com":    0.95,
			"arxiv.org":     0.85,
			"reuters.com":   0.85,
			"nih.gov":       0.90,
			"github.com":    0.70,
		},
	}
}

// DefaultCitationConfig returns the citation alignment knobs.
func DefaultCitationConfig() *CitationConfig {
	return &CitationConfig{
		SimThreshold: 0.7,
		TopK:         3,
	}
}

// DefaultStreamConfig returns the streaming envelope settings.
func DefaultStreamConfig() *StreamConfig {
	return &StreamConfig{
		TTFTTarget:        1500 * time.Millisecond,
		HeartbeatInterval: 10 * time.Second,
		BufferSize:        64,
		CancelGrace:       200 * time.Millisecond,
	}
}
