package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomsearch/fathom/pkg/models"
)

func TestComputeBudgetSimpleMode(t *testing.T) {
	cfg := Default()
	b := ComputeBudget(cfg, models.ModeSimple, models.Constraints{})

	assert.Equal(t, 5*time.Second, b.Global)
	assert.Equal(t, 1000*time.Millisecond, b.PerLane[models.LaneWeb])
	assert.Equal(t, 500*time.Millisecond, b.PerLane[models.LaneKeyword])
	assert.Equal(t, 300*time.Millisecond, b.PerLane[models.LaneNews])
	assert.Equal(t, 1000*time.Millisecond, b.Synthesis)
	assert.Equal(t, 500*time.Millisecond, b.Reserve)
	assert.Equal(t, 10, b.ResultCap)
}

func TestComputeBudgetCostCeiling(t *testing.T) {
	cfg := Default()

	low := ComputeBudget(cfg, models.ModeResearch, models.Constraints{CostCeiling: models.CostLow})
	assert.Equal(t, 1000*time.Millisecond, low.PerLane[models.LaneWeb])
	assert.Equal(t, 1000*time.Millisecond, low.Synthesis)

	high := ComputeBudget(cfg, models.ModeResearch, models.Constraints{CostCeiling: models.CostHigh})
	// 2x would be 4000ms web + 4000ms synthesis = 8000 < 10000-500, no clamp.
	assert.Equal(t, 4000*time.Millisecond, high.PerLane[models.LaneWeb])
	assert.Equal(t, 4000*time.Millisecond, high.Synthesis)
}

func TestComputeBudgetReserveFloor(t *testing.T) {
	cfg := Default()
	// Shrink the simple deadline so a high cost ceiling must be clamped.
	cfg.SLA.ModeDeadlines[models.ModeSimple] = 3 * time.Second

	b := ComputeBudget(cfg, models.ModeSimple, models.Constraints{CostCeiling: models.CostHigh})

	// Window + synthesis must fit within global - reserve.
	require.NotEmpty(t, b.PerLane)
	assert.LessOrEqual(t, b.RetrievalWindow()+b.Synthesis, b.Global-b.Reserve)
	assert.Equal(t, 500*time.Millisecond, b.Reserve)
}

func TestComputeBudgetSkipsDisabledLanes(t *testing.T) {
	cfg := Default()
	cfg.Lanes[models.LaneMarkets].Enabled = false

	b := ComputeBudget(cfg, models.ModeSimple, models.Constraints{})

	_, ok := b.PerLane[models.LaneMarkets]
	assert.False(t, ok)
	assert.Contains(t, b.PerLane, models.LaneWeb)
}

func TestComputeBudgetDepthCaps(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name    string
		mode    models.Mode
		depth   models.Depth
		wantCap int
	}{
		{"explicit simple depth", models.ModeResearch, models.DepthSimple, 10},
		{"explicit research depth", models.ModeSimple, models.DepthResearch, 50},
		{"default from technical mode", models.ModeTechnical, "", 20},
		{"default from multimedia mode", models.ModeMultimedia, "", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ComputeBudget(cfg, tt.mode, models.Constraints{Depth: tt.depth})
			assert.Equal(t, tt.wantCap, b.ResultCap)
		})
	}
}

func TestComputeBudgetLaneOverride(t *testing.T) {
	cfg := Default()
	cfg.Lanes[models.LaneWeb].BudgetOverride = 1234 * time.Millisecond

	b := ComputeBudget(cfg, models.ModeSimple, models.Constraints{})
	assert.Equal(t, 1234*time.Millisecond, b.PerLane[models.LaneWeb])
}

func TestBypassPreflight(t *testing.T) {
	cfg := Default()

	// Research mode: plenty of headroom, pre-flight runs.
	research := ComputeBudget(cfg, models.ModeResearch, models.Constraints{})
	assert.False(t, BypassPreflight(cfg, research))

	// Squeeze the deadline so the pre-flight budget starves the lanes.
	cfg.SLA.ModeDeadlines[models.ModeSimple] = 1800 * time.Millisecond
	squeezed := ComputeBudget(cfg, models.ModeSimple, models.Constraints{})
	assert.True(t, BypassPreflight(cfg, squeezed))
}

func TestBudgetSnapshotRoundMilliseconds(t *testing.T) {
	cfg := Default()
	b := ComputeBudget(cfg, models.ModeTechnical, models.Constraints{})

	snap := b.Snapshot()
	assert.Equal(t, int64(7000), snap.GlobalMS)
	assert.Equal(t, int64(1500), snap.PerLaneMS[models.LaneWeb])
	assert.Equal(t, int64(500), snap.ReserveMS)
	assert.Equal(t, b.ResultCap, snap.ResultCap)
}
