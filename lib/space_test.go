package snapring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSpace(t *testing.T) {
	tests := []struct {
		name            string
		free            uint64
		lastCycleSize   int64
		reservePercent  int
		initialEstimate int64
		wantRequired    int64
		wantSufficient  bool
	}{
		{
			name:           "last cycle plus reserve",
			free:           200,
			lastCycleSize:  100,
			reservePercent: 50,
			wantRequired:   150,
			wantSufficient: true,
		},
		{
			name:           "exactly enough",
			free:           150,
			lastCycleSize:  100,
			reservePercent: 50,
			wantRequired:   150,
			wantSufficient: true,
		},
		{
			name:           "one byte short",
			free:           149,
			lastCycleSize:  100,
			reservePercent: 50,
			wantRequired:   150,
			wantSufficient: false,
		},
		{
			name:            "no completed cycle falls back to estimate",
			free:            400,
			lastCycleSize:   0,
			reservePercent:  50,
			initialEstimate: 500,
			wantRequired:    500,
			wantSufficient:  false,
		},
		{
			name:           "zero reserve",
			free:           100,
			lastCycleSize:  100,
			reservePercent: 0,
			wantRequired:   100,
			wantSufficient: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			info := ComputeSpace(1000, test.free, 1000-test.free,
				test.lastCycleSize, test.reservePercent, test.initialEstimate)
			assert.Equal(t, test.wantRequired, info.RequiredBytes)
			assert.Equal(t, test.wantSufficient, info.Sufficient)
			assert.Equal(t, test.free, info.FreeBytes)
			assert.Equal(t, test.lastCycleSize, info.LastCycleSizeBytes)
		})
	}
}

func TestMeasureSpaceFreshDiskEstimatesFromSourceUsedSpace(t *testing.T) {
	ring, disk, _ := newTestRing(t)
	stubUsage(t, 1000, 400)

	info, err := ring.MeasureSpace(disk, NewDiskState())
	require.NoError(t, err)
	assert.Equal(t, int64(600), info.RequiredBytes, "source used space stands in for the first cycle")
	assert.False(t, info.Sufficient)
}

func TestMeasureSpaceUsesLastCompleteCycle(t *testing.T) {
	ring, disk, _ := newTestRing(t)
	stubUsage(t, 1000, 400)

	state := NewDiskState()
	state.Cycles = []*Cycle{
		{FullSizeBytes: 50, Complete: true},
		{FullSizeBytes: 100, Complete: true, Differentials: []*DifferentialEntry{{SizeBytes: 20}}},
		{FullSizeBytes: 999}, // in-progress, must not drive the estimate
	}

	info, err := ring.MeasureSpace(disk, state)
	require.NoError(t, err)
	assert.Equal(t, int64(120), info.LastCycleSizeBytes, "newest complete cycle, differentials included")
	assert.Equal(t, int64(180), info.RequiredBytes)
	assert.True(t, info.Sufficient)
}
