package snapring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceName(t *testing.T) {
	assert.Equal(t, "D", sourceName("D:"))
	assert.Equal(t, "dev_sda1", sourceName("/dev/sda1"))
	assert.Equal(t, "root", sourceName("/"))
	assert.Equal(t, "root", sourceName(""))
}

func TestCycleAccounting(t *testing.T) {
	cycle := &Cycle{
		FullImagePath: "full.sna",
		FullHashPath:  "full.hsh",
		FullSizeBytes: 100,
		Differentials: []*DifferentialEntry{
			{ImagePath: "d1.sna", SizeBytes: 10},
			{ImagePath: "d2.sna", SizeBytes: 20},
		},
	}
	assert.Equal(t, int64(130), cycle.SizeBytes())
	assert.Equal(t, []string{"full.sna", "full.hsh", "d1.sna", "d2.sna"}, cycle.Files())
}

func TestDiskStateCycles(t *testing.T) {
	state := NewDiskState()
	assert.Nil(t, state.CurrentCycle())
	assert.Nil(t, state.LastCycle())

	first := &Cycle{FullSizeBytes: 1}
	state.Cycles = append(state.Cycles, first)
	assert.Equal(t, first, state.CurrentCycle())

	state.SealCurrent()
	assert.True(t, first.Complete)
	assert.Nil(t, state.CurrentCycle(), "sealed cycle is no longer current")

	second := &Cycle{FullSizeBytes: 2}
	state.Cycles = append(state.Cycles, second)
	assert.Equal(t, second, state.CurrentCycle())
	assert.Equal(t, second, state.LastCycle())

	require.Len(t, state.CompleteCycles(), 1)

	state.RemoveCycle(first)
	require.Len(t, state.Cycles, 1)
	assert.Equal(t, second, state.Cycles[0])
	state.RemoveCycle(first) // absent, no-op
	require.Len(t, state.Cycles, 1)
}

func TestGuidance(t *testing.T) {
	assert.NotEmpty(t, Guidance(ErrNoDiskFound))
	assert.NotEmpty(t, Guidance(ErrForeignDisk))
	assert.Empty(t, Guidance(nil))
}
