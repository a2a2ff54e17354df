package snapring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSummary(t *testing.T) {
	ring, disk, _ := newTestRing(t)

	rec := NewSessionRecorder()
	logger := NewSessionLogger(rec, false)
	logger.Info("backup started")
	logger.Warn("something odd")
	logger.Error("something bad")
	ring.Recorder = rec

	start := time.Date(2026, 1, 7, 20, 0, 0, 0, time.UTC)
	res := &RunResult{
		State:      StateDone,
		Success:    true,
		Type:       BackupDifferential,
		Source:     "D:",
		TargetDir:  ring.BackupDir(disk),
		ImagePath:  "/mnt/b/D_diff_x_#02.sna",
		StartTime:  start,
		EndTime:    start.Add(95 * time.Second),
		Duration:   95 * time.Second,
		SizeBytes:  2_000_000_000,
		DiffNumber: 2,
		TotalDiffs: 2,
		Disk:       disk,
		Space:      SpaceInfo{TotalBytes: 1000, FreeBytes: 250, UsedBytes: 750},
	}

	state := completeState(100, 100)
	state.Cycles = append(state.Cycles, &Cycle{FullSizeBytes: 100})

	sum := ring.BuildSummary(res, state)

	assert.Equal(t, summaryVersion, sum.Version)
	assert.Equal(t, "testhost", sum.ComputerName)
	assert.True(t, sum.Backup.Success)
	assert.Equal(t, "differential", sum.Backup.Type)
	assert.Equal(t, 95.0, sum.Backup.DurationSeconds)
	assert.Equal(t, "1m 35s", sum.Backup.DurationHuman)
	assert.Equal(t, 2, sum.Backup.DifferentialInfo.Current)
	assert.Equal(t, 0, sum.Backup.DifferentialInfo.NextFullIn, "a full comes next")

	assert.Equal(t, "disk-01", sum.TargetDisk.DiskID)
	assert.Equal(t, 25.0, sum.Storage.FreePercent)
	assert.Equal(t, 3, sum.Storage.CyclesCount, "counted from state, in-progress included")
	assert.Equal(t, 3, sum.Storage.CyclesMax)

	assert.Equal(t, 3, sum.LogSummary.TotalEntries)
	assert.Equal(t, 1, sum.LogSummary.Errors)
	assert.Equal(t, 1, sum.LogSummary.Warnings)
	require.Len(t, sum.LogEntries, 3)
	assert.Equal(t, "backup started", sum.LogEntries[0].Message)
	assert.Equal(t, "WARNING", sum.LogEntries[1].Level)
}

func TestWriteSummary(t *testing.T) {
	ring, disk, _ := newTestRing(t)
	sum := ring.TestSummary()

	path, err := ring.WriteSummary(disk, sum, "20260107200000")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(disk.BasePath, "logs", "summary_20260107200000.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	loaded := &Summary{}
	require.NoError(t, json.Unmarshal(raw, loaded))
	assert.Equal(t, summaryVersion, loaded.Version)
	assert.Equal(t, "test", loaded.Backup.Type)
}

func TestWriteSummaryDryRun(t *testing.T) {
	ring, disk, _ := newTestRing(t)
	ring.DryRun = true

	path, err := ring.WriteSummary(disk, ring.TestSummary(), "x")
	require.NoError(t, err)
	assert.Empty(t, path)
	_, statErr := os.Stat(filepath.Join(disk.BasePath, "logs"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "12.5s", formatDuration(12500*time.Millisecond))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", formatDuration(61*time.Minute))
}
