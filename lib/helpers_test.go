package snapring

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gdisk "github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := &Config{
		SourceVolume:           "D:",
		Hostname:               "testhost",
		MaxDifferentialBackups: 2,
		TargetDisks: []DiskConfig{
			{ID: "disk-01", Name: "Disk One", BasePath: "Backups"},
			{ID: "disk-02", Name: "Disk Two", BasePath: "Backups"},
		},
		Retention:            RetentionConfig{KeepCycles: 3, SpaceReservePercent: 50},
		InitialEstimateBytes: 1000,
	}
	cfg.ApplyDefaults()
	return cfg
}

// newTestRing builds a ring against a temp-dir volume with a deterministic
// clock, one minute per tick.
func newTestRing(t *testing.T) (*SnapRing, *TargetDisk, *fakeImager) {
	t.Helper()

	imager := &fakeImager{imageSize: 100}
	ring := New(testConfig(), imager)

	clock := time.Date(2026, 1, 7, 20, 0, 0, 0, time.UTC)
	ring.nowFn = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	root := t.TempDir()
	disk := &TargetDisk{
		ID:         "disk-01",
		Name:       "Disk One",
		MountPoint: root,
		BasePath:   filepath.Join(root, "Backups"),
		TotalBytes: 1 << 40,
		FreeBytes:  1 << 40,
	}
	return ring, disk, imager
}

// stubUsage pins the measured disk usage for the duration of the test.
func stubUsage(t *testing.T, total, free uint64) {
	t.Helper()
	orig := diskUsage
	diskUsage = func(string) (*gdisk.UsageStat, error) {
		return &gdisk.UsageStat{Total: total, Free: free, Used: total - free}, nil
	}
	t.Cleanup(func() { diskUsage = orig })
}

// stubDynamicUsage reports free space as capacity minus the bytes of the
// image files currently under backupDir, so deletions actually free space.
func stubDynamicUsage(t *testing.T, backupDir string, capacity uint64) {
	t.Helper()
	orig := diskUsage
	diskUsage = func(string) (*gdisk.UsageStat, error) {
		var used uint64
		for _, sub := range []string{"full", "differential"} {
			filepath.Walk(filepath.Join(backupDir, sub), func(path string, info os.FileInfo, err error) error {
				if err == nil && !info.IsDir() {
					used += uint64(info.Size())
				}
				return nil
			})
		}
		return &gdisk.UsageStat{Total: capacity, Free: capacity - used, Used: used}, nil
	}
	t.Cleanup(func() { diskUsage = orig })
}

// stubPartitions pins the mounted volume roots for the duration of the
// test.
func stubPartitions(t *testing.T, mounts ...string) {
	t.Helper()
	orig := listPartitions
	listPartitions = func() ([]gdisk.PartitionStat, error) {
		var parts []gdisk.PartitionStat
		for _, m := range mounts {
			parts = append(parts, gdisk.PartitionStat{Mountpoint: m})
		}
		return parts, nil
	}
	t.Cleanup(func() { listPartitions = orig })
}

type fakeImager struct {
	fullCalls int
	diffCalls int
	exitCode  int
	spawnErr  error
	imageSize int
	verifyErr error
	verified  []string
}

func (f *fakeImager) CreateFull(_ context.Context, _, imagePath string) (*ImageResult, error) {
	f.fullCalls++
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	if f.exitCode != 0 {
		return &ImageResult{ExitCode: f.exitCode, Output: "imaging error"}, nil
	}
	hashPath := hashPathFor(imagePath)
	if err := writeBytes(imagePath, f.imageSize); err != nil {
		return nil, err
	}
	if err := writeBytes(hashPath, 10); err != nil {
		return nil, err
	}
	return &ImageResult{ExitCode: 0, ImagePath: imagePath, HashPath: hashPath}, nil
}

func (f *fakeImager) CreateDifferential(_ context.Context, _, imagePath, baselineHash string) (*ImageResult, error) {
	f.diffCalls++
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	if f.exitCode != 0 {
		return &ImageResult{ExitCode: f.exitCode, Output: "imaging error"}, nil
	}
	if _, err := os.Stat(baselineHash); err != nil {
		return nil, errors.New("baseline hash not readable")
	}
	if err := writeBytes(imagePath, f.imageSize); err != nil {
		return nil, err
	}
	return &ImageResult{ExitCode: 0, ImagePath: imagePath, HashPath: baselineHash}, nil
}

func (f *fakeImager) Verify(_ context.Context, imagePath string) error {
	f.verified = append(f.verified, imagePath)
	return f.verifyErr
}

type fakeReporter struct {
	sent []*Summary
	err  error
}

func (f *fakeReporter) Send(_ context.Context, sum *Summary) (string, error) {
	f.sent = append(f.sent, sum)
	if f.err != nil {
		return "", f.err
	}
	return "ok", nil
}

func writeBytes(path string, n int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, make([]byte, n), 0644)
}

// listTree returns every file below root, relative paths, sorted by Walk
// order. Used to prove dry runs touch nothing.
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out = append(out, rel)
		return nil
	})
	require.NoError(t, err)
	return out
}
