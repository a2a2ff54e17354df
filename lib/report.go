package snapring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Summary is the completed-cycle record handed to the reporting adapter and
// written next to the logs. The logging collaborator and the API receive
// the exact same shape.
type Summary struct {
	Version      string          `json:"version"`
	GeneratedAt  time.Time       `json:"generated_at"`
	ComputerName string          `json:"computer_name"`
	Backup       SummaryBackup   `json:"backup"`
	TargetDisk   SummaryDisk     `json:"target_disk"`
	Storage      SummaryStorage  `json:"storage"`
	LogSummary   SummaryLogStats `json:"log_summary"`
	LogEntries   []LogEntry      `json:"log_entries"`
}

type SummaryBackup struct {
	Success          bool          `json:"success"`
	Type             string        `json:"type"`
	Source           string        `json:"source"`
	Target           string        `json:"target"`
	ImageFile        string        `json:"image_file"`
	FileSizeBytes    int64         `json:"file_size_bytes"`
	FileSizeHuman    string        `json:"file_size_human"`
	DurationSeconds  float64       `json:"duration_seconds"`
	DurationHuman    string        `json:"duration_human"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	ExitCode         int           `json:"exit_code"`
	Error            string        `json:"error,omitempty"`
	DifferentialInfo SummaryDiffIn `json:"differential_info"`
}

type SummaryDiffIn struct {
	Current    int `json:"current"`
	Max        int `json:"max"`
	NextFullIn int `json:"next_full_in"`
}

type SummaryDisk struct {
	DiskID     string `json:"disk_id"`
	DiskName   string `json:"disk_name"`
	MountPoint string `json:"mount_point"`
}

type SummaryStorage struct {
	TotalBytes         uint64  `json:"total_bytes"`
	FreeBytes          uint64  `json:"free_bytes"`
	UsedBytes          uint64  `json:"used_bytes"`
	FreePercent        float64 `json:"free_percent"`
	LastCycleSizeBytes int64   `json:"last_cycle_size_bytes"`
	CyclesCount        int     `json:"cycles_count"`
	CyclesMax          int     `json:"cycles_max"`
}

type SummaryLogStats struct {
	TotalEntries int `json:"total_entries"`
	Errors       int `json:"errors"`
	Warnings     int `json:"warnings"`
}

const summaryVersion = "1.0"

// BuildSummary assembles the run summary from the result, the persisted
// state and the session log.
func (s *SnapRing) BuildSummary(res *RunResult, state *DiskState) *Summary {
	sum := &Summary{
		Version:      summaryVersion,
		GeneratedAt:  s.now(),
		ComputerName: s.Config.HostnameOrDefault(),
		Backup: SummaryBackup{
			Success:         res.Success,
			Type:            string(res.Type),
			Source:          res.Source,
			Target:          res.TargetDir,
			ImageFile:       res.ImagePath,
			FileSizeBytes:   res.SizeBytes,
			FileSizeHuman:   humanize.Bytes(uint64(res.SizeBytes)),
			DurationSeconds: res.Duration.Seconds(),
			DurationHuman:   formatDuration(res.Duration),
			StartedAt:       res.StartTime,
			FinishedAt:      res.EndTime,
			ExitCode:        res.ExitCode,
			Error:           res.ErrorMessage,
			DifferentialInfo: SummaryDiffIn{
				Current:    res.DiffNumber,
				Max:        res.TotalDiffs,
				NextFullIn: res.TotalDiffs - res.DiffNumber,
			},
		},
	}

	if res.Disk != nil {
		sum.TargetDisk = SummaryDisk{
			DiskID:     res.Disk.ID,
			DiskName:   res.Disk.Name,
			MountPoint: res.Disk.MountPoint,
		}
	}

	sum.Storage = SummaryStorage{
		TotalBytes:         res.Space.TotalBytes,
		FreeBytes:          res.Space.FreeBytes,
		UsedBytes:          res.Space.UsedBytes,
		LastCycleSizeBytes: res.Space.LastCycleSizeBytes,
		CyclesCount:        res.CyclesCount,
		CyclesMax:          s.Config.Retention.KeepCycles,
	}
	if res.Space.TotalBytes > 0 {
		sum.Storage.FreePercent = float64(res.Space.FreeBytes) / float64(res.Space.TotalBytes) * 100
	}
	if state != nil {
		sum.Storage.CyclesCount = len(state.Cycles)
	}

	if s.Recorder != nil {
		entries := s.Recorder.Entries()
		errCount, warnCount := s.Recorder.Counts()
		sum.LogEntries = entries
		sum.LogSummary = SummaryLogStats{
			TotalEntries: len(entries),
			Errors:       errCount,
			Warnings:     warnCount,
		}
	}

	return sum
}

// TestSummary builds the synthetic summary used by the test-api command.
func (s *SnapRing) TestSummary() *Summary {
	now := s.now()
	return &Summary{
		Version:      summaryVersion,
		GeneratedAt:  now,
		ComputerName: s.Config.HostnameOrDefault(),
		Backup: SummaryBackup{
			Success:       true,
			Type:          "test",
			Source:        s.Config.SourceVolume,
			Target:        "TEST",
			ImageFile:     "TEST",
			FileSizeHuman: humanize.Bytes(0),
			DurationHuman: formatDuration(0),
			StartedAt:     now,
			FinishedAt:    now,
			DifferentialInfo: SummaryDiffIn{
				Max:        s.Config.MaxDifferentialBackups,
				NextFullIn: s.Config.MaxDifferentialBackups,
			},
		},
		TargetDisk: SummaryDisk{DiskID: "test", DiskName: "API test"},
		LogSummary: SummaryLogStats{TotalEntries: 1},
		LogEntries: []LogEntry{{Timestamp: now, Level: "INFO", Message: "API connectivity test"}},
	}
}

// WriteSummary stores the summary JSON in the disk's log directory and
// returns its path. Skipped entirely on a dry run.
func (s *SnapRing) WriteSummary(d *TargetDisk, sum *Summary, sessionID string) (string, error) {
	if s.DryRun {
		return "", nil
	}

	logDir := filepath.Join(d.BasePath, s.Config.LogDir)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(logDir, fmt.Sprintf("summary_%s.json", sessionID))
	raw, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	zlog.Info("summary saved", zap.String("path", path))
	return path, nil
}

func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", int(secs)/60, int(secs)%60)
	}
	return fmt.Sprintf("%dh %dm", int(secs)/3600, (int(secs)%3600)/60)
}
