package snapring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// RunState enumerates the engine's states. Transitions are strictly
// forward; Aborted is reachable from anywhere.
type RunState string

const (
	StateIdle          RunState = "idle"
	StateDiskSelected  RunState = "disk_selected"
	StateSpaceChecked  RunState = "space_checked"
	StateBackupRunning RunState = "backup_running"
	StateStateUpdated  RunState = "state_updated"
	StateReported      RunState = "reported"
	StateDone          RunState = "done"
	StateAborted       RunState = "aborted"
)

// RunOptions steer one invocation of the engine.
type RunOptions struct {
	// Force overrides the automatic full/differential decision. Empty
	// means decide from state.
	Force BackupType
	// DiskID pins the target disk instead of picking by free space.
	DiskID string
}

// RunResult is the ephemeral record of one invocation, consumed by the
// logging and reporting collaborators.
type RunResult struct {
	State             RunState
	Success           bool
	Type              BackupType
	Source            string
	TargetDir         string
	ImagePath         string
	HashPath          string
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
	ExitCode          int
	ErrorMessage      string
	SizeBytes         int64
	DiffNumber        int
	TotalDiffs        int
	Disk              *TargetDisk
	Space             SpaceInfo
	CyclesCount       int
	ReapStats         *ReapStats
	DryRun            bool
	ReportingError    string
	VerificationError string
}

func (r *RunResult) transition(next RunState) {
	zlog.Debug("engine state transition",
		zap.String("from", string(r.State)),
		zap.String("to", string(next)),
	)
	r.State = next
}

func (r *RunResult) finish(now func() time.Time) {
	r.EndTime = now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// decision is the resolved full-vs-differential choice.
type decision struct {
	Type   BackupType
	Reason string
	// Seq is the 1-based differential sequence number, 0 for a full.
	Seq int
	// Baseline is the hash file a differential chains onto.
	Baseline string
}

// decide resolves the backup type from the forced mode and the current
// cycle state, evaluated after disk selection and before the space check.
func (s *SnapRing) decide(state *DiskState, force BackupType) (*decision, error) {
	current := state.CurrentCycle()
	baselineOK := current != nil && readableFile(current.FullHashPath)

	switch force {
	case BackupFull:
		return &decision{Type: BackupFull, Reason: "forced full"}, nil
	case BackupDifferential:
		if current == nil || !baselineOK {
			return nil, ErrNoBaseForDifferential
		}
		return &decision{
			Type:     BackupDifferential,
			Reason:   "forced differential",
			Seq:      len(current.Differentials) + 1,
			Baseline: current.FullHashPath,
		}, nil
	}

	switch {
	case current == nil:
		return &decision{Type: BackupFull, Reason: "no in-progress cycle"}, nil
	case !baselineOK:
		// Hash vanished or became unreadable between runs, fall back to a
		// fresh cycle instead of chaining onto a broken baseline.
		zlog.Warn("baseline hash missing, falling back to full backup",
			zap.String("hash_path", current.FullHashPath),
			zap.Error(ErrInvalidBaseline),
		)
		return &decision{Type: BackupFull, Reason: "baseline hash missing"}, nil
	case len(current.Differentials) >= s.Config.MaxDifferentialBackups:
		return &decision{Type: BackupFull, Reason: "differential limit reached"}, nil
	}

	return &decision{
		Type:     BackupDifferential,
		Reason:   fmt.Sprintf("differential %d of %d", len(current.Differentials)+1, s.Config.MaxDifferentialBackups),
		Seq:      len(current.Differentials) + 1,
		Baseline: current.FullHashPath,
	}, nil
}

func readableFile(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Run performs one complete invocation: scan, select, decide, reserve,
// reap, image, persist, report. On a fatal condition the returned result is
// in StateAborted and the error carries the taxonomy sentinel.
func (s *SnapRing) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	disks, _, err := s.ScanDisks()
	if err != nil {
		return abortedResult(s, err), err
	}
	disk, err := s.SelectDisk(disks, opts.DiskID)
	if err != nil {
		return abortedResult(s, err), err
	}
	return s.RunOnDisk(ctx, disk, opts)
}

func abortedResult(s *SnapRing, err error) *RunResult {
	res := &RunResult{
		State:      StateAborted,
		Source:     s.Config.SourceVolume,
		TotalDiffs: s.Config.MaxDifferentialBackups,
		DryRun:     s.DryRun,
	}
	res.StartTime = s.now()
	res.ErrorMessage = err.Error()
	res.finish(s.now)
	return res
}

// RunOnDisk runs the engine against an already-selected disk. The disk is
// threaded explicitly so every decision is testable with synthetic inputs.
func (s *SnapRing) RunOnDisk(ctx context.Context, disk *TargetDisk, opts RunOptions) (res *RunResult, err error) {
	start := s.now()
	res = &RunResult{
		State:      StateIdle,
		StartTime:  start,
		Source:     s.Config.SourceVolume,
		Disk:       disk,
		TargetDir:  s.BackupDir(disk),
		TotalDiffs: s.Config.MaxDifferentialBackups,
		DryRun:     s.DryRun,
	}
	abort := func(cause error) (*RunResult, error) {
		res.transition(StateAborted)
		// Context captured earlier (imager output) wins over the sentinel.
		if res.ErrorMessage == "" {
			res.ErrorMessage = cause.Error()
		}
		res.finish(s.now)
		return res, cause
	}

	zlog.Info("using backup disk",
		zap.String("disk_id", disk.ID),
		zap.String("name", disk.Name),
		zap.String("base_path", disk.BasePath),
	)
	res.transition(StateDiskSelected)

	// Dry-run must not leave a lock file behind.
	if !s.DryRun {
		lock, lockErr := s.AcquireLock(disk)
		if lockErr != nil {
			return abort(lockErr)
		}
		defer lock.Release()
	}

	state, err := s.LoadState(disk)
	if err != nil {
		return abort(err)
	}
	res.CyclesCount = len(state.Cycles)

	dec, err := s.decide(state, opts.Force)
	if err != nil {
		return abort(err)
	}
	res.Type = dec.Type
	res.DiffNumber = dec.Seq
	zlog.Info("backup type decided", zap.String("type", string(dec.Type)), zap.String("reason", dec.Reason))

	info, err := s.MeasureSpace(disk, state)
	if err != nil {
		return abort(err)
	}
	if !info.Sufficient {
		plan, stats, reapErr := s.ReapForSpace(disk, state, info)
		if reapErr != nil {
			return abort(reapErr)
		}
		res.ReapStats = stats
		res.CyclesCount = len(state.Cycles)

		if s.DryRun {
			// Deletions were only planned, project their effect. The cycle
			// count mirrors what a real run would report post-reap.
			info.FreeBytes = plan.ProjectedFree
			info.Sufficient = plan.Satisfied
			res.CyclesCount = len(state.Cycles) - len(plan.Cycles)
		} else {
			info, err = s.MeasureSpace(disk, state)
			if err != nil {
				return abort(err)
			}
		}
		if !info.Sufficient {
			res.Space = info
			if plan.FloorHit {
				return abort(fmt.Errorf("%w: %w", ErrInsufficientSpace, ErrRetentionFloorHit))
			}
			return abort(ErrInsufficientSpace)
		}
	}
	res.Space = info
	res.transition(StateSpaceChecked)

	ts := start.Format("20060102_150405")
	src := sourceName(s.Config.SourceVolume)
	if dec.Type == BackupFull {
		res.ImagePath = filepath.Join(res.TargetDir, "full", fmt.Sprintf("%s_full_%s.sna", src, ts))
		res.HashPath = hashPathFor(res.ImagePath)
	} else {
		res.ImagePath = filepath.Join(res.TargetDir, "differential", fmt.Sprintf("%s_diff_%s_#%02d.sna", src, ts, dec.Seq))
		res.HashPath = dec.Baseline
	}

	res.transition(StateBackupRunning)
	if s.DryRun {
		zlog.Info("dry run, skipping imaging call",
			zap.String("type", string(dec.Type)),
			zap.String("image", res.ImagePath),
		)
		res.Success = true
		res.transition(StateStateUpdated)
		res.transition(StateReported)
		res.transition(StateDone)
		res.finish(s.now)
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(res.ImagePath), 0755); err != nil {
		return abort(fmt.Errorf("create backup directory: %w", err))
	}

	var imgRes *ImageResult
	if dec.Type == BackupFull {
		imgRes, err = s.Imager.CreateFull(ctx, s.Config.SourceVolume, res.ImagePath)
	} else {
		imgRes, err = s.Imager.CreateDifferential(ctx, s.Config.SourceVolume, res.ImagePath, dec.Baseline)
	}
	if err != nil {
		res.ErrorMessage = err.Error()
		s.report(ctx, res, state)
		return abort(fmt.Errorf("%w: %s", ErrImagingFailed, err))
	}
	res.ExitCode = imgRes.ExitCode
	if imgRes.ExitCode != 0 {
		// Hard failure: the run ends here with zero state mutation, but the
		// failure itself still gets summarized and uploaded.
		res.ErrorMessage = imgRes.Output
		s.report(ctx, res, state)
		return abort(fmt.Errorf("%w: exit status %d", ErrImagingFailed, imgRes.ExitCode))
	}

	res.SizeBytes = fileSize(imgRes.ImagePath)
	now := s.now()
	if dec.Type == BackupFull {
		state.SealCurrent()
		state.Cycles = append(state.Cycles, &Cycle{
			FullTimestamp: now,
			FullImagePath: imgRes.ImagePath,
			FullHashPath:  imgRes.HashPath,
			FullSizeBytes: res.SizeBytes,
		})
		res.HashPath = imgRes.HashPath
		res.DiffNumber = 0
	} else {
		current := state.CurrentCycle()
		current.Differentials = append(current.Differentials, &DifferentialEntry{
			Timestamp: now,
			Sequence:  dec.Seq,
			ImagePath: imgRes.ImagePath,
			SizeBytes: res.SizeBytes,
		})
	}
	res.CyclesCount = len(state.Cycles)

	if err := s.SaveState(disk, state); err != nil {
		return abort(fmt.Errorf("persist state after backup: %w", err))
	}
	res.transition(StateStateUpdated)
	res.Success = true

	zlog.Info("backup completed",
		zap.String("type", string(dec.Type)),
		zap.String("image", res.ImagePath),
		zap.String("size", humanize.Bytes(uint64(res.SizeBytes))),
	)

	if s.Config.VerifyAfterBackup {
		if v, ok := s.Imager.(Verifier); ok {
			if verr := v.Verify(ctx, res.ImagePath); verr != nil {
				// Advisory: the image exists and state is already updated.
				res.VerificationError = verr.Error()
				zlog.Warn("post-backup verification failed", zap.Error(verr))
			}
		}
	}

	s.report(ctx, res, state)
	res.transition(StateReported)

	res.transition(StateDone)
	res.finish(s.now)
	return res, nil
}

// report writes the cycle summary next to the logs and hands it to the
// reporting adapter. A failed upload never invalidates the completed
// backup.
func (s *SnapRing) report(ctx context.Context, res *RunResult, state *DiskState) {
	res.finish(s.now)
	summary := s.BuildSummary(res, state)

	if _, err := s.WriteSummary(res.Disk, summary, s.SessionID); err != nil {
		zlog.Warn("could not save summary", zap.Error(err))
	}

	if s.Reporter == nil || !s.Config.API.Enabled {
		return
	}
	response, err := s.Reporter.Send(ctx, summary)
	if err != nil {
		res.ReportingError = err.Error()
		zlog.Warn("summary upload failed", zap.Error(fmt.Errorf("%w: %s", ErrReportingFailed, err)))
		return
	}
	zlog.Info("summary uploaded", zap.String("response", response))
}

// NextBackupType predicts the automatic decision for the given state, used
// by the status command.
func (s *SnapRing) NextBackupType(state *DiskState) (BackupType, string) {
	dec, err := s.decide(state, "")
	if err != nil {
		return BackupFull, err.Error()
	}
	return dec.Type, dec.Reason
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
