package snapring

import (
	"fmt"
	"os"
	"path/filepath"

	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ReapPlan is the deletion plan for reclaiming space. The same plan drives
// both the dry-run output and the real deletion, so the two cannot diverge.
type ReapPlan struct {
	Cycles        []*Cycle
	ProjectedFree uint64
	Satisfied     bool
	FloorHit      bool
}

// PlanReap selects the oldest complete cycles for deletion until the
// projected free space meets required, or deleting one more would drop the
// retained complete-cycle count below keepCycles. An in-progress cycle is
// never a candidate.
func PlanReap(state *DiskState, required int64, free uint64, keepCycles int) *ReapPlan {
	plan := &ReapPlan{ProjectedFree: free}
	complete := state.CompleteCycles()

	for _, c := range complete {
		if plan.ProjectedFree >= uint64(required) {
			break
		}
		if len(complete)-len(plan.Cycles) <= keepCycles {
			plan.FloorHit = true
			break
		}
		plan.Cycles = append(plan.Cycles, c)
		plan.ProjectedFree += uint64(c.SizeBytes())
	}

	plan.Satisfied = plan.ProjectedFree >= uint64(required)
	return plan
}

// ReapStats summarizes one reap or cleanup pass.
type ReapStats struct {
	TotalCycles   int      `json:"total_cycles"`
	KeptCycles    int      `json:"kept_cycles"`
	DeletedCycles int      `json:"deleted_cycles"`
	DeletedFiles  int      `json:"deleted_files"`
	FreedBytes    int64    `json:"freed_bytes"`
	Errors        []string `json:"errors,omitempty"`
}

// deleteCycles executes (or, in dry-run, only narrates) the deletion of the
// given cycles, removing them from state as they go.
func (s *SnapRing) deleteCycles(state *DiskState, cycles []*Cycle) *ReapStats {
	stats := &ReapStats{TotalCycles: len(state.Cycles)}

	for _, cycle := range cycles {
		zlog.Info("deleting backup cycle",
			zap.Time("full_timestamp", cycle.FullTimestamp),
			zap.String("full_image", filepath.Base(cycle.FullImagePath)),
			zap.Int("differentials", len(cycle.Differentials)),
			zap.String("size", humanize.Bytes(uint64(cycle.SizeBytes()))),
			zap.Bool("dry_run", s.DryRun),
		)

		if s.DryRun {
			stats.DeletedCycles++
			stats.FreedBytes += cycle.SizeBytes()
			continue
		}

		for _, file := range cycle.Files() {
			info, err := os.Stat(file)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				stats.Errors = append(stats.Errors, fmt.Sprintf("stat %s: %s", file, err))
				continue
			}
			zlog.Info("deleting file", zap.String("path", file), zap.String("size", humanize.Bytes(uint64(info.Size()))))
			if err := os.Remove(file); err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("delete %s: %s", file, err))
				continue
			}
			stats.DeletedFiles++
			stats.FreedBytes += info.Size()
		}

		// Drop now-empty cycle directories, shared dirs survive.
		for _, dir := range cycleDirs(cycle) {
			_ = removeIfEmpty(dir)
		}

		state.RemoveCycle(cycle)
		stats.DeletedCycles++
	}

	stats.KeptCycles = stats.TotalCycles - stats.DeletedCycles
	zlog.Info("cycle deletion finished",
		zap.Int("deleted_cycles", stats.DeletedCycles),
		zap.Int("deleted_files", stats.DeletedFiles),
		zap.String("freed", humanize.Bytes(uint64(stats.FreedBytes))),
		zap.Bool("dry_run", s.DryRun),
	)
	return stats
}

func cycleDirs(cycle *Cycle) []string {
	seen := map[string]bool{}
	var dirs []string
	for _, f := range cycle.Files() {
		dir := filepath.Dir(f)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func removeIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return err
	}
	return os.Remove(dir)
}

// ReapForSpace frees space for the next backup step by deleting the oldest
// complete cycles, never dropping below the retention floor. The updated
// state is persisted unless running dry.
func (s *SnapRing) ReapForSpace(d *TargetDisk, state *DiskState, info SpaceInfo) (*ReapPlan, *ReapStats, error) {
	plan := PlanReap(state, info.RequiredBytes, info.FreeBytes, s.Config.Retention.KeepCycles)
	if len(plan.Cycles) == 0 {
		if plan.FloorHit {
			zlog.Warn("reap blocked by retention floor",
				zap.Int("keep_cycles", s.Config.Retention.KeepCycles),
				zap.Int("complete_cycles", len(state.CompleteCycles())),
			)
		}
		return plan, &ReapStats{TotalCycles: len(state.Cycles), KeptCycles: len(state.Cycles)}, nil
	}

	stats := s.deleteCycles(state, plan.Cycles)
	if !s.DryRun {
		if err := s.SaveState(d, state); err != nil {
			return plan, stats, fmt.Errorf("persist state after reap: %w", err)
		}
	}
	return plan, stats, nil
}

// Cleanup enforces the count-based retention: only the keep_cycles newest
// complete cycles survive. Used by the explicit cleanup command.
func (s *SnapRing) Cleanup(d *TargetDisk, state *DiskState) (*ReapStats, error) {
	complete := state.CompleteCycles()
	keep := s.Config.Retention.KeepCycles
	if len(complete) <= keep {
		zlog.Info("nothing to clean up",
			zap.Int("complete_cycles", len(complete)),
			zap.Int("keep_cycles", keep),
		)
		return &ReapStats{TotalCycles: len(state.Cycles), KeptCycles: len(state.Cycles)}, nil
	}

	doomed := complete[:len(complete)-keep]
	stats := s.deleteCycles(state, doomed)
	if !s.DryRun {
		if err := s.SaveState(d, state); err != nil {
			return stats, fmt.Errorf("persist state after cleanup: %w", err)
		}
	}
	return stats, nil
}
