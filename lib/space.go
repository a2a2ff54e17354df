package snapring

import (
	"fmt"
	"os"

	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ComputeSpace is the pure reservation check: the next cycle is assumed to
// need the last completed cycle's size plus the configured reserve. With no
// completed cycle yet, initialEstimate stands in.
func ComputeSpace(total, free, used uint64, lastCycleSize int64, reservePercent int, initialEstimate int64) SpaceInfo {
	required := lastCycleSize + lastCycleSize*int64(reservePercent)/100
	if required <= 0 {
		required = initialEstimate
	}

	return SpaceInfo{
		TotalBytes:         total,
		FreeBytes:          free,
		UsedBytes:          used,
		LastCycleSizeBytes: lastCycleSize,
		RequiredBytes:      required,
		Sufficient:         free >= uint64(required),
	}
}

// MeasureSpace gathers the disk's current usage and runs the reservation
// check against the given state.
func (s *SnapRing) MeasureSpace(d *TargetDisk, state *DiskState) (SpaceInfo, error) {
	target := s.BackupDir(d)
	if _, err := os.Stat(target); err != nil {
		target = d.MountPoint
	}

	usage, err := diskUsage(target)
	if err != nil {
		return SpaceInfo{}, fmt.Errorf("measure free space on %s: %w", target, err)
	}

	var lastSize int64
	if complete := state.CompleteCycles(); len(complete) > 0 {
		lastSize = complete[len(complete)-1].SizeBytes()
	}

	// First backup on a disk: the source's used space is the best size
	// estimate for the full image.
	estimate := s.Config.InitialEstimateBytes
	if lastSize == 0 {
		if src, srcErr := diskUsage(s.Config.SourceVolume); srcErr == nil && src.Used > 0 {
			estimate = int64(src.Used)
		}
	}

	info := ComputeSpace(usage.Total, usage.Free, usage.Used, lastSize,
		s.Config.Retention.SpaceReservePercent, estimate)

	zlog.Info("space analysis",
		zap.String("target", target),
		zap.String("free", humanize.Bytes(info.FreeBytes)),
		zap.String("last_cycle", humanize.Bytes(uint64(info.LastCycleSizeBytes))),
		zap.String("required", humanize.Bytes(uint64(info.RequiredBytes))),
		zap.Bool("sufficient", info.Sufficient),
	)
	if !info.Sufficient {
		zlog.Warn("not enough free space for the next backup step",
			zap.String("missing", humanize.Bytes(uint64(info.RequiredBytes)-info.FreeBytes)),
		)
	}
	return info, nil
}
