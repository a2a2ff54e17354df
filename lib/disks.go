package snapring

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/abourget/llerrgroup"
	humanize "github.com/dustin/go-humanize"
	gdisk "github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"
)

// Swappable for tests, gopsutil otherwise.
var (
	listPartitions = func() ([]gdisk.PartitionStat, error) { return gdisk.Partitions(false) }
	diskUsage      = gdisk.Usage
)

type VolumeStatus string

const (
	// VolumeMatched carries a marker matching a configured disk id.
	VolumeMatched VolumeStatus = "matched"
	// VolumeForeign carries a marker with an id we do not know. Never
	// selected, never written to.
	VolumeForeign VolumeStatus = "foreign"
	// VolumeUnmarked has no marker file at its root.
	VolumeUnmarked VolumeStatus = "unmarked"
)

// VolumeReport is the scan outcome for one mounted volume.
type VolumeReport struct {
	MountPoint string
	DiskID     string
	Status     VolumeStatus
	Disk       *TargetDisk
}

// readDiskID reads the marker file at a volume root. Empty string when the
// marker is absent, unreadable or blank.
func (s *SnapRing) readDiskID(mountPoint string) string {
	raw, err := os.ReadFile(filepath.Join(mountPoint, s.Config.DiskIDFilename))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// ScanDisks walks every mounted volume, classifies it against the configured
// target disks and measures free space on the matches. Scanning is strictly
// read-only.
func (s *SnapRing) ScanDisks() ([]*TargetDisk, []*VolumeReport, error) {
	parts, err := listPartitions()
	if err != nil {
		return nil, nil, fmt.Errorf("list mounted volumes: %w", err)
	}

	var reports []*VolumeReport
	seen := map[string]bool{}
	for _, part := range parts {
		if seen[part.Mountpoint] {
			continue
		}
		seen[part.Mountpoint] = true

		report := &VolumeReport{MountPoint: part.Mountpoint}
		id := s.readDiskID(part.Mountpoint)
		switch {
		case id == "":
			report.Status = VolumeUnmarked
			zlog.Debug("volume has no disk marker", zap.String("mount_point", part.Mountpoint))
		case s.Config.DiskByID(id) == nil:
			report.Status = VolumeForeign
			report.DiskID = id
			zlog.Warn("volume carries an unknown disk id, ignoring",
				zap.String("mount_point", part.Mountpoint),
				zap.String("disk_id", id),
			)
		default:
			dc := s.Config.DiskByID(id)
			report.Status = VolumeMatched
			report.DiskID = id
			report.Disk = &TargetDisk{
				ID:         id,
				Name:       dc.Name,
				MountPoint: part.Mountpoint,
				BasePath:   filepath.Join(part.Mountpoint, dc.BasePath),
			}
		}
		reports = append(reports, report)
	}

	var disks []*TargetDisk
	for _, r := range reports {
		if r.Disk != nil {
			disks = append(disks, r.Disk)
		}
	}

	// Free-space probes can stall on flaky removable media, run them in
	// parallel.
	var mu sync.Mutex
	eg := llerrgroup.New(4)
	for _, d := range disks {
		if eg.Stop() {
			break
		}
		d := d
		eg.Go(func() error {
			usage, err := diskUsage(d.MountPoint)
			if err != nil {
				return fmt.Errorf("measure usage of %s: %w", d.MountPoint, err)
			}
			mu.Lock()
			d.TotalBytes = usage.Total
			d.FreeBytes = usage.Free
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, reports, err
	}

	for _, d := range disks {
		zlog.Info("found backup disk",
			zap.String("disk_id", d.ID),
			zap.String("name", d.Name),
			zap.String("mount_point", d.MountPoint),
			zap.String("free", humanize.Bytes(d.FreeBytes)),
			zap.String("total", humanize.Bytes(d.TotalBytes)),
		)
	}

	return disks, reports, nil
}

// SelectDisk picks the backup target among the matched disks. A pinned id
// wins outright; otherwise the disk with the most free space is chosen,
// ties broken by configuration order.
func (s *SnapRing) SelectDisk(disks []*TargetDisk, pinnedID string) (*TargetDisk, error) {
	if len(disks) == 0 {
		return nil, ErrNoDiskFound
	}

	if pinnedID != "" {
		for _, d := range disks {
			if d.ID == pinnedID {
				return d, nil
			}
		}
		return nil, fmt.Errorf("pinned disk %q not mounted: %w", pinnedID, ErrNoDiskFound)
	}

	var best *TargetDisk
	for _, dc := range s.Config.TargetDisks {
		for _, d := range disks {
			if d.ID != dc.ID {
				continue
			}
			if best == nil || d.FreeBytes > best.FreeBytes {
				best = d
			}
		}
	}
	if best == nil {
		return nil, ErrNoDiskFound
	}
	return best, nil
}

// InitDisk writes the identity marker at a volume root. It refuses to touch
// a volume already marked with a different id.
func (s *SnapRing) InitDisk(volumeRoot, id string) error {
	if s.Config.DiskByID(id) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownDiskID, id)
	}

	markerPath := filepath.Join(volumeRoot, s.Config.DiskIDFilename)
	if existing := s.readDiskID(volumeRoot); existing != "" {
		if existing != id {
			return fmt.Errorf("%w: marker at %s holds %q", ErrForeignDisk, markerPath, existing)
		}
		zlog.Info("volume already initialized with this id", zap.String("marker", markerPath))
		return nil
	}

	if err := os.WriteFile(markerPath, []byte(id+"\n"), 0644); err != nil {
		return fmt.Errorf("write marker file: %w", err)
	}
	zlog.Info("disk marker written",
		zap.String("marker", markerPath),
		zap.String("disk_id", id),
	)
	return nil
}
