package snapring

import (
	"path/filepath"
	"strings"
	"time"
)

type BackupType string

const (
	BackupFull         BackupType = "full"
	BackupDifferential BackupType = "differential"
)

// TargetDisk is a mounted volume that carries a marker file matching one of
// the configured disk ids.
type TargetDisk struct {
	ID         string
	Name       string
	MountPoint string
	BasePath   string
	TotalBytes uint64
	FreeBytes  uint64
}

// DifferentialEntry is one differential image chained onto a cycle's full
// backup.
type DifferentialEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Sequence  int       `json:"sequence"`
	ImagePath string    `json:"image_path"`
	SizeBytes int64     `json:"size_bytes"`
}

// Cycle is one full backup plus its chained differentials. A cycle stays
// in-progress (Complete == false) while it is the target of new
// differentials; starting a new cycle seals it.
type Cycle struct {
	FullTimestamp time.Time            `json:"full_timestamp"`
	FullImagePath string               `json:"full_image_path"`
	FullHashPath  string               `json:"full_hash_path"`
	FullSizeBytes int64                `json:"full_size_bytes"`
	Differentials []*DifferentialEntry `json:"differentials,omitempty"`
	Complete      bool                 `json:"complete"`
}

func (c *Cycle) SizeBytes() (total int64) {
	total = c.FullSizeBytes
	for _, d := range c.Differentials {
		total += d.SizeBytes
	}
	return
}

// Files returns every path belonging to the cycle, full image first.
func (c *Cycle) Files() []string {
	files := []string{c.FullImagePath}
	if c.FullHashPath != "" {
		files = append(files, c.FullHashPath)
	}
	for _, d := range c.Differentials {
		files = append(files, d.ImagePath)
	}
	return files
}

// DiskState is the persisted per-disk record of cycles, oldest first. It is
// the single source of truth for what logically exists on the disk.
type DiskState struct {
	Version string   `json:"version"`
	Cycles  []*Cycle `json:"cycles,omitempty"`
}

const stateVersion = "v1"

func NewDiskState() *DiskState {
	return &DiskState{Version: stateVersion}
}

// CurrentCycle returns the in-progress cycle, or nil if every cycle is
// sealed. Only the newest cycle may be in-progress.
func (s *DiskState) CurrentCycle() *Cycle {
	if len(s.Cycles) == 0 {
		return nil
	}
	last := s.Cycles[len(s.Cycles)-1]
	if last.Complete {
		return nil
	}
	return last
}

func (s *DiskState) CompleteCycles() (out []*Cycle) {
	for _, c := range s.Cycles {
		if c.Complete {
			out = append(out, c)
		}
	}
	return
}

// LastCycle returns the newest cycle regardless of completion, or nil.
func (s *DiskState) LastCycle() *Cycle {
	if len(s.Cycles) == 0 {
		return nil
	}
	return s.Cycles[len(s.Cycles)-1]
}

// SealCurrent marks the in-progress cycle complete, if there is one.
func (s *DiskState) SealCurrent() {
	if c := s.CurrentCycle(); c != nil {
		c.Complete = true
	}
}

// RemoveCycle drops the given cycle from the ordered list.
func (s *DiskState) RemoveCycle(target *Cycle) {
	for i, c := range s.Cycles {
		if c == target {
			s.Cycles = append(s.Cycles[:i], s.Cycles[i+1:]...)
			return
		}
	}
}

// SpaceInfo is the outcome of the reservation check against a disk.
type SpaceInfo struct {
	TotalBytes         uint64
	FreeBytes          uint64
	UsedBytes          uint64
	LastCycleSizeBytes int64
	RequiredBytes      int64
	Sufficient         bool
}

// sourceName turns a source volume spec ("D:", "/dev/sda1", "/") into a
// path-safe directory component.
func sourceName(source string) string {
	name := strings.TrimSuffix(source, ":")
	name = strings.Trim(name, string(filepath.Separator))
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	if name == "" {
		name = "root"
	}
	return name
}
