package snapring

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ghodss/yaml"
	"go.uber.org/zap"
)

const (
	stateFileName = "backup_state.yaml"
	lockFileName  = ".snapring.lock"
)

// BackupDir is where images, hash files and state live for this host's
// source volume on the given disk.
func (s *SnapRing) BackupDir(d *TargetDisk) string {
	return filepath.Join(d.BasePath, s.Config.HostnameOrDefault(), sourceName(s.Config.SourceVolume))
}

func (s *SnapRing) statePath(d *TargetDisk) string {
	return filepath.Join(s.BackupDir(d), stateFileName)
}

// LoadState reads the persisted disk state. A missing state file is the
// first-ever backup and yields an empty state.
func (s *SnapRing) LoadState(d *TargetDisk) (*DiskState, error) {
	path := s.statePath(d)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zlog.Info("no state file yet, starting fresh", zap.String("path", path))
			return NewDiskState(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	state := &DiskState{}
	if err := yaml.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("unmarshal state file %s: %w", path, err)
	}
	if state.Version == "" {
		state.Version = stateVersion
	}
	zlog.Debug("state loaded", zap.String("path", path), zap.Int("cycles", len(state.Cycles)))
	return state, nil
}

// SaveState persists the disk state with an atomic replace: the payload is
// written to a temp file in the state directory, synced, then renamed over
// the old file. A crash mid-write never corrupts existing state.
func (s *SnapRing) SaveState(d *TargetDisk, state *DiskState) error {
	path := s.statePath(d)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	raw, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("yaml marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), stateFileName+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	zlog.Debug("state saved", zap.String("path", path), zap.Int("cycles", len(state.Cycles)))
	return nil
}

// DiskLock is the per-disk advisory lock scoped around load → backup →
// save. It keeps two invocations from interleaving state updates.
type DiskLock struct {
	path string
}

// AcquireLock takes the per-disk lock, failing fast when another run holds
// it.
func (s *SnapRing) AcquireLock(d *TargetDisk) (*DiskLock, error) {
	dir := s.BackupDir(d)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, path)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	fmt.Fprintln(f, strconv.Itoa(os.Getpid()))
	f.Close()

	zlog.Debug("disk lock acquired", zap.String("path", path))
	return &DiskLock{path: path}, nil
}

// Release removes the lock file. Safe to call more than once.
func (l *DiskLock) Release() {
	if l == nil || l.path == "" {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		zlog.Warn("could not remove lock file", zap.String("path", l.path), zap.Error(err))
	}
	l.path = ""
}
