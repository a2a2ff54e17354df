package snapring

import "errors"

var (
	// ErrNoDiskFound means no mounted volume carried a marker matching a
	// configured disk id.
	ErrNoDiskFound = errors.New("no configured backup disk found")

	// ErrForeignDisk guards init-disk against overwriting a marker that
	// belongs to another disk id.
	ErrForeignDisk = errors.New("volume already initialized with a different disk id")

	// ErrUnknownDiskID means the requested id is not in the configuration.
	ErrUnknownDiskID = errors.New("disk id not present in configuration")

	// ErrInvalidBaseline flags a missing or unreadable baseline hash file.
	// It triggers a full-backup fallback and never surfaces to the user on
	// an automatic run.
	ErrInvalidBaseline = errors.New("baseline hash file missing or unreadable")

	// ErrNoBaseForDifferential is returned when a differential was forced
	// but no valid cycle exists to chain onto.
	ErrNoBaseForDifferential = errors.New("no base cycle for differential backup")

	// ErrInsufficientSpace aborts a run when free space stays below the
	// reservation even after reaping.
	ErrInsufficientSpace = errors.New("insufficient space on backup disk")

	// ErrRetentionFloorHit marks a reap that stopped early to honor
	// keep_cycles.
	ErrRetentionFloorHit = errors.New("retention floor reached, no further cycles deletable")

	// ErrImagingFailed means the external imaging tool exited non-zero.
	ErrImagingFailed = errors.New("imaging tool failed")

	// ErrReportingFailed flags a failed summary upload. It never invalidates
	// a completed backup.
	ErrReportingFailed = errors.New("summary upload failed")

	// ErrLockHeld means another invocation holds the per-disk lock.
	ErrLockHeld = errors.New("another run holds the backup disk lock")
)

// Guidance maps a fatal condition to the corrective CLI action suggested to
// the operator. Empty when no suggestion applies.
func Guidance(err error) string {
	switch {
	case errors.Is(err, ErrNoDiskFound):
		return "run 'snapring scan' to list volumes, or 'snapring init-disk VOLUME ID' to initialize one"
	case errors.Is(err, ErrForeignDisk):
		return "pick an unmarked volume, or use the id already written on this one"
	case errors.Is(err, ErrUnknownDiskID):
		return "add the disk id to target_disks in the configuration first"
	case errors.Is(err, ErrInsufficientSpace):
		return "run 'snapring cleanup', lower retention.keep_cycles, or use a larger disk"
	case errors.Is(err, ErrNoBaseForDifferential):
		return "run a full backup first (snapring backup --full)"
	case errors.Is(err, ErrLockHeld):
		return "wait for the running backup to finish, or remove a stale lock file left by a crash"
	case errors.Is(err, ErrReportingFailed):
		return "check api.endpoint and api.token, then retry with 'snapring test-api'"
	}
	return ""
}
