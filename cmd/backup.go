package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	snapring "github.com/snapring/snapring/lib"
)

var (
	forceFull    bool
	forceDiff    bool
	backupDryRun bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Runs a backup (full or differential, decided from cycle state)",
	Example: `  snapring backup
  snapring backup --full
  snapring backup --differential
  snapring backup --dry-run`,
	Long: `Runs one backup step against the best available backup disk.

Without flags the type is decided automatically: a new cycle (full) when
none is in progress, the baseline hash is gone, or the differential limit
is reached; a differential chained onto the current cycle otherwise.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if forceFull && forceDiff {
			return fmt.Errorf("--full and --differential are mutually exclusive")
		}
		var force snapring.BackupType
		if forceFull {
			force = snapring.BackupFull
		} else if forceDiff {
			force = snapring.BackupDifferential
		}
		return runBackup(force, backupDryRun)
	},
}

func init() {
	backupCmd.Flags().BoolVarP(&forceFull, "full", "f", false, "Force a full backup, starting a new cycle")
	backupCmd.Flags().BoolVarP(&forceDiff, "differential", "d", false, "Force a differential backup onto the current cycle")
	backupCmd.Flags().BoolVar(&backupDryRun, "dry-run", false, "Traverse every decision but touch nothing")
}

func runBackup(force snapring.BackupType, dryRun bool) error {
	ring := getSnapRing()
	ring.DryRun = dryRun

	res, err := ring.Run(context.Background(), snapring.RunOptions{
		Force:  force,
		DiskID: pinnedDisk,
	})
	if err != nil {
		return err
	}

	if res.DryRun {
		fmt.Printf("dry run: would perform a %s backup to %s\n", res.Type, res.ImagePath)
		return nil
	}
	if res.ReportingError != "" {
		// The backup itself succeeded, surface the upload failure separately.
		fmt.Printf("WARNING: %s: %s\n", snapring.ErrReportingFailed, res.ReportingError)
	}
	if res.VerificationError != "" {
		fmt.Printf("WARNING: image verification failed: %s\n", res.VerificationError)
	}
	fmt.Printf("%s backup completed: %s\n", res.Type, res.ImagePath)
	return nil
}
