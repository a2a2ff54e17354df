package cmd

import (
	"fmt"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Deletes old complete cycles beyond the retention floor",
	Long: `Deletes the oldest complete backup cycles so only retention.keep_cycles
of them remain. The in-progress cycle is never touched. With --dry-run
the deletion plan is printed and nothing is removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ring := getSnapRing()
		ring.DryRun = cleanupDryRun

		disks, _, err := ring.ScanDisks()
		if err != nil {
			return err
		}
		disk, err := ring.SelectDisk(disks, pinnedDisk)
		if err != nil {
			return err
		}

		if !cleanupDryRun {
			lock, err := ring.AcquireLock(disk)
			if err != nil {
				return err
			}
			defer lock.Release()
		}

		state, err := ring.LoadState(disk)
		if err != nil {
			return err
		}

		stats, err := ring.Cleanup(disk, state)
		if err != nil {
			return err
		}

		verb := "deleted"
		if cleanupDryRun {
			verb = "would delete"
		}
		fmt.Printf("%s %d cycle(s), %s freed, %d kept\n",
			verb, stats.DeletedCycles, humanize.Bytes(uint64(stats.FreedBytes)), stats.KeptCycles)
		for _, e := range stats.Errors {
			fmt.Println("WARNING:", e)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Print the deletion plan without removing anything")
}
