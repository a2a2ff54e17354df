package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the cycle state and space situation of the selected disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ring := getSnapRing()

		disks, _, err := ring.ScanDisks()
		if err != nil {
			return err
		}
		disk, err := ring.SelectDisk(disks, pinnedDisk)
		if err != nil {
			return err
		}
		state, err := ring.LoadState(disk)
		if err != nil {
			return err
		}

		fmt.Printf("Computer:  %s\n", ring.Config.HostnameOrDefault())
		fmt.Printf("Source:    %s\n", ring.Config.SourceVolume)
		fmt.Printf("Disk:      %s (%s)\n", disk.Name, disk.ID)
		fmt.Printf("Target:    %s\n", ring.BackupDir(disk))

		nextType, reason := ring.NextBackupType(state)
		fmt.Printf("Next type: %s (%s)\n\n", nextType, reason)

		w := new(tabwriter.Writer)
		w.Init(os.Stdout, 12, 0, 3, ' ', 0)
		fmt.Fprintln(w, "cycle\tstarted\tdifferentials\tsize\tstate")
		for i, c := range state.Cycles {
			cycleState := "complete"
			if !c.Complete {
				cycleState = "in-progress"
			}
			fmt.Fprintf(w, "%d\t%s\t%d/%d\t%s\t%s\n",
				i+1,
				c.FullTimestamp.Format("2006-01-02 15:04"),
				len(c.Differentials), ring.Config.MaxDifferentialBackups,
				humanize.Bytes(uint64(c.SizeBytes())),
				cycleState,
			)
		}
		w.Flush()

		info, err := ring.MeasureSpace(disk, state)
		if err != nil {
			return err
		}
		fmt.Printf("\nFree: %s of %s, next step needs %s",
			humanize.Bytes(info.FreeBytes),
			humanize.Bytes(info.TotalBytes),
			humanize.Bytes(uint64(info.RequiredBytes)),
		)
		if info.Sufficient {
			fmt.Println(" (sufficient)")
		} else {
			fmt.Println(" (INSUFFICIENT)")
		}
		fmt.Printf("Cycles: %d kept, retention floor %d\n", len(state.CompleteCycles()), ring.Config.Retention.KeepCycles)
		return nil
	},
}
