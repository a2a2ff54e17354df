package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	snapring "github.com/snapring/snapring/lib"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scans mounted volumes for configured backup disks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ring := getSnapRing()

		disks, reports, err := ring.ScanDisks()
		if err != nil {
			return err
		}

		w := new(tabwriter.Writer)
		w.Init(os.Stdout, 12, 0, 3, ' ', 0)
		fmt.Fprintln(w, "mount\tstatus\tdisk id\tname\tfree")
		for _, r := range reports {
			name, free := "-", "-"
			if r.Disk != nil {
				name = r.Disk.Name
				free = humanize.Bytes(r.Disk.FreeBytes)
			}
			id := r.DiskID
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.MountPoint, r.Status, id, name, free)
		}
		w.Flush()

		if len(disks) == 0 {
			return snapring.ErrNoDiskFound
		}
		fmt.Printf("\nFound %d backup disk(s)\n", len(disks))
		return nil
	},
}
