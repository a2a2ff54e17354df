package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initDiskCmd = &cobra.Command{
	Use:   "init-disk VOLUME DISK_ID",
	Short: "Writes the identity marker on a volume, making it a backup disk",
	Example: `  snapring init-disk /mnt/backup1 backup-disk-01`,
	Long: `Writes the disk identity marker at the given volume root. The id must
already exist in target_disks; a volume that carries a marker with a
different id is refused, never overwritten.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ring := getSnapRing()
		if err := ring.InitDisk(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("volume %s initialized as %s\n", args[0], args[1])
		return nil
	},
}
