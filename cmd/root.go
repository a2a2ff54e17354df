package cmd

import (
	"fmt"
	"os"
	"path"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	snapring "github.com/snapring/snapring/lib"
)

var (
	Version   = "No Version Provided"
	BuildHash = "No BuildHash Provided"
	BuildTime = "No BuildTime Provided"
)

var (
	cfgFile    string
	verbose    bool
	pinnedDisk string
)

var RootCmd = &cobra.Command{
	Use:   "snapring",
	Short: "Rotating disk-image backups with differential cycles",
	Long: `Snapring - rotating disk-image backups with differential cycles

Snapring wraps an external disk-imaging tool, tracks full/differential
backup cycles per removable disk, and reclaims space by deleting the
oldest complete cycles while honoring a retention floor. Backup disks
are recognized by an identity marker written at their volume root.

Running snapring without a subcommand performs the automatic backup
(full or differential, decided from the persisted cycle state).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup("", false)
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println("ERROR:", err)
		if hint := snapring.Guidance(err); hint != "" {
			fmt.Println("hint:", hint)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(backupCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(scanCmd)
	RootCmd.AddCommand(initDiskCmd)
	RootCmd.AddCommand(cleanupCmd)
	RootCmd.AddCommand(testAPICmd)
	RootCmd.AddCommand(versionCmd)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.snapring/config)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	RootCmd.PersistentFlags().StringVar(&pinnedDisk, "disk", "", "Pin the target disk by id instead of picking by free space")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(path.Join(home, ".snapring"))
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("SNAPRING")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
