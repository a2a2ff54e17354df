package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var testAPICmd = &cobra.Command{
	Use:   "test-api",
	Short: "Sends a synthetic summary to the configured API endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ring := getSnapRing()
		if !ring.Config.API.Enabled || ring.Reporter == nil {
			return fmt.Errorf("api is not enabled in the configuration")
		}

		fmt.Println("Sending test summary to:", ring.Config.API.Endpoint)
		response, err := ring.Reporter.Send(context.Background(), ring.TestSummary())
		if err != nil {
			return err
		}
		fmt.Println("API connection OK:", response)
		return nil
	},
}
