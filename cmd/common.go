package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	snapring "github.com/snapring/snapring/lib"
)

func errorCheck(prefix string, err error) {
	if err != nil {
		fmt.Printf("ERROR: %s: %s\n", prefix, err)
		if hint := snapring.Guidance(err); hint != "" {
			fmt.Printf("hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func getSnapRing() *snapring.SnapRing {
	cfg := &snapring.Config{}
	errorCheck("loading configuration", viper.Unmarshal(cfg))
	cfg.ApplyDefaults()
	errorCheck("validating configuration", cfg.Validate())

	recorder := snapring.NewSessionRecorder()
	snapring.SetLogger(snapring.NewSessionLogger(recorder, verbose))

	ring := snapring.New(cfg, snapring.NewCommandImager(cfg.ImagerPath))
	ring.Recorder = recorder
	if cfg.API.Enabled {
		ring.Reporter = snapring.NewAPIReporter(cfg.API)
	}
	return ring
}
