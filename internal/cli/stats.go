package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog, memory and predictor statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	e := openEngine(cmd, false)
	defer e.Close()

	stats, err := e.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if formatFlag == "text" {
		fmt.Printf("npcs: %d (live %d)\nrecords: %d\nbytes: %d\nbackend: %s (ready %t)\n",
			stats.NPCs, stats.LiveSessions, stats.Memory.TotalRecords, stats.Memory.TotalBytes,
			stats.Backend, stats.ModelReady)
		return
	}
	printJSON(stats)
}
