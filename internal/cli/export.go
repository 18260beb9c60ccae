package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memory as JSON",
		Long:  "Export memory logs as a JSON object keyed by NPC id. Filter to one NPC with --npc.",
		Run:   runExport,
	}

	cmd.Flags().String("npc", "", "Only this NPC")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	npcID, _ := cmd.Flags().GetString("npc")

	e := openEngine(cmd, false)
	defer e.Close()

	dump, err := e.ExportMemory(cmd.Context(), npcID)
	if err != nil {
		exitErr("export", err)
	}

	if npcID != "" {
		// the bare array is what import reads back
		printJSON(dump[npcID])
		return
	}
	printJSON(dump)
}
