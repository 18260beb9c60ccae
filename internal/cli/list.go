package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List NPCs",
		Run:   runList,
	}

	cmd.Flags().Bool("ids-only", false, "Only output NPC ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	e := openEngine(cmd, false)
	defer e.Close()

	npcs, err := e.ListNPCs(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, n := range npcs {
			fmt.Println(n.NpcID)
		}
		return
	}
	if formatFlag == "text" {
		for _, n := range npcs {
			fmt.Printf("%s\t%s\tvalence=%.2f arousal=%.2f records=%d\n",
				n.NpcID, n.Config.Identity.Name, n.Config.Personality.Valence, n.Config.Personality.Arousal, n.Records)
		}
		return
	}
	printJSON(npcs)
}
