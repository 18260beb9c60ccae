package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <npc>",
		Short: "Delete an NPC, its memory and its config",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	npcID := args[0]

	e := openEngine(cmd, false)
	defer e.Close()

	if err := e.RemoveNPC(cmd.Context(), npcID); err != nil {
		exitErr("rm", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"npc_id":%q}`+"\n", npcID)
}
