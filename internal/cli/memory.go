package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	memCmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or clear an NPC's memory",
	}

	getCmd := &cobra.Command{
		Use:   "get <npc>",
		Short: "Print every memory record of an NPC",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryGet,
	}
	getCmd.Flags().IntP("last", "l", 0, "Only the most recent N records")

	clearCmd := &cobra.Command{
		Use:   "clear <npc>",
		Short: "Delete every memory record of an NPC",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryClear,
	}

	memCmd.AddCommand(getCmd, clearCmd)
	RootCmd.AddCommand(memCmd)
}

func runMemoryGet(cmd *cobra.Command, args []string) {
	last, _ := cmd.Flags().GetInt("last")

	e := openEngine(cmd, false)
	defer e.Close()

	snap, err := e.Memory(cmd.Context(), args[0])
	if err != nil {
		exitErr("memory get", err)
	}
	if last > 0 && len(snap.Records) > last {
		snap.Records = snap.Records[len(snap.Records)-last:]
	}

	if formatFlag == "text" {
		for _, r := range snap.Records {
			src := r.SourceID
			if src == "" {
				src = "-"
			}
			fmt.Printf("%s\t%s\tv=%+.2f a=%+.2f\t%s\n",
				r.Timestamp.Local().Format(time.DateTime), src, r.Valence, r.Arousal, r.Text)
		}
		return
	}
	printJSON(snap)
}

func runMemoryClear(cmd *cobra.Command, args []string) {
	npcID := args[0]

	e := openEngine(cmd, false)
	defer e.Close()

	if err := e.ClearMemory(cmd.Context(), npcID); err != nil {
		exitErr("memory clear", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"npc_id":%q}`+"\n", npcID)
}
