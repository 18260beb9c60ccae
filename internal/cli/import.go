package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import <npc>",
		Short: "Replace an NPC's memory from JSON",
		Long:  "Replace an NPC's memory with a JSON array of records (stdin or --file). Expects the per-NPC format produced by export.",
		Args:  cobra.ExactArgs(1),
		Run:   runImport,
	}

	cmd.Flags().String("file", "", "Records JSON file (default: stdin)")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")
	npcID := args[0]

	data, err := readFileOrStdin(file)
	if err != nil {
		exitErr("read input", err)
	}

	e := openEngine(cmd, false)
	defer e.Close()

	kept, err := e.ImportMemory(cmd.Context(), npcID, data)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"npc_id":%q,"imported":%d}`+"\n", npcID, kept)
}
