package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Load the affect predictor and report readiness",
		Run:   runInit,
	}

	RootCmd.AddCommand(cmd)
}

func runInit(cmd *cobra.Command, args []string) {
	e := openEngine(cmd, true)
	defer e.Close()

	st, err := e.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	if formatFlag == "text" {
		fmt.Printf("backend %s ready=%t npcs=%d\n", st.Backend, st.ModelReady, st.NPCs)
		return
	}
	printJSON(map[string]any{
		"ok":        true,
		"backend":   st.Backend,
		"ready":     st.ModelReady,
		"npcs":      st.NPCs,
		"last_load": st.LastLoad,
	})
}
