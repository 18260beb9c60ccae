package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/model"
)

func init() {
	evalCmd := &cobra.Command{
		Use:   "evaluate <npc> [text]",
		Short: "Evaluate an interaction and print the NPC's new emotion",
		Long:  "Evaluate an interaction. Text can be positional args or piped via stdin.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runEvaluate,
	}
	evalCmd.Flags().StringP("source", "s", "", "Who the interaction came from")

	emotionCmd := &cobra.Command{
		Use:   "emotion <npc>",
		Short: "Print the NPC's current emotion, overall or towards one source",
		Args:  cobra.ExactArgs(1),
		Run:   runEmotion,
	}
	emotionCmd.Flags().StringP("source", "s", "", "Only interactions from this source")

	RootCmd.AddCommand(evalCmd, emotionCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	npcID := args[0]

	text, err := readInput(args[1:])
	if err != nil {
		exitErr("read stdin", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		exitErr("evaluate", apperr.Errorf(apperr.ConfigInvalid, "", "text is required (positional arg or stdin)"))
	}

	e := openEngine(cmd, true)
	defer e.Close()

	emo, err := e.Evaluate(cmd.Context(), npcID, text, source)
	if err != nil {
		exitErr("evaluate", err)
	}
	printEmotion(npcID, source, emo)
}

func runEmotion(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	npcID := args[0]

	e := openEngine(cmd, false)
	defer e.Close()

	var (
		emo model.EmotionPrediction
		err error
	)
	if source != "" {
		emo, err = e.EmotionTowards(cmd.Context(), npcID, source)
	} else {
		emo, err = e.CurrentEmotion(cmd.Context(), npcID)
	}
	if err != nil {
		exitErr("emotion", err)
	}
	printEmotion(npcID, source, emo)
}

func printEmotion(npcID, source string, emo model.EmotionPrediction) {
	if formatFlag == "text" {
		fmt.Printf("valence=%.4f arousal=%.4f\n", emo.Valence, emo.Arousal)
		return
	}
	out := map[string]any{"npc_id": npcID, "emotion": emo}
	if source != "" {
		out["source_id"] = source
	}
	printJSON(out)
}
