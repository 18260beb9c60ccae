package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/engine"
	"github.com/rcliao/affect-matrix/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an NPC",
		Long: "Create an NPC from flags or from a JSON config file (--config-file). " +
			"Memory can be seeded from a JSON array of records (--memory-file).",
		Run: runCreate,
	}

	cmd.Flags().String("id", "", "NPC id (default: generated)")
	cmd.Flags().StringP("name", "n", "", "Name")
	cmd.Flags().String("background", "", "Background text")
	cmd.Flags().Float64("valence", 0, "Baseline valence [-1, 1]")
	cmd.Flags().Float64("arousal", 0, "Baseline arousal [-1, 1]")
	cmd.Flags().Int("max-records", 0, "Memory cap (default from config)")
	cmd.Flags().Duration("half-life", 0, "Decay half-life, e.g. 12h (default from config)")
	cmd.Flags().Float64("baseline-weight", 0, "Weight of the personality baseline (default from config)")
	cmd.Flags().String("eviction", "", "Eviction policy: fifo or lowest_weight")
	cmd.Flags().String("config-file", "", "NPC config JSON file (- for stdin)")
	cmd.Flags().String("memory-file", "", "Seed memory JSON file")

	RootCmd.AddCommand(cmd)
}

func runCreate(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	configFile, _ := cmd.Flags().GetString("config-file")
	memoryFile, _ := cmd.Flags().GetString("memory-file")

	var raw json.RawMessage
	if configFile != "" {
		b, err := readFileOrStdin(configFile)
		if err != nil {
			exitErr("read config file", err)
		}
		raw = b
	} else {
		name, _ := cmd.Flags().GetString("name")
		background, _ := cmd.Flags().GetString("background")
		valence, _ := cmd.Flags().GetFloat64("valence")
		arousal, _ := cmd.Flags().GetFloat64("arousal")
		maxRecords, _ := cmd.Flags().GetInt("max-records")
		halfLife, _ := cmd.Flags().GetDuration("half-life")
		baselineWeight, _ := cmd.Flags().GetFloat64("baseline-weight")
		eviction, _ := cmd.Flags().GetString("eviction")

		if name == "" {
			exitErr("create", apperr.Errorf(apperr.ConfigInvalid, "", "--name or --config-file is required"))
		}
		b, err := json.Marshal(model.NpcConfig{
			Identity:    model.Identity{Name: name, Background: background},
			Personality: model.PersonalityTraits{Valence: valence, Arousal: arousal},
			MemoryConfig: model.MemoryConfig{
				MaxRecords:     maxRecords,
				DecayHalfLife:  model.Duration(halfLife),
				BaselineWeight: baselineWeight,
				Eviction:       eviction,
			},
		})
		if err != nil {
			exitErr("encode config", err)
		}
		raw = b
	}

	var seed json.RawMessage
	if memoryFile != "" {
		b, err := readFileOrStdin(memoryFile)
		if err != nil {
			exitErr("read memory file", err)
		}
		seed = b
	}

	e := openEngine(cmd, false)
	defer e.Close()

	npcID, err := e.CreateNPC(cmd.Context(), engine.CreateRequest{ID: id, Config: raw, Memory: seed})
	if err != nil {
		exitErr("create", err)
	}

	if formatFlag == "text" {
		fmt.Println(npcID)
		return
	}
	fmt.Printf(`{"ok":true,"npc_id":%q}`+"\n", npcID)
}
