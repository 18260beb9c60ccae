// Package cli implements the affect-matrix CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/config"
	"github.com/rcliao/affect-matrix/internal/engine"
	"github.com/rcliao/affect-matrix/internal/logging"
)

var (
	homeDir    string
	configPath string
	logLevel   string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "affect-matrix",
	Short: "Persistent emotional state for NPCs",
	Long:  "Evaluate interactions against NPCs and track how they feel. Memory is kept per NPC on disk, NPC configs in SQLite.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Data directory (default: $AFFECT_MATRIX_HOME or ~/.affect-matrix)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, cfg.Validate()
}

// openEngine loads config, sets up logging and opens the engine. With load
// set the predictor is initialized too.
func openEngine(cmd *cobra.Command, load bool) *engine.Engine {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", apperr.E(apperr.ConfigInvalid, "", err))
	}
	if err := logging.Init(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		exitErr("init logging", apperr.E(apperr.ConfigInvalid, "", err))
	}

	e, err := engine.Open(cmd.Context(), cfg)
	if err != nil {
		exitErr("open engine", err)
	}
	if load {
		if err := e.Initialize(cmd.Context()); err != nil {
			e.Close()
			exitErr("initialize model", err)
		}
	}
	return e
}

// exitCode maps an error kind to the process exit status.
func exitCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ConfigInvalid:
		return 2
	case apperr.NotFound:
		return 3
	case apperr.AlreadyExists:
		return 4
	}
	return 1
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	logging.Sync()
	os.Exit(exitCode(err))
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// readInput returns args joined, or piped stdin when there are no args.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
