// Package config loads engine settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/affect-matrix/internal/model"
)

// Predictor backends.
const (
	BackendLexicon = "lexicon"
	BackendONNX    = "onnx"
	BackendHTTP    = "http"
)

// Config is the full engine configuration.
type Config struct {
	Home        string          `yaml:"home"`
	MemoryDir   string          `yaml:"memory_dir"`
	CatalogPath string          `yaml:"catalog_path"`
	LoadWorkers int             `yaml:"load_workers"`
	Predictor   PredictorConfig `yaml:"predictor"`
	Defaults    MemoryDefaults  `yaml:"defaults"`
	Timeouts    Timeouts        `yaml:"timeouts"`
	Log         LogConfig       `yaml:"log"`
}

// PredictorConfig selects and tunes the affect predictor backend.
type PredictorConfig struct {
	Backend       string `yaml:"backend"`
	MaxInputChars int    `yaml:"max_input_chars"`
	CacheEntries  int64  `yaml:"cache_entries"`

	// onnx
	ModelPath         string `yaml:"model_path"`
	TokenizerPath     string `yaml:"tokenizer_path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
	SequenceLength    int    `yaml:"sequence_length"`
	OutputName        string `yaml:"output_name"`

	// http
	URL            string        `yaml:"url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Window WindowConfig `yaml:"window"`
}

// WindowConfig controls how long inputs are split before inference.
type WindowConfig struct {
	TargetSize int `yaml:"target_size"`
	MaxSize    int `yaml:"max_size"`
}

// MemoryDefaults fill unset fields of an NPC's memory config.
type MemoryDefaults struct {
	MaxRecords     int           `yaml:"max_records"`
	DecayHalfLife  time.Duration `yaml:"decay_half_life"`
	BaselineWeight float64       `yaml:"baseline_weight"`
	Eviction       string        `yaml:"eviction"`
}

// MemoryConfig converts the defaults into the model form.
func (d MemoryDefaults) MemoryConfig() model.MemoryConfig {
	return model.MemoryConfig{
		MaxRecords:     d.MaxRecords,
		DecayHalfLife:  model.Duration(d.DecayHalfLife),
		BaselineWeight: d.BaselineWeight,
		Eviction:       d.Eviction,
	}
}

// Timeouts bound engine operations.
type Timeouts struct {
	Operation  time.Duration `yaml:"operation"`
	Initialize time.Duration `yaml:"initialize"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration rooted at ~/.affect-matrix.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Home:        filepath.Join(home, ".affect-matrix"),
		LoadWorkers: 8,
		Predictor: PredictorConfig{
			Backend:        BackendLexicon,
			MaxInputChars:  4096,
			CacheEntries:   10000,
			SequenceLength: 128,
			OutputName:     "logits",
			RequestTimeout: 30 * time.Second,
			Window:         WindowConfig{TargetSize: 300, MaxSize: 400},
		},
		Defaults: MemoryDefaults{
			MaxRecords:     model.DefaultMaxRecords,
			DecayHalfLife:  model.DefaultDecayHalfLife,
			BaselineWeight: model.DefaultBaselineWeight,
			Eviction:       model.EvictFIFO,
		},
		Timeouts: Timeouts{
			Operation:  30 * time.Second,
			Initialize: 2 * time.Minute,
		},
		Log: LogConfig{Level: "warn", Format: "console"},
	}
}

// Load builds a Config from defaults, an optional YAML file, a .env file in
// the working directory and AFFECT_MATRIX_* environment variables, in that
// order of precedence (later wins).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Home, "AFFECT_MATRIX_HOME")
	setString(&c.Predictor.Backend, "AFFECT_MATRIX_PREDICTOR")
	setString(&c.Predictor.ModelPath, "AFFECT_MATRIX_MODEL_PATH")
	setString(&c.Predictor.TokenizerPath, "AFFECT_MATRIX_TOKENIZER_PATH")
	setString(&c.Predictor.SharedLibraryPath, "AFFECT_MATRIX_ORT_LIB")
	setString(&c.Predictor.URL, "AFFECT_MATRIX_PREDICTOR_URL")
	setString(&c.Log.Level, "AFFECT_MATRIX_LOG_LEVEL")
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Home) == "" && (c.MemoryDir == "" || c.CatalogPath == "") {
		return fmt.Errorf("config: home is required")
	}
	switch c.Predictor.Backend {
	case BackendLexicon, BackendONNX, BackendHTTP:
	default:
		return fmt.Errorf("config: unknown predictor backend %q", c.Predictor.Backend)
	}
	if c.Predictor.MaxInputChars <= 0 {
		return fmt.Errorf("config: predictor.max_input_chars must be positive")
	}
	if c.Predictor.CacheEntries < 0 {
		return fmt.Errorf("config: predictor.cache_entries must not be negative")
	}
	if c.LoadWorkers <= 0 {
		return fmt.Errorf("config: load_workers must be positive")
	}
	if c.Timeouts.Operation < 0 || c.Timeouts.Initialize < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if err := c.Defaults.MemoryConfig().Validate(); err != nil {
		return fmt.Errorf("config: defaults: %w", err)
	}
	return nil
}

// MemoryRoot is the directory holding one JSON file per NPC.
func (c Config) MemoryRoot() string {
	if c.MemoryDir != "" {
		return c.MemoryDir
	}
	return filepath.Join(c.Home, "memory")
}

// CatalogFile is the SQLite database holding NPC configs.
func (c Config) CatalogFile() string {
	if c.CatalogPath != "" {
		return c.CatalogPath
	}
	return filepath.Join(c.Home, "catalog.db")
}
