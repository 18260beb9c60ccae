package affect

import (
	"context"
	"fmt"

	"github.com/rcliao/affect-matrix/internal/chunker"
	"github.com/rcliao/affect-matrix/internal/config"
)

// ONNXConfig locates the model artifacts for the onnx backend.
type ONNXConfig struct {
	ModelPath         string
	TokenizerPath     string
	SharedLibraryPath string
	SequenceLength    int
	OutputName        string
}

// NewLoader returns the loader for the configured backend. Nothing is
// loaded until the returned Loader runs.
func NewLoader(cfg config.PredictorConfig) (Loader, error) {
	window := chunker.Options{TargetSize: cfg.Window.TargetSize, MaxSize: cfg.Window.MaxSize}

	switch cfg.Backend {
	case "", config.BackendLexicon:
		return func(context.Context) (Predictor, error) {
			return NewLexicon(), nil
		}, nil

	case config.BackendHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("predictor backend %q requires a url", cfg.Backend)
		}
		return func(ctx context.Context) (Predictor, error) {
			p := NewHTTPPredictor(cfg.URL, cfg.RequestTimeout)
			if err := p.Ping(ctx); err != nil {
				return nil, err
			}
			return NewWindowed(p, window), nil
		}, nil

	case config.BackendONNX:
		oc := ONNXConfig{
			ModelPath:         cfg.ModelPath,
			TokenizerPath:     cfg.TokenizerPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			SequenceLength:    cfg.SequenceLength,
			OutputName:        cfg.OutputName,
		}
		return func(context.Context) (Predictor, error) {
			p, err := NewONNX(oc)
			if err != nil {
				return nil, err
			}
			return NewWindowed(p, window), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown predictor backend %q", cfg.Backend)
}

// NewFromConfig builds an uninitialized ModelCache for cfg.
func NewFromConfig(cfg config.PredictorConfig) (*ModelCache, error) {
	load, err := NewLoader(cfg)
	if err != nil {
		return nil, err
	}
	backend := cfg.Backend
	if backend == "" {
		backend = config.BackendLexicon
	}
	return NewModelCache(backend, load,
		WithMaxInputChars(cfg.MaxInputChars),
		WithMemo(cfg.CacheEntries),
	), nil
}

// Static returns a Loader that hands out p. Tests and embedders use it to
// plug a ready predictor into a ModelCache.
func Static(p Predictor) Loader {
	return func(context.Context) (Predictor, error) { return p, nil }
}
