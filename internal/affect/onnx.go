//go:build onnx

package affect

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/rcliao/affect-matrix/internal/model"
)

var ortEnv struct {
	sync.Mutex
	refs int
}

// ONNXPredictor runs a valence/arousal regression model with ONNX Runtime.
type ONNXPredictor struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *WordPiece
	seqLen    int
	closeOnce sync.Once
}

// NewONNX loads the model and tokenizer named by cfg.
func NewONNX(cfg ONNXConfig) (*ONNXPredictor, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: model path is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx: tokenizer path is required")
	}
	if cfg.SequenceLength <= 2 {
		cfg.SequenceLength = 128
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "logits"
	}

	tok, err := LoadWordPiece(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}
	if err := acquireEnv(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{cfg.OutputName},
		nil,
	)
	if err != nil {
		releaseEnv()
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	return &ONNXPredictor{
		session:   session,
		tokenizer: tok,
		seqLen:    cfg.SequenceLength,
	}, nil
}

func (p *ONNXPredictor) Predict(ctx context.Context, text string) (model.EmotionPrediction, error) {
	if err := ctx.Err(); err != nil {
		return model.EmotionPrediction{}, err
	}
	ids, mask, types, err := p.tokenizer.Encode(text, p.seqLen)
	if err != nil {
		return model.EmotionPrediction{}, err
	}

	shape := ort.NewShape(1, int64(p.seqLen))
	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, types} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return model.EmotionPrediction{}, fmt.Errorf("onnx: create input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := p.session.Run(inputs, outputs); err != nil {
		return model.EmotionPrediction{}, fmt.Errorf("onnx: inference failed: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return model.EmotionPrediction{}, fmt.Errorf("onnx: unexpected output tensor type %T", outputs[0])
	}
	data := out.GetData()
	if len(data) < 2 {
		return model.EmotionPrediction{}, fmt.Errorf("onnx: output shape %v has fewer than 2 values", out.GetShape())
	}
	return model.EmotionPrediction{
		Valence: math.Tanh(float64(data[0])),
		Arousal: math.Tanh(float64(data[1])),
	}, nil
}

// Close destroys the session and, with the last predictor, the runtime.
func (p *ONNXPredictor) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.session.Destroy()
		releaseEnv()
	})
	return err
}

func acquireEnv(libPath string) error {
	ortEnv.Lock()
	defer ortEnv.Unlock()
	if ortEnv.refs == 0 && !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx: initialize runtime: %w", err)
		}
	}
	ortEnv.refs++
	return nil
}

func releaseEnv() {
	ortEnv.Lock()
	defer ortEnv.Unlock()
	ortEnv.refs--
	if ortEnv.refs == 0 {
		ort.DestroyEnvironment()
	}
}
