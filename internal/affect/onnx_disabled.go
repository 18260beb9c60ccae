//go:build !onnx

package affect

import (
	"context"
	"errors"

	"github.com/rcliao/affect-matrix/internal/model"
)

var errONNXDisabled = errors.New("onnx backend not compiled in; rebuild with -tags onnx")

// ONNXPredictor is unavailable in builds without the onnx tag.
type ONNXPredictor struct{}

// NewONNX always fails in builds without the onnx tag.
func NewONNX(ONNXConfig) (*ONNXPredictor, error) {
	return nil, errONNXDisabled
}

func (*ONNXPredictor) Predict(context.Context, string) (model.EmotionPrediction, error) {
	return model.EmotionPrediction{}, errONNXDisabled
}

func (*ONNXPredictor) Close() error { return nil }
