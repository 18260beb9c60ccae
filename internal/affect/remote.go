package affect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rcliao/affect-matrix/internal/model"
)

// HTTPPredictor calls a remote inference service.
//
//	POST {baseURL}/predict  {"text": "..."}  ->  {"valence": v, "arousal": a}
//	GET  {baseURL}/health   -> 200 when the model is served
type HTTPPredictor struct {
	baseURL string
	client  *http.Client
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Valence *float64 `json:"valence"`
	Arousal *float64 `json:"arousal"`
}

// NewHTTPPredictor creates a client for the service at baseURL.
func NewHTTPPredictor(baseURL string, timeout time.Duration) *HTTPPredictor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPredictor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Ping checks that the service is up.
func (p *HTTPPredictor) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("predictor health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("predictor health check: status %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPPredictor) Predict(ctx context.Context, text string) (model.EmotionPrediction, error) {
	body, _ := json.Marshal(predictRequest{Text: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return model.EmotionPrediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return model.EmotionPrediction{}, fmt.Errorf("predictor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.EmotionPrediction{}, fmt.Errorf("predictor error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.EmotionPrediction{}, fmt.Errorf("decode predictor response: %w", err)
	}
	if result.Valence == nil || result.Arousal == nil {
		return model.EmotionPrediction{}, fmt.Errorf("predictor response missing valence or arousal")
	}
	return model.EmotionPrediction{Valence: *result.Valence, Arousal: *result.Arousal}, nil
}
