package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/rcliao/affect-matrix/internal/affect"
	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/model"
)

// Metrics holds the engine's instruments on a private registry.
type Metrics struct {
	registry       *prometheus.Registry
	evaluations    *prometheus.CounterVec
	predictSeconds prometheus.Histogram
}

func newMetrics(liveSessions func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "affect_matrix_evaluations_total",
			Help: "Interaction evaluations by outcome.",
		}, []string{"outcome"}),
		predictSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "affect_matrix_predict_seconds",
			Help:    "Affect predictor latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	live := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "affect_matrix_live_sessions",
		Help: "NPCs with a live evaluator.",
	}, liveSessions)
	m.registry.MustRegister(m.evaluations, m.predictSeconds, live)
	return m
}

// Registry exposes the underlying registry, e.g. for a promhttp handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) observeEvaluation(err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	m.evaluations.WithLabelValues(outcome).Inc()
}

// Snapshot flattens the registry into name{labels} -> value. Histograms
// contribute their _count and _sum.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		for _, metric := range mf.GetMetric() {
			labels := labelString(metric.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[name+labels] = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[name+labels] = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				h := metric.GetHistogram()
				out[name+"_count"+labels] = float64(h.GetSampleCount())
				out[name+"_sum"+labels] = h.GetSampleSum()
			}
		}
	}
	return out, nil
}

func labelString(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+`="`+p.GetValue()+`"`)
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}

// timedPredictor records predictor latency.
type timedPredictor struct {
	inner affect.Predictor
	hist  prometheus.Histogram
}

func (p timedPredictor) Predict(ctx context.Context, text string) (model.EmotionPrediction, error) {
	start := time.Now()
	out, err := p.inner.Predict(ctx, text)
	p.hist.Observe(time.Since(start).Seconds())
	return out, err
}
