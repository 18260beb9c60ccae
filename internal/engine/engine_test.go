package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/affect-matrix/internal/affect"
	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/config"
	"github.com/rcliao/affect-matrix/internal/model"
)

// scripted predicts a fixed affect per keyword, neutral otherwise.
func scripted() affect.Predictor {
	return affect.Func(func(_ context.Context, text string) (model.EmotionPrediction, error) {
		switch {
		case strings.Contains(text, "love"):
			return model.EmotionPrediction{Valence: 0.8, Arousal: 0.6}, nil
		case strings.Contains(text, "hate"):
			return model.EmotionPrediction{Valence: -0.8, Arousal: 0.7}, nil
		}
		return model.EmotionPrediction{}, nil
	})
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Home = t.TempDir()
	cfg.LoadWorkers = 2
	return cfg
}

func openEngine(t *testing.T, cfg config.Config, initialize bool) *Engine {
	t.Helper()
	cache := affect.NewModelCache("scripted", affect.Static(scripted()))
	e, err := Open(context.Background(), cfg, WithModelCache(cache))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	if initialize {
		require.NoError(t, e.Initialize(context.Background()))
	}
	return e
}

func npcConfig(name string, v, a float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"identity":{"name":%q},"personality":{"valence":%g,"arousal":%g}}`, name, v, a))
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t), true)

	id, err := e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, "mira", id)

	baseline, err := e.CurrentEmotion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.EmotionPrediction{}, baseline)

	got, err := e.Evaluate(ctx, id, "I love your forge", "player")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got.Valence, 1e-6)
	assert.InDelta(t, 0.3, got.Arousal, 1e-6)

	towards, err := e.EmotionTowards(ctx, id, "player")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, towards.Valence, 1e-6)

	stranger, err := e.EmotionTowards(ctx, id, "stranger")
	require.NoError(t, err)
	assert.Equal(t, model.EmotionPrediction{}, stranger)

	snap, err := e.Memory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, snap.Count)
	assert.Equal(t, "player", snap.Records[0].SourceID)

	list, err := e.ListNPCs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Live)
	assert.Equal(t, 1, list[0].Records)
	assert.Equal(t, model.DefaultMaxRecords, list[0].Config.MemoryConfig.MaxRecords)

	st, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.NPCs)
	assert.Equal(t, 1, st.LiveSessions)
	assert.True(t, st.ModelReady)
	assert.Equal(t, 1.0, st.Metrics[`affect_matrix_evaluations_total{outcome="ok"}`])
	assert.Equal(t, 1.0, st.Metrics["affect_matrix_predict_seconds_count"])
	assert.Equal(t, 1.0, st.Metrics["affect_matrix_live_sessions"])
}

func TestEvaluateBeforeInitialize(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t), false)
	_, err := e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0)})
	require.NoError(t, err)

	_, err = e.Evaluate(ctx, "mira", "hello", "")
	assert.True(t, errors.Is(err, apperr.ErrModelNotReady))

	snap, err := e.Memory(ctx, "mira")
	require.NoError(t, err)
	assert.Zero(t, snap.Count)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t), true)

	cases := []struct {
		name string
		req  CreateRequest
		kind apperr.Kind
	}{
		{"valence out of range", CreateRequest{ID: "a", Config: npcConfig("A", 1.2, 0)}, apperr.ConfigInvalid},
		{"unknown field", CreateRequest{ID: "a", Config: json.RawMessage(`{"identity":{"name":"A"},"mood":"grumpy"}`)}, apperr.ConfigInvalid},
		{"missing name", CreateRequest{ID: "a", Config: json.RawMessage(`{"personality":{"valence":0}}`)}, apperr.ConfigInvalid},
		{"bad id", CreateRequest{ID: "a/b", Config: npcConfig("A", 0, 0)}, apperr.ConfigInvalid},
		{"bad seed record", CreateRequest{ID: "a", Config: npcConfig("A", 0, 0),
			Memory: json.RawMessage(`[{"text":"hi","valence":3,"arousal":0,"timestamp":"2024-01-01T00:00:00Z"}]`)}, apperr.ConfigInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CreateNPC(ctx, tc.req)
			assert.Equal(t, tc.kind, apperr.KindOf(err), "err: %v", err)
		})
	}

	list, err := e.ListNPCs(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "failed creates must leave nothing behind")
}

func TestCreateDuplicateAndGeneratedID(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t), true)

	_, err := e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0)})
	require.NoError(t, err)
	_, err = e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Other", 0, 0)})
	assert.True(t, errors.Is(err, apperr.ErrAlreadyExists))

	id, err := e.CreateNPC(ctx, CreateRequest{Config: npcConfig("Anon", 0, 0)})
	require.NoError(t, err)
	assert.Len(t, id, 26)
	assert.NoError(t, model.ValidateNpcID(id))
}

func TestCreateWithSeedMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := affect.NewModelCache("scripted", affect.Static(scripted()))
	e, err := Open(ctx, testConfig(t), WithModelCache(cache), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	defer e.Close()

	seed := fmt.Sprintf(`[{"source_id":"rival","text":"you cheated","valence":-0.6,"arousal":0.4,"timestamp":%q}]`,
		now.Format(time.RFC3339Nano))
	_, err = e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0), Memory: json.RawMessage(seed)})
	require.NoError(t, err)

	got, err := e.EmotionTowards(ctx, "mira", "rival")
	require.NoError(t, err)
	assert.InDelta(t, -0.3, got.Valence, 1e-9)
	assert.InDelta(t, 0.2, got.Arousal, 1e-9)
}

func TestRemoveThenRecreateStartsEmpty(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t), true)

	_, err := e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0)})
	require.NoError(t, err)
	_, err = e.Evaluate(ctx, "mira", "I hate this", "player")
	require.NoError(t, err)

	require.NoError(t, e.RemoveNPC(ctx, "mira"))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(e.RemoveNPC(ctx, "mira")))
	_, err = e.Memory(ctx, "mira")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, err = e.Evaluate(ctx, "mira", "hello", "")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0.2, 0)})
	require.NoError(t, err)
	snap, err := e.Memory(ctx, "mira")
	require.NoError(t, err)
	assert.Zero(t, snap.Count)

	got, err := e.CurrentEmotion(ctx, "mira")
	require.NoError(t, err)
	assert.Equal(t, model.EmotionPrediction{Valence: 0.2}, got)
}

func TestRemoveDuringEvaluationLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	blocking := affect.Func(func(_ context.Context, text string) (model.EmotionPrediction, error) {
		if strings.Contains(text, "hello") {
			once.Do(func() { close(entered) })
			<-release
		}
		return model.EmotionPrediction{Valence: 0.8}, nil
	})
	cache := affect.NewModelCache("blocking", affect.Static(blocking))
	e, err := Open(ctx, cfg, WithModelCache(cache))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.Initialize(ctx))

	_, err = e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0)})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.Evaluate(ctx, "mira", "hello there", "player")
		done <- err
	}()
	<-entered
	require.NoError(t, e.RemoveNPC(ctx, "mira"))
	close(release)

	assert.Equal(t, apperr.NotFound, apperr.KindOf(<-done))
	_, err = os.Stat(filepath.Join(cfg.MemoryRoot(), "mira.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "memory file came back: %v", err)

	dump, err := e.ExportMemory(ctx, "")
	require.NoError(t, err)
	assert.NotContains(t, dump, "mira")
	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.LiveSessions)
	assert.Zero(t, stats.Memory.TotalRecords)

	_, err = e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0)})
	require.NoError(t, err)
	snap, err := e.Memory(ctx, "mira")
	require.NoError(t, err)
	assert.Zero(t, snap.Count)
}

func TestEndSessionKeepsMemory(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t), true)

	_, err := e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0)})
	require.NoError(t, err)
	before, err := e.Evaluate(ctx, "mira", "I love it", "")
	require.NoError(t, err)

	require.NoError(t, e.EndSession("mira"))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(e.EndSession("mira")))

	// the next call restores the session from the catalog
	after, err := e.CurrentEmotion(ctx, "mira")
	require.NoError(t, err)
	assert.InDelta(t, before.Valence, after.Valence, 1e-6)
}

func TestRestartRecovery(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first := openEngine(t, cfg, true)
	_, err := first.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0.1, 0.1)})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := first.Evaluate(ctx, "mira", "I love you", "player")
		require.NoError(t, err)
	}
	want, err := first.CurrentEmotion(ctx, "mira")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// a corrupt neighbour must not stop the restart
	require.NoError(t, os.WriteFile(filepath.Join(cfg.MemoryRoot(), "broken.json"), []byte("[{"), 0o644))

	second := openEngine(t, cfg, true)
	report := second.LoadReport()
	assert.Equal(t, 1, report.Loaded)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "broken", report.Skipped[0].NpcID)

	got, err := second.CurrentEmotion(ctx, "mira")
	require.NoError(t, err)
	assert.InDelta(t, want.Valence, got.Valence, 1e-3)
	assert.InDelta(t, want.Arousal, got.Arousal, 1e-3)

	snap, err := second.Memory(ctx, "mira")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Count)
}

func TestClearImportExport(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Defaults.MaxRecords = 2
	e := openEngine(t, cfg, true)

	_, err := e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0)})
	require.NoError(t, err)
	_, err = e.Evaluate(ctx, "mira", "I love it", "")
	require.NoError(t, err)

	require.NoError(t, e.ClearMemory(ctx, "mira"))
	require.NoError(t, e.ClearMemory(ctx, "mira"))
	snap, err := e.Memory(ctx, "mira")
	require.NoError(t, err)
	assert.Zero(t, snap.Count)

	raw := json.RawMessage(`[
		{"text":"one","valence":0.1,"arousal":0,"timestamp":"2024-01-01T00:00:00Z"},
		{"text":"two","valence":0.2,"arousal":0,"timestamp":"2024-01-01T00:01:00Z"},
		{"text":"three","valence":0.3,"arousal":0,"timestamp":"2024-01-01T00:02:00Z"}
	]`)
	n, err := e.ImportMemory(ctx, "mira", raw)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "import honours max_records")

	dump, err := e.ExportMemory(ctx, "")
	require.NoError(t, err)
	require.Len(t, dump["mira"], 2)
	assert.Equal(t, "two", dump["mira"][0].Text)

	_, err = e.ExportMemory(ctx, "ghost")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(e.ClearMemory(ctx, "ghost")))
	_, err = e.ImportMemory(ctx, "ghost", raw)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestConcurrentEvaluateAcrossNPCs(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t), true)

	ids := []string{"alice", "bob", "carol"}
	for _, id := range ids {
		_, err := e.CreateNPC(ctx, CreateRequest{ID: id, Config: npcConfig(id, 0, 0)})
		require.NoError(t, err)
	}
	// sessions are ended so the first calls race to restore them
	for _, id := range ids {
		require.NoError(t, e.EndSession(id))
	}

	const perNPC = 20
	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < perNPC; i++ {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				_, err := e.Evaluate(ctx, id, fmt.Sprintf("I love message %d", i), "")
				assert.NoError(t, err)
			}(id, i)
		}
	}
	wg.Wait()

	for _, id := range ids {
		snap, err := e.Memory(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, perNPC, snap.Count, id)
	}
}

func TestEmotionTowardsRequiresSource(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t), true)
	_, err := e.CreateNPC(ctx, CreateRequest{ID: "mira", Config: npcConfig("Mira", 0, 0)})
	require.NoError(t, err)

	_, err = e.EmotionTowards(ctx, "mira", "  ")
	assert.Equal(t, apperr.ConfigInvalid, apperr.KindOf(err))
}
