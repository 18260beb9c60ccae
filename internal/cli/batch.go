package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/logging"
	"github.com/rcliao/affect-matrix/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate NDJSON interactions from stdin",
		Long: "Reads one {\"npc_id\",\"text\",\"source_id\"} object per line and writes one result per line, " +
			"in input order. Interactions with the same NPC are evaluated in input order.",
		Run: runBatch,
	}

	cmd.Flags().IntP("workers", "w", 4, "Concurrent evaluations")
	cmd.Flags().Bool("metrics", false, "Print engine metrics to stderr when done")

	RootCmd.AddCommand(cmd)
}

func runBatch(cmd *cobra.Command, args []string) {
	workers, _ := cmd.Flags().GetInt("workers")
	showMetrics, _ := cmd.Flags().GetBool("metrics")

	e := openEngine(cmd, true)
	defer e.Close()

	failed, err := evaluateBatch(cmd.Context(), e, os.Stdin, os.Stdout, workers)
	if err != nil {
		exitErr("batch", err)
	}
	if showMetrics {
		snap, err := e.Metrics().Snapshot()
		if err == nil {
			b, _ := json.MarshalIndent(snap, "", "  ")
			fmt.Fprintln(os.Stderr, string(b))
		}
	}
	if failed > 0 {
		logging.Warnf("%d batch interactions failed", failed)
	}
}

type interactionEvaluator interface {
	Evaluate(ctx context.Context, npcID, text, sourceID string) (model.EmotionPrediction, error)
}

type batchRequest struct {
	NpcID    string `json:"npc_id"`
	Text     string `json:"text"`
	SourceID string `json:"source_id,omitempty"`
}

type batchResult struct {
	Line    int                      `json:"line"`
	NpcID   string                   `json:"npc_id,omitempty"`
	Emotion *model.EmotionPrediction `json:"emotion,omitempty"`
	Error   string                   `json:"error,omitempty"`
	Kind    string                   `json:"kind,omitempty"`
}

type batchItem struct {
	idx int
	req batchRequest
}

// evaluateBatch runs every line of r through ev and writes the results to w
// in input order. Lines for one NPC stay on one worker, so they are
// evaluated in order. It returns the number of failed lines.
func evaluateBatch(ctx context.Context, ev interactionEvaluator, r io.Reader, w io.Writer, workers int) (int, error) {
	if workers <= 0 {
		workers = 1
	}

	var (
		results []batchResult
		shards  = make([][]batchItem, workers)
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		idx := len(results)
		results = append(results, batchResult{Line: line})

		var req batchRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			results[idx].Error = fmt.Sprintf("parse line: %v", err)
			results[idx].Kind = apperr.ConfigInvalid.String()
			continue
		}
		results[idx].NpcID = req.NpcID
		shard := shardFor(req.NpcID, workers)
		shards[shard] = append(shards[shard], batchItem{idx: idx, req: req})
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read batch: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		g.Go(func() error {
			for _, it := range shard {
				if err := gctx.Err(); err != nil {
					return err
				}
				emo, err := ev.Evaluate(gctx, it.req.NpcID, it.req.Text, it.req.SourceID)
				res := &results[it.idx]
				if err != nil {
					res.Error = err.Error()
					res.Kind = apperr.KindOf(err).String()
					continue
				}
				res.Emotion = &emo
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	failed := 0
	enc := json.NewEncoder(w)
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
		if err := enc.Encode(res); err != nil {
			return failed, fmt.Errorf("write result: %w", err)
		}
	}
	return failed, nil
}

func shardFor(npcID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(npcID))
	return int(h.Sum32() % uint32(n))
}
