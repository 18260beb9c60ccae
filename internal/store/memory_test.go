package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/model"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(filepath.Join(t.TempDir(), "memory"), 4)
	if err != nil {
		t.Fatalf("create memory store: %v", err)
	}
	return s
}

func rec(text string, v float64, at time.Time) model.MemoryRecord {
	return model.NewRecord("", text, model.EmotionPrediction{Valence: v, Arousal: 0.1}, at)
}

func fifo(max int) Retention {
	return Retention{MaxRecords: max, Eviction: model.EvictFIFO, HalfLife: time.Hour, Now: t0}
}

func TestAppendAndAll(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)

	got, err := s.All(ctx, "bob")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, "bob", rec(fmt.Sprintf("msg %d", i), 0.1, t0.Add(time.Duration(i)*time.Second)), fifo(10)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got, _ = s.All(ctx, "bob")
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, r := range got {
		if r.Text != fmt.Sprintf("msg %d", i) {
			t.Errorf("record %d out of order: %q", i, r.Text)
		}
	}

	// All hands out a copy
	got[0].Text = "mutated"
	again, _ := s.All(ctx, "bob")
	if again[0].Text != "msg 0" {
		t.Error("All must not expose internal state")
	}
}

func TestAppendPersistsBeforeReturning(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	if _, err := s.Append(ctx, "bob", rec("hello", 0.5, t0), fifo(10)); err != nil {
		t.Fatalf("append: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(s.Root(), "bob.json"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var onDisk []model.MemoryRecord
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	if len(onDisk) != 1 || onDisk[0].Text != "hello" {
		t.Errorf("unexpected file contents: %s", b)
	}

	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 1 {
		t.Errorf("expected only the committed file, found %d entries", len(entries))
	}
}

func TestAppendEvictsFIFO(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	for i := 0; i < 7; i++ {
		committed, err := s.Append(ctx, "bob", rec(fmt.Sprintf("m%d", i), 0, t0.Add(time.Duration(i)*time.Minute)), fifo(3))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		got, _ := s.All(ctx, "bob")
		if len(got) > 3 {
			t.Fatalf("record count %d exceeds max 3", len(got))
		}
		if len(committed) != len(got) || committed[len(committed)-1].Text != fmt.Sprintf("m%d", i) {
			t.Fatalf("append returned %d records ending %q, store holds %d", len(committed), committed[len(committed)-1].Text, len(got))
		}
	}
	got, _ := s.All(ctx, "bob")
	want := []string{"m4", "m5", "m6"}
	for i, r := range got {
		if r.Text != want[i] {
			t.Errorf("record %d = %q, want %q", i, r.Text, want[i])
		}
	}
}

func TestEvictLowestWeight(t *testing.T) {
	ret := Retention{MaxRecords: 2, Eviction: model.EvictLowestWeight, HalfLife: time.Hour, Now: t0}
	records := []model.MemoryRecord{
		rec("recent", 0, t0.Add(-time.Minute)),
		rec("ancient", 0, t0.Add(-48*time.Hour)),
		rec("old", 0, t0.Add(-2*time.Hour)),
	}
	kept, n := evict(records, ret)
	if n != 1 || len(kept) != 2 {
		t.Fatalf("expected 1 evicted and 2 kept, got %d/%d", n, len(kept))
	}
	if kept[0].Text != "recent" || kept[1].Text != "old" {
		t.Errorf("expected ancient evicted with order kept, got %q %q", kept[0].Text, kept[1].Text)
	}
}

func TestImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	in := []model.MemoryRecord{
		model.NewRecord("p1", "first", model.EmotionPrediction{Valence: 0.4, Arousal: -0.2}, t0),
		model.NewRecord("", "second", model.EmotionPrediction{Valence: -0.3, Arousal: 0.9}, t0.Add(time.Second)),
	}
	if err := s.Import(ctx, "bob", in, fifo(10)); err != nil {
		t.Fatalf("import: %v", err)
	}

	// a fresh store reads the same thing back from disk
	s2, _ := NewMemoryStore(s.Root(), 1)
	out, err := s2.All(ctx, "bob")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d records, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i].SourceID != in[i].SourceID || out[i].Text != in[i].Text ||
			out[i].Valence != in[i].Valence || out[i].Arousal != in[i].Arousal ||
			!out[i].Timestamp.Equal(in[i].Timestamp) {
			t.Errorf("record %d differs: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	s.Append(ctx, "bob", rec("keep me", 0.2, t0), fifo(10))

	bad := []model.MemoryRecord{rec("fine", 0.1, t0), {Text: "broken", Valence: 7, Timestamp: t0}}
	err := s.Import(ctx, "bob", bad, fifo(10))
	if apperr.KindOf(err) != apperr.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
	got, _ := s.All(ctx, "bob")
	if len(got) != 1 || got[0].Text != "keep me" {
		t.Errorf("failed import must leave history untouched, got %+v", got)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	s.Append(ctx, "bob", rec("a", 0.2, t0), fifo(10))

	for i := 0; i < 2; i++ {
		if err := s.Clear(ctx, "bob"); err != nil {
			t.Fatalf("clear %d: %v", i, err)
		}
		got, _ := s.All(ctx, "bob")
		if len(got) != 0 {
			t.Fatalf("expected empty history after clear, got %d", len(got))
		}
	}
	b, _ := os.ReadFile(filepath.Join(s.Root(), "bob.json"))
	var onDisk []model.MemoryRecord
	json.Unmarshal(b, &onDisk)
	if len(onDisk) != 0 {
		t.Errorf("expected empty file after clear, got %s", b)
	}

	if err := s.Clear(ctx, "nobody"); err != nil {
		t.Errorf("clear of unknown npc: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "nobody.json")); !os.IsNotExist(err) {
		t.Error("clear must not create a file for an unknown npc")
	}
}

func TestRemoveNPC(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	s.Append(ctx, "bob", rec("a", 0.2, t0), fifo(10))
	if !s.Exists("bob") {
		t.Fatal("expected bob to exist")
	}

	if err := s.RemoveNPC(ctx, "bob"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.Exists("bob") {
		t.Error("expected bob gone")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "bob.json")); !os.IsNotExist(err) {
		t.Error("expected memory file deleted")
	}
	got, _ := s.All(ctx, "bob")
	if len(got) != 0 {
		t.Errorf("expected empty history after remove, got %d", len(got))
	}
	if err := s.RemoveNPC(ctx, "bob"); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestLoadAllFromDiskSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	s.Append(ctx, "alice", rec("a", 0.2, t0), fifo(10))
	s.Append(ctx, "bob", rec("b", 0.2, t0), fifo(10))

	os.WriteFile(filepath.Join(s.Root(), "carol.json"), []byte("{not json"), 0o644)
	os.WriteFile(filepath.Join(s.Root(), "dave.json"), []byte(`[{"text":"x","valence":9,"arousal":0,"timestamp":"2024-01-01T00:00:00Z"}]`), 0o644)
	os.WriteFile(filepath.Join(s.Root(), "bob.1234.tmp"), []byte("partial"), 0o644)
	os.WriteFile(filepath.Join(s.Root(), "notes.txt"), []byte("ignored"), 0o644)

	fresh, _ := NewMemoryStore(s.Root(), 2)
	report, err := fresh.LoadAllFromDisk(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if report.Loaded != 2 {
		t.Errorf("expected 2 loaded, got %d", report.Loaded)
	}
	if len(report.Skipped) != 2 || report.Skipped[0].NpcID != "carol" || report.Skipped[1].NpcID != "dave" {
		t.Errorf("unexpected skipped list %+v", report.Skipped)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "bob.1234.tmp")); !os.IsNotExist(err) {
		t.Error("expected stale temp file cleaned up")
	}

	got, _ := fresh.All(ctx, "alice")
	if len(got) != 1 {
		t.Errorf("expected alice's record loaded, got %d", len(got))
	}
	if _, err := fresh.All(ctx, "carol"); apperr.KindOf(err) != apperr.PersistenceFailed {
		t.Errorf("expected PersistenceFailed reading corrupt unit, got %v", err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, "bob", rec(fmt.Sprintf("b%d", i), 0, t0), fifo(1000))
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, "alice", rec(fmt.Sprintf("a%d", i), 0, t0), fifo(1000))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	for _, id := range []string{"alice", "bob"} {
		got, _ := s.All(ctx, id)
		if len(got) != n {
			t.Errorf("%s: expected %d records, got %d", id, n, len(got))
		}
	}
	fresh, _ := NewMemoryStore(s.Root(), 1)
	got, _ := fresh.All(ctx, "bob")
	if len(got) != n {
		t.Errorf("on-disk log has %d records, want %d", len(got), n)
	}
}

func TestAppendCanceledContext(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Append(ctx, "bob", rec("late", 0, t0), fifo(10))
	if apperr.KindOf(err) != apperr.PersistenceFailed {
		t.Fatalf("expected PersistenceFailed, got %v", err)
	}
	got, _ := s.All(context.Background(), "bob")
	if len(got) != 0 {
		t.Error("canceled append must not become visible")
	}
}

func TestInvalidNpcID(t *testing.T) {
	s := newTestMemoryStore(t)
	_, err := s.Append(context.Background(), "../escape", rec("x", 0, t0), fifo(10))
	if apperr.KindOf(err) != apperr.ConfigInvalid {
		t.Errorf("expected ConfigInvalid, got %v", err)
	}
}

func TestStatsAndExport(t *testing.T) {
	ctx := context.Background()
	s := newTestMemoryStore(t)
	s.Append(ctx, "alice", rec("a1", 0, t0), fifo(10))
	s.Append(ctx, "alice", rec("a2", 0, t0), fifo(10))
	s.Append(ctx, "bob", rec("b1", 0, t0), fifo(10))

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalRecords != 3 || len(st.NPCs) != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.NPCs[0].NpcID != "alice" || st.NPCs[0].Records != 2 || st.NPCs[0].Bytes == 0 {
		t.Errorf("unexpected alice stats %+v", st.NPCs[0])
	}

	dump, err := s.ExportAll(ctx, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(dump) != 2 || len(dump["alice"]) != 2 {
		t.Errorf("unexpected export %+v", dump)
	}

	other := newTestMemoryStore(t)
	n, err := other.ImportAll(ctx, dump, func(string) (Retention, error) { return fifo(10), nil })
	if err != nil || n != 2 {
		t.Fatalf("import all: %d %v", n, err)
	}
	got, _ := other.All(ctx, "alice")
	if len(got) != 2 {
		t.Errorf("expected 2 records after import, got %d", len(got))
	}
}
