package sortwriter

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/priceflow/medianpipe/internal/pool"
	"github.com/priceflow/medianpipe/internal/record"
)

func tsLess(a, b record.Record) bool { return a.TS < b.TS }

// captureAggregator records exactly what it was asked to process, for
// assertions, without exercising the median algorithm (avoids an
// import cycle with internal/median, which itself depends on this
// package's exported interfaces).
type captureAggregator struct {
	inMemory []record.Record
	streamed []record.Record
	mode     string
}

func (c *captureAggregator) ProcessInMemory(sorted []record.Record, outPath string) error {
	c.mode = "memory"
	c.inMemory = append([]record.Record(nil), sorted...)
	return os.WriteFile(outPath, []byte("memory\n"), 0o644)
}

func (c *captureAggregator) ProcessStream(source *bufio.Reader, outPath string) error {
	c.mode = "stream"
	for {
		rec, err := DefaultSerializer{}.Read(source)
		if err != nil {
			break
		}
		c.streamed = append(c.streamed, rec)
	}
	return os.WriteFile(outPath, []byte("stream\n"), 0o644)
}

func TestCollectRespectsCapacity(t *testing.T) {
	dir := t.TempDir()
	p := pool.New(2)
	defer p.Shutdown()

	agg := &captureAggregator{}
	w := New(p, 4, dir, tsLess, DefaultSerializer{}, agg)

	w.Collect([]record.Record{{1, 1}, {2, 2}})
	w.mu.Lock()
	if len(w.buffer) > w.maxElements {
		t.Fatalf("buffer exceeded capacity: %d > %d", len(w.buffer), w.maxElements)
	}
	w.mu.Unlock()

	// Overflow: 3 more records on top of 2 buffered, cap 4.
	w.Collect([]record.Record{{3, 3}, {4, 4}, {5, 5}})
	w.mu.Lock()
	if len(w.buffer) > w.maxElements {
		t.Fatalf("buffer exceeded capacity after overflow: %d > %d", len(w.buffer), w.maxElements)
	}
	w.mu.Unlock()

	if err := w.Finalize(filepath.Join(dir, "out.csv")); err != nil {
		t.Fatal(err)
	}
}

func TestInMemoryModeNoRunsFlushed(t *testing.T) {
	dir := t.TempDir()
	p := pool.New(2)
	defer p.Shutdown()

	agg := &captureAggregator{}
	w := New(p, 1000, dir, tsLess, DefaultSerializer{}, agg)

	w.Collect([]record.Record{{3, 3}, {1, 1}, {2, 2}})

	if err := w.Finalize(filepath.Join(dir, "out.csv")); err != nil {
		t.Fatal(err)
	}

	if agg.mode != "memory" {
		t.Fatalf("expected in-memory mode, got %q", agg.mode)
	}
	want := []record.Record{{1, 1}, {2, 2}, {3, 3}}
	if len(agg.inMemory) != len(want) {
		t.Fatalf("got %d records, want %d", len(agg.inMemory), len(want))
	}
	for i := range want {
		if agg.inMemory[i] != want[i] {
			t.Errorf("record %d: got %+v, want %+v", i, agg.inMemory[i], want[i])
		}
	}
}

func TestExternalModeForced(t *testing.T) {
	dir := t.TempDir()
	p := pool.New(2)
	defer p.Shutdown()

	agg := &captureAggregator{}
	// Capacity of 3 records guarantees at least one run flush for 9 input records.
	w := New(p, 3, dir, tsLess, DefaultSerializer{}, agg)

	// Nine unordered records, delivered in three chunks (as if from three files).
	w.Collect([]record.Record{{9, 9}, {1, 1}, {5, 5}})
	w.Collect([]record.Record{{3, 3}, {7, 7}, {2, 2}})
	w.Collect([]record.Record{{8, 8}, {4, 4}, {6, 6}})

	if err := w.Finalize(filepath.Join(dir, "out.csv")); err != nil {
		t.Fatal(err)
	}

	if agg.mode != "stream" {
		t.Fatalf("expected external (stream) mode, got %q", agg.mode)
	}
	if len(agg.streamed) != 9 {
		t.Fatalf("got %d merged records, want 9", len(agg.streamed))
	}
	for i := 1; i < len(agg.streamed); i++ {
		if agg.streamed[i].TS < agg.streamed[i-1].TS {
			t.Fatalf("merged stream not sorted at index %d: %+v", i, agg.streamed)
		}
	}
	for i, rec := range agg.streamed {
		wantTS := uint64(i + 1)
		if rec.TS != wantTS {
			t.Errorf("record %d: got ts=%d, want %d", i, rec.TS, wantTS)
		}
	}

	// All temp run files must have been cleaned up.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "out.csv" {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestEmptyFinalizeNoRuns(t *testing.T) {
	dir := t.TempDir()
	p := pool.New(1)
	defer p.Shutdown()

	agg := &captureAggregator{}
	w := New(p, 10, dir, tsLess, DefaultSerializer{}, agg)

	outPath := filepath.Join(dir, "out.csv")
	if err := w.Finalize(outPath); err != nil {
		t.Fatal(err)
	}
	if agg.mode != "" {
		t.Fatalf("expected aggregator not to be invoked, got mode %q", agg.mode)
	}
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Fatalf("expected no output file for empty input")
	}
}
