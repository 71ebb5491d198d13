// Package sortwriter implements the external-sort writer: a bounded
// in-memory buffer that promotes to binary run files on disk once a
// memory cap is reached, followed by a k-way merge feeding the
// aggregation stage.
//
// The writer is parameterised over a Serializer (wire codec) and an
// Aggregator (the consumer of the final sorted sequence), the same
// capability split the original implementation expressed with virtual
// base classes (out_writer/serializer.hpp, out_writer/algorithm.hpp).
package sortwriter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/priceflow/medianpipe/internal/logging"
	"github.com/priceflow/medianpipe/internal/pool"
	"github.com/priceflow/medianpipe/internal/record"
)

// Serializer encodes and decodes records on a run file.
type Serializer interface {
	Write(w *bufio.Writer, rec record.Record) error
	Read(r *bufio.Reader) (record.Record, error)
}

// Aggregator consumes the final timestamp-ordered sequence.
type Aggregator interface {
	ProcessInMemory(sorted []record.Record, outPath string) error
	ProcessStream(source *bufio.Reader, outPath string) error
}

// Less orders two records; the sort comparator is a first-class
// parameter so the writer stays reusable beyond ts-ordering.
type Less func(a, b record.Record) bool

// Writer absorbs chunks into a bounded buffer, spilling sorted runs to
// disk under memory pressure, and drives the final aggregation.
type Writer struct {
	pool        *pool.Pool
	serializer  Serializer
	aggregator  Aggregator
	less        Less
	maxElements int
	tempDir     string

	mu     sync.Mutex // guards buffer
	buffer []record.Record

	runsMu sync.Mutex // guards runs
	runs   []string

	runSeq atomic.Int64
}

// New creates a Writer with the given buffer capacity (in records),
// temp directory for run spills, comparator, serializer, and
// aggregator.
func New(p *pool.Pool, maxElements int, tempDir string, less Less, ser Serializer, agg Aggregator) *Writer {
	if maxElements < 1 {
		maxElements = 1
	}
	return &Writer{
		pool:        p,
		serializer:  ser,
		aggregator:  agg,
		less:        less,
		maxElements: maxElements,
		tempDir:     tempDir,
		buffer:      make([]record.Record, 0, maxElements),
	}
}

// Collect absorbs a chunk into the buffer, flushing a sorted run to
// disk if the incoming chunk would overflow capacity. Post-condition:
// len(buffer) <= maxElements at return.
func (w *Writer) Collect(incoming []record.Record) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(incoming) > w.maxElements-len(w.buffer) {
		free := w.maxElements - len(w.buffer)
		w.buffer = append(w.buffer, incoming[:free]...)
		sort.Slice(w.buffer, func(i, j int) bool { return w.less(w.buffer[i], w.buffer[j]) })

		toFlush := w.buffer
		w.buffer = make([]record.Record, 0, w.maxElements)
		w.submitFlush(toFlush)

		incoming = incoming[free:]
	}

	w.buffer = append(w.buffer, incoming...)
}

// submitFlush hands ownership of buf to a pool task that sorts nothing
// further (the caller already sorted) and writes it to a new run file.
func (w *Writer) submitFlush(buf []record.Record) {
	path := w.newRunPath()
	w.runsMu.Lock()
	w.runs = append(w.runs, path)
	w.runsMu.Unlock()

	w.pool.Submit(func() {
		if err := w.writeRun(path, buf); err != nil {
			logging.L().Error().Err(err).Str("run", path).Msg("failed to flush run, dropping")
			w.removeRun(path)
		}
	})
}

func (w *Writer) removeRun(path string) {
	w.runsMu.Lock()
	defer w.runsMu.Unlock()
	for i, p := range w.runs {
		if p == path {
			w.runs = append(w.runs[:i], w.runs[i+1:]...)
			return
		}
	}
}

func (w *Writer) newRunPath() string {
	n := w.runSeq.Add(1) - 1
	name := fmt.Sprintf("binary_data_%x_%d.bin", runNameConstant, n)
	return filepath.Join(w.tempDir, name)
}

const runNameConstant = 0x12345678

// batchSerializer is an optional capability: a Serializer that can
// encode a whole run in a single Write call, the same batching
// optimization as the teacher's WriteBatchRecords (common.go). Custom
// serializers that don't implement it fall back to the per-record loop.
type batchSerializer interface {
	WriteBatch(w *bufio.Writer, recs []record.Record) error
}

// writeRun writes buf to path as a run file: u64 count header followed
// by the records via the serializer. The caller publishes path to the
// run list before the write and removes it again if writeRun fails;
// Finalize drains the pool before merging, so merge never sees a
// partially written run.
func (w *Writer) writeRun(path string, buf []record.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create run file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 256*1024)
	if err := writeCountHeader(bw, uint64(len(buf))); err != nil {
		return err
	}

	if bs, ok := w.serializer.(batchSerializer); ok {
		if err := bs.WriteBatch(bw, buf); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
	} else {
		for _, rec := range buf {
			if err := w.serializer.Write(bw, rec); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
	}
	return bw.Flush()
}

// Finalize chooses the in-memory or external path and drives the
// aggregator. Flush tasks submitted during Collect
// are drained before the mode decision is made.
func (w *Writer) Finalize(outPath string) error {
	w.pool.WaitQuiescent()

	w.runsMu.Lock()
	hasRuns := len(w.runs) > 0
	w.runsMu.Unlock()

	if !hasRuns {
		return w.finalizeInMemory(outPath)
	}
	return w.finalizeExternal(outPath)
}

func (w *Writer) finalizeInMemory(outPath string) error {
	w.mu.Lock()
	buf := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if len(buf) == 0 {
		logging.L().Warn().Msg("no data collected, skipping output")
		return nil
	}

	sort.Slice(buf, func(i, j int) bool { return w.less(buf[i], buf[j]) })
	logging.L().Info().Msg("in-memory mode chosen")
	return w.aggregator.ProcessInMemory(buf, outPath)
}

func (w *Writer) finalizeExternal(outPath string) error {
	w.mu.Lock()
	buf := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if len(buf) > 0 {
		sort.Slice(buf, func(i, j int) bool { return w.less(buf[i], buf[j]) })
		path := w.newRunPath()
		w.runsMu.Lock()
		w.runs = append(w.runs, path)
		w.runsMu.Unlock()
		if err := w.writeRun(path, buf); err != nil {
			logging.L().Error().Err(err).Str("run", path).Msg("failed to flush final run, dropping")
			w.removeRun(path)
		}
	}

	logging.L().Info().Msg("external mode chosen")

	w.runsMu.Lock()
	runs := w.runs
	w.runs = nil
	w.runsMu.Unlock()

	mergedPath, err := w.kWayMerge(runs)
	if err != nil {
		return fmt.Errorf("k-way merge: %w", err)
	}
	if mergedPath == "" {
		logging.L().Warn().Msg("all runs empty, skipping output")
		return nil
	}
	defer os.Remove(mergedPath)

	f, err := os.Open(mergedPath)
	if err != nil {
		return fmt.Errorf("open merged run: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 64*1024)
	count, err := readCountHeader(br)
	if err != nil {
		return fmt.Errorf("read merged run header: %w", err)
	}
	if count == 0 {
		logging.L().Warn().Msg("merged run is empty, skipping output")
		return nil
	}

	return w.aggregator.ProcessStream(br, outPath)
}
