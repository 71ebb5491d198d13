package sortwriter

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/priceflow/medianpipe/internal/logging"
	"github.com/priceflow/medianpipe/internal/record"
)

// DefaultSerializer is the fixed-width binary codec from internal/record:
// 8 bytes little-endian ts followed by 8 bytes little-endian price.
type DefaultSerializer struct{}

func (DefaultSerializer) Write(w *bufio.Writer, rec record.Record) error {
	return record.Write(w, rec)
}

func (DefaultSerializer) Read(r *bufio.Reader) (record.Record, error) {
	return record.Read(r)
}

// WriteBatch encodes recs in a single Write call, satisfying the
// writer's optional batchSerializer fast path used on the run-flush
// hot path.
func (DefaultSerializer) WriteBatch(w *bufio.Writer, recs []record.Record) error {
	return record.WriteBatch(w, recs)
}

func writeCountHeader(w *bufio.Writer, count uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], count)
	_, err := w.Write(buf[:])
	return err
}

func readCountHeader(r *bufio.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// mergeSource is one open run file being consumed by the k-way merge.
type mergeSource struct {
	f         *os.File
	r         *bufio.Reader
	remaining uint64
	current   record.Record
}

// heapItem pairs a record with the index of its source stream, for the
// min-heap driving the k-way merge.
type heapItem struct {
	rec    record.Record
	source int
}

// runHeap is a min-heap over heapItem ordered by the writer's
// comparator, mirroring the teacher's manualHeap (sorter.go) — here
// built on container/heap since a heapItem is a small value type and
// the interface-boxing cost the teacher avoids doesn't apply the same
// way to container/heap's interface methods on a slice type.
type runHeap struct {
	items []heapItem
	less  Less
}

func (h *runHeap) Len() int { return len(h.items) }
func (h *runHeap) Less(i, j int) bool {
	return h.less(h.items[i].rec, h.items[j].rec)
}
func (h *runHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *runHeap) Push(x any)    { h.items = append(h.items, x.(heapItem)) }
func (h *runHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// kWayMerge merges all run files in paths into a single new run file,
// returning its path. Returns "" if every run was empty or unreadable.
// Input runs are unlinked once the merge completes (or is abandoned).
func (w *Writer) kWayMerge(paths []string) (string, error) {
	sources := make([]*mergeSource, 0, len(paths))

	for _, path := range paths {
		src, err := openMergeSource(path, w.serializer)
		if err != nil {
			logging.L().Warn().Err(err).Str("run", path).Msg("skipping unreadable run during merge")
			continue
		}
		if src == nil {
			// Empty run: nothing to read, discard.
			continue
		}
		sources = append(sources, src)
	}

	// Unlink every input run once the merge is done with them, whether
	// or not they contributed a stream (best-effort: a failure here is
	// logged, not fatal, per spec.md's run-cleanup error band).
	defer func() {
		for _, path := range paths {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logging.L().Warn().Err(err).Str("run", path).Msg("failed to remove temporary run file")
			}
		}
	}()

	defer func() {
		for _, s := range sources {
			if s != nil && s.f != nil {
				s.f.Close()
			}
		}
	}()

	if len(sources) == 0 {
		return "", nil
	}

	outPath := w.newRunPath()
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create merged run: %w", err)
	}
	defer out.Close()

	bw := bufio.NewWriterSize(out, 256*1024)
	if err := writeCountHeader(bw, 0); err != nil {
		return "", err
	}

	h := &runHeap{less: w.less}
	for i, s := range sources {
		h.items = append(h.items, heapItem{rec: s.current, source: i})
	}
	heap.Init(h)

	var total uint64
	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem)
		if err := w.serializer.Write(bw, top.rec); err != nil {
			return "", fmt.Errorf("write merged record: %w", err)
		}
		total++

		src := sources[top.source]
		if src.remaining > 0 {
			next, err := w.serializer.Read(src.r)
			if err == nil {
				src.remaining--
				src.current = next
				heap.Push(h, heapItem{rec: next, source: top.source})
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return "", err
	}

	// Back-patch the header with the true total.
	if _, err := out.Seek(0, 0); err != nil {
		return "", err
	}
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], total)
	if _, err := out.WriteAt(hdr[:], 0); err != nil {
		return "", err
	}

	return outPath, nil
}

// openMergeSource opens path, reads its header and first record. It
// returns (nil, nil) for a structurally empty run (count == 0).
func openMergeSource(path string, ser Serializer) (*mergeSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := bufio.NewReaderSize(f, 64*1024)
	count, err := readCountHeader(r)
	if err != nil {
		f.Close()
		return nil, err
	}
	if count == 0 {
		f.Close()
		return nil, nil
	}

	first, err := ser.Read(r)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &mergeSource{f: f, r: r, remaining: count - 1, current: first}, nil
}
