// Package median implements the online running-median algorithm:
// consume (timestamp, price) records in timestamp order, maintain the
// median of all prices seen so far via a two-heap structure, and emit
// a change-only (timestamp, median) row whenever the median moves by
// more than epsilon.
package median

import (
	"bufio"
	"io"

	"github.com/priceflow/medianpipe/internal/logging"
	"github.com/priceflow/medianpipe/internal/outcsv"
	"github.com/priceflow/medianpipe/internal/record"
	"github.com/priceflow/medianpipe/internal/sortwriter"
)

// epsilon is the change-suppression threshold from spec.md §4.4.
const epsilon = 1e-8

// Algorithm implements sortwriter.Aggregator: the two entry points have
// identical output semantics, one for an already-sorted in-memory
// slice and one for an already-sorted stream of records.
type Algorithm struct {
	serializer sortwriter.Serializer
}

// New creates a median algorithm using ser to decode streamed run
// records. ser may be nil for ProcessInMemory-only use.
func New(ser sortwriter.Serializer) *Algorithm {
	return &Algorithm{serializer: ser}
}

// ProcessInMemory consumes a pre-sorted in-memory sequence of records.
func (a *Algorithm) ProcessInMemory(sorted []record.Record, outPath string) error {
	w, err := outcsv.New(outPath)
	if err != nil {
		return err
	}
	defer w.Close()

	var rm runningMedian
	lastEmitted := 0.0
	first := true

	for _, rec := range sorted {
		rm.insert(rec.Price)
		current := rm.median()

		if first || absDiff(current, lastEmitted) > epsilon {
			if err := w.WriteRow(rec.TS, current); err != nil {
				return err
			}
			lastEmitted = current
			first = false
		}
	}
	return w.Flush()
}

// ProcessStream consumes an indefinitely long pre-sorted stream of
// records (the merged run file, positioned past its count header).
func (a *Algorithm) ProcessStream(source *bufio.Reader, outPath string) error {
	w, err := outcsv.New(outPath)
	if err != nil {
		return err
	}
	defer w.Close()

	var rm runningMedian
	lastEmitted := 0.0
	first := true

	for {
		rec, err := a.serializer.Read(source)
		if err != nil {
			if err != io.EOF {
				logging.L().Error().Err(err).Msg("error reading merged run, stopping early")
			}
			break
		}

		rm.insert(rec.Price)
		current := rm.median()

		if first || absDiff(current, lastEmitted) > epsilon {
			if err := w.WriteRow(rec.TS, current); err != nil {
				return err
			}
			lastEmitted = current
			first = false
		}
	}
	return w.Flush()
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
