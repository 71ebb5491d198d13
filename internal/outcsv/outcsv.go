// Package outcsv implements the pipeline's output CSV writer: creates
// the parent directory if needed, truncates and rewrites the target
// file from scratch so a run always starts from an empty file, writes
// the mandatory header, and guards the whole sequence with an advisory
// exclusive lock — the same shape as the teacher's
// internal/writer.CsvWriter, adapted to this pipeline's fixed
// "receive_ts;price_median" schema and streaming row-at-a-time use.
package outcsv

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

var header = []string{"receive_ts", "price_median"}

// Writer appends change-suppressed median rows to a single CSV file.
// Unable to create the output file is fatal, surfaced to the caller,
// per spec.md §4.4.
type Writer struct {
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows int
}

// New creates the output file at path, truncating any existing file and
// creating its parent directory if necessary, and writes the header.
func New(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock output file: %w", err)
	}

	buf := bufio.NewWriterSize(f, 64*1024)
	w := csv.NewWriter(buf)
	w.Comma = ';'

	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &Writer{file: f, buf: buf, csv: w}, nil
}

// WriteRow appends one (receive_ts, price_median) row. Price is
// formatted as fixed-point with 8 fractional digits.
func (w *Writer) WriteRow(ts uint64, median float64) error {
	row := []string{
		strconv.FormatUint(ts, 10),
		strconv.FormatFloat(median, 'f', 8, 64),
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.rows++
	return nil
}

// Flush flushes buffered rows to the underlying file.
func (w *Writer) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Close flushes, unlocks, and closes the output file.
func (w *Writer) Close() error {
	_ = w.Flush()
	_ = unix.Flock(int(w.file.Fd()), unix.LOCK_UN)
	return w.file.Close()
}
