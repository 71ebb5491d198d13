// Package ingest implements the CSV ingestion stage: parallel per-file
// parsing into fixed-size chunks of (timestamp, price) records, handed
// off to a bounded channel for the external-sort writer to consume.
package ingest

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/priceflow/medianpipe/internal/logging"
	"github.com/priceflow/medianpipe/internal/pool"
	"github.com/priceflow/medianpipe/internal/record"
)

const minFields = 5

// Stage parses CSV files on the shared pool and publishes parsed chunks
// on a bounded channel.
type Stage struct {
	pool     *pool.Pool
	out      *Channel
	chunkCap int
	progress *logging.Progress
}

// New creates an ingestion stage. chunkCap is the record count per
// chunk (spec.md: mem_budget / worker_count / sizeof(Record)).
func New(p *pool.Pool, chunkCap int, queueDepth int, progress *logging.Progress) *Stage {
	if chunkCap < 1 {
		chunkCap = 1
	}
	return &Stage{
		pool:     p,
		out:      NewChannel(queueDepth),
		chunkCap: chunkCap,
		progress: progress,
	}
}

// Chunks returns the stage's output channel.
func (s *Stage) Chunks() *Channel { return s.out }

// EnqueueFile submits one parse task for path. Parsing happens on the
// pool; parse failures are logged and never propagate.
func (s *Stage) EnqueueFile(path string) {
	s.pool.Submit(func() {
		s.parseFile(path)
	})
}

// WaitComplete blocks until every submitted parse task has finished,
// then flags the output channel so consumers can drain to completion.
func (s *Stage) WaitComplete() {
	s.pool.WaitQuiescent()
	s.out.Finish()
}

func (s *Stage) parseFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		logging.L().Warn().Err(err).Str("file", path).Msg("failed to open input file")
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		logging.L().Warn().Err(err).Str("file", path).Msg("failed to stat input file")
		return
	}
	if stat.Size() == 0 {
		logging.L().Warn().Str("file", path).Msg("skipping empty file")
		return
	}

	reader := bufio.NewReaderSize(f, 256*1024)

	// Skip the header line.
	if _, err := reader.ReadString('\n'); err != nil {
		logging.L().Warn().Err(err).Str("file", path).Msg("skipping file with no header line")
		return
	}

	chunk := make(Chunk, 0, s.chunkCap)
	lineNo := 1
	sawData := false
	bytesRead := stat.Size()

	for {
		line, readErr := reader.ReadString('\n')
		if len(line) > 0 {
			lineNo++
			rec, ok := parseLine(line)
			if ok {
				sawData = true
				chunk = append(chunk, rec)
				if len(chunk) >= s.chunkCap {
					s.out.Push(chunk)
					if s.progress != nil {
						s.progress.AddRows(int64(len(chunk)))
					}
					chunk = make(Chunk, 0, s.chunkCap)
				}
			} else {
				logging.L().Warn().Str("file", path).Int("line", lineNo).Msg("skipping malformed line")
			}
		}
		if readErr != nil {
			break
		}
	}

	if len(chunk) > 0 {
		if s.progress != nil {
			s.progress.AddRows(int64(len(chunk)))
		}
		s.out.Push(chunk)
	}
	if s.progress != nil {
		s.progress.AddBytes(bytesRead)
	}

	if !sawData {
		logging.L().Warn().Str("file", path).Msg("file yielded no data lines")
	}
}

// parseLine splits a semicolon-separated data line into a Record.
// Field 0 is the timestamp (uint64), field 2 is the price (float64);
// remaining fields are ignored. Lines with fewer than minFields fields,
// or with unparseable numeric fields, are rejected.
func parseLine(line string) (record.Record, bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return record.Record{}, false
	}

	fields := strings.Split(line, ";")
	if len(fields) < minFields {
		return record.Record{}, false
	}

	ts, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return record.Record{}, false
	}

	price, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return record.Record{}, false
	}

	return record.Record{TS: ts, Price: price}, true
}
