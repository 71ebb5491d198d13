package logging

import (
	"sync/atomic"
	"time"
)

// Progress is a ticker-driven reporter for long-running stages,
// grounded on the teacher's Indexer.startReporting/printStatus pattern.
// It is inert unless Start is called (gated behind --verbose).
type Progress struct {
	rows  int64
	bytes int64
	stop  chan struct{}
}

// NewProgress creates an idle reporter.
func NewProgress() *Progress {
	return &Progress{stop: make(chan struct{})}
}

// AddRows records n additional rows processed so far. Safe for
// concurrent use by parser workers.
func (p *Progress) AddRows(n int64) { atomic.AddInt64(&p.rows, n) }

// AddBytes records n additional bytes scanned so far.
func (p *Progress) AddBytes(n int64) { atomic.AddInt64(&p.bytes, n) }

// Start begins emitting a status line once per second until Stop is
// called. It always starts the reporter; callers that don't want
// progress output simply don't call it.
func (p *Progress) Start(phase string) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-ticker.C:
				elapsed := time.Since(start)
				rows := atomic.LoadInt64(&p.rows)
				rate := float64(rows) / elapsed.Seconds()
				L().Info().
					Str("phase", phase).
					Int64("rows", rows).
					Int64("bytes", atomic.LoadInt64(&p.bytes)).
					Float64("rows_per_sec", rate).
					Dur("elapsed", elapsed.Round(time.Second)).
					Msg("progress")
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop ends the reporter goroutine started by Start.
func (p *Progress) Stop() {
	close(p.stop)
}
