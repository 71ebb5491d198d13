// Command medianpipe computes a change-only running-median CSV from a
// directory of timestamped-trade CSV inputs, staying within a bounded
// memory budget by spilling to external run files and merging when
// necessary.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/priceflow/medianpipe/internal/config"
	"github.com/priceflow/medianpipe/internal/ingest"
	"github.com/priceflow/medianpipe/internal/logging"
	"github.com/priceflow/medianpipe/internal/median"
	"github.com/priceflow/medianpipe/internal/pool"
	"github.com/priceflow/medianpipe/internal/record"
	"github.com/priceflow/medianpipe/internal/sortwriter"
)

const recordSize = record.Size

// logPath and its rotation caps mirror the original implementation's
// hardcoded logger_helper::create_log_dir() +
// inti_logger("logs/csv_parser", 1024*1024, 3, ...) call in main.cpp —
// the original has no CLI/config option for the log destination
// either.
const (
	logPath       = "logs/medianpipe.log"
	logMaxSizeMB  = 1
	logMaxBackups = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("medianpipe", flag.ContinueOnError)

	configPath := fs.String("config", "./config.toml", "path to TOML config file")
	fs.StringVar(configPath, "cfg", "./config.toml", "path to TOML config file (alias for --config)")
	maxMemory := fs.Int64("max-memory", 524288000, "memory budget in bytes")
	maxThread := fs.Int("max-thread", 4, "worker thread count")
	verbose := fs.Bool("verbose", false, "enable periodic progress reporting")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: medianpipe [--config path.toml] [--max-memory bytes] [--max-thread n] [--verbose]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *maxThread < 1 {
		fmt.Fprintln(os.Stderr, "--max-thread must be >= 1")
		return 2
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		return 1
	}
	logging.Init(logging.Config{
		FilePath:   logPath,
		MaxSizeMB:  logMaxSizeMB,
		MaxBackups: logMaxBackups,
		Verbose:    *verbose,
	})
	log := logging.L()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
		return 1
	}

	files, err := config.FindFiles(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to enumerate input files")
		return 1
	}
	if len(files) == 0 {
		log.Warn().Str("input", cfg.Input).Msg("no matching input files found")
		return 0
	}

	for _, f := range files {
		if fp, err := config.Fingerprint(f); err == nil {
			log.Debug().Str("file", f).Str("fingerprint", fp).Msg("input file identity")
		}
	}

	tempDir, err := os.MkdirTemp("", "medianpipe_runs")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create temp directory")
		return 1
	}
	defer os.RemoveAll(tempDir)

	outPath := filepath.Join(cfg.Output, "output.csv")

	chunkCap := int(*maxMemory) / *maxThread / recordSize
	if chunkCap < 1 {
		chunkCap = 1
	}
	maxBufferElements := int(*maxMemory) / recordSize
	if maxBufferElements < 1 {
		maxBufferElements = 1
	}

	p := pool.New(*maxThread)

	var progress *logging.Progress
	if *verbose {
		progress = logging.NewProgress()
		progress.Start("ingest")
		defer progress.Stop()
	}

	stage := ingest.New(p, chunkCap, *maxThread*2, progress)
	less := func(a, b record.Record) bool { return a.TS < b.TS }
	writer := sortwriter.New(p, maxBufferElements, tempDir, less, sortwriter.DefaultSerializer{}, median.New(sortwriter.DefaultSerializer{}))

	shutdown := installSignalHandler(p)
	defer shutdown()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		drainChunks(stage, writer)
	}()

	for _, f := range files {
		stage.EnqueueFile(f)
	}

	stage.WaitComplete()
	<-drained

	if err := writer.Finalize(outPath); err != nil {
		log.Fatal().Err(err).Msg("pipeline failed")
		return 1
	}

	log.Info().Str("output", outPath).Int("files", len(files)).Msg("pipeline completed")
	return 0
}

func drainChunks(stage *ingest.Stage, writer *sortwriter.Writer) {
	chunks := stage.Chunks()
	for {
		chunk, ok := chunks.Take()
		if !ok {
			return
		}
		writer.Collect(chunk)
	}
}

// installSignalHandler lets in-flight pool tasks drain on SIGINT/SIGTERM
// and then exits with status 1, rather than blocking before work starts
// the way the original implementation's sigwait-based handler does.
func installSignalHandler(p *pool.Pool) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logging.L().Warn().Str("signal", sig.String()).Msg("received shutdown signal, draining in-flight work")
			p.Shutdown()
			os.Exit(1)
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}
