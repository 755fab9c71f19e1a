// cmd/importbars loads daily OHLCV CSV files into the SQLite bar store.
// Each file holds one instrument; the symbol is the file name without its
// extension unless --symbol is given.
//
// Usage:
//
//	go run ./cmd/importbars --incremental data/csv/*.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"swingtrader/config"
	"swingtrader/internal/logger"
	"swingtrader/internal/model"
	sqlitestore "swingtrader/internal/store/sqlite"
)

func main() {
	symbol := flag.String("symbol", "", "Symbol for a single input file (default: file name)")
	incremental := flag.Bool("incremental", false, "Skip bars at or before the last stored bar of each symbol")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init("importbars", cfg.LogLevel)

	files := flag.Args()
	if len(files) == 0 {
		log.Fatal().Msg("no input files")
	}
	if *symbol != "" && len(files) > 1 {
		log.Fatal().Msg("--symbol needs exactly one input file")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.Timezone).Msg("load timezone")
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	barCh := make(chan model.Bar, 5000)
	done := make(chan int, 1)
	go func() { done <- w.Run(ctx, barCh) }()

	sent := 0
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		sym := *symbol
		if sym == "" {
			sym = symbolFromPath(path)
		}
		n, err := importFile(ctx, w, path, sym, loc, *incremental, barCh, log)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("import failed")
			continue
		}
		sent += n
	}
	close(barCh)
	committed := <-done

	log.Info().Int("files", len(files)).Int("queued", sent).Int("committed", committed).Msg("import finished")
	if committed != sent {
		os.Exit(1)
	}
}

func importFile(ctx context.Context, w *sqlitestore.Writer, path, symbol string, loc *time.Location, incremental bool, out chan<- model.Bar, log zerolog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	bars, bad, err := readBars(f, symbol, loc)
	if err != nil {
		return 0, err
	}

	var after time.Time
	if incremental {
		if after, err = w.GetLastTimestamp(symbol); err != nil {
			return 0, err
		}
	}

	n := 0
	for _, b := range bars {
		if !after.IsZero() && !b.Time.After(after) {
			continue
		}
		select {
		case out <- b:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
	log.Info().Str("file", path).Str("symbol", symbol).Int("bars", n).Int("bad_rows", bad).Msg("queued")
	return n, nil
}
