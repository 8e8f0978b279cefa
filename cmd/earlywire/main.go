// Command earlywire decorates batches of monitored posts with anomaly
// profiles and cascade badges, and maintains the bucketed activity log
// those decisions are baselined against.
//
// Ingestion hands batches in as JSON (a file, or newline-delimited on
// stdin with -follow); decorated items come back on stdout in display
// order. Query flags expose the activity log for dashboards.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/abelbrown/earlywire/internal/activity"
	"github.com/abelbrown/earlywire/internal/anomaly"
	"github.com/abelbrown/earlywire/internal/cascade"
	"github.com/abelbrown/earlywire/internal/config"
	"github.com/abelbrown/earlywire/internal/coord"
	"github.com/abelbrown/earlywire/internal/logging"
	"github.com/abelbrown/earlywire/internal/metrics"
	"github.com/abelbrown/earlywire/internal/model"
)

// maxTrendDays caps the trend query window.
const maxTrendDays = 90

func main() {
	var (
		configPath  = flag.String("config", "", "config file (YAML or JSON)")
		dbPath      = flag.String("db", "", "SQLite database path (default ~/.earlywire/earlywire.db)")
		batchPath   = flag.String("batch", "", "decorate a single batch file and exit (\"-\" for stdin)")
		follow      = flag.Bool("follow", false, "read newline-delimited batches from stdin until EOF")
		recent      = flag.Int("recent", 0, "print the most recent N activity rows and exit")
		averages    = flag.Bool("averages", false, "print 14-day rolling averages per region and exit")
		baselines   = flag.Bool("baselines", false, "print per-region baseline averages and exit")
		trendRegion = flag.String("trend", "", "print the activity trend for a region and exit")
		trendDays   = flag.Int("days", 14, "trailing window in days for -trend")
	)
	flag.Parse()

	if err := logging.Init(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg, *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	switch {
	case *recent > 0:
		entries, err := store.RecentLogs(*recent)
		if err != nil {
			log.Fatalf("Failed to query recent logs: %v", err)
		}
		printEntries(entries)
		return
	case *averages:
		avgs, err := store.RollingAverages()
		if err != nil {
			log.Fatalf("Failed to query rolling averages: %v", err)
		}
		for _, region := range model.Regions() {
			if avg, ok := avgs[region]; ok {
				fmt.Printf("%-18s avg=%.1f min=%d max=%d latest=%d samples=%d\n",
					region, avg.Average, avg.Min, avg.Max, avg.Latest, avg.Samples)
			}
		}
		return
	case *baselines:
		byRegion, err := store.BaselineAveragesByRegion()
		if err != nil {
			log.Fatalf("Failed to derive baselines: %v", err)
		}
		for _, region := range model.Regions() {
			if b, ok := byRegion[region]; ok {
				fmt.Printf("%-18s avg=%.1f samples=%d\n", region, b.Average, b.Samples)
			}
		}
		return
	case *trendRegion != "":
		days := *trendDays
		if days > maxTrendDays {
			days = maxTrendDays
		}
		entries, err := store.Trend(model.Region(*trendRegion), days)
		if err != nil {
			log.Fatalf("Failed to query trend: %v", err)
		}
		printEntries(entries)
		return
	}

	pipeline := coord.NewPipeline(
		store,
		anomaly.NewDetector(cfg.DetectorConfig()),
		cascade.NewClassifier(cfg.ClassifierConfig()),
		metrics.New(),
	)
	defer pipeline.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case *batchPath != "":
		items, err := readBatch(*batchPath)
		if err != nil {
			log.Fatalf("Failed to read batch: %v", err)
		}
		writeBatch(pipeline.Process(ctx, items, 0))
	case *follow:
		// Lexicon tuning takes effect without a restart while following.
		if *configPath != "" {
			err := config.Watch(ctx, *configPath, func(next config.Config) {
				pipeline.Reload(
					anomaly.NewDetector(next.DetectorConfig()),
					cascade.NewClassifier(next.ClassifierConfig()),
				)
			})
			if err != nil {
				logging.Warn("config watch unavailable", "error", err)
			}
		}
		if err := followBatches(ctx, pipeline); err != nil {
			log.Fatalf("Failed reading stdin: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// openStore resolves the database path (flag > config > default) and
// opens the activity store.
func openStore(cfg config.Config, flagPath string) (*activity.Store, error) {
	path := flagPath
	if path == "" {
		path = cfg.DBPath
	}
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir := filepath.Join(homeDir, ".earlywire")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path = filepath.Join(dataDir, "earlywire.db")
	}
	return activity.NewStore(path)
}

func readBatch(path string) ([]model.Item, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var items []model.Item
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return items, nil
}

// followBatches decorates one JSON batch per stdin line until EOF or
// cancellation.
func followBatches(ctx context.Context, pipeline *coord.Pipeline) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var items []model.Item
		if err := json.Unmarshal(line, &items); err != nil {
			logging.Warn("skipping malformed batch", "error", err)
			continue
		}
		writeBatch(pipeline.Process(ctx, items, 0))
	}
	return scanner.Err()
}

func writeBatch(items []model.Item) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(items); err != nil {
		logging.Error("failed to write decorated batch", "error", err)
	}
}

func printEntries(entries []activity.LogEntry) {
	for _, e := range entries {
		fetch := "-"
		if e.FetchDuration > 0 {
			fetch = e.FetchDuration.Round(time.Millisecond).String()
		}
		fmt.Printf("%s  %-18s posts=%-6d sources=%-4d fetch=%s\n",
			e.Bucket.Format("2006-01-02 15:04"), e.Region, e.PostCount, e.SourceCount, fetch)
	}
}
