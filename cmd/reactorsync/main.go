// reactorsync runs the reactor data pipeline from the command line:
//
//	reactorsync -run sync              fetch IAEA PRIS data and merge it
//	reactorsync -run enrich-wikipedia  find Wikipedia pages for reactors
//	reactorsync -run enrich-wikidata   pull Wikidata claims for reactors
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reactormap/internal/config"
	"reactormap/internal/ingest"
	"reactormap/internal/logging"
	"reactormap/internal/pris"
	"reactormap/internal/reactor"
	"reactormap/internal/wiki"
)

func main() {
	run := flag.String("run", "sync", "pipeline step: sync, enrich-wikipedia or enrich-wikidata")
	configPath := flag.String("config", "", "config file path (defaults to CONFIG_PATH or ./config.yaml)")
	flag.Parse()

	var cfg config.Config
	if *configPath != "" {
		cfg = config.LoadFrom(*configPath)
	} else {
		cfg = config.Load()
	}
	logging.Init(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	store, err := reactor.Open(cfg.Store.Postgres)
	if err != nil {
		logging.Error("Failed to open reactor store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	wp := wiki.NewClient(cfg.Sync.UserAgent, cfg.Sync.RequestTimeout.Std())
	svc := &ingest.Service{
		Store:        store,
		PRIS:         pris.NewClient(cfg.Sync.UserAgent, cfg.Sync.RequestTimeout.Std()),
		Wikipedia:    wp,
		Wikidata:     wiki.NewWikidataClient(wp),
		CountryDelay: cfg.Sync.CountryDelay.Std(),
		EnrichDelay:  cfg.Sync.EnrichDelay.Std(),
	}

	// Ctrl-C cancels between items; the current request still completes.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stats reactor.MergeStats
	switch *run {
	case "sync":
		stats, err = svc.Sync(ctx)
	case "enrich-wikipedia":
		stats, err = svc.EnrichWikipedia(ctx)
	case "enrich-wikidata":
		stats, err = svc.EnrichWikidata(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown run %q\n", *run)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logging.Error("Pipeline run failed", "run", *run, "error", err.Error())
		os.Exit(1)
	}

	fmt.Printf("%s: matched=%d updated=%d new=%d\n", *run, stats.Matched, stats.Updated, stats.New)
}
