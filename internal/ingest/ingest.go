// Package ingest runs the reactor data pipeline: PRIS sync plus Wikipedia
// and Wikidata enrichment passes.
package ingest

import (
	"context"
	"time"

	"reactormap/internal/logging"
	"reactormap/internal/pris"
	"reactormap/internal/reactor"
	"reactormap/internal/wiki"
)

// Store is the slice of the reactor store the pipeline drives. Satisfied by
// *reactor.Store.
type Store interface {
	BeginSyncRun(ctx context.Context, kind string) (string, error)
	FinishSyncRun(ctx context.Context, id string, stats reactor.MergeStats, runErr error) error
	MergeFetched(ctx context.Context, fetched []reactor.Fetched) (reactor.MergeStats, error)
	MissingWikipedia(ctx context.Context) ([]reactor.Reactor, error)
	MissingWikidata(ctx context.Context) ([]reactor.Reactor, error)
	SetWikipedia(ctx context.Context, id, url, title, extract, thumbnail string) error
	SetWikidata(ctx context.Context, id string, w reactor.WikidataFields) error
}

// Source lists countries and their reactor units. Satisfied by *pris.Client.
type Source interface {
	Countries(ctx context.Context) ([]pris.Country, error)
	Reactors(ctx context.Context, country pris.Country) ([]reactor.Fetched, error)
}

// Service wires the pipeline's collaborators together.
type Service struct {
	Store     Store
	PRIS      Source
	Wikipedia *wiki.Client
	Wikidata  *wiki.WikidataClient

	// CountryDelay is slept between PRIS country pages, EnrichDelay between
	// enrichment lookups. Both keep the upstreams happy.
	CountryDelay time.Duration
	EnrichDelay  time.Duration
}

func (s *Service) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Sync fetches the current PRIS dataset and merges it into the store.
func (s *Service) Sync(ctx context.Context) (reactor.MergeStats, error) {
	var stats reactor.MergeStats

	runID, err := s.Store.BeginSyncRun(ctx, "pris")
	if err != nil {
		return stats, err
	}
	logging.Info("PRIS sync started", "run_id", runID)

	stats, err = s.sync(ctx)
	if finishErr := s.Store.FinishSyncRun(ctx, runID, stats, err); finishErr != nil {
		logging.Error("Failed to record sync run", "run_id", runID, "error", finishErr.Error())
	}
	if err != nil {
		logging.Error("PRIS sync failed", "run_id", runID, "error", err.Error())
		return stats, err
	}

	logging.Info("PRIS sync finished", "run_id", runID,
		"matched", stats.Matched, "updated", stats.Updated, "new", stats.New)
	return stats, nil
}

func (s *Service) sync(ctx context.Context) (reactor.MergeStats, error) {
	var stats reactor.MergeStats

	countries, err := s.PRIS.Countries(ctx)
	if err != nil {
		return stats, err
	}
	logging.Info("PRIS country list fetched", "countries", len(countries))

	var fetched []reactor.Fetched
	for i, country := range countries {
		rows, err := s.PRIS.Reactors(ctx, country)
		if err != nil {
			// One failing country page should not abort the whole run.
			logging.Warn("PRIS country fetch failed", "country", country.Name, "error", err.Error())
			continue
		}
		fetched = append(fetched, rows...)

		if i < len(countries)-1 {
			if err := s.pause(ctx, s.CountryDelay); err != nil {
				return stats, err
			}
		}
	}
	logging.Info("PRIS reactors fetched", "reactors", len(fetched))

	return s.Store.MergeFetched(ctx, fetched)
}

// EnrichWikipedia finds Wikipedia pages for reactors that lack one. Units of
// the same plant share one lookup.
func (s *Service) EnrichWikipedia(ctx context.Context) (reactor.MergeStats, error) {
	var stats reactor.MergeStats

	runID, err := s.Store.BeginSyncRun(ctx, "wikipedia")
	if err != nil {
		return stats, err
	}

	stats, err = s.enrichWikipedia(ctx)
	if finishErr := s.Store.FinishSyncRun(ctx, runID, stats, err); finishErr != nil {
		logging.Error("Failed to record enrichment run", "run_id", runID, "error", finishErr.Error())
	}
	if err != nil {
		return stats, err
	}

	logging.Info("Wikipedia enrichment finished", "run_id", runID,
		"processed", stats.Matched, "enriched", stats.Updated)
	return stats, nil
}

func (s *Service) enrichWikipedia(ctx context.Context) (reactor.MergeStats, error) {
	var stats reactor.MergeStats

	missing, err := s.Store.MissingWikipedia(ctx)
	if err != nil {
		return stats, err
	}

	plantCache := make(map[string]*wiki.PageInfo)
	for _, r := range missing {
		stats.Matched++

		base := wiki.BasePlantName(r.Name)
		info, cached := plantCache[base]
		if !cached {
			info, err = s.Wikipedia.FindReactorPage(ctx, r.Name, r.Country)
			if err != nil {
				return stats, err
			}
			plantCache[base] = info
			if err := s.pause(ctx, s.EnrichDelay); err != nil {
				return stats, err
			}
		}
		if info == nil {
			continue
		}

		if err := s.Store.SetWikipedia(ctx, r.ID, info.URL, info.Title, info.Extract, info.Thumbnail); err != nil {
			return stats, err
		}
		stats.Updated++
	}
	return stats, nil
}

// EnrichWikidata resolves Wikidata items for reactors that already have a
// Wikipedia page and stores their tracked claims.
func (s *Service) EnrichWikidata(ctx context.Context) (reactor.MergeStats, error) {
	var stats reactor.MergeStats

	runID, err := s.Store.BeginSyncRun(ctx, "wikidata")
	if err != nil {
		return stats, err
	}

	stats, err = s.enrichWikidata(ctx)
	if finishErr := s.Store.FinishSyncRun(ctx, runID, stats, err); finishErr != nil {
		logging.Error("Failed to record enrichment run", "run_id", runID, "error", finishErr.Error())
	}
	if err != nil {
		return stats, err
	}

	logging.Info("Wikidata enrichment finished", "run_id", runID,
		"processed", stats.Matched, "enriched", stats.Updated)
	return stats, nil
}

func (s *Service) enrichWikidata(ctx context.Context) (reactor.MergeStats, error) {
	var stats reactor.MergeStats

	missing, err := s.Store.MissingWikidata(ctx)
	if err != nil {
		return stats, err
	}

	for _, r := range missing {
		stats.Matched++

		itemID, err := s.Wikidata.ItemForPage(ctx, r.WikipediaURL)
		if err != nil {
			return stats, err
		}
		if itemID == "" {
			continue
		}

		fields, err := s.Wikidata.Fields(ctx, itemID)
		if err != nil {
			return stats, err
		}
		if err := s.Store.SetWikidata(ctx, r.ID, fields); err != nil {
			return stats, err
		}
		stats.Updated++

		if err := s.pause(ctx, s.EnrichDelay); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
