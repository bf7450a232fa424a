package reactor

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"reactormap/internal/config"
)

// Store persists the reactor dataset in Postgres.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and ensures the schema exists.
func Open(cfg config.PostgresConfig) (*Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS reactors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			country TEXT NOT NULL,
			country_code TEXT NOT NULL DEFAULT '',
			reactor_type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			capacity_mw INTEGER NOT NULL DEFAULT 0,
			grid_connection TEXT NOT NULL DEFAULT '',
			iaea_id TEXT NOT NULL DEFAULT '',
			wikipedia_url TEXT NOT NULL DEFAULT '',
			wikipedia_title TEXT NOT NULL DEFAULT '',
			wikipedia_extract TEXT NOT NULL DEFAULT '',
			wikipedia_thumbnail TEXT NOT NULL DEFAULT '',
			wikidata_id TEXT NOT NULL DEFAULT '',
			operator TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			architect TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			cooling_system TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reactors_name_country
			ON reactors (lower(name), lower(country));`,
		`CREATE INDEX IF NOT EXISTS idx_reactors_iaea_id ON reactors (iaea_id);`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			matched INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			new INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// MergeFetched reconciles scraped PRIS rows with the stored dataset: matched
// reactors get capacity and status updates and an IAEA id backfill, unseen
// reactors are inserted.
func (s *Store) MergeFetched(ctx context.Context, fetched []Fetched) (MergeStats, error) {
	var stats MergeStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, f := range fetched {
		var (
			id         string
			capacity   int
			status     string
			iaeaID     string
			matchedRow bool
		)

		err := tx.QueryRowContext(ctx,
			`SELECT id, capacity_mw, status, iaea_id FROM reactors
			 WHERE (iaea_id <> '' AND iaea_id = $1)
			    OR (lower(name) = lower($2) AND lower(country) = lower($3))
			 LIMIT 1;`,
			f.IAEAID, f.Name, f.Country,
		).Scan(&id, &capacity, &status, &iaeaID)
		switch err {
		case nil:
			matchedRow = true
		case sql.ErrNoRows:
		default:
			return stats, err
		}

		if !matchedRow {
			stats.New++
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO reactors (id, name, country, country_code, reactor_type,
					status, location, capacity_mw, grid_connection, iaea_id,
					first_seen_at, last_updated_at)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11);`,
				uuid.NewString(), f.Name, f.Country, f.CountryCode, f.Type,
				NormalizeStatus(f.Status), f.Location, f.CapacityMW,
				f.GridConnection, f.IAEAID, now,
			); err != nil {
				return stats, err
			}
			continue
		}

		stats.Matched++
		plan := planMerge(capacity, status, iaeaID, f)
		if !plan.Changed {
			continue
		}

		stats.Updated++
		if _, err := tx.ExecContext(ctx,
			`UPDATE reactors SET capacity_mw = $1, status = $2, iaea_id = $3,
				last_updated_at = $4 WHERE id = $5;`,
			plan.CapacityMW, plan.Status, plan.IAEAID, now, id,
		); err != nil {
			return stats, err
		}
	}

	return stats, tx.Commit()
}

// Stats returns fleet aggregates for the stats endpoint and the live card.
func (s *Store) Stats(ctx context.Context) (FleetStats, error) {
	var fs FleetStats
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'Operational'),
		        coalesce(sum(capacity_mw) FILTER (WHERE status = 'Operational'), 0)
		 FROM reactors;`,
	).Scan(&fs.Total, &fs.Operational, &fs.OperationalCapacityMW)
	if err != nil {
		return fs, err
	}

	var last sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT max(finished_at) FROM sync_runs WHERE kind = 'pris' AND error = '';`,
	).Scan(&last)
	if err != nil {
		return fs, err
	}
	if last.Valid {
		fs.LastSyncAt = last.Time
	}
	return fs, nil
}

// MissingWikipedia lists reactors without a Wikipedia URL, for enrichment.
func (s *Store) MissingWikipedia(ctx context.Context) ([]Reactor, error) {
	return s.list(ctx, `wikipedia_url = ''`)
}

// MissingWikidata lists reactors with a Wikipedia URL but no Wikidata id.
func (s *Store) MissingWikidata(ctx context.Context) ([]Reactor, error) {
	return s.list(ctx, `wikipedia_url <> '' AND wikidata_id = ''`)
}

func (s *Store) list(ctx context.Context, where string) ([]Reactor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, country, country_code, status, wikipedia_url
		 FROM reactors WHERE `+where+` ORDER BY country, name;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reactor
	for rows.Next() {
		var r Reactor
		if err := rows.Scan(&r.ID, &r.Name, &r.Country, &r.CountryCode,
			&r.Status, &r.WikipediaURL); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetWikipedia stores Wikipedia enrichment fields for one reactor.
func (s *Store) SetWikipedia(ctx context.Context, id, url, title, extract, thumbnail string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reactors SET wikipedia_url = $1, wikipedia_title = $2,
			wikipedia_extract = $3, wikipedia_thumbnail = $4,
			last_updated_at = now() WHERE id = $5;`,
		url, title, extract, thumbnail, id)
	return err
}

// SetWikidata stores Wikidata enrichment fields for one reactor.
func (s *Store) SetWikidata(ctx context.Context, id string, w WikidataFields) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reactors SET wikidata_id = $1, operator = $2, owner = $3,
			architect = $4, region = $5, cooling_system = $6, image = $7,
			last_updated_at = now() WHERE id = $8;`,
		w.ID, w.Operator, w.Owner, w.Architect, w.Region, w.CoolingSystem,
		w.Image, id)
	return err
}

// WikidataFields carries one reactor's Wikidata enrichment values.
type WikidataFields struct {
	ID            string
	Operator      string
	Owner         string
	Architect     string
	Region        string
	CoolingSystem string
	Image         string
}

// BeginSyncRun records the start of a pipeline run and returns its id.
func (s *Store) BeginSyncRun(ctx context.Context, kind string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, kind, started_at) VALUES ($1, $2, now());`,
		id, kind)
	return id, err
}

// FinishSyncRun records the outcome of a pipeline run.
func (s *Store) FinishSyncRun(ctx context.Context, id string, stats MergeStats, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET finished_at = now(), matched = $1, updated = $2,
			new = $3, error = $4 WHERE id = $5;`,
		stats.Matched, stats.Updated, stats.New, msg, id)
	return err
}
