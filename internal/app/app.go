// Package app assembles the pipeline collaborators from configuration for
// the API server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/octobees/leadgen/db"
	"github.com/octobees/leadgen/internal/config"
	"github.com/octobees/leadgen/internal/database"
	"github.com/octobees/leadgen/internal/entity"
	"github.com/octobees/leadgen/internal/heuristics"
	"github.com/octobees/leadgen/internal/logger"
	"github.com/octobees/leadgen/internal/places"
	"github.com/octobees/leadgen/internal/repository"
	"github.com/octobees/leadgen/internal/service/email"
	"github.com/octobees/leadgen/internal/service/intel"
	"github.com/octobees/leadgen/internal/service/pipeline"
	"github.com/octobees/leadgen/internal/service/scoring"
	"github.com/octobees/leadgen/internal/service/social"
	"github.com/octobees/leadgen/internal/service/trust"
)

// App holds the wired collaborators.
type App struct {
	Vocabulary *heuristics.Vocabulary
	Trust      *trust.Classifier
	Scorer     *scoring.Scorer
	Runner     *pipeline.Runner
	Pool       *pgxpool.Pool
	Prospects  repository.ProspectsRepository
	SearchErr  error
	StoreErr   error
}

// Build wires every collaborator. Missing credentials or an unreachable
// database do not fail the build: the affected collaborator is replaced by
// one that returns the cause on every call, and the cause is logged.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)
	for _, key := range cfg.Missing() {
		log.Warn("configuration value missing", zap.String("key", key))
	}

	vocab := heuristics.Default()
	if cfg.HeuristicsFile != "" {
		loaded, err := heuristics.Load(cfg.HeuristicsFile)
		if err != nil {
			return nil, fmt.Errorf("load heuristics: %w", err)
		}
		vocab = loaded
	}

	a := &App{Vocabulary: vocab, Trust: trust.New(vocab), Scorer: scoring.New(vocab)}

	var searcher pipeline.Searcher
	client, err := places.New(ctx, cfg.PlacesAPIKey, places.WithLogger(log))
	if err != nil {
		a.SearchErr = err
		log.Warn("place search unavailable", zap.Error(err))
		searcher = unavailableSearch{err: err}
	} else {
		searcher = client
	}

	var store pipeline.Saver
	pool, err := connect(ctx, cfg, log)
	if err != nil {
		a.StoreErr = err
		log.Warn("prospect storage unavailable", zap.Error(err))
		store = unavailableStore{err: err}
	} else {
		a.Pool = pool
		a.Prospects = repository.NewPGXProspectsRepository(pool)
		store = a.Prospects
	}

	a.Runner = pipeline.NewRunner(searcher, store,
		pipeline.WithTrustChecker(a.Trust),
		pipeline.WithEmailDiscoverer(email.NewEngine(email.WithLogger(log))),
		pipeline.WithSocialVerifier(social.NewVerifier(social.WithProbeDelay(cfg.ProbeDelay), social.WithLogger(log))),
		pipeline.WithIntelExtractor(intel.NewExtractor(intel.WithVocabulary(vocab), intel.WithLogger(log))),
		pipeline.WithScorer(a.Scorer),
		pipeline.WithOrgID(cfg.OrgID),
		pipeline.WithPhoneRegion(cfg.PhoneRegion),
		pipeline.WithLogger(log),
	)
	return a, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolOptions{})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, pool, db.Migrations, log); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type unavailableSearch struct{ err error }

func (u unavailableSearch) SearchPage(ctx context.Context, req places.SearchRequest, pageToken string) (places.Page, error) {
	return places.Page{}, u.err
}

func (u unavailableSearch) Details(ctx context.Context, placeID string) (places.Details, error) {
	return places.Details{}, u.err
}

type unavailableStore struct{ err error }

func (u unavailableStore) Upsert(ctx context.Context, prospect *entity.Prospect) error {
	return fmt.Errorf("prospect storage unavailable: %w", u.err)
}
