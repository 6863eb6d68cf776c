package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/enrich"
	"github.com/localsoundcheck/soundcheck-cli/internal/pipeline"
	"github.com/localsoundcheck/soundcheck-cli/internal/quota"
	"github.com/localsoundcheck/soundcheck-cli/internal/resilience"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
	"github.com/localsoundcheck/soundcheck-cli/internal/trust"
	"github.com/localsoundcheck/soundcheck-cli/pkg/spotify"
	"github.com/localsoundcheck/soundcheck-cli/pkg/youtube"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "soundcheck.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initGovernor() *quota.Governor {
	pools := quota.NewPools(cfg.Quota.SearchBudget, cfg.Quota.MetadataBudget, cfg.Quota.CatalogBudget)
	retry := resilience.FromRetryConfig(
		cfg.Quota.RetryAttempts,
		cfg.Quota.RetryInitialBackoffMs,
		cfg.Quota.RetryMaxBackoffMs,
		cfg.Quota.RetryMultiplier,
		cfg.Quota.RetryJitter,
	)
	return quota.NewGovernor(pools, retry)
}

func initYouTube() youtube.Client {
	opts := []youtube.Option{}
	if cfg.YouTube.BaseURL != "" {
		opts = append(opts, youtube.WithBaseURL(cfg.YouTube.BaseURL))
	}
	if cfg.YouTube.OembedURL != "" {
		opts = append(opts, youtube.WithOembedURL(cfg.YouTube.OembedURL))
	}
	return youtube.NewClient(cfg.YouTube.Key, opts...)
}

func initSpotify() spotify.Client {
	opts := []spotify.Option{}
	if cfg.Spotify.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.Spotify.BaseURL))
	}
	if cfg.Spotify.TokenURL != "" {
		opts = append(opts, spotify.WithTokenURL(cfg.Spotify.TokenURL))
	}
	return spotify.NewClient(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, opts...)
}

// initRegistry loads the trusted-source registry, falling back to an empty
// one when the file is absent. Structural detectors still apply without it.
func initRegistry() *trust.Registry {
	registry, err := trust.Load(cfg.Trust.RegistryPath)
	if err != nil {
		zap.L().Warn("trusted registry unavailable, structural detectors only",
			zap.String("path", cfg.Trust.RegistryPath), zap.Error(err))
		return trust.NewRegistry(nil)
	}
	return registry
}

func initLedger(st store.Store) *quota.Ledger {
	return quota.NewLedger(st, time.Duration(cfg.Propose.CooldownDays)*24*time.Hour)
}

func initProposer(st store.Store, yt youtube.Client, gov *quota.Governor) *pipeline.Proposer {
	return pipeline.NewProposer(st, yt, gov, initLedger(st),
		cfg.Propose.PromotionFloor, cfg.Propose.MaxCandidates)
}

func initVerifier(st store.Store, yt youtube.Client, gov *quota.Governor) *pipeline.Verifier {
	return pipeline.NewVerifier(st, yt, gov, initRegistry(), pipeline.VerifierOptions{
		SubscriberThreshold: int64(cfg.Verify.SubscriberThreshold),
		MaxAgeYears:         cfg.Verify.MaxAgeYears,
		RejectOnWeakCatalog: cfg.Verify.RejectOnWeakCatalog,
		Workers:             cfg.Verify.Workers,
		VenuePlaceholders:   cfg.Verify.VenuePlaceholders,
		Caps: pipeline.ViewCaps{
			LowPopMax:  cfg.Verify.ViewCaps.LowPopMax,
			MidPopMax:  cfg.Verify.ViewCaps.MidPopMax,
			HighPopMax: cfg.Verify.ViewCaps.HighPopMax,
			LowCap:     cfg.Verify.ViewCaps.LowCap,
			DefaultCap: cfg.Verify.ViewCaps.DefaultCap,
			HighCap:    cfg.Verify.ViewCaps.HighCap,
		},
	})
}

func initEnricher(st store.Store, gov *quota.Governor) *enrich.Service {
	ttl := time.Duration(cfg.Enrich.CacheTTLDays) * 24 * time.Hour
	return enrich.NewService(st, initSpotify(), gov, ttl)
}

func initReporter(st store.Store, yt youtube.Client) *pipeline.Reporter {
	return pipeline.NewReporter(st, yt, cfg.Report.AuditRPS, cfg.Report.AuditSample)
}
