package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/levelx/growth-cli/internal/analysis"
	"github.com/levelx/growth-cli/internal/cost"
	"github.com/levelx/growth-cli/internal/store"
	"github.com/levelx/growth-cli/pkg/completion"
	"github.com/levelx/growth-cli/pkg/xapi"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "growth.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCompletion() (completion.Client, error) {
	switch cfg.Completion.Provider {
	case "anthropic":
		if cfg.Completion.AnthropicKey == "" {
			return nil, eris.New("anthropic API key is required (LEVELX_COMPLETION_ANTHROPIC_KEY)")
		}
		return completion.NewAnthropic(cfg.Completion.AnthropicKey,
			completion.WithAnthropicModel(cfg.Completion.AnthropicModel),
		), nil
	case "grok":
		if cfg.Completion.GrokKey == "" {
			return nil, eris.New("grok API key is required (LEVELX_COMPLETION_GROK_KEY)")
		}
		return completion.NewGrok(cfg.Completion.GrokKey,
			completion.WithGrokModel(cfg.Completion.GrokModel),
			completion.WithGrokBaseURL(cfg.Completion.GrokBaseURL),
		), nil
	default:
		return nil, eris.Errorf("unsupported completion provider: %s", cfg.Completion.Provider)
	}
}

func initSocial() (xapi.Client, error) {
	if cfg.XAPI.BearerToken == "" {
		return nil, eris.New("X API bearer token is required (LEVELX_XAPI_BEARER_TOKEN)")
	}
	opts := []xapi.Option{xapi.WithRateLimit(cfg.XAPI.RequestsPerSec)}
	if cfg.XAPI.BaseURL != "" {
		opts = append(opts, xapi.WithBaseURL(cfg.XAPI.BaseURL))
	}
	return xapi.NewClient(cfg.XAPI.BearerToken, opts...), nil
}

// initService wires the full orchestrator from config. The caller owns the
// returned store's lifetime.
func initService(ctx context.Context) (*analysis.Service, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}

	llm, err := initCompletion()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	social, err := initSocial()
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	rates := cost.Rates{XAPI: cost.XAPIRate{PerRequest: cfg.Pricing.XAPI.PerRequest}}
	if len(cfg.Pricing.Completion) > 0 {
		rates.Completion = make(map[string]cost.ModelRate, len(cfg.Pricing.Completion))
		for model, p := range cfg.Pricing.Completion {
			rates.Completion[model] = cost.ModelRate{Input: p.Input, Output: p.Output}
		}
	} else {
		rates.Completion = cost.DefaultRates().Completion
	}

	opts := analysis.Options{
		PeerCount:         cfg.Analysis.PeerCount,
		ProfileTTL:        time.Duration(cfg.Analysis.ProfileTTLHours) * time.Hour,
		PeerTTL:           time.Duration(cfg.Analysis.PeerTTLHours) * time.Hour,
		ExclusionLookback: cfg.Analysis.ExclusionLookback,
		Finder: analysis.FinderOptions{
			MinFollowerRatio: cfg.Analysis.MinFollowerRatio,
			MaxFollowerRatio: cfg.Analysis.MaxFollowerRatio,
			MinRecentPosts:   cfg.Analysis.MinRecentPosts,
		},
	}

	svc := analysis.NewService(st, social, llm, cost.NewCalculator(rates), opts)
	return svc, st, nil
}
