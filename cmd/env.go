package main

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/config"
	"github.com/sells-group/agri-esg/internal/esg"
	"github.com/sells-group/agri-esg/internal/kpi"
	"github.com/sells-group/agri-esg/internal/narrative"
	"github.com/sells-group/agri-esg/internal/pipeline"
	"github.com/sells-group/agri-esg/internal/store"
	"github.com/sells-group/agri-esg/pkg/anthropic"
)

// initStore opens the configured store and runs its migrations.
func initStore(ctx context.Context) (store.Store, error) {
	return store.New(ctx, cfg.Store)
}

// initRegistry returns the built-in policies plus any from scoring.policy_file.
func initRegistry(c *config.Config) (*esg.Registry, error) {
	var extra []esg.Policy
	if c.Scoring.PolicyFile != "" {
		loaded, err := esg.LoadPolicies(c.Scoring.PolicyFile)
		if err != nil {
			return nil, err
		}
		extra = loaded
	}
	return esg.NewRegistry(extra...)
}

// initEngine builds the scoring engine from config.
func initEngine(c *config.Config) (*pipeline.Engine, error) {
	reg, err := initRegistry(c)
	if err != nil {
		return nil, err
	}
	return pipeline.NewEngine(pipeline.Options{
		Factors:  c.EmissionFactors,
		Missing:  missingPolicy(c),
		Registry: reg,
	})
}

func missingPolicy(c *config.Config) kpi.MissingPolicy {
	if len(c.Scoring.ZeroAsMissing) > 0 {
		return kpi.MissingPolicy{ZeroAsMissing: c.Scoring.ZeroAsMissing}
	}
	return kpi.DefaultMissingPolicy()
}

// initScorer wraps the engine in the result cache. A nil store keeps the
// cache in process; a zero TTL disables caching.
func initScorer(c *config.Config, eng *pipeline.Engine, st store.Store) pipeline.Scorer {
	ttl := time.Duration(c.Cache.TTLMinutes) * time.Minute
	if ttl <= 0 {
		return eng
	}
	if st == nil {
		return pipeline.NewCached(eng, pipeline.NewMemoryCache(ttl, c.Cache.MaxEntries))
	}
	return pipeline.NewCached(eng, pipeline.NewStoreCache(st, ttl))
}

// initAdvisor returns the narrative advisor. Without an API key the advisor
// answers every request with its setup fallback.
func initAdvisor(c *config.Config) *narrative.Advisor {
	opts := narrative.OptionsFromConfig(c)
	if c.Anthropic.Key == "" {
		zap.L().Warn("AGRIESG_ANTHROPIC_KEY not set, narrative advice will use the static fallback")
		return narrative.NewAdvisor(nil, opts)
	}
	return narrative.NewAdvisor(anthropic.NewClient(c.Anthropic.Key), opts)
}

// cleanList trims flag values and drops blanks.
func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
