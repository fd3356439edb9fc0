package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mateo/pagesmith/internal/config"
	"github.com/mateo/pagesmith/internal/imagegen"
	"github.com/mateo/pagesmith/internal/job"
	"github.com/mateo/pagesmith/internal/llm"
	"github.com/mateo/pagesmith/internal/observability"
	"github.com/mateo/pagesmith/internal/patch"
	"github.com/mateo/pagesmith/internal/pipeline"
	"github.com/mateo/pagesmith/internal/research"
	"github.com/mateo/pagesmith/internal/serve"
	"github.com/mateo/pagesmith/internal/store"
)

// app wires the service's collaborators together for the CLI commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  store.Store
	llm    llm.Client
	jobs   *job.Service
	runner *pipeline.Runner
	engine *patch.Engine
	pages  *serve.Service
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Ephemeral = ephemeral
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	var st store.Store
	if cfg.Ephemeral {
		logger.Warn("running with an in-memory store, nothing will be persisted")
		st = store.NewMemory()
	} else {
		st, err = store.Select(ctx, store.Options{
			DatabaseURL:    cfg.DatabaseURL,
			FileStoreURL:   cfg.FileStoreURL,
			FileStoreToken: cfg.FileStoreToken,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to select a storage backend: %w", err)
		}
	}

	llmCfg := llm.DefaultConfig()
	if cfg.GeminiAPIKey == "" && llmCfg.Provider == llm.ProviderGemini {
		llmCfg.Provider = llm.ProviderOpenAI
		llmCfg.Models = map[llm.ModelTier]string{
			llm.TierFast:    "gpt-4o-mini",
			llm.TierQuality: "gpt-4o",
		}
	}
	client, err := llm.NewClient(ctx, llmCfg, cfg.LLMAPIKey())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	var images imagegen.Generator
	if cfg.OpenAIAPIKey != "" {
		images, err = imagegen.NewOpenAIGenerator(cfg.OpenAIAPIKey)
		if err != nil {
			st.Close()
			return nil, err
		}
	} else {
		logger.Warn("no OpenAI API key, hero image generation disabled")
	}

	var gatherer pipeline.Gatherer
	if cfg.SearchAPIKey != "" && cfg.SearchCX != "" {
		searcher, err := research.NewGoogleSearcher(ctx, cfg.SearchAPIKey, cfg.SearchCX)
		if err != nil {
			st.Close()
			return nil, err
		}
		gatherer = research.NewService(searcher, logger)
	} else {
		logger.Warn("no search credentials, research runs from job inputs only")
	}

	jobs := job.NewService(st)
	runner := pipeline.NewRunner(pipeline.Deps{
		Jobs:     jobs,
		Store:    st,
		LLM:      client,
		Images:   images,
		Research: gatherer,
		Logger:   logger,
	})

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		llm:    client,
		jobs:   jobs,
		runner: runner,
		engine: patch.NewEngine(client, logger),
		pages:  serve.NewService(st, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.llm.Close(); err != nil {
		a.logger.Warn("failed to close LLM client", zap.Error(err))
	}
	a.store.Close()
	_ = a.logger.Sync()
}
