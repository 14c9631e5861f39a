package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/chat"
	"github.com/systemshift/graphchat/internal/config"
	"github.com/systemshift/graphchat/internal/graph"
	"github.com/systemshift/graphchat/internal/history"
	"github.com/systemshift/graphchat/internal/llm"
	"github.com/systemshift/graphchat/internal/metrics"
	"github.com/systemshift/graphchat/internal/qa"
)

const ollamaDefaultURL = "http://localhost:11434"

// app is the wired set of long-lived components.
type app struct {
	metrics *metrics.Collector
	driver  neo4j.DriverWithContext
	store   history.Store
	gateway *llm.Guarded
	chain   *qa.Chain
	logger  *zap.Logger
}

// newApp connects to Neo4j and the history backend and builds the gateway and
// chain. A failed history setup is logged and replaced by a store that fails
// every call, so the chat still answers questions.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		metrics: metrics.NewCollector("graphchat"),
		logger:  logger,
	}

	driver, err := graph.Connect(ctx, graph.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	})
	if err != nil {
		logger.Error("neo4j unavailable", zap.String("uri", cfg.Neo4j.URI), zap.Error(err))
	} else {
		a.driver = driver
		logger.Info("connected to neo4j", zap.String("uri", cfg.Neo4j.URI))
	}

	store, err := openHistory(ctx, cfg, a.driver, err)
	if err != nil {
		logger.Error("history store unavailable, continuing without history", zap.Error(err))
		store = history.NewUnavailable(err)
	}
	a.store = history.NewInstrumented(store, a.metrics, logger)

	client, err := llm.New(llmOptions(cfg.LLM))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.gateway = llm.NewGuarded(client, llm.BreakerConfig{
		MaxFailures: cfg.LLM.BreakerMaxFailures,
		Cooldown:    cfg.LLM.BreakerCooldown,
	}, a.metrics, logger)

	if a.driver != nil {
		a.chain = qa.NewChain(a.gateway, graph.New(a.driver, cfg.Neo4j.Database), cfg.Chat.ResultLimit, logger)
	}
	return a, nil
}

func openHistory(ctx context.Context, cfg config.Config, driver neo4j.DriverWithContext, connErr error) (history.Store, error) {
	switch cfg.History.Backend {
	case "sqlite":
		return history.NewSQLite(ctx, cfg.History.SQLitePath)
	default:
		if driver == nil {
			if connErr == nil {
				connErr = errors.New("no neo4j driver")
			}
			return nil, connErr
		}
		s := history.NewNeo4j(driver, cfg.Neo4j.Database)
		if err := s.EnsureConstraints(ctx); err != nil {
			return nil, fmt.Errorf("creating history constraints: %w", err)
		}
		return s, nil
	}
}

// answerer returns the chain, or nil when the graph is unreachable so sessions
// report that graph QA is not initialized.
func (a *app) answerer() qa.Answerer {
	if a.chain == nil {
		return nil
	}
	return a.chain
}

func (a *app) chatOptions(c config.ChatConfig) chat.Options {
	return chat.Options{
		TopLimit:         c.TopLimit,
		ActionTimeout:    c.ActionTimeout,
		MaxRounds:        c.MaxRounds,
		MemoryLimit:      c.MemoryLimit,
		RecordSelections: c.RecordSelections,
	}
}

func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.logger.Warn("closing history store", zap.Error(err))
		}
	}
	if a.driver != nil {
		if err := a.driver.Close(ctx); err != nil {
			a.logger.Warn("closing neo4j driver", zap.Error(err))
		}
	}
}

// llmOptions drops Ollama defaults that make no sense for hosted providers.
func llmOptions(c config.LLMConfig) llm.Options {
	opts := llm.Options{
		Provider: c.Provider,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		APIKey:   c.APIKey,
		Timeout:  c.Timeout,
	}
	if c.Provider != "ollama" {
		if opts.BaseURL == ollamaDefaultURL {
			opts.BaseURL = ""
		}
		if opts.Model == config.DefaultConfig().LLM.Model {
			opts.Model = ""
		}
	}
	return opts
}
