package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/minigraph/graph"
	"github.com/dshills/minigraph/graph/emit"
	"github.com/dshills/minigraph/graph/model"
	"github.com/dshills/minigraph/graph/store"
	"github.com/dshills/minigraph/graph/tool"
	"github.com/dshills/minigraph/internal/config"
	"github.com/dshills/minigraph/internal/httpapi"
	"github.com/dshills/minigraph/workflows/codereview"

	_ "github.com/dshills/minigraph/graph/model/anthropic"
	_ "github.com/dshills/minigraph/graph/model/google"
	_ "github.com/dshills/minigraph/graph/model/openai"
)

const (
	aliasCodeReview    = "code_review"
	aliasCodeReviewLLM = "code_review_llm"
)

// app holds everything the server builds from its config.
type app struct {
	engine  *graph.Engine
	handler http.Handler
	aliases map[string]string
	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{aliases: make(map[string]string)}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts = append(opts, graph.WithMetrics(graph.NewPrometheusMetrics(registry)))

	events := emit.NewBufferedEmitter()
	emitters := emit.Multi{emit.NewSlogEmitter(logger), events}
	if cfg.Tracing.Enabled {
		tp := newTracerProvider(cfg.Tracing.ServiceName, logger)
		a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer("minigraph")))
	}
	opts = append(opts, graph.WithEmitter(emitters))

	journal, closeJournal, err := store.Open[graph.State](ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	a.closers = append(a.closers, closeJournal)
	opts = append(opts, graph.WithStore(journal))

	tools := tool.NewRegistry()
	if err := codereview.Register(tools); err != nil {
		return nil, err
	}
	if httpCfg := cfg.Tools.HTTP; httpCfg.Enabled {
		httpTool := tool.NewHTTPTool(&http.Client{Timeout: httpCfg.Timeout.Std()})
		if len(httpCfg.AllowedHosts) > 0 {
			httpTool.AllowHosts(httpCfg.AllowedHosts...)
		}
		if err := tools.Register(httpTool); err != nil {
			return nil, err
		}
		logger.Warn("http_request tool enabled", "allowed_hosts", httpCfg.AllowedHosts, "timeout", httpCfg.Timeout.Std())
	}

	var chat model.ChatModel
	if cfg.LLM.Enabled() {
		chat, err = model.NewFromConfig(cfg.LLM.Provider, cfg.LLM.APIKey(), cfg.LLM.Model)
		if err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
		if c, ok := chat.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
		if err := tools.Register(codereview.LLMSuggestTool(chat)); err != nil {
			return nil, err
		}
	}

	a.engine, err = graph.New(tools, opts...)
	if err != nil {
		return nil, err
	}

	if a.aliases[aliasCodeReview], err = a.engine.CreateGraph(codereview.Definition()); err != nil {
		return nil, fmt.Errorf("register code review graph: %w", err)
	}
	if chat != nil {
		if a.aliases[aliasCodeReviewLLM], err = a.engine.CreateGraph(codereview.DefinitionWithLLM()); err != nil {
			return nil, fmt.Errorf("register llm code review graph: %w", err)
		}
		logger.Info("llm suggestions enabled", "provider", cfg.LLM.Provider, "graph_id", a.aliases[aliasCodeReviewLLM])
	}

	a.handler = httpapi.NewRouter(a.engine, logger, httpapi.Config{
		Aliases:    a.aliases,
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Events:     events,
		Steps:      journal,
		RunTimeout: cfg.HTTP.RequestTimeout.Std(),
	})
	ok = true
	return a, nil
}

// Close releases the store, tracer provider and model clients in reverse
// order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
