package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
	"github.com/lexum-research/lexum/internal/research/telemetry"
	"github.com/lexum-research/lexum/internal/research/tools"
	"github.com/lexum-research/lexum/internal/store"
)

// Pipeline bundles the wired research components so the HTTP server and
// the CLI share one construction path.
type Pipeline struct {
	Orch      *core.Orchestrator
	Archive   *store.PostgresStore // nil without Postgres
	Indexer   DocumentIndexer
	Graph     *store.MemoryGraph
	Registry  *tools.Registry
	Telemetry *telemetry.Telemetry

	closers []func()
}

// Close releases every component in reverse construction order.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// BuildPipeline constructs the full research stack from configuration.
func BuildPipeline(cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{}

	tele := telemetry.New(cfg.Telemetry)
	p.Telemetry = tele
	p.closers = append(p.closers, tele.Shutdown)

	llm, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		p.Close()
		return nil, err
	}
	router := core.NewModelRouter(cfg.LLM.Routing)

	registry := tools.NewRegistry(cfg.Tools, llm, router)
	registry.Initialize()
	p.Registry = registry
	p.closers = append(p.closers, registry.Cleanup)

	// Postgres when configured, bleve otherwise. Both serve the same
	// VectorStore contract to the agents.
	var vectors core.VectorStore
	if cfg.Storage.Postgres.URL != "" || cfg.Storage.Postgres.Host != "" {
		pg, err := store.NewPostgresStore(cfg.Storage.Postgres)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		p.closers = append(p.closers, func() { _ = pg.Close() })
		vectors = pg
		p.Archive = pg
		p.Indexer = pgIndexer{pg: pg}
	} else {
		bl, err := store.NewBleveStore(cfg.Storage.Index)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("bleve index: %w", err)
		}
		p.closers = append(p.closers, func() { _ = bl.Close() })
		vectors = bl
		p.Indexer = bl
	}

	p.Graph = store.NewMemoryGraph()
	agents := core.NewAgents(vectors, p.Graph, registry)

	var cache core.AnswerCache
	if rc := store.NewRedisCache(cfg.Storage.Redis); rc != nil {
		p.closers = append(p.closers, func() { _ = rc.Close() })
		cache = rc
	}

	analyzer := core.NewAnalyzer(cfg.Tools.Search.MaxQueryLen)
	synthesizer := core.NewSynthesisDispatcher(cfg.Synthesis, llm, router, tele)
	orch := core.NewOrchestrator(cfg.Retrieval, analyzer, agents, synthesizer, cache, tele)
	if enhancer := registry.Enhancer(); enhancer != nil {
		orch.SetEnhancer(enhancer)
	}
	p.Orch = orch
	return p, nil
}

// Run wires the full service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	pipeline, err := BuildPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	api := e.Group("/api")
	if cfg.Server.JWTSecret != "" {
		api.Use(AuthMiddleware([]byte(cfg.Server.JWTSecret)))
	} else {
		baseLogger.Printf("jwt secret not set, API is unauthenticated")
	}

	handler := &ResearchHandler{
		Orch:      pipeline.Orch,
		Archive:   pipeline.Archive,
		Indexer:   pipeline.Indexer,
		Graph:     pipeline.Graph,
		Registry:  pipeline.Registry,
		Telemetry: pipeline.Telemetry,
		Logger:    baseLogger,
	}
	handler.Register(api)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	baseLogger.Printf("listening on %s", addr)
	return e.Start(addr)
}

// pgIndexer adapts the Postgres store to the indexer contract.
type pgIndexer struct {
	pg *store.PostgresStore
}

func (p pgIndexer) IndexDocument(doc core.Document) error {
	return p.pg.SaveDocument(context.Background(), doc)
}
