package server

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lexum-research/lexum/internal/research/core"
	"github.com/lexum-research/lexum/internal/research/telemetry"
	"github.com/lexum-research/lexum/internal/research/tools"
	"github.com/lexum-research/lexum/internal/store"
)

// ResearchHandler exposes the research pipeline over HTTP.
type ResearchHandler struct {
	Orch      *core.Orchestrator
	Archive   *store.PostgresStore // nil when running without Postgres
	Indexer   DocumentIndexer
	Graph     *store.MemoryGraph
	Registry  *tools.Registry
	Telemetry *telemetry.Telemetry
	Logger    *log.Logger
}

// DocumentIndexer accepts corpus documents for search.
type DocumentIndexer interface {
	IndexDocument(doc core.Document) error
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/research", h.submit)
	g.GET("/research", h.recent)
	g.GET("/research/:id", h.get)
	g.GET("/research/:id/status", h.status)
	g.DELETE("/research/:id", h.cancel)
	g.POST("/documents", h.ingest)
	g.GET("/tools/health", h.toolHealth)
	g.GET("/costs", h.costs)
}

// ResearchRequest is the submit payload.
type ResearchRequest struct {
	Query   string                 `json:"query"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (h *ResearchHandler) submit(c echo.Context) error {
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	query := core.Query{
		Text:      req.Query,
		Context:   req.Context,
		CreatedAt: time.Now(),
	}
	result, err := h.Orch.Process(c.Request().Context(), query)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	if h.Archive != nil {
		if err := h.Archive.SaveResearchResult(c.Request().Context(), result); err != nil {
			h.Logger.Printf("archive failed for %s: %v", result.ID, err)
		}
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ResearchHandler) get(c echo.Context) error {
	if h.Archive == nil {
		return echo.NewHTTPError(http.StatusNotFound, "result archive not configured")
	}
	result, err := h.Archive.GetResearchResult(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "result not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ResearchHandler) recent(c echo.Context) error {
	if h.Archive == nil {
		return c.JSON(http.StatusOK, []core.ResearchResult{})
	}
	results, err := h.Archive.ListRecentResults(c.Request().Context(), 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if results == nil {
		results = []core.ResearchResult{}
	}
	return c.JSON(http.StatusOK, results)
}

func (h *ResearchHandler) status(c echo.Context) error {
	status, ok := h.Orch.GetStatus(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no in-flight request with that id")
	}
	return c.JSON(http.StatusOK, status)
}

func (h *ResearchHandler) cancel(c echo.Context) error {
	if !h.Orch.CancelProcessing(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "no in-flight request with that id")
	}
	return c.NoContent(http.StatusAccepted)
}

// IngestRequest adds documents to the corpus. Precedent documents are also
// linked into the relationship graph through their terms.
type IngestRequest struct {
	Documents []IngestDocument `json:"documents"`
}

type IngestDocument struct {
	core.Document
	GraphTerms []string `json:"graph_terms,omitempty"`
}

func (h *ResearchHandler) ingest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents are required")
	}

	indexed := 0
	for _, item := range req.Documents {
		doc := item.Document
		if doc.ID == "" || doc.Title == "" || doc.Content == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "document id, title and content are required")
		}
		if h.Indexer != nil {
			if err := h.Indexer.IndexDocument(doc); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
		}
		if h.Graph != nil && doc.Type == "precedent" {
			terms := item.GraphTerms
			if len(terms) == 0 {
				terms = []string{doc.Title}
			}
			h.Graph.AddPrecedent(doc, terms)
		}
		indexed++
	}
	return c.JSON(http.StatusCreated, map[string]int{"indexed": indexed})
}

func (h *ResearchHandler) toolHealth(c echo.Context) error {
	if h.Registry == nil {
		return c.JSON(http.StatusOK, map[string]bool{})
	}
	return c.JSON(http.StatusOK, h.Registry.HealthCheck())
}

func (h *ResearchHandler) costs(c echo.Context) error {
	if h.Telemetry == nil {
		return c.JSON(http.StatusOK, telemetry.CostSummary{})
	}
	return c.JSON(http.StatusOK, h.Telemetry.GetCostSummary())
}
