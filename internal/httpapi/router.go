// Package httpapi exposes a graph.Engine over HTTP.
//
//	POST /graph/create         register a graph definition
//	POST /graph/run            run a graph (synchronously unless "async" is set)
//	GET  /graph/state/{run_id} current status, state and history of a run
//	GET  /graph/events/{run_id} execution trail of a run, when buffered
//	GET  /graph/steps/{run_id} journaled state after each step, when journaled
//	GET  /graph/{graph_id}     a registered definition
//	GET  /runs                 run summaries, optionally ?graph_id=
//	GET  /healthz              liveness
//	GET  /metrics              Prometheus metrics, when configured
//	GET  /                     welcome message and preloaded graph IDs
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dshills/minigraph/graph"
	"github.com/dshills/minigraph/graph/emit"
	"github.com/dshills/minigraph/graph/store"
)

// Config holds optional router settings.
type Config struct {
	// Aliases maps friendly names accepted as graph_id (such as
	// "code_review") to registered graph IDs.
	Aliases map[string]string

	// Metrics, when set, is served at /metrics.
	Metrics http.Handler

	// Events, when set, backs GET /graph/events/{run_id}. It must also be
	// one of the engine's emitters.
	Events *emit.BufferedEmitter

	// Steps, when set, backs GET /graph/steps/{run_id}. It must be the
	// store the engine journals to.
	Steps store.Store[graph.State]

	// RunTimeout bounds every run started over HTTP. Zero means the
	// request context alone decides for synchronous runs and async runs
	// are unbounded.
	RunTimeout time.Duration
}

type handlers struct {
	engine *graph.Engine
	logger *slog.Logger
	cfg    Config
}

// NewRouter returns the API handler wrapped in request logging.
func NewRouter(engine *graph.Engine, logger *slog.Logger, cfg Config) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{engine: engine, logger: logger, cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /graph/create", h.handleCreateGraph)
	mux.HandleFunc("POST /graph/run", h.handleRunGraph)
	mux.HandleFunc("GET /graph/state/{run_id}", h.handleRunState)
	mux.HandleFunc("GET /graph/{graph_id}", h.handleGetGraph)
	if cfg.Events != nil {
		mux.HandleFunc("GET /graph/events/{run_id}", h.handleRunEvents)
	}
	if cfg.Steps != nil {
		mux.HandleFunc("GET /graph/steps/{run_id}", h.handleRunSteps)
	}
	mux.HandleFunc("GET /runs", h.handleListRuns)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /{$}", h.handleRoot)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	return logRequests(logger, mux)
}

type createGraphResponse struct {
	GraphID string `json:"graph_id"`
}

func (h *handlers) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	var def graph.Definition
	if err := decodeJSONBody(r, &def); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}

	graphID, err := h.engine.CreateGraph(def)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	h.logger.Info("graph created", "graph_id", graphID, "nodes", len(def.Nodes), "edges", len(def.Edges))
	writeJSON(w, http.StatusOK, createGraphResponse{GraphID: graphID})
}

type runGraphRequest struct {
	GraphID      string                 `json:"graph_id"`
	InitialState map[string]interface{} `json:"initial_state"`
	Async        bool                   `json:"async,omitempty"`
}

type runGraphResponse struct {
	RunID      string       `json:"run_id"`
	Status     graph.Status `json:"status"`
	FinalState graph.State  `json:"final_state,omitempty"`
	History    []string     `json:"history,omitempty"`
	Error      string       `json:"error,omitempty"`
}

func (h *handlers) handleRunGraph(w http.ResponseWriter, r *http.Request) {
	var req runGraphRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if req.GraphID == "" {
		writeInvalidRequest(w, "graph_id is required")
		return
	}
	graphID := h.resolveGraphID(req.GraphID)

	if req.Async {
		// The run outlives the request.
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if base := context.WithoutCancel(r.Context()); h.cfg.RunTimeout > 0 {
			ctx, cancel = context.WithTimeout(base, h.cfg.RunTimeout)
		} else {
			ctx, cancel = context.WithCancel(base)
		}
		runID, err := h.engine.StartRun(ctx, graphID, req.InitialState)
		if err != nil {
			cancel()
			writeMappedError(w, err)
			return
		}
		go func() {
			defer cancel()
			_, _ = h.engine.AwaitRun(ctx, runID)
		}()
		writeJSON(w, http.StatusAccepted, runGraphResponse{RunID: runID, Status: graph.StatusRunning})
		return
	}

	ctx := r.Context()
	if h.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.RunTimeout)
		defer cancel()
	}

	runID, err := h.engine.ExecuteRun(ctx, graphID, req.InitialState)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	snap, err := h.engine.GetRun(runID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if snap.Status == graph.StatusFailed {
		h.logger.Warn("run failed", "run_id", runID, "graph_id", graphID, "error", snap.Error)
	}

	writeJSON(w, http.StatusOK, runGraphResponse{
		RunID:      snap.RunID,
		Status:     snap.Status,
		FinalState: snap.State,
		History:    snap.History,
		Error:      snap.Error,
	})
}

type runStateResponse struct {
	RunID     string       `json:"run_id"`
	GraphID   string       `json:"graph_id"`
	Status    graph.Status `json:"status"`
	State     graph.State  `json:"state"`
	History   []string     `json:"history"`
	StepCount int          `json:"step_count"`
	Error     string       `json:"error,omitempty"`
}

func newRunStateResponse(snap graph.RunSnapshot) runStateResponse {
	return runStateResponse{
		RunID:     snap.RunID,
		GraphID:   snap.GraphID,
		Status:    snap.Status,
		State:     snap.State,
		History:   snap.History,
		StepCount: snap.StepCount,
		Error:     snap.Error,
	}
}

func (h *handlers) handleRunState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.GetRun(r.PathValue("run_id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunStateResponse(snap))
}

type eventResponse struct {
	Step   int                    `json:"step"`
	NodeID string                 `json:"node_id,omitempty"`
	Msg    string                 `json:"msg"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

type runEventsResponse struct {
	RunID  string          `json:"run_id"`
	Events []eventResponse `json:"events"`
}

// handleRunEvents returns the buffered events of a run, optionally
// filtered by ?node_id=, ?msg= and ?errors=true.
func (h *handlers) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if _, err := h.engine.GetRun(runID); err != nil {
		writeMappedError(w, err)
		return
	}

	q := r.URL.Query()
	filter := emit.HistoryFilter{
		NodeID: q.Get("node_id"),
		Msg:    q.Get("msg"),
	}
	if v := q.Get("errors"); v != "" {
		errorsOnly, err := strconv.ParseBool(v)
		if err != nil {
			writeInvalidRequest(w, "errors must be a boolean")
			return
		}
		filter.ErrorsOnly = errorsOnly
	}

	events := h.cfg.Events.GetHistoryWithFilter(runID, filter)
	resp := runEventsResponse{RunID: runID, Events: make([]eventResponse, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, eventResponse{
			Step:   ev.Step,
			NodeID: ev.NodeID,
			Msg:    ev.Msg,
			Meta:   ev.Meta,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type stepResponse struct {
	Step    int         `json:"step"`
	NodeID  string      `json:"node_id"`
	State   graph.State `json:"state"`
	SavedAt time.Time   `json:"saved_at,omitempty"`
}

type runStepsResponse struct {
	RunID string         `json:"run_id"`
	Steps []stepResponse `json:"steps"`
}

// handleRunSteps returns the journaled steps of a run. A known run with no
// journaled steps yet yields an empty list.
func (h *handlers) handleRunSteps(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if _, err := h.engine.GetRun(runID); err != nil {
		writeMappedError(w, err)
		return
	}

	records, err := h.cfg.Steps.ListSteps(r.Context(), runID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("list steps", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, errorCodeRuntime, "step journal unavailable")
		return
	}

	resp := runStepsResponse{RunID: runID, Steps: make([]stepResponse, 0, len(records))}
	for _, rec := range records {
		resp.Steps = append(resp.Steps, stepResponse{
			Step:    rec.Step,
			NodeID:  rec.NodeID,
			State:   rec.State,
			SavedAt: rec.SavedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type graphResponse struct {
	GraphID   string           `json:"graph_id"`
	CreatedAt time.Time        `json:"created_at"`
	Graph     graph.Definition `json:"graph"`
}

func (h *handlers) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	graphID := h.resolveGraphID(r.PathValue("graph_id"))
	inst, err := h.engine.GetGraph(graphID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graphResponse{
		GraphID:   inst.ID(),
		CreatedAt: inst.CreatedAt(),
		Graph:     inst.Definition(),
	})
}

type runSummary struct {
	RunID     string       `json:"run_id"`
	GraphID   string       `json:"graph_id"`
	Status    graph.Status `json:"status"`
	StepCount int          `json:"step_count"`
	StartedAt time.Time    `json:"started_at"`
}

type listRunsResponse struct {
	Runs []runSummary `json:"runs"`
}

func (h *handlers) handleListRuns(w http.ResponseWriter, r *http.Request) {
	graphID := r.URL.Query().Get("graph_id")
	if graphID != "" {
		graphID = h.resolveGraphID(graphID)
	}

	snaps := h.engine.ListRuns(graphID)
	resp := listRunsResponse{Runs: make([]runSummary, 0, len(snaps))}
	for _, s := range snaps {
		resp.Runs = append(resp.Runs, runSummary{
			RunID:     s.RunID,
			GraphID:   s.GraphID,
			Status:    s.Status,
			StepCount: s.StepCount,
			StartedAt: s.StartedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type rootResponse struct {
	Message string            `json:"message"`
	Graphs  map[string]string `json:"graphs,omitempty"`
	// CodeReviewGraphID is kept for clients of the original API.
	CodeReviewGraphID string `json:"code_review_graph_id,omitempty"`
}

func (h *handlers) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Message:           "Welcome to minigraph",
		Graphs:            h.cfg.Aliases,
		CodeReviewGraphID: h.cfg.Aliases["code_review"],
	})
}

func (h *handlers) resolveGraphID(id string) string {
	if target, ok := h.cfg.Aliases[id]; ok {
		return target
	}
	return id
}
