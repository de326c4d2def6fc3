// Package server exposes a session over a JSON HTTP API for `crucible serve`.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/dyluth/crucible/internal/engine"
	"github.com/dyluth/crucible/internal/session"
	"github.com/dyluth/crucible/internal/snapshot"
	"github.com/dyluth/crucible/internal/timespec"
	"github.com/dyluth/crucible/internal/workspace"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// healthTimeout bounds the store ping behind /healthz.
const healthTimeout = 2 * time.Second

// Pinger checks backing store connectivity. *store.RedisStore satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the server to one session.
type Config struct {
	Addr      string
	Session   *session.Session
	Snapshots *snapshot.Manager
	Pinger    Pinger // nil for local backends
	Namespace string
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	router   chi.Router
	server   *http.Server
	listener net.Listener
}

// New builds the router. Call Start to listen.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/library", s.handleLibrary)
	r.Post("/combine", s.handleCombine)

	r.Route("/workspace", func(r chi.Router) {
		r.Get("/", s.handleView)
		r.Post("/spawn", s.handleSpawn)
		r.Post("/drag", s.handleDrag)
		r.Post("/drop", s.handleDrop)
		r.Post("/clear", s.handleClear)
		r.Post("/undo", s.handleUndo)
		r.Post("/redo", s.handleRedo)
	})

	r.Route("/snapshots", func(r chi.Router) {
		r.Get("/", s.handleListSnapshots)
		r.Post("/", s.handleSaveSnapshot)
		r.Get("/{id}", s.handleGetSnapshot)
		r.Post("/{id}/load", s.handleLoadSnapshot)
		r.Delete("/{id}", s.handleDeleteSnapshot)
	})

	s.router = r
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background.
// Bind errors are returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		// Drops can wait on the generative resolver.
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Server] Serve error: %v", err)
		}
	}()

	log.Printf("[Server] Listening on %s (namespace=%s)", ln.Addr(), s.cfg.Namespace)
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HealthResponse is the JSON body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
}

// handleHealth returns 200 when the store is reachable, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Store: "local"}
	if s.cfg.Pinger == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.cfg.Pinger.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Store = "disconnected"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Store = "connected"
	writeJSON(w, http.StatusOK, resp)
}

type libraryResponse struct {
	Elements []alchemy.Element `json:"elements"`
	Count    int               `json:"count"`
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	elements := s.cfg.Session.Library()
	writeJSON(w, http.StatusOK, libraryResponse{Elements: elements, Count: len(elements)})
}

type combineRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

type combineResponse struct {
	Key    alchemy.Key    `json:"key"`
	Tier   engine.Tier    `json:"tier,omitempty"`
	Result alchemy.Result `json:"result"`
	New    bool           `json:"new,omitempty"`
	Reason engine.Reason  `json:"reason,omitempty"`
}

// handleCombine resolves two library elements without touching the workspace.
// An invalid mix is a normal 200 answer; missing credentials are 424 and
// resolver outages 502, so a client can tell them apart.
func (s *Server) handleCombine(w http.ResponseWriter, r *http.Request) {
	var req combineRequest
	if !decode(w, r, &req) {
		return
	}

	lib := s.cfg.Session.Engine().Library()
	a, okA := lib.Get(req.A)
	b, okB := lib.Get(req.B)
	if !okA || !okB {
		missing := req.A
		if okA {
			missing = req.B
		}
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", session.ErrUnknownElement, missing))
		return
	}

	out, err := s.cfg.Session.Engine().Combine(r.Context(), a, b)
	resp := combineResponse{Key: out.Key, Tier: out.Tier, Result: out.Result, New: out.New}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Reason = engine.ReasonOf(err)
	resp.Result = alchemy.Failure()
	writeJSON(w, reasonStatus(resp.Reason), resp)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Session.View())
}

type spawnRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if !decode(w, r, &req) {
		return
	}

	inst, err := s.cfg.Session.Spawn(req.Name)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

type pointerRequest struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type dragResponse struct {
	TargetID string `json:"target_id"`
}

func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if !decode(w, r, &req) {
		return
	}

	target, err := s.cfg.Session.Drag(req.ID, req.X, req.Y)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dragResponse{TargetID: target})
}

// handleDrop blocks until any merge resolves. A failed merge caused by a
// missing credential answers 424 so the client can prompt for one.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.cfg.Session.Drop(r.Context(), req.ID, req.X, req.Y)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	status := http.StatusOK
	if res.Kind == session.DropFailed && res.Reason == engine.ReasonNoCredential {
		status = http.StatusFailedDependency
	}
	writeJSON(w, status, res)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.cfg.Session.Clear()
	writeJSON(w, http.StatusOK, s.cfg.Session.View())
}

type historyResponse struct {
	Applied bool         `json:"applied"`
	View    session.View `json:"workspace"`
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	applied := s.cfg.Session.Undo()
	writeJSON(w, http.StatusOK, historyResponse{Applied: applied, View: s.cfg.Session.View()})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	applied := s.cfg.Session.Redo()
	writeJSON(w, http.StatusOK, historyResponse{Applied: applied, View: s.cfg.Session.View()})
}

type saveSnapshotRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req saveSnapshotRequest
	if !decode(w, r, &req) {
		return
	}

	snap, err := s.cfg.Snapshots.Save(r.Context(), req.Name, s.cfg.Session.Export())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// handleListSnapshots accepts since, until and name query parameters.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sinceMs, untilMs, err := timespec.ParseRange(q.Get("since"), q.Get("until"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snaps, err := s.cfg.Snapshots.List(r.Context(), snapshot.Criteria{
		SinceMs:  sinceMs,
		UntilMs:  untilMs,
		NameGlob: q.Get("name"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.lookupSnapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLoadSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.lookupSnapshot(w, r)
	if !ok {
		return
	}
	s.cfg.Session.LoadSnapshot(snap.Elements)
	writeJSON(w, http.StatusOK, s.cfg.Session.View())
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSnapshotID(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Snapshots.Delete(r.Context(), id); err != nil {
		writeSnapshotError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookupSnapshot(w http.ResponseWriter, r *http.Request) (snapshot.Snapshot, bool) {
	id, ok := s.resolveSnapshotID(w, r)
	if !ok {
		return snapshot.Snapshot{}, false
	}
	snap, err := s.cfg.Snapshots.Get(r.Context(), id)
	if err != nil {
		writeSnapshotError(w, err)
		return snapshot.Snapshot{}, false
	}
	return snap, true
}

// resolveSnapshotID expands the {id} path parameter, which may be a short ID.
func (s *Server) resolveSnapshotID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := s.cfg.Snapshots.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSnapshotError(w, err)
		return "", false
	}
	return id, true
}

// errorResponse is the JSON body of every non-2xx answer.
type errorResponse struct {
	Error   string   `json:"error"`
	Matches []string `json:"matches,omitempty"`
}

func writeSessionError(w http.ResponseWriter, err error) {
	var notFound *workspace.NotFoundError
	switch {
	case errors.As(err, &notFound), errors.Is(err, session.ErrUnknownElement):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, session.ErrInstanceBusy):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeSnapshotError(w http.ResponseWriter, err error) {
	var ambiguous *snapshot.AmbiguousError
	switch {
	case snapshot.IsNotFoundError(err):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &ambiguous):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Matches: ambiguous.Matches})
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

// reasonStatus maps a combine failure reason to an HTTP status.
func reasonStatus(reason engine.Reason) int {
	switch reason {
	case engine.ReasonNoCredential:
		return http.StatusFailedDependency
	case engine.ReasonResolverError:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Failed to write response: %v", err)
	}
}
