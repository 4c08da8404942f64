package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/glimpse/internal/app"
	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/journey"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/raysh454/glimpse/internal/session"
	"github.com/raysh454/glimpse/internal/store"
)

// maxLoggedBody caps how much of a request body goes into the access log.
const maxLoggedBody = 2048

// Server is the HTTP + WebSocket API surface for glimpse.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer routes the API onto orch. The caller owns orch's lifecycle.
func NewServer(cfg Config, orch *app.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, errors.New("server: nil orchestrator")
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       chi.NewRouter(),
		logger:       logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return cfg.AllowedOrigin == "*" || r.Header.Get("Origin") == cfg.AllowedOrigin
			},
		},
	}
	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/audits", s.optionsHandler("GET, POST"))
	r.Options("/audits/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/audits/{baseID}/diff/{headID}", s.optionsHandler("GET"))
	r.Options("/sessions", s.optionsHandler("GET, POST"))
	r.Options("/sessions/{id}", s.optionsHandler("DELETE"))
	r.Options("/sessions/{id}/journeys", s.optionsHandler("POST"))
	r.Options("/records/{key}", s.optionsHandler("GET"))

	// Audit jobs
	r.Post("/audits", s.handleStartAudit)
	r.Get("/audits", s.handleListAudits)
	r.Get("/audits/{jobID}", s.handleGetAudit)
	r.Delete("/audits/{jobID}", s.handleCancelAudit)
	r.Get("/audits/{baseID}/diff/{headID}", s.handleCompareAudits)

	// WebSocket for job progress
	r.Get("/ws/audits/{jobID}", s.handleAuditWS)

	// Sessions and journeys
	r.Post("/sessions", s.handleOpenSession)
	r.Get("/sessions", s.handleListSessions)
	r.Delete("/sessions/{id}", s.handleCloseSession)
	r.Post("/sessions/{id}/journeys", s.handleRecordJourney)

	// Stored records
	r.Get("/records/{key}", s.handleGetRecord)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			logged := bodyBytes
			if len(logged) > maxLoggedBody {
				logged = logged[:maxLoggedBody]
			}
			fields = append(fields, logging.Field{Key: "body", Value: string(logged)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, app.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrEmptyRequest),
		errors.Is(err, audit.ErrInvalidInput),
		errors.Is(err, journey.ErrInvalidInput),
		errors.Is(err, store.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrJobNotDone):
		return http.StatusConflict
	case errors.Is(err, app.ErrNoCapturer):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// --- HTTP handlers ---

// Audits

// handleStartAudit starts an audit job.
//
//	@Summary	Start an audit job
//	@Accept		json
//	@Produce	json
//	@Param		request	body		app.AuditRequest	true	"urls and/or captured pages"
//	@Success	202		{object}	app.Job
//	@Failure	400		{object}	ErrorResponse
//	@Router		/audits [post]
func (s *Server) handleStartAudit(w http.ResponseWriter, r *http.Request) {
	var body app.AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("decoding audit request", logging.Err(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// jobs outlive the request
	job, err := s.orchestrator.StartAuditJob(context.Background(), body)
	if err != nil {
		s.logger.Warn("starting audit job", logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("started audit job", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "urls", Value: len(job.URLs)})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	s.logger.Info("listed jobs", logging.Field{Key: "count", Value: len(jobs)})
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelAudit(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.orchestrator.GetJob(jobID) == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.orchestrator.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusNoContent, nil)
}

// handleCompareAudits diffs the summaries of two finished jobs.
//
//	@Summary	Compare two finished audit jobs
//	@Produce	json
//	@Param		baseID	path		string	true	"earlier job"
//	@Param		headID	path		string	true	"later job"
//	@Success	200		{object}	score.Delta
//	@Failure	404		{object}	ErrorResponse
//	@Failure	409		{object}	ErrorResponse
//	@Router		/audits/{baseID}/diff/{headID} [get]
func (s *Server) handleCompareAudits(w http.ResponseWriter, r *http.Request) {
	baseID, headID := chi.URLParam(r, "baseID"), chi.URLParam(r, "headID")
	d, err := s.orchestrator.CompareJobs(baseID, headID)
	if err != nil {
		s.logger.Warn("comparing jobs", logging.Field{Key: "base", Value: baseID}, logging.Field{Key: "head", Value: headID}, logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// WebSockets

// handleAuditWS streams a job's events. The current snapshot is sent first
// and the final one after the event channel closes. A job's events go to one
// subscriber.
func (s *Server) handleAuditWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(job); err != nil {
		return
	}
	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// client went away; the job keeps running
			s.logger.Debug("websocket closed", logging.Field{Key: "job_id", Value: jobID}, logging.Err(err))
			return
		}
	}
	if final := s.orchestrator.GetJob(jobID); final != nil {
		_ = conn.WriteJSON(final)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
}

// Sessions

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var ds audit.DesignSystem
	if body.Design != nil {
		ds = *body.Design
	}
	sess, err := s.orchestrator.Sessions().Open(body.Name, ds)
	if err != nil {
		s.logger.Warn("opening session", logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Sessions().List())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orchestrator.Sessions().Close(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRecordJourney(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body RecordJourneyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	steps := make([]*journey.Step, 0, len(body.Steps))
	for _, spec := range body.Steps {
		st, err := spec.Build()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		steps = append(steps, st)
	}

	res, err := s.orchestrator.RecordJourney(r.Context(), id, steps)
	if err != nil {
		s.logger.Warn("recording journey", logging.Field{Key: "session", Value: id}, logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// Records

// handleGetRecord returns a stored record. With ?rel=HAS_ISSUE (or any other
// relationship) the linked children are included.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	repo := s.orchestrator.Repository()
	rec, err := repo.FindByKey(r.Context(), key)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	resp := RecordResponse{Record: rec}
	if rel := r.URL.Query().Get("rel"); rel != "" {
		if resp.Children, err = repo.Children(r.Context(), key, rel); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
