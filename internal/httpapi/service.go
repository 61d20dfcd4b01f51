// Package httpapi exposes proofwatch document sessions over HTTP: one engine
// per document, addressed by session id. It carries the JSON façade a host
// editor talks to; all proofreading semantics live in the engine.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hazyhaar/proofwatch"
	"github.com/hazyhaar/proofwatch/doctree"
	"github.com/hazyhaar/proofwatch/internal/config"
)

// maxSessions bounds concurrent document sessions; each one owns an engine
// with timers and in-flight requests.
const maxSessions = 64

// defaultMaxBody caps request bodies routed through Router.
const defaultMaxBody = 2 << 20

var errTooManySessions = errors.New("httpapi: session limit reached")

// Service hosts the HTTP session façade.
type Service struct {
	cfg        *config.Config
	logger     *slog.Logger
	engineOpts []proofwatch.Option

	// checker is a document-less engine used for one-shot text checks; it
	// shares the configured cache and rate limit with session engines.
	checker *proofwatch.Engine

	mu       sync.Mutex
	sessions map[string]*proofwatch.Engine
}

// Option configures a Service.
type Option func(*Service)

// WithEngineOptions forwards options to every engine the service creates.
func WithEngineOptions(opts ...proofwatch.Option) Option {
	return func(s *Service) { s.engineOpts = append(s.engineOpts, opts...) }
}

// New creates the service. Sessions are created per document via the HTTP
// surface; Close stops them all.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*proofwatch.Engine),
	}
	for _, o := range opts {
		o(s)
	}
	checker, err := proofwatch.New(cfg, s.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("httpapi: check engine: %w", err)
	}
	s.checker = checker
	return s, nil
}

// RegisterHTTP registers the session endpoints on the router.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Post("/v1/check", s.handleCheck)
	r.Post("/v1/documents", s.handleCreateDocument)
	r.Route("/v1/documents/{docID}", func(r chi.Router) {
		r.Get("/", s.handleGetDocument)
		r.Delete("/", s.handleDeleteDocument)
		r.Post("/check", s.handleCheckNow)
		r.Post("/transactions", s.handleTransaction)
		r.Get("/annotations", s.handleAnnotations)
		r.Get("/status", s.handleStatus)
		r.Put("/selection", s.handlePutSelection)
		r.Get("/selection", s.handleGetSelection)
		r.Delete("/selection", s.handleClearSelection)
	})
}

// Router builds a chi router with the standard middleware stack and every
// endpoint registered. Hosts embedding the service in a larger router should
// use RegisterHTTP instead.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders(DefaultHeaders()))
	r.Use(MaxBody(defaultMaxBody))
	r.Use(TraceMiddleware(s.logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	s.RegisterHTTP(r)
	return r
}

// Close stops every session engine and the one-shot check engine.
func (s *Service) Close() {
	s.mu.Lock()
	engines := make([]*proofwatch.Engine, 0, len(s.sessions))
	for id, eng := range s.sessions {
		engines = append(engines, eng)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, eng := range engines {
		eng.Stop()
	}
	s.checker.Stop()
	s.logger.Info("httpapi: service closed", "sessions", len(engines))
}

// createSession registers a new engine under a fresh session id.
func (s *Service) createSession(doc *doctree.Node) (string, *proofwatch.Engine, error) {
	eng, err := proofwatch.New(s.cfg, s.engineOpts...)
	if err != nil {
		return "", nil, err
	}
	id := uuid.New().String()

	s.mu.Lock()
	if len(s.sessions) >= maxSessions {
		s.mu.Unlock()
		eng.Stop()
		return "", nil, errTooManySessions
	}
	s.sessions[id] = eng
	s.mu.Unlock()

	eng.SetDocument(doc)
	return id, eng, nil
}

// session resolves the engine for the request's docID.
func (s *Service) session(r *http.Request) (*proofwatch.Engine, bool) {
	id := chi.URLParam(r, "docID")
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.sessions[id]
	return eng, ok
}

// dropSession removes and returns the engine so Stop runs outside the lock.
func (s *Service) dropSession(r *http.Request) (*proofwatch.Engine, bool) {
	id := chi.URLParam(r, "docID")
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return eng, ok
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
