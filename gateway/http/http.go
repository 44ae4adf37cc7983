// Package http provides the HTTP front end of the semindex gateway.
//
// The route set doubles as the shard wire protocol: a cluster-configured
// gateway talks to shards that are themselves semindex instances serving
// these routes, so local and distributed deployments interoperate without
// translation.
package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/semindex/app"
	"github.com/c360/semindex/metric"
	"github.com/c360/semindex/pipeline"
)

const defaultMaxRequestSize = 8 << 20

// getOrGenerateRequestID extracts request ID from headers or generates a new
// one for tracing requests across gateway and shards
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address (default ":8080")
	Addr string

	// MaxRequestSize bounds request bodies in bytes (default 8 MiB)
	MaxRequestSize int64

	// ReadTimeout and WriteTimeout bound request handling
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes the gateway operations over HTTP.
type Server struct {
	config  Config
	gateway *app.Application
	logger  *slog.Logger
	metrics *metric.Registry

	server *http.Server

	// Lifecycle state (atomic operations)
	running atomic.Bool

	mu        sync.RWMutex
	startTime time.Time

	// Metrics (atomic operations)
	requestsTotal   atomic.Uint64
	requestsSuccess atomic.Uint64
	requestsFailed  atomic.Uint64
}

// NewServer creates the HTTP front end around a gateway instance.
func NewServer(cfg Config, gateway *app.Application, logger *slog.Logger, metrics *metric.Registry) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = defaultMaxRequestSize
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:  cfg,
		gateway: gateway,
		logger:  logger,
		metrics: metrics,
	}
}

// Routes registers every gateway route on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /count", s.wrap(s.handleCount))
	mux.HandleFunc("POST /search", s.wrap(s.handleSearch))
	mux.HandleFunc("POST /batchsearch", s.wrap(s.handleBatchSearch))
	mux.HandleFunc("POST /add", s.wrap(s.handleAdd))
	mux.HandleFunc("POST /index", s.wrap(s.handleIndex))
	mux.HandleFunc("POST /upsert", s.wrap(s.handleUpsert))
	mux.HandleFunc("POST /delete", s.wrap(s.handleDelete))
	mux.HandleFunc("POST /similarity", s.wrap(s.handleSimilarity))
	mux.HandleFunc("POST /batchsimilarity", s.wrap(s.handleBatchSimilarity))
	mux.HandleFunc("POST /transform", s.wrap(s.handleTransform))
	mux.HandleFunc("POST /batchtransform", s.wrap(s.handleBatchTransform))
	mux.HandleFunc("POST /extract", s.wrap(s.handleExtract))
	mux.HandleFunc("POST /label", s.wrap(s.handleLabel))
	mux.HandleFunc("POST /pipeline", s.wrap(s.handlePipeline))
	mux.HandleFunc("POST /workflow", s.wrap(s.handleWorkflow))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.mu.Lock()
	s.running.Store(true)
	s.startTime = time.Now()
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", s.config.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully and drains the gateway scheduler.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	s.gateway.Close()
	return err
}

// handlerFunc is a gateway handler with the decoded request body.
type handlerFunc func(w http.ResponseWriter, r *http.Request, body []byte)

// wrap applies request accounting, body limits and request-ID propagation.
func (s *Server) wrap(handler handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)
		s.requestsTotal.Add(1)

		defer r.Body.Close()
		bodyReader := io.LimitReader(r.Body, s.config.MaxRequestSize+1)
		body, err := io.ReadAll(bodyReader)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to read request body")
			s.requestsFailed.Add(1)
			return
		}
		if int64(len(body)) > s.config.MaxRequestSize {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds maximum size of %d bytes", s.config.MaxRequestSize))
			s.requestsFailed.Add(1)
			return
		}

		handler(w, r, body)
	}
}

// decode unmarshals a JSON body, preserving number fidelity for ids.
func decode(body []byte, out any) error {
	if len(body) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	return decoder.Decode(out)
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.requestsFailed.Add(1)
		return
	}
	s.requestsSuccess.Add(1)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "request failed")
	s.requestsFailed.Add(1)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeError(w, http.StatusBadRequest, err.Error())
	s.requestsFailed.Add(1)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	started := s.startTime
	s.mu.RUnlock()

	s.writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(started).String(),
		"requests": map[string]uint64{
			"total":   s.requestsTotal.Load(),
			"success": s.requestsSuccess.Load(),
			"failed":  s.requestsFailed.Load(),
		},
	})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request, _ []byte) {
	count, _ := s.gateway.Count()
	s.writeJSON(w, map[string]int{"count": count})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	results, err := s.gateway.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"results": results})
}

func (s *Server) handleBatchSearch(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Queries []string `json:"queries"`
		Limit   int      `json:"limit"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	results, err := s.gateway.BatchSearch(r.Context(), req.Queries, req.Limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"results": results})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Documents []any `json:"documents"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	if _, err := s.gateway.Add(r.Context(), req.Documents); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]int{"accepted": len(req.Documents)})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ []byte) {
	if err := s.gateway.Index(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request, _ []byte) {
	if err := s.gateway.Upsert(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		IDs []any `json:"ids"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	deleted, err := s.gateway.Delete(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"ids": deleted})
}

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Query string   `json:"query"`
		Texts []string `json:"texts"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	results, err := s.gateway.Similarity(r.Context(), req.Query, req.Texts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"results": results})
}

func (s *Server) handleBatchSimilarity(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Queries []string `json:"queries"`
		Texts   []string `json:"texts"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	results, err := s.gateway.BatchSimilarity(r.Context(), req.Queries, req.Texts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"results": results})
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	vector, err := s.gateway.Transform(r.Context(), req.Text)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"vector": vector})
}

func (s *Server) handleBatchTransform(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Texts []string `json:"texts"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	vectors, err := s.gateway.BatchTransform(r.Context(), req.Texts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"vectors": vectors})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Queue []pipeline.Question `json:"queue"`
		Texts []string            `json:"texts"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	answers, err := s.gateway.Extract(r.Context(), req.Queue, req.Texts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"answers": answers})
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Text   string   `json:"text"`
		Texts  []string `json:"texts"`
		Labels []string `json:"labels"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	var input any = req.Text
	if len(req.Texts) > 0 {
		input = req.Texts
	}

	raw, err := s.gateway.Label(r.Context(), input, req.Labels)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"results": raw})
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Name string `json:"name"`
		Args []any  `json:"args"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	result, err := s.gateway.Pipeline(r.Context(), req.Name, req.Args...)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Name     string `json:"name"`
		Elements []any  `json:"elements"`
	}
	if err := decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	elements, err := s.gateway.Workflow(r.Context(), req.Name, req.Elements)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"elements": elements})
}
