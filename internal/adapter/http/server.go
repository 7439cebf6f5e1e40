package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/cwygoda/catchbot/internal/domain"
)

const (
	maxTimestampSkew = 5 * time.Minute
	maxBodyBytes     = 1 << 20
	defaultJobLimit  = 20
	maxJobLimit      = 200
)

// Server is the HTTP ingress for links and batches, plus a read-only view of
// the job ledger.
type Server struct {
	dispatcher *domain.Dispatcher
	ledger     domain.JobLedger
	router     chi.Router
	server     *http.Server
	secret     string
	now        func() time.Time
}

// NewServer creates a new HTTP server. ledger may be nil, in which case the
// job routes answer 503.
func NewServer(dispatcher *domain.Dispatcher, ledger domain.JobLedger, addr string, secret string) *Server {
	s := &Server{
		dispatcher: dispatcher,
		ledger:     ledger,
		secret:     secret,
		now:        time.Now,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.verified)
		r.Post("/links", s.handleLink)
		r.Post("/batch", s.handleBatch)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
	})

	s.router = r
}

// linkRequest is the request body for POST /links.
type linkRequest struct {
	Text string `json:"text"`
}

type linkResponse struct {
	Link string `json:"link"`
}

// batchResponse summarizes a POST /batch upload.
type batchResponse struct {
	Total     int      `json:"total"`
	Queued    int      `json:"queued"`
	Unmatched []string `json:"unmatched"`
	Unqueued  []string `json:"unqueued"`
}

// jobResponse is the JSON response for job endpoints.
type jobResponse struct {
	ID        string `json:"id"`
	Link      string `json:"link"`
	Status    string `json:"status"`
	Finished  bool   `json:"finished"`
	Error     string `json:"error,omitempty"`
	File      string `json:"file,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	link, err := s.dispatcher.Dispatch(r.Context(), req.Text)
	switch {
	case errors.Is(err, domain.ErrNoLink):
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%q is not a YouTube link", req.Text))
		return
	case errors.Is(err, domain.ErrNotQueued):
		log.Warn().Err(err).Str("link", link.String()).Msg("link not queued")
		s.writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("%q could not be queued for downloading", link))
		return
	case err != nil:
		log.Error().Err(err).Msg("dispatch error")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Info().Str("link", link.String()).Msg("link queued")
	s.writeJSON(w, http.StatusAccepted, linkResponse{Link: link.String()})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if !utf8.Valid(body) {
		s.writeError(w, http.StatusUnprocessableEntity, "body is not valid UTF-8 text")
		return
	}

	report := s.dispatcher.DispatchBatch(r.Context(), string(body))
	log.Info().
		Int("total", report.Total).
		Int("queued", report.Queued()).
		Int("unmatched", len(report.Unmatched)).
		Int("unqueued", len(report.Unqueued)).
		Msg("batch processed")

	resp := batchResponse{
		Total:     report.Total,
		Queued:    report.Queued(),
		Unmatched: append([]string{}, report.Unmatched...),
		Unqueued:  make([]string, 0, len(report.Unqueued)),
	}
	for _, link := range report.Unqueued {
		resp.Unqueued = append(resp.Unqueued, link.String())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "job ledger disabled")
		return
	}

	limit := defaultJobLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxJobLimit)
	}

	jobs, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("list jobs error")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, jobToResponse(&jobs[i]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "job ledger disabled")
		return
	}

	job, err := s.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		log.Error().Err(err).Msg("get job error")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verified buffers the body, rejecting anything over maxBodyBytes, and checks the request signature when a secret
// is configured.
func (s *Server) verified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
				return
			}
			s.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		if s.secret != "" {
			if err := s.verifySignature(r, body); err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("webhook verification failed")
				s.writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) verifySignature(r *http.Request, body []byte) error {
	timestamp := r.Header.Get("X-Timestamp")
	if timestamp == "" {
		return fmt.Errorf("missing X-Timestamp header")
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("invalid X-Timestamp: must be ISO8601/RFC3339 format")
	}

	skew := s.now().Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxTimestampSkew {
		return fmt.Errorf("X-Timestamp too far from current time (skew: %v, max: %v)", skew.Truncate(time.Second), maxTimestampSkew)
	}

	signature := r.Header.Get("X-Signature")
	if signature == "" {
		return fmt.Errorf("missing X-Signature header")
	}

	expected := Sign(timestamp, body, s.secret)
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// Sign computes the X-Signature value: SHA256("${timestamp}\n${body}\n${secret}").
func Sign(timestamp string, body []byte, secret string) string {
	payload := fmt.Sprintf("%s\n%s\n%s", timestamp, string(body), secret)
	hash := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(hash[:])
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func jobToResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:        job.ID,
		Link:      job.Link.String(),
		Status:    string(job.Status),
		Finished:  job.Status.IsFinished(),
		Error:     job.Error,
		File:      job.File,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
