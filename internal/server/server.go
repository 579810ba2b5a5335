// Package server exposes the intake pipeline and the interview driver over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/document"
	"github.com/spigell/cv-intake/internal/interview"
	"github.com/spigell/cv-intake/internal/logger"
	"github.com/spigell/cv-intake/internal/pipeline"
	"github.com/spigell/cv-intake/internal/profile"
)

const (
	// DefaultMaxUploadBytes limits the size of an uploaded CV.
	DefaultMaxUploadBytes = 10 << 20
	// SessionHeader selects the session of a request.
	SessionHeader = "X-Session-ID"
	// NewSessionValue in SessionHeader asks for a freshly minted session.
	NewSessionValue = "new"

	maxSessionIDLength = 128
	maxAnswerBytes     = 1 << 20
	multipartOverhead  = 64 << 10
	shutdownTimeout    = 10 * time.Second
)

type pipelineRunner interface {
	Run(ctx context.Context, text string) (*pipeline.State, error)
}

type interviewer interface {
	SetProfile(ctx context.Context, id string, p *profile.CandidateProfile) (string, error)
	Profile(ctx context.Context, id string) (*profile.CandidateProfile, error)
	NextQuestion(ctx context.Context, id string, answer *string) (string, error)
	History(ctx context.Context, id string) ([]interview.Turn, error)
	Reset(ctx context.Context, id string) error
	Suggested(ctx context.Context, id string) ([]string, error)
}

type questionQueue interface {
	Enqueue(job interview.QuestionJob) bool
}

// TextExtractor converts an uploaded file into text.
type TextExtractor func(ctx context.Context, name, contentType string, data []byte) (string, error)

// Server holds the HTTP handlers.
type Server struct {
	pipeline   pipelineRunner
	interviews interviewer
	questions  questionQueue
	extract    TextExtractor
	maxUpload  int64
	logger     *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithQuestionQueue enables background suggested questions after each upload.
func WithQuestionQueue(q questionQueue) Option {
	return func(s *Server) { s.questions = q }
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithTextExtractor replaces document.Extract.
func WithTextExtractor(fn TextExtractor) Option {
	return func(s *Server) {
		if fn != nil {
			s.extract = fn
		}
	}
}

// New creates a Server.
func New(p pipelineRunner, interviews interviewer, log *zap.Logger, opts ...Option) *Server {
	s := &Server{
		pipeline:   p,
		interviews: interviews,
		extract:    document.Extract,
		maxUpload:  DefaultMaxUploadBytes,
		logger:     logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts routes on the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /extract-cv", s.extractCV)
	mux.HandleFunc("GET /last-cv", s.lastCV)
	mux.HandleFunc("GET /history", s.history)
	mux.HandleFunc("POST /question", s.question)
	mux.HandleFunc("POST /history/clear", s.clearHistory)
	mux.HandleFunc("GET /suggested-questions", s.suggestedQuestions)
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return s.logRequests(mux)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      300 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			logger.Session(w.Header().Get(SessionHeader)),
		)
	})
}
