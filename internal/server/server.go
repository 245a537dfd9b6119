// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/howard-nolan/chemtutor/internal/analysis"
	"github.com/howard-nolan/chemtutor/internal/config"
	"github.com/howard-nolan/chemtutor/internal/metrics"
	"github.com/howard-nolan/chemtutor/internal/provider"
	"github.com/howard-nolan/chemtutor/internal/quiz"
	"github.com/howard-nolan/chemtutor/internal/rag"
	"github.com/howard-nolan/chemtutor/internal/stream"
)

// Deps are the services the handlers call. Everything except Chat,
// Analyzer and Quiz may be nil.
type Deps struct {
	Chat     *stream.Pipeline
	Analyzer *analysis.Analyzer
	Quiz     *quiz.Engine

	// Retriever supplies knowledge for chat prompts.
	Retriever rag.Retriever

	// Providers are reported by /health, primary chat provider first.
	Providers []provider.Provider
	ModelName string

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Server holds the HTTP router and all dependencies that handlers need.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	deps     Deps
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler.
func New(cfg *config.Config, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, deps: d, log: d.Logger}

	origins := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	s.upgrader = websocket.Upgrader{
		// Browsers send Origin on the upgrade request; apply the same
		// allow-list the CORS middleware uses for plain requests.
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins.OriginAllowed(r)
		},
	}

	s.routes(origins)
	return s
}

// routes builds the chi router with all middleware and route definitions,
// gathered in one method so the routing table is easy to scan.
func (s *Server) routes(origins *cors.Cors) {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	// middleware.Recoverer catches panics in handlers and returns a 500
	// instead of crashing the whole process.
	r.Use(middleware.Recoverer)
	r.Use(origins.Handler)

	// --- Routes ---
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Post("/chat", s.handleChat)
	r.Get("/ws", s.handleWebSocket)

	r.Post("/analyze-reaction", s.handleAnalyzeReaction)
	r.Post("/generate-molecule", s.handleGenerateMolecule)
	r.Post("/analyze-molecule", s.handleAnalyzeMolecule)

	r.Route("/quiz", func(r chi.Router) {
		r.Post("/generate", s.handleQuizGenerate)
		r.Route("/session/{sessionID}", func(r chi.Router) {
			r.Get("/question/{index}", s.handleQuizQuestion)
			r.Post("/submit-answer", s.handleQuizSubmit)
			r.Post("/finish", s.handleQuizFinish)
		})
	})

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface; every request
// is delegated to chi's router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one structured line per request. The wrapped writer
// keeps Flusher and Hijacker, which /chat and /ws depend on.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			s.log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
