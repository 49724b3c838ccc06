package server

import (
	"crypto/subtle"
	"embed"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/rs/zerolog"

	"github.com/afroash/serverroom-monitor/internal/dashboard"
	"github.com/afroash/serverroom-monitor/internal/table"
)

//go:embed web/index.html
var webContent embed.FS

// Options configures the HTTP surface
type Options struct {
	Version        string
	AuthToken      string // empty disables auth on mutating routes
	AllowedOrigins []string
	StaticDir      string // overrides the embedded dashboard when set
	DefaultPeriod  int
	PageSize       int
	Now            func() time.Time
}

// Server serves the JSON API, the live event stream and the dashboard page
type Server struct {
	records RecordService
	hub     *Hub
	drafts  DraftSource
	opts    Options
	logger  zerolog.Logger
	decoder *schema.Decoder
	router  *mux.Router
	handler http.Handler
}

// New creates a server. drafts may be nil when no sensor is attached.
func New(records RecordService, hub *Hub, drafts DraftSource, opts Options, logger zerolog.Logger) *Server {
	if opts.DefaultPeriod <= 0 {
		opts.DefaultPeriod = dashboard.DefaultPeriod
	}
	if opts.PageSize <= 0 {
		opts.PageSize = table.DefaultPerPage
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		records: records,
		hub:     hub,
		drafts:  drafts,
		opts:    opts,
		logger:  logger,
		decoder: decoder,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	s.handler = s.wrap(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	// Records
	api.HandleFunc("/records", s.handleListRecords).Methods(http.MethodGet)
	api.HandleFunc("/records", s.requireToken(s.handleCreateRecord)).Methods(http.MethodPost)
	api.HandleFunc("/records/bulk", s.requireToken(s.handleBulkInsert)).Methods(http.MethodPost)
	api.HandleFunc("/records/draft", s.handleDraft).Methods(http.MethodGet)
	api.HandleFunc("/records/{id}", s.handleGetRecord).Methods(http.MethodGet)
	api.HandleFunc("/records/{id}", s.requireToken(s.handleUpdateRecord)).Methods(http.MethodPatch)
	api.HandleFunc("/records/{id}", s.requireToken(s.handleDeleteRecord)).Methods(http.MethodDelete)
	api.HandleFunc("/months/{month}/records", s.handleMonthRecords).Methods(http.MethodGet)

	// Aggregates
	api.HandleFunc("/aggregates", s.handleListAggregates).Methods(http.MethodGet)
	api.HandleFunc("/aggregates/{month}", s.handleGetAggregate).Methods(http.MethodGet)

	// Dashboard
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/export/{format}", s.handleExport).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.Handle("/ws", s.hub).Methods(http.MethodGet)
	}

	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
}

// Handler returns the router wrapped with CORS and panic recovery
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) wrap(h http.Handler) http.Handler {
	if len(s.opts.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.opts.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		)(h)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(true),
	)(h)
}

// ServeHTTP makes Server usable directly as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// requireToken rejects mutating requests without the configured bearer token
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken != "" && !s.validateToken(r.Header.Get("Authorization")) {
			s.respondWithError(w, r, newAPIError(ErrorTypeAuth, http.StatusUnauthorized, "missing or invalid bearer token", nil))
			return
		}
		next(w, r)
	}
}

// validateToken checks if the auth token is valid
// Expected format: "Bearer <token>"
func (s *Server) validateToken(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AuthToken)) == 1
}

// handleIndex serves the dashboard page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.opts.StaticDir != "" {
		http.ServeFile(w, r, filepath.Join(s.opts.StaticDir, "index.html"))
		return
	}
	http.ServeFileFS(w, r, webContent, "web/index.html")
}

func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	event := s.logger.Warn()
	if apiErr.Code >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", apiErr.Code).
		Msg("Request failed")
	respondWithJSON(w, apiErr.Code, apiErr)
}

// recoveryLogger adapts zerolog to handlers.RecoveryHandlerLogger
type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}
