package session

import (
	"net/http"
	"time"
)

const readHeaderTimeout = 10 * time.Second

// Server handles HTTP requests for split sessions
type Server struct {
	manager *Manager
	metrics http.Handler
	mux     *http.ServeMux
}

// NewServer creates a new Server with default mux. metricsHandler may be nil,
// in which case /metrics is not served.
func NewServer(manager *Manager, metricsHandler http.Handler) *Server {
	return NewServerWithMux(manager, metricsHandler, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(manager *Manager, metricsHandler http.Handler, mux *http.ServeMux) *Server {
	s := &Server{
		manager: manager,
		metrics: metricsHandler,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	s.mux.HandleFunc("POST /api/sessions/{id}/receipt", s.handleUploadReceipt)
	s.mux.HandleFunc("POST /api/sessions/{id}/lines", s.handleIngestLines)
	s.mux.HandleFunc("PUT /api/sessions/{id}/roster", s.handleSetRoster)
	s.mux.HandleFunc("POST /api/sessions/{id}/assignments", s.handleAssign)
	s.mux.HandleFunc("DELETE /api/sessions/{id}/assignments", s.handleResetAssignments)
	s.mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleResetSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/summary", s.handleSummary)
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// HTTPServer returns an http.Server serving the API on addr. The caller owns
// its lifecycle.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
