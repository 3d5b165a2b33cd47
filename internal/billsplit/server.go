package billsplit

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/billsplit/internal/money"
)

// Server handles HTTP requests for bill splits.
type Server struct {
	service   *Service
	basicAuth BasicAuth
	currency  string
	mux       *http.ServeMux
	http      *http.Server
}

// BasicAuth holds basic authentication credentials. Auth is off when both
// are empty.
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a Server with a default mux.
func NewServer(service *Service, basicAuth BasicAuth, currency string) *Server {
	return NewServerWithMux(service, basicAuth, currency, http.NewServeMux())
}

// NewServerWithMux creates a Server with a custom mux for testing.
func NewServerWithMux(service *Service, basicAuth BasicAuth, currency string, mux *http.ServeMux) *Server {
	if currency == "" {
		currency = money.DefaultCurrency
	}
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		currency:  currency,
		mux:       mux,
	}
	s.http = &http.Server{
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.registerRoutes()
	return s
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Bill Split"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// withCORS answers preflight requests and sets CORS headers on the rest.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all routes on the server's mux.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/splits/even", s.requireAuth(s.handleEvenSplit))
	s.mux.HandleFunc("POST /api/splits/validate", s.requireAuth(s.handleValidateSplit))
	s.mux.HandleFunc("POST /api/splits/{id}/regenerate", s.requireAuth(s.handleRegenerateSplit))
	s.mux.HandleFunc("GET /api/splits/{id}/file", s.requireAuth(s.handleGetSplitFile))
	s.mux.HandleFunc("GET /api/splits/{id}", s.requireAuth(s.handleGetSplit))
	s.mux.HandleFunc("DELETE /api/splits/{id}", s.requireAuth(s.handleDeleteSplit))
	s.mux.HandleFunc("GET /api/splits", s.requireAuth(s.handleListSplits))
	s.mux.HandleFunc("POST /api/splits", s.requireAuth(s.handleCreateSplit))

	s.mux.HandleFunc("POST /api/price-check", s.requireAuth(s.handlePriceCheck))

	s.mux.HandleFunc("GET /metrics", s.requireAuth(promhttp.Handler().ServeHTTP))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	slog.Info("Starting server", "address", addr)
	return s.http.ListenAndServe()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withCORS(s.mux).ServeHTTP(w, r)
}
