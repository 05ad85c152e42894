// Package rest is the HTTP companion of the live channel: accounts,
// history and the same edit/delete rules, plus health and metrics.
package rest

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"nexchat/auth"
	"nexchat/contract"
	"nexchat/observability"
	"nexchat/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// StatsProvider exposes the last process sample for the health endpoint.
type StatsProvider interface {
	GetLatest() observability.ProcessStats
}

type Options struct {
	Environment   string
	SecureCookies bool
	TokenDuration time.Duration
	// UploadDir is served under /uploads/ when set.
	UploadDir string
	Gatherer  prometheus.Gatherer
	// Websocket is mounted on GET /ws when set.
	Websocket http.Handler
}

type Server struct {
	log      *slog.Logger
	verifier contract.TokenVerifier
	accounts services.IAuthService
	chat     services.IChatService
	stats    StatsProvider
	options  Options
	clock    contract.Clock
}

func NewServer(
	log *slog.Logger,
	verifier contract.TokenVerifier,
	accounts services.IAuthService,
	chat services.IChatService,
	stats StatsProvider,
	options Options,
) *Server {
	return &Server{
		log:      log,
		verifier: verifier,
		accounts: accounts,
		chat:     chat,
		stats:    stats,
		options:  options,
		clock:    time.Now,
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protected := auth.Middleware(s.verifier)

	mux.HandleFunc("POST /register", s.register)
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("POST /logout", s.logout)

	mux.Handle("GET /profile", protected(http.HandlerFunc(s.profile)))
	mux.Handle("GET /people", protected(http.HandlerFunc(s.people)))
	mux.Handle("GET /online", protected(http.HandlerFunc(s.online)))
	mux.Handle("GET /messages/{userId}", protected(http.HandlerFunc(s.history)))
	mux.Handle("PUT /messages/{id}", protected(http.HandlerFunc(s.updateMessage)))
	mux.Handle("DELETE /messages/{id}", protected(http.HandlerFunc(s.deleteMessage)))

	mux.HandleFunc("GET /health", s.health)
	if s.options.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.options.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.options.Websocket != nil {
		mux.Handle("GET /ws", s.options.Websocket)
	}
	if s.options.UploadDir != "" {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.options.UploadDir))))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// clientIP is the address the registration throttle keys on.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
