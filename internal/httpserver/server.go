package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorod-bot/internal/cache"
	"gorod-bot/internal/metrics"
	"gorod-bot/internal/repo"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups optional HTTP handlers to mount.
type Handlers struct {
	WhatsAppWebhook http.Handler
	TelegramWebhook http.Handler
}

// Dependencies exposes core dependencies to handlers that need them.
type Dependencies struct {
	Repository repo.Repository
	Redis      *cache.Redis
}

// Server wraps an http.Server with predefined routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	handlers   Handlers
	deps       Dependencies
	basePath   string
	adminToken string
}

// New creates a new HTTP server listening on addr with health and metrics endpoints.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, handlers Handlers, basePath, adminToken string) *Server {
	server := &Server{
		logger:     logger.With("component", "http"),
		metrics:    metricRegistry,
		handlers:   handlers,
		basePath:   normaliseBasePath(basePath),
		adminToken: adminToken,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/stats", server.handleStats)

	if handlers.WhatsAppWebhook != nil {
		mux.Handle("/webhook/whatsapp", handlers.WhatsAppWebhook)
	}
	if handlers.TelegramWebhook != nil {
		mux.Handle("/webhook/telegram", handlers.TelegramWebhook)
	}

	handler := mountWithBasePath(server.basePath, mux)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// SetDependencies makes dependencies accessible to handlers.
func (s *Server) SetDependencies(deps Dependencies) {
	s.deps = deps
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

type statsResponse struct {
	Status   string                      `json:"status"`
	Orders   map[string]map[string]int64 `json:"orders"`
	Balances map[string]int64            `json:"balances"`
}

const statsCacheKey = "admin:stats"

// handleStats reports order counts per service/status and provider
// balances. Token-gated: the endpoint is disabled entirely when no admin
// token is configured. Responses are cached briefly in Redis.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.adminToken == "" || !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.deps.Repository == nil {
		http.Error(w, "repository unavailable", http.StatusServiceUnavailable)
		return
	}

	if s.deps.Redis != nil {
		var cached statsResponse
		if ok, err := s.deps.Redis.GetJSON(r.Context(), statsCacheKey, &cached); err == nil && ok {
			writeJSON(w, cached)
			return
		}
	}

	counts, err := s.deps.Repository.CountOrders(r.Context())
	if err != nil {
		s.logger.Error("failed counting orders", "error", err)
		http.Error(w, "failed counting orders", http.StatusInternalServerError)
		return
	}

	resp := statsResponse{
		Status: "ok",
		Orders: make(map[string]map[string]int64),
	}
	for _, c := range counts {
		byStatus, ok := resp.Orders[string(c.Type)]
		if !ok {
			byStatus = make(map[string]int64)
			resp.Orders[string(c.Type)] = byStatus
		}
		byStatus[string(c.Status)] = c.Count
	}

	resp.Balances = make(map[string]int64)
	for _, kind := range []repo.ProviderKind{repo.KindDriver, repo.KindCafe, repo.KindPharmacy, repo.KindShopper} {
		providers, err := s.deps.Repository.ListActiveProviders(r.Context(), kind)
		if err != nil {
			s.logger.Error("failed listing providers", "error", err, "kind", kind)
			continue
		}
		for _, p := range providers {
			resp.Balances[strconv.FormatInt(p.TelegramID, 10)] = p.Balance
		}
	}

	if s.deps.Redis != nil {
		if err := s.deps.Redis.SetJSON(r.Context(), statsCacheKey, resp, 30*time.Second); err != nil {
			s.logger.Warn("failed caching stats", "error", err)
		}
	}

	writeJSON(w, resp)
}

func (s *Server) authorized(r *http.Request) bool {
	token := r.Header.Get("X-Admin-Token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return token == s.adminToken
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
