package proxy

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"github.com/mcoot/biogames-go/internal/dependencies/clock"
	"github.com/mcoot/biogames-go/internal/middleware"
)

// NewRouter creates the proxy router with all routes configured
func NewRouter(cfg Config, clk clock.Clock, logger *slog.Logger) (http.Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, _ := cfg.backend()
	if err := checkBuildDir(cfg.BuildDir); err != nil {
		logger.Warn("build dir unavailable, app routes will 404", slog.String("dir", cfg.BuildDir), slog.String("error", err.Error()))
	}
	if clk == nil {
		clk = clock.New()
	}

	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet, http.MethodHead)

	api := r.PathPrefix(APIPrefix + "/").Subrouter()
	if cfg.RateLimit > 0 {
		limiter := NewRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.RateIdle, clk, cfg.TrustForwarded)
		api.Use(limiter.Middleware)
		logger.Info("rate limiting enabled", slog.Float64("per_second", cfg.RateLimit), slog.Int("burst", cfg.RateBurst))
	}
	api.PathPrefix("/").Handler(newBackendProxy(target, logger))

	r.PathPrefix("/").Handler(spaHandler{dir: cfg.BuildDir}).Methods(http.MethodGet, http.MethodHead)

	// Applied outside the router so unmatched requests get them too
	var h http.Handler = r
	h = SecurityHeaders(cfg.TLS)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Recovery(logger, panicPage)(h)

	gzip, err := gzhttp.NewWrapper(gzhttp.MinSize(1024))
	if err != nil {
		return nil, fmt.Errorf("creating gzip wrapper: %w", err)
	}
	return gzip(h), nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func panicPage(w http.ResponseWriter, r *http.Request, _ any) {
	writePage(w, r, http.StatusInternalServerError, "Server error", "An error has occurred. Please try again.")
}
