// Package api exposes the Reliability Intelligence Core over HTTP:
// deployment event webhooks, and query endpoints for dependency
// graphs, ownership, drift results, and generated dashboards.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/rsionnach/nthlayer/internal/config"
	"github.com/rsionnach/nthlayer/internal/logging"
)

// Server wires the HTTP router, CORS policy, and timeouts used by the
// webhook listener and query surface.
type Server struct {
	router *mux.Router
	http   *http.Server
}

// NewServer builds a Server from cfg, registering every handler group
// passed in. Handler groups are responsible for their own route
// registration so this file stays a pure wiring point.
func NewServer(cfg config.ServerConfig, registerers ...func(*mux.Router)) *Server {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)

	for _, register := range registerers {
		register(router)
	}
	router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Hub-Signature-256", "X-TFE-Notification-Signature"},
	})

	readTimeout, writeTimeout := cfg.ReadTimeout, cfg.WriteTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &Server{
		router: router,
		http: &http.Server{
			Addr:         hostPort(cfg),
			Handler:      corsHandler.Handler(router),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
}

func hostPort(cfg config.ServerConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return cfg.Host + ":" + strconv.Itoa(cfg.Port)
}

func (s *Server) ListenAndServe() error {
	logging.GetLogger().Info("api server starting", logging.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown() error {
	return s.http.Close()
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.GetLogger().Debug("request handled",
			logging.String("method", r.Method), logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(start)))
	})
}
