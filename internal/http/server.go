package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BusChecker abstracts the Kafka reachability check for testability.
type BusChecker interface {
	Ping(ctx context.Context) error
}

// ListenerStatus reports whether every protocol listener is bound.
type ListenerStatus interface {
	Ready() bool
}

type Server struct {
	srv       *http.Server
	bus       BusChecker
	listeners ListenerStatus
	logger    *zap.Logger
}

func NewServer(addr string, bus BusChecker, listeners ListenerStatus, logger *zap.Logger) *Server {
	s := &Server{
		bus:       bus,
		listeners: listeners,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	// Check Kafka.
	if s.bus != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.bus.Ping(ctx); err != nil {
			checks["kafka"] = "error"
			allOK = false
		} else {
			checks["kafka"] = "ok"
		}
	} else {
		checks["kafka"] = "error"
		allOK = false
	}

	// Check protocol listeners.
	if s.listeners != nil && s.listeners.Ready() {
		checks["listeners"] = "ok"
	} else {
		checks["listeners"] = "not_bound"
		allOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}
