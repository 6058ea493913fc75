/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
	"github.com/carverauto/devicepulse/pkg/version"
)

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// StatusProvider reports the current worker status.
type StatusProvider interface {
	Status() models.WorkerStatus
}

// StatusServer exposes /healthz and /status.
type StatusServer struct {
	router *mux.Router
	srv    *http.Server
	status StatusProvider
	logger logger.Logger
}

// NewStatusServer creates a status server listening on addr once started.
func NewStatusServer(addr string, status StatusProvider, log logger.Logger) *StatusServer {
	s := &StatusServer{
		router: mux.NewRouter(),
		status: status,
		logger: log,
	}

	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       defaultReadTimeout,
		ReadHeaderTimeout: defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	return s
}

func (s *StatusServer) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return CommonMiddleware(next, s.logger)
	})

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/status/last-cycle", s.handleLastCycle).Methods(http.MethodGet, http.MethodOptions)
}

// Handler returns the routed handler.
func (s *StatusServer) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until Shutdown is called.
func (s *StatusServer) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Status server listening")

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// ListenAndServe binds the configured address and serves.
func (s *StatusServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	return s.Serve(ln)
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.status.Status()
	if !status.Running {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped", "version": version.GetVersion()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.GetVersion()})
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *StatusServer) handleLastCycle(w http.ResponseWriter, _ *http.Request) {
	status := s.status.Status()
	if status.LastCycle == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cycle has finished yet"})
		return
	}

	s.writeJSON(w, http.StatusOK, status.LastCycle)
}

func (s *StatusServer) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Error encoding status response")
	}
}
