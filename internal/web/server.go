package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/timekeep/timekeep/internal/broadcast"
	"github.com/timekeep/timekeep/internal/config"
	"github.com/timekeep/timekeep/internal/database"
	"github.com/timekeep/timekeep/internal/timer"
)

type Server struct {
	config  *config.Config
	handler *Handler
	server  *http.Server
}

func NewServer(cfg *config.Config, controller *timer.Controller, store *database.TimerStore, registry *broadcast.MemoryRegistry) *Server {
	handler := NewHandler(cfg, controller, store, registry)
	mux := http.NewServeMux()
	handler.SetupRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: the SSE event stream holds its response open for
		// the life of the session.
		IdleTimeout: 60 * time.Second,
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
	}
}

func (s *Server) Start() error {
	log.Printf("Starting web server on http://%s", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) GetAddress() string {
	return s.server.Addr
}
