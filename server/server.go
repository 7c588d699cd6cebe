package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/gatelog/gatelog/server/auth"
	"github.com/gatelog/gatelog/server/entry"
	"github.com/gatelog/gatelog/server/hr"
	"github.com/gatelog/gatelog/server/model"
	"github.com/gatelog/gatelog/server/storage"
	"github.com/julienschmidt/httprouter"
	"gorm.io/gorm"
)

type Server struct {
	Log          logs.Log
	DB           *gorm.DB
	HotReloadWWW bool

	auth    *auth.AuthServer
	entries *entry.EntryServer
	storage storage.Storage
	hr      *hr.Client

	httpServer *http.Server
	httpRouter *httprouter.Router
	signalIn   chan os.Signal
}

// After this returns, you should call ListenHTTP()
func NewServer(configFile string, hotReloadWWW bool) (*Server, error) {
	log, err := logs.NewLog()
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	db, err := model.OpenDB(log, cfg.DB)
	if err != nil {
		return nil, err
	}

	var store storage.Storage
	switch {
	case cfg.PhotoStorage.Filesystem != nil:
		store, err = storage.NewStorageFS(log, cfg.PhotoStorage.Filesystem.Root)
	case cfg.PhotoStorage.GCS != nil:
		store, err = storage.NewStorageGCS(log, cfg.PhotoStorage.GCS.Bucket)
	default:
		err = fmt.Errorf("No photo storage configured")
	}
	if err != nil {
		return nil, err
	}

	s := &Server{
		Log:          log,
		DB:           db,
		HotReloadWWW: hotReloadWWW,
		auth:         auth.NewAuthServer(db, log, cfg.AdminPasswordHash),
		entries:      entry.NewEntryServer(log, db, store),
		storage:      store,
	}
	if cfg.HR != nil {
		s.hr = hr.NewClient(log, cfg.HR.URL, cfg.HR.APIKey)
	}

	if err := s.setupHttpRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Blocks in a goroutine until SIGINT or SIGTERM arrives, then shuts down
func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received signal %v. Shutting down", sig)
			s.Shutdown()
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown started")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
		s.signalIn = nil
	}
	s.entries.Close()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
	s.Log.Infof("Shutdown complete")
	s.Log.Close()
}
