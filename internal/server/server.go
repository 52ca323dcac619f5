package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"sbvc/internal/api"
	"sbvc/internal/config"
	"sbvc/internal/history"
	"sbvc/internal/logging"
	"sbvc/internal/middleware"
	"sbvc/internal/scheduler"
	"sbvc/internal/watch"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server exposes one store over HTTP and keeps a watcher on its tracked
// file so edits made outside the API are logged as they happen.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	sched   *scheduler.Scheduler
	watcher *watch.Watcher
	http    *http.Server
}

// New takes ownership of engine. It is closed when Run returns.
func New(cfg *config.Config, engine *history.Engine, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	w, err := watch.New(engine.TrackedFile(), cfg.Watch.Debounce, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("watching tracked file: %w", err)
	}

	sched := scheduler.New(engine, logger.Logger)

	mux := http.NewServeMux()
	api.NewVersionHandler(sched, logger).WithWatcher(w).Register(mux)

	handler := middleware.Chain(
		mux,
		middleware.Recover(logger),
		middleware.Logger(logger),
		middleware.RequestID,
	)

	return &Server{
		cfg:     cfg,
		logger:  logger,
		sched:   sched,
		watcher: w,
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run serves until ctx is cancelled, then drains requests, waits for the
// queued operations and closes the store.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		s.shutdown()
		return fmt.Errorf("listening on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.logChanges(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("address", ln.Addr().String()))
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	return s.shutdownContext(shutdownCtx)
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.shutdownContext(ctx)
}

func (s *Server) shutdownContext(ctx context.Context) error {
	if err := s.watcher.Close(); err != nil {
		s.logger.Warn("closing watcher", zap.Error(err))
	}
	if err := s.sched.Close(ctx); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) logChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events():
			if !ok {
				return
			}
			dirty, err := s.sched.Engine().IsDirty()
			if err != nil {
				s.logger.Warn("checking tracked file", zap.String("path", ev.Path), zap.Error(err))
				continue
			}
			s.logger.Info("tracked file changed",
				zap.String("path", ev.Path),
				zap.String("op", ev.Op.String()),
				zap.Bool("dirty", dirty))
		}
	}
}
