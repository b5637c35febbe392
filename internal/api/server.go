package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/homekasa/kasad/internal/infrastructure/config"
	"github.com/homekasa/kasad/internal/infrastructure/logging"
	"github.com/homekasa/kasad/internal/kasa/control"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests before forcing the listener down.
const gracefulShutdownTimeout = 10 * time.Second

// ConfigBridge is the subset of *kasaconf.Bridge the HTTP layer needs
// for GET/POST /kasa/config.
type ConfigBridge interface {
	LiveJSON() ([]byte, error)
	Apply(raw []byte) error
	SaveRaw(ctx context.Context, raw []byte) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Logger       *logging.Logger
	Control      *control.Points
	ConfigBridge ConfigBridge
	Version      string
}

// Server is the HTTP control surface: four endpoints over the
// control-point facade and the configuration bridge. Auth, CORS, and
// static serving belong to the reverse proxy in front of this service,
// not here.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	control *control.Points
	conf    ConfigBridge
	version string

	host  string
	proxy string

	now func() time.Time

	server *http.Server
}

// New creates an API server ready to Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Control == nil {
		return nil, fmt.Errorf("control facade is required")
	}
	if deps.ConfigBridge == nil {
		return nil, fmt.Errorf("configuration bridge is required")
	}

	host := deps.Config.PublicHost
	if host == "" {
		if h, err := os.Hostname(); err == nil {
			host = h
		}
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		control: deps.Control,
		conf:    deps.ConfigBridge,
		version: deps.Version,
		host:    host,
		proxy:   deps.Config.Proxy,
		now:     time.Now,
	}, nil
}

// Start begins listening for HTTP connections on its own goroutine.
// The server is stopped with Close, not by cancelling ctx.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.durationOrDefault(s.cfg.Timeouts.Read),
		ReadHeaderTimeout: s.durationOrDefault(s.cfg.Timeouts.Read),
		WriteTimeout:      s.durationOrDefault(s.cfg.Timeouts.Write),
		IdleTimeout:       s.durationOrDefault(s.cfg.Timeouts.Idle),
	}

	go func() {
		s.logger.Info("kasa API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("kasa API server error", "error", err)
		}
	}()

	return nil
}

func (s *Server) durationOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// Close gracefully shuts down the server, waiting up to
// gracefulShutdownTimeout for in-flight requests to finish.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("kasa API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down kasa API server: %w", err)
	}
	return nil
}
