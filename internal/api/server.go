// Package api provides the HTTP admin API for the Shelly bridge.
//
// It exposes fleet inventory from the device registry, live coordinator
// status, and the out-of-band action endpoints (force refresh, OTA
// trigger). The heavy lifting happens in the bridge and coordinator
// packages; this server is a thin chi front.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/bridge"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shelly/internal/registry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// BridgeControl is the bridge surface the API drives.
// Satisfied by *bridge.Bridge; an interface so handlers can be tested
// against a mock.
type BridgeControl interface {
	// DeviceCount returns the number of managed devices.
	DeviceCount() int

	// OnlineCount returns the number of devices whose last refresh succeeded.
	OnlineCount() int

	// Device returns the managed device with the given ID.
	Device(id string) (bridge.ManagedDevice, bool)

	// Devices returns all managed devices.
	Devices() []bridge.ManagedDevice

	// TriggerRefresh forces an out-of-band refresh of one device.
	TriggerRefresh(id string) error

	// TriggerOTAUpdate starts a firmware update on one device.
	TriggerOTAUpdate(id, channel string) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Bridge   BridgeControl
	Registry registry.Repository // optional; inventory endpoints degrade without it
	Version  string
}

// Server is the HTTP admin API server.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	bridge   BridgeControl
	registry registry.Repository
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		bridge:   deps.Bridge,
		registry: deps.Registry,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
// The listener runs in a background goroutine; stop it with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
// It waits up to 10 seconds for in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
