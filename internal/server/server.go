// Package server orchestrates the bridge host: COMMS, the simulated native
// runtime responder, the traffic journal and the HTTP health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/sdk-bridge/internal/config"
	"github.com/morezero/sdk-bridge/pkg/bridge"
	"github.com/morezero/sdk-bridge/pkg/commsutil"
	"github.com/morezero/sdk-bridge/pkg/db"
	"github.com/morezero/sdk-bridge/pkg/events"
	"github.com/morezero/sdk-bridge/pkg/metrics"
	"github.com/morezero/sdk-bridge/pkg/native"
	"github.com/morezero/sdk-bridge/pkg/native/commsbridge"
	"github.com/morezero/sdk-bridge/pkg/native/simulation"
	"github.com/morezero/sdk-bridge/pkg/semver"
)

const logPrefix = "server:server"

// trafficReader is the part of the journal the HTTP handlers read.
type trafficReader interface {
	ListTraffic(ctx context.Context, f db.TrafficFilter) ([]db.TrafficRecord, error)
	GetTraffic(ctx context.Context, id string) (*db.TrafficRecord, error)
	CountByOutcome(ctx context.Context, since time.Time) ([]db.OutcomeCount, error)
}

// runtimeProber answers the runtime version query.
type runtimeProber interface {
	RuntimeVersion(ctx context.Context) (string, error)
}

// Server is the bridge-host orchestrator.
type Server struct {
	cfg        *config.Config
	ns         *commsserver.Server
	nc         *comms.Conn
	pool       *pgxpool.Pool
	trafficSub *comms.Subscription
	responder  *commsbridge.Responder
	probe      *bridge.Bridge
	httpServer *http.Server
	cancelRun  context.CancelFunc

	// Read by the HTTP handlers; set from the fields above in Start.
	journal        trafficReader
	prober         runtimeProber
	commsConnected func() bool
	pingJournal    func(ctx context.Context) error
	targets        func() int
	compat         *semver.Compatibility
	ready          atomic.Bool
}

// New creates a Server for cfg. Call Start to bring it up.
func New(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run loads config, starts the server, blocks until a shutdown signal, then
// cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting bridge-host", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(cfg)
	if err := s.Start(ctx); err != nil {
		s.Shutdown(ctx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.Shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// SetupLogging installs the default text logger at level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Start brings up every component in dependency order. On error the
// components already started are left for Shutdown.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg

	// Step 1: COMMS, embedded or standalone
	commsURL := cfg.COMMSURL
	if cfg.EmbeddedComms {
		ns, url, err := startEmbeddedComms(cfg.EmbeddedCommsPort)
		if err != nil {
			return err
		}
		s.ns = ns
		commsURL = url
	}
	nc, err := commsutil.Connect(commsURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc
	s.commsConnected = nc.IsConnected

	// Step 2: traffic journal
	if cfg.JournalEnabled {
		if err := s.startJournal(ctx); err != nil {
			return err
		}
	}

	// Step 3: simulated native runtime, one backend per client target
	profile, err := simulation.LoadProfile(cfg.SimulationProfile)
	if err != nil {
		return fmt.Errorf("%s - failed to load simulation profile: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Simulation profile %q (SDK %s)", logPrefix, profile.Name, profile.SDKVersion))

	s.responder = commsbridge.NewResponder(nc, func(string) native.Bridge {
		return simulation.New(profile)
	}, commsbridge.ResponderOptions{Platform: cfg.Platform, CallTimeout: cfg.RequestTimeout})
	if err := s.responder.Start(); err != nil {
		return err
	}
	s.targets = s.responder.Targets

	// Step 4: probe bridge, a client of our own runtime
	if err := s.startProbe(ctx); err != nil {
		return err
	}

	// Step 5: HTTP health, metrics and journal endpoints
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: addr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	s.ready.Store(true)
	slog.Info(fmt.Sprintf("%s - Bridge-host is ready", logPrefix))
	return nil
}

func (s *Server) startJournal(ctx context.Context) error {
	cfg := s.cfg
	if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
		slog.Warn(fmt.Sprintf("%s - EnsureDatabase: %v (continuing)", logPrefix, err))
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool
	s.pingJournal = pool.Ping

	if cfg.RunMigrations {
		files, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, files); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	repo := db.NewRepository(pool)
	sub, err := events.SubscribeTraffic(s.nc, commsutil.SubjectTraffic, events.NewJournalPublisher(repo, cfg.RequestTimeout), cfg.RequestTimeout)
	if err != nil {
		return err
	}
	s.trafficSub = sub
	s.journal = repo
	slog.Info(fmt.Sprintf("%s - Journaling traffic from %s", logPrefix, commsutil.SubjectTraffic))
	return nil
}

func (s *Server) startProbe(ctx context.Context) error {
	cfg := s.cfg
	target := cfg.COMMSName + "-probe"
	nb, err := commsbridge.New(s.nc, commsbridge.Options{
		Platform:       cfg.Platform,
		Target:         target,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}
	s.probe = bridge.New(nb, &bridge.Options{
		Target:    target,
		Platform:  cfg.Platform,
		Publisher: events.NewCommsPublisher(s.nc, nil),
		Metrics:   metrics.Default(),
	})
	s.prober = s.probe

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel
	go func() {
		if err := s.probe.Run(runCtx, cfg.DrainInterval); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error(fmt.Sprintf("%s - probe run loop: %v", logPrefix, err))
		}
	}()

	checkCtx, checkCancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer checkCancel()
	if cfg.NativeVersionConstraint == "" {
		version, err := s.probe.RuntimeVersion(checkCtx)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - runtime version unavailable: %v", logPrefix, err))
			return nil
		}
		slog.Info(fmt.Sprintf("%s - Native runtime version %s", logPrefix, version))
		return nil
	}

	compat, err := s.probe.CheckCompatibility(checkCtx, cfg.NativeVersionConstraint)
	if err != nil {
		return fmt.Errorf("%s - runtime compatibility: %w", logPrefix, err)
	}
	s.compat = compat
	return nil
}

// Shutdown stops every started component. It is safe after a failed Start.
func (s *Server) Shutdown(ctx context.Context) {
	s.ready.Store(false)

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if s.probe != nil {
		if err := s.probe.Close(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - probe close: %v", logPrefix, err))
		}
	}
	if s.cancelRun != nil {
		s.cancelRun()
	}
	if s.responder != nil {
		s.responder.Close()
	}
	if s.trafficSub != nil {
		s.trafficSub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.ns != nil {
		s.ns.Shutdown()
		s.ns.WaitForShutdown()
	}
}
