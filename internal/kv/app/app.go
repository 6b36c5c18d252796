package app

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	http_handler "github.com/anthanhphan/go-kvs/internal/kv/adapter/inbound/http"
	"github.com/anthanhphan/go-kvs/internal/kv/adapter/inbound/tcp"
	"github.com/anthanhphan/go-kvs/internal/kv/adapter/outbound/bitcask"
	"github.com/anthanhphan/go-kvs/internal/kv/adapter/outbound/bolt"
	"github.com/anthanhphan/go-kvs/internal/kv/config"
	"github.com/anthanhphan/go-kvs/internal/kv/domain"
	"github.com/anthanhphan/go-kvs/internal/kv/port"
	"github.com/anthanhphan/go-kvs/internal/kv/service"
	"github.com/anthanhphan/go-kvs/pkg/workerpool"
	"github.com/anthanhphan/gosdk/logger"
)

// App wires the engine, worker pool, and listeners together and owns
// their lifecycle.
type App struct {
	cfg    *config.Config
	engine port.Engine
	pool   *workerpool.Pool
	server *tcp.Server
	health *http_handler.HealthServer
}

// New builds the application from configuration. The storage backend
// is selected here, once; a data directory previously used by the
// other backend is rejected before any connection is accepted.
func New(cfg *config.Config) (*App, error) {
	logger.InitLogger(&cfg.Logger)

	if err := validateDataDir(cfg.Store); err != nil {
		return nil, err
	}

	engine, err := openEngine(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s engine: %w", cfg.Store.Engine, err)
	}

	pool := workerpool.New(cfg.Server.Workers)
	svc := service.NewKVService(engine, pool)
	server := tcp.NewServer(svc)

	var health *http_handler.HealthServer
	if cfg.Server.HealthAddr != "" {
		stats, _ := engine.(domain.StatsProvider)
		health = http_handler.NewHealthServer(stats)
	}

	return &App{
		cfg:    cfg,
		engine: engine,
		pool:   pool,
		server: server,
		health: health,
	}, nil
}

func openEngine(cfg config.StoreConfig) (port.Engine, error) {
	switch cfg.Engine {
	case config.EngineBitcask:
		return bitcask.Open(cfg)
	case config.EngineBolt:
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return nil, err
		}
		return bolt.Open(cfg)
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// validateDataDir refuses to open a directory that already belongs to
// the other backend, which would otherwise silently start empty.
func validateDataDir(cfg config.StoreConfig) error {
	segments, _ := filepath.Glob(filepath.Join(cfg.DataDir, bitcask.SegmentPrefix+"*"+bitcask.SegmentSuffix))
	boltDB := filepath.Join(cfg.DataDir, "kv.db")
	_, boltErr := os.Stat(boltDB)

	switch cfg.Engine {
	case config.EngineBitcask:
		if boltErr == nil {
			return fmt.Errorf("data dir %s holds a bolt database, refusing to open with bitcask", cfg.DataDir)
		}
	case config.EngineBolt:
		if len(segments) > 0 {
			return fmt.Errorf("data dir %s holds bitcask segments, refusing to open with bolt", cfg.DataDir)
		}
	}
	return nil
}

// Run serves until SIGINT/SIGTERM, then shuts down in dependency
// order: listeners first, then the pool drain, then the engine.
func (a *App) Run() error {
	if err := a.server.Start(a.cfg.Server.Addr); err != nil {
		a.pool.Close()
		a.pool.Wait()
		_ = a.engine.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}

	healthErrCh := make(chan error, 1)
	if a.health != nil {
		go func() {
			if err := a.health.Start(a.cfg.Server.HealthAddr); err != nil {
				healthErrCh <- err
			}
		}()
	}

	logger.Infow("Key/value server started",
		"addr", a.cfg.Server.Addr,
		"engine", a.cfg.Store.Engine,
		"data_dir", a.cfg.Store.DataDir,
		"workers", a.cfg.Server.Workers)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-healthErrCh:
		runErr = fmt.Errorf("health server failed: %w", err)
		logger.Errorw("Health server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down")
	a.server.Shutdown()
	if a.health != nil {
		if err := a.health.Stop(); err != nil {
			logger.Warnw("Health server stop failed", "error", err.Error())
		}
	}
	a.pool.Close()
	a.pool.Wait()
	if err := a.engine.Close(); err != nil {
		logger.Warnw("Engine close failed", "error", err.Error())
	}

	return runErr
}
