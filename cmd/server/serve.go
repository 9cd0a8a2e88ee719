package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/wa-rotator/backend/internal/api"
	"github.com/wa-rotator/backend/internal/config"
	"github.com/wa-rotator/backend/internal/frontend"
	"github.com/wa-rotator/backend/internal/logging"
	"github.com/wa-rotator/backend/internal/messaging"
	"github.com/wa-rotator/backend/internal/messaging/simulate"
	"github.com/wa-rotator/backend/internal/messaging/whatsapp"
	"github.com/wa-rotator/backend/internal/registry"
	"github.com/wa-rotator/backend/internal/session"
	"github.com/wa-rotator/backend/internal/storage"
	"github.com/wa-rotator/backend/internal/storage/memory"
	"github.com/wa-rotator/backend/internal/storage/redis"
	"github.com/wa-rotator/backend/internal/storage/sqlite"
	"github.com/wa-rotator/backend/internal/uploads"
	"github.com/wa-rotator/backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func loadConfig(f *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", f.configPath)
	}
	if f.port > 0 {
		cfg.Server.Port = f.port
	}
	if f.simulate {
		cfg.WhatsApp.Mode = config.ModeSimulate
	}
	return cfg, nil
}

func runServe(ctx context.Context, f *rootFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger, err := logging.Configure(cfg.Log.Level, cfg.Log.Pretty || f.devMode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	counter, closeCounter, err := openCounter(ctx, cfg, repo)
	if err != nil {
		return err
	}
	defer closeCounter()

	factory, closeFactory, err := openFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFactory()

	if stale, err := repo.ListSessions(ctx, true); err != nil {
		logger.Warn().Err(err).Msg("failed to list sessions marked active")
	} else if len(stale) > 0 {
		logger.Warn().Int("count", len(stale)).Msg("sessions marked active from a previous run are not resumed")
	}

	var reg *registry.Registry
	broadcaster := ws.NewBroadcaster(func() []*session.Status { return reg.List() },
		cfg.Broadcast.Throttle, cfg.Broadcast.SnapshotInterval, 0, logger)
	reg = registry.New(factory, counter, registry.Options{
		SendTimeout:      cfg.WhatsApp.SendTimeout,
		FailureThreshold: cfg.Registry.FailureThreshold,
		Observer:         broadcaster,
		Logger:           logger,
	})

	up := uploads.New(cfg.Uploads.Dir, cfg.CredsDir(), cfg.Uploads.MaxBytes, repo)

	srv := api.NewServer(reg, repo, counter, up, broadcaster, ws.NewOriginChecker(cfg.Server.AllowedOrigins), api.Options{
		AuthToken:      cfg.Server.AuthToken,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
		Frontend:       frontendHandler(f.devMode, logger),
		Logger:         logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Addr()) }()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("http shutdown")
	}
	reg.StopAll(shutdownCtx)
	broadcaster.Stop()
	return err
}

func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		return memory.NewStore(), nil
	}
	store, err := sqlite.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func openCounter(ctx context.Context, cfg *config.Config, repo storage.Repository) (storage.CounterStore, func(), error) {
	if cfg.Counter.Backend != config.CounterRedis {
		return repo, func() {}, nil
	}
	r := cfg.Counter.Redis
	c, err := redis.Dial(ctx, r.Addr, r.Password, r.DB, r.KeyPrefix)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { c.Close() }, nil
}

func openFactory(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (messaging.Factory, func(), error) {
	if cfg.WhatsApp.Mode == config.ModeSimulate {
		logger.Info().Msg("using simulated messaging client")
		return simulate.NewFactory(cfg.Simulate.Latency, cfg.Simulate.FailureRate, logger), func() {}, nil
	}

	wa, err := whatsapp.NewFactory(ctx, whatsapp.Options{
		DeviceStore:    cfg.WhatsApp.DeviceStore,
		CredsDir:       cfg.CredsDir(),
		CredsPath:      cfg.WhatsApp.CredsPath,
		ConnectTimeout: cfg.WhatsApp.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if devices, err := wa.PairedDevices(ctx); err == nil {
		logger.Info().Int("devices", len(devices)).Msg("whatsapp device store opened")
	}
	return wa, func() { wa.Close() }, nil
}

// frontendHandler prefers the embedded dashboard and falls back to the
// source tree. Dev mode always reads from disk.
func frontendHandler(devMode bool, logger zerolog.Logger) http.Handler {
	if !devMode {
		if h := frontend.Handler(); h != nil {
			return h
		}
	}
	for _, dir := range frontendDirs() {
		if h := frontend.FromDir(dir); h != nil {
			logger.Info().Str("dir", dir).Msg("serving frontend from filesystem")
			return h
		}
	}
	logger.Warn().Msg("no frontend found, serving API only")
	return nil
}

func frontendDirs() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "..", "..", "internal", "frontend", "static"))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(cwd, "internal", "frontend", "static"))
	}
	return dirs
}
