package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/batch"
	cfgpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/config"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/runtime"
	grpcserver "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/server/grpc"
	httpserver "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/server/http"
	certsvc "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/services/certificates"
	pebblestore "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/storage/pebble"
	logpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/log"
)

// Options configures Run. Config carries addresses and tunables; DataDir
// and Fsync override the storage settings.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
}

// newLogger builds the process logger from cfg, falling back to info/text
// when the configured level or format is invalid.
func newLogger(cfg cfgpkg.LogConfig) logpkg.Logger {
	l, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Level, Format: cfg.Format})
	if err == nil {
		return l
	}
	l = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	l.Warn("invalid log config, using defaults", logpkg.Err(err))
	return l
}

// Run starts the HTTP and gRPC servers and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(runtime.Options{DataDir: cfg.DataDir, Fsync: opts.Fsync, Config: cfg})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting certd",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("grpc", cfg.GRPCAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Bool("shared_email_limit", rt.Redis() != nil),
		logpkg.Int("batch_size", cfg.Batch.Size),
		logpkg.Dur("step_delay", cfg.Batch.StepDelay()),
	)

	reg := batch.NewRegistry(batch.RegistryOptions{
		Logger:        logger,
		SweepInterval: cfg.Sessions.SweepInterval(),
		Retention:     cfg.Sessions.Retention(),
		Archiver:      rt.Archive(),
		Context:       sctx,
	})
	svc := certsvc.NewWithLogger(rt, reg, logger.WithComponent("certificates"))
	hsrv := httpserver.New(rt, svc, logger)
	gsrv := grpcserver.New(rt, svc, logger)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		_ = reg.Run(sctx)
	}()
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server stopped", logpkg.Err(err))
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		if err := gsrv.ListenAndServe(sctx, cfg.GRPCAddr); err != nil && sctx.Err() == nil {
			logger.Error("grpc server stopped", logpkg.Err(err))
			stop()
		}
	}()

	<-sctx.Done()
	// Stop transports and sessions before the runtime closes its stores.
	gsrv.Close()
	hsrv.Close()
	wg.Wait()
	logger.Info("certd stopped")
	return nil
}
