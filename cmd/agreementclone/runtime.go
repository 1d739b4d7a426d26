package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/erp/agreementclone/internal/application/clone"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/infrastructure/checkpoint"
	"github.com/erp/agreementclone/internal/infrastructure/commerce"
	"github.com/erp/agreementclone/internal/infrastructure/config"
	"github.com/erp/agreementclone/internal/infrastructure/logger"
	"github.com/erp/agreementclone/internal/infrastructure/persistence"
	"github.com/erp/agreementclone/internal/infrastructure/storage"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// apiMode selects which credentials a command needs.
type apiMode int

const (
	noAPI apiMode = iota
	stageAPI
	syncAPI
)

// runtimeSpec describes what one command invocation needs.
type runtimeSpec struct {
	agreementID string
	// name is the stage name used for the log and metrics files.
	name     string
	api      apiMode
	console  io.Writer
	readOnly bool // log to stderr only, no log file
}

// runtime is everything a command builds before calling the clone service.
type runtime struct {
	service *clone.Service
	log     *zap.Logger

	metrics     *commerce.Metrics
	metricsPath string
	db          *persistence.Database
	closeLog    func() error
}

func openRuntime(ctx context.Context, opts *rootOptions, rs runtimeSpec) (*runtime, error) {
	if err := validateRequest(stageRequest{AgreementID: rs.agreementID}); err != nil {
		return nil, err
	}
	cfg := opts.cfg
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	var (
		api    config.APIConfig
		tunnel *config.TunnelConfig
	)
	switch rs.api {
	case stageAPI:
		sc, err := cfg.Stage()
		if err != nil {
			return nil, err
		}
		api = sc.API
	case syncAPI:
		sc, err := cfg.SyncStage()
		if err != nil {
			return nil, err
		}
		api, tunnel = sc.API, &sc.Tunnel
	}

	log, closeLog, err := newLogger(opts, rs)
	if err != nil {
		return nil, err
	}
	rt := &runtime{log: log, closeLog: closeLog}

	var apis clone.APIs
	svcOpts := []clone.Option{clone.WithLogger(log)}
	if rs.api != noAPI {
		if cfg.Metrics.Enabled {
			rt.metrics = commerce.NewMetrics()
			rt.metricsPath = filepath.Join(cfg.OutputDir, rs.agreementID, "metrics", rs.name+".prom")
		}
		base := clientOptions(cfg, rt.metrics, log)

		newAPI := func(url, token, userAgent string) (*commerce.API, error) {
			client, err := commerce.NewClient(url, token, append(base, commerce.WithUserAgent(userAgent))...)
			if err != nil {
				return nil, err
			}
			return commerce.NewAPI(client), nil
		}
		userAgent := pipeline.Stage(rs.name).UserAgent()

		if apis.Ops, err = newAPI(api.URL, api.OpsToken, userAgent); err != nil {
			rt.Close()
			return nil, err
		}
		if apis.Vendor, err = newAPI(api.URL, api.VendorToken, userAgent); err != nil {
			rt.Close()
			return nil, err
		}
		if tunnel != nil {
			if apis.Tunnel, err = newAPI(tunnel.URL, tunnel.Token, userAgent); err != nil {
				rt.Close()
				return nil, err
			}
		}

		// the precondition checks identify themselves separately
		validatorOps, err := newAPI(api.URL, api.OpsToken, pipeline.ValidatorUserAgent)
		if err != nil {
			rt.Close()
			return nil, err
		}
		validatorVendor, err := newAPI(api.URL, api.VendorToken, pipeline.ValidatorUserAgent)
		if err != nil {
			rt.Close()
			return nil, err
		}
		svcOpts = append(svcOpts, clone.WithValidator(clone.NewValidator(validatorOps, validatorVendor, log)))
	}

	storeOpts := []checkpoint.Option{checkpoint.WithLogger(log)}
	if cfg.Storage.Enabled() {
		mirror, err := storage.NewS3Mirror(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("artifact mirror: %w", err)
		}
		storeOpts = append(storeOpts, checkpoint.WithMirror(mirror))
		log.Debug("Mirroring artifacts", zap.String("bucket", mirror.Bucket()))
	}
	store := checkpoint.NewStore(cfg.OutputDir, rs.agreementID, storeOpts...)

	if cfg.Ledger.Enabled() {
		db, err := persistence.NewDatabase(cfg.Ledger, log)
		if err != nil {
			log.Warn("Run ledger unavailable, continuing without it",
				zap.String("driver", cfg.Ledger.Driver),
				zap.Error(err),
			)
		} else {
			rt.db = db
			svcOpts = append(svcOpts, clone.WithRunRepository(persistence.NewGormRunRepository(db.DB)))
		}
	}

	rt.service, err = clone.NewService(store, apis, svcOpts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func newLogger(opts *rootOptions, rs runtimeSpec) (*zap.Logger, func() error, error) {
	cfg := opts.cfg
	level := lo.Ternary(opts.debug, "debug", cfg.Log.Level)
	if rs.readOnly {
		l, err := logger.New(&logger.Config{
			Level:      level,
			Format:     cfg.Log.Format,
			Output:     "stderr",
			TimeFormat: logger.TimeFormat,
		})
		if err != nil {
			return nil, nil, err
		}
		return l.With(zap.String("agreement_id", rs.agreementID)), func() error { return nil }, nil
	}
	return logger.NewRunLogger(logger.RunConfig{
		Dir:         cfg.OutputDir,
		AgreementID: rs.agreementID,
		Stage:       rs.name,
		Level:       level,
		Format:      cfg.Log.Format,
		Console:     zapcore.Lock(zapcore.AddSync(rs.console)),
	})
}

func clientOptions(cfg *config.Config, metrics *commerce.Metrics, log *zap.Logger) []commerce.Option {
	opts := []commerce.Option{
		commerce.WithTimeout(cfg.HTTP.Timeout),
		commerce.WithRetryPolicy(commerce.RetryPolicy{
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   cfg.HTTP.BackoffBase,
		}),
		commerce.WithMetrics(metrics),
		commerce.WithLogger(log),
	}
	if cfg.HTTP.RateLimit > 0 {
		opts = append(opts, commerce.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.HTTP.RateLimit), 1)))
	}
	return opts
}

// Close flushes the metrics, closes the ledger and the log file.
func (r *runtime) Close() {
	if r.metrics != nil {
		if err := r.metrics.WriteTextfile(r.metricsPath); err != nil {
			r.log.Warn("Failed to write metrics", zap.Error(err))
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.log.Warn("Failed to close run ledger", zap.Error(err))
		}
	}
	_ = r.log.Sync()
	_ = r.closeLog()
}

// runStage opens the runtime of a stage, runs fn and logs its failure.
func runStage(cmd *cobra.Command, opts *rootOptions, agreementID string, stage pipeline.Stage, mode apiMode, fn func(context.Context, *clone.Service) error) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts, runtimeSpec{
		agreementID: agreementID,
		name:        string(stage),
		api:         mode,
		console:     cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := fn(ctx, rt.service); err != nil {
		rt.log.Error("Stage failed", zap.Error(err))
		return err
	}
	return nil
}
