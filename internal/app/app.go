package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"interviewforge/internal/cache"
	"interviewforge/internal/config"
	"interviewforge/internal/llm"
	llmclient "interviewforge/internal/llm/client"
	"interviewforge/internal/orchestrator"
	"interviewforge/internal/prompt"
	"interviewforge/internal/server"
	"interviewforge/internal/store/artifact"
	"interviewforge/internal/store/run"
)

// Deps is everything a Generate call needs, built once per process.
type Deps struct {
	Client  llmclient.Client
	Engine  *orchestrator.Engine
	Service *server.Service
	Hub     *server.Hub
	Digests *cache.DigestCache

	closers []func() error
}

// Build wires the completion client, engine, caches and stores of cfg.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Deps, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Deps{}

	base, err := llmclient.New(ctx, cfg.LLM.Provider)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	limit := llmclient.DefaultRateLimit(cfg.LLM.Provider)
	if cfg.LLM.RateLimit.RPS > 0 {
		limit = cfg.LLM.RateLimit
	}

	var (
		rate   llm.Middleware
		broker llm.PermitBroker
	)
	if cfg.LLM.ReservePermits {
		limiter := llm.NewLimiter(limit.RPS, limit.Burst)
		d.closers = append(d.closers, func() error { limiter.Stop(); return nil })
		rate = llm.RateLimitWith(limiter)
		broker = llm.NewBroker(limiter)
	} else {
		rate = llm.RateLimitFromEnv(limit, "LLM", strings.ToUpper(cfg.LLM.Provider.Provider))
	}
	d.Client = llm.Wrap(base,
		llm.WithLogging(log),
		llm.WithHooks(),
		llm.WithUsageLedger(cfg.LLM.UsageLedgerPath),
		rate,
		llm.Timeout(cfg.LLM.MaxCallTimeout),
	)
	d.closers = append(d.closers, d.Client.Close)

	d.Digests, err = cache.NewDigestCache(cfg.Cache.Size)
	if err != nil {
		return nil, d.fail(fmt.Errorf("init digest cache: %w", err))
	}
	if cfg.Cache.Path != "" {
		disk, err := cache.NewDiskStore(cache.DiskConfig{Path: cfg.Cache.Path, TTL: cfg.Cache.TTL})
		if err != nil {
			return nil, d.fail(fmt.Errorf("open digest cache: %w", err))
		}
		d.Digests.WithDisk(disk)
	}

	d.Hub = server.NewHub()
	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithDigestCache(d.Digests),
		orchestrator.WithObserver(d.Hub),
	}
	if broker != nil {
		opts = append(opts, orchestrator.WithBroker(broker))
	}
	d.Engine = orchestrator.New(d.Client, opts...)

	runs, err := openRunStore(ctx, cfg, log)
	if err != nil {
		return nil, d.fail(err)
	}
	if c, ok := runs.(interface{ Close() error }); ok {
		d.closers = append(d.closers, c.Close)
	}
	artifacts, err := openArtifactStore(cfg, log)
	if err != nil {
		return nil, d.fail(err)
	}

	d.Service = server.NewService(d.Engine, runs, artifacts, d.Hub,
		server.WithDefaults(cfg.Budget),
		server.WithServiceLogger(log),
		server.WithCallHook(callTrace(log)),
	)
	return d, nil
}

// Close releases the client, limiter and stores.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Deps) fail(err error) error {
	_ = d.Close()
	return err
}

func openRunStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (run.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("run store: memory")
		return run.NewMemoryStore(), nil
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	s, err := run.NewPostgresStore(pctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	log.Info("run store: postgres")
	return s, nil
}

func openArtifactStore(cfg *config.Config, log *zap.Logger) (artifact.Store, error) {
	if !cfg.Artifact.Enabled {
		log.Info("artifact store: memory")
		return artifact.NewMemoryStore(), nil
	}
	s, err := artifact.NewS3Store(artifact.S3Config{
		Endpoint:  cfg.Artifact.Endpoint,
		Region:    cfg.Artifact.Region,
		AccessKey: cfg.Artifact.AccessKey,
		SecretKey: cfg.Artifact.SecretKey,
		Bucket:    cfg.Artifact.Bucket,
		UseSSL:    cfg.Artifact.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	log.Info("artifact store: s3", zap.String("endpoint", cfg.Artifact.Endpoint), zap.String("bucket", cfg.Artifact.Bucket))
	return s, nil
}

// callTrace logs each completion call's latency at debug level.
func callTrace(log *zap.Logger) llm.CallHook {
	log = log.Named("calls")
	type startKey struct {
		run   string
		stage prompt.Stage
		chunk int
	}
	starts := newStartTimes[startKey]()
	return llm.HookFuncs{
		BeforeFn: func(ctx context.Context, env prompt.Envelope) {
			starts.set(startKey{llm.RunFrom(ctx), env.Stage, env.ChunkIndex}, time.Now())
		},
		AfterFn: func(ctx context.Context, env prompt.Envelope, raw string, err error) {
			k := startKey{llm.RunFrom(ctx), env.Stage, env.ChunkIndex}
			fields := []zap.Field{
				zap.String("run", k.run),
				zap.String("stage", string(env.Stage)),
				zap.Int("chunk", env.ChunkIndex),
				zap.Int("bytes", len(raw)),
			}
			if t, ok := starts.take(k); ok {
				fields = append(fields, zap.Duration("elapsed", time.Since(t)))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			log.Debug("call", fields...)
		},
	}
}
