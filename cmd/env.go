package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/enhance"
	"github.com/sells-group/sitrep-cli/internal/extract"
	"github.com/sells-group/sitrep-cli/internal/lock"
	"github.com/sells-group/sitrep-cli/internal/objstore"
	"github.com/sells-group/sitrep-cli/internal/pipeline"
	"github.com/sells-group/sitrep-cli/internal/raster"
	"github.com/sells-group/sitrep-cli/internal/reconcile"
	"github.com/sells-group/sitrep-cli/internal/resilience"
	"github.com/sells-group/sitrep-cli/internal/store"
	"github.com/sells-group/sitrep-cli/internal/validate"
)

// pipelineEnv holds the store, the mirror and the pipeline built for one
// command.
type pipelineEnv struct {
	Store    store.Store
	Mirror   objstore.Store // may be nil
	Keys     objstore.Keys
	Pipeline *pipeline.Pipeline
	closers  []func() error
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	for i := len(pe.closers) - 1; i >= 0; i-- {
		if err := pe.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initMirror returns nil when no mirror is configured.
func initMirror(ctx context.Context) (objstore.Store, error) {
	switch cfg.ObjStore.Provider {
	case "", "none":
		return nil, nil
	case "local":
		if cfg.ObjStore.LocalDir == "" {
			return nil, eris.New("objstore.local_dir is required (SITREP_OBJSTORE_LOCAL_DIR)")
		}
		return objstore.NewLocal(cfg.ObjStore.LocalDir)
	case "s3":
		retry := resilience.DefaultRetryConfig()
		retry.Attempts = 4
		return objstore.NewS3(ctx, objstore.S3Config{
			Bucket:    cfg.ObjStore.Bucket,
			Region:    cfg.ObjStore.Region,
			Endpoint:  cfg.ObjStore.Endpoint,
			AccessKey: cfg.ObjStore.AccessKey,
			SecretKey: cfg.ObjStore.SecretKey,
			PathStyle: cfg.ObjStore.PathStyle,
			Retry:     retry,
		}, zap.L())
	default:
		return nil, eris.Errorf("unsupported objstore provider: %s", cfg.ObjStore.Provider)
	}
}

// initLocker returns the report lock and a function that releases its
// connection.
func initLocker(ctx context.Context) (lock.Locker, func() error, error) {
	switch cfg.Lock.Provider {
	case "", "local":
		return lock.NewLocal(), func() error { return nil }, nil
	case "redis":
		if cfg.Lock.RedisURL == "" {
			return nil, nil, eris.New("lock.redis_url is required (SITREP_LOCK_REDIS_URL)")
		}
		return lock.NewRedis(ctx, cfg.Lock.RedisURL, time.Duration(cfg.Lock.TTLSecs)*time.Second, zap.L())
	default:
		return nil, nil, eris.Errorf("unsupported lock provider: %s", cfg.Lock.Provider)
	}
}

func artifactPaths() pipeline.Paths {
	return pipeline.Paths{
		Root:      cfg.Data.Root,
		TablePage: cfg.Enhance.PageIndex,
		DiffLog:   cfg.Extract.DiffLog,
	}
}

func hsv(v []int, def enhance.HSV) enhance.HSV {
	if len(v) != 3 {
		return def
	}
	return enhance.HSV{H: uint8(v[0]), S: uint8(v[1]), V: uint8(v[2])}
}

func colorParams() enhance.ColorParams {
	c := enhance.DefaultColorParams()
	c.Lower = hsv(cfg.Enhance.HSVLower, c.Lower)
	c.Upper = hsv(cfg.Enhance.HSVUpper, c.Upper)
	if cfg.Enhance.RowThreshold > 0 {
		c.RowThreshold = cfg.Enhance.RowThreshold
	}
	if cfg.Enhance.FallbackTop > 0 {
		c.FallbackTop = cfg.Enhance.FallbackTop
	}
	if cfg.Enhance.FallbackBottom > 0 {
		c.FallbackBottom = cfg.Enhance.FallbackBottom
	}
	return c
}

func lineParams() enhance.LineParams {
	l := enhance.DefaultLineParams()
	if v := cfg.Enhance.Vertical; v.Threshold > 0 {
		l.Vertical = enhance.HoughParams{Threshold: v.Threshold, MinLineLength: v.MinLength, MaxLineGap: v.MaxGap}
	}
	if h := cfg.Enhance.Horizontal; h.Threshold > 0 {
		l.Horizontal = enhance.HoughParams{Threshold: h.Threshold, MinLineLength: h.MinLength, MaxLineGap: h.MaxGap}
	}
	if cfg.Enhance.Tolerance > 0 {
		l.Tolerance = cfg.Enhance.Tolerance
	}
	return l
}

func initEnhancer(r raster.Rasterizer) (*enhance.Enhancer, error) {
	var layouts *enhance.Layouts
	if cfg.Enhance.LayoutFile != "" {
		var err error
		if layouts, err = enhance.LoadLayouts(cfg.Enhance.LayoutFile); err != nil {
			return nil, err
		}
	}
	return enhance.New(r, layouts, zap.L()), nil
}

func initReconciler(ctx context.Context) (*reconcile.Reconciler, error) {
	policy, err := validate.ParsePolicy(cfg.Extract.RepairPolicy)
	if err != nil {
		return nil, err
	}
	client, err := extract.New(ctx, cfg, zap.L())
	if err != nil {
		return nil, eris.Wrap(err, "init extraction client")
	}
	return reconcile.New(client, validate.New(policy), reconcile.Config{MaxAttempts: cfg.Extract.MaxAttempts}, nil, zap.L()), nil
}

// initPipeline validates the config for mode ("enhance", "extract", "run",
// "sync" or "check"), opens the store and builds the Pipeline with only the
// stages mode needs. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (_ *pipelineEnv, err error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st, Keys: objstore.Keys{Prefix: cfg.ObjStore.Prefix}}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	mirror, err := initMirror(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init mirror")
	}
	env.Mirror = mirror

	locker, closeLocker, err := initLocker(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init lock")
	}
	env.closers = append(env.closers, closeLocker)

	rasterizer := raster.NewFitzRasterizer()
	var enh pipeline.TableEnhancer
	if mode == "enhance" || mode == "run" {
		e, err := initEnhancer(rasterizer)
		if err != nil {
			return nil, err
		}
		enh = e
	}
	var rec *reconcile.Reconciler
	if mode == "extract" || mode == "run" {
		if rec, err = initReconciler(ctx); err != nil {
			return nil, err
		}
	}

	opts := []pipeline.Option{
		pipeline.WithLocker(locker),
		pipeline.WithRasterizer(rasterizer),
		pipeline.WithLogger(zap.L()),
	}
	if mirror != nil {
		opts = append(opts, pipeline.WithMirror(mirror, env.Keys))
	}

	env.Pipeline = pipeline.New(pipeline.Config{
		Paths:       artifactPaths(),
		Model:       cfg.Extract.Model,
		DPI:         float64(cfg.Enhance.DPI),
		Color:       colorParams(),
		Lines:       lineParams(),
		Concurrency: cfg.Batch.Concurrency,
	}, st, enh, rec, opts...)

	zap.L().Debug("pipeline initialized",
		zap.String("mode", mode),
		zap.String("store", cfg.Store.Driver),
		zap.String("mirror", cfg.ObjStore.Provider),
		zap.String("lock", cfg.Lock.Provider),
	)
	return env, nil
}
