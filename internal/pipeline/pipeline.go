// Package pipeline drives situation reports through enhancement and dual
// extraction, keeping the database, the local artifact tree and the mirror
// in agreement.
package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/enhance"
	"github.com/sells-group/sitrep-cli/internal/lock"
	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/objstore"
	"github.com/sells-group/sitrep-cli/internal/raster"
	"github.com/sells-group/sitrep-cli/internal/reconcile"
	"github.com/sells-group/sitrep-cli/internal/store"
)

// TableEnhancer renders and enhances one report page.
type TableEnhancer interface {
	Enhance(ctx context.Context, req enhance.Request) (*enhance.Result, error)
}

// Status is what a stage did with one report.
type Status string

const (
	StatusEnhanced     Status = "enhanced"
	StatusExtracted    Status = "extracted"
	StatusSkipped      Status = "skipped"
	StatusIncompatible Status = "incompatible"
	StatusReview       Status = "review"
	StatusLocked       Status = "locked"
	StatusFailed       Status = "failed"
	StatusCompatible   Status = "compatible"
	StatusMissing      Status = "missing"
)

// Config holds the per-run settings of a Pipeline.
type Config struct {
	Paths Paths
	Model string
	DPI   float64
	Color enhance.ColorParams
	Lines enhance.LineParams
	// Concurrency is the number of reports processed at once; 1 or less is
	// sequential.
	Concurrency int
	// MinPages is the page count below which a PDF is incompatible.
	MinPages int
}

// Pipeline runs the stages for a batch of reports.
type Pipeline struct {
	cfg        Config
	store      store.Store
	enhancer   TableEnhancer
	reconciler *reconcile.Reconciler
	rasterizer raster.Rasterizer
	mirror     objstore.Store
	keys       objstore.Keys
	locker     lock.Locker
	logger     *zap.Logger

	diffMu sync.Mutex
	diffs  map[string]*reconcile.FileDiffLog
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithMirror uploads every artifact to m and restores missing inputs from it.
func WithMirror(m objstore.Store, keys objstore.Keys) Option {
	return func(p *Pipeline) {
		p.mirror = m
		p.keys = keys
	}
}

// WithLocker replaces the in-process report lock.
func WithLocker(l lock.Locker) Option {
	return func(p *Pipeline) { p.locker = l }
}

// WithRasterizer enables the render check of CheckReport.
func WithRasterizer(r raster.Rasterizer) Option {
	return func(p *Pipeline) { p.rasterizer = r }
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline. enh or rec may be nil when only the other stage
// is run.
func New(cfg Config, st store.Store, enh TableEnhancer, rec *reconcile.Reconciler, opts ...Option) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MinPages < 1 {
		cfg.MinPages = cfg.Paths.TablePage + 1
	}
	p := &Pipeline{
		cfg:        cfg,
		store:      st,
		enhancer:   enh,
		reconciler: rec,
		locker:     lock.NewLocal(),
		logger:     zap.L(),
		diffs:      make(map[string]*reconcile.FileDiffLog),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Paths returns the local artifact layout.
func (p *Pipeline) Paths() Paths { return p.cfg.Paths }

func (p *Pipeline) reportLogger(r model.Report) *zap.Logger {
	return p.logger.With(
		zap.Int64("report_id", r.ID),
		zap.String("report", r.NewName),
		zap.String("year", r.Year),
		zap.Int("week", r.Week),
	)
}

// diffLog returns the shared disagreement log of a year.
func (p *Pipeline) diffLog(year string) *reconcile.FileDiffLog {
	year = model.NormalizeYear(year)
	p.diffMu.Lock()
	defer p.diffMu.Unlock()
	l, ok := p.diffs[year]
	if !ok {
		l = reconcile.NewFileDiffLog(p.cfg.Paths.DiffLogPath(year))
		p.diffs[year] = l
	}
	return l
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, eris.Wrapf(err, "pipeline: stat %s", path)
}

// put uploads the file at path to key.
func (p *Pipeline) put(ctx context.Context, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: read %s", path)
	}
	return p.mirror.Put(ctx, key, data, objstore.ContentType(key))
}

// upload mirrors a local artifact. Mirror failures are logged, never fatal:
// sync repairs them later.
func (p *Pipeline) upload(ctx context.Context, key, path string, log *zap.Logger) {
	if p.mirror == nil {
		return
	}
	if err := p.put(ctx, key, path); err != nil {
		log.Warn("pipeline: mirror upload failed", zap.String("key", key), zap.Error(err))
		return
	}
	log.Debug("pipeline: mirrored artifact", zap.String("key", key))
}

// restore fetches a missing local artifact from the mirror. It reports
// whether the file is now present.
func (p *Pipeline) restore(ctx context.Context, key, path string, log *zap.Logger) (bool, error) {
	if p.mirror == nil {
		return false, nil
	}
	data, err := p.mirror.Get(ctx, key)
	if errors.Is(err, objstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return false, err
	}
	log.Info("pipeline: restored artifact from mirror", zap.String("key", key), zap.String("path", path))
	return true, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".restore-*")
	if err != nil {
		return eris.Wrap(err, "pipeline: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "pipeline: rename %s", path)
}
