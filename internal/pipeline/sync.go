package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// SyncResult counts what Sync moved.
type SyncResult struct {
	Uploaded int
	Restored int
	// Missing counts artifacts the database expects but neither side has.
	Missing int
}

// Sync brings the mirror and the local tree into agreement for reports:
// local artifacts missing from the mirror are uploaded and artifacts the
// database expects locally are restored from the mirror.
func (p *Pipeline) Sync(ctx context.Context, reports []model.Report) (*SyncResult, error) {
	if p.mirror == nil {
		return nil, eris.New("pipeline: sync needs a mirror")
	}
	res := &SyncResult{}
	for _, r := range reports {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "pipeline: sync interrupted")
		}
		log := p.reportLogger(r)

		type artifact struct {
			key, path string
			expected  bool
		}
		arts := []artifact{
			{p.keys.PDF(r), p.cfg.Paths.PDF(r), r.Downloaded},
			{p.keys.Enhanced(r, p.cfg.Paths.EnhancedName(r)), p.cfg.Paths.Enhanced(r), r.Enhanced},
			{p.keys.CSV(r), p.cfg.Paths.CSV(r), r.Processed == model.ProcessDone},
		}
		for _, a := range arts {
			if err := p.syncOne(ctx, a.key, a.path, a.expected, res, log); err != nil {
				return res, err
			}
		}
	}
	p.logger.Info("pipeline: sync complete",
		zap.Int("uploaded", res.Uploaded),
		zap.Int("restored", res.Restored),
		zap.Int("missing", res.Missing))
	return res, nil
}

func (p *Pipeline) syncOne(ctx context.Context, key, path string, expected bool, res *SyncResult, log *zap.Logger) error {
	local, err := fileExists(path)
	if err != nil {
		return err
	}
	remote, err := p.mirror.Exists(ctx, key)
	if err != nil {
		return eris.Wrapf(err, "pipeline: check mirror %s", key)
	}

	switch {
	case local && !remote:
		if err := p.put(ctx, key, path); err != nil {
			log.Warn("pipeline: mirror upload failed", zap.String("key", key), zap.Error(err))
			return nil
		}
		res.Uploaded++
	case !local && remote && expected:
		ok, err := p.restore(ctx, key, path, log)
		if err != nil {
			return err
		}
		if ok {
			res.Restored++
		}
	case !local && !remote && expected:
		log.Warn("pipeline: artifact missing locally and in mirror", zap.String("key", key))
		res.Missing++
	}
	return nil
}
