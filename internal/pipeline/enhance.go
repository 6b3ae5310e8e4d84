package pipeline

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/enhance"
	"github.com/sells-group/sitrep-cli/internal/model"
)

// EnhanceReport produces the enhanced table image of r. An existing image is
// never regenerated; the report is only marked enhanced. A page that cannot
// be rendered flags the report incompatible.
func (p *Pipeline) EnhanceReport(ctx context.Context, r model.Report) (Status, error) {
	log := p.reportLogger(r)
	if !r.Compatible {
		log.Info("pipeline: skipping incompatible report")
		return StatusSkipped, nil
	}
	if p.enhancer == nil {
		return StatusFailed, eris.New("pipeline: no enhancer configured")
	}

	out := p.cfg.Paths.Enhanced(r)
	name := filepath.Base(out)
	exists, err := fileExists(out)
	if err != nil {
		return StatusFailed, err
	}
	if exists {
		log.Info("pipeline: enhanced image exists, skipping", zap.String("output", out))
		if !r.Enhanced || r.EnhancedName != name {
			if err := p.store.MarkEnhanced(ctx, r.ID, name); err != nil {
				return StatusFailed, eris.Wrapf(err, "pipeline: mark %s enhanced", r.NewName)
			}
		}
		return StatusSkipped, nil
	}

	src := p.cfg.Paths.PDF(r)
	ok, err := fileExists(src)
	if err == nil && !ok {
		ok, err = p.restore(ctx, p.keys.PDF(r), src, log)
	}
	if err != nil {
		return StatusFailed, err
	}
	if !ok {
		log.Warn("pipeline: source PDF missing", zap.String("source", src))
		return StatusFailed, eris.Errorf("pipeline: source %s missing", src)
	}

	_, err = p.enhancer.Enhance(ctx, enhance.Request{
		SourcePath: src,
		PageIndex:  p.cfg.Paths.TablePage,
		OutputPath: out,
		Year:       model.NormalizeYear(r.Year),
		Week:       r.Week,
		Color:      p.cfg.Color,
		Lines:      p.cfg.Lines,
		DPI:        p.cfg.DPI,
	})
	if errors.Is(err, enhance.ErrRender) {
		log.Error("pipeline: page could not be rendered, flagging incompatible", zap.Error(err))
		if mErr := p.store.MarkIncompatible(ctx, r.ID); mErr != nil {
			return StatusFailed, eris.Wrapf(mErr, "pipeline: mark %s incompatible", r.NewName)
		}
		return StatusIncompatible, nil
	}
	if err != nil {
		log.Error("pipeline: enhancement failed", zap.Error(err))
		return StatusFailed, eris.Wrapf(err, "pipeline: enhance %s", r.NewName)
	}

	if err := p.store.MarkEnhanced(ctx, r.ID, name); err != nil {
		return StatusFailed, eris.Wrapf(err, "pipeline: mark %s enhanced", r.NewName)
	}
	p.upload(ctx, p.keys.Enhanced(r, name), out, log)
	log.Info("pipeline: report enhanced", zap.String("output", out))
	return StatusEnhanced, nil
}
