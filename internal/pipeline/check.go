package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/raster"
)

// checkDPI keeps the render check cheap.
const checkDPI = 72

// CheckReport verifies that r's PDF is present and usable. A PDF that does
// not open, is too short, or whose table page fails to render is flagged
// incompatible, which excludes it from every stage for good.
func (p *Pipeline) CheckReport(ctx context.Context, r model.Report) (Status, error) {
	log := p.reportLogger(r)
	src := p.cfg.Paths.PDF(r)
	ok, err := fileExists(src)
	if err != nil {
		return StatusFailed, err
	}
	if !ok {
		log.Info("pipeline: PDF not downloaded", zap.String("source", src))
		return StatusMissing, nil
	}
	if !r.Downloaded {
		if err := p.store.MarkDownloaded(ctx, r.ID); err != nil {
			return StatusFailed, eris.Wrapf(err, "pipeline: mark %s downloaded", r.NewName)
		}
	}
	if !r.Compatible {
		return StatusIncompatible, nil
	}

	reason := ""
	info, err := raster.Inspect(src, p.cfg.Paths.TablePage)
	switch {
	case err != nil:
		reason = err.Error()
	case info.Pages < p.cfg.MinPages:
		reason = "too few pages"
	}
	if reason == "" && p.rasterizer != nil {
		if _, err := p.rasterizer.Render(ctx, src, p.cfg.Paths.TablePage, checkDPI); err != nil {
			if ctx.Err() != nil {
				return StatusFailed, ctx.Err()
			}
			reason = err.Error()
		}
	}

	if reason != "" {
		log.Warn("pipeline: flagging report incompatible", zap.String("reason", reason))
		if err := p.store.MarkIncompatible(ctx, r.ID); err != nil {
			return StatusFailed, eris.Wrapf(err, "pipeline: mark %s incompatible", r.NewName)
		}
		return StatusIncompatible, nil
	}
	if !info.HasTable {
		log.Warn("pipeline: table headers not found in text layer", zap.Int("page", p.cfg.Paths.TablePage))
	}
	return StatusCompatible, nil
}
