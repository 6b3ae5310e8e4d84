package pipeline

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/export"
	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/states"
)

// ExtractReport reconciles two extractions of r's enhanced image. Accepted
// rows are written to the per-report CSV and saved with the processed flag;
// a report that never reaches agreement is flagged for review.
func (p *Pipeline) ExtractReport(ctx context.Context, r model.Report) (Status, error) {
	log := p.reportLogger(r)
	switch {
	case !r.Compatible:
		log.Info("pipeline: skipping incompatible report")
		return StatusSkipped, nil
	case !r.Enhanced:
		log.Info("pipeline: skipping report without enhanced image")
		return StatusSkipped, nil
	case r.Processed == model.ProcessDone:
		log.Info("pipeline: report already processed, skipping")
		return StatusSkipped, nil
	}
	if p.reconciler == nil {
		return StatusFailed, eris.New("pipeline: no extractor configured")
	}

	img := p.cfg.Paths.Enhanced(r)
	ok, err := fileExists(img)
	if err == nil && !ok {
		ok, err = p.restore(ctx, p.keys.Enhanced(r, p.cfg.Paths.EnhancedName(r)), img, log)
	}
	if err != nil {
		return StatusFailed, err
	}
	if !ok {
		log.Warn("pipeline: enhanced image missing", zap.String("image", img))
		return StatusFailed, eris.Errorf("pipeline: enhanced image %s missing", img)
	}

	out := p.reconciler.WithDiffs(p.diffLog(r.Year)).Reconcile(ctx, img, p.cfg.Model)
	if out.Err != nil {
		return StatusFailed, eris.Wrapf(out.Err, "pipeline: extract %s", r.NewName)
	}
	if !out.Accepted {
		log.Error("pipeline: extraction exhausted, flagging for review", zap.Int("attempts", out.Attempts))
		if err := p.store.MarkReview(ctx, r.ID); err != nil {
			return StatusFailed, eris.Wrapf(err, "pipeline: mark %s for review", r.NewName)
		}
		return StatusReview, nil
	}

	rows := finalRows(canonicalRows(out.Rows, log), log)
	csvPath := p.cfg.Paths.CSV(r)
	if err := export.WriteReportCSV(csvPath, r, rows); err != nil {
		return StatusFailed, err
	}
	if err := p.store.SaveExtraction(ctx, r, rows); err != nil {
		// Without the rows in the database the CSV must not exist either.
		if rmErr := os.Remove(csvPath); rmErr != nil {
			log.Warn("pipeline: remove orphaned csv", zap.Error(rmErr))
		}
		return StatusFailed, eris.Wrapf(err, "pipeline: save %s", r.NewName)
	}
	p.upload(ctx, p.keys.CSV(r), csvPath, log)

	log.Info("pipeline: report extracted",
		zap.Int("rows", len(rows)),
		zap.Int("attempts", out.Attempts),
		zap.Bool("repaired", out.Repaired),
		zap.String("csv", csvPath))
	return StatusExtracted, nil
}

// canonicalRows rewrites state names to their canonical spelling. Names
// with no canonical match are kept title-cased and logged.
func canonicalRows(rows []model.Row, log *zap.Logger) []model.Row {
	out := model.CloneRows(rows)
	for i := range out {
		name, ok := states.Canonicalize(out[i].State)
		if name == "" {
			continue
		}
		if !ok {
			log.Warn("pipeline: unknown state name", zap.String("state", out[i].State), zap.Int("row", i))
		}
		out[i].State = name
	}
	return out
}

// finalRows is the single row list written to both the CSV and the
// database: rows without a state are dropped, the first row of each state
// wins, cells that never parsed are cleared and Total goes last.
func finalRows(rows []model.Row, log *zap.Logger) []model.Row {
	seen := make(map[string]bool, len(rows))
	out := make([]model.Row, 0, len(rows))
	for i, r := range rows {
		state := strings.TrimSpace(r.State)
		if state == "" {
			if !r.Empty() {
				log.Warn("pipeline: dropping row without state", zap.Int("row", i))
			}
			continue
		}
		if seen[state] {
			log.Warn("pipeline: dropping duplicate state row", zap.String("state", state), zap.Int("row", i))
			continue
		}
		seen[state] = true
		r.State = state
		for _, c := range []struct {
			name string
			cell *model.Count
		}{
			{"Suspected", &r.Suspected}, {"Confirmed", &r.Confirmed}, {"Probable", &r.Probable},
			{"HCW", &r.HCW}, {"Deaths", &r.Deaths},
		} {
			if c.cell.Unparseable() {
				log.Warn("pipeline: clearing non-numeric cell",
					zap.String("state", state), zap.String("field", c.name), zap.String("value", c.cell.Raw))
				*c.cell = model.Count{}
			}
		}
		out = append(out, r)
	}
	return export.TotalLast(out)
}
