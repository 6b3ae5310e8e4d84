package pipeline

import (
	"context"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// Stage selects what a batch does with each report.
type Stage string

const (
	StageEnhance Stage = "enhance"
	StageExtract Stage = "extract"
	StageAll     Stage = "all"
)

// Summary counts the statuses of a batch.
type Summary struct {
	mu     sync.Mutex
	Counts map[Status]int
}

func (s *Summary) add(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Counts == nil {
		s.Counts = make(map[Status]int)
	}
	s.Counts[st]++
}

// Get returns the count for st.
func (s *Summary) Get(st Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Counts[st]
}

// Fields renders the counts as log fields.
func (s *Summary) Fields() []zap.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := make([]zap.Field, 0, len(s.Counts))
	for st, n := range s.Counts {
		fields = append(fields, zap.Int(string(st), n))
	}
	return fields
}

// lockKey names the per-report lock.
func lockKey(r model.Report) string {
	return "report:" + strconv.FormatInt(r.ID, 10)
}

// ProcessReport enhances then extracts one report while holding its lock.
func (p *Pipeline) ProcessReport(ctx context.Context, r model.Report) (Status, error) {
	return p.process(ctx, StageAll, r)
}

func (p *Pipeline) process(ctx context.Context, stage Stage, r model.Report) (Status, error) {
	log := p.reportLogger(r)
	release, ok, err := p.locker.Acquire(ctx, lockKey(r))
	if err != nil {
		return StatusFailed, eris.Wrapf(err, "pipeline: lock %s", r.NewName)
	}
	if !ok {
		log.Info("pipeline: report locked by another worker, skipping")
		return StatusLocked, nil
	}
	defer release()

	// Statuses may have moved since the batch was listed.
	fresh, err := p.store.GetReport(ctx, r.ID)
	if err != nil {
		return StatusFailed, eris.Wrapf(err, "pipeline: reload %s", r.NewName)
	}
	r = *fresh

	status := StatusSkipped
	if stage == StageEnhance || stage == StageAll {
		status, err = p.EnhanceReport(ctx, r)
		if err != nil || stage == StageEnhance || status == StatusIncompatible {
			return status, err
		}
		if fresh, err = p.store.GetReport(ctx, r.ID); err != nil {
			return StatusFailed, eris.Wrapf(err, "pipeline: reload %s", r.NewName)
		}
		r = *fresh
	}
	return p.ExtractReport(ctx, r)
}

// Run processes reports through every stage.
func (p *Pipeline) Run(ctx context.Context, reports []model.Report) (*Summary, error) {
	return p.RunStage(ctx, StageAll, reports, nil)
}

// RunStage processes reports through stage with up to Config.Concurrency
// reports in flight. A failing report is logged and counted; only context
// cancellation stops the batch. onDone, when set, runs after each report.
func (p *Pipeline) RunStage(ctx context.Context, stage Stage, reports []model.Report, onDone func(model.Report, Status)) (*Summary, error) {
	sum := &Summary{Counts: make(map[Status]int)}
	if len(reports) == 0 {
		p.logger.Info("pipeline: no reports to process", zap.String("stage", string(stage)))
		return sum, nil
	}
	p.logger.Info("pipeline: processing batch",
		zap.String("stage", string(stage)),
		zap.Int("reports", len(reports)),
		zap.Int("concurrency", p.cfg.Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, r := range reports {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			status, err := p.process(gctx, stage, r)
			if err != nil {
				status = StatusFailed
				p.reportLogger(r).Error("pipeline: report failed", zap.Error(err))
			}
			sum.add(status)
			if onDone != nil {
				onDone(r, status)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("pipeline: batch complete", append([]zap.Field{zap.String("stage", string(stage))}, sum.Fields()...)...)
	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "pipeline: batch interrupted")
	}
	return sum, nil
}
