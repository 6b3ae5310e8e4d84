// Package reconcile runs two extractions per table image and decides whether
// the result can be trusted.
package reconcile

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/extract"
	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/validate"
)

// State is a step of the per-image state machine.
type State string

const (
	Extracting State = "extracting"
	Validating State = "validating"
	Comparing  State = "comparing"
	Accepted   State = "accepted"
	Retrying   State = "retrying"
	Exhausted  State = "exhausted"
)

// DefaultMaxAttempts is the attempt budget when Config leaves it unset.
const DefaultMaxAttempts = 3

// Config configures a Reconciler.
type Config struct {
	MaxAttempts int
}

// Outcome is the final decision for one image.
type Outcome struct {
	Accepted bool
	// Rows is the accepted row set in its natural order; nil unless Accepted.
	Rows     []model.Row
	Attempts int
	State    State
	// Repaired is set when both extractions broke the invariants on the last
	// attempt and the repaired copies were compared and accepted.
	Repaired bool
	// Err is the context error when reconciliation was cut short.
	Err error
}

// Reconciler is safe for concurrent use when its DiffSink is.
type Reconciler struct {
	client      extract.Client
	validator   *validate.Validator
	maxAttempts int
	diffs       DiffSink
	logger      *zap.Logger
}

// New creates a Reconciler. A nil sink discards diffs.
func New(client extract.Client, v *validate.Validator, cfg Config, diffs DiffSink, logger *zap.Logger) *Reconciler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if diffs == nil {
		diffs = discardDiffs{}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Reconciler{client: client, validator: v, maxAttempts: cfg.MaxAttempts, diffs: diffs, logger: logger}
}

// WithDiffs returns a copy of r that records disagreements to sink.
func (r *Reconciler) WithDiffs(sink DiffSink) *Reconciler {
	cp := *r
	if sink == nil {
		sink = discardDiffs{}
	}
	cp.diffs = sink
	return &cp
}

// MaxAttempts returns the attempt budget.
func (r *Reconciler) MaxAttempts() int { return r.maxAttempts }

// Reconcile extracts imagePath twice per attempt until the two results can
// be trusted or the attempts run out. Failed calls, disagreements and pairs
// of invalid results each consume one attempt.
func (r *Reconciler) Reconcile(ctx context.Context, imagePath, modelID string) Outcome {
	log := r.logger.With(zap.String("image", imagePath), zap.String("model", modelID))

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Attempts: attempt - 1, State: Exhausted, Err: err}
		}
		last := attempt == r.maxAttempts
		alog := log.With(zap.Int("attempt", attempt), zap.Int("max_attempts", r.maxAttempts))
		alog.Debug("reconcile: state", zap.String("state", string(Extracting)))

		first, second, ok := r.extractPair(ctx, imagePath, modelID, alog)
		if !ok {
			alog.Warn("reconcile: could not get two extractions, retrying")
			continue
		}

		alog.Debug("reconcile: state", zap.String("state", string(Validating)))
		rep1 := r.validator.Validate(first)
		rep2 := r.validator.Validate(second)
		logViolations(alog, 1, rep1)
		logViolations(alog, 2, rep2)

		switch {
		case rep1.Valid && !rep2.Valid:
			alog.Info("reconcile: accepted first extraction, second broke invariants")
			return accepted(first, attempt, false)
		case !rep1.Valid && rep2.Valid:
			alog.Info("reconcile: accepted second extraction, first broke invariants")
			return accepted(second, attempt, false)
		case !rep1.Valid && !rep2.Valid && !last:
			alog.Warn("reconcile: both extractions broke invariants, retrying")
			continue
		}

		repaired := !rep1.Valid
		if repaired {
			alog.Warn("reconcile: both extractions broke invariants on the last attempt, comparing repaired rows")
			first, second = rep1.Rows, rep2.Rows
		}

		alog.Debug("reconcile: state", zap.String("state", string(Comparing)))
		k1, k2 := Normalize(first), Normalize(second)
		if slices.Equal(k1, k2) {
			alog.Info("reconcile: extractions agree", zap.Int("rows", len(first)))
			return accepted(first, attempt, repaired)
		}

		d := newDiff(imagePath, attempt, r.maxAttempts, k1, k2)
		if err := r.diffs.Record(d); err != nil {
			alog.Warn("reconcile: record diff", zap.Error(err))
		}
		alog.Warn("reconcile: extractions differ", zap.Ints("rows", d.Rows()))
	}

	log.Error("reconcile: no consistent extraction, flagging for review", zap.Int("attempts", r.maxAttempts))
	return Outcome{Attempts: r.maxAttempts, State: Exhausted}
}

// extractPair makes the two calls of an attempt. The second call is skipped
// when the first fails since the attempt is spent either way.
func (r *Reconciler) extractPair(ctx context.Context, imagePath, modelID string, log *zap.Logger) (first, second []model.Row, ok bool) {
	for i := 1; i <= 2; i++ {
		res := r.client.Extract(ctx, imagePath, modelID)
		if !res.OK() {
			log.Warn("reconcile: extraction failed",
				zap.Int("call", i),
				zap.String("kind", string(res.Failure.Kind)),
				zap.String("error", res.Failure.Message))
			return nil, nil, false
		}
		if i == 1 {
			first = res.Rows
		} else {
			second = res.Rows
		}
	}
	return first, second, true
}

func accepted(rows []model.Row, attempt int, repaired bool) Outcome {
	return Outcome{
		Accepted: true,
		Rows:     model.CloneRows(rows),
		Attempts: attempt,
		State:    Accepted,
		Repaired: repaired,
	}
}

func logViolations(log *zap.Logger, call int, rep validate.Report) {
	if rep.Valid {
		return
	}
	log.Warn("reconcile: invariant violations",
		zap.Int("call", call),
		zap.Strings("violations", rep.Messages()))
}
