// Package saga runs multi-step backend workflows with compensation. Each
// step performs a forward action and may register a compensator; when a later
// step fails, the compensators of every completed step run in reverse order.
// Compensation is best-effort: failures are logged and swallowed, never
// retried.
package saga

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gestri/gestri-bff/internal/observability"
)

// Compensator undoes the side effect of a completed step.
type Compensator struct {
	Name string
	Run  func(ctx context.Context) error
}

// Step is a single forward action. Run returns the compensator to register
// for this step, or nil when the step created nothing that needs undoing.
type Step struct {
	Name string
	Run  func(ctx context.Context) (*Compensator, error)
}

// Runner executes step lists for a named workflow.
type Runner struct {
	workflow string
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewRunner creates a runner for the named workflow.
func NewRunner(workflow string, logger *zap.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{workflow: workflow, logger: logger, metrics: metrics}
}

// Execute runs the steps in order. On the first failure it compensates all
// completed steps in reverse order and returns the step's error unchanged.
func (r *Runner) Execute(ctx context.Context, steps []Step) error {
	runID := uuid.NewString()
	ctx, span := observability.StartSpan(ctx, "saga."+r.workflow,
		observability.AttrWorkflow.String(r.workflow))

	if r.metrics != nil {
		r.metrics.RecordSagaStart(r.workflow)
	}

	var compensators []*Compensator

	for _, step := range steps {
		comp, err := r.runStep(ctx, step)
		if err != nil {
			r.logger.Warn("saga step failed, compensating",
				zap.String("workflow", r.workflow),
				zap.String("run_id", runID),
				zap.String("step", step.Name),
				zap.Int("completed_steps", len(compensators)),
				zap.Error(err),
			)
			r.compensate(ctx, runID, compensators)
			if r.metrics != nil {
				r.metrics.RecordSagaCompletion(r.workflow, "compensated")
			}
			observability.EndSpanWithError(span, err)
			return err
		}
		if comp != nil {
			compensators = append(compensators, comp)
		}
	}

	if r.metrics != nil {
		r.metrics.RecordSagaCompletion(r.workflow, "completed")
	}
	span.End()
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step) (*Compensator, error) {
	ctx, span := observability.StartSpan(ctx, "saga.step."+step.Name,
		observability.AttrSagaStep.String(step.Name))
	start := time.Now()

	comp, err := step.Run(ctx)

	if r.metrics != nil {
		r.metrics.RecordSagaStepDuration(r.workflow, step.Name, time.Since(start))
	}
	observability.EndSpanWithError(span, err)
	return comp, err
}

// compensate runs the registered compensators newest-first. Errors are
// logged and swallowed so every compensator gets its chance to run.
func (r *Runner) compensate(ctx context.Context, runID string, compensators []*Compensator) {
	for i := len(compensators) - 1; i >= 0; i-- {
		comp := compensators[i]
		outcome := "ok"
		if err := comp.Run(ctx); err != nil {
			outcome = "failed"
			r.logger.Warn("compensation failed",
				zap.String("workflow", r.workflow),
				zap.String("run_id", runID),
				zap.String("compensator", comp.Name),
				zap.Error(err),
			)
		} else {
			r.logger.Info("compensated",
				zap.String("workflow", r.workflow),
				zap.String("run_id", runID),
				zap.String("compensator", comp.Name),
			)
		}
		if r.metrics != nil {
			r.metrics.RecordSagaCompensation(r.workflow, comp.Name, outcome)
		}
	}
}
