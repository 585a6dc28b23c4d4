// Package processor runs the background trigger sweep: a fixed-interval loop
// that advances active instances along automatic and scheduled transitions
// without any caller involvement.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
	"github.com/cadenzo/cadenzo/pkg/services"
)

const DefaultInterval = 5 * time.Second

// TriggerProcessor owns the sweep loop. One broken instance or transition
// never aborts a sweep; errors are logged and the pass moves on.
type TriggerProcessor struct {
	persistence persistence.Persistence
	service     *services.InstanceService
	logger      *slog.Logger
	interval    time.Duration
	now         func() time.Time
}

type Option func(*TriggerProcessor)

func WithInterval(interval time.Duration) Option {
	return func(p *TriggerProcessor) { p.interval = interval }
}

func WithClock(now func() time.Time) Option {
	return func(p *TriggerProcessor) { p.now = now }
}

func New(p persistence.Persistence, service *services.InstanceService, logger *slog.Logger, opts ...Option) *TriggerProcessor {
	processor := &TriggerProcessor{
		persistence: p,
		service:     service,
		logger:      logger.With("module", "processor"),
		interval:    DefaultInterval,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(processor)
	}

	return processor
}

// Run loops until ctx is canceled, observing cancellation both during the
// work pass and during the inter-pass delay.
func (p *TriggerProcessor) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Trigger processor started", "interval", p.interval.String())

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		p.Sweep(ctx)

		timer.Reset(p.interval)

		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Trigger processor stopping")

			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Sweep evaluates every active instance once.
func (p *TriggerProcessor) Sweep(ctx context.Context) {
	instances, err := p.persistence.Instances().ListActive(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list active instances", "error", err)

		return
	}

	for _, instance := range instances {
		if ctx.Err() != nil {
			return
		}

		if err := p.evaluateInstance(ctx, instance); err != nil {
			p.logger.ErrorContext(ctx, "Failed to evaluate instance",
				"instance_id", instance.ID, "error", err)
		}
	}
}

func (p *TriggerProcessor) evaluateInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	transitions, err := p.persistence.Transitions().ListByFromState(ctx, instance.CurrentStateID)
	if err != nil {
		return err
	}

	for _, transition := range transitions {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fired := false

		switch transition.TriggerType {
		case models.TriggerTypeAutomatic:
			fired = p.tryAutomatic(ctx, instance, transition)
		case models.TriggerTypeScheduled:
			fired = p.tryScheduled(ctx, instance, transition)
		}

		// The instance moved; its remaining transitions no longer apply.
		if fired {
			return nil
		}
	}

	return nil
}

// tryAutomatic evaluates the transition's condition against the latest state
// data snapshot for the instance's current state. Instances without a
// snapshot at the current state are skipped.
func (p *TriggerProcessor) tryAutomatic(ctx context.Context, instance *models.WorkflowInstance, transition *models.WorkflowTransition) bool {
	stateData, err := p.persistence.StateData().LatestByInstanceAndState(ctx, instance.ID, instance.CurrentStateID)
	if errors.Is(err, persistence.ErrStateDataNotFound) {
		return false
	}

	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to load state data",
			"instance_id", instance.ID, "transition_id", transition.ID, "error", err)

		return false
	}

	condition, err := transition.Condition()
	if err != nil {
		p.logger.WarnContext(ctx, "Skipping automatic transition with invalid condition",
			"transition_id", transition.ID, "error", err)

		return false
	}

	matched, err := condition.Evaluate(stateData.Data)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to evaluate condition",
			"transition_id", transition.ID, "error", err)

		return false
	}

	if !matched {
		return false
	}

	return p.execute(ctx, instance, transition)
}

// tryScheduled fires the transition once the schedule is due relative to the
// instance's UpdatedAt. Malformed schedules are logged and skipped.
func (p *TriggerProcessor) tryScheduled(ctx context.Context, instance *models.WorkflowInstance, transition *models.WorkflowTransition) bool {
	schedule, err := transition.Schedule()
	if err != nil {
		p.logger.WarnContext(ctx, "Skipping scheduled transition with invalid config",
			"transition_id", transition.ID, "error", err)

		return false
	}

	due, err := schedule.Due(instance.UpdatedAt, p.now())
	if err != nil {
		p.logger.WarnContext(ctx, "Skipping scheduled transition",
			"transition_id", transition.ID, "error", err)

		return false
	}

	if !due {
		return false
	}

	return p.execute(ctx, instance, transition)
}

func (p *TriggerProcessor) execute(ctx context.Context, instance *models.WorkflowInstance, transition *models.WorkflowTransition) bool {
	p.logger.InfoContext(ctx, "Firing transition",
		"instance_id", instance.ID, "transition_id", transition.ID,
		"trigger_type", string(transition.TriggerType))

	if _, err := p.service.ExecuteTransition(ctx, instance.ID, transition.ID, nil); err != nil {
		p.logger.ErrorContext(ctx, "Failed to execute transition",
			"instance_id", instance.ID, "transition_id", transition.ID, "error", err)

		return false
	}

	return true
}
