package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cadenzo/cadenzo/pkg/eventbus"
	"github.com/cadenzo/cadenzo/pkg/lock"
	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/otelhelper"
	"github.com/cadenzo/cadenzo/pkg/persistence"
	"github.com/cadenzo/cadenzo/pkg/tasks"
)

const (
	// instanceLockTTL bounds how long a stuck transition can hold an
	// instance's lock.
	instanceLockTTL = 30 * time.Second

	// maxCascadeDepth converts a misconfigured automatic-transition cycle
	// into an error instead of an unbounded loop.
	maxCascadeDepth = 25
)

// InstanceService is the transition engine. All instance mutation goes through
// it, serialized per instance by an advisory lock.
type InstanceService struct {
	persistence persistence.Persistence
	tasks       *tasks.Engine
	locks       lock.InstanceLock
	events      eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

type InstanceServiceOption func(*InstanceService)

func WithLock(locks lock.InstanceLock) InstanceServiceOption {
	return func(s *InstanceService) { s.locks = locks }
}

func WithEvents(events eventbus.EventPublisher) InstanceServiceOption {
	return func(s *InstanceService) { s.events = events }
}

func WithTracer(tracer trace.Tracer) InstanceServiceOption {
	return func(s *InstanceService) { s.tracer = tracer }
}

func WithClock(now func() time.Time) InstanceServiceOption {
	return func(s *InstanceService) { s.now = now }
}

func NewInstanceService(p persistence.Persistence, taskEngine *tasks.Engine, logger *slog.Logger, opts ...InstanceServiceOption) *InstanceService {
	service := &InstanceService{
		persistence: p,
		tasks:       taskEngine,
		locks:       lock.NewLocalLock(),
		logger:      logger.With("module", "instance_service"),
		tracer:      noop.NewTracerProvider().Tracer("services"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// StartInstance resolves the highest-versioned non-archived definition that
// matches the workflow name and is compatible with the caller's client
// version, then creates an instance at its initial state. Initial data, when
// supplied, is written both as the merged instance data and as a snapshot
// against the initial state.
func (s *InstanceService) StartInstance(ctx context.Context, workflowName, clientVersion string, initialData models.Document) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "instance.start",
		attribute.String(otelhelper.DefinitionNameKey, workflowName),
	)
	defer span.End()

	definition, err := s.resolveDefinition(ctx, workflowName, clientVersion)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	initial := definition.InitialState()
	if initial == nil {
		err = fmt.Errorf("definition %s: %w", definition.ID, ErrNoInitialState)
		otelhelper.SetError(span, err)

		return nil, err
	}

	now := s.now().UTC()
	instance := &models.WorkflowInstance{
		ID:                   uuid.NewString(),
		WorkflowDefinitionID: definition.ID,
		CurrentStateID:       initial.ID,
		Status:               models.InstanceStatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.persistence.Instances().Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	if len(initialData) > 0 {
		if err := s.appendStateData(ctx, instance.ID, initial.ID, initialData, now); err != nil {
			return nil, err
		}

		if _, err := s.mergeInstanceData(ctx, instance.ID, initialData, now); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "Started workflow instance",
		"instance_id", instance.ID, "definition_id", definition.ID, "definition_version", definition.Version)

	s.publish(ctx, instance.ID, eventbus.InstanceStarted{
		BaseEvent:            s.baseEvent(eventbus.InstanceStartedEvent, instance.ID),
		WorkflowDefinitionID: definition.ID,
		InitialStateID:       initial.ID,
	})

	return instance, nil
}

// ExecuteTransition moves an instance along one transition, then cascades any
// automatic transitions that match from each newly landed state. The whole
// sequence runs under the instance's advisory lock.
func (s *InstanceService) ExecuteTransition(ctx context.Context, instanceID, transitionID string, data models.Document) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "instance.execute_transition",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.TransitionIDKey, transitionID),
	)
	defer span.End()

	var result *models.WorkflowInstance

	err := s.locks.Synchronized(ctx, "cadenzo:instance:"+instanceID, instanceLockTTL, func(ctx context.Context) error {
		instance, err := s.executeWithCascade(ctx, instanceID, transitionID, data)
		if err != nil {
			return err
		}

		result = instance

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return result, nil
}

// CompleteTask writes the result onto a pending human task. It does not drive
// a transition; callers follow up with ExecuteTransition. The owning instance
// is returned so callers can re-evaluate it.
func (s *InstanceService) CompleteTask(ctx context.Context, taskID, result string) (*models.WorkflowInstance, error) {
	task, err := s.persistence.HumanTasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.IsPending() {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrTaskAlreadyCompleted)
	}

	now := s.now().UTC()
	task.Result = result
	task.CompletedAt = &now

	if err := s.persistence.HumanTasks().Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}

	s.logger.InfoContext(ctx, "Completed human task", "task_id", taskID, "instance_id", task.WorkflowInstanceID)

	return s.persistence.Instances().GetByID(ctx, task.WorkflowInstanceID)
}

func (s *InstanceService) executeWithCascade(ctx context.Context, instanceID, transitionID string, data models.Document) (*models.WorkflowInstance, error) {
	instance, merged, err := s.runTransition(ctx, instanceID, transitionID, data)
	if err != nil {
		return nil, err
	}

	for depth := 0; instance.IsActive(); depth++ {
		next, err := s.matchingAutomaticTransition(ctx, instance.CurrentStateID, merged)
		if err != nil {
			return nil, err
		}

		if next == nil {
			break
		}

		if depth >= maxCascadeDepth {
			return nil, fmt.Errorf("instance %s: %w", instanceID, ErrCascadeLimitExceeded)
		}

		// Cascaded hops re-supply the merged document so every landed state
		// gets its own snapshot in the history.
		instance, merged, err = s.runTransition(ctx, instanceID, next.ID, merged)
		if err != nil {
			return nil, err
		}
	}

	return instance, nil
}

// runTransition performs a single transition end to end: applicability and
// guard checks, data snapshot and merge, ordered task execution, the state
// move, and Finish/Subflow handling.
func (s *InstanceService) runTransition(ctx context.Context, instanceID, transitionID string, data models.Document) (*models.WorkflowInstance, models.Document, error) {
	instance, err := s.persistence.Instances().GetByIDWithDetails(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	transition, err := s.persistence.Transitions().GetByID(ctx, transitionID)
	if err != nil {
		return nil, nil, err
	}

	if transition.FromStateID != instance.CurrentStateID {
		return nil, nil, fmt.Errorf("transition %s expects state %s, instance %s is at %s: %w",
			transition.ID, transition.FromStateID, instance.ID, instance.CurrentStateID, ErrTransitionNotApplicable)
	}

	now := s.now().UTC()

	// Snapshot the supplied data against the state being entered, before the
	// guards run; the snapshot history records intent, not outcome.
	if len(data) > 0 {
		if err := s.appendStateData(ctx, instance.ID, transition.ToStateID, data, now); err != nil {
			return nil, nil, err
		}
	}

	merged, err := s.mergeInstanceData(ctx, instance.ID, data, now)
	if err != nil {
		return nil, nil, err
	}

	if transition.TriggerType == models.TriggerTypeManual && transition.ToStateID == instance.CurrentStateID {
		return nil, nil, fmt.Errorf("transition %s: %w", transition.ID, ErrManualTransitionReturns)
	}

	if transition.TriggerType == models.TriggerTypeAutomatic {
		matched, err := s.evaluateCondition(transition, merged)
		if err != nil {
			return nil, nil, err
		}

		if !matched {
			return nil, nil, fmt.Errorf("transition %s: %w", transition.ID, ErrConditionNotMet)
		}
	}

	targetState, err := s.stateByID(ctx, instance, transition.ToStateID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.runTransitionTasks(ctx, instance, transition, merged); err != nil {
		return nil, nil, err
	}

	if err := s.runStateTasks(ctx, instance, instance.CurrentStateID, merged, models.TaskTriggerOnExit, models.TaskTriggerBoth); err != nil {
		return nil, nil, err
	}

	fromStateID := instance.CurrentStateID
	instance.CurrentStateID = transition.ToStateID
	instance.UpdatedAt = now

	if err := s.runStateTasks(ctx, instance, targetState.ID, merged, models.TaskTriggerOnEntry, models.TaskTriggerBoth); err != nil {
		return nil, nil, err
	}

	completed := false

	switch targetState.StateType {
	case models.StateTypeFinish:
		instance.Status = models.InstanceStatusCompleted
		instance.CompletedAt = &now
		completed = true
	case models.StateTypeSubflow:
		if err := s.handleSubflowState(ctx, instance, targetState, merged); err != nil {
			return nil, nil, err
		}
	}

	if err := s.persistence.Instances().Update(ctx, instance); err != nil {
		return nil, nil, fmt.Errorf("failed to persist instance %s: %w", instance.ID, err)
	}

	s.logger.InfoContext(ctx, "Executed transition",
		"instance_id", instance.ID, "transition_id", transition.ID,
		"from_state_id", fromStateID, "to_state_id", targetState.ID)

	s.publish(ctx, instance.ID, eventbus.TransitionExecuted{
		BaseEvent:    s.baseEvent(eventbus.TransitionExecutedEvent, instance.ID),
		TransitionID: transition.ID,
		FromStateID:  fromStateID,
		ToStateID:    targetState.ID,
	})

	if completed {
		s.publish(ctx, instance.ID, eventbus.InstanceCompleted{
			BaseEvent:            s.baseEvent(eventbus.InstanceCompletedEvent, instance.ID),
			WorkflowDefinitionID: instance.WorkflowDefinitionID,
			FinalStateID:         targetState.ID,
			CompletedAt:          now,
		})

		if err := s.handleParentWorkflow(ctx, instance, merged); err != nil {
			return nil, nil, err
		}
	}

	return instance, merged, nil
}

// matchingAutomaticTransition returns the first automatic transition out of
// stateID whose condition matches the merged data, in stable listing order.
// Unparseable trigger configs are logged and skipped so one bad transition
// cannot wedge an instance.
func (s *InstanceService) matchingAutomaticTransition(ctx context.Context, stateID string, merged models.Document) (*models.WorkflowTransition, error) {
	transitions, err := s.persistence.Transitions().ListByFromState(ctx, stateID)
	if err != nil {
		return nil, err
	}

	for _, transition := range transitions {
		if transition.TriggerType != models.TriggerTypeAutomatic {
			continue
		}

		matched, err := s.evaluateCondition(transition, merged)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping automatic transition with invalid condition",
				"transition_id", transition.ID, "error", err)

			continue
		}

		if matched {
			return transition, nil
		}
	}

	return nil, nil
}

func (s *InstanceService) evaluateCondition(transition *models.WorkflowTransition, merged models.Document) (bool, error) {
	condition, err := transition.Condition()
	if err != nil {
		return false, fmt.Errorf("transition %s: %w", transition.ID, err)
	}

	return condition.Evaluate(merged)
}

func (s *InstanceService) runTransitionTasks(ctx context.Context, instance *models.WorkflowInstance, transition *models.WorkflowTransition, merged models.Document) error {
	assignments, err := s.persistence.TaskAssignments().ListByTransition(ctx, transition.ID)
	if err != nil {
		return err
	}

	for _, assignment := range assignments {
		if assignment.Trigger != models.TaskTriggerOnExecute {
			continue
		}

		if err := s.runAssignedTask(ctx, instance, assignment, instance.CurrentStateID, merged); err != nil {
			return err
		}
	}

	return nil
}

func (s *InstanceService) runStateTasks(ctx context.Context, instance *models.WorkflowInstance, stateID string, merged models.Document, triggers ...models.TaskTrigger) error {
	assignments, err := s.persistence.TaskAssignments().ListByState(ctx, stateID)
	if err != nil {
		return err
	}

	for _, assignment := range assignments {
		matches := false

		for _, trigger := range triggers {
			if assignment.Trigger == trigger {
				matches = true

				break
			}
		}

		if !matches {
			continue
		}

		if err := s.runAssignedTask(ctx, instance, assignment, stateID, merged); err != nil {
			return err
		}
	}

	return nil
}

func (s *InstanceService) runAssignedTask(ctx context.Context, instance *models.WorkflowInstance, assignment *models.WorkflowTaskAssignment, stateID string, merged models.Document) error {
	task, err := s.persistence.Tasks().GetByID(ctx, assignment.TaskID)
	if err != nil {
		return err
	}

	_, err = s.tasks.ExecuteTask(ctx, task, instance, stateID, merged)

	return err
}

func (s *InstanceService) resolveDefinition(ctx context.Context, workflowName, clientVersion string) (*models.WorkflowDefinition, error) {
	definitions, err := s.CompatibleDefinitions(ctx, clientVersion)
	if err != nil {
		return nil, err
	}

	var best *models.WorkflowDefinition

	for _, definition := range definitions {
		if definition.Name != workflowName {
			continue
		}

		// Ambiguous name matches resolve to the highest semantic version.
		if best == nil || models.CompareVersions(definition.SemanticVersion(), best.SemanticVersion()) > 0 {
			best = definition
		}
	}

	if best == nil {
		return nil, fmt.Errorf("workflow %q for client version %q: %w", workflowName, clientVersion, ErrNoCompatibleDefinition)
	}

	return best, nil
}

// CompatibleDefinitions returns all non-archived definitions whose client
// version selector accepts the caller's version.
func (s *InstanceService) CompatibleDefinitions(ctx context.Context, clientVersion string) ([]*models.WorkflowDefinition, error) {
	definitions, err := s.persistence.Definitions().ListActive(ctx)
	if err != nil {
		return nil, err
	}

	compatible := make([]*models.WorkflowDefinition, 0, len(definitions))

	for _, definition := range definitions {
		if definition.IsClientVersionCompatible(clientVersion) {
			compatible = append(compatible, definition)
		}
	}

	return compatible, nil
}

func (s *InstanceService) mergeInstanceData(ctx context.Context, instanceID string, data models.Document, now time.Time) (models.Document, error) {
	record, err := s.persistence.InstanceData().GetByInstance(ctx, instanceID)

	switch {
	case errors.Is(err, persistence.ErrInstanceDataNotFound):
		if len(data) == 0 {
			return models.Document{}, nil
		}

		record = &models.WorkflowInstanceData{
			ID:                 uuid.NewString(),
			WorkflowInstanceID: instanceID,
			CreatedAt:          now,
		}
		record.MergeData(data, now)

		if err := s.persistence.InstanceData().Create(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to create instance data: %w", err)
		}
	case err != nil:
		return nil, err
	case len(data) > 0:
		record.MergeData(data, now)

		if err := s.persistence.InstanceData().Update(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to update instance data: %w", err)
		}
	}

	return record.Data.Clone(), nil
}

func (s *InstanceService) appendStateData(ctx context.Context, instanceID, stateID string, data models.Document, now time.Time) error {
	snapshot := &models.WorkflowStateData{
		ID:                 uuid.NewString(),
		WorkflowInstanceID: instanceID,
		StateID:            stateID,
		Data:               data.Clone(),
		EnteredAt:          now,
		CreatedAt:          now,
	}

	if err := s.persistence.StateData().Create(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to append state data: %w", err)
	}

	return nil
}

func (s *InstanceService) stateByID(ctx context.Context, instance *models.WorkflowInstance, stateID string) (*models.WorkflowState, error) {
	if instance.Definition != nil {
		for _, state := range instance.Definition.States {
			if state.ID == stateID {
				return state, nil
			}
		}
	}

	return s.persistence.States().GetByID(ctx, stateID)
}

func (s *InstanceService) baseEvent(eventType eventbus.EventType, instanceID string) eventbus.BaseEvent {
	return eventbus.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  s.now().UTC(),
		InstanceID: instanceID,
	}
}

func (s *InstanceService) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.events == nil {
		return
	}

	if err := s.events.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish lifecycle event",
			"event_type", string(event.GetType()), "error", err)
	}
}
