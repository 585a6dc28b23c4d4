// Package tasks executes workflow tasks: it resolves placeholders in the task
// config, dispatches the side effect through the right connector, and records
// one audit entry per attempt.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cadenzo/cadenzo/pkg/dispatch"
	"github.com/cadenzo/cadenzo/pkg/eventbus"
	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/otelhelper"
	"github.com/cadenzo/cadenzo/pkg/persistence"
)

type Engine struct {
	persistence persistence.Persistence
	connectors  dispatch.Connectors
	events      eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

type EngineOption func(*Engine)

func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = tracer }
}

// WithEvents publishes a task.failed event for every failed dispatch.
func WithEvents(events eventbus.EventPublisher) EngineOption {
	return func(e *Engine) { e.events = events }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(p persistence.Persistence, connectors dispatch.Connectors, logger *slog.Logger, opts ...EngineOption) *Engine {
	engine := &Engine{
		persistence: p,
		connectors:  connectors,
		logger:      logger.With("module", "tasks"),
		tracer:      noop.NewTracerProvider().Tracer("tasks"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// ExecuteTask runs one task against an instance. The data document is the
// instance's merged data at dispatch time; stateID is the state the task runs
// for and keys the audit record. A dispatch failure is recorded and then
// returned, so the caller aborts the surrounding transition.
func (e *Engine) ExecuteTask(ctx context.Context, task *models.WorkflowTask, instance *models.WorkflowInstance, stateID string, data models.Document) (*dispatch.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "tasks.execute",
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.TaskIDKey, task.ID),
		attribute.String(otelhelper.TaskTypeKey, string(task.Type)),
	)
	defer span.End()

	startedAt := e.now().UTC()

	record := &models.WorkflowInstanceTask{
		ID:                 uuid.NewString(),
		WorkflowInstanceID: instance.ID,
		WorkflowTaskID:     task.ID,
		StateID:            stateID,
		TaskName:           task.Name,
		TaskType:           task.Type,
		Status:             models.TaskStatusInProgress,
		StartedAt:          startedAt,
		CreatedAt:          startedAt,
	}

	if err := e.persistence.InstanceTasks().Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record task execution: %w", err)
	}

	result, err := e.dispatchTask(ctx, task, instance, stateID, data)

	completedAt := e.now().UTC()
	record.CompletedAt = &completedAt

	if err != nil {
		record.Status = models.TaskStatusFailed
		record.Error = err.Error()

		if updateErr := e.persistence.InstanceTasks().Update(ctx, record); updateErr != nil {
			e.logger.ErrorContext(ctx, "Failed to persist task failure", "task_id", task.ID, "error", updateErr)
		}

		e.publishFailure(ctx, task, instance, err)
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("task %s failed: %w", task.Name, err)
	}

	record.Status = models.TaskStatusCompleted
	if result != nil {
		if raw, marshalErr := json.Marshal(result); marshalErr == nil {
			record.Result = string(raw)
		}
	}

	if updateErr := e.persistence.InstanceTasks().Update(ctx, record); updateErr != nil {
		e.logger.ErrorContext(ctx, "Failed to persist task result", "task_id", task.ID, "error", updateErr)
	}

	return result, nil
}

// ExecuteDetached runs a task outside any workflow instance, as for a
// directly invoked function. There is no audit record and no instance data;
// placeholders resolve against the supplied document only. Human tasks need
// an owning instance and are rejected.
func (e *Engine) ExecuteDetached(ctx context.Context, task *models.WorkflowTask, data models.Document) (*dispatch.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "tasks.execute_detached",
		attribute.String(otelhelper.TaskIDKey, task.ID),
		attribute.String(otelhelper.TaskTypeKey, string(task.Type)),
	)
	defer span.End()

	if task.Type == models.TaskTypeHuman {
		err := fmt.Errorf("task %s: human tasks cannot run outside a workflow instance", task.ID)
		otelhelper.SetError(span, err)

		return nil, err
	}

	config, err := ResolvePlaceholders(task.Config, data, "", e.now())
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	resolved := *task
	resolved.Config = config

	result, err := e.dispatchResolved(ctx, &resolved)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("task %s failed: %w", task.Name, err)
	}

	return result, nil
}

func (e *Engine) dispatchTask(ctx context.Context, task *models.WorkflowTask, instance *models.WorkflowInstance, stateID string, data models.Document) (*dispatch.Result, error) {
	config, err := ResolvePlaceholders(task.Config, data, instance.ID, e.now())
	if err != nil {
		return nil, err
	}

	resolved := *task
	resolved.Config = config

	if task.Type == models.TaskTypeHuman {
		return nil, e.createHumanTask(ctx, &resolved, instance, stateID)
	}

	return e.dispatchResolved(ctx, &resolved)
}

func (e *Engine) dispatchResolved(ctx context.Context, task *models.WorkflowTask) (*dispatch.Result, error) {
	switch task.Type {
	case models.TaskTypeBinding:
		return e.invokeBinding(ctx, task)
	case models.TaskTypeService:
		return e.invokeService(ctx, task)
	case models.TaskTypePubSub:
		return e.publishToTopic(ctx, task)
	case models.TaskTypeHTTP:
		return e.callHTTP(ctx, task)
	case models.TaskTypeHTTPEndpoint:
		return e.callEndpoint(ctx, task)
	default:
		return nil, fmt.Errorf("unknown task type %q", task.Type)
	}
}

// createHumanTask records a pending work item and returns without a side
// effect; completion happens out-of-band through CompleteTask.
func (e *Engine) createHumanTask(ctx context.Context, task *models.WorkflowTask, instance *models.WorkflowInstance, stateID string) error {
	config, err := task.HumanConfig()
	if err != nil {
		return err
	}

	name := config.Title
	if name == "" {
		name = task.Name
	}

	humanTask := &models.WorkflowHumanTask{
		ID:                 uuid.NewString(),
		WorkflowInstanceID: instance.ID,
		StateID:            stateID,
		Name:               name,
		Description:        task.Description,
		Assignee:           config.AssignedTo,
		Form:               config.Form,
		Instructions:       config.Instructions,
		AssignedAt:         e.now().UTC(),
	}

	if config.DueDate != "" {
		due, parseErr := time.Parse(time.RFC3339, config.DueDate)
		if parseErr != nil {
			return fmt.Errorf("invalid due date %q: %w", config.DueDate, parseErr)
		}

		humanTask.DueAt = &due
	}

	if err := e.persistence.HumanTasks().Create(ctx, humanTask); err != nil {
		return fmt.Errorf("failed to create human task: %w", err)
	}

	e.logger.InfoContext(ctx, "Created human task",
		"human_task_id", humanTask.ID, "instance_id", instance.ID, "assignee", humanTask.Assignee)

	return nil
}

func (e *Engine) invokeBinding(ctx context.Context, task *models.WorkflowTask) (*dispatch.Result, error) {
	config, err := task.BindingConfig()
	if err != nil {
		return nil, err
	}

	payload, err := marshalData(config.Data)
	if err != nil {
		return nil, err
	}

	return e.connectors.Bindings.InvokeBinding(ctx, config.BindingName, config.Operation, config.Metadata, payload)
}

func (e *Engine) invokeService(ctx context.Context, task *models.WorkflowTask) (*dispatch.Result, error) {
	config, err := task.ServiceConfig()
	if err != nil {
		return nil, err
	}

	payload, err := marshalData(config.Data)
	if err != nil {
		return nil, err
	}

	return e.connectors.Services.InvokeService(ctx, config.AppID, config.Verb, config.Method, payload)
}

func (e *Engine) publishToTopic(ctx context.Context, task *models.WorkflowTask) (*dispatch.Result, error) {
	config, err := task.PubSubConfig()
	if err != nil {
		return nil, err
	}

	payload, err := marshalData(config.Data)
	if err != nil {
		return nil, err
	}

	if err := e.connectors.Topics.PublishTopic(ctx, config.Topic, config.Metadata, payload); err != nil {
		return nil, err
	}

	return &dispatch.Result{Metadata: map[string]any{"topic": config.Topic}}, nil
}

func (e *Engine) callHTTP(ctx context.Context, task *models.WorkflowTask) (*dispatch.Result, error) {
	config, err := task.HTTPConfig()
	if err != nil {
		return nil, err
	}

	payload, err := marshalData(config.Data)
	if err != nil {
		return nil, err
	}

	return e.connectors.HTTP.Call(ctx, config.Method, config.URL, config.Headers, payload)
}

func (e *Engine) callEndpoint(ctx context.Context, task *models.WorkflowTask) (*dispatch.Result, error) {
	config, err := task.EndpointConfig()
	if err != nil {
		return nil, err
	}

	payload, err := marshalData(config.Data)
	if err != nil {
		return nil, err
	}

	return e.connectors.Endpoints.CallEndpoint(ctx, config.EndpointName, config.Method, config.Path, payload)
}

func (e *Engine) publishFailure(ctx context.Context, task *models.WorkflowTask, instance *models.WorkflowInstance, taskErr error) {
	if e.events == nil {
		return
	}

	event := eventbus.TaskFailed{
		BaseEvent: eventbus.BaseEvent{
			ID:         uuid.NewString(),
			Type:       eventbus.TaskFailedEvent,
			Timestamp:  e.now().UTC(),
			InstanceID: instance.ID,
		},
		TaskID:   task.ID,
		TaskType: string(task.Type),
		Error:    taskErr.Error(),
	}

	if err := e.events.Publish(ctx, instance.ID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish task failure event", "task_id", task.ID, "error", err)
	}
}

func marshalData(data any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize task payload: %w", err)
	}

	return raw, nil
}
