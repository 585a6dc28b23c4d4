package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenzo/cadenzo/pkg/dispatch"
	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence/memory"
	"github.com/cadenzo/cadenzo/pkg/tasks"
)

// stubConnectors records every dispatch and optionally fails them all.
type stubConnectors struct {
	calls []string
	fail  error
}

func (c *stubConnectors) Call(_ context.Context, method, url string, _ map[string]string, _ []byte) (*dispatch.Result, error) {
	c.calls = append(c.calls, method+" "+url)

	if c.fail != nil {
		return nil, c.fail
	}

	return &dispatch.Result{StatusCode: 200}, nil
}

func (c *stubConnectors) CallEndpoint(_ context.Context, endpoint, method, path string, _ []byte) (*dispatch.Result, error) {
	c.calls = append(c.calls, "endpoint "+endpoint+path)

	return &dispatch.Result{StatusCode: 200}, c.fail
}

func (c *stubConnectors) InvokeService(_ context.Context, appID, _, method string, _ []byte) (*dispatch.Result, error) {
	c.calls = append(c.calls, "service "+appID+"/"+method)

	return &dispatch.Result{StatusCode: 200}, c.fail
}

func (c *stubConnectors) InvokeBinding(_ context.Context, binding, operation string, _ map[string]string, _ []byte) (*dispatch.Result, error) {
	c.calls = append(c.calls, "binding "+binding+"/"+operation)

	return &dispatch.Result{StatusCode: 200}, c.fail
}

func (c *stubConnectors) PublishTopic(_ context.Context, topic string, _ map[string]string, _ []byte) error {
	c.calls = append(c.calls, "topic "+topic)

	return c.fail
}

type fixture struct {
	store      *memory.Persistence
	service    *InstanceService
	connectors *stubConnectors
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewPersistence()
	connectors := &stubConnectors{}
	engine := tasks.NewEngine(store, dispatch.Connectors{
		HTTP:      connectors,
		Endpoints: connectors,
		Services:  connectors,
		Bindings:  connectors,
		Topics:    connectors,
	}, slog.Default())

	return &fixture{
		store:      store,
		service:    NewInstanceService(store, engine, slog.Default()),
		connectors: connectors,
	}
}

// seedDefinition writes a definition with its states and transitions straight
// into the store.
func (f *fixture) seedDefinition(t *testing.T, definition *models.WorkflowDefinition) {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, f.store.Definitions().Create(ctx, definition))

	for _, state := range definition.States {
		state.WorkflowDefinitionID = definition.ID
		require.NoError(t, f.store.States().Create(ctx, state))
	}

	for _, transition := range definition.Transitions {
		transition.WorkflowDefinitionID = definition.ID
		require.NoError(t, f.store.Transitions().Create(ctx, transition))
	}
}

func automaticConfig(field, value string) models.Document {
	return models.Document{
		"condition": map[string]any{"field": field, "operator": "equals", "value": value},
	}
}

// draftReviewApproved is the canonical three-state definition used across the
// transition tests.
func draftReviewApproved() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:            "def-1",
		Name:          "document-approval",
		Version:       "1.0.0",
		ClientVersion: "*",
		States: []*models.WorkflowState{
			{ID: "draft", Name: "Draft", StateType: models.StateTypeInitial},
			{ID: "review", Name: "Review", StateType: models.StateTypeIntermediate},
			{ID: "approved", Name: "Approved", StateType: models.StateTypeFinish, SubType: models.StateSubTypeSuccess},
		},
		Transitions: []*models.WorkflowTransition{
			{ID: "submit", Name: "Submit", FromStateID: "draft", ToStateID: "review", TriggerType: models.TriggerTypeManual},
			{
				ID: "auto-approve", Name: "AutoApprove", FromStateID: "review", ToStateID: "approved",
				TriggerType:   models.TriggerTypeAutomatic,
				TriggerConfig: automaticConfig("decision", "approve"),
			},
		},
	}
}

func TestStartInstance(t *testing.T) {
	f := newFixture(t)
	f.seedDefinition(t, draftReviewApproved())
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", models.Document{"author": "kim"})
	require.NoError(t, err)

	assert.Equal(t, "draft", instance.CurrentStateID)
	assert.Equal(t, models.InstanceStatusActive, instance.Status)
	assert.True(t, instance.IsActive())

	data, err := f.store.InstanceData().GetByInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Document{"author": "kim"}, data.Data)

	snapshots, err := f.store.StateData().ListByInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "draft", snapshots[0].StateID)
}

func TestStartInstanceNoCompatibleDefinition(t *testing.T) {
	f := newFixture(t)
	definition := draftReviewApproved()
	definition.ClientVersion = ">=2.0.0"
	f.seedDefinition(t, definition)

	_, err := f.service.StartInstance(context.Background(), "document-approval", "1.5.0", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCompatibleDefinition)
	assert.True(t, IsNotFound(err))
}

func TestStartInstancePicksHighestVersion(t *testing.T) {
	f := newFixture(t)

	older := draftReviewApproved()
	older.ID = "def-old"
	older.Version = "1.2.0"
	f.seedDefinition(t, older)

	newer := &models.WorkflowDefinition{
		ID: "def-new", Name: "document-approval", Version: "1.10.0", ClientVersion: "*",
		States: []*models.WorkflowState{
			{ID: "start-v2", Name: "Start", StateType: models.StateTypeInitial},
			{ID: "done-v2", Name: "Done", StateType: models.StateTypeFinish},
		},
	}
	f.seedDefinition(t, newer)

	instance, err := f.service.StartInstance(context.Background(), "document-approval", "1.0.0", nil)
	require.NoError(t, err)
	assert.Equal(t, "def-new", instance.WorkflowDefinitionID, "1.10.0 outranks 1.2.0 numerically")
}

func TestExecuteTransitionMovesAndMerges(t *testing.T) {
	f := newFixture(t)
	f.seedDefinition(t, draftReviewApproved())
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", models.Document{"a": float64(1), "b": float64(2)})
	require.NoError(t, err)

	updated, err := f.service.ExecuteTransition(ctx, instance.ID, "submit", models.Document{"b": float64(3), "c": float64(4)})
	require.NoError(t, err)
	assert.Equal(t, "review", updated.CurrentStateID)

	data, err := f.store.InstanceData().GetByInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Document{"a": float64(1), "b": float64(3), "c": float64(4)}, data.Data)

	// History is append-only and snapshots the target state.
	snapshots, err := f.store.StateData().ListByInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "review", snapshots[1].StateID)
	assert.False(t, snapshots[1].EnteredAt.Before(snapshots[0].EnteredAt))
}

func TestExecuteTransitionNotApplicable(t *testing.T) {
	f := newFixture(t)
	f.seedDefinition(t, draftReviewApproved())
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", nil)
	require.NoError(t, err)

	// auto-approve starts at review, the instance is still at draft.
	_, err = f.service.ExecuteTransition(ctx, instance.ID, "auto-approve", models.Document{"decision": "approve"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransitionNotApplicable)
	assert.True(t, IsInvalidOperation(err))

	reloaded, err := f.store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", reloaded.CurrentStateID, "current state never changes on an inapplicable transition")
}

func TestManualReturnGuard(t *testing.T) {
	f := newFixture(t)
	definition := draftReviewApproved()
	definition.Transitions = append(definition.Transitions, &models.WorkflowTransition{
		ID: "redraft", Name: "Redraft", FromStateID: "draft", ToStateID: "draft", TriggerType: models.TriggerTypeManual,
	})
	f.seedDefinition(t, definition)
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", nil)
	require.NoError(t, err)

	_, err = f.service.ExecuteTransition(ctx, instance.ID, "redraft", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManualTransitionReturns)

	reloaded, err := f.store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", reloaded.CurrentStateID)
	assert.True(t, reloaded.IsActive())
}

func TestAutomaticConditionGuard(t *testing.T) {
	f := newFixture(t)
	f.seedDefinition(t, draftReviewApproved())
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", nil)
	require.NoError(t, err)

	_, err = f.service.ExecuteTransition(ctx, instance.ID, "submit", nil)
	require.NoError(t, err)

	_, err = f.service.ExecuteTransition(ctx, instance.ID, "auto-approve", models.Document{"decision": "reject"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConditionNotMet)

	updated, err := f.service.ExecuteTransition(ctx, instance.ID, "auto-approve", models.Document{"decision": "approve"})
	require.NoError(t, err)
	assert.Equal(t, "approved", updated.CurrentStateID)
	assert.Equal(t, models.InstanceStatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
}

func TestEndToEndApprovalScenario(t *testing.T) {
	f := newFixture(t)
	f.seedDefinition(t, draftReviewApproved())
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", models.Document{"author": "kim"})
	require.NoError(t, err)

	_, err = f.service.ExecuteTransition(ctx, instance.ID, "submit", nil)
	require.NoError(t, err)

	final, err := f.service.ExecuteTransition(ctx, instance.ID, "auto-approve", models.Document{"decision": "approve"})
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
	assert.Equal(t, "approved", final.CurrentStateID)
	assert.NotNil(t, final.CompletedAt)
}

func TestCascadeThroughAutomaticChain(t *testing.T) {
	f := newFixture(t)

	definition := &models.WorkflowDefinition{
		ID: "def-chain", Name: "chain", Version: "1.0.0", ClientVersion: "*",
		States: []*models.WorkflowState{
			{ID: "s0", Name: "S0", StateType: models.StateTypeInitial},
			{ID: "s1", Name: "S1", StateType: models.StateTypeIntermediate},
			{ID: "s2", Name: "S2", StateType: models.StateTypeIntermediate},
			{ID: "s3", Name: "S3", StateType: models.StateTypeIntermediate},
			{ID: "s4", Name: "S4", StateType: models.StateTypeFinish},
		},
		Transitions: []*models.WorkflowTransition{
			{ID: "kick", Name: "Kick", FromStateID: "s0", ToStateID: "s1", TriggerType: models.TriggerTypeManual},
			{ID: "a1", Name: "A1", FromStateID: "s1", ToStateID: "s2", TriggerType: models.TriggerTypeAutomatic, TriggerConfig: automaticConfig("go", "yes")},
			{ID: "a2", Name: "A2", FromStateID: "s2", ToStateID: "s3", TriggerType: models.TriggerTypeAutomatic, TriggerConfig: automaticConfig("go", "yes")},
			{ID: "a3", Name: "A3", FromStateID: "s3", ToStateID: "s4", TriggerType: models.TriggerTypeAutomatic, TriggerConfig: automaticConfig("go", "yes")},
		},
	}
	f.seedDefinition(t, definition)
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "chain", "1.0.0", nil)
	require.NoError(t, err)

	// One call rides the whole automatic chain to the finish state.
	final, err := f.service.ExecuteTransition(ctx, instance.ID, "kick", models.Document{"go": "yes"})
	require.NoError(t, err)

	assert.Equal(t, "s4", final.CurrentStateID)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
	assert.NotNil(t, final.CompletedAt)
}

func TestCascadeSnapshotsEveryLandedState(t *testing.T) {
	f := newFixture(t)

	definition := &models.WorkflowDefinition{
		ID: "def-chain", Name: "chain", Version: "1.0.0", ClientVersion: "*",
		States: []*models.WorkflowState{
			{ID: "s0", Name: "S0", StateType: models.StateTypeInitial},
			{ID: "s1", Name: "S1", StateType: models.StateTypeIntermediate},
			{ID: "s2", Name: "S2", StateType: models.StateTypeIntermediate},
			{ID: "s3", Name: "S3", StateType: models.StateTypeFinish},
		},
		Transitions: []*models.WorkflowTransition{
			{ID: "kick", Name: "Kick", FromStateID: "s0", ToStateID: "s1", TriggerType: models.TriggerTypeManual},
			{ID: "a1", Name: "A1", FromStateID: "s1", ToStateID: "s2", TriggerType: models.TriggerTypeAutomatic, TriggerConfig: automaticConfig("go", "yes")},
			{ID: "a2", Name: "A2", FromStateID: "s2", ToStateID: "s3", TriggerType: models.TriggerTypeAutomatic, TriggerConfig: automaticConfig("go", "yes")},
		},
	}
	f.seedDefinition(t, definition)
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "chain", "1.0.0", nil)
	require.NoError(t, err)

	final, err := f.service.ExecuteTransition(ctx, instance.ID, "kick", models.Document{"go": "yes"})
	require.NoError(t, err)
	require.Equal(t, "s3", final.CurrentStateID)

	// Every state the cascade landed on has its own snapshot, not just the
	// state entered by the manual hop.
	snapshots, err := f.store.StateData().ListByInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, snapshots, 3)

	states := make([]string, 0, len(snapshots))
	for _, snapshot := range snapshots {
		states = append(states, snapshot.StateID)
		assert.Equal(t, "yes", snapshot.Data["go"])
	}

	assert.Equal(t, []string{"s1", "s2", "s3"}, states)
}

func TestCascadeCycleIsBounded(t *testing.T) {
	f := newFixture(t)

	definition := &models.WorkflowDefinition{
		ID: "def-cycle", Name: "cycle", Version: "1.0.0", ClientVersion: "*",
		States: []*models.WorkflowState{
			{ID: "c0", Name: "C0", StateType: models.StateTypeInitial},
			{ID: "ca", Name: "CA", StateType: models.StateTypeIntermediate},
			{ID: "cb", Name: "CB", StateType: models.StateTypeIntermediate},
		},
		Transitions: []*models.WorkflowTransition{
			{ID: "enter", Name: "Enter", FromStateID: "c0", ToStateID: "ca", TriggerType: models.TriggerTypeManual},
			{ID: "ab", Name: "AB", FromStateID: "ca", ToStateID: "cb", TriggerType: models.TriggerTypeAutomatic, TriggerConfig: automaticConfig("loop", "on")},
			{ID: "ba", Name: "BA", FromStateID: "cb", ToStateID: "ca", TriggerType: models.TriggerTypeAutomatic, TriggerConfig: automaticConfig("loop", "on")},
		},
	}
	f.seedDefinition(t, definition)
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "cycle", "1.0.0", nil)
	require.NoError(t, err)

	_, err = f.service.ExecuteTransition(ctx, instance.ID, "enter", models.Document{"loop": "on"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCascadeLimitExceeded)
}

func TestTaskFailureAbortsTransition(t *testing.T) {
	f := newFixture(t)
	f.seedDefinition(t, draftReviewApproved())
	ctx := context.Background()

	task := &models.WorkflowTask{
		ID: "notify", Name: "notify", Type: models.TaskTypeHTTP,
		Config: models.Document{"url": "https://hooks/x", "method": "POST"},
	}
	require.NoError(t, f.store.Tasks().Create(ctx, task))
	require.NoError(t, f.store.TaskAssignments().Create(ctx, &models.WorkflowTaskAssignment{
		ID: "as1", TaskID: "notify", TransitionID: "submit", Trigger: models.TaskTriggerOnExecute,
	}))

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", nil)
	require.NoError(t, err)

	f.connectors.fail = errors.New("boom")

	_, err = f.service.ExecuteTransition(ctx, instance.ID, "submit", nil)
	require.Error(t, err)

	reloaded, err := f.store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", reloaded.CurrentStateID, "failed on-execute task leaves the instance unmoved")

	records, err := f.store.InstanceTasks().ListByInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.TaskStatusFailed, records[0].Status)
}

func TestTasksRunInPhaseOrder(t *testing.T) {
	f := newFixture(t)
	f.seedDefinition(t, draftReviewApproved())
	ctx := context.Background()

	mkTask := func(id, url string) {
		require.NoError(t, f.store.Tasks().Create(ctx, &models.WorkflowTask{
			ID: id, Name: id, Type: models.TaskTypeHTTP,
			Config: models.Document{"url": url, "method": "POST"},
		}))
	}
	mkTask("t-exec", "https://on-execute")
	mkTask("t-exit", "https://on-exit")
	mkTask("t-entry", "https://on-entry")

	require.NoError(t, f.store.TaskAssignments().Create(ctx, &models.WorkflowTaskAssignment{
		ID: "a1", TaskID: "t-exec", TransitionID: "submit", Trigger: models.TaskTriggerOnExecute,
	}))
	require.NoError(t, f.store.TaskAssignments().Create(ctx, &models.WorkflowTaskAssignment{
		ID: "a2", TaskID: "t-exit", StateID: "draft", Trigger: models.TaskTriggerOnExit,
	}))
	require.NoError(t, f.store.TaskAssignments().Create(ctx, &models.WorkflowTaskAssignment{
		ID: "a3", TaskID: "t-entry", StateID: "review", Trigger: models.TaskTriggerOnEntry,
	}))

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", nil)
	require.NoError(t, err)

	_, err = f.service.ExecuteTransition(ctx, instance.ID, "submit", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST https://on-execute",
		"POST https://on-exit",
		"POST https://on-entry",
	}, f.connectors.calls)
}

func TestCompleteTask(t *testing.T) {
	f := newFixture(t)
	f.seedDefinition(t, draftReviewApproved())
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", nil)
	require.NoError(t, err)

	humanTask := &models.WorkflowHumanTask{
		ID: "ht-1", WorkflowInstanceID: instance.ID, StateID: "draft",
		Name: "review draft", Assignee: "kim", AssignedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.HumanTasks().Create(ctx, humanTask))

	owner, err := f.service.CompleteTask(ctx, "ht-1", `{"approved":true}`)
	require.NoError(t, err)
	assert.Equal(t, instance.ID, owner.ID)
	assert.Equal(t, "draft", owner.CurrentStateID, "completing a task does not drive a transition")

	completed, err := f.store.HumanTasks().GetByID(ctx, "ht-1")
	require.NoError(t, err)
	assert.False(t, completed.IsPending())
	assert.Equal(t, `{"approved":true}`, completed.Result)

	_, err = f.service.CompleteTask(ctx, "ht-1", "again")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskAlreadyCompleted)
}

func TestGetInstanceDetails(t *testing.T) {
	f := newFixture(t)
	f.seedDefinition(t, draftReviewApproved())
	ctx := context.Background()

	instance, err := f.service.StartInstance(ctx, "document-approval", "1.0.0", models.Document{"author": "kim"})
	require.NoError(t, err)

	require.NoError(t, f.store.HumanTasks().Create(ctx, &models.WorkflowHumanTask{
		ID: "ht-1", WorkflowInstanceID: instance.ID, StateID: "draft",
		Name: "fill form", Assignee: "kim", AssignedAt: time.Now().UTC(),
	}))

	require.NoError(t, f.store.Views().Create(ctx, &models.WorkflowView{
		ID: "v1", WorkflowDefinitionID: "def-1", StateID: "draft",
		Type: models.ViewTypeForm, Target: models.ViewTargetState, WorkflowVersion: "1.*", Content: "{}",
	}))

	details, err := f.service.GetInstanceDetails(ctx, instance.ID, "https://api.example.com/")
	require.NoError(t, err)

	assert.Equal(t, "draft", details.CurrentState.ID)
	assert.Equal(t, models.Document{"author": "kim"}, details.Data)
	require.Len(t, details.AvailableTransitions, 1)
	assert.Equal(t, "submit", details.AvailableTransitions[0].ID)
	require.Len(t, details.PendingTasks, 1)
	require.Len(t, details.Views, 1)
	assert.Equal(t, "https://api.example.com/workflow-instances/"+instance.ID+"/state-data", details.StateDataURL)
	assert.Equal(t, "https://api.example.com/workflow-instances/"+instance.ID+"/history", details.HistoryURL)
	assert.Nil(t, details.Parent)
}
