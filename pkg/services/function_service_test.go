package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenzo/cadenzo/pkg/dispatch"
	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
	"github.com/cadenzo/cadenzo/pkg/persistence/memory"
	"github.com/cadenzo/cadenzo/pkg/tasks"
)

func newFunctionFixture(t *testing.T) (*FunctionService, *memory.Persistence, *stubConnectors) {
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

	return NewFunctionService(store, engine, slog.Default()), store, connectors
}

func seedHTTPTask(t *testing.T, store *memory.Persistence, id, url string) {
	t.Helper()

	require.NoError(t, store.Tasks().Create(context.Background(), &models.WorkflowTask{
		ID: id, Name: id, Type: models.TaskTypeHTTP,
		Config: models.Document{"url": url, "method": "POST"},
	}))
}

func TestCreateFunctionAndLookup(t *testing.T) {
	service, store, _ := newFunctionFixture(t)
	ctx := context.Background()

	seedHTTPTask(t, store, "t-welcome", "https://hooks/welcome")

	created, err := service.CreateFunction(ctx, &models.WorkflowFunction{
		Name: "send-welcome", TaskID: "t-welcome", IsActive: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := service.GetFunctionByName(ctx, "send-welcome")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	active, err := service.ListActiveFunctions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "send-welcome", active[0].Name)
}

func TestCreateFunctionRequiresName(t *testing.T) {
	service, store, _ := newFunctionFixture(t)
	seedHTTPTask(t, store, "t1", "https://hooks/x")

	_, err := service.CreateFunction(context.Background(), &models.WorkflowFunction{TaskID: "t1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
	assert.True(t, IsInvalidOperation(err))
}

func TestCreateFunctionUnknownTask(t *testing.T) {
	service, _, _ := newFunctionFixture(t)

	_, err := service.CreateFunction(context.Background(), &models.WorkflowFunction{
		Name: "orphan", TaskID: "nope", IsActive: true,
	})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCreateFunctionDuplicateName(t *testing.T) {
	service, store, _ := newFunctionFixture(t)
	ctx := context.Background()
	seedHTTPTask(t, store, "t1", "https://hooks/x")

	_, err := service.CreateFunction(ctx, &models.WorkflowFunction{Name: "send-welcome", TaskID: "t1", IsActive: true})
	require.NoError(t, err)

	_, err = service.CreateFunction(ctx, &models.WorkflowFunction{Name: "send-welcome", TaskID: "t1", IsActive: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFunctionNameTaken)
	assert.True(t, IsInvalidOperation(err))
}

func TestExecuteFunctionRunsWrappedAndAssignedTasks(t *testing.T) {
	service, store, connectors := newFunctionFixture(t)
	ctx := context.Background()

	seedHTTPTask(t, store, "t-main", "https://hooks/main/{{data.customer}}")
	seedHTTPTask(t, store, "t-extra", "https://hooks/extra")

	function, err := service.CreateFunction(ctx, &models.WorkflowFunction{
		Name: "notify", TaskID: "t-main", IsActive: true,
	})
	require.NoError(t, err)

	require.NoError(t, store.TaskAssignments().Create(ctx, &models.WorkflowTaskAssignment{
		ID: "fa-1", TaskID: "t-extra", FunctionID: function.ID, Trigger: models.TaskTriggerOnExecute,
	}))

	result, err := service.ExecuteFunction(ctx, "notify", models.Document{"customer": "acme"})
	require.NoError(t, err)
	assert.Equal(t, 200, result.StatusCode)

	// The wrapped task runs first, then the function's assigned tasks.
	assert.Equal(t, []string{
		"POST https://hooks/main/acme",
		"POST https://hooks/extra",
	}, connectors.calls)
}

func TestExecuteFunctionUnknownName(t *testing.T) {
	service, _, _ := newFunctionFixture(t)

	_, err := service.ExecuteFunction(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrFunctionNotFound)
	assert.True(t, IsNotFound(err))
}

func TestExecuteFunctionInactive(t *testing.T) {
	service, store, connectors := newFunctionFixture(t)
	ctx := context.Background()
	seedHTTPTask(t, store, "t1", "https://hooks/x")

	_, err := service.CreateFunction(ctx, &models.WorkflowFunction{
		Name: "paused", TaskID: "t1", IsActive: false,
	})
	require.NoError(t, err)

	_, err = service.ExecuteFunction(ctx, "paused", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFunctionNotActive)
	assert.Empty(t, connectors.calls)
}

func TestExecuteFunctionScopedIsNotInvokable(t *testing.T) {
	service, store, connectors := newFunctionFixture(t)
	ctx := context.Background()
	seedHTTPTask(t, store, "t1", "https://hooks/x")

	_, err := service.CreateFunction(ctx, &models.WorkflowFunction{
		Name: "state-bound", TaskID: "t1", IsActive: true, StateID: "s1",
	})
	require.NoError(t, err)

	_, err = service.ExecuteFunction(ctx, "state-bound", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFunctionNotInvokable)
	assert.True(t, IsInvalidOperation(err))
	assert.Empty(t, connectors.calls)
}
