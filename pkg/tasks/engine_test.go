package tasks

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
)

type fakeConnector struct {
	calls []string
	fail  error
}

func (f *fakeConnector) Call(_ context.Context, method, url string, _ map[string]string, _ []byte) (*dispatch.Result, error) {
	f.calls = append(f.calls, method+" "+url)

	if f.fail != nil {
		return nil, f.fail
	}

	return &dispatch.Result{StatusCode: 200, Body: "ok"}, nil
}

func (f *fakeConnector) CallEndpoint(_ context.Context, endpoint, method, path string, _ []byte) (*dispatch.Result, error) {
	f.calls = append(f.calls, endpoint+" "+method+" "+path)

	return &dispatch.Result{StatusCode: 200}, nil
}

func (f *fakeConnector) InvokeService(_ context.Context, appID, verb, method string, _ []byte) (*dispatch.Result, error) {
	f.calls = append(f.calls, appID+" "+verb+" "+method)

	return &dispatch.Result{StatusCode: 200}, nil
}

func (f *fakeConnector) InvokeBinding(_ context.Context, binding, operation string, _ map[string]string, _ []byte) (*dispatch.Result, error) {
	f.calls = append(f.calls, binding+" "+operation)

	return &dispatch.Result{StatusCode: 200}, nil
}

func (f *fakeConnector) PublishTopic(_ context.Context, topic string, _ map[string]string, _ []byte) error {
	f.calls = append(f.calls, "topic "+topic)

	return f.fail
}

func newTestEngine(t *testing.T) (*Engine, *memory.Persistence, *fakeConnector) {
	t.Helper()

	store := memory.NewPersistence()
	connector := &fakeConnector{}
	connectors := dispatch.Connectors{
		HTTP:      connector,
		Endpoints: connector,
		Services:  connector,
		Bindings:  connector,
		Topics:    connector,
	}

	engine := NewEngine(store, connectors, slog.Default())

	return engine, store, connector
}

func TestExecuteTaskHTTPRecordsAudit(t *testing.T) {
	engine, store, connector := newTestEngine(t)
	ctx := context.Background()

	instance := &models.WorkflowInstance{ID: "wi-1"}
	task := &models.WorkflowTask{
		ID:   "t1",
		Name: "notify",
		Type: models.TaskTypeHTTP,
		Config: models.Document{
			"url":    "https://hooks/{{data.customer}}",
			"method": "POST",
			"data":   map[string]any{"instance": "{{workflow.instanceId}}"},
		},
	}

	result, err := engine.ExecuteTask(ctx, task, instance, "s1", models.Document{"customer": "acme"})
	require.NoError(t, err)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, []string{"POST https://hooks/acme"}, connector.calls)

	records, err := store.InstanceTasks().ListByInstance(ctx, "wi-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.TaskStatusCompleted, records[0].Status)
	assert.Equal(t, "t1", records[0].WorkflowTaskID)
	assert.Equal(t, "s1", records[0].StateID)
	assert.NotNil(t, records[0].CompletedAt)
}

func TestExecuteTaskFailureRecordedAndPropagated(t *testing.T) {
	engine, store, connector := newTestEngine(t)
	connector.fail = errors.New("connection refused")
	ctx := context.Background()

	task := &models.WorkflowTask{
		ID:     "t1",
		Name:   "notify",
		Type:   models.TaskTypeHTTP,
		Config: models.Document{"url": "https://hooks/x", "method": "POST"},
	}

	_, err := engine.ExecuteTask(ctx, task, &models.WorkflowInstance{ID: "wi-1"}, "s1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	records, listErr := store.InstanceTasks().ListByInstance(ctx, "wi-1")
	require.NoError(t, listErr)
	require.Len(t, records, 1)
	assert.Equal(t, models.TaskStatusFailed, records[0].Status)
	assert.Contains(t, records[0].Error, "connection refused")
}

func TestExecuteTaskHumanCreatesPendingTask(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task := &models.WorkflowTask{
		ID:   "t-human",
		Name: "review",
		Type: models.TaskTypeHuman,
		Config: models.Document{
			"title":        "Review {{data.docName}}",
			"assignedTo":   "reviewer@example.com",
			"instructions": "Check the draft",
			"dueDate":      due.Format(time.RFC3339),
		},
	}

	result, err := engine.ExecuteTask(ctx, task, &models.WorkflowInstance{ID: "wi-1"}, "s1", models.Document{"docName": "contract"})
	require.NoError(t, err)
	assert.Nil(t, result, "human tasks have no synchronous side effect")

	pending, err := store.HumanTasks().ListByAssignee(ctx, "reviewer@example.com")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Review contract", pending[0].Name)
	assert.True(t, pending[0].IsPending())
	require.NotNil(t, pending[0].DueAt)
	assert.Equal(t, due, *pending[0].DueAt)
}

func TestExecuteTaskDispatchesByKind(t *testing.T) {
	engine, _, connector := newTestEngine(t)
	ctx := context.Background()
	instance := &models.WorkflowInstance{ID: "wi-1"}

	tests := []struct {
		taskType models.TaskType
		config   models.Document
		want     string
	}{
		{models.TaskTypeBinding, models.Document{"bindingName": "s3", "operation": "create"}, "s3 create"},
		{models.TaskTypeService, models.Document{"appId": "billing", "method": "charge", "verb": "POST"}, "billing POST charge"},
		{models.TaskTypePubSub, models.Document{"topic": "orders"}, "topic orders"},
		{models.TaskTypeHTTPEndpoint, models.Document{"endpointName": "crm", "path": "/leads", "method": "PUT"}, "crm PUT /leads"},
	}

	for _, tt := range tests {
		connector.calls = nil
		task := &models.WorkflowTask{ID: "t", Name: "t", Type: tt.taskType, Config: tt.config}

		_, err := engine.ExecuteTask(ctx, task, instance, "s1", nil)
		require.NoError(t, err, string(tt.taskType))
		assert.Equal(t, []string{tt.want}, connector.calls, string(tt.taskType))
	}
}

func TestExecuteDetachedResolvesWithoutInstance(t *testing.T) {
	engine, store, connector := newTestEngine(t)
	ctx := context.Background()

	task := &models.WorkflowTask{
		ID:     "t1",
		Name:   "notify",
		Type:   models.TaskTypeHTTP,
		Config: models.Document{"url": "https://hooks/{{data.customer}}", "method": "POST"},
	}

	result, err := engine.ExecuteDetached(ctx, task, models.Document{"customer": "acme"})
	require.NoError(t, err)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, []string{"POST https://hooks/acme"}, connector.calls)

	records, err := store.InstanceTasks().ListByInstance(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, records, "detached runs leave no audit record")
}

func TestExecuteDetachedRejectsHumanTask(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	task := &models.WorkflowTask{ID: "t", Name: "review", Type: models.TaskTypeHuman}

	_, err := engine.ExecuteDetached(context.Background(), task, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside a workflow instance")
}

func TestExecuteTaskUnknownType(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	task := &models.WorkflowTask{ID: "t", Name: "t", Type: models.TaskType("ftp")}

	_, err := engine.ExecuteTask(context.Background(), task, &models.WorkflowInstance{ID: "wi-1"}, "s1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task type")
}
