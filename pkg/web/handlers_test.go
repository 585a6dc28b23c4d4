package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenzo/cadenzo/pkg/dispatch"
	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence/memory"
	"github.com/cadenzo/cadenzo/pkg/services"
	"github.com/cadenzo/cadenzo/pkg/tasks"
	"github.com/cadenzo/cadenzo/pkg/web"
)

// recordingConnector satisfies every dispatch interface and reports success.
type recordingConnector struct {
	calls []string
}

func (r *recordingConnector) Call(_ context.Context, method, url string, _ map[string]string, _ []byte) (*dispatch.Result, error) {
	r.calls = append(r.calls, method+" "+url)

	return &dispatch.Result{StatusCode: 200}, nil
}

func (r *recordingConnector) CallEndpoint(_ context.Context, endpoint, _, path string, _ []byte) (*dispatch.Result, error) {
	r.calls = append(r.calls, endpoint+path)

	return &dispatch.Result{StatusCode: 200}, nil
}

func (r *recordingConnector) InvokeService(_ context.Context, appID, _, method string, _ []byte) (*dispatch.Result, error) {
	r.calls = append(r.calls, appID+"/"+method)

	return &dispatch.Result{StatusCode: 200}, nil
}

func (r *recordingConnector) InvokeBinding(_ context.Context, binding, operation string, _ map[string]string, _ []byte) (*dispatch.Result, error) {
	r.calls = append(r.calls, binding+"/"+operation)

	return &dispatch.Result{StatusCode: 200}, nil
}

func (r *recordingConnector) PublishTopic(_ context.Context, topic string, _ map[string]string, _ []byte) error {
	r.calls = append(r.calls, "topic "+topic)

	return nil
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	store := memory.NewPersistence()
	connector := &recordingConnector{}
	engine := tasks.NewEngine(store, dispatch.Connectors{
		HTTP:      connector,
		Endpoints: connector,
		Services:  connector,
		Bindings:  connector,
		Topics:    connector,
	}, slog.Default())
	instanceService := services.NewInstanceService(store, engine, slog.Default())
	definitionService := services.NewDefinitionService(store, slog.Default())
	functionService := services.NewFunctionService(store, engine, slog.Default())
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(instanceService, definitionService, functionService, validate)

	app := fiber.New()

	d := app.Group("/definitions")
	d.Get("/", handlers.GetDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Post("/:id/archive", handlers.ArchiveDefinition)
	d.Post("/:id/clone", handlers.CloneDefinition)
	d.Get("/:definitionId/instances/latest", handlers.GetLatestInstance)

	i := app.Group("/instances")
	i.Get("/", handlers.GetInstances)
	i.Post("/", handlers.StartInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Get("/:id/history", handlers.GetInstanceHistory)
	i.Get("/:id/executions", handlers.GetInstanceExecutions)
	i.Post("/:id/transitions/:transitionId", handlers.ExecuteTransition)

	app.Post("/tasks", handlers.CreateTask)
	app.Post("/tasks/assignments", handlers.AssignTask)
	app.Post("/functions", handlers.CreateFunction)
	app.Get("/functions", handlers.GetActiveFunctions)
	app.Post("/functions/:name/execute", handlers.ExecuteFunction)
	app.Get("/human-tasks", handlers.GetHumanTasks)
	app.Post("/human-tasks/:id/complete", handlers.CompleteHumanTask)
	app.Post("/views", handlers.CreateView)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, payload
}

func orderDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:          "order-fulfillment",
		Version:       "1.0.0",
		ClientVersion: "*",
		States: []*models.WorkflowState{
			{ID: "placed", Name: "Placed", StateType: models.StateTypeInitial},
			{ID: "shipped", Name: "Shipped", StateType: models.StateTypeFinish},
		},
		Transitions: []*models.WorkflowTransition{
			{
				ID: "ship", Name: "Ship", FromStateID: "placed", ToStateID: "shipped",
				TriggerType: models.TriggerTypeManual,
			},
		},
	}
}

func createDefinition(t *testing.T, app *fiber.App) *models.WorkflowDefinition {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/", orderDefinition())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(body, &created))

	return &created
}

func TestCreateAndGetDefinition(t *testing.T) {
	app := setupTestApp(t)

	created := createDefinition(t, app)
	assert.NotEmpty(t, created.ID)

	resp, body := doJSON(t, app, http.MethodGet, "/definitions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Equal(t, "order-fulfillment", loaded.Name)
	assert.Len(t, loaded.States, 2)
}

func TestCreateDefinitionInvalid(t *testing.T) {
	app := setupTestApp(t)

	definition := orderDefinition()
	definition.States[0].StateType = models.StateTypeIntermediate

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/", definition)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_operation")
}

func TestStartInstanceAndExecuteTransition(t *testing.T) {
	app := setupTestApp(t)
	createDefinition(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		WorkflowName:  "order-fulfillment",
		ClientVersion: "1.0.0",
		Data:          models.Document{"orderId": "o-42"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))
	assert.Equal(t, "placed", instance.CurrentStateID)

	resp, body = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/transitions/ship", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var moved models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &moved))
	assert.Equal(t, "shipped", moved.CurrentStateID)
	assert.Equal(t, models.InstanceStatusCompleted, moved.Status)

	// The transition is no longer applicable once the instance has moved.
	resp, body = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/transitions/ship", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_operation")
}

func TestStartInstanceValidation(t *testing.T) {
	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		ClientVersion: "1.0.0",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "WorkflowName")
}

func TestStartInstanceNoDefinition(t *testing.T) {
	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		WorkflowName:  "nonexistent",
		ClientVersion: "1.0.0",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not_found")
}

func TestGetInstanceNotFound(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/instances/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetInstanceDetails(t *testing.T) {
	app := setupTestApp(t)
	createDefinition(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		WorkflowName:  "order-fulfillment",
		ClientVersion: "1.0.0",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))

	resp, body = doJSON(t, app, http.MethodGet, "/instances/"+instance.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var details services.InstanceDetails
	require.NoError(t, json.Unmarshal(body, &details))
	assert.Equal(t, instance.ID, details.Instance.ID)
	require.Len(t, details.AvailableTransitions, 1)
	assert.Equal(t, "ship", details.AvailableTransitions[0].ID)
}

func TestArchiveAndCloneDefinition(t *testing.T) {
	app := setupTestApp(t)
	created := createDefinition(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/"+created.ID+"/clone", web.CloneDefinitionRequest{
		Version: "2.0.0",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var clone models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(body, &clone))
	assert.NotEqual(t, created.ID, clone.ID)
	assert.Equal(t, "2.0.0", clone.Version)

	resp, _ = doJSON(t, app, http.MethodPost, "/definitions/"+created.ID+"/archive", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Archiving twice is rejected.
	resp, body = doJSON(t, app, http.MethodPost, "/definitions/"+created.ID+"/archive", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_operation")

	// The archived definition no longer serves new instances; the clone does.
	resp, _ = doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		WorkflowName:  "order-fulfillment",
		ClientVersion: "1.0.0",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHumanTaskLifecycleOverHTTP(t *testing.T) {
	app := setupTestApp(t)
	created := createDefinition(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/tasks", web.CreateTaskRequest{
		Name: "confirm-shipment",
		Type: models.TaskTypeHuman,
		Config: models.Document{
			"title":      "Confirm shipment",
			"assignedTo": "ops",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var task models.WorkflowTask
	require.NoError(t, json.Unmarshal(body, &task))

	shippedStateID := ""

	for _, state := range created.States {
		if state.Name == "Shipped" {
			shippedStateID = state.ID
		}
	}

	require.NotEmpty(t, shippedStateID)

	resp, body = doJSON(t, app, http.MethodPost, "/tasks/assignments", web.AssignTaskRequest{
		TaskID:  task.ID,
		StateID: shippedStateID,
		Trigger: models.TaskTriggerOnEntry,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = doJSON(t, app, http.MethodPost, "/instances/", web.StartInstanceRequest{
		WorkflowName:  "order-fulfillment",
		ClientVersion: "1.0.0",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))

	resp, _ = doJSON(t, app, http.MethodPost, "/instances/"+instance.ID+"/transitions/ship", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/human-tasks?assignee=ops", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pending []*models.WorkflowHumanTask
	require.NoError(t, json.Unmarshal(body, &pending))
	require.Len(t, pending, 1)

	resp, body = doJSON(t, app, http.MethodPost, "/human-tasks/"+pending[0].ID+"/complete", web.CompleteTaskRequest{
		Result: "confirmed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// Completing twice is rejected.
	resp, body = doJSON(t, app, http.MethodPost, "/human-tasks/"+pending[0].ID+"/complete", web.CompleteTaskRequest{
		Result: "confirmed",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_operation")
}

func TestFunctionLifecycleOverHTTP(t *testing.T) {
	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/tasks", web.CreateTaskRequest{
		Name:   "send-receipt",
		Type:   models.TaskTypeHTTP,
		Config: models.Document{"url": "https://hooks/receipts", "method": "POST"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var task models.WorkflowTask
	require.NoError(t, json.Unmarshal(body, &task))

	resp, body = doJSON(t, app, http.MethodPost, "/functions", web.CreateFunctionRequest{
		Name:   "send-receipt",
		TaskID: task.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var function models.WorkflowFunction
	require.NoError(t, json.Unmarshal(body, &function))
	assert.True(t, function.IsActive, "functions default to active")

	// A second function cannot reuse the name.
	resp, body = doJSON(t, app, http.MethodPost, "/functions", web.CreateFunctionRequest{
		Name:   "send-receipt",
		TaskID: task.ID,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_operation")

	resp, body = doJSON(t, app, http.MethodGet, "/functions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var active []*models.WorkflowFunction
	require.NoError(t, json.Unmarshal(body, &active))
	require.Len(t, active, 1)
	assert.Equal(t, "send-receipt", active[0].Name)

	resp, body = doJSON(t, app, http.MethodPost, "/functions/send-receipt/execute", web.ExecuteFunctionRequest{
		Data: models.Document{"orderId": "o-42"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result dispatch.Result
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 200, result.StatusCode)
}

func TestExecuteFunctionNotFoundOverHTTP(t *testing.T) {
	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/functions/missing/execute", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not_found")
}

func TestHumanTasksRequireFilter(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/human-tasks", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompatibleDefinitionsFilter(t *testing.T) {
	app := setupTestApp(t)

	pinned := orderDefinition()
	pinned.ClientVersion = "2.0.0"

	resp, _ := doJSON(t, app, http.MethodPost, "/definitions/", pinned)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodGet, "/definitions/?client_version=2.0.0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var compatible []*models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(body, &compatible))
	assert.Len(t, compatible, 1)

	resp, body = doJSON(t, app, http.MethodGet, "/definitions/?client_version=1.0.0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &compatible))
	assert.Empty(t, compatible)
}
