// Package web provides HTTP handlers and REST API endpoints for the workflow
// engine: definitions, instances, transitions, and human tasks.
package web

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/services"
)

type APIHandlers struct {
	instanceService   *services.InstanceService
	definitionService *services.DefinitionService
	functionService   *services.FunctionService
	validator         *validator.Validate
}

func NewAPIHandlers(
	instanceService *services.InstanceService,
	definitionService *services.DefinitionService,
	functionService *services.FunctionService,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		instanceService:   instanceService,
		definitionService: definitionService,
		functionService:   functionService,
		validator:         validator,
	}
}

// Definitions

func (h *APIHandlers) GetDefinitions(c fiber.Ctx) error {
	if clientVersion := c.Query("client_version"); clientVersion != "" {
		definitions, err := h.instanceService.CompatibleDefinitions(c.Context(), clientVersion)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(definitions)
	}

	definitions, err := h.definitionService.ListDefinitions(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definitions)
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	definition, err := h.definitionService.GetDefinition(c.Context(), id)
	if err != nil {
		if services.IsNotFound(err) {
			return notFound(c, "Workflow definition not found")
		}

		return internalError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	var definition models.WorkflowDefinition
	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.definitionService.CreateDefinition(c.Context(), &definition)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ArchiveDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	if err := h.definitionService.ArchiveDefinition(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CloneDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Definition ID is required")
	}

	var req CloneDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	clone, err := h.definitionService.CloneDefinition(c.Context(), id, req.Version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(clone)
}

// Tasks and views

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	var req CreateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.definitionService.CreateTask(c.Context(), &models.WorkflowTask{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Config:      req.Config,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) AssignTask(c fiber.Ctx) error {
	var req AssignTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	assignment, err := h.definitionService.AssignTask(c.Context(), &models.WorkflowTaskAssignment{
		TaskID:       req.TaskID,
		StateID:      req.StateID,
		TransitionID: req.TransitionID,
		FunctionID:   req.FunctionID,
		Trigger:      req.Trigger,
		Order:        req.Order,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(assignment)
}

// Functions

func (h *APIHandlers) CreateFunction(c fiber.Ctx) error {
	var req CreateFunctionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	function, err := h.functionService.CreateFunction(c.Context(), &models.WorkflowFunction{
		Name:                 req.Name,
		Description:          req.Description,
		TaskID:               req.TaskID,
		IsActive:             active,
		StateID:              req.StateID,
		WorkflowDefinitionID: req.WorkflowDefinitionID,
		Order:                req.Order,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(function)
}

func (h *APIHandlers) GetActiveFunctions(c fiber.Ctx) error {
	functions, err := h.functionService.ListActiveFunctions(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(functions)
}

func (h *APIHandlers) ExecuteFunction(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Function name is required")
	}

	var req ExecuteFunctionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.functionService.ExecuteFunction(c.Context(), name, req.Data)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CreateView(c fiber.Ctx) error {
	var req CreateViewRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	view, err := h.definitionService.CreateView(c.Context(), &models.WorkflowView{
		WorkflowDefinitionID: req.WorkflowDefinitionID,
		StateID:              req.StateID,
		TransitionID:         req.TransitionID,
		Type:                 req.Type,
		Target:               req.Target,
		Version:              req.Version,
		WorkflowVersion:      req.WorkflowVersion,
		Content:              req.Content,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(view)
}

// Instances

func (h *APIHandlers) StartInstance(c fiber.Ctx) error {
	var req StartInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instanceService.StartInstance(c.Context(), req.WorkflowName, req.ClientVersion, req.Data)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	var (
		instances []*models.WorkflowInstance
		err       error
	)

	switch {
	case c.Query("definition_id") != "":
		instances, err = h.instanceService.InstancesByDefinition(c.Context(), c.Query("definition_id"))
	case c.Query("state_id") != "":
		instances, err = h.instanceService.InstancesByState(c.Context(), c.Query("state_id"))
	case c.Query("status") == "completed":
		instances, err = h.instanceService.ListCompletedInstances(c.Context())
	default:
		instances, err = h.instanceService.ListActiveInstances(c.Context())
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) GetLatestInstance(c fiber.Ctx) error {
	definitionID := c.Params("definitionId")
	if definitionID == "" {
		return badRequest(c, "Definition ID is required")
	}

	var (
		instance *models.WorkflowInstance
		err      error
	)

	switch c.Query("status") {
	case "":
		instance, err = h.instanceService.LatestInstance(c.Context(), definitionID)
	case "active":
		instance, err = h.instanceService.LatestActiveInstance(c.Context(), definitionID)
	case "completed":
		instance, err = h.instanceService.LatestCompletedInstance(c.Context(), definitionID)
	default:
		return badRequest(c, "Unknown status filter: "+c.Query("status"))
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	details, err := h.instanceService.GetInstanceDetails(c.Context(), id, c.BaseURL())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(details)
}

func (h *APIHandlers) GetInstanceHistory(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	history, err := h.instanceService.StateHistory(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(history)
}

func (h *APIHandlers) GetInstanceExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	executions, err := h.instanceService.ExecutionsByInstance(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) ExecuteTransition(c fiber.Ctx) error {
	id := c.Params("id")
	transitionID := c.Params("transitionId")

	if id == "" || transitionID == "" {
		return badRequest(c, "Instance ID and transition ID are required")
	}

	var req ExecuteTransitionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	instance, err := h.instanceService.ExecuteTransition(c.Context(), id, transitionID, req.Data)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

// Human tasks

func (h *APIHandlers) GetHumanTasks(c fiber.Ctx) error {
	var (
		tasks []*models.WorkflowHumanTask
		err   error
	)

	switch {
	case c.Query("assignee") != "":
		tasks, err = h.instanceService.TasksByAssignee(c.Context(), c.Query("assignee"))
	case c.Query("instance_id") != "":
		tasks, err = h.instanceService.TasksByInstance(c.Context(), c.Query("instance_id"))
	default:
		return badRequest(c, "Either assignee or instance_id is required")
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tasks)
}

func (h *APIHandlers) CompleteHumanTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	var req CompleteTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instanceService.CompleteTask(c.Context(), id, req.Result)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}
