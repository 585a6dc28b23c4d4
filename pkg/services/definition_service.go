package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
)

// DefinitionService manages workflow definitions: import, archival, cloning,
// and the task/view records that hang off them.
type DefinitionService struct {
	persistence persistence.Persistence
	validator   *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

func NewDefinitionService(p persistence.Persistence, logger *slog.Logger) *DefinitionService {
	return &DefinitionService{
		persistence: p,
		validator:   validator.New(),
		logger:      logger.With("module", "definition_service"),
		now:         time.Now,
	}
}

// CreateDefinition imports a definition with its states and transitions in one
// document. Blank IDs are assigned; transitions must reference states in the
// same document (or already-assigned IDs), trigger configs must match their
// schema, and exactly one state must be Initial.
func (s *DefinitionService) CreateDefinition(ctx context.Context, definition *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if err := s.validator.Struct(definition); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if err := s.validateStructure(definition); err != nil {
		return nil, err
	}

	now := s.now().UTC()

	if definition.ID == "" {
		definition.ID = uuid.NewString()
	}

	definition.CreatedAt = now

	stateIDs := make(map[string]string, len(definition.States))

	for _, state := range definition.States {
		originalID := state.ID
		if state.ID == "" {
			state.ID = uuid.NewString()
		}

		if originalID != "" {
			stateIDs[originalID] = state.ID
		}

		state.WorkflowDefinitionID = definition.ID
		state.CreatedAt = now
	}

	for _, transition := range definition.Transitions {
		if transition.ID == "" {
			transition.ID = uuid.NewString()
		}

		transition.WorkflowDefinitionID = definition.ID

		if mapped, ok := stateIDs[transition.FromStateID]; ok {
			transition.FromStateID = mapped
		}

		if mapped, ok := stateIDs[transition.ToStateID]; ok {
			transition.ToStateID = mapped
		}
	}

	if err := s.persistence.Definitions().Create(ctx, definition); err != nil {
		return nil, fmt.Errorf("failed to create definition: %w", err)
	}

	for _, state := range definition.States {
		if err := s.persistence.States().Create(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to create state %s: %w", state.Name, err)
		}
	}

	for _, transition := range definition.Transitions {
		if err := s.persistence.Transitions().Create(ctx, transition); err != nil {
			return nil, fmt.Errorf("failed to create transition %s: %w", transition.Name, err)
		}
	}

	s.logger.InfoContext(ctx, "Created workflow definition",
		"definition_id", definition.ID, "name", definition.Name, "version", definition.Version)

	return definition, nil
}

func (s *DefinitionService) validateStructure(definition *models.WorkflowDefinition) error {
	initialCount := 0
	stateIDs := make(map[string]bool, len(definition.States))

	for _, state := range definition.States {
		if state.StateType == models.StateTypeInitial {
			initialCount++
		}

		if state.ID != "" {
			stateIDs[state.ID] = true
		}

		if state.StateType == models.StateTypeSubflow && state.SubflowConfig == nil {
			return fmt.Errorf("%w: subflow state %q has no subflow configuration", ErrInvalidDefinition, state.Name)
		}
	}

	if initialCount != 1 {
		return fmt.Errorf("%w: definition must have exactly one initial state, found %d", ErrInvalidDefinition, initialCount)
	}

	for _, transition := range definition.Transitions {
		if !stateIDs[transition.FromStateID] || !stateIDs[transition.ToStateID] {
			return fmt.Errorf("%w: transition %q references unknown states", ErrInvalidDefinition, transition.Name)
		}

		if err := models.ValidateTriggerConfig(transition.TriggerType, transition.TriggerConfig); err != nil {
			return fmt.Errorf("%w: transition %q: %w", ErrInvalidDefinition, transition.Name, err)
		}
	}

	return nil
}

func (s *DefinitionService) GetDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return s.persistence.Definitions().GetByID(ctx, id)
}

func (s *DefinitionService) ListDefinitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return s.persistence.Definitions().ListActive(ctx)
}

// ArchiveDefinition soft-deletes a definition. Existing instances keep
// running; StartInstance stops selecting it.
func (s *DefinitionService) ArchiveDefinition(ctx context.Context, id string) error {
	definition, err := s.persistence.Definitions().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if definition.IsArchived() {
		return fmt.Errorf("definition %s: %w", id, ErrDefinitionArchived)
	}

	if err := s.persistence.Definitions().Archive(ctx, id, s.now().UTC()); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Archived workflow definition", "definition_id", id)

	return nil
}

// CloneDefinition copies a definition under a new version, assigning fresh
// IDs throughout and remapping every state reference.
func (s *DefinitionService) CloneDefinition(ctx context.Context, id, newVersion string) (*models.WorkflowDefinition, error) {
	source, err := s.persistence.Definitions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	clone := &models.WorkflowDefinition{
		Name:          source.Name,
		Description:   source.Description,
		Version:       newVersion,
		ClientVersion: source.ClientVersion,
	}

	for _, state := range source.States {
		copied := *state
		copied.ArchivedAt = nil

		if state.SubflowConfig != nil {
			config := *state.SubflowConfig
			copied.SubflowConfig = &config
		}

		clone.States = append(clone.States, &copied)
	}

	for _, transition := range source.Transitions {
		copied := *transition
		copied.TriggerConfig = transition.TriggerConfig.Clone()
		clone.Transitions = append(clone.Transitions, &copied)
	}

	oldToNew := make(map[string]string, len(clone.States))

	for _, state := range clone.States {
		newID := uuid.NewString()
		oldToNew[state.ID] = newID
		state.ID = newID
		state.WorkflowDefinitionID = ""

		if state.SubflowConfig != nil {
			state.SubflowConfig.StateID = newID
		}
	}

	for _, transition := range clone.Transitions {
		transition.ID = ""
		transition.WorkflowDefinitionID = ""
		transition.FromStateID = oldToNew[transition.FromStateID]
		transition.ToStateID = oldToNew[transition.ToStateID]
	}

	return s.CreateDefinition(ctx, clone)
}

// CreateTask registers a reusable task definition.
func (s *DefinitionService) CreateTask(ctx context.Context, task *models.WorkflowTask) (*models.WorkflowTask, error) {
	if err := s.validator.Struct(task); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	task.CreatedAt = s.now().UTC()

	if err := s.persistence.Tasks().Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// AssignTask binds a task to exactly one of a state, a transition or a
// function.
func (s *DefinitionService) AssignTask(ctx context.Context, assignment *models.WorkflowTaskAssignment) (*models.WorkflowTaskAssignment, error) {
	if err := s.validator.Struct(assignment); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	targets := 0
	for _, id := range []string{assignment.StateID, assignment.TransitionID, assignment.FunctionID} {
		if id != "" {
			targets++
		}
	}

	if targets != 1 {
		return nil, fmt.Errorf("%w: assignment must target exactly one of state, transition or function", ErrInvalidDefinition)
	}

	if _, err := s.persistence.Tasks().GetByID(ctx, assignment.TaskID); err != nil {
		return nil, err
	}

	if assignment.FunctionID != "" {
		if _, err := s.persistence.Functions().GetByID(ctx, assignment.FunctionID); err != nil {
			return nil, err
		}
	}

	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}

	if err := s.persistence.TaskAssignments().Create(ctx, assignment); err != nil {
		return nil, fmt.Errorf("failed to create task assignment: %w", err)
	}

	return assignment, nil
}

// CreateView attaches UI content to a definition, state or transition.
func (s *DefinitionService) CreateView(ctx context.Context, view *models.WorkflowView) (*models.WorkflowView, error) {
	if view.WorkflowDefinitionID == "" {
		return nil, fmt.Errorf("%w: view requires a definition id", ErrInvalidDefinition)
	}

	if view.ID == "" {
		view.ID = uuid.NewString()
	}

	view.CreatedAt = s.now().UTC()

	if err := s.persistence.Views().Create(ctx, view); err != nil {
		return nil, fmt.Errorf("failed to create view: %w", err)
	}

	return view, nil
}
