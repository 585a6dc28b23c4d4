// Package memory provides an in-memory persistence implementation. It backs
// the engine's unit tests and memory:// database URLs; everything is lost on
// process exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
)

// Persistence implements persistence.Persistence with plain maps behind one
// mutex. Instances are stored and returned by value so callers can mutate
// their copy freely until Update.
type Persistence struct {
	mu sync.RWMutex

	definitions  map[string]*models.WorkflowDefinition
	states       map[string]*models.WorkflowState
	transitions  map[string]*models.WorkflowTransition
	instances    map[string]models.WorkflowInstance
	stateData    map[string][]*models.WorkflowStateData // instanceID -> snapshots in insert order
	instanceData map[string]*models.WorkflowInstanceData
	correlations map[string]*models.WorkflowCorrelation
	tasks        map[string]*models.WorkflowTask
	assignments  []*models.WorkflowTaskAssignment
	functions    map[string]*models.WorkflowFunction
	humanTasks   map[string]*models.WorkflowHumanTask
	instTasks    map[string]*models.WorkflowInstanceTask
	views        []*models.WorkflowView
}

func NewPersistence() *Persistence {
	return &Persistence{
		definitions:  make(map[string]*models.WorkflowDefinition),
		states:       make(map[string]*models.WorkflowState),
		transitions:  make(map[string]*models.WorkflowTransition),
		instances:    make(map[string]models.WorkflowInstance),
		stateData:    make(map[string][]*models.WorkflowStateData),
		instanceData: make(map[string]*models.WorkflowInstanceData),
		correlations: make(map[string]*models.WorkflowCorrelation),
		tasks:        make(map[string]*models.WorkflowTask),
		functions:    make(map[string]*models.WorkflowFunction),
		humanTasks:   make(map[string]*models.WorkflowHumanTask),
		instTasks:    make(map[string]*models.WorkflowInstanceTask),
	}
}

func (p *Persistence) Definitions() persistence.DefinitionRepository         { return &definitionRepo{p} }
func (p *Persistence) States() persistence.StateRepository                   { return &stateRepo{p} }
func (p *Persistence) Transitions() persistence.TransitionRepository         { return &transitionRepo{p} }
func (p *Persistence) Instances() persistence.InstanceRepository             { return &instanceRepo{p} }
func (p *Persistence) StateData() persistence.StateDataRepository            { return &stateDataRepo{p} }
func (p *Persistence) InstanceData() persistence.InstanceDataRepository      { return &instanceDataRepo{p} }
func (p *Persistence) Correlations() persistence.CorrelationRepository       { return &correlationRepo{p} }
func (p *Persistence) Tasks() persistence.TaskRepository                     { return &taskRepo{p} }
func (p *Persistence) TaskAssignments() persistence.TaskAssignmentRepository { return &assignmentRepo{p} }
func (p *Persistence) Functions() persistence.FunctionRepository             { return &functionRepo{p} }
func (p *Persistence) HumanTasks() persistence.HumanTaskRepository           { return &humanTaskRepo{p} }
func (p *Persistence) InstanceTasks() persistence.InstanceTaskRepository     { return &instanceTaskRepo{p} }
func (p *Persistence) Views() persistence.ViewRepository                     { return &viewRepo{p} }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

type definitionRepo struct{ p *Persistence }

func (r *definitionRepo) Create(_ context.Context, definition *models.WorkflowDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.definitions[definition.ID] = definition

	return nil
}

func (r *definitionRepo) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	definition, ok := r.p.definitions[id]
	if !ok {
		return nil, persistence.ErrDefinitionNotFound
	}

	loaded := *definition
	loaded.States = r.p.statesOf(id)
	loaded.Transitions = r.p.transitionsOf(id)

	return &loaded, nil
}

func (r *definitionRepo) ListActive(_ context.Context) ([]*models.WorkflowDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var active []*models.WorkflowDefinition

	for _, definition := range r.p.definitions {
		if definition.IsArchived() {
			continue
		}

		loaded := *definition
		loaded.States = r.p.statesOf(definition.ID)
		active = append(active, &loaded)
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})

	return active, nil
}

func (r *definitionRepo) Archive(_ context.Context, id string, at time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	definition, ok := r.p.definitions[id]
	if !ok {
		return persistence.ErrDefinitionNotFound
	}

	definition.ArchivedAt = &at

	return nil
}

func (p *Persistence) statesOf(definitionID string) []*models.WorkflowState {
	var states []*models.WorkflowState

	for _, state := range p.states {
		if state.WorkflowDefinitionID == definitionID {
			states = append(states, state)
		}
	}

	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })

	return states
}

func (p *Persistence) transitionsOf(definitionID string) []*models.WorkflowTransition {
	var transitions []*models.WorkflowTransition

	for _, transition := range p.transitions {
		if transition.WorkflowDefinitionID == definitionID {
			transitions = append(transitions, transition)
		}
	}

	sort.Slice(transitions, func(i, j int) bool { return transitions[i].ID < transitions[j].ID })

	return transitions
}

type stateRepo struct{ p *Persistence }

func (r *stateRepo) Create(_ context.Context, state *models.WorkflowState) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.states[state.ID] = state

	return nil
}

func (r *stateRepo) GetByID(_ context.Context, id string) (*models.WorkflowState, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	state, ok := r.p.states[id]
	if !ok {
		return nil, persistence.ErrStateNotFound
	}

	return state, nil
}

func (r *stateRepo) ListByDefinition(_ context.Context, definitionID string) ([]*models.WorkflowState, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.p.statesOf(definitionID), nil
}

type transitionRepo struct{ p *Persistence }

func (r *transitionRepo) Create(_ context.Context, transition *models.WorkflowTransition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.transitions[transition.ID] = transition

	return nil
}

func (r *transitionRepo) GetByID(_ context.Context, id string) (*models.WorkflowTransition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	transition, ok := r.p.transitions[id]
	if !ok {
		return nil, persistence.ErrTransitionNotFound
	}

	return transition, nil
}

func (r *transitionRepo) ListByFromState(_ context.Context, fromStateID string) ([]*models.WorkflowTransition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var matched []*models.WorkflowTransition

	for _, transition := range r.p.transitions {
		if transition.FromStateID == fromStateID {
			matched = append(matched, transition)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return matched, nil
}

func (r *transitionRepo) ListByDefinition(_ context.Context, definitionID string) ([]*models.WorkflowTransition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.p.transitionsOf(definitionID), nil
}

type instanceRepo struct{ p *Persistence }

func (r *instanceRepo) Create(_ context.Context, instance *models.WorkflowInstance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := *instance
	stored.Definition = nil
	stored.CurrentState = nil
	r.p.instances[instance.ID] = stored

	return nil
}

func (r *instanceRepo) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	instance, ok := r.p.instances[id]
	if !ok {
		return nil, persistence.ErrInstanceNotFound
	}

	return &instance, nil
}

func (r *instanceRepo) GetByIDWithDetails(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	if definition, ok := r.p.definitions[instance.WorkflowDefinitionID]; ok {
		loaded := *definition
		loaded.States = r.p.statesOf(definition.ID)
		loaded.Transitions = r.p.transitionsOf(definition.ID)
		instance.Definition = &loaded
	}

	if state, ok := r.p.states[instance.CurrentStateID]; ok {
		instance.CurrentState = state
	}

	return instance, nil
}

func (r *instanceRepo) Update(_ context.Context, instance *models.WorkflowInstance) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.instances[instance.ID]; !ok {
		return persistence.ErrInstanceNotFound
	}

	stored := *instance
	stored.Definition = nil
	stored.CurrentState = nil
	r.p.instances[instance.ID] = stored

	return nil
}

func (r *instanceRepo) list(filter func(*models.WorkflowInstance) bool) []*models.WorkflowInstance {
	var matched []*models.WorkflowInstance

	for id := range r.p.instances {
		instance := r.p.instances[id]
		if filter(&instance) {
			matched = append(matched, &instance)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return matched
}

func (r *instanceRepo) ListActive(_ context.Context) ([]*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.list(func(i *models.WorkflowInstance) bool { return i.IsActive() }), nil
}

func (r *instanceRepo) ListCompleted(_ context.Context) ([]*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.list(func(i *models.WorkflowInstance) bool { return !i.IsActive() }), nil
}

func (r *instanceRepo) ListByDefinition(_ context.Context, definitionID string) ([]*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.list(func(i *models.WorkflowInstance) bool { return i.WorkflowDefinitionID == definitionID }), nil
}

func (r *instanceRepo) ListByState(_ context.Context, stateID string) ([]*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.list(func(i *models.WorkflowInstance) bool { return i.CurrentStateID == stateID }), nil
}

func (r *instanceRepo) latest(definitionID string, filter func(*models.WorkflowInstance) bool) (*models.WorkflowInstance, error) {
	matched := r.list(func(i *models.WorkflowInstance) bool {
		return i.WorkflowDefinitionID == definitionID && filter(i)
	})

	if len(matched) == 0 {
		return nil, persistence.ErrInstanceNotFound
	}

	return matched[0], nil
}

func (r *instanceRepo) LatestByDefinition(_ context.Context, definitionID string) (*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.latest(definitionID, func(*models.WorkflowInstance) bool { return true })
}

func (r *instanceRepo) LatestActiveByDefinition(_ context.Context, definitionID string) (*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.latest(definitionID, func(i *models.WorkflowInstance) bool { return i.IsActive() })
}

func (r *instanceRepo) LatestCompletedByDefinition(_ context.Context, definitionID string) (*models.WorkflowInstance, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.latest(definitionID, func(i *models.WorkflowInstance) bool { return !i.IsActive() })
}

type stateDataRepo struct{ p *Persistence }

func (r *stateDataRepo) Create(_ context.Context, stateData *models.WorkflowStateData) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.stateData[stateData.WorkflowInstanceID] = append(r.p.stateData[stateData.WorkflowInstanceID], stateData)

	return nil
}

func (r *stateDataRepo) LatestByInstance(_ context.Context, instanceID string) (*models.WorkflowStateData, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	snapshots := r.p.stateData[instanceID]
	if len(snapshots) == 0 {
		return nil, persistence.ErrStateDataNotFound
	}

	return snapshots[len(snapshots)-1], nil
}

func (r *stateDataRepo) LatestByInstanceAndState(_ context.Context, instanceID, stateID string) (*models.WorkflowStateData, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	snapshots := r.p.stateData[instanceID]
	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].StateID == stateID {
			return snapshots[i], nil
		}
	}

	return nil, persistence.ErrStateDataNotFound
}

func (r *stateDataRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowStateData, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	snapshots := make([]*models.WorkflowStateData, len(r.p.stateData[instanceID]))
	copy(snapshots, r.p.stateData[instanceID])

	return snapshots, nil
}

type instanceDataRepo struct{ p *Persistence }

func (r *instanceDataRepo) Create(_ context.Context, instanceData *models.WorkflowInstanceData) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.instanceData[instanceData.WorkflowInstanceID] = instanceData

	return nil
}

func (r *instanceDataRepo) GetByInstance(_ context.Context, instanceID string) (*models.WorkflowInstanceData, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	instanceData, ok := r.p.instanceData[instanceID]
	if !ok {
		return nil, persistence.ErrInstanceDataNotFound
	}

	return instanceData, nil
}

func (r *instanceDataRepo) Update(_ context.Context, instanceData *models.WorkflowInstanceData) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.instanceData[instanceData.WorkflowInstanceID]; !ok {
		return persistence.ErrInstanceDataNotFound
	}

	r.p.instanceData[instanceData.WorkflowInstanceID] = instanceData

	return nil
}

type correlationRepo struct{ p *Persistence }

func (r *correlationRepo) Create(_ context.Context, correlation *models.WorkflowCorrelation) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.correlations[correlation.ID] = correlation

	return nil
}

func (r *correlationRepo) GetBySubflowInstance(_ context.Context, subflowInstanceID string) (*models.WorkflowCorrelation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, correlation := range r.p.correlations {
		if correlation.SubflowInstanceID == subflowInstanceID {
			return correlation, nil
		}
	}

	return nil, persistence.ErrCorrelationNotFound
}

func (r *correlationRepo) ListByParentInstance(_ context.Context, parentInstanceID string) ([]*models.WorkflowCorrelation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var matched []*models.WorkflowCorrelation

	for _, correlation := range r.p.correlations {
		if correlation.ParentInstanceID == parentInstanceID {
			matched = append(matched, correlation)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })

	return matched, nil
}

func (r *correlationRepo) Update(_ context.Context, correlation *models.WorkflowCorrelation) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.correlations[correlation.ID]; !ok {
		return persistence.ErrCorrelationNotFound
	}

	r.p.correlations[correlation.ID] = correlation

	return nil
}

type taskRepo struct{ p *Persistence }

func (r *taskRepo) Create(_ context.Context, task *models.WorkflowTask) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.tasks[task.ID] = task

	return nil
}

func (r *taskRepo) GetByID(_ context.Context, id string) (*models.WorkflowTask, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	task, ok := r.p.tasks[id]
	if !ok {
		return nil, persistence.ErrTaskNotFound
	}

	return task, nil
}

type assignmentRepo struct{ p *Persistence }

func (r *assignmentRepo) Create(_ context.Context, assignment *models.WorkflowTaskAssignment) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.assignments = append(r.p.assignments, assignment)

	return nil
}

func (r *assignmentRepo) listBy(filter func(*models.WorkflowTaskAssignment) bool) []*models.WorkflowTaskAssignment {
	var matched []*models.WorkflowTaskAssignment

	for _, assignment := range r.p.assignments {
		if filter(assignment) {
			matched = append(matched, assignment)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Order < matched[j].Order })

	return matched
}

func (r *assignmentRepo) ListByState(_ context.Context, stateID string) ([]*models.WorkflowTaskAssignment, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.listBy(func(a *models.WorkflowTaskAssignment) bool { return a.StateID == stateID }), nil
}

func (r *assignmentRepo) ListByTransition(_ context.Context, transitionID string) ([]*models.WorkflowTaskAssignment, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.listBy(func(a *models.WorkflowTaskAssignment) bool { return a.TransitionID == transitionID }), nil
}

func (r *assignmentRepo) ListByFunction(_ context.Context, functionID string) ([]*models.WorkflowTaskAssignment, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.listBy(func(a *models.WorkflowTaskAssignment) bool { return a.FunctionID == functionID }), nil
}

type functionRepo struct{ p *Persistence }

func (r *functionRepo) Create(_ context.Context, function *models.WorkflowFunction) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.functions[function.ID] = function

	return nil
}

func (r *functionRepo) GetByID(_ context.Context, id string) (*models.WorkflowFunction, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	function, ok := r.p.functions[id]
	if !ok {
		return nil, persistence.ErrFunctionNotFound
	}

	return function, nil
}

func (r *functionRepo) GetByName(_ context.Context, name string) (*models.WorkflowFunction, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, function := range r.p.functions {
		if function.Name == name {
			return function, nil
		}
	}

	return nil, persistence.ErrFunctionNotFound
}

func (r *functionRepo) ListActive(_ context.Context) ([]*models.WorkflowFunction, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var active []*models.WorkflowFunction

	for _, function := range r.p.functions {
		if function.IsActive {
			active = append(active, function)
		}
	}

	sort.SliceStable(active, func(i, j int) bool { return active[i].Order < active[j].Order })

	return active, nil
}

type humanTaskRepo struct{ p *Persistence }

func (r *humanTaskRepo) Create(_ context.Context, task *models.WorkflowHumanTask) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.humanTasks[task.ID] = task

	return nil
}

func (r *humanTaskRepo) GetByID(_ context.Context, id string) (*models.WorkflowHumanTask, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	task, ok := r.p.humanTasks[id]
	if !ok {
		return nil, persistence.ErrHumanTaskNotFound
	}

	return task, nil
}

func (r *humanTaskRepo) Update(_ context.Context, task *models.WorkflowHumanTask) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.humanTasks[task.ID]; !ok {
		return persistence.ErrHumanTaskNotFound
	}

	r.p.humanTasks[task.ID] = task

	return nil
}

func (r *humanTaskRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowHumanTask, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.listBy(func(t *models.WorkflowHumanTask) bool { return t.WorkflowInstanceID == instanceID }), nil
}

func (r *humanTaskRepo) ListByAssignee(_ context.Context, assignee string) ([]*models.WorkflowHumanTask, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.listBy(func(t *models.WorkflowHumanTask) bool { return t.Assignee == assignee }), nil
}

func (r *humanTaskRepo) listBy(filter func(*models.WorkflowHumanTask) bool) []*models.WorkflowHumanTask {
	var matched []*models.WorkflowHumanTask

	for _, task := range r.p.humanTasks {
		if filter(task) {
			matched = append(matched, task)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].AssignedAt.After(matched[j].AssignedAt) })

	return matched
}

type instanceTaskRepo struct{ p *Persistence }

func (r *instanceTaskRepo) Create(_ context.Context, instanceTask *models.WorkflowInstanceTask) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.instTasks[instanceTask.ID] = instanceTask

	return nil
}

func (r *instanceTaskRepo) Update(_ context.Context, instanceTask *models.WorkflowInstanceTask) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.instTasks[instanceTask.ID] = instanceTask

	return nil
}

func (r *instanceTaskRepo) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowInstanceTask, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var matched []*models.WorkflowInstanceTask

	for _, instanceTask := range r.p.instTasks {
		if instanceTask.WorkflowInstanceID == instanceID {
			matched = append(matched, instanceTask)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].StartedAt.Before(matched[j].StartedAt) })

	return matched, nil
}

type viewRepo struct{ p *Persistence }

func (r *viewRepo) Create(_ context.Context, view *models.WorkflowView) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.views = append(r.p.views, view)

	return nil
}

func (r *viewRepo) ListByState(_ context.Context, stateID string) ([]*models.WorkflowView, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var matched []*models.WorkflowView

	for _, view := range r.p.views {
		if view.StateID == stateID {
			matched = append(matched, view)
		}
	}

	return matched, nil
}

func (r *viewRepo) ListByDefinition(_ context.Context, definitionID string) ([]*models.WorkflowView, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var matched []*models.WorkflowView

	for _, view := range r.p.views {
		if view.WorkflowDefinitionID == definitionID {
			matched = append(matched, view)
		}
	}

	return matched, nil
}
