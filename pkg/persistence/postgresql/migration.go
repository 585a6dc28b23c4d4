package postgresql

// migrations returns the schema by version. Version 1 creates the full
// workflow schema.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_definitions (
				id UUID PRIMARY KEY,
				name VARCHAR(100) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				version VARCHAR(20) NOT NULL,
				client_version VARCHAR(20) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				archived_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_definitions_name ON workflow_definitions(name) WHERE archived_at IS NULL;

			CREATE TABLE IF NOT EXISTS workflow_states (
				id UUID PRIMARY KEY,
				workflow_definition_id UUID NOT NULL REFERENCES workflow_definitions(id),
				name VARCHAR(100) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				state_type VARCHAR(20) NOT NULL,
				sub_type VARCHAR(20) NOT NULL DEFAULT 'none',
				subflow_config JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				archived_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_states_definition ON workflow_states(workflow_definition_id);

			CREATE TABLE IF NOT EXISTS workflow_transitions (
				id UUID PRIMARY KEY,
				workflow_definition_id UUID NOT NULL REFERENCES workflow_definitions(id),
				from_state_id UUID NOT NULL REFERENCES workflow_states(id),
				to_state_id UUID NOT NULL REFERENCES workflow_states(id),
				name VARCHAR(100) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(20) NOT NULL,
				trigger_config JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_transitions_from_state ON workflow_transitions(from_state_id);
			CREATE INDEX IF NOT EXISTS idx_transitions_definition ON workflow_transitions(workflow_definition_id);

			CREATE TABLE IF NOT EXISTS workflow_instances (
				id UUID PRIMARY KEY,
				workflow_definition_id UUID NOT NULL REFERENCES workflow_definitions(id),
				current_state_id UUID NOT NULL REFERENCES workflow_states(id),
				status VARCHAR(50) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_instances_definition ON workflow_instances(workflow_definition_id);
			CREATE INDEX IF NOT EXISTS idx_instances_state ON workflow_instances(current_state_id) WHERE completed_at IS NULL;

			CREATE TABLE IF NOT EXISTS workflow_state_data (
				id UUID PRIMARY KEY,
				workflow_instance_id UUID NOT NULL REFERENCES workflow_instances(id),
				state_id UUID NOT NULL REFERENCES workflow_states(id),
				data JSONB NOT NULL DEFAULT '{}',
				entered_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_state_data_instance ON workflow_state_data(workflow_instance_id, entered_at);

			CREATE TABLE IF NOT EXISTS workflow_instance_data (
				id UUID PRIMARY KEY,
				workflow_instance_id UUID NOT NULL UNIQUE REFERENCES workflow_instances(id),
				data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS workflow_correlations (
				id UUID PRIMARY KEY,
				parent_instance_id UUID NOT NULL REFERENCES workflow_instances(id),
				parent_state_id UUID NOT NULL REFERENCES workflow_states(id),
				subflow_instance_id UUID NOT NULL UNIQUE REFERENCES workflow_instances(id),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_correlations_parent ON workflow_correlations(parent_instance_id);

			CREATE TABLE IF NOT EXISTS workflow_tasks (
				id UUID PRIMARY KEY,
				name VARCHAR(100) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				type VARCHAR(20) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS workflow_functions (
				id UUID PRIMARY KEY,
				name VARCHAR(100) NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				task_id UUID NOT NULL REFERENCES workflow_tasks(id),
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				state_id UUID REFERENCES workflow_states(id),
				workflow_definition_id UUID REFERENCES workflow_definitions(id),
				function_order INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_functions_active ON workflow_functions(function_order) WHERE is_active;

			CREATE TABLE IF NOT EXISTS workflow_task_assignments (
				id UUID PRIMARY KEY,
				task_id UUID NOT NULL REFERENCES workflow_tasks(id),
				state_id UUID REFERENCES workflow_states(id),
				transition_id UUID REFERENCES workflow_transitions(id),
				function_id UUID REFERENCES workflow_functions(id),
				task_trigger VARCHAR(20) NOT NULL,
				task_order INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CHECK (num_nonnulls(state_id, transition_id, function_id) = 1)
			);
			CREATE INDEX IF NOT EXISTS idx_assignments_state ON workflow_task_assignments(state_id, task_order);
			CREATE INDEX IF NOT EXISTS idx_assignments_transition ON workflow_task_assignments(transition_id, task_order);
			CREATE INDEX IF NOT EXISTS idx_assignments_function ON workflow_task_assignments(function_id, task_order);

			CREATE TABLE IF NOT EXISTS workflow_human_tasks (
				id UUID PRIMARY KEY,
				workflow_instance_id UUID NOT NULL REFERENCES workflow_instances(id),
				state_id UUID NOT NULL REFERENCES workflow_states(id),
				name VARCHAR(100) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				assignee VARCHAR(100) NOT NULL,
				form JSONB,
				instructions TEXT NOT NULL DEFAULT '',
				result TEXT NOT NULL DEFAULT '',
				assigned_at TIMESTAMP WITH TIME ZONE NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_human_tasks_assignee ON workflow_human_tasks(assignee) WHERE completed_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_human_tasks_instance ON workflow_human_tasks(workflow_instance_id);

			CREATE TABLE IF NOT EXISTS workflow_instance_tasks (
				id UUID PRIMARY KEY,
				workflow_instance_id UUID NOT NULL REFERENCES workflow_instances(id),
				workflow_task_id UUID NOT NULL REFERENCES workflow_tasks(id),
				state_id UUID NOT NULL,
				task_name VARCHAR(100) NOT NULL,
				task_type VARCHAR(20) NOT NULL,
				status VARCHAR(20) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				error TEXT NOT NULL DEFAULT '',
				result TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_instance_tasks_instance ON workflow_instance_tasks(workflow_instance_id, started_at);

			CREATE TABLE IF NOT EXISTS workflow_views (
				id UUID PRIMARY KEY,
				workflow_definition_id UUID NOT NULL REFERENCES workflow_definitions(id),
				state_id UUID REFERENCES workflow_states(id),
				transition_id UUID REFERENCES workflow_transitions(id),
				type VARCHAR(20) NOT NULL,
				target VARCHAR(20) NOT NULL,
				version VARCHAR(20) NOT NULL,
				workflow_version VARCHAR(20) NOT NULL,
				content TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_views_definition ON workflow_views(workflow_definition_id);
		`,
	}
}
