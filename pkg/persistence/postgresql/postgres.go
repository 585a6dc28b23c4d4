// Package postgresql provides the PostgreSQL persistence implementation for
// the workflow engine.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/cadenzo/cadenzo/pkg/models"
	"github.com/cadenzo/cadenzo/pkg/persistence"
	"github.com/cadenzo/cadenzo/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer on top of PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence connects, pings, and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{db: database, logger: logger}, nil
}

func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Definitions() persistence.DefinitionRepository {
	return &definitionRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) States() persistence.StateRepository {
	return &stateRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) Transitions() persistence.TransitionRepository {
	return &transitionRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return &instanceRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) StateData() persistence.StateDataRepository {
	return &stateDataRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) InstanceData() persistence.InstanceDataRepository {
	return &instanceDataRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) Correlations() persistence.CorrelationRepository {
	return &correlationRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) Tasks() persistence.TaskRepository {
	return &taskRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) TaskAssignments() persistence.TaskAssignmentRepository {
	return &taskAssignmentRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) Functions() persistence.FunctionRepository {
	return &functionRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) HumanTasks() persistence.HumanTaskRepository {
	return &humanTaskRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) InstanceTasks() persistence.InstanceTaskRepository {
	return &instanceTaskRepository{db: p.db, logger: p.logger}
}

func (p *Persistence) Views() persistence.ViewRepository {
	return &viewRepository{db: p.db, logger: p.logger}
}

// marshalDocument converts a Document for a JSONB column, mapping nil to SQL
// NULL.
func marshalDocument(document models.Document) (any, error) {
	if document == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	return encoded, nil
}

// unmarshalDocument decodes a JSONB column, mapping SQL NULL to nil.
func unmarshalDocument(raw []byte, target *models.Document) error {
	if len(raw) == 0 {
		*target = nil

		return nil
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return nil
}
