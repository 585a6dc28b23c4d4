package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cadenzo/cadenzo/pkg/persistence"
	"github.com/cadenzo/cadenzo/pkg/persistence/memory"
	"github.com/cadenzo/cadenzo/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme.
// postgres:// and postgresql:// use PostgreSQL; memory:// (and an empty URL)
// use the in-memory store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return store
	default:
		return memory.NewPersistence()
	}
}
