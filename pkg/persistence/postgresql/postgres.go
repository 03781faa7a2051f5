// Package postgresql provides the PostgreSQL persistence implementation of the task graph.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

const (
	pqLockNotAvailable = "55P03"
	pqQueryCanceled    = "57014"

	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	lockTimeout time.Duration
	migrations  *sqlbase.MigrationManager
}

// NewPersistence creates a new PostgreSQL persistence layer and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, lockTimeout time.Duration) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	postgres := &Persistence{
		db:          database,
		logger:      logger,
		lockTimeout: lockTimeout,
		migrations:  sqlbase.NewMigrationManager(logger, database, migrations()),
	}

	// Run migrations on initialization
	err = postgres.migrations.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// SchemaVersion returns the applied schema version.
func (p *Persistence) SchemaVersion(ctx context.Context) (int, error) {
	return p.migrations.CurrentVersion(ctx)
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Transaction runs fn inside a database transaction. Lock waits inside the transaction
// are bounded by the configured lock timeout.
func (p *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				p.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	if p.lockTimeout > 0 {
		_, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", p.lockTimeout.Milliseconds()))
		if err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	err = fn(ctx, store{q: tx, logger: p.logger})
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}

	return nil
}

func (p *Persistence) store() store {
	return store{q: p.db, logger: p.logger}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.store().Workflows()
}

func (p *Persistence) Tasks() persistence.TaskRepository {
	return p.store().Tasks()
}

func (p *Persistence) Flows() persistence.FlowRepository {
	return p.store().Flows()
}

func (p *Persistence) Cases() persistence.CaseRepository {
	return p.store().Cases()
}

func (p *Persistence) WorkItems() persistence.WorkItemRepository {
	return p.store().WorkItems()
}

func (p *Persistence) Forms() persistence.FormRepository {
	return p.store().Forms()
}

func (p *Persistence) Documents() persistence.DocumentRepository {
	return p.store().Documents()
}

// store hands out repositories bound to a connection or a transaction.
type store struct {
	q      querier
	logger *slog.Logger
}

func (s store) Workflows() persistence.WorkflowRepository {
	return &WorkflowRepository{q: s.q, logger: s.logger}
}

func (s store) Tasks() persistence.TaskRepository {
	return &TaskRepository{q: s.q, logger: s.logger}
}

func (s store) Flows() persistence.FlowRepository {
	return &FlowRepository{q: s.q, logger: s.logger}
}

func (s store) Cases() persistence.CaseRepository {
	return &CaseRepository{q: s.q, logger: s.logger}
}

func (s store) WorkItems() persistence.WorkItemRepository {
	return &WorkItemRepository{q: s.q, logger: s.logger}
}

func (s store) Forms() persistence.FormRepository {
	return &FormRepository{q: s.q, logger: s.logger}
}

func (s store) Documents() persistence.DocumentRepository {
	return &DocumentRepository{q: s.q, logger: s.logger}
}

// mapError translates lock waits that ran out of time into persistence.ErrLockTimeout.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", persistence.ErrLockTimeout, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqLockNotAvailable, pqQueryCanceled:
			return fmt.Errorf("%w: %w", persistence.ErrLockTimeout, err)
		}
	}

	return err
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
