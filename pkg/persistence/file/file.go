// Package file provides a file-backed persistence implementation. The whole task graph
// lives in memory and is snapshotted to a JSON file on every commit.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/casework/pkg/persistence"
)

const stateFile = "casework.json"

// Persistence implements persistence.Persistence on the local file system. Writers are
// serialized by a single semaphore; readers see the last committed state.
type Persistence struct {
	root        string // Empty root keeps everything in memory
	lockTimeout time.Duration
	logger      *slog.Logger

	writer chan struct{}

	mu    sync.RWMutex
	state *state
}

// NewPersistence creates a file persistence rooted at root, loading any existing
// snapshot. A "file://" prefix is accepted. An empty root keeps the state in memory only.
func NewPersistence(logger *slog.Logger, root string, lockTimeout time.Duration) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{
		root:        cleanRoot,
		lockTimeout: lockTimeout,
		logger:      logger,
		writer:      make(chan struct{}, 1),
		state:       newState(),
	}

	if cleanRoot == "" {
		return p, nil
	}

	data, err := os.ReadFile(p.path())
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	loaded := newState()

	err = json.Unmarshal(data, loaded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}

	loaded.ensure()
	p.state = loaded

	logger.Info("Loaded file persistence", "root", cleanRoot, "cases", len(loaded.Cases), "work_items", len(loaded.WorkItems))

	return p, nil
}

func (p *Persistence) path() string {
	return filepath.Join(p.root, stateFile)
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if p.root == "" {
		return nil
	}

	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Transaction runs fn against a private copy of the state and publishes the copy only
// when fn succeeds.
func (p *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release()

	p.mu.RLock()
	working := p.state.clone()
	p.mu.RUnlock()

	err = fn(ctx, store{v: &txView{state: working}})
	if err != nil {
		return err
	}

	err = p.flush(working)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.state = working
	p.mu.Unlock()

	return nil
}

func (p *Persistence) acquire(ctx context.Context) error {
	if p.lockTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.lockTimeout)
		defer cancel()
	}

	select {
	case p.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", persistence.ErrLockTimeout, ctx.Err())
		}

		return ctx.Err()
	}
}

func (p *Persistence) release() {
	<-p.writer
}

func (p *Persistence) flush(st *state) error {
	if p.root == "" {
		return nil
	}

	err := os.MkdirAll(p.root, 0750)
	if err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := p.path() + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	err = os.Rename(tmp, p.path())
	if err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// read runs fn against the committed state.
func (p *Persistence) read(fn func(st *state) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return fn(p.state)
}

// write runs fn in its own transaction.
func (p *Persistence) write(ctx context.Context, fn func(st *state) error) error {
	return p.Transaction(ctx, func(_ context.Context, tx persistence.Tx) error {
		return tx.(store).v.write(ctx, fn)
	})
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return store{v: p}.Workflows()
}

func (p *Persistence) Tasks() persistence.TaskRepository {
	return store{v: p}.Tasks()
}

func (p *Persistence) Flows() persistence.FlowRepository {
	return store{v: p}.Flows()
}

func (p *Persistence) Cases() persistence.CaseRepository {
	return store{v: p}.Cases()
}

func (p *Persistence) WorkItems() persistence.WorkItemRepository {
	return store{v: p}.WorkItems()
}

func (p *Persistence) Forms() persistence.FormRepository {
	return store{v: p}.Forms()
}

func (p *Persistence) Documents() persistence.DocumentRepository {
	return store{v: p}.Documents()
}

// view is the state a repository works on: the committed state or a transaction copy.
type view interface {
	read(fn func(st *state) error) error
	write(ctx context.Context, fn func(st *state) error) error
}

type txView struct {
	state *state
}

func (v *txView) read(fn func(st *state) error) error {
	return fn(v.state)
}

func (v *txView) write(_ context.Context, fn func(st *state) error) error {
	return fn(v.state)
}

// store hands out repositories bound to a view.
type store struct {
	v view
}

func (s store) Workflows() persistence.WorkflowRepository {
	return &workflowRepository{v: s.v}
}

func (s store) Tasks() persistence.TaskRepository {
	return &taskRepository{v: s.v}
}

func (s store) Flows() persistence.FlowRepository {
	return &flowRepository{v: s.v}
}

func (s store) Cases() persistence.CaseRepository {
	return &caseRepository{v: s.v}
}

func (s store) WorkItems() persistence.WorkItemRepository {
	return &workItemRepository{v: s.v}
}

func (s store) Forms() persistence.FormRepository {
	return &formRepository{v: s.v}
}

func (s store) Documents() persistence.DocumentRepository {
	return &documentRepository{v: s.v}
}
