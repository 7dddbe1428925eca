// Package engine applies task status transitions and the completion cascade
// that moves blocked dependents to ready.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fentz26/taskgraph/internal/graph"
	"github.com/fentz26/taskgraph/internal/models"
)

// TaskStore is the subset of the task store the engine writes through.
type TaskStore interface {
	GetTask(ctx context.Context, tenantID, id string) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, tenantID, id string, status models.TaskStatus, completedAt *time.Time) (*models.Task, error)
	CompareAndSetStatus(ctx context.Context, tenantID, id string, from, to models.TaskStatus) (bool, error)
}

// AuditSink receives one entry per applied transition.
type AuditSink interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Engine validates and applies status changes.
type Engine struct {
	tasks  TaskStore
	edges  graph.EdgeSource
	sink   AuditSink
	now    func() time.Time
	logger *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for completed_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger for skipped dependents and invalid edges.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(tasks TaskStore, edges graph.EdgeSource, sink AuditSink, opts ...Option) *Engine {
	e := &Engine{
		tasks:  tasks,
		edges:  edges,
		sink:   sink,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transition sets the status of one task. Completing a task also unblocks
// its direct dependents whose blockers are now all completed.
//
// Any status may follow any other. If the cascade fails part way, the
// updated task is returned together with the error; changes already
// applied are kept.
func (e *Engine) Transition(ctx context.Context, tenantID, taskID string, newStatus models.TaskStatus, actorID string) (*models.Task, error) {
	if !newStatus.IsValid() {
		return nil, &models.ValueError{Kind: models.ErrInvalidStatus, Value: string(newStatus)}
	}

	current, err := e.tasks.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}

	var completedAt *time.Time
	if newStatus == models.TaskStatusCompleted {
		now := e.now().UTC()
		completedAt = &now
	}

	updated, err := e.tasks.UpdateTaskStatus(ctx, tenantID, taskID, newStatus, completedAt)
	if err != nil {
		return nil, err
	}

	e.sink.Record(ctx, models.AuditEntry{
		TenantID:   tenantID,
		EntityType: models.EntityTask,
		EntityID:   taskID,
		Action:     models.ActionStatusChanged,
		OldValue:   string(current.Status),
		NewValue:   string(newStatus),
		ActorID:    actorID,
	})

	if newStatus != models.TaskStatusCompleted {
		return updated, nil
	}
	if _, err := e.Cascade(ctx, tenantID, taskID, actorID); err != nil {
		return updated, fmt.Errorf("cascade from %s: %w", taskID, err)
	}
	return updated, nil
}

// Cascade re-evaluates the direct dependents of taskID and moves each one
// that sits in blocked with every blocker completed to ready. It returns
// the ids it moved. Running it again for the same completion is a no-op.
//
// Only one hop is inspected: a dependent that becomes ready is not itself
// completed, so its own dependents are handled when it completes.
func (e *Engine) Cascade(ctx context.Context, tenantID, taskID, actorID string) ([]string, error) {
	g, err := e.loadGraph(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	dependents := g.DependentsOf(taskID)
	if len(dependents) == 0 {
		return nil, nil
	}

	blockers, err := e.loadGraph(ctx, tenantID, dependents...)
	if err != nil {
		return nil, err
	}

	var unblocked []string
	for _, d := range dependents {
		ok, err := e.unblock(ctx, tenantID, d, blockers, taskID, actorID)
		if err != nil {
			return unblocked, err
		}
		if ok {
			unblocked = append(unblocked, d)
		}
	}
	return unblocked, nil
}

// unblock moves one dependent from blocked to ready if nothing blocks it anymore.
func (e *Engine) unblock(ctx context.Context, tenantID, taskID string, g *graph.Graph, trigger, actorID string) (bool, error) {
	task, err := e.tasks.GetTask(ctx, tenantID, taskID)
	if errors.Is(err, models.ErrNotFound) {
		e.logger.Printf("engine: dependent %s of %s vanished, skipping", taskID, trigger)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if task.Status != models.TaskStatusBlocked {
		return false, nil
	}

	statuses := make(map[string]models.TaskStatus)
	for _, b := range g.BlockersOf(taskID) {
		bt, err := e.tasks.GetTask(ctx, tenantID, b)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		statuses[b] = bt.Status
	}
	lookup := func(id string) (models.TaskStatus, bool) {
		s, ok := statuses[id]
		return s, ok
	}
	if g.IsBlocked(taskID, lookup) {
		return false, nil
	}

	swapped, err := e.tasks.CompareAndSetStatus(ctx, tenantID, taskID, models.TaskStatusBlocked, models.TaskStatusReady)
	if err != nil {
		return false, err
	}
	if !swapped {
		// Someone else moved it first.
		return false, nil
	}

	e.sink.Record(ctx, models.AuditEntry{
		TenantID:   tenantID,
		EntityType: models.EntityTask,
		EntityID:   taskID,
		Action:     models.ActionAutoUnblocked,
		OldValue:   string(models.TaskStatusBlocked),
		NewValue:   string(models.TaskStatusReady),
		ActorID:    actorID,
		Details:    "blocker " + trigger + " completed",
	})
	return true, nil
}

func (e *Engine) loadGraph(ctx context.Context, tenantID string, scope ...string) (*graph.Graph, error) {
	edges, err := e.edges.ListEdges(ctx, tenantID, scope)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return graph.New(tenantID, edges, e.logger), nil
}
