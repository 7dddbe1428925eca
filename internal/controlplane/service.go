// Package controlplane provides the HTTP API and service layer for taskgraph.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fentz26/taskgraph/internal/audit"
	"github.com/fentz26/taskgraph/internal/config"
	"github.com/fentz26/taskgraph/internal/engine"
	"github.com/fentz26/taskgraph/internal/graph"
	"github.com/fentz26/taskgraph/internal/layout"
	"github.com/fentz26/taskgraph/internal/models"
	"github.com/fentz26/taskgraph/internal/ranker"
	"github.com/fentz26/taskgraph/internal/store"
)

// Service provides the control plane business logic.
type Service struct {
	store  *store.Store
	sink   audit.Sink
	engine *engine.Engine
	layout *layout.Engine
	ranker *ranker.Ranker
	logger *log.Logger
}

// NewService creates a new control plane service. A nil cfg uses the defaults.
func NewService(st *store.Store, sink audit.Sink, cfg *config.Config, logger *log.Logger) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:  st,
		sink:   sink,
		engine: engine.New(st, st, sink, engine.WithLogger(logger)),
		layout: layout.New(st,
			layout.WithGridColumns(cfg.Layout.GridColumns),
			layout.WithSpacing(cfg.Layout.LayerSpacing, cfg.Layout.RowSpacing),
			layout.WithLogger(logger),
		),
		ranker: ranker.New(st, st,
			ranker.WithLimit(cfg.Ranker.Limit),
			ranker.WithLogger(logger),
		),
		logger: logger,
	}
}

// Health pings the database.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Project Operations ---

// CreateProject creates a project.
func (s *Service) CreateProject(ctx context.Context, tenantID, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name required", ErrInvalidInput)
	}
	return s.store.CreateProject(ctx, tenantID, name)
}

// GetProject retrieves a project.
func (s *Service) GetProject(ctx context.Context, tenantID, id string) (*models.Project, error) {
	return s.store.GetProject(ctx, tenantID, id)
}

// ListProjectTasks returns the live tasks of a project.
func (s *Service) ListProjectTasks(ctx context.Context, tenantID, projectID string) ([]models.Task, error) {
	if _, err := s.store.GetProject(ctx, tenantID, projectID); err != nil {
		return nil, err
	}
	return s.store.ListByProject(ctx, tenantID, projectID)
}

// ProjectGraph computes the display layout of a project's dependency graph.
func (s *Service) ProjectGraph(ctx context.Context, tenantID, projectID string) (*models.GraphLayout, error) {
	return s.layout.Compute(ctx, tenantID, projectID)
}

// --- Task Operations ---

// CreateTaskInput holds the caller-supplied fields of a new task.
type CreateTaskInput struct {
	ProjectID    string     `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	AssigneeID   string     `json:"assignee_id"`
	DueDate      *time.Time `json:"due_date"`
	ParentTaskID string     `json:"parent_task_id"`
}

// CreateTask validates and inserts a task.
func (s *Service) CreateTask(ctx context.Context, tenantID, actorID string, in CreateTaskInput) (*models.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if in.ProjectID == "" {
		return nil, fmt.Errorf("%w: project_id required", ErrInvalidInput)
	}
	status := models.TaskStatusCreated
	if in.Status != "" {
		var err error
		if status, err = models.ParseTaskStatus(in.Status); err != nil {
			return nil, err
		}
	}
	priority, err := models.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetProject(ctx, tenantID, in.ProjectID); err != nil {
		return nil, err
	}
	if in.ParentTaskID != "" {
		if _, err := s.store.GetTask(ctx, tenantID, in.ParentTaskID); err != nil {
			return nil, err
		}
	}

	task, err := s.store.CreateTask(ctx, models.NewTask{
		TenantID:     tenantID,
		ProjectID:    in.ProjectID,
		Title:        in.Title,
		Description:  in.Description,
		Status:       status,
		Priority:     priority,
		AssigneeID:   in.AssigneeID,
		DueDate:      in.DueDate,
		ParentTaskID: in.ParentTaskID,
	})
	if err != nil {
		return nil, err
	}

	s.sink.Record(ctx, models.AuditEntry{
		TenantID:   tenantID,
		EntityType: models.EntityTask,
		EntityID:   task.ID,
		Action:     models.ActionTaskCreated,
		NewValue:   string(task.Status),
		ActorID:    actorID,
		Details:    task.Title,
	})
	return task, nil
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(ctx context.Context, tenantID, id string) (*models.Task, error) {
	return s.store.GetTask(ctx, tenantID, id)
}

// DeleteTask soft-deletes a task. Its edges stop counting immediately.
func (s *Service) DeleteTask(ctx context.Context, tenantID, actorID, id string) error {
	task, err := s.store.GetTask(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.store.SoftDeleteTask(ctx, tenantID, id); err != nil {
		return err
	}
	s.sink.Record(ctx, models.AuditEntry{
		TenantID:   tenantID,
		EntityType: models.EntityTask,
		EntityID:   id,
		Action:     models.ActionTaskDeleted,
		OldValue:   string(task.Status),
		ActorID:    actorID,
	})
	return nil
}

// TransitionTask applies a status change and its completion cascade.
func (s *Service) TransitionTask(ctx context.Context, tenantID, actorID, id, status string) (*models.Task, error) {
	next, err := models.ParseTaskStatus(status)
	if err != nil {
		return nil, err
	}
	return s.engine.Transition(ctx, tenantID, id, next, actorID)
}

// Blockers returns the live tasks that must complete before id.
func (s *Service) Blockers(ctx context.Context, tenantID, id string) ([]models.Task, error) {
	return s.neighbours(ctx, tenantID, id, (*graph.Graph).BlockersOf)
}

// Dependents returns the live tasks that id blocks.
func (s *Service) Dependents(ctx context.Context, tenantID, id string) ([]models.Task, error) {
	return s.neighbours(ctx, tenantID, id, (*graph.Graph).DependentsOf)
}

func (s *Service) neighbours(ctx context.Context, tenantID, id string, pick func(*graph.Graph, string) []string) ([]models.Task, error) {
	if _, err := s.store.GetTask(ctx, tenantID, id); err != nil {
		return nil, err
	}
	edges, err := s.store.ListEdges(ctx, tenantID, []string{id})
	if err != nil {
		return nil, err
	}
	g := graph.New(tenantID, edges, s.logger)

	tasks := []models.Task{}
	for _, other := range pick(g, id) {
		t, err := s.store.GetTask(ctx, tenantID, other)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

// TaskAudit returns the audit trail of a task, oldest first.
func (s *Service) TaskAudit(ctx context.Context, tenantID, id string) ([]models.AuditEntry, error) {
	if _, err := s.store.GetTask(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, tenantID, id)
}

// --- Dependency Operations ---

// AddDependency records that blocker must complete before blocked.
func (s *Service) AddDependency(ctx context.Context, tenantID, actorID, blockerID, blockedID string) (*models.TaskDependency, error) {
	if blockerID == "" || blockedID == "" {
		return nil, fmt.Errorf("%w: blocker_task_id and blocked_task_id required", ErrInvalidInput)
	}
	dep, err := s.store.CreateDependency(ctx, tenantID, blockerID, blockedID)
	if err != nil {
		return nil, err
	}
	s.sink.Record(ctx, models.AuditEntry{
		TenantID:   tenantID,
		EntityType: models.EntityDependency,
		EntityID:   dep.ID,
		Action:     models.ActionDependencyAdded,
		NewValue:   blockerID + " -> " + blockedID,
		ActorID:    actorID,
	})
	return dep, nil
}

// RemoveDependency deletes an edge. Dependents are not re-evaluated.
func (s *Service) RemoveDependency(ctx context.Context, tenantID, actorID, id string) error {
	dep, err := s.store.DeleteDependency(ctx, tenantID, id)
	if err != nil {
		return err
	}
	s.sink.Record(ctx, models.AuditEntry{
		TenantID:   tenantID,
		EntityType: models.EntityDependency,
		EntityID:   dep.ID,
		Action:     models.ActionDependencyRemoved,
		OldValue:   dep.BlockerTaskID + " -> " + dep.BlockedTaskID,
		ActorID:    actorID,
	})
	return nil
}

// --- Ranking ---

// WhatsNext returns the user's ranked actionable tasks.
func (s *Service) WhatsNext(ctx context.Context, tenantID, userID string, limit int) ([]models.NextTask, error) {
	return s.ranker.WhatsNext(ctx, tenantID, userID, limit)
}
