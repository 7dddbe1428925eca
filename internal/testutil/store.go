// Package testutil provides in-memory collaborators for engine tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/taskgraph/internal/models"
)

// Store is an in-memory task store with the same read semantics as the
// SQLite store: tenant scoped, deleted rows hidden, creation order kept.
type Store struct {
	mu       sync.Mutex
	projects map[string]models.Project
	tasks    map[string]*models.Task
	deleted  map[string]bool
	order    []string
	edges    []models.TaskDependency
	seq      int

	// Fail, when set, is consulted before every operation. A non-nil
	// return aborts the operation with that error.
	Fail func(op, id string) error
	// Writes counts successful status writes.
	Writes int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		projects: make(map[string]models.Project),
		tasks:    make(map[string]*models.Task),
		deleted:  make(map[string]bool),
	}
}

func (s *Store) fail(op, id string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op, id)
}

// AddProject registers a project.
func (s *Store) AddProject(tenantID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[tenantID+"/"+id] = models.Project{ID: id, TenantID: tenantID, Name: id}
}

// AddTask stores a copy of task. Missing status and priority get defaults.
func (s *Store) AddTask(task models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.Status == "" {
		task.Status = models.TaskStatusCreated
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if _, exists := s.tasks[task.ID]; !exists {
		s.order = append(s.order, task.ID)
	}
	s.tasks[task.ID] = &task
}

// AddEdge records blocker -> blocked in tenantID.
func (s *Store) AddEdge(tenantID, blocker, blocked string) models.TaskDependency {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	dep := models.TaskDependency{
		ID:            fmt.Sprintf("dep-%d", s.seq),
		TenantID:      tenantID,
		BlockerTaskID: blocker,
		BlockedTaskID: blocked,
		Type:          models.DependencyBlocks,
		CreatedAt:     time.Now().UTC(),
	}
	s.edges = append(s.edges, dep)
	return dep
}

// Delete hides a task from reads.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[id] = true
}

// Status returns the stored status of a task regardless of tenant.
func (s *Store) Status(id string) models.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return t.Status
	}
	return ""
}

// Task returns a copy of the stored task regardless of tenant.
func (s *Store) Task(id string) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

func (s *Store) live(tenantID, id string) (*models.Task, bool) {
	t, ok := s.tasks[id]
	if !ok || s.deleted[id] || t.TenantID != tenantID {
		return nil, false
	}
	return t, true
}

// GetProject implements the project lookup.
func (s *Store) GetProject(_ context.Context, tenantID, id string) (*models.Project, error) {
	if err := s.fail("GetProject", id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[tenantID+"/"+id]
	if !ok {
		return nil, models.NotFoundf("project %s", id)
	}
	return &p, nil
}

// GetTask implements the task lookup.
func (s *Store) GetTask(_ context.Context, tenantID, id string) (*models.Task, error) {
	if err := s.fail("GetTask", id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.live(tenantID, id)
	if !ok {
		return nil, models.NotFoundf("task %s", id)
	}
	cp := *t
	return &cp, nil
}

// UpdateTaskStatus implements the status write.
func (s *Store) UpdateTaskStatus(_ context.Context, tenantID, id string, status models.TaskStatus, completedAt *time.Time) (*models.Task, error) {
	if err := s.fail("UpdateTaskStatus", id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.live(tenantID, id)
	if !ok {
		return nil, models.NotFoundf("task %s", id)
	}
	t.Status = status
	if completedAt != nil {
		c := *completedAt
		t.CompletedAt = &c
	}
	t.UpdatedAt = time.Now().UTC()
	s.Writes++
	cp := *t
	return &cp, nil
}

// CompareAndSetStatus implements the conditional status write.
func (s *Store) CompareAndSetStatus(_ context.Context, tenantID, id string, from, to models.TaskStatus) (bool, error) {
	if err := s.fail("CompareAndSetStatus", id); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.live(tenantID, id)
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	s.Writes++
	return true, nil
}

func (s *Store) list(tenantID string, keep func(*models.Task) bool) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Task
	for _, id := range s.order {
		t, ok := s.live(tenantID, id)
		if ok && keep(t) {
			out = append(out, *t)
		}
	}
	return out
}

// ListByProject implements the project listing.
func (s *Store) ListByProject(_ context.Context, tenantID, projectID string) ([]models.Task, error) {
	if err := s.fail("ListByProject", projectID); err != nil {
		return nil, err
	}
	return s.list(tenantID, func(t *models.Task) bool { return t.ProjectID == projectID }), nil
}

// ListByAssignee implements the assignee listing.
func (s *Store) ListByAssignee(_ context.Context, tenantID, userID string) ([]models.Task, error) {
	if err := s.fail("ListByAssignee", userID); err != nil {
		return nil, err
	}
	return s.list(tenantID, func(t *models.Task) bool { return t.AssigneeID == userID }), nil
}

// ListUnassigned implements the unassigned listing.
func (s *Store) ListUnassigned(_ context.Context, tenantID string) ([]models.Task, error) {
	if err := s.fail("ListUnassigned", ""); err != nil {
		return nil, err
	}
	return s.list(tenantID, func(t *models.Task) bool { return t.AssigneeID == "" }), nil
}

// ListEdges implements the edge source.
func (s *Store) ListEdges(_ context.Context, tenantID string, scope []string) ([]models.TaskDependency, error) {
	if err := s.fail("ListEdges", ""); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inScope := make(map[string]bool, len(scope))
	for _, id := range scope {
		inScope[id] = true
	}
	var out []models.TaskDependency
	for _, e := range s.edges {
		if e.TenantID != tenantID {
			continue
		}
		if len(scope) > 0 && !inScope[e.BlockerTaskID] && !inScope[e.BlockedTaskID] {
			continue
		}
		blocker, ok1 := s.tasks[e.BlockerTaskID]
		blocked, ok2 := s.tasks[e.BlockedTaskID]
		if !ok1 || !ok2 || s.deleted[e.BlockerTaskID] || s.deleted[e.BlockedTaskID] {
			continue
		}
		e.BlockerTenantID = blocker.TenantID
		e.BlockedTenantID = blocked.TenantID
		out = append(out, e)
	}
	return out, nil
}

// AuditLog is an audit sink that keeps entries in memory.
type AuditLog struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

// Record implements the audit sink.
func (a *AuditLog) Record(_ context.Context, e models.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

// Entries returns a copy of everything recorded so far.
func (a *AuditLog) Entries() []models.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.AuditEntry(nil), a.entries...)
}

// ByAction returns the recorded entries with the given action.
func (a *AuditLog) ByAction(action string) []models.AuditEntry {
	var out []models.AuditEntry
	for _, e := range a.Entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
