package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/taskgraph/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestProjects(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "t1", "Launch")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	got, err := s.GetProject(ctx, "t1", p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != "Launch" {
		t.Errorf("Expected name Launch, got %s", got.Name)
	}

	// Other tenants cannot see it
	if _, err := s.GetProject(ctx, "t2", p.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound across tenants, got %v", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	task, err := s.CreateTask(ctx, models.NewTask{
		TenantID:   "t1",
		ProjectID:  "p1",
		Title:      "  Ｗrite docs ",
		Priority:   models.PriorityHigh,
		AssigneeID: "alice",
		DueDate:    &due,
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.Status != models.TaskStatusCreated {
		t.Errorf("Expected status created, got %s", task.Status)
	}
	if task.Title != "Write docs" {
		t.Errorf("Expected NFKC-normalized title, got %q", task.Title)
	}

	got, err := s.GetTask(ctx, "t1", task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Priority != models.PriorityHigh || got.AssigneeID != "alice" {
		t.Errorf("Unexpected task: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("Expected due date %v, got %v", due, got.DueDate)
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt should be unset")
	}

	if _, err := s.GetTask(ctx, "t2", task.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound across tenants, got %v", err)
	}

	// Update status
	now := time.Now().UTC()
	updated, err := s.UpdateTaskStatus(ctx, "t1", task.ID, models.TaskStatusCompleted, &now)
	if err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	if updated.Status != models.TaskStatusCompleted || updated.CompletedAt == nil {
		t.Errorf("Expected completed with completed_at, got %+v", updated)
	}

	// Moving away from completed keeps the completion time
	updated, err = s.UpdateTaskStatus(ctx, "t1", task.ID, models.TaskStatusReview, nil)
	if err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Error("CompletedAt should be left untouched")
	}

	if _, err := s.UpdateTaskStatus(ctx, "t1", "missing", models.TaskStatusReady, nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	task := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "B", Status: models.TaskStatusBlocked})

	swapped, err := s.CompareAndSetStatus(ctx, "t1", task.ID, models.TaskStatusBlocked, models.TaskStatusReady)
	if err != nil {
		t.Fatalf("CompareAndSetStatus failed: %v", err)
	}
	if !swapped {
		t.Fatal("Expected first swap to apply")
	}

	// Second attempt is a no-op
	swapped, err = s.CompareAndSetStatus(ctx, "t1", task.ID, models.TaskStatusBlocked, models.TaskStatusReady)
	if err != nil {
		t.Fatalf("CompareAndSetStatus failed: %v", err)
	}
	if swapped {
		t.Error("Expected second swap to be a no-op")
	}

	got, _ := s.GetTask(ctx, "t1", task.ID)
	if got.Status != models.TaskStatusReady {
		t.Errorf("Expected ready, got %s", got.Status)
	}
}

func TestMalformedStatusReadsAsCreated(t *testing.T) {
	var logs bytes.Buffer
	s := newTestStore(t, WithLogger(log.New(&logs, "", 0)))
	defer s.Close()
	ctx := context.Background()

	task := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "X"})
	if _, err := s.db.Exec(`UPDATE tasks SET status = 'DONE!!', priority = 'urgent' WHERE id = ?`, task.ID); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	got, err := s.GetTask(ctx, "t1", task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != models.TaskStatusCreated {
		t.Errorf("Expected created, got %s", got.Status)
	}
	if got.Priority != models.PriorityMedium {
		t.Errorf("Expected medium, got %s", got.Priority)
	}
	if !strings.Contains(logs.String(), `status "DONE!!"`) || !strings.Contains(logs.String(), `priority "urgent"`) {
		t.Errorf("Expected repairs to be logged, got %q", logs.String())
	}
}

func TestListings(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	a := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "A", AssigneeID: "alice"})
	b := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "B"})
	c := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p2", Title: "C"})
	mustCreateTask(t, s, models.NewTask{TenantID: "t2", ProjectID: "p1", Title: "D"})

	tasks, err := s.ListByProject(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("ListByProject failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != a.ID || tasks[1].ID != b.ID {
		t.Errorf("Expected [A B] in creation order, got %v", ids(tasks))
	}

	tasks, _ = s.ListByAssignee(ctx, "t1", "alice")
	if len(tasks) != 1 || tasks[0].ID != a.ID {
		t.Errorf("Expected [A], got %v", ids(tasks))
	}

	tasks, _ = s.ListUnassigned(ctx, "t1")
	if len(tasks) != 2 || tasks[0].ID != b.ID || tasks[1].ID != c.ID {
		t.Errorf("Expected [B C], got %v", ids(tasks))
	}

	// Soft-deleted rows disappear from every read
	if err := s.SoftDeleteTask(ctx, "t1", b.ID); err != nil {
		t.Fatalf("SoftDeleteTask failed: %v", err)
	}
	tasks, _ = s.ListUnassigned(ctx, "t1")
	if len(tasks) != 1 || tasks[0].ID != c.ID {
		t.Errorf("Expected [C] after delete, got %v", ids(tasks))
	}
	if _, err := s.GetTask(ctx, "t1", b.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for deleted task, got %v", err)
	}
	if err := s.SoftDeleteTask(ctx, "t1", b.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second delete, got %v", err)
	}
}

func TestDependencies(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	a := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "A"})
	b := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "B"})
	c := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "C"})
	other := mustCreateTask(t, s, models.NewTask{TenantID: "t2", ProjectID: "p1", Title: "X"})

	ab, err := s.CreateDependency(ctx, "t1", a.ID, b.ID)
	if err != nil {
		t.Fatalf("CreateDependency failed: %v", err)
	}
	if _, err := s.CreateDependency(ctx, "t1", b.ID, c.ID); err != nil {
		t.Fatalf("CreateDependency failed: %v", err)
	}

	if _, err := s.CreateDependency(ctx, "t1", a.ID, a.ID); !errors.Is(err, models.ErrInvalidEdge) {
		t.Errorf("Expected ErrInvalidEdge for self loop, got %v", err)
	}
	if _, err := s.CreateDependency(ctx, "t1", a.ID, b.ID); !errors.Is(err, models.ErrDuplicateEdge) {
		t.Errorf("Expected ErrDuplicateEdge, got %v", err)
	}
	if _, err := s.CreateDependency(ctx, "t1", a.ID, other.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for other tenant's task, got %v", err)
	}

	edges, err := s.ListEdges(ctx, "t1", []string{a.ID})
	if err != nil {
		t.Fatalf("ListEdges failed: %v", err)
	}
	if len(edges) != 1 || edges[0].BlockedTaskID != b.ID {
		t.Errorf("Expected only A->B in scope of A, got %+v", edges)
	}

	edges, _ = s.ListEdges(ctx, "t1", nil)
	if len(edges) != 2 {
		t.Errorf("Expected 2 edges for the tenant, got %d", len(edges))
	}

	if _, err := s.DeleteDependency(ctx, "t1", ab.ID); err != nil {
		t.Fatalf("DeleteDependency failed: %v", err)
	}
	if _, err := s.DeleteDependency(ctx, "t1", ab.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	edges, _ = s.ListEdges(ctx, "t1", nil)
	if len(edges) != 1 {
		t.Errorf("Expected 1 edge after delete, got %d", len(edges))
	}
}

func TestListEdgesLargeScope(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	a := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "A"})
	b := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "B"})
	c := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "C"})
	ab, err := s.CreateDependency(ctx, "t1", a.ID, b.ID)
	if err != nil {
		t.Fatalf("CreateDependency failed: %v", err)
	}
	bc, err := s.CreateDependency(ctx, "t1", b.ID, c.ID)
	if err != nil {
		t.Fatalf("CreateDependency failed: %v", err)
	}

	// 17,000 ids bound twice each exceed SQLite's host parameter limit.
	// A lands in the first chunk, B and C in the last, so A->B is seen twice.
	scope := []string{a.ID}
	for i := 0; i < 17000; i++ {
		scope = append(scope, fmt.Sprintf("missing-%d", i))
	}
	scope = append(scope, b.ID, c.ID)

	edges, err := s.ListEdges(ctx, "t1", scope)
	if err != nil {
		t.Fatalf("ListEdges failed: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("Expected 2 distinct edges, got %d: %+v", len(edges), edges)
	}
	if edges[0].ID != ab.ID || edges[1].ID != bc.ID {
		t.Errorf("Expected A->B then B->C, got %s, %s", edges[0].ID, edges[1].ID)
	}
}

func TestDuplicateEdgeFromUniqueIndex(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	insert := `INSERT INTO task_dependencies (id, tenant_id, blocker_task_id, blocked_task_id, type, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Exec(insert, "dep-1", "t1", "a", "b", "blocks", time.Now().UTC()); err != nil {
		t.Fatalf("insert edge: %v", err)
	}
	_, err := s.db.Exec(insert, "dep-2", "t1", "a", "b", "blocks", time.Now().UTC())
	if err == nil {
		t.Fatal("Expected the unique index to reject the pair")
	}
	if !isUniqueViolation(err) {
		t.Errorf("Expected a unique violation, got %v", err)
	}
	if isUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Error("Expected plain errors not to count as unique violations")
	}
}

func TestListEdgesReportsEndpointTenants(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	a := mustCreateTask(t, s, models.NewTask{TenantID: "t1", ProjectID: "p1", Title: "A"})
	x := mustCreateTask(t, s, models.NewTask{TenantID: "t2", ProjectID: "p1", Title: "X"})

	// Written behind the API's back, as an import would.
	_, err := s.db.Exec(
		`INSERT INTO task_dependencies (id, tenant_id, blocker_task_id, blocked_task_id, type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"dep-1", "t1", a.ID, x.ID, "blocks", time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("insert edge: %v", err)
	}

	edges, err := s.ListEdges(ctx, "t1", nil)
	if err != nil {
		t.Fatalf("ListEdges failed: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(edges))
	}
	if edges[0].BlockerTenantID != "t1" || edges[0].BlockedTenantID != "t2" {
		t.Errorf("Expected endpoint tenants t1/t2, got %s/%s", edges[0].BlockerTenantID, edges[0].BlockedTenantID)
	}
}

func TestAudit(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	entry := &models.AuditEntry{
		ID:         "01HZZZZZZZZZZZZZZZZZZZZZZ1",
		TenantID:   "t1",
		EntityType: models.EntityTask,
		EntityID:   "task-1",
		Action:     models.ActionStatusChanged,
		OldValue:   "blocked",
		NewValue:   "ready",
		ActorID:    "alice",
		InputsHash: "abc123",
		Timestamp:  time.Now().UTC(),
	}
	if err := s.WriteAudit(ctx, entry); err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}
	if err := s.WriteAudit(ctx, &models.AuditEntry{}); err == nil {
		t.Error("Expected error for entry without id")
	}

	entries, err := s.ListAudit(ctx, "t1", "task-1")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 || entries[0].NewValue != "ready" || entries[0].ActorID != "alice" {
		t.Errorf("Unexpected audit entries: %+v", entries)
	}
}

func TestClosedStoreReturnsTransientError(t *testing.T) {
	s := newTestStore(t)
	s.Close()

	_, err := s.GetTask(context.Background(), "t1", "x")
	if !errors.Is(err, models.ErrTransientStore) {
		t.Errorf("Expected ErrTransientStore, got %v", err)
	}
	if err := s.SoftDeleteTask(context.Background(), "t1", "x"); !errors.Is(err, models.ErrTransientStore) {
		t.Errorf("Expected ErrTransientStore from SoftDeleteTask, got %v", err)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Ping(ctx)
	if err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath, opts...)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func mustCreateTask(t *testing.T, s *Store, in models.NewTask) *models.Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func ids(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
