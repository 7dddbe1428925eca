// Package models defines the core domain types for taskgraph.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "created"
	TaskStatusReady      TaskStatus = "ready"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// AllTaskStatuses lists every known status in lifecycle order.
var AllTaskStatuses = []TaskStatus{
	TaskStatusCreated,
	TaskStatusReady,
	TaskStatusInProgress,
	TaskStatusReview,
	TaskStatusCompleted,
	TaskStatusBlocked,
	TaskStatusCancelled,
}

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusCreated, TaskStatusReady, TaskStatusInProgress, TaskStatusReview,
		TaskStatusCompleted, TaskStatusBlocked, TaskStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further work is expected on the task.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// ParseTaskStatus parses caller input strictly.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(raw)
	if !s.IsValid() {
		return "", &ValueError{Kind: ErrInvalidStatus, Value: raw}
	}
	return s, nil
}

// NormalizeTaskStatus maps a persisted value onto the enumeration.
// Unknown values read as created; ok is false when that happened.
func NormalizeTaskStatus(raw string) (status TaskStatus, ok bool) {
	s := TaskStatus(raw)
	if !s.IsValid() {
		return TaskStatusCreated, false
	}
	return s, true
}

// Priority orders tasks by importance.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns 0 for critical through 3 for low. Unknown priorities rank as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority parses caller input strictly. Empty input means medium.
func ParsePriority(raw string) (Priority, error) {
	if raw == "" {
		return PriorityMedium, nil
	}
	p := Priority(raw)
	if !p.IsValid() {
		return "", &ValueError{Kind: ErrInvalidPriority, Value: raw}
	}
	return p, nil
}

// NormalizePriority maps a persisted value onto the enumeration, defaulting to medium.
func NormalizePriority(raw string) (Priority, bool) {
	p := Priority(raw)
	if !p.IsValid() {
		return PriorityMedium, false
	}
	return p, true
}

// Project groups tasks for layout.
type Project struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Task represents a unit of work owned by a tenant.
type Task struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	ProjectID    string     `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	AssigneeID   string     `json:"assignee_id,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ParentTaskID string     `json:"parent_task_id,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsUnassigned reports whether nobody owns the task.
func (t *Task) IsUnassigned() bool {
	return t.AssigneeID == ""
}

// NewTask holds the caller-provided fields for task creation.
type NewTask struct {
	TenantID     string
	ProjectID    string
	Title        string
	Description  string
	Status       TaskStatus
	Priority     Priority
	AssigneeID   string
	DueDate      *time.Time
	ParentTaskID string
}

// DependencyType names the kind of edge. Only blocks exists today.
type DependencyType string

const DependencyBlocks DependencyType = "blocks"

// TaskDependency is a directed edge: the blocker must complete before the blocked task proceeds.
type TaskDependency struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	BlockerTaskID string         `json:"blocker_task_id"`
	BlockedTaskID string         `json:"blocked_task_id"`
	Type          DependencyType `json:"type"`
	CreatedAt     time.Time      `json:"created_at"`

	// Tenants of the endpoint tasks as resolved by the store. Empty when unknown.
	BlockerTenantID string `json:"-"`
	BlockedTenantID string `json:"-"`
}

// Audit actions.
const (
	ActionTaskCreated       = "task_created"
	ActionTaskDeleted       = "task_deleted"
	ActionStatusChanged     = "status_changed"
	ActionAutoUnblocked     = "auto_unblocked"
	ActionDependencyAdded   = "dependency_added"
	ActionDependencyRemoved = "dependency_removed"
)

// Audit entity types.
const (
	EntityTask       = "task"
	EntityDependency = "dependency"
)

// AuditEntry records a state-mutating action.
type AuditEntry struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	OldValue   string    `json:"old,omitempty"`
	NewValue   string    `json:"new,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	InputsHash string    `json:"inputs_hash"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// GraphEdge is a connector in a rendered dependency graph.
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// LayoutNode places a connected task in a layer.
type LayoutNode struct {
	TaskID string `json:"task_id"`
	Layer  int    `json:"layer"`
	Row    int    `json:"row"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// GridCell places a standalone task in the grid below the connected layout.
type GridCell struct {
	TaskID string `json:"task_id"`
	Column int    `json:"column"`
	Row    int    `json:"row"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// GraphLayout is the display layout of one project's dependency subgraph.
type GraphLayout struct {
	ProjectID  string       `json:"project_id"`
	Layers     [][]string   `json:"layers"`
	Nodes      []LayoutNode `json:"nodes"`
	Standalone []GridCell   `json:"standalone"`
	Edges      []GraphEdge  `json:"edges"`
}

// NextTask is one entry of a user's what's-next list.
type NextTask struct {
	Task   Task   `json:"task"`
	Reason string `json:"reason"`
}
