// Package store provides SQLite-backed persistence for taskgraph.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fentz26/taskgraph/internal/models"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// maxScopeIDs bounds how many task ids one edge query binds. Each id is bound
// twice, keeping a chunk well under SQLite's host parameter limit.
const maxScopeIDs = 5000

// Store provides access to the taskgraph SQLite database.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for data repairs on read. Defaults to log.Default().
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new Store and runs migrations.
func New(dbPath string, opts ...Option) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'created',
		priority TEXT NOT NULL DEFAULT 'medium',
		assignee_id TEXT,
		due_date DATETIME,
		parent_task_id TEXT,
		completed_at DATETIME,
		deleted_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		blocker_task_id TEXT NOT NULL,
		blocked_task_id TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'blocks',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT,
		actor_id TEXT,
		inputs_hash TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_tenant_project ON tasks(tenant_id, project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_tenant_assignee ON tasks(tenant_id, assignee_id);
	CREATE INDEX IF NOT EXISTS idx_deps_blocker ON task_dependencies(tenant_id, blocker_task_id);
	CREATE INDEX IF NOT EXISTS idx_deps_blocked ON task_dependencies(tenant_id, blocked_task_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_deps_pair ON task_dependencies(tenant_id, blocker_task_id, blocked_task_id);
	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(tenant_id, entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func storeErr(op string, err error) error {
	return &models.StoreError{Op: op, Err: err}
}

// --- Project Operations ---

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, tenantID, name string) (*models.Project, error) {
	p := &models.Project{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      norm.NFKC.String(strings.TrimSpace(name)),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, tenant_id, name, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, p.CreatedAt,
	)
	if err != nil {
		return nil, storeErr("insert project", err)
	}
	return p, nil
}

// GetProject retrieves a project in the tenant.
func (s *Store) GetProject(ctx context.Context, tenantID, id string) (*models.Project, error) {
	p := &models.Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, created_at FROM projects WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("project %s", id)
	}
	if err != nil {
		return nil, storeErr("query project", err)
	}
	return p, nil
}

// --- Task Operations ---

const taskColumns = `id, tenant_id, project_id, title, description, status, priority,
	assignee_id, due_date, parent_task_id, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row. Status and priority values outside the
// enumerations are normalized rather than rejected.
func (s *Store) scanTask(row rowScanner) (*models.Task, error) {
	var (
		task                  models.Task
		status, priority      string
		description, assignee sql.NullString
		parent                sql.NullString
		dueDate, completedAt  sql.NullTime
	)
	err := row.Scan(&task.ID, &task.TenantID, &task.ProjectID, &task.Title, &description,
		&status, &priority, &assignee, &dueDate, &parent, &completedAt, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	var ok bool
	if task.Status, ok = models.NormalizeTaskStatus(status); !ok {
		s.logger.Printf("store: %v: task %s has status %q, reading as %s", models.ErrMalformedStatus, task.ID, status, task.Status)
	}
	if task.Priority, ok = models.NormalizePriority(priority); !ok {
		s.logger.Printf("store: task %s has priority %q, reading as %s", task.ID, priority, task.Priority)
	}
	task.Description = description.String
	task.AssigneeID = assignee.String
	task.ParentTaskID = parent.String
	if dueDate.Valid {
		t := dueDate.Time
		task.DueDate = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CreateTask inserts a new task.
func (s *Store) CreateTask(ctx context.Context, in models.NewTask) (*models.Task, error) {
	now := time.Now().UTC()
	task := &models.Task{
		ID:           uuid.New().String(),
		TenantID:     in.TenantID,
		ProjectID:    in.ProjectID,
		Title:        norm.NFKC.String(strings.TrimSpace(in.Title)),
		Description:  in.Description,
		Status:       in.Status,
		Priority:     in.Priority,
		AssigneeID:   in.AssigneeID,
		ParentTaskID: in.ParentTaskID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if task.Status == "" {
		task.Status = models.TaskStatusCreated
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		task.DueDate = &due
	}
	if task.Status == models.TaskStatusCompleted {
		task.CompletedAt = &now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.TenantID, task.ProjectID, task.Title, task.Description, task.Status, task.Priority,
		nullString(task.AssigneeID), nullTime(task.DueDate), nullString(task.ParentTaskID),
		nullTime(task.CompletedAt), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, storeErr("insert task", err)
	}
	return task, nil
}

// GetTask retrieves a live task in the tenant.
func (s *Store) GetTask(ctx context.Context, tenantID, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL`,
		id, tenantID,
	)
	task, err := s.scanTask(row)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("task %s", id)
	}
	if err != nil {
		return nil, storeErr("query task", err)
	}
	return task, nil
}

// UpdateTaskStatus sets the status of a task in a single statement. A nil
// completedAt leaves the stored completion time untouched.
func (s *Store) UpdateTaskStatus(ctx context.Context, tenantID, id string, status models.TaskStatus, completedAt *time.Time) (*models.Task, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, completed_at = COALESCE(?, completed_at), updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL`,
		status, nullTime(completedAt), now, id, tenantID,
	)
	if err != nil {
		return nil, storeErr("update task status", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, storeErr("check rows affected", err)
	}
	if n == 0 {
		return nil, models.NotFoundf("task %s", id)
	}
	return s.GetTask(ctx, tenantID, id)
}

// CompareAndSetStatus moves a task from one status to another only if it is
// currently in the from status. It reports whether the row changed.
func (s *Store) CompareAndSetStatus(ctx context.Context, tenantID, id string, from, to models.TaskStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND status = ? AND deleted_at IS NULL`,
		to, time.Now().UTC(), id, tenantID, from,
	)
	if err != nil {
		return false, storeErr("compare and set status", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, storeErr("check rows affected", err)
	}
	return n == 1, nil
}

// SoftDeleteTask hides a task from all reads.
func (s *Store) SoftDeleteTask(ctx context.Context, tenantID, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET deleted_at = ?, updated_at = ? WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL`,
		now, now, id, tenantID,
	)
	if err != nil {
		return storeErr("delete task", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeErr("check rows affected", err)
	}
	if n == 0 {
		return models.NotFoundf("task %s", id)
	}
	return nil
}

func (s *Store) listTasks(ctx context.Context, where string, args ...any) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE deleted_at IS NULL AND `+where+` ORDER BY created_at, rowid`,
		args...,
	)
	if err != nil {
		return nil, storeErr("query tasks", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := s.scanTask(rows)
		if err != nil {
			return nil, storeErr("scan task", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate tasks", err)
	}
	return tasks, nil
}

// ListByProject returns the live tasks of a project in creation order.
func (s *Store) ListByProject(ctx context.Context, tenantID, projectID string) ([]models.Task, error) {
	return s.listTasks(ctx, `tenant_id = ? AND project_id = ?`, tenantID, projectID)
}

// ListByAssignee returns the live tasks assigned to a user.
func (s *Store) ListByAssignee(ctx context.Context, tenantID, userID string) ([]models.Task, error) {
	return s.listTasks(ctx, `tenant_id = ? AND assignee_id = ?`, tenantID, userID)
}

// ListUnassigned returns the live tasks nobody owns.
func (s *Store) ListUnassigned(ctx context.Context, tenantID string) ([]models.Task, error) {
	return s.listTasks(ctx, `tenant_id = ? AND (assignee_id IS NULL OR assignee_id = '')`, tenantID)
}

// --- Dependency Operations ---

// CreateDependency records that blocker must complete before blocked.
func (s *Store) CreateDependency(ctx context.Context, tenantID, blockerID, blockedID string) (*models.TaskDependency, error) {
	dep := &models.TaskDependency{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		BlockerTaskID: blockerID,
		BlockedTaskID: blockedID,
		Type:          models.DependencyBlocks,
		CreatedAt:     time.Now().UTC(),
	}
	if blockerID == blockedID {
		return nil, &models.EdgeError{Edge: *dep, Msg: "task cannot block itself"}
	}
	for _, id := range []string{blockerID, blockedID} {
		if _, err := s.GetTask(ctx, tenantID, id); err != nil {
			return nil, err
		}
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_dependencies WHERE tenant_id = ? AND blocker_task_id = ? AND blocked_task_id = ?`,
		tenantID, blockerID, blockedID,
	).Scan(&exists)
	if err != nil {
		return nil, storeErr("query dependency", err)
	}
	if exists > 0 {
		return nil, models.ErrDuplicateEdge
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_dependencies (id, tenant_id, blocker_task_id, blocked_task_id, type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		dep.ID, dep.TenantID, dep.BlockerTaskID, dep.BlockedTaskID, dep.Type, dep.CreatedAt,
	)
	if err != nil {
		// A concurrent insert of the same pair can still trip the unique index.
		if isUniqueViolation(err) {
			return nil, models.ErrDuplicateEdge
		}
		return nil, storeErr("insert dependency", err)
	}
	dep.BlockerTenantID = tenantID
	dep.BlockedTenantID = tenantID
	return dep, nil
}

func isUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	code := sqlErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// DeleteDependency removes an edge.
func (s *Store) DeleteDependency(ctx context.Context, tenantID, id string) (*models.TaskDependency, error) {
	dep := &models.TaskDependency{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, blocker_task_id, blocked_task_id, type, created_at FROM task_dependencies WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	).Scan(&dep.ID, &dep.TenantID, &dep.BlockerTaskID, &dep.BlockedTaskID, &dep.Type, &dep.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.NotFoundf("dependency %s", id)
	}
	if err != nil {
		return nil, storeErr("query dependency", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_dependencies WHERE id = ? AND tenant_id = ?`, id, tenantID); err != nil {
		return nil, storeErr("delete dependency", err)
	}
	return dep, nil
}

// ListEdges returns the tenant's edges touching any task in scope. An empty
// scope returns every edge of the tenant. Edges whose endpoints were deleted
// are omitted; each edge carries the tenants its endpoints live in. Large
// scopes are queried in chunks and merged.
func (s *Store) ListEdges(ctx context.Context, tenantID string, scope []string) ([]models.TaskDependency, error) {
	if len(scope) <= maxScopeIDs {
		return s.listEdges(ctx, tenantID, scope)
	}

	seen := make(map[string]bool)
	var edges []models.TaskDependency
	for start := 0; start < len(scope); start += maxScopeIDs {
		chunk, err := s.listEdges(ctx, tenantID, scope[start:min(start+maxScopeIDs, len(scope))])
		if err != nil {
			return nil, err
		}
		for _, d := range chunk {
			if !seen[d.ID] {
				seen[d.ID] = true
				edges = append(edges, d)
			}
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].CreatedAt.Before(edges[j].CreatedAt)
	})
	return edges, nil
}

func (s *Store) listEdges(ctx context.Context, tenantID string, scope []string) ([]models.TaskDependency, error) {
	query := `SELECT d.id, d.tenant_id, d.blocker_task_id, d.blocked_task_id, d.type, d.created_at,
			b.tenant_id, c.tenant_id
		FROM task_dependencies d
		JOIN tasks b ON b.id = d.blocker_task_id AND b.deleted_at IS NULL
		JOIN tasks c ON c.id = d.blocked_task_id AND c.deleted_at IS NULL
		WHERE d.tenant_id = ?`
	args := []any{tenantID}

	if len(scope) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(scope)), ",")
		query += ` AND (d.blocker_task_id IN (` + placeholders + `) OR d.blocked_task_id IN (` + placeholders + `))`
		for i := 0; i < 2; i++ {
			for _, id := range scope {
				args = append(args, id)
			}
		}
	}
	query += ` ORDER BY d.created_at, d.rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query dependencies", err)
	}
	defer rows.Close()

	var edges []models.TaskDependency
	for rows.Next() {
		var d models.TaskDependency
		if err := rows.Scan(&d.ID, &d.TenantID, &d.BlockerTaskID, &d.BlockedTaskID, &d.Type, &d.CreatedAt,
			&d.BlockerTenantID, &d.BlockedTenantID); err != nil {
			return nil, storeErr("scan dependency", err)
		}
		edges = append(edges, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate dependencies", err)
	}
	return edges, nil
}

// --- Audit Operations ---

// WriteAudit persists an audit entry.
func (s *Store) WriteAudit(ctx context.Context, e *models.AuditEntry) error {
	if e.ID == "" {
		return errors.New("audit entry has no id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, tenant_id, entity_type, entity_id, action, old_value, new_value, actor_id, inputs_hash, details, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.EntityType, e.EntityID, e.Action, e.OldValue, e.NewValue, e.ActorID, e.InputsHash, e.Details, e.Timestamp,
	)
	if err != nil {
		return storeErr("insert audit entry", err)
	}
	return nil
}

// ListAudit returns the audit trail of one entity, oldest first.
func (s *Store) ListAudit(ctx context.Context, tenantID, entityID string) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, entity_type, entity_id, action, old_value, new_value, actor_id, inputs_hash, details, timestamp
		 FROM audit_log WHERE tenant_id = ? AND entity_id = ? ORDER BY id`,
		tenantID, entityID,
	)
	if err != nil {
		return nil, storeErr("query audit log", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var oldValue, newValue, actor, details sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EntityType, &e.EntityID, &e.Action,
			&oldValue, &newValue, &actor, &e.InputsHash, &details, &e.Timestamp); err != nil {
			return nil, storeErr("scan audit entry", err)
		}
		e.OldValue = oldValue.String
		e.NewValue = newValue.String
		e.ActorID = actor.String
		e.Details = details.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate audit log", err)
	}
	return entries, nil
}
