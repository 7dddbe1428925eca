// Package ranker builds a user's "what's next" list: actionable tasks
// ordered by urgency, each with a short reason.
package ranker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fentz26/taskgraph/internal/graph"
	"github.com/fentz26/taskgraph/internal/models"
)

// DefaultLimit is the list length when the caller does not ask for one.
const DefaultLimit = 10

const day = 24 * time.Hour

// Source lists candidate tasks and resolves blocker statuses.
type Source interface {
	GetTask(ctx context.Context, tenantID, id string) (*models.Task, error)
	ListByAssignee(ctx context.Context, tenantID, userID string) ([]models.Task, error)
	ListUnassigned(ctx context.Context, tenantID string) ([]models.Task, error)
}

// Ranker orders candidate tasks. It never writes.
type Ranker struct {
	src    Source
	edges  graph.EdgeSource
	now    func() time.Time
	limit  int
	logger *log.Logger
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithClock overrides the time source used for due date comparisons.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) { r.now = now }
}

// WithLimit sets the default list length.
func WithLimit(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithLogger sets the logger used for rejected edges.
func WithLogger(l *log.Logger) Option {
	return func(r *Ranker) { r.logger = l }
}

// New creates a Ranker.
func New(src Source, edges graph.EdgeSource, opts ...Option) *Ranker {
	r := &Ranker{
		src:    src,
		edges:  edges,
		now:    time.Now,
		limit:  DefaultLimit,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WhatsNext returns up to limit unblocked, open tasks that are assigned to
// userID or to nobody. Overdue tasks come first, then tasks by due date
// (undated last), then by priority. limit <= 0 uses the configured default.
func (r *Ranker) WhatsNext(ctx context.Context, tenantID, userID string, limit int) ([]models.NextTask, error) {
	if limit <= 0 {
		limit = r.limit
	}

	candidates, err := r.candidates(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []models.NextTask{}, nil
	}

	actionable, err := r.dropBlocked(ctx, tenantID, candidates)
	if err != nil {
		return nil, err
	}

	now := r.now()
	sort.SliceStable(actionable, func(i, j int) bool {
		return less(&actionable[i], &actionable[j], now)
	})
	if len(actionable) > limit {
		actionable = actionable[:limit]
	}

	title := cases.Title(language.English)
	out := make([]models.NextTask, 0, len(actionable))
	for _, t := range actionable {
		out = append(out, models.NextTask{Task: t, Reason: reason(&t, now, title)})
	}
	return out, nil
}

// candidates returns the open tasks assigned to userID followed by the
// open unassigned ones, each task once.
func (r *Ranker) candidates(ctx context.Context, tenantID, userID string) ([]models.Task, error) {
	assigned, err := r.src.ListByAssignee(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list assigned tasks: %w", err)
	}
	unassigned, err := r.src.ListUnassigned(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list unassigned tasks: %w", err)
	}

	seen := make(map[string]bool, len(assigned)+len(unassigned))
	var out []models.Task
	for _, list := range [][]models.Task{assigned, unassigned} {
		for _, t := range list {
			if t.Status.IsTerminal() || seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *Ranker) dropBlocked(ctx context.Context, tenantID string, tasks []models.Task) ([]models.Task, error) {
	ids := make([]string, len(tasks))
	statuses := make(map[string]models.TaskStatus, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		statuses[t.ID] = t.Status
	}

	edges, err := r.edges.ListEdges(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	g := graph.New(tenantID, edges, r.logger)

	// Blockers outside the candidate set need their status fetched.
	missing := make(map[string]bool)
	for _, id := range ids {
		for _, b := range g.BlockersOf(id) {
			if _, ok := statuses[b]; ok || missing[b] {
				continue
			}
			t, err := r.src.GetTask(ctx, tenantID, b)
			if errors.Is(err, models.ErrNotFound) {
				missing[b] = true
				continue
			}
			if err != nil {
				return nil, err
			}
			statuses[b] = t.Status
		}
	}
	lookup := func(id string) (models.TaskStatus, bool) {
		s, ok := statuses[id]
		return s, ok
	}

	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if !g.IsBlocked(t.ID, lookup) {
			out = append(out, t)
		}
	}
	return out, nil
}

func overdue(t *models.Task, now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now)
}

func less(a, b *models.Task, now time.Time) bool {
	if ao, bo := overdue(a, now), overdue(b, now); ao != bo {
		return ao
	}
	switch {
	case a.DueDate != nil && b.DueDate == nil:
		return true
	case a.DueDate == nil && b.DueDate != nil:
		return false
	case a.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Before(*b.DueDate)
	}
	return a.Priority.Rank() < b.Priority.Rank()
}

// reason explains why t is on the list. Rules apply in order.
func reason(t *models.Task, now time.Time, title cases.Caser) string {
	switch {
	case overdue(t, now):
		n := ceilDays(now.Sub(*t.DueDate))
		if n < 1 {
			n = 1
		}
		return fmt.Sprintf("Overdue by %d day(s)", n)
	case t.DueDate != nil:
		return fmt.Sprintf("Due in %d day(s)", ceilDays(t.DueDate.Sub(now)))
	case t.Priority == models.PriorityCritical || t.Priority == models.PriorityHigh:
		return title.String(string(t.Priority)) + " priority task"
	case t.IsUnassigned():
		return "Unassigned — available to pick up"
	}
	return "Assigned to you"
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(day)))
}
