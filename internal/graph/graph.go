// Package graph answers blocker/blocked queries over one tenant's dependency edges.
package graph

import (
	"context"
	"fmt"
	"log"

	"github.com/fentz26/taskgraph/internal/models"
)

// EdgeSource lists dependency edges for a tenant. Edges touching any task in
// scope are returned; an empty scope means every edge of the tenant.
type EdgeSource interface {
	ListEdges(ctx context.Context, tenantID string, scope []string) ([]models.TaskDependency, error)
}

// StatusLookup returns the current status of a task, or false if it no longer exists.
type StatusLookup func(taskID string) (models.TaskStatus, bool)

// Graph is a read-only index of blocker -> blocked edges. It makes no
// assumption about acyclicity.
type Graph struct {
	tenantID string
	edges    []models.TaskDependency
	adj      map[string][]string // blocker -> tasks it blocks
	revAdj   map[string][]string // blocked -> tasks blocking it
	invalid  []error
}

// Load fetches the edges touching scope and indexes them.
func Load(ctx context.Context, src EdgeSource, tenantID string, scope ...string) (*Graph, error) {
	edges, err := src.ListEdges(ctx, tenantID, scope)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return New(tenantID, edges, nil), nil
}

// New indexes raw edges for tenantID. Self loops and edges that leave the
// tenant are logged and excluded; duplicate pairs collapse into one.
func New(tenantID string, edges []models.TaskDependency, logger *log.Logger) *Graph {
	if logger == nil {
		logger = log.Default()
	}
	g := &Graph{
		tenantID: tenantID,
		adj:      make(map[string][]string),
		revAdj:   make(map[string][]string),
	}

	seen := make(map[[2]string]bool)
	for _, e := range edges {
		if err := validate(tenantID, e); err != nil {
			logger.Printf("graph: skipping edge %s: %v", e.ID, err)
			g.invalid = append(g.invalid, err)
			continue
		}
		key := [2]string{e.BlockerTaskID, e.BlockedTaskID}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.edges = append(g.edges, e)
		g.adj[e.BlockerTaskID] = append(g.adj[e.BlockerTaskID], e.BlockedTaskID)
		g.revAdj[e.BlockedTaskID] = append(g.revAdj[e.BlockedTaskID], e.BlockerTaskID)
	}
	return g
}

func validate(tenantID string, e models.TaskDependency) error {
	switch {
	case e.BlockerTaskID == e.BlockedTaskID:
		return &models.EdgeError{Edge: e, Msg: "self loop"}
	case e.TenantID != tenantID:
		return &models.EdgeError{Edge: e, Msg: fmt.Sprintf("edge belongs to tenant %q", e.TenantID)}
	case e.BlockerTenantID != "" && e.BlockerTenantID != tenantID:
		return &models.EdgeError{Edge: e, Msg: fmt.Sprintf("blocker belongs to tenant %q", e.BlockerTenantID)}
	case e.BlockedTenantID != "" && e.BlockedTenantID != tenantID:
		return &models.EdgeError{Edge: e, Msg: fmt.Sprintf("blocked task belongs to tenant %q", e.BlockedTenantID)}
	}
	return nil
}

// TenantID returns the tenant the graph is scoped to.
func (g *Graph) TenantID() string { return g.tenantID }

// BlockersOf returns the tasks that must complete before taskID.
func (g *Graph) BlockersOf(taskID string) []string {
	return append([]string(nil), g.revAdj[taskID]...)
}

// DependentsOf returns the tasks blocked by taskID.
func (g *Graph) DependentsOf(taskID string) []string {
	return append([]string(nil), g.adj[taskID]...)
}

// IsBlocked reports whether any blocker of taskID is not completed. Blockers
// the lookup cannot find do not block.
func (g *Graph) IsBlocked(taskID string, lookup StatusLookup) bool {
	for _, blocker := range g.revAdj[taskID] {
		status, ok := lookup(blocker)
		if !ok {
			continue
		}
		if status != models.TaskStatusCompleted {
			return true
		}
	}
	return false
}

// Edges returns the accepted edges in source order.
func (g *Graph) Edges() []models.TaskDependency {
	return append([]models.TaskDependency(nil), g.edges...)
}

// Invalid returns the errors for edges that were excluded.
func (g *Graph) Invalid() []error {
	return append([]error(nil), g.invalid...)
}
