// Package layout places a project's dependency graph on a grid of layers
// for display.
package layout

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/fentz26/taskgraph/internal/graph"
	"github.com/fentz26/taskgraph/internal/models"
)

// Defaults used when no option overrides them.
const (
	DefaultGridColumns  = 4
	DefaultLayerSpacing = 240
	DefaultRowSpacing   = 120
)

// Source is what the layout reads: the project, its tasks and their edges.
type Source interface {
	graph.EdgeSource
	GetProject(ctx context.Context, tenantID, id string) (*models.Project, error)
	ListByProject(ctx context.Context, tenantID, projectID string) ([]models.Task, error)
}

// Engine computes layouts. It never writes.
type Engine struct {
	src          Source
	gridColumns  int
	layerSpacing int
	rowSpacing   int
	logger       *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithGridColumns sets how many standalone tasks share a grid row.
func WithGridColumns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.gridColumns = n
		}
	}
}

// WithSpacing sets the pixel distance between layers and between rows.
func WithSpacing(layer, row int) Option {
	return func(e *Engine) {
		if layer > 0 {
			e.layerSpacing = layer
		}
		if row > 0 {
			e.rowSpacing = row
		}
	}
}

// WithLogger sets the logger used for rejected edges.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates a layout Engine.
func New(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:          src,
		gridColumns:  DefaultGridColumns,
		layerSpacing: DefaultLayerSpacing,
		rowSpacing:   DefaultRowSpacing,
		logger:       log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute lays out every task of the project. Connected tasks get a layer
// and a row within it; tasks without in-project edges go into a grid
// below. Cyclic input still yields a layer for every task.
func (e *Engine) Compute(ctx context.Context, tenantID, projectID string) (*models.GraphLayout, error) {
	if _, err := e.src.GetProject(ctx, tenantID, projectID); err != nil {
		return nil, err
	}
	tasks, err := e.src.ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}

	ids := make([]string, 0, len(tasks))
	inProject := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
		inProject[t.ID] = true
	}

	out := &models.GraphLayout{
		ProjectID:  projectID,
		Layers:     [][]string{},
		Nodes:      []models.LayoutNode{},
		Standalone: []models.GridCell{},
		Edges:      []models.GraphEdge{},
	}
	if len(ids) == 0 {
		return out, nil
	}

	raw, err := e.src.ListEdges(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	g := graph.New(tenantID, raw, e.logger)

	var edges []models.TaskDependency
	connected := make(map[string]bool)
	for _, edge := range g.Edges() {
		if !inProject[edge.BlockerTaskID] || !inProject[edge.BlockedTaskID] {
			continue
		}
		edges = append(edges, edge)
		connected[edge.BlockerTaskID] = true
		connected[edge.BlockedTaskID] = true
		out.Edges = append(out.Edges, models.GraphEdge{
			ID:     edge.ID,
			Source: edge.BlockerTaskID,
			Target: edge.BlockedTaskID,
			Type:   string(edge.Type),
		})
	}

	var nodes, standalone []string
	for _, id := range ids {
		if connected[id] {
			nodes = append(nodes, id)
		} else {
			standalone = append(standalone, id)
		}
	}

	if layers := assignLayers(nodes, edges); layers != nil {
		out.Layers = layers
	}
	tallest := 0
	for layer, members := range out.Layers {
		for row, id := range members {
			out.Nodes = append(out.Nodes, models.LayoutNode{
				TaskID: id,
				Layer:  layer,
				Row:    row,
				X:      layer * e.layerSpacing,
				Y:      row * e.rowSpacing,
			})
		}
		if len(members) > tallest {
			tallest = len(members)
		}
	}

	startRow := 0
	if tallest > 0 {
		startRow = tallest + 1
	}
	for i, id := range standalone {
		col, row := i%e.gridColumns, startRow+i/e.gridColumns
		out.Standalone = append(out.Standalone, models.GridCell{
			TaskID: id,
			Column: col,
			Row:    row,
			X:      col * e.layerSpacing,
			Y:      row * e.rowSpacing,
		})
	}
	return out, nil
}

// assignLayers runs Kahn layering over nodes (in store order). Nodes left
// with positive in-degree sit on or behind a cycle and go one layer past the deepest
// popped node. Each returned layer lists tasks in discovery order.
func assignLayers(nodes []string, edges []models.TaskDependency) [][]string {
	adj := make(map[string][]string, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for _, edge := range edges {
		adj[edge.BlockerTaskID] = append(adj[edge.BlockerTaskID], edge.BlockedTaskID)
		inDegree[edge.BlockedTaskID]++
	}

	layer := make(map[string]int, len(nodes))
	var queue []string
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
			layer[n] = 0
		}
	}

	popped := make(map[string]bool, len(nodes))
	var order []string
	maxLayer := -1
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		popped[cur] = true
		order = append(order, cur)
		if layer[cur] > maxLayer {
			maxLayer = layer[cur]
		}
		for _, next := range adj[cur] {
			if l := layer[cur] + 1; l > layer[next] {
				layer[next] = l
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) < len(nodes) {
		fallback := maxLayer + 1
		for _, n := range nodes {
			if !popped[n] {
				layer[n] = fallback
				order = append(order, n)
			}
		}
	}

	var layers [][]string
	for _, n := range order {
		l := layer[n]
		for len(layers) <= l {
			layers = append(layers, []string{})
		}
		layers[l] = append(layers[l], n)
	}
	return layers
}
