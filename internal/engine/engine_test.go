package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fentz26/taskgraph/internal/models"
	"github.com/fentz26/taskgraph/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newEngine(st *testutil.Store, sink *testutil.AuditLog) *Engine {
	return New(st, st, sink,
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(log.New(io.Discard, "", 0)),
	)
}

func task(id string, status models.TaskStatus) models.Task {
	return models.Task{ID: id, TenantID: "t1", ProjectID: "p1", Title: id, Status: status}
}

func TestCompletionUnblocksDependent(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusInProgress))
	st.AddTask(task("B", models.TaskStatusBlocked))
	st.AddEdge("t1", "A", "B")
	sink := &testutil.AuditLog{}

	updated, err := newEngine(st, sink).Transition(context.Background(), "t1", "A", models.TaskStatusCompleted, "alice")
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, fixedNow, *updated.CompletedAt)
	assert.Equal(t, models.TaskStatusReady, st.Status("B"))

	unblocked := sink.ByAction(models.ActionAutoUnblocked)
	require.Len(t, unblocked, 1)
	assert.Equal(t, "B", unblocked[0].EntityID)
	assert.Equal(t, "blocked", unblocked[0].OldValue)
	assert.Equal(t, "ready", unblocked[0].NewValue)
	assert.Equal(t, "alice", unblocked[0].ActorID)

	changed := sink.ByAction(models.ActionStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "in_progress", changed[0].OldValue)
	assert.Equal(t, "completed", changed[0].NewValue)
}

func TestDependentWaitsForAllBlockers(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))
	st.AddTask(task("B", models.TaskStatusReady))
	st.AddTask(task("C", models.TaskStatusBlocked))
	st.AddEdge("t1", "A", "C")
	st.AddEdge("t1", "B", "C")
	sink := &testutil.AuditLog{}
	e := newEngine(st, sink)
	ctx := context.Background()

	_, err := e.Transition(ctx, "t1", "A", models.TaskStatusCompleted, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusBlocked, st.Status("C"))
	assert.Empty(t, sink.ByAction(models.ActionAutoUnblocked))

	_, err = e.Transition(ctx, "t1", "B", models.TaskStatusCompleted, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusReady, st.Status("C"))
	assert.Len(t, sink.ByAction(models.ActionAutoUnblocked), 1)
}

func TestCascadeRestraint(t *testing.T) {
	// Only dependents sitting in blocked move. Others keep their status.
	for _, status := range []models.TaskStatus{
		models.TaskStatusCreated,
		models.TaskStatusReady,
		models.TaskStatusInProgress,
		models.TaskStatusReview,
		models.TaskStatusCancelled,
		models.TaskStatusCompleted,
	} {
		t.Run(string(status), func(t *testing.T) {
			st := testutil.NewStore()
			st.AddTask(task("A", models.TaskStatusReady))
			st.AddTask(task("B", status))
			st.AddEdge("t1", "A", "B")
			sink := &testutil.AuditLog{}

			_, err := newEngine(st, sink).Transition(context.Background(), "t1", "A", models.TaskStatusCompleted, "alice")
			require.NoError(t, err)
			assert.Equal(t, status, st.Status("B"))
			assert.Empty(t, sink.ByAction(models.ActionAutoUnblocked))
		})
	}
}

func TestCascadeIsSingleHop(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))
	st.AddTask(task("B", models.TaskStatusBlocked))
	st.AddTask(task("C", models.TaskStatusBlocked))
	st.AddEdge("t1", "A", "B")
	st.AddEdge("t1", "B", "C")

	_, err := newEngine(st, &testutil.AuditLog{}).Transition(context.Background(), "t1", "A", models.TaskStatusCompleted, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusReady, st.Status("B"))
	assert.Equal(t, models.TaskStatusBlocked, st.Status("C"))
}

func TestCascadeIdempotent(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))
	st.AddTask(task("B", models.TaskStatusBlocked))
	st.AddEdge("t1", "A", "B")
	sink := &testutil.AuditLog{}
	e := newEngine(st, sink)
	ctx := context.Background()

	_, err := e.Transition(ctx, "t1", "A", models.TaskStatusCompleted, "alice")
	require.NoError(t, err)
	writes := st.Writes

	moved, err := e.Cascade(ctx, "t1", "A", "alice")
	require.NoError(t, err)
	assert.Empty(t, moved)
	assert.Equal(t, writes, st.Writes, "second cascade must not write")
	assert.Len(t, sink.ByAction(models.ActionAutoUnblocked), 1)
}

func TestCascadeReturnsMovedIDs(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusCompleted))
	st.AddTask(task("B", models.TaskStatusBlocked))
	st.AddTask(task("C", models.TaskStatusBlocked))
	st.AddTask(task("D", models.TaskStatusReady))
	st.AddEdge("t1", "A", "B")
	st.AddEdge("t1", "A", "C")
	st.AddEdge("t1", "A", "D")

	moved, err := newEngine(st, &testutil.AuditLog{}).Cascade(context.Background(), "t1", "A", "ops")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, moved)
}

func TestCancelledBlockerKeepsDependentBlocked(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))
	st.AddTask(task("X", models.TaskStatusCancelled))
	st.AddTask(task("B", models.TaskStatusBlocked))
	st.AddEdge("t1", "A", "B")
	st.AddEdge("t1", "X", "B")

	_, err := newEngine(st, &testutil.AuditLog{}).Transition(context.Background(), "t1", "A", models.TaskStatusCompleted, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusBlocked, st.Status("B"))
}

func TestDeletedBlockerDoesNotBlock(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))
	st.AddTask(task("X", models.TaskStatusReady))
	st.AddTask(task("B", models.TaskStatusBlocked))
	st.AddEdge("t1", "A", "B")
	st.AddEdge("t1", "X", "B")
	st.Delete("X")

	_, err := newEngine(st, &testutil.AuditLog{}).Transition(context.Background(), "t1", "A", models.TaskStatusCompleted, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusReady, st.Status("B"))
}

func TestTransitionNotFound(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(models.Task{ID: "A", TenantID: "t2", Status: models.TaskStatusReady})
	sink := &testutil.AuditLog{}

	_, err := newEngine(st, sink).Transition(context.Background(), "t1", "A", models.TaskStatusCompleted, "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, models.TaskStatusReady, st.Status("A"), "other tenant's task must not change")
	assert.Empty(t, sink.Entries())
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))

	_, err := newEngine(st, &testutil.AuditLog{}).Transition(context.Background(), "t1", "A", models.TaskStatus("done"), "alice")
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
	assert.Equal(t, 0, st.Writes)
}

func TestTransitionIsPermissive(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusCompleted))
	e := newEngine(st, &testutil.AuditLog{})

	updated, err := e.Transition(context.Background(), "t1", "A", models.TaskStatusCreated, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCreated, updated.Status)
}

func TestNonCompletionKeepsCompletedAt(t *testing.T) {
	st := testutil.NewStore()
	done := fixedNow.Add(-time.Hour)
	a := task("A", models.TaskStatusCompleted)
	a.CompletedAt = &done
	st.AddTask(a)

	updated, err := newEngine(st, &testutil.AuditLog{}).Transition(context.Background(), "t1", "A", models.TaskStatusReview, "alice")
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, done, *updated.CompletedAt)
}

func TestVanishedDependentIsSkipped(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))
	st.AddTask(task("B", models.TaskStatusBlocked))
	st.AddTask(task("C", models.TaskStatusBlocked))
	st.AddEdge("t1", "A", "B")
	st.AddEdge("t1", "A", "C")

	var buf bytes.Buffer
	st.Fail = func(op, id string) error {
		if op == "GetTask" && id == "B" {
			return models.NotFoundf("task %s", id)
		}
		return nil
	}
	e := New(st, st, &testutil.AuditLog{}, WithLogger(log.New(&buf, "", 0)))

	_, err := e.Transition(context.Background(), "t1", "A", models.TaskStatusCompleted, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusReady, st.Status("C"))
	assert.Contains(t, buf.String(), "vanished")
}

func TestTransientErrorAbortsCascade(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))
	st.AddTask(task("B", models.TaskStatusBlocked))
	st.AddTask(task("C", models.TaskStatusBlocked))
	st.AddTask(task("D", models.TaskStatusBlocked))
	st.AddEdge("t1", "A", "B")
	st.AddEdge("t1", "A", "C")
	st.AddEdge("t1", "A", "D")

	st.Fail = func(op, id string) error {
		if op == "CompareAndSetStatus" && id == "C" {
			return &models.StoreError{Op: "update task status", Err: errors.New("database is locked")}
		}
		return nil
	}
	sink := &testutil.AuditLog{}

	updated, err := newEngine(st, sink).Transition(context.Background(), "t1", "A", models.TaskStatusCompleted, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransientStore)
	require.NotNil(t, updated, "updated task is returned alongside the cascade error")
	assert.Equal(t, models.TaskStatusCompleted, updated.Status)

	assert.Equal(t, models.TaskStatusReady, st.Status("B"), "applied changes are kept")
	assert.Equal(t, models.TaskStatusBlocked, st.Status("C"))
	assert.Equal(t, models.TaskStatusBlocked, st.Status("D"), "remaining dependents are not processed")
	assert.Len(t, sink.ByAction(models.ActionAutoUnblocked), 1)
}

func TestEdgeListingFailure(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))
	st.Fail = func(op, _ string) error {
		if op == "ListEdges" {
			return &models.StoreError{Op: "query dependencies", Err: errors.New("disk I/O error")}
		}
		return nil
	}

	updated, err := newEngine(st, &testutil.AuditLog{}).Transition(context.Background(), "t1", "A", models.TaskStatusCompleted, "alice")
	assert.ErrorIs(t, err, models.ErrTransientStore)
	require.NotNil(t, updated)
	assert.Equal(t, models.TaskStatusCompleted, st.Status("A"))
}

func TestInvalidEdgesIgnoredByCascade(t *testing.T) {
	st := testutil.NewStore()
	st.AddTask(task("A", models.TaskStatusReady))
	st.AddTask(models.Task{ID: "F", TenantID: "t2", Status: models.TaskStatusBlocked})
	st.AddEdge("t1", "A", "F")

	moved, err := newEngine(st, &testutil.AuditLog{}).Cascade(context.Background(), "t1", "A", "alice")
	require.NoError(t, err)
	assert.Empty(t, moved)
	assert.Equal(t, models.TaskStatusBlocked, st.Status("F"))
}
