package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fentz26/taskgraph/internal/models"
)

func TestClientSendsIdentity(t *testing.T) {
	var gotTenant, gotActor, gotUser, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = r.Header.Get("X-Tenant-ID")
		gotActor = r.Header.Get("X-Actor-ID")
		gotUser = r.URL.Query().Get("user")
		gotLimit = r.URL.Query().Get("limit")
		json.NewEncoder(w).Encode([]models.NextTask{
			{Task: models.Task{ID: "t1", Title: "Ship", Status: models.TaskStatusReady}, Reason: "Assigned to you"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Identity{Tenant: "acme", Actor: "alice"})
	next, err := c.WhatsNext(5)
	if err != nil {
		t.Fatalf("WhatsNext: %v", err)
	}
	if gotTenant != "acme" || gotActor != "alice" {
		t.Errorf("Expected identity headers acme/alice, got %q/%q", gotTenant, gotActor)
	}
	if gotUser != "alice" {
		t.Errorf("Expected user to default to actor, got %q", gotUser)
	}
	if gotLimit != "5" {
		t.Errorf("Expected limit 5, got %q", gotLimit)
	}
	if len(next) != 1 || next[0].Reason != "Assigned to you" {
		t.Errorf("Unexpected response %+v", next)
	}

	items := toItems(next)
	if items[0].Title() != "Ship" || items[0].FilterValue() != "Ship" {
		t.Errorf("Unexpected item %+v", items[0])
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "resource not found: task x", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Identity{Tenant: "acme"})
	_, err := c.SetStatus("x", models.TaskStatusCompleted)
	if err == nil || err.Error() != "API error: resource not found: task x" {
		t.Errorf("Expected API error, got %v", err)
	}
}

func TestCreateTaskNeedsProject(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", Identity{Tenant: "acme"})
	if _, err := c.CreateTask("x"); err == nil {
		t.Error("Expected error without a project")
	}
}

func TestParseCommand(t *testing.T) {
	cmd, ok := parseCommand("  add  Write release notes ")
	if !ok || cmd.name != "add" || len(cmd.args) != 3 {
		t.Errorf("Unexpected parse %+v", cmd)
	}
	if _, ok := parseCommand("   "); ok {
		t.Error("Expected blank input to be rejected")
	}
}
