package controlplane

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/taskgraph/internal/models"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0-dev"

// Request headers carrying the caller's identity.
const (
	HeaderTenant = "X-Tenant-ID"
	HeaderActor  = "X-Actor-ID"
)

// Server provides the HTTP API for taskgraph.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string) *Server {
	return &Server{
		service: service,
		addr:    addr,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	// Project endpoints
	mux.HandleFunc("/projects", s.handleProjects)
	mux.HandleFunc("/projects/", s.handleProjectByID)

	// Task endpoints
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskByID)

	// Dependency endpoints
	mux.HandleFunc("/dependencies", s.handleDependencies)
	mux.HandleFunc("/dependencies/", s.handleDependencyByID)

	mux.HandleFunc("/whats-next", s.handleWhatsNext)
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("Starting taskgraph daemon on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.service.Health(r.Context()); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	http.Error(w, err.Error(), status)
}

// tenant reads the caller's tenant. It writes a 400 and returns false when absent.
func tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(HeaderTenant))
	if id == "" {
		writeError(w, ErrTenantRequired)
		return "", false
	}
	return id, true
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderActor))
}

// splitPath returns the id and optional action of /prefix/{id}/{action}.
func splitPath(path, prefix string) (id, action string) {
	parts := strings.SplitN(strings.Trim(strings.TrimPrefix(path, prefix), "/"), "/", 2)
	id = parts[0]
	if len(parts) > 1 {
		action = parts[1]
	}
	return id, action
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// --- Project Handlers ---

type createProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var req createProjectRequest
	if !decode(w, r, &req) {
		return
	}
	project, err := s.service.CreateProject(r.Context(), tenantID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// handleProjectByID handles /projects/{id}/*
func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request) {
	projectID, action := splitPath(r.URL.Path, "/projects/")
	if projectID == "" {
		http.Error(w, "project id required", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	var (
		v   any
		err error
	)
	switch action {
	case "":
		v, err = s.service.GetProject(r.Context(), tenantID, projectID)
	case "tasks":
		v, err = s.service.ListProjectTasks(r.Context(), tenantID, projectID)
	case "graph":
		v, err = s.service.ProjectGraph(r.Context(), tenantID, projectID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks, isList := v.([]models.Task); isList && tasks == nil {
		v = []models.Task{}
	}
	writeJSON(w, http.StatusOK, v)
}

// --- Task Handlers ---

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var req CreateTaskInput
	if !decode(w, r, &req) {
		return
	}
	task, err := s.service.CreateTask(r.Context(), tenantID, actor(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleTaskByID handles /tasks/{id}/*
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	taskID, action := splitPath(r.URL.Path, "/tasks/")
	if taskID == "" {
		http.Error(w, "task id required", http.StatusBadRequest)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getTask(w, r, tenantID, taskID)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteTask(w, r, tenantID, taskID)
	case action == "status" && r.Method == http.MethodPost:
		s.transitionTask(w, r, tenantID, taskID)
	case action == "blockers" && r.Method == http.MethodGet:
		s.listNeighbours(w, r, tenantID, taskID, s.service.Blockers)
	case action == "dependents" && r.Method == http.MethodGet:
		s.listNeighbours(w, r, tenantID, taskID, s.service.Dependents)
	case action == "audit" && r.Method == http.MethodGet:
		s.taskAudit(w, r, tenantID, taskID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request, tenantID, taskID string) {
	task, err := s.service.GetTask(r.Context(), tenantID, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request, tenantID, taskID string) {
	if err := s.service.DeleteTask(r.Context(), tenantID, actor(r), taskID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Status string `json:"status"`
}

// transitionResponse carries the updated task. Error is set when the
// status was applied but the completion cascade failed part way.
type transitionResponse struct {
	Task  *models.Task `json:"task"`
	Error string       `json:"error,omitempty"`
}

func (s *Server) transitionTask(w http.ResponseWriter, r *http.Request, tenantID, taskID string) {
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	task, err := s.service.TransitionTask(r.Context(), tenantID, actor(r), taskID, req.Status)
	if err != nil && task == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		log.Printf("transition %s: %v", taskID, err)
		writeJSON(w, statusFor(err), transitionResponse{Task: task, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{Task: task})
}

func (s *Server) listNeighbours(w http.ResponseWriter, r *http.Request, tenantID, taskID string,
	list func(context.Context, string, string) ([]models.Task, error)) {
	tasks, err := list(r.Context(), tenantID, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) taskAudit(w http.ResponseWriter, r *http.Request, tenantID, taskID string) {
	entries, err := s.service.TaskAudit(r.Context(), tenantID, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Dependency Handlers ---

type addDependencyRequest struct {
	BlockerTaskID string `json:"blocker_task_id"`
	BlockedTaskID string `json:"blocked_task_id"`
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var req addDependencyRequest
	if !decode(w, r, &req) {
		return
	}
	dep, err := s.service.AddDependency(r.Context(), tenantID, actor(r), req.BlockerTaskID, req.BlockedTaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}

func (s *Server) handleDependencyByID(w http.ResponseWriter, r *http.Request) {
	id, _ := splitPath(r.URL.Path, "/dependencies/")
	if id == "" {
		http.Error(w, "dependency id required", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	if err := s.service.RemoveDependency(r.Context(), tenantID, actor(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Ranking Handlers ---

func (s *Server) handleWhatsNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}

	user := r.URL.Query().Get("user")
	if user == "" {
		user = actor(r)
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	next, err := s.service.WhatsNext(r.Context(), tenantID, user, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}
