package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fentz26/taskgraph/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Identity names who the TUI acts as.
type Identity struct {
	Tenant  string
	Actor   string
	User    string
	Project string
}

// Client wraps HTTP calls to the taskgraph API
type Client struct {
	baseURL    string
	id         Identity
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string, id Identity) *Client {
	if id.User == "" {
		id.User = id.Actor
	}
	return &Client{
		baseURL: baseURL,
		id:      id,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// User returns the user whose list is shown.
func (c *Client) User() string { return c.id.User }

// SetUser switches the list owner.
func (c *Client) SetUser(user string) { c.id.User = user }

// WhatsNext fetches the ranked list for the current user
func (c *Client) WhatsNext(limit int) ([]models.NextTask, error) {
	q := url.Values{}
	q.Set("user", c.id.User)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var next []models.NextTask
	if err := c.get("/whats-next?"+q.Encode(), &next); err != nil {
		return nil, err
	}
	return next, nil
}

// GetTask fetches a task with its blockers and dependents
func (c *Client) GetTask(id string) (*TaskDetail, error) {
	detail := &TaskDetail{}
	if err := c.get("/tasks/"+id, &detail.Task); err != nil {
		return nil, err
	}
	if err := c.get("/tasks/"+id+"/blockers", &detail.Blockers); err != nil {
		return nil, err
	}
	if err := c.get("/tasks/"+id+"/dependents", &detail.Dependents); err != nil {
		return nil, err
	}
	return detail, nil
}

// SetStatus transitions a task
func (c *Client) SetStatus(id string, status models.TaskStatus) (*models.Task, error) {
	resp, err := c.send(http.MethodPost, "/tasks/"+id+"/status", map[string]string{"status": string(status)})
	if err != nil {
		return nil, err
	}
	var result struct {
		Task *models.Task `json:"task"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	return result.Task, nil
}

// CreateTask adds a task to the configured project
func (c *Client) CreateTask(title string) (*models.Task, error) {
	if c.id.Project == "" {
		return nil, fmt.Errorf("no project selected (start with --project)")
	}
	resp, err := c.send(http.MethodPost, "/tasks", map[string]string{
		"project_id":  c.id.Project,
		"title":       title,
		"assignee_id": c.id.User,
		"status":      string(models.TaskStatusReady),
	})
	if err != nil {
		return nil, err
	}
	var task models.Task
	if err := json.Unmarshal(resp, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// AddDependency records that blocker must complete before blocked
func (c *Client) AddDependency(blocker, blocked string) error {
	_, err := c.send(http.MethodPost, "/dependencies", map[string]string{
		"blocker_task_id": blocker,
		"blocked_task_id": blocked,
	})
	return err
}

// CheckHealth checks if the daemon is healthy
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var health struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, err
	}
	return health.OK, nil
}

func (c *Client) get(path string, out interface{}) error {
	body, err := c.send(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) send(method, path string, data interface{}) ([]byte, error) {
	var rd io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Tenant-ID", c.id.Tenant)
	if c.id.Actor != "" {
		req.Header.Set("X-Actor-ID", c.id.Actor)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %s", bytes.TrimSpace(body))
	}
	return body, nil
}
