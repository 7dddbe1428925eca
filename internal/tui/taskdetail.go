package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskgraph/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)
)

// TaskDetailModel manages the task detail screen
type TaskDetailModel struct {
	client   *Client
	taskID   string
	detail   *TaskDetail
	viewport viewport.Model
	loading  bool
}

// NewTaskDetailModel creates a new task detail model
func NewTaskDetailModel(client *Client) *TaskDetailModel {
	return &TaskDetailModel{
		client:   client,
		viewport: viewport.New(80, 20),
	}
}

// SetTask sets the task ID to display
func (m *TaskDetailModel) SetTask(id string) {
	m.taskID = id
	m.detail = nil
	m.viewport.GotoTop()
}

// TaskID returns the task being shown.
func (m *TaskDetailModel) TaskID() string { return m.taskID }

// SetSize sets the dimensions
func (m *TaskDetailModel) SetSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h
}

// Refresh fetches task details
func (m *TaskDetailModel) Refresh() tea.Cmd {
	m.loading = true
	client, id := m.client, m.taskID
	return func() tea.Msg {
		detail, err := client.GetTask(id)
		if err != nil {
			return errMsg{err}
		}
		return taskDetailLoadedMsg{detail}
	}
}

// Update handles messages
func (m *TaskDetailModel) Update(msg tea.Msg) (*TaskDetailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case taskDetailLoadedMsg:
		m.loading = false
		m.detail = msg.detail
		m.viewport.SetContent(renderDetail(m.detail))
		return m, nil
	case errMsg:
		m.loading = false
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the task detail
func (m *TaskDetailModel) View() string {
	if m.detail == nil {
		return "Loading task..."
	}
	return m.viewport.View()
}

func renderDetail(d *TaskDetail) string {
	var b strings.Builder
	t := d.Task

	b.WriteString(headerStyle.Render(t.Title))
	b.WriteString("\n\n")

	field := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("ID", t.ID)
	field("Status", formatStatus(t.Status))
	field("Priority", formatPriority(t.Priority))
	assignee := t.AssigneeID
	if assignee == "" {
		assignee = "(unassigned)"
	}
	field("Assignee", assignee)
	if t.DueDate != nil {
		field("Due", t.DueDate.Local().Format("2006-01-02 15:04"))
	}
	if t.CompletedAt != nil {
		field("Completed", t.CompletedAt.Local().Format("2006-01-02 15:04"))
	}
	if t.Description != "" {
		b.WriteString("\n")
		b.WriteString(t.Description)
		b.WriteString("\n")
	}

	writeTasks(&b, "Blocked by", d.Blockers)
	writeTasks(&b, "Blocks", d.Dependents)
	return b.String()
}

func writeTasks(b *strings.Builder, title string, tasks []models.Task) {
	b.WriteString(sectionStyle.Render(fmt.Sprintf("%s (%d)", title, len(tasks))))
	b.WriteString("\n")
	if len(tasks) == 0 {
		b.WriteString(labelStyle.Render("  none"))
		b.WriteString("\n")
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(b, "  %s %s %s\n", formatStatus(t.Status), t.Title, labelStyle.Render(t.ID))
	}
}
