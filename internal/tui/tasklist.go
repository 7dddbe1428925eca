package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskgraph/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusCreated    = lipgloss.NewStyle().Foreground(lipgloss.Color("7")) // Grey
	statusReady      = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusReview     = lipgloss.NewStyle().Foreground(lipgloss.Color("4")) // Blue
	statusCompleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
	statusCancelled  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	priorityCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	priorityHigh     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	priorityDefault  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// NextItem implements list.Item for the what's-next list
type NextItem struct {
	ID       string
	Name     string
	Status   models.TaskStatus
	Priority models.Priority
	Reason   string
}

func (i NextItem) FilterValue() string { return i.Name }
func (i NextItem) Title() string       { return i.Name }
func (i NextItem) Description() string {
	return fmt.Sprintf("%s %s • %s", formatStatus(i.Status), formatPriority(i.Priority), i.Reason)
}

func toItems(next []models.NextTask) []NextItem {
	items := make([]NextItem, len(next))
	for i, n := range next {
		items[i] = NextItem{
			ID:       n.Task.ID,
			Name:     n.Task.Title,
			Status:   n.Task.Status,
			Priority: n.Task.Priority,
			Reason:   n.Reason,
		}
	}
	return items
}

func formatStatus(status models.TaskStatus) string {
	label := "● " + string(status)
	switch status {
	case models.TaskStatusCreated:
		return statusCreated.Render(label)
	case models.TaskStatusReady:
		return statusReady.Render(label)
	case models.TaskStatusInProgress:
		return statusInProgress.Render(label)
	case models.TaskStatusReview:
		return statusReview.Render(label)
	case models.TaskStatusCompleted:
		return statusCompleted.Render(label)
	case models.TaskStatusBlocked:
		return statusBlocked.Render(label)
	case models.TaskStatusCancelled:
		return statusCancelled.Render(label)
	default:
		return string(status)
	}
}

func formatPriority(p models.Priority) string {
	switch p {
	case models.PriorityCritical:
		return priorityCritical.Render(string(p))
	case models.PriorityHigh:
		return priorityHigh.Render(string(p))
	default:
		return priorityDefault.Render(string(p))
	}
}

// NextListModel manages the what's-next list screen
type NextListModel struct {
	client  *Client
	list    list.Model
	items   []NextItem
	limit   int
	width   int
	height  int
	loading bool
}

// NewNextListModel creates a new list model
func NewNextListModel(client *Client, limit int) *NextListModel {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 20)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = listTitleStyle

	m := &NextListModel{
		client: client,
		list:   l,
		limit:  limit,
	}
	m.setTitle()
	return m
}

func (m *NextListModel) setTitle() {
	m.list.Title = fmt.Sprintf("What's next for %s", m.client.User())
}

// Init initializes the list
func (m *NextListModel) Init() tea.Cmd {
	return m.Refresh()
}

// SetSize sets the list dimensions
func (m *NextListModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.list.SetSize(w, h)
}

// SetLimit changes how many tasks are requested.
func (m *NextListModel) SetLimit(n int) {
	m.limit = n
}

// Filtering reports whether the list is capturing keys for its filter.
func (m *NextListModel) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// SelectedTask returns the currently selected task
func (m *NextListModel) SelectedTask() *NextItem {
	if item := m.list.SelectedItem(); item != nil {
		next := item.(NextItem)
		return &next
	}
	return nil
}

// Refresh fetches the ranked list from the API
func (m *NextListModel) Refresh() tea.Cmd {
	m.loading = true
	m.setTitle()
	client, limit := m.client, m.limit
	return func() tea.Msg {
		next, err := client.WhatsNext(limit)
		if err != nil {
			return errMsg{err}
		}
		return nextLoadedMsg{toItems(next)}
	}
}

// Update handles messages
func (m *NextListModel) Update(msg tea.Msg) (*NextListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case nextLoadedMsg:
		m.loading = false
		m.items = msg.items
		items := make([]list.Item, len(m.items))
		for i, t := range m.items {
			items[i] = t
		}
		return m, m.list.SetItems(items)

	case errMsg:
		m.loading = false
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list
func (m *NextListModel) View() string {
	if m.loading && len(m.items) == 0 {
		return "Loading tasks..."
	}
	return m.list.View()
}
