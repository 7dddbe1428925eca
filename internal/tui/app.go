// Package tui provides the interactive terminal UI for taskgraph.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskgraph/internal/models"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

type mode int

const (
	modeList mode = iota
	modeDetail
)

// App is the main TUI application model.
type App struct {
	client       *Client
	list         *NextListModel
	detail       *TaskDetailModel
	cmdbar       *CmdBarModel
	mode         mode
	width        int
	height       int
	daemonOnline bool
}

// New creates a new TUI application.
func New(apiAddr string, id Identity, limit int) *App {
	client := NewClient(apiAddr, id)
	return &App{
		client: client,
		list:   NewNextListModel(client, limit),
		detail: NewTaskDetailModel(client),
		cmdbar: NewCmdBarModel(),
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.list.Init(), a.checkDaemon())
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		body := max(a.height-4, 5)
		a.list.SetSize(a.width, body)
		a.detail.SetSize(a.width, body)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case nextLoadedMsg:
		var cmd tea.Cmd
		a.list, cmd = a.list.Update(msg)
		return a, cmd

	case taskDetailLoadedMsg:
		var cmd tea.Cmd
		a.detail, cmd = a.detail.Update(msg)
		return a, cmd

	case cmdResultMsg:
		a.cmdbar.SetMessage(msg.message)
		return a, a.refresh()

	case errMsg:
		a.cmdbar.SetMessage(fmt.Sprintf("Error: %v", msg.err))
		a.list, _ = a.list.Update(msg)
		a.detail, _ = a.detail.Update(msg)
		return a, nil

	case daemonStatusMsg:
		a.daemonOnline = msg.online
		return a, nil
	}

	return a, a.forward(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}

	if a.cmdbar.Focused() {
		if msg.String() == "enter" {
			return a, a.execute(a.cmdbar.Submit(), a.selectedID())
		}
		var cmd tea.Cmd
		a.cmdbar, cmd = a.cmdbar.Update(msg)
		return a, cmd
	}

	if a.mode == modeList && a.list.Filtering() {
		return a, a.forward(msg)
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "esc":
		if a.mode == modeDetail {
			a.mode = modeList
			return a, a.list.Refresh()
		}
	case ":":
		return a, a.cmdbar.Focus()
	case "r":
		return a, tea.Batch(a.refresh(), a.checkDaemon())
	case "s":
		return a, a.transition(models.TaskStatusInProgress)
	case "c":
		return a, a.transition(models.TaskStatusCompleted)
	case "b":
		return a, a.transition(models.TaskStatusBlocked)
	case "enter":
		if a.mode == modeList {
			if sel := a.list.SelectedTask(); sel != nil {
				a.mode = modeDetail
				a.detail.SetTask(sel.ID)
				return a, a.detail.Refresh()
			}
		}
		return a, nil
	}
	return a, a.forward(msg)
}

// forward hands msg to the active screen.
func (a *App) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if a.mode == modeDetail {
		a.detail, cmd = a.detail.Update(msg)
	} else {
		a.list, cmd = a.list.Update(msg)
	}
	return cmd
}

func (a *App) refresh() tea.Cmd {
	if a.mode == modeDetail {
		return tea.Batch(a.list.Refresh(), a.detail.Refresh())
	}
	return a.list.Refresh()
}

func (a *App) selectedID() string {
	if a.mode == modeDetail {
		return a.detail.TaskID()
	}
	if sel := a.list.SelectedTask(); sel != nil {
		return sel.ID
	}
	return ""
}

func (a *App) transition(status models.TaskStatus) tea.Cmd {
	id := a.selectedID()
	if id == "" {
		return result("No task selected")
	}
	client := a.client
	return func() tea.Msg {
		task, err := client.SetStatus(id, status)
		if err != nil {
			return errMsg{err}
		}
		return cmdResultMsg{fmt.Sprintf("%s -> %s", task.Title, task.Status)}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	client := a.client
	return func() tea.Msg {
		ok, _ := client.CheckHealth()
		return daemonStatusMsg{ok}
	}
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemon := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemon = offlineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("taskgraph") + "  " + daemon
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render("["+a.client.id.Tenant+"]")
	header += "  " + lipgloss.NewStyle().Foreground(mutedColor).Render(a.client.User())
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	if a.mode == modeDetail {
		b.WriteString(a.detail.View())
	} else {
		b.WriteString(a.list.View())
	}
	b.WriteString("\n")
	b.WriteString(a.cmdbar.View())
	return b.String()
}
