package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/taskgraph/internal/models"
)

var (
	cmdBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// CmdBarModel manages the command input bar
type CmdBarModel struct {
	input   textinput.Model
	focused bool
	message string
}

// NewCmdBarModel creates a new command bar
func NewCmdBarModel() *CmdBarModel {
	ti := textinput.New()
	ti.Placeholder = "add <title> | status <state> | after <task-id> | user <id> | limit <n>"
	ti.CharLimit = 256
	return &CmdBarModel{
		input: ti,
	}
}

// Focused reports whether the bar is taking input.
func (m *CmdBarModel) Focused() bool { return m.focused }

// Focus focuses the command bar
func (m *CmdBarModel) Focus() tea.Cmd {
	m.focused = true
	m.message = ""
	return m.input.Focus()
}

// Blur unfocuses the command bar
func (m *CmdBarModel) Blur() {
	m.focused = false
	m.input.Blur()
	m.input.SetValue("")
}

// Submit returns the current input and blurs
func (m *CmdBarModel) Submit() string {
	val := m.input.Value()
	m.Blur()
	return val
}

// SetMessage shows a one-line result in place of the hint.
func (m *CmdBarModel) SetMessage(msg string) {
	m.message = msg
}

// Update handles messages
func (m *CmdBarModel) Update(msg tea.Msg) (*CmdBarModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command bar
func (m *CmdBarModel) View() string {
	if m.focused {
		prompt := promptStyle.Render(": ")
		return cmdBarStyle.Render(prompt + m.input.View())
	}
	if m.message != "" {
		return cmdBarStyle.Render(m.message)
	}
	return cmdBarStyle.Render("r refresh • s start • c complete • b block • enter detail • : command • q quit")
}

// command is a parsed command bar entry.
type command struct {
	name string
	args []string
}

func parseCommand(input string) (command, bool) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return command{}, false
	}
	return command{name: parts[0], args: parts[1:]}, true
}

// execute runs a command bar entry. selected is the highlighted task id, or empty.
func (a *App) execute(input, selected string) tea.Cmd {
	cmd, ok := parseCommand(input)
	if !ok {
		return nil
	}

	switch cmd.name {
	case "user":
		if len(cmd.args) != 1 {
			return result("Usage: user <id>")
		}
		a.client.SetUser(cmd.args[0])
		return a.list.Refresh()

	case "limit":
		n, err := strconv.Atoi(strings.Join(cmd.args, ""))
		if err != nil || n < 1 {
			return result("Usage: limit <n>")
		}
		a.list.SetLimit(n)
		return a.list.Refresh()
	}

	client := a.client
	return func() tea.Msg {
		switch cmd.name {
		case "add":
			if len(cmd.args) == 0 {
				return cmdResultMsg{"Usage: add <title>"}
			}
			task, err := client.CreateTask(strings.Join(cmd.args, " "))
			if err != nil {
				return cmdResultMsg{fmt.Sprintf("Error: %v", err)}
			}
			return cmdResultMsg{fmt.Sprintf("Created task %s", shortID(task.ID))}

		case "status":
			if selected == "" {
				return cmdResultMsg{"No task selected"}
			}
			if len(cmd.args) != 1 {
				return cmdResultMsg{"Usage: status <state>"}
			}
			status, err := models.ParseTaskStatus(cmd.args[0])
			if err != nil {
				return cmdResultMsg{fmt.Sprintf("Error: %v", err)}
			}
			if _, err := client.SetStatus(selected, status); err != nil {
				return cmdResultMsg{fmt.Sprintf("Error: %v", err)}
			}
			return cmdResultMsg{fmt.Sprintf("%s -> %s", shortID(selected), status)}

		case "after":
			if selected == "" {
				return cmdResultMsg{"No task selected"}
			}
			if len(cmd.args) != 1 {
				return cmdResultMsg{"Usage: after <blocker-task-id>"}
			}
			if err := client.AddDependency(cmd.args[0], selected); err != nil {
				return cmdResultMsg{fmt.Sprintf("Error: %v", err)}
			}
			return cmdResultMsg{fmt.Sprintf("%s now waits on %s", shortID(selected), shortID(cmd.args[0]))}
		}
		return cmdResultMsg{fmt.Sprintf("Unknown command: %s", cmd.name)}
	}
}

func result(msg string) tea.Cmd {
	return func() tea.Msg { return cmdResultMsg{msg} }
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
