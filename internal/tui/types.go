package tui

import "github.com/fentz26/taskgraph/internal/models"

// TaskDetail is a task together with its direct neighbours.
type TaskDetail struct {
	Task       models.Task
	Blockers   []models.Task
	Dependents []models.Task
}

type errMsg struct {
	err error
}

type nextLoadedMsg struct {
	items []NextItem
}

type taskDetailLoadedMsg struct {
	detail *TaskDetail
}

type daemonStatusMsg struct {
	online bool
}

type cmdResultMsg struct {
	message string
}
