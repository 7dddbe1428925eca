package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list [project-id]",
	Short: "List the tasks of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [task-id] [status]",
	Short: "Change a task's status",
	Long: `Changes a task's status. Completing a task moves every blocked dependent
whose blockers are now all completed to ready.`,
	Args: cobra.ExactArgs(2),
	RunE: runTaskStatus,
}

var taskRmCmd = &cobra.Command{
	Use:   "rm [task-id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRm,
}

var taskLogCmd = &cobra.Command{
	Use:   "log [task-id]",
	Short: "Show the audit trail of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskLog,
}

var (
	taskProject  string
	taskTitle    string
	taskDesc     string
	taskStatus   string
	taskPriority string
	taskAssignee string
	taskDue      string
	taskParent   string
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskStatusCmd, taskRmCmd, taskLogCmd)

	taskAddCmd.Flags().StringVar(&taskProject, "project", "", "Project ID (required)")
	taskAddCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (required)")
	taskAddCmd.Flags().StringVar(&taskDesc, "desc", "", "Task description")
	taskAddCmd.Flags().StringVar(&taskStatus, "status", "", "Initial status (default created)")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "", "Priority: critical, high, medium, low (default medium)")
	taskAddCmd.Flags().StringVar(&taskAssignee, "assignee", "", "Assignee user ID")
	taskAddCmd.Flags().StringVar(&taskDue, "due", "", "Due date (RFC 3339)")
	taskAddCmd.Flags().StringVar(&taskParent, "parent", "", "Parent task ID")
	taskAddCmd.MarkFlagRequired("project")
	taskAddCmd.MarkFlagRequired("title")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"project_id":     taskProject,
		"title":          taskTitle,
		"description":    taskDesc,
		"status":         taskStatus,
		"priority":       taskPriority,
		"assignee_id":    taskAssignee,
		"parent_task_id": taskParent,
	}
	if taskDue != "" {
		body["due_date"] = taskDue
	}

	resp, err := apiPost("/tasks", body)
	if err != nil {
		return err
	}

	fmt.Printf("Created task: %s\n", resp.Get("id").String())
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/projects/" + args[0] + "/tasks")
	if err != nil {
		return err
	}

	tasks := resp.Array()
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	printTasks(tasks)
	return nil
}

func printTasks(tasks []gjson.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tASSIGNEE\tDUE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(t.Get("id").String()),
			truncate(t.Get("title").String(), 40),
			t.Get("status").String(),
			t.Get("priority").String(),
			orDash(t.Get("assignee_id").String()),
			orDash(t.Get("due_date").String()),
		)
	}
	w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	task, err := apiGet("/tasks/" + args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", task.Get("id").String())
	fmt.Printf("Project:     %s\n", task.Get("project_id").String())
	fmt.Printf("Title:       %s\n", task.Get("title").String())
	if d := task.Get("description").String(); d != "" {
		fmt.Printf("Description: %s\n", d)
	}
	fmt.Printf("Status:      %s\n", task.Get("status").String())
	fmt.Printf("Priority:    %s\n", task.Get("priority").String())
	fmt.Printf("Assignee:    %s\n", orDash(task.Get("assignee_id").String()))
	if due := task.Get("due_date"); due.Exists() {
		fmt.Printf("Due:         %s\n", due.String())
	}
	if done := task.Get("completed_at"); done.Exists() {
		fmt.Printf("Completed:   %s\n", done.String())
	}
	fmt.Printf("Created:     %s\n", task.Get("created_at").String())
	fmt.Printf("Updated:     %s\n", task.Get("updated_at").String())

	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/tasks/"+args[0]+"/status", map[string]string{"status": args[1]})
	if task := resp.Get("task"); task.Exists() {
		fmt.Printf("Task %s is now %s\n", truncateID(task.Get("id").String()), task.Get("status").String())
	}
	return err
}

func runTaskRm(cmd *cobra.Command, args []string) error {
	if err := apiDelete("/tasks/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted task %s\n", args[0])
	return nil
}

func runTaskLog(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/" + args[0] + "/audit")
	if err != nil {
		return err
	}

	entries := resp.Array()
	if len(entries) == 0 {
		fmt.Println("No audit entries found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOLD\tNEW\tACTOR\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Get("timestamp").String(),
			e.Get("action").String(),
			orDash(e.Get("old").String()),
			orDash(e.Get("new").String()),
			orDash(e.Get("actor_id").String()),
			e.Get("details").String(),
		)
	}
	w.Flush()
	return nil
}
