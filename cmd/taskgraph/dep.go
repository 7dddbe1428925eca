package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage task dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add [blocker-task-id] [blocked-task-id]",
	Short: "Make a task wait on another",
	Args:  cobra.ExactArgs(2),
	RunE:  runDepAdd,
}

var depRmCmd = &cobra.Command{
	Use:   "rm [dependency-id]",
	Short: "Remove a dependency",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepRm,
}

var depListCmd = &cobra.Command{
	Use:   "list [task-id]",
	Short: "Show what a task waits on and what waits on it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDepList,
}

func init() {
	depCmd.AddCommand(depAddCmd, depRmCmd, depListCmd)
}

func runDepAdd(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/dependencies", map[string]string{
		"blocker_task_id": args[0],
		"blocked_task_id": args[1],
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created dependency %s: %s blocks %s\n",
		resp.Get("id").String(), truncateID(args[0]), truncateID(args[1]))
	return nil
}

func runDepRm(cmd *cobra.Command, args []string) error {
	if err := apiDelete("/dependencies/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed dependency %s\n", args[0])
	return nil
}

func runDepList(cmd *cobra.Command, args []string) error {
	blockers, err := apiGet("/tasks/" + args[0] + "/blockers")
	if err != nil {
		return err
	}
	dependents, err := apiGet("/tasks/" + args[0] + "/dependents")
	if err != nil {
		return err
	}

	fmt.Println("Blocked by:")
	if len(blockers.Array()) == 0 {
		fmt.Println("  none")
	} else {
		printTasks(blockers.Array())
	}
	fmt.Println()
	fmt.Println("Blocks:")
	if len(dependents.Array()) == 0 {
		fmt.Println("  none")
	} else {
		printTasks(dependents.Array())
	}
	return nil
}
