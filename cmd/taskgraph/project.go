package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectAdd,
}

var projectShowCmd = &cobra.Command{
	Use:   "show [project-id]",
	Short: "Show a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

func init() {
	projectCmd.AddCommand(projectAddCmd, projectShowCmd)
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/projects", map[string]string{"name": args[0]})
	if err != nil {
		return err
	}
	fmt.Printf("Created project: %s\n", resp.Get("id").String())
	return nil
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	project, err := apiGet("/projects/" + args[0])
	if err != nil {
		return err
	}
	fmt.Printf("ID:      %s\n", project.Get("id").String())
	fmt.Printf("Name:    %s\n", project.Get("name").String())
	fmt.Printf("Created: %s\n", project.Get("created_at").String())
	return nil
}
