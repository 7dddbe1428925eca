package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskgraph/internal/config"
	"github.com/fentz26/taskgraph/internal/controlplane"
)

var rootCmd = &cobra.Command{
	Use:   "taskgraph",
	Short: "taskgraph - task dependency graph and prioritization",
	Long: `taskgraph tracks tasks and the dependencies between them, unblocks
dependents when their blockers complete, lays out project graphs and ranks
what each user should work on next.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(controlplane.Version)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the daemon is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		health, err := CheckHealth()
		if health != nil {
			fmt.Printf("Daemon %s (db %s) at %s\n", health.Version, health.DB, health.Time)
		}
		return err
	},
}

var (
	apiAddr    string
	tenantID   string
	actorID    string
	configPath string
)

func init() {
	user := os.Getenv("USER")

	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", envOr("TASKGRAPH_TENANT", "default"), "Tenant ID sent with every request")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", envOr("TASKGRAPH_ACTOR", user), "Actor ID recorded in the audit log")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the config file (.yaml or .toml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(depCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
