package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "taskspace",
	Short: "Taskspace is a multi-tenant to-do service",
	Long: `A collaborative to-do service with cookie sessions, TOTP two-factor
authentication, and optimistic concurrency on every record.
Complete documentation is available at https://github.com/rvalente/taskspace`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
