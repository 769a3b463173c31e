package main

import (
	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagVerbose bool

	rootCmd = &cobra.Command{
		Use:           "dashctl",
		Short:         "dashctl manages a dashboard session and its tenant scope",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `
Usage: dashctl <command> [options]

  dashctl signs in to the dashboard backend, keeps the session's tokens fresh
  and moves the session between tenants, workspaces and projects.

  Sign in:

      $ dashctl login --email ada@example.com

  List and switch tenants:

      $ dashctl orgs list
      $ dashctl orgs select <id or name>
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname("dashctl")
			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file (can also use DASH_CONFIG env var)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(orgsCmd)
	rootCmd.AddCommand(workspacesCmd)
	rootCmd.AddCommand(projectsCmd)
}
