package main

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/spf13/cobra"
)

var (
	flagWorkspace string

	orgsCmd = &cobra.Command{
		Use:     "orgs",
		Aliases: []string{"tenants"},
		Short:   "This command groups subcommands for the session's tenants.",
		Long: `
Usage: dashctl orgs <subcommand> [options]

  Selecting a tenant other than the one the access token is scoped to
  exchanges the refresh token for a pair scoped to the new tenant.

      $ dashctl orgs list
      $ dashctl orgs select Acme
      $ dashctl orgs create "Acme Labs" --type BUSINESS
`,
	}

	orgsListCmd = &cobra.Command{
		Use:   "list",
		Short: "This command lists the tenants the user belongs to.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(a *app) error {
				st := a.coordinator.State()
				data := make([][]any, 0)
				for _, t := range st.Associations.Tenants() {
					def := marker(t.ID == st.Associations.DefaultTenantID)
					data = append(data, []any{marker(t.ID == st.Selection.TenantID), t.ID, t.Name, def})
				}
				printTable([]string{"", "ID", "Name", "Default"}, data)
				return nil
			})
		},
	}

	orgsSelectCmd = &cobra.Command{
		Use:   "select <id or name>",
		Short: "This command moves the session to another tenant.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(a *app) error {
				snap := a.coordinator.State().Associations
				id := args[0]
				if !snap.HasTenant(id) {
					if t, ok := snap.FindTenantByName(id); ok {
						id = t.ID
					}
				}
				if err := a.coordinator.SelectOrg(cmd.Context(), id); err != nil {
					return err
				}
				t, _ := a.coordinator.CurrentTenant()
				fmt.Printf("Now working in %s.\n", describe(t.Name, t.ID))
				return nil
			})
		},
	}

	orgsCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "This command creates a tenant and switches into it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantType, err := tenants.ParseTenantType(flagType)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(a *app) error {
				if err := a.coordinator.CreateTenant(cmd.Context(), args[0], tenantType); err != nil {
					return err
				}
				t, _ := a.coordinator.CurrentTenant()
				fmt.Printf("Created and switched to %s.\n", describe(t.Name, t.ID))
				return nil
			})
		},
	}

	workspacesCmd = &cobra.Command{
		Use:   "workspaces",
		Short: "This command groups subcommands for the selected tenant's workspaces.",
	}

	workspacesListCmd = &cobra.Command{
		Use:   "list",
		Short: "This command lists the workspaces of the selected tenant.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(a *app) error {
				st := a.coordinator.State()
				data := make([][]any, 0)
				for _, w := range st.Associations.WorkspacesFor(st.Selection.TenantID) {
					data = append(data, []any{marker(w.ID == st.Selection.WorkspaceID), w.ID, w.Name})
				}
				printTable([]string{"", "ID", "Name"}, data)
				return nil
			})
		},
	}

	workspacesSelectCmd = &cobra.Command{
		Use:   "select <id>",
		Short: "This command selects a workspace of the selected tenant.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(a *app) error {
				sel := a.coordinator.SelectWorkspace(cmd.Context(), args[0])
				if sel.WorkspaceID != args[0] {
					return fmt.Errorf("workspace %s is not part of the selected tenant", args[0])
				}
				fmt.Printf("Selected workspace %s.\n", sel.WorkspaceID)
				return nil
			})
		},
	}

	workspacesCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "This command creates a workspace in the selected tenant.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(a *app) error {
				if err := a.coordinator.CreateWorkspace(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Printf("Created workspace %s.\n", args[0])
				return nil
			})
		},
	}

	projectsCmd = &cobra.Command{
		Use:   "projects",
		Short: "This command groups subcommands for the selected workspace's projects.",
	}

	projectsListCmd = &cobra.Command{
		Use:   "list",
		Short: "This command lists the projects of the selected workspace.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(a *app) error {
				st := a.coordinator.State()
				data := make([][]any, 0)
				for _, p := range st.Associations.ProjectsFor(st.Selection.WorkspaceID) {
					data = append(data, []any{marker(p.ID == st.Selection.ProjectID), p.ID, p.Name})
				}
				printTable([]string{"", "ID", "Name"}, data)
				return nil
			})
		},
	}

	projectsSelectCmd = &cobra.Command{
		Use:   "select <id>",
		Short: "This command selects a project of the selected workspace.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(a *app) error {
				sel := a.coordinator.SelectProject(cmd.Context(), args[0])
				if sel.ProjectID != args[0] {
					return fmt.Errorf("project %s is not part of the selected workspace", args[0])
				}
				fmt.Printf("Selected project %s.\n", sel.ProjectID)
				return nil
			})
		},
	}

	projectsCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "This command creates a project in a workspace, the selected one by default.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectType, err := tenants.ParseProjectType(flagType)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), func(a *app) error {
				if err := a.coordinator.CreateProject(cmd.Context(), args[0], projectType, flagWorkspace); err != nil {
					return err
				}
				fmt.Printf("Created project %s.\n", args[0])
				return nil
			})
		},
	}

	projectsDetailsCmd = &cobra.Command{
		Use:   "details [id]",
		Short: "This command shows a project's repository details.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(a *app) error {
				sel := a.coordinator.State().Selection
				projectID := sel.ProjectID
				if len(args) == 1 {
					projectID = args[0]
				}
				workspaceID := sel.WorkspaceID
				if flagWorkspace != "" {
					workspaceID = flagWorkspace
				}
				if workspaceID == "" || projectID == "" {
					return fmt.Errorf("select a workspace and a project first")
				}

				details, err := a.coordinator.ProjectDetails(cmd.Context(), workspaceID, projectID)
				if err != nil {
					return err
				}
				printPairs(
					[2]string{"ID", details.ID},
					[2]string{"Name", details.Name},
					[2]string{"Type", strings.ToUpper(details.ProjectType)},
					[2]string{"Repository", details.RepoLink},
					[2]string{"Default branch", details.DefaultBranch},
				)
				return nil
			})
		},
	}
)

func init() {
	orgsCreateCmd.Flags().StringVar(&flagType, "type", string(tenants.TenantPersonal), "Tenant type: STUDENT, PERSONAL or BUSINESS")
	orgsCmd.AddCommand(orgsListCmd, orgsSelectCmd, orgsCreateCmd)

	workspacesCmd.AddCommand(workspacesListCmd, workspacesSelectCmd, workspacesCreateCmd)

	projectsCreateCmd.Flags().StringVar(&flagType, "type", string(tenants.ProjectFrontend), "Project type: FRONTEND, BACKEND or MONOREPO")
	projectsCreateCmd.Flags().StringVarP(&flagWorkspace, "workspace", "w", "", "Workspace id (defaults to the selected workspace)")
	projectsDetailsCmd.Flags().StringVarP(&flagWorkspace, "workspace", "w", "", "Workspace id (defaults to the selected workspace)")
	projectsCmd.AddCommand(projectsListCmd, projectsSelectCmd, projectsCreateCmd, projectsDetailsCmd)
}
