package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jrsteele09/go-tenant-session/internal/utils"
	"github.com/jrsteele09/go-tenant-session/oauthlogin"
	"github.com/jrsteele09/go-tenant-session/sessions"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/token/refresh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagMethod   string
	flagEmail    string
	flagPassword string
	flagName     string
	flagType     string

	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "This command signs in to the dashboard backend.",
		Long: `
Usage: dashctl login [options]

  Signs in and persists the session's tokens. The default method is password;
  google and github open a browser and wait for the provider to redirect back
  to a loopback address.

      $ dashctl login --email ada@example.com
      $ dashctl login --method google
`,
		RunE: runLogin,
	}

	signupCmd = &cobra.Command{
		Use:   "signup",
		Short: "This command creates an account and signs in.",
		RunE:  runSignup,
	}

	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "This command ends the session and forgets the selection.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.coordinator.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("Logged out.")
				return nil
			})
		},
	}

	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "This command shows the signed in user and the current scope.",
		RunE:  runWhoami,
	}

	onboardCmd = &cobra.Command{
		Use:   "onboard",
		Short: "This command creates the first tenant of a new account.",
		RunE:  runOnboard,
	}

	refreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "This command rotates the tokens and reloads the tenant associations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(a *app) error {
				if _, ok := a.coordinator.Manager().ForceRefresh(cmd.Context()); !ok {
					return fmt.Errorf("token refresh failed, please login again")
				}
				return a.coordinator.RefreshAssociations(cmd.Context())
			})
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "This command keeps the session fresh until interrupted.",
		RunE:  runWatch,
	}
)

func init() {
	loginCmd.Flags().StringVarP(&flagMethod, "method", "m", "password", "Login method: password, google or github")
	loginCmd.Flags().StringVarP(&flagEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "Account password (prompted when empty)")

	signupCmd.Flags().StringVar(&flagName, "name", "", "Display name")
	signupCmd.Flags().StringVarP(&flagEmail, "email", "e", "", "Account email")
	signupCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "Account password (prompted when empty)")

	onboardCmd.Flags().StringVar(&flagName, "name", "", "Name of the first tenant")
	onboardCmd.Flags().StringVar(&flagType, "type", string(tenants.TenantPersonal), "Tenant type: STUDENT, PERSONAL or BUSINESS")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		var (
			needsOnboarding bool
			err             error
		)
		switch strings.ToLower(flagMethod) {
		case "password":
			if flagEmail == "" {
				return fmt.Errorf("email is required. Use -e or --email flag")
			}
			password, perr := passwordOrPrompt()
			if perr != nil {
				return perr
			}
			needsOnboarding, err = a.coordinator.LoginWithPassword(ctx, flagEmail, password)
		case "google", "github":
			needsOnboarding, err = oauthLogin(ctx, a, oauthlogin.Provider(strings.ToLower(flagMethod)))
		default:
			return fmt.Errorf("unknown login method: %s", flagMethod)
		}
		if err != nil {
			return err
		}
		return afterLogin(ctx, a, needsOnboarding)
	})
}

func runSignup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if flagEmail == "" {
		return fmt.Errorf("email is required. Use -e or --email flag")
	}
	return withApp(ctx, func(a *app) error {
		password, err := passwordOrPrompt()
		if err != nil {
			return err
		}
		needsOnboarding, err := a.coordinator.Signup(ctx, flagName, flagEmail, password)
		if err != nil {
			return err
		}
		return afterLogin(ctx, a, needsOnboarding)
	})
}

func oauthLogin(ctx context.Context, a *app, provider oauthlogin.Provider) (bool, error) {
	var (
		flow *oauthlogin.Flow
		err  error
	)
	if provider == oauthlogin.Google {
		flow, err = oauthlogin.NewGoogle(ctx, a.cfg)
	} else {
		flow, err = oauthlogin.NewGitHub(a.cfg)
	}
	if err != nil {
		return false, err
	}

	sess, err := flow.Start(ctx)
	if err != nil {
		return false, err
	}
	fmt.Printf("Open this URL in your browser to continue:\n\n    %s\n\n", sess.AuthURL())

	res, err := sess.Wait(ctx)
	if err != nil {
		return false, err
	}
	if res.Provider == oauthlogin.Google {
		return a.coordinator.LoginWithGoogle(ctx, res.IDToken)
	}
	return a.coordinator.LoginWithGitHub(ctx, res.Code)
}

func afterLogin(ctx context.Context, a *app, needsOnboarding bool) error {
	user, _ := a.coordinator.CurrentUser()
	fmt.Printf("Logged in as %s.\n", firstSet(user.Email, user.Name, user.ID))
	if needsOnboarding {
		fmt.Println("Your account has no tenant yet. Run \"dashctl onboard --name <tenant>\" to create one.")
		return nil
	}
	return a.coordinator.LoadInitial(ctx)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(a *app) error {
		st := a.coordinator.State()
		user, _ := a.coordinator.CurrentUser()

		tenant, _ := st.Associations.Tenant(st.Selection.TenantID)
		workspace, _ := st.Associations.Workspace(st.Selection.WorkspaceID)
		project, _ := st.Associations.Project(st.Selection.ProjectID)

		expires := "never"
		if claims := utils.Value(st.Claims); claims.ExpiresAt > 0 {
			expires = claims.Expiry().Local().Format("2006-01-02 15:04:05")
		}

		printPairs(
			[2]string{"User", user.ID},
			[2]string{"Name", user.Name},
			[2]string{"Email", user.Email},
			[2]string{"Super admin", fmt.Sprint(user.IsSuperAdmin)},
			[2]string{"Token tenant", st.ClaimTenantID()},
			[2]string{"Token expires", expires},
			[2]string{"Tenant", describe(tenant.Name, st.Selection.TenantID)},
			[2]string{"Workspace", describe(workspace.Name, st.Selection.WorkspaceID)},
			[2]string{"Project", describe(project.Name, st.Selection.ProjectID)},
			[2]string{"Needs onboarding", fmt.Sprint(a.coordinator.NeedsOnboarding())},
		)
		return nil
	})
}

func runOnboard(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(flagName) == "" {
		return fmt.Errorf("tenant name is required. Use --name flag")
	}
	tenantType, err := tenants.ParseTenantType(flagType)
	if err != nil {
		return err
	}
	return withSession(cmd.Context(), func(a *app) error {
		if err := a.coordinator.CompleteOnboarding(cmd.Context(), flagName, tenantType); err != nil {
			return err
		}
		fmt.Printf("Created %s.\n", flagName)
		return nil
	})
}

// runWatch runs the token lifecycle in the foreground, printing each change
// of scope, until SIGINT or SIGTERM.
func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	return withSession(ctx, func(a *app) error {
		unsubscribe := a.coordinator.Subscribe(func(st sessions.State) {
			log.Info().
				Str("tenant", st.ClaimTenantID()).
				Bool("authenticated", st.IsAuthenticated()).
				Bool("switching", st.Switching).
				Msg("session changed")
			if !st.IsAuthenticated() {
				cancel()
			}
		})
		defer unsubscribe()

		go a.coordinator.Manager().Run(ctx)
		a.coordinator.Manager().RefreshIfNeeded(ctx, refresh.TriggerVisible)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)

		select {
		case <-stop:
		case <-ctx.Done():
			fmt.Println("Session ended.")
		}
		return nil
	})
}

func passwordOrPrompt() (string, error) {
	if flagPassword != "" {
		return flagPassword, nil
	}
	if env := os.Getenv("DASH_PASSWORD"); env != "" {
		return env, nil
	}
	fmt.Print("Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func describe(name, id string) string {
	switch {
	case id == "":
		return "-"
	case name == "":
		return id
	default:
		return fmt.Sprintf("%s (%s)", name, id)
	}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
