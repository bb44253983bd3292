package cli

import (
	"bufio"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/ui"
)

func newAuthCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Token authentication for the remote backend",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return usagef("usage: todo auth <login|logout|status|whoami>")
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "login",
			Short: "Store a token in ~/.tada/credentials.json",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				fmt.Fprint(a.stdout, "Paste your token: ")
				sc := bufio.NewScanner(cmd.InOrStdin())
				if !sc.Scan() {
					if err := sc.Err(); err != nil {
						return fmt.Errorf("read token: %w", err)
					}
					return usagef("read token: no input")
				}
				fmt.Fprintln(a.stdout)
				v, err := auth.DefaultVault()
				if err != nil {
					return err
				}
				if _, err := v.Save(sc.Text(), nil); err != nil {
					return fmt.Errorf("save token: %w", err)
				}
				ui.OK(a.stdout, "logged in")
				return nil
			},
		},
		&cobra.Command{
			Use:   "logout",
			Short: "Forget the stored token",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				v, err := auth.DefaultVault()
				if err != nil {
					return err
				}
				if c, _ := v.Load(); c != nil && c.Source == auth.SourceEnv {
					ui.OK(a.stdout, "token is provided by "+auth.EnvToken+" env var (nothing to delete)")
					return nil
				}
				if _, err := v.Forget(); err != nil {
					return fmt.Errorf("logout: %w", err)
				}
				ui.OK(a.stdout, "logged out")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show where the token comes from and when it expires",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				ti, err := loadCredentials()
				if err != nil {
					return err
				}
				if ti == nil {
					fmt.Fprintln(a.stdout, ui.Current().Muted.Render("not logged in"))
					fmt.Fprintln(a.stdout, "Run: todo auth login")
					return nil
				}
				fmt.Fprintf(a.stdout, "source: %s\n", ti.Source)
				if ti.ExpiresAt != nil {
					fmt.Fprintf(a.stdout, "expires: %s\n", ti.ExpiresAt.UTC().Format(time.RFC3339))
				} else {
					fmt.Fprintln(a.stdout, "expires: (unknown)")
				}
				fmt.Fprintln(a.stdout, "env override: "+auth.EnvToken)
				return nil
			},
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Decode the stored JWT locally (signature not checked)",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				ti, err := loadCredentials()
				if err != nil {
					return err
				}
				if ti == nil {
					return usageError{fmt.Errorf("not logged in. Run: todo auth login: %w", apperr.ErrUnauthorized)}
				}
				claims, err := auth.Inspect(ti.Token)
				if errors.Is(err, auth.ErrOpaqueToken) {
					fmt.Fprintln(a.stdout, "Opaque token (cannot introspect locally).")
					fmt.Fprintln(a.stdout, "source:", ti.Source)
					return nil
				}
				if err != nil {
					return err
				}
				printClaims(a, claims)
				return nil
			},
		},
	)
	return cmd
}

func loadCredentials() (*auth.Credentials, error) {
	v, err := auth.DefaultVault()
	if err != nil {
		return nil, err
	}
	return v.Load()
}

func printClaims(a *app, c *auth.Claims) {
	fmt.Fprintln(a.stdout, "JWT payload:")
	keys := make([]string, 0, len(c.Raw))
	for k := range c.Raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(a.stdout, "  %s: %v\n", k, c.Raw[k])
	}
	if c.ExpiresAt != nil {
		note := ""
		if c.ExpiresAt.Before(time.Now()) {
			note = " (expired)"
		}
		fmt.Fprintf(a.stdout, "expires: %s%s\n", c.ExpiresAt.UTC().Format(time.RFC3339), note)
	}
}
