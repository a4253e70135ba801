package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bluemap-render/internal/session"
	"github.com/JakeFAU/bluemap-render/internal/trigger"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session after confirmation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			confirmer := &lineConfirmer{in: bufio.NewReader(cmd.InOrStdin()), out: out}
			reloader := &printReloader{out: out}
			ok, err := trigger.NewLogout(confirmer, app.Session, app.Session, reloader).Run()
			if err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			if !ok {
				fmt.Fprintln(out, "Logout canceled.")
			}
			return nil
		},
	}
}

func newLoginCmd() *cobra.Command {
	var (
		token  string
		userID int64
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			if err := app.Session.SetCookie(&http.Cookie{Name: session.TokenCookie, Value: token, Path: "/"}); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			if userID > 0 {
				if err := app.Session.SetItem(session.UserIDKey, strconv.FormatInt(userID, 10)); err != nil {
					return fmt.Errorf("store user id: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session saved to %s\n", app.Session.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token issued by the server")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "numeric account id")
	return cmd
}

// lineConfirmer asks on out and accepts "y" or "yes" from in.
type lineConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func (c *lineConfirmer) Confirm(prompt string) bool {
	fmt.Fprintf(c.out, "%s Continue? [y/N] ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

type printReloader struct {
	out io.Writer
}

func (r *printReloader) Reload() {
	fmt.Fprintln(r.out, "Logged out.")
}
