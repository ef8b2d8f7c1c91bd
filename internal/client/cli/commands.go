package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/authgate/authgate-go/internal/client/authstate"
	"github.com/authgate/authgate-go/internal/client/gate"
)

const loginHint = "authgate login --email <email>"

func newSignupCmd() *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: withProvider(func(cmd *cobra.Command, p *authstate.Provider) error {
			if password == "" {
				pw, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = pw
			}

			if _, err := settle(cmd.Context(), p); err != nil {
				return err
			}

			res := p.Signup(cmd.Context(), email, password, name)
			if !res.Success {
				return errors.New(res.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s\n", res.User.Email)
			return nil
		}),
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: withProvider(func(cmd *cobra.Command, p *authstate.Provider) error {
			if password == "" {
				pw, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = pw
			}

			if _, err := settle(cmd.Context(), p); err != nil {
				return err
			}

			res := p.Login(cmd.Context(), email, password)
			if !res.Success {
				return errors.New(res.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", res.User.Email)
			return nil
		}),
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: withProvider(func(cmd *cobra.Command, p *authstate.Provider) error {
			if _, err := settle(cmd.Context(), p); err != nil {
				return err
			}

			res := p.Logout(cmd.Context())
			if !res.Success {
				// The server may still honour the cookie, but this client is
				// signed out either way.
				if jar := sessionJar(cmd.Context()); jar != nil {
					if err := jar.Clear(); err != nil {
						return fmt.Errorf("%s: clear session: %w", res.Message, err)
					}
				}
				return errors.New(res.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		}),
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: withProvider(func(cmd *cobra.Command, p *authstate.Provider) error {
			s, err := settle(cmd.Context(), p)
			if err != nil {
				return err
			}

			if !s.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.User.Email)
			return nil
		}),
	}
}

func newViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Render the account page behind the sign-in gate",
		Args:  cobra.NoArgs,
		RunE: withProvider(func(cmd *cobra.Command, p *authstate.Provider) error {
			g := gate.Gate{
				Children:  gate.ViewFunc(renderAccount),
				LoginPath: loginHint,
			}

			out := cmd.OutOrStdout()
			if err := g.Render(out, p.State()); err != nil {
				return err
			}

			states, unsubscribe := p.Subscribe()
			defer unsubscribe()
			p.Mount(cmd.Context())

			_, err := g.Follow(cmd.Context(), firstSettled(cmd.Context(), states), out)
			return err
		}),
	}
}

func renderAccount(w io.Writer, s authstate.State) error {
	if _, err := fmt.Fprintf(w, "Signed in as %s\n", s.User.Email); err != nil {
		return err
	}
	if s.User.Name != "" {
		if _, err := fmt.Fprintf(w, "Name: %s\n", s.User.Name); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Member since: %s\n", s.User.CreatedAt.Format("2006-01-02"))
	return err
}

// firstSettled forwards the first state that is no longer loading, then
// closes.
func firstSettled(ctx context.Context, states <-chan authstate.State) <-chan authstate.State {
	out := make(chan authstate.State, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-states:
				if !s.Loading {
					out <- s
					return
				}
			}
		}
	}()
	return out
}
