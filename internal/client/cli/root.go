// Package cli implements the authgate command line client. Each invocation
// behaves like one page load: it restores the session cookie, reconciles the
// authentication state with the server, acts, and exits.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/authgate/authgate-go/internal/client/api"
	"github.com/authgate/authgate-go/internal/client/authstate"
	"github.com/authgate/authgate-go/internal/client/cookiestore"
)

type jarKey struct{}

type options struct {
	configPath  string
	baseURL     string
	sessionFile string
	verbose     bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:          "authgate",
		Short:        "Sign in to an authgate server from the command line",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			p, jar, err := o.provider(cmd)
			if err != nil {
				return err
			}
			ctx := context.WithValue(cmd.Context(), jarKey{}, jar)
			cmd.SetContext(authstate.WithProvider(ctx, p))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&o.baseURL, "base-url", "", "server URL (overrides base_url)")
	flags.StringVar(&o.sessionFile, "session-file", "", "where the session cookie is kept (overrides session_file)")
	flags.BoolVar(&o.verbose, "verbose", false, "log failed requests")

	root.AddCommand(
		newSignupCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newViewCmd(),
	)

	return root
}

func (o *options) provider(cmd *cobra.Command) (*authstate.Provider, *cookiestore.FileJar, error) {
	cfg, err := LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.sessionFile != "" {
		cfg.SessionFile = o.sessionFile
	}

	origin, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("base url: %w", err)
	}

	jar, err := cookiestore.Open(cfg.SessionFile, origin)
	if err != nil {
		return nil, nil, err
	}

	client, err := api.New(cfg.BaseURL, jar)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelError + 1
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	return authstate.NewProvider(client, authstate.WithLogger(logger)), jar, nil
}

// withProvider adapts fn to a RunE that runs inside the provider's lifetime.
func withProvider(fn func(cmd *cobra.Command, p *authstate.Provider) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		p := authstate.MustFromContext(cmd.Context())
		defer p.Unmount()
		return fn(cmd, p)
	}
}

// sessionJar returns the cookie jar opened for this invocation.
func sessionJar(ctx context.Context) *cookiestore.FileJar {
	jar, _ := ctx.Value(jarKey{}).(*cookiestore.FileJar)
	return jar
}

// settle mounts p and waits for the first reconciliation.
func settle(ctx context.Context, p *authstate.Provider) (authstate.State, error) {
	p.Mount(ctx)
	select {
	case <-p.Ready():
		return p.State(), nil
	case <-ctx.Done():
		return authstate.State{}, ctx.Err()
	}
}
