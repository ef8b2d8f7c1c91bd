// Package gate withholds protected content until the authentication state
// is known, and then only shows it to a signed-in user.
package gate

import (
	"context"
	"fmt"
	"io"

	"github.com/authgate/authgate-go/internal/client/authstate"
)

// DefaultLoginPath is where the default sign-in prompt points.
const DefaultLoginPath = "/login"

// View renders something for the given state.
type View interface {
	Render(w io.Writer, s authstate.State) error
}

// ViewFunc adapts a function to View.
type ViewFunc func(w io.Writer, s authstate.State) error

func (f ViewFunc) Render(w io.Writer, s authstate.State) error {
	return f(w, s)
}

// Text is a View that always writes the same line.
type Text string

func (t Text) Render(w io.Writer, _ authstate.State) error {
	_, err := fmt.Fprintln(w, string(t))
	return err
}

var nothing = ViewFunc(func(io.Writer, authstate.State) error { return nil })

// SignIn is the prompt shown to anonymous visitors when no fallback is set.
type SignIn struct {
	LoginPath string
}

func (v SignIn) Render(w io.Writer, _ authstate.State) error {
	path := v.LoginPath
	if path == "" {
		path = DefaultLoginPath
	}
	_, err := fmt.Fprintf(w, "Please sign in to continue: %s\n", path)
	return err
}

// Gate picks one of its views from the authentication state.
type Gate struct {
	// Placeholder is shown while the state is loading. Defaults to "Loading...".
	Placeholder View
	// Children is the protected content.
	Children View
	// Fallback is shown to anonymous visitors. Defaults to a SignIn prompt.
	Fallback View
	// LoginPath is used by the default SignIn prompt.
	LoginPath string
}

// Select returns the view for s. Loading always wins, whatever User holds.
func (g Gate) Select(s authstate.State) View {
	if s.Loading {
		if g.Placeholder != nil {
			return g.Placeholder
		}
		return Text("Loading...")
	}
	if s.Authenticated() {
		if g.Children != nil {
			return g.Children
		}
		return nothing
	}
	if g.Fallback != nil {
		return g.Fallback
	}
	return SignIn{LoginPath: g.LoginPath}
}

// Render writes the view selected for s.
func (g Gate) Render(w io.Writer, s authstate.State) error {
	return g.Select(s).Render(w, s)
}

// Follow renders every state received from states until the channel is
// closed or ctx is done. It returns the last state it rendered.
func (g Gate) Follow(ctx context.Context, states <-chan authstate.State, w io.Writer) (authstate.State, error) {
	var last authstate.State
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case s, ok := <-states:
			if !ok {
				return last, nil
			}
			if err := g.Render(w, s); err != nil {
				return last, fmt.Errorf("render: %w", err)
			}
			last = s
		}
	}
}
