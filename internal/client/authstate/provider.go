// Package authstate holds the client-side view of the session: who is signed
// in, and whether that is known yet.
//
// A Provider starts Loading and settles after exactly one reconciliation
// with the server's "who am I" endpoint. Login, signup and logout update the
// user directly from their responses; they never touch Loading.
package authstate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/authgate/authgate-go/internal/model"
)

// Client is the subset of api.Client a Provider needs.
type Client interface {
	Me(ctx context.Context) (model.Envelope, error)
	Login(ctx context.Context, req model.LoginRequest) (model.Envelope, error)
	Signup(ctx context.Context, req model.SignupRequest) (model.Envelope, error)
	Logout(ctx context.Context) (model.Envelope, error)
}

// State is a snapshot of the authentication state.
type State struct {
	User    *model.UserResponse
	Loading bool
}

// Authenticated reports whether the state is settled with a user.
func (s State) Authenticated() bool {
	return !s.Loading && s.User != nil
}

// Result is what an action reports back to the caller.
type Result struct {
	Success bool
	Message string
	User    *model.UserResponse
}

// Provider owns the authentication state of one client lifetime.
type Provider struct {
	client Client
	logger *slog.Logger

	mu    sync.Mutex
	state State
	subs  map[chan State]struct{}

	mountOnce sync.Once
	ready     chan struct{}

	life   context.Context
	cancel context.CancelFunc
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger used for failed requests.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = l
	}
}

// NewProvider creates a Provider in the Loading state.
func NewProvider(client Client, opts ...ProviderOption) *Provider {
	life, cancel := context.WithCancel(context.Background())
	p := &Provider{
		client: client,
		logger: slog.Default(),
		state:  State{Loading: true},
		subs:   make(map[chan State]struct{}),
		ready:  make(chan struct{}),
		life:   life,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current snapshot.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Ready is closed once the mount-time reconciliation has completed. It is
// never closed if the provider is unmounted first.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Mount starts the one reconciliation with the server in the background.
// Calls after the first are no-ops. ctx bounds the request in addition to
// the provider's own lifetime.
func (p *Provider) Mount(ctx context.Context) {
	p.mountOnce.Do(func() {
		go p.reconcile(ctx)
	})
}

// Unmount cancels every in-flight request. Responses that arrive afterwards
// are dropped.
func (p *Provider) Unmount() {
	p.cancel()
}

func (p *Provider) reconcile(ctx context.Context) {
	ctx, done := p.bind(ctx)
	defer done()

	env, err := p.client.Me(ctx)
	if err != nil {
		p.logger.Warn("session check failed", "error", err)
	}

	p.update(func(s *State) {
		s.User = nil
		if err == nil && env.Success {
			s.User = env.User
		}
		s.Loading = false
	})

	if p.life.Err() == nil {
		close(p.ready)
	}
}

// Login signs in and, on success, switches to the returned user.
func (p *Provider) Login(ctx context.Context, email, password string) Result {
	ctx, done := p.bind(ctx)
	defer done()

	env, err := p.client.Login(ctx, model.LoginRequest{Email: email, Password: password})
	return p.settle("login", env, err)
}

// Signup creates an account and, on success, switches to the new user.
func (p *Provider) Signup(ctx context.Context, email, password, name string) Result {
	ctx, done := p.bind(ctx)
	defer done()

	env, err := p.client.Signup(ctx, model.SignupRequest{Email: email, Password: password, Name: name})
	return p.settle("signup", env, err)
}

// Logout signs out. The state ends anonymous whatever the server says.
func (p *Provider) Logout(ctx context.Context) Result {
	ctx, done := p.bind(ctx)
	defer done()

	env, err := p.client.Logout(ctx)

	p.update(func(s *State) { s.User = nil })

	if err != nil {
		p.logger.Warn("logout request failed", "error", err)
		return Result{Success: false, Message: "logout failed"}
	}
	return Result{Success: env.Success, Message: env.Message}
}

func (p *Provider) settle(action string, env model.Envelope, err error) Result {
	if err != nil {
		p.logger.Warn(action+" request failed", "error", err)
		return Result{Success: false, Message: action + " failed"}
	}

	if !env.Success {
		if env.StatusCode >= 500 {
			p.logger.Error(action+" rejected by server", "status", env.StatusCode, "message", env.Message)
		}
		return Result{Success: false, Message: env.Message}
	}

	p.update(func(s *State) { s.User = env.User })
	return Result{Success: true, Message: env.Message, User: env.User}
}

// bind ties ctx to the provider lifetime.
func (p *Provider) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	if p.life.Err() != nil {
		cancel()
	}
	stop := context.AfterFunc(p.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// update applies fn and notifies subscribers, unless the provider is gone.
func (p *Provider) update(fn func(*State)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.life.Err() != nil {
		return
	}

	fn(&p.state)
	for ch := range p.subs {
		publish(ch, p.state)
	}
}

// Subscribe returns a channel that always holds the latest state, starting
// with the current one. Intermediate states may be coalesced. Call the
// returned function to stop receiving.
func (p *Provider) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	p.mu.Lock()
	p.subs[ch] = struct{}{}
	ch <- p.state
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
		})
	}
}

// publish replaces whatever is buffered in ch with s.
func publish(ch chan State, s State) {
	select {
	case <-ch:
	default:
	}
	ch <- s
}
