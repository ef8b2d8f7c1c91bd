package authstate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate-go/internal/model"
)

type fakeClient struct {
	me     func(ctx context.Context) (model.Envelope, error)
	login  func(ctx context.Context, req model.LoginRequest) (model.Envelope, error)
	signup func(ctx context.Context, req model.SignupRequest) (model.Envelope, error)
	logout func(ctx context.Context) (model.Envelope, error)
}

func (f *fakeClient) Me(ctx context.Context) (model.Envelope, error) {
	if f.me == nil {
		return model.Envelope{Success: false, Message: "not authenticated", StatusCode: http.StatusOK}, nil
	}
	return f.me(ctx)
}

func (f *fakeClient) Login(ctx context.Context, req model.LoginRequest) (model.Envelope, error) {
	return f.login(ctx, req)
}

func (f *fakeClient) Signup(ctx context.Context, req model.SignupRequest) (model.Envelope, error) {
	return f.signup(ctx, req)
}

func (f *fakeClient) Logout(ctx context.Context) (model.Envelope, error) {
	if f.logout == nil {
		return model.Envelope{Success: true, Message: "logged out", StatusCode: http.StatusOK}, nil
	}
	return f.logout(ctx)
}

var (
	alice = &model.UserResponse{ID: "u-1", Email: "alice@example.com", Name: "Alice"}
	bob   = &model.UserResponse{ID: "u-2", Email: "bob@example.com"}

	errNetwork = errors.New("connection refused")
)

func newTestProvider(t *testing.T, c Client) *Provider {
	t.Helper()
	p := NewProvider(c, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(p.Unmount)
	return p
}

func mountAndWait(t *testing.T, p *Provider) {
	t.Helper()
	p.Mount(context.Background())
	select {
	case <-p.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("provider never became ready")
	}
}

func TestProviderStartsLoading(t *testing.T) {
	p := newTestProvider(t, &fakeClient{})

	s := p.State()
	assert.True(t, s.Loading)
	assert.Nil(t, s.User)
	assert.False(t, s.Authenticated())
}

func TestProviderMountReconciles(t *testing.T) {
	tests := []struct {
		name string
		me   func(context.Context) (model.Envelope, error)
		want *model.UserResponse
	}{
		{
			name: "signed in",
			me: func(context.Context) (model.Envelope, error) {
				return model.Envelope{Success: true, User: alice, StatusCode: http.StatusOK}, nil
			},
			want: alice,
		},
		{
			name: "anonymous",
			me: func(context.Context) (model.Envelope, error) {
				return model.Envelope{Success: false, Message: "not authenticated", StatusCode: http.StatusOK}, nil
			},
		},
		{
			name: "server error",
			me: func(context.Context) (model.Envelope, error) {
				return model.Envelope{Success: false, Message: "internal server error", StatusCode: http.StatusInternalServerError}, nil
			},
		},
		{
			name: "network error",
			me: func(context.Context) (model.Envelope, error) {
				return model.Envelope{}, errNetwork
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, &fakeClient{me: tt.me})
			mountAndWait(t, p)

			s := p.State()
			assert.False(t, s.Loading)
			assert.Equal(t, tt.want, s.User)
		})
	}
}

func TestProviderMountIsIdempotent(t *testing.T) {
	calls := make(chan struct{}, 10)
	p := newTestProvider(t, &fakeClient{me: func(context.Context) (model.Envelope, error) {
		calls <- struct{}{}
		return model.Envelope{Success: true, User: alice}, nil
	}})

	p.Mount(context.Background())
	p.Mount(context.Background())
	mountAndWait(t, p)

	assert.Len(t, calls, 1)
}

func TestProviderLoadingNeverReturns(t *testing.T) {
	c := &fakeClient{
		me: func(context.Context) (model.Envelope, error) {
			return model.Envelope{Success: true, User: alice}, nil
		},
		login: func(context.Context, model.LoginRequest) (model.Envelope, error) {
			return model.Envelope{}, errNetwork
		},
		signup: func(context.Context, model.SignupRequest) (model.Envelope, error) {
			return model.Envelope{Success: true, User: bob}, nil
		},
		logout: func(context.Context) (model.Envelope, error) {
			return model.Envelope{}, errNetwork
		},
	}
	p := newTestProvider(t, c)
	mountAndWait(t, p)

	ctx := context.Background()
	p.Login(ctx, "alice@example.com", "pw")
	assert.False(t, p.State().Loading)
	p.Signup(ctx, "bob@example.com", "pw", "")
	assert.False(t, p.State().Loading)
	p.Logout(ctx)
	assert.False(t, p.State().Loading)
}

func TestProviderLogin(t *testing.T) {
	tests := []struct {
		name     string
		resp     model.Envelope
		err      error
		want     Result
		wantUser *model.UserResponse
	}{
		{
			name:     "success",
			resp:     model.Envelope{Success: true, Message: "logged in", User: alice, StatusCode: http.StatusOK},
			want:     Result{Success: true, Message: "logged in", User: alice},
			wantUser: alice,
		},
		{
			name:     "bad credentials",
			resp:     model.Envelope{Success: false, Message: "invalid email or password", StatusCode: http.StatusBadRequest},
			want:     Result{Success: false, Message: "invalid email or password"},
			wantUser: bob,
		},
		{
			name:     "server error",
			resp:     model.Envelope{Success: false, Message: "internal server error", StatusCode: http.StatusInternalServerError},
			want:     Result{Success: false, Message: "internal server error"},
			wantUser: bob,
		},
		{
			name:     "network error",
			err:      errNetwork,
			want:     Result{Success: false, Message: "login failed"},
			wantUser: bob,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.LoginRequest
			p := newTestProvider(t, &fakeClient{
				me: func(context.Context) (model.Envelope, error) {
					return model.Envelope{Success: true, User: bob}, nil
				},
				login: func(_ context.Context, req model.LoginRequest) (model.Envelope, error) {
					got = req
					return tt.resp, tt.err
				},
			})
			mountAndWait(t, p)

			res := p.Login(context.Background(), "alice@example.com", "hunter22")

			assert.Equal(t, tt.want, res)
			assert.Equal(t, model.LoginRequest{Email: "alice@example.com", Password: "hunter22"}, got)
			assert.Equal(t, tt.wantUser, p.State().User)
		})
	}
}

func TestProviderSignup(t *testing.T) {
	tests := []struct {
		name     string
		resp     model.Envelope
		err      error
		want     Result
		wantUser *model.UserResponse
	}{
		{
			name:     "success",
			resp:     model.Envelope{Success: true, Message: "account created", User: alice, StatusCode: http.StatusCreated},
			want:     Result{Success: true, Message: "account created", User: alice},
			wantUser: alice,
		},
		{
			name: "rejected",
			resp: model.Envelope{Success: false, Message: "unable to create an account with these details", StatusCode: http.StatusBadRequest},
			want: Result{Success: false, Message: "unable to create an account with these details"},
		},
		{
			name: "network error",
			err:  errNetwork,
			want: Result{Success: false, Message: "signup failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.SignupRequest
			p := newTestProvider(t, &fakeClient{
				signup: func(_ context.Context, req model.SignupRequest) (model.Envelope, error) {
					got = req
					return tt.resp, tt.err
				},
			})
			mountAndWait(t, p)

			res := p.Signup(context.Background(), "alice@example.com", "hunter22", "Alice")

			assert.Equal(t, tt.want, res)
			assert.Equal(t, model.SignupRequest{Email: "alice@example.com", Password: "hunter22", Name: "Alice"}, got)
			assert.Equal(t, tt.wantUser, p.State().User)
		})
	}
}

func TestProviderLogoutAlwaysEndsAnonymous(t *testing.T) {
	tests := []struct {
		name string
		resp model.Envelope
		err  error
		want Result
	}{
		{
			name: "success",
			resp: model.Envelope{Success: true, Message: "logged out", StatusCode: http.StatusOK},
			want: Result{Success: true, Message: "logged out"},
		},
		{
			name: "server error",
			resp: model.Envelope{Success: false, Message: "internal server error", StatusCode: http.StatusInternalServerError},
			want: Result{Success: false, Message: "internal server error"},
		},
		{
			name: "network error",
			err:  errNetwork,
			want: Result{Success: false, Message: "logout failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, &fakeClient{
				me: func(context.Context) (model.Envelope, error) {
					return model.Envelope{Success: true, User: alice}, nil
				},
				logout: func(context.Context) (model.Envelope, error) {
					return tt.resp, tt.err
				},
			})
			mountAndWait(t, p)
			require.Equal(t, alice, p.State().User)

			res := p.Logout(context.Background())

			assert.Equal(t, tt.want, res)
			assert.Nil(t, p.State().User)
			assert.False(t, p.State().Loading)
		})
	}
}

func TestProviderUnmountCancelsAndDiscards(t *testing.T) {
	started := make(chan struct{})
	returned := make(chan error, 1)
	p := NewProvider(&fakeClient{me: func(ctx context.Context) (model.Envelope, error) {
		close(started)
		<-ctx.Done()
		returned <- ctx.Err()
		return model.Envelope{Success: true, User: alice}, nil
	}}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	p.Mount(context.Background())
	<-started
	p.Unmount()

	select {
	case err := <-returned:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request was not cancelled")
	}

	assert.Never(t, func() bool {
		select {
		case <-p.Ready():
			return true
		default:
			return !p.State().Loading
		}
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Nil(t, p.State().User)
}

func TestProviderActionsAfterUnmountAreDropped(t *testing.T) {
	p := newTestProvider(t, &fakeClient{
		login: func(ctx context.Context, _ model.LoginRequest) (model.Envelope, error) {
			if err := ctx.Err(); err != nil {
				return model.Envelope{}, err
			}
			return model.Envelope{Success: true, User: alice}, nil
		},
	})
	mountAndWait(t, p)
	p.Unmount()

	res := p.Login(context.Background(), "alice@example.com", "pw")

	assert.Equal(t, Result{Success: false, Message: "login failed"}, res)
	assert.Nil(t, p.State().User)
}

func TestProviderSubscribe(t *testing.T) {
	release := make(chan struct{})
	p := newTestProvider(t, &fakeClient{me: func(context.Context) (model.Envelope, error) {
		<-release
		return model.Envelope{Success: true, User: alice}, nil
	}})

	states, unsubscribe := p.Subscribe()
	defer unsubscribe()

	first := <-states
	assert.True(t, first.Loading)

	p.Mount(context.Background())
	close(release)

	select {
	case s := <-states:
		assert.False(t, s.Loading)
		assert.Equal(t, alice, s.User)
	case <-time.After(2 * time.Second):
		t.Fatal("no state published after reconciliation")
	}

	unsubscribe()
	p.Logout(context.Background())
	assert.Empty(t, states)
}

func TestProviderSubscribeCoalesces(t *testing.T) {
	p := newTestProvider(t, &fakeClient{
		me: func(context.Context) (model.Envelope, error) {
			return model.Envelope{Success: false}, nil
		},
		login: func(context.Context, model.LoginRequest) (model.Envelope, error) {
			return model.Envelope{Success: true, User: bob}, nil
		},
	})
	mountAndWait(t, p)

	states, unsubscribe := p.Subscribe()
	defer unsubscribe()

	p.Login(context.Background(), "bob@example.com", "pw")
	p.Logout(context.Background())
	p.Login(context.Background(), "bob@example.com", "pw")

	require.Len(t, states, 1)
	assert.Equal(t, State{User: bob}, <-states)
}

func TestContextHelpers(t *testing.T) {
	p := newTestProvider(t, &fakeClient{})

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.PanicsWithValue(t, ErrNoProvider, func() { MustFromContext(context.Background()) })

	ctx := WithProvider(context.Background(), p)
	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, p, got)
	assert.Same(t, p, MustFromContext(ctx))
}
