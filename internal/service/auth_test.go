package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/authgate/authgate-go/internal/crypto"
	"github.com/authgate/authgate-go/internal/model"
	"github.com/authgate/authgate-go/internal/repository"
	"github.com/authgate/authgate-go/internal/session"
)

var fastHash = crypto.HashParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestAuthService(t *testing.T, repo repository.UserRepository) *AuthService {
	t.Helper()

	svc, err := NewAuthService(
		repo,
		session.NewIssuer("test-secret"),
		WithHashParams(fastHash),
	)
	if err != nil {
		t.Fatalf("NewAuthService() unexpected error: %v", err)
	}
	return svc
}

// failingRepo simulates a store outage.
type failingRepo struct{}

var errStoreDown = errors.New("store down")

func (failingRepo) Create(context.Context, *model.User) error { return errStoreDown }
func (failingRepo) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, errStoreDown
}
func (failingRepo) GetByID(context.Context, string) (*model.User, error) {
	return nil, errStoreDown
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     model.SignupRequest
		wantMsg string
	}{
		{
			name:    "empty email",
			req:     model.SignupRequest{Email: "", Password: "password123"},
			wantMsg: "email is required",
		},
		{
			name:    "blank email",
			req:     model.SignupRequest{Email: "   ", Password: "password123"},
			wantMsg: "email is required",
		},
		{
			name:    "empty password",
			req:     model.SignupRequest{Email: "test@example.com", Password: ""},
			wantMsg: "password is required",
		},
		{
			name:    "malformed email",
			req:     model.SignupRequest{Email: "not-an-email", Password: "password123"},
			wantMsg: "email: ",
		},
		{
			name:    "name too long",
			req:     model.SignupRequest{Email: "test@example.com", Password: "pw", Name: strings.Repeat("x", 201)},
			wantMsg: "name: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAuthService(t, repository.NewMemoryUserRepository())

			_, err := svc.Signup(context.Background(), tt.req)

			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Signup() error = %v, want ErrValidation", err)
			}
			if !strings.HasPrefix(err.Error(), tt.wantMsg) {
				t.Errorf("Signup() message = %q, want prefix %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestSignup_Success(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	svc := newTestAuthService(t, repo)

	res, err := svc.Signup(context.Background(), model.SignupRequest{
		Email:    " Ada@Example.com",
		Password: "correct-horse",
		Name:     " Ada ",
	})
	if err != nil {
		t.Fatalf("Signup() unexpected error: %v", err)
	}

	if res.User.Email != "ada@example.com" {
		t.Errorf("Signup() email = %q, want %q", res.User.Email, "ada@example.com")
	}
	if res.User.Name != "Ada" {
		t.Errorf("Signup() name = %q, want %q", res.User.Name, "Ada")
	}
	if res.Token.Value == "" {
		t.Fatal("Signup() returned empty token")
	}

	stored, err := repo.GetByID(context.Background(), res.User.ID)
	if err != nil {
		t.Fatalf("GetByID() unexpected error: %v", err)
	}
	if stored.PasswordHash == "correct-horse" || !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Errorf("stored hash = %q, want an argon2id hash", stored.PasswordHash)
	}

	id, err := session.NewVerifier("test-secret").Verify(res.Token.Value)
	if err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}
	if id.UserID != res.User.ID {
		t.Errorf("token subject = %q, want %q", id.UserID, res.User.ID)
	}
}

func TestSignup_DuplicateIsGeneric(t *testing.T) {
	svc := newTestAuthService(t, repository.NewMemoryUserRepository())
	req := model.SignupRequest{Email: "dup@example.com", Password: "pw"}

	if _, err := svc.Signup(context.Background(), req); err != nil {
		t.Fatalf("Signup() unexpected error: %v", err)
	}

	req.Email = "DUP@example.com"
	_, err := svc.Signup(context.Background(), req)
	if err != ErrAccountUnavailable {
		t.Errorf("Signup() error = %v, want %v", err, ErrAccountUnavailable)
	}
	if strings.Contains(err.Error(), "email") {
		t.Errorf("duplicate message %q should not name the colliding field", err.Error())
	}
}

func TestSignup_StoreFailure(t *testing.T) {
	svc := newTestAuthService(t, failingRepo{})

	_, err := svc.Signup(context.Background(), model.SignupRequest{Email: "a@example.com", Password: "pw"})
	if !errors.Is(err, errStoreDown) {
		t.Errorf("Signup() error = %v, want wrapped %v", err, errStoreDown)
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrAccountUnavailable) {
		t.Error("store failure must not look like a client error")
	}
}

func TestLogin(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	svc := newTestAuthService(t, repo)

	if _, err := svc.Signup(context.Background(), model.SignupRequest{Email: "ada@example.com", Password: "right"}); err != nil {
		t.Fatalf("Signup() unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		req     model.LoginRequest
		wantErr error
	}{
		{name: "correct credentials", req: model.LoginRequest{Email: "ADA@example.com ", Password: "right"}},
		{name: "wrong password", req: model.LoginRequest{Email: "ada@example.com", Password: "wrong"}, wantErr: ErrInvalidCredentials},
		{name: "unknown email", req: model.LoginRequest{Email: "bob@example.com", Password: "right"}, wantErr: ErrInvalidCredentials},
		{name: "missing password", req: model.LoginRequest{Email: "ada@example.com"}, wantErr: ErrValidation},
		{name: "missing email", req: model.LoginRequest{Password: "right"}, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Login(context.Background(), tt.req)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
				}
				if res.Token.Value != "" {
					t.Error("Login() should not issue a token on failure")
				}
				return
			}

			if err != nil {
				t.Fatalf("Login() unexpected error: %v", err)
			}
			if res.User.Email != "ada@example.com" {
				t.Errorf("Login() email = %q, want %q", res.User.Email, "ada@example.com")
			}
			if got := res.Token.ExpiresAt.Sub(res.Token.IssuedAt); got != 7*24*time.Hour {
				t.Errorf("Login() token lifetime = %v, want 168h", got)
			}
		})
	}
}

func TestLogin_StoreFailure(t *testing.T) {
	svc := newTestAuthService(t, failingRepo{})

	_, err := svc.Login(context.Background(), model.LoginRequest{Email: "a@example.com", Password: "pw"})
	if !errors.Is(err, errStoreDown) {
		t.Errorf("Login() error = %v, want wrapped %v", err, errStoreDown)
	}
}

func TestCurrentUser(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	svc := newTestAuthService(t, repo)

	res, err := svc.Signup(context.Background(), model.SignupRequest{Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Signup() unexpected error: %v", err)
	}

	user, err := svc.CurrentUser(context.Background(), session.Identity{UserID: res.User.ID})
	if err != nil {
		t.Fatalf("CurrentUser() unexpected error: %v", err)
	}
	if user.ID != res.User.ID {
		t.Errorf("CurrentUser() ID = %q, want %q", user.ID, res.User.ID)
	}

	if err := repo.Delete(context.Background(), res.User.ID); err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}
	if _, err := svc.CurrentUser(context.Background(), session.Identity{UserID: res.User.ID}); err != ErrUnauthenticated {
		t.Errorf("CurrentUser() after delete error = %v, want %v", err, ErrUnauthenticated)
	}
}
