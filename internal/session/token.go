// Package session issues, verifies and transports the signed session
// credential carried in the auth-token cookie.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TTL is the lifetime of a session token and its cookie.
	TTL = 7 * 24 * time.Hour

	issuerName   = "authgate"
	audienceName = "authgate-web"
)

var ErrEmptyUserID = errors.New("session: user id is required")

// Claims represents the JWT claims carried by a session token.
// The subject holds the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Token is a freshly signed session credential.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity is what a valid token proves about its bearer.
type Identity struct {
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Option configures an Issuer or a Verifier.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer signs session tokens with an HMAC secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer creates an Issuer signing with secret.
func NewIssuer(secret string, opts ...Option) *Issuer {
	o := buildOptions(opts)
	return &Issuer{secret: []byte(secret), now: o.now}
}

// Issue creates a signed token for the given user. Every call yields a
// distinct token, even within the same second, through a random token id.
func (i *Issuer) Issue(userID, email string) (Token, error) {
	if userID == "" {
		return Token{}, ErrEmptyUserID
	}

	// JWT NumericDate has second precision; truncate so the returned
	// times match what a verifier will decode.
	now := i.now().UTC().Truncate(time.Second)
	expires := now.Add(TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuerName,
			Audience:  jwt.ClaimStrings{audienceName},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, err
	}

	return Token{Value: signed, IssuedAt: now, ExpiresAt: expires}, nil
}
