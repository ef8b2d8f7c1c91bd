package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession matches every verification failure.
var ErrInvalidSession = errors.New("invalid or expired session")

// Reason tells why a token was rejected.
type Reason string

const (
	ReasonMissing   Reason = "missing"
	ReasonMalformed Reason = "malformed"
	ReasonExpired   Reason = "expired"
	ReasonSignature Reason = "signature"
)

// InvalidError is returned by Verify for any rejected token.
type InvalidError struct {
	Reason Reason
	Err    error
}

func (e *InvalidError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session %s", e.Reason)
	}
	return fmt.Sprintf("session %s: %v", e.Reason, e.Err)
}

func (e *InvalidError) Unwrap() error {
	return e.Err
}

// Is reports every InvalidError as ErrInvalidSession.
func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalidSession
}

// Verifier checks session tokens produced by an Issuer sharing the same secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for tokens signed with secret.
func NewVerifier(secret string, opts ...Option) *Verifier {
	o := buildOptions(opts)
	return &Verifier{secret: []byte(secret), now: o.now}
}

// Verify parses token and returns the identity it proves. A token is either
// valid in full or rejected with an *InvalidError.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, &InvalidError{Reason: ReasonMissing}
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithAudience(audienceName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, classify(err)
	}
	if !parsed.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return Identity{}, &InvalidError{Reason: ReasonMalformed}
	}

	return Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func classify(err error) *InvalidError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &InvalidError{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &InvalidError{Reason: ReasonSignature, Err: err}
	default:
		return &InvalidError{Reason: ReasonMalformed, Err: err}
	}
}
