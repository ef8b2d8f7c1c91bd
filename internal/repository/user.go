package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/authgate/authgate-go/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// UserRepository is the credential store consumed by the auth service.
type UserRepository interface {
	// Create inserts a new user, filling in ID and timestamps when empty.
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// SQLUserRepository handles user persistence on a database/sql pool.
type SQLUserRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewUserRepository creates a new SQLUserRepository for the given dialect.
func NewUserRepository(db *sql.DB, dialect Dialect) *SQLUserRepository {
	return &SQLUserRepository{db: db, dialect: dialect}
}

// Create inserts a new user.
func (r *SQLUserRepository) Create(ctx context.Context, user *model.User) error {
	prepareUser(user)

	query := r.dialect.rebind(`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, nullIfEmpty(user.Name), user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if r.dialect.isDuplicate(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByEmail retrieves a user by their email address.
func (r *SQLUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := r.dialect.rebind(`SELECT id, email, name, password_hash, created_at, updated_at FROM users WHERE email = ?`)
	return r.scanOne(ctx, query, model.NormalizeEmail(email))
}

// GetByID retrieves a user by their ID.
func (r *SQLUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := r.dialect.rebind(`SELECT id, email, name, password_hash, created_at, updated_at FROM users WHERE id = ?`)
	return r.scanOne(ctx, query, id)
}

func (r *SQLUserRepository) scanOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user := &model.User{}
	var name sql.NullString

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &name, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	user.Name = name.String
	return user, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// prepareUser applies the store invariants shared by every implementation.
func prepareUser(user *model.User) {
	if user.ID == "" {
		user.ID = newID()
	}
	user.Email = model.NormalizeEmail(user.Email)
	user.Name = strings.TrimSpace(user.Name)

	now := time.Now().UTC().Truncate(time.Microsecond)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
}
