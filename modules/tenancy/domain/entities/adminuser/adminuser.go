package adminuser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrNotFound        = errors.New("user not found")
)

// User is the first administrator created for a tenant during provisioning.
type User struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// New hashes password with bcrypt and returns an active user of tenantID.
func New(tenantID uuid.UUID, email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Email:        NormalizeEmail(email),
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    time.Now(),
	}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) CheckPassword(password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	// ListByTenant returns the users of tenantID, optionally only active ones.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]*User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
