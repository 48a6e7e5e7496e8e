package repository

import (
	"context"
	"errors"
	"time"

	"github.com/senecalabs/seneca-accounts/internal/domain/entity"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// AccountPatch describes a partial update. Pointer fields are written when
// non-nil, Clear* flags null the matching columns. Display strings written as
// "" clear the field.
type AccountPatch struct {
	PasswordHash *string

	FirstName      *string
	LastName       *string
	Address        *string
	BirthDate      *time.Time
	ClearBirthDate bool

	IsActive             *bool
	ClearActivationToken bool

	ResetToken          *string
	ResetTokenExpiresAt *time.Time
	ClearResetToken     bool

	LastLoginAt *time.Time
}

// IsZero reports whether the patch writes nothing.
func (p AccountPatch) IsZero() bool {
	return p == AccountPatch{}
}

// AccountRepository defines the persistence operations the lifecycle service
// needs. Every write is a single-record update keyed by a unique column, so
// concurrent requests for the same account cannot interleave partial state.
// The storage layer owns the email uniqueness guarantee; Create reports a
// violation as ErrDuplicateEmail.
type AccountRepository interface {
	Create(ctx context.Context, a *entity.Account) error
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	GetByEmail(ctx context.Context, email string) (*entity.Account, error)
	GetByActivationToken(ctx context.Context, token string) (*entity.Account, error)
	// GetByResetToken only matches tokens whose expiry is strictly after
	// notExpiredAt.
	GetByResetToken(ctx context.Context, token string, notExpiredAt time.Time) (*entity.Account, error)
	Update(ctx context.Context, id string, patch AccountPatch) (*entity.Account, error)
	Delete(ctx context.Context, id string) error
}
