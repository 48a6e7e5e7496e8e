package entity

import (
	"time"
)

// Account is the aggregate root for the account lifecycle domain.
// PasswordHash holds a bcrypt digest; the plaintext never leaves the hasher.
// Optional attributes are pointers so absence is distinguishable from the
// zero value.
type Account struct {
	ID           string
	Email        string
	PasswordHash string

	FirstName *string
	LastName  *string
	Address   *string
	BirthDate *time.Time

	// IsActive flips to true exactly once, when the activation token is
	// redeemed. It never reverts.
	IsActive        bool
	ActivationToken *string

	// ResetToken and ResetTokenExpiresAt are set and cleared together.
	ResetToken          *string
	ResetTokenExpiresAt *time.Time

	LastLoginAt *time.Time
	CreatedAt   time.Time
}
