// Package memory provides an in-process AccountRepository used by tests and
// local development without a database.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/senecalabs/seneca-accounts/internal/domain/entity"
	"github.com/senecalabs/seneca-accounts/internal/domain/repository"
)

type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*entity.Account
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]*entity.Account)}
}

func (r *AccountRepository) Create(_ context.Context, a *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	r.accounts[a.ID] = clone(a)
	return nil
}

func (r *AccountRepository) GetByID(_ context.Context, id string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(a), nil
}

func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, email) {
			return clone(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *AccountRepository) GetByActivationToken(_ context.Context, token string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if a.ActivationToken != nil && *a.ActivationToken == token {
			return clone(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *AccountRepository) GetByResetToken(_ context.Context, token string, notExpiredAt time.Time) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if a.ResetToken != nil && *a.ResetToken == token &&
			a.ResetTokenExpiresAt != nil && a.ResetTokenExpiresAt.After(notExpiredAt) {
			return clone(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *AccountRepository) Update(_ context.Context, id string, p repository.AccountPatch) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.FirstName != nil {
		a.FirstName = nilIfEmpty(*p.FirstName)
	}
	if p.LastName != nil {
		a.LastName = nilIfEmpty(*p.LastName)
	}
	if p.Address != nil {
		a.Address = nilIfEmpty(*p.Address)
	}
	if p.BirthDate != nil {
		bd := *p.BirthDate
		a.BirthDate = &bd
	}
	if p.ClearBirthDate {
		a.BirthDate = nil
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
	if p.ClearActivationToken {
		a.ActivationToken = nil
	}
	if p.ResetToken != nil {
		tok := *p.ResetToken
		a.ResetToken = &tok
	}
	if p.ResetTokenExpiresAt != nil {
		exp := *p.ResetTokenExpiresAt
		a.ResetTokenExpiresAt = &exp
	}
	if p.ClearResetToken {
		a.ResetToken = nil
		a.ResetTokenExpiresAt = nil
	}
	if p.LastLoginAt != nil {
		at := *p.LastLoginAt
		a.LastLoginAt = &at
	}

	return clone(a), nil
}

func (r *AccountRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clone(a *entity.Account) *entity.Account {
	c := *a
	c.FirstName = copyString(a.FirstName)
	c.LastName = copyString(a.LastName)
	c.Address = copyString(a.Address)
	c.ActivationToken = copyString(a.ActivationToken)
	c.ResetToken = copyString(a.ResetToken)
	c.BirthDate = copyTime(a.BirthDate)
	c.ResetTokenExpiresAt = copyTime(a.ResetTokenExpiresAt)
	c.LastLoginAt = copyTime(a.LastLoginAt)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
