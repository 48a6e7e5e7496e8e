package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/senecalabs/seneca-accounts/internal/domain/entity"
	"github.com/senecalabs/seneca-accounts/internal/domain/repository"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, password_hash, first_name, last_name, address, birth_date, is_active, activation_token, reset_token, reset_token_expires_at, last_login_at, created_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Create(ctx context.Context, a *entity.Account) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, first_name, last_name, address, birth_date, is_active, activation_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Address, a.BirthDate, a.IsActive, a.ActivationToken)

	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
	return scanAccount(row)
}

func (r *AccountRepository) GetByActivationToken(ctx context.Context, token string) (*entity.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE activation_token = $1`, token)
	return scanAccount(row)
}

func (r *AccountRepository) GetByResetToken(ctx context.Context, token string, notExpiredAt time.Time) (*entity.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE reset_token = $1 AND reset_token_expires_at > $2
	`, token, notExpiredAt)
	return scanAccount(row)
}

// Update applies the patch as a single UPDATE statement so concurrent writers
// cannot interleave partial state. An empty patch degenerates to a read.
func (r *AccountRepository) Update(ctx context.Context, id string, p repository.AccountPatch) (*entity.Account, error) {
	if p.IsZero() {
		return r.GetByID(ctx, id)
	}

	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	// Display strings clear their column when empty.
	setOrClear := func(col string, v string) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = NULLIF($%d, '')", col, len(args)))
	}

	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	if p.FirstName != nil {
		setOrClear("first_name", *p.FirstName)
	}
	if p.LastName != nil {
		setOrClear("last_name", *p.LastName)
	}
	if p.Address != nil {
		setOrClear("address", *p.Address)
	}
	if p.BirthDate != nil {
		set("birth_date", *p.BirthDate)
	}
	if p.ClearBirthDate {
		sets = append(sets, "birth_date = NULL")
	}
	if p.IsActive != nil {
		set("is_active", *p.IsActive)
	}
	if p.ClearActivationToken {
		sets = append(sets, "activation_token = NULL")
	}
	if p.ResetToken != nil {
		set("reset_token", *p.ResetToken)
	}
	if p.ResetTokenExpiresAt != nil {
		set("reset_token_expires_at", *p.ResetTokenExpiresAt)
	}
	if p.ClearResetToken {
		sets = append(sets, "reset_token = NULL", "reset_token_expires_at = NULL")
	}
	if p.LastLoginAt != nil {
		set("last_login_at", *p.LastLoginAt)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE accounts SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), accountColumns,
	)
	return scanAccount(r.pool.QueryRow(ctx, query, args...))
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*entity.Account, error) {
	a := &entity.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash,
		&a.FirstName, &a.LastName, &a.Address, &a.BirthDate,
		&a.IsActive, &a.ActivationToken,
		&a.ResetToken, &a.ResetTokenExpiresAt,
		&a.LastLoginAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
