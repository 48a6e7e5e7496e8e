package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/senecalabs/seneca-accounts/config"
	"github.com/senecalabs/seneca-accounts/internal/domain/entity"
	repo "github.com/senecalabs/seneca-accounts/internal/domain/repository"
	"github.com/senecalabs/seneca-accounts/pkg/helpers"
	"github.com/senecalabs/seneca-accounts/pkg/mailer"
	tpl "github.com/senecalabs/seneca-accounts/pkg/mailer/templates"
)

// MinPasswordLength is enforced on password reset.
const MinPasswordLength = 6

// Mailer delivers a single email. A returned error must mean the email was
// not delivered, so callers can run compensating actions.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Service orchestrates the account lifecycle: registration with activation,
// login, password reset and profile maintenance. It composes the repository,
// hasher, token generator, bearer issuer and notification gateway; it holds
// no mutable state of its own besides the injected configuration.
type Service struct {
	Repo   repo.AccountRepository
	Mailer Mailer
	JWT    *helpers.JWTManager
	Pub    *helpers.RabbitPublisher
	Redis  *redis.Client
	Logger *logrus.Logger
	Cfg    *config.Config

	now func() time.Time
}

func NewService(r repo.AccountRepository, m Mailer, jwt *helpers.JWTManager, pub *helpers.RabbitPublisher, rdb *redis.Client, logger *logrus.Logger, cfg *config.Config) *Service {
	return &Service{Repo: r, Mailer: m, JWT: jwt, Pub: pub, Redis: rdb, Logger: logger, Cfg: cfg, now: time.Now}
}

// WithClock overrides the service clock; tests use it to control expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Profile is the echoed registration payload. Secrets never appear here.
type Profile struct {
	Email     string     `json:"email"`
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	Address   string     `json:"address,omitempty"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

// AccountView is the enriched account shape shared by profile reads and
// updates.
type AccountView struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	FirstName          string     `json:"firstName,omitempty"`
	LastName           string     `json:"lastName,omitempty"`
	Address            string     `json:"address,omitempty"`
	BirthDate          *time.Time `json:"birthDate,omitempty"`
	IsActive           bool       `json:"isActive"`
	LastLoginAt        *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	FullName           string     `json:"fullName"`
	DaysSinceLastLogin *int       `json:"daysSinceLastLoginAt"`
}

// LoginAccount extends AccountView with first-login derivations. In the login
// payload the day counter derives from the previous login, not the one just
// recorded.
type LoginAccount struct {
	AccountView
	PreviousLoginAt *time.Time `json:"previousLoginAt"`
	IsFirstLogin    bool       `json:"isFirstLogin"`
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Address   string
	BirthDate string
}

type RegisterResult struct {
	Message string  `json:"message"`
	Success bool    `json:"success"`
	Account Profile `json:"user"`
}

type ActivateResult struct {
	Message  string `json:"message"`
	Success  bool   `json:"success"`
	IsActive bool   `json:"isActive"`
}

type LoginResult struct {
	Token   string       `json:"token"`
	Account LoginAccount `json:"user"`
}

type ForgotPasswordResult struct {
	Message string `json:"message"`
}

type ResetPasswordResult struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ResetTokenStatus is the read-only probe result for a reset token.
type ResetTokenStatus struct {
	Valid     bool       `json:"valid"`
	Message   string     `json:"message"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expires,omitempty"`
}

// UpdateProfileInput carries a sparse field set: nil leaves a field
// unchanged, an empty string (after trimming) clears it, anything else sets
// it.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
	Address   *string
	BirthDate *string
}

type LoginHistory struct {
	AccountID          string     `json:"userId"`
	Email              string     `json:"email"`
	LastLoginAt        *time.Time `json:"lastLoginAt"`
	AccountCreated     time.Time  `json:"accountCreated"`
	DaysSinceLastLogin *int       `json:"daysSinceLastLoginAt"`
}

type LogoutResult struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
	Email   string `json:"email"`
}

const resetEmailSentMessage = "Password reset email sent."

// Register creates an inactive account and sends the activation email. The
// create and the send form one unit: if the send fails, the account is
// deleted again so no unreachable account survives.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, newError(KindMissingInput, "email and password are required")
	}

	// Fast path only; the unique index on email is the authoritative guard.
	if existing, err := s.Repo.GetByEmail(ctx, email); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	} else if existing != nil {
		return nil, newError(KindAccountExists, "account already exists")
	}

	var birthDate *time.Time
	if strings.TrimSpace(in.BirthDate) != "" {
		d, err := parseBirthDate(strings.TrimSpace(in.BirthDate))
		if err != nil {
			return nil, newError(KindInvalidBirthDate, "invalid birth date")
		}
		birthDate = &d
	}

	hash, err := helpers.HashPassword(in.Password, s.Cfg.BcryptCost)
	if err != nil {
		return nil, wrapError(KindFatal, "password hashing failed", err)
	}
	token, err := helpers.GenerateToken(s.Cfg.ActivationTokenLength)
	if err != nil {
		return nil, wrapError(KindFatal, "token generation failed", err)
	}

	acct := &entity.Account{
		Email:           email,
		PasswordHash:    hash,
		FirstName:       optional(in.FirstName),
		LastName:        optional(in.LastName),
		Address:         optional(in.Address),
		BirthDate:       birthDate,
		ActivationToken: &token,
	}
	if err := s.Repo.Create(ctx, acct); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, newError(KindAccountExists, "account already exists")
		}
		return nil, err
	}

	link := s.Cfg.BaseURL + "/api/auth/activate/" + token
	subject, text, html := tpl.ActivationEmail(deref(acct.FirstName), link)
	if err := s.sendMail(ctx, acct.Email, subject, text, html); err != nil {
		// Compensating delete: an account nobody can activate must not
		// survive a failed send.
		if delErr := s.Repo.Delete(ctx, acct.ID); delErr != nil && s.Logger != nil {
			s.Logger.WithError(delErr).WithField("account_id", acct.ID).Error("compensating delete failed")
		}
		return nil, wrapError(KindEmailSendFailure, "failed to send activation email", err)
	}

	return &RegisterResult{
		Message: "Account registered. Check your email to activate your account.",
		Success: true,
		Account: Profile{
			Email:     acct.Email,
			FirstName: deref(acct.FirstName),
			LastName:  deref(acct.LastName),
			Address:   deref(acct.Address),
			BirthDate: acct.BirthDate,
		},
	}, nil
}

// Activate redeems an activation token exactly once: the token is cleared in
// the same update that flips the account active, so replays always fail.
func (s *Service) Activate(ctx context.Context, token string) (*ActivateResult, error) {
	if token == "" {
		return nil, newError(KindInvalidActivationToken, "invalid activation token")
	}
	acct, err := s.Repo.GetByActivationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindInvalidActivationToken, "invalid activation token")
		}
		return nil, err
	}
	active := true
	if _, err := s.Repo.Update(ctx, acct.ID, repo.AccountPatch{IsActive: &active, ClearActivationToken: true}); err != nil {
		return nil, err
	}
	return &ActivateResult{Message: "Account activated successfully.", Success: true, IsActive: true}, nil
}

// Login verifies credentials and issues a bearer token. The password is
// checked before the activation state, so the not-activated response is only
// disclosed to callers who have proven the password. Unknown emails and wrong
// passwords return the same failure.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, newError(KindMissingInput, "email and password are required")
	}
	acct, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Burn a comparison so this path costs the same as a mismatch.
			helpers.CheckPassword(helpers.NoMatchHash, password)
			return nil, newError(KindInvalidCredentials, "invalid email or password")
		}
		return nil, err
	}
	if !helpers.CheckPassword(acct.PasswordHash, password) {
		return nil, newError(KindInvalidCredentials, "invalid email or password")
	}
	if !acct.IsActive {
		return nil, newError(KindAccountNotActivated, "account is not activated")
	}

	previous := acct.LastLoginAt
	now := s.now()
	updated, err := s.Repo.Update(ctx, acct.ID, repo.AccountPatch{LastLoginAt: &now})
	if err != nil {
		return nil, err
	}

	token, _, err := s.JWT.Issue(updated.ID, updated.Email)
	if err != nil {
		return nil, wrapError(KindFatal, "token signing failed", err)
	}

	view := s.view(updated)
	// The cache holds the view as profile reads expect it, derived from the
	// login just recorded.
	s.cacheView(ctx, &view)
	s.notifyLogin(ctx, updated, now)

	// The login payload derives the day counter from the previous login.
	payload := view
	payload.DaysSinceLastLogin = daysSince(now, previous)

	return &LoginResult{
		Token: token,
		Account: LoginAccount{
			AccountView:     payload,
			PreviousLoginAt: previous,
			IsFirstLogin:    previous == nil,
		},
	}, nil
}

// ForgotPassword issues a time-limited reset token and emails it. Unknown
// emails return the same message as known ones. A failed send rolls the token
// back so no live token exists that the owner never received.
func (s *Service) ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResult, error) {
	if email == "" {
		return nil, newError(KindMissingInput, "email is required")
	}
	acct, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &ForgotPasswordResult{Message: resetEmailSentMessage}, nil
		}
		return nil, err
	}

	token, err := helpers.GenerateToken(s.Cfg.ResetTokenLength)
	if err != nil {
		return nil, wrapError(KindFatal, "token generation failed", err)
	}
	expires := s.now().Add(s.Cfg.ResetTokenTTL)
	if _, err := s.Repo.Update(ctx, acct.ID, repo.AccountPatch{ResetToken: &token, ResetTokenExpiresAt: &expires}); err != nil {
		return nil, err
	}

	link := s.Cfg.BaseURL + "/api/auth/reset-password/" + token
	subject, text, html := tpl.PasswordResetEmail(link)
	if err := s.sendMail(ctx, acct.Email, subject, text, html); err != nil {
		if _, rbErr := s.Repo.Update(ctx, acct.ID, repo.AccountPatch{ClearResetToken: true}); rbErr != nil && s.Logger != nil {
			s.Logger.WithError(rbErr).WithField("account_id", acct.ID).Error("reset token rollback failed")
		}
		return nil, wrapError(KindEmailSendFailure, "failed to send password reset email", err)
	}

	return &ForgotPasswordResult{Message: resetEmailSentMessage}, nil
}

// ResetPassword redeems a non-expired reset token. The token pair is cleared
// in the same update that writes the new hash, making tokens single-use.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (*ResetPasswordResult, error) {
	if token == "" || newPassword == "" {
		return nil, newError(KindMissingInput, "token and new password are required")
	}
	if len(newPassword) < MinPasswordLength {
		return nil, newError(KindWeakPassword, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	acct, err := s.Repo.GetByResetToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindInvalidOrExpiredToken, "invalid or expired token")
		}
		return nil, err
	}
	hash, err := helpers.HashPassword(newPassword, s.Cfg.BcryptCost)
	if err != nil {
		return nil, wrapError(KindFatal, "password hashing failed", err)
	}
	if _, err := s.Repo.Update(ctx, acct.ID, repo.AccountPatch{PasswordHash: &hash, ClearResetToken: true}); err != nil {
		return nil, err
	}
	return &ResetPasswordResult{Message: "Password reset successfully", Success: true}, nil
}

// VerifyResetToken is a read-only probe: it reports validity without
// consuming the token, so a caller can confirm it before rendering a form.
func (s *Service) VerifyResetToken(ctx context.Context, token string) (*ResetTokenStatus, error) {
	if token == "" {
		return &ResetTokenStatus{Valid: false, Message: "token not provided"}, nil
	}
	acct, err := s.Repo.GetByResetToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &ResetTokenStatus{Valid: false, Message: "invalid or expired token"}, nil
		}
		return nil, err
	}
	return &ResetTokenStatus{
		Valid:     true,
		Message:   "token is valid",
		Email:     acct.Email,
		ExpiresAt: acct.ResetTokenExpiresAt,
	}, nil
}

// GetProfile returns the enriched account view, served from the cache when
// fresh.
func (s *Service) GetProfile(ctx context.Context, id string) (*AccountView, error) {
	if s.Redis != nil {
		var cached AccountView
		if ok, err := helpers.RedisGetJSON(ctx, s.Redis, accountCacheKey(id), &cached); err == nil && ok {
			return &cached, nil
		}
	}
	acct, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindAccountNotFound, "account not found")
		}
		return nil, err
	}
	view := s.view(acct)
	s.cacheView(ctx, &view)
	return &view, nil
}

// UpdateProfile applies a sparse update to the display fields only.
func (s *Service) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*AccountView, error) {
	if _, err := s.Repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindAccountNotFound, "account not found")
		}
		return nil, err
	}

	var patch repo.AccountPatch
	if in.FirstName != nil {
		v := strings.TrimSpace(*in.FirstName)
		patch.FirstName = &v
	}
	if in.LastName != nil {
		v := strings.TrimSpace(*in.LastName)
		patch.LastName = &v
	}
	if in.Address != nil {
		v := strings.TrimSpace(*in.Address)
		patch.Address = &v
	}
	if in.BirthDate != nil {
		if v := strings.TrimSpace(*in.BirthDate); v == "" {
			patch.ClearBirthDate = true
		} else {
			d, err := parseBirthDate(v)
			if err != nil {
				return nil, newError(KindInvalidBirthDate, "invalid birth date")
			}
			patch.BirthDate = &d
		}
	}

	updated, err := s.Repo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindAccountNotFound, "account not found")
		}
		return nil, err
	}
	view := s.view(updated)
	s.cacheView(ctx, &view)
	return &view, nil
}

// GetLoginHistory reports when the account last logged in.
func (s *Service) GetLoginHistory(ctx context.Context, id string) (*LoginHistory, error) {
	acct, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindAccountNotFound, "account not found")
		}
		return nil, err
	}
	return &LoginHistory{
		AccountID:          acct.ID,
		Email:              acct.Email,
		LastLoginAt:        acct.LastLoginAt,
		AccountCreated:     acct.CreatedAt,
		DaysSinceLastLogin: daysSince(s.now(), acct.LastLoginAt),
	}, nil
}

// Logout confirms the account exists and drops its cached view. The bearer
// token itself is not revocable server-side; it expires on its own clock.
func (s *Service) Logout(ctx context.Context, id string) (*LogoutResult, error) {
	acct, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newError(KindAccountNotFound, "account not found")
		}
		return nil, err
	}
	if s.Redis != nil {
		if err := helpers.RedisDel(ctx, s.Redis, accountCacheKey(id)); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", id).Warn("cache drop failed")
		}
	}
	return &LogoutResult{Message: "Logged out successfully", Success: true, Email: acct.Email}, nil
}

func (s *Service) sendMail(ctx context.Context, to, subject, text, html string) error {
	if s.Cfg != nil && !s.Cfg.MailSendEnabled {
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("mail sending disabled, skipping")
		}
		return nil
	}
	return s.Mailer.Send(ctx, to, subject, text, html)
}

// notifyLogin enqueues a sign-in notice for the email worker. Best effort:
// a publish failure never affects the login outcome.
func (s *Service) notifyLogin(ctx context.Context, a *entity.Account, at time.Time) {
	if s.Pub == nil || (s.Cfg != nil && !s.Cfg.MailSendEnabled) {
		return
	}
	job := mailer.EmailJob{
		To:       a.Email,
		Template: "login_notification",
		Data: map[string]any{
			"Name":  deref(a.FirstName),
			"Email": a.Email,
			"Time":  at.UTC().Format(time.RFC1123),
		},
	}
	if err := s.Pub.PublishJSON(ctx, job); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("email", a.Email).Warn("enqueue login notification failed")
	}
}

func accountCacheKey(id string) string { return "account:profile:" + id }

// cacheView refreshes the cached profile. The short TTL keeps the derived
// day counter fresh enough.
func (s *Service) cacheView(ctx context.Context, v *AccountView) {
	if s.Redis == nil {
		return
	}
	ttl := 5 * time.Minute
	if s.Cfg != nil && s.Cfg.ProfileCacheTTL > 0 {
		ttl = s.Cfg.ProfileCacheTTL
	}
	if err := helpers.RedisSetJSON(ctx, s.Redis, accountCacheKey(v.ID), v, ttl); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("account_id", v.ID).Warn("profile cache write failed")
	}
}

func (s *Service) view(a *entity.Account) AccountView {
	return AccountView{
		ID:                 a.ID,
		Email:              a.Email,
		FirstName:          deref(a.FirstName),
		LastName:           deref(a.LastName),
		Address:            deref(a.Address),
		BirthDate:          a.BirthDate,
		IsActive:           a.IsActive,
		LastLoginAt:        a.LastLoginAt,
		CreatedAt:          a.CreatedAt,
		FullName:           fullName(a),
		DaysSinceLastLogin: daysSince(s.now(), a.LastLoginAt),
	}
}

func fullName(a *entity.Account) string {
	return strings.TrimSpace(deref(a.FirstName) + " " + deref(a.LastName))
}

// daysSince returns whole days between now and t, or nil when t is absent.
func daysSince(now time.Time, t *time.Time) *int {
	if t == nil {
		return nil
	}
	d := int(now.Sub(*t) / (24 * time.Hour))
	return &d
}

var birthDateLayouts = []string{"2006-01-02", time.RFC3339}

func parseBirthDate(s string) (time.Time, error) {
	for _, layout := range birthDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// optional trims s and returns nil for the empty string.
func optional(s string) *string {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return &v
}
