package application

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/senecalabs/seneca-accounts/config"
	"github.com/senecalabs/seneca-accounts/internal/domain/repository"
	"github.com/senecalabs/seneca-accounts/internal/infrastructure/memory"
	"github.com/senecalabs/seneca-accounts/pkg/helpers"
)

type sentMail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, text, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Text: text, HTML: html})
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMailer) last() sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:               "http://api.test",
		BcryptCost:            bcrypt.MinCost,
		ActivationTokenLength: 20,
		ResetTokenLength:      20,
		ResetTokenTTL:         time.Hour,
		MailSendEnabled:       true,
	}
}

type testEnv struct {
	svc    *Service
	repo   *memory.AccountRepository
	mailer *fakeMailer
	jwt    *helpers.JWTManager
	clock  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := memory.NewAccountRepository()
	mail := &fakeMailer{}
	jwtm := helpers.NewJWTManager("test-secret", time.Hour)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, mail, jwtm, nil, nil, logger, testConfig()).
		WithClock(func() time.Time { return now })

	return &testEnv{svc: svc, repo: repo, mailer: mail, jwt: jwtm, clock: &now}
}

func (e *testEnv) register(t *testing.T, email string) *RegisterResult {
	t.Helper()
	res, err := e.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "password123",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) activationToken(t *testing.T, email string) string {
	t.Helper()
	acct, err := e.repo.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, acct.ActivationToken)
	return *acct.ActivationToken
}

func (e *testEnv) registerActive(t *testing.T, email string) {
	t.Helper()
	e.register(t, email)
	_, err := e.svc.Activate(context.Background(), e.activationToken(t, email))
	require.NoError(t, err)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "ada@example.com")
	assert.True(t, res.Success)
	assert.Equal(t, "ada@example.com", res.Account.Email)
	assert.Equal(t, "Ada", res.Account.FirstName)

	// Activation email carries the redeem link.
	require.Equal(t, 1, env.mailer.count())
	mail := env.mailer.last()
	assert.Equal(t, "ada@example.com", mail.To)
	assert.Contains(t, mail.Text, "http://api.test/api/auth/activate/")

	// The stored account starts inactive with a token and a hashed password.
	acct, err := env.repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, acct.IsActive)
	assert.NotNil(t, acct.ActivationToken)
	assert.NotEqual(t, "password123", acct.PasswordHash)
	assert.True(t, helpers.CheckPassword(acct.PasswordHash, "password123"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ada@example.com")

	_, err := env.svc.Register(context.Background(), RegisterInput{Email: "ada@example.com", Password: "otherpass"})
	assert.Equal(t, KindAccountExists, KindOf(err))
}

func TestRegisterMissingInput(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(context.Background(), RegisterInput{Email: "", Password: "x"})
	assert.Equal(t, KindMissingInput, KindOf(err))

	_, err = env.svc.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: ""})
	assert.Equal(t, KindMissingInput, KindOf(err))
}

func TestRegisterInvalidBirthDate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "a@b.c", Password: "password123", BirthDate: "not-a-date",
	})
	assert.Equal(t, KindInvalidBirthDate, KindOf(err))
}

func TestRegisterDeletesAccountWhenEmailFails(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.fail = errors.New("smtp down")

	_, err := env.svc.Register(context.Background(), RegisterInput{Email: "ada@example.com", Password: "password123"})
	assert.Equal(t, KindEmailSendFailure, KindOf(err))

	// The half-created account must not survive.
	_, err = env.repo.GetByEmail(context.Background(), "ada@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// Registering again after the outage succeeds.
	env.mailer.fail = nil
	env.register(t, "ada@example.com")
}

func TestActivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "ada@example.com")
	token := env.activationToken(t, "ada@example.com")

	res, err := env.svc.Activate(ctx, token)
	require.NoError(t, err)
	assert.True(t, res.IsActive)

	acct, err := env.repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, acct.IsActive)
	assert.Nil(t, acct.ActivationToken)

	// The token is consumed; a replay fails.
	_, err = env.svc.Activate(ctx, token)
	assert.Equal(t, KindInvalidActivationToken, KindOf(err))
}

func TestActivateUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Activate(context.Background(), "nope")
	assert.Equal(t, KindInvalidActivationToken, KindOf(err))

	_, err = env.svc.Activate(context.Background(), "")
	assert.Equal(t, KindInvalidActivationToken, KindOf(err))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, "ada@example.com")

	_, unknownErr := env.svc.Login(context.Background(), "ghost@example.com", "password123")
	_, wrongErr := env.svc.Login(context.Background(), "ada@example.com", "wrongpass")

	assert.Equal(t, KindInvalidCredentials, KindOf(unknownErr))
	assert.Equal(t, KindInvalidCredentials, KindOf(wrongErr))
	// Same message either way, so callers cannot probe for registered emails.
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestLoginRequiresActivation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ada@example.com")

	_, err := env.svc.Login(context.Background(), "ada@example.com", "password123")
	assert.Equal(t, KindAccountNotActivated, KindOf(err))

	// The wrong password on an inactive account reports bad credentials, not
	// the activation state.
	_, err = env.svc.Login(context.Background(), "ada@example.com", "wrongpass")
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
}

func TestLoginFirstAndSecond(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")

	first, err := env.svc.Login(ctx, "ada@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, first.Token)
	assert.True(t, first.Account.IsFirstLogin)
	assert.Nil(t, first.Account.PreviousLoginAt)
	assert.Nil(t, first.Account.DaysSinceLastLogin)
	require.NotNil(t, first.Account.LastLoginAt)
	assert.Equal(t, *env.clock, *first.Account.LastLoginAt)

	claims, err := env.jwt.Verify(first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.Account.ID, claims.AccountID)
	assert.Equal(t, "ada@example.com", claims.Email)

	firstAt := *env.clock
	*env.clock = env.clock.Add(49 * time.Hour)

	second, err := env.svc.Login(ctx, "ada@example.com", "password123")
	require.NoError(t, err)
	assert.False(t, second.Account.IsFirstLogin)
	require.NotNil(t, second.Account.PreviousLoginAt)
	assert.Equal(t, firstAt, *second.Account.PreviousLoginAt)
	require.NotNil(t, second.Account.DaysSinceLastLogin)
	assert.Equal(t, 2, *second.Account.DaysSinceLastLogin)
}

func TestForgotPasswordSameMessageEitherWay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")

	known, err := env.svc.ForgotPassword(ctx, "ada@example.com")
	require.NoError(t, err)
	unknown, err := env.svc.ForgotPassword(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, known.Message, unknown.Message)

	// Only the known account got an email and a stored token.
	acct, err := env.repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotNil(t, acct.ResetToken)
	require.NotNil(t, acct.ResetTokenExpiresAt)
	assert.Equal(t, env.clock.Add(time.Hour), *acct.ResetTokenExpiresAt)
}

func TestForgotPasswordRollsBackTokenWhenEmailFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")

	env.mailer.fail = errors.New("smtp down")
	_, err := env.svc.ForgotPassword(ctx, "ada@example.com")
	assert.Equal(t, KindEmailSendFailure, KindOf(err))

	// No live token may exist that the owner never received.
	acct, err := env.repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Nil(t, acct.ResetToken)
	assert.Nil(t, acct.ResetTokenExpiresAt)
}

func (e *testEnv) resetToken(t *testing.T, email string) string {
	t.Helper()
	_, err := e.svc.ForgotPassword(context.Background(), email)
	require.NoError(t, err)
	acct, err := e.repo.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, acct.ResetToken)
	return *acct.ResetToken
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")
	token := env.resetToken(t, "ada@example.com")

	res, err := env.svc.ResetPassword(ctx, token, "newsecret")
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Old password is out, new one is in.
	_, err = env.svc.Login(ctx, "ada@example.com", "password123")
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
	_, err = env.svc.Login(ctx, "ada@example.com", "newsecret")
	assert.NoError(t, err)

	// The token is single-use.
	_, err = env.svc.ResetPassword(ctx, token, "anothersecret")
	assert.Equal(t, KindInvalidOrExpiredToken, KindOf(err))
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")
	token := env.resetToken(t, "ada@example.com")

	*env.clock = env.clock.Add(time.Hour + time.Minute)
	_, err := env.svc.ResetPassword(ctx, token, "newsecret")
	assert.Equal(t, KindInvalidOrExpiredToken, KindOf(err))
}

func TestResetPasswordValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")
	token := env.resetToken(t, "ada@example.com")

	_, err := env.svc.ResetPassword(ctx, token, "short")
	assert.Equal(t, KindWeakPassword, KindOf(err))

	_, err = env.svc.ResetPassword(ctx, "", "newsecret")
	assert.Equal(t, KindMissingInput, KindOf(err))

	_, err = env.svc.ResetPassword(ctx, token, "")
	assert.Equal(t, KindMissingInput, KindOf(err))
}

func TestVerifyResetToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")
	token := env.resetToken(t, "ada@example.com")

	status, err := env.svc.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, status.Valid)
	assert.Equal(t, "ada@example.com", status.Email)
	require.NotNil(t, status.ExpiresAt)

	// Probing does not consume the token.
	status, err = env.svc.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, status.Valid)

	// Invalid and expired tokens report false without an error.
	status, err = env.svc.VerifyResetToken(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, status.Valid)

	*env.clock = env.clock.Add(2 * time.Hour)
	status, err = env.svc.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, status.Valid)
}

func TestGetProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")
	acct, err := env.repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)

	view, err := env.svc.GetProfile(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", view.Email)
	assert.Equal(t, "Ada Lovelace", view.FullName)
	assert.True(t, view.IsActive)
	assert.Nil(t, view.DaysSinceLastLogin)

	_, err = env.svc.GetProfile(ctx, "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, KindAccountNotFound, KindOf(err))
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")
	acct, err := env.repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)

	addr := "12 Crescent Rd"
	birth := "1815-12-10"
	view, err := env.svc.UpdateProfile(ctx, acct.ID, UpdateProfileInput{Address: &addr, BirthDate: &birth})
	require.NoError(t, err)
	assert.Equal(t, "12 Crescent Rd", view.Address)
	require.NotNil(t, view.BirthDate)
	assert.Equal(t, 1815, view.BirthDate.Year())
	// Omitted fields stay untouched.
	assert.Equal(t, "Ada", view.FirstName)
	assert.Equal(t, "Lovelace", view.LastName)

	// Empty strings clear the field.
	empty := ""
	view, err = env.svc.UpdateProfile(ctx, acct.ID, UpdateProfileInput{LastName: &empty, BirthDate: &empty})
	require.NoError(t, err)
	assert.Empty(t, view.LastName)
	assert.Nil(t, view.BirthDate)
	assert.Equal(t, "Ada", view.FullName)

	// An all-omitted update is a no-op, not an error.
	view, err = env.svc.UpdateProfile(ctx, acct.ID, UpdateProfileInput{})
	require.NoError(t, err)
	assert.Equal(t, "Ada", view.FirstName)

	bad := "31-31-3131"
	_, err = env.svc.UpdateProfile(ctx, acct.ID, UpdateProfileInput{BirthDate: &bad})
	assert.Equal(t, KindInvalidBirthDate, KindOf(err))

	_, err = env.svc.UpdateProfile(ctx, "00000000-0000-0000-0000-000000000000", UpdateProfileInput{})
	assert.Equal(t, KindAccountNotFound, KindOf(err))
}

func TestGetLoginHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")
	acct, err := env.repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)

	hist, err := env.svc.GetLoginHistory(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, hist.AccountID)
	assert.Nil(t, hist.LastLoginAt)
	assert.Nil(t, hist.DaysSinceLastLogin)

	_, err = env.svc.Login(ctx, "ada@example.com", "password123")
	require.NoError(t, err)
	*env.clock = env.clock.Add(72 * time.Hour)

	hist, err = env.svc.GetLoginHistory(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, hist.LastLoginAt)
	require.NotNil(t, hist.DaysSinceLastLogin)
	assert.Equal(t, 3, *hist.DaysSinceLastLogin)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerActive(t, "ada@example.com")
	acct, err := env.repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)

	res, err := env.svc.Logout(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ada@example.com", res.Email)

	_, err = env.svc.Logout(ctx, "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, KindAccountNotFound, KindOf(err))
}

func TestProfileCacheDerivesFromCurrentLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := memory.NewAccountRepository()
	mail := &fakeMailer{}
	jwtm := helpers.NewJWTManager("test-secret", time.Hour)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, mail, jwtm, nil, rdb, logger, testConfig()).
		WithClock(func() time.Time { return now })
	env := &testEnv{svc: svc, repo: repo, mailer: mail, jwt: jwtm, clock: &now}

	ctx := context.Background()
	env.registerActive(t, "ada@example.com")

	login, err := svc.Login(ctx, "ada@example.com", "password123")
	require.NoError(t, err)
	assert.Nil(t, login.Account.DaysSinceLastLogin)

	// The cached profile counts from the login just recorded, not from the
	// previous one the login payload reports.
	view, err := svc.GetProfile(ctx, login.Account.ID)
	require.NoError(t, err)
	require.NotNil(t, view.DaysSinceLastLogin)
	assert.Equal(t, 0, *view.DaysSinceLastLogin)

	now = now.Add(49 * time.Hour)
	second, err := svc.Login(ctx, "ada@example.com", "password123")
	require.NoError(t, err)
	require.NotNil(t, second.Account.DaysSinceLastLogin)
	assert.Equal(t, 2, *second.Account.DaysSinceLastLogin)

	view, err = svc.GetProfile(ctx, login.Account.ID)
	require.NoError(t, err)
	require.NotNil(t, view.DaysSinceLastLogin)
	assert.Equal(t, 0, *view.DaysSinceLastLogin)

	// Logout drops the cached view.
	_, err = svc.Logout(ctx, login.Account.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists("account:profile:"+login.Account.ID))
}

func TestLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "grace@example.com")
	_, err := env.svc.Login(ctx, "grace@example.com", "password123")
	require.Equal(t, KindAccountNotActivated, KindOf(err))

	_, err = env.svc.Activate(ctx, env.activationToken(t, "grace@example.com"))
	require.NoError(t, err)

	login, err := env.svc.Login(ctx, "grace@example.com", "password123")
	require.NoError(t, err)

	token := env.resetToken(t, "grace@example.com")
	_, err = env.svc.ResetPassword(ctx, token, "rotated-pass")
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, "grace@example.com", "password123")
	require.Equal(t, KindInvalidCredentials, KindOf(err))
	relogin, err := env.svc.Login(ctx, "grace@example.com", "rotated-pass")
	require.NoError(t, err)
	assert.False(t, relogin.Account.IsFirstLogin)

	_, err = env.svc.Logout(ctx, login.Account.ID)
	require.NoError(t, err)
}
