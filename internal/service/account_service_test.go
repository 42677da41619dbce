package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"account-service/internal/apperror"
	"account-service/internal/crypto"
	"account-service/internal/model"
	"account-service/internal/service"
	"account-service/internal/token"
)

type fixture struct {
	repo      *fakeUserRepo
	mail      *fakeMailer
	publisher *fakePublisher
	hasher    *crypto.PasswordHasher
	issuer    *token.Issuer
	clock     *time.Time
	accounts  service.AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &start
	now := func() time.Time { return *clock }

	f := &fixture{
		repo:      newFakeUserRepo(),
		mail:      &fakeMailer{},
		publisher: &fakePublisher{},
		hasher:    crypto.NewPasswordHasher(bcrypt.MinCost),
		issuer:    token.NewIssuerWithClock([]byte("test-secret"), time.Hour, now),
		clock:     clock,
	}
	f.accounts = service.NewAccountServiceWithClock(f.repo, f.hasher, f.issuer, f.mail, f.publisher, now)
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *fixture) register(t *testing.T, username, email, password string) uuid.UUID {
	t.Helper()
	id, err := f.accounts.Register(context.Background(), username, email, password)
	require.NoError(t, err)
	return id
}

func TestRegister_DuplicateEmailConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "alice", "a@x.com", "password1")

	_, err := f.accounts.Register(ctx, "alice2", "a@x.com", "password2")
	require.Error(t, err)
	require.Equal(t, apperror.Conflict, apperror.KindOf(err))

	users, listErr := f.repo.List(ctx)
	require.NoError(t, listErr)
	require.Len(t, users, 1)
}

func TestRegister_DuplicateUsernameConflict(t *testing.T) {
	f := newFixture(t)

	f.register(t, "alice", "a@x.com", "password1")

	_, err := f.accounts.Register(context.Background(), "alice", "b@x.com", "password2")
	require.Equal(t, apperror.Conflict, apperror.KindOf(err))
}

func TestRegister_DefaultsAndEventPublished(t *testing.T) {
	f := newFixture(t)

	id := f.register(t, "alice", "a@x.com", "password1")

	user, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.False(t, user.IsAdmin)
	require.Equal(t, model.DefaultProfilePictureURL, user.ProfilePictureURL)
	require.NotEqual(t, "password1", user.PasswordHash)
	require.Equal(t, 1, f.publisher.registered)
}

func TestRegisterAdmin_SetsAdminFlag(t *testing.T) {
	f := newFixture(t)

	id, err := f.accounts.RegisterAdmin(context.Background(), "root", "root@x.com", "password1")
	require.NoError(t, err)

	user, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, user.IsAdmin)
}

func TestLogin_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "alice", "a@x.com", "pw1secret")

	sessionToken, profile, err := f.accounts.Login(ctx, "a@x.com", "pw1secret")
	require.NoError(t, err)
	require.Equal(t, "a@x.com", profile.Email)

	claims, err := f.issuer.Validate(sessionToken)
	require.NoError(t, err)
	require.Equal(t, profile.ID, claims.UserID)
	require.Equal(t, "a@x.com", claims.Email)

	_, _, err = f.accounts.Login(ctx, "a@x.com", "wrong")
	require.Equal(t, apperror.Unauthorized, apperror.KindOf(err))
}

func TestLogin_NoAccountEnumeration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "alice", "a@x.com", "pw1secret")

	_, _, unknownErr := f.accounts.Login(ctx, "nobody@x.com", "pw1secret")
	_, _, wrongPwErr := f.accounts.Login(ctx, "a@x.com", "bad password")

	require.Equal(t, apperror.Unauthorized, apperror.KindOf(unknownErr))
	require.Equal(t, apperror.Unauthorized, apperror.KindOf(wrongPwErr))
	require.Equal(t, unknownErr.Error(), wrongPwErr.Error())
}

func TestListUsers_ProjectionOnly(t *testing.T) {
	f := newFixture(t)

	f.register(t, "alice", "a@x.com", "password1")
	f.register(t, "bob", "b@x.com", "password2")

	profiles, err := f.accounts.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)
}

func TestUpdateSelf_UsernameOnlyLeavesRestUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "alice", "a@x.com", "password1")
	before, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)

	newName := "alice-renamed"
	profile, err := f.accounts.UpdateSelf(ctx, id, service.UpdateProfileInput{Username: &newName})
	require.NoError(t, err)
	require.Equal(t, "alice-renamed", profile.Username)
	require.Equal(t, "a@x.com", profile.Email)

	after, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, before.PasswordHash, after.PasswordHash)
}

func TestUpdateSelf_PasswordRehashed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "alice", "a@x.com", "oldpassword")

	newPassword := "newpassword"
	_, err := f.accounts.UpdateSelf(ctx, id, service.UpdateProfileInput{Password: &newPassword})
	require.NoError(t, err)

	user, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.False(t, f.hasher.Check("oldpassword", user.PasswordHash))
	require.True(t, f.hasher.Check("newpassword", user.PasswordHash))
}

func TestUpdateSelf_GoneSessionIdentity(t *testing.T) {
	f := newFixture(t)

	newName := "ghost"
	_, err := f.accounts.UpdateSelf(context.Background(), uuid.New(), service.UpdateProfileInput{Username: &newName})
	require.Equal(t, apperror.NotFound, apperror.KindOf(err))
}

func TestDeleteSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "alice", "a@x.com", "password1")

	require.NoError(t, f.accounts.DeleteSelf(ctx, id))
	require.Equal(t, 1, f.publisher.deleted)

	err := f.accounts.DeleteSelf(ctx, id)
	require.Equal(t, apperror.NotFound, apperror.KindOf(err))
}

func TestRequireAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "alice", "a@x.com", "password1")
	_, err := f.accounts.RegisterAdmin(ctx, "root", "root@x.com", "password1")
	require.NoError(t, err)

	require.NoError(t, f.accounts.RequireAdmin(ctx, "root@x.com"))

	err = f.accounts.RequireAdmin(ctx, "a@x.com")
	require.Equal(t, apperror.Forbidden, apperror.KindOf(err))

	err = f.accounts.RequireAdmin(ctx, "nobody@x.com")
	require.Equal(t, apperror.Forbidden, apperror.KindOf(err))
}

func TestRequireAdmin_RevocationTakesEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.accounts.RegisterAdmin(ctx, "root", "root@x.com", "password1")
	require.NoError(t, err)
	require.NoError(t, f.accounts.RequireAdmin(ctx, "root@x.com"))

	// Flip the stored flag directly; the guard must see current state,
	// not anything embedded in a previously issued token.
	f.repo.mu.Lock()
	f.repo.users[id].IsAdmin = false
	f.repo.mu.Unlock()

	err = f.accounts.RequireAdmin(ctx, "root@x.com")
	require.Equal(t, apperror.Forbidden, apperror.KindOf(err))
}

func TestForgotPassword_StoresWindowAndMailsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "alice", "a@x.com", "password1")

	require.NoError(t, f.accounts.ForgotPassword(ctx, "a@x.com"))

	user, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, user.Recovery)
	require.Len(t, user.Recovery.OTP, 6)
	require.Equal(t, f.clock.Add(service.OTPValidity), user.Recovery.ExpiresAt)

	mail, ok := f.mail.lastSent()
	require.True(t, ok)
	require.Equal(t, "a@x.com", mail.To)
	require.True(t, strings.Contains(mail.Body, user.Recovery.OTP))
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	err := f.accounts.ForgotPassword(context.Background(), "nobody@x.com")
	require.Equal(t, apperror.NotFound, apperror.KindOf(err))

	_, sent := f.mail.lastSent()
	require.False(t, sent)
}

func TestForgotPassword_DeliveryFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.mail.fail = true

	f.register(t, "alice", "a@x.com", "password1")

	err := f.accounts.ForgotPassword(context.Background(), "a@x.com")
	require.Equal(t, apperror.DeliveryFailure, apperror.KindOf(err))
}

func TestResetPassword_SuccessThenReplayRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "alice", "a@x.com", "oldpassword")
	require.NoError(t, f.accounts.ForgotPassword(ctx, "a@x.com"))

	user, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	otp := user.Recovery.OTP

	require.NoError(t, f.accounts.ResetPassword(ctx, "a@x.com", otp, "newpassword"))
	require.Equal(t, 1, f.publisher.resets)

	user, err = f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.Nil(t, user.Recovery)
	require.True(t, f.hasher.Check("newpassword", user.PasswordHash))
	require.False(t, f.hasher.Check("oldpassword", user.PasswordHash))

	err = f.accounts.ResetPassword(ctx, "a@x.com", otp, "anotherpassword")
	require.Equal(t, apperror.InvalidOTP, apperror.KindOf(err))
}

func TestResetPassword_ExpiredCodeRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "alice", "a@x.com", "oldpassword")
	require.NoError(t, f.accounts.ForgotPassword(ctx, "a@x.com"))

	user, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	otp := user.Recovery.OTP

	f.advance(time.Hour + time.Minute)

	err = f.accounts.ResetPassword(ctx, "a@x.com", otp, "newpassword")
	require.Equal(t, apperror.InvalidOTP, apperror.KindOf(err))

	// Old password still works: nothing was consumed.
	user, err = f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, f.hasher.Check("oldpassword", user.PasswordHash))
}

func TestResetPassword_WrongCodeRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.register(t, "alice", "a@x.com", "oldpassword")
	require.NoError(t, f.accounts.ForgotPassword(ctx, "a@x.com"))

	user, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)

	wrong := "000000"
	if user.Recovery.OTP == wrong {
		wrong = "000001"
	}

	err = f.accounts.ResetPassword(ctx, "a@x.com", wrong, "newpassword")
	require.Equal(t, apperror.InvalidOTP, apperror.KindOf(err))
}

func TestResetPassword_NoRecoveryInProgress(t *testing.T) {
	f := newFixture(t)

	f.register(t, "alice", "a@x.com", "password1")

	err := f.accounts.ResetPassword(context.Background(), "a@x.com", "123456", "newpassword")
	require.Equal(t, apperror.InvalidOTP, apperror.KindOf(err))
}

func TestResetPassword_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	err := f.accounts.ResetPassword(context.Background(), "nobody@x.com", "123456", "newpassword")
	require.Equal(t, apperror.NotFound, apperror.KindOf(err))
}
