package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"account-service/internal/apperror"
	"account-service/internal/crypto"
	"account-service/internal/events"
	"account-service/internal/mailer"
	"account-service/internal/model"
	"account-service/internal/repository"
	"account-service/internal/token"
)

// OTPValidity is the recovery window attached to a freshly issued OTP.
const OTPValidity = time.Hour

// UpdateProfileInput carries the optional fields of a self-update. Nil
// fields are left untouched.
type UpdateProfileInput struct {
	Username          *string
	Email             *string
	Password          *string
	ProfilePictureURL *string
}

type AccountService interface {
	Register(ctx context.Context, username, email, password string) (uuid.UUID, error)
	RegisterAdmin(ctx context.Context, username, email, password string) (uuid.UUID, error)
	Login(ctx context.Context, email, password string) (string, model.Profile, error)
	ListUsers(ctx context.Context) ([]model.Profile, error)
	UpdateSelf(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (model.Profile, error)
	DeleteSelf(ctx context.Context, userID uuid.UUID) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
	RequireAdmin(ctx context.Context, email string) error
}

type accountService struct {
	userRepo  repository.UserRepository
	hasher    *crypto.PasswordHasher
	issuer    *token.Issuer
	mail      mailer.Mailer
	publisher events.EventPublisher
	now       func() time.Time
}

func NewAccountService(
	userRepo repository.UserRepository,
	hasher *crypto.PasswordHasher,
	issuer *token.Issuer,
	mail mailer.Mailer,
	publisher events.EventPublisher,
) AccountService {
	return &accountService{
		userRepo:  userRepo,
		hasher:    hasher,
		issuer:    issuer,
		mail:      mail,
		publisher: publisher,
		now:       time.Now,
	}
}

// NewAccountServiceWithClock pins the clock for tests that cross the OTP
// expiry window.
func NewAccountServiceWithClock(
	userRepo repository.UserRepository,
	hasher *crypto.PasswordHasher,
	issuer *token.Issuer,
	mail mailer.Mailer,
	publisher events.EventPublisher,
	now func() time.Time,
) AccountService {
	return &accountService{
		userRepo:  userRepo,
		hasher:    hasher,
		issuer:    issuer,
		mail:      mail,
		publisher: publisher,
		now:       now,
	}
}

func (s *accountService) register(ctx context.Context, username, email, password string, isAdmin bool) (uuid.UUID, error) {
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return uuid.Nil, err
	}

	user := &model.User{
		Username:          username,
		Email:             email,
		PasswordHash:      hashed,
		ProfilePictureURL: model.DefaultProfilePictureURL,
		IsAdmin:           isAdmin,
	}

	// Uniqueness is enforced by the storage constraints, not by a lookup
	// first: two racing registrations for one email cannot both insert.
	newID, err := s.userRepo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return uuid.Nil, apperror.Wrap(apperror.Conflict, "email already exists", err)
		}
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return uuid.Nil, apperror.Wrap(apperror.Conflict, "username already exists", err)
		}
		return uuid.Nil, err
	}

	if pubErr := s.publisher.PublishAccountRegistered(newID, email, isAdmin); pubErr != nil {
		slog.Warn("Failed to publish account.registered event", "user_id", newID, "error", pubErr)
	}

	return newID, nil
}

func (s *accountService) Register(ctx context.Context, username, email, password string) (uuid.UUID, error) {
	return s.register(ctx, username, email, password, false)
}

func (s *accountService) RegisterAdmin(ctx context.Context, username, email, password string) (uuid.UUID, error) {
	return s.register(ctx, username, email, password, true)
}

// Login deliberately reports the same failure for an unknown email and a
// wrong password.
func (s *accountService) Login(ctx context.Context, email, password string) (string, model.Profile, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", model.Profile{}, apperror.New(apperror.Unauthorized, "invalid credentials")
		}
		return "", model.Profile{}, err
	}

	if !s.hasher.Check(password, user.PasswordHash) {
		return "", model.Profile{}, apperror.New(apperror.Unauthorized, "invalid credentials")
	}

	sessionToken, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		return "", model.Profile{}, err
	}

	return sessionToken, user.Profile(), nil
}

func (s *accountService) ListUsers(ctx context.Context) ([]model.Profile, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	profiles := make([]model.Profile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Profile())
	}

	return profiles, nil
}

// UpdateSelf resolves the target strictly from the session identity; caller
// supplied identifiers never pick the row.
func (s *accountService) UpdateSelf(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (model.Profile, error) {
	patch := repository.UserPatch{
		Username:          input.Username,
		Email:             input.Email,
		ProfilePictureURL: input.ProfilePictureURL,
	}

	if input.Password != nil {
		hashed, err := s.hasher.Hash(*input.Password)
		if err != nil {
			return model.Profile{}, err
		}
		patch.PasswordHash = &hashed
	}

	if err := s.userRepo.Update(ctx, userID, patch); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return model.Profile{}, apperror.Wrap(apperror.NotFound, "user not found", err)
		case errors.Is(err, repository.ErrDuplicateEmail):
			return model.Profile{}, apperror.Wrap(apperror.Conflict, "email already exists", err)
		case errors.Is(err, repository.ErrDuplicateUsername):
			return model.Profile{}, apperror.Wrap(apperror.Conflict, "username already exists", err)
		}
		return model.Profile{}, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Profile{}, apperror.Wrap(apperror.NotFound, "user not found", err)
		}
		return model.Profile{}, err
	}

	return user.Profile(), nil
}

func (s *accountService) DeleteSelf(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Wrap(apperror.NotFound, "user not found", err)
		}
		return err
	}

	if pubErr := s.publisher.PublishAccountDeleted(userID); pubErr != nil {
		slog.Warn("Failed to publish account.deleted event", "user_id", userID, "error", pubErr)
	}

	return nil
}

// ForgotPassword opens a recovery window and mails the OTP. Delivery is part
// of the contract: a send failure aborts the call and surfaces to the
// caller, though the stored OTP simply ages out.
func (s *accountService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Wrap(apperror.NotFound, "user with this email not found", err)
		}
		return err
	}

	otp, err := crypto.GenerateOTP()
	if err != nil {
		return err
	}

	expiresAt := s.now().Add(OTPValidity)
	if err := s.userRepo.SetRecovery(ctx, user.ID, otp, expiresAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Wrap(apperror.NotFound, "user with this email not found", err)
		}
		return err
	}

	body, err := mailer.ResetBody(otp, "1 hour")
	if err != nil {
		return err
	}

	if err := s.mail.Send(ctx, user.Email, mailer.ResetSubject, body); err != nil {
		return apperror.Wrap(apperror.DeliveryFailure, "failed to send OTP email", err)
	}

	return nil
}

// ResetPassword consumes the OTP and swaps the password in one repository
// call, so a code can never be replayed even under concurrent attempts.
func (s *accountService) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Wrap(apperror.NotFound, "user not found", err)
		}
		return err
	}

	now := s.now()
	rec := user.Recovery
	if rec == nil || !crypto.OTPEqual(otp, rec.OTP) || now.After(rec.ExpiresAt) {
		return apperror.New(apperror.InvalidOTP, "invalid or expired OTP")
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	consumed, err := s.userRepo.ConsumeRecovery(ctx, user.ID, otp, hashed, now)
	if err != nil {
		return err
	}
	if !consumed {
		return apperror.New(apperror.InvalidOTP, "invalid or expired OTP")
	}

	if pubErr := s.publisher.PublishPasswordReset(user.ID); pubErr != nil {
		slog.Warn("Failed to publish account.password_reset event", "user_id", user.ID, "error", pubErr)
	}

	return nil
}

// RequireAdmin re-checks the stored privilege flag rather than trusting the
// token claim, so revoking admin takes effect on the next guarded call.
func (s *accountService) RequireAdmin(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.New(apperror.Forbidden, "access denied, admins only")
		}
		return err
	}

	if !user.IsAdmin {
		return apperror.New(apperror.Forbidden, "access denied, admins only")
	}

	return nil
}
