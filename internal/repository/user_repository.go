package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"account-service/internal/model"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")
)

// UserPatch carries the fields of a partial update. Nil means untouched.
type UserPatch struct {
	Username          *string
	Email             *string
	PasswordHash      *string
	ProfilePictureURL *string
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) (uuid.UUID, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	Update(ctx context.Context, id uuid.UUID, patch UserPatch) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]model.User, error)
	SetRecovery(ctx context.Context, id uuid.UUID, otp string, expiresAt time.Time) error
	ConsumeRecovery(ctx context.Context, id uuid.UUID, otp, newPasswordHash string, now time.Time) (bool, error)
}

type postgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, profile_picture_url, is_admin, is_oauth_user, created_at, updated_at, reset_otp, reset_otp_expires_at`

// userRow mirrors the users table; the nullable recovery columns are folded
// into model.User.Recovery so NULL/NULL and set/set are the only shapes that
// can leave this package.
type userRow struct {
	ID                uuid.UUID      `db:"id"`
	Username          string         `db:"username"`
	Email             string         `db:"email"`
	PasswordHash      string         `db:"password_hash"`
	ProfilePictureURL string         `db:"profile_picture_url"`
	IsAdmin           bool           `db:"is_admin"`
	IsOauthUser       bool           `db:"is_oauth_user"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
	ResetOTP          sql.NullString `db:"reset_otp"`
	ResetOTPExpiresAt sql.NullTime   `db:"reset_otp_expires_at"`
}

func (r userRow) toModel() *model.User {
	u := &model.User{
		ID:                r.ID,
		Username:          r.Username,
		Email:             r.Email,
		PasswordHash:      r.PasswordHash,
		ProfilePictureURL: r.ProfilePictureURL,
		IsAdmin:           r.IsAdmin,
		IsOauthUser:       r.IsOauthUser,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.ResetOTP.Valid && r.ResetOTPExpiresAt.Valid {
		u.Recovery = &model.Recovery{OTP: r.ResetOTP.String, ExpiresAt: r.ResetOTPExpiresAt.Time}
	}
	return u
}

func mapConstraintErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "username") {
			return ErrDuplicateUsername
		}
		return ErrDuplicateEmail
	}
	return err
}

func (r *postgresUserRepository) Create(ctx context.Context, user *model.User) (uuid.UUID, error) {
	query := `INSERT INTO users (username, email, password_hash, profile_picture_url, is_admin, is_oauth_user) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	var newID uuid.UUID
	err := r.db.QueryRowxContext(ctx, query,
		user.Username, user.Email, user.PasswordHash,
		user.ProfilePictureURL, user.IsAdmin, user.IsOauthUser,
	).Scan(&newID)
	if err != nil {
		return uuid.Nil, mapConstraintErr(err)
	}

	return newID, nil
}

func (r *postgresUserRepository) findOne(ctx context.Context, column string, arg interface{}) (*model.User, error) {
	var row userRow
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, column)
	err := r.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (r *postgresUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *postgresUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *postgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.findOne(ctx, "id", id)
}

func (r *postgresUserRepository) Update(ctx context.Context, id uuid.UUID, patch UserPatch) error {
	var setClauses []string
	var args []interface{}
	argID := 1

	add := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argID))
		args = append(args, value)
		argID++
	}

	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.ProfilePictureURL != nil {
		add("profile_picture_url", *patch.ProfilePictureURL)
	}

	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, "updated_at = now()")

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argID)
	args = append(args, id)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapConstraintErr(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *postgresUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *postgresUserRepository) List(ctx context.Context) ([]model.User, error) {
	var rows []userRow
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at`, userColumns)
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, *row.toModel())
	}

	return users, nil
}

func (r *postgresUserRepository) SetRecovery(ctx context.Context, id uuid.UUID, otp string, expiresAt time.Time) error {
	query := `UPDATE users SET reset_otp = $2, reset_otp_expires_at = $3, updated_at = now() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, otp, expiresAt)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// ConsumeRecovery swaps in the new password hash and clears the recovery
// window in one statement, guarded by the OTP match and its deadline. Of two
// racing reset attempts only one UPDATE can see the stored OTP, so a code is
// spent at most once.
func (r *postgresUserRepository) ConsumeRecovery(ctx context.Context, id uuid.UUID, otp, newPasswordHash string, now time.Time) (bool, error) {
	query := `UPDATE users SET password_hash = $3, reset_otp = NULL, reset_otp_expires_at = NULL, updated_at = now() WHERE id = $1 AND reset_otp = $2 AND reset_otp_expires_at > $4`

	result, err := r.db.ExecContext(ctx, query, id, otp, newPasswordHash, now)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}
