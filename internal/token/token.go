package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("token is invalid or expired")

// Claims is the identity a validated session token vouches for.
type Claims struct {
	UserID uuid.UUID
	Email  string
}

// Issuer mints and validates HS256 session tokens. The signing secret is
// injected at construction so tests can use a deterministic one; it is
// never read from the environment here.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// NewIssuerWithClock pins the clock, for tests that need to cross the
// expiry instant without sleeping.
func NewIssuerWithClock(secret []byte, ttl time.Duration, now func() time.Time) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: now}
}

func (i *Issuer) Issue(userID uuid.UUID, email string) (string, error) {
	issuedAt := i.now()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"iat":   issuedAt.Unix(),
		"exp":   issuedAt.Add(i.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Validate checks signature and expiry. Tampered and expired tokens are
// indistinguishable to the caller: both come back as ErrInvalidToken.
func (i *Issuer) Validate(tokenString string) (Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))

	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	sub, ok := mapClaims["sub"].(string)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	email, ok := mapClaims["email"].(string)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	return Claims{UserID: userID, Email: email}, nil
}
