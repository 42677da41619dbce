package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"account-service/internal/model"
	"account-service/internal/repository"
)

// fakeUserRepo is a map-backed repository with the same uniqueness and
// conditional-update behavior the Postgres implementation gets from its
// constraints.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func cloneUser(u *model.User) *model.User {
	copied := *u
	if u.Recovery != nil {
		rec := *u.Recovery
		copied.Recovery = &rec
	}
	return &copied
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.users {
		if existing.Email == user.Email {
			return uuid.Nil, repository.ErrDuplicateEmail
		}
		if existing.Username == user.Username {
			return uuid.Nil, repository.ErrDuplicateUsername
		}
	}

	stored := cloneUser(user)
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.users[stored.ID] = stored

	return stored.ID, nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) Update(_ context.Context, id uuid.UUID, patch repository.UserPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}

	for otherID, other := range f.users {
		if otherID == id {
			continue
		}
		if patch.Email != nil && other.Email == *patch.Email {
			return repository.ErrDuplicateEmail
		}
		if patch.Username != nil && other.Username == *patch.Username {
			return repository.ErrDuplicateUsername
		}
	}

	if patch.Username != nil {
		u.Username = *patch.Username
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.ProfilePictureURL != nil {
		u.ProfilePictureURL = *patch.ProfilePictureURL
	}
	u.UpdatedAt = time.Now()

	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		users = append(users, *cloneUser(u))
	}
	return users, nil
}

func (f *fakeUserRepo) SetRecovery(_ context.Context, id uuid.UUID, otp string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Recovery = &model.Recovery{OTP: otp, ExpiresAt: expiresAt}
	u.UpdatedAt = time.Now()
	return nil
}

func (f *fakeUserRepo) ConsumeRecovery(_ context.Context, id uuid.UUID, otp, newPasswordHash string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return false, nil
	}
	if u.Recovery == nil || u.Recovery.OTP != otp || !u.Recovery.ExpiresAt.After(now) {
		return false, nil
	}

	u.PasswordHash = newPasswordHash
	u.Recovery = nil
	u.UpdatedAt = time.Now()
	return true, nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return errors.New("smtp: connection refused")
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) lastSent() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		return sentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

type fakePublisher struct {
	mu         sync.Mutex
	registered int
	deleted    int
	resets     int
}

func (p *fakePublisher) PublishAccountRegistered(uuid.UUID, string, bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered++
	return nil
}

func (p *fakePublisher) PublishAccountDeleted(uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted++
	return nil
}

func (p *fakePublisher) PublishPasswordReset(uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return nil
}
