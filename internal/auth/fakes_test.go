package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/internal/store"
)

// fakeProvider scripts provider behavior per test.
type fakeProvider struct {
	name         string
	exchangeFn   func(code string) (*oauth.TokenSet, error)
	refreshFn    func(refreshToken string) (*oauth.TokenSet, error)
	userInfoFn   func(accessToken string) (*oauth.UserProfile, error)
	refreshCalls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthorizationURL(_ context.Context, state string) (string, error) {
	return "https://provider.test/authorize?state=" + state, nil
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*oauth.TokenSet, error) {
	return p.exchangeFn(code)
}

func (p *fakeProvider) Refresh(_ context.Context, refreshToken string) (*oauth.TokenSet, error) {
	p.refreshCalls++
	if p.refreshFn == nil {
		panic("unexpected provider refresh call")
	}
	return p.refreshFn(refreshToken)
}

func (p *fakeProvider) UserInfo(_ context.Context, accessToken string) (*oauth.UserProfile, error) {
	return p.userInfoFn(accessToken)
}

func (p *fakeProvider) DefaultScopes() []string { return []string{"openid", "email"} }

func registryWith(p *fakeProvider) *oauth.Registry {
	r := oauth.NewRegistry()
	r.Register(p.name, oauth.Config{}, func(oauth.Config) (oauth.Provider, error) {
		return p, nil
	})
	return r
}

// fakeTxRunner hands fn a nil tx; the fakes below accept it. failCommit
// simulates a commit-time abort so nothing fn staged survives.
type fakeTxRunner struct {
	runner func(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

func (r *fakeTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if r.runner != nil {
		return r.runner(ctx, fn)
	}
	return fn(ctx, nil)
}

// fakeUserStore keys users by provider account id and by email, mirroring
// the three-way resolution of the real store.
type fakeUserStore struct {
	mu      sync.Mutex
	byID    map[string]*store.User
	nextID  int
	upserts int
	// conflictsLeft forces ErrConflict for the first N upserts.
	conflictsLeft int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: map[string]*store.User{}}
}

func (f *fakeUserStore) Upsert(_ context.Context, _ pgx.Tx, in store.UpsertUserInput) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return nil, store.ErrConflict
	}
	for _, u := range f.byID {
		// Email matching is exact, mirroring the store's as-stored index.
		if u.ProviderAccountID == in.ProviderAccountID || u.Email == in.Email {
			u.ProviderAccountID = in.ProviderAccountID
			u.Email = in.Email
			u.FirstName = in.FirstName
			u.LastName = in.LastName
			u.AvatarURL = in.AvatarURL
			u.UpdatedAt = time.Now()
			return u, nil
		}
	}
	f.nextID++
	u := &store.User{
		ID:                fmt.Sprintf("user-%03d", f.nextID),
		Email:             in.Email,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		AvatarURL:         in.AvatarURL,
		ProviderAccountID: in.ProviderAccountID,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	f.byID[u.ID] = u
	return u, nil
}

// fakeSessionStore keeps sessions in memory and enforces the same
// active-only guards as the SQL store.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*store.Session

	createErr error
	creates   int
	updates   int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]*store.Session{}}
}

func (f *fakeSessionStore) Create(_ context.Context, _ pgx.Tx, sess *store.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	// Same unique constraint as the SQL store: one row per refresh token
	// digest.
	for _, existing := range f.sessions {
		if sess.RefreshTokenHash != "" && existing.RefreshTokenHash == sess.RefreshTokenHash {
			return store.ErrConflict
		}
	}
	cp := *sess
	f.sessions[sess.ID] = &cp
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (f *fakeSessionStore) UpdateTokens(_ context.Context, _ pgx.Tx, id string, upd store.TokenUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok || sess.Status != store.SessionActive {
		return store.ErrNotFound
	}
	f.updates++
	sess.AccessToken = upd.AccessToken
	sess.AccessTokenExpiresAt = upd.AccessTokenExpiresAt
	if upd.RefreshToken != nil {
		sess.RefreshToken = *upd.RefreshToken
		sess.RefreshTokenExpiresAt = *upd.RefreshTokenExpiresAt
		sess.RefreshTokenHash = upd.RefreshTokenHash
	}
	sess.LastAccessedAt = time.Now()
	return nil
}

func (f *fakeSessionStore) UpdateStatus(_ context.Context, id string, status store.SessionStatus, revokedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok || sess.Status != store.SessionActive {
		return nil
	}
	sess.Status = status
	if revokedAt != nil {
		sess.RevokedAt = revokedAt
	}
	return nil
}

const testHexKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
