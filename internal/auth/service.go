package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const refreshSecretBytes = 32

// Service composes credential verification, token issuance, session
// lifecycle, and permission resolution over a Store.
type Service struct {
	store Store
	codec *TokenCodec

	hashScheme HashScheme
	demoMode   bool
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithHashScheme selects the algorithm used for newly written credentials.
func WithHashScheme(scheme HashScheme) ServiceOption {
	return func(s *Service) error {
		switch scheme {
		case SchemeBcrypt, SchemeArgon2id:
			s.hashScheme = scheme
			return nil
		default:
			return fmt.Errorf("%w: %q", ErrUnknownHashScheme, scheme)
		}
	}
}

// WithDemoMode marks the deployment as a restricted demo; mutating account
// operations are rejected.
func WithDemoMode(enabled bool) ServiceOption {
	return func(s *Service) error {
		s.demoMode = enabled
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, codec *TokenCodec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	svc := &Service{
		store:      store,
		codec:      codec,
		hashScheme: SchemeArgon2id,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Login authenticates a username or email plus password and opens a new
// session of the given kind. Unknown logins and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, login, password string, kind SessionKind, ip string) (TokenPair, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.store.Users().FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	ok, err := VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return TokenPair{}, ErrEmailNotVerified
	}

	secret, err := newRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}
	sess := &Session{
		UserID:        user.ID,
		IP:            ip,
		RefreshSecret: secret,
		Kind:          kind,
	}
	if err := s.store.Sessions().Create(ctx, sess); err != nil {
		return TokenPair{}, err
	}
	token, exp, err := s.codec.Issue(user.ID, sess.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:   token,
		RefreshSecret: secret,
		SessionID:     sess.ID,
		ExpiresAt:     exp,
	}, nil
}

// Refresh exchanges a refresh secret for a fresh token pair. The stored
// secret is single-use: rotation replaces it atomically, and a stale value
// fails with ErrSessionNotFound without revealing whether it ever existed.
func (s *Service) Refresh(ctx context.Context, refreshSecret, ip string) (TokenPair, error) {
	if strings.TrimSpace(refreshSecret) == "" {
		return TokenPair{}, ErrSessionNotFound
	}
	next, err := newRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}
	sess, err := s.store.Sessions().Rotate(ctx, refreshSecret, next, ip)
	if err != nil {
		return TokenPair{}, err
	}
	token, exp, err := s.codec.Issue(sess.UserID, sess.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:   token,
		RefreshSecret: next,
		SessionID:     sess.ID,
		ExpiresAt:     exp,
	}, nil
}

// Logout blacklists the token until its natural expiry. It is safely
// retryable: already-revoked, expired, and malformed tokens are all no-op
// successes.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.codec.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenMalformed) || errors.Is(err, ErrNoToken) {
			return nil
		}
		return err
	}
	return s.store.Revocations().Revoke(ctx, token, claims.ExpiresAt.Time.UTC())
}

// Register creates a minimal user record (email plus password hash) in the
// default group, pending email verification.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	if s.demoMode {
		return nil, ErrDemoMode
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidCredentials)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password too short", ErrInvalidCredentials)
	}
	hash, err := HashPassword(password, s.hashScheme)
	if err != nil {
		return nil, err
	}
	user := &User{Email: email, PasswordHash: hash}
	group, err := s.store.Permissions().DefaultGroup(ctx)
	if err != nil {
		return nil, err
	}
	if group != nil {
		user.GroupID = &group.ID
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// CompleteProfile claims a username for a registered user.
func (s *Service) CompleteProfile(ctx context.Context, userID int64, username string) error {
	if s.demoMode {
		return ErrDemoMode
	}
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 16 {
		return fmt.Errorf("%w: username must be 3-16 characters", ErrInvalidCredentials)
	}
	return s.store.Users().SetUsername(ctx, userID, username)
}

// ChangePassword re-hashes with the configured scheme, migrating legacy
// hashes as a side effect.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if s.demoMode {
		return ErrDemoMode
	}
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := VerifyPassword(user.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if len(next) < 8 {
		return fmt.Errorf("%w: password too short", ErrInvalidCredentials)
	}
	hash, err := HashPassword(next, s.hashScheme)
	if err != nil {
		return err
	}
	return s.store.Users().UpdatePassword(ctx, userID, hash)
}

// ListSessions returns summaries of every session the user owns, marking the
// caller's current one.
func (s *Service) ListSessions(ctx context.Context, userID int64, currentSessionID string) ([]SessionSummary, error) {
	sessions, err := s.store.Sessions().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, SessionSummary{
			ID:        sess.ID,
			IP:        sess.IP,
			Kind:      sess.Kind,
			Current:   sess.ID == currentSessionID,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}
	return summaries, nil
}

// TerminateSession deletes one session scoped to its owning user; sessions
// of other users are invisible here and report ErrSessionNotFound.
func (s *Service) TerminateSession(ctx context.Context, userID int64, sessionID string) error {
	deleted, err := s.store.Sessions().Terminate(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

// TerminateOtherSessions deletes every session the user owns except the
// current one and returns the count removed.
func (s *Service) TerminateOtherSessions(ctx context.Context, userID int64, currentSessionID string) (int64, error) {
	return s.store.Sessions().TerminateAllExcept(ctx, userID, currentSessionID)
}

// PurgeRevoked drops blacklist entries whose tokens have expired on their
// own.
func (s *Service) PurgeRevoked(ctx context.Context) (int64, error) {
	return s.store.Revocations().PurgeExpired(ctx, s.now().UTC())
}

func newRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
