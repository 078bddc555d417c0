package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skorenev/marketplace/internal/audit"
	"github.com/skorenev/marketplace/internal/hash"
	"github.com/skorenev/marketplace/internal/logging"
	"github.com/skorenev/marketplace/internal/models"
	"github.com/skorenev/marketplace/internal/oauth"
	"github.com/skorenev/marketplace/internal/repo"
	"github.com/skorenev/marketplace/internal/tokens"
)

// AuthService is the sole writer of User and RefreshToken state transitions.
// Every operation performs at most one user mutation plus one refresh-token
// creation or revocation, and appends one audit event.
type AuthService struct {
	Repo   *repo.AuthRepo
	Codec  *tokens.Codec
	Bridge oauth.Bridge
	States *oauth.StateSigner
	Audit  *audit.Recorder
}

// ClientMeta is request metadata stored with issued refresh tokens and
// attached to audit events.
type ClientMeta struct {
	IP        string
	UserAgent string
}

type Session struct {
	User         *models.User
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, email, password, name string, role models.Role, meta ClientMeta) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_failed", "reason", "cannot hash password", "error", err)
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		Name:         name,
		PasswordHash: pwHash,
		Role:         role,
	}
	if err := s.Repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_failed", "reason", "duplicate email")
			return nil, ErrDuplicateUser
		}
		l.Error("register_failed", "reason", "db error", "error", err)
		return nil, err
	}

	session, err := s.issuePair(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.record(ctx, "user_registered", user, meta)
	l.Info("register_success", "user_id", user.ID)
	return session, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string, role models.Role, meta ClientMeta) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := s.Repo.FindUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		l.Warn("login_failed", "reason", "oauth-only account", "user_id", user.ID)
		return nil, ErrOAuthAccountRequired
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "reason", "bad password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	// Cross-role isolation: a valid customer credential must not yield a
	// merchant-scoped token.
	if user.Role != role {
		l.Warn("login_failed", "reason", "role mismatch", "user_id", user.ID)
		return nil, ErrRoleMismatch
	}

	if err := s.Repo.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	session, err := s.issuePair(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.record(ctx, "user_logged_in", user, meta)
	l.Info("login_success", "user_id", user.ID)
	return session, nil
}

// GoogleAuthURL starts the OAuth flow: the signed state bundle goes to the
// provider, the nonce goes into a short-lived cookie so the callback can be
// matched to the browser that initiated it.
func (s *AuthService) GoogleAuthURL(role models.Role, redirect string) (url, nonce string, err error) {
	st := s.States.New(string(role), redirect)
	encoded, err := s.States.Sign(st)
	if err != nil {
		return "", "", err
	}
	return s.Bridge.AuthCodeURL(encoded), st.Nonce, nil
}

// GoogleAuth completes the callback. The second return value is the
// post-login redirect target carried in the signed state.
func (s *AuthService) GoogleAuth(ctx context.Context, code, rawState, nonce string, meta ClientMeta) (*Session, string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.google")

	st, err := s.States.Verify(rawState)
	if err != nil {
		l.Warn("oauth_failed", "reason", "bad state")
		return nil, "", ErrInvalidToken
	}
	if nonce == "" || st.Nonce != nonce {
		l.Warn("oauth_failed", "reason", "nonce mismatch")
		return nil, "", ErrInvalidToken
	}
	role, ok := models.ParseRole(st.Role)
	if !ok {
		l.Warn("oauth_failed", "reason", "unknown role in state")
		return nil, "", ErrInvalidToken
	}

	toks, err := s.Bridge.Exchange(ctx, code)
	if err != nil {
		l.Error("oauth_failed", "reason", "code exchange", "error", err)
		return nil, "", fmt.Errorf("%w: %v", ErrOAuthProvider, err)
	}
	profile, err := s.Bridge.FetchProfile(ctx, toks.AccessToken)
	if err != nil {
		l.Error("oauth_failed", "reason", "profile fetch", "error", err)
		return nil, "", fmt.Errorf("%w: %v", ErrOAuthProvider, err)
	}

	// Only a literal email_verified=true from the provider passes; a missing
	// field rejects instead of defaulting open.
	if !profile.EmailVerified {
		l.Warn("oauth_failed", "reason", "email not verified")
		return nil, "", ErrEmailNotVerified
	}
	if profile.SubjectID == "" || profile.Email == "" || profile.Name == "" {
		l.Warn("oauth_failed", "reason", "incomplete profile")
		return nil, "", ErrIncompleteProfile
	}

	email := NormalizeEmail(profile.Email)
	user, err := s.Repo.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Role != role {
			l.Warn("oauth_failed", "reason", "role mismatch", "user_id", user.ID)
			return nil, "", ErrRoleMismatch
		}
	case errors.Is(err, repo.ErrNotFound):
		// Provider-verified emails are trusted transitively.
		user = &models.User{
			ID:            uuid.New(),
			Email:         email,
			Name:          profile.Name,
			Role:          role,
			EmailVerified: true,
		}
		if err := s.Repo.CreateUser(ctx, user); err != nil {
			return nil, "", err
		}
	default:
		return nil, "", err
	}

	acc := &models.ProviderAccount{
		UserID:            user.ID,
		Provider:          oauth.ProviderGoogle,
		ProviderAccountID: profile.SubjectID,
		Email:             email,
		Name:              profile.Name,
		AccessToken:       toks.AccessToken,
		RefreshToken:      toks.RefreshToken,
	}
	if !toks.Expiry.IsZero() {
		acc.ExpiresAt = &toks.Expiry
	}
	if err := s.Repo.UpsertProviderAccount(ctx, acc); err != nil {
		return nil, "", err
	}

	if err := s.Repo.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, "", err
	}

	session, err := s.issuePair(ctx, user, meta)
	if err != nil {
		return nil, "", err
	}

	s.record(ctx, "oauth_login", user, meta)
	l.Info("oauth_success", "user_id", user.ID)
	return session, st.Redirect, nil
}

// Refresh rotates the presented token: the old record is revoked with a
// conditional update and a fresh pair is issued. Presenting an
// already-rotated token fails with ErrTokenRevoked, never a silent re-issue.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string, meta ClientMeta) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := s.Codec.ParseRefresh(rawRefresh)
	if err != nil {
		l.Warn("refresh_failed", "reason", "bad token")
		return nil, ErrInvalidToken
	}

	digest := hash.Sha256Hex(rawRefresh)
	stored, err := s.Repo.FindRefreshByHash(ctx, digest)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_failed", "reason", "unknown token")
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if stored.Revoked {
		l.Warn("refresh_failed", "reason", "revoked", "jti", stored.JTI)
		return nil, ErrTokenRevoked
	}
	if stored.Expired(time.Now()) {
		l.Warn("refresh_failed", "reason", "expired", "jti", stored.JTI)
		return nil, ErrTokenExpired
	}

	// The conditional update is the arbiter for concurrent rotations of the
	// same token: the loser sees zero affected rows.
	ok, err := s.Repo.RevokeIfActive(ctx, digest)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.Warn("refresh_failed", "reason", "lost rotation race", "jti", stored.JTI)
		return nil, ErrTokenRevoked
	}

	user, err := s.Repo.FindUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	session, err := s.issuePair(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.record(ctx, "token_refreshed", user, meta)
	l.Info("refresh_success", "user_id", user.ID, "old_jti", claims.ID)
	return session, nil
}

// Logout is idempotent: revoking an unknown or already-revoked token is a
// no-op, not an error.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string, meta ClientMeta) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if rawRefresh == "" {
		return nil
	}
	if err := s.Repo.RevokeByHash(ctx, hash.Sha256Hex(rawRefresh)); err != nil {
		return err
	}

	s.record(ctx, "user_logged_out", nil, meta)
	l.Info("logout_success")
	return nil
}

// LogoutAll is the forced-logout security response: every active refresh
// token the user owns is revoked.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID, meta ClientMeta) (int64, error) {
	l := logging.FromContext(ctx).With("svc", "auth.logout_all", "user_id", userID)

	revoked, err := s.Repo.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.record(ctx, "logout_all", &models.User{ID: userID}, meta)
	l.Info("logout_all_success", "revoked", revoked)
	return revoked, nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.Repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User, meta ClientMeta) (*Session, error) {
	access, accessExp, err := s.Codec.IssueAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, jti, err := s.Codec.IssueRefresh(user)
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		TokenHash: hash.Sha256Hex(refresh),
		JTI:       jti,
		UserID:    user.ID,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		ExpiresAt: refreshExp.Unix(),
	}
	if err := s.Repo.CreateRefreshToken(ctx, record); err != nil {
		return nil, err
	}

	return &Session{
		User:         user,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

func (s *AuthService) record(ctx context.Context, typ string, user *models.User, meta ClientMeta) {
	if s.Audit == nil {
		return
	}
	ev := audit.Event{
		Type:      typ,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		At:        time.Now(),
	}
	if user != nil {
		ev.UserID = user.ID.String()
		ev.Email = user.Email
	}
	s.Audit.Record(ctx, ev)
}
