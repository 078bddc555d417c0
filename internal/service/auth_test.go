package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/skorenev/marketplace/internal/models"
	"github.com/skorenev/marketplace/internal/oauth"
	"github.com/skorenev/marketplace/internal/repo"
	"github.com/skorenev/marketplace/internal/tokens"
)

type fakeBridge struct {
	profile     *oauth.Profile
	exchangeErr error
	profileErr  error
}

func (f *fakeBridge) AuthCodeURL(state string) string {
	return "https://accounts.example.com/consent?state=" + state
}

func (f *fakeBridge) Exchange(ctx context.Context, code string) (*oauth.Tokens, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth.Tokens{
		AccessToken:  "provider-access",
		RefreshToken: "provider-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeBridge) FetchProfile(ctx context.Context, accessToken string) (*oauth.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func newTestService(t *testing.T) (*AuthService, *fakeBridge) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// Each pooled connection would otherwise get its own :memory: database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshToken{}, &models.ProviderAccount{}))

	bridge := &fakeBridge{}
	return &AuthService{
		Repo:   repo.NewAuthRepo(db),
		Codec:  tokens.NewCodec([]byte("access-secret"), []byte("refresh-secret"), 15*time.Minute, 30*24*time.Hour),
		Bridge: bridge,
		States: oauth.NewStateSigner([]byte("state-secret"), 10*time.Minute),
	}, bridge
}

var meta = ClientMeta{IP: "127.0.0.1", UserAgent: "go-test"}

func TestRegisterThenDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", session.User.Email)
	require.Equal(t, models.RoleCustomer, session.User.Role)
	require.False(t, session.User.EmailVerified)
	require.NotEmpty(t, session.AccessToken)
	require.NotEmpty(t, session.RefreshToken)

	_, err = svc.Register(ctx, "alice@example.com", "Other456!", "Alice", models.RoleCustomer, meta)
	require.ErrorIs(t, err, ErrDuplicateUser)
}

func TestRegisterNormalizesEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "  Bob@Example.COM ", "Secret123!", "Bob", models.RoleMerchant, meta)
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", session.User.Email)

	_, err = svc.Login(ctx, "bob@example.com", "Secret123!", models.RoleMerchant, meta)
	require.NoError(t, err)
}

func TestLoginMatrix(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)

	session, err := svc.Login(ctx, "alice@example.com", "Secret123!", models.RoleCustomer, meta)
	require.NoError(t, err)
	require.NotNil(t, session.User.LastLoginAt)

	_, err = svc.Login(ctx, "alice@example.com", "WrongPass1!", models.RoleCustomer, meta)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "Secret123!", models.RoleCustomer, meta)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// Correct password but wrong role must not issue tokens.
	_, err = svc.Login(ctx, "alice@example.com", "Secret123!", models.RoleMerchant, meta)
	require.ErrorIs(t, err, ErrRoleMismatch)
}

func TestLoginOAuthOnlyAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := &models.User{
		ID:            uuid.New(),
		Email:         "carol@example.com",
		Name:          "Carol",
		Role:          models.RoleCustomer,
		EmailVerified: true,
	}
	require.NoError(t, svc.Repo.CreateUser(ctx, user))

	_, err := svc.Login(ctx, "carol@example.com", "anything", models.RoleCustomer, meta)
	require.ErrorIs(t, err, ErrOAuthAccountRequired)
}

func TestRefreshRotation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken, meta)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated-out token is revoked, not reusable.
	_, err = svc.Refresh(ctx, first.RefreshToken, meta)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// The replacement still works.
	_, err = svc.Refresh(ctx, second.RefreshToken, meta)
	require.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Properly signed but never persisted.
	raw, _, _, err := svc.Codec.IssueRefresh(&models.User{
		ID:    uuid.New(),
		Email: "ghost@example.com",
		Role:  models.RoleCustomer,
	})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, raw, meta)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshGarbageToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Refresh(context.Background(), "garbage", meta)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshExpiredRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)

	// Expire the stored record directly; the JWT itself is still valid.
	err = svc.Repo.DB.Model(&models.RefreshToken{}).
		Where("user_id = ?", session.User.ID).
		Update("expires_at", time.Now().Add(-time.Hour).Unix()).Error
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, session.RefreshToken, meta)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestLogoutIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, session.RefreshToken, meta))
	require.NoError(t, svc.Logout(ctx, session.RefreshToken, meta))
	require.NoError(t, svc.Logout(ctx, "never-issued", meta))

	_, err = svc.Refresh(ctx, session.RefreshToken, meta)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)

	var raws []string
	raws = append(raws, session.RefreshToken)
	for i := 0; i < 2; i++ {
		s, err := svc.Login(ctx, "alice@example.com", "Secret123!", models.RoleCustomer, meta)
		require.NoError(t, err)
		raws = append(raws, s.RefreshToken)
	}

	revoked, err := svc.LogoutAll(ctx, session.User.ID, meta)
	require.NoError(t, err)
	require.EqualValues(t, 3, revoked)

	for _, raw := range raws {
		_, err := svc.Refresh(ctx, raw, meta)
		require.ErrorIs(t, err, ErrTokenRevoked)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refresh(ctx, session.RefreshToken, meta)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrTokenRevoked)
		}
	}
	require.Equal(t, 1, wins, "exactly one concurrent refresh may succeed")
}

func googleState(t *testing.T, svc *AuthService, role string) (encoded, nonce string) {
	t.Helper()
	st := svc.States.New(role, "")
	enc, err := svc.States.Sign(st)
	require.NoError(t, err)
	return enc, st.Nonce
}

func TestGoogleAuthCreatesUser(t *testing.T) {
	svc, bridge := newTestService(t)
	ctx := context.Background()
	bridge.profile = &oauth.Profile{
		SubjectID:     "google-sub-1",
		Email:         "Dave@Example.com",
		EmailVerified: true,
		Name:          "Dave",
	}

	state, nonce := googleState(t, svc, "rider")
	session, _, err := svc.GoogleAuth(ctx, "code", state, nonce, meta)
	require.NoError(t, err)
	require.Equal(t, "dave@example.com", session.User.Email)
	require.Equal(t, models.RoleRider, session.User.Role)
	require.True(t, session.User.EmailVerified)

	acc, err := svc.Repo.FindProviderAccount(ctx, oauth.ProviderGoogle, "google-sub-1")
	require.NoError(t, err)
	require.Equal(t, session.User.ID, acc.UserID)

	// Refresh issued through OAuth rotates like any other.
	_, err = svc.Refresh(ctx, session.RefreshToken, meta)
	require.NoError(t, err)
}

func TestGoogleAuthLinksExistingUser(t *testing.T) {
	svc, bridge := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)

	bridge.profile = &oauth.Profile{
		SubjectID:     "google-sub-2",
		Email:         "alice@example.com",
		EmailVerified: true,
		Name:          "Alice",
	}

	state, nonce := googleState(t, svc, "customer")
	session, _, err := svc.GoogleAuth(ctx, "code", state, nonce, meta)
	require.NoError(t, err)

	acc, err := svc.Repo.FindProviderAccount(ctx, oauth.ProviderGoogle, "google-sub-2")
	require.NoError(t, err)
	require.Equal(t, session.User.ID, acc.UserID)
}

func TestGoogleAuthRoleMismatch(t *testing.T) {
	svc, bridge := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)

	bridge.profile = &oauth.Profile{
		SubjectID:     "google-sub-3",
		Email:         "alice@example.com",
		EmailVerified: true,
		Name:          "Alice",
	}

	state, nonce := googleState(t, svc, "merchant")
	_, _, err = svc.GoogleAuth(ctx, "code", state, nonce, meta)
	require.ErrorIs(t, err, ErrRoleMismatch)
}

func TestGoogleAuthUnverifiedEmail(t *testing.T) {
	svc, bridge := newTestService(t)
	ctx := context.Background()
	bridge.profile = &oauth.Profile{
		SubjectID:     "google-sub-4",
		Email:         "eve@example.com",
		EmailVerified: false,
		Name:          "Eve",
	}

	state, nonce := googleState(t, svc, "customer")
	_, _, err := svc.GoogleAuth(ctx, "code", state, nonce, meta)
	require.ErrorIs(t, err, ErrEmailNotVerified)

	// Nothing was created.
	_, err = svc.Repo.FindUserByEmail(ctx, "eve@example.com")
	require.ErrorIs(t, err, repo.ErrNotFound)
	_, err = svc.Repo.FindProviderAccount(ctx, oauth.ProviderGoogle, "google-sub-4")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestGoogleAuthIncompleteProfile(t *testing.T) {
	svc, bridge := newTestService(t)
	bridge.profile = &oauth.Profile{
		SubjectID:     "google-sub-5",
		Email:         "",
		EmailVerified: true,
		Name:          "No Email",
	}

	state, nonce := googleState(t, svc, "customer")
	_, _, err := svc.GoogleAuth(context.Background(), "code", state, nonce, meta)
	require.ErrorIs(t, err, ErrIncompleteProfile)
}

func TestGoogleAuthForgedState(t *testing.T) {
	svc, _ := newTestService(t)

	// State signed by someone else entirely.
	forger := oauth.NewStateSigner([]byte("attacker"), 10*time.Minute)
	st := forger.New("merchant", "")
	encoded, err := forger.Sign(st)
	require.NoError(t, err)

	_, _, err = svc.GoogleAuth(context.Background(), "code", encoded, st.Nonce, meta)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGoogleAuthNonceMismatch(t *testing.T) {
	svc, bridge := newTestService(t)
	bridge.profile = &oauth.Profile{
		SubjectID:     "google-sub-6",
		Email:         "f@example.com",
		EmailVerified: true,
		Name:          "F",
	}

	state, _ := googleState(t, svc, "customer")
	_, _, err := svc.GoogleAuth(context.Background(), "code", state, "other-nonce", meta)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGoogleAuthProviderError(t *testing.T) {
	svc, bridge := newTestService(t)
	bridge.exchangeErr = errors.New("upstream 502")

	state, nonce := googleState(t, svc, "customer")
	_, _, err := svc.GoogleAuth(context.Background(), "code", state, nonce, meta)
	require.ErrorIs(t, err, ErrOAuthProvider)
}

func TestGetProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice@example.com", "Secret123!", "Alice", models.RoleCustomer, meta)
	require.NoError(t, err)

	user, err := svc.GetProfile(ctx, session.User.ID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)

	_, err = svc.GetProfile(ctx, uuid.New())
	require.ErrorIs(t, err, ErrUserNotFound)
}
