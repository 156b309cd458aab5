package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isleoflan/sso-server/internal/config"
	"github.com/isleoflan/sso-server/internal/domain"
	"github.com/isleoflan/sso-server/internal/intermediate"
	"github.com/isleoflan/sso-server/internal/jwt"
	pw "github.com/isleoflan/sso-server/internal/password"
	"github.com/isleoflan/sso-server/internal/queue"
	"github.com/isleoflan/sso-server/internal/repository"
)

type fakeAppRepo struct {
	rows map[string]domain.App
}

func (f *fakeAppRepo) GetByID(_ context.Context, id string) (domain.App, error) {
	app, ok := f.rows[id]
	if !ok {
		return domain.App{}, fmt.Errorf("app %s: %w", id, domain.ErrNotFound)
	}
	return app, nil
}

type fakeUserRepo struct {
	rows map[string]domain.User
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := f.rows[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return user, nil
}

func (f *fakeUserRepo) GetByUsernameOrEmail(_ context.Context, input string) (domain.User, error) {
	for _, user := range f.rows {
		if user.Username == input || user.Email == input {
			return user, nil
		}
	}
	return domain.User{}, fmt.Errorf("user %q: %w", input, domain.ErrNotFound)
}

func (f *fakeUserRepo) GetByConfirmationHash(_ context.Context, hash, salt string) (domain.User, error) {
	for _, user := range f.rows {
		if ConfirmationHash(user.Username, salt) == hash {
			return user, nil
		}
	}
	return domain.User{}, fmt.Errorf("confirmation hash: %w", domain.ErrNotFound)
}

func (f *fakeUserRepo) Create(_ context.Context, user domain.User) error {
	for _, existing := range f.rows {
		if existing.Username == user.Username || existing.Email == user.Email {
			return fmt.Errorf("user %s: %w", user.Username, domain.ErrConflict)
		}
	}
	f.rows[user.ID] = user
	return nil
}

func (f *fakeUserRepo) Activate(_ context.Context, id string, at time.Time) error {
	user, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	user.ActivatedAt = &at
	f.rows[id] = user
	return nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	user, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	user.PasswordHash = passwordHash
	f.rows[id] = user
	return nil
}

func (f *fakeUserRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	for _, user := range f.rows {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	for _, user := range f.rows {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) IDExists(_ context.Context, id string) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

type fakeLoginRequestRepo struct {
	rows        map[string]domain.LoginRequest
	allocations map[string]string // userID -> requestID
}

func (f *fakeLoginRequestRepo) Create(_ context.Context, request domain.LoginRequest) error {
	f.rows[request.ID] = request
	return nil
}

func (f *fakeLoginRequestRepo) GetByID(_ context.Context, id string) (domain.LoginRequest, error) {
	request, ok := f.rows[id]
	if !ok {
		return domain.LoginRequest{}, fmt.Errorf("login request %s: %w", id, domain.ErrNotFound)
	}
	return request, nil
}

func (f *fakeLoginRequestRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.rows[id]; !ok {
		return fmt.Errorf("login request %s: %w", id, domain.ErrNotFound)
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeLoginRequestRepo) Allocate(_ context.Context, requestID, userID string) error {
	if _, ok := f.rows[requestID]; !ok {
		return domain.ErrNotFound
	}
	f.allocations[userID] = requestID
	return nil
}

func (f *fakeLoginRequestRepo) GetAllocated(_ context.Context, userID string) (domain.LoginRequest, error) {
	requestID, ok := f.allocations[userID]
	if !ok {
		return domain.LoginRequest{}, fmt.Errorf("allocation for %s: %w", userID, domain.ErrNotFound)
	}
	request, ok := f.rows[requestID]
	if !ok {
		return domain.LoginRequest{}, fmt.Errorf("login request %s: %w", requestID, domain.ErrNotFound)
	}
	return request, nil
}

func (f *fakeLoginRequestRepo) IDExists(_ context.Context, id string) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

type fakeGlobalSessionRepo struct {
	rows map[string]domain.GlobalSession
}

func (f *fakeGlobalSessionRepo) Create(_ context.Context, session domain.GlobalSession) error {
	revokedAt := time.Now().UTC().Add(-domain.RevocationBackdate)
	for id, row := range f.rows {
		if row.UserID == session.UserID {
			row.ExpiresAt = revokedAt
			f.rows[id] = row
		}
	}
	f.rows[session.ID] = session
	return nil
}

func (f *fakeGlobalSessionRepo) GetByID(_ context.Context, id string) (domain.GlobalSession, error) {
	session, ok := f.rows[id]
	if !ok {
		return domain.GlobalSession{}, fmt.Errorf("global session %s: %w", id, domain.ErrNotFound)
	}
	return session, nil
}

func (f *fakeGlobalSessionRepo) SetExpiration(_ context.Context, id string, expiresAt time.Time) error {
	session, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	session.ExpiresAt = expiresAt
	f.rows[id] = session
	return nil
}

func (f *fakeGlobalSessionRepo) Touch(_ context.Context, id string, lastSeenAt time.Time) error {
	session, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	session.LastSeenAt = lastSeenAt
	f.rows[id] = session
	return nil
}

func (f *fakeGlobalSessionRepo) IDExists(_ context.Context, id string) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

type fakeSessionRepo struct {
	rows map[string]domain.Session
}

func (f *fakeSessionRepo) Create(_ context.Context, session domain.Session) error {
	f.rows[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id string) (domain.Session, error) {
	session, ok := f.rows[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return session, nil
}

func (f *fakeSessionRepo) Exists(_ context.Context, id string) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeSessionRepo) SetExpiration(_ context.Context, id string, expiresAt time.Time) error {
	session, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	session.ExpiresAt = expiresAt
	f.rows[id] = session
	return nil
}

func (f *fakeSessionRepo) IDExists(_ context.Context, id string) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

type fakeRefreshTokenRepo struct {
	rows map[string]domain.RefreshToken
}

func (f *fakeRefreshTokenRepo) Create(_ context.Context, token domain.RefreshToken) error {
	f.rows[token.Token] = token
	return nil
}

func (f *fakeRefreshTokenRepo) GetByToken(_ context.Context, token string) (domain.RefreshToken, error) {
	stored, ok := f.rows[token]
	if !ok {
		return domain.RefreshToken{}, fmt.Errorf("refresh token: %w", domain.ErrNotFound)
	}
	return stored, nil
}

func (f *fakeRefreshTokenRepo) TokenExists(_ context.Context, token string) (bool, error) {
	_, ok := f.rows[token]
	return ok, nil
}

type fakeResetRepo struct {
	rows map[string]domain.Reset
}

func (f *fakeResetRepo) Create(_ context.Context, reset domain.Reset) error {
	f.rows[reset.ID] = reset
	return nil
}

func (f *fakeResetRepo) GetByID(_ context.Context, id string) (domain.Reset, error) {
	reset, ok := f.rows[id]
	if !ok {
		return domain.Reset{}, fmt.Errorf("reset %s: %w", id, domain.ErrNotFound)
	}
	return reset, nil
}

func (f *fakeResetRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeResetRepo) IDExists(_ context.Context, id string) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

type fakeTokenStore struct {
	records map[string]repository.IntermediateTokenRecord
}

func (f *fakeTokenStore) Save(_ context.Context, record repository.IntermediateTokenRecord, _ time.Duration) error {
	f.records[record.AppID] = record
	return nil
}

func (f *fakeTokenStore) Get(_ context.Context, appID string) (*repository.IntermediateTokenRecord, error) {
	record, ok := f.records[appID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

type publishedMessage struct {
	Queue   string
	Payload any
}

type fakePublisher struct {
	messages []publishedMessage
}

func (f *fakePublisher) Publish(_ context.Context, queueName string, payload any) error {
	f.messages = append(f.messages, publishedMessage{Queue: queueName, Payload: payload})
	return nil
}

func (f *fakePublisher) byQueue(queueName string) []publishedMessage {
	var out []publishedMessage
	for _, msg := range f.messages {
		if msg.Queue == queueName {
			out = append(out, msg)
		}
	}
	return out
}

var _ queue.Publisher = (*fakePublisher)(nil)

// Key generation and bcrypt are slow; share one set across the package.
var (
	codecsOnce   sync.Once
	codecsErr    error
	sharedHand   *intermediate.Codec
	sharedJWT    *jwt.Codec
	passwordOnce sync.Once
	passwordErr  error
	passwordHash string
)

const testPassword = "hunter2!"

func testCodecs(t *testing.T) (*intermediate.Codec, *jwt.Codec) {
	t.Helper()
	codecsOnce.Do(func() {
		handoffKey, err := intermediate.GenerateKey()
		if err != nil {
			codecsErr = err
			return
		}
		jwtKey, err := intermediate.GenerateKey()
		if err != nil {
			codecsErr = err
			return
		}
		sharedHand = intermediate.NewCodecFromKeys(handoffKey)
		sharedJWT = jwt.NewCodecFromKey(jwtKey)
	})
	require.NoError(t, codecsErr)
	return sharedHand, sharedJWT
}

func testPasswordHash(t *testing.T) string {
	t.Helper()
	passwordOnce.Do(func() {
		passwordHash, passwordErr = pw.Hash(testPassword)
	})
	require.NoError(t, passwordErr)
	return passwordHash
}

type testEnv struct {
	auth     *AuthService
	register *RegisterService
	reset    *ResetService

	apps           *fakeAppRepo
	users          *fakeUserRepo
	requests       *fakeLoginRequestRepo
	globalSessions *fakeGlobalSessionRepo
	sessions       *fakeSessionRepo
	refreshTokens  *fakeRefreshTokenRepo
	resets         *fakeResetRepo
	tokenStore     *fakeTokenStore
	publisher      *fakePublisher

	app domain.App
	cfg config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	handoff, jwtCodec := testCodecs(t)

	env := &testEnv{
		apps:           &fakeAppRepo{rows: map[string]domain.App{}},
		users:          &fakeUserRepo{rows: map[string]domain.User{}},
		requests:       &fakeLoginRequestRepo{rows: map[string]domain.LoginRequest{}, allocations: map[string]string{}},
		globalSessions: &fakeGlobalSessionRepo{rows: map[string]domain.GlobalSession{}},
		sessions:       &fakeSessionRepo{rows: map[string]domain.Session{}},
		refreshTokens:  &fakeRefreshTokenRepo{rows: map[string]domain.RefreshToken{}},
		resets:         &fakeResetRepo{rows: map[string]domain.Reset{}},
		tokenStore:     &fakeTokenStore{records: map[string]repository.IntermediateTokenRecord{}},
		publisher:      &fakePublisher{},
	}

	env.cfg = config.Config{
		FrontendBaseURL: "https://login.example.com/",
		RegisterDOIURL:  "https://login.example.com/auth/activate/",
		ResetURL:        "https://login.example.com/auth/reset-password/",
		DOISalt:         "pepper",
	}
	env.app = domain.App{
		ID:          "ticketshop",
		Title:       "Ticketshop",
		Description: "Buy your ticket",
		BaseURL:     "https://shop.example.com",
		CreatedAt:   time.Now().UTC(),
	}
	env.apps.rows[env.app.ID] = env.app

	logger := zap.NewNop()
	env.auth = NewAuthService(
		env.apps, env.users, env.requests, env.globalSessions, env.sessions,
		env.refreshTokens, env.tokenStore, handoff, jwtCodec, env.cfg, logger,
	)
	env.register = NewRegisterService(env.auth, env.users, env.requests, env.publisher, env.cfg, logger)
	env.reset = NewResetService(env.auth, env.users, env.requests, env.resets, env.publisher, env.cfg, logger)
	return env
}

// seedUser inserts an activated user with the shared test password.
func (env *testEnv) seedUser(t *testing.T, username, email string) domain.User {
	t.Helper()
	now := time.Now().UTC()
	user := domain.User{
		ID:           "00000000-0000-4000-8000-" + fmt.Sprintf("%012d", len(env.users.rows)+1),
		Username:     username,
		PasswordHash: testPasswordHash(t),
		ActivatedAt:  &now,
		Gender:       domain.GenderFemale,
		Forename:     "Alice",
		Lastname:     "Tester",
		Email:        email,
		Scope:        domain.ScopeBasicUser,
		CreatedAt:    now,
	}
	env.users.rows[user.ID] = user
	return user
}

// newLoginRequest runs the request-creation flow and returns the request id
// parsed from the frontend redirect.
func (env *testEnv) newLoginRequest(t *testing.T) (string, string) {
	t.Helper()
	redirectURL := env.app.BaseURL + "/sso/callback?token="
	resp, err := env.auth.CreateLoginRequest(context.Background(), env.app, redirectURL)
	require.NoError(t, err)

	prefix := env.cfg.FrontendBaseURL + "request/"
	require.Contains(t, resp.Redirect, prefix)
	return resp.Redirect[len(prefix):], redirectURL
}

// requireCode asserts err is an APIError with the given public code.
func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, code, apiErr.Code)
}
