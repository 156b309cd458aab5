package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/isleoflan/sso-server/internal/config"
	"github.com/isleoflan/sso-server/internal/domain"
	"github.com/isleoflan/sso-server/internal/ident"
	"github.com/isleoflan/sso-server/internal/intermediate"
	"github.com/isleoflan/sso-server/internal/jwt"
	pw "github.com/isleoflan/sso-server/internal/password"
	"github.com/isleoflan/sso-server/internal/repository"
)

// AuthService orchestrates the handoff flows: login request creation,
// credential login, silent re-auth, intermediate token exchange and renewal.
type AuthService struct {
	apps           repository.AppRepository
	users          repository.UserRepository
	requests       repository.LoginRequestRepository
	globalSessions repository.GlobalSessionRepository
	sessions       repository.SessionRepository
	refreshTokens  repository.RefreshTokenRepository
	tokenStore     repository.IntermediateTokenStore
	handoff        *intermediate.Codec
	jwt            *jwt.Codec
	cfg            config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(
	apps repository.AppRepository,
	users repository.UserRepository,
	requests repository.LoginRequestRepository,
	globalSessions repository.GlobalSessionRepository,
	sessions repository.SessionRepository,
	refreshTokens repository.RefreshTokenRepository,
	tokenStore repository.IntermediateTokenStore,
	handoff *intermediate.Codec,
	jwtCodec *jwt.Codec,
	cfg config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		apps:           apps,
		users:          users,
		requests:       requests,
		globalSessions: globalSessions,
		sessions:       sessions,
		refreshTokens:  refreshTokens,
		tokenStore:     tokenStore,
		handoff:        handoff,
		jwt:            jwtCodec,
		cfg:            cfg,
		logger:         logger,
		tracer:         otel.Tracer("github.com/isleoflan/sso-server/internal/service"),
	}
}

// CreateLoginRequest starts a handoff for the given app. The redirect URL
// must live under the app's registered base URL; validation happens here at
// the boundary, before any row is written.
func (s *AuthService) CreateLoginRequest(ctx context.Context, app domain.App, redirectURL string) (*LoginRequestResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.CreateLoginRequest")
	defer span.End()

	if !app.CheckRedirectURL(redirectURL) {
		return nil, apiError(CodeInvalidRedirectURL)
	}

	id, err := ident.NewUUID(ctx, s.requests.IDExists)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate login request id: %w", err)
	}

	request := domain.LoginRequest{
		ID:          id,
		AppID:       app.ID,
		RedirectURL: redirectURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.requests.Create(ctx, request); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist login request: %w", err)
	}

	s.audit("login_request.created", "app_id", app.ID, "login_request_id", id)
	return &LoginRequestResponse{Redirect: s.cfg.FrontendBaseURL + "request/" + id}, nil
}

// RequestInfo describes the app behind a login request, for the frontend's
// login page.
func (s *AuthService) RequestInfo(ctx context.Context, loginRequestID string) (*AppInfo, error) {
	ctx, span := s.startSpan(ctx, "AuthService.RequestInfo")
	defer span.End()

	request, err := s.loadLoginRequest(ctx, loginRequestID, CodeExpiredGlobalSess)
	if err != nil {
		return nil, err
	}
	app, err := s.apps.GetByID(ctx, request.AppID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load app: %w", err)
	}
	return &AppInfo{ID: app.ID, Title: app.Title, Description: app.Description}, nil
}

// LoginInput carries one authentication attempt. Either Username+Password or
// GlobalSessionID must be set.
type LoginInput struct {
	LoginRequestID  string
	Username        string
	Password        string
	GlobalSessionID string
	IP              string
	UserAgent       string
}

// Login authenticates the user, creates or reuses a global session, mints an
// intermediate token and redeems the login request. The returned redirect is
// the app's redirect URL with the token appended.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*HandoffResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	request, err := s.loadLoginRequest(ctx, in.LoginRequestID, CodeInvalidLoginReq)
	if err != nil {
		return nil, err
	}
	app, err := s.apps.GetByID(ctx, request.AppID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load app: %w", err)
	}

	var (
		globalSessionID  string
		freshSession     bool
		username, userID string
	)

	switch {
	case in.Username != "" && in.Password != "":
		user, err := s.verifyCredentials(ctx, in.Username, in.Password)
		if err != nil {
			s.audit("login.failed", "app_id", app.ID, "username", in.Username)
			return nil, err
		}
		globalSessionID, err = s.createGlobalSession(ctx, user.ID, in.IP, in.UserAgent)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		freshSession = true
		username, userID = user.Username, user.ID

	case in.GlobalSessionID != "":
		session, err := s.loadGlobalSession(ctx, in.GlobalSessionID)
		if err != nil {
			return nil, err
		}
		// A renewed handoff proves the user is still around; push the
		// expiry another full interval out and record the activity.
		if err := s.refreshGlobalSession(ctx, session.ID); err != nil {
			span.RecordError(err)
			return nil, err
		}
		globalSessionID = session.ID
		userID = session.UserID

	default:
		return nil, apiError(CodeMissingLoginData)
	}

	token, err := s.mintHandoffToken(ctx, app, globalSessionID)
	if err != nil {
		return nil, err
	}
	redirectURL, err := s.redeemLoginRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	s.audit("login.success", "app_id", app.ID, "user_id", userID, "username", username, "fresh_session", freshSession)

	resp := &HandoffResponse{Redirect: redirectURL + token}
	if freshSession {
		resp.GlobalSessionID = globalSessionID
	}
	return resp, nil
}

// Exchange redeems an intermediate token for a per-app session and its
// credential pair. Every failure on the way is an authentication failure; a
// caller probing with garbage learns nothing beyond "invalid".
func (s *AuthService) Exchange(ctx context.Context, token string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Exchange")
	defer span.End()

	payload, err := s.handoff.Decrypt(token)
	if err != nil {
		span.RecordError(err)
		return nil, apiError(CodeInvalidExchange)
	}
	if payload.Expired() {
		return nil, apiError(CodeInvalidExchange)
	}

	app, err := s.apps.GetByID(ctx, payload.AppID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apiError(CodeInvalidExchange)
		}
		return nil, fmt.Errorf("load app: %w", err)
	}
	globalSession, err := s.globalSessions.GetByID(ctx, payload.GlobalSessionID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apiError(CodeInvalidExchange)
		}
		return nil, fmt.Errorf("load global session: %w", err)
	}
	if !globalSession.IsValid() {
		return nil, apiError(CodeInvalidExchange)
	}

	sessionID, err := ident.NewUUID(ctx, s.sessions.IDExists)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := time.Now().UTC()
	session := domain.Session{
		ID:              sessionID,
		GlobalSessionID: globalSession.ID,
		AppID:           app.ID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(domain.SessionInterval),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist session: %w", err)
	}

	accessToken, err := s.jwt.Sign(session.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshValue, err := ident.NewOpaque(ctx, 0, s.refreshTokens.TokenExists)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.refreshTokens.Create(ctx, domain.RefreshToken{Token: refreshValue, SessionID: session.ID}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	s.audit("token.exchanged", "app_id", app.ID, "session_id", session.ID, "global_session_id", globalSession.ID)
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		Expiration:   session.ExpiresAt,
	}, nil
}

// Renew extends a session via its refresh token and issues a fresh access
// token for the same session. The refresh token itself is returned
// unchanged; revoking the session or its global session is what ends it.
func (s *AuthService) Renew(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Renew")
	defer span.End()

	if !ident.IsOpaque(refreshToken) {
		return nil, apiError(CodeInvalidExchange)
	}
	stored, err := s.refreshTokens.GetByToken(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apiError(CodeInvalidExchange)
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	session, err := s.sessions.GetByID(ctx, stored.SessionID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apiError(CodeInvalidExchange)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	globalSession, err := s.globalSessions.GetByID(ctx, session.GlobalSessionID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apiError(CodeInvalidExchange)
		}
		return nil, fmt.Errorf("load global session: %w", err)
	}
	if !globalSession.IsValid() {
		return nil, apiError(CodeExpiredGlobalSess)
	}

	expiresAt := time.Now().UTC().Add(domain.SessionInterval)
	if err := s.sessions.SetExpiration(ctx, session.ID, expiresAt); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("renew session: %w", err)
	}
	accessToken, err := s.jwt.Sign(session.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.audit("token.renewed", "session_id", session.ID)
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiration:   expiresAt,
	}, nil
}

// Authenticate resolves a bearer token to its user. A valid signature alone
// is never enough: the referenced session must exist and be unexpired, and
// its global session and user must resolve.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (domain.User, domain.Session, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Authenticate")
	defer span.End()

	if strings.TrimSpace(bearer) == "" {
		return domain.User{}, domain.Session{}, apiError(CodeMissingAuthToken)
	}
	sessionID, err := s.jwt.Verify(bearer)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, domain.Session{}, apiError(CodeInvalidAuthToken)
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, domain.Session{}, apiError(CodeInvalidAuthToken)
	}
	if session.IsExpired() {
		return domain.User{}, domain.Session{}, apiError(CodeSessionExpired)
	}
	globalSession, err := s.globalSessions.GetByID(ctx, session.GlobalSessionID)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, domain.Session{}, apiError(CodeInvalidAuthToken)
	}
	user, err := s.users.GetByID(ctx, globalSession.UserID)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, domain.Session{}, apiError(CodeInvalidAuthToken)
	}
	return user, session, nil
}

// Logout revokes the session and its global session by backdating their
// expiry, so they are invalid even for readers applying the leeway.
func (s *AuthService) Logout(ctx context.Context, session domain.Session) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	revokedAt := time.Now().UTC().Add(-domain.RevocationBackdate)
	if err := s.sessions.SetExpiration(ctx, session.ID, revokedAt); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke session: %w", err)
	}
	if err := s.globalSessions.SetExpiration(ctx, session.GlobalSessionID, revokedAt); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke global session: %w", err)
	}
	s.audit("logout", "session_id", session.ID, "global_session_id", session.GlobalSessionID)
	return nil
}

// SessionInfo describes the user behind a still-valid global session, for
// the frontend's "continue as" prompt.
func (s *AuthService) SessionInfo(ctx context.Context, globalSessionID string) (*GlobalSessionInfo, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SessionInfo")
	defer span.End()

	session, err := s.loadGlobalSession(ctx, globalSessionID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &GlobalSessionInfo{
		Username: user.Username,
		Avatar:   user.AvatarURL(),
		Email:    user.Email,
	}, nil
}

// UserInfo serializes a user by id.
func (s *AuthService) UserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	ctx, span := s.startSpan(ctx, "AuthService.UserInfo")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, apiError(CodeUserNotFound)
	}
	info := serializeUser(user)
	return &info, nil
}

func serializeUser(user domain.User) UserInfo {
	var birthDate *string
	if user.BirthDate != nil {
		formatted := user.BirthDate.Format("2006-01-02")
		birthDate = &formatted
	}
	return UserInfo{
		ID:        user.ID,
		Username:  user.Username,
		Gender:    string(user.Gender),
		Forename:  user.Forename,
		Lastname:  user.Lastname,
		Address:   user.Address,
		ZipCode:   user.ZipCode,
		City:      user.City,
		BirthDate: birthDate,
		Email:     user.Email,
		Phone:     user.Phone,
		Scope:     uint64(user.Scope),
		Avatar:    user.AvatarURL(),
	}
}

func (s *AuthService) verifyCredentials(ctx context.Context, username, password string) (domain.User, error) {
	user, err := s.users.GetByUsernameOrEmail(ctx, username)
	if err != nil {
		// Burn a bcrypt round anyway so an unknown username costs the
		// same as a wrong password.
		pw.Verify(password, "$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinval")
		return domain.User{}, apiError(CodeWrongCredentials)
	}
	if !pw.Verify(password, user.PasswordHash) {
		return domain.User{}, apiError(CodeWrongCredentials)
	}
	if !user.IsActivated() {
		return domain.User{}, apiError(CodeNotActivated)
	}
	if user.IsBlocked() {
		return domain.User{}, apiError(CodeUserBlocked)
	}
	return user, nil
}

// createGlobalSession issues a new global session for the user. The
// repository revokes every prior session of the same user in the same
// transaction.
func (s *AuthService) createGlobalSession(ctx context.Context, userID, ip, userAgent string) (string, error) {
	id, err := ident.NewUUID(ctx, s.globalSessions.IDExists)
	if err != nil {
		return "", fmt.Errorf("generate global session id: %w", err)
	}
	now := time.Now().UTC()
	session := domain.GlobalSession{
		ID:         id,
		UserID:     userID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(domain.GlobalSessionInterval),
		IP:         ip,
		UserAgent:  userAgent,
	}
	if err := s.globalSessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("persist global session: %w", err)
	}
	s.audit("global_session.created", "user_id", userID, "global_session_id", id)
	return id, nil
}

// refreshGlobalSession extends a still-valid global session on a renewed
// handoff and updates its last-seen timestamp.
func (s *AuthService) refreshGlobalSession(ctx context.Context, id string) error {
	now := time.Now().UTC()
	if err := s.globalSessions.SetExpiration(ctx, id, now.Add(domain.GlobalSessionInterval)); err != nil {
		return fmt.Errorf("refresh global session: %w", err)
	}
	if err := s.globalSessions.Touch(ctx, id, now); err != nil {
		return fmt.Errorf("touch global session: %w", err)
	}
	return nil
}

// mintHandoffToken encrypts the handoff payload and records the minted token
// in the latest-wins store. The store write is best-effort; the token works
// without it.
func (s *AuthService) mintHandoffToken(ctx context.Context, app domain.App, globalSessionID string) (string, error) {
	payload := intermediate.Payload{
		AppID:           app.ID,
		GlobalSessionID: globalSessionID,
		IssuedAt:        time.Now().Unix(),
	}
	token, err := s.handoff.Encrypt(payload)
	if err != nil {
		s.log().Error("intermediate token mint failed", zap.Error(err))
		return "", apiError(CodeEncryptionFailure)
	}

	record := repository.IntermediateTokenRecord{
		AppID:           app.ID,
		GlobalSessionID: globalSessionID,
		Token:           token,
		ExpiresAt:       time.Now().Add(intermediate.TokenLifetime),
	}
	if err := s.tokenStore.Save(ctx, record, intermediate.TokenLifetime); err != nil {
		s.log().Warn("intermediate token record save failed", zap.Error(err))
	}
	return token, nil
}

// redeemLoginRequest deletes the request row. A second redeem of the same id
// means a replay and is rejected.
func (s *AuthService) redeemLoginRequest(ctx context.Context, request domain.LoginRequest) (string, error) {
	if err := s.requests.Delete(ctx, request.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.audit("login_request.replay", "login_request_id", request.ID)
			return "", apiError(CodeInvalidLoginReq)
		}
		return "", fmt.Errorf("redeem login request: %w", err)
	}
	return request.RedirectURL, nil
}

func (s *AuthService) loadLoginRequest(ctx context.Context, id string, errorCode int) (domain.LoginRequest, error) {
	if err := ident.ValidateUUID(id); err != nil {
		return domain.LoginRequest{}, apiError(errorCode)
	}
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidValue) {
			return domain.LoginRequest{}, apiError(errorCode)
		}
		return domain.LoginRequest{}, fmt.Errorf("load login request: %w", err)
	}
	return request, nil
}

func (s *AuthService) loadGlobalSession(ctx context.Context, id string) (domain.GlobalSession, error) {
	if err := ident.ValidateUUID(id); err != nil {
		return domain.GlobalSession{}, apiError(CodeInvalidGlobalSess)
	}
	session, err := s.globalSessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.GlobalSession{}, apiError(CodeExpiredGlobalSess)
		}
		if errors.Is(err, domain.ErrInvalidValue) {
			return domain.GlobalSession{}, apiError(CodeInvalidGlobalSess)
		}
		return domain.GlobalSession{}, fmt.Errorf("load global session: %w", err)
	}
	if !session.IsValid() {
		return domain.GlobalSession{}, apiError(CodeExpiredGlobalSess)
	}
	return session, nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
