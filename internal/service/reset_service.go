package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/isleoflan/sso-server/internal/config"
	"github.com/isleoflan/sso-server/internal/domain"
	"github.com/isleoflan/sso-server/internal/ident"
	pw "github.com/isleoflan/sso-server/internal/password"
	"github.com/isleoflan/sso-server/internal/queue"
	"github.com/isleoflan/sso-server/internal/repository"
)

// ResetService handles password resets. A reset interrupts a handoff: the
// login request stays allocated to the user and is resumed once the new
// password is set.
type ResetService struct {
	auth      *AuthService
	users     repository.UserRepository
	requests  repository.LoginRequestRepository
	resets    repository.ResetRepository
	publisher queue.Publisher
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewResetService wires dependencies.
func NewResetService(auth *AuthService, users repository.UserRepository, requests repository.LoginRequestRepository, resets repository.ResetRepository, publisher queue.Publisher, cfg config.Config, logger *zap.Logger) *ResetService {
	return &ResetService{
		auth:      auth,
		users:     users,
		requests:  requests,
		resets:    resets,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/isleoflan/sso-server/internal/service"),
	}
}

// RequestReset starts a reset for the given username or email. An unknown
// user is not an error: the response is identical either way, so the
// endpoint cannot be used to probe which accounts exist.
func (s *ResetService) RequestReset(ctx context.Context, username, loginRequestID string) error {
	ctx, span := s.startSpan(ctx, "ResetService.RequestReset")
	defer span.End()

	request, err := s.auth.loadLoginRequest(ctx, loginRequestID, CodeInvalidLoginReq)
	if err != nil {
		return err
	}

	user, err := s.users.GetByUsernameOrEmail(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidValue) {
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("load user: %w", err)
	}

	id, err := ident.NewUUID(ctx, s.resets.IDExists)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("generate reset id: %w", err)
	}
	reset := domain.Reset{
		ID:             id,
		UserID:         user.ID,
		LoginRequestID: request.ID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		span.RecordError(err)
		return fmt.Errorf("persist reset: %w", err)
	}

	// Keep the login request attached to the user so the handoff resumes
	// after the password change.
	if err := s.requests.Allocate(ctx, request.ID, user.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("allocate login request: %w", err)
	}

	s.publishResetEvent(ctx, reset.ID)
	s.sendResetMail(ctx, user, reset.ID)

	s.auth.audit("reset.requested", "user_id", user.ID, "reset_id", reset.ID)
	return nil
}

// ResetInfo verifies that a reset id is redeemable, for the frontend's reset
// form.
func (s *ResetService) ResetInfo(ctx context.Context, resetID string) error {
	ctx, span := s.startSpan(ctx, "ResetService.ResetInfo")
	defer span.End()

	_, err := s.loadReset(ctx, resetID)
	return err
}

// ExecuteReset sets the new password and resumes the interrupted handoff:
// fresh global session, redeemed login request, minted intermediate token.
func (s *ResetService) ExecuteReset(ctx context.Context, resetID, password string) (*HandoffResponse, error) {
	ctx, span := s.startSpan(ctx, "ResetService.ExecuteReset")
	defer span.End()

	reset, err := s.loadReset(ctx, resetID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, reset.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load user: %w", err)
	}

	passwordHash, err := pw.Hash(password)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update password: %w", err)
	}

	request, err := s.requests.GetAllocated(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return nil, apiError(CodeNoAllocation)
	}
	app, err := s.auth.apps.GetByID(ctx, request.AppID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load app: %w", err)
	}
	redirectURL, err := s.auth.redeemLoginRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	globalSessionID, err := s.auth.createGlobalSession(ctx, user.ID, "", "")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	token, err := s.auth.mintHandoffToken(ctx, app, globalSessionID)
	if err != nil {
		return nil, err
	}

	// The reset is spent; a second submit must fail.
	if err := s.resets.Delete(ctx, reset.ID); err != nil {
		s.log().Warn("reset delete failed", zap.String("reset_id", reset.ID), zap.Error(err))
	}

	s.auth.audit("reset.executed", "user_id", user.ID, "reset_id", reset.ID)
	return &HandoffResponse{
		Redirect:        redirectURL + token,
		GlobalSessionID: globalSessionID,
	}, nil
}

func (s *ResetService) loadReset(ctx context.Context, resetID string) (domain.Reset, error) {
	if err := ident.ValidateUUID(resetID); err != nil {
		return domain.Reset{}, apiError(CodeInvalidReset)
	}
	reset, err := s.resets.GetByID(ctx, resetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Reset{}, apiError(CodeInvalidReset)
		}
		return domain.Reset{}, fmt.Errorf("load reset: %w", err)
	}
	if reset.IsExpired() {
		return domain.Reset{}, apiError(CodeInvalidReset)
	}
	return reset, nil
}

func (s *ResetService) sendResetMail(ctx context.Context, user domain.User, resetID string) {
	message := queue.Mail{
		Receiver: user.Email,
		Subject:  "Passwort zurücksetzen",
		Template: "reset",
		Variables: map[string]any{
			"preheader":  "",
			"firstname":  user.Forename,
			"expiration": fmt.Sprintf("%d Minuten", int(domain.ResetExpiration.Minutes())),
			"reseturl":   s.cfg.ResetURL + resetID,
		},
	}
	if err := s.publisher.Publish(ctx, queue.QueueMailer, message); err != nil {
		s.log().Warn("reset mail publish failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (s *ResetService) publishResetEvent(ctx context.Context, resetID string) {
	event := queue.UserEvent{Type: queue.QueueResetUser, Reference: resetID}
	if err := s.publisher.Publish(ctx, queue.QueueAllUsers, event); err != nil {
		s.log().Warn("reset event publish failed", zap.String("reset_id", resetID), zap.Error(err))
	}
}

func (s *ResetService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *ResetService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
