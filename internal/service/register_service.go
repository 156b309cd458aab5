package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
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

// RegisterService handles account creation and the double-opt-in activation
// that completes it.
type RegisterService struct {
	auth      *AuthService
	users     repository.UserRepository
	requests  repository.LoginRequestRepository
	publisher queue.Publisher
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewRegisterService wires dependencies.
func NewRegisterService(auth *AuthService, users repository.UserRepository, requests repository.LoginRequestRepository, publisher queue.Publisher, cfg config.Config, logger *zap.Logger) *RegisterService {
	return &RegisterService{
		auth:      auth,
		users:     users,
		requests:  requests,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/isleoflan/sso-server/internal/service"),
	}
}

// RegisterInput is the full registration form.
type RegisterInput struct {
	LoginRequestID string
	Username       string
	Password       string
	Gender         string
	Forename       string
	Lastname       string
	Address        string
	ZipCode        int
	City           string
	BirthDate      string
	Email          string
	Phone          string
}

// Register creates a deactivated user, allocates the login request to it and
// sends the confirmation mail. Field errors are collected and returned
// together, so the frontend can mark every offending field at once.
func (s *RegisterService) Register(ctx context.Context, in RegisterInput) error {
	ctx, span := s.startSpan(ctx, "RegisterService.Register")
	defer span.End()

	request, err := s.auth.loadLoginRequest(ctx, in.LoginRequestID, CodeExpiredGlobalSess)
	if err != nil {
		return err
	}

	var fieldErrors ValidationErrors

	gender, err := domain.ParseGender(in.Gender)
	if err != nil {
		fieldErrors = append(fieldErrors, apiError(CodeInvalidGender))
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		fieldErrors = append(fieldErrors, apiError(CodeInvalidEmail))
	}
	var birthDate *time.Time
	if in.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", in.BirthDate)
		if err != nil {
			fieldErrors = append(fieldErrors, apiError(CodeInvalidBirthDate))
		} else {
			birthDate = &parsed
		}
	}

	// Uniqueness is also checked by the frontend; repeat it here anyway.
	if taken, err := s.users.EmailExists(ctx, email); err != nil {
		span.RecordError(err)
		return fmt.Errorf("check email: %w", err)
	} else if taken {
		fieldErrors = append(fieldErrors, apiError(CodeEmailTaken))
	}
	if taken, err := s.users.UsernameExists(ctx, in.Username); err != nil {
		span.RecordError(err)
		return fmt.Errorf("check username: %w", err)
	} else if taken {
		fieldErrors = append(fieldErrors, apiError(CodeUsernameTaken))
	}

	if len(fieldErrors) > 0 {
		return fieldErrors
	}

	id, err := ident.NewUUID(ctx, s.users.IDExists)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("generate user id: %w", err)
	}
	passwordHash, err := pw.Hash(in.Password)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           id,
		Username:     in.Username,
		PasswordHash: passwordHash,
		Gender:       gender,
		Forename:     in.Forename,
		Lastname:     in.Lastname,
		Address:      in.Address,
		ZipCode:      in.ZipCode,
		City:         in.City,
		BirthDate:    birthDate,
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		Scope:        domain.ScopeBasicUser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return ValidationErrors{apiError(CodeUsernameTaken)}
		}
		span.RecordError(err)
		return fmt.Errorf("persist user: %w", err)
	}

	// Attach the pending login request so activation can resume the
	// original handoff.
	if err := s.requests.Allocate(ctx, request.ID, user.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("allocate login request: %w", err)
	}

	s.publishUserEvent(ctx, queue.QueueNewUser, user.ID)
	s.sendConfirmationMail(ctx, user)

	s.auth.audit("user.registered", "user_id", user.ID, "username", user.Username)
	return nil
}

// Activate completes the double-opt-in: it resolves the confirmation hash,
// marks the user activated, opens a global session and resumes the pending
// handoff.
func (s *RegisterService) Activate(ctx context.Context, hash string) (*HandoffResponse, error) {
	ctx, span := s.startSpan(ctx, "RegisterService.Activate")
	defer span.End()

	user, err := s.users.GetByConfirmationHash(ctx, hash, s.cfg.DOISalt)
	if err != nil {
		span.RecordError(err)
		return nil, apiError(CodeInvalidDOIHash)
	}

	globalSessionID, err := s.auth.createGlobalSession(ctx, user.ID, "", "")
	if err != nil {
		span.RecordError(err)
		return nil, err
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

	if err := s.users.Activate(ctx, user.ID, time.Now().UTC()); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("activate user: %w", err)
	}

	token, err := s.auth.mintHandoffToken(ctx, app, globalSessionID)
	if err != nil {
		return nil, err
	}

	s.auth.audit("user.activated", "user_id", user.ID, "username", user.Username)
	return &HandoffResponse{
		Redirect:        redirectURL + token,
		GlobalSessionID: globalSessionID,
	}, nil
}

// UsernameTaken probes username availability for the registration form.
func (s *RegisterService) UsernameTaken(ctx context.Context, username string) (bool, error) {
	return s.users.UsernameExists(ctx, username)
}

// EmailTaken probes email availability. A malformed address is an error, not
// "available".
func (s *RegisterService) EmailTaken(ctx context.Context, email string) (bool, error) {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(normalized); err != nil {
		return false, apiError(CodeInvalidEmail)
	}
	return s.users.EmailExists(ctx, normalized)
}

// ConfirmationHash derives the double-opt-in hash mailed to the user.
func ConfirmationHash(username, salt string) string {
	sum := md5.Sum([]byte(username + salt))
	return hex.EncodeToString(sum[:])
}

func (s *RegisterService) sendConfirmationMail(ctx context.Context, user domain.User) {
	message := queue.Mail{
		Receiver: user.Email,
		Subject:  "Bestätige deine E-Mail Adresse",
		Template: "register",
		Variables: map[string]any{
			"preheader":    "Aktiviere jetzt deinen Account, um dir ein Ticket für die nächste Isle of LAN zu sichern.",
			"firstname":    user.Forename,
			"activatelink": s.cfg.RegisterDOIURL + ConfirmationHash(user.Username, s.cfg.DOISalt),
		},
	}
	if err := s.publisher.Publish(ctx, queue.QueueMailer, message); err != nil {
		s.log().Warn("confirmation mail publish failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (s *RegisterService) publishUserEvent(ctx context.Context, eventType, reference string) {
	event := queue.UserEvent{Type: eventType, Reference: reference}
	if err := s.publisher.Publish(ctx, queue.QueueAllUsers, event); err != nil {
		s.log().Warn("user event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

func (s *RegisterService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *RegisterService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
