package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isleoflan/sso-server/internal/queue"
)

func validRegisterInput(loginRequestID string) RegisterInput {
	return RegisterInput{
		LoginRequestID: loginRequestID,
		Username:       "carol",
		Password:       "correct horse battery staple",
		Gender:         "female",
		Forename:       "Carol",
		Lastname:       "Neumann",
		Address:        "Musterstrasse 1",
		ZipCode:        8001,
		City:           "Zürich",
		BirthDate:      "2001-07-15",
		Email:          "Carol@Example.com",
		Phone:          "+41 79 000 00 00",
	}
}

func TestRegisterCreatesDeactivatedUser(t *testing.T) {
	env := newTestEnv(t)
	requestID, _ := env.newLoginRequest(t)

	require.NoError(t, env.register.Register(context.Background(), validRegisterInput(requestID)))

	user, err := env.users.GetByUsernameOrEmail(context.Background(), "carol")
	require.NoError(t, err)
	require.False(t, user.IsActivated())
	require.Equal(t, "carol@example.com", user.Email)
	require.NotEqual(t, "correct horse battery staple", user.PasswordHash)

	// The pending login request is attached so activation can resume it.
	allocated, err := env.requests.GetAllocated(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, requestID, allocated.ID)

	events := env.publisher.byQueue(queue.QueueAllUsers)
	require.Len(t, events, 1)
	event, ok := events[0].Payload.(queue.UserEvent)
	require.True(t, ok)
	require.Equal(t, queue.QueueNewUser, event.Type)
	require.Equal(t, user.ID, event.Reference)

	mails := env.publisher.byQueue(queue.QueueMailer)
	require.Len(t, mails, 1)
	mail, ok := mails[0].Payload.(queue.Mail)
	require.True(t, ok)
	require.Equal(t, user.Email, mail.Receiver)
	require.Equal(t, "register", mail.Template)
	link, ok := mail.Variables["activatelink"].(string)
	require.True(t, ok)
	require.Equal(t, env.cfg.RegisterDOIURL+ConfirmationHash("carol", env.cfg.DOISalt), link)
}

func TestRegisterCollectsAllFieldErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "carol", "carol@example.com")
	requestID, _ := env.newLoginRequest(t)

	in := validRegisterInput(requestID)
	in.Gender = "none"
	in.Email = "carol@example.com" // taken
	in.BirthDate = "15.07.2001"

	err := env.register.Register(context.Background(), in)
	require.Error(t, err)

	var fieldErrors ValidationErrors
	require.ErrorAs(t, err, &fieldErrors)

	codes := make([]int, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		codes = append(codes, fe.Code)
	}
	require.ElementsMatch(t, []int{CodeInvalidGender, CodeInvalidBirthDate, CodeEmailTaken, CodeUsernameTaken}, codes)
	require.Empty(t, env.publisher.messages)
}

func TestRegisterRequiresLoginRequest(t *testing.T) {
	env := newTestEnv(t)

	err := env.register.Register(context.Background(), validRegisterInput("99999999-9999-4999-8999-999999999999"))
	requireCode(t, err, CodeExpiredGlobalSess)
}

func TestActivateResumesHandoff(t *testing.T) {
	env := newTestEnv(t)
	requestID, redirectURL := env.newLoginRequest(t)
	require.NoError(t, env.register.Register(context.Background(), validRegisterInput(requestID)))

	hash := ConfirmationHash("carol", env.cfg.DOISalt)
	resp, err := env.register.Activate(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(resp.Redirect, redirectURL))
	require.NotEmpty(t, resp.GlobalSessionID)

	user, err := env.users.GetByUsernameOrEmail(context.Background(), "carol")
	require.NoError(t, err)
	require.True(t, user.IsActivated())

	// The login request was redeemed; the handoff token completes the
	// exchange like any credential login would.
	_, err = env.requests.GetByID(context.Background(), requestID)
	require.Error(t, err)

	token := strings.TrimPrefix(resp.Redirect, redirectURL)
	tokens, err := env.auth.Exchange(context.Background(), token)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)

	// The activated account can now log in with its registration password.
	nextRequest, _ := env.newLoginRequest(t)
	login, err := env.auth.Login(context.Background(), LoginInput{
		LoginRequestID: nextRequest,
		Username:       "carol",
		Password:       "correct horse battery staple",
	})
	require.NoError(t, err)
	require.NotEmpty(t, login.GlobalSessionID)
}

func TestActivateRejectsUnknownHash(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.register.Activate(context.Background(), "0123456789abcdef0123456789abcdef")
	requireCode(t, err, CodeInvalidDOIHash)
}

func TestUsernameAndEmailProbes(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@example.com")

	taken, err := env.register.UsernameTaken(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, taken)

	taken, err = env.register.UsernameTaken(context.Background(), "carol")
	require.NoError(t, err)
	require.False(t, taken)

	taken, err = env.register.EmailTaken(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	require.True(t, taken)

	_, err = env.register.EmailTaken(context.Background(), "not-an-address")
	requireCode(t, err, CodeInvalidEmail)
}
