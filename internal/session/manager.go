package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-client/internal/api"
	"github.com/lexiqai/transcribe-client/internal/domain"
	"github.com/lexiqai/transcribe-client/internal/events"
	"github.com/lexiqai/transcribe-client/internal/observability"
)

const (
	msgAuthFailed         = "Authentication failed"
	msgRegisterFailed     = "Registration failed"
	msgProfileFailed      = "Failed to fetch user profile"
	msgNoToken            = "No authentication token"
	msgPasswordMismatch   = "Passwords do not match"
	msgPasswordTooShort   = "Password must be at least 8 characters long"
	msgInvalidEmail       = "Please enter a valid email address"
	msgRequiredFields     = "Username, email and password are required"
	minimumPasswordLength = 8
)

// AuthAPI is the slice of the remote contract the session needs.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (string, error)
	Me(ctx context.Context, token string) (domain.User, error)
	Register(ctx context.Context, in api.RegisterRequest) (domain.User, error)
}

// Registration is the sign-up form.
type Registration struct {
	Username        string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required"`
	ConfirmPassword string
	FullName        string
}

// Manager owns the credential and the current identity.
type Manager struct {
	mu        sync.Mutex
	state     State
	api       AuthAPI
	store     TokenStore
	validate  *validator.Validate
	publisher events.Publisher
	logger    zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher sends session state changes to p.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// NewManager creates a session and rehydrates the credential from store.
// The identity is not known until FetchProfile succeeds.
func NewManager(client AuthAPI, store TokenStore, opts ...Option) *Manager {
	m := &Manager{
		api:       client,
		store:     store,
		validate:  validator.New(),
		publisher: events.Discard,
		logger:    observability.WithComponent("session"),
	}
	for _, opt := range opts {
		opt(m)
	}

	token, err := store.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to load stored token")
	}
	m.state.Token = token

	return m
}

// State returns a copy of the current session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the credential or "".
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Token
}

// ClearError drops the stored error message.
func (m *Manager) ClearError() {
	m.apply(errorCleared{})
}

// Login authenticates, persists the token and loads the profile. The session
// is authenticated only when both calls succeed.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	logger := observability.WithCorrelationID(m.logger, "").With().Str("operation", "login").Logger()
	m.apply(started{})

	token, err := m.api.Login(ctx, username, password)
	if err != nil {
		return m.fail(logger, domain.NewNetworkError(api.DetailOr(err, msgAuthFailed), err), keepSession)
	}

	if err := m.store.Save(token); err != nil {
		logger.Error().Err(err).Msg("Failed to persist token")
		return m.fail(logger, domain.NewNetworkError(msgAuthFailed, err), keepSession)
	}

	user, err := m.api.Me(ctx, token)
	if err != nil {
		// The stored token was replaced, so any earlier session is gone too.
		if clearErr := m.store.Clear(); clearErr != nil {
			logger.Warn().Err(clearErr).Msg("Failed to clear token after profile failure")
		}
		return m.fail(logger, domain.NewNetworkError(api.DetailOr(err, msgAuthFailed), err), dropSession)
	}

	m.apply(authenticated{token: token, user: user})
	logger.Info().Int("user_id", user.ID).Msg("Logged in")
	return nil
}

// Register validates the form locally and creates the account. It does not
// log the user in.
func (m *Manager) Register(ctx context.Context, form Registration) (domain.User, error) {
	logger := observability.WithCorrelationID(m.logger, "").With().Str("operation", "register").Logger()
	m.apply(started{})

	if msg := m.checkRegistration(form); msg != "" {
		return domain.User{}, m.fail(logger, domain.NewValidationError(msg), keepSession)
	}

	req := api.RegisterRequest{
		Username: strings.TrimSpace(form.Username),
		Email:    strings.TrimSpace(form.Email),
		Password: form.Password,
	}
	if name := strings.TrimSpace(form.FullName); name != "" {
		req.FullName = &name
	}

	user, err := m.api.Register(ctx, req)
	if err != nil {
		return domain.User{}, m.fail(logger, domain.NewNetworkError(api.DetailOr(err, msgRegisterFailed), err), keepSession)
	}

	m.apply(registered{})
	logger.Info().Int("user_id", user.ID).Msg("Registered")
	return user, nil
}

// FetchProfile reloads the identity for the held credential. A failure marks
// the session as no longer authenticated.
func (m *Manager) FetchProfile(ctx context.Context) (domain.User, error) {
	logger := observability.WithCorrelationID(m.logger, "").With().Str("operation", "fetch_profile").Logger()
	m.apply(started{})

	token := m.Token()
	if token == "" {
		return domain.User{}, m.fail(logger, domain.NewAuthError(msgNoToken), expireSession)
	}

	user, err := m.api.Me(ctx, token)
	if err != nil {
		return domain.User{}, m.fail(logger, domain.NewNetworkError(api.DetailOr(err, msgProfileFailed), err), expireSession)
	}

	m.apply(profileLoaded{user: user})
	return user, nil
}

// Logout clears the persisted and in-memory credential. It never calls the
// service.
func (m *Manager) Logout() error {
	err := m.store.Clear()
	m.apply(loggedOut{})
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to remove stored token")
	}
	m.logger.Info().Msg("Logged out")
	return err
}

func (m *Manager) checkRegistration(form Registration) string {
	if err := m.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "required" {
					return msgRequiredFields
				}
			}
			return msgInvalidEmail
		}
		return err.Error()
	}
	if form.Password != form.ConfirmPassword {
		return msgPasswordMismatch
	}
	if utf8.RuneCountInString(form.Password) < minimumPasswordLength {
		return msgPasswordTooShort
	}
	return ""
}

func (m *Manager) fail(logger zerolog.Logger, err *domain.Error, outcome failureOutcome) error {
	m.apply(failed{message: err.Message, outcome: outcome})
	observability.RecordError(string(err.Kind), "session")
	logger.Warn().Err(err).Str("kind", string(err.Kind)).Msg("Session operation failed")
	return err
}

func (m *Manager) apply(e event) {
	m.mu.Lock()
	m.state = reduce(m.state, e)
	snapshot := m.state
	m.mu.Unlock()

	ev := events.Event{Source: events.SourceSession, Type: events.TypeState, Message: snapshot.Error}
	if snapshot.IsAuthenticated {
		ev.State = "authenticated"
	} else {
		ev.State = "anonymous"
	}
	if _, ok := e.(failed); ok {
		ev.Type = events.TypeError
	}
	m.publisher.Publish(ev)
}
