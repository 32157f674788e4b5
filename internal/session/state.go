package session

import "github.com/lexiqai/transcribe-client/internal/domain"

// State is a point-in-time view of the session.
type State struct {
	Token           string       `json:"-"`
	User            *domain.User `json:"user,omitempty"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	Loading         bool         `json:"loading"`
	Error           string       `json:"error,omitempty"`
}

// HasToken reports whether a credential is held.
func (s State) HasToken() bool {
	return s.Token != ""
}

type event interface{}

// failureOutcome says what a failed operation does to the held session.
type failureOutcome int

const (
	keepSession failureOutcome = iota
	// expireSession keeps the credential but is no longer authenticated.
	expireSession
	// dropSession discards the credential and identity.
	dropSession
)

type (
	started       struct{}
	authenticated struct {
		token string
		user  domain.User
	}
	registered    struct{}
	profileLoaded struct{ user domain.User }
	failed        struct {
		message string
		outcome failureOutcome
	}
	loggedOut    struct{}
	errorCleared struct{}
)

// reduce applies one event. It never mutates its input.
func reduce(s State, e event) State {
	switch e := e.(type) {
	case started:
		s.Loading = true
		s.Error = ""

	case authenticated:
		user := e.user
		s.Loading = false
		s.Token = e.token
		s.User = &user
		s.IsAuthenticated = true

	case registered:
		s.Loading = false

	case profileLoaded:
		user := e.user
		s.Loading = false
		s.User = &user
		s.IsAuthenticated = s.Token != ""

	case failed:
		s.Loading = false
		s.Error = e.message
		switch e.outcome {
		case expireSession:
			s.IsAuthenticated = false
		case dropSession:
			s.Token = ""
			s.User = nil
			s.IsAuthenticated = false
		}

	case loggedOut:
		s = State{}

	case errorCleared:
		s.Error = ""
	}
	return s
}
