package cmd

import (
	"errors"
	"fmt"

	"github.com/lexiqai/transcribe-client/internal/api"
	"github.com/lexiqai/transcribe-client/internal/config"
	"github.com/lexiqai/transcribe-client/internal/domain"
	"github.com/lexiqai/transcribe-client/internal/events"
	"github.com/lexiqai/transcribe-client/internal/jobs"
	"github.com/lexiqai/transcribe-client/internal/session"
	"github.com/lexiqai/transcribe-client/internal/upload"
)

const eventHistory = 500

// app holds the components one command invocation works with.
type app struct {
	cfg     *config.Config
	client  *api.Client
	bus     *events.Bus
	session *session.Manager
	jobs    *jobs.Store
	uploads *upload.Coordinator
}

func newApp(cfg *config.Config) (*app, error) {
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	tokenPath, err := cfg.TokenPath()
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(eventHistory)
	mgr := session.NewManager(client, session.NewFileTokenStore(tokenPath), session.WithPublisher(bus))
	store := jobs.NewStore(client, mgr, jobs.WithPublisher(bus))
	uploads := upload.NewCoordinator(client, mgr,
		upload.WithSink(store),
		upload.WithPublisher(bus),
	)

	return &app{
		cfg:     cfg,
		client:  client,
		bus:     bus,
		session: mgr,
		jobs:    store,
		uploads: uploads,
	}, nil
}

// userMessage prefers the user-facing message of a classified error.
func userMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		if de.Kind == domain.KindAuth {
			return fmt.Sprintf("%s (run `transcribe login`)", de.Message)
		}
		return de.Message
	}
	return err.Error()
}
