package jobs

import (
	"context"
	"time"

	"github.com/lexiqai/transcribe-client/internal/domain"
)

// Watch polls a job until it reaches a terminal status, ctx ends or a fetch
// fails. onUpdate, if set, sees every fetched record.
func (s *Store) Watch(ctx context.Context, id int, interval time.Duration, onUpdate func(domain.Transcription)) (domain.Transcription, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return job, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Gate decides whether a background refresh may call the service.
type Gate interface {
	Do(fn func() error) error
}

// Refresh re-lists on every interval until ctx ends. Failures are logged and
// left in the stored error; the next tick tries again. A non-nil gate can
// skip ticks while the service keeps failing.
func (s *Store) Refresh(ctx context.Context, interval time.Duration, gate Gate) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	list := func() error {
		_, err := s.List(ctx)
		return err
	}
	for {
		var err error
		if gate != nil {
			err = gate.Do(list)
		} else {
			err = list()
		}
		if err != nil && ctx.Err() == nil {
			s.logger.Debug().Err(err).Msg("Background refresh failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
