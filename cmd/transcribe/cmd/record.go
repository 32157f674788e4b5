package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lexiqai/transcribe-client/internal/audio"
	"github.com/lexiqai/transcribe-client/internal/audio/portaudio"
	"github.com/lexiqai/transcribe-client/internal/events"
)

func newRecordCmd(opts *rootOptions) *cobra.Command {
	var flags submitFlags
	var maxDuration time.Duration
	var autoSubmit bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone and submit the recording",
		Long: `Record from the default microphone.

Press Enter to stop. Afterwards the recording can be played back, submitted,
recorded again or discarded. Untitled recordings are named after the time
recording stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.app.cfg
			rec := audio.NewRecorder(
				portaudio.NewMicrophone(cfg.AudioFramesPerBuffer),
				portaudio.NewSpeaker(cfg.AudioFramesPerBuffer),
				audio.WithFormat(audio.Format{SampleRate: cfg.AudioSampleRate, Channels: cfg.AudioChannels}),
				audio.WithSilenceThreshold(cfg.SilenceThreshold),
				audio.WithPublisher(opts.app.bus),
			)
			defer rec.Close()

			take := audio.NewTake(rec)
			take.Metadata = flags.metadata(cmd)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			s := &recordSession{
				cmd:   cmd,
				opts:  opts,
				bus:   opts.app.bus,
				take:  take,
				lines: readLines(ctx, cmd.InOrStdin()),
				out:   cmd.ErrOrStderr(),
			}
			return s.run(ctx, maxDuration, autoSubmit, flags.wait)
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVarP(&maxDuration, "duration", "d", 0, "stop automatically after this long")
	cmd.Flags().BoolVar(&autoSubmit, "submit", false, "submit as soon as recording stops")
	return cmd
}

type recordSession struct {
	cmd   *cobra.Command
	opts  *rootOptions
	bus   *events.Bus
	take  *audio.Take
	lines <-chan string
	eof   bool
	out   io.Writer
}

func (s *recordSession) run(ctx context.Context, maxDuration time.Duration, autoSubmit, wait bool) error {
	rec := s.take.Recorder
	for {
		if err := s.record(ctx, maxDuration); err != nil {
			return err
		}
		if autoSubmit {
			return s.submit(wait)
		}

	menu:
		for {
			answer, err := s.ask(ctx, "[p]lay, [s]ubmit, [r]ecord again, [d]iscard: ")
			if err != nil {
				return err
			}
			switch strings.ToLower(answer) {
			case "p", "play":
				if err := s.play(ctx); err != nil {
					return err
				}
			case "s", "submit":
				return s.submit(wait)
			case "r", "record":
				break menu
			case "d", "discard":
				if err := rec.Delete(); err != nil {
					return err
				}
				fmt.Fprintln(s.out, "Recording discarded")
				return nil
			default:
				fmt.Fprintf(s.out, "Unknown choice %q\n", answer)
			}
		}
	}
}

func (s *recordSession) record(ctx context.Context, maxDuration time.Duration) error {
	rec := s.take.Recorder
	if err := rec.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Recording... press Enter to stop")

	err := s.await(ctx, maxDuration, func(ev events.Event) bool {
		switch ev.Type {
		case events.TypeTick:
			fmt.Fprintf(s.out, "\r%s ", formatClock(ev.Elapsed))
		case events.TypeState:
			return ev.State == audio.StateStopped.String()
		}
		return false
	})
	fmt.Fprintln(s.out)
	if err != nil {
		return err
	}

	if rec.Snapshot().State == audio.StateRecording {
		if err := s.take.Stop(); err != nil {
			return err
		}
	} else if strings.TrimSpace(s.take.Metadata.Title) == "" {
		s.take.Metadata.Title = audio.DefaultTitle(time.Now())
	}

	snap := rec.Snapshot()
	fmt.Fprintf(s.out, "Recorded %s (%s) as %q\n",
		formatClock(snap.ElapsedSeconds), humanize.Bytes(uint64(snap.BufferSize)), s.take.Metadata.Title)
	if snap.LastError != "" {
		fmt.Fprintln(s.out, snap.LastError)
	}
	return nil
}

func (s *recordSession) play(ctx context.Context) error {
	rec := s.take.Recorder
	if err := rec.Play(ctx); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Playing... press Enter to stop")

	err := s.await(ctx, 0, func(ev events.Event) bool {
		return ev.Type == events.TypeState && ev.State == audio.StateStopped.String()
	})
	if err != nil {
		return err
	}
	if rec.Snapshot().State == audio.StatePlaying {
		return rec.Pause()
	}
	return nil
}

func (s *recordSession) submit(wait bool) error {
	resource, err := s.take.Resource()
	if err != nil {
		return err
	}
	return submit(s.cmd, s.opts, resource, s.take.Metadata, wait)
}

// await blocks until a line is entered, limit elapses, ctx ends or done
// reports true for a recorder event.
func (s *recordSession) await(ctx context.Context, limit time.Duration, done func(events.Event) bool) error {
	var timeout <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timeout = timer.C
	}

	seq := s.bus.LastSeq()
	for {
		lines := s.lines
		if s.eof {
			lines = nil
		}
		wake := s.bus.Wait()
		for _, ev := range s.bus.Since(seq) {
			seq = ev.Seq
			if ev.Source == events.SourceRecorder && done(ev) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return nil
		case _, ok := <-lines:
			if !ok {
				s.eof = true
				if limit > 0 {
					continue
				}
			}
			return nil
		case <-wake:
		}
	}
}

func (s *recordSession) ask(ctx context.Context, question string) (string, error) {
	if s.eof {
		return "", errNoInput
	}
	fmt.Fprint(s.out, question)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			s.eof = true
			return "", errNoInput
		}
		return line, nil
	}
}

// readLines delivers trimmed input lines until r is exhausted or ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func formatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
