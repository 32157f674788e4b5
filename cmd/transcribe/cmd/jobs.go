package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lexiqai/transcribe-client/internal/domain"
)

func newJobsCmd(opts *rootOptions) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"transcriptions"},
		Short:   "List and manage transcription jobs",
	}

	jobsCmd.AddCommand(
		newJobsListCmd(opts),
		newJobsGetCmd(opts),
		newJobsResultCmd(opts),
		newJobsDeleteCmd(opts),
		newJobsWatchCmd(opts),
	)
	return jobsCmd
}

func parseJobID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func newJobsListCmd(opts *rootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your transcriptions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.app.jobs.List(cmd.Context())
			if err != nil {
				return err
			}
			if status != "" {
				list = lo.Filter(list, func(job domain.Transcription, _ int) bool {
					return string(job.Status) == status
				})
			}
			return renderJobs(cmd.OutOrStdout(), opts.output, list)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show jobs in this status (pending, processing, completed, failed)")
	return cmd
}

func newJobsGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one transcription job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			job, err := opts.app.jobs.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderJob(cmd.OutOrStdout(), opts.output, job)
		},
	}
}

func newJobsResultCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "result <id>",
		Short: "Print the transcript of a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			result, err := opts.app.jobs.Result(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderResult(cmd.OutOrStdout(), opts.output, result)
		},
	}
}

func newJobsDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a transcription job",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := newPrompter(cmd).confirm(fmt.Sprintf("Delete transcription %d?", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}
			if err := opts.app.jobs.Remove(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted transcription %d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newJobsWatchCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Poll a job until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = opts.app.cfg.WatchIntervalDuration()
			}
			job, err := watchJob(cmd, opts, id, interval)
			if err != nil {
				return err
			}
			return renderJob(cmd.OutOrStdout(), opts.output, job)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from WATCH_INTERVAL)")
	return cmd
}

// watchJob polls id and reports each status change on stderr.
func watchJob(cmd *cobra.Command, opts *rootOptions, id int, interval time.Duration) (domain.Transcription, error) {
	var last domain.JobStatus
	return opts.app.jobs.Watch(cmd.Context(), id, interval, func(job domain.Transcription) {
		if job.Status != last {
			fmt.Fprintf(cmd.ErrOrStderr(), "Job %d: %s\n", job.ID, job.Status)
			last = job.Status
		}
	})
}
