package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lexiqai/transcribe-client/internal/domain"
	"github.com/lexiqai/transcribe-client/internal/upload"
)

type submitFlags struct {
	title      string
	language   string
	public     bool
	vocabulary int
	wait       bool
}

func (f *submitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "job title")
	cmd.Flags().StringVarP(&f.language, "language", "l", domain.DefaultLanguage, "language code of the audio")
	cmd.Flags().BoolVar(&f.public, "public", false, "make the transcription public")
	cmd.Flags().IntVar(&f.vocabulary, "vocabulary", 0, "custom vocabulary id")
	cmd.Flags().BoolVarP(&f.wait, "wait", "w", false, "wait for the job to finish and print the transcript")
}

func (f *submitFlags) metadata(cmd *cobra.Command) domain.UploadMetadata {
	meta := domain.UploadMetadata{
		Title:        f.title,
		LanguageCode: f.language,
		IsPublic:     f.public,
	}
	if cmd.Flags().Changed("vocabulary") {
		id := f.vocabulary
		meta.VocabularyID = &id
	}
	return meta
}

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var flags submitFlags
	var mimeType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an audio file for transcription",
		Long: `Upload an audio file for transcription.

Accepted formats: WAV, MP3, M4A, FLAC and OGG, up to 100MB.
The title defaults to the file name without its extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resource, err := upload.FromFile(args[0], mimeType)
			if err != nil {
				return err
			}

			meta := flags.metadata(cmd)
			if meta.Title == "" {
				meta.Title = upload.TitleFromFilename(filepath.Base(args[0]))
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Uploading %s (%s, %s)\n",
				resource.Filename, resource.MimeType, humanize.Bytes(uint64(resource.Size())))
			return submit(cmd, opts, resource, meta, flags.wait)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&mimeType, "mime", "", "override the detected content type")
	return cmd
}

// submit sends resource through the coordinator with a progress bar, then
// optionally waits for the job and prints the transcript.
func submit(cmd *cobra.Command, opts *rootOptions, resource *domain.AudioResource, meta domain.UploadMetadata, wait bool) error {
	uploads := opts.app.uploads
	bar := newUploadBar(cmd.ErrOrStderr(), resource.Filename)
	uploads.OnProgress(bar.Set)
	defer uploads.Close()

	job, err := uploads.Submit(cmd.Context(), resource, meta)
	bar.Finish(err == nil)
	if err != nil {
		return err
	}

	if !wait {
		return renderJob(cmd.OutOrStdout(), opts.output, job)
	}

	job, err = watchJob(cmd, opts, job.ID, opts.app.cfg.WatchIntervalDuration())
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusCompleted {
		return renderJob(cmd.OutOrStdout(), opts.output, job)
	}
	result, err := opts.app.jobs.Result(cmd.Context(), job.ID)
	if err != nil {
		return err
	}
	return renderResult(cmd.OutOrStdout(), opts.output, result)
}
