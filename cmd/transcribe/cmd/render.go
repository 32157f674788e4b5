package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/lexiqai/transcribe-client/internal/domain"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// render writes v as JSON or YAML, or calls table for the human format.
func render(w io.Writer, format string, v interface{}, table func(*tabwriter.Writer)) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
}

func renderJobs(w io.Writer, format string, list []domain.Transcription) error {
	return render(w, format, list, func(tw *tabwriter.Writer) {
		if len(list) == 0 {
			fmt.Fprintln(tw, "No transcriptions yet.")
			return
		}
		fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tLANGUAGE\tSIZE\tDURATION\tCREATED")
		for _, job := range list {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				job.ID,
				truncate(job.Title, 40),
				job.Status,
				job.LanguageCode,
				humanize.Bytes(uint64(job.FileSizeBytes)),
				formatDuration(job.DurationSeconds),
				formatTime(job.CreatedAt),
			)
		}
	})
}

func renderJob(w io.Writer, format string, job domain.Transcription) error {
	return render(w, format, job, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID:\t%d\n", job.ID)
		fmt.Fprintf(tw, "Title:\t%s\n", job.Title)
		fmt.Fprintf(tw, "Status:\t%s\n", job.Status)
		fmt.Fprintf(tw, "Language:\t%s\n", job.LanguageCode)
		fmt.Fprintf(tw, "File:\t%s (%s, %s)\n", job.OriginalFilename, job.FileFormat, humanize.Bytes(uint64(job.FileSizeBytes)))
		fmt.Fprintf(tw, "Duration:\t%s\n", formatDuration(job.DurationSeconds))
		fmt.Fprintf(tw, "Public:\t%t\n", job.IsPublic)
		fmt.Fprintf(tw, "Created:\t%s\n", formatTime(job.CreatedAt))
		if job.Status == domain.JobStatusCompleted {
			fmt.Fprintf(tw, "Words:\t%s\n", humanize.Comma(int64(job.WordCount)))
			fmt.Fprintf(tw, "Confidence:\t%.0f%%\n", job.ConfidenceScore*100)
			if job.HasSpeakerDiarization {
				fmt.Fprintf(tw, "Speakers:\t%d\n", job.SpeakerCount)
			}
		}
		if job.ErrorMessage != nil && *job.ErrorMessage != "" {
			fmt.Fprintf(tw, "Error:\t%s\n", *job.ErrorMessage)
		}
	})
}

func renderResult(w io.Writer, format string, result domain.TranscriptionResult) error {
	return render(w, format, result, func(tw *tabwriter.Writer) {
		if len(result.Segments) == 0 {
			fmt.Fprintln(tw, result.Text)
			return
		}
		for _, seg := range result.Segments {
			fmt.Fprintf(tw, "[%s - %s]\t%s:\t%s\n",
				formatOffset(seg.StartTime), formatOffset(seg.EndTime), seg.SpeakerID, seg.Text)
		}
	})
}

func renderUser(w io.Writer, format string, user domain.User) error {
	return render(w, format, user, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Username:\t%s\n", user.Username)
		fmt.Fprintf(tw, "Email:\t%s\n", user.Email)
		if user.FullName != nil && *user.FullName != "" {
			fmt.Fprintf(tw, "Name:\t%s\n", *user.FullName)
		}
		fmt.Fprintf(tw, "Plan:\t%s\n", user.SubscriptionTier)
		if !user.CreatedAt.IsZero() {
			fmt.Fprintf(tw, "Member since:\t%s\n", user.CreatedAt.Format("2006-01-02"))
		}
	})
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatOffset(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func formatTime(ts domain.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return humanize.Time(ts.Time)
}

func yesNo(prompt string) string {
	return strings.TrimSpace(prompt) + " [y/N] "
}
