package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/transcribe-client/internal/domain"
)

func TestRenderJobs_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderJobs(&buf, outputTable, nil))
	assert.Contains(t, buf.String(), "No transcriptions yet.")
}

func TestRenderJob_FailedShowsError(t *testing.T) {
	msg := "Unsupported codec"
	job := domain.Transcription{ID: 4, Title: "Broken", Status: domain.JobStatusFailed, ErrorMessage: &msg}

	var buf bytes.Buffer
	require.NoError(t, renderJob(&buf, outputTable, job))
	assert.Contains(t, buf.String(), "Unsupported codec")
	assert.NotContains(t, buf.String(), "Words:")
}

func TestRenderResult_PlainText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderResult(&buf, outputTable, domain.TranscriptionResult{Text: "just text"}))
	assert.Equal(t, "just text\n", buf.String())
}

func TestRenderUser_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderUser(&buf, outputYAML, domain.User{Username: "alice", Email: "a@example.com"}))
	assert.Contains(t, buf.String(), "username: alice")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "2:00", formatDuration(119.6))
	assert.Equal(t, "01:05", formatClock(65))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "short", truncate("short", 5))
}
