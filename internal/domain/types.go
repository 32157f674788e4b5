package domain

import (
	"bytes"
	"fmt"
	"time"
)

// JobStatus is the server-driven lifecycle state of a transcription job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job will not change status again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// User is the profile returned by GET /api/users/me.
type User struct {
	ID               int       `json:"id" yaml:"id"`
	Username         string    `json:"username" yaml:"username"`
	Email            string    `json:"email" yaml:"email"`
	FullName         *string   `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	IsActive         bool      `json:"is_active" yaml:"is_active"`
	SubscriptionTier string    `json:"subscription_tier" yaml:"subscription_tier"`
	CreatedAt        Timestamp `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Transcription is a job record as tracked by the remote service.
type Transcription struct {
	ID                    int        `json:"id" yaml:"id"`
	UserID                int        `json:"user_id" yaml:"user_id"`
	Title                 string     `json:"title" yaml:"title"`
	LanguageCode          string     `json:"language_code" yaml:"language_code"`
	Status                JobStatus  `json:"status" yaml:"status"`
	OriginalFilename      string     `json:"original_filename" yaml:"original_filename"`
	FileSizeBytes         int64      `json:"file_size_bytes" yaml:"file_size_bytes"`
	DurationSeconds       float64    `json:"duration_seconds" yaml:"duration_seconds"`
	FileFormat            string     `json:"file_format" yaml:"file_format"`
	WordCount             int        `json:"word_count" yaml:"word_count"`
	ConfidenceScore       float64    `json:"confidence_score" yaml:"confidence_score"`
	HasSpeakerDiarization bool       `json:"has_speaker_diarization" yaml:"has_speaker_diarization"`
	SpeakerCount          int        `json:"speaker_count" yaml:"speaker_count"`
	CreatedAt             Timestamp  `json:"created_at" yaml:"created_at"`
	ProcessingStartedAt   *Timestamp `json:"processing_started_at,omitempty" yaml:"processing_started_at,omitempty"`
	ProcessingCompletedAt *Timestamp `json:"processing_completed_at,omitempty" yaml:"processing_completed_at,omitempty"`
	ErrorMessage          *string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	IsPublic              bool       `json:"is_public" yaml:"is_public"`
	CustomVocabularyID    *int       `json:"custom_vocabulary_id,omitempty" yaml:"custom_vocabulary_id,omitempty"`
}

// SpeakerSegment is one diarized span of a transcription result.
type SpeakerSegment struct {
	SpeakerID  string  `json:"speaker_id" yaml:"speaker_id"`
	StartTime  float64 `json:"start_time" yaml:"start_time"`
	EndTime    float64 `json:"end_time" yaml:"end_time"`
	Text       string  `json:"text" yaml:"text"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// TranscriptionResult is the output of a completed job.
type TranscriptionResult struct {
	Text            string           `json:"text" yaml:"text"`
	Segments        []SpeakerSegment `json:"segments,omitempty" yaml:"segments,omitempty"`
	LanguageCode    string           `json:"language_code" yaml:"language_code"`
	ConfidenceScore float64          `json:"confidence_score" yaml:"confidence_score"`
	WordCount       int              `json:"word_count" yaml:"word_count"`
	SpeakerCount    int              `json:"speaker_count" yaml:"speaker_count"`
}

// UploadMetadata is the user-editable part of a job submission.
type UploadMetadata struct {
	Title        string
	LanguageCode string
	IsPublic     bool
	VocabularyID *int
}

// AudioResource is a candidate upload: recorded in memory or read from disk.
type AudioResource struct {
	Filename string
	MimeType string
	Data     []byte
}

// Size returns the resource length in bytes.
func (r *AudioResource) Size() int64 {
	if r == nil {
		return 0
	}
	return int64(len(r.Data))
}

// DefaultLanguage is used when the caller does not pick one.
const DefaultLanguage = "en-US"

// Timestamp accepts the datetime layouts the service emits, with or without
// a zone offset.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, string(data)); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", string(data))
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Timestamp) MarshalYAML() (interface{}, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.Format(time.RFC3339), nil
}
