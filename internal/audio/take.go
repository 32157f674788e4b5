package audio

import (
	"strings"
	"time"

	"github.com/lexiqai/transcribe-client/internal/domain"
)

// Take pairs a recorder with the metadata the recording will be submitted
// under.
type Take struct {
	Recorder *Recorder
	Metadata domain.UploadMetadata

	now func() time.Time
}

// NewTake creates a take with the default language.
func NewTake(r *Recorder) *Take {
	return &Take{
		Recorder: r,
		Metadata: domain.UploadMetadata{LanguageCode: domain.DefaultLanguage},
		now:      time.Now,
	}
}

// Stop finalizes the recording and fills a timestamped title if none was set.
func (t *Take) Stop() error {
	untitled := strings.TrimSpace(t.Metadata.Title) == ""
	if err := t.Recorder.Stop(); err != nil {
		return err
	}
	if untitled {
		t.Metadata.Title = DefaultTitle(t.now())
	}
	return nil
}

// Resource returns the recording named after the title.
func (t *Take) Resource() (*domain.AudioResource, error) {
	res, err := t.Recorder.Recording()
	if err != nil {
		return nil, err
	}
	if name := sanitizeFilename(t.Metadata.Title); name != "" {
		res.Filename = name + ".wav"
	}
	return res, nil
}

// DefaultTitle is the title given to recordings the user did not name.
func DefaultTitle(ts time.Time) string {
	return "Recording " + ts.Format("2006-01-02 15:04:05")
}

func sanitizeFilename(title string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
}
