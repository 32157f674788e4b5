package upload

import (
	"strings"

	"github.com/lexiqai/transcribe-client/internal/domain"
)

// MaxFileSize is the largest accepted upload, 100 MiB.
const MaxFileSize int64 = 100 * 1024 * 1024

const (
	msgNoFile      = "Please select an audio file to upload."
	msgInvalidType = "Invalid file type. Please upload an audio file (MP3, WAV, M4A, FLAC, OGG)."
	msgTooLarge    = "File is too large. Maximum size is 100MB."
	msgNoTitle     = "Title is required."
)

var allowedTypes = map[string]struct{}{
	"audio/mp3":  {},
	"audio/wav":  {},
	"audio/mpeg": {},
	"audio/ogg":  {},
	"audio/m4a":  {},
	"audio/flac": {},
}

// aliases maps the spellings content sniffers and browsers emit onto the
// accepted set.
var aliases = map[string]string{
	"audio/x-wav":  "audio/wav",
	"audio/wave":   "audio/wav",
	"audio/x-m4a":  "audio/m4a",
	"audio/mp4":    "audio/m4a",
	"audio/x-flac": "audio/flac",
	"audio/x-mp3":  "audio/mp3",
}

// NormalizeMimeType lowercases, strips parameters and resolves aliases.
func NormalizeMimeType(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if canonical, ok := aliases[mt]; ok {
		return canonical
	}
	return mt
}

// IsAllowedType reports whether mimeType is an accepted audio format.
func IsAllowedType(mimeType string) bool {
	_, ok := allowedTypes[NormalizeMimeType(mimeType)]
	return ok
}

// Validate checks a submission locally. Checks run in a fixed order and the
// first failure wins.
func Validate(resource *domain.AudioResource, meta domain.UploadMetadata) error {
	if resource == nil || len(resource.Data) == 0 {
		return domain.NewValidationError(msgNoFile)
	}
	if !IsAllowedType(resource.MimeType) {
		return domain.NewValidationError(msgInvalidType)
	}
	if resource.Size() > MaxFileSize {
		return domain.NewValidationError(msgTooLarge)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return domain.NewValidationError(msgNoTitle)
	}
	return nil
}
