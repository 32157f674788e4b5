package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lexiqai/transcribe-client/internal/domain"
)

// FromFile reads an audio file into memory. The mime type is sniffed from the
// content unless mimeOverride is set. Files over MaxFileSize are rejected
// before reading.
func FromFile(path, mimeOverride string) (*domain.AudioResource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, domain.NewValidationError(msgNoFile)
	}
	if info.Size() > MaxFileSize {
		return nil, domain.NewValidationError(msgTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	mimeType := mimeOverride
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}

	return &domain.AudioResource{
		Filename: filepath.Base(path),
		MimeType: NormalizeMimeType(mimeType),
		Data:     data,
	}, nil
}

// TitleFromFilename derives a default title by dropping the extension.
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
