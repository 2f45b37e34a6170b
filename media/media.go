package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bookwhisper/models"
)

// Size ceilings enforced before any storage happens.
const (
	MaxImageBytes = 5 << 20
	MaxVideoBytes = 50 << 20
)

var (
	ErrFileTooLarge      = errors.New("file exceeds the size limit")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

var imageFormats = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

var videoFormats = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
}

// Store persists uploaded media and returns a durable URL for it. A failed
// save must abort the whole send: no message may ever reference media that
// was never stored.
type Store interface {
	Save(fileName string, kind models.MessageKind, size int64, r io.Reader) (string, error)
}

// Validate checks the size ceiling and format allow-list for an upload.
func Validate(fileName string, kind models.MessageKind, size int64) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch kind {
	case models.KindImage:
		if !imageFormats[ext] {
			return ErrUnsupportedFormat
		}
		if size > MaxImageBytes {
			return ErrFileTooLarge
		}
	case models.KindVideo:
		if !videoFormats[ext] {
			return ErrUnsupportedFormat
		}
		if size > MaxVideoBytes {
			return ErrFileTooLarge
		}
	default:
		return fmt.Errorf("kind %q cannot carry a file", kind)
	}
	return nil
}

// DiskStore writes media under Dir and serves it below URLPrefix.
type DiskStore struct {
	Dir       string
	URLPrefix string
}

func (s *DiskStore) Save(fileName string, kind models.MessageKind, size int64, r io.Reader) (string, error) {
	if err := Validate(fileName, kind, size); err != nil {
		return "", err
	}

	sub := "images"
	limit := int64(MaxImageBytes)
	if kind == models.KindVideo {
		sub = "videos"
		limit = MaxVideoBytes
	}

	dir := filepath.Join(s.Dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(fileName))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	// The declared size was already checked; guard the actual stream too.
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = ErrFileTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}

	return s.URLPrefix + "/" + sub + "/" + name, nil
}
