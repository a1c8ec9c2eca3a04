package storage

import (
	"context"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"

	"github.com/adminbjkai/img2/models"
)

// DefaultOriginalName is recorded when the client sends no file name.
const DefaultOriginalName = "clipboard"

var namePolicy = bluemonday.StrictPolicy()

// UploadInput is an upload as received from a client. Empty strings mean the
// value was not supplied.
type UploadInput struct {
	Data        []byte
	Filename    string
	ContentType string
	DeleteAfter string
}

// Service is the boundary used by the HTTP layer: it resolves the type and
// deadline of an upload and delegates persistence to the ContentStore.
type Service struct {
	store   *ContentStore
	maxSize int64
}

// NewService serves uploads up to maxSize bytes from store.
func NewService(store *ContentStore, maxSize int64) *Service {
	return &Service{store: store, maxSize: maxSize}
}

// MaxSize returns the upload size limit in bytes.
func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// Upload validates and stores one image.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Image, error) {
	if s.maxSize > 0 && int64(len(in.Data)) > s.maxSize {
		return nil, ErrTooLarge
	}
	ext, ok := ResolveExtension(in.Filename, in.ContentType)
	if !ok {
		return nil, ErrUnsupportedType
	}
	return s.store.Put(ctx, Upload{
		Data:         in.Data,
		Extension:    ext,
		MimeType:     detectMime(in.Data, in.ContentType, ext),
		OriginalName: originalName(in.Filename),
		DeleteAt:     ParseDeleteAfter(in.DeleteAfter, s.store.Now()),
	}, s.maxSize)
}

// Fetch returns the bytes and mime type of an image.
func (s *Service) Fetch(ctx context.Context, id string) ([]byte, string, error) {
	return s.store.Get(ctx, id)
}

// FetchImage returns an image's record together with its bytes.
func (s *Service) FetchImage(ctx context.Context, id string) (*models.Image, []byte, error) {
	return s.store.Load(ctx, id)
}

// FetchPreview returns a PNG preview of an image.
func (s *Service) FetchPreview(ctx context.Context, id string) ([]byte, error) {
	return s.store.Preview(ctx, id)
}

// detectMime prefers the declared type, then the sniffed type, then the
// canonical type of the resolved extension. Only allow-list types are ever
// returned, so a declared image/svg+xml is never served back.
func detectMime(data []byte, declared, ext string) string {
	if declared = strings.ToLower(strings.TrimSpace(declared)); IsAllowedMime(declared) {
		return declared
	}
	if sniffed := mimetype.Detect(data).String(); IsAllowedMime(sniffed) {
		return sniffed
	}
	return MimeForExtension(ext)
}

func originalName(filename string) string {
	name := strings.TrimSpace(filename)
	if name == "" {
		return DefaultOriginalName
	}
	name = namePolicy.Sanitize(name)
	// Clients may send full paths with either separator.
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return DefaultOriginalName
	}
	if r := []rune(name); len(r) > 255 {
		name = string(r[:255])
	}
	return name
}
