package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/adminbjkai/img2/models"
)

// Upload is one validated payload handed to ContentStore.Put.
type Upload struct {
	Data         []byte
	Extension    string
	MimeType     string
	OriginalName string
	DeleteAt     *time.Time
}

// PreviewCache keeps rendered previews. Implementations report failures as
// misses.
type PreviewCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, b []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// previewCacheTTL bounds how long a preview is cached for a never-expiring image.
const previewCacheTTL = time.Hour

// ContentStore keeps image bytes in an upload directory and their metadata
// in a MetadataStore. There is no transaction across the two: the file is
// written first and the row inserted second, so the row never points at a
// file that was not fully written.
type ContentStore struct {
	fs       afero.Fs
	dir      string
	meta     *MetadataStore
	logger   *zap.Logger
	observer Observer
	previews PreviewCache
	newID    func() string
	now      func() time.Time
}

// Option customizes a ContentStore.
type Option func(*ContentStore)

// WithLogger sets the logger used for best-effort cleanup failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *ContentStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver reports put/get metrics to o.
func WithObserver(o Observer) Option {
	return func(s *ContentStore) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithPreviewCache caches rendered previews in c.
func WithPreviewCache(c PreviewCache) Option {
	return func(s *ContentStore) {
		s.previews = c
	}
}

// WithIDGenerator replaces GenerateID.
func WithIDGenerator(fn func() string) Option {
	return func(s *ContentStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *ContentStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewContentStore stores files under dir on fs.
func NewContentStore(fs afero.Fs, dir string, meta *MetadataStore, opts ...Option) *ContentStore {
	s := &ContentStore{
		fs:       fs,
		dir:      dir,
		meta:     meta,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		newID:    GenerateID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the upload directory if needed.
func (s *ContentStore) Init() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir %s: %w", s.dir, err)
	}
	return nil
}

// Metadata exposes the underlying metadata store.
func (s *ContentStore) Metadata() *MetadataStore {
	return s.meta
}

// Now returns the store clock's current time.
func (s *ContentStore) Now() time.Time {
	return s.now()
}

func (s *ContentStore) path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// Put validates and persists one upload and returns its record. The image is
// visible to Get and to the sweeper as soon as Put returns successfully.
func (s *ContentStore) Put(ctx context.Context, up Upload, maxSize int64) (rec *models.Image, err error) {
	start := time.Now()
	defer func() { s.observer.RecordPut(time.Since(start), int64(len(up.Data)), err) }()

	if maxSize > 0 && int64(len(up.Data)) > maxSize {
		return nil, ErrTooLarge
	}
	if len(up.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if MimeForExtension(up.Extension) == "" {
		return nil, ErrUnsupportedType
	}
	now := s.now().UTC()
	// delete_at is stored in whole seconds and must stay after the upload.
	if up.DeleteAt != nil && up.DeleteAt.Unix() <= now.Unix() {
		return nil, ErrInvalidDeadline
	}

	id := s.newID()
	rec = &models.Image{
		ID:           id,
		Filename:     id + "." + up.Extension,
		OriginalName: up.OriginalName,
		UploadTime:   now,
		FileSize:     int64(len(up.Data)),
		MimeType:     up.MimeType,
	}
	if rec.MimeType == "" {
		rec.MimeType = MimeForExtension(up.Extension)
	}
	if up.DeleteAt != nil {
		ts := up.DeleteAt.Unix()
		rec.DeleteAt = &ts
	}

	if err := s.writeFile(rec.Filename, up.Data); err != nil {
		return nil, err
	}

	if err := s.meta.Insert(ctx, rec); err != nil {
		// The file was created exclusively by this call, so it is ours to drop.
		if rmErr := s.fs.Remove(s.path(rec.Filename)); rmErr != nil {
			s.logger.Warn("orphan file left after metadata failure",
				zap.String("file", rec.Filename), zap.Error(rmErr))
		}
		if errors.Is(err, ErrDuplicateID) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		return nil, fmt.Errorf("%w: %v", ErrMetadataWrite, err)
	}
	return rec, nil
}

// writeFile creates filename exclusively so an existing image is never
// overwritten, even on an id collision.
func (s *ContentStore) writeFile(filename string, data []byte) error {
	path := s.path(filename)
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, filename)
		}
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(path)
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

// Get returns the bytes and mime type of a stored image. A record whose file
// cannot be read is reported as ErrNotFound, the same as an unknown id.
func (s *ContentStore) Get(ctx context.Context, id string) ([]byte, string, error) {
	rec, data, err := s.Load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return data, rec.MimeType, nil
}

// Load is Get that also returns the metadata record.
func (s *ContentStore) Load(ctx context.Context, id string) (rec *models.Image, data []byte, err error) {
	defer func() { s.observer.RecordGet("get", err) }()
	return s.load(ctx, id)
}

func (s *ContentStore) load(ctx context.Context, id string) (*models.Image, []byte, error) {
	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.readFile(rec)
	if err != nil {
		return nil, nil, err
	}
	return rec, data, nil
}

func (s *ContentStore) readFile(rec *models.Image) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(rec.Filename))
	if err != nil {
		s.logger.Debug("image file unreadable", zap.String("id", rec.ID), zap.Error(err))
		return nil, ErrNotFound
	}
	return data, nil
}

// Preview renders a bounded PNG preview of a stored image. With a preview
// cache configured, a rendered preview is kept no longer than its image.
func (s *ContentStore) Preview(ctx context.Context, id string) (out []byte, err error) {
	defer func() { s.observer.RecordGet("preview", err) }()
	rec, err := s.meta.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key := previewKey(rec)
	if s.previews != nil {
		if b, ok := s.previews.Get(ctx, key); ok {
			return b, nil
		}
	}
	data, err := s.readFile(rec)
	if err != nil {
		return nil, err
	}
	out, err = RenderPreview(data)
	if err != nil {
		return nil, err
	}
	if s.previews != nil {
		ttl := previewCacheTTL
		if exp := rec.ExpiresAt(); exp != nil {
			ttl = min(ttl, exp.Sub(s.now()))
		}
		if ttl > 0 {
			s.previews.Set(ctx, key, out, ttl)
		}
	}
	return out, nil
}

func previewKey(rec *models.Image) string {
	return "preview:" + rec.Filename
}

// Remove deletes a record's file and then its row. The row is deleted even
// when the file removal fails; a missing file counts as removed.
func (s *ContentStore) Remove(ctx context.Context, rec models.Image) (fileRemoved, rowRemoved bool, err error) {
	var fileErr error
	if rmErr := s.fs.Remove(s.path(rec.Filename)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		fileErr = fmt.Errorf("remove file %s: %w", rec.Filename, rmErr)
	} else {
		fileRemoved = true
	}
	rowErr := s.meta.Delete(ctx, rec.ID)
	if s.previews != nil {
		s.previews.Delete(ctx, previewKey(&rec))
	}
	return fileRemoved, rowErr == nil, errors.Join(fileErr, rowErr)
}
