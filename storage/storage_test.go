package storage

import (
	"bytes"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/adminbjkai/img2/models"
)

const testDir = "/uploads"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "images.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Image{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type testEnv struct {
	fs    afero.Fs
	db    *gorm.DB
	meta  *MetadataStore
	store *ContentStore
	clock *fakeClock
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	return newTestEnvWithFs(t, afero.NewMemMapFs(), opts...)
}

func newTestEnvWithFs(t *testing.T, fs afero.Fs, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{fs: fs, db: newTestDB(t), clock: newFakeClock()}
	env.meta = NewMetadataStore(env.db)
	opts = append([]Option{WithClock(env.clock.Now)}, opts...)
	env.store = NewContentStore(fs, testDir, env.meta, opts...)
	_ = env.store.Init() // fails on read-only filesystems, which some tests want
	return env
}

func (e *testEnv) fileExists(t *testing.T, name string) bool {
	t.Helper()
	ok, err := afero.Exists(e.fs, filepath.Join(testDir, name))
	require.NoError(t, err)
	return ok
}

func (e *testEnv) rowCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Image{}).Count(&n).Error)
	return n
}

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 0, G: 128, B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}
