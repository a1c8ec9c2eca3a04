package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentStorePutGetRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := []byte("\x89PNG fake payload")

	rec, err := env.store.Put(ctx, Upload{
		Data:         data,
		Extension:    "png",
		MimeType:     "image/png",
		OriginalName: "cat.png",
	}, 1024)
	require.NoError(t, err)
	assert.Len(t, rec.ID, 12)
	assert.Equal(t, rec.ID+".png", rec.Filename)
	assert.Equal(t, int64(len(data)), rec.FileSize)
	assert.Equal(t, env.clock.Now(), rec.UploadTime)
	assert.Nil(t, rec.DeleteAt)
	assert.True(t, env.fileExists(t, rec.Filename))

	got, mime, err := env.store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "image/png", mime)

	row, err := env.meta.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "cat.png", row.OriginalName)
	assert.Equal(t, rec.Filename, row.Filename)
}

func TestContentStorePutDefaultsMimeFromExtension(t *testing.T) {
	env := newTestEnv(t)
	rec, err := env.store.Put(context.Background(), Upload{Data: []byte("x"), Extension: "jpg"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", rec.MimeType)
}

func TestContentStorePutStoresDeadline(t *testing.T) {
	env := newTestEnv(t)
	deadline := env.clock.Now().Add(5 * time.Minute)

	rec, err := env.store.Put(context.Background(), Upload{
		Data: []byte("x"), Extension: "gif", DeleteAt: &deadline,
	}, 0)
	require.NoError(t, err)
	require.NotNil(t, rec.DeleteAt)
	assert.Equal(t, deadline.Unix(), *rec.DeleteAt)
	assert.Equal(t, deadline.Unix(), rec.ExpiresAt().Unix())
}

func TestContentStorePutValidation(t *testing.T) {
	past := newFakeClock().Now().Add(-time.Second)
	now := newFakeClock().Now()
	subSecond := now.Add(500 * time.Millisecond)

	tests := []struct {
		name    string
		upload  Upload
		maxSize int64
		wantErr error
	}{
		{"too large", Upload{Data: make([]byte, 11), Extension: "png"}, 10, ErrTooLarge},
		{"empty", Upload{Data: nil, Extension: "png"}, 10, ErrEmptyFile},
		{"unsupported extension", Upload{Data: []byte("x"), Extension: "txt"}, 10, ErrUnsupportedType},
		{"deadline in the past", Upload{Data: []byte("x"), Extension: "png", DeleteAt: &past}, 10, ErrInvalidDeadline},
		{"deadline equal to now", Upload{Data: []byte("x"), Extension: "png", DeleteAt: &now}, 10, ErrInvalidDeadline},
		{"deadline within the same second", Upload{Data: []byte("x"), Extension: "png", DeleteAt: &subSecond}, 10, ErrInvalidDeadline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec, err := env.store.Put(context.Background(), tt.upload, tt.maxSize)
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, rec)
			assert.Zero(t, env.rowCount(t))

			files, err := afero.ReadDir(env.fs, testDir)
			if err == nil {
				assert.Empty(t, files)
			}
		})
	}
}

func TestContentStorePutAtExactlyMaxSize(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Put(context.Background(), Upload{Data: make([]byte, 10), Extension: "png"}, 10)
	require.NoError(t, err)
}

func TestContentStoreGetUnknownID(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.store.Get(context.Background(), "000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestContentStoreGetVanishedFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec, err := env.store.Put(ctx, Upload{Data: []byte("x"), Extension: "png"}, 0)
	require.NoError(t, err)

	require.NoError(t, env.fs.Remove(testDir+"/"+rec.Filename))

	_, _, err = env.store.Get(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestContentStoreDuplicateIDNeverOverwrites(t *testing.T) {
	env := newTestEnv(t, WithIDGenerator(func() string { return "abcdefabcdef" }))
	ctx := context.Background()

	first, err := env.store.Put(ctx, Upload{Data: []byte("first"), Extension: "png"}, 0)
	require.NoError(t, err)

	_, err = env.store.Put(ctx, Upload{Data: []byte("second"), Extension: "png"}, 0)
	require.ErrorIs(t, err, ErrDuplicateID)

	got, _, err := env.store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
	assert.Equal(t, int64(1), env.rowCount(t))
}

func TestContentStoreDuplicateRowWithDifferentExtension(t *testing.T) {
	env := newTestEnv(t, WithIDGenerator(func() string { return "abcdefabcdef" }))
	ctx := context.Background()

	_, err := env.store.Put(ctx, Upload{Data: []byte("first"), Extension: "png"}, 0)
	require.NoError(t, err)

	// Different file name, same id: the row insert must reject it and the
	// second file must not be left behind.
	_, err = env.store.Put(ctx, Upload{Data: []byte("second"), Extension: "gif"}, 0)
	require.ErrorIs(t, err, ErrDuplicateID)
	assert.False(t, env.fileExists(t, "abcdefabcdef.gif"))
	assert.True(t, env.fileExists(t, "abcdefabcdef.png"))
}

func TestContentStoreWriteFailureLeavesNoMetadata(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll(testDir, 0o755))
	env := newTestEnvWithFs(t, afero.NewReadOnlyFs(base))

	_, err := env.store.Put(context.Background(), Upload{Data: []byte("x"), Extension: "png"}, 0)
	require.ErrorIs(t, err, ErrStorageWrite)
	assert.Zero(t, env.rowCount(t))
}

func TestContentStoreMetadataFailure(t *testing.T) {
	env := newTestEnv(t)
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = env.store.Put(context.Background(), Upload{Data: []byte("x"), Extension: "png"}, 0)
	require.ErrorIs(t, err, ErrMetadataWrite)

	files, err := afero.ReadDir(env.fs, testDir)
	require.NoError(t, err)
	assert.Empty(t, files, "written file should be cleaned up after the insert failed")
}

func TestContentStoreGetMetadataFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, _, err = env.store.Get(context.Background(), "abcdefabcdef")
	require.ErrorIs(t, err, ErrInternal)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestContentStoreConcurrentPuts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const n = 32

	type result struct {
		id   string
		data []byte
	}
	results := make([]result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := []byte(fmt.Sprintf("payload-%03d", i))
			rec, err := env.store.Put(ctx, Upload{Data: data, Extension: "png"}, 0)
			if assert.NoError(t, err) {
				results[i] = result{id: rec.ID, data: data}
			}
		}(i)
	}
	wg.Wait()

	ids := make(map[string]struct{}, n)
	for _, r := range results {
		require.NotEmpty(t, r.id)
		_, dup := ids[r.id]
		require.False(t, dup)
		ids[r.id] = struct{}{}

		got, _, err := env.store.Get(ctx, r.id)
		require.NoError(t, err)
		assert.Equal(t, r.data, got)
	}
	assert.Equal(t, int64(n), env.rowCount(t))
}

func TestContentStoreRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec, err := env.store.Put(ctx, Upload{Data: []byte("x"), Extension: "png"}, 0)
	require.NoError(t, err)

	fileRemoved, rowRemoved, err := env.store.Remove(ctx, *rec)
	require.NoError(t, err)
	assert.True(t, fileRemoved)
	assert.True(t, rowRemoved)
	assert.False(t, env.fileExists(t, rec.Filename))

	_, _, err = env.store.Get(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// Removing again is a no-op.
	fileRemoved, rowRemoved, err = env.store.Remove(ctx, *rec)
	require.NoError(t, err)
	assert.True(t, fileRemoved)
	assert.True(t, rowRemoved)
}

func TestContentStoreInit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Init())
	ok, err := afero.DirExists(env.fs, testDir)
	require.NoError(t, err)
	assert.True(t, ok)
}
