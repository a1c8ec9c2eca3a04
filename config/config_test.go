package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func reset(t *testing.T) {
	t.Helper()
	cfg = AppConfig{}
	loaded = false
	prev := configFile
	configFile = filepath.Join(t.TempDir(), "missing.json")
	t.Cleanup(func() {
		cfg = AppConfig{}
		loaded = false
		configFile = prev
	})
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	reset(t)
	chdir(t, t.TempDir()) // no .env here
	for _, key := range []string{"HOST", "PORT", "APP_PORT", "UPLOAD_DIR", "DB_DRIVER", "REDIS_HOST", "UPLOADS_PER_IP_PER_DAY"} {
		t.Setenv(key, "")
	}

	c := Load()
	assert.Equal(t, "img2", c.ServiceName)
	assert.Equal(t, "127.0.0.1:8127", c.ListenAddr())
	assert.Equal(t, "./uploads", c.UploadDir)
	assert.Equal(t, 50, c.MaxUploadMB)
	assert.Equal(t, int64(50*1024*1024), c.MaxUploadBytes())
	assert.Equal(t, 60, c.SweepIntervalSec)
	assert.Equal(t, 256, c.PreviewCacheEntries)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.Zero(t, c.UploadsPerIPPerDay)
	assert.Empty(t, c.RedisHost)
}

func TestLoadEnvOverrides(t *testing.T) {
	reset(t)
	chdir(t, t.TempDir())
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("PORT", "9001")
	t.Setenv("UPLOAD_DIR", "/srv/img")
	t.Setenv("MAX_UPLOAD_MB", "5")
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("PUBLIC_BASE_URL", "https://img.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("UPLOADS_PER_IP_PER_DAY", "100")
	t.Setenv("LOG_COMPRESS", "true")

	c := Load()
	assert.Equal(t, "0.0.0.0:9001", c.ListenAddr(), "PORT wins over APP_PORT")
	assert.Equal(t, "/srv/img", c.UploadDir)
	assert.Equal(t, int64(5*1024*1024), c.MaxUploadBytes())
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, "https://img.example.com", c.PublicBaseURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
	assert.Equal(t, 100, c.UploadsPerIPPerDay)
	assert.True(t, c.LogCompress)
}

func TestLoadJSONConfig(t *testing.T) {
	reset(t)
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"app": {"AppPort": "7000", "AllowedOrigins": ["https://x.example"]},
		"storage": {"UploadDir": "/data/up", "MaxUploadMB": 10},
		"log": {"Level": "debug", "Compress": true},
		"gin": {"Mode": "debug"}
	}`), 0o644))
	configFile = path
	t.Setenv("MAX_UPLOAD_MB", "20")

	c := Load()
	assert.Equal(t, "7000", c.AppPort)
	assert.Equal(t, []string{"https://x.example"}, c.AllowedOrigins)
	assert.Equal(t, "/data/up", c.UploadDir)
	assert.Equal(t, 20, c.MaxUploadMB, "environment beats the JSON file")
	assert.Equal(t, "debug", c.LogLevel)
	assert.True(t, c.LogCompress)
	assert.Equal(t, "debug", c.GinMode)
}

func TestLoadJSONConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	var c AppConfig
	require.Error(t, loadJSONConfig(path, &c))
	require.NoError(t, loadJSONConfig(filepath.Join(t.TempDir(), "nope.json"), &c))
}

func TestSetAndGet(t *testing.T) {
	reset(t)
	Set(AppConfig{AppPort: "1234"})
	assert.Equal(t, "1234", Get().AppPort)
}

func TestReadListEnv(t *testing.T) {
	t.Setenv("LIST_TEST", " a ,b,, c")
	assert.Equal(t, []string{"a", "b", "c"}, readListEnv("LIST_TEST", nil))
	assert.Equal(t, []string{"d"}, readListEnv("LIST_TEST_UNSET", []string{"d"}))
}

func TestToGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, toGormLogLevel("debug"))
	assert.Equal(t, logger.Warn, toGormLogLevel("info"))
	assert.Equal(t, logger.Warn, toGormLogLevel(""))
	assert.Equal(t, logger.Error, toGormLogLevel("error"))
	assert.Equal(t, logger.Silent, toGormLogLevel("silent"))
	assert.Equal(t, logger.Warn, toGormLogLevel("bogus"))
}

type widget struct {
	ID   uint
	Name string
}

func TestOpenDatabaseSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "meta.db")
	conn, err := OpenDatabase(AppConfig{DBDriver: "sqlite", DBPath: dbPath, LogLevel: "silent"}, &widget{})
	require.NoError(t, err)
	require.NoError(t, conn.Create(&widget{Name: "x"}).Error)

	var n int64
	require.NoError(t, conn.Model(&widget{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.FileExists(t, dbPath)
}

func TestOpenDatabaseReturnsIndependentHandles(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenDatabase(AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(dir, "a.db"), LogLevel: "silent"}, &widget{})
	require.NoError(t, err)
	second, err := OpenDatabase(AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(dir, "b.db"), LogLevel: "silent"}, &widget{})
	require.NoError(t, err)

	sqlDB, err := first.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	require.NoError(t, second.Create(&widget{Name: "y"}).Error)
	var n int64
	require.NoError(t, second.Model(&widget{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	if sqlDB, err := second.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func TestOpenDatabaseUnsupportedDriver(t *testing.T) {
	_, err := OpenDatabase(AppConfig{DBDriver: "oracle"})
	require.ErrorContains(t, err, "unsupported DB_DRIVER")
}

func TestMysqlDSN(t *testing.T) {
	c := AppConfig{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "img2"}
	assert.Equal(t, "u:p@tcp(h:3306)/img2?charset=utf8mb4&parseTime=True&loc=Local", mysqlDSN(c))
	c.DatabaseURI = "custom"
	assert.Equal(t, "custom", mysqlDSN(c))
}
