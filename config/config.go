package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
type AppConfig struct {
	ServiceName   string
	AppHost       string
	AppPort       string
	PublicBaseURL string
	// Storage
	UploadDir           string
	MaxUploadMB         int
	SweepIntervalSec    int
	PreviewCacheEntries int
	// Metadata database: "sqlite" (DBPath) or "mysql" (DatabaseURI or DB* fields)
	DBDriver    string
	DBPath      string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Abuse protection
	RateLimitPerMinute int
	UploadsPerIPPerDay int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis backs the per-IP daily upload quota; empty host disables it
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// MaxUploadBytes returns the upload limit in bytes.
func (c AppConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// ListenAddr returns host:port for the HTTP server.
func (c AppConfig) ListenAddr() string {
	return c.AppHost + ":" + c.AppPort
}

var cfg AppConfig
var loaded bool

// configFile is the optional JSON configuration, relative to the working directory.
var configFile = filepath.Join("config", "config.json")

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> .env / environment variable overrides
	if err := loadJSONConfig(configFile, &cfg); err != nil {
		log.Printf("ignoring invalid %s: %v", configFile, err)
	}

	applyDefaults(&cfg)

	// .env never overrides variables already present in the environment.
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Intended for commands and tests
// that build the configuration themselves.
func Set(c AppConfig) {
	cfg = c
	loaded = true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	// Grouped sections; flat keys at the top level are read the same way.
	sections := []map[string]any{raw}
	for _, name := range []string{"app", "storage", "database", "redis", "log", "gin"} {
		if m, ok := raw[name].(map[string]any); ok {
			sections = append(sections, m)
		}
	}
	for _, m := range sections {
		setString(&out.ServiceName, getString(m, "ServiceName"))
		setString(&out.AppHost, getString(m, "AppHost"))
		setString(&out.AppPort, getString(m, "AppPort"))
		setString(&out.PublicBaseURL, getString(m, "PublicBaseURL"))
		setInt(&out.RateLimitPerMinute, getInt(m, "RateLimitPerMinute"))
		setInt(&out.UploadsPerIPPerDay, getInt(m, "UploadsPerIPPerDay"))
		if list := getStringSlice(m, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}

		setString(&out.UploadDir, getString(m, "UploadDir"))
		setInt(&out.MaxUploadMB, getInt(m, "MaxUploadMB"))
		setInt(&out.SweepIntervalSec, getInt(m, "SweepIntervalSec"))
		setInt(&out.PreviewCacheEntries, getInt(m, "PreviewCacheEntries"))

		setString(&out.DBDriver, getString(m, "DBDriver"))
		setString(&out.DBPath, getString(m, "DBPath"))
		setString(&out.DatabaseURI, getString(m, "DatabaseURI"))
		setString(&out.DBHost, getString(m, "DBHost"))
		setString(&out.DBPort, getString(m, "DBPort"))
		setString(&out.DBUser, getString(m, "DBUser"))
		setString(&out.DBPassword, getString(m, "DBPassword"))
		setString(&out.DBName, getString(m, "DBName"))

		setString(&out.RedisHost, getString(m, "RedisHost"))
		setInt(&out.RedisPort, getInt(m, "RedisPort"))
		setInt(&out.RedisDB, getInt(m, "RedisDB"))
		setString(&out.RedisPassword, getString(m, "RedisPassword"))

		setString(&out.GinMode, getString(m, "GinMode"))
		setString(&out.GinPath, getString(m, "GinPath"))
		setString(&out.LogLevel, getString(m, "LogLevel"))
		setString(&out.LogPath, getString(m, "LogPath"))
		setInt(&out.LogMaxSizeMB, getInt(m, "LogMaxSizeMB"))
		setInt(&out.LogMaxBackups, getInt(m, "LogMaxBackups"))
		setInt(&out.LogMaxAgeDays, getInt(m, "LogMaxAgeDays"))
		if getBool(m, "LogCompress") {
			out.LogCompress = true
		}
	}

	// "log" and "gin" sections use short key names.
	if lg, ok := raw["log"].(map[string]any); ok {
		setString(&out.LogLevel, getString(lg, "Level"))
		setString(&out.LogPath, getString(lg, "Path"))
		setInt(&out.LogMaxSizeMB, getInt(lg, "MaxSizeMB"))
		setInt(&out.LogMaxBackups, getInt(lg, "MaxBackups"))
		setInt(&out.LogMaxAgeDays, getInt(lg, "MaxAgeDays"))
		if getBool(lg, "Compress") {
			out.LogCompress = true
		}
	}
	if g, ok := raw["gin"].(map[string]any); ok {
		setString(&out.GinMode, getString(g, "Mode"))
		setString(&out.GinPath, getString(g, "LogPath"))
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.ServiceName == "" {
		c.ServiceName = "img2"
	}
	if c.AppHost == "" {
		c.AppHost = "127.0.0.1"
	}
	if c.AppPort == "" {
		c.AppPort = "8127"
	}
	if c.UploadDir == "" {
		c.UploadDir = "./uploads"
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 50
	}
	if c.SweepIntervalSec == 0 {
		c.SweepIntervalSec = 60
	}
	if c.PreviewCacheEntries == 0 {
		c.PreviewCacheEntries = 256
	}
	if c.DBDriver == "" {
		c.DBDriver = "sqlite"
	}
	if c.DBPath == "" {
		c.DBPath = "./data/images.db"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "img2"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 30
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("SERVICE_NAME", ""); v != "" {
		c.ServiceName = v
	}
	if v := getEnv("HOST", ""); v != "" {
		c.AppHost = v
	}
	if v := getEnv("APP_PORT", ""); v != "" { // compatibility
		c.AppPort = v
	}
	if v := getEnv("PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("PUBLIC_BASE_URL", ""); v != "" {
		c.PublicBaseURL = strings.TrimRight(v, "/")
	}
	if v := getEnv("UPLOAD_DIR", ""); v != "" {
		c.UploadDir = v
	}
	if v := getEnv("MAX_UPLOAD_MB", ""); v != "" {
		c.MaxUploadMB = mustParseInt(v)
	}
	if v := getEnv("SWEEP_INTERVAL_SEC", ""); v != "" {
		c.SweepIntervalSec = mustParseInt(v)
	}
	if v := getEnv("PREVIEW_CACHE_ENTRIES", ""); v != "" {
		c.PreviewCacheEntries = mustParseInt(v)
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = strings.ToLower(v)
	}
	if v := getEnv("DB_PATH", ""); v != "" {
		c.DBPath = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("UPLOADS_PER_IP_PER_DAY", ""); v != "" {
		c.UploadsPerIPPerDay = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		items := []string{}
		for _, item := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		return items
	}
	return defaults
}
