package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultAppEnv       = "local"
	defaultAppPort      = "8080"
	defaultJWTSecret    = "change-me-in-production"
	defaultRedisAddr    = "localhost:6379"
	defaultStorageDisk  = "local"
	defaultStorageRoot  = "storage"
	defaultStorageURL   = "http://localhost:8080/storage"
	defaultUploadStore  = "memory"
	defaultUploadPrefix = "uploads"
	defaultWorkers      = 4
	defaultMaxSize      = 50 << 20
	defaultRateLimit    = 120
)

var (
	loadOnce sync.Once
	loadErr  error

	mu     sync.RWMutex
	values = defaultValues()
)

// Load reads config/app.json and .env on top of the defaults. Environment
// variables win over both files. Subsequent calls are no-ops.
func Load() error {
	loadOnce.Do(func() {
		loadErr = loadFromFiles("config/app.json", ".env")
	})
	return loadErr
}

func defaultValues() map[string]string {
	return map[string]string{
		"APP_ENV":            defaultAppEnv,
		"APP_PORT":           defaultAppPort,
		"JWT_SECRET":         defaultJWTSecret,
		"AUTH_ENABLED":       "false",
		"REDIS_ADDR":         defaultRedisAddr,
		"REDIS_PASSWORD":     "",
		"STORAGE_DISK":       defaultStorageDisk,
		"STORAGE_LOCAL_ROOT": defaultStorageRoot,
		"STORAGE_URL":        defaultStorageURL,
		"UPLOAD_STORE":       defaultUploadStore,
		"UPLOAD_PREFIX":      defaultUploadPrefix,
		"UPLOAD_WORKERS":     strconv.Itoa(defaultWorkers),
		"UPLOAD_MAX_SIZE":    strconv.Itoa(defaultMaxSize),
		"UPLOAD_ALLOWED_EXT": "",
		"UPLOAD_AUTO":        "true",
		"UPLOAD_RATE_LIMIT":  strconv.Itoa(defaultRateLimit),
		"LOG_MONGO_URI":      "",
		"LOG_MONGO_DB":       "upbridge",
	}
}

// ── App ──────────────────────────────────────────────────────────────────────

func AppEnv() string  { _ = Load(); return get("APP_ENV", defaultAppEnv) }
func AppPort() string { _ = Load(); return get("APP_PORT", defaultAppPort) }

// ── Auth ─────────────────────────────────────────────────────────────────────

func JWTSecret() string  { _ = Load(); return get("JWT_SECRET", defaultJWTSecret) }
func AuthEnabled() bool { _ = Load(); return Bool("AUTH_ENABLED", false) }

// ── Redis ────────────────────────────────────────────────────────────────────

func RedisAddr() string     { _ = Load(); return get("REDIS_ADDR", defaultRedisAddr) }
func RedisPassword() string { _ = Load(); return get("REDIS_PASSWORD", "") }

// ── Storage ──────────────────────────────────────────────────────────────────

func StorageDefault() string   { _ = Load(); return get("STORAGE_DISK", defaultStorageDisk) }
func StorageLocalRoot() string { _ = Load(); return get("STORAGE_LOCAL_ROOT", defaultStorageRoot) }
func StorageURL() string       { _ = Load(); return get("STORAGE_URL", defaultStorageURL) }

func StorageS3Bucket() string   { _ = Load(); return get("S3_BUCKET", "") }
func StorageS3Region() string   { _ = Load(); return get("S3_REGION", "us-east-1") }
func StorageS3Key() string      { _ = Load(); return get("S3_KEY", "") }
func StorageS3Secret() string   { _ = Load(); return get("S3_SECRET", "") }
func StorageS3Endpoint() string { _ = Load(); return get("S3_ENDPOINT", "") }
func StorageS3URL() string      { _ = Load(); return get("S3_URL", "") }

// ── Uploads ──────────────────────────────────────────────────────────────────

func UploadStore() string  { _ = Load(); return strings.ToLower(get("UPLOAD_STORE", defaultUploadStore)) }
func UploadPrefix() string { _ = Load(); return get("UPLOAD_PREFIX", defaultUploadPrefix) }
func UploadWorkers() int   { _ = Load(); return Int("UPLOAD_WORKERS", defaultWorkers) }
func UploadMaxSize() int64 { _ = Load(); return int64(Int("UPLOAD_MAX_SIZE", defaultMaxSize)) }
func UploadAuto() bool     { _ = Load(); return Bool("UPLOAD_AUTO", true) }

// UploadRateLimit is the number of submissions one client IP may make per
// minute; 0 disables the limit.
func UploadRateLimit() int { _ = Load(); return Int("UPLOAD_RATE_LIMIT", defaultRateLimit) }

// UploadAllowedExt returns the lower-cased extensions from the
// comma-separated UPLOAD_ALLOWED_EXT; empty means any extension.
func UploadAllowedExt() []string {
	_ = Load()
	raw := get("UPLOAD_ALLOWED_EXT", "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, ext := range strings.Split(raw, ",") {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

// ── Logging ──────────────────────────────────────────────────────────────────

func LogMongoURI() string { _ = Load(); return get("LOG_MONGO_URI", "") }
func LogMongoDB() string  { _ = Load(); return get("LOG_MONGO_DB", "upbridge") }

// ── Loading ──────────────────────────────────────────────────────────────────

func loadFromFiles(configPath, envPath string) error {
	loaded := defaultValues()

	if err := mergeJSONConfig(configPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	if err := mergeDotEnv(envPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	mu.Lock()
	values = loaded
	mu.Unlock()

	return nil
}

func mergeJSONConfig(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for key, val := range raw {
		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		switch v := val.(type) {
		case string:
			out[k] = strings.TrimSpace(v)
		case bool:
			out[k] = strconv.FormatBool(v)
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	return nil
}

func mergeDotEnv(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}

		key := strings.ToUpper(strings.TrimSpace(line[:idx]))
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), `"'`)
		if key == "" {
			continue
		}
		out[key] = value
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return nil
}

func get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}

	mu.RLock()
	defer mu.RUnlock()

	if value := strings.TrimSpace(values[key]); value != "" {
		return value
	}

	return fallback
}

// Get reads any config key by name with an optional fallback.
func Get(key, fallback string) string {
	_ = Load()
	return get(key, fallback)
}

// Int reads key as an integer, returning fallback when unset or malformed.
func Int(key string, fallback int) int {
	n, err := strconv.Atoi(Get(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

// Bool reads key as a boolean, returning fallback when unset or malformed.
func Bool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(Get(key, ""))
	if err != nil {
		return fallback
	}
	return b
}
