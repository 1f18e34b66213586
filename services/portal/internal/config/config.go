package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, relative to the working dir.
const ConfigPath = "config.yaml"

const (
	// StorageMinio keeps blobs in a MinIO/S3 bucket.
	StorageMinio = "minio"
	// StorageFilesystem keeps blobs under a local directory.
	StorageFilesystem = "filesystem"

	defaultTokenTTL           = "168h"
	defaultRegisterRatePerMin = 5
	defaultLoginRatePerMin    = 10
	defaultDocumentMaxBytes   = 10 << 20
	minJWTSecretBytes         = 32
)

var defaultTopics = []string{"Élevage", "Agriculture", "Pêche"}

var defaultDocumentExtensions = []string{".ppt", ".pptx", ".doc", ".docx", ".pdf"}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port          string `yaml:"port"`
	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	LogLevel      string `yaml:"logLevel"`

	JWTSecret    string `yaml:"jwtSecret"`
	JWTIssuer    string `yaml:"jwtIssuer"`
	JWTLeeway    string `yaml:"jwtLeeway"`
	TokenTTL     string `yaml:"tokenTTL"`
	AdminCode    string `yaml:"adminCode"`
	PasswordCost int    `yaml:"passwordCost"`

	StorageBackend string `yaml:"storageBackend"`
	StorageDir     string `yaml:"storageDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	Topics                    []string `yaml:"topics"`
	DocumentMaxBytes          int64    `yaml:"documentMaxBytes"`
	DocumentAllowedExtensions []string `yaml:"documentAllowedExtensions"`

	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
	TrustedProxies             []string `yaml:"trustedProxies"`
	CORSOrigins                []string `yaml:"corsOrigins"`
}

// ResolvePath returns TEAMHUB_CONFIG when set, otherwise ConfigPath.
func ResolvePath() string {
	if v := strings.TrimSpace(os.Getenv("TEAMHUB_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml). A .env file in the
// working directory is loaded first without overriding the real environment.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		cfg.TokenTTL = v
	}
	if v := os.Getenv("ADMIN_CODE"); v != "" {
		cfg.AdminCode = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = v
	}
	if v := os.Getenv("STORAGE_DIR"); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("TOPICS"); v != "" {
		cfg.Topics = splitCSV(v)
	}
	if v := os.Getenv("DOCUMENT_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.DocumentMaxBytes = n
		}
	}
	if v := os.Getenv("DOCUMENT_ALLOWED_EXTENSIONS"); v != "" {
		cfg.DocumentAllowedExtensions = splitCSV(v)
	}
	if v := os.Getenv("REGISTER_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RegisterRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.TokenTTL == "" {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.DefaultCost
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = StorageMinio
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = append([]string(nil), defaultTopics...)
	}
	if cfg.DocumentMaxBytes == 0 {
		cfg.DocumentMaxBytes = defaultDocumentMaxBytes
	}
	if len(cfg.DocumentAllowedExtensions) == 0 {
		cfg.DocumentAllowedExtensions = append([]string(nil), defaultDocumentExtensions...)
	}
	if cfg.RegisterRateLimitPerMinute == 0 {
		cfg.RegisterRateLimitPerMinute = defaultRegisterRatePerMin
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = defaultLoginRatePerMin
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for rate limiting")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set JWT_SECRET)")
	}
	if len(cfg.JWTSecret) < minJWTSecretBytes {
		return fmt.Errorf("config: jwtSecret must be at least %d bytes", minJWTSecretBytes)
	}
	if _, err := ParseTokenTTL(cfg.TokenTTL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.PasswordCost < bcrypt.MinCost || cfg.PasswordCost > bcrypt.MaxCost {
		return fmt.Errorf("config: passwordCost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch cfg.StorageBackend {
	case StorageMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint, minioAccessKey, minioSecretKey and minioBucket are required for minio storage")
		}
	case StorageFilesystem:
		if strings.TrimSpace(cfg.StorageDir) == "" {
			return errors.New("config: storageDir is required for filesystem storage")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (want minio or filesystem)", cfg.StorageBackend)
	}
	seen := make(map[string]struct{}, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			return errors.New("config: topics must not contain empty entries")
		}
		if _, dup := seen[topic]; dup {
			return fmt.Errorf("config: duplicate topic %q", topic)
		}
		seen[topic] = struct{}{}
	}
	if cfg.DocumentMaxBytes < 0 {
		return errors.New("config: documentMaxBytes must be >= 0")
	}
	if cfg.RegisterRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseTokenTTL parses the token lifetime. Empty input means the default.
func ParseTokenTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		ttlStr = defaultTokenTTL
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid tokenTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("invalid tokenTTL duration: must be positive")
	}
	return dur, nil
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	if dur < 0 {
		return 0, errors.New("invalid jwtLeeway duration: must be >= 0")
	}
	return dur, nil
}
