package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Auth     AuthConfig
	Backup   BackupConfig
	Firmware FirmwareConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr string
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	Backend   string // "memory" or "redis"
	TTL       time.Duration
	RedisAddr string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	AdminUser      string
	AdminPassword  string
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// BackupConfig holds EEPROM backup storage configuration
type BackupConfig struct {
	Folder   string
	AckDelay time.Duration
}

// FirmwareConfig holds release feed watcher configuration
type FirmwareConfig struct {
	FeedURL      string
	Timeout      time.Duration
	RateLimitDur time.Duration
}

// Load parses flags and environment variables to build configuration
func Load() *Config {
	cfg := &Config{}

	// Define flags with defaults
	httpAddr := flag.String("http", ":8080", "HTTP server address")
	cacheTTL := flag.Duration("cache-ttl", 5*time.Minute, "Cache TTL")
	cacheBackend := flag.String("cache-backend", "memory", "Cache backend: memory or redis")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis server address")
	rateLimitDur := flag.Duration("rate-limit", time.Second, "Minimum delay between requests to same host")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	backupFolder := flag.String("backup-folder", "data", "Folder for named EEPROM backups")
	ackDelay := flag.Duration("ack-delay", 2*time.Second, "Delay after printer acknowledgement before re-enabling controls")
	feedURL := flag.String("release-feed", "", "Firmware release Atom feed URL (empty uses the Marlin feed)")
	dbHost := flag.String("db-host", "localhost", "PostgreSQL host")
	dbPort := flag.Int("db-port", 5432, "PostgreSQL port")
	dbUser := flag.String("db-user", "postgres", "PostgreSQL user")
	dbPassword := flag.String("db-password", "postgres", "PostgreSQL password")
	dbName := flag.String("db-name", "eeprom_marlin", "PostgreSQL database name")
	dbSSLMode := flag.String("db-sslmode", "disable", "PostgreSQL SSL mode")

	flag.Parse()

	// Apply environment variable overrides
	applyEnvOverrides(httpAddr, cacheTTL, cacheBackend, redisAddr, rateLimitDur, logLevel, backupFolder, ackDelay, feedURL, dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode)

	cfg.Server = ServerConfig{
		HTTPAddr: *httpAddr,
	}

	cfg.Cache = CacheConfig{
		Backend:   *cacheBackend,
		TTL:       *cacheTTL,
		RedisAddr: *redisAddr,
	}

	cfg.Database = DatabaseConfig{
		Host:     *dbHost,
		Port:     *dbPort,
		User:     *dbUser,
		Password: *dbPassword,
		Database: *dbName,
		SSLMode:  *dbSSLMode,
	}

	cfg.Logging = LoggingConfig{
		Level: *logLevel,
	}

	cfg.Backup = BackupConfig{
		Folder:   *backupFolder,
		AckDelay: *ackDelay,
	}

	cfg.Firmware = FirmwareConfig{
		FeedURL:      *feedURL,
		Timeout:      10 * time.Second,
		RateLimitDur: *rateLimitDur,
	}
	if v := os.Getenv("RELEASE_FEED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Firmware.Timeout = d
		}
	}

	// Load auth config from environment
	cfg.Auth = loadAuthConfig()

	return cfg
}

func loadAuthConfig() AuthConfig {
	accessTTL := 15 * time.Minute
	if v := os.Getenv("AUTH_ACCESS_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			accessTTL = d
		}
	}

	return AuthConfig{
		AdminUser:      getEnvOrDefault("AUTH_ADMIN_USER", "admin"),
		AdminPassword:  getEnvOrDefault("AUTH_ADMIN_PASSWORD", "change-me"),
		JWTSecret:      getEnvOrDefault("AUTH_JWT_SECRET", "change-me-in-production"),
		JWTIssuer:      getEnvOrDefault("AUTH_JWT_ISSUER", "marlineeprom"),
		JWTAudience:    getEnvOrDefault("AUTH_JWT_AUDIENCE", "marlineeprom-operator"),
		AccessTokenTTL: accessTTL,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func applyEnvOverrides(
	httpAddr *string,
	cacheTTL *time.Duration,
	cacheBackend *string,
	redisAddr *string,
	rateLimitDur *time.Duration,
	logLevel *string,
	backupFolder *string,
	ackDelay *time.Duration,
	feedURL *string,
	dbHost *string,
	dbPort *int,
	dbUser *string,
	dbPassword *string,
	dbName *string,
	dbSSLMode *string,
) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		*httpAddr = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*cacheTTL = d
		}
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		*cacheBackend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		*redisAddr = v
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*rateLimitDur = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		*logLevel = v
	}
	if v := os.Getenv("BACKUP_FOLDER"); v != "" {
		*backupFolder = v
	}
	if v := os.Getenv("ACK_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*ackDelay = d
		}
	}
	if v := os.Getenv("RELEASE_FEED_URL"); v != "" {
		*feedURL = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		*dbHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			*dbPort = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		*dbUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		*dbPassword = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		*dbName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		*dbSSLMode = v
	}
}
