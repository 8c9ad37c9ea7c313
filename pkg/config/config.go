package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Mail providers understood by the notification gateway factory.
const (
	MailProviderSendGrid = "sendgrid"
	MailProviderLog      = "log"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	CORS          CORSConfig
	Log           LogConfig
	Mail          MailConfig
	Notifications NotificationsConfig
	Uploads       UploadsConfig
	Exports       ExportsConfig
	Dashboard     DashboardConfig
	Enrollment    EnrollmentConfig
	Canvas        CanvasConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig holds the single administrator credential and token settings.
type AuthConfig struct {
	JWTSecret         string
	JWTExpiration     time.Duration
	AdminEmail        string
	AdminPasswordHash string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MailConfig selects and configures the outbound email backend.
type MailConfig struct {
	Provider       string
	SendGridAPIKey string
	FromAddress    string
	FromName       string
	AdminRecipient string
	FrontendURL    string
}

// NotificationsConfig documents the default of the persisted admin toggle.
type NotificationsConfig struct {
	DefaultEnabled bool
}

// UploadsConfig controls course attachment storage & validation.
type UploadsConfig struct {
	Dir              string
	PublicPath       string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ExportsConfig controls snapshot export files and their download links.
type ExportsConfig struct {
	Dir             string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// EnrollmentConfig tunes the request workflow.
type EnrollmentConfig struct {
	EnforceSeatLimit bool
}

// CanvasConfig points at the Canvas LMS instance used for course lookups.
type CanvasConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_CACHE"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret:         v.GetString("JWT_SECRET"),
		JWTExpiration:     parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		AdminEmail:        strings.ToLower(strings.TrimSpace(v.GetString("ADMIN_EMAIL"))),
		AdminPasswordHash: v.GetString("ADMIN_PASSWORD_HASH"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Mail = MailConfig{
		Provider:       strings.ToLower(v.GetString("MAIL_PROVIDER")),
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		AdminRecipient: v.GetString("MAIL_ADMIN_RECIPIENT"),
		FrontendURL:    strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
	}

	cfg.Notifications = NotificationsConfig{
		DefaultEnabled: v.GetBool("NOTIFICATIONS_DEFAULT_ENABLED"),
	}

	maxUpload := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		Dir:              v.GetString("UPLOADS_DIR"),
		PublicPath:       "/uploads",
		MaxFileSizeBytes: maxUpload,
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOADS_ALLOWED_MIME_TYPES")),
	}

	cfg.Exports = ExportsConfig{
		Dir:             v.GetString("EXPORTS_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Enrollment = EnrollmentConfig{
		EnforceSeatLimit: v.GetBool("ENFORCE_SEAT_LIMIT"),
	}

	cfg.Canvas = CanvasConfig{
		BaseURL:  strings.TrimRight(v.GetString("CANVAS_BASE_URL"), "/"),
		APIToken: v.GetString("CANVAS_API_TOKEN"),
		Timeout:  parseDuration(v.GetString("CANVAS_TIMEOUT"), 10*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 5000)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_enrollment")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("ADMIN_EMAIL", "admin@example.com")
	v.SetDefault("ADMIN_PASSWORD_HASH", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MAIL_PROVIDER", MailProviderLog)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@example.com")
	v.SetDefault("MAIL_FROM_NAME", "Language Center")
	v.SetDefault("MAIL_ADMIN_RECIPIENT", "")
	v.SetDefault("FRONTEND_URL", "http://localhost:8080")

	v.SetDefault("NOTIFICATIONS_DEFAULT_ENABLED", true)

	v.SetDefault("UPLOADS_DIR", "./uploads")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("UPLOADS_ALLOWED_MIME_TYPES", "application/pdf,image/png,image/jpeg,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/zip,text/plain")

	v.SetDefault("EXPORTS_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "30m")

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")
	v.SetDefault("ENFORCE_SEAT_LIMIT", false)

	v.SetDefault("CANVAS_BASE_URL", "https://canvas.instructure.com")
	v.SetDefault("CANVAS_API_TOKEN", "")
	v.SetDefault("CANVAS_TIMEOUT", "10s")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
