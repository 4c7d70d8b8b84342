package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gatekeeper/mail"
	"gatekeeper/security"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	Version = "1.0.0"

	developmentSecret = "development-secret-key-change-me"
)

type Settings struct {
	ProjectName string
	APIV1Prefix string
	ListenAddr  string
	CORSOrigins []string
	FrontendURL string

	SecretKey                string
	Algorithm                string
	AccessTokenExpire        time.Duration
	PasswordResetTokenExpire time.Duration

	PasswordMinLength      int
	PasswordRequireUpper   bool
	PasswordRequireLower   bool
	PasswordRequireDigit   bool
	PasswordRequireSpecial bool
	BcryptCost             int

	RateLimitEnabled         bool
	RateLimitAuthenticated   string
	RateLimitUnauthenticated string
	RateLimitAuthEndpoints   string
	RedisAddr                string

	RoleCacheTTL time.Duration

	CreateDefaultAdmin   bool
	DefaultAdminEmail    string
	DefaultAdminUsername string
	DefaultAdminPassword string

	MailTransport string
	MailFrom      string
	MailFromName  string
	MailServer    string
	MailPort      int
	MailUsername  string
	MailPassword  string
	MailStartTLS  bool
	SendGridKey   string
	ResendKey     string

	LogLevel  string
	LogFormat string

	TracingEnabled bool
	MetricsEnabled bool
}

// Load reads the given dotenv files (".env" when none are named) into the
// process environment without overriding it, then builds the settings.
func Load(files ...string) (*Settings, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	s := FromEnv()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func FromEnv() *Settings {
	return &Settings{
		ProjectName: GetEnvAsString("PROJECT_NAME", "gatekeeper"),
		APIV1Prefix: strings.TrimSuffix(GetEnvAsString("API_V1_PREFIX", "/api/v1"), "/"),
		ListenAddr:  GetEnvAsString("LISTEN_ADDR", ":8080"),
		CORSOrigins: GetEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080"}),
		FrontendURL: strings.TrimSuffix(GetEnvAsString("FRONTEND_URL", "http://localhost:3000"), "/"),

		SecretKey:                os.Getenv("SECRET_KEY"),
		Algorithm:                GetEnvAsString("ALGORITHM", "HS256"),
		AccessTokenExpire:        time.Duration(GetEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		PasswordResetTokenExpire: time.Duration(GetEnvAsInt("PASSWORD_RESET_TOKEN_EXPIRE_MINUTES", 15)) * time.Minute,

		PasswordMinLength:      GetEnvAsInt("PASSWORD_MIN_LENGTH", 8),
		PasswordRequireUpper:   GetEnvAsBool("PASSWORD_REQUIRE_UPPER", true),
		PasswordRequireLower:   GetEnvAsBool("PASSWORD_REQUIRE_LOWER", true),
		PasswordRequireDigit:   GetEnvAsBool("PASSWORD_REQUIRE_DIGIT", true),
		PasswordRequireSpecial: GetEnvAsBool("PASSWORD_REQUIRE_SPECIAL", true),
		BcryptCost:             GetEnvAsInt("BCRYPT_COST", bcrypt.DefaultCost),

		RateLimitEnabled:         GetEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitAuthenticated:   GetEnvAsString("RATE_LIMIT_AUTHENTICATED", "100/minute"),
		RateLimitUnauthenticated: GetEnvAsString("RATE_LIMIT_UNAUTHENTICATED", "20/minute"),
		RateLimitAuthEndpoints:   GetEnvAsString("RATE_LIMIT_AUTH_ENDPOINTS", "5/minute"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),

		RoleCacheTTL: GetEnvAsDuration("ROLE_CACHE_TTL", time.Minute),

		CreateDefaultAdmin:   GetEnvAsBool("CREATE_DEFAULT_ADMIN", false),
		DefaultAdminEmail:    GetEnvAsString("DEFAULT_ADMIN_EMAIL", "admin@example.com"),
		DefaultAdminUsername: GetEnvAsString("DEFAULT_ADMIN_USERNAME", "admin"),
		DefaultAdminPassword: os.Getenv("DEFAULT_ADMIN_PASSWORD"),

		MailTransport: strings.ToLower(GetEnvAsString("MAIL_TRANSPORT", mail.TransportLog)),
		MailFrom:      GetEnvAsString("MAIL_FROM", "noreply@example.com"),
		MailFromName:  GetEnvAsString("MAIL_FROM_NAME", "gatekeeper"),
		MailServer:    os.Getenv("MAIL_SERVER"),
		MailPort:      GetEnvAsInt("MAIL_PORT", 587),
		MailUsername:  os.Getenv("MAIL_USERNAME"),
		MailPassword:  os.Getenv("MAIL_PASSWORD"),
		MailStartTLS:  GetEnvAsBool("MAIL_STARTTLS", true),
		SendGridKey:   os.Getenv("SENDGRID_API_KEY"),
		ResendKey:     os.Getenv("RESEND_API_KEY"),

		LogLevel:  GetEnvAsString("LOG_LEVEL", "info"),
		LogFormat: GetEnvAsString("LOG_FORMAT", "json"),

		TracingEnabled: GetEnvAsBool("TRACING_ENABLED", false),
		MetricsEnabled: GetEnvAsBool("METRICS_ENABLED", true),
	}
}

// Validate rejects settings the service cannot run with. Outside of gin's
// release mode a missing SECRET_KEY falls back to a development key.
func (s *Settings) Validate() error {
	if s.Algorithm != "HS256" {
		return fmt.Errorf("unsupported token algorithm %s, only HS256 is supported", s.Algorithm)
	}
	if s.SecretKey == "" {
		if gin.Mode() == gin.ReleaseMode {
			return errors.New("SECRET_KEY is required in release mode")
		}
		logrus.Warn("SECRET_KEY is not set, using the development key")
		s.SecretKey = developmentSecret
	}
	if s.AccessTokenExpire <= 0 || s.PasswordResetTokenExpire <= 0 {
		return errors.New("token expiry must be positive")
	}
	if s.BcryptCost < bcrypt.MinCost || s.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if s.PasswordMinLength < 1 {
		return errors.New("PASSWORD_MIN_LENGTH must be positive")
	}
	if s.CreateDefaultAdmin && s.DefaultAdminPassword == "" {
		return errors.New("DEFAULT_ADMIN_PASSWORD is required when CREATE_DEFAULT_ADMIN is enabled")
	}
	return nil
}

func (s *Settings) PasswordPolicy() security.PasswordPolicy {
	return security.PasswordPolicy{
		MinLength:      s.PasswordMinLength,
		RequireUpper:   s.PasswordRequireUpper,
		RequireLower:   s.PasswordRequireLower,
		RequireDigit:   s.PasswordRequireDigit,
		RequireSpecial: s.PasswordRequireSpecial,
	}
}

func (s *Settings) MailTransportConfig() mail.TransportConfig {
	return mail.TransportConfig{
		Kind:           s.MailTransport,
		SMTPHost:       s.MailServer,
		SMTPPort:       s.MailPort,
		SMTPUsername:   s.MailUsername,
		SMTPPassword:   s.MailPassword,
		SMTPStartTLS:   s.MailStartTLS,
		SendGridAPIKey: s.SendGridKey,
		ResendAPIKey:   s.ResendKey,
	}
}
