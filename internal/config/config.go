package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; required ones go through must, the rest have
// defaults.
type Config struct {
	Env      string // application environment (dev, test, prod)
	Port     string
	LogLevel string

	DBUser string
	DBPass string // empty allowed
	DBHost string
	DBPort string
	DBName string

	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	CodeTTL          time.Duration // lifetime of verification codes
	ChallengeTTL     time.Duration // lifetime of auth challenge ids
	BcryptCost       int

	RabbitURL   string
	MailQueue   string
	MailWorkers int

	PostmarkServerToken  string // empty selects the log sender
	PostmarkAccountToken string
	MailSender           string

	WSAllowedOrigins  []string
	FirebaseProjectID string // empty disables login with token
}

// Load reads configuration values from environment variables. Missing
// required variables terminate the process.
func Load() Config {
	return Config{
		Env:      must("APP_ENV"),
		Port:     must("APP_PORT"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTAccessSecret:  must("JWT_ACCESS_SECRET"),
		JWTRefreshSecret: must("JWT_REFRESH_SECRET"),
		AccessTTL:        time.Duration(mustInt("ACCESS_TOKEN_TTL_MIN")) * time.Minute,
		RefreshTTL:       time.Duration(mustInt("REFRESH_TOKEN_TTL_DAYS")) * 24 * time.Hour,
		CodeTTL:          time.Duration(envInt("VERIFY_CODE_TTL_SEC", 300)) * time.Second,
		ChallengeTTL:     time.Duration(envInt("AUTH_CHALLENGE_TTL_SEC", 600)) * time.Second,
		BcryptCost:       mustInt("BCRYPT_COST"),

		RabbitURL:   must("RABBITMQ_URL"),
		MailQueue:   getenv("MAIL_QUEUE", "mail"),
		MailWorkers: envInt("MAIL_WORKERS", 2),

		PostmarkServerToken:  os.Getenv("POSTMARK_SERVER_TOKEN"),
		PostmarkAccountToken: os.Getenv("POSTMARK_ACCOUNT_TOKEN"),
		MailSender:           getenv("MAIL_SENDER", "no-reply@localhost"),

		WSAllowedOrigins:  splitList(os.Getenv("WS_ALLOWED_ORIGINS")),
		FirebaseProjectID: os.Getenv("FIREBASE_PROJECT_ID"),
	}
}

// must retrieves the value of a required environment variable and exits
// when it is unset or empty.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must but converts the value to an int.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
