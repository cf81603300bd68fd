package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	Production bool

	// Backend selects the provider implementation: "mongo" or "memory".
	Backend  string
	MongoURI string
	MongoDB  string

	RedisAddr string
	RabbitURL string
	Exchange  string

	JWTSecret       string
	TokenTTLHours   int
	SignInPerMin    int
	RateLimitPerMin int
	FeedLimit       int

	// Tracing starts the Datadog tracer; spans are no-ops otherwise.
	Tracing bool

	// notifier (cmd/notify)
	NotifyQueue   string
	NotifyWorkers int

	// PublicURL is where users reach the API; confirmation links point here.
	PublicURL string
	SMTPAddr  string
	SMTPUser  string
	SMTPPass  string
	MailFrom  string
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:            getenv("APP_PORT", "8080"),
		Production:      getenv("APP_ENV", "dev") == "prod",
		Backend:         strings.ToLower(getenv("FEED_BACKEND", "mongo")),
		MongoURI:        getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getenv("MONGO_DB", "feed_db"),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		RabbitURL:       getenv("RABBIT_URL", ""),
		Exchange:        getenv("RABBIT_EXCHANGE", "feed.events"),
		JWTSecret:       getenv("JWT", "default_secret_key"),
		TokenTTLHours:   atoi(getenv("TOKEN_TTL_HOURS", "24"), 24),
		SignInPerMin:    atoi(getenv("SIGNIN_PER_MIN", "10"), 10),
		RateLimitPerMin: atoi(getenv("RATE_LIMIT_PER_MIN", "60"), 60),
		FeedLimit:       atoi(getenv("FEED_LIMIT", "50"), 50),
		Tracing:         getenv("DD_TRACE_ENABLED", "false") == "true",

		NotifyQueue:   getenv("NOTIFY_QUEUE", "feed.verify"),
		NotifyWorkers: atoi(getenv("NOTIFY_WORKERS", "4"), 4),
		PublicURL:     getenv("PUBLIC_URL", "http://localhost:8080"),
		SMTPAddr:      getenv("SMTP_ADDR", ""),
		SMTPUser:      getenv("SMTP_USER", ""),
		SMTPPass:      getenv("SMTP_PASS", ""),
		MailFrom:      getenv("MAIL_FROM", "no-reply@feed.local"),
	}
}

func atoi(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
