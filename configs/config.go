package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/maheshrc27/reelqueue/pkg/logger"
)

type Instagram struct {
	ClientID     string `env:"INSTAGRAM_CLIENT_ID"`
	ClientSecret string `env:"INSTAGRAM_CLIENT_SECRET"`
	RedirectURI  string `env:"INSTAGRAM_REDIRECT_URI"`
	GraphAPIURL  string `env:"GRAPH_API_URL" envDefault:"https://graph.facebook.com/v20.0"`
	AuthURL      string `env:"INSTAGRAM_AUTH_URL" envDefault:"https://www.instagram.com/oauth/authorize"`
	TokenURL     string `env:"INSTAGRAM_TOKEN_URL" envDefault:"https://api.instagram.com/oauth/access_token"`
	UserAPIURL   string `env:"INSTAGRAM_USER_API_URL" envDefault:"https://graph.instagram.com"`
}

// Spaces holds credentials for the S3-compatible bucket that receives uploads.
type Spaces struct {
	Endpoint   string `env:"ENDPOINT"`
	Region     string `env:"REGION" envDefault:"auto"`
	AccessKey  string `env:"KEY"`
	SecretKey  string `env:"SECRET"`
	BucketName string `env:"BUCKET"`
	PublicURL  string `env:"PUBLIC_URL"`
}

// Publish tunes the remote publish protocol and the batch runner.
type Publish struct {
	PollInterval     time.Duration `env:"PUBLISH_POLL_INTERVAL" envDefault:"5s"`
	PollAttempts     int           `env:"PUBLISH_POLL_ATTEMPTS" envDefault:"12"`
	RemoteAttempts   int           `env:"REMOTE_MAX_ATTEMPTS" envDefault:"3"`
	RemoteBaseDelay  time.Duration `env:"REMOTE_BASE_DELAY" envDefault:"1s"`
	RequestTimeout   time.Duration `env:"REMOTE_REQUEST_TIMEOUT" envDefault:"30s"`
	BatchConcurrency int           `env:"BATCH_CONCURRENCY" envDefault:"4"`
	ClaimLease       time.Duration `env:"CLAIM_LEASE" envDefault:"15m"`
	CronSchedule     string        `env:"CRON_SCHEDULE" envDefault:"@every 1m"`
	CronSecret       string        `env:"CRON_SECRET"`
}

type Config struct {
	Port              string        `env:"PORT" envDefault:"3000"`
	PostgresURI       string        `env:"POSTGRES_URI"`
	RedisURI          string        `env:"REDIS_URI"`
	FrontendURL       string        `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	SecretKey         string        `env:"SECRET_KEY"`
	CookieName        string        `env:"COOKIE_NAME" envDefault:"app_session_token"`
	SessionCookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"app_session_id"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SecureCookies     bool          `env:"SECURE_COOKIES" envDefault:"false"`

	Instagram Instagram
	Spaces    Spaces `envPrefix:"SPACES_"`
	Publish   Publish
	Logger    logger.Config `envPrefix:"LOG_"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize replaces out-of-range values with safe defaults.
func (c *Config) Sanitize() {
	if c.Publish.PollInterval <= 0 {
		c.Publish.PollInterval = 5 * time.Second
	}
	if c.Publish.PollAttempts <= 0 {
		c.Publish.PollAttempts = 12
	}
	if c.Publish.RemoteAttempts <= 0 {
		c.Publish.RemoteAttempts = 3
	}
	if c.Publish.RemoteBaseDelay <= 0 {
		c.Publish.RemoteBaseDelay = time.Second
	}
	if c.Publish.RequestTimeout <= 0 {
		c.Publish.RequestTimeout = 30 * time.Second
	}
	if c.Publish.BatchConcurrency <= 0 {
		c.Publish.BatchConcurrency = 1
	}
	if c.Publish.BatchConcurrency > 32 {
		c.Publish.BatchConcurrency = 32
	}
	if c.Publish.ClaimLease <= 0 {
		c.Publish.ClaimLease = 15 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * 24 * time.Hour
	}
}

// Validate reports settings the server cannot start without. An empty
// POSTGRES_URI is allowed and selects the in-memory store.
func (c *Config) Validate() error {
	switch len(c.SecretKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("SECRET_KEY must be 16, 24 or 32 bytes, got %d", len(c.SecretKey))
	}
	return nil
}
