package main

import (
	"net"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	Host        string `env:"HOST,default=localhost"`
	Port        int    `env:"PORT,default=8080"`
	HealthPort  int    `env:"HEALTH_PORT,default=8081"`
	LogLevel    string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	LimitMessages   *int          `env:"LIMIT_MESSAGES"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=2s"`
	MonitorInterval time.Duration `env:"MONITOR_INTERVAL,default=10s"`

	JWTSecret               string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration       time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	SecureCookies           bool          `env:"SECURE_COOKIES,default=false"`
	RegisterLimitPerDay     int           `env:"REGISTER_LIMIT_PER_DAY,default=3"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS,default=*"`
	SingleConnectionPerUser bool          `env:"SINGLE_CONNECTION_PER_USER,default=false"`

	MaxMessageSize          int64         `env:"MAX_MESSAGE_SIZE,default=8388608"`
	ConnectionBufferSize    int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=20"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	MutabilityWindow        time.Duration `env:"MUTABILITY_WINDOW,default=5m"`

	BlobBackend          string        `env:"BLOB_BACKEND,default=disk"`
	UploadDir            string        `env:"UPLOAD_DIR,default=uploads"`
	PublicBaseURL        string        `env:"PUBLIC_BASE_URL"`
	S3Bucket             string        `env:"S3_BUCKET"`
	S3Region             string        `env:"S3_REGION,default=us-east-1"`
	S3Endpoint           string        `env:"S3_ENDPOINT"`
	S3Prefix             string        `env:"S3_PREFIX"`
	S3AccessKeyID        string        `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey    string        `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle       bool          `env:"S3_USE_PATH_STYLE,default=false"`
	UploadMaxAttempts    int           `env:"UPLOAD_MAX_ATTEMPTS,default=3"`
	UploadInitialBackoff time.Duration `env:"UPLOAD_INITIAL_BACKOFF,default=200ms"`

	CensoredWordsPath string `env:"CENSORED_WORDS_PATH"`
	CensorCharacter   string `env:"CENSOR_CHARACTER,default=*"`
}

func (c Config) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) origins() []string {
	return strings.Split(c.AllowedOrigins, ",")
}

// publicBaseURL is where uploaded files are served when no explicit URL is
// configured.
func (c Config) publicBaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return "http://" + c.address()
}

func (c Config) censorRune() rune {
	for _, r := range c.CensorCharacter {
		return r
	}
	return '*'
}
