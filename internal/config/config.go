package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// S3 source bucket
	BucketName  string        `env:"BUCKET_NAME,required"`
	S3Region    string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string        `env:"S3_ENDPOINT"`
	S3AccessKey string        `env:"S3_ACCESS_KEY"`
	S3SecretKey string        `env:"S3_SECRET_KEY"`
	PresignTTL  time.Duration `env:"PRESIGN_TTL" envDefault:"1h"`

	// Session selection
	Room    string   `env:"ROOM,required"`
	UserIDs []string `env:"USER_IDS,required" envSeparator:","`

	// Deepgram
	DeepgramAPIKey    string        `env:"DEEPGRAM_API_KEY,required"`
	DeepgramModel     string        `env:"DEEPGRAM_MODEL" envDefault:"nova-2"`
	Language          string        `env:"LANGUAGE" envDefault:"en-US"`
	TranscribeTimeout time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"2m"`

	// Materialization
	AudioDir     string        `env:"AUDIO_DIR" envDefault:"./audio"`
	FFmpegPath   string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath  string        `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`

	// Pipeline
	Workers   int    `env:"WORKERS" envDefault:"8"`
	OutputDir string `env:"OUTPUT_DIR" envDefault:"./transcripts"`

	// Optional sinks
	DatabaseURL   string `env:"DATABASE_URL"`
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"bucket-to-deepgram"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	// HTTP status server (disabled when empty)
	HTTPAddr     string        `env:"HTTP_ADDR"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	Room     string
	HTTPAddr string
	LogLevel string
	AudioDir string
	Workers  int
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.Room != "" {
		cfg.Room = overrides.Room
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}
	if overrides.Workers > 0 {
		cfg.Workers = overrides.Workers
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers)
	}
	for i, uid := range c.UserIDs {
		c.UserIDs[i] = strings.TrimSpace(uid)
		if c.UserIDs[i] == "" {
			return fmt.Errorf("USER_IDS contains an empty entry")
		}
	}
	return nil
}
