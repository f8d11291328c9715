package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Broker         string
		ActuationTopic string
		ReadingsTopic  string
		ScenesTopic    string
		GroupID        string
	}
	DB struct {
		DSN string
	}
	API struct {
		Port     string
		BasePath string
	}
	Dispatch struct {
		Tick             time.Duration
		ActuationTimeout time.Duration
		ExpireAfter      time.Duration
		Workers          int
	}
	Telegram struct {
		BotToken  string
		ChatIDs   []int64
		PerSecond int
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.ActuationTopic = os.Getenv("KAFKA_ACTUATION_TOPIC")
	cfg.Kafka.ReadingsTopic = os.Getenv("KAFKA_READINGS_TOPIC")
	cfg.Kafka.ScenesTopic = os.Getenv("KAFKA_SCENES_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Dispatch settings
	cfg.Dispatch.Tick = durationEnv("DISPATCH_TICK")
	cfg.Dispatch.ActuationTimeout = durationEnv("ACTUATION_TIMEOUT")
	cfg.Dispatch.ExpireAfter = durationEnv("DISPATCH_EXPIRE_AFTER")
	if w, err := strconv.Atoi(os.Getenv("DISPATCH_WORKERS")); err == nil {
		cfg.Dispatch.Workers = w
	}

	// Telegram settings
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	for _, raw := range strings.Split(os.Getenv("TELEGRAM_CHAT_IDS"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("bad TELEGRAM_CHAT_IDS entry %q: %w", raw, err)
		}
		cfg.Telegram.ChatIDs = append(cfg.Telegram.ChatIDs, id)
	}
	if ps, err := strconv.Atoi(os.Getenv("TELEGRAM_PER_SECOND")); err == nil {
		cfg.Telegram.PerSecond = ps
	}

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.ActuationTopic == "" {
		cfg.Kafka.ActuationTopic = "device-actuations"
	}
	if cfg.Kafka.ReadingsTopic == "" {
		cfg.Kafka.ReadingsTopic = "sensor-readings"
	}
	if cfg.Kafka.ScenesTopic == "" {
		cfg.Kafka.ScenesTopic = "scene-triggers"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "automation-service"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Dispatch.Tick == 0 {
		cfg.Dispatch.Tick = time.Second
	}
	if cfg.Dispatch.ActuationTimeout == 0 {
		cfg.Dispatch.ActuationTimeout = 5 * time.Second
	}
	if cfg.Dispatch.ExpireAfter == 0 {
		cfg.Dispatch.ExpireAfter = time.Minute
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 8
	}
	if cfg.Telegram.PerSecond == 0 {
		cfg.Telegram.PerSecond = 1
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

func durationEnv(key string) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return 0
}
