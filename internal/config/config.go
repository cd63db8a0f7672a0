package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Firebase
	FirebaseProjectID string
	FirebaseCredJSON  string

	// Firestore collections
	GroupCollection   string
	TokenCollection   string
	ProfileCollection string

	// Push Notifications
	PushNotificationsEnabled bool // If false, multicast calls are logged and skipped.

	// Dispatch
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Token sweep
	Sweep SweepConfig `yaml:"sweep"`

	// SMTP (optional; email is disabled when SMTPHost is empty)
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// NATS (optional; dispatch results are not published when NatsURL is empty)
	NatsURL     string
	NatsSubject string

	// Server
	ServerShutdownTimeoutSeconds int

	// Logging
	LogLevel  string
	LogFormat string
}

// DispatchConfig tunes the change event worker pool and per-event fan-out.
type DispatchConfig struct {
	Workers           int           `yaml:"workers"`
	QueueSize         int           `yaml:"queue_size"`
	Timeout           time.Duration `yaml:"timeout"`
	FanoutConcurrency int           `yaml:"fanout_concurrency"`
	WatchRetryDelay   time.Duration `yaml:"watch_retry_delay"`
}

// SweepConfig controls the expired token sweep.
type SweepConfig struct {
	Schedule  string        `yaml:"schedule"`
	Retention time.Duration `yaml:"retention"`
}

var (
	AppConfig *Config

	DefaultTokenRetention = 30 * 24 * time.Hour
	DefaultSweepSchedule  = "0 0 * * *"
)

// LoadConfig reads .env, the environment and the optional CONFIG_FILE into AppConfig.
func LoadConfig() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = FromEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		log.Printf("Loading config file: %v", path)

		configFile, err := os.Open(path)
		if err != nil {
			log.Fatalf("Failed to open config file: %v", err)
		}
		defer configFile.Close()

		if err := LoadConfigFile(configFile, AppConfig); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}

	if err := AppConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if !AppConfig.EmailEnabled() {
		log.Println("Warning: SMTP_HOST is not set, new match emails are disabled.")
	}

	if AppConfig.NatsURL == "" {
		log.Println("Warning: NATS_URL is not set, dispatch results will not be published.")
	}

	log.Println("Firebase project ID: ", AppConfig.FirebaseProjectID)
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() *Config {
	return &Config{
		Port: getEnvOrDefault("PORT", "8080"),

		// Firebase
		FirebaseProjectID: getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		FirebaseCredJSON:  getEnvOrDefault("FIREBASE_CRED_JSON", ""),

		// Firestore collections
		GroupCollection:   getEnvOrDefault("GROUP_COLLECTION", "groups"),
		TokenCollection:   getEnvOrDefault("TOKEN_COLLECTION", "notifications"),
		ProfileCollection: getEnvOrDefault("PROFILE_COLLECTION", "users"),

		// Push Notifications
		PushNotificationsEnabled: getEnvOrDefault("PUSH_NOTIFICATIONS_ENABLED", "true") == "true",

		// Dispatch
		Dispatch: DispatchConfig{
			Workers:           getEnvAsInt("DISPATCH_WORKERS", 8),
			QueueSize:         getEnvAsInt("DISPATCH_QUEUE_SIZE", 256),
			Timeout:           getEnvAsDuration("DISPATCH_TIMEOUT", time.Minute),
			FanoutConcurrency: getEnvAsInt("FANOUT_CONCURRENCY", 16),
			WatchRetryDelay:   getEnvAsDuration("WATCH_RETRY_DELAY", 5*time.Second),
		},

		// Token sweep
		Sweep: SweepConfig{
			Schedule:  getEnvOrDefault("SWEEP_SCHEDULE", DefaultSweepSchedule),
			Retention: getEnvAsDuration("TOKEN_RETENTION", DefaultTokenRetention),
		},

		// SMTP (trim whitespace to avoid common config errors)
		SMTPHost: strings.TrimSpace(getEnvOrDefault("SMTP_HOST", "")),
		SMTPPort: getEnvAsInt("SMTP_PORT", 465),
		SMTPUser: strings.TrimSpace(getEnvOrDefault("SMTP_USER", "")),
		SMTPPass: getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom: strings.TrimSpace(getEnvOrDefault("SMTP_FROM", "")),

		// NATS
		NatsURL:     getEnvOrDefault("NATS_URL", ""),
		NatsSubject: getEnvOrDefault("NATS_SUBJECT", "notifications.dispatched"),

		// Server
		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// EmailEnabled reports whether an SMTP host is configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != ""
}

// Validate reports configuration that must stop the process at startup.
func (c *Config) Validate() error {
	var errs []error

	if c.FirebaseProjectID == "" {
		errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required"))
	}

	if c.EmailEnabled() && (c.SMTPUser == "" || c.SMTPPass == "" || c.SMTPFrom == "") {
		errs = append(errs, errors.New("SMTP_USER, SMTP_PASS and SMTP_FROM are required when SMTP_HOST is set"))
	}

	if c.Dispatch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("dispatch workers must be positive, got %d", c.Dispatch.Workers))
	}

	if c.Dispatch.FanoutConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("fan-out concurrency must be positive, got %d", c.Dispatch.FanoutConcurrency))
	}

	if c.Sweep.Retention <= 0 {
		errs = append(errs, fmt.Errorf("token retention must be positive, got %v", c.Sweep.Retention))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

// fileOverlay is the part of Config a CONFIG_FILE may set. Secrets and
// connection settings only come from the environment.
type fileOverlay struct {
	Dispatch DispatchConfig `yaml:"dispatch"`
	Sweep    SweepConfig    `yaml:"sweep"`
}

// LoadConfigFile overlays the dispatch and sweep blocks of a YAML file onto config.
// Any other keys in the file are ignored.
func LoadConfigFile(reader io.Reader, config *Config) error {
	overlay := fileOverlay{
		Dispatch: config.Dispatch,
		Sweep:    config.Sweep,
	}

	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(&overlay); err != nil {
		return err
	}

	config.Dispatch = overlay.Dispatch
	config.Sweep = overlay.Sweep

	return nil
}
