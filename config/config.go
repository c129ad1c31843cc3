package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Booking store.
	StoreDriver        string `mapstructure:"STORE_DRIVER"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	DatabaseName       string `mapstructure:"DATABASE_NAME"`
	PostgresDSN        string `mapstructure:"POSTGRES_DSN"`
	BookingsCollection string `mapstructure:"BOOKINGS_COLLECTION"`

	// Firebase (Firestore store).
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	FirebaseProjectID       string `mapstructure:"FIREBASE_PROJECT_ID"`

	// Redis configuration.
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB   int           `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB   int           `mapstructure:"REDIS_QUEUE_DB"`
	IdempotencyTTL time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	// Calendar.
	CalendarDriver        string        `mapstructure:"CALENDAR_DRIVER"`
	GoogleCredentialsFile string        `mapstructure:"GOOGLE_CREDENTIALS_FILE"`
	GoogleImpersonate     string        `mapstructure:"GOOGLE_IMPERSONATE"`
	CalendarID            string        `mapstructure:"CALENDAR_ID"`
	TimeZone              string        `mapstructure:"TIME_ZONE"`
	SessionDuration       time.Duration `mapstructure:"SESSION_DURATION"`
	MeetBaseURL           string        `mapstructure:"MEET_BASE_URL"`

	// Mail.
	MailDriver    string `mapstructure:"MAIL_DRIVER"`
	MailFrom      string `mapstructure:"MAIL_FROM"`
	OperatorEmail string `mapstructure:"OPERATOR_EMAIL"`

	// Lifecycle events.
	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	// Pipeline policy.
	StageTimeout     time.Duration `mapstructure:"STAGE_TIMEOUT"`
	RetryMaxAttempts int           `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryBaseDelay   time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	RetryMaxDelay    time.Duration `mapstructure:"RETRY_MAX_DELAY"`
	RunLease         time.Duration `mapstructure:"RUN_LEASE"`
	ResumeDelay      time.Duration `mapstructure:"RESUME_DELAY"`
	MaxRuns          int           `mapstructure:"MAX_RUNS"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 100)

	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "demobook")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("BOOKINGS_COLLECTION", "bookings")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")
	v.SetDefault("FIREBASE_PROJECT_ID", "")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("REDIS_QUEUE_DB", 1)
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)

	v.SetDefault("CALENDAR_DRIVER", "memory")
	v.SetDefault("GOOGLE_CREDENTIALS_FILE", "")
	v.SetDefault("GOOGLE_IMPERSONATE", "")
	v.SetDefault("CALENDAR_ID", "primary")
	v.SetDefault("TIME_ZONE", "UTC")
	v.SetDefault("SESSION_DURATION", 60*time.Minute)
	v.SetDefault("MEET_BASE_URL", "https://meet.google.com/")

	v.SetDefault("MAIL_DRIVER", "console")
	v.SetDefault("MAIL_FROM", "demos@localhost")
	v.SetDefault("OPERATOR_EMAIL", "")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "bookings")

	v.SetDefault("STAGE_TIMEOUT", 10*time.Second)
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_DELAY", 500*time.Millisecond)
	v.SetDefault("RETRY_MAX_DELAY", 4*time.Second)
	v.SetDefault("RUN_LEASE", 2*time.Minute)
	v.SetDefault("RESUME_DELAY", 5*time.Minute)
	v.SetDefault("MAX_RUNS", 5)
}

// Load reads configuration from an optional .env file, config.yaml and the
// environment, in increasing order of precedence.
func Load(v *viper.Viper) (Config, error) {
	_ = godotenv.Load()

	// Look for a config file named "config.yaml" in the current and "config" directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfig fills AppConfig or exits.
func LoadConfig() {
	cfg, err := Load(viper.New())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	AppConfig = cfg
}

// Validate rejects combinations the process cannot run with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case "mongo", "memory":
	case "firestore":
		if c.FirebaseProjectID == "" && c.FirebaseCredentialsFile == "" {
			return fmt.Errorf("STORE_DRIVER=firestore needs FIREBASE_PROJECT_ID or FIREBASE_CREDENTIALS_FILE")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("STORE_DRIVER=postgres needs POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.CalendarDriver {
	case "google", "memory":
	default:
		return fmt.Errorf("unknown CALENDAR_DRIVER %q", c.CalendarDriver)
	}
	switch c.MailDriver {
	case "gmail", "console":
	default:
		return fmt.Errorf("unknown MAIL_DRIVER %q", c.MailDriver)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("TIME_ZONE: %w", err)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.SessionDuration <= 0 {
		return fmt.Errorf("SESSION_DURATION must be positive")
	}
	if c.MaxRuns < 1 {
		return fmt.Errorf("MAX_RUNS must be at least 1")
	}
	return nil
}

// Location resolves TIME_ZONE. Validate has already checked it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
