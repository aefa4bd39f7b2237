package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/hospital-api/internal/email"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	"github.com/jwalitptl/hospital-api/pkg/messaging/kafka"
	"github.com/jwalitptl/hospital-api/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-api/pkg/security"
	"github.com/jwalitptl/hospital-api/pkg/telemetry"
	"github.com/jwalitptl/hospital-api/pkg/worker"
)

// EnvPrefix prefixes environment overrides, e.g. HOSPITAL_DATABASE_HOST.
const EnvPrefix = "hospital"

type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	JWT           JWTConfig          `mapstructure:"jwt"`
	Security      SecurityConfig     `mapstructure:"security"`
	RateLimit     RateLimitConfig    `mapstructure:"rate_limit" split_words:"true"`
	Scheduling    SchedulingConfig   `mapstructure:"scheduling"`
	Broker        BrokerConfig       `mapstructure:"broker"`
	Redis         RedisConfig        `mapstructure:"redis"`
	Kafka         KafkaConfig        `mapstructure:"kafka"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Outbox        OutboxConfig       `mapstructure:"outbox"`
	SMTP          SMTPConfig         `mapstructure:"smtp"`
	Telemetry     TelemetryConfig    `mapstructure:"telemetry"`
	Log           LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
}

type DatabaseConfig struct {
	// Driver selects the appointment store: postgres or memory.
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" split_words:"true"`
	AutoMigrate  bool   `mapstructure:"auto_migrate" split_words:"true"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpiryHours int    `mapstructure:"expiry_hours" split_words:"true"`
}

type SecurityConfig struct {
	BcryptCost     int      `mapstructure:"bcrypt_cost" split_words:"true"`
	AllowedOrigins []string `mapstructure:"allowed_origins" split_words:"true"`
	// NotesKey is a base64 AES key; empty stores notes in clear.
	NotesKey string `mapstructure:"notes_key" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst"`
}

type SchedulingConfig struct {
	WorkdayStart       string        `mapstructure:"workday_start" split_words:"true"`
	WorkdayEnd         string        `mapstructure:"workday_end" split_words:"true"`
	SlotMinutes        int           `mapstructure:"slot_minutes" split_words:"true"`
	Timezone           string        `mapstructure:"timezone"`
	LockTimeout        time.Duration `mapstructure:"lock_timeout" split_words:"true"`
	MaxDurationMinutes int           `mapstructure:"max_duration_minutes" split_words:"true"`
}

type BrokerConfig struct {
	// Type is redis, kafka or none.
	Type  string `mapstructure:"type"`
	Topic string `mapstructure:"topic"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	GroupID string `mapstructure:"group_id" split_words:"true"`
}

type NotificationConfig struct {
	QueueSize       int           `mapstructure:"queue_size" split_words:"true"`
	Workers         int           `mapstructure:"workers"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" split_words:"true"`
	UseOutbox       bool          `mapstructure:"use_outbox" split_words:"true"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval  time.Duration `mapstructure:"poll_interval" split_words:"true"`
	RetryAttempts int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" split_words:"true"`

	// RetentionDays keeps processed events this long before cleanup.
	RetentionDays   int           `mapstructure:"retention_days" split_words:"true"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name" split_words:"true"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" split_words:"true"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "hospital")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("jwt.issuer", "hospital-api")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.allowed_origins", []string{"*"})

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("scheduling.workday_start", "09:00")
	v.SetDefault("scheduling.workday_end", "17:00")
	v.SetDefault("scheduling.slot_minutes", 30)
	v.SetDefault("scheduling.timezone", "UTC")
	v.SetDefault("scheduling.lock_timeout", 2*time.Second)
	v.SetDefault("scheduling.max_duration_minutes", 24*60)

	v.SetDefault("broker.type", "none")
	v.SetDefault("broker.topic", "appointments")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.group_id", "hospital-notifier")

	v.SetDefault("notifications.queue_size", 256)
	v.SetDefault("notifications.workers", 2)
	v.SetDefault("notifications.delivery_timeout", 5*time.Second)

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 500*time.Millisecond)
	v.SetDefault("outbox.retention_days", 7)
	v.SetDefault("outbox.cleanup_interval", time.Hour)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "no-reply@hospital.local")

	v.SetDefault("telemetry.service_name", "hospital-api")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
}

// Load reads .env, then config.yml (from path when given, else the usual
// search paths), then HOSPITAL_* environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Broker.Type {
	case "redis", "kafka", "none":
	default:
		return fmt.Errorf("unknown broker type %q", c.Broker.Type)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Scheduling.LockTimeout <= 0 {
		return errors.New("scheduling.lock_timeout must be positive")
	}
	if _, err := c.Scheduling.WorkingHours(); err != nil {
		return err
	}
	if _, err := security.ParseAESKey(c.Security.NotesKey); err != nil {
		return fmt.Errorf("security.notes_key: %w", err)
	}
	return nil
}

// WorkingHours converts the scheduling section into the slot window.
func (c SchedulingConfig) WorkingHours() (model.WorkingHours, error) {
	start, err := model.ParseClock(c.WorkdayStart)
	if err != nil {
		return model.WorkingHours{}, fmt.Errorf("scheduling.workday_start: %w", err)
	}
	end, err := model.ParseClock(c.WorkdayEnd)
	if err != nil {
		return model.WorkingHours{}, fmt.Errorf("scheduling.workday_end: %w", err)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return model.WorkingHours{}, fmt.Errorf("scheduling.timezone: %w", err)
	}

	slot, err := model.MinutesToDuration(c.SlotMinutes, 0)
	if err != nil {
		return model.WorkingHours{}, fmt.Errorf("scheduling.slot_minutes: %w", err)
	}

	hours := model.WorkingHours{
		Start:    start,
		End:      end,
		SlotSize: slot,
		Location: loc,
	}
	if err := hours.Validate(); err != nil {
		return model.WorkingHours{}, fmt.Errorf("scheduling: %w", err)
	}
	return hours, nil
}

func (c JWTConfig) ToAuthConfig() auth.Config {
	return auth.Config{
		Secret: c.Secret,
		Issuer: c.Issuer,
		TTL:    time.Duration(c.ExpiryHours) * time.Hour,
	}
}

// Add conversion methods to convert config types
func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
	}
}

func (c *OutboxConfig) ToCleanupConfig() worker.OutboxCleanupConfig {
	return worker.OutboxCleanupConfig{
		Retention: time.Duration(c.RetentionDays) * 24 * time.Hour,
		Interval:  c.CleanupInterval,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *KafkaConfig) ToBrokerConfig() kafka.Config {
	return kafka.Config{
		Brokers: kafka.SplitBrokers(c.Brokers),
		GroupID: c.GroupID,
	}
}

func (c *TelemetryConfig) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:     c.Enabled,
		ServiceName: c.ServiceName,
		Endpoint:    strings.TrimSpace(c.Endpoint),
		Insecure:    c.Insecure,
		SampleRatio: c.SampleRatio,
	}
}

func (c *SMTPConfig) ToEmailConfig() email.Config {
	return email.Config{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

func (c *NotificationConfig) ToDispatcherConfig() notification.Config {
	return notification.Config{
		QueueSize:       c.QueueSize,
		Workers:         c.Workers,
		DeliveryTimeout: c.DeliveryTimeout,
	}
}
