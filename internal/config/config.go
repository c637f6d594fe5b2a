package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the processor service.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	HTTP      HTTPConfig      `yaml:"http"`
	Queue     QueueConfig     `yaml:"queue"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Processor ProcessorConfig `yaml:"processor"`
}

// HTTPConfig configures the ingress server.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	AuthToken   string `yaml:"auth_token"`
	MaxBodySize int64  `yaml:"max_body_size"`
}

// QueueConfig bounds the invocation queue in front of the runner.
type QueueConfig struct {
	Size              int           `yaml:"size"`
	InvocationTimeout time.Duration `yaml:"invocation_timeout"`
}

// DispatchConfig bounds each WhatsApp API call.
type DispatchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// KafkaConfig configures the channel-message consumer and the alert
// audit producer. Either side is off while its topic is empty.
type KafkaConfig struct {
	Brokers    []string       `yaml:"brokers"`
	Topic      string         `yaml:"topic"`
	GroupID    string         `yaml:"group_id"`
	AlertTopic string         `yaml:"alert_topic"`
	Producer   ProducerConfig `yaml:"producer"`
}

// ProducerConfig tunes the audit producer.
type ProducerConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// RedisConfig locates the tag store. An empty Addr selects the in-memory store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// NATSConfig configures the optional channel subscription over NATS.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ScheduleConfig drives the periodic scheduled invocation.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
	AgentID  string        `yaml:"agent_id"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:        ":8080",
			MaxBodySize: 1 << 20,
		},
		Queue: QueueConfig{
			Size:              256,
			InvocationTimeout: 2 * time.Minute,
		},
		Dispatch: DispatchConfig{
			Timeout: 30 * time.Second,
		},
		Kafka: KafkaConfig{
			GroupID: "whatsapp-processor",
			Producer: ProducerConfig{
				BatchSize:    1,
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: 1,
				Compression:  "snappy",
				MaxAttempts:  3,
			},
		},
		Redis: RedisConfig{
			KeyPrefix: "tags",
		},
		NATS: NATSConfig{
			Subject: "channels.messages",
		},
		Processor: DefaultProcessor(),
	}
}

// Load builds the config from defaults, then the YAML file at path (if
// any), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.AuthToken = getEnv("HTTP_AUTH_TOKEN", cfg.HTTP.AuthToken)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = splitCSV(brokers)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Kafka.GroupID)
	cfg.Kafka.AlertTopic = getEnv("KAFKA_ALERT_TOPIC", cfg.Kafka.AlertTopic)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Subject = getEnv("NATS_SUBJECT", cfg.NATS.Subject)

	cfg.Schedule.Interval = getEnvDuration("SCHEDULE_INTERVAL", cfg.Schedule.Interval)
	cfg.Schedule.AgentID = getEnv("SCHEDULE_AGENT_ID", cfg.Schedule.AgentID)

	cfg.Dispatch.Timeout = getEnvDuration("WHATSAPP_TIMEOUT", cfg.Dispatch.Timeout)

	p := &cfg.Processor
	p.WhatsAppAPIURL = getEnv("WHATSAPP_API_URL", p.WhatsAppAPIURL)
	p.WhatsAppPhoneNumberID = getEnv("WHATSAPP_PHONE_NUMBER_ID", p.WhatsAppPhoneNumberID)
	p.WhatsAppAccessToken = getEnv("WHATSAPP_ACCESS_TOKEN", p.WhatsAppAccessToken)
	p.RecipientPhoneNumbers = getEnv("RECIPIENT_PHONE_NUMBERS", p.RecipientPhoneNumbers)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
