package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Kafka          KafkaConfig          `yaml:"kafka"`
	Redis          RedisConfig          `yaml:"redis"`
	Shopify        ShopifyConfig        `yaml:"shopify"`
	DHL            DHLConfig            `yaml:"dhl"`
	ExpressFreight ExpressFreightConfig `yaml:"express_freight"`
	OrderBox       OrderBoxConfig       `yaml:"orderbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	Username string `yaml:"username" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	DBName   string `yaml:"name" env:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSLMODE"`
}

// ConnString builds a pgx connection string, sslmode defaults to disable.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host               string `yaml:"host" env:"KAFKA_HOST"`
	Port               int    `yaml:"port" env:"KAFKA_PORT"`
	EnrichTopicName    string `yaml:"enrich_topic_name" env:"KAFKA_ENRICH_TOPIC"`
	EnrichDLQTopicName string `yaml:"enrich_dlq_topic_name" env:"KAFKA_ENRICH_DLQ_TOPIC"`
	ConsumerGroup      string `yaml:"consumer_group" env:"KAFKA_CONSUMER_GROUP"`
	MaxRetries         int    `yaml:"max_retries" env:"KAFKA_MAX_RETRIES"`
	BaseBackoffMillis  int    `yaml:"base_backoff_millis" env:"KAFKA_BASE_BACKOFF_MS"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host" env:"REDIS_HOST"`
	Port int    `yaml:"port" env:"REDIS_PORT"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type ShopifyConfig struct {
	// BaseURL overrides https://<shop domain>; used against mock shops.
	BaseURL    string `yaml:"base_url" env:"SHOPIFY_BASE_URL"`
	APIVersion string `yaml:"api_version" env:"SHOPIFY_API_VERSION"`

	// Requests per company per minute for background calls.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"SHOPIFY_RATE_LIMIT_PER_MINUTE"`
}

type DHLConfig struct {
	BaseURL string `yaml:"base_url" env:"DHL_BASE_URL"`
}

type ExpressFreightConfig struct {
	BaseURL         string `yaml:"base_url" env:"EF_BASE_URL"`
	TokenTTLSeconds int    `yaml:"token_ttl_seconds" env:"EF_TOKEN_TTL_SECONDS"`
}

type OrderBoxConfig struct {
	HTTPAddr string `yaml:"http_addr" env:"ORDERBOX_HTTP_ADDR"`

	WorkerHTTPAddr      string `yaml:"worker_http_addr" env:"ORDERBOX_WORKER_HTTP_ADDR"`
	SyncIntervalSeconds int    `yaml:"sync_interval_seconds" env:"ORDERBOX_SYNC_INTERVAL_SECONDS"`
	SyncLookbackSeconds int    `yaml:"sync_lookback_seconds" env:"ORDERBOX_SYNC_LOOKBACK_SECONDS"`
	SyncConcurrency     int    `yaml:"sync_concurrency" env:"ORDERBOX_SYNC_CONCURRENCY"`

	// "fake" replaces both carrier clients, for demo stacks without carrier accounts.
	CarrierMode string `yaml:"carrier_mode" env:"ORDERBOX_CARRIER_MODE"`
}

// LoadConfig reads the YAML file, then applies environment overrides.
// A .env file in the working directory is loaded first when present.
func LoadConfig(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return &config, nil
}
