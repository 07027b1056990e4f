package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/bellaamanda2500291/decentralized-space-asset-trading/libs/config"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type KafkaTopics struct {
	OrdersCreated   string
	OrdersCancelled string
	TradesSettled   string
	DeadLetter      string
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	Topics        KafkaTopics
}

type RegistryConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RedisAddr string
	CacheTTL  time.Duration
}

type HeightConfig struct {
	GenesisUnix   int64
	BlockInterval time.Duration
}

type Config struct {
	App        base.AppConfig
	DB         DBConfig
	Kafka      KafkaConfig
	Registry   RegistryConfig
	Heights    HeightConfig
	JWTSecret  string
	Authority  string
	FeeRateBps uint64
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("DSX_CONFIG"))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("DSX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("DSX_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !base.ConfigFileMissing(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "exchange-journal")
	v.SetDefault("kafka.topics.orders_created", "orders.created")
	v.SetDefault("kafka.topics.orders_cancelled", "orders.cancelled")
	v.SetDefault("kafka.topics.trades_settled", "trades.settled")
	v.SetDefault("kafka.topics.dead_letter", "dead_letter")
	v.SetDefault("registry.base_url", "http://asset-registry:8080")
	v.SetDefault("registry.timeout", "5s")
	v.SetDefault("registry.cache_ttl", "30s")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("fee_rate_bps", 250)

	kafkaBrokers := envCSV("KAFKA_BROKERS", v.GetStringSlice("kafka.brokers"))
	kafkaConsumer := envString("KAFKA_CONSUMER_GROUP", v.GetString("kafka.consumer_group"))
	topicCreated := envString("KAFKA_ORDERS_CREATED_TOPIC", v.GetString("kafka.topics.orders_created"))
	topicCancelled := envString("KAFKA_ORDERS_CANCELLED_TOPIC", v.GetString("kafka.topics.orders_cancelled"))
	topicSettled := envString("KAFKA_TRADES_SETTLED_TOPIC", v.GetString("kafka.topics.trades_settled"))
	topicDLQ := envString("KAFKA_DLQ_TOPIC", v.GetString("kafka.topics.dead_letter"))
	registryURL := envString("REGISTRY_BASE_URL", v.GetString("registry.base_url"))
	registryTimeout := envDuration("REGISTRY_TIMEOUT", v.GetDuration("registry.timeout"))
	registryRedis := envString("REGISTRY_REDIS_ADDR", v.GetString("registry.redis_addr"))
	registryCacheTTL := envDuration("REGISTRY_CACHE_TTL", v.GetDuration("registry.cache_ttl"))
	jwtSecret := envString("JWT_SECRET", v.GetString("jwt_secret"))
	authority := envString("AUTHORITY_PRINCIPAL", v.GetString("authority_principal"))
	feeRateBps := envInt("FEE_RATE_BPS", v.GetInt("fee_rate_bps"))
	genesisUnix := envInt("HEIGHT_GENESIS_UNIX", v.GetInt("height.genesis_unix"))
	blockInterval := envDuration("HEIGHT_BLOCK_INTERVAL", v.GetDuration("height.block_interval"))

	if blockInterval <= 0 {
		blockInterval = 15 * time.Second
	}

	cfg := &Config{
		App: *appCfg,
		DB: DBConfig{
			Host:     envString("DB_HOST", envString("POSTGRES_HOST", "localhost")),
			Port:     envInt("DB_PORT", envInt("POSTGRES_PORT", 5432)),
			Name:     envString("DB_NAME", envString("POSTGRES_DB", "dsx_exchange")),
			User:     envString("DB_USER", envString("POSTGRES_USER", "dsx")),
			Password: envString("DB_PASSWORD", envString("POSTGRES_PASSWORD", "dsx")),
			SSLMode:  envString("DB_SSLMODE", envString("POSTGRES_SSLMODE", "disable")),
		},
		Kafka: KafkaConfig{
			Brokers:       kafkaBrokers,
			ConsumerGroup: kafkaConsumer,
			Topics: KafkaTopics{
				OrdersCreated:   topicCreated,
				OrdersCancelled: topicCancelled,
				TradesSettled:   topicSettled,
				DeadLetter:      topicDLQ,
			},
		},
		Registry: RegistryConfig{
			BaseURL:   registryURL,
			Timeout:   registryTimeout,
			RedisAddr: registryRedis,
			CacheTTL:  registryCacheTTL,
		},
		Heights: HeightConfig{
			GenesisUnix:   int64(genesisUnix),
			BlockInterval: blockInterval,
		},
		JWTSecret:  jwtSecret,
		Authority:  authority,
		FeeRateBps: uint64(feeRateBps),
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Kafka.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}
	if cfg.Kafka.Topics.OrdersCreated == "" || cfg.Kafka.Topics.OrdersCancelled == "" || cfg.Kafka.Topics.TradesSettled == "" {
		return nil, fmt.Errorf("kafka topics required")
	}
	if cfg.Registry.BaseURL == "" {
		return nil, fmt.Errorf("registry base url required")
	}
	if cfg.Authority == "" {
		return nil, fmt.Errorf("authority principal required")
	}
	if feeRateBps < 0 || feeRateBps > 1000 {
		return nil, fmt.Errorf("fee_rate_bps must be between 0 and 1000")
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv("DSX_" + key); v != "" {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv("DSX_" + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv("DSX_" + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envCSV(key string, def []string) []string {
	for _, name := range []string{"DSX_" + key, key} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
