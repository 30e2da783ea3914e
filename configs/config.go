package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BroadcastDriver string
	BroadcastTopic  string

	RedisHost     string
	RedisPort     string
	EtcdEndpoints []string
	EtcdLeaseTTL  int
	NatsURL       string

	FallbackInterval time.Duration
	ResponseWindow   time.Duration

	APIPort        string
	LogLevel       string
	LogEncoding    string
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() *Config {
	return &Config{
		BroadcastDriver:  getEnv("BROADCAST_DRIVER", "redis"),
		BroadcastTopic:   getEnv("BROADCAST_TOPIC", "leaderbus"),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		EtcdEndpoints:    getEnvAsList("ETCD_ENDPOINTS", []string{"localhost:2379"}),
		EtcdLeaseTTL:     getEnvAsInt("ETCD_LEASE_TTL", 10),
		NatsURL:          getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		FallbackInterval: getEnvAsDuration("FALLBACK_INTERVAL", 2*time.Second),
		ResponseWindow:   getEnvAsDuration("RESPONSE_WINDOW", 100*time.Millisecond),
		APIPort:          getEnv("API_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogEncoding:      getEnv("LOG_ENCODING", "json"),
		TracingEnabled:   getEnvAsBool("TRACING_ENABLED", false),
		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4318"),
	}
}

// RedisAddr returns host:port for the redis driver.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
