package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// App mode & server
	Mode             string
	ServerAddr       string
	TLSCertFile      string
	TLSKeyFile       string
	GinMode          string
	MigrateDirection string

	// Relational store
	StoreDriver       string
	DatabaseDSN       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBSlowThreshold   time.Duration

	// Kafka
	KafkaEnabled   bool
	KafkaBroker    string
	KafkaTopic     string
	KafkaGroupID   string
	KafkaPartition int
	KafkaReadTO    time.Duration
	KafkaWriteTO   time.Duration

	// Worker
	WorkerCount     int
	WorkerQueueSize int

	// Cassandra
	CassandraHost     string
	CassandraKeyspace string
	CassandraUsername string
	CassandraPassword string
	CassandraTimeout  time.Duration
	CassandraDC       string

	// Redis
	RedisURL      string
	PublicFeedTTL time.Duration

	// Sessions
	JWTSecret           string
	SessionTTL          time.Duration
	SessionCookie       string
	SessionCookieSecure bool
}

var cfg *Config

// Init loads the config using Viper and returns it
func Init() *Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	viper.SetDefault("MODE", "server")
	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("GIN_MODE", "release")
	viper.SetDefault("MIGRATE_DIRECTION", "up")

	viper.SetDefault("STORE_DRIVER", "sqlite")
	viper.SetDefault("DATABASE_DSN", "file:ribbit.db?_foreign_keys=on")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 10)
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	viper.SetDefault("DB_SLOW_THRESHOLD", "200ms")

	viper.SetDefault("KAFKA_ENABLED", false)
	viper.SetDefault("KAFKA_BROKER", "localhost:29092")
	viper.SetDefault("KAFKA_TOPIC", "ribbit-events")
	viper.SetDefault("KAFKA_GROUP_ID", "ribbit-worker")
	viper.SetDefault("KAFKA_PARTITION", 0)
	viper.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	viper.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	viper.SetDefault("WORKER_COUNT", 0)
	viper.SetDefault("WORKER_QUEUE_SIZE", 0)

	viper.SetDefault("CASSANDRA_HOST", "localhost")
	viper.SetDefault("CASSANDRA_KEYSPACE", "ribbit")
	viper.SetDefault("CASSANDRA_TIMEOUT", "10s")
	// Optional: Cassandra username/password/DC can be empty

	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("PUBLIC_FEED_TTL", "30s")

	// JWT_SECRET has no default: Validate refuses to serve without one.
	viper.SetDefault("SESSION_TTL", "336h")
	viper.SetDefault("SESSION_COOKIE", "ribbit_session")
	viper.SetDefault("SESSION_COOKIE_SECURE", false)

	// Load env variables
	viper.AutomaticEnv()

	// Optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	_ = viper.ReadInConfig() // ignore error if no file

	cfg = &Config{
		Mode:             viper.GetString("MODE"),
		ServerAddr:       viper.GetString("SERVER_ADDR"),
		TLSCertFile:      viper.GetString("TLS_CERT_FILE"),
		TLSKeyFile:       viper.GetString("TLS_KEY_FILE"),
		GinMode:          viper.GetString("GIN_MODE"),
		MigrateDirection: viper.GetString("MIGRATE_DIRECTION"),

		StoreDriver:       viper.GetString("STORE_DRIVER"),
		DatabaseDSN:       viper.GetString("DATABASE_DSN"),
		DBMaxOpenConns:    viper.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:    viper.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime: parseDuration(viper.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		DBSlowThreshold:   parseDuration(viper.GetString("DB_SLOW_THRESHOLD"), 200*time.Millisecond),

		KafkaEnabled:   viper.GetBool("KAFKA_ENABLED"),
		KafkaBroker:    viper.GetString("KAFKA_BROKER"),
		KafkaTopic:     viper.GetString("KAFKA_TOPIC"),
		KafkaGroupID:   viper.GetString("KAFKA_GROUP_ID"),
		KafkaPartition: viper.GetInt("KAFKA_PARTITION"),
		KafkaReadTO:    parseDuration(viper.GetString("KAFKA_READ_TIMEOUT"), 10*time.Second),
		KafkaWriteTO:   parseDuration(viper.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),

		WorkerCount:     viper.GetInt("WORKER_COUNT"),
		WorkerQueueSize: viper.GetInt("WORKER_QUEUE_SIZE"),

		CassandraHost:     viper.GetString("CASSANDRA_HOST"),
		CassandraKeyspace: viper.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername: viper.GetString("CASSANDRA_USERNAME"),
		CassandraPassword: viper.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:  parseDuration(viper.GetString("CASSANDRA_TIMEOUT"), 10*time.Second),
		CassandraDC:       viper.GetString("CASSANDRA_DC"),

		RedisURL:      viper.GetString("REDIS_URL"),
		PublicFeedTTL: parseDuration(viper.GetString("PUBLIC_FEED_TTL"), 30*time.Second),

		JWTSecret:           viper.GetString("JWT_SECRET"),
		SessionTTL:          parseDuration(viper.GetString("SESSION_TTL"), 14*24*time.Hour),
		SessionCookie:       viper.GetString("SESSION_COOKIE"),
		SessionCookieSecure: viper.GetBool("SESSION_COOKIE_SECURE"),
	}

	return cfg
}

// placeholderSecrets are sample values that must never sign sessions.
var placeholderSecrets = map[string]bool{
	"change-me":   true,
	"changeme":    true,
	"secret":      true,
	"your-secret": true,
}

var ErrInsecureJWTSecret = errors.New("JWT_SECRET is empty or a placeholder")

// Validate checks the settings the given mode cannot run without.
func (c *Config) Validate() error {
	switch c.Mode {
	case "server", "worker":
		if c.JWTSecret == "" || placeholderSecrets[c.JWTSecret] {
			return ErrInsecureJWTSecret
		}
	}
	return nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}
