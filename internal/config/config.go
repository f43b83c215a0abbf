package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "LEDGER"

const (
	StoreDriverMemory = "memory"
	StoreDriverMySQL  = "mysql"
	StoreDriverRedis  = "redis"
)

type Config struct {
	App   AppConfig
	Store StoreConfig
	MySQL MySQLConfig
	Redis RedisConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("%s_MYSQL_DSN is required for the mysql store", EnvPrefix)
		}
	case StoreDriverRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("%s_REDIS_URL or %s_REDIS_ADDR is required for the redis store", EnvPrefix, EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"LEDGER_APP_ENV" default:"dev"`
	HTTPAddr     string `envconfig:"LEDGER_HTTP_ADDR" default:":8080"`
	GRPCAddr     string `envconfig:"LEDGER_GRPC_ADDR" default:":50051"`
	LogLevel     string `envconfig:"LEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LEDGER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LEDGER_LOG_WARN_STACK" default:"false"`
}

type StoreConfig struct {
	Driver     string `envconfig:"LEDGER_STORE_DRIVER" default:"memory"`
	Collection string `envconfig:"LEDGER_STORE_COLLECTION" default:"inventory_ledgers"`
	// TxMaxAttempts bounds how often a conflicting transaction is retried.
	TxMaxAttempts int           `envconfig:"LEDGER_STORE_TX_MAX_ATTEMPTS" default:"0"`
	OpTimeout     time.Duration `envconfig:"LEDGER_STORE_OP_TIMEOUT" default:"5s"`
	AutoMigrate   bool          `envconfig:"LEDGER_AUTO_MIGRATE" default:"false"`
}

type MySQLConfig struct {
	DSN             string        `envconfig:"LEDGER_MYSQL_DSN"`
	MaxOpenConns    int           `envconfig:"LEDGER_MYSQL_MAX_OPEN_CONNS" default:"50"`
	MaxIdleConns    int           `envconfig:"LEDGER_MYSQL_MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGER_MYSQL_CONN_MAX_LIFETIME" default:"5m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGER_REDIS_URL"`
	Address      string        `envconfig:"LEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"LEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEDGER_REDIS_POOL_SIZE" default:"100"`
	DialTimeout  time.Duration `envconfig:"LEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGER_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"LEDGER_REDIS_WRITE_TIMEOUT" default:"3s"`
}
