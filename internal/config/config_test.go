package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, "inventory_ledgers", cfg.Store.Collection)
	assert.Equal(t, 5*time.Second, cfg.Store.OpTimeout)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, "info", cfg.App.LogLevel)
}

func TestLoad_MySQL(t *testing.T) {
	t.Setenv("LEDGER_STORE_DRIVER", "MySQL")
	t.Setenv("LEDGER_MYSQL_DSN", "root:root@tcp(localhost:3306)/ledger?parseTime=true")
	t.Setenv("LEDGER_STORE_TX_MAX_ATTEMPTS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMySQL, cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Store.TxMaxAttempts)
	assert.Equal(t, 50, cfg.MySQL.MaxOpenConns)
}

func TestLoad_MissingDriverSettings(t *testing.T) {
	t.Setenv("LEDGER_STORE_DRIVER", "mysql")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("LEDGER_STORE_DRIVER", "redis")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("LEDGER_REDIS_ADDR", "localhost:6379")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
}

func TestLoad_UnknownDriver(t *testing.T) {
	t.Setenv("LEDGER_STORE_DRIVER", "firestore")
	_, err := Load()
	assert.ErrorContains(t, err, "unknown store driver")
}
