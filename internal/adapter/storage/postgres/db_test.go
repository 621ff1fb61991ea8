package postgres

import (
	"testing"
	"time"

	"offline-wallet/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "wallet",
		Password: "secret",
		DBName:   "mirror",
		SSLMode:  "disable",
	}
}

func TestPoolConfig_FromSettings(t *testing.T) {
	cfg := remoteConfig()
	cfg.MaxConns = 8
	cfg.MinConns = 2
	cfg.ConnMaxLifetime = 30 * time.Minute

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(8), poolCfg.MaxConns)
	assert.Equal(t, int32(2), poolCfg.MinConns)
	assert.Equal(t, 30*time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "localhost", poolCfg.ConnConfig.Host)
	assert.Equal(t, uint16(5432), poolCfg.ConnConfig.Port)
	assert.Equal(t, "mirror", poolCfg.ConnConfig.Database)
	assert.Equal(t, "offline-wallet", poolCfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_ClampsMinConns(t *testing.T) {
	cfg := remoteConfig()
	cfg.MaxConns = 2
	cfg.MinConns = 10

	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(2), poolCfg.MinConns)
}

func TestPoolConfig_KeepsDriverDefaults(t *testing.T) {
	poolCfg, err := poolConfig(remoteConfig())
	require.NoError(t, err)
	assert.Positive(t, poolCfg.MaxConns)
	assert.Equal(t, int32(0), poolCfg.MinConns)
}

func TestPoolConfig_InvalidDSN(t *testing.T) {
	cfg := remoteConfig()
	cfg.Port = -1

	_, err := poolConfig(cfg)
	assert.ErrorContains(t, err, "parsing database config")
}
