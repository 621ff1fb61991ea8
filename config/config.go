package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all wallet configuration.
type Config struct {
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Keys     KeysConfig     `mapstructure:"keys"`
	Pin      PinConfig      `mapstructure:"pin"`
	Contacts ContactsConfig `mapstructure:"contacts"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Server   ServerConfig   `mapstructure:"server"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
}

type WalletConfig struct {
	UID     string `mapstructure:"uid"`
	DataDir string `mapstructure:"data_dir"`
}

type LedgerConfig struct {
	DSN string `mapstructure:"dsn"` // empty = <data_dir>/wallet.db
}

type KeysConfig struct {
	MasterKey string `mapstructure:"master_key"` // 32-byte hex key sealing the vault
	SharedKey string `mapstructure:"shared_key"` // 32-byte hex voucher key shared by the wallet network
}

type PinConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	MinLength   int `mapstructure:"min_length"`
	MaxLength   int `mapstructure:"max_length"`
}

type ContactsConfig struct {
	File string `mapstructure:"file"` // empty = <data_dir>/contacts.yaml
}

// Remote backends.
const (
	RemoteNone     = "none"
	RemotePostgres = "postgres"
	RemoteMongo    = "mongo"
)

type RemoteConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres DatabaseConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type SyncConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	Interval     time.Duration   `mapstructure:"interval"`
	RetryBackoff []time.Duration `mapstructure:"retry_backoff"`
	LockTTL      time.Duration   `mapstructure:"lock_ttl"`
	RedeemTTL    time.Duration   `mapstructure:"redeem_ttl"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// LedgerDSN returns the SQLite DSN of the device database.
func (c *Config) LedgerDSN() string {
	if c.Ledger.DSN != "" {
		return c.Ledger.DSN
	}
	return "file:" + filepath.Join(c.Wallet.DataDir, "wallet.db")
}

// ContactsFile returns the path of the contact directory file.
func (c *Config) ContactsFile() string {
	if c.Contacts.File != "" {
		return c.Contacts.File
	}
	return filepath.Join(c.Wallet.DataDir, "contacts.yaml")
}

// Validate checks the settings every wallet command depends on.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Wallet.UID) == "" {
		errs = append(errs, errors.New("wallet.uid is required"))
	}
	if err := checkHexKey("keys.master_key", c.Keys.MasterKey, true); err != nil {
		errs = append(errs, err)
	}
	if err := checkHexKey("keys.shared_key", c.Keys.SharedKey, false); err != nil {
		errs = append(errs, err)
	}
	if c.Pin.MaxAttempts < 1 {
		errs = append(errs, errors.New("pin.max_attempts must be at least 1"))
	}
	if c.Pin.MinLength < 1 || c.Pin.MaxLength < c.Pin.MinLength {
		errs = append(errs, errors.New("pin.min_length/max_length are inconsistent"))
	}
	switch c.Remote.Backend {
	case RemoteNone, RemotePostgres, RemoteMongo:
	default:
		errs = append(errs, fmt.Errorf("remote.backend %q is not one of none, postgres, mongo", c.Remote.Backend))
	}
	return errors.Join(errs...)
}

func checkHexKey(name, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return fmt.Errorf("%s is not valid hex: %w", name, err)
	}
	if len(key) != 32 {
		return fmt.Errorf("%s must be 32 bytes, got %d", name, len(key))
	}
	return nil
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: WALLET_.
// Nested keys use underscore: WALLET_PIN_MAX_ATTEMPTS, WALLET_REMOTE_BACKEND, etc.
func Load(path string) (*Config, error) {
	return LoadFrom(viper.New(), path)
}

// LoadFrom is Load on a caller-provided viper instance, so CLI flags bound
// to it take precedence over file and environment values.
func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// WALLET_PIN_MAX_ATTEMPTS -> pin.max_attempts
	v.SetEnvPrefix("WALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A config file is optional; env vars and flags can suffice.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wallet.uid", "")
	v.SetDefault("wallet.data_dir", ".")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("keys.master_key", "")
	v.SetDefault("keys.shared_key", "")
	v.SetDefault("pin.max_attempts", 5)
	v.SetDefault("pin.min_length", 4)
	v.SetDefault("pin.max_length", 12)
	v.SetDefault("contacts.file", "")
	v.SetDefault("remote.backend", RemoteNone)
	v.SetDefault("remote.postgres.host", "localhost")
	v.SetDefault("remote.postgres.port", 5432)
	v.SetDefault("remote.postgres.user", "postgres")
	v.SetDefault("remote.postgres.password", "postgres")
	v.SetDefault("remote.postgres.dbname", "wallet_mirror")
	v.SetDefault("remote.postgres.sslmode", "disable")
	v.SetDefault("remote.postgres.max_conns", 4)
	v.SetDefault("remote.postgres.min_conns", 0)
	v.SetDefault("remote.postgres.conn_max_lifetime", "30m")
	v.SetDefault("remote.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("remote.mongo.database", "wallet_mirror")
	v.SetDefault("remote.mongo.timeout", "10s")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", "15m")
	v.SetDefault("sync.retry_backoff", []string{"30s", "2m", "5m", "10m"})
	v.SetDefault("sync.lock_ttl", "2m")
	v.SetDefault("sync.redeem_ttl", "720h")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "offline-wallet")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
