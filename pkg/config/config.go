package config

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// NEGOTIATOR_STORE_DRIVER for store.driver.
const EnvPrefix = "NEGOTIATOR"

// Config is the configuration of one negotiator node.
type Config struct {
	Node    NodeConfig    `mapstructure:"node"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Store   StoreConfig   `mapstructure:"store"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
	Peers   []PeerConfig  `mapstructure:"peers"`
}

// PeerConfig locates one counterparty node. It is a list entry rather
// than a map key because viper lowercases keys.
type PeerConfig struct {
	// Ref is the well-known name or agent id of the counterparty
	Ref string `mapstructure:"ref"`
	// URL is the base URL of its node
	URL string `mapstructure:"url"`
}

// PeerURLs returns the peers as a ref to base URL map.
func (c *Config) PeerURLs() map[string]string {
	out := make(map[string]string, len(c.Peers))
	for _, p := range c.Peers {
		out[p.Ref] = p.URL
	}
	return out
}

// NodeConfig identifies this party on the ledger and on the network
type NodeConfig struct {
	// Name is the well-known name, e.g. "O=Alice,L=London,C=GB"
	Name string `mapstructure:"name"`
	// KeySeed is the hex encoded 32 byte ed25519 seed. Empty means a fresh
	// key per process, which is only useful for demos.
	KeySeed string `mapstructure:"key_seed"`
	// ListenAddr is where the peer and operator API listens
	ListenAddr string `mapstructure:"listen_addr"`
	// PublicURL is the base URL counterparties use to reach this node
	PublicURL string `mapstructure:"public_url"`
	// OperatorToken, when set, is the bearer token the operator API requires
	OperatorToken string `mapstructure:"operator_token"`
}

type LedgerConfig struct {
	// URL of the ledger service
	URL string `mapstructure:"url"`
}

// StoreConfig selects the private value backend
type StoreConfig struct {
	// Driver is one of "memory", "postgres", "leveldb"
	Driver string `mapstructure:"driver"`
	// DSN is the PostgreSQL connection string (postgres only)
	DSN string `mapstructure:"dsn"`
	// Path is the database directory (leveldb only)
	Path string `mapstructure:"path"`
	// Pool sizes the PostgreSQL connection pool (postgres only)
	Pool PoolConfig `mapstructure:"pool"`
}

type PoolConfig struct {
	MaxConns          int           `mapstructure:"max_conns"`
	MinConns          int           `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

type SessionConfig struct {
	// CounterpartyTimeout bounds each round-trip to the counterparty
	CounterpartyTimeout time.Duration `mapstructure:"counterparty_timeout"`
	// DirectoryCacheSize is the LRU size of resolved parties
	DirectoryCacheSize int `mapstructure:"directory_cache_size"`
	// IdempotencyCacheSize bounds the replayable operator responses kept
	IdempotencyCacheSize int `mapstructure:"idempotency_cache_size"`
}

type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Dir receives negotiator.log; empty logs to stderr
	Dir string `mapstructure:"dir"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ListenAddr: ":8090",
			PublicURL:  "http://localhost:8090",
		},
		Ledger: LedgerConfig{URL: "http://localhost:8080"},
		Store: StoreConfig{
			Driver: "memory",
			Path:   filepath.Join(".", "data", "values"),
			Pool: PoolConfig{
				MaxConns:          10,
				MinConns:          1,
				MaxConnLifetime:   30 * time.Minute,
				MaxConnIdleTime:   5 * time.Minute,
				HealthCheckPeriod: 30 * time.Second,
			},
		},
		Session: SessionConfig{
			CounterpartyTimeout:  10 * time.Second,
			DirectoryCacheSize:   128,
			IdempotencyCacheSize: 1024,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("node.name", defaults.Node.Name)
	v.SetDefault("node.key_seed", defaults.Node.KeySeed)
	v.SetDefault("node.listen_addr", defaults.Node.ListenAddr)
	v.SetDefault("node.public_url", defaults.Node.PublicURL)
	v.SetDefault("node.operator_token", defaults.Node.OperatorToken)

	v.SetDefault("ledger.url", defaults.Ledger.URL)

	v.SetDefault("store.driver", defaults.Store.Driver)
	v.SetDefault("store.dsn", defaults.Store.DSN)
	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("store.pool.max_conns", defaults.Store.Pool.MaxConns)
	v.SetDefault("store.pool.min_conns", defaults.Store.Pool.MinConns)
	v.SetDefault("store.pool.max_conn_lifetime", defaults.Store.Pool.MaxConnLifetime)
	v.SetDefault("store.pool.max_conn_idle_time", defaults.Store.Pool.MaxConnIdleTime)
	v.SetDefault("store.pool.health_check_period", defaults.Store.Pool.HealthCheckPeriod)

	v.SetDefault("session.counterparty_timeout", defaults.Session.CounterpartyTimeout)
	v.SetDefault("session.directory_cache_size", defaults.Session.DirectoryCacheSize)
	v.SetDefault("session.idempotency_cache_size", defaults.Session.IdempotencyCacheSize)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
}

// New returns a viper instance with defaults, environment overrides and,
// when cfgFile is set or ./negotiator.yaml exists, the config file.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("negotiator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, err
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// KeySeedBytes decodes the configured seed. It returns nil when none is set.
func (c *NodeConfig) KeySeedBytes() ([]byte, error) {
	if c.KeySeed == "" {
		return nil, nil
	}
	return hex.DecodeString(c.KeySeed)
}
