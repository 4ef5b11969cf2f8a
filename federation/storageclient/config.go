package storageclient

import (
	"time"

	"github.com/Azure/batch-shipyard-go/localdb"
)

// userAgentPrefix is the product part of the "batch-shipyard/<version>"
// string that userAgent builds; the blob store does not attach it to its
// requests.
const userAgentPrefix = "batch-shipyard"

// Version is the client version reported in the user-agent string. Set at
// build time via -ldflags, defaulting to "dev".
var Version = "dev"

func userAgent() string {
	return userAgentPrefix + "/" + Version
}

// Config configures a Client's three backends.
type Config struct {
	// Redis backs the QueueStore and the LeaseStore.
	Redis RedisConfig `yaml:"redis"`

	// SQLite is not read by New; the TableStore uses the *sqlx.DB passed
	// to New.
	SQLite localdb.Config `yaml:"sqlite"`

	// MaxBackoffAttempts bounds retries of transient remote errors. §4.1
	// specifies 100 attempts capped at an 8s backoff ceiling.
	MaxBackoffAttempts int `yaml:"max_backoff_attempts"`

	// MaxBackoff is the backoff ceiling for retried operations.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

func (c Config) applyDefaults() Config {
	if c.MaxBackoffAttempts == 0 {
		c.MaxBackoffAttempts = 100
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 8 * time.Second
	}
	return c
}

// RedisConfig configures the redigo connection pool backing QueueStore and
// the lease store, mirroring tracker/peerstore's RedisConfig.
type RedisConfig struct {
	Addr            string        `yaml:"addr"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxActiveConns  int           `yaml:"max_active_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

func (c RedisConfig) applyDefaults() RedisConfig {
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxActiveConns == 0 {
		c.MaxActiveConns = 50
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 5 * time.Minute
	}
	return c
}
