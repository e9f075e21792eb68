package directory

import "time"

const (
	// DefaultNamespace is the key prefix used when Config.Namespace is empty.
	DefaultNamespace = "identity"

	// DefaultTTL is the lease TTL in seconds used when Config.TTL is unset.
	DefaultTTL = 30

	// DefaultDialTimeout bounds the initial etcd connection.
	DefaultDialTimeout = 5 * time.Second
)

// Config holds etcd connection settings for a Directory.
type Config struct {
	// Endpoints is the list of etcd endpoints, e.g. ["host1:2379"].
	Endpoints []string `yaml:"endpoints"`

	// Namespace is the etcd key prefix. Default: "identity".
	Namespace string `yaml:"namespace"`

	// TTL is the lease time-to-live in seconds. Default: 30.
	TTL int `yaml:"ttl"`

	// DialTimeout bounds the initial connection. Default: 5s.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// TLS enables mutual TLS towards etcd when set and enabled.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds client certificate settings for etcd.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

func (c Config) namespace() string {
	if c.Namespace == "" {
		return DefaultNamespace
	}
	return c.Namespace
}

func (c Config) ttl() int {
	if c.TTL <= 0 {
		return DefaultTTL
	}
	return c.TTL
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return c.DialTimeout
}
