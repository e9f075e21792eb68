// Package config loads identity.yaml, the configuration of an identity node.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/identity/directory"
	"github.com/zero-day-ai/identity/nodeid"
)

// FileNames are tried in order when Load is given a directory.
var FileNames = []string{"identity.yaml", "identity.yml"}

// Config represents an identity.yaml configuration file.
type Config struct {
	Node      NodeConfig        `yaml:"node"`
	Names     *NamesConfig      `yaml:"names,omitempty"`
	Directory *directory.Config `yaml:"directory,omitempty"`
	NameSync  *NameSyncConfig   `yaml:"namesync,omitempty"`
	Server    *ServerConfig     `yaml:"server,omitempty"`
	Health    *HealthConfig     `yaml:"health,omitempty"`
	Logging   *LoggingConfig    `yaml:"logging,omitempty"`
	Telemetry *TelemetryConfig  `yaml:"telemetry,omitempty"`
}

// NodeConfig describes the local instance node.
type NodeConfig struct {
	// Instance pins the instance node identifier across restarts.
	// Empty means a fresh instance is generated at startup.
	Instance string `yaml:"instance,omitempty"`

	// DisplayName is bound to the instance session at startup.
	DisplayName string `yaml:"display_name,omitempty"`

	// EncryptionGroup, when set, publishes DisplayName only as an encrypted
	// blob sealed with that group's key from Names.Keys.
	EncryptionGroup string `yaml:"encryption_group,omitempty"`

	// SecureRandom selects crypto/rand for instance parts.
	// Default: true
	SecureRandom *bool `yaml:"secure_random,omitempty"`

	// LogicalNodes are hosted by this instance.
	LogicalNodes []LogicalNodeConfig `yaml:"logical_nodes,omitempty"`
}

// LogicalNodeConfig describes one hosted logical node.
type LogicalNodeConfig struct {
	// Recognition is the stable part of a recognizable logical node.
	// Leave empty together with Transient: true for a transient node.
	Recognition string `yaml:"recognition,omitempty"`

	// Transient requests a fresh transient logical node.
	Transient bool `yaml:"transient,omitempty"`

	// DisplayName is bound to the logical node session at startup.
	DisplayName string `yaml:"display_name,omitempty"`
}

// NamesConfig holds name decryption keys.
type NamesConfig struct {
	// Keys maps encryption group ids to base64 AES keys (16, 24 or 32 bytes).
	Keys map[string]string `yaml:"keys,omitempty"`
}

// NameSyncConfig configures Redis name propagation.
type NameSyncConfig struct {
	URL          string `yaml:"url"`
	Prefix       string `yaml:"prefix,omitempty"`
	HeartbeatTTL string `yaml:"heartbeat_ttl,omitempty"`
}

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	// Port is the TCP port. Default: 50051
	Port int `yaml:"port,omitempty"`

	// Advertise is the endpoint announced in the directory.
	// Default: "localhost:<port>"
	Advertise string `yaml:"advertise,omitempty"`

	// GracefulTimeout is a Go duration string. Default: 30s
	GracefulTimeout string `yaml:"graceful_timeout,omitempty"`

	TLSCertFile string `yaml:"tls_cert_file,omitempty"`
	TLSKeyFile  string `yaml:"tls_key_file,omitempty"`
}

// HealthConfig configures periodic health evaluation.
type HealthConfig struct {
	// Interval is a Go duration string. Default: 10s
	Interval string `yaml:"interval,omitempty"`
}

// TelemetryConfig configures the OpenTelemetry resource.
type TelemetryConfig struct {
	// ServiceName is reported as service.name. Default: "identityd"
	ServiceName string `yaml:"service_name,omitempty"`
}

// GetSecureRandom returns whether instance parts use crypto/rand.
func (n NodeConfig) GetSecureRandom() bool {
	if n.SecureRandom == nil {
		return true
	}
	return *n.SecureRandom
}

// GetHeartbeatTTL parses the heartbeat TTL. Returns 0 (client default) when
// unset or invalid.
func (n *NameSyncConfig) GetHeartbeatTTL() time.Duration {
	if n == nil || n.HeartbeatTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(n.HeartbeatTTL)
	if err != nil {
		return 0
	}
	return d
}

// GetPort returns the configured port or the default value.
func (s *ServerConfig) GetPort() int {
	if s == nil || s.Port <= 0 {
		return 50051
	}
	return s.Port
}

// GetAdvertise returns the announced endpoint.
func (s *ServerConfig) GetAdvertise() string {
	if s == nil || s.Advertise == "" {
		return fmt.Sprintf("localhost:%d", s.GetPort())
	}
	return s.Advertise
}

// GetGracefulTimeout parses the graceful timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (s *ServerConfig) GetGracefulTimeout() time.Duration {
	if s == nil || s.GracefulTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(s.GracefulTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetInterval parses the health interval. Returns the default value if not
// set or invalid.
func (h *HealthConfig) GetInterval() time.Duration {
	if h == nil || h.Interval == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(h.Interval)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetServiceName returns the service name or the default value.
func (t *TelemetryConfig) GetServiceName() string {
	if t == nil || t.ServiceName == "" {
		return "identityd"
	}
	return t.ServiceName
}

// DecodeKeys returns the decoded name keys by group id.
func (n *NamesConfig) DecodeKeys() (map[string][]byte, error) {
	if n == nil || len(n.Keys) == 0 {
		return nil, nil
	}
	keys := make(map[string][]byte, len(n.Keys))
	for group, encoded := range n.Keys {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("names key %q: %w", group, err)
		}
		keys[group] = key
	}
	return keys, nil
}

// Validate checks the configuration for values that would only fail later,
// at node startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Node.Instance != "" && !instancePattern(c.Node.Instance) {
		errs = append(errs, fmt.Errorf("node.instance %q is not %d lowercase hex characters",
			c.Node.Instance, nodeid.InstancePartLength))
	}
	for i, ln := range c.Node.LogicalNodes {
		switch {
		case ln.Transient && ln.Recognition != "":
			errs = append(errs, fmt.Errorf("node.logical_nodes[%d]: transient nodes have no recognition part", i))
		case !ln.Transient && ln.Recognition == "":
			errs = append(errs, fmt.Errorf("node.logical_nodes[%d]: recognition is required", i))
		case !ln.Transient && !nodeid.ValidLogicalPart(nodeid.RecognizableLogicalNodePrefix+ln.Recognition):
			errs = append(errs, fmt.Errorf("node.logical_nodes[%d]: invalid recognition %q", i, ln.Recognition))
		}
	}

	keys, err := c.Names.DecodeKeys()
	if err != nil {
		errs = append(errs, err)
	}
	if g := c.Node.EncryptionGroup; g != "" {
		if _, ok := keys[g]; !ok {
			errs = append(errs, fmt.Errorf("node.encryption_group %q has no key in names.keys", g))
		}
	}

	if c.Directory != nil && len(c.Directory.Endpoints) == 0 {
		errs = append(errs, errors.New("directory.endpoints cannot be empty"))
	}
	if c.NameSync != nil && c.NameSync.URL == "" {
		errs = append(errs, errors.New("namesync.url cannot be empty"))
	}
	if s := c.Server; s != nil && (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tls_cert_file and server.tls_key_file must be set together"))
	}
	if err := c.Logging.validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func instancePattern(s string) bool {
	if len(s) != nodeid.InstancePartLength {
		return false
	}
	return strings.Trim(s, "0123456789abcdef") == ""
}

// Parse decodes identity.yaml content.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// Load reads and parses an identity.yaml file from the given path.
// If the path is a directory, it looks for identity.yaml or identity.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range FileNames {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no identity.yaml or identity.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadFromDir searches for identity.yaml starting from the given directory
// and walking up to parent directories until found or root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("no identity.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}
