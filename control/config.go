// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Node configuration loaded from file, environment and defaults.

package control

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BASP_NODE_ID.
const EnvPrefix = "BASP"

// Config is the root node configuration.
type Config struct {
	Node      NodeConfig      `mapstructure:"node" yaml:"node"`
	Middleman MiddlemanConfig `mapstructure:"middleman" yaml:"middleman"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// NodeConfig identifies the local node.
type NodeConfig struct {
	// ID is the node identity announced in handshakes.
	ID string `mapstructure:"id" yaml:"id"`
	// AppIdentifiers must overlap with the peer's list for a handshake to succeed.
	AppIdentifiers []string `mapstructure:"app_identifiers" yaml:"app_identifiers"`
}

// MiddlemanConfig tunes the protocol engine.
type MiddlemanConfig struct {
	Workers             int           `mapstructure:"workers" yaml:"workers"`
	MaxConsecutiveReads int           `mapstructure:"max_consecutive_reads" yaml:"max_consecutive_reads"`
	MaxHeaderBuffers    int           `mapstructure:"max_header_buffers" yaml:"max_header_buffers"`
	MaxPayloadBuffers   int           `mapstructure:"max_payload_buffers" yaml:"max_payload_buffers"`
	MaxPayloadSize      int           `mapstructure:"max_payload_size" yaml:"max_payload_size"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	HandshakeTimeout    time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	ResolveTimeout      time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout"`
	QueueQuantum        int           `mapstructure:"queue_quantum" yaml:"queue_quantum"`
	// ReactorCPU pins the multiplexer thread to one CPU. Negative disables pinning.
	ReactorCPU int `mapstructure:"reactor_cpu" yaml:"reactor_cpu"`
}

// NetworkConfig lists the sockets a node opens. Addresses are ip:port literals.
type NetworkConfig struct {
	Listen    string   `mapstructure:"listen" yaml:"listen"`
	UDPListen string   `mapstructure:"udp_listen" yaml:"udp_listen"`
	Peers     []string `mapstructure:"peers" yaml:"peers"`
	UDPPeers  []string `mapstructure:"udp_peers" yaml:"udp_peers"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs" yaml:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	Development bool           `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable" yaml:"enable"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultWorkers mirrors the classic middleman sizing: min(3, cpus/4) + 1.
func DefaultWorkers() int {
	return min(3, runtime.NumCPU()/4) + 1
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Node: NodeConfig{
			AppIdentifiers: []string{"generic-basp-app"},
		},
		Middleman: MiddlemanConfig{
			Workers:             DefaultWorkers(),
			MaxConsecutiveReads: 50,
			MaxHeaderBuffers:    10,
			MaxPayloadBuffers:   100,
			MaxPayloadSize:      16 << 20,
			QueueQuantum:        1500,
			ReactorCPU:          -1,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/basp-node.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

func newViper(path string) *viper.Viper {
	cfg := Default()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("node.id", cfg.Node.ID)
	v.SetDefault("node.app_identifiers", cfg.Node.AppIdentifiers)
	v.SetDefault("middleman.workers", cfg.Middleman.Workers)
	v.SetDefault("middleman.max_consecutive_reads", cfg.Middleman.MaxConsecutiveReads)
	v.SetDefault("middleman.max_header_buffers", cfg.Middleman.MaxHeaderBuffers)
	v.SetDefault("middleman.max_payload_buffers", cfg.Middleman.MaxPayloadBuffers)
	v.SetDefault("middleman.max_payload_size", cfg.Middleman.MaxPayloadSize)
	v.SetDefault("middleman.heartbeat_interval", cfg.Middleman.HeartbeatInterval)
	v.SetDefault("middleman.handshake_timeout", cfg.Middleman.HandshakeTimeout)
	v.SetDefault("middleman.resolve_timeout", cfg.Middleman.ResolveTimeout)
	v.SetDefault("middleman.queue_quantum", cfg.Middleman.QueueQuantum)
	v.SetDefault("middleman.reactor_cpu", cfg.Middleman.ReactorCPU)
	v.SetDefault("network.listen", cfg.Network.Listen)
	v.SetDefault("network.udp_listen", cfg.Network.UDPListen)
	v.SetDefault("network.peers", cfg.Network.Peers)
	v.SetDefault("network.udp_peers", cfg.Network.UDPPeers)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("basp-node")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	return v
}

// Load reads configuration from path (or the default search locations),
// applies BASP_* environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalizes optional fields and rejects invalid values.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if len(c.Node.AppIdentifiers) == 0 {
		return errors.New("node.app_identifiers must not be empty")
	}
	if c.Middleman.Workers < 0 {
		return fmt.Errorf("invalid middleman.workers: %d", c.Middleman.Workers)
	}
	if c.Middleman.MaxConsecutiveReads <= 0 {
		return fmt.Errorf("invalid middleman.max_consecutive_reads: %d", c.Middleman.MaxConsecutiveReads)
	}
	if c.Middleman.MaxPayloadSize < 0 {
		return fmt.Errorf("invalid middleman.max_payload_size: %d", c.Middleman.MaxPayloadSize)
	}
	if c.Middleman.QueueQuantum <= 0 {
		return fmt.Errorf("invalid middleman.queue_quantum: %d", c.Middleman.QueueQuantum)
	}
	return nil
}
