package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	amqperrors "github.com/maxpert/amqp-peer/errors"
	"github.com/maxpert/amqp-peer/interfaces"
)

// EnvPrefix marks environment variables that override file settings. A
// double underscore separates the section from the key, e.g.
// AMQP_PEER_PEER__CHANNEL_MAX=7.
const EnvPrefix = "AMQP_PEER_"

// MinMaxFrameSize is the smallest max-frame-size a peer may advertise.
const MinMaxFrameSize = 512

var supportedMechanisms = map[string]bool{
	"PLAIN":     true,
	"ANONYMOUS": true,
}

var logLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// DefaultConfig creates a configuration with sensible defaults
func DefaultConfig() *AMQPConfig {
	return &AMQPConfig{
		Network: interfaces.NetworkConfig{
			Address:           ":5672",
			MaxConnections:    100,
			ConnectionTimeout: 30 * time.Second,
			ReadBufferSize:    8192,
			WriteBufferSize:   8192,
		},
		Peer: interfaces.PeerConfig{
			ContainerID:          "",
			MaxInboundFrameSize:  65536,
			MaxOutboundFrameSize: 65536,
			ChannelMax:           65535,
			HandleMax:            4294967295,
			IdleTimeout:          0,
			AutoRespond:          true,
		},
		Security: interfaces.SecurityConfig{
			SASLEnabled: false,
			Mechanisms:  []string{"ANONYMOUS"},
		},
		Server: interfaces.ServerConfig{
			Name:            "amqp-peer",
			Version:         "1.0.0",
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// AMQPConfig implements the Config interface
type AMQPConfig struct {
	Network  interfaces.NetworkConfig  `koanf:"network" yaml:"network"`
	Peer     interfaces.PeerConfig     `koanf:"peer" yaml:"peer"`
	Security interfaces.SecurityConfig `koanf:"security" yaml:"security"`
	Server   interfaces.ServerConfig   `koanf:"server" yaml:"server"`
}

// GetNetwork returns listener configuration
func (c *AMQPConfig) GetNetwork() interfaces.NetworkConfig {
	return c.Network
}

// GetPeer returns protocol engine configuration
func (c *AMQPConfig) GetPeer() interfaces.PeerConfig {
	return c.Peer
}

// GetSecurity returns SASL configuration
func (c *AMQPConfig) GetSecurity() interfaces.SecurityConfig {
	return c.Security
}

// GetServer returns process configuration
func (c *AMQPConfig) GetServer() interfaces.ServerConfig {
	return c.Server
}

// Validate validates the configuration
func (c *AMQPConfig) Validate() error {
	// Network
	if c.Network.Address == "" {
		return amqperrors.NewConfigValidationError("network", "address", "must not be empty")
	}
	if c.Network.MaxConnections <= 0 {
		return amqperrors.NewConfigValidationError("network", "max_connections",
			fmt.Sprintf("must be positive, got %d", c.Network.MaxConnections))
	}
	if c.Network.ConnectionTimeout <= 0 {
		return amqperrors.NewConfigValidationError("network", "connection_timeout",
			fmt.Sprintf("must be positive, got %v", c.Network.ConnectionTimeout))
	}
	if c.Network.ReadBufferSize <= 0 {
		return amqperrors.NewConfigValidationError("network", "read_buffer_size",
			fmt.Sprintf("must be positive, got %d", c.Network.ReadBufferSize))
	}

	// Peer, 0 means unbounded
	if n := c.Peer.MaxInboundFrameSize; n != 0 && n < MinMaxFrameSize {
		return amqperrors.NewConfigValidationError("peer", "max_inbound_frame_size",
			fmt.Sprintf("must be 0 or at least %d, got %d", MinMaxFrameSize, n))
	}
	if n := c.Peer.MaxOutboundFrameSize; n != 0 && n < MinMaxFrameSize {
		return amqperrors.NewConfigValidationError("peer", "max_outbound_frame_size",
			fmt.Sprintf("must be 0 or at least %d, got %d", MinMaxFrameSize, n))
	}
	if c.Peer.IdleTimeout < 0 {
		return amqperrors.NewConfigValidationError("peer", "idle_timeout", "must not be negative")
	}

	// Security
	if c.Security.SASLEnabled {
		if len(c.Security.Mechanisms) == 0 {
			return amqperrors.NewConfigValidationError("security", "mechanisms", "at least one mechanism required when SASL is enabled")
		}
		for _, mech := range c.Security.Mechanisms {
			if !supportedMechanisms[mech] {
				return amqperrors.NewConfigValidationError("security", "mechanisms",
					fmt.Sprintf("unsupported mechanism %q", mech))
			}
			if mech == "PLAIN" && c.Security.UsersFile == "" {
				return amqperrors.NewConfigValidationError("security", "users_file", "required for PLAIN")
			}
		}
	}

	// Server
	if !logLevels[c.Server.LogLevel] {
		return amqperrors.NewConfigValidationError("server", "log_level",
			fmt.Sprintf("unknown level %q", c.Server.LogLevel))
	}
	if c.Server.ShutdownTimeout <= 0 {
		return amqperrors.NewConfigValidationError("server", "shutdown_timeout", "must be positive")
	}

	return nil
}

// Load overlays the YAML file at source, then AMQP_PEER_ environment
// variables, onto c and validates the result. An empty source reads the
// environment only.
func (c *AMQPConfig) Load(source string) error {
	k := koanf.New(".")

	if source != "" {
		ext := filepath.Ext(source)
		if ext != ".yaml" && ext != ".yml" {
			return amqperrors.NewConfigError(
				fmt.Sprintf("unsupported configuration format: %s (only YAML supported)", ext), "", "", nil)
		}
		if err := k.Load(file.Provider(source), yaml.Parser()); err != nil {
			return amqperrors.NewConfigError("failed to read configuration file", "", "", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return amqperrors.NewConfigError("failed to read environment", "", "", err)
	}

	if err := k.Unmarshal("", c); err != nil {
		return amqperrors.NewConfigError("failed to parse configuration", "", "", err)
	}

	return c.Validate()
}

// envKey maps AMQP_PEER_SECTION__KEY to section.key.
func envKey(k, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	if !strings.Contains(key, "__") {
		return "", nil
	}
	return strings.ReplaceAll(key, "__", "."), v
}

// Save saves configuration to a YAML file
func (c *AMQPConfig) Save(destination string) error {
	// Ensure destination directory exists
	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}

	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(destination, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}
