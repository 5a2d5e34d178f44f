package interfaces

import (
	"time"
)

// Config defines the interface for peer configuration
type Config interface {
	// GetNetwork returns listener configuration
	GetNetwork() NetworkConfig

	// GetPeer returns protocol engine configuration
	GetPeer() PeerConfig

	// GetSecurity returns SASL configuration
	GetSecurity() SecurityConfig

	// GetServer returns process configuration
	GetServer() ServerConfig

	// Validate validates the configuration
	Validate() error

	// Load loads configuration from a source
	Load(source string) error

	// Save saves configuration to a destination
	Save(destination string) error
}

// NetworkConfig holds listener settings
type NetworkConfig struct {
	// Address to bind the TCP listener to, e.g. ":5672"
	Address string `koanf:"address" yaml:"address"`

	// WebSocketAddress enables the WebSocket listener when set, e.g. ":5673"
	WebSocketAddress string `koanf:"websocket_address" yaml:"websocket_address"`

	// Maximum number of concurrent connections
	MaxConnections int `koanf:"max_connections" yaml:"max_connections"`

	// Connection timeout
	ConnectionTimeout time.Duration `koanf:"connection_timeout" yaml:"connection_timeout"`

	// Buffer sizes
	ReadBufferSize  int `koanf:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int `koanf:"write_buffer_size" yaml:"write_buffer_size"`
}

// PeerConfig holds the values the protocol engine advertises and enforces
type PeerConfig struct {
	// ContainerID is sent in Open; empty means the server generates one
	ContainerID string `koanf:"container_id" yaml:"container_id"`

	// MaxInboundFrameSize bounds frames read from the remote peer
	MaxInboundFrameSize uint32 `koanf:"max_inbound_frame_size" yaml:"max_inbound_frame_size"`

	// MaxOutboundFrameSize bounds frames this peer writes before the remote
	// Open says otherwise
	MaxOutboundFrameSize uint32 `koanf:"max_outbound_frame_size" yaml:"max_outbound_frame_size"`

	// ChannelMax is the highest channel number accepted from the remote peer
	ChannelMax uint16 `koanf:"channel_max" yaml:"channel_max"`

	// HandleMax is the highest link handle accepted per session
	HandleMax uint32 `koanf:"handle_max" yaml:"handle_max"`

	// IdleTimeout is advertised in Open; zero disables heartbeats
	IdleTimeout time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`

	// AutoRespond makes the server answer Open, Begin, Attach and End with
	// matching performatives instead of waiting for a script
	AutoRespond bool `koanf:"auto_respond" yaml:"auto_respond"`

	// TracePath enables the CBOR frame trace when set
	TracePath string `koanf:"trace_path" yaml:"trace_path"`
}

// SecurityConfig holds SASL settings
type SecurityConfig struct {
	// SASLEnabled requires the SASL layer before AMQP
	SASLEnabled bool `koanf:"sasl_enabled" yaml:"sasl_enabled"`

	// Mechanisms offered in sasl-mechanisms (PLAIN, ANONYMOUS)
	Mechanisms []string `koanf:"mechanisms" yaml:"mechanisms"`

	// UsersFile is a YAML file of usernames and bcrypt password hashes
	UsersFile string `koanf:"users_file" yaml:"users_file"`
}

// ServerConfig holds process settings
type ServerConfig struct {
	// Server identification
	Name    string `koanf:"name" yaml:"name"`
	Version string `koanf:"version" yaml:"version"`

	// Operational settings
	LogLevel string `koanf:"log_level" yaml:"log_level"`
	LogFile  string `koanf:"log_file" yaml:"log_file"`

	// MetricsAddress serves /metrics and /health when set
	MetricsAddress string `koanf:"metrics_address" yaml:"metrics_address"`

	// Graceful shutdown bound
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}
