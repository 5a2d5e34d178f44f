package config

import (
	"time"
)

// ConfigBuilder provides a fluent API for building configuration
type ConfigBuilder struct {
	config *AMQPConfig
}

// NewConfigBuilder creates a new configuration builder with defaults
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: DefaultConfig(),
	}
}

// FromConfig creates a builder from an existing configuration
func FromConfig(config *AMQPConfig) *ConfigBuilder {
	builder := NewConfigBuilder()
	*builder.config = *config
	builder.config.Security.Mechanisms = append([]string(nil), config.Security.Mechanisms...)
	return builder
}

// Network Configuration

// WithAddress sets the TCP listen address
func (b *ConfigBuilder) WithAddress(address string) *ConfigBuilder {
	b.config.Network.Address = address
	return b
}

// WithWebSocket enables the WebSocket listener on address
func (b *ConfigBuilder) WithWebSocket(address string) *ConfigBuilder {
	b.config.Network.WebSocketAddress = address
	return b
}

// WithMaxConnections sets the maximum number of connections
func (b *ConfigBuilder) WithMaxConnections(max int) *ConfigBuilder {
	b.config.Network.MaxConnections = max
	return b
}

// WithConnectionTimeout sets the connection timeout
func (b *ConfigBuilder) WithConnectionTimeout(timeout time.Duration) *ConfigBuilder {
	b.config.Network.ConnectionTimeout = timeout
	return b
}

// WithBufferSizes sets read and write buffer sizes
func (b *ConfigBuilder) WithBufferSizes(readSize, writeSize int) *ConfigBuilder {
	b.config.Network.ReadBufferSize = readSize
	b.config.Network.WriteBufferSize = writeSize
	return b
}

// Peer Configuration

// WithContainerID sets the container-id sent in Open
func (b *ConfigBuilder) WithContainerID(id string) *ConfigBuilder {
	b.config.Peer.ContainerID = id
	return b
}

// WithFrameSizes sets the inbound and outbound max-frame-size
func (b *ConfigBuilder) WithFrameSizes(inbound, outbound uint32) *ConfigBuilder {
	b.config.Peer.MaxInboundFrameSize = inbound
	b.config.Peer.MaxOutboundFrameSize = outbound
	return b
}

// WithProtocolLimits sets channel-max and handle-max
func (b *ConfigBuilder) WithProtocolLimits(channelMax uint16, handleMax uint32) *ConfigBuilder {
	b.config.Peer.ChannelMax = channelMax
	b.config.Peer.HandleMax = handleMax
	return b
}

// WithIdleTimeout sets the idle-time-out advertised in Open
func (b *ConfigBuilder) WithIdleTimeout(timeout time.Duration) *ConfigBuilder {
	b.config.Peer.IdleTimeout = timeout
	return b
}

// WithAutoRespond enables/disables automatic replies
func (b *ConfigBuilder) WithAutoRespond(enabled bool) *ConfigBuilder {
	b.config.Peer.AutoRespond = enabled
	return b
}

// WithTrace records every frame to a CBOR trace file
func (b *ConfigBuilder) WithTrace(path string) *ConfigBuilder {
	b.config.Peer.TracePath = path
	return b
}

// Security Configuration

// WithSASL enables the SASL layer offering mechanisms
func (b *ConfigBuilder) WithSASL(mechanisms ...string) *ConfigBuilder {
	b.config.Security.SASLEnabled = true
	b.config.Security.Mechanisms = mechanisms
	return b
}

// WithUsersFile sets the credentials file checked by PLAIN
func (b *ConfigBuilder) WithUsersFile(path string) *ConfigBuilder {
	b.config.Security.UsersFile = path
	return b
}

// Server Configuration

// WithServerInfo sets server identification information
func (b *ConfigBuilder) WithServerInfo(name, version string) *ConfigBuilder {
	b.config.Server.Name = name
	b.config.Server.Version = version
	return b
}

// WithLogging configures logging settings
func (b *ConfigBuilder) WithLogging(level, logFile string) *ConfigBuilder {
	b.config.Server.LogLevel = level
	b.config.Server.LogFile = logFile
	return b
}

// WithMetrics serves Prometheus metrics on address
func (b *ConfigBuilder) WithMetrics(address string) *ConfigBuilder {
	b.config.Server.MetricsAddress = address
	return b
}

// WithShutdownTimeout bounds graceful shutdown
func (b *ConfigBuilder) WithShutdownTimeout(timeout time.Duration) *ConfigBuilder {
	b.config.Server.ShutdownTimeout = timeout
	return b
}

// Build returns the configured AMQPConfig
func (b *ConfigBuilder) Build() (*AMQPConfig, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return b.config, nil
}

// BuildUnsafe returns the configured AMQPConfig without validation
func (b *ConfigBuilder) BuildUnsafe() *AMQPConfig {
	return b.config
}
