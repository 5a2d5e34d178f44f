package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amqperrors "github.com/maxpert/amqp-peer/errors"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	// Test default values
	assert.Equal(t, ":5672", config.Network.Address)
	assert.Equal(t, 100, config.Network.MaxConnections)
	assert.Equal(t, uint32(65536), config.Peer.MaxInboundFrameSize)
	assert.Equal(t, uint16(65535), config.Peer.ChannelMax)
	assert.True(t, config.Peer.AutoRespond)
	assert.False(t, config.Security.SASLEnabled)
	assert.Equal(t, "amqp-peer", config.Server.Name)

	// Test validation passes
	err := config.Validate()
	assert.NoError(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*AMQPConfig)
		wantKey string
	}{
		{
			name:   "valid config",
			modify: func(c *AMQPConfig) {},
		},
		{
			name:    "empty address",
			modify:  func(c *AMQPConfig) { c.Network.Address = "" },
			wantKey: "address",
		},
		{
			name:    "invalid max connections",
			modify:  func(c *AMQPConfig) { c.Network.MaxConnections = -1 },
			wantKey: "max_connections",
		},
		{
			name:    "zero connection timeout",
			modify:  func(c *AMQPConfig) { c.Network.ConnectionTimeout = 0 },
			wantKey: "connection_timeout",
		},
		{
			name:    "inbound frame size below minimum",
			modify:  func(c *AMQPConfig) { c.Peer.MaxInboundFrameSize = 256 },
			wantKey: "max_inbound_frame_size",
		},
		{
			name:   "unbounded frame size",
			modify: func(c *AMQPConfig) { c.Peer.MaxOutboundFrameSize = 0 },
		},
		{
			name:    "outbound frame size below minimum",
			modify:  func(c *AMQPConfig) { c.Peer.MaxOutboundFrameSize = 511 },
			wantKey: "max_outbound_frame_size",
		},
		{
			name:    "negative idle timeout",
			modify:  func(c *AMQPConfig) { c.Peer.IdleTimeout = -time.Second },
			wantKey: "idle_timeout",
		},
		{
			name: "SASL without mechanisms",
			modify: func(c *AMQPConfig) {
				c.Security.SASLEnabled = true
				c.Security.Mechanisms = nil
			},
			wantKey: "mechanisms",
		},
		{
			name: "unsupported mechanism",
			modify: func(c *AMQPConfig) {
				c.Security.SASLEnabled = true
				c.Security.Mechanisms = []string{"SCRAM-SHA-256"}
			},
			wantKey: "mechanisms",
		},
		{
			name: "PLAIN without users file",
			modify: func(c *AMQPConfig) {
				c.Security.SASLEnabled = true
				c.Security.Mechanisms = []string{"PLAIN"}
			},
			wantKey: "users_file",
		},
		{
			name: "unknown mechanism ignored when SASL is off",
			modify: func(c *AMQPConfig) {
				c.Security.Mechanisms = []string{"SCRAM-SHA-256"}
			},
		},
		{
			name:    "unknown log level",
			modify:  func(c *AMQPConfig) { c.Server.LogLevel = "verbose" },
			wantKey: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)

			err := config.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *amqperrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestConfigSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "nested", "peer.yaml")

	originalConfig := DefaultConfig()
	originalConfig.Network.Address = ":8080"
	originalConfig.Network.MaxConnections = 500
	originalConfig.Peer.ContainerID = "test-peer"
	originalConfig.Peer.ChannelMax = 15
	originalConfig.Peer.IdleTimeout = 5 * time.Second
	originalConfig.Security.Mechanisms = []string{"ANONYMOUS", "PLAIN"}
	originalConfig.Security.UsersFile = "/etc/amqp-peer/users.yaml"
	originalConfig.Server.LogLevel = "debug"

	err := originalConfig.Save(configFile)
	require.NoError(t, err)
	assert.FileExists(t, configFile)

	loadedConfig := DefaultConfig()
	err = loadedConfig.Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, originalConfig, loadedConfig)
}

func TestConfigLoadNonexistent(t *testing.T) {
	config := DefaultConfig()
	err := config.Load("/nonexistent/path.yaml")
	assert.Error(t, err)
	assert.True(t, amqperrors.IsConfigError(err))
}

func TestConfigLoadUnsupportedFormat(t *testing.T) {
	config := DefaultConfig()
	err := config.Load(filepath.Join(t.TempDir(), "peer.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only YAML supported")
}

func TestConfigLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configFile, []byte("network: [unterminated"), 0644)
	require.NoError(t, err)

	config := DefaultConfig()
	err = config.Load(configFile)
	assert.Error(t, err)
}

func TestConfigLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test.yaml")

	yamlContent := `
network:
  address: ":8080"
  websocket_address: ":8081"
  connection_timeout: 45s
peer:
  container_id: scripted
  max_outbound_frame_size: 1024
  handle_max: 31
  auto_respond: false
server:
  log_level: debug
`
	err := os.WriteFile(configFile, []byte(yamlContent), 0644)
	require.NoError(t, err)

	config := DefaultConfig()
	err = config.Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, ":8080", config.Network.Address)
	assert.Equal(t, ":8081", config.Network.WebSocketAddress)
	assert.Equal(t, 45*time.Second, config.Network.ConnectionTimeout)
	assert.Equal(t, "scripted", config.Peer.ContainerID)
	assert.Equal(t, uint32(1024), config.Peer.MaxOutboundFrameSize)
	assert.Equal(t, uint32(31), config.Peer.HandleMax)
	assert.False(t, config.Peer.AutoRespond)
	assert.Equal(t, "debug", config.Server.LogLevel)

	// untouched keys keep their defaults
	assert.Equal(t, 100, config.Network.MaxConnections)
	assert.Equal(t, uint16(65535), config.Peer.ChannelMax)
}

func TestConfigLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test.yaml")
	err := os.WriteFile(configFile, []byte("peer:\n  channel_max: 3\n"), 0644)
	require.NoError(t, err)

	t.Setenv("AMQP_PEER_PEER__CHANNEL_MAX", "7")
	t.Setenv("AMQP_PEER_SERVER__LOG_LEVEL", "warn")
	t.Setenv("AMQP_PEER_SECURITY__MECHANISMS", "ANONYMOUS,PLAIN")
	t.Setenv("AMQP_PEER_IGNORED", "x")

	config := DefaultConfig()
	err = config.Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, uint16(7), config.Peer.ChannelMax)
	assert.Equal(t, "warn", config.Server.LogLevel)
	assert.Equal(t, []string{"ANONYMOUS", "PLAIN"}, config.Security.Mechanisms)
}

func TestConfigLoadEnvOnly(t *testing.T) {
	t.Setenv("AMQP_PEER_NETWORK__ADDRESS", ":6000")

	config := DefaultConfig()
	err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":6000", config.Network.Address)
}

func TestConfigLoadValidates(t *testing.T) {
	t.Setenv("AMQP_PEER_SERVER__LOG_LEVEL", "loud")

	config := DefaultConfig()
	err := config.Load("")
	require.Error(t, err)
	assert.True(t, amqperrors.IsConfigError(err))
}

func TestConfigBuilder(t *testing.T) {
	config, err := NewConfigBuilder().
		WithAddress(":9090").
		WithWebSocket(":9091").
		WithMaxConnections(20).
		WithConnectionTimeout(45*time.Second).
		WithContainerID("builder").
		WithFrameSizes(4096, 2048).
		WithProtocolLimits(9, 99).
		WithIdleTimeout(2*time.Second).
		WithAutoRespond(false).
		WithTrace("/tmp/trace.cbor").
		WithSASL("PLAIN", "ANONYMOUS").
		WithUsersFile("/tmp/users.yaml").
		WithLogging("debug", "/var/log/amqp-peer.log").
		WithMetrics(":9100").
		WithServerInfo("test-peer", "2.0.0").
		Build()

	require.NoError(t, err)

	assert.Equal(t, ":9090", config.Network.Address)
	assert.Equal(t, ":9091", config.Network.WebSocketAddress)
	assert.Equal(t, 20, config.Network.MaxConnections)
	assert.Equal(t, 45*time.Second, config.Network.ConnectionTimeout)
	assert.Equal(t, "builder", config.Peer.ContainerID)
	assert.Equal(t, uint32(4096), config.Peer.MaxInboundFrameSize)
	assert.Equal(t, uint32(2048), config.Peer.MaxOutboundFrameSize)
	assert.Equal(t, uint16(9), config.Peer.ChannelMax)
	assert.Equal(t, uint32(99), config.Peer.HandleMax)
	assert.Equal(t, 2*time.Second, config.Peer.IdleTimeout)
	assert.False(t, config.Peer.AutoRespond)
	assert.Equal(t, "/tmp/trace.cbor", config.Peer.TracePath)
	assert.True(t, config.Security.SASLEnabled)
	assert.Equal(t, []string{"PLAIN", "ANONYMOUS"}, config.Security.Mechanisms)
	assert.Equal(t, "debug", config.Server.LogLevel)
	assert.Equal(t, "/var/log/amqp-peer.log", config.Server.LogFile)
	assert.Equal(t, ":9100", config.Server.MetricsAddress)
	assert.Equal(t, "test-peer", config.Server.Name)
}

func TestConfigBuilderFromExisting(t *testing.T) {
	originalConfig := DefaultConfig()
	originalConfig.Network.Address = ":8080"

	newConfig, err := FromConfig(originalConfig).
		WithMaxConnections(5).
		Build()

	require.NoError(t, err)

	// Should preserve original address
	assert.Equal(t, ":8080", newConfig.Network.Address)
	assert.Equal(t, 5, newConfig.Network.MaxConnections)
	// original is untouched
	assert.Equal(t, 100, originalConfig.Network.MaxConnections)

	newConfig.Security.Mechanisms[0] = "PLAIN"
	assert.Equal(t, "ANONYMOUS", originalConfig.Security.Mechanisms[0])
}

func TestConfigBuilderValidationError(t *testing.T) {
	_, err := NewConfigBuilder().
		WithSASL("PLAIN").
		Build()

	assert.Error(t, err)
}

func TestConfigBuilderBuildUnsafe(t *testing.T) {
	config := NewConfigBuilder().
		WithMaxConnections(0).
		BuildUnsafe()

	// Should return config without validation
	assert.Equal(t, 0, config.Network.MaxConnections)

	// But validation should fail
	err := config.Validate()
	assert.Error(t, err)
}
