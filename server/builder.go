package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/maxpert/amqp-peer/auth"
	"github.com/maxpert/amqp-peer/config"
	"github.com/maxpert/amqp-peer/interfaces"
	"github.com/maxpert/amqp-peer/metrics"
)

// ServerBuilder provides a fluent API for building servers
type ServerBuilder struct {
	config        *config.AMQPConfig
	logger        *zap.Logger
	registerer    prometheus.Registerer
	collector     *metrics.Collector
	authenticator interfaces.Authenticator
	hook          func(*Connection)
	err           error
}

// NewServerBuilder creates a new server builder with default configuration
func NewServerBuilder() *ServerBuilder {
	return &ServerBuilder{config: config.DefaultConfig()}
}

// NewServerBuilderWithConfig creates a server builder with the given configuration
func NewServerBuilderWithConfig(cfg *config.AMQPConfig) *ServerBuilder {
	return &ServerBuilder{config: cfg}
}

// WithAddress sets the TCP listen address
func (b *ServerBuilder) WithAddress(address string) *ServerBuilder {
	b.config.Network.Address = address
	return b
}

// WithWebSocket enables the WebSocket listener on address
func (b *ServerBuilder) WithWebSocket(address string) *ServerBuilder {
	b.config.Network.WebSocketAddress = address
	return b
}

// WithMaxConnections sets the maximum number of connections
func (b *ServerBuilder) WithMaxConnections(max int) *ServerBuilder {
	b.config.Network.MaxConnections = max
	return b
}

// WithLogger sets the zap logger
func (b *ServerBuilder) WithLogger(logger *zap.Logger) *ServerBuilder {
	b.logger = logger
	return b
}

// WithZapLogger builds a zap logger for level, writing to logFile when set
func (b *ServerBuilder) WithZapLogger(level, logFile string) *ServerBuilder {
	logger, err := NewZapLogger(level, logFile)
	if err != nil {
		b.err = err
		return b
	}
	b.logger = logger
	return b
}

// WithMetrics registers the peer's Prometheus metrics on registerer
func (b *ServerBuilder) WithMetrics(registerer prometheus.Registerer) *ServerBuilder {
	b.registerer = registerer
	return b
}

// WithAuthenticator sets the credential store used by SASL PLAIN
func (b *ServerBuilder) WithAuthenticator(authenticator interfaces.Authenticator) *ServerBuilder {
	b.authenticator = authenticator
	return b
}

// WithFileAuthentication enables SASL PLAIN against a bcrypt users file
func (b *ServerBuilder) WithFileAuthentication(usersFile string) *ServerBuilder {
	b.config.Security.SASLEnabled = true
	b.config.Security.UsersFile = usersFile
	if !contains(b.config.Security.Mechanisms, "PLAIN") {
		b.config.Security.Mechanisms = append(b.config.Security.Mechanisms, "PLAIN")
	}
	fileAuth, err := auth.NewFileAuthenticator(usersFile)
	if err != nil {
		b.err = err
		return b
	}
	b.authenticator = fileAuth
	return b
}

// WithConnectionHook runs hook for every accepted connection
func (b *ServerBuilder) WithConnectionHook(hook func(*Connection)) *ServerBuilder {
	b.hook = hook
	return b
}

// Build validates the configuration and creates the server
func (b *ServerBuilder) Build() (*Server, error) {
	if b.err != nil {
		return nil, b.err
	}

	logger := b.logger
	if logger == nil {
		var err error
		logger, err = NewZapLogger(b.config.Server.LogLevel, b.config.Server.LogFile)
		if err != nil {
			return nil, err
		}
	}

	opts := []Option{WithLogger(logger)}
	if b.collector == nil && b.registerer != nil {
		b.collector = metrics.NewCollector("", b.registerer)
	}
	if b.collector != nil {
		opts = append(opts, WithMetrics(b.collector))
	}
	if b.authenticator != nil {
		opts = append(opts, WithAuthenticator(b.authenticator))
	}
	if b.hook != nil {
		opts = append(opts, WithConnectionHook(b.hook))
	}
	return New(b.config, opts...)
}

// Collector returns the metrics collector Build created, if any
func (b *ServerBuilder) Collector() *metrics.Collector {
	return b.collector
}

// NewZapLogger builds a development logger for "debug" and a production
// logger at level otherwise.
func NewZapLogger(level, logFile string) (*zap.Logger, error) {
	var zapConfig zap.Config

	if level == "debug" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = parseZapLevel(level)
	}

	if logFile != "" {
		zapConfig.OutputPaths = []string{logFile}
	}

	return zapConfig.Build()
}

func parseZapLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
