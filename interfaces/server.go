package interfaces

import (
	"context"
	"errors"
	"time"
)

// Authentication errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Authenticator defines the interface for credential stores
type Authenticator interface {
	// Authenticate validates user credentials
	Authenticate(username, password string) (*User, error)

	// GetUser retrieves user information
	GetUser(username string) (*User, error)

	// RefreshUser updates user information from the backing store
	RefreshUser(user *User) error
}

// User represents an authenticated user
type User struct {
	Username  string
	Groups    []string
	Mechanism string
}

// Server defines the interface for the peer's network front end
type Server interface {
	// Start starts the server with the given context
	Start(ctx context.Context) error

	// Stop gracefully stops the server
	Stop(ctx context.Context) error

	// Health returns the server health status
	Health() HealthStatus

	// GetStats returns server statistics
	GetStats() *ServerStats

	// GetConnections returns active connections
	GetConnections() []ConnectionInfo
}

// HealthStatus represents server health information
type HealthStatus struct {
	Status    string
	Uptime    time.Duration
	Errors    []string
	Timestamp time.Time
}

// ServerStats provides server statistics
type ServerStats struct {
	Uptime           time.Duration
	Connections      int
	TotalConnections int64
	FailedPeers      int64
	BytesReceived    int64
	BytesSent        int64
}

// ConnectionInfo provides information about a connection
type ConnectionInfo struct {
	ID            string
	RemoteAddress string
	Transport     string
	Username      string
	Sessions      int
	ConnectedAt   time.Time
	LastActivity  time.Time
}
