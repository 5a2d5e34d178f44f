package server

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/maxpert/amqp-peer/driver"
	amqperrors "github.com/maxpert/amqp-peer/errors"
	"github.com/maxpert/amqp-peer/interfaces"
	"github.com/maxpert/amqp-peer/protocol"
)

// clockTick is how often a connection advances its driver's virtual clock
const clockTick = 50 * time.Millisecond

// transport is the byte stream under one connection
type transport interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
	SetReadDeadline(t time.Time) error
}

// Connection binds one transport to a protocol driver. Bytes read are fed
// to the driver; bytes the driver produces are written back.
type Connection struct {
	ID        string
	Transport string
	Driver    *driver.Driver

	server    *Server
	conn      transport
	log       *zap.Logger
	recorder  *driver.Recorder
	responder *responder

	connectedAt  time.Time
	lastActivity atomic.Int64
	username     atomic.Value

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newConnection(s *Server, id, kind string, t transport) (*Connection, error) {
	c := &Connection{
		ID:          id,
		Transport:   kind,
		server:      s,
		conn:        t,
		log:         s.log.With(zap.String("connection_id", id), zap.String("remote_addr", t.RemoteAddr().String())),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
	c.touch()

	opts := []driver.Option{driver.WithLogger(c.log)}
	if s.metrics != nil {
		opts = append(opts, driver.WithMetrics(s.metrics))
	}
	if dir := s.config.Peer.TracePath; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		recorder, err := driver.OpenRecorder(filepath.Join(dir, id+".cbor"))
		if err != nil {
			return nil, err
		}
		c.recorder = recorder
		opts = append(opts, driver.WithRecorder(recorder))
	}

	peer := s.config.Peer
	if peer.ContainerID == "" {
		peer.ContainerID = s.config.Server.Name + "-" + id
	}
	c.Driver = driver.New(peer, opts...)
	c.responder = newResponder(c, peer)

	c.Driver.OnOutput(c.write)
	c.Driver.OnFailure(c.onFailure)
	c.Driver.OnEvent(c.responder.handle)
	return c, nil
}

// Info describes the connection for the server's connection listing
func (c *Connection) Info() interfaces.ConnectionInfo {
	username, _ := c.username.Load().(string)
	return interfaces.ConnectionInfo{
		ID:            c.ID,
		RemoteAddress: c.conn.RemoteAddr().String(),
		Transport:     c.Transport,
		Username:      username,
		Sessions:      len(c.Driver.Sessions()),
		ConnectedAt:   c.connectedAt,
		LastActivity:  time.Unix(0, c.lastActivity.Load()),
	}
}

// Close closes the transport; the read loop then winds the connection down.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// run reads until the transport closes or the driver fails
func (c *Connection) run() {
	c.log.Debug("Connection opened", zap.String("transport", c.Transport))

	if c.server.hook != nil {
		c.server.hook(c)
	}

	clockDone := make(chan struct{})
	go func() {
		defer close(clockDone)
		c.runClock()
	}()

	c.readLoop()

	close(c.done)
	<-clockDone
	c.Close()
	c.closeTrace()
	c.log.Debug("Connection closed")
}

func (c *Connection) closeTrace() {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Close(); err != nil {
		c.log.Warn("Failed to close frame trace", zap.Error(err))
	}
}

func (c *Connection) readLoop() {
	buf := make([]byte, c.server.config.Network.ReadBufferSize)
	timeout := c.server.config.Network.ConnectionTimeout

	for {
		if d := c.readTimeout(timeout); d > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(d))
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.touch()
			c.server.bytesIn.Add(int64(n))
			if ingestErr := c.Driver.Ingest(buf[:n]); ingestErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.log.Debug("Read ended", zap.Error(err))
			}
			return
		}
	}
}

// readTimeout bounds the wait for the protocol header by the connection
// timeout and later reads by twice the advertised idle timeout.
func (c *Connection) readTimeout(connectTimeout time.Duration) time.Duration {
	if len(c.Driver.RemoteHeaders()) == 0 {
		return connectTimeout
	}
	if idle := c.server.config.Peer.IdleTimeout; idle > 0 {
		return 2 * idle
	}
	return 0
}

// runClock advances the driver's virtual clock in real time so scheduled
// sends fire, and keeps the remote peer's idle timer alive with heartbeats.
func (c *Connection) runClock() {
	ticker := time.NewTicker(clockTick)
	defer ticker.Stop()

	var sinceHeartbeat time.Duration
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		if err := c.Driver.Advance(clockTick); err != nil {
			c.log.Warn("Scheduled action failed", zap.Error(err))
		}

		interval := c.heartbeatInterval()
		if interval == 0 {
			continue
		}
		sinceHeartbeat += clockTick
		if sinceHeartbeat >= interval {
			sinceHeartbeat = 0
			_ = c.Driver.SendHeartbeat()
		}
	}
}

// heartbeatInterval is half the remote peer's idle-time-out once both Opens
// have been exchanged, or 0.
func (c *Connection) heartbeatInterval() time.Duration {
	remote := c.Driver.RemoteOpen()
	if remote == nil || c.Driver.LocalOpen() == nil || !remote.Has(protocol.OpenIdleTimeout) {
		return 0
	}
	ms := remote.IdleTimeout()
	if ms == 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond / 2
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// write is the driver's output sink. It runs under the driver lock.
func (c *Connection) write(frame []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n, err := c.conn.Write(frame)
	c.server.bytesOut.Add(int64(n))
	if err != nil {
		c.log.Debug("Write failed", zap.Error(err))
		c.Close()
	}
}

// onFailure answers a fatal error the way a broker would: a bad protocol
// header gets our own header back, anything later gets a Close carrying the
// error condition. The connection is then dropped.
func (c *Connection) onFailure(err error) {
	c.server.failedPeers.Add(1)
	if c.server.metrics != nil {
		c.server.metrics.RecordConnectionFailed()
	}
	c.log.Warn("Closing connection after peer error",
		zap.String("condition", string(amqperrors.ConditionOf(err))),
		zap.Error(err))

	var frame []byte
	if len(c.Driver.RemoteHeaders()) == 0 {
		frame = c.responder.preferredHeader().Bytes()
	} else if c.Driver.LocalOpen() != nil && c.Driver.LocalClose() == nil {
		closeFrame := protocol.NewClose().SetError(protocol.NewErrorCondition(
			protocol.Symbol(amqperrors.ConditionOf(err)), err.Error()))
		encoded, _, encErr := protocol.EncodeAMQP(closeFrame, 0, nil, 0, nil)
		if encErr == nil {
			frame = encoded
		}
	}
	if frame != nil {
		c.write(frame)
	}
	c.Close()
}

func (c *Connection) setUser(user *interfaces.User) {
	c.username.Store(user.Username)
}
