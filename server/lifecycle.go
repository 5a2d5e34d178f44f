package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/maxpert/amqp-peer/interfaces"
)

// LifecycleState represents the current state of the server
type LifecycleState int

const (
	StateStopped LifecycleState = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// lifecycle tracks the server's state transitions and uptime
type lifecycle struct {
	mutex     sync.RWMutex
	state     LifecycleState
	startTime time.Time
	stopTime  time.Time
	lastError error
}

func (lc *lifecycle) State() LifecycleState {
	lc.mutex.RLock()
	defer lc.mutex.RUnlock()
	return lc.state
}

// transition moves to target when the current state allows it
func (lc *lifecycle) transition(target LifecycleState) error {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	if !canTransition(lc.state, target) {
		return fmt.Errorf("cannot move server from %s to %s", lc.state, target)
	}
	switch target {
	case StateStarting:
		lc.startTime = time.Now()
		lc.stopTime = time.Time{}
		lc.lastError = nil
	case StateStopped:
		lc.stopTime = time.Now()
	}
	lc.state = target
	return nil
}

// fail records err and moves to the error state
func (lc *lifecycle) fail(err error) {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()
	lc.state = StateError
	lc.lastError = err
}

// Uptime returns how long the server has been running
func (lc *lifecycle) Uptime() time.Duration {
	lc.mutex.RLock()
	defer lc.mutex.RUnlock()

	if lc.startTime.IsZero() {
		return 0
	}
	if !lc.stopTime.IsZero() {
		return lc.stopTime.Sub(lc.startTime)
	}
	return time.Since(lc.startTime)
}

// Health reports the lifecycle state as a health status
func (lc *lifecycle) Health() interfaces.HealthStatus {
	lc.mutex.RLock()
	state, lastError := lc.state, lc.lastError
	lc.mutex.RUnlock()

	status := interfaces.HealthStatus{
		Uptime:    lc.Uptime(),
		Timestamp: time.Now(),
	}

	switch state {
	case StateRunning:
		status.Status = "ok"
	case StateError:
		status.Status = "unhealthy"
		if lastError != nil {
			status.Errors = []string{lastError.Error()}
		}
	default:
		status.Status = state.String()
	}
	return status
}

func canTransition(current, target LifecycleState) bool {
	switch target {
	case StateStarting:
		return current == StateStopped || current == StateError
	case StateRunning:
		return current == StateStarting
	case StateStopping:
		return current == StateStarting || current == StateRunning || current == StateError
	case StateStopped:
		return current == StateStopping
	case StateError:
		return true
	default:
		return false
	}
}
