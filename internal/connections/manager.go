package connections

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yagpt/gateway/internal/observability"
)

// TimeoutConfig holds the keepalive settings for chat connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// Manager tracks open chat connections and the user each one belongs to
type Manager struct {
	connections sync.Map
	timeouts    TimeoutConfig
}

var DefaultTimeouts = TimeoutConfig{
	PongWait:   60 * time.Second,
	PingPeriod: 54 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddConnection registers a connection for a user
func (m *Manager) AddConnection(conn *websocket.Conn, userID string) {
	if _, loaded := m.connections.LoadOrStore(conn, userID); !loaded {
		observability.ConnectionOpened()
	}
}

// RemoveConnection forgets a connection. Removing an unknown connection is a no-op.
func (m *Manager) RemoveConnection(conn *websocket.Conn) {
	if _, loaded := m.connections.LoadAndDelete(conn); loaded {
		observability.ConnectionClosed()
	}
}

func (m *Manager) GetConnectionCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

func (m *Manager) HasConnection(conn *websocket.Conn) bool {
	_, exists := m.connections.Load(conn)
	return exists
}

// UserConnections counts open connections for one user
func (m *Manager) UserConnections(userID string) int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		if value.(string) == userID {
			count++
		}
		return true
	})
	return count
}

func (m *Manager) GetTimeouts() TimeoutConfig {
	return m.timeouts
}
