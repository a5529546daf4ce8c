package wsgateway

import (
	"sync"
)

// ConnectionRegistry manages all active WebSocket connections
type ConnectionRegistry struct {
	connections map[string]*Connection            // connection_id -> connection
	bySubject   map[string]map[string]*Connection // subject -> connection_id -> connection
	mu          sync.RWMutex
}

// NewConnectionRegistry creates a new connection registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: make(map[string]*Connection),
		bySubject:   make(map[string]map[string]*Connection),
	}
}

// Add adds a connection to the registry
func (r *ConnectionRegistry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.ID] = conn

	if r.bySubject[conn.Subject] == nil {
		r.bySubject[conn.Subject] = make(map[string]*Connection)
	}
	r.bySubject[conn.Subject][conn.ID] = conn
}

// Remove removes a connection and reports whether it was present
func (r *ConnectionRegistry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[connectionID]
	if !exists {
		return false
	}

	delete(r.connections, connectionID)

	if subjectConns, exists := r.bySubject[conn.Subject]; exists {
		delete(subjectConns, connectionID)
		if len(subjectConns) == 0 {
			delete(r.bySubject, conn.Subject)
		}
	}
	return true
}

// Get retrieves a connection by ID
func (r *ConnectionRegistry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[connectionID]
	return conn, exists
}

// GetAll retrieves all connections
func (r *ConnectionRegistry) GetAll() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	return connections
}

// Count returns the total number of connections
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CountBySubject returns the number of connections for a subject
func (r *ConnectionRegistry) CountBySubject(subject string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySubject[subject])
}
