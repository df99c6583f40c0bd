package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Manager fans sync progress events out to every connected observer. The
// daemon serves a single operator, so there is no per-user index; every
// client receives every event.
type Manager struct {
	logger *log.Logger

	clientsMutex sync.RWMutex
	clients      map[string]*Client

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	maxClients int
}

func NewManager(maxClients int, writeWait, pongWait, pingPeriod time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		logger:     logger,
		clients:    make(map[string]*Client),
		writeWait:  writeWait,
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		maxClients: maxClients,
	}
}

func (m *Manager) register(client *Client) bool {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.maxClients > 0 && len(m.clients) >= m.maxClients {
		m.logger.Printf("[ws] max observer connections reached, rejecting %s", client.ID)
		return false
	}
	m.clients[client.ID] = client
	m.logger.Printf("[ws] observer connected: %s", client.ID)
	return true
}

func (m *Manager) unregister(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		close(client.send)
		m.logger.Printf("[ws] observer disconnected: %s", client.ID)
	}
}

// Publish satisfies the sync manager's EventPublisher seam.
func (m *Manager) Publish(eventType string, payload any) {
	msg, err := NewMessage(eventType, payload)
	if err != nil {
		m.logger.Printf("[ws] could not encode %s event: %v", eventType, err)
		return
	}
	m.broadcast(msg)
}

func (m *Manager) broadcast(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Printf("[ws] could not marshal message: %v", err)
		return
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	for id, client := range m.clients {
		select {
		case client.send <- data:
		default:
			m.logger.Printf("[ws] observer %s send buffer full, dropping event", id)
		}
	}
}

// ClientCount reports connected observers, for the status endpoint.
func (m *Manager) ClientCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}
