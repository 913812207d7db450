package sse

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 16
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	DeviceID string
	Events   chan Event
	Done     chan struct{}
}

// Broker fans events out to the streams currently open for a device. It is
// process-local, like the registries it reports on.
type Broker struct {
	clients map[string]map[*Client]bool // deviceID -> set of clients
	mu      sync.RWMutex
}

func NewBroker() *Broker {
	return &Broker{
		clients: make(map[string]map[*Client]bool),
	}
}

func (b *Broker) Subscribe(deviceID string) *Client {
	client := &Client{
		DeviceID: deviceID,
		Events:   make(chan Event, clientBufferSize),
		Done:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[deviceID] == nil {
		b.clients[deviceID] = make(map[*Client]bool)
	}
	b.clients[deviceID][client] = true
	clientCount := len(b.clients[deviceID])
	b.mu.Unlock()

	log.Info().
		Str("deviceId", deviceID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.DeviceID]; ok {
		if !clients[client] {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.DeviceID)
		}

		log.Info().
			Str("deviceId", client.DeviceID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

// Publish delivers the event to every open stream for deviceID and reports
// how many received it. Slow clients with a full buffer miss the event.
func (b *Broker) Publish(deviceID string, eventType string, data any) (int, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}
	event := Event{Type: eventType, Data: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for client := range b.clients[deviceID] {
		select {
		case client.Events <- event:
			delivered++
		default:
			log.Warn().
				Str("deviceId", deviceID).
				Msg("client event buffer full, dropping event")
		}
	}
	return delivered, nil
}

func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
}

func (b *Broker) ClientCount(deviceID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[deviceID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
