package server

import (
	"sync"

	"drudge/models"

	log "github.com/sirupsen/logrus"
)

// Broadcaster fans published display lists out to SSE clients
type Broadcaster struct {
	sync.RWMutex
	clients map[string]chan models.DisplayList
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]chan models.DisplayList),
	}
}

// Broadcast never blocks. A client that falls behind has its pending lists
// replaced so the newest list is always the next one it reads.
func (b *Broadcaster) Broadcast(list models.DisplayList) {
	b.Lock()
	defer b.Unlock()

	for key, client := range b.clients {
		if offer(client, list) {
			continue
		}
		select {
		case <-client:
			log.Debugf("Client channel full, replacing pending display list for client: %v", key)
		default:
		}
		if !offer(client, list) {
			log.Warnf("Client not receiving, skipping display list for client: %v", key)
		}
	}
}

func offer(client chan models.DisplayList, list models.DisplayList) bool {
	select {
	case client <- list:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) AddClient(key string, client chan models.DisplayList) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = client
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Adding client to broadcaster")
}

// RemoveClient closes the client's channel. Unknown keys are ignored.
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.clients[key]; ok {
		close(client)
		delete(b.clients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Count() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.clients {
		close(client)
		delete(b.clients, key)
	}
}
