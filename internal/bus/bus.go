// Package bus carries asynchronous messages from cron jobs and tools to the
// gateway. It is a single-process FIFO.
package bus

import (
	"sync"

	"github.com/haasonsaas/cognis/pkg/models"
)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(msg models.ChatMessage)
}

// MessageBus is a thread-safe FIFO of chat messages.
type MessageBus struct {
	mu    sync.Mutex
	queue []models.ChatMessage
}

func New() *MessageBus {
	return &MessageBus{}
}

// Publish appends msg to the tail of the queue.
func (b *MessageBus) Publish(msg models.ChatMessage) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
}

// Poll removes and returns the head of the queue. It never blocks.
func (b *MessageBus) Poll() (models.ChatMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return models.ChatMessage{}, false
	}
	msg := b.queue[0]
	b.queue[0] = models.ChatMessage{}
	b.queue = b.queue[1:]
	if len(b.queue) == 0 {
		b.queue = nil
	}
	return msg, true
}

// Drain removes and returns everything currently queued, oldest first.
func (b *MessageBus) Drain() []models.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}

// Len reports the number of queued messages.
func (b *MessageBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
