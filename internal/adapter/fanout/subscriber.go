package fanout

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by Send after the subscriber has been closed.
	ErrClosed = errors.New("subscriber closed")
	// ErrBufferFull is returned when a slow subscriber cannot take another message.
	ErrBufferFull = errors.New("subscriber buffer full")
)

// Subscriber is a streaming client attached to the hub. Send must not block.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
	Close()
}

// BufferedSubscriber queues outgoing payloads on a bounded channel that a transport
// loop drains. Messages that do not fit are dropped.
type BufferedSubscriber struct {
	id     string
	out    chan []byte
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewBufferedSubscriber creates a subscriber with room for size pending messages.
func NewBufferedSubscriber(id string, size int) *BufferedSubscriber {
	if size <= 0 {
		size = 1
	}
	return &BufferedSubscriber{id: id, out: make(chan []byte, size)}
}

func (s *BufferedSubscriber) ID() string { return s.id }

func (s *BufferedSubscriber) Send(payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.out <- payload:
		return nil
	default:
		return ErrBufferFull
	}
}

// Messages is drained by the transport. It is closed when the subscriber closes.
func (s *BufferedSubscriber) Messages() <-chan []byte {
	return s.out
}

func (s *BufferedSubscriber) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.out)
		s.mu.Unlock()
	})
}
