package log

import (
	"io"
	"sync"
)

// Broadcaster is an io.Writer that fans out every write to all registered
// subscriber channels. The management API uses it to stream log lines to
// attached clients. It is safe for concurrent use.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan []byte]struct{}),
	}
}

// Write copies each write (typically one log line) to every subscriber.
// Sends are non-blocking so a stalled client never blocks the logger.
func (b *Broadcaster) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- buf:
		default:
			// subscriber too slow, drop the line
		}
	}
	return len(p), nil
}

// Subscribe registers a new subscriber and returns a buffered channel that
// receives copies of every log line. Call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan []byte {
	ch := make(chan []byte, 256)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broadcaster) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

var _ io.Writer = (*Broadcaster)(nil)
