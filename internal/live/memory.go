package live

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryBroker is an in-process transport. Every open connection receives every
// published payload, like a multiplexed pub/sub channel.
type MemoryBroker struct {
	mu      sync.Mutex
	conns   map[*memoryConn]struct{}
	dialErr error
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{conns: make(map[*memoryConn]struct{})}
}

// FailDials makes subsequent Dial calls return err; nil restores normal dialing.
func (b *MemoryBroker) FailDials(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

func (b *MemoryBroker) Dial(_ context.Context) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	c := &memoryConn{broker: b, out: make(chan []byte, 64)}
	b.conns[c] = struct{}{}
	return c, nil
}

func (b *MemoryBroker) Publish(ev Event) {
	payload, _ := json.Marshal(ev)
	b.PublishRaw(payload)
}

func (b *MemoryBroker) PublishRaw(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		select {
		case c.out <- payload:
		default:
			// best effort, like the real transports
		}
	}
}

// Fail ends every open connection with err.
func (b *MemoryBroker) Fail(err error) {
	b.mu.Lock()
	conns := make([]*memoryConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.end(err)
	}
}

// Open reports how many connections are currently open.
func (b *MemoryBroker) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

type memoryConn struct {
	broker *MemoryBroker
	out    chan []byte

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (c *memoryConn) Messages() <-chan []byte { return c.out }

func (c *memoryConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *memoryConn) Close() error {
	c.end(nil)
	return nil
}

func (c *memoryConn) end(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()

		c.broker.mu.Lock()
		delete(c.broker.conns, c)
		close(c.out)
		c.broker.mu.Unlock()
	})
}
