package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisDialer subscribes to one pub/sub channel per connection.
type RedisDialer struct {
	client  *redis.Client
	channel string
}

func NewRedisDialer(client *redis.Client, channel string) *RedisDialer {
	return &RedisDialer{client: client, channel: channel}
}

func (d *RedisDialer) Dial(ctx context.Context) (Conn, error) {
	ps := d.client.Subscribe(ctx, d.channel)
	// Wait for the subscription confirmation so a bad address fails here and not in the pump.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", d.channel, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &redisConn{
		ps:     ps,
		out:    make(chan []byte),
		ctx:    pumpCtx,
		cancel: cancel,
	}
	go c.pump()
	return c, nil
}

type redisConn struct {
	ps     *redis.PubSub
	out    chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	err  error
	once sync.Once
}

func (c *redisConn) pump() {
	defer close(c.out)
	for {
		msg, err := c.ps.ReceiveMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}
		select {
		case c.out <- []byte(msg.Payload):
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *redisConn) Messages() <-chan []byte { return c.out }

func (c *redisConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *redisConn) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.ps.Close()
	})
	return err
}

// RedisPublisher pushes events onto the same channel; used by ops tooling and tests.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.client.Publish(ctx, p.channel, payload).Err()
}
