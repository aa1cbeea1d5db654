package live

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaDialer reads one partition of the schedule updates topic per connection,
// starting at the newest offset so a new subscription only sees fresh events.
type KafkaDialer struct {
	brokers   []string
	topic     string
	partition int
}

func NewKafkaDialer(brokers []string, topic string, partition int) *KafkaDialer {
	return &KafkaDialer{brokers: brokers, topic: topic, partition: partition}
}

func (d *KafkaDialer) Dial(ctx context.Context) (Conn, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   d.brokers,
		Topic:     d.topic,
		Partition: d.partition,
		MinBytes:  1,
		MaxBytes:  1 << 20,
		MaxWait:   500 * time.Millisecond,
	})
	if err := reader.SetOffset(kafka.LastOffset); err != nil {
		_ = reader.Close()
		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &kafkaConn{
		reader: reader,
		out:    make(chan []byte),
		ctx:    pumpCtx,
		cancel: cancel,
	}
	go c.pump()
	return c, nil
}

type kafkaConn struct {
	reader *kafka.Reader
	out    chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	err  error
	once sync.Once
}

func (c *kafkaConn) pump() {
	defer close(c.out)
	for {
		msg, err := c.reader.ReadMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}
		select {
		case c.out <- msg.Value:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *kafkaConn) Messages() <-chan []byte { return c.out }

func (c *kafkaConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *kafkaConn) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.reader.Close()
	})
	return err
}
