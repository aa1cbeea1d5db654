// Package live merges pushed schedule updates into the notification mapping.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/metrics"
	"github.com/Domenick1991/tripboard/internal/notification"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LivePrefix marks pushed records apart from polled predictions.
const LivePrefix = "Live update: "

var (
	ErrSubscriptionClosed = errors.New("subscription is closed")
	ErrAlreadyOpen        = errors.New("subscription is already open")
)

type State int32

const (
	StateUnopened State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Resolver returns the booking IDs that reference a schedule.
type Resolver func(scheduleID string) []string

// Channel opens subscriptions whose accepted events land in one mapping.
type Channel struct {
	dialer  Dialer
	mapping *notification.Mapping
	resolve Resolver
	buffer  int
	now     func() time.Time
}

type ChannelOption func(*Channel)

// WithEventBuffer sets the size of each subscription's Events channel.
func WithEventBuffer(n int) ChannelOption {
	return func(c *Channel) {
		c.buffer = n
	}
}

func NewChannel(dialer Dialer, mapping *notification.Mapping, resolve Resolver, opts ...ChannelOption) *Channel {
	c := &Channel{
		dialer:  dialer,
		mapping: mapping,
		resolve: resolve,
		buffer:  64,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe returns an unopened subscription bound to scheduleID.
func (c *Channel) Subscribe(scheduleID string) *Subscription {
	return &Subscription{
		scheduleID: scheduleID,
		channel:    c,
		events:     make(chan Event, c.buffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Open subscribes and opens in one step.
func (c *Channel) Open(ctx context.Context, scheduleID string) (*Subscription, error) {
	sub := c.Subscribe(scheduleID)
	if err := sub.Open(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// deliver appends one live record per booking referencing the event's schedule.
func (c *Channel) deliver(ev Event) int {
	bookingIDs := c.resolve(ev.ScheduleID)
	for _, id := range bookingIDs {
		c.mapping.Append(id, domain.Notification{
			ID:        uuid.NewString(),
			BookingID: id,
			Kind:      domain.NotificationKind(ev.Type),
			Message:   LivePrefix + ev.Message,
			Severity:  domain.ParseSeverity(ev.Severity),
			Source:    domain.SourceLive,
			CreatedAt: c.now(),
		})
	}
	return len(bookingIDs)
}

// Subscription is a live receiver for one schedule. It moves
// unopened -> open -> closed and never back.
type Subscription struct {
	scheduleID string
	channel    *Channel
	conn       Conn
	events     chan Event
	logger     *logrus.Entry

	state     atomic.Int32
	stop      chan struct{}
	done      chan struct{}
	openMu    sync.Mutex
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func (s *Subscription) ScheduleID() string { return s.scheduleID }

func (s *Subscription) State() State { return State(s.state.Load()) }

// Events carries accepted events. It is closed once the subscription is closed.
// Delivery is best effort: a reader that falls behind misses events here, but
// never in the mapping.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed once the subscription stops receiving.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the transport failure that closed the subscription, if any.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Subscription) Open(ctx context.Context) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	switch s.State() {
	case StateOpen:
		return ErrAlreadyOpen
	case StateClosed:
		return ErrSubscriptionClosed
	}

	conn, err := s.channel.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("open subscription for schedule %s: %w", s.scheduleID, err)
	}

	s.conn = conn
	s.logger = log.FromContext(ctx).WithField("schedule_id", s.scheduleID)
	s.state.Store(int32(StateOpen))
	metrics.LiveSubscriptions.Inc()
	s.logger.Debug("live subscription opened")

	go s.pump()
	return nil
}

// Close releases the connection. It is idempotent, safe after a transport
// failure, and once it returns no further event reaches the mapping.
func (s *Subscription) Close() {
	s.openMu.Lock()
	opened := s.conn != nil
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.stop)
		if opened {
			if err := s.conn.Close(); err != nil {
				s.logger.WithError(err).Debug("closing live transport")
			}
		} else {
			close(s.events)
			close(s.done)
		}
	})
	s.openMu.Unlock()

	if opened {
		<-s.done
	}
}

func (s *Subscription) pump() {
	defer s.finish()

	messages := s.conn.Messages()
	for {
		select {
		case <-s.stop:
			return
		case raw, ok := <-messages:
			if !ok {
				if err := s.conn.Err(); err != nil {
					s.errMu.Lock()
					s.err = err
					s.errMu.Unlock()
					s.logger.WithError(err).Warn("live transport failed, subscription closed")
				}
				return
			}
			s.handle(raw)
		}
	}
}

func (s *Subscription) handle(raw []byte) {
	ev, err := DecodeEvent(raw)
	if err != nil {
		metrics.LiveEvents.WithLabelValues("malformed").Inc()
		s.logger.WithError(err).Warn("dropping malformed push event")
		return
	}
	if ev.ScheduleID != s.scheduleID {
		metrics.LiveEvents.WithLabelValues("filtered").Inc()
		return
	}

	select {
	case <-s.stop:
		return
	default:
	}

	n := s.channel.deliver(ev)
	metrics.LiveEvents.WithLabelValues("accepted").Inc()
	s.logger.WithFields(logrus.Fields{"type": ev.Type, "bookings": n}).Debug("live event merged")

	select {
	case s.events <- ev:
	default:
		s.logger.Debug("events reader is behind, event not forwarded")
	}
}

func (s *Subscription) finish() {
	s.state.Store(int32(StateClosed))
	_ = s.conn.Close()
	close(s.events)
	metrics.LiveSubscriptions.Dec()
	s.logger.Debug("live subscription closed")
	close(s.done)
}
