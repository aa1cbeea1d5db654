package trips

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/Domenick1991/tripboard/internal/live"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/notification"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var ErrBoardClosed = errors.New("board is closed")

// View is what the traveler sees: the three buckets, the notifications per
// booking and the current flash, if it has not expired.
type View struct {
	Buckets       Buckets                          `json:"buckets"`
	Notifications map[string][]domain.Notification `json:"notifications"`
	Flash         *Flash                           `json:"flash,omitempty"`
	RefreshedAt   time.Time                        `json:"refreshed_at"`
}

// BoardDeps are shared by every board.
type BoardDeps struct {
	Loader      *Loader
	Aggregator  *Aggregator
	Coordinator *Coordinator
	Dialer      live.Dialer
	EventBuffer int
}

// Board is the trip pipeline of one session. It owns its notification mapping
// and live subscriptions.
type Board struct {
	userID  string
	deps    BoardDeps
	mapping *notification.Mapping
	channel *live.Channel
	now     func() time.Time

	// refreshMu serializes pipeline runs so a reset never races an aggregation.
	refreshMu sync.Mutex

	mu          sync.RWMutex
	buckets     Buckets
	subs        map[string]*live.Subscription
	flash       *Flash
	refreshedAt time.Time
	lastUsed    time.Time
	watchers    int
	closed      bool
}

func NewBoard(userID string, deps BoardDeps) *Board {
	b := &Board{
		userID:  userID,
		deps:    deps,
		mapping: notification.NewMapping(),
		now:     time.Now,
		buckets: Classify(nil, time.Now()),
		subs:    make(map[string]*live.Subscription),
	}
	b.lastUsed = b.now()

	var opts []live.ChannelOption
	if deps.EventBuffer > 0 {
		opts = append(opts, live.WithEventBuffer(deps.EventBuffer))
	}
	b.channel = live.NewChannel(deps.Dialer, b.mapping, b.resolve, opts...)
	return b
}

func (b *Board) UserID() string { return b.userID }

// resolve maps a schedule to the upcoming bookings that reference it.
func (b *Board) resolve(scheduleID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	matching := lo.Filter(b.buckets.Upcoming, func(bk domain.Booking, _ int) bool {
		return bk.Schedule.ID == scheduleID
	})
	return lo.Map(matching, func(bk domain.Booking, _ int) string { return bk.ID })
}

// Refresh runs the whole pipeline on a list read straight from the store:
// classify, reset the mapping, sync live subscriptions and aggregate
// predictions for upcoming bookings. When the list fails the previous state is
// kept and the store error is returned.
func (b *Board) Refresh(ctx context.Context) (View, error) {
	return b.run(ctx, b.deps.Loader.Reload)
}

// Load runs the same pipeline but accepts a cached booking list. It backs the
// first view of a session.
func (b *Board) Load(ctx context.Context) (View, error) {
	return b.run(ctx, b.deps.Loader.List)
}

func (b *Board) run(ctx context.Context, list func(context.Context, string) ([]domain.Booking, error)) (View, error) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	if b.isClosed() {
		return View{}, ErrBoardClosed
	}
	b.touch()

	logger := log.FromContext(ctx).WithField("user_id", b.userID)

	bookings, err := list(ctx, b.userID)
	if err != nil {
		logger.WithError(err).Warn("could not list bookings")
		return b.View(), err
	}

	now := b.now()
	buckets := Classify(bookings, now)
	wanted := lo.Uniq(lo.Map(buckets.Upcoming, func(bk domain.Booking, _ int) string { return bk.Schedule.ID }))

	b.mu.Lock()
	b.buckets = buckets
	b.refreshedAt = now
	b.mapping.Reset()
	stale := make([]*live.Subscription, 0)
	for scheduleID, sub := range b.subs {
		if !lo.Contains(wanted, scheduleID) || sub.State() == live.StateClosed {
			stale = append(stale, sub)
			delete(b.subs, scheduleID)
		}
	}
	missing := lo.Filter(wanted, func(id string, _ int) bool {
		_, ok := b.subs[id]
		return !ok
	})
	b.mu.Unlock()

	for _, sub := range stale {
		sub.Close()
	}
	b.openSubscriptions(ctx, logger, missing)

	b.deps.Aggregator.Aggregate(ctx, buckets.Upcoming, b.mapping)

	logger.WithFields(logrus.Fields{
		"upcoming":      len(buckets.Upcoming),
		"past":          len(buckets.Past),
		"cancelled":     len(buckets.Cancelled),
		"subscriptions": b.subscriptionCount(),
	}).Info("trip board refreshed")
	return b.View(), nil
}

func (b *Board) openSubscriptions(ctx context.Context, logger *logrus.Entry, scheduleIDs []string) {
	for _, id := range scheduleIDs {
		sub, err := b.channel.Open(ctx, id)
		if err != nil {
			logger.WithError(err).WithField("schedule_id", id).Warn("live updates unavailable for schedule")
			continue
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			sub.Close()
			return
		}
		b.subs[id] = sub
		b.mu.Unlock()
	}
}

// Cancel asks the coordinator to cancel a booking. On success the pipeline runs
// again from scratch; on failure only the flash changes.
func (b *Board) Cancel(ctx context.Context, bookingID, reason string) (View, error) {
	if b.isClosed() {
		return View{}, ErrBoardClosed
	}
	b.touch()

	outcome, err := b.deps.Coordinator.Cancel(ctx, b.userID, bookingID, reason)

	b.mu.Lock()
	b.flash = outcome.Flash
	b.mu.Unlock()

	if err != nil {
		return b.View(), err
	}
	if outcome.Refresh {
		return b.Refresh(ctx)
	}
	return b.View(), nil
}

// View returns a snapshot. It never triggers provider calls.
func (b *Board) View() View {
	b.mu.RLock()
	defer b.mu.RUnlock()

	view := View{
		Buckets:       b.buckets,
		Notifications: b.mapping.Snapshot(),
		RefreshedAt:   b.refreshedAt,
	}
	if b.flash.Active(b.now()) {
		f := *b.flash
		view.Flash = &f
	}
	return view
}

// Watch streams notifications appended from now on, polled or live. The
// channel is closed by the returned func or when the board closes. A board is
// not swept while it has watchers.
func (b *Board) Watch(buffer int) (<-chan domain.Notification, func()) {
	ch, stop := b.mapping.Watch(buffer)

	b.mu.Lock()
	b.watchers++
	b.lastUsed = b.now()
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			stop()
			b.mu.Lock()
			b.watchers--
			b.lastUsed = b.now()
			b.mu.Unlock()
		})
	}
}

// ScheduleIDs lists the schedules with an open live subscription.
func (b *Board) ScheduleIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return lo.Keys(b.subs)
}

// Close tears the board down, closes every live subscription and ends every
// Watch channel. It is safe to call more than once.
func (b *Board) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := lo.Values(b.subs)
	b.subs = make(map[string]*live.Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	b.mapping.Close()
}

func (b *Board) idleSince() (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUsed, b.watchers == 0
}

func (b *Board) touch() {
	b.mu.Lock()
	b.lastUsed = b.now()
	b.mu.Unlock()
}

func (b *Board) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Board) subscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
