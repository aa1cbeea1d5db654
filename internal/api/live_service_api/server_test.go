package live_service_api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/Domenick1991/tripboard/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Load(ctx context.Context, token string) (*session.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockSessionStore) Clear(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

type chanWatcher struct {
	ch chan domain.Notification
}

func (w chanWatcher) Watch(int) (<-chan domain.Notification, func()) {
	return w.ch, func() {}
}

func dial(t *testing.T, srv *Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	Register(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_WatchStreamsNotifications(t *testing.T) {
	store := &MockSessionStore{}
	store.On("Load", mock.Anything, "tok-1").Return(&session.Session{Token: "tok-1", UserID: "U1"}, nil)
	watcher := chanWatcher{ch: make(chan domain.Notification, 2)}
	srv := NewServer(store, func(token, userID string) Watcher {
		assert.Equal(t, "tok-1", token)
		assert.Equal(t, "U1", userID)
		return watcher
	})
	conn := dial(t, srv)

	watcher.ch <- domain.Notification{ID: "n0", BookingID: "B", Kind: domain.NotificationTraffic, Message: "other booking"}
	watcher.ch <- domain.Notification{ID: "n1", BookingID: "A", Kind: domain.NotificationArrival, Message: "Live update: Bus arriving in 4 minutes", Severity: domain.SeverityInfo, Source: domain.SourceLive}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer tok-1")

	stream, err := Watch(ctx, conn, "A")
	require.NoError(t, err)

	got := new(structpb.Struct)
	require.NoError(t, stream.RecvMsg(got))
	assert.Equal(t, "n1", got.Fields["id"].GetStringValue())
	assert.Equal(t, "arrival", got.Fields["kind"].GetStringValue())
	assert.Equal(t, "live", got.Fields["source"].GetStringValue())
	assert.Equal(t, "Live update: Bus arriving in 4 minutes", got.Fields["message"].GetStringValue())
}

func TestServer_WatchRequiresSession(t *testing.T) {
	store := &MockSessionStore{}
	store.On("Load", mock.Anything, "stale").Return(nil, session.ErrNotFound)
	srv := NewServer(store, func(string, string) Watcher {
		t.Fatal("board must not be resolved without a session")
		return nil
	})
	conn := dial(t, srv)

	testCases := []struct {
		name string
		md   []string
	}{
		{name: "no token"},
		{name: "expired token", md: []string{"authorization", "Bearer stale"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if tc.md != nil {
				ctx = metadata.AppendToOutgoingContext(ctx, tc.md...)
			}

			stream, err := Watch(ctx, conn, "")
			require.NoError(t, err)

			err = stream.RecvMsg(new(structpb.Struct))
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}
}
