// Package live_service_api serves the trip board's notification stream over gRPC.
// Messages are google.protobuf.Struct so clients need no generated stubs.
package live_service_api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "tripboard.v1.LiveUpdates"
	WatchMethod = "/" + ServiceName + "/Watch"
)

// LiveUpdatesServer is implemented by Server.
type LiveUpdatesServer interface {
	Watch(req *structpb.Struct, stream grpc.ServerStream) error
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LiveUpdatesServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "tripboard/v1/live.proto",
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(LiveUpdatesServer).Watch(req, stream)
}

func Register(s grpc.ServiceRegistrar, srv LiveUpdatesServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type Watcher interface {
	Watch(buffer int) (<-chan domain.Notification, func())
}

// BoardFunc returns the board of a session.
type BoardFunc func(token, userID string) Watcher

type Server struct {
	sessions session.Store
	boards   BoardFunc
}

func NewServer(sessions session.Store, boards BoardFunc) *Server {
	return &Server{sessions: sessions, boards: boards}
}

// Watch streams the caller's notifications until the client goes away. The
// request may carry "booking_id" to narrow the stream to one booking.
func (s *Server) Watch(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()

	sess, err := s.authenticate(ctx)
	if err != nil {
		return err
	}
	logger := log.FromContext(ctx).WithField("user_id", sess.UserID)

	bookingID := req.GetFields()["booking_id"].GetStringValue()

	ch, stop := s.boards(sess.Token, sess.UserID).Watch(32)
	defer stop()
	logger.Debug("grpc live stream attached")

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-ch:
			if !ok {
				return nil
			}
			if bookingID != "" && rec.BookingID != bookingID {
				continue
			}
			msg, err := ToStruct(rec)
			if err != nil {
				return status.Errorf(codes.Internal, "encode notification: %v", err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) authenticate(ctx context.Context) (*session.Session, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var token string
	if values := md.Get("authorization"); len(values) > 0 {
		token = strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
	}
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing session token")
	}

	sess, err := s.sessions.Load(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return nil, status.Error(codes.Unauthenticated, "session expired")
	}
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "session store: %v", err)
	}
	return sess, nil
}

func ToStruct(n domain.Notification) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"id":         n.ID,
		"booking_id": n.BookingID,
		"kind":       string(n.Kind),
		"message":    n.Message,
		"severity":   string(n.Severity),
		"source":     string(n.Source),
		"created_at": n.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// Watch opens a client stream against a LiveUpdates server.
func Watch(ctx context.Context, cc grpc.ClientConnInterface, bookingID string) (grpc.ClientStream, error) {
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchMethod)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if bookingID != "" {
		req.Fields["booking_id"] = structpb.NewStringValue(bookingID)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}
