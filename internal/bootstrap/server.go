package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/tripboard/api"
	"github.com/Domenick1991/tripboard/config"
	liveapi "github.com/Domenick1991/tripboard/internal/api/live_service_api"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/service/trips"
	"github.com/Domenick1991/tripboard/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Deps struct {
	Sessions session.Store
	Boards   *trips.Manager
}

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
	healthConn *grpc.ClientConn
}

// Run starts the gRPC and HTTP servers plus the idle board sweeper and blocks
// until ctx is cancelled or one of them fails.
func Run(ctx context.Context, cfg *config.Config, deps Deps) error {
	s, err := newServers(cfg, deps)
	if err != nil {
		return err
	}
	defer s.healthConn.Close()

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}

	logger := log.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("address", cfg.GRPC.Address).Info("grpc server listening")
		return s.grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.WithField("address", cfg.HTTP.Address).Info("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweepBoards(gctx, deps.Boards, cfg.Trips.SweepInterval(), cfg.Trips.BoardIdle())
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown http server")
		}
		s.grpcServer.GracefulStop()
		deps.Boards.Close()
		return nil
	})

	return g.Wait()
}

func newServers(cfg *config.Config, deps Deps) (*Servers, error) {
	grpcSrv := grpc.NewServer()

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus(liveapi.ServiceName, healthpb.HealthCheckResponse_SERVING)

	boards := api.ManagerBoards{Manager: deps.Boards}
	liveapi.Register(grpcSrv, liveapi.NewServer(deps.Sessions, func(token, userID string) liveapi.Watcher {
		return deps.Boards.Get(token, userID)
	}))

	// /healthz is answered by the gateway from the gRPC health service.
	healthConn, err := grpc.NewClient(cfg.GRPC.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial health endpoint: %w", err)
	}
	gwmux := runtime.NewServeMux(runtime.WithHealthzEndpoint(healthpb.NewHealthClient(healthConn)))

	router := api.NewRouter(api.RouterDeps{
		Sessions:       deps.Sessions,
		Boards:         boards,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	router.GET("/healthz", gin.WrapH(gwmux))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.HTTP.SwaggerDir != "" {
		router.StaticFS("/swagger", http.Dir(cfg.HTTP.SwaggerDir))
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/tripboard.swagger.json"))))
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: httpSrv,
		health:     healthSrv,
		healthConn: healthConn,
	}, nil
}

func sweepBoards(ctx context.Context, boards *trips.Manager, every, idle time.Duration) {
	if every <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			boards.Sweep(idle)
		}
	}
}
