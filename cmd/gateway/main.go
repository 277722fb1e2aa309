package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EchoChat/global"
	"EchoChat/global/config"
	"EchoChat/logger"
	"EchoChat/middleware"
	"EchoChat/module/chat/api"
	"EchoChat/service/chat"
	"EchoChat/service/chat/handlers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:          "gateway",
		Short:        "EchoChat realtime gateway: REST API, websocket fanout, metrics",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfgPath)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", os.Getenv("ECHO_CONFIG"), "yaml config file (optional)")

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Errorf("[Gateway] exit: %+v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(ctx context.Context, cfgPath string) error {
	v, err := config.New(cfgPath)
	if err != nil {
		return err
	}
	cfg, err := config.Watch(v, func(next *config.AppConfig) {
		// 只有日志级别支持热更新，其它改动需要重启
		global.ConfigLog(next)
	})
	if err != nil {
		return err
	}
	global.ConfigLog(cfg)
	global.ConfigIds(cfg)

	store, err := global.ConfigStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(cctx)
	}()

	var srv *chat.Server
	presence, err := global.ConfigPresence(ctx, cfg, func(ctx context.Context) map[string]int {
		return srv.OnlineCounts(ctx)
	})
	if err != nil {
		return err
	}

	opts := []chat.Option{chat.WithPresence(presence)}
	nc, err := global.ConfigNats(cfg)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	if nc != nil {
		defer nc.Close()
		exporter, err := global.ConfigExporter(nc, cfg)
		if err != nil {
			return err
		}
		opts = append(opts, chat.WithEventSink(exporter))
		g.Go(func() error { return exporter.Run(ctx) })
		logger.Infof("[Gateway] exporting events to nats prefix=%s", cfg.Nats.SubjectPrefix)
	}

	srv = chat.NewServer(global.ServerOptions(cfg), opts...)
	handlers.RegisterAll(srv)

	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return presence.Run(ctx) })

	httpSrv := &http.Server{
		Addr:              cfg.Node.HTTPAddr,
		Handler:           newEngine(cfg, srv, api.New(store, presence)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Infof("[HTTP] Listening on %s", cfg.Node.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if cfg.Node.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Node.GRPCAddr)
		if err != nil {
			return err
		}
		gs := grpc.NewServer()
		hs := health.NewServer()
		healthpb.RegisterHealthServer(gs, hs)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		hs.SetServingStatus("echo.Gateway", healthpb.HealthCheckResponse_SERVING)

		g.Go(func() error {
			logger.Infof("[gRPC] Listening on %s", cfg.Node.GRPCAddr)
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			hs.Shutdown()
			gs.GracefulStop()
			return nil
		})
	}

	logger.Infof("[Gateway] node=%s store=%s started", cfg.Node.ID, cfg.Store.Driver)
	return g.Wait()
}

func newEngine(cfg *config.AppConfig, srv *chat.Server, apiSrv *api.Server) *gin.Engine {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	middleware.Manager().Add(middleware.AccessLog(), middleware.Metrics())
	r.Use(middleware.Manager().Use())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "node": srv.NodeID(), "connections": srv.ConnMgr().Len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", srv.HandleWS)

	apiSrv.Mount(middleware.NewRouter(r.Group("/api"), global.AuthOptions(cfg)))
	return r
}
