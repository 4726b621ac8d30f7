package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/config"
	"chat-realtime/internal/db"
	"chat-realtime/internal/delivery"
	grpcserver "chat-realtime/internal/grpc"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/jobs"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/rabbitmq"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/storage"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	database, err := db.Connect(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer database.Close()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s %s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	files := storage.NewLocalStore(cfg.UploadDir, "/uploads/")

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)
	storyRepo := repositories.NewStoryRepo(database)
	contactRepo := repositories.NewContactRepo(database)

	receipts := delivery.NewService(messageRepo)
	validator := auth.NewJWT(cfg.JWTSecret)

	opts := ws.DefaultOptions()
	opts.SendBuffer = cfg.WSSendBuffer
	opts.EventRate = cfg.WSEventRate
	opts.EventBurst = cfg.WSEventBurst
	realtime := ws.NewServer(ws.NewHub(), chatRepo, userRepo, receipts, validator, opts)

	expiry := jobs.NewStatusExpiry(storyRepo, files)
	scheduler, err := jobs.NewScheduler("status-expiry", cfg.StatusCleanupCron, func(ctx context.Context) error {
		_, err := expiry.RunOnce(ctx)
		return err
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "onlineUsers": realtime.Hub().OnlineUsers()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/uploads", cfg.UploadDir)
	router.GET("/ws", realtime.Handle)

	handlers.RegisterRoutes(router, middleware.AuthMiddleware(validator), handlers.Handlers{
		Chat:     handlers.NewChatHandler(chatRepo, messageRepo, userRepo, realtime, files, auditEmitter),
		Group:    handlers.NewGroupHandler(chatRepo, messageRepo, userRepo, realtime, files, auditEmitter),
		Message:  handlers.NewMessageHandler(chatRepo, messageRepo, receipts, realtime, contactRepo, files, auditEmitter),
		Status:   handlers.NewStatusHandler(storyRepo, chatRepo, userRepo, files, files, expiry, auditEmitter, cfg.StatusTTL),
		Presence: handlers.NewPresenceHandler(realtime),
		Contact:  handlers.NewContactHandler(contactRepo, userRepo, auditEmitter),
	})
	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpcserver.NewServer(realtime.Hub())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("http listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("grpc listening on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		realtime.Shutdown()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
