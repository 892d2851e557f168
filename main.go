package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"teams-chat/internal/auth"
	"teams-chat/internal/bus"
	"teams-chat/internal/config"
	"teams-chat/internal/db"
	"teams-chat/internal/encryption"
	"teams-chat/internal/files"
	grpcclient "teams-chat/internal/grpc"
	"teams-chat/internal/handlers"
	"teams-chat/internal/middleware"
	"teams-chat/internal/observability"
	"teams-chat/internal/otelutil"
	"teams-chat/internal/presence"
	"teams-chat/internal/rabbitmq"
	"teams-chat/internal/repositories"
	"teams-chat/internal/telemetry"
	"teams-chat/internal/ws"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg := config.Load()

	if err := otelutil.Init(cfg.ServiceName, cfg.Environment); err != nil {
		glog.Warningf("tracing disabled: %v", err)
	}
	defer otelutil.Flush()

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		glog.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	cipher, err := encryption.NewSecretBox(cfg.EncryptionKey)
	if err != nil {
		glog.Fatalf("invalid CHAT_ENCRYPTION_KEY: %v", err)
	}

	attachments, err := files.OpenBoltStore(cfg.AttachmentDB, cfg.MediaBaseURL)
	if err != nil {
		glog.Fatalf("failed to open attachment store: %v", err)
	}
	defer attachments.Close()

	authenticator, closeAuth := newAuthenticator(cfg)
	defer closeAuth()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topicBus := newBus(ctx, cfg)

	if cfg.AMQPURL != "" {
		eventsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.WSEventsExchange, cfg.ServiceName)
		if err != nil {
			glog.Warningf("ws events publishing disabled: %v", err)
		} else {
			observability.SetPublisher(eventsPublisher)
			defer eventsPublisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer auditPublisher.Close()
	glog.Infof("audit publisher mode=%s reason=%q", rabbitmq.PublisherMode(auditPublisher), rabbitmq.PublisherNoopReason(auditPublisher))
	audit := telemetry.NewAuditEmitter(auditPublisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	messageRepo := repositories.NewMessageRepo(database, cipher)
	projectRepo := repositories.NewProjectRepo(database)
	userRepo := repositories.NewUserRepo(database)
	presenceRepo := repositories.NewPresenceRepo(database)
	meetingRepo := repositories.NewMeetingRepo(database)

	tracker := presence.NewTracker(presenceRepo)

	wsServer := ws.NewServer(ws.Deps{
		Bus:      topicBus,
		Auth:     authenticator,
		Messages: messageRepo,
		Projects: projectRepo,
		Users:    userRepo,
		Meetings: meetingRepo,
		Presence: tracker,
		Files:    attachments,
		Audit:    audit,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wsServer.RegisterRoutes(router)
	router.GET("/media/attachments/:id", handlers.NewAttachmentHandler(attachments).Download)
	router.GET("/presence/:user_id", middleware.AuthMiddleware(authenticator), handlers.NewPresenceHandler(presenceRepo, tracker).GetPresence)
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		glog.Infof("%s listening on %s (env=%s, bus=%s, auth=%s)", cfg.ServiceName, srv.Addr, cfg.Environment, cfg.BusBackend, cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	glog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("graceful shutdown: %v", err)
	}
}

// newAuthenticator returns the token verifier selected by AUTH_MODE: local HS256
// verification ("jwt") or auth-service over gRPC ("grpc").
func newAuthenticator(cfg config.Config) (auth.Authenticator, func()) {
	switch cfg.AuthMode {
	case "jwt":
		if cfg.JWTSecret == "" {
			glog.Fatal("JWT_SECRET is required when AUTH_MODE=jwt")
		}
		return auth.NewJWT(cfg.JWTSecret), func() {}
	case "grpc":
		conn, err := grpc.NewClient(cfg.AuthGRPCAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
			grpc.WithUnaryInterceptor(observability.GRPCClientMetricsUnaryInterceptor()),
		)
		if err != nil {
			glog.Fatalf("failed to connect to auth grpc: %v", err)
		}
		return grpcclient.NewAuthClient(conn), func() { conn.Close() }
	default:
		glog.Fatalf("unknown AUTH_MODE %q", cfg.AuthMode)
		return nil, nil
	}
}

// newBus returns the in-process hub, or a cluster bridged through the broker
// selected by BUS_BACKEND. The cluster consumer runs until ctx is done.
func newBus(ctx context.Context, cfg config.Config) bus.Bus {
	hub := bus.NewHub()
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = bus.NewNodeID()
	}

	var broker bus.Broker
	switch cfg.BusBackend {
	case "memory":
		return hub
	case "amqp":
		amqpBroker, err := bus.NewAMQPBroker(cfg.AMQPURL, cfg.BusExchange, nodeID)
		if err != nil {
			glog.Fatalf("failed to connect bus broker: %v", err)
		}
		broker = amqpBroker
	case "kafka":
		broker = bus.NewKafkaBroker(cfg.KafkaBrokers, cfg.KafkaTopic, nodeID)
	default:
		glog.Fatalf("unknown BUS_BACKEND %q", cfg.BusBackend)
	}

	cluster := bus.NewCluster(hub, broker, nodeID)
	go func() {
		if err := cluster.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			glog.Errorf("bus consumer stopped: %v", err)
		}
		if err := cluster.Close(); err != nil {
			glog.Warningf("bus broker close: %v", err)
		}
	}()
	glog.Infof("bus: %s cluster node %s", cfg.BusBackend, cluster.NodeID())
	return cluster
}
