package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/noah-isme/groupchat-api/internal/config"
	"github.com/noah-isme/groupchat-api/internal/database"
	"github.com/noah-isme/groupchat-api/internal/dto"
	"github.com/noah-isme/groupchat-api/internal/events"
	"github.com/noah-isme/groupchat-api/internal/handler"
	"github.com/noah-isme/groupchat-api/internal/middleware"
	"github.com/noah-isme/groupchat-api/internal/models"
	"github.com/noah-isme/groupchat-api/internal/observability"
	"github.com/noah-isme/groupchat-api/internal/presence"
	"github.com/noah-isme/groupchat-api/internal/realtime"
	"github.com/noah-isme/groupchat-api/internal/repository"
	"github.com/noah-isme/groupchat-api/internal/router"
	"github.com/noah-isme/groupchat-api/internal/service"
	"github.com/noah-isme/groupchat-api/internal/storage"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	zone, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.Group{}, &models.GroupMember{}, &models.InnerGroup{}, &models.UploadRecord{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var (
		messageRepo      repository.MessageRepository
		conversationRepo repository.ConversationRepository
		mongoClient      *mongo.Client
	)
	switch cfg.StorageDriver {
	case config.StorageDriverMongo:
		client, mongoDB, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to mongo")
		}
		if err := repository.EnsureMongoIndexes(ctx, mongoDB); err != nil {
			logger.Fatal().Err(err).Msg("failed to create mongo indexes")
		}
		mongoClient = client
		messageRepo = repository.NewMongoMessageRepository(mongoDB)
		conversationRepo = repository.NewMongoConversationRepository(mongoDB)
	default:
		if err := db.AutoMigrate(&models.Message{}, &models.ConversationMeta{}); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate message tables")
		}
		messageRepo = repository.NewMessageRepository(db)
		conversationRepo = repository.NewConversationRepository(db)
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	publisher, err := events.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open event publisher")
	}
	emitter := events.NewEmitter(publisher, cfg.EventsDriver, logger)

	fileStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open object storage")
	}

	bus := realtime.NewBus(redisClient, cfg.RealtimeChannel, natsConn, logger)
	bus.Start(ctx)

	validate := dto.NewValidator()

	groupService := service.NewGroupService(repository.NewGroupRepository(db), conversationRepo, emitter, bus, validate, logger)
	messageService := service.NewMessageService(service.MessageServiceConfig{
		Messages:      messageRepo,
		Conversations: conversationRepo,
		Access:        groupService,
		Bus:           bus,
		Emitter:       emitter,
		Validator:     validate,
		Zone:          zone,
		HistoryLimit:  cfg.FeedLimit,
	}, logger)
	typingService := service.NewTypingService(presence.NewStore(redisClient, cfg.RealtimeChannel+":presence", cfg.TypingStale), groupService, bus, logger)
	feedService := service.NewFeedService(messageService, groupService, bus, logger)
	progressSink := service.NewProgressSink(redisClient, cfg.RealtimeChannel, bus, logger)
	uploadService := service.NewUploadService(fileStore, repository.NewUploadRepository(db), messageService, groupService, progressSink, cfg.UploadMaxSizeMB, logger)

	realtimeService, err := service.NewRealtimeService(service.RealtimeServiceConfig{
		Feed:           feedService,
		Messages:       messageService,
		Typing:         typingService,
		Access:         groupService,
		Bus:            bus,
		Zone:           zone,
		WindowInterval: cfg.WindowInterval,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build realtime service")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB*10 + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		GroupHandler:        handler.NewGroupHandler(groupService, logger),
		ConversationHandler: handler.NewConversationHandler(messageService, typingService, logger),
		UploadHandler:       handler.NewUploadHandler(uploadService, validate, logger),
		RealtimeHandler:     handler.NewRealtimeHandler(realtimeService, logger),
		HealthProbes:        []handler.HealthProbe{{Name: "storage", State: fileStore.State}},
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)

	cancel()
	if err := emitter.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close event publisher")
	}
	if mongoClient != nil {
		disconnectCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to disconnect mongo")
		}
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
