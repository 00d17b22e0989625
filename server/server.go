package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/IBM/sarama"
	"github.com/cr4all/supportservices/config"
	"github.com/cr4all/supportservices/handlers"
	"github.com/cr4all/supportservices/kafka"
	"github.com/cr4all/supportservices/limiter"
	custommiddleware "github.com/cr4all/supportservices/middleware"
	"github.com/cr4all/supportservices/models"
	chatredis "github.com/cr4all/supportservices/redis"
	"github.com/cr4all/supportservices/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Dependencies are the external resources a Server runs on. Only DB is
// required; a nil Redis disables rate limiting and shared presence, a
// nil Producer disables the event log.
type Dependencies struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Producer sarama.SyncProducer
}

type Server struct {
	Echo   *echo.Echo
	DB     *gorm.DB
	Config *config.Config

	Chat          *services.ChatService
	Auth          *services.AuthService
	Hub           *handlers.StreamHub
	ChatHandler   *handlers.ChatHandler
	StreamHandler *handlers.StreamHandler
	AuthHandler   *handlers.AuthHandler
	HealthHandler *handlers.HealthHandler

	rateLimit echo.MiddlewareFunc
	closers   []func() error
}

func New(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(cfg.Log.LogLevel())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.Server.AllowedOrigins,
		AllowMethods:  []string{echo.GET, echo.POST, echo.PATCH, echo.OPTIONS},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders: []string{echo.HeaderContentLength},
		MaxAge:        86400,
	}))

	hub := handlers.NewStreamHub()
	sinks := []services.EventSink{hub}
	var publisher *kafka.Publisher
	if deps.Producer != nil {
		publisher = kafka.NewPublisherWithProducer(deps.Producer, cfg.Kafka.Topic)
		sinks = append(sinks, publisher)
	}

	chat := services.NewChatService(deps.DB, sinks...)
	auth := services.NewAuthService(deps.DB, &cfg.Auth)

	var presence *chatredis.Presence
	if deps.Redis != nil {
		presence = chatredis.NewPresence(deps.Redis)
	}

	s := &Server{
		Echo:          e,
		DB:            deps.DB,
		Config:        cfg,
		Chat:          chat,
		Auth:          auth,
		Hub:           hub,
		ChatHandler:   handlers.NewChatHandler(chat, cfg.Auth.Enabled),
		StreamHandler: handlers.NewStreamHandler(chat, hub, presence, cfg.Auth.Enabled),
		AuthHandler:   handlers.NewAuthHandler(auth),
		HealthHandler: handlers.NewHealthHandler(deps.DB),
	}
	if publisher != nil {
		s.closers = append(s.closers, publisher.Close)
	}

	if deps.Redis != nil && cfg.RateLimit.Enabled {
		strategy, err := limiter.NewStrategy(cfg.RateLimit.Strategy)
		if err != nil {
			log.Warnf("Rate limiting disabled: %v", err)
		} else {
			s.rateLimit = custommiddleware.NewRateLimitMiddleware(limiter.NewManager(deps.Redis, strategy), custommiddleware.RateLimitConfig{
				Limit:   cfg.RateLimit.Limit,
				Window:  cfg.RateLimit.Window(),
				KeyFunc: custommiddleware.RouteKey,
			})
		}
	}

	s.SetupRoutes(custommiddleware.OptionalOperator(auth))
	return s
}

// NewFromConfig opens every resource cfg names and builds a Server that
// owns them.
func NewFromConfig(cfg *config.Config) (*Server, error) {
	db, err := OpenDatabase(&cfg.Database)
	if err != nil {
		return nil, err
	}
	var closers []func() error
	if sqlDB, err := db.DB(); err == nil {
		closers = append(closers, sqlDB.Close)
	}
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	if err := models.AutoMigrateAll(db); err != nil {
		return fail(fmt.Errorf("auto-migrate database: %w", err))
	}
	deps := Dependencies{DB: db}

	if cfg.Redis.Addr != "" {
		rdb, err := chatredis.Connect(context.Background(), &cfg.Redis)
		if err != nil {
			return fail(err)
		}
		deps.Redis = rdb
		closers = append(closers, rdb.Close)
	} else {
		log.Info("No redis address configured; rate limiting and shared presence disabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		saramaConfig, err := kafka.NewSaramaConfig(&cfg.Kafka)
		if err != nil {
			return fail(err)
		}
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, saramaConfig)
		if err != nil {
			return fail(fmt.Errorf("connect to kafka: %w", err))
		}
		deps.Producer = producer
	} else {
		log.Info("No kafka brokers configured; event log disabled")
	}

	s := New(cfg, deps)
	// The publisher closes first, then redis, then the database.
	for i := len(closers) - 1; i >= 0; i-- {
		s.closers = append(s.closers, closers[i])
	}
	return s, nil
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         s.Config.Server.Addr,
		ReadTimeout:  s.Config.Server.ReadTimeoutDuration(),
		WriteTimeout: s.Config.Server.WriteTimeoutDuration(),
	}
	log.Infof("Chat service listening on %s%s", s.Config.Server.Addr, s.Config.Server.BasePath)
	if err := s.Echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and releases every owned resource.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	for _, closeFn := range s.closers {
		if cerr := closeFn(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
