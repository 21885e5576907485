package server

import (
	"os"

	"backend-virtualrun/internal/auth"
	"backend-virtualrun/internal/config"
	"backend-virtualrun/internal/eventlog"
	"backend-virtualrun/internal/route"
	"backend-virtualrun/internal/session"
	"backend-virtualrun/internal/snapshot"
	"backend-virtualrun/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Events *eventlog.Recorder
	Log    zerolog.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	zlog := zerolog.New(os.Stderr).With().Timestamp().Str("component", "api").Logger()

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, zlog),
		Events: eventlog.NewRecorder(db, zlog),
		Log:    zlog,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	rules := snapshot.Rules{
		MinInterval:     s.Cfg.SnapshotMinInterval,
		MaxSpeedKmh:     s.Cfg.MaxSpeedKmh,
		MinPaceSecPerKm: s.Cfg.MinPaceSecPerKm,
		MaxHeartRateBpm: s.Cfg.MaxHeartRateBpm,
	}

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))

	sessions := s.App.Group("/sessions")
	session.RegisterRoutes(sessions, session.NewService(s.DB, s.Stream, s.Events, s.Cfg.InviteTTL, s.Cfg.PendingInviteCeil), jwtMiddleware)
	snapshot.RegisterRoutes(sessions, snapshot.NewService(s.DB, s.Stream, rules), jwtMiddleware)
	route.RegisterRoutes(sessions, route.NewService(s.DB), jwtMiddleware)

	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
