package server

import (
	"backend-touchgrass/internal/auth"
	"backend-touchgrass/internal/config"
	"backend-touchgrass/internal/db"
	"backend-touchgrass/internal/storage"
	"backend-touchgrass/internal/stream"
	"backend-touchgrass/internal/submit"
	"backend-touchgrass/internal/tracking"
	"backend-touchgrass/internal/verify"
	"backend-touchgrass/internal/walk"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Submit   *submit.Client
	Tracking *tracking.Service
}

func NewServer(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	submitter := submit.NewClient(cfg.SubmitURL,
		submit.WithHealthURL(cfg.SubmitHealthURL),
		submit.WithTimeout(cfg.SubmitTimeout),
		submit.WithMaxRetries(cfg.SubmitMaxRetries),
	)

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
		Submit: submitter,
	}

	// a nil pool must stay a nil interface for the services
	var store db.TxBeginner
	if pool != nil {
		store = pool
	}
	s.Tracking = tracking.NewService(store, s.Stream, s.Submit,
		tracking.WithTickInterval(cfg.TickInterval),
		tracking.WithDistanceModel(func() walk.DistanceModel {
			return walk.ModelByName(cfg.DistanceModel, cfg.SimulationSeed)
		}),
	)

	registerRoutes(s, store)
	return s
}

func registerRoutes(s *Server, store db.TxBeginner) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	verifier := verify.NewClient(s.Cfg.StarknetRPCURL, s.Cfg.VerifierAddress, s.Cfg.SubmitTimeout)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, store))
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	storage.RegisterRoutes(s.App.Group("/storage"), storage.NewService(store), jwtMiddleware)
	verify.RegisterRoutes(s.App.Group("/proofs"), verify.NewService(verifier, s.Submit))
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// Close aborts live walks, waits for pending submissions and stops the hub.
func (s *Server) Close() error {
	s.Tracking.Shutdown()
	return s.Stream.Close()
}
