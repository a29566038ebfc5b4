package router

import (
	"fmt"

	regsvc "carbon-registry/internal/application/registry"
	"carbon-registry/internal/config"
	"carbon-registry/internal/domain"
	"carbon-registry/internal/infrastructure/database"
	"carbon-registry/internal/infrastructure/locking"
	"carbon-registry/internal/infrastructure/replay"
	healthhandler "carbon-registry/internal/interfaces/handlers/health"
	reghandler "carbon-registry/internal/interfaces/handlers/registry"
	"carbon-registry/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp opens the ledger store (and Redis when configured), then builds the Fiber app
// with global middleware and every route. The returned Redis client is nil without REDIS_URL.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	programID, err := domain.ParsePubkey(cfg.ProgramID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("PROGRAM_ID: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	redisClient, err := database.OpenRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("redis: %w", err)
	}

	// a nil *redis.Client must not leak into the interface as a non-nil value
	var rdb redis.UniversalClient
	if redisClient != nil {
		rdb = redisClient
	}

	svc := regsvc.NewService(db, programID)
	var guard replay.Guard = replay.NewMemoryGuard()
	if rdb != nil {
		svc.Locker = locking.NewRedisLocker(rdb, cfg.LockTTL)
		guard = replay.NewRedisGuard(rdb)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.NewErrorHandler(rdb),
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             &gormDBPinger{db: db},
		Ledger:         svc,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/", hh.Dashboard)
	app.Get("/health/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	rh := &reghandler.Handlers{Service: svc, LockWait: cfg.LockTTL}
	sig := middleware.SignatureConfig{Window: cfg.SignatureWindow, Guard: guard}
	signed := func(instruction string) fiber.Handler {
		return middleware.RequireSignedInstruction(instruction, sig)
	}

	ix := app.Group("/api/v1/instructions")
	ix.Post("/initialize", signed(regsvc.InstructionInitialize), rh.Initialize)
	ix.Post("/create-project", signed(regsvc.InstructionCreateProject), rh.CreateProject)
	ix.Post("/verify-project", signed(regsvc.InstructionVerifyProject), rh.VerifyProject)
	ix.Post("/suspend-project", signed(regsvc.InstructionSuspendProject), rh.SuspendProject)
	ix.Post("/issue-credits", signed(regsvc.InstructionIssueCredits), rh.IssueCredits)
	ix.Post("/retire-credits", signed(regsvc.InstructionRetireCredits), rh.RetireCredits)
	ix.Post("/transfer-credits", signed(regsvc.InstructionTransferCredits), rh.TransferCredits)

	app.Post("/api/v1/tokens/create-mint", signed(regsvc.InstructionCreateMint), rh.CreateMint)

	api := app.Group("/api/v1")
	api.Get("/program", rh.Program)
	api.Get("/projects/:id", rh.Project)
	api.Get("/batches/:id", rh.Batch)
	api.Get("/retirements/:batch/:holder", rh.Retirement)
	api.Get("/balances/:mint/:holder", rh.Balance)
	api.Get("/addresses/:kind", rh.Address)
	api.Get("/events", rh.Events)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Route not found")
	})

	return app, db, redisClient, nil
}
