package server

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/oldphotos/api/internal/artifact"
	"github.com/oldphotos/api/internal/cleanup"
	"github.com/oldphotos/api/internal/config"
	"github.com/oldphotos/api/internal/handler"
	"github.com/oldphotos/api/internal/middleware"
	"github.com/oldphotos/api/internal/scheduler"
	"github.com/oldphotos/api/internal/setup"
	"github.com/oldphotos/api/internal/stage"
	"github.com/oldphotos/api/internal/store"
	"github.com/oldphotos/api/internal/worker"
	ws "github.com/oldphotos/api/internal/websocket"
	"github.com/oldphotos/api/pkg/response"
)

// App bundles the wired HTTP edge with its background collaborators. New
// builds everything but runs nothing, so tests can drive the same app
// through fiber's Test without starting loops or listeners.
type App struct {
	Fiber     *fiber.App
	Scheduler *scheduler.Scheduler
	Sweeper   *cleanup.Sweeper
	Hub       *ws.Hub

	cfg *config.Config
}

func New(cfg *config.Config) (*App, error) {
	files, err := artifact.NewStore(cfg.Storage.UploadsDir, cfg.Storage.ResultsDir, cfg.Storage.MasksDir)
	if err != nil {
		return nil, err
	}

	photos := store.NewPhotoStore()
	jobs := store.NewJobStore()
	stages := stage.NewRegistry()

	invoker, err := worker.NewInvoker(cfg.AI.PythonPath(), cfg.AI.Dir)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub()

	sched := scheduler.New(scheduler.Options{
		Jobs:               jobs,
		Photos:             photos,
		Stages:             stages,
		Files:              files,
		Invoker:            invoker,
		Notifier:           hub,
		MaxConcurrentLimit: cfg.Scheduler.MaxConcurrentLimit,
		HeartbeatTimeout:   time.Duration(cfg.Heartbeat.TimeoutSeconds) * time.Second,
	})

	probe := setup.NewProbe(cfg.AI)
	sweeper := cleanup.NewSweeper(files, photos, jobs, hub,
		time.Duration(cfg.Cleanup.IntervalHours*float64(time.Hour)),
		time.Duration(cfg.Cleanup.MaxAgeHours*float64(time.Hour)))

	validate := validator.New()

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		// Multipart envelope above the 50MB per-file cap.
		BodyLimit: 60 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Artifact directories are served as-is
	app.Static("/uploads", files.UploadsDir())
	app.Static("/results", files.ResultsDir())

	// Handlers
	photoHandler := handler.NewPhotoHandler(photos, files, invoker, validate)
	jobHandler := handler.NewJobHandler(sched, validate)
	stepsHandler := handler.NewStepsHandler(stages)
	settingsHandler := handler.NewSettingsHandler(sched)
	statusHandler := handler.NewStatusHandler(probe)

	requireReady := middleware.NewReadyGate(probe).RequireAIReady()

	// Photo routes
	app.Post("/photos", photoHandler.Upload)
	app.Get("/photos", photoHandler.List)
	app.Delete("/photos/:id", photoHandler.Delete)
	app.Delete("/photos", photoHandler.DeleteAll)
	app.Post("/photos/import", photoHandler.Import)
	app.Post("/photos/:id/crop", requireReady, photoHandler.Crop)
	app.Get("/auto-crop/:photoId", requireReady, photoHandler.AutoCrop)

	// Stage catalog
	app.Get("/steps", stepsHandler.List)

	// Job routes
	app.Post("/jobs", requireReady, jobHandler.Create)
	app.Get("/jobs", jobHandler.List)
	app.Post("/jobs/cancel-all", jobHandler.CancelAll)
	app.Put("/jobs/reorder", jobHandler.Reorder)
	app.Get("/jobs/:id", jobHandler.Get)
	app.Post("/jobs/:id/input", jobHandler.SubmitInput)
	app.Post("/jobs/:id/skip", jobHandler.Skip)
	app.Post("/jobs/:id/back", jobHandler.Back)
	app.Post("/jobs/:id/retry", jobHandler.Retry)
	app.Post("/jobs/:id/skip-failed", jobHandler.SkipFailed)
	app.Post("/jobs/:id/cancel", jobHandler.Cancel)

	// Settings
	app.Get("/settings", settingsHandler.Get)
	app.Put("/settings", settingsHandler.Update)

	// Environment probe; /api/status is the desktop shell's poll path
	app.Get("/status", statusHandler.Get)
	app.Get("/api/status", statusHandler.Get)

	// WebSocket job feed
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c)
	}))

	return &App{
		Fiber:     app,
		Scheduler: sched,
		Sweeper:   sweeper,
		Hub:       hub,
		cfg:       cfg,
	}, nil
}

// Start launches the background loops and listens until the listener
// stops. The context bounds the loops, not the listener; callers shut the
// listener down through Shutdown.
func (a *App) Start(ctx context.Context) error {
	go a.Hub.Run()
	go a.Scheduler.RunHeartbeatMonitor(ctx)
	go a.Sweeper.Run(ctx)

	addr := ":" + a.cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	return a.Fiber.Listen(addr)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (a *App) Shutdown(timeout time.Duration) error {
	return a.Fiber.ShutdownWithTimeout(timeout)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
