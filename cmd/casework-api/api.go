package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/casework/pkg/eventbus"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/services"
	"github.com/dukex/casework/pkg/validation"
	"github.com/dukex/casework/pkg/web"
	"github.com/dukex/casework/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		tracer:      tracer,
	}
}

func (a *API) App() *fiber.App {
	validator := validation.NewSchemaService(a.logger, a.persistence)

	opts := []workflow.Option{workflow.WithPublisher(a.eventBus)}
	if a.tracer != nil {
		opts = append(opts, workflow.WithTracer(a.tracer))
	}

	orchestrator := workflow.NewOrchestrator(a.logger, a.persistence, validator, opts...)

	handlers := web.NewAPIHandlers(
		services.NewDefinitions(a.logger, a.persistence),
		services.NewCases(a.persistence, orchestrator),
		services.NewWorkItems(a.persistence, orchestrator),
		services.NewDocuments(a.persistence, validator),
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Casework API")
	})

	handlers.Register(app)

	return app
}

// Start serves the API until ctx is done.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
