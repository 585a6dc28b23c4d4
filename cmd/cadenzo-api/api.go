// Package main provides the Cadenzo API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/cadenzo/cadenzo/pkg/services"
	"github.com/cadenzo/cadenzo/pkg/web"
)

type API struct {
	logger            *slog.Logger
	instanceService   *services.InstanceService
	definitionService *services.DefinitionService
	functionService   *services.FunctionService
	validate          *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	instanceService *services.InstanceService,
	definitionService *services.DefinitionService,
	functionService *services.FunctionService,
) *API {
	return &API{
		logger:            logger,
		instanceService:   instanceService,
		definitionService: definitionService,
		functionService:   functionService,
		validate:          validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.instanceService, a.definitionService, a.functionService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cadenzo API")
	})

	d := app.Group("/definitions")
	d.Get("/", handlers.GetDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Post("/:id/archive", handlers.ArchiveDefinition)
	d.Post("/:id/clone", handlers.CloneDefinition)
	d.Get("/:definitionId/instances/latest", handlers.GetLatestInstance)

	i := app.Group("/instances")
	i.Get("/", handlers.GetInstances)
	i.Post("/", handlers.StartInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Get("/:id/history", handlers.GetInstanceHistory)
	i.Get("/:id/executions", handlers.GetInstanceExecutions)
	i.Post("/:id/transitions/:transitionId", handlers.ExecuteTransition)

	app.Post("/tasks", handlers.CreateTask)
	app.Post("/tasks/assignments", handlers.AssignTask)
	app.Post("/functions", handlers.CreateFunction)
	app.Get("/functions", handlers.GetActiveFunctions)
	app.Post("/functions/:name/execute", handlers.ExecuteFunction)
	app.Get("/human-tasks", handlers.GetHumanTasks)
	app.Post("/human-tasks/:id/complete", handlers.CompleteHumanTask)
	app.Post("/views", handlers.CreateView)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
