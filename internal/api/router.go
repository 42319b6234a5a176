package api

import (
	"autobook/internal/api/handlers"
	"autobook/pkg/auth"
	"autobook/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func SetupRouter(
	decisionHandler *handlers.DecisionHandler,
	providerHandler *handlers.ProviderHandler,
	jwtManager *auth.JWTManager,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				appLogger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Protected routes
	protected := app.Group("/api/v1", middleware.AuthMiddleware(jwtManager, appLogger))

	transactions := protected.Group("/transactions")
	transactions.Post("/evaluate", decisionHandler.Evaluate)
	transactions.Post("/evaluate-batch", decisionHandler.EvaluateBatch)
	transactions.Get("/review", decisionHandler.ReviewBacklog)
	transactions.Get("/:id/decision", decisionHandler.GetDecision)
	transactions.Get("/:id/postings", decisionHandler.PostingHistory)

	protected.Post("/drafts", providerHandler.PostDrafts)

	providers := protected.Group("/providers")
	providers.Get("", providerHandler.ListProviders)
	providers.Get("/resolve", providerHandler.ResolveProvider)
	providers.Get("/:provider/status", providerHandler.Status)
	providers.Post("/:provider/drafts", providerHandler.PostDrafts)
	providers.Post("/:provider/drafts/from-decisions", providerHandler.PostStoredDecisions)
	providers.Get("/:provider/review-queue", providerHandler.ReviewQueue)

	return app
}
