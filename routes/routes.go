package routes

import (
	"log"
	"os"

	"meetsync/agent"
	"meetsync/config"
	controller "meetsync/controllers"
	"meetsync/dispatch"
	"meetsync/middleware"
	"meetsync/notify"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

// Deps carries the wired services the HTTP layer exposes.
type Deps struct {
	DB         *gorm.DB
	Agent      *agent.Service
	Dispatcher *dispatch.Scheduler
	Ledger     *notify.Ledger
	Hub        *notify.Hub
}

func SetupWebhookRoutes(app *fiber.App, deps Deps) {
	webhookLogger := log.New(os.Stdout, "WEBHOOK: ", log.Ldate|log.Ltime|log.Lshortfile)
	webhookController := controller.NewWebhookController(deps.DB, deps.Agent, webhookLogger)

	// Gateway callbacks, guarded by the shared key
	webhooks := app.Group("/webhooks",
		middleware.RequireAPIKey(config.AppConfig.WebhookAPIKey),
		logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	webhooks.Post("/sms", webhookController.HandleSMSReply)
	webhooks.Post("/chat", webhookController.HandleChatReply)

	webhookLogger.Println("Webhook routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, deps Deps) {
	requestLogger := log.New(os.Stdout, "REQUEST: ", log.LstdFlags)
	requestController := controller.NewRequestController(deps.DB, deps.Dispatcher, deps.Ledger, requestLogger)

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Scheduling request visibility
	api.Get("/users/:userID/requests", requestController.ListRequests)
	api.Get("/requests/:id", requestController.GetRequest)
	api.Post("/requests/:id/cancel", requestController.CancelRequest)

	// Open confirmation prompts
	api.Get("/users/:userID/confirmations", requestController.ListConfirmations)

	// Outbound emails held for approval
	api.Get("/users/:userID/pending-messages", requestController.ListPendingMessages)
	api.Post("/messages/:id/approve", requestController.ApproveMessage)
	api.Post("/messages/:id/reject", requestController.RejectMessage)
	api.Put("/messages/:id", requestController.EditMessage)

	// In-app notification stream
	wsLogger := log.New(os.Stdout, "WS: ", log.LstdFlags)
	app.Get("/ws/notifications/:userID", websocket.New(controller.HandleNotificationWS(deps.Hub, wsLogger)))

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupWebhookRoutes(app, deps)
	SetupAPIRoutes(app, deps)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
