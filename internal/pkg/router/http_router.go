package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zoemaddison050/leadership-summit/app/controllers"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// The provider calls this endpoint directly; it sits outside the API
	// group so the rate limiter never drops a delivery.
	app.Post("/payment/:provider/webhook", controllers.HandleProviderWebhook)

	// Probe targets used by the diagnostics CLI.
	app.Head("/payment/:provider/webhook", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Options("/payment/:provider/webhook", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAllow, "POST, HEAD, OPTIONS")
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
