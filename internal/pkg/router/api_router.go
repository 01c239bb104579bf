package router

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/zoemaddison050/leadership-summit/app/controllers"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/env"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Storage: newLimiterStorage(),
	}))

	v1 := api.Group("/v1")

	v1.Post("/events/:id/register", controllers.HandleEventRegister)
	v1.Delete("/events/:id/lock", controllers.HandleLockRelease)
	v1.Get("/locks/info", controllers.HandleLockInfo)

	v1.Get("/payment/health", controllers.HandlePaymentHealth)
	v1.Get("/payment/metrics", controllers.HandlePaymentMetrics)

	admin := v1.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}))
	admin.Post("/payment/metrics/reset", controllers.HandlePaymentMetricsReset)
	admin.Delete("/locks", controllers.HandleLockForceRelease)
	admin.Put("/settings", controllers.HandleSettingSave)
	admin.Post("/settings/:id/activate", controllers.HandleSettingActivate)
	admin.Post("/settings/webhook-test", controllers.HandleWebhookSelfTest)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances; nil falls back to the limiter's in-memory store.
func newLimiterStorage() fiber.Storage {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		return nil
	}
	return redisstorage.New(redisstorage.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: port,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
