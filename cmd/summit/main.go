package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/zoemaddison050/leadership-summit/app/controllers"
	"github.com/zoemaddison050/leadership-summit/app/repository"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/cache"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/database"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/env"
	appmonitor "github.com/zoemaddison050/leadership-summit/internal/pkg/monitor"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/payment"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/reglock"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/router"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/scheduler"
	"github.com/zoemaddison050/leadership-summit/internal/pkg/security"
)

func main() {
	app, sched := NewApplication()
	sched.Start()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		sched.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *scheduler.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetFactory().GetRepositories()

	ttl := reglock.DefaultTTL
	if minutes, err := strconv.Atoi(env.GetEnv("REGISTRATION_LOCK_TTL_MINUTES", "")); err == nil && minutes > 0 {
		ttl = time.Duration(minutes) * time.Minute
	}
	locks := reglock.NewStore(repos.Lock, ttl)
	agg := appmonitor.NewAggregator(appmonitor.NewRedisStore(cache.GetClient()))
	if setting, err := repos.Setting.GetCurrent(); err == nil && setting.Enabled {
		agg.ExpectTraffic(true)
	}
	if last, err := repos.Webhook.LastReceivedAt(payment.ProviderUniPayment); err == nil && last != nil {
		agg.SeedLastEvent(*last)
	}

	guard := payment.NewIdempotencyGuard(repos.Webhook, repos.Payment)
	validator := payment.NewSignatureValidator(security.Default())
	reconciler := payment.NewReconciler(repos, guard, validator, agg, security.Default(), env.GetEnv("APP_KEY", ""))
	reconciler.SetLockStore(locks)

	controllers.InitializePaymentController(reconciler, agg)
	controllers.InitializeRegistrationController(repos, locks, nil)
	controllers.InitializeSettingController(repos)

	app := fiber.New(fiber.Config{
		AppName: "leadership-summit",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	sched := scheduler.NewManager(locks, scheduler.DefaultSweepInterval)
	return app, sched
}
