package webapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nilepay/payfac/pkg/app"
)

// NewApp builds the Fiber application over the wired services.
func NewApp(a *app.App) *fiber.App {
	fa := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
			return ErrorResponseJSON(c, status, "Internal Server Error", err.Error())
		},
	})

	fa.Use(limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return ErrorResponseJSON(c, fiber.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded")
		},
	}))
	fa.Use(recover.New())

	fa.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("payfac settlement service is up")
	})

	MerchantRoutes(fa, a)
	SettlementRoutes(fa, a)
	PayoutRoutes(fa, a)
	WebhookRoutes(fa, a)

	return fa
}
