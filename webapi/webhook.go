package webapi

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/nilepay/payfac/pkg/app"
	payoutsvc "github.com/nilepay/payfac/pkg/service/payout"
)

// TransferConfirmationRequest is the rail's asynchronous confirmation
// callback payload.
type TransferConfirmationRequest struct {
	ProcessorReference string `json:"processor_reference" validate:"required"`
	Status             string `json:"status" validate:"required,oneof=completed failed returned"`
	Details            string `json:"details"`
}

// WebhookRoutes registers the rail confirmation endpoint.
func WebhookRoutes(fa *fiber.App, a *app.App) {
	fa.Post("/webhooks/transfers", transferConfirmation(a))
}

func transferConfirmation(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := a.Config.Payout.WebhookApiKey; key != "" {
			got := c.Get("X-Api-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return ErrorResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", "invalid webhook key")
			}
		}

		input, err := BindAndValidate[TransferConfirmationRequest](c)
		if input == nil {
			return err
		}

		err = a.PayoutService.ConfirmPayoutCompletion(
			c.UserContext(),
			input.ProcessorReference,
			payoutsvc.ConfirmationStatus(input.Status),
			input.Details,
		)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to process confirmation", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Confirmation processed", nil)
	}
}
