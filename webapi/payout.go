package webapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nilepay/payfac/pkg/app"
	"github.com/nilepay/payfac/pkg/domain/payout"
	payoutsvc "github.com/nilepay/payfac/pkg/service/payout"
)

// CreatePayoutRequest creates an ad hoc payout.
type CreatePayoutRequest struct {
	SubMerchantID string `json:"sub_merchant_id" validate:"required,uuid4"`
	SettlementID  string `json:"settlement_id" validate:"omitempty,uuid4"`
	Amount        string `json:"amount" validate:"required"`
	Fee           string `json:"fee"`
	Method        string `json:"method" validate:"required,oneof=instant_transfer bank_transfer wallet"`
	ScheduledDate string `json:"scheduled_date" validate:"omitempty,datetime=2006-01-02"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	WalletNumber  string `json:"wallet_number"`
}

// ApprovePayoutRequest identifies the approving operator.
type ApprovePayoutRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required"`
}

// DispatchPayoutsRequest triggers a manual dispatch run for a date.
type DispatchPayoutsRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// PayoutRoutes registers the payout admin endpoints.
func PayoutRoutes(fa *fiber.App, a *app.App) {
	g := fa.Group("/payouts")
	g.Post("/", createPayout(a))
	g.Get("/:id", getPayout(a))
	g.Post("/:id/approve", approvePayout(a))
	g.Post("/:id/cancel", cancelPayout(a))
	g.Post("/dispatch", dispatchPayouts(a))
	g.Post("/retry-sweep", retrySweep(a))
}

func createPayout(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := BindAndValidate[CreatePayoutRequest](c)
		if input == nil {
			return err
		}
		subMerchantID, err := uuid.Parse(input.SubMerchantID)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid sub-merchant id", input.SubMerchantID)
		}
		amount, err := decimal.NewFromString(input.Amount)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid amount", input.Amount)
		}

		in := payoutsvc.CreatePayoutInput{
			SubMerchantID: subMerchantID,
			Amount:        amount,
			Method:        payout.Method(input.Method),
			Destination: payout.Destination{
				BankCode:      input.BankCode,
				AccountNumber: input.AccountNumber,
				AccountName:   input.AccountName,
				WalletNumber:  input.WalletNumber,
			},
		}
		if input.SettlementID != "" {
			settlementID, err := uuid.Parse(input.SettlementID)
			if err != nil {
				return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid settlement id", input.SettlementID)
			}
			in.SettlementID = &settlementID
		}
		if input.Fee != "" {
			fee, err := decimal.NewFromString(input.Fee)
			if err != nil {
				return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid fee", input.Fee)
			}
			in.Fee = &fee
		}
		if input.ScheduledDate != "" {
			scheduled, err := time.Parse("2006-01-02", input.ScheduledDate)
			if err != nil {
				return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid scheduled date", input.ScheduledDate)
			}
			in.ScheduledDate = scheduled
		}

		p, err := a.PayoutService.CreatePayout(c.UserContext(), in)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to create payout", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusCreated, "Payout created", p)
	}
}

func getPayout(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		p, err := a.PayoutService.Get(c.UserContext(), id)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Payout not found", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Payout", p)
	}
}

func approvePayout(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		input, err := BindAndValidate[ApprovePayoutRequest](c)
		if input == nil {
			return err
		}
		p, err := a.PayoutService.Approve(c.UserContext(), id, input.ApprovedBy)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to approve payout", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Payout approved", p)
	}
}

func cancelPayout(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		p, err := a.PayoutService.Cancel(c.UserContext(), id)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to cancel payout", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Payout cancelled", p)
	}
}

// dispatchPayouts triggers the dispatch run manually, normally used after an
// incident kept the scheduled run from firing.
func dispatchPayouts(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := BindAndValidate[DispatchPayoutsRequest](c)
		if input == nil {
			return err
		}
		date, err := time.Parse("2006-01-02", input.Date)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid date", input.Date)
		}
		report, err := a.PayoutService.DispatchDue(c.UserContext(), date)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Dispatch run failed", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Dispatch run finished", report)
	}
}

func retrySweep(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := a.PayoutService.RunRetrySweep(c.UserContext())
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Retry sweep failed", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Retry sweep finished", report)
	}
}
