package webapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/nilepay/payfac/pkg/app"
	"github.com/nilepay/payfac/pkg/domain/merchant"
	"github.com/nilepay/payfac/pkg/domain/payout"
	merchantsvc "github.com/nilepay/payfac/pkg/service/merchant"
)

// CreateMerchantRequest is the onboarding payload.
type CreateMerchantRequest struct {
	Name                 string  `json:"name" validate:"required"`
	SettlementCycle      string  `json:"settlement_cycle" validate:"required,oneof=D+0 D+1 D+2 D+3 WEEKLY BIWEEKLY MONTHLY"`
	SettlementDayOfWeek  int     `json:"settlement_day_of_week" validate:"gte=0,lte=6"`
	SettlementWeekParity int     `json:"settlement_week_parity" validate:"gte=0,lte=1"`
	SettlementDayOfMonth int     `json:"settlement_day_of_month" validate:"gte=0,lte=28"`
	ReservePercentage    string  `json:"reserve_percentage" validate:"required"`
	ReserveDays          int     `json:"reserve_days" validate:"gte=0"`
	MinimumPayoutAmount  string  `json:"minimum_payout_amount" validate:"required"`
	RiskScore            *int    `json:"risk_score" validate:"omitempty,gte=0,lte=100"`
	PayoutMethod         string  `json:"payout_method" validate:"required,oneof=instant_transfer bank_transfer wallet"`
	BankCode             string  `json:"bank_code"`
	AccountNumber        string  `json:"account_number"`
	AccountName          string  `json:"account_name"`
	WalletNumber         string  `json:"wallet_number"`
}

// MerchantRoutes registers the sub-merchant admin endpoints.
func MerchantRoutes(fa *fiber.App, a *app.App) {
	g := fa.Group("/merchants")
	g.Post("/", createMerchant(a))
	g.Get("/", listMerchants(a))
	g.Get("/:id", getMerchant(a))
	g.Post("/:id/suspend", suspendMerchant(a))
	g.Post("/:id/reactivate", reactivateMerchant(a))
}

func createMerchant(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := BindAndValidate[CreateMerchantRequest](c)
		if input == nil {
			return err
		}
		reservePct, err := decimal.NewFromString(input.ReservePercentage)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid reserve percentage", input.ReservePercentage)
		}
		minPayout, err := decimal.NewFromString(input.MinimumPayoutAmount)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid minimum payout amount", input.MinimumPayoutAmount)
		}

		m, err := a.MerchantService.Create(c.UserContext(), merchantsvc.CreateInput{
			Name:                 input.Name,
			SettlementCycle:      merchant.SettlementCycle(input.SettlementCycle),
			SettlementDayOfWeek:  time.Weekday(input.SettlementDayOfWeek),
			SettlementWeekParity: input.SettlementWeekParity,
			SettlementDayOfMonth: input.SettlementDayOfMonth,
			ReservePercentage:    reservePct,
			ReserveDays:          input.ReserveDays,
			MinimumPayoutAmount:  minPayout,
			RiskScore:            input.RiskScore,
			PayoutMethod:         payout.Method(input.PayoutMethod),
			Destination: payout.Destination{
				BankCode:      input.BankCode,
				AccountNumber: input.AccountNumber,
				AccountName:   input.AccountName,
				WalletNumber:  input.WalletNumber,
			},
		})
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to create sub-merchant", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusCreated, "Sub-merchant created", m)
	}
}

func listMerchants(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ms, err := a.MerchantService.List(c.UserContext())
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to list sub-merchants", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Sub-merchants", ms)
	}
}

func getMerchant(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		m, err := a.MerchantService.Get(c.UserContext(), id)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Sub-merchant not found", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Sub-merchant", m)
	}
}

func suspendMerchant(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		m, err := a.MerchantService.Suspend(c.UserContext(), id)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to suspend sub-merchant", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Sub-merchant suspended", m)
	}
}

func reactivateMerchant(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		m, err := a.MerchantService.Reactivate(c.UserContext(), id)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to reactivate sub-merchant", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Sub-merchant reactivated", m)
	}
}
