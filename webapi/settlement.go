package webapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nilepay/payfac/pkg/app"
	"github.com/nilepay/payfac/pkg/domain/settlement"
)

// ApproveSettlementRequest identifies the approving operator.
type ApproveSettlementRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required"`
}

// RejectSettlementRequest carries the hold reason.
type RejectSettlementRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RunSettlementRequest triggers a manual settlement run for a date.
type RunSettlementRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// SettlementRoutes registers the settlement admin endpoints.
func SettlementRoutes(fa *fiber.App, a *app.App) {
	g := fa.Group("/settlements")
	g.Get("/", listSettlements(a))
	g.Get("/:id", getSettlement(a))
	g.Post("/:id/approve", approveSettlement(a))
	g.Post("/:id/reject", rejectSettlement(a))
	g.Post("/run", runSettlements(a))
}

func listSettlements(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := settlement.Status(c.Query("status", string(settlement.StatusCalculated)))
		sts, err := a.SettlementService.ListByStatus(c.UserContext(), status)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to list settlements", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Settlements", sts)
	}
}

func getSettlement(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		st, items, err := a.SettlementService.Get(c.UserContext(), id)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Settlement not found", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Settlement", fiber.Map{
			"settlement": st,
			"items":      items,
		})
	}
}

func approveSettlement(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		input, err := BindAndValidate[ApproveSettlementRequest](c)
		if input == nil {
			return err
		}
		st, err := a.SettlementService.Approve(c.UserContext(), id, input.ApprovedBy)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to approve settlement", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Settlement approved", st)
	}
}

func rejectSettlement(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c, "id")
		if !ok {
			return nil
		}
		input, err := BindAndValidate[RejectSettlementRequest](c)
		if input == nil {
			return err
		}
		st, err := a.SettlementService.Reject(c.UserContext(), id, input.Reason)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Failed to reject settlement", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Settlement rejected", st)
	}
}

// runSettlements triggers the settlement run manually for a given date,
// normally used for backfills.
func runSettlements(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := BindAndValidate[RunSettlementRequest](c)
		if input == nil {
			return err
		}
		date, err := time.Parse("2006-01-02", input.Date)
		if err != nil {
			return ErrorResponseJSON(c, fiber.StatusBadRequest, "Invalid date", input.Date)
		}
		report, err := a.SettlementScheduler.RunForDate(c.UserContext(), date)
		if err != nil {
			return ErrorResponseJSON(c, ErrorToStatusCode(err), "Settlement run failed", err.Error())
		}
		return SuccessResponseJSON(c, fiber.StatusOK, "Settlement run finished", report)
	}
}
