package registry

import (
	"strconv"

	"carbon-registry/internal/domain"
	"carbon-registry/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

func parseID(c *fiber.Ctx, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func parseKey(raw, name string) (domain.Pubkey, error) {
	pk, err := domain.ParsePubkey(raw)
	if err != nil {
		return domain.Pubkey{}, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return pk, nil
}

// Program GET /api/v1/program
func (h *Handlers) Program(c *fiber.Ctx) error {
	state, err := h.Service.GetProgramState(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Program state", state, nil)
}

// Project GET /api/v1/projects/:id
func (h *Handlers) Project(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	project, err := h.Service.GetProject(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Project", project, nil)
}

// Batch GET /api/v1/batches/:id
func (h *Handlers) Batch(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	batch, err := h.Service.GetBatch(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Credit batch", batch, map[string]interface{}{
		"live_balance": batch.LiveBalance(),
	})
}

// Retirement GET /api/v1/retirements/:batch/:holder
func (h *Handlers) Retirement(c *fiber.Ctx) error {
	batchID, err := parseID(c, "batch")
	if err != nil {
		return h.fail(c, err)
	}
	holder, err := parseKey(c.Params("holder"), "holder")
	if err != nil {
		return h.fail(c, err)
	}
	retirement, err := h.Service.GetRetirement(c.UserContext(), batchID, holder)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Retirement", retirement, nil)
}

// Balance GET /api/v1/balances/:mint/:holder
func (h *Handlers) Balance(c *fiber.Ctx) error {
	mint, err := parseKey(c.Params("mint"), "mint")
	if err != nil {
		return h.fail(c, err)
	}
	holder, err := parseKey(c.Params("holder"), "holder")
	if err != nil {
		return h.fail(c, err)
	}
	balance, err := h.Service.Balance(c.UserContext(), mint, holder)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Balance", balance, nil)
}

// Address GET /api/v1/addresses/:kind with project_id, batch_id or holder as query params.
func (h *Handlers) Address(c *fiber.Ctx) error {
	queryID := func(name string) (uint64, error) {
		id, err := strconv.ParseUint(c.Query(name), 10, 64)
		if err != nil {
			return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
		}
		return id, nil
	}

	var (
		addr interface{}
		err  error
	)
	switch c.Params("kind") {
	case "program-state":
		addr, err = h.Service.ProgramStateAddress()
	case "project":
		var id uint64
		if id, err = queryID("project_id"); err == nil {
			addr, err = h.Service.ProjectAddress(id)
		}
	case "credit-batch":
		var id uint64
		if id, err = queryID("batch_id"); err == nil {
			addr, err = h.Service.CreditBatchAddress(id)
		}
	case "retirement":
		var id uint64
		var holder domain.Pubkey
		if id, err = queryID("batch_id"); err == nil {
			if holder, err = parseKey(c.Query("holder"), "holder"); err == nil {
				addr, err = h.Service.RetirementAddress(id, holder)
			}
		}
	default:
		err = fiber.NewError(fiber.StatusBadRequest, "Unknown address kind")
	}
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Derived address", addr, nil)
}

// Events GET /api/v1/events?limit=
func (h *Handlers) Events(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return response.Error(c, "Invalid limit", fiber.StatusBadRequest, nil)
	}
	events, err := h.Service.ListEvents(c.UserContext(), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Ledger events", events, map[string]interface{}{
		"count": len(events),
	})
}
