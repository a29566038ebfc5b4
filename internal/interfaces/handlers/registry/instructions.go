// Package registry exposes ledger instructions and reads over HTTP. Instruction
// handlers run behind middleware.RequireSignedInstruction.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	regsvc "carbon-registry/internal/application/registry"
	"carbon-registry/internal/domain"
	"carbon-registry/internal/middleware"
	"carbon-registry/internal/pkg/response"
	"carbon-registry/internal/pkg/signing"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *regsvc.Service
	// LockWait bounds how long an instruction waits for its address locks.
	LockWait time.Duration
}

func (h *Handlers) lockContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.LockWait <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.LockWait)
}

// decodeArgs fills dst from the verified payload args. Empty args leave dst zero.
func decodeArgs(c *fiber.Ctx, dst interface{}) (*signing.Verified, error) {
	v := middleware.GetInstruction(c)
	if v == nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Missing signed instruction")
	}
	if len(v.Payload.Args) == 0 || string(v.Payload.Args) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(v.Payload.Args, dst); err != nil {
		var le *domain.LedgerError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid instruction args")
	}
	return v, nil
}

func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Message, fe.Code, nil)
	}
	return respondError(c, err)
}

// Initialize POST /api/v1/instructions/initialize
func (h *Handlers) Initialize(c *fiber.Ctx) error {
	var args struct{}
	v, err := decodeArgs(c, &args)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.lockContext(c)
	defer cancel()
	state, err := h.Service.Initialize(ctx, v.Signers)
	if err != nil {
		return h.fail(c, err)
	}
	return response.SuccessCreated(c, "Program initialized", state, nil)
}

// CreateProject POST /api/v1/instructions/create-project
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	var in regsvc.CreateProjectInput
	v, err := decodeArgs(c, &in)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.lockContext(c)
	defer cancel()
	project, err := h.Service.CreateProject(ctx, v.Signers, in)
	if err != nil {
		return h.fail(c, err)
	}
	return response.SuccessCreated(c, "Project created", project, nil)
}

// VerifyProject POST /api/v1/instructions/verify-project
func (h *Handlers) VerifyProject(c *fiber.Ctx) error {
	var in regsvc.ProjectInput
	v, err := decodeArgs(c, &in)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.lockContext(c)
	defer cancel()
	project, err := h.Service.VerifyProject(ctx, v.Signers, in)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Project verified", project, nil)
}

// SuspendProject POST /api/v1/instructions/suspend-project
func (h *Handlers) SuspendProject(c *fiber.Ctx) error {
	var in regsvc.ProjectInput
	v, err := decodeArgs(c, &in)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.lockContext(c)
	defer cancel()
	project, err := h.Service.SuspendProject(ctx, v.Signers, in)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Project suspended", project, nil)
}

// IssueCredits POST /api/v1/instructions/issue-credits
func (h *Handlers) IssueCredits(c *fiber.Ctx) error {
	var in regsvc.IssueCreditsInput
	v, err := decodeArgs(c, &in)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.lockContext(c)
	defer cancel()
	batch, err := h.Service.IssueCredits(ctx, v.Signers, in)
	if err != nil {
		return h.fail(c, err)
	}
	return response.SuccessCreated(c, "Credits issued", batch, nil)
}

// RetireCredits POST /api/v1/instructions/retire-credits
func (h *Handlers) RetireCredits(c *fiber.Ctx) error {
	var in regsvc.RetireCreditsInput
	v, err := decodeArgs(c, &in)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.lockContext(c)
	defer cancel()
	retirement, err := h.Service.RetireCredits(ctx, v.Signers, in)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Credits retired", retirement, nil)
}

// TransferCredits POST /api/v1/instructions/transfer-credits
func (h *Handlers) TransferCredits(c *fiber.Ctx) error {
	var in regsvc.TransferCreditsInput
	v, err := decodeArgs(c, &in)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.lockContext(c)
	defer cancel()
	result, err := h.Service.TransferCredits(ctx, v.Signers, in)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Success(c, "Credits transferred", result, nil)
}

// CreateMint POST /api/v1/tokens/create-mint
func (h *Handlers) CreateMint(c *fiber.Ctx) error {
	var in regsvc.CreateMintInput
	v, err := decodeArgs(c, &in)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.lockContext(c)
	defer cancel()
	mint, err := h.Service.CreateMint(ctx, v.Signers, in)
	if err != nil {
		return h.fail(c, err)
	}
	return response.SuccessCreated(c, "Mint created", mint, nil)
}
