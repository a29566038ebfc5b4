package middleware

import (
	"errors"
	"time"

	"carbon-registry/internal/infrastructure/replay"
	"carbon-registry/internal/pkg/response"
	"carbon-registry/internal/pkg/signing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const instructionLocal = "instruction"

// SignatureConfig controls envelope acceptance.
type SignatureConfig struct {
	Window time.Duration
	Guard  replay.Guard
	Now    func() time.Time
}

// RequireSignedInstruction verifies the signed envelope body, checks that its payload
// names instruction, rejects stale timestamps and replays, and stores the result in
// Locals for GetInstruction.
func RequireSignedInstruction(instruction string, cfg SignatureConfig) fiber.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx) error {
		var env signing.Envelope
		if err := c.BodyParser(&env); err != nil {
			return response.Error(c, "Invalid instruction envelope", fiber.StatusBadRequest, nil)
		}
		verified, err := env.Verify()
		if err != nil {
			if errors.Is(err, signing.ErrMalformedEnvelope) {
				return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
			}
			return response.Unauthorized(c, err.Error())
		}
		if verified.Payload.Instruction != instruction {
			return response.Error(c, signing.ErrWrongInstruction.Error(), fiber.StatusBadRequest, nil)
		}
		if err := verified.CheckTimestamp(now(), cfg.Window); err != nil {
			return response.Unauthorized(c, err.Error())
		}
		if cfg.Guard != nil {
			// an accepted payload stays remembered for as long as its timestamp is valid
			if err := cfg.Guard.Observe(c.UserContext(), verified.Signature, 2*cfg.Window); err != nil {
				if errors.Is(err, replay.ErrReplayed) {
					return response.Unauthorized(c, err.Error())
				}
				log.Error().Str("trace_id", GetTraceID(c)).Err(err).Msg("replay guard unavailable")
				return response.Error(c, "Replay guard unavailable", fiber.StatusServiceUnavailable, nil)
			}
		}
		c.Locals(instructionLocal, verified)
		return c.Next()
	}
}

// GetInstruction returns the verified envelope (nil outside RequireSignedInstruction).
func GetInstruction(c *fiber.Ctx) *signing.Verified {
	v, _ := c.Locals(instructionLocal).(*signing.Verified)
	return v
}
