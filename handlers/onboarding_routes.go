// handlers/onboarding_routes.go
package handlers

import (
	"errors"

	"crew-registry-system/middleware"
	"crew-registry-system/services"

	"github.com/gofiber/fiber/v2"
)

// Error kinds surfaced to the gateway. The gateway presents TOKEN_NOT_FOUND
// and TOKEN_OWNERSHIP_MISMATCH identically to the end user; they stay
// distinct here for admin-side diagnostics.
const (
	kindTokenNotFound    = "TOKEN_NOT_FOUND"
	kindTokenOwnership   = "TOKEN_OWNERSHIP_MISMATCH"
	kindTokenExpired     = "TOKEN_EXPIRED"
	kindRoleAssignment   = "ROLE_ASSIGNMENT_FAILED"
	kindRegistryDown     = "REGISTRY_UNAVAILABLE"
	kindValidationFailed = "VALIDATION_FAILED"
	kindSessionNotFound  = "SESSION_NOT_FOUND"
	kindSessionActive    = "SESSION_ALREADY_ACTIVE"
	kindWrongStep        = "WRONG_STEP"
)

func SetupOnboardingRoutes(app *fiber.App, onboarding *services.OnboardingService) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "ok",
			"active_sessions": onboarding.Sessions.Count(),
		})
	})

	// Everything below acts on behalf of a specific Discord user.
	userGroup := app.Group("/", middleware.UserContextMiddleware())

	userGroup.Post("/sessions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		displayName, _ := c.Locals("display_name").(string)

		sess, err := onboarding.StartSession(userID, displayName)
		if err != nil {
			if errors.Is(err, services.ErrSessionActive) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error_kind": kindSessionActive,
					"error":      "you already have an onboarding session in progress",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to start session",
				"cause": err.Error(),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	userGroup.Get("/sessions/:id", func(c *fiber.Ctx) error {
		sess, ok := onboarding.GetSession(c.Params("id"))
		if !ok || sess.UserID != c.Locals("user_id").(string) {
			return sessionNotFound(c)
		}
		return c.JSON(sess)
	})

	userGroup.Get("/users/me/session", func(c *fiber.Ctx) error {
		sess, ok := onboarding.GetSessionByUser(c.Locals("user_id").(string))
		if !ok {
			return sessionNotFound(c)
		}
		return c.JSON(sess)
	})

	userGroup.Patch("/sessions/:id/data", func(c *fiber.Ctx) error {
		var fields map[string]string
		if err := c.BodyParser(&fields); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if !ownsSession(c, onboarding) {
			return sessionNotFound(c)
		}
		if err := onboarding.UpdateSessionData(c.Params("id"), fields); err != nil {
			return sessionNotFound(c)
		}
		return c.JSON(fiber.Map{"message": "session updated"})
	})

	userGroup.Post("/sessions/:id/advance", func(c *fiber.Ctx) error {
		var fields map[string]string
		if err := c.BodyParser(&fields); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if !ownsSession(c, onboarding) {
			return sessionNotFound(c)
		}

		state, err := onboarding.Advance(c.Context(), c.Params("id"), fields)
		if err != nil {
			var verr *services.ValidationError
			switch {
			case errors.As(err, &verr):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error_kind": kindValidationFailed,
					"error":      verr.Reason,
					"field":      verr.Field,
					"state":      state,
				})
			case errors.Is(err, services.ErrSessionNotFound):
				return sessionNotFound(c)
			case errors.Is(err, services.ErrWrongStep):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error_kind": kindWrongStep,
					"error":      "that step is not next for this session",
					"state":      state,
				})
			default:
				// Registry failures cancel the session; tell the gateway so
				// it can show a distinct, non-retryable message.
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"error_kind": kindRegistryDown,
					"error":      "registration could not be saved, your session was canceled",
					"state":      state,
				})
			}
		}
		return c.JSON(fiber.Map{"state": state})
	})

	userGroup.Post("/sessions/:id/cancel", func(c *fiber.Ctx) error {
		if ownsSession(c, onboarding) {
			onboarding.CancelSession(c.Params("id"))
		}
		// Idempotent: canceling a gone (or never-owned) session reports the
		// same outcome.
		return c.JSON(fiber.Map{"message": "session canceled"})
	})

	userGroup.Post("/redeem", func(c *fiber.Ctx) error {
		var req struct {
			Token string `json:"token"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		result, err := onboarding.RedeemToken(c.Context(), req.Token, c.Locals("user_id").(string))
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error_kind": kindTokenNotFound,
					"error":      "that registration token is not valid",
				})
			case errors.Is(err, services.ErrTokenOwnershipMismatch):
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error_kind": kindTokenOwnership,
					"error":      "that registration token is not valid",
				})
			case errors.Is(err, services.ErrTokenExpired):
				return c.Status(fiber.StatusGone).JSON(fiber.Map{
					"error_kind": kindTokenExpired,
					"error":      "that registration token has expired, please register again",
				})
			case errors.Is(err, services.ErrRemoteStore):
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"error_kind": kindRegistryDown,
					"error":      "the registry is unavailable, please try again shortly",
				})
			default:
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"error_kind": kindRoleAssignment,
					"error":      "your roles could not be assigned, an admin has been notified",
				})
			}
		}
		return c.JSON(fiber.Map{
			"message":     "welcome aboard",
			"member_type": result.MemberType,
			"rank":        result.Rank,
			"id_number":   result.IDNumber,
		})
	})
}

func ownsSession(c *fiber.Ctx, onboarding *services.OnboardingService) bool {
	sess, ok := onboarding.GetSession(c.Params("id"))
	return ok && sess.UserID == c.Locals("user_id").(string)
}

func sessionNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error_kind": kindSessionNotFound,
		"error":      "no such onboarding session",
	})
}
