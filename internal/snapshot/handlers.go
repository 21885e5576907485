package snapshot

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	// Durable path: throttled, validated upsert.
	r.Post("/:id/snapshots", authMiddleware, func(c *fiber.Ctx) error {
		var sample Sample
		if err := c.BodyParser(&sample); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := validate.Struct(sample); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		snap, err := svc.Upsert(c.Context(), c.Params("id"), participantID(c), sample)
		if err != nil {
			return gateError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	// Ephemeral path: fire-and-forget, acknowledged without waiting.
	r.Post("/:id/broadcast", authMiddleware, func(c *fiber.Ctx) error {
		var sample Sample
		if err := c.BodyParser(&sample); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := validate.Struct(sample); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		svc.PublishBroadcast(c.Params("id"), participantID(c), sample)
		return c.SendStatus(fiber.StatusAccepted)
	})

	// Fallback read of the partner's latest persisted sample.
	r.Get("/:id/snapshots/:participantID", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := svc.Latest(c.Context(), c.Params("id"), c.Params("participantID"))
		if err != nil {
			return gateError(err)
		}
		return c.JSON(snap)
	})
}

func participantID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func gateError(err error) error {
	switch {
	case errors.Is(err, ErrSnapshotNotFound), errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotParticipant):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrWriteTooSoon):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, ErrImplausiblePace), errors.Is(err, ErrImplausibleHeartRate),
		errors.Is(err, ErrImplausibleSpeed), errors.Is(err, ErrStaleSequence):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrSessionNotActive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
