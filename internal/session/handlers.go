package session

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

type inviteRequest struct {
	InviteeID string `json:"invitee_id" validate:"required,uuid4"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/invites", authMiddleware, func(c *fiber.Ctx) error {
		var req inviteRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sess, err := svc.CreateInvite(c.Context(), callerID(c), req.InviteeID)
		if err != nil {
			return protocolError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	r.Post("/:id/accept", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := svc.AcceptInvite(c.Context(), c.Params("id"), callerID(c))
		if err != nil {
			return protocolError(err)
		}
		return c.JSON(sess)
	})

	r.Post("/:id/decline", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := svc.DeclineOrCancel(c.Context(), c.Params("id"), callerID(c))
		if err != nil {
			return protocolError(err)
		}
		return c.JSON(sess)
	})

	r.Post("/:id/finish", authMiddleware, func(c *fiber.Ctx) error {
		var req FinalStatsInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sess, err := svc.SubmitFinalStats(c.Context(), c.Params("id"), callerID(c), req)
		if err != nil {
			return protocolError(err)
		}
		return c.JSON(sess)
	})

	r.Get("/active", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := svc.ActiveSession(c.Context(), callerID(c))
		if err != nil {
			return protocolError(err)
		}
		return c.JSON(sess)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return protocolError(err)
		}
		return c.JSON(sess)
	})
}

func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func protocolError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNoActiveSession):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrNotInvitee):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrSelfInvite):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInviteCeiling), errors.Is(err, ErrDuplicateInvite),
		errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrNotPending),
		errors.Is(err, ErrInviteExpired), errors.Is(err, ErrSessionClosed),
		errors.Is(err, ErrSessionNotActive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
