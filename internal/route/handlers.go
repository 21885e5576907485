package route

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Put("/:id/route", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Points []Point `json:"points"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if len(body.Points) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "points required")
		}
		uploaderID, _ := c.Locals("user_id").(string)
		route, err := svc.Upload(c.Context(), c.Params("id"), uploaderID, body.Points)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(route)
	})

	r.Get("/:id/routes/:participantID", authMiddleware, func(c *fiber.Ctx) error {
		route, err := svc.Download(c.Context(), c.Params("id"), c.Params("participantID"))
		if err != nil {
			if errors.Is(err, ErrRouteNotFound) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(route)
	})
}
