package verify

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/verify", func(c *fiber.Ctx) error {
		var req VerifyRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if len(req.Calldata) < 2 {
			return fiber.NewError(fiber.StatusBadRequest, "calldata required")
		}
		resp, err := svc.VerifyCalldata(c.Context(), req.Calldata)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.JSON(resp)
	})
}
