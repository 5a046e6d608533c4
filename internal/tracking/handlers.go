package tracking

import (
	"errors"

	"backend-touchgrass/internal/auth"
	"backend-touchgrass/internal/walk"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Use(authMiddleware)

	r.Post("/walks", func(c *fiber.Ctx) error {
		var req StartRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		var seed *walk.LocationSample
		if req.Latitude != nil && req.Longitude != nil {
			seed = &walk.LocationSample{Latitude: *req.Latitude, Longitude: *req.Longitude, Timestamp: req.Timestamp}
		}
		snap, err := svc.Start(auth.AddressFrom(c), seed)
		if err != nil {
			return walkError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Post("/walks/samples", func(c *fiber.Ctx) error {
		var req SamplesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		snap, err := svc.PushSamples(auth.AddressFrom(c), req.Samples)
		if err != nil {
			return walkError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/walks/pause", func(c *fiber.Ctx) error {
		snap, err := svc.Pause(auth.AddressFrom(c))
		if err != nil {
			return walkError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/walks/resume", func(c *fiber.Ctx) error {
		snap, err := svc.Resume(auth.AddressFrom(c))
		if err != nil {
			return walkError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/walks/photos", func(c *fiber.Ctx) error {
		var req PhotoRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		snap, err := svc.AddPhoto(auth.AddressFrom(c), req.Ref)
		if err != nil {
			return walkError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/walks/stop", func(c *fiber.Ctx) error {
		record, payload, err := svc.Stop(c.Context(), auth.AddressFrom(c))
		if err != nil {
			if errors.Is(err, walk.ErrInvalidState) || errors.Is(err, walk.ErrValidation) {
				return walkError(err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   err.Error(),
				"payload": payload,
			})
		}
		return c.JSON(StopResponse{Record: record, Payload: payload})
	})

	r.Delete("/walks", func(c *fiber.Ctx) error {
		if !svc.Abort(auth.AddressFrom(c)) {
			return fiber.NewError(fiber.StatusConflict, "no walk in progress")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/walks/current", func(c *fiber.Ctx) error {
		return c.JSON(svc.Current(auth.AddressFrom(c)))
	})

	r.Get("/walks", func(c *fiber.Ctx) error {
		records, err := svc.History(c.Context(), auth.AddressFrom(c), c.QueryInt("limit", defaultHistoryLimit))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(records)
	})

	r.Get("/walks/:id/points", func(c *fiber.Ctx) error {
		points, err := svc.Points(c.Context(), auth.AddressFrom(c), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(points)
	})
}

func walkError(err error) error {
	switch {
	case errors.Is(err, walk.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, walk.ErrInvalidState):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
