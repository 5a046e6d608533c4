package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"backend-touchgrass/internal/auth"
	"backend-touchgrass/internal/db"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	baseURL        = "https://storage.touchgrass.app/"
	KindWalkPhoto  = "walk_photo"
	uploadValidity = 15 * time.Minute
)

var errNoStore = errors.New("object store unavailable")

type Object struct {
	ID        string    `json:"id"`
	Ref       string    `json:"ref"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// ObjectRef is the public reference a stored object is addressed by. Walk
// sessions carry it as an opaque photo reference.
func ObjectRef(address, id, fileName string) string {
	return baseURL + address + "/" + id + strings.ToLower(path.Ext(fileName))
}

func (s *Service) SaveObject(ctx context.Context, address, fileName, kind string) (Object, error) {
	if s.db == nil {
		return Object{}, errNoStore
	}
	if kind == "" {
		kind = KindWalkPhoto
	}
	obj := Object{
		ID:        uuid.NewString(),
		Kind:      kind,
		ExpiresAt: time.Now().Add(uploadValidity),
	}
	obj.Ref = ObjectRef(address, obj.ID, fileName)

	_, err := s.db.Exec(ctx, `
		INSERT INTO storage_objects (id, address, url, kind)
		VALUES ($1,$2,$3,$4)
	`, obj.ID, address, obj.Ref, obj.Kind)
	if err != nil {
		return Object{}, err
	}
	return obj, nil
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/photos", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			FileName string `json:"file_name"`
			Kind     string `json:"kind"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if body.FileName == "" {
			body.FileName = "photo.jpg"
		}
		obj, err := svc.SaveObject(c.Context(), auth.AddressFrom(c), body.FileName, body.Kind)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(obj)
	})
}
