package handlers

import (
	"peza/internal/repositories"
	"peza/internal/repositories/cache"

	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	db    *repositories.Database
	cache *cache.CacheService
}

func NewHealthHandler(db *repositories.Database, cacheService *cache.CacheService) *HealthHandler {
	return &HealthHandler{db: db, cache: cacheService}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "connected"
	if err := h.db.Ping(c.Context()); err != nil {
		dbStatus = "unreachable"
	}
	redisStatus := "connected"
	if err := h.cache.HealthCheck(c.Context()); err != nil {
		redisStatus = "unreachable"
	}

	status := fiber.StatusOK
	if dbStatus != "connected" {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status": "ok",
		"services": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
	})
}
