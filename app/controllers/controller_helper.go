package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/apperrors"
)

// respondError writes the JSON error envelope for err. Unknown errors are
// logged and reported as internal_server_error.
func respondError(c *fiber.Ctx, err error) error {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeInternal {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(apperrors.HTTPStatus(code)).JSON(apperrors.Body(err))
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

// paramID parses a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// GetClientIP determines the client address considering Cloudflare and
// standard proxy headers. The first X-Forwarded-For hop is the client.
func GetClientIP(c *fiber.Ctx) string {
	if cf := strings.TrimSpace(c.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(c.Get("X-Real-IP")); real != "" {
		return real
	}
	return strings.TrimPrefix(c.IP(), "::ffff:")
}
