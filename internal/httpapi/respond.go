package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

// fail writes the uniform failure body. The full error is logged server
// side; the client only ever sees the classified, sanitized message.
func fail(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	evt := logger.Warn()
	if status >= 500 {
		evt = logger.Error()
	}
	evt.Err(err).
		Str("kind", string(kind)).
		Str("path", c.Path()).
		Str("method", c.Method()).
		Msg("request failed")

	return c.Status(status).JSON(fiber.Map{
		"statusMessage": apperr.ClientMessage(err),
	})
}

func failMsg(c *fiber.Ctx, logger zerolog.Logger, kind apperr.Kind, msg string) error {
	return fail(c, logger, apperr.E(kind, msg))
}
