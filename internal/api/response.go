package api

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"swamptimers/internal/automation"
	"swamptimers/internal/schedule"
	"swamptimers/internal/storage"
)

func ok(c *fiber.Ctx, code int, data any) error {
	return c.Status(code).JSON(fiber.Map{
		"status": "success",
		"data":   data,
	})
}

func fail(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}

// invalid reports validator errors as field -> failed tag.
func invalid(c *fiber.Ctx, err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Namespace()] = fe.Tag()
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"status":  "error",
		"message": "validation failed",
		"errors":  fields,
	})
}

// failFor maps domain errors to HTTP statuses; anything unknown is a 500.
func failFor(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, automation.ErrUnknownEntity):
		return fail(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, schedule.ErrInvalidSchedule):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, schedule.ErrNoCurrentOccurrence),
		errors.Is(err, schedule.ErrOccurrenceExists),
		errors.Is(err, schedule.ErrNotRecurring):
		return fail(c, fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

func idParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid schedule id")
	}
	return id, nil
}

func intQuery(c *fiber.Ctx, key string, def, maxVal int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxVal)
}
