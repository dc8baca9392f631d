package rest

import (
	"errors"
	"log/slog"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/errs"
	"github.com/gofiber/fiber/v2"
)

func writeError(c *fiber.Ctx, err error) error {
	var notFound errs.NotFoundError
	var conflict errs.ConflictError
	var validation errs.ValidationError
	switch {
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &conflict):
		resp := dto.ConflictResponse{Error: err.Error(), Reason: string(conflict.Reason)}
		if conflict.Step != nil {
			step := dto.FromStep(*conflict.Step)
			resp.Step = &step
		}
		return c.Status(fiber.StatusConflict).JSON(resp)
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	slog.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
}
