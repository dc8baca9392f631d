package rest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/application"
	"github.com/Builder-Lawyers/site-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/events"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

type Server struct {
	handlers  *application.Handlers
	hub       *events.Hub
	keepalive time.Duration
	done      chan struct{}
}

func NewServer(handlers *application.Handlers, hub *events.Hub) *Server {
	return &Server{handlers: handlers, hub: hub, keepalive: 15 * time.Second, done: make(chan struct{})}
}

// Close ends open event streams.
func (s *Server) Close() {
	close(s.done)
}

func RegisterHandlers(app *fiber.App, s *Server) {
	app.Get("/healthz", s.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.Post("/drafts", s.CreateDraft)
	app.Get("/drafts/:id", s.GetDraft)
	app.Put("/drafts/:id", s.UpdateDraft)
	app.Delete("/drafts/:id", s.DeleteDraft)

	app.Post("/installations", s.Promote)
	app.Get("/installations/:id/steps", s.GetSteps)
	app.Get("/installations/:id/steps/stream", s.StreamSteps)
	app.Post("/installations/:id/steps/:type/start", s.StartStep)
	app.Post("/installations/:id/finalize", s.Finalize)
	app.Post("/installations/:id/fail", s.MarkFailed)
	app.Get("/installations/:id/credentials", s.GetCredentials)

	app.Get("/domains/availability", s.CheckDomain)
}

func (s *Server) Health(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) CreateDraft(c *fiber.Ctx) error {
	var req entity.StepData
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	id, err := s.handlers.CreateDraft.Execute(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.CreateDraftResponse{ID: id})
}

func (s *Server) GetDraft(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	resp, err := s.handlers.GetDraft.Query(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (s *Server) UpdateDraft(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	var req entity.StepData
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	data, err := s.handlers.UpdateDraft.Execute(c.UserContext(), id, req)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.UpdateDraftResponse{ID: id, StepData: data})
}

func (s *Server) DeleteDraft(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	if err := s.handlers.DeleteDraft.Execute(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) Promote(c *fiber.Ctx) error {
	var req dto.PromoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	installation, err := s.handlers.Promote.Execute(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.FromInstallation(installation))
}

func (s *Server) StartStep(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	stepType := consts.StepType(strings.ToUpper(c.Params("type")))
	var req dto.StartStepRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}

	step, err := s.handlers.StartStep.Execute(c.UserContext(), id, stepType, req.Payload)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.FromStep(step))
}

func (s *Server) GetSteps(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	resp, err := s.handlers.GetSteps.Query(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (s *Server) Finalize(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	var req dto.FinalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	resp, err := s.handlers.Finalize.Execute(c.UserContext(), id, req)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (s *Server) MarkFailed(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	resp, err := s.handlers.MarkFailed.Execute(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (s *Server) GetCredentials(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}

	resp, err := s.handlers.GetCredentials.Query(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (s *Server) CheckDomain(c *fiber.Ctx) error {
	var exclude uint64
	if raw := c.Query("exclude"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return badRequest(c, fmt.Errorf("invalid exclude %q", raw))
		}
		exclude = v
	}

	resp, err := s.handlers.CheckDomain.Query(c.UserContext(), c.Query("domain"), exclude)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func idParam(c *fiber.Ctx) (uint64, error) {
	raw := c.Params("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
