package rest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StreamSteps pushes the ledger as server-sent events: once on connect and again
// after every change of the installation.
func (s *Server) StreamSteps(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err)
	}
	// unknown installations are answered with 404 before switching to a stream
	if _, err := s.handlers.GetSteps.Query(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := s.hub.Subscribe(id)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer s.hub.Unsubscribe(sub)
		log := slog.With("installationID", id)

		keepalive := time.NewTicker(s.keepalive)
		defer keepalive.Stop()

		if err := s.sendLedger(w, id); err != nil {
			log.Debug("sse stream closed", "err", err)
			return
		}
		for {
			select {
			case <-s.done:
				return
			case <-sub.C():
				if err := s.sendLedger(w, id); err != nil {
					log.Debug("sse stream closed", "err", err)
					return
				}
			case <-keepalive.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func (s *Server) sendLedger(w *bufio.Writer, id uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := s.handlers.GetSteps.Query(ctx, id)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}
