package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/sentinel/pkg/hub"
	"github.com/teslashibe/sentinel/pkg/incident"
)

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "ok",
		"running":      s.control.Running(),
		"feed_clients": s.feed.ClientCount(),
	})
}

// handleState returns the same payload the live feed pushes
func (s *Server) handleState(c *fiber.Ctx) error {
	data, err := s.mon.Snapshot().Encode()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// handleZones returns the zone overlay
func (s *Server) handleZones(c *fiber.Ctx) error {
	return c.JSON(s.mon.Layout().Zones())
}

func (s *Server) handleListIncidents(c *fiber.Ctx) error {
	return c.JSON(s.mon.Incidents().List())
}

func (s *Server) handleGetIncident(c *fiber.Ctx) error {
	inc, err := s.mon.Incidents().Get(c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(inc)
}

func (s *Server) handleTimeline(c *fiber.Ctx) error {
	return c.JSON(s.mon.Timeline().List())
}

// handleResolveIncident acknowledges an incident. Repeating it is harmless.
func (s *Server) handleResolveIncident(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.mon.Incidents().Resolve(c.UserContext(), id); err != nil {
		return s.storeError(c, err)
	}
	s.control.Publish()
	return c.JSON(fiber.Map{"status": "resolved", "id": id})
}

// handleDeleteIncident removes an incident. Unknown ids succeed.
func (s *Server) handleDeleteIncident(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.mon.Incidents().Delete(c.UserContext(), id); err != nil {
		return s.storeError(c, err)
	}
	s.control.Publish()
	return c.JSON(fiber.Map{"status": "deleted", "id": id})
}

// AddNoteRequest is the request body for adding an incident note
type AddNoteRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleAddNote(c *fiber.Ctx) error {
	var req AddNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	note, err := s.mon.Incidents().AddNote(c.UserContext(), c.Params("id"), strings.TrimSpace(req.Note))
	if err != nil {
		return s.storeError(c, err)
	}
	s.control.Publish()
	return c.Status(fiber.StatusCreated).JSON(note)
}

func (s *Server) handleStartAnalysis(c *fiber.Ctx) error {
	s.control.Start()
	return c.JSON(fiber.Map{"system_status": s.mon.Stats().SystemStatus})
}

func (s *Server) handleStopAnalysis(c *fiber.Ctx) error {
	s.control.Stop()
	return c.JSON(fiber.Map{"system_status": s.mon.Stats().SystemStatus})
}

// storeError maps incident store errors onto HTTP statuses.
func (s *Server) storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, incident.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, incident.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	default:
		s.logger.Error("incident store", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage failure"})
	}
}

// handleFeedWS streams snapshots to a dashboard
func (s *Server) handleFeedWS(c *websocket.Conn) {
	client, err := hub.NewClient(s.feed, c)
	if err != nil {
		s.logger.Debug("feed client rejected", "error", err)
		return
	}
	client.Run()
}
