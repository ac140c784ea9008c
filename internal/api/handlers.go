package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vanivoice/vani/internal/agent"
	"github.com/vanivoice/vani/internal/session"
	"github.com/vanivoice/vani/internal/transcript"
)

type createSessionRequest struct {
	AgentID string `json:"agent_id"`
}

type sessionResponse struct {
	ID         string            `json:"id"`
	AgentID    string            `json:"agent_id"`
	State      session.State     `json:"state"`
	Countdown  int               `json:"countdown"`
	Transcript []transcript.Item `json:"transcript,omitempty"`
}

func sessionBody(ctrl *session.Controller, withTranscript bool) sessionResponse {
	resp := sessionResponse{
		ID:        ctrl.ID(),
		AgentID:   ctrl.AgentID(),
		State:     ctrl.State(),
		Countdown: ctrl.Countdown(),
	}
	if withTranscript {
		resp.Transcript = ctrl.Transcript()
	}
	return resp
}

func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id is required")
	}

	profile, err := s.profiles.Get(c.Request().Context(), req.AgentID)
	if err != nil {
		return err
	}
	if profile == nil {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}

	ctrl, err := s.manager.Start(c.Request().Context(), *profile)
	switch {
	case errors.Is(err, session.ErrCaptureUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, session.ErrConnect):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(http.StatusCreated, sessionBody(ctrl, false))
}

func (s *Server) getSession(c echo.Context) error {
	ctrl, ok := s.manager.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sessionBody(ctrl, true))
}

type sendTextRequest struct {
	Text string `json:"text"`
}

func (s *Server) sendSessionText(c echo.Context) error {
	ctrl, ok := s.manager.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	var req sendTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	if err := ctrl.SendUserText(c.Request().Context(), req.Text); err != nil {
		if errors.Is(err, session.ErrNotActive) {
			return echo.NewHTTPError(http.StatusConflict, "session is not active")
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) endSession(c echo.Context) error {
	ctrl, ok := s.manager.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err := ctrl.End(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionBody(ctrl, false))
}

func (s *Server) listRecords(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	records, err := s.records.List(c.Request().Context(), c.QueryParam("agent_id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) getRecord(c echo.Context) error {
	rec, err := s.records.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteRecord(c echo.Context) error {
	if err := s.records.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listAgents(c echo.Context) error {
	profiles, err := s.profiles.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profiles)
}

func (s *Server) getAgent(c echo.Context) error {
	profile, err := s.profiles.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if profile == nil {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) createAgent(c echo.Context) error {
	var p agent.Profile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := p.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	existing, err := s.profiles.Get(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return echo.NewHTTPError(http.StatusConflict, "agent already exists")
	}
	if err := s.profiles.Create(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) updateAgent(c echo.Context) error {
	var p agent.Profile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p.ID = c.Param("id")
	if err := p.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	existing, err := s.profiles.Get(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}
	if err := s.profiles.Update(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) deleteAgent(c echo.Context) error {
	if err := s.profiles.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
