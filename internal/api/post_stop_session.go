package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/session"
	"github.com/wa-rotator/backend/internal/storage"
)

func (s *Server) postStopSession(c echo.Context) error {
	ctx := c.Request().Context()

	var body StopSessionRequest
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if body.SessionID == "" {
		return fail(c, http.StatusBadRequest, "sessionId is required")
	}

	if err := s.Runner.Stop(ctx, body.SessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fail(c, http.StatusNotFound, "Session not found or not running")
		}
		s.log.Error().Err(err).Str("session", body.SessionID).Msg("failed to stop session")
		return fail(c, http.StatusInternalServerError, "failed to stop session")
	}

	if err := s.Repo.SetActive(ctx, body.SessionID, false); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Error().Err(err).Str("session", body.SessionID).Msg("failed to mark session inactive")
	}

	return c.JSON(http.StatusOK, Response{Success: true, Message: "Session stopped"})
}
