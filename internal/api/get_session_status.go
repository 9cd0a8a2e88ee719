package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/storage"
)

func (s *Server) getSessionStatus(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.QueryParam("sessionId")
	if id == "" {
		return fail(c, http.StatusBadRequest, "sessionId is required")
	}

	stored, err := s.Repo.GetSession(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Error().Err(err).Str("session", id).Msg("failed to load session")
		return fail(c, http.StatusInternalServerError, "failed to load session")
	}
	runtime, running := s.Runner.Status(id)
	if stored == nil && !running {
		return fail(c, http.StatusNotFound, "Session not found")
	}

	resp := SessionStatusResponse{SessionID: id, IsActive: running}
	if stored != nil {
		resp.ConnectionMethod = stored.ConnectionType
		resp.MessageCount = stored.MessageCount
	}
	if running {
		resp.Runtime = runtime
		resp.ConnectionMethod = runtime.ConnectionType
		started := runtime.StartedAt
		resp.StartTime = &started
	}

	if n, err := s.Counter.MessageCount(ctx, id); err == nil {
		resp.MessageCount = n
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn().Err(err).Str("session", id).Msg("failed to read message count")
	}

	return c.JSON(http.StatusOK, resp)
}
