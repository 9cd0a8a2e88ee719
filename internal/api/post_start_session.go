package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/session"
	"github.com/wa-rotator/backend/internal/uploads"
)

func (s *Server) postStartSession(c echo.Context) error {
	ctx := c.Request().Context()

	var body StartSessionRequest
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	connType, err := session.ParseConnectionType(body.ConnectionType)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if body.Delay < 0 {
		return fail(c, http.StatusBadRequest, session.ErrInvalidDelay.Error())
	}
	delay := body.Delay
	if delay == 0 {
		delay = session.DefaultDelay
	}

	messagePath := ""
	if strings.TrimSpace(body.MessageText) == "" && body.MessagePath != "" {
		messagePath, err = s.Uploads.ResolveMessagePath(body.MessagePath)
		if err != nil {
			if errors.Is(err, uploads.ErrOutsideDir) {
				return fail(c, http.StatusBadRequest, "messagePath must point to an uploaded file")
			}
			return fail(c, http.StatusInternalServerError, "failed to resolve message file")
		}
	}

	id := strings.TrimSpace(body.SessionID)
	if id == "" {
		id = uuid.NewString()
	} else if err := session.ValidateID(id); err != nil {
		return fail(c, http.StatusBadRequest, "invalid sessionId")
	}

	sess := &session.Session{
		SessionID:      id,
		PhoneNumber:    body.PhoneNumber,
		ConnectionType: connType,
		PhoneID:        body.PhoneID,
		Targets:        body.Targets,
		MessagePath:    messagePath,
		MessageText:    body.MessageText,
		Delay:          delay,
	}
	if err := s.Repo.SaveSession(ctx, sess); err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("failed to save session")
		return fail(c, http.StatusInternalServerError, "failed to save session")
	}

	if err := s.Runner.Start(ctx, sess); err != nil {
		s.log.Warn().Err(err).Str("session", id).Msg("failed to start session")
		if err := s.Repo.SetActive(ctx, id, false); err != nil {
			s.log.Error().Err(err).Str("session", id).Msg("failed to mark session inactive")
		}
		return c.JSON(startErrorStatus(err), StartSessionResponse{
			Response:  Response{Success: false, Message: err.Error()},
			SessionID: id,
		})
	}

	if err := s.Repo.SetActive(ctx, id, true); err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("failed to mark session active")
	}

	return c.JSON(http.StatusOK, StartSessionResponse{
		Response:  Response{Success: true, Message: "Session started"},
		SessionID: id,
	})
}

func startErrorStatus(err error) int {
	switch {
	case session.IsStartValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClientInitialization):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
