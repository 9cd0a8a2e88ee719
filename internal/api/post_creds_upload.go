package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wa-rotator/backend/internal/session"
)

func (s *Server) postCredsUpload(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("creds")
	if err != nil {
		return c.JSON(http.StatusBadRequest, CredsUploadResponse{Response: Response{Message: "No credentials file uploaded"}})
	}

	id := strings.TrimSpace(c.FormValue("sessionId"))
	if id == "" {
		id = uuid.NewString()
	} else if err := session.ValidateID(id); err != nil {
		return fail(c, http.StatusBadRequest, "invalid sessionId")
	}

	f, err := fh.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "failed to read upload")
	}
	defer f.Close()

	if _, err := s.Uploads.SaveCredentials(ctx, id, fh.Filename, f); err != nil {
		return s.uploadError(c, err)
	}

	s.log.Info().Str("session", id).Msg("credentials uploaded")
	return c.JSON(http.StatusOK, CredsUploadResponse{
		Response:  Response{Success: true, Message: "Credentials uploaded successfully"},
		SessionID: id,
	})
}
