package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wa-rotator/backend/internal/uploads"
)

func (s *Server) postUpload(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, UploadResponse{Response: Response{Message: "No file uploaded"}})
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "failed to read upload")
	}
	defer f.Close()

	u, err := s.Uploads.SaveMessageFile(ctx, fh.Filename, f)
	if err != nil {
		return s.uploadError(c, err)
	}

	s.log.Info().Str("name", fh.Filename).Str("path", u.StoragePath).Int64("size", u.FileSize).Msg("message file uploaded")
	return c.JSON(http.StatusOK, UploadResponse{
		Response: Response{Success: true, Message: "File uploaded successfully"},
		FilePath: u.StoragePath,
	})
}

func (s *Server) uploadError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, uploads.ErrTooLarge):
		return fail(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, uploads.ErrEmptyFile),
		errors.Is(err, uploads.ErrNotText),
		errors.Is(err, uploads.ErrInvalidJSON):
		return fail(c, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("upload failed")
		return fail(c, http.StatusInternalServerError, "upload failed")
	}
}
