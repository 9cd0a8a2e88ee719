package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) getListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, ListSessionsResponse{Sessions: s.Runner.List()})
}
