package api

import (
	"github.com/labstack/echo/v4"
)

func (s *Server) getWS(c echo.Context) error {
	s.Broadcaster.ServeWS(c.Response(), c.Request(), s.Origins)
	return nil
}
