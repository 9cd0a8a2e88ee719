package api

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/process"
)

func (s *Server) getHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		ActiveSessions: s.Runner.Len(),
		Process: ProcessHealth{
			PID:        int32(os.Getpid()),
			Goroutines: runtime.NumGoroutine(),
		},
	}
	if s.Broadcaster != nil {
		resp.WSClients = s.Broadcaster.ClientCount()
	}

	ctx := c.Request().Context()
	if p, err := process.NewProcessWithContext(ctx, resp.Process.PID); err == nil {
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
			resp.Process.RSSBytes = mem.RSS
		}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			resp.Process.CPUPercent = cpu
		}
	} else {
		s.log.Debug().Err(err).Msg("process stats unavailable")
	}

	return c.JSON(http.StatusOK, resp)
}
