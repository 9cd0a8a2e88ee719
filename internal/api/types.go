package api

import (
	"time"

	"github.com/wa-rotator/backend/internal/session"
)

// Response is the envelope every mutating endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type StartSessionRequest struct {
	SessionID      string `json:"sessionId"`
	PhoneNumber    string `json:"phoneNumber"`
	PhoneID        string `json:"phoneId"`
	Targets        string `json:"targets"`
	MessagePath    string `json:"messagePath"`
	MessageText    string `json:"messageText"`
	Delay          int    `json:"delay"`
	ConnectionType string `json:"connectionType"`
}

type StartSessionResponse struct {
	Response
	SessionID string `json:"sessionId,omitempty"`
}

type StopSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type SessionStatusResponse struct {
	SessionID        string                 `json:"sessionId"`
	IsActive         bool                   `json:"isActive"`
	MessageCount     int                    `json:"messageCount"`
	StartTime        *time.Time             `json:"startTime"`
	ConnectionMethod session.ConnectionType `json:"connectionMethod"`
	Runtime          *session.Status        `json:"runtime,omitempty"`
}

type ListSessionsResponse struct {
	Sessions []*session.Status `json:"sessions"`
}

type UploadResponse struct {
	Response
	FilePath string `json:"filePath,omitempty"`
}

type CredsUploadResponse struct {
	Response
	SessionID string `json:"sessionId,omitempty"`
}

type HealthResponse struct {
	Status         string        `json:"status"`
	UptimeSeconds  int64         `json:"uptimeSeconds"`
	ActiveSessions int           `json:"activeSessions"`
	WSClients      int           `json:"wsClients"`
	Process        ProcessHealth `json:"process"`
}

type ProcessHealth struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Goroutines int     `json:"goroutines"`
}
