package ws

import (
	"github.com/wa-rotator/backend/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgError    MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Sessions []*session.Status `json:"sessions"`
}

type DeltaPayload struct {
	Updates []*session.Status `json:"updates"`
	Removed []string          `json:"removed,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
