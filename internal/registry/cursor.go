package registry

// Cursor points at the next (target, message) pair to send. Messages
// rotate on every successful send; the target moves on only after the
// whole message list has been sent to it.
type Cursor struct {
	MessageIndex int `json:"messageIndex"`
	TargetIndex  int `json:"targetIndex"`
}

// Advance returns the cursor after one successful send. Both counts must
// be positive.
func (c Cursor) Advance(messages, targets int) Cursor {
	next := Cursor{
		MessageIndex: (c.MessageIndex + 1) % messages,
		TargetIndex:  c.TargetIndex,
	}
	if next.MessageIndex == 0 {
		next.TargetIndex = (c.TargetIndex + 1) % targets
	}
	return next
}
