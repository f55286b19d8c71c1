package transport

import "context"

// ChatTarget addresses the conversation reminders are delivered to.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
}

// MessageRef identifies a delivered message so it can later be dismissed.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// Adapter is the outbound messaging boundary the notification dispatcher
// talks to. Implementations must be safe for concurrent use.
type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	DeleteMessage(ctx context.Context, ref MessageRef) error
}
