package messaging

import "context"

// OutboundReply is one message to deliver back to the user.
type OutboundReply struct {
	To       string
	From     string
	Body     string
	Metadata map[string]string
}

// ReplyMessenger delivers outbound replies over a messaging provider.
type ReplyMessenger interface {
	SendReply(ctx context.Context, msg OutboundReply) error
}
