// Package bus decouples the transport adapter from the message pipeline:
// the channel pushes inbound events, the gateway loop drains them.
package bus

import "time"

// Attachment is an inbound media payload already downloaded from the
// transport, plus the on-disk reference it was saved under.
type Attachment struct {
	Data     []byte
	MimeType string
	Ref      string
}

type InboundMessage struct {
	SenderID   string
	ChatID     string
	Text       string
	PushName   string
	FromMe     bool
	Timestamp  time.Time
	Attachment *Attachment
}

type MessageBus struct {
	Inbound chan InboundMessage
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound: make(chan InboundMessage, bufSize),
	}
}
