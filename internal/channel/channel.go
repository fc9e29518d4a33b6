package channel

import (
	"context"

	"github.com/ikambaremit/ikamba-bot/internal/bus"
)

// Channel is a messaging transport adapter feeding the inbound bus.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom []string
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	return BaseChannel{name: name, bus: b, allowFrom: allowFrom}
}

func (b *BaseChannel) Name() string {
	return b.name
}

// IsAllowed reports whether sender passes the allowFrom filter. An empty
// filter allows everyone.
func (b *BaseChannel) IsAllowed(sender string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, allowed := range b.allowFrom {
		if allowed == sender {
			return true
		}
	}
	return false
}
