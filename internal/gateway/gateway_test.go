package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ikambaremit/ikamba-bot/internal/bus"
	"github.com/ikambaremit/ikamba-bot/internal/cache"
	"github.com/ikambaremit/ikamba-bot/internal/config"
	"github.com/ikambaremit/ikamba-bot/internal/pipeline"
	"github.com/ikambaremit/ikamba-bot/internal/session"
)

type recordingSender struct {
	sent chan string
}

func (r *recordingSender) SendText(ctx context.Context, chatID, text string) error {
	r.sent <- text
	return nil
}

func (r *recordingSender) SendImageURL(ctx context.Context, chatID, url, caption string) error {
	return nil
}

func (r *recordingSender) SendPresence(ctx context.Context, chatID string, composing bool) error {
	return nil
}

func TestScheduleSpecsParse(t *testing.T) {
	c := cron.New(cron.WithSeconds())
	for _, spec := range []string{livenessSpec, idleEvictSpec} {
		if _, err := c.AddFunc(spec, func() {}); err != nil {
			t.Errorf("spec %q does not parse: %v", spec, err)
		}
	}
}

func TestProcessLoop_DispatchesToPipeline(t *testing.T) {
	sender := &recordingSender{sent: make(chan string, 1)}
	sessions := session.NewStore()

	g := &Gateway{
		cfg:      config.DefaultConfig(),
		bus:      bus.NewMessageBus(4),
		sessions: sessions,
		cache:    cache.New(),
		pipe: pipeline.New(sessions, cache.New(), nil, sender, pipeline.Options{
			ControlSecret: "ikamba pause",
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.processLoop(ctx)

	// Instant-tier greeting never reaches the AI, so a nil completer is safe.
	g.bus.Inbound <- bus.InboundMessage{
		SenderID: "250788000111@s.whatsapp.net",
		ChatID:   "250788000111@s.whatsapp.net",
		Text:     "hi",
	}

	select {
	case reply := <-sender.sent:
		if reply == "" {
			t.Error("empty instant reply")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never handled the inbound message")
	}
}

func TestProcessLoop_StopsOnContextCancel(t *testing.T) {
	g := &Gateway{
		bus: bus.NewMessageBus(1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.processLoop(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processLoop did not exit on cancel")
	}
}
