// Package gateway wires the pieces together: config, stores, the WhatsApp
// channel, the message pipeline, the status web server, and scheduled
// maintenance. One Gateway per process.
package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ikambaremit/ikamba-bot/internal/ai"
	"github.com/ikambaremit/ikamba-bot/internal/bus"
	"github.com/ikambaremit/ikamba-bot/internal/cache"
	"github.com/ikambaremit/ikamba-bot/internal/channel"
	"github.com/ikambaremit/ikamba-bot/internal/config"
	"github.com/ikambaremit/ikamba-bot/internal/pipeline"
	"github.com/ikambaremit/ikamba-bot/internal/session"
	"github.com/ikambaremit/ikamba-bot/internal/web"
)

const (
	livenessSpec  = "@every 5m"
	idleEvictSpec = "0 0 4 * * *"
)

// Options carries test hooks. Zero value is production behavior.
type Options struct {
	SignalChan chan os.Signal
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	sessions   *session.Store
	cache      *cache.ResponseCache
	whatsapp   *channel.WhatsAppChannel
	pipe       *pipeline.Pipeline
	web        *web.Server
	sched      *cron.Cron
	signalChan chan os.Signal
}

func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:        cfg,
		bus:        bus.NewMessageBus(config.DefaultBufSize),
		sessions:   session.NewStore(),
		cache:      cache.New(),
		signalChan: opts.SignalChan,
	}

	wa, err := channel.NewWhatsApp(cfg.WhatsApp, g.bus)
	if err != nil {
		return nil, fmt.Errorf("create whatsapp channel: %w", err)
	}
	g.whatsapp = wa

	g.pipe = pipeline.New(g.sessions, g.cache, ai.NewClient(cfg.AI.URL), wa, pipeline.Options{
		ControlSecret: cfg.Control.Secret,
		PauseDuration: time.Duration(cfg.Control.PauseMinutes) * time.Minute,
		Mode:          cfg.AI.Mode,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	g.web = web.NewServer(addr, wa, g.sessions, wa.Supervisor())

	g.sched = cron.New(cron.WithSeconds())
	if _, err := g.sched.AddFunc(livenessSpec, g.maintenanceTick); err != nil {
		return nil, fmt.Errorf("schedule liveness tick: %w", err)
	}
	idle := time.Duration(cfg.Session.IdleEvictHours) * time.Hour
	if _, err := g.sched.AddFunc(idleEvictSpec, func() {
		if n := g.sessions.EvictIdle(idle); n > 0 {
			log.Printf("[gateway] evicted %d idle conversations", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule idle eviction: %w", err)
	}

	return g, nil
}

// Run starts everything and blocks until SIGINT/SIGTERM.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := g.whatsapp.Start(ctx); err != nil {
		return fmt.Errorf("start whatsapp channel: %w", err)
	}
	if err := g.web.Start(ctx); err != nil {
		return fmt.Errorf("start web server: %w", err)
	}
	g.sched.Start()

	go g.processLoop(ctx)

	log.Printf("[gateway] running, status page on %s:%d", g.cfg.Web.Host, g.cfg.Web.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	cancel()
	return g.Shutdown()
}

// processLoop drains the inbound bus. Each message runs in its own goroutine
// so a slow AI call for one chat never blocks another.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			go g.pipe.Handle(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) maintenanceTick() {
	if n := g.sessions.SweepPaused(); n > 0 {
		log.Printf("[gateway] cleared %d expired pauses", n)
	}
	state := g.whatsapp.Supervisor().State()
	log.Printf("[gateway] alive, whatsapp=%s attempts=%d sessions=%d cache=%d",
		state.Status, state.Attempts, g.sessions.Len(), g.cache.Len())
}

func (g *Gateway) Shutdown() error {
	<-g.sched.Stop().Done()
	if err := g.whatsapp.Stop(); err != nil {
		log.Printf("[gateway] stop whatsapp warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}
