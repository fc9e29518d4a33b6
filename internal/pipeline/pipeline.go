// Package pipeline is the per-message triage path: control commands, pause
// checks, tier classification, cache lookups, and only then the expensive AI
// call. One inbound message produces at most one reply (plus at most one
// attachment).
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ikambaremit/ikamba-bot/internal/ai"
	"github.com/ikambaremit/ikamba-bot/internal/bus"
	"github.com/ikambaremit/ikamba-bot/internal/cache"
	"github.com/ikambaremit/ikamba-bot/internal/classify"
	"github.com/ikambaremit/ikamba-bot/internal/format"
	"github.com/ikambaremit/ikamba-bot/internal/session"
)

// Apology is the fixed reply when the AI call or reply send fails.
const Apology = "❌ Sorry, I encountered an error. Please try again."

const (
	pauseConfirm  = "⏸️ Auto-replies paused. Send the pause phrase again to resume."
	resumeConfirm = "▶️ Auto-replies resumed."
)

// Sender is the outbound half of the transport, narrowed to what the
// pipeline needs.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
	SendImageURL(ctx context.Context, chatID, url, caption string) error
	SendPresence(ctx context.Context, chatID string, composing bool) error
}

// Completer produces the AI response for a conversation history.
type Completer interface {
	Complete(ctx context.Context, history []session.Turn, instr ai.Instructions, meta ai.UserMeta, imageDataURL string) (string, error)
}

type Options struct {
	ControlSecret string
	PauseDuration time.Duration
	Mode          string
}

type Pipeline struct {
	sessions *session.Store
	cache    *cache.ResponseCache
	ai       Completer
	sender   Sender
	opts     Options
}

func New(sessions *session.Store, respCache *cache.ResponseCache, completer Completer, sender Sender, opts Options) *Pipeline {
	if opts.PauseDuration <= 0 {
		opts.PauseDuration = time.Hour
	}
	return &Pipeline{
		sessions: sessions,
		cache:    respCache,
		ai:       completer,
		sender:   sender,
		opts:     opts,
	}
}

// Handle processes one inbound message end to end. Errors are handled
// internally; the worst outcome for the user is the fixed apology text.
func (p *Pipeline) Handle(ctx context.Context, msg bus.InboundMessage) {
	text := strings.TrimSpace(msg.Text)

	// Control command: the shared pause phrase, from the peer or from the
	// linked account itself.
	if p.opts.ControlSecret != "" && strings.EqualFold(text, p.opts.ControlSecret) {
		p.togglePause(ctx, msg.ChatID)
		return
	}
	// Any other self message is the linked account talking, not a query.
	if msg.FromMe {
		return
	}

	// Paused conversations are dropped silently: an operator has taken over.
	if p.sessions.IsPaused(msg.ChatID) {
		return
	}

	if text == "" && msg.Attachment == nil {
		return
	}

	result := classify.Classify(text)

	// Instant tier: canned reply, no AI, default context cap.
	if result.Tier == classify.TierInstant && msg.Attachment == nil {
		p.sessions.AppendTurn(msg.ChatID, session.Turn{Role: session.RoleUser, Text: text}, session.DefaultHistoryLimit)
		p.sessions.AppendTurn(msg.ChatID, session.Turn{Role: session.RoleAssistant, Text: result.InstantReply}, session.DefaultHistoryLimit)
		if err := p.sender.SendText(ctx, msg.ChatID, result.InstantReply); err != nil {
			log.Printf("[pipeline] send instant reply to %s failed: %v", msg.ChatID, err)
		}
		return
	}

	limit := session.DefaultHistoryLimit
	if result.Tier == classify.TierComplex {
		limit = session.ComplexHistoryLimit
	}

	// Cached answer short-circuits the AI call. Instant replies are checked
	// first on purpose: a curated greeting beats a stale cached one.
	key := ""
	if msg.Attachment == nil {
		key = cache.Key(text)
		if cached := p.cache.Get(key); cached != "" {
			p.sessions.AppendTurn(msg.ChatID, session.Turn{Role: session.RoleUser, Text: text}, limit)
			p.sessions.AppendTurn(msg.ChatID, session.Turn{Role: session.RoleAssistant, Text: cached}, limit)
			if err := p.sender.SendText(ctx, msg.ChatID, format.Output(cached)); err != nil {
				log.Printf("[pipeline] send cached reply to %s failed: %v", msg.ChatID, err)
			}
			return
		}
	}

	userTurn := session.Turn{Role: session.RoleUser, Text: text}
	imageDataURL := ""
	if msg.Attachment != nil {
		userTurn.HasAttachment = true
		userTurn.AttachmentRef = msg.Attachment.Ref
		if text != "" {
			userTurn.Text = fmt.Sprintf("[User sent an image with caption: %q]", text)
		} else {
			userTurn.Text = "[User sent an image - likely a payment screenshot or document]"
		}
		if len(msg.Attachment.Data) > 0 {
			imageDataURL = dataURL(msg.Attachment)
		}
	}
	p.sessions.AppendTurn(msg.ChatID, userTurn, limit)

	// Presence updates are best-effort: a failure here never fails the
	// message.
	_ = p.sender.SendPresence(ctx, msg.ChatID, true)
	defer func() { _ = p.sender.SendPresence(ctx, msg.ChatID, false) }()

	response, err := p.ai.Complete(ctx, p.sessions.History(msg.ChatID), p.instructions(result.Tier, msg.Attachment != nil), p.meta(msg), imageDataURL)
	if err != nil {
		log.Printf("[pipeline] ai call for %s failed: %v", msg.ChatID, err)
		p.apologize(ctx, msg.ChatID)
		return
	}

	cleaned, proofURL := format.ExtractProofImage(response)
	if strings.TrimSpace(cleaned) != "" || proofURL == "" {
		if err := p.sender.SendText(ctx, msg.ChatID, format.Output(cleaned)); err != nil {
			log.Printf("[pipeline] send reply to %s failed: %v", msg.ChatID, err)
			p.apologize(ctx, msg.ChatID)
			return
		}
	}
	if proofURL != "" {
		if err := p.sender.SendImageURL(ctx, msg.ChatID, proofURL, ""); err != nil {
			// Downgrade: the reference as plain text still gets the proof
			// across.
			log.Printf("[pipeline] send proof image to %s failed: %v", msg.ChatID, err)
			if err := p.sender.SendText(ctx, msg.ChatID, proofURL); err != nil {
				log.Printf("[pipeline] send proof url to %s failed: %v", msg.ChatID, err)
			}
		}
	}

	if key != "" {
		p.cache.Set(key, response)
	}
	p.sessions.AppendTurn(msg.ChatID, session.Turn{Role: session.RoleAssistant, Text: response}, limit)
}

func (p *Pipeline) togglePause(ctx context.Context, chatID string) {
	if p.sessions.IsPaused(chatID) {
		p.sessions.ClearPaused(chatID)
		log.Printf("[pipeline] auto-replies resumed for %s", chatID)
		if err := p.sender.SendText(ctx, chatID, resumeConfirm); err != nil {
			log.Printf("[pipeline] send resume confirmation to %s failed: %v", chatID, err)
		}
		return
	}
	p.sessions.SetPaused(chatID, p.opts.PauseDuration)
	log.Printf("[pipeline] auto-replies paused for %s (%s)", chatID, p.opts.PauseDuration)
	if err := p.sender.SendText(ctx, chatID, pauseConfirm); err != nil {
		log.Printf("[pipeline] send pause confirmation to %s failed: %v", chatID, err)
	}
}

func (p *Pipeline) apologize(ctx context.Context, chatID string) {
	if err := p.sender.SendText(ctx, chatID, Apology); err != nil {
		log.Printf("[pipeline] send apology to %s failed: %v", chatID, err)
	}
}

func (p *Pipeline) instructions(tier classify.Tier, hasAttachment bool) ai.Instructions {
	hint := ai.SimpleHint
	if tier == classify.TierComplex {
		hint = ai.ComplexHint
	}
	if hasAttachment {
		hint += ai.ImageHint
	}
	return ai.Instructions{SystemHint: hint, Mode: p.opts.Mode}
}

func (p *Pipeline) meta(msg bus.InboundMessage) ai.UserMeta {
	name := msg.PushName
	if name == "" {
		name = "WhatsApp User"
	}
	phone := msg.SenderID
	if i := strings.IndexByte(phone, '@'); i >= 0 {
		phone = phone[:i]
	}
	return ai.UserMeta{
		UserID:      "whatsapp_" + msg.SenderID,
		Phone:       phone,
		DisplayName: name,
	}
}

func dataURL(a *bus.Attachment) string {
	mime := a.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
