package channel

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	qrterminal "github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/ikambaremit/ikamba-bot/internal/bus"
	"github.com/ikambaremit/ikamba-bot/internal/config"
	"github.com/ikambaremit/ikamba-bot/internal/supervisor"

	_ "modernc.org/sqlite"
)

const whatsappChannelName = "whatsapp"

const (
	whatsappInboundImageTimeout = 20 * time.Second
	whatsappSendTimeout         = 30 * time.Second
	whatsappFetchTimeout        = 30 * time.Second
	// Refuse to attach anything bigger than this when fetching a proof
	// image by URL.
	maxAttachmentBytes = 16 << 20
)

type WhatsAppChannel struct {
	BaseChannel
	cfg            config.WhatsAppConfig
	client         *whatsmeow.Client
	storeContainer *sqlstore.Container
	super          *supervisor.Supervisor
	cancel         context.CancelFunc
	handlerID      uint32
	fetch          *http.Client

	mu        sync.Mutex
	currentQR string
}

func NewWhatsApp(cfg config.WhatsAppConfig, msgBus *bus.MessageBus) (*WhatsAppChannel, error) {
	storePath := strings.TrimSpace(cfg.StorePath)
	if storePath == "" {
		storePath = filepath.Join(config.ConfigDir(), "whatsapp-store.db")
	}

	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return nil, fmt.Errorf("create whatsapp store dir: %w", err)
	}
	if cfg.MediaDir != "" {
		if err := os.MkdirAll(cfg.MediaDir, 0755); err != nil {
			return nil, fmt.Errorf("create media dir: %w", err)
		}
	}

	storeDSN := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.ToSlash(storePath))
	container, err := sqlstore.New(context.Background(), "sqlite", storeDSN, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("init whatsapp session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Noop)
	// The supervisor owns the reconnect loop, not whatsmeow.
	client.EnableAutoReconnect = false

	ch := &WhatsAppChannel{
		BaseChannel:    NewBaseChannel(whatsappChannelName, msgBus, cfg.AllowFrom),
		cfg:            cfg,
		client:         client,
		storeContainer: container,
		fetch:          &http.Client{Timeout: whatsappFetchTimeout},
	}
	ch.super = supervisor.New(ch.connect)
	ch.handlerID = ch.client.AddEventHandler(ch.handleEvent)

	return ch, nil
}

func (w *WhatsAppChannel) Name() string {
	return whatsappChannelName
}

func (w *WhatsAppChannel) connect() error {
	return w.client.Connect()
}

func (w *WhatsAppChannel) Start(ctx context.Context) error {
	if w.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}

	ctx, w.cancel = context.WithCancel(ctx)

	if w.client.Store.ID == nil {
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			w.cancel()
			return fmt.Errorf("get whatsapp qr channel: %w", err)
		}
		go w.consumeQR(ctx, qrChan)
	}

	w.super.Start()

	go func() {
		<-ctx.Done()
		w.super.Stop()
		w.client.Disconnect()
	}()

	return nil
}

func (w *WhatsAppChannel) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}

	if w.super != nil {
		w.super.Stop()
	}

	if w.client != nil {
		if w.handlerID != 0 {
			w.client.RemoveEventHandler(w.handlerID)
			w.handlerID = 0
		}
		w.client.Disconnect()
	}

	if w.storeContainer != nil {
		if err := w.storeContainer.Close(); err != nil {
			return fmt.Errorf("close whatsapp store: %w", err)
		}
		w.storeContainer = nil
	}

	log.Printf("[whatsapp] stopped")
	return nil
}

// SendText delivers a plain text message.
func (w *WhatsAppChannel) SendText(ctx context.Context, chatID, text string) error {
	if w.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}

	content := strings.TrimSpace(text)
	if content == "" {
		return nil
	}

	chatJID, err := parseWhatsAppJID(chatID)
	if err != nil {
		return fmt.Errorf("parse whatsapp chat id %q: %w", chatID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, whatsappSendTimeout)
	defer cancel()

	_, err = w.client.SendMessage(ctx, chatJID, &waE2E.Message{
		Conversation: proto.String(content),
	})
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

// SendImageURL fetches url and delivers it as an image message. Callers fall
// back to sending the url as text when this fails.
func (w *WhatsAppChannel) SendImageURL(ctx context.Context, chatID, url, caption string) error {
	if w.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}

	chatJID, err := parseWhatsAppJID(chatID)
	if err != nil {
		return fmt.Errorf("parse whatsapp chat id %q: %w", chatID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build attachment request: %w", err)
	}
	resp, err := w.fetch.Do(req)
	if err != nil {
		return fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch attachment: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("fetch attachment: empty body")
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	sendCtx, cancel := context.WithTimeout(ctx, whatsappSendTimeout)
	defer cancel()

	uploaded, err := w.client.Upload(sendCtx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload attachment: %w", err)
	}

	imageMsg := &waE2E.ImageMessage{
		URL:           &uploaded.URL,
		DirectPath:    &uploaded.DirectPath,
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    &uploaded.FileLength,
		Mimetype:      proto.String(mimeType),
	}
	if caption != "" {
		imageMsg.Caption = proto.String(caption)
	}

	_, err = w.client.SendMessage(sendCtx, chatJID, &waE2E.Message{ImageMessage: imageMsg})
	if err != nil {
		return fmt.Errorf("send whatsapp image: %w", err)
	}
	return nil
}

// SendPresence sets the composing/paused indicator. Best-effort by contract.
func (w *WhatsAppChannel) SendPresence(ctx context.Context, chatID string, composing bool) error {
	if w.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	chatJID, err := parseWhatsAppJID(chatID)
	if err != nil {
		return fmt.Errorf("parse whatsapp chat id %q: %w", chatID, err)
	}
	state := types.ChatPresencePaused
	if composing {
		state = types.ChatPresenceComposing
	}
	return w.client.SendChatPresence(ctx, chatJID, state, types.ChatPresenceMediaText)
}

// Logout revokes the linked-device credentials so the next start re-pairs.
func (w *WhatsAppChannel) Logout(ctx context.Context) error {
	if w.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if err := w.client.Logout(ctx); err != nil {
		return fmt.Errorf("whatsapp logout: %w", err)
	}
	return nil
}

// Connected reports whether the transport session is currently open.
func (w *WhatsAppChannel) Connected() bool {
	return w.client != nil && w.client.IsConnected() && w.super.State().Status == supervisor.StatusConnected
}

// Supervisor exposes the connection state machine for status reporting.
func (w *WhatsAppChannel) Supervisor() *supervisor.Supervisor {
	return w.super
}

// PendingQR returns the current pairing code, or "" once paired/connected.
func (w *WhatsAppChannel) PendingQR() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentQR
}

func (w *WhatsAppChannel) setQR(code string) {
	w.mu.Lock()
	w.currentQR = code
	w.mu.Unlock()
}

func (w *WhatsAppChannel) consumeQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}

			switch evt.Event {
			case whatsmeow.QRChannelEventCode:
				w.setQR(evt.Code)
				log.Printf("[whatsapp] scan the QR code below to login (also served on the web page)")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			default:
				w.setQR("")
				if evt.Error != nil {
					log.Printf("[whatsapp] login event=%s error=%v", evt.Event, evt.Error)
				} else {
					log.Printf("[whatsapp] login event=%s", evt.Event)
				}
			}
		}
	}
}

func (w *WhatsAppChannel) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		w.setQR("")
		w.super.HandleOpen()
		log.Printf("[whatsapp] connected")
	case *events.Disconnected:
		w.super.HandleClose(true)
	case *events.ConnectFailure:
		log.Printf("[whatsapp] connect failure: %v", e.Reason)
		w.super.HandleClose(true)
	case *events.LoggedOut:
		log.Printf("[whatsapp] logged out (reason=%v), re-pairing required", e.Reason)
		w.super.HandleClose(false)
	case *events.Message:
		w.handleMessage(e)
	}
}

func (w *WhatsAppChannel) handleMessage(evt *events.Message) {
	if evt == nil || evt.Message == nil {
		return
	}
	// Group chats are out of scope.
	if evt.Info.IsGroup {
		return
	}

	rawSender := evt.Info.Sender.String()
	sender := evt.Info.Sender.ToNonAD().String()
	if !evt.Info.IsFromMe && !w.IsAllowed(sender) && !w.IsAllowed(rawSender) {
		log.Printf("[whatsapp] rejected message from %s", sender)
		return
	}

	text, attachment := w.extractContent(evt)
	if text == "" && attachment == nil {
		return
	}

	w.bus.Inbound <- bus.InboundMessage{
		SenderID:   sender,
		ChatID:     evt.Info.Chat.String(),
		Text:       text,
		PushName:   evt.Info.PushName,
		FromMe:     evt.Info.IsFromMe,
		Timestamp:  evt.Info.Timestamp,
		Attachment: attachment,
	}
}

func (w *WhatsAppChannel) extractContent(evt *events.Message) (string, *bus.Attachment) {
	msg := evt.Message
	text := strings.TrimSpace(msg.GetConversation())
	if text == "" && msg.GetExtendedTextMessage() != nil {
		text = strings.TrimSpace(msg.GetExtendedTextMessage().GetText())
	}

	var attachment *bus.Attachment
	if image := msg.GetImageMessage(); image != nil {
		if text == "" {
			text = strings.TrimSpace(image.GetCaption())
		}
		attachment = w.downloadImage(image)
	}

	if doc := msg.GetDocumentMessage(); doc != nil && text == "" {
		name := doc.GetFileName()
		if name == "" {
			name = "file"
		}
		text = fmt.Sprintf("[User sent a document: %s]", name)
	}
	if video := msg.GetVideoMessage(); video != nil && text == "" {
		text = strings.TrimSpace(video.GetCaption())
		if text == "" {
			text = "[User sent a video]"
		}
	}
	if msg.GetAudioMessage() != nil && text == "" {
		text = "[User sent a voice message - please type your message instead]"
	}
	if btn := msg.GetButtonsResponseMessage(); btn != nil && text == "" {
		text = btn.GetSelectedButtonID()
	}
	if list := msg.GetListResponseMessage(); list != nil && text == "" {
		text = list.GetSingleSelectReply().GetSelectedRowID()
	}
	if msg.GetStickerMessage() != nil && text == "" {
		text = "[User sent a sticker 😊]"
	}
	if loc := msg.GetLocationMessage(); loc != nil && text == "" {
		text = fmt.Sprintf("[User shared location: %f, %f]", loc.GetDegreesLatitude(), loc.GetDegreesLongitude())
	}
	if contact := msg.GetContactMessage(); contact != nil && text == "" {
		text = fmt.Sprintf("[User shared a contact: %s]", contact.GetDisplayName())
	}

	return text, attachment
}

func (w *WhatsAppChannel) downloadImage(image *waE2E.ImageMessage) *bus.Attachment {
	ctx, cancel := context.WithTimeout(context.Background(), whatsappInboundImageTimeout)
	defer cancel()

	data, err := w.client.Download(ctx, image)
	if err != nil {
		log.Printf("[whatsapp] download image failed: %v", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	mimeType := strings.TrimSpace(image.GetMimetype())
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}

	ref := ""
	if w.cfg.MediaDir != "" {
		name := fmt.Sprintf("%d.jpg", time.Now().UnixMilli())
		path := filepath.Join(w.cfg.MediaDir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			log.Printf("[whatsapp] save image failed: %v", err)
		} else {
			ref = path
		}
	}

	return &bus.Attachment{Data: data, MimeType: mimeType, Ref: ref}
}

func parseWhatsAppJID(raw string) (types.JID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.EmptyJID, fmt.Errorf("empty jid")
	}

	if strings.Contains(raw, "@") {
		return types.ParseJID(raw)
	}

	user := strings.TrimPrefix(raw, "+")
	if isDigitsOnly(user) {
		return types.NewJID(user, types.DefaultUserServer), nil
	}

	return types.ParseJID(raw)
}

func isDigitsOnly(val string) bool {
	if val == "" {
		return false
	}
	for _, r := range val {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
