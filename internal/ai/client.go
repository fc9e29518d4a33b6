// Package ai calls the remote completion service: an HTTP POST whose reply
// is a server-sent-event stream of content deltas. The service does the
// actual reasoning; this client only assembles the stream into text.
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ikambaremit/ikamba-bot/internal/session"
)

const defaultTimeout = 90 * time.Second

// ErrEmptyResponse is returned when the stream completes without yielding
// any content.
var ErrEmptyResponse = errors.New("ai: empty response stream")

// Instructions is the tier-dependent payload sent as the systemHint.
type Instructions struct {
	SystemHint string
	Mode       string
}

// UserMeta identifies the sender to the completion service.
type UserMeta struct {
	UserID      string
	Phone       string
	Email       string
	DisplayName string
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type wireUserInfo struct {
	UserID      string `json:"userId"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName"`
}

type wireRequest struct {
	Messages   []wireMessage `json:"messages"`
	Mode       string        `json:"mode"`
	UserInfo   wireUserInfo  `json:"userInfo"`
	SystemHint string        `json:"systemHint"`
}

type streamChunk struct {
	Content string `json:"content"`
}

type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// Complete sends the conversation history to the completion service and
// concatenates the streamed deltas into the final text. imageDataURL, when
// non-empty, rides on the last user message. A non-2xx status or an empty
// stream is an error.
func (c *Client) Complete(ctx context.Context, history []session.Turn, instr Instructions, meta UserMeta, imageDataURL string) (string, error) {
	messages := make([]wireMessage, 0, len(history))
	for _, turn := range history {
		content := turn.Text
		if turn.Role == session.RoleUser && turn.HasAttachment {
			content += " [contains image]"
		}
		messages = append(messages, wireMessage{Role: string(turn.Role), Content: content})
	}
	if imageDataURL != "" {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == string(session.RoleUser) {
				messages[i].Images = []string{imageDataURL}
				break
			}
		}
	}

	mode := instr.Mode
	if mode == "" {
		mode = "gpt"
	}
	body, err := json.Marshal(wireRequest{
		Messages:   messages,
		Mode:       mode,
		UserInfo:   wireUserInfo(meta),
		SystemHint: instr.SystemHint,
	})
	if err != nil {
		return "", fmt.Errorf("marshal ai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ai service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("ai service status %d", resp.StatusCode)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed chunks are skipped, not fatal.
			continue
		}
		full.WriteString(chunk.Content)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read ai stream: %w", err)
	}

	if full.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return full.String(), nil
}

// SimpleHint is the lean instruction set for simple-tier queries.
const SimpleHint = `STYLE RULES FOR WHATSAPP:
- Reply like a cool Rwandan friend, mix Kinyarwanda & English naturally
- Keep it SUPER SHORT - max 10 words if possible!
- Be friendly & direct, no formal stuff`

// ComplexHint is the full-detail instruction set for complex-tier queries.
const ComplexHint = `IMPORTANT STYLE RULES FOR WHATSAPP:
- Reply like a cool Rwandan friend, mix Kinyarwanda & English naturally
- Keep it SUPER SHORT - max 10 words if possible!
- Use casual greetings like "Yooo", "Eh boss", "Mwaramutse", "Oya", "Yego"
- Common phrases: "ushaka iki?", "ni byiza", "komeza", "murakoze", "ese?", "nta kibazo"
- Be friendly & direct, no formal stuff
- For transfers: give quick numbers, skip long explanations
- Example: "Yooo! 10k RUB = 145,000 RWF 🔥 Ushaka kohereza?"`

// ImageHint is appended when the user message carries an attachment.
const ImageHint = `
Note: User sent an image. If payment screenshot, just say "Nabonye screenshot! ✅" and confirm.`
