package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ikambaremit/ikamba-bot/internal/session"
)

func sseServer(t *testing.T, lines []string, capture *wireRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, capture); err != nil {
				t.Errorf("bad request body: %v", err)
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			_, _ = io.WriteString(w, line+"\n")
		}
	}))
}

func TestComplete_ConcatenatesDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"content": "Yooo! "}`,
		`data: {"content": "10k RUB = "}`,
		`data: {"content": "145,000 RWF"}`,
		`data: [DONE]`,
	}, nil)
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Complete(context.Background(), []session.Turn{
		{Role: session.RoleUser, Text: "rate for rub?"},
	}, Instructions{SystemHint: ComplexHint}, UserMeta{UserID: "whatsapp_123"}, "")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if got != "Yooo! 10k RUB = 145,000 RWF" {
		t.Errorf("Complete = %q", got)
	}
}

func TestComplete_SkipsMalformedChunks(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"content": "good"}`,
		`data: {not json at all`,
		`: comment line`,
		`data: {"content": " bits"}`,
		`data: [DONE]`,
	}, nil)
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Complete(context.Background(), []session.Turn{{Role: session.RoleUser, Text: "hi"}}, Instructions{}, UserMeta{}, "")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if got != "good bits" {
		t.Errorf("Complete = %q, want %q", got, "good bits")
	}
}

func TestComplete_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Complete(context.Background(), nil, Instructions{}, UserMeta{}, "")
	if err == nil {
		t.Fatal("expected error for 500 status")
	}
}

func TestComplete_EmptyStream(t *testing.T) {
	srv := sseServer(t, []string{`data: [DONE]`}, nil)
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Complete(context.Background(), nil, Instructions{}, UserMeta{}, "")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestComplete_WirePayload(t *testing.T) {
	var captured wireRequest
	srv := sseServer(t, []string{`data: {"content": "ok"}`, `data: [DONE]`}, &captured)
	defer srv.Close()

	history := []session.Turn{
		{Role: session.RoleUser, Text: "screenshot attached", HasAttachment: true},
		{Role: session.RoleAssistant, Text: "Nabonye screenshot!"},
		{Role: session.RoleUser, Text: "confirm please"},
	}

	c := NewClient(srv.URL)
	_, err := c.Complete(context.Background(), history, Instructions{SystemHint: "hint", Mode: "gpt"},
		UserMeta{UserID: "whatsapp_250788000111", DisplayName: "WhatsApp User"},
		"data:image/jpeg;base64,AAAA")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(captured.Messages))
	}
	if captured.Messages[0].Content != "screenshot attached [contains image]" {
		t.Errorf("attachment marker missing: %q", captured.Messages[0].Content)
	}
	// The data URL rides on the last user message only.
	if len(captured.Messages[0].Images) != 0 {
		t.Errorf("images on wrong message: %v", captured.Messages[0].Images)
	}
	if len(captured.Messages[2].Images) != 1 || captured.Messages[2].Images[0] != "data:image/jpeg;base64,AAAA" {
		t.Errorf("images on last user message = %v", captured.Messages[2].Images)
	}
	if captured.Mode != "gpt" || captured.SystemHint != "hint" {
		t.Errorf("mode/hint = %q/%q", captured.Mode, captured.SystemHint)
	}
	if captured.UserInfo.UserID != "whatsapp_250788000111" {
		t.Errorf("userId = %q", captured.UserInfo.UserID)
	}
}
