package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ikambaremit/ikamba-bot/internal/session"
	"github.com/ikambaremit/ikamba-bot/internal/supervisor"
)

type fakeTransport struct {
	connected  bool
	qr         string
	logoutErr  error
	logoutHits int
}

func (f *fakeTransport) Connected() bool                  { return f.connected }
func (f *fakeTransport) PendingQR() string                { return f.qr }
func (f *fakeTransport) Logout(ctx context.Context) error { f.logoutHits++; return f.logoutErr }

type fakePauses struct {
	list []session.PauseInfo
}

func (f *fakePauses) Paused() []session.PauseInfo { return f.list }

type fakeState struct {
	snap supervisor.Snapshot
}

func (f *fakeState) State() supervisor.Snapshot { return f.snap }

func newTestServer(transport *fakeTransport, pauses *fakePauses, state *fakeState) *Server {
	return NewServer("127.0.0.1:0", transport, pauses, state)
}

func TestIndex_Connected(t *testing.T) {
	srv := newTestServer(&fakeTransport{connected: true}, &fakePauses{}, &fakeState{})
	rec := httptest.NewRecorder()
	srv.handleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Connected") {
		t.Errorf("body missing connected banner: %s", rec.Body.String())
	}
}

func TestIndex_QRCode(t *testing.T) {
	srv := newTestServer(&fakeTransport{qr: "2@pairing-code-payload"}, &fakePauses{}, &fakeState{})
	rec := httptest.NewRecorder()
	srv.handleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "data:image/png;base64,") {
		t.Errorf("body missing inline QR image")
	}
	if !strings.Contains(body, "Scan QR Code") {
		t.Errorf("body missing pairing instructions")
	}
}

func TestIndex_Starting(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, &fakePauses{}, &fakeState{})
	rec := httptest.NewRecorder()
	srv.handleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(rec.Body.String(), "Starting Bot") {
		t.Errorf("body missing starting banner: %s", rec.Body.String())
	}
}

func TestStatus_JSON(t *testing.T) {
	pauses := &fakePauses{list: []session.PauseInfo{
		{ID: "250788000111@s.whatsapp.net", Remaining: 90 * time.Second},
	}}
	state := &fakeState{snap: supervisor.Snapshot{Status: supervisor.StatusConnecting, Attempts: 3}}
	srv := newTestServer(&fakeTransport{qr: "code"}, pauses, state)

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if got.Connected {
		t.Error("connected = true, want false")
	}
	if !got.HasQR {
		t.Error("hasQR = false, want true")
	}
	if got.Status != "connecting" || got.Attempts != 3 {
		t.Errorf("status/attempts = %s/%d", got.Status, got.Attempts)
	}
	if len(got.Paused) != 1 || got.Paused[0].RemainingSeconds != 90 {
		t.Errorf("paused = %+v", got.Paused)
	}
}

func TestLogout(t *testing.T) {
	transport := &fakeTransport{}
	srv := newTestServer(transport, &fakePauses{}, &fakeState{})

	rec := httptest.NewRecorder()
	srv.handleLogout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if transport.logoutHits != 1 {
		t.Errorf("logout hits = %d, want 1", transport.logoutHits)
	}
}

func TestLogout_Error(t *testing.T) {
	transport := &fakeTransport{logoutErr: errors.New("nope")}
	srv := newTestServer(transport, &fakePauses{}, &fakeState{})

	rec := httptest.NewRecorder()
	srv.handleLogout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
