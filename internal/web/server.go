// Package web serves the operator-facing status surface: a pairing/status
// page, a JSON status endpoint, and a logout endpoint that forces
// re-pairing. None of this is on the message path.
package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"rsc.io/qr"

	"github.com/ikambaremit/ikamba-bot/internal/session"
	"github.com/ikambaremit/ikamba-bot/internal/supervisor"
)

// Transport is the slice of the WhatsApp channel the status server needs.
type Transport interface {
	Connected() bool
	PendingQR() string
	Logout(ctx context.Context) error
}

// PauseLister enumerates currently paused conversations.
type PauseLister interface {
	Paused() []session.PauseInfo
}

// StateReporter exposes the connection state machine.
type StateReporter interface {
	State() supervisor.Snapshot
}

type Server struct {
	addr      string
	transport Transport
	pauses    PauseLister
	state     StateReporter
	server    *http.Server
}

func NewServer(addr string, transport Transport, pauses PauseLister, state StateReporter) *Server {
	return &Server{
		addr:      addr,
		transport: transport,
		pauses:    pauses,
		state:     state,
	}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /logout", s.handleLogout)

	s.server = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		log.Printf("[web] listening on %s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[web] server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if s.transport.Connected() {
		fmt.Fprint(w, connectedPage)
		return
	}

	if code := s.transport.PendingQR(); code != "" {
		dataURL, err := qrDataURL(code)
		if err != nil {
			log.Printf("[web] qr encode failed: %v", err)
			fmt.Fprint(w, startingPage)
			return
		}
		fmt.Fprintf(w, qrPage, dataURL)
		return
	}

	fmt.Fprint(w, startingPage)
}

type pausedEntry struct {
	ID               string `json:"id"`
	RemainingSeconds int64  `json:"remainingSeconds"`
}

type statusResponse struct {
	Connected bool          `json:"connected"`
	HasQR     bool          `json:"hasQR"`
	Status    string        `json:"status"`
	Attempts  int           `json:"reconnectAttempts"`
	Paused    []pausedEntry `json:"paused"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.state.State()
	resp := statusResponse{
		Connected: s.transport.Connected(),
		HasQR:     s.transport.PendingQR() != "",
		Status:    string(snapshot.Status),
		Attempts:  snapshot.Attempts,
		Paused:    []pausedEntry{},
	}
	for _, p := range s.pauses.Paused() {
		resp.Paused = append(resp.Paused, pausedEntry{
			ID:               p.ID,
			RemainingSeconds: int64(p.Remaining.Seconds()),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.transport.Logout(r.Context()); err != nil {
		log.Printf("[web] logout failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "logged out, restart to re-pair"})
}

func qrDataURL(code string) (string, error) {
	encoded, err := qr.Encode(code, qr.L)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(encoded.PNG()), nil
}

const connectedPage = `<!DOCTYPE html>
<html>
<head>
<title>Ikamba WhatsApp Bot</title>
<style>
body { font-family: Arial, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: linear-gradient(135deg, #25D366, #128C7E); }
.container { text-align: center; background: white; padding: 40px; border-radius: 20px; }
h1 { color: #128C7E; }
.status { font-size: 24px; color: #25D366; }
</style>
</head>
<body>
<div class="container">
<div style="font-size:60px">✅</div>
<h1>Ikamba AI WhatsApp Bot</h1>
<p class="status">Connected &amp; Running!</p>
<p>The bot is actively responding to messages.</p>
</div>
</body>
</html>`

const qrPage = `<!DOCTYPE html>
<html>
<head>
<title>Scan QR Code - Ikamba Bot</title>
<meta http-equiv="refresh" content="30">
<style>
body { font-family: Arial, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: linear-gradient(135deg, #25D366, #128C7E); }
.container { text-align: center; background: white; padding: 40px; border-radius: 20px; }
h1 { color: #128C7E; }
.instructions { color: #666; margin-top: 20px; }
</style>
</head>
<body>
<div class="container">
<h1>📱 Scan QR Code</h1>
<img src="%s" alt="QR Code" width="300" height="300">
<div class="instructions">
<p>1. Open WhatsApp on your phone</p>
<p>2. Go to Settings → Linked Devices</p>
<p>3. Tap "Link a Device"</p>
<p>4. Scan this QR code</p>
</div>
<p style="color: #999; font-size: 12px;">Page auto-refreshes every 30 seconds</p>
</div>
</body>
</html>`

const startingPage = `<!DOCTYPE html>
<html>
<head>
<title>Ikamba WhatsApp Bot</title>
<meta http-equiv="refresh" content="5">
<style>
body { font-family: Arial, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: linear-gradient(135deg, #25D366, #128C7E); }
.container { text-align: center; background: white; padding: 40px; border-radius: 20px; }
h1 { color: #128C7E; }
</style>
</head>
<body>
<div class="container">
<div style="font-size:40px">⏳</div>
<h1>Starting Bot...</h1>
<p>Please wait, generating QR code...</p>
</div>
</body>
</html>`
