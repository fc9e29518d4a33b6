// Package supervisor keeps the transport session alive: every recoverable
// close schedules a reconnection attempt, with the delay stepping up after
// repeated failures. Only an explicit logout stops the cycle.
package supervisor

import (
	"log"
	"sync"
	"time"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusLoggedOut    Status = "logged_out"
)

const (
	// ShortDelay is used while attempts stay at or under ShortDelayLimit.
	ShortDelay      = 5 * time.Second
	LongDelay       = 60 * time.Second
	ShortDelayLimit = 50
)

// Snapshot is the externally visible connection state.
type Snapshot struct {
	Status   Status
	Attempts int
}

// Supervisor drives reconnection for a single transport session. The connect
// function must be safe to call repeatedly; its failures surface as close
// events from the transport, not as connect errors here.
type Supervisor struct {
	mu       sync.Mutex
	status   Status
	attempts int
	connect  func() error
	timer    *time.Timer
	// after is swapped in tests to observe scheduling without sleeping.
	after func(d time.Duration, fn func()) *time.Timer
}

func New(connect func() error) *Supervisor {
	return &Supervisor{
		status:  StatusDisconnected,
		connect: connect,
		after:   time.AfterFunc,
	}
}

// Start requests the initial connection.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.status == StatusLoggedOut {
		s.mu.Unlock()
		return
	}
	s.status = StatusConnecting
	s.mu.Unlock()
	s.dial()
}

// HandleOpen records a successful connection and resets the failure count.
func (s *Supervisor) HandleOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusConnected
	s.attempts = 0
}

// HandleClose reacts to the transport closing. A retryable close schedules
// the next attempt; a terminal close (logged out) parks the supervisor until
// credentials are re-provisioned out of band.
func (s *Supervisor) HandleClose(retryable bool) {
	s.mu.Lock()
	if s.status == StatusLoggedOut {
		s.mu.Unlock()
		return
	}
	if !retryable {
		s.status = StatusLoggedOut
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()
		log.Printf("[supervisor] logged out, auto-reconnect disabled")
		return
	}

	s.attempts++
	s.status = StatusConnecting
	delay := ShortDelay
	if s.attempts > ShortDelayLimit {
		delay = LongDelay
	}
	attempts := s.attempts
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.after(delay, s.dial)
	s.mu.Unlock()

	log.Printf("[supervisor] connection closed, retry %d in %s", attempts, delay)
}

func (s *Supervisor) dial() {
	s.mu.Lock()
	if s.status == StatusLoggedOut {
		s.mu.Unlock()
		return
	}
	s.status = StatusConnecting
	connect := s.connect
	s.mu.Unlock()

	if err := connect(); err != nil {
		// Treated like a recoverable close so backoff still applies.
		log.Printf("[supervisor] connect failed: %v", err)
		s.HandleClose(true)
	}
}

// Stop cancels any pending reconnection attempt.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// State returns the current status and attempt count.
func (s *Supervisor) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Status: s.status, Attempts: s.attempts}
}
