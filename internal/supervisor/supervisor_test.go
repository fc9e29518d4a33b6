package supervisor

import (
	"testing"
	"time"
)

// fakeScheduler records requested delays and lets tests fire callbacks
// manually instead of sleeping.
type fakeScheduler struct {
	delays  []time.Duration
	pending func()
}

func (f *fakeScheduler) after(d time.Duration, fn func()) *time.Timer {
	f.delays = append(f.delays, d)
	f.pending = fn
	return time.NewTimer(time.Hour) // never fires on its own
}

func newTestSupervisor(connect func() error) (*Supervisor, *fakeScheduler) {
	s := New(connect)
	sched := &fakeScheduler{}
	s.after = sched.after
	return s, sched
}

func TestSupervisor_OpenResetsAttempts(t *testing.T) {
	s, _ := newTestSupervisor(func() error { return nil })

	s.HandleClose(true)
	s.HandleClose(true)
	if got := s.State().Attempts; got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}

	s.HandleOpen()
	st := s.State()
	if st.Status != StatusConnected {
		t.Errorf("status = %s, want connected", st.Status)
	}
	if st.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 after open", st.Attempts)
	}
}

func TestSupervisor_BackoffCeiling(t *testing.T) {
	s, sched := newTestSupervisor(func() error { return nil })

	// 51 retryable closes in a row: the first 50 schedule the short delay,
	// the 51st crosses the limit and schedules the long delay.
	for i := 0; i < ShortDelayLimit+1; i++ {
		s.HandleClose(true)
	}

	if len(sched.delays) != ShortDelayLimit+1 {
		t.Fatalf("scheduled %d retries, want %d", len(sched.delays), ShortDelayLimit+1)
	}
	for i := 0; i < ShortDelayLimit; i++ {
		if sched.delays[i] != ShortDelay {
			t.Fatalf("retry %d delay = %s, want %s", i+1, sched.delays[i], ShortDelay)
		}
	}
	if last := sched.delays[ShortDelayLimit]; last != LongDelay {
		t.Errorf("retry %d delay = %s, want %s", ShortDelayLimit+1, last, LongDelay)
	}
}

func TestSupervisor_LoggedOutIsTerminal(t *testing.T) {
	connects := 0
	s, sched := newTestSupervisor(func() error {
		connects++
		return nil
	})

	s.HandleClose(false)
	if st := s.State(); st.Status != StatusLoggedOut {
		t.Fatalf("status = %s, want logged_out", st.Status)
	}

	// Neither further closes nor Start revive a logged-out supervisor.
	s.HandleClose(true)
	s.Start()
	if len(sched.delays) != 0 {
		t.Errorf("scheduled %d retries after logout, want 0", len(sched.delays))
	}
	if connects != 0 {
		t.Errorf("connect called %d times after logout, want 0", connects)
	}
	if st := s.State(); st.Status != StatusLoggedOut {
		t.Errorf("status = %s, want logged_out", st.Status)
	}
}

func TestSupervisor_ScheduledRetryDials(t *testing.T) {
	connects := 0
	s, sched := newTestSupervisor(func() error {
		connects++
		return nil
	})

	s.HandleClose(true)
	if sched.pending == nil {
		t.Fatal("no retry scheduled")
	}
	sched.pending()

	if connects != 1 {
		t.Errorf("connect called %d times, want 1", connects)
	}
	if st := s.State(); st.Status != StatusConnecting {
		t.Errorf("status = %s, want connecting until open event", st.Status)
	}
}

func TestSupervisor_StartDialsImmediately(t *testing.T) {
	connects := 0
	s, _ := newTestSupervisor(func() error {
		connects++
		return nil
	})

	s.Start()
	if connects != 1 {
		t.Errorf("connect called %d times, want 1", connects)
	}
	if st := s.State(); st.Status != StatusConnecting {
		t.Errorf("status = %s, want connecting", st.Status)
	}
}
