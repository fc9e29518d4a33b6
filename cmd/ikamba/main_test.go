package main

import "testing"

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "onboard": false, "status": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestOnboardCreatesConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := runOnboard(onboardCmd, nil); err != nil {
		t.Fatalf("onboard: %v", err)
	}
	// Second run must be a no-op, not an error.
	if err := runOnboard(onboardCmd, nil); err != nil {
		t.Fatalf("onboard rerun: %v", err)
	}
}
