package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPhase_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to Phase
		want     bool
	}{
		{PhasePlayingLit, PhasePlayingDark, true},
		{PhasePlayingDark, PhasePlayingLit, false},
		{PhasePlayingLit, PhaseVoting, true},
		{PhasePlayingDark, PhaseVoting, true},
		{PhaseVoting, PhasePlayingLit, true},
		{PhaseVoting, PhasePlayingDark, true},
		{PhaseVoting, PhaseVoting, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.want, got)
		}
	}
}

func TestPhase_TextRoundTrip(t *testing.T) {
	data, err := json.Marshal(struct {
		P Phase `json:"p"`
	}{PhasePlayingDark})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"p":"playing_dark"}` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var out struct {
		P Phase `json:"p"`
	}
	if err := json.Unmarshal([]byte(`{"p":"voting"}`), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.P != PhaseVoting {
		t.Errorf("Expected voting, got %s", out.P)
	}

	if err := json.Unmarshal([]byte(`{"p":"lobby"}`), &out); err == nil {
		t.Error("Expected an error for an unknown phase")
	}
}

func TestSessionState_Validate(t *testing.T) {
	deadline := time.Unix(1000, 0)

	if err := (SessionState{Phase: PhasePlayingLit}).Validate(); err != nil {
		t.Errorf("lit without deadline should be valid: %v", err)
	}
	if err := (SessionState{Phase: PhaseVoting, Deadline: deadline}).Validate(); err != nil {
		t.Errorf("voting with deadline should be valid: %v", err)
	}
	if err := (SessionState{Phase: PhaseVoting}).Validate(); err != ErrInvalidState {
		t.Errorf("voting without deadline should be invalid, got %v", err)
	}
	if err := (SessionState{Phase: PhasePlayingDark, Deadline: deadline}).Validate(); err != ErrInvalidState {
		t.Errorf("dark with deadline should be invalid, got %v", err)
	}
}
