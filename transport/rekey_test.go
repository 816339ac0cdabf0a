package transport

import "testing"

func TestRekeyCounterThresholds(t *testing.T) {
	var c rekeyCounter
	if c.exceeded() {
		t.Fatal("fresh counter should not be exceeded")
	}

	c.add(RekeyBytesThreshold - 1)
	if c.exceeded() {
		t.Fatal("one byte under threshold should not trip")
	}
	c.add(1)
	if !c.exceeded() {
		t.Fatal("crossing the byte threshold should trip")
	}

	c.reset()
	if c.exceeded() {
		t.Fatal("reset counter should not be exceeded")
	}
	c.packets = RekeyPacketsThreshold - 1
	if c.exceeded() {
		t.Fatal("one packet under threshold should not trip")
	}
	c.add(1)
	if !c.exceeded() {
		t.Fatal("crossing the packet threshold should trip")
	}
}

func TestStateCanSendUserData(t *testing.T) {
	cases := map[State]bool{
		StatePreamble:       false,
		StateKexInit:        false,
		StateKexRun:         false,
		StateNewKeys:        false,
		StateRunning:        true,
		StateRekeyRequested: true,
		StateRekeyRunning:   true,
		StateClosed:         false,
	}
	for s, want := range cases {
		if got := s.CanSendUserData(); got != want {
			t.Errorf("%s.CanSendUserData() = %v, want %v", s, got, want)
		}
	}
}
