package gpio

import (
	"errors"
	"testing"
)

func TestFakeLineSet(t *testing.T) {
	f := NewFakeLine()

	if f.On {
		t.Error("should start off")
	}

	if err := f.Set(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.On {
		t.Error("expected line on after Set(true)")
	}

	if err := f.Set(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.On {
		t.Error("expected line off after Set(false)")
	}

	if len(f.History) != 2 || f.History[0] != true || f.History[1] != false {
		t.Errorf("history: expected [true false], got %v", f.History)
	}
}

func TestFakeLinePulses(t *testing.T) {
	f := NewFakeLine()
	for _, on := range []bool{true, false, true, true, false, true, false} {
		f.Set(on)
	}

	if got := f.Pulses(); got != 3 {
		t.Errorf("expected 3 pulses, got %d", got)
	}
}

func TestFakeLineError(t *testing.T) {
	f := NewFakeLine()
	f.SetError = errors.New("simulated error")

	err := f.Set(true)
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if f.On {
		t.Error("level should not change on error")
	}
	if len(f.History) != 0 {
		t.Errorf("expected empty history, got %v", f.History)
	}
}

func TestFakeLineClose(t *testing.T) {
	f := NewFakeLine()
	f.Set(true)

	if f.Closed {
		t.Error("should not be closed initially")
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if f.On {
		t.Error("line should be off after Close()")
	}
}

func TestFakeLineReset(t *testing.T) {
	f := NewFakeLine()
	f.Set(true)
	f.Close()

	f.Reset()

	if f.On || f.Closed || f.History != nil {
		t.Errorf("after reset: got %+v", f)
	}
}
