package testutil

import (
	"testing"
	"time"
)

func TestFakeClock_Advance(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(fixed)

	if got := clock.Now(); !got.Equal(fixed) {
		t.Errorf("Now() = %v, want %v", got, fixed)
	}

	clock.Advance(90 * time.Second)
	want := fixed.Add(90 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Errorf("after Advance(90s), Now() = %v, want %v", got, want)
	}
}

func TestTestContext_HasDeadline(t *testing.T) {
	ctx := TestContext(t)

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("TestContext should have a deadline")
	}
	remaining := time.Until(deadline)
	if remaining <= 0 || remaining > 6*time.Second {
		t.Errorf("deadline should be ~5s from now, got %v", remaining)
	}
}

func TestMustParseUUID_Invalid(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustParseUUID should panic on invalid UUID")
		}
	}()
	MustParseUUID("not-a-uuid")
}

func TestMustJSON(t *testing.T) {
	got := MustJSON(map[string]string{"k": "v"})
	if string(got) != `{"k":"v"}` {
		t.Errorf("MustJSON = %s", got)
	}
}
