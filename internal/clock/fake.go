package clock

import "time"

// FakeClock hands out a programmable instant so tests can pin ledger
// timestamps and step across expiry windows without sleeping.
type FakeClock struct {
	current time.Time
}

// NewFakeClock pins the clock to at, normalized to UTC.
func NewFakeClock(at time.Time) *FakeClock {
	return &FakeClock{current: at.UTC()}
}

func (f *FakeClock) Now() time.Time {
	return f.current
}

// Advance moves the clock by d. Negative durations move it back.
func (f *FakeClock) Advance(d time.Duration) {
	f.current = f.current.Add(d)
}
