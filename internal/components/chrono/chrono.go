package chrono

import (
	"sync"
	"time"
)

// API is the clock every component reads "now" from. The household-budgeting
// site renders months in Japan time, so the default location is Asia/Tokyo
// regardless of where the process runs.
type API interface {
	Now() time.Time
	Location() *time.Location
}

type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl(timezone string) (StandardImpl, error) {
	if timezone == "" {
		timezone = "Asia/Tokyo"
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl always returns the same instant until Set is called, it exists for tests.
type FixedImpl struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedImpl(now time.Time) *FixedImpl {
	return &FixedImpl{now: now}
}

func (f *FixedImpl) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FixedImpl) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *FixedImpl) Location() *time.Location {
	return f.Now().Location()
}
