package poll

import "time"

// Clock abstracts time for the poll package. Production code uses
// SystemClock; tests inject a fake so retry delays, attempt timeouts, and
// the interval schedule can be exercised without real waiting.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers the time once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the poll loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock returns the wall-clock implementation backed by the time
// package.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{ticker: time.NewTicker(d)}
}

type systemTicker struct {
	ticker *time.Ticker
}

func (t *systemTicker) C() <-chan time.Time { return t.ticker.C }

func (t *systemTicker) Stop() { t.ticker.Stop() }
