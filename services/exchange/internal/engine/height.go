package engine

import "time"

// HeightProvider supplies the current ledger height. Expiry checks and trade
// timestamps observe this value; injecting it keeps the core deterministic
// under test.
type HeightProvider interface {
	Height() uint64
}

// IntervalHeight derives the current height from wall-clock time elapsed since
// a genesis instant, one height unit per interval.
type IntervalHeight struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

func NewIntervalHeight(genesis time.Time, interval time.Duration) *IntervalHeight {
	if interval <= 0 {
		interval = time.Second
	}
	return &IntervalHeight{
		genesis:  genesis,
		interval: interval,
		now:      time.Now,
	}
}

func (h *IntervalHeight) Height() uint64 {
	elapsed := h.now().Sub(h.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / h.interval)
}
