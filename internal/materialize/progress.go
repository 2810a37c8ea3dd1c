package materialize

import (
	"sync"
)

// Sink receives coarse progress, 0 to 100. The core writes it and never
// reads it back.
type Sink interface {
	Set(pct int)
}

// reporter clamps and monotonizes progress before it reaches the sink.
// A nil reporter or nil sink is a no-op, so call sites stay unguarded.
type reporter struct {
	sink Sink

	mu   sync.Mutex
	last int
}

func newReporter(sink Sink) *reporter {
	if sink == nil {
		return nil
	}
	return &reporter{sink: sink}
}

func (r *reporter) Set(pct int) {
	if r == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	r.mu.Lock()
	if pct <= r.last {
		r.mu.Unlock()
		return
	}
	r.last = pct
	r.mu.Unlock()
	r.sink.Set(pct)
}
