package cell

import "time"

// Hooks receives low-level notifications about graph activity. Any field may
// be nil, in which case that event is not reported. Hooks are fixed at graph
// construction via WithHooks and must be safe for concurrent use if the
// graph is shared across goroutines.
//
// Hooks run synchronously on the hot path, outside the graph's locks. They
// must not block and must not panic; reading or writing cells from a hook
// extends the cascade that produced the event.
type Hooks struct {
	// OnCellSet fires after every accepted write attempt on a live cell,
	// whether or not the equality gate let it through.
	OnCellSet func(cellID uint64, changed bool)

	// OnTrack fires when a new dependency edge is recorded. Re-reads of an
	// already tracked cell do not fire it.
	OnTrack func(effectID, targetID uint64, key string)

	// OnTrigger fires when a target's key is triggered, before the
	// subscriber snapshot is replayed. fanout is the snapshot size, which
	// may be zero.
	OnTrigger func(targetID uint64, key string, fanout int)

	// OnEffectRun fires after an effect body returns, with the measured
	// wall-clock duration of the run. It does not fire when the body
	// panics.
	OnEffectRun func(effectID uint64, d time.Duration)

	// OnEffectStop fires once per effect, when Stop first takes hold.
	OnEffectStop func(effectID uint64)
}
