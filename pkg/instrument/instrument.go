// Package instrument provides optional observability for lattice graphs
// and stores: Prometheus metrics and OpenTelemetry traces built on the
// cell.Hooks surface and the store listener API. The reactive core does not
// depend on this package; a graph without hooks pays nothing.
//
// Hooks from several sources compose with Merge:
//
//	metrics, _ := instrument.Prometheus()
//	g := cell.NewGraph(cell.WithHooks(instrument.Merge(
//	    metrics,
//	    instrument.OpenTelemetry(),
//	)))
package instrument

import (
	"time"

	"github.com/lattice-dev/lattice/pkg/cell"
)

// Merge combines several hook sets into one that fans each event out to
// every non-nil receiver, in argument order.
func Merge(hooks ...cell.Hooks) cell.Hooks {
	var out cell.Hooks
	for _, h := range hooks {
		out.OnCellSet = chainCellSet(out.OnCellSet, h.OnCellSet)
		out.OnTrack = chainTrack(out.OnTrack, h.OnTrack)
		out.OnTrigger = chainTrigger(out.OnTrigger, h.OnTrigger)
		out.OnEffectRun = chainEffectRun(out.OnEffectRun, h.OnEffectRun)
		out.OnEffectStop = chainEffectStop(out.OnEffectStop, h.OnEffectStop)
	}
	return out
}

func chainCellSet(a, b func(uint64, bool)) func(uint64, bool) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(cellID uint64, changed bool) {
		a(cellID, changed)
		b(cellID, changed)
	}
}

func chainTrack(a, b func(uint64, uint64, string)) func(uint64, uint64, string) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(effectID, targetID uint64, key string) {
		a(effectID, targetID, key)
		b(effectID, targetID, key)
	}
}

func chainTrigger(a, b func(uint64, string, int)) func(uint64, string, int) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(targetID uint64, key string, fanout int) {
		a(targetID, key, fanout)
		b(targetID, key, fanout)
	}
}

func chainEffectRun(a, b func(uint64, time.Duration)) func(uint64, time.Duration) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(effectID uint64, d time.Duration) {
		a(effectID, d)
		b(effectID, d)
	}
}

func chainEffectStop(a, b func(uint64)) func(uint64) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(effectID uint64) {
		a(effectID)
		b(effectID)
	}
}
