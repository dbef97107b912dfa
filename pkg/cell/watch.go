package cell

// WatchOption configures a watcher created with Watch or WatchMultiple.
type WatchOption interface {
	isWatchOption()
	applyWatch(cfg *watchConfig)
}

type watchOptionFunc func(*watchConfig)

func (f watchOptionFunc) isWatchOption()              {}
func (f watchOptionFunc) applyWatch(cfg *watchConfig) { f(cfg) }

// watchConfig holds the resolved watch options.
type watchConfig struct {
	immediate bool
	deep      bool
	compare   func(a, b any) bool
}

// Immediate makes the watcher invoke its callback once at creation with the
// current value. The previous-value argument of that first call is the
// zero value (single source) or a converter applied to all-nil values
// (multiple sources); there is no real prior state to report.
func Immediate() WatchOption {
	return watchOptionFunc(func(cfg *watchConfig) {
		cfg.immediate = true
	})
}

// Deep switches the change comparison to structural equality: the callback
// fires iff some reachable leaf of the value differs from the previous one.
// Without it, comparison is plain equality, which for pointers means
// identity.
func Deep() WatchOption {
	return watchOptionFunc(func(cfg *watchConfig) {
		cfg.deep = true
	})
}

// WithComparator overrides the change comparison with a custom equality
// predicate. The callback fires when fn reports the values as not equal.
// Takes precedence over Deep.
func WithComparator(fn func(a, b any) bool) WatchOption {
	return watchOptionFunc(func(cfg *watchConfig) {
		cfg.compare = fn
	})
}

// differs reports whether next and prev count as a change under the
// configured comparison.
func (cfg *watchConfig) differs(next, prev any) bool {
	if cfg.compare != nil {
		return !cfg.compare(next, prev)
	}
	if cfg.deep {
		return !deepEquals(next, prev)
	}
	return !defaultEquals(next, prev)
}

// applyWatchOptions applies the given options and returns the resulting
// config.
func applyWatchOptions(opts []WatchOption) watchConfig {
	var cfg watchConfig
	for _, opt := range opts {
		opt.applyWatch(&cfg)
	}
	return cfg
}

// Watch observes a single cell and invokes fn(newValue, oldValue) whenever
// the observed value changes per the configured comparison. The watcher
// runs once immediately to establish its subscription; that first run only
// invokes fn when the Immediate option is present, and then with the zero
// value of T as oldValue.
//
// The previous value is updated after every run whether or not fn fired, so
// a skipped change (equal under Deep, say) never resurfaces as part of a
// later diff.
//
// Returns the underlying effect; its Stop detaches the watcher for good.
//
// Example:
//
//	stop := cell.Watch(count, func(newV, oldV int) {
//	    fmt.Println(oldV, "->", newV)
//	}, cell.Immediate())
//	defer stop.Stop()
func Watch[T any](c *Cell[T], fn func(newValue, oldValue T), opts ...WatchOption) *Effect {
	cfg := applyWatchOptions(opts)

	// Diff state lives here, in the watcher closure, not on the effect.
	var old T
	first := true

	e := NewEffect(c.graph, func() {
		cur := c.Get()

		if first {
			first = false
			if cfg.immediate {
				var zero T
				fn(cur, zero)
			}
			old = cur
			return
		}

		if cfg.differs(cur, old) {
			fn(cur, old)
		}
		old = cur
	})
	e.Run()
	return e
}

// WatchMultiple observes several cells at once. Every run reads all sources
// in order, converts the value slice with conv, and invokes
// fn(newValue, oldValue) when any single source changed per the configured
// comparison. Sources are compared element-wise; conv runs only when the
// callback actually fires (and once per side on the immediate first call).
//
// With the Immediate option the callback fires at creation as
// fn(conv(currentValues), conv(allNil)), the all-nil slice standing in for
// the nonexistent previous state.
//
// All sources must belong to the same graph; WatchMultiple panics
// otherwise, and on an empty source list.
//
// Example:
//
//	stop := cell.WatchMultiple(
//	    []cell.AnyCell{first, last},
//	    func(vs []any) string { return fmt.Sprint(vs[0], " ", vs[1]) },
//	    func(newV, oldV string) { fmt.Println(oldV, "->", newV) },
//	)
func WatchMultiple[R any](sources []AnyCell, conv func(values []any) R, fn func(newValue, oldValue R), opts ...WatchOption) *Effect {
	if len(sources) == 0 {
		panic("cell: WatchMultiple requires at least one source")
	}
	g := sources[0].ownerGraph()
	for _, s := range sources[1:] {
		if s.ownerGraph() != g {
			panic("cell: WatchMultiple sources belong to different graphs")
		}
	}

	cfg := applyWatchOptions(opts)

	old := make([]any, len(sources))
	first := true

	e := NewEffect(g, func() {
		cur := make([]any, len(sources))
		for i, s := range sources {
			cur[i] = s.GetAny()
		}

		if first {
			first = false
			if cfg.immediate {
				fn(conv(cur), conv(make([]any, len(sources))))
			}
			copy(old, cur)
			return
		}

		changed := false
		for i := range cur {
			if cfg.differs(cur[i], old[i]) {
				changed = true
				break
			}
		}
		if changed {
			// conv gets its own copy: it may retain the slice, and old is
			// overwritten right after.
			prev := make([]any, len(old))
			copy(prev, old)
			fn(conv(cur), conv(prev))
		}
		copy(old, cur)
	})
	e.Run()
	return e
}
