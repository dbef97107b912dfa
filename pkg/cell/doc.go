// Package cell provides the reactive core for Lattice.
//
// The reactive system provides fine-grained reactivity where dependencies
// are tracked automatically at runtime. Reading a cell while an effect is
// executing subscribes that effect to the cell's changes; every later write
// that actually changes the value re-runs the effect synchronously, on the
// writer's call stack.
//
// All reactive state hangs off an explicit Graph. Independent graphs are
// fully isolated, so tests, sessions, or subsystems can each own one
// without interfering:
//
//	g := cell.NewGraph()
//
// # Core Types
//
// Cell[T] is a reactive value container:
//
//	count := cell.New(g, 0)
//	value := count.Get()  // Read (subscribes the running effect, if any)
//	count.Set(5)          // Write (notifies listeners and effects if changed)
//	count.Update(func(n int) int { return n + 1 })
//
// Writes are equality-gated: setting a value equal to the current one is a
// silent no-op. Comparison defaults to == for basic comparable types,
// identity for pointers and channels, and reflect.DeepEqual for slices,
// maps, and structs; override it per cell with WithEquals.
//
// Effect is a re-runnable side effect with automatic dependency tracking:
//
//	e := cell.NewEffect(g, func() {
//	    fmt.Println("Count is:", count.Get())
//	})
//	e.Run()  // Establishes dependencies; re-runs on every change to count
//	e.Stop() // Detaches from every cell it ever read
//
// Watch and WatchMultiple build diffing observers on top of Effect:
//
//	stop := cell.Watch(count, func(newV, oldV int) {
//	    fmt.Println(oldV, "->", newV)
//	})
//	defer stop.Stop()
//
// # Update Propagation
//
// Notification is synchronous and unbatched. A Set walks a snapshot of the
// cell's listeners, then a snapshot of its subscribed effects, running each
// to completion before Set returns. Writes performed inside an effect body
// extend the same cascade on the same stack; a cycle that never reaches a
// fixed point under the equality gate will therefore never return. Keeping
// cascades convergent is the caller's responsibility.
//
// The graph keeps a single "currently executing effect" slot, not a stack.
// When an effect's body triggers another effect, the inner run clears the
// slot on exit, so reads made by the outer body after that point are not
// attributed to it. Nested effect execution is unsupported; structure
// effects so that tracked reads happen before any writes.
//
// # Thread Safety
//
// Graph, Cell, and Effect guard their state with mutexes and never hold a
// lock while invoking user code, so listeners and effect bodies may freely
// read and write cells of the same graph. The propagation model itself is
// single-threaded: concurrent writers serialize per cell, and effects run
// on whichever goroutine performed the triggering write.
package cell
