package cell

// IntCell wraps Cell[int] with convenience methods for counter-style state.
type IntCell struct {
	*Cell[int]
}

// NewInt creates an IntCell on the given graph with the given initial value.
func NewInt(g *Graph, initial int) *IntCell {
	return &IntCell{New(g, initial)}
}

// Inc increments the value by 1.
func (c *IntCell) Inc() {
	c.Update(func(n int) int { return n + 1 })
}

// Dec decrements the value by 1.
func (c *IntCell) Dec() {
	c.Update(func(n int) int { return n - 1 })
}

// Add adds the given value.
func (c *IntCell) Add(n int) {
	c.Update(func(v int) int { return v + n })
}

// Sub subtracts the given value.
func (c *IntCell) Sub(n int) {
	c.Update(func(v int) int { return v - n })
}
