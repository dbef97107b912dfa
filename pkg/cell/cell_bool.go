package cell

// BoolCell wraps Cell[bool] with convenience methods for flag-style state.
type BoolCell struct {
	*Cell[bool]
}

// NewBool creates a BoolCell on the given graph with the given initial value.
func NewBool(g *Graph, initial bool) *BoolCell {
	return &BoolCell{New(g, initial)}
}

// Toggle inverts the boolean value.
func (c *BoolCell) Toggle() {
	c.Update(func(b bool) bool { return !b })
}

// SetTrue sets the value to true.
func (c *BoolCell) SetTrue() {
	c.Set(true)
}

// SetFalse sets the value to false.
func (c *BoolCell) SetFalse() {
	c.Set(false)
}
