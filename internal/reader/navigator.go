package reader

// Navigator is the bounded current-page index. Moves outside
// [0, total-1] are refused and leave the index unchanged.
type Navigator struct {
	current int
	total   int
}

// NewNavigator creates a navigator at page 0
func NewNavigator(total int) *Navigator {
	if total < 0 {
		total = 0
	}
	return &Navigator{total: total}
}

// Current returns the displayed page index
func (n *Navigator) Current() int {
	return n.current
}

// Total returns the page count
func (n *Navigator) Total() int {
	return n.total
}

// HasPrev reports whether a previous page exists
func (n *Navigator) HasPrev() bool {
	return n.current > 0
}

// HasNext reports whether a next page exists
func (n *Navigator) HasNext() bool {
	return n.current < n.total-1
}

// Next moves forward one page
func (n *Navigator) Next() bool {
	if !n.HasNext() {
		return false
	}
	n.current++
	return true
}

// Prev moves back one page
func (n *Navigator) Prev() bool {
	if !n.HasPrev() {
		return false
	}
	n.current--
	return true
}

// Goto jumps to page i
func (n *Navigator) Goto(i int) bool {
	if i < 0 || i >= n.total {
		return false
	}
	n.current = i
	return true
}
