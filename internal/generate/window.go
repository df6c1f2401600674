package generate

// Window is the fixed-length context of the most recent tokens, kept as a
// ring buffer. Pushing into a full window drops the oldest token.
type Window struct {
	buf  []int
	head int // Index of the oldest token
	n    int // Number of tokens held, the write cursor
}

// NewWindow creates an empty window of the given length.
func NewWindow(length int) *Window {
	return &Window{buf: make([]int, length)}
}

// Push appends a token, evicting the oldest one when the window is full.
func (w *Window) Push(id int) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = id
		w.n++
		return
	}
	w.buf[w.head] = id
	w.head = (w.head + 1) % len(w.buf)
}

// Len returns the number of tokens held, in [0, Cap()].
func (w *Window) Len() int {
	return w.n
}

// Cap returns the window length.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Tokens writes the window in order, oldest first, followed by zero padding
// up to Cap(). dst is reused when large enough.
func (w *Window) Tokens(dst []int) []int {
	if cap(dst) < len(w.buf) {
		dst = make([]int, len(w.buf))
	}
	dst = dst[:len(w.buf)]
	for i := range dst {
		if i < w.n {
			dst[i] = w.buf[(w.head+i)%len(w.buf)]
		} else {
			dst[i] = 0
		}
	}
	return dst
}
