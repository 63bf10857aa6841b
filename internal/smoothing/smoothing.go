// Package smoothing damps per-frame jitter in scalar metric channels.
//
// Each channel is an independent fixed-capacity ring buffer whose output
// is the arithmetic mean of its contents. A channel that receives no
// valid sample for a bounded number of consecutive frames is cleared, so
// smoothing never blends values across a long gap. Boolean channels are
// majority-voted instead of averaged.
package smoothing

// Channel smooths one scalar metric stream. Not safe for concurrent
// use; the merge loop is the only writer.
type Channel struct {
	buf     []float64
	next    int
	count   int
	misses  int
	maxMiss int
}

// NewChannel creates a channel with the given window and staleness
// bound (consecutive invalid frames before the buffer is cleared).
func NewChannel(window, maxMiss int) *Channel {
	return &Channel{
		buf:     make([]float64, window),
		maxMiss: maxMiss,
	}
}

// Push adds a valid sample and returns the smoothed value.
func (c *Channel) Push(v float64) float64 {
	c.misses = 0

	c.buf[c.next] = v
	c.next = (c.next + 1) % len(c.buf)
	if c.count < len(c.buf) {
		c.count++
	}

	var sum float64
	for i := 0; i < c.count; i++ {
		sum += c.buf[i]
	}
	return sum / float64(c.count)
}

// Miss records a frame with no valid sample for this channel. Once the
// staleness bound is exceeded the buffer is cleared, so input resuming
// after a gap is not averaged against pre-gap values.
func (c *Channel) Miss() {
	c.misses++
	if c.misses > c.maxMiss {
		c.Reset()
	}
}

// Last returns the most recent smoothed-window mean and whether the
// channel holds any samples.
func (c *Channel) Last() (float64, bool) {
	if c.count == 0 {
		return 0, false
	}
	var sum float64
	for i := 0; i < c.count; i++ {
		sum += c.buf[i]
	}
	return sum / float64(c.count), true
}

// Reset clears the buffer.
func (c *Channel) Reset() {
	c.next = 0
	c.count = 0
	c.misses = 0
}

// BoolChannel majority-votes a boolean metric over the same window
// model. Averaging a categorical value is meaningless; voting absorbs
// single-frame classification flips.
type BoolChannel struct {
	buf     []bool
	next    int
	count   int
	misses  int
	maxMiss int
}

// NewBoolChannel creates a boolean channel with the given window and
// staleness bound.
func NewBoolChannel(window, maxMiss int) *BoolChannel {
	return &BoolChannel{
		buf:     make([]bool, window),
		maxMiss: maxMiss,
	}
}

// Push adds a sample and returns the majority vote. An exact split
// returns the newest sample.
func (c *BoolChannel) Push(v bool) bool {
	c.misses = 0

	c.buf[c.next] = v
	c.next = (c.next + 1) % len(c.buf)
	if c.count < len(c.buf) {
		c.count++
	}

	trues := 0
	for i := 0; i < c.count; i++ {
		if c.buf[i] {
			trues++
		}
	}
	if trues*2 == c.count {
		return v
	}
	return trues*2 > c.count
}

// Miss records a frame with no valid sample, clearing the buffer once
// the staleness bound is exceeded.
func (c *BoolChannel) Miss() {
	c.misses++
	if c.misses > c.maxMiss {
		c.next = 0
		c.count = 0
		c.misses = 0
	}
}
