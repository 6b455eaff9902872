// Package scrubber removes line terminators from streamed HTML while
// leaving <pre> regions untouched. A Context carries the scanner state
// between chunks, so a tag may straddle any chunk boundary.
package scrubber

// State is the high-level scanner state.
type State uint8

const (
	// StateText strips '\r' and '\n' and watches for "<pre".
	StateText State = iota
	// StatePre copies every byte and watches for "</pre".
	StatePre
	// StateAbort copies every byte until the response ends.
	StateAbort
)

func (s State) String() string {
	switch s {
	case StateText:
		return "text"
	case StatePre:
		return "pre"
	case StateAbort:
		return "abort"
	default:
		return "unknown"
	}
}

const (
	openTag  = "<pre"
	closeTag = "</pre"
)

// Options tunes tag recognition.
type Options struct {
	// PrefixTags treats any "<pre..." prefix as an opener and any
	// "</pre..." prefix as a closer, so "<preamble>" opens a region.
	// When false, the byte after the tag name must be '>', '/' or
	// whitespace.
	PrefixTags bool
}

// Context is the per-response scanner state. It is not safe for
// concurrent use; each response owns exactly one.
type Context struct {
	opts    Options
	state   State
	matched int // bytes of the current sentinel seen so far
}

// NewContext returns a Context in StateText.
func NewContext(opts Options) *Context {
	return &Context{opts: opts}
}

// State reports the current high-level state.
func (c *Context) State() State { return c.state }

// Abort switches the context into StateAbort. Every later byte is
// passed through verbatim.
func (c *Context) Abort() {
	c.state = StateAbort
	c.matched = 0
}

// Reset returns the context to the start-of-response state.
func (c *Context) Reset() {
	c.state = StateText
	c.matched = 0
}

// Scrub compacts p in place and returns the number of bytes kept; the
// caller continues with p[:n]. Kept bytes never move forward, so the
// write cursor cannot overtake the read cursor.
func (c *Context) Scrub(p []byte) int {
	w := 0
	for _, b := range p {
		if c.keep(b) {
			p[w] = b
			w++
		}
	}
	return w
}

// keep advances the machine by one byte and reports whether the byte
// is emitted.
func (c *Context) keep(b byte) bool {
	switch c.state {
	case StateText:
		return c.text(b)
	case StatePre:
		return c.pre(b)
	default:
		return true
	}
}

func (c *Context) text(b byte) bool {
	switch {
	case c.matched == len(openTag):
		// "<pre" seen, waiting for the delimiter.
		c.matched = 0
		if isTagDelim(b) {
			c.state = StatePre
			return true
		}
	case c.matched > 0 && foldEq(b, openTag[c.matched]):
		c.matched++
		if c.matched == len(openTag) && c.opts.PrefixTags {
			c.state = StatePre
			c.matched = 0
		}
		return true
	}

	c.matched = 0
	switch b {
	case '\r', '\n':
		return false
	case '<':
		c.matched = 1
	}
	return true
}

func (c *Context) pre(b byte) bool {
	switch {
	case c.matched == len(closeTag):
		c.matched = 0
		if isTagDelim(b) {
			// The delimiter belongs to the region, even a newline.
			c.state = StateText
			return true
		}
	case c.matched > 0 && foldEq(b, closeTag[c.matched]):
		c.matched++
		if c.matched == len(closeTag) && c.opts.PrefixTags {
			c.state = StateText
			c.matched = 0
		}
		return true
	}

	c.matched = 0
	if b == '<' {
		c.matched = 1
	}
	return true
}

// foldEq compares b with a sentinel byte, ignoring ASCII case for
// letters. '<' and '/' compare literally.
func foldEq(b, want byte) bool {
	if b == want {
		return true
	}
	return 'a' <= want && want <= 'z' && b == want-('a'-'A')
}

func isTagDelim(b byte) bool {
	switch b {
	case '>', '/', ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}
