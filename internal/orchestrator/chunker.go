package orchestrator

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// wordChunker re-splits arbitrary deltas so that every emitted chunk ends
// on a word boundary. Trailing partial words are held until more text or
// Flush arrives.
type wordChunker struct {
	pending strings.Builder
	emit    func(string) error
}

func (c *wordChunker) Write(delta string) error {
	c.pending.WriteString(delta)
	buf := c.pending.String()

	cut := strings.LastIndexFunc(buf, unicode.IsSpace)
	if cut < 0 {
		return nil
	}
	_, size := utf8.DecodeRuneInString(buf[cut:])
	cut += size

	out, rest := buf[:cut], buf[cut:]
	c.pending.Reset()
	c.pending.WriteString(rest)
	return c.emit(out)
}

// Flush emits whatever is left.
func (c *wordChunker) Flush() error {
	if c.pending.Len() == 0 {
		return nil
	}
	out := c.pending.String()
	c.pending.Reset()
	return c.emit(out)
}
