package docdex

import (
	"fmt"
	"iter"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
)

// Cursor iterates over query or pipeline results. A Cursor is not safe for
// concurrent use. Close it when abandoning iteration early.
type Cursor struct {
	next    func() (*domdoc.Document, error, bool)
	stop    func()
	current *domdoc.Document
	err     error
	done    bool
}

func newCursor(s aggregation.Stream) *Cursor {
	next, stop := iter.Pull2(s)
	return &Cursor{next: next, stop: stop}
}

// Next advances to the next result. It returns false when results are
// exhausted or an error occurred; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	d, err, ok := c.next()
	if !ok || err != nil {
		c.err = err
		c.current = nil
		c.Close()
		return false
	}
	c.current = d
	return true
}

// Document returns the current result.
func (c *Cursor) Document() D {
	return fromDocument(c.current)
}

// Decode copies the current result into dst.
func (c *Cursor) Decode(dst any) error {
	if c.current == nil {
		return fmt.Errorf("cursor has no current document: %w", ErrDocumentNotFound)
	}
	return decodeTo(domdoc.Doc(c.current), dst)
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.err }

// All drains the cursor.
func (c *Cursor) All() ([]D, error) {
	defer c.Close()
	var out []D
	for c.Next() {
		out = append(out, c.Document())
	}
	if c.err != nil {
		return nil, c.err
	}
	return out, nil
}

// Close releases the cursor. It is safe to call more than once.
func (c *Cursor) Close() {
	if c.done {
		return
	}
	c.done = true
	c.stop()
}
