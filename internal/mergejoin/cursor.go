// Package mergejoin associates child rows with parent rows when both are
// sorted by the same key. A Cursor walks a child slice forward only; each
// child is looked at once over the whole pass and nothing is buffered.
package mergejoin

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned by strict cursors when keys go backwards
var ErrOutOfOrder = errors.New("input not sorted")

// Key orders rows by id, then version. Unversioned associations (changeset
// tags and comments) leave Version at zero.
type Key struct {
	ID      int64
	Version int64
}

// Compare returns -1, 0 or +1
func (k Key) Compare(o Key) int {
	switch {
	case k.ID < o.ID:
		return -1
	case k.ID > o.ID:
		return 1
	case k.Version < o.Version:
		return -1
	case k.Version > o.Version:
		return 1
	}
	return 0
}

func (k Key) String() string {
	return fmt.Sprintf("(%d,%d)", k.ID, k.Version)
}

// Cursor is a position in a sorted child sequence
type Cursor[T any] struct {
	items []T
	pos   int
	keyOf func(*T) Key

	strict    bool
	seen      bool
	lastKey   Key // last parent key requested
	lastChild Key // last child key consumed
}

// NewCursor returns a cursor at the start of items
func NewCursor[T any](items []T, keyOf func(*T) Key) *Cursor[T] {
	return &Cursor[T]{items: items, keyOf: keyOf}
}

// SetStrict turns order assertions on or off. Off by default: unsorted
// input is the caller's problem and orphaned children are always skipped.
func (c *Cursor[T]) SetStrict(strict bool) {
	c.strict = strict
}

// Pos returns the number of children consumed so far
func (c *Cursor[T]) Pos() int {
	return c.pos
}

// Done reports whether every child has been consumed
func (c *Cursor[T]) Done() bool {
	return c.pos >= len(c.items)
}

// Collect advances past every child with a key below key, then calls
// visit for each child whose key equals key, in input order. It stops at
// the first larger key, which stays unconsumed for the next parent. An
// error from visit is returned immediately.
func (c *Cursor[T]) Collect(key Key, visit func(*T) error) error {
	if err := c.checkParent(key); err != nil {
		return err
	}
	for c.pos < len(c.items) {
		item := &c.items[c.pos]
		k := c.keyOf(item)
		cmp := k.Compare(key)
		if cmp > 0 {
			return nil
		}
		if err := c.checkChild(k); err != nil {
			return err
		}
		c.pos++
		if cmp == 0 && visit != nil {
			if err := visit(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// Skip consumes the children of key without visiting them
func (c *Cursor[T]) Skip(key Key) error {
	return c.Collect(key, nil)
}

// Count looks ahead and counts the children of key accepted by match,
// without consuming anything
func (c *Cursor[T]) Count(key Key, match func(*T) bool) int {
	n := 0
	for i := c.pos; i < len(c.items); i++ {
		item := &c.items[i]
		cmp := c.keyOf(item).Compare(key)
		if cmp > 0 {
			break
		}
		if cmp == 0 && (match == nil || match(item)) {
			n++
		}
	}
	return n
}

func (c *Cursor[T]) checkParent(key Key) error {
	if !c.strict {
		return nil
	}
	if c.seen && key.Compare(c.lastKey) < 0 {
		return fmt.Errorf("%w: parent key %s after %s", ErrOutOfOrder, key, c.lastKey)
	}
	c.seen = true
	c.lastKey = key
	return nil
}

func (c *Cursor[T]) checkChild(k Key) error {
	if !c.strict {
		return nil
	}
	if c.pos > 0 && k.Compare(c.lastChild) < 0 {
		return fmt.Errorf("%w: child key %s after %s at row %d", ErrOutOfOrder, k, c.lastChild, c.pos)
	}
	c.lastChild = k
	return nil
}
