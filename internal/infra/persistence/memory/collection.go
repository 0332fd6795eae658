package memory

import (
	"slices"

	"slmcontrol/pkg/domain"
)

// collection is an id-keyed map that remembers insertion order. Replacing an
// existing id keeps its original position.
type collection[T any] struct {
	items map[domain.EntityID]*T
	order []domain.EntityID
}

func newCollection[T any]() *collection[T] {
	return &collection[T]{items: make(map[domain.EntityID]*T)}
}

func (c *collection[T]) get(id domain.EntityID) (*T, bool) {
	item, ok := c.items[id]
	return item, ok
}

// put stores item under id and returns the document it replaced, if any.
func (c *collection[T]) put(id domain.EntityID, item *T) (*T, bool) {
	previous, ok := c.items[id]
	if !ok {
		c.order = append(c.order, id)
	}
	c.items[id] = item
	return previous, ok
}

func (c *collection[T]) remove(id domain.EntityID) (*T, bool) {
	item, ok := c.items[id]
	if !ok {
		return nil, false
	}
	delete(c.items, id)
	if idx := slices.Index(c.order, id); idx >= 0 {
		c.order = slices.Delete(c.order, idx, idx+1)
	}
	return item, true
}

// each visits items in insertion order until fn returns false.
func (c *collection[T]) each(fn func(domain.EntityID, *T) bool) {
	for _, id := range c.order {
		if !fn(id, c.items[id]) {
			return
		}
	}
}

func (c *collection[T]) first(match func(*T) bool) (*T, bool) {
	var found *T
	c.each(func(_ domain.EntityID, item *T) bool {
		if match(item) {
			found = item
			return false
		}
		return true
	})
	return found, found != nil
}

func (c *collection[T]) list() []*T {
	out := make([]*T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *collection[T]) len() int {
	return len(c.order)
}
