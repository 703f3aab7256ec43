package party

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrDuplicate = errors.New("party: client already registered")
	ErrFull      = errors.New("party: maximum number of clients reached")
	ErrClosed    = errors.New("party: registration is closed")
	ErrUnknown   = errors.New("party: unknown client")
)

// List is the ordered client list of a session.
//
// A client's index is its registration order, and never changes. Clients
// that drop out or fail a check are added to the dropout set, and keep their
// slot so that the other clients' indices are preserved.
type List struct {
	mtx      sync.RWMutex
	ids      []ID
	index    map[ID]int
	dropouts map[int]struct{}
	capacity int
	closed   bool
}

// NewList returns an empty list accepting at most capacity clients.
func NewList(capacity int) *List {
	return &List{
		index:    make(map[ID]int, capacity),
		dropouts: make(map[int]struct{}),
		capacity: capacity,
	}
}

// Add appends id and returns its index.
func (l *List) Add(id ID) (int, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	switch {
	case l.closed:
		return 0, ErrClosed
	case len(l.ids) >= l.capacity:
		return 0, fmt.Errorf("%w: %d", ErrFull, l.capacity)
	}
	if _, ok := l.index[id]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	l.index[id] = len(l.ids)
	l.ids = append(l.ids, id)
	return len(l.ids) - 1, nil
}

// Close rejects further registrations.
func (l *List) Close() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.closed = true
}

// Index returns the index of id.
func (l *List) Index(id ID) (int, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	return i, nil
}

// ID returns the identity at index i.
func (l *List) ID(i int) ID {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.ids[i]
}

// Len returns the number of registered clients, dropouts included.
func (l *List) Len() int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return len(l.ids)
}

// IDs returns a copy of the list.
func (l *List) IDs() []ID {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return append([]ID(nil), l.ids...)
}

// Drop adds indices to the dropout set. It returns the indices that were not
// already present.
func (l *List) Drop(indices ...int) []int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	var added []int
	for _, i := range indices {
		if i < 0 || i >= len(l.ids) {
			continue
		}
		if _, ok := l.dropouts[i]; !ok {
			l.dropouts[i] = struct{}{}
			added = append(added, i)
		}
	}
	return added
}

// Dropped reports whether index i is in the dropout set.
func (l *List) Dropped(i int) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	_, ok := l.dropouts[i]
	return ok
}

// Dropouts returns the dropout set in increasing order.
func (l *List) Dropouts() []int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	out := make([]int, 0, len(l.dropouts))
	for i := range l.dropouts {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Active returns the indices outside the dropout set, in increasing order.
func (l *List) Active() []int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	out := make([]int, 0, len(l.ids)-len(l.dropouts))
	for i := range l.ids {
		if _, ok := l.dropouts[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}
