// Package lockfreelist provides a concurrent ordered set of comparable keys,
// implemented as a sorted singly-linked list. Three interchangeable variants
// are included: a coarse-grained mutex baseline, a lock-free list without
// memory reclamation, and a lock-free list with hazard-pointer reclamation.
package lockfreelist

import "errors"

// Less reports whether a orders before b. It must define a strict total
// order over the key type.
type Less[K comparable] func(a, b K) bool

// Set is the contract shared by all list variants. Insert, Remove and Find
// are safe for concurrent use; Range, Len and the diagnostic accessors on
// the concrete types require a quiescent list.
type Set[K comparable] interface {
	// Insert adds key to the set. It returns false if the key is already
	// present.
	Insert(key K) bool
	// Remove deletes key from the set. It returns false if the key is
	// absent.
	Remove(key K) bool
	// Find reports whether key is present.
	Find(key K) bool
	// Range calls fn on each live key in ascending order until fn
	// returns false.
	Range(fn func(key K) bool)
	// Len returns the number of live keys.
	Len() int
}

var (
	// ErrTooManyParticipants is the panic value raised when more
	// operations run concurrently than the hazard-pointer table has
	// records for.
	ErrTooManyParticipants = errors.New("lockfreelist: no available hazard pointer records")
	// ErrMalformedList is the panic value raised when a list is used
	// before it was constructed with its New function.
	ErrMalformedList = errors.New("lockfreelist: the list was not init-ed properly")
)
