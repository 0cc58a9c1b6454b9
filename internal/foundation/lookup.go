package foundation

import "fmt"

// lookupState discriminates the three outcomes of a keyed lookup.
type lookupState uint8

const (
	lookupFound lookupState = iota
	lookupNotFound
	lookupError
)

// Lookup is a three-way discriminated result for lookups against an external
// source: the key resolved to a value, the source definitively does not hold
// the key, or the lookup itself failed. Absence is a first-class outcome, not
// an error, so callers never compare error kind strings to tell the two apart.
type Lookup[T any] struct {
	state lookupState
	value T
	err   error
}

// Found creates a Lookup holding a resolved value.
func Found[T any](value T) Lookup[T] {
	return Lookup[T]{state: lookupFound, value: value}
}

// NotFound creates a Lookup recording definitive absence.
func NotFound[T any]() Lookup[T] {
	return Lookup[T]{state: lookupNotFound}
}

// LookupErr creates a Lookup recording a failed lookup.
func LookupErr[T any](err error) Lookup[T] {
	return Lookup[T]{state: lookupError, err: err}
}

// IsFound returns true if the lookup resolved to a value.
func (l Lookup[T]) IsFound() bool { return l.state == lookupFound }

// IsNotFound returns true if the source definitively does not hold the key.
func (l Lookup[T]) IsNotFound() bool { return l.state == lookupNotFound }

// IsError returns true if the lookup itself failed.
func (l Lookup[T]) IsError() bool { return l.state == lookupError }

// Value returns the resolved value, panicking unless IsFound.
func (l Lookup[T]) Value() T {
	if l.state != lookupFound {
		panic(fmt.Sprintf("called Value on %v lookup", l.state))
	}
	return l.value
}

// Err returns the lookup failure, or nil for the Found and NotFound cases.
func (l Lookup[T]) Err() error { return l.err }

// ToOption collapses Found into Some and both other cases into None.
func (l Lookup[T]) ToOption() Option[T] {
	if l.state == lookupFound {
		return Some(l.value)
	}
	return None[T]()
}

// Match executes exactly one of the three handlers.
func (l Lookup[T]) Match(onFound func(T), onNotFound func(), onErr func(error)) {
	switch l.state {
	case lookupFound:
		onFound(l.value)
	case lookupNotFound:
		onNotFound()
	case lookupError:
		onErr(l.err)
	}
}
