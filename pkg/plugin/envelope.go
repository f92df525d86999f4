// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
)

// Extraction errors.
var (
	// ErrTypeMismatch is returned when the requested type is not the wrapped type.
	ErrTypeMismatch = errors.New("envelope: type mismatch")
	// ErrShared is returned by Take while another share of the value is alive.
	ErrShared = errors.New("envelope: value is shared")
	// ErrEmpty is returned by Take on a zero or already consumed envelope.
	ErrEmpty = errors.New("envelope: empty")
)

// Envelope carries a message of a type the receiver may not know statically.
//
// The wrapped value lives in a shared cell that records its concrete type.
// Receivers recover the value with As (by copy) or Take (by move); both check
// the recorded type before touching the value.
//
// Plain assignment copies the handle, not the value: every copy observes the
// same cell, and a successful Take empties it for all of them. Use Share to
// create a counted share and Clone to create an independent copy.
//
// Wrapped values must be safe to hand to another goroutine: the envelope may
// travel through commands and subscriptions that run concurrently with the
// host loop.
type Envelope struct {
	c *cell
}

type cell struct {
	typ     reflect.Type
	payload atomic.Pointer[box]
	refs    atomic.Int32
}

type box struct {
	v any
}

// Wrap stores v in a new envelope. When T is an interface type the dynamic
// type of v is recorded, so Wrap[any](m) and Wrap(m) are interchangeable.
func Wrap[T any](v T) Envelope {
	typ := reflect.TypeFor[T]()
	if typ.Kind() == reflect.Interface {
		if dyn := reflect.TypeOf(any(v)); dyn != nil {
			typ = dyn
		}
	}

	c := &cell{typ: typ}
	c.payload.Store(&box{v: any(v)})
	c.refs.Store(1)
	return Envelope{c: c}
}

// As returns the wrapped value if its recorded type is exactly T.
// It never mutates the envelope.
func As[T any](e Envelope) (T, bool) {
	var zero T
	if e.c == nil || e.c.typ != reflect.TypeFor[T]() {
		return zero, false
	}
	b := e.c.payload.Load()
	if b == nil {
		return zero, false
	}
	return unbox[T](b)
}

// Is reports whether the envelope currently holds a value of type T.
func Is[T any](e Envelope) bool {
	_, ok := As[T](e)
	return ok
}

// Take moves the wrapped value out of the envelope.
//
// It succeeds only when the recorded type is exactly T and e holds the only
// share. On success the cell is emptied and *e is reset to the zero Envelope.
// On failure *e is left exactly as it was, so the caller still owns it.
func Take[T any](e *Envelope) (T, error) {
	var zero T
	if e == nil || e.c == nil {
		return zero, ErrEmpty
	}
	c := e.c
	if c.typ != reflect.TypeFor[T]() {
		return zero, fmt.Errorf("%w: have %s, want %s", ErrTypeMismatch, c.typ, reflect.TypeFor[T]())
	}

	if !c.refs.CompareAndSwap(1, 0) {
		if c.refs.Load() <= 0 {
			return zero, ErrEmpty
		}
		return zero, ErrShared
	}

	b := c.payload.Swap(nil)
	*e = Envelope{}
	if b == nil {
		return zero, ErrEmpty
	}
	v, _ := unbox[T](b)
	return v, nil
}

// Share returns a counted share of the same cell. While more than one share
// is alive, Take fails with ErrShared. Sharing an empty envelope returns the
// zero Envelope.
func (e Envelope) Share() Envelope {
	if e.c == nil {
		return Envelope{}
	}
	for {
		n := e.c.refs.Load()
		if n <= 0 {
			return Envelope{}
		}
		if e.c.refs.CompareAndSwap(n, n+1) {
			return e
		}
	}
}

// Release drops the share held by *e and resets it. The value is dropped
// with its last share.
func (e *Envelope) Release() {
	if e == nil || e.c == nil {
		return
	}
	c := e.c
	*e = Envelope{}
	for {
		n := c.refs.Load()
		if n <= 0 {
			return
		}
		if c.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				c.payload.Store(nil)
			}
			return
		}
	}
}

// Clone returns an independent envelope holding an assignment copy of the
// value. Pointers inside the value are copied, not followed.
func (e Envelope) Clone() Envelope {
	if e.c == nil {
		return Envelope{}
	}
	b := e.c.payload.Load()
	if b == nil {
		return Envelope{}
	}
	c := &cell{typ: e.c.typ}
	c.payload.Store(&box{v: b.v})
	c.refs.Store(1)
	return Envelope{c: c}
}

// Type returns the recorded concrete type, or nil for the zero Envelope.
func (e Envelope) Type() reflect.Type {
	if e.c == nil {
		return nil
	}
	return e.c.typ
}

// IsZero reports whether the envelope holds no value.
func (e Envelope) IsZero() bool {
	return e.c == nil || e.c.payload.Load() == nil
}

// Shares returns the number of live shares of the cell.
func (e Envelope) Shares() int {
	if e.c == nil {
		return 0
	}
	return int(e.c.refs.Load())
}

// String implements fmt.Stringer.
func (e Envelope) String() string {
	if e.IsZero() {
		return "Envelope(empty)"
	}
	return "Envelope(" + e.c.typ.String() + ")"
}

func unbox[T any](b *box) (T, bool) {
	if b.v == nil {
		// Recorded type matched an interface type wrapped as nil.
		var zero T
		return zero, true
	}
	v, ok := b.v.(T)
	return v, ok
}
