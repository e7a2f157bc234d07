// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package object implements the reference-counted value container stored in
// the keyspace.
//
// An Object is either an inline 64-bit integer or a byte buffer. The buffer
// pointer is an RCU-published slot: only the writer thread replaces it, and
// any other thread dereferencing it must hold an RCU read guard. The integer
// payload is stored inline and replaced with a single atomic store, so it
// needs no buffer reclamation.
//
// Objects whose reference count exceeds one are shared and must never be
// mutated in place; callers obtain a private copy first (copy-on-write).
// Reference counts move with ownership: a thread that wants to hand a value
// to another thread hands over a duplicate, never a shared pointer, unless
// the transfer itself is a synchronization point.
package object

import (
	"math"
	"strconv"
	"sync/atomic"

	"github.com/kzhao/qkv/internal/concurrency/rcu"
)

// Type is the user-visible value type. The string family lives here; other
// families belong to out-of-scope command tables but still share the
// keyspace, so the type tag is what typed WrongType errors key on.
type Type uint8

const (
	TypeString Type = iota
	TypeList
	TypeHash
	TypeSet
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeHash:
		return "hash"
	case TypeSet:
		return "set"
	}
	return "unknown"
}

// Kind discriminates the payload encoding of a string-typed object:
// KindInt objects hold the scalar inline, KindBytes objects own a buffer.
type Kind uint8

const (
	KindBytes Kind = iota
	KindInt
)

func (k Kind) String() string {
	if k == KindInt {
		return "int"
	}
	return "bytes"
}

// sharedRefs marks objects from the shared-integer table. Their refcount is
// pinned: they are never mutated and never freed.
const sharedRefs = math.MaxInt32

// Object is the unit of RCU-guarded mutation.
type Object struct {
	typ  Type
	kind Kind
	refs atomic.Int32
	num  atomic.Int64           // payload when kind == KindInt
	buf  atomic.Pointer[[]byte] // payload when kind == KindBytes
}

// NewBytes creates an unshared string object taking ownership of b.
func NewBytes(b []byte) *Object {
	o := &Object{typ: TypeString, kind: KindBytes}
	o.refs.Store(1)
	o.buf.Store(&b)
	return o
}

// NewInt creates an unshared integer-encoded string object.
func NewInt(n int64) *Object {
	o := &Object{typ: TypeString, kind: KindInt}
	o.refs.Store(1)
	o.num.Store(n)
	return o
}

// NewOfType creates an empty unshared object of a non-string type. The
// string command family only ever type-checks such objects; their payloads
// belong to other command tables.
func NewOfType(t Type) *Object {
	o := &Object{typ: t, kind: KindBytes}
	o.refs.Store(1)
	return o
}

// Type returns the user-visible value type. Safe without a guard: the type
// of an object never changes after creation.
func (o *Object) Type() Type {
	return o.typ
}

// Kind returns the payload encoding tag. Safe without a guard: the kind of
// an object never changes after creation.
func (o *Object) Kind() Kind {
	return o.kind
}

// IsShared reports whether more than one reference exists, which forbids
// in-place mutation.
func (o *Object) IsShared() bool {
	return o.refs.Load() > 1
}

// IncrRef takes an additional reference.
func (o *Object) IncrRef() {
	if o.refs.Load() == sharedRefs {
		return
	}
	o.refs.Add(1)
}

// DecrRef drops a reference. Dropping to zero only records that no owner
// remains; the payload stays intact until the garbage collector reclaims it,
// so a reader that obtained the object under a still-open guard keeps a
// valid view.
func (o *Object) DecrRef() {
	if o.refs.Load() == sharedRefs {
		return
	}
	if o.refs.Add(-1) < 0 {
		panic("object: refcount below zero")
	}
}

// RefCount is exposed for tests and introspection.
func (o *Object) RefCount() int32 {
	return o.refs.Load()
}

// Int returns the inline scalar. Valid only for KindInt objects.
func (o *Object) Int() (int64, bool) {
	if o.kind != KindInt {
		return 0, false
	}
	return o.num.Load(), true
}

// SetInt replaces the inline scalar with a single published store.
// Writer-only, and only on unshared objects.
func (o *Object) SetInt(n int64) {
	o.num.Store(n)
}

// Bytes returns the current buffer of a KindBytes object. The caller must
// hold an RCU guard for as long as it uses the result; the writer may
// publish a replacement at any time.
func (o *Object) Bytes() []byte {
	if o.kind != KindBytes {
		return nil
	}
	p := rcu.Dereference(&o.buf)
	if p == nil {
		return nil
	}
	return *p
}

// Len returns the byte length of the value as a string: the buffer length
// for KindBytes, the decimal width for KindInt. Requires a guard for
// KindBytes objects unless called from the writer.
func (o *Object) Len() int {
	if o.kind == KindInt {
		return len(strconv.FormatInt(o.num.Load(), 10))
	}
	return len(o.Bytes())
}

// ValueCopy returns a private copy of the value rendered as bytes,
// decoding KindInt objects to their decimal form. Requires a guard for
// KindBytes objects unless called from the writer.
func (o *Object) ValueCopy() []byte {
	if o.kind == KindInt {
		return strconv.AppendInt(nil, o.num.Load(), 10)
	}
	b := o.Bytes()
	dup := make([]byte, len(b))
	copy(dup, b)
	return dup
}

// Dup produces an unshared private copy keeping the original kind. Used to
// move values across the worker/writer boundary without sharing a refcount.
func (o *Object) Dup() *Object {
	if o.kind == KindInt {
		return NewInt(o.num.Load())
	}
	return NewBytes(o.ValueCopy())
}

// ReplaceBuf publishes a replacement buffer and returns the old slot value
// for reclamation after the grace period. Writer-only, KindBytes-only,
// and only on unshared objects.
func (o *Object) ReplaceBuf(b []byte) *[]byte {
	if o.kind != KindBytes {
		panic("object: ReplaceBuf on non-bytes object")
	}
	old := rcu.Dereference(&o.buf)
	rcu.Publish(&o.buf, &b)
	return old
}

// TryParseInt reports whether b is the canonical decimal form of a 64-bit
// integer. Values that do not round-trip (leading zeros, "+5", "-0") are
// rejected so the integer encoding never changes observable bytes.
func TryParseInt(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > 20 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	if strconv.FormatInt(n, 10) != string(b) {
		return 0, false
	}
	return n, true
}

// SharedIntegerCount is the size of the precomputed shared-integer table.
const SharedIntegerCount = 10000

// SharedIntegers is an immutable table of the small non-negative integers.
// It is built once at startup and passed by reference into the executors
// instead of living as an ambient global.
type SharedIntegers struct {
	objs [SharedIntegerCount]*Object
}

// NewSharedIntegers precomputes the table. The objects' refcounts are
// pinned, so handing them out never requires refcount bookkeeping.
func NewSharedIntegers() *SharedIntegers {
	t := &SharedIntegers{}
	for i := range t.objs {
		o := &Object{typ: TypeString, kind: KindInt}
		o.refs.Store(sharedRefs)
		o.num.Store(int64(i))
		t.objs[i] = o
	}
	return t
}

// Get returns the shared object for n when n is in table range.
func (t *SharedIntegers) Get(n int64) (*Object, bool) {
	if t == nil || n < 0 || n >= SharedIntegerCount {
		return nil, false
	}
	return t.objs[n], true
}

// FromInt returns a value object for n, preferring the shared table.
func (t *SharedIntegers) FromInt(n int64) *Object {
	if o, ok := t.Get(n); ok {
		return o
	}
	return NewInt(n)
}
