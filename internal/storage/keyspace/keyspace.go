// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keyspace maps keys to value objects for one logical database.
//
// Readers look keys up lock-free from any thread; every structural mutation
// (insert, overwrite, remove, expiry changes) happens on the single writer
// thread and is serialized by construction. The maps themselves are
// xsync.MapOf instances, so a concurrent reader observes either the old or
// the new object for a key, never a partial state.
//
// Expiry is lazy on the read path: an expired key reads as missing but is
// only physically removed by the writer (on LookupWrite) or by an external
// sweep collaborator.
package keyspace

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/kzhao/qkv/internal/storage/object"
)

// Keyspace is a key → *object.Object mapping with millisecond expiry.
type Keyspace struct {
	id      int
	data    *xsync.MapOf[string, *object.Object]
	expires *xsync.MapOf[string, int64]
	now     func() int64 // milliseconds since epoch
}

// Option configures a Keyspace.
type Option func(*Keyspace)

// WithClock overrides the expiry clock. Tests use this to move time.
func WithClock(now func() int64) Option {
	return func(ks *Keyspace) { ks.now = now }
}

// New creates an empty keyspace with the given database id.
func New(id int, opts ...Option) *Keyspace {
	ks := &Keyspace{
		id:      id,
		data:    xsync.NewMapOf[string, *object.Object](),
		expires: xsync.NewMapOf[string, int64](),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(ks)
	}
	return ks
}

// ID returns the database id, used in keyspace event notifications.
func (ks *Keyspace) ID() int {
	return ks.id
}

// Len returns the number of stored keys, including not-yet-swept expired
// ones.
func (ks *Keyspace) Len() int {
	return ks.data.Size()
}

func (ks *Keyspace) expired(key string) bool {
	at, ok := ks.expires.Load(key)
	return ok && at <= ks.now()
}

// LookupRead returns the object for key, or nil when the key is missing or
// expired. Callable from any thread. Dereferencing the returned object's
// buffer additionally requires an RCU guard held across the call and the
// use of the buffer; a pure existence or kind check does not.
func (ks *Keyspace) LookupRead(key string) *object.Object {
	if ks.expired(key) {
		// Readers must not mutate the maps; the writer or the expiry
		// sweep deletes the entry later.
		return nil
	}
	o, ok := ks.data.Load(key)
	if !ok {
		return nil
	}
	return o
}

// LookupWrite returns the object for key for mutation, deleting the entry
// first when it has expired. Writer-only.
func (ks *Keyspace) LookupWrite(key string) *object.Object {
	if ks.expired(key) {
		ks.Remove(key)
		return nil
	}
	o, ok := ks.data.Load(key)
	if !ok {
		return nil
	}
	return o
}

// Insert stores a new key. The keyspace takes over the caller's reference.
// Writer-only; the key must not already exist.
func (ks *Keyspace) Insert(key string, o *object.Object) {
	ks.data.Store(key, o)
}

// Overwrite replaces the value of an existing key, dropping the keyspace's
// reference on the old object. Any expiry on the key is kept, matching the
// semantics of value replacement as opposed to a fresh SET. Writer-only.
func (ks *Keyspace) Overwrite(key string, o *object.Object) {
	if old, ok := ks.data.Load(key); ok && old != o {
		defer old.DecrRef()
	}
	ks.data.Store(key, o)
}

// SetValue is insert-or-overwrite plus expiry removal: the semantics of a
// plain SET, which leaves the key persistent. Writer-only.
func (ks *Keyspace) SetValue(key string, o *object.Object) {
	if old, ok := ks.data.Load(key); ok && old != o {
		defer old.DecrRef()
	}
	ks.data.Store(key, o)
	ks.expires.Delete(key)
}

// Remove deletes a key and its expiry, dropping the keyspace's reference.
// Writer-only. Returns false when the key did not exist.
func (ks *Keyspace) Remove(key string) bool {
	o, ok := ks.data.LoadAndDelete(key)
	ks.expires.Delete(key)
	if !ok {
		return false
	}
	o.DecrRef()
	return true
}

// SetExpire sets an absolute expiry in milliseconds for an existing key.
// Writer-only.
func (ks *Keyspace) SetExpire(key string, atMillis int64) {
	if _, ok := ks.data.Load(key); !ok {
		return
	}
	ks.expires.Store(key, atMillis)
}

// ClearExpire makes a key persistent again. Writer-only.
func (ks *Keyspace) ClearExpire(key string) {
	ks.expires.Delete(key)
}

// ExpireAt returns the absolute expiry of a key in milliseconds. Callable
// from any thread.
func (ks *Keyspace) ExpireAt(key string) (int64, bool) {
	return ks.expires.Load(key)
}

// TTLMillis returns the remaining lifetime of key in milliseconds:
// -2 when the key is missing or already expired, -1 when it has no expiry.
// Callable from any thread.
func (ks *Keyspace) TTLMillis(key string) int64 {
	if ks.LookupRead(key) == nil {
		return -2
	}
	at, ok := ks.expires.Load(key)
	if !ok {
		return -1
	}
	rem := at - ks.now()
	if rem < 0 {
		return -2
	}
	return rem
}

// Now returns the keyspace's current clock reading in milliseconds.
func (ks *Keyspace) Now() int64 {
	return ks.now()
}
