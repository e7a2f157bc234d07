// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

// Command is a parsed, validated command descriptor. Each variant carries
// exactly the fields its executor needs, so impossible argument combinations
// (for example SET NX together with XX) cannot be represented at all; the
// parser rejects them before a descriptor exists.
type Command interface {
	// Name returns the canonical command name, used for metrics and
	// keyspace event notifications.
	Name() string

	// Mutates reports whether the command must run on the writer thread.
	Mutates() bool
}

// SetCondition restricts when SET stores its value.
type SetCondition uint8

const (
	// SetAlways stores unconditionally.
	SetAlways SetCondition = iota
	// SetIfAbsent stores only when the key does not exist (NX).
	SetIfAbsent
	// SetIfPresent stores only when the key already exists (XX).
	SetIfPresent
)

// Get reads a key's value.
type Get struct{ Key string }

func (Get) Name() string  { return "get" }
func (Get) Mutates() bool { return false }

// StrLen reports the byte length of a key's value.
type StrLen struct{ Key string }

func (StrLen) Name() string  { return "strlen" }
func (StrLen) Mutates() bool { return false }

// GetRange reads a substring. Negative indexes count from the end.
type GetRange struct {
	Key        string
	Start, End int64
}

func (GetRange) Name() string  { return "getrange" }
func (GetRange) Mutates() bool { return false }

// MGet reads several keys at once; missing keys yield nil entries.
type MGet struct{ Keys []string }

func (MGet) Name() string  { return "mget" }
func (MGet) Mutates() bool { return false }

// Exists counts how many of the given keys exist.
type Exists struct{ Keys []string }

func (Exists) Name() string  { return "exists" }
func (Exists) Mutates() bool { return false }

// TTL reports a key's remaining lifetime. Millis selects millisecond
// resolution (PTTL); otherwise the reply is rounded up to whole seconds.
type TTL struct {
	Key    string
	Millis bool
}

func (c TTL) Name() string {
	if c.Millis {
		return "pttl"
	}
	return "ttl"
}
func (TTL) Mutates() bool { return false }

// Set stores a value. ExpireMillis of zero means no expiry; the parser
// guarantees it is positive otherwise. IntegerReply selects the SETNX-style
// 1/0 reply instead of OK/nil.
type Set struct {
	Key          string
	Value        []byte
	Cond         SetCondition
	ExpireMillis int64
	IntegerReply bool
}

func (c Set) Name() string {
	if c.IntegerReply {
		return "setnx"
	}
	return "set"
}
func (Set) Mutates() bool { return true }

// SetRange overwrites part of a value starting at Offset, zero-padding any
// gap. The parser guarantees Offset is non-negative.
type SetRange struct {
	Key    string
	Offset int64
	Value  []byte
}

func (SetRange) Name() string  { return "setrange" }
func (SetRange) Mutates() bool { return true }

// Append appends bytes to a value, creating the key when missing.
type Append struct {
	Key   string
	Value []byte
}

func (Append) Name() string  { return "append" }
func (Append) Mutates() bool { return true }

// GetSet atomically replaces a value and returns the previous one.
type GetSet struct {
	Key   string
	Value []byte
}

func (GetSet) Name() string  { return "getset" }
func (GetSet) Mutates() bool { return true }

// IncrBy adds Delta to an integer value. INCR, DECR and DECRBY are the same
// descriptor with Delta 1, -1 or negated.
type IncrBy struct {
	Key   string
	Delta int64
	// Verb distinguishes incr/decr/incrby/decrby for metrics and events.
	Verb string
}

func (c IncrBy) Name() string { return c.Verb }
func (IncrBy) Mutates() bool  { return true }

// IncrByFloat adds a float delta to a value.
type IncrByFloat struct {
	Key   string
	Delta float64
}

func (IncrByFloat) Name() string  { return "incrbyfloat" }
func (IncrByFloat) Mutates() bool { return true }

// MSet stores several key/value pairs. With IfAbsent set (MSETNX) the whole
// batch applies only when none of the keys exist.
type MSet struct {
	Pairs    []KV
	IfAbsent bool
}

// KV is one key/value pair of an MSet batch.
type KV struct {
	Key   string
	Value []byte
}

func (c MSet) Name() string {
	if c.IfAbsent {
		return "msetnx"
	}
	return "mset"
}
func (MSet) Mutates() bool { return true }

// Del removes keys, replying with the number actually removed.
type Del struct{ Keys []string }

func (Del) Name() string  { return "del" }
func (Del) Mutates() bool { return true }

// Ping answers with PONG, or echoes Message when one was given.
type Ping struct{ Message []byte }

func (Ping) Name() string  { return "ping" }
func (Ping) Mutates() bool { return false }

// Echo returns its argument.
type Echo struct{ Message []byte }

func (Echo) Name() string  { return "echo" }
func (Echo) Mutates() bool { return false }
