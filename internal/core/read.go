// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"github.com/kzhao/qkv/internal/concurrency/rcu"
	"github.com/kzhao/qkv/internal/storage/object"
)

// ExecuteRead runs a read-only command on the calling thread using the
// worker's registered reader. One guard spans the whole command, so every
// lookup and buffer access within it observes a consistent grace period.
// The returned reply owns private copies of any value bytes.
func (db *DB) ExecuteRead(r *rcu.Reader, cmd Command) Reply {
	if cmd.Mutates() {
		return ErrReply(ErrSyntax)
	}
	// Connection health commands never touch the keyspace.
	switch c := cmd.(type) {
	case Ping:
		if c.Message == nil {
			return SimpleReply("PONG")
		}
		return BulkReply(c.Message)
	case Echo:
		return BulkReply(c.Message)
	}

	g := r.Lock()
	defer g.Unlock()

	switch c := cmd.(type) {
	case Get:
		return db.readGet(c.Key)
	case StrLen:
		return db.readStrLen(c.Key)
	case GetRange:
		return db.readGetRange(c)
	case MGet:
		elems := make([]Reply, len(c.Keys))
		for i, k := range c.Keys {
			elems[i] = db.readMGetOne(k)
		}
		return ArrayReply(elems)
	case Exists:
		var n int64
		for _, k := range c.Keys {
			if db.ks.LookupRead(k) != nil {
				n++
			}
		}
		return IntReply(n)
	case TTL:
		millis := db.ks.TTLMillis(c.Key)
		if millis < 0 || c.Millis {
			return IntReply(millis)
		}
		// Seconds are reported to the nearest whole second.
		return IntReply((millis + 500) / 1000)
	}
	return ErrReply(ErrSyntax)
}

func (db *DB) readGet(key string) Reply {
	o := db.ks.LookupRead(key)
	if o == nil {
		return NilReply
	}
	if o.Type() != object.TypeString {
		return ErrReply(ErrWrongType)
	}
	return BulkReply(o.ValueCopy())
}

func (db *DB) readStrLen(key string) Reply {
	o := db.ks.LookupRead(key)
	if o == nil {
		return IntReply(0)
	}
	if o.Type() != object.TypeString {
		return ErrReply(ErrWrongType)
	}
	return IntReply(int64(o.Len()))
}

func (db *DB) readGetRange(c GetRange) Reply {
	o := db.ks.LookupRead(c.Key)
	if o == nil {
		return BulkReply([]byte{})
	}
	if o.Type() != object.TypeString {
		return ErrReply(ErrWrongType)
	}
	val := o.ValueCopy()
	start, end := c.Start, c.End
	n := int64(len(val))
	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end = n + end
		if end < 0 {
			end = 0
		}
	}
	if end >= n {
		end = n - 1
	}
	if n == 0 || start > end || start >= n {
		return BulkReply([]byte{})
	}
	return BulkReply(val[start : end+1])
}

// readMGetOne mirrors the original multi-get: non-string values yield nil
// instead of an error so one bad key cannot fail the batch.
func (db *DB) readMGetOne(key string) Reply {
	o := db.ks.LookupRead(key)
	if o == nil || o.Type() != object.TypeString {
		return NilReply
	}
	return BulkReply(o.ValueCopy())
}
