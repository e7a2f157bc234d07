// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"math"
	"strconv"
	"time"

	"github.com/kzhao/qkv/internal/monitoring/metrics"
	"github.com/kzhao/qkv/internal/storage/object"
)

// asString rejects non-string values before any mutation is applied.
func asString(o *object.Object) error {
	if o != nil && o.Type() != object.TypeString {
		return ErrWrongType
	}
	return nil
}

// publishBytes installs newBuf as key's value. When the current object is a
// private byte buffer the swap happens in place and the displaced buffer is
// recycled after the grace period; a shared or integer-encoded object is
// replaced wholesale instead, since mutating it would be visible through
// other references.
func (db *DB) publishBytes(key string, o *object.Object, newBuf []byte) {
	if o != nil && !o.IsShared() && o.Kind() == object.KindBytes {
		old := o.ReplaceBuf(newBuf)
		start := time.Now()
		db.dom.SynchronizeAndReclaim(func() {
			if old != nil {
				db.bufs.Put(*old)
			}
		})
		metrics.GraceWaitSeconds.Observe(time.Since(start).Seconds())
		return
	}
	if o != nil {
		db.ks.Overwrite(key, object.NewBytes(newBuf))
	} else {
		db.ks.Insert(key, object.NewBytes(newBuf))
	}
}

func (db *DB) execSet(c Set) Reply {
	if err := db.checkLength(int64(len(c.Value))); err != nil {
		return ErrReply(err)
	}
	o := db.ks.LookupWrite(c.Key)
	switch c.Cond {
	case SetIfAbsent:
		if o != nil {
			if c.IntegerReply {
				return IntReply(0)
			}
			return NilReply
		}
	case SetIfPresent:
		if o == nil {
			return NilReply
		}
	}

	db.ks.SetValue(c.Key, object.NewBytes(c.Value))
	if c.ExpireMillis > 0 {
		db.ks.SetExpire(c.Key, db.ks.Now()+c.ExpireMillis)
	}
	db.bump()
	db.notify(c.Key, "set")
	if c.ExpireMillis > 0 {
		db.notify(c.Key, "expire")
	}
	if c.IntegerReply {
		return IntReply(1)
	}
	return OKReply
}

func (db *DB) execGetSet(c GetSet) Reply {
	if err := db.checkLength(int64(len(c.Value))); err != nil {
		return ErrReply(err)
	}
	o := db.ks.LookupWrite(c.Key)
	if err := asString(o); err != nil {
		return ErrReply(err)
	}
	prev := NilReply
	if o != nil {
		prev = BulkReply(o.ValueCopy())
	}
	db.ks.SetValue(c.Key, object.NewBytes(c.Value))
	db.bump()
	db.notify(c.Key, "set")
	return prev
}

func (db *DB) execSetRange(c SetRange) Reply {
	o := db.ks.LookupWrite(c.Key)
	if err := asString(o); err != nil {
		return ErrReply(err)
	}
	if len(c.Value) == 0 {
		if o == nil {
			return IntReply(0)
		}
		return IntReply(int64(o.Len()))
	}
	// Offset+len(Value) can wrap for a hostile offset, so compare against
	// the cap by subtraction instead of summing first.
	if c.Offset > db.cfg.MaxValueBytes-int64(len(c.Value)) {
		return ErrReply(ErrLengthExceeded)
	}
	if o == nil {
		buf := db.bufs.Get(int(c.Offset) + len(c.Value))
		copy(buf[c.Offset:], c.Value)
		db.ks.Insert(c.Key, object.NewBytes(buf))
		db.bump()
		db.notify(c.Key, "setrange")
		return IntReply(int64(len(buf)))
	}

	cur := db.writerBytes(o)
	newLen := len(cur)
	if need := int(c.Offset) + len(c.Value); need > newLen {
		newLen = need
	}
	buf := db.bufs.Get(newLen)
	copy(buf, cur)
	copy(buf[c.Offset:], c.Value)

	db.publishBytes(c.Key, o, buf)
	db.bump()
	db.notify(c.Key, "setrange")
	return IntReply(int64(newLen))
}

func (db *DB) execAppend(c Append) Reply {
	o := db.ks.LookupWrite(c.Key)
	if err := asString(o); err != nil {
		return ErrReply(err)
	}
	if o == nil {
		if err := db.checkLength(int64(len(c.Value))); err != nil {
			return ErrReply(err)
		}
		db.ks.Insert(c.Key, object.NewBytes(c.Value))
		db.bump()
		db.notify(c.Key, "append")
		return IntReply(int64(len(c.Value)))
	}

	cur := db.writerBytes(o)
	if err := db.checkLength(int64(len(cur)) + int64(len(c.Value))); err != nil {
		return ErrReply(err)
	}
	buf := db.bufs.Get(len(cur) + len(c.Value))
	copy(buf, cur)
	copy(buf[len(cur):], c.Value)

	db.publishBytes(c.Key, o, buf)
	db.bump()
	db.notify(c.Key, "append")
	return IntReply(int64(len(buf)))
}

func (db *DB) execIncrBy(c IncrBy) Reply {
	o := db.ks.LookupWrite(c.Key)
	if err := asString(o); err != nil {
		return ErrReply(err)
	}
	var cur int64
	if o != nil {
		n, ok := o.Int()
		if !ok {
			n, ok = object.TryParseInt(db.writerBytes(o))
			if !ok {
				return ErrReply(ErrOutOfRange)
			}
		}
		cur = n
	}
	if (c.Delta > 0 && cur > math.MaxInt64-c.Delta) ||
		(c.Delta < 0 && cur < math.MinInt64-c.Delta) {
		return ErrReply(ErrOverflow)
	}
	val := cur + c.Delta

	// An unshared integer object outside the shared-table range is edited
	// in place with a single atomic store; everything else is replaced so
	// small results alias the shared table.
	if o != nil && !o.IsShared() && o.Kind() == object.KindInt &&
		(val < 0 || val >= object.SharedIntegerCount) {
		o.SetInt(val)
	} else if o != nil {
		db.ks.Overwrite(c.Key, db.shared.FromInt(val))
	} else {
		db.ks.Insert(c.Key, db.shared.FromInt(val))
	}
	db.bump()
	db.notify(c.Key, "incrby")
	return IntReply(val)
}

func (db *DB) execIncrByFloat(c IncrByFloat) Reply {
	o := db.ks.LookupWrite(c.Key)
	if err := asString(o); err != nil {
		return ErrReply(err)
	}
	var cur float64
	if o != nil {
		if n, ok := o.Int(); ok {
			cur = float64(n)
		} else {
			f, err := strconv.ParseFloat(string(db.writerBytes(o)), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return ErrReply(ErrNotAFloat)
			}
			cur = f
		}
	}
	val := cur + c.Delta
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return ErrReply(ErrNotANumber)
	}
	out := strconv.AppendFloat(nil, val, 'f', -1, 64)

	if o != nil {
		db.ks.Overwrite(c.Key, object.NewBytes(out))
	} else {
		db.ks.Insert(c.Key, object.NewBytes(out))
	}
	db.bump()
	db.notify(c.Key, "incrbyfloat")
	return BulkReply(out)
}

func (db *DB) execMSet(c MSet) Reply {
	for _, kv := range c.Pairs {
		if err := db.checkLength(int64(len(kv.Value))); err != nil {
			return ErrReply(err)
		}
	}
	if c.IfAbsent {
		for _, kv := range c.Pairs {
			if db.ks.LookupWrite(kv.Key) != nil {
				return IntReply(0)
			}
		}
	}
	for _, kv := range c.Pairs {
		db.ks.SetValue(kv.Key, object.NewBytes(kv.Value))
		db.bump()
		db.notify(kv.Key, "set")
	}
	if c.IfAbsent {
		return IntReply(1)
	}
	return OKReply
}

func (db *DB) execDel(c Del) Reply {
	var removed int64
	for _, k := range c.Keys {
		if db.ks.LookupWrite(k) == nil {
			continue
		}
		db.ks.Remove(k)
		removed++
		db.bump()
		db.notify(k, "del")
	}
	return IntReply(removed)
}

// writerBytes renders an object's value as bytes from the writer thread,
// which needs no guard because only the writer publishes replacements.
func (db *DB) writerBytes(o *object.Object) []byte {
	if o.Kind() == object.KindInt {
		return o.ValueCopy()
	}
	return o.Bytes()
}
