// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"context"
	"math"
	"strconv"
	"testing"

	"pgregory.net/rapid"
)

// model tracks what each key's value should read as, regardless of the
// store's internal encoding.
type model map[string]string

// TestStringCommandModel applies random command sequences and checks every
// observable value against a plain map model. Encoding switches (integer
// versus byte buffer, shared table versus private object) must never change
// what a client reads back.
func TestStringCommandModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		db := New(Config{})
		go db.Run(ctx)
		r := db.Domain().RegisterReader()
		defer r.Unregister()

		m := model{}
		keyGen := rapid.SampledFrom([]string{"a", "b", "c", "d"})
		numOps := rapid.IntRange(10, 200).Draw(t, "numOps")

		for i := 0; i < numOps; i++ {
			key := keyGen.Draw(t, "key")
			op := rapid.OneOf(
				rapid.Just("set"),
				rapid.Just("append"),
				rapid.Just("setrange"),
				rapid.Just("incr"),
				rapid.Just("getset"),
				rapid.Just("del"),
			).Draw(t, "op")

			switch op {
			case "set":
				val := rapid.String().Draw(t, "val")
				db.Submit(ctx, Set{Key: key, Value: []byte(val)})
				m[key] = val
			case "append":
				val := rapid.StringN(0, 16, 16).Draw(t, "val")
				rep, _ := db.Submit(ctx, Append{Key: key, Value: []byte(val)})
				m[key] += val
				if rep.Int != int64(len(m[key])) {
					t.Fatalf("append length %d, model %d", rep.Int, len(m[key]))
				}
			case "setrange":
				off := rapid.IntRange(0, 32).Draw(t, "off")
				val := rapid.StringN(1, 8, 8).Draw(t, "val")
				db.Submit(ctx, SetRange{Key: key, Offset: int64(off), Value: []byte(val)})
				cur := []byte(m[key])
				for len(cur) < off+len(val) {
					cur = append(cur, 0)
				}
				copy(cur[off:], val)
				m[key] = string(cur)
			case "incr":
				delta := rapid.Int64Range(-1000, 1000).Draw(t, "delta")
				rep, _ := db.Submit(ctx, IncrBy{Key: key, Delta: delta, Verb: "incrby"})
				prev, existed := m[key]
				var cur int64
				var err error
				if existed {
					cur, err = strconv.ParseInt(prev, 10, 64)
				}
				if err != nil || (existed && strconv.FormatInt(cur, 10) != prev) {
					// The model value is not a canonical integer; the
					// command must have been rejected.
					if !rep.IsError() {
						t.Fatalf("incrby accepted non-integer %q", m[key])
					}
					continue
				}
				if (delta > 0 && cur > math.MaxInt64-delta) ||
					(delta < 0 && cur < math.MinInt64-delta) {
					if !rep.IsError() {
						t.Fatalf("incrby accepted overflowing %q%+d", m[key], delta)
					}
					continue
				}
				if rep.IsError() {
					t.Fatalf("incrby rejected %q: %v", m[key], rep.Err)
				}
				m[key] = strconv.FormatInt(cur+delta, 10)
				if rep.Int != cur+delta {
					t.Fatalf("incrby result %d, model %d", rep.Int, cur+delta)
				}
			case "getset":
				val := rapid.String().Draw(t, "val")
				rep, _ := db.Submit(ctx, GetSet{Key: key, Value: []byte(val)})
				prev, existed := m[key]
				if existed != (rep.Kind == ReplyBulk) || (existed && string(rep.Bulk) != prev) {
					t.Fatalf("getset returned %q, model %q", rep.Bulk, prev)
				}
				m[key] = val
			case "del":
				db.Submit(ctx, Del{Keys: []string{key}})
				delete(m, key)
			}

			// Every key must read back exactly as the model predicts.
			for k, want := range m {
				rep := db.ExecuteRead(r, Get{Key: k})
				if string(rep.Bulk) != want {
					t.Fatalf("key %q reads %q, model %q", k, rep.Bulk, want)
				}
			}
		}
	})
}
