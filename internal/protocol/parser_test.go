// Licensed under the MIT License. See LICENSE file in the project root for details.

package protocol

import (
	"reflect"
	"testing"

	"github.com/kzhao/qkv/internal/core"
)

func TestSplitArgs(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected [][]byte
		hasError bool
	}{
		{
			name:     "plain words",
			input:    "set key value",
			expected: [][]byte{[]byte("set"), []byte("key"), []byte("value")},
		},
		{
			name:     "extra whitespace",
			input:    "  set\tkey   value \r\n",
			expected: [][]byte{[]byte("set"), []byte("key"), []byte("value")},
		},
		{
			name:     "double quotes keep spaces",
			input:    `set key "hello world"`,
			expected: [][]byte{[]byte("set"), []byte("key"), []byte("hello world")},
		},
		{
			name:     "escapes inside double quotes",
			input:    `set key "a\tb\nc\"d"`,
			expected: [][]byte{[]byte("set"), []byte("key"), []byte("a\tb\nc\"d")},
		},
		{
			name:     "single quotes are literal",
			input:    `set key 'a\tb'`,
			expected: [][]byte{[]byte("set"), []byte("key"), []byte(`a\tb`)},
		},
		{
			name:     "empty quoted argument",
			input:    `set key ""`,
			expected: [][]byte{[]byte("set"), []byte("key"), []byte("")},
		},
		{
			name:     "empty line",
			input:    "   \r\n",
			expected: nil,
		},
		{
			name:     "unbalanced quotes",
			input:    `set key "oops`,
			hasError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args, err := SplitArgs(tc.input)
			if tc.hasError {
				if err == nil {
					t.Fatalf("expected error, got %v", args)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(args, tc.expected) {
				t.Fatalf("got %q, want %q", args, tc.expected)
			}
		})
	}
}

func TestBuildSet(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected core.Command
		hasError bool
	}{
		{
			name:     "plain set",
			input:    "SET k v",
			expected: core.Set{Key: "k", Value: []byte("v")},
		},
		{
			name:  "set with nx and px",
			input: "set k v PX 1500 NX",
			expected: core.Set{
				Key: "k", Value: []byte("v"),
				Cond: core.SetIfAbsent, ExpireMillis: 1500,
			},
		},
		{
			name:  "set with ex converts to millis",
			input: "set k v EX 2",
			expected: core.Set{
				Key: "k", Value: []byte("v"), ExpireMillis: 2000,
			},
		},
		{
			name:     "nx and xx together",
			input:    "set k v NX XX",
			hasError: true,
		},
		{
			name:     "ex and px together",
			input:    "set k v EX 1 PX 1000",
			hasError: true,
		},
		{
			name:     "zero expire",
			input:    "set k v EX 0",
			hasError: true,
		},
		{
			name:     "ex without value",
			input:    "set k v EX",
			hasError: true,
		},
		{
			name:     "setnx sugar",
			input:    "setnx k v",
			expected: core.Set{Key: "k", Value: []byte("v"), Cond: core.SetIfAbsent, IntegerReply: true},
		},
		{
			name:     "setex sugar",
			input:    "setex k 10 v",
			expected: core.Set{Key: "k", Value: []byte("v"), ExpireMillis: 10000},
		},
		{
			name:     "psetex sugar",
			input:    "psetex k 10 v",
			expected: core.Set{Key: "k", Value: []byte("v"), ExpireMillis: 10},
		},
		{
			name:     "setex rejects zero",
			input:    "setex k 0 v",
			hasError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := Parse(tc.input)
			if tc.hasError {
				if err == nil {
					t.Fatalf("expected error, got %#v", cmd)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(cmd, tc.expected) {
				t.Fatalf("got %#v, want %#v", cmd, tc.expected)
			}
		})
	}
}

func TestBuildCommands(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected core.Command
		hasError bool
	}{
		{"get", "GET k", core.Get{Key: "k"}, false},
		{"get arity", "GET", nil, true},
		{"strlen", "strlen k", core.StrLen{Key: "k"}, false},
		{"getrange", "getrange k 0 -1", core.GetRange{Key: "k", Start: 0, End: -1}, false},
		{"substr alias", "substr k 1 2", core.GetRange{Key: "k", Start: 1, End: 2}, false},
		{"getrange bad int", "getrange k x 2", nil, true},
		{"mget", "mget a b", core.MGet{Keys: []string{"a", "b"}}, false},
		{"exists", "exists a b", core.Exists{Keys: []string{"a", "b"}}, false},
		{"ttl", "ttl k", core.TTL{Key: "k"}, false},
		{"pttl", "pttl k", core.TTL{Key: "k", Millis: true}, false},
		{"setrange", "setrange k 5 x", core.SetRange{Key: "k", Offset: 5, Value: []byte("x")}, false},
		{"setrange negative offset", "setrange k -1 x", nil, true},
		{"append", "append k v", core.Append{Key: "k", Value: []byte("v")}, false},
		{"getset", "getset k v", core.GetSet{Key: "k", Value: []byte("v")}, false},
		{"incr", "incr k", core.IncrBy{Key: "k", Delta: 1, Verb: "incr"}, false},
		{"decr", "decr k", core.IncrBy{Key: "k", Delta: -1, Verb: "decr"}, false},
		{"incrby", "incrby k 17", core.IncrBy{Key: "k", Delta: 17, Verb: "incrby"}, false},
		{"decrby negates", "decrby k 17", core.IncrBy{Key: "k", Delta: -17, Verb: "decrby"}, false},
		{"decrby min int", "decrby k -9223372036854775808", nil, true},
		{"incrby bad int", "incrby k seven", nil, true},
		{"incrbyfloat", "incrbyfloat k 0.5", core.IncrByFloat{Key: "k", Delta: 0.5}, false},
		{"incrbyfloat bad float", "incrbyfloat k pi", nil, true},
		{"mset", "mset a 1 b 2", core.MSet{Pairs: []core.KV{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}}, false},
		{"mset odd args", "mset a 1 b", nil, true},
		{"msetnx", "msetnx a 1", core.MSet{Pairs: []core.KV{{Key: "a", Value: []byte("1")}}, IfAbsent: true}, false},
		{"del", "del a b", core.Del{Keys: []string{"a", "b"}}, false},
		{"ping", "PING", core.Ping{}, false},
		{"ping message", "ping hi", core.Ping{Message: []byte("hi")}, false},
		{"echo", "echo hi", core.Echo{Message: []byte("hi")}, false},
		{"unknown command", "flurble k", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := Parse(tc.input)
			if tc.hasError {
				if err == nil {
					t.Fatalf("expected error, got %#v", cmd)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(cmd, tc.expected) {
				t.Fatalf("got %#v, want %#v", cmd, tc.expected)
			}
		})
	}
}

func TestAppendReply(t *testing.T) {
	testCases := []struct {
		name  string
		reply core.Reply
		want  string
	}{
		{"nil", core.NilReply, "$-1\r\n"},
		{"ok", core.OKReply, "+OK\r\n"},
		{"pong", core.SimpleReply("PONG"), "+PONG\r\n"},
		{"int", core.IntReply(-42), ":-42\r\n"},
		{"bulk", core.BulkReply([]byte("hi")), "$2\r\nhi\r\n"},
		{"empty bulk", core.BulkReply([]byte{}), "$0\r\n\r\n"},
		{"error", core.ErrReply(core.ErrWrongType), "-" + core.ErrWrongType.Error() + "\r\n"},
		{
			"array",
			core.ArrayReply([]core.Reply{core.BulkReply([]byte("a")), core.NilReply}),
			"*2\r\n$1\r\na\r\n$-1\r\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := string(AppendReply(nil, tc.reply))
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
