// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package protocol turns wire-format command lines into typed command
// descriptors. All argument validation happens here: by the time a
// descriptor reaches an executor, contradictory options (such as NX together
// with XX) have already been rejected and numeric arguments are parsed.
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kzhao/qkv/internal/core"
)

// Parse tokenizes one command line and builds its descriptor.
func Parse(line string) (core.Command, error) {
	args, err := SplitArgs(line)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, nil
	}
	return Build(args)
}

// SplitArgs splits a command line into arguments. Double-quoted arguments
// may contain spaces and the escapes \n \r \t \\ \"; single-quoted
// arguments are taken literally.
func SplitArgs(line string) ([][]byte, error) {
	var args [][]byte
	i := 0
	for {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			return args, nil
		}
		var cur []byte
		switch line[i] {
		case '"':
			cur = []byte{}
			i++
			for {
				if i >= len(line) {
					return nil, fmt.Errorf("ERR Protocol error: unbalanced quotes in request")
				}
				c := line[i]
				if c == '\\' && i+1 < len(line) {
					i++
					switch line[i] {
					case 'n':
						cur = append(cur, '\n')
					case 'r':
						cur = append(cur, '\r')
					case 't':
						cur = append(cur, '\t')
					default:
						cur = append(cur, line[i])
					}
					i++
					continue
				}
				if c == '"' {
					i++
					break
				}
				cur = append(cur, c)
				i++
			}
		case '\'':
			cur = []byte{}
			i++
			for {
				if i >= len(line) {
					return nil, fmt.Errorf("ERR Protocol error: unbalanced quotes in request")
				}
				if line[i] == '\'' {
					i++
					break
				}
				cur = append(cur, line[i])
				i++
			}
		default:
			start := i
			for i < len(line) && !isSpace(line[i]) {
				i++
			}
			cur = []byte(line[start:i])
		}
		args = append(args, cur)
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// Build maps tokenized arguments onto a command descriptor.
func Build(args [][]byte) (core.Command, error) {
	name := strings.ToLower(string(args[0]))
	rest := args[1:]

	switch name {
	case "get":
		if len(rest) != 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.Get{Key: string(rest[0])}, nil

	case "strlen":
		if len(rest) != 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.StrLen{Key: string(rest[0])}, nil

	case "getrange", "substr":
		if len(rest) != 3 {
			return nil, core.ErrWrongArity(name)
		}
		start, err := parseInt(rest[1])
		if err != nil {
			return nil, err
		}
		end, err := parseInt(rest[2])
		if err != nil {
			return nil, err
		}
		return core.GetRange{Key: string(rest[0]), Start: start, End: end}, nil

	case "mget":
		if len(rest) < 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.MGet{Keys: keysOf(rest)}, nil

	case "exists":
		if len(rest) < 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.Exists{Keys: keysOf(rest)}, nil

	case "ttl":
		if len(rest) != 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.TTL{Key: string(rest[0])}, nil

	case "pttl":
		if len(rest) != 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.TTL{Key: string(rest[0]), Millis: true}, nil

	case "set":
		return buildSet(rest)

	case "setnx":
		if len(rest) != 2 {
			return nil, core.ErrWrongArity(name)
		}
		return core.Set{
			Key:          string(rest[0]),
			Value:        rest[1],
			Cond:         core.SetIfAbsent,
			IntegerReply: true,
		}, nil

	case "setex", "psetex":
		if len(rest) != 3 {
			return nil, core.ErrWrongArity(name)
		}
		ttl, err := parseInt(rest[1])
		if err != nil {
			return nil, err
		}
		if ttl <= 0 {
			return nil, core.ErrInvalidExpire(name)
		}
		if name == "setex" {
			ttl *= 1000
		}
		return core.Set{
			Key:          string(rest[0]),
			Value:        rest[2],
			ExpireMillis: ttl,
		}, nil

	case "setrange":
		if len(rest) != 3 {
			return nil, core.ErrWrongArity(name)
		}
		off, err := parseInt(rest[1])
		if err != nil {
			return nil, err
		}
		if off < 0 {
			return nil, core.ErrOffsetRange
		}
		return core.SetRange{Key: string(rest[0]), Offset: off, Value: rest[2]}, nil

	case "append":
		if len(rest) != 2 {
			return nil, core.ErrWrongArity(name)
		}
		return core.Append{Key: string(rest[0]), Value: rest[1]}, nil

	case "getset":
		if len(rest) != 2 {
			return nil, core.ErrWrongArity(name)
		}
		return core.GetSet{Key: string(rest[0]), Value: rest[1]}, nil

	case "incr":
		if len(rest) != 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.IncrBy{Key: string(rest[0]), Delta: 1, Verb: name}, nil

	case "decr":
		if len(rest) != 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.IncrBy{Key: string(rest[0]), Delta: -1, Verb: name}, nil

	case "incrby", "decrby":
		if len(rest) != 2 {
			return nil, core.ErrWrongArity(name)
		}
		delta, err := parseInt(rest[1])
		if err != nil {
			return nil, err
		}
		if name == "decrby" {
			// MinInt64 cannot be negated; the increment itself would
			// overflow for any current value anyway.
			if delta == -delta && delta != 0 {
				return nil, core.ErrOverflow
			}
			delta = -delta
		}
		return core.IncrBy{Key: string(rest[0]), Delta: delta, Verb: name}, nil

	case "incrbyfloat":
		if len(rest) != 2 {
			return nil, core.ErrWrongArity(name)
		}
		f, err := strconv.ParseFloat(string(rest[1]), 64)
		if err != nil {
			return nil, core.ErrNotAFloat
		}
		return core.IncrByFloat{Key: string(rest[0]), Delta: f}, nil

	case "mset", "msetnx":
		if len(rest) < 2 || len(rest)%2 != 0 {
			return nil, core.ErrWrongArity(name)
		}
		pairs := make([]core.KV, 0, len(rest)/2)
		for i := 0; i < len(rest); i += 2 {
			pairs = append(pairs, core.KV{Key: string(rest[i]), Value: rest[i+1]})
		}
		return core.MSet{Pairs: pairs, IfAbsent: name == "msetnx"}, nil

	case "del":
		if len(rest) < 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.Del{Keys: keysOf(rest)}, nil

	case "ping":
		switch len(rest) {
		case 0:
			return core.Ping{}, nil
		case 1:
			return core.Ping{Message: rest[0]}, nil
		}
		return nil, core.ErrWrongArity(name)

	case "echo":
		if len(rest) != 1 {
			return nil, core.ErrWrongArity(name)
		}
		return core.Echo{Message: rest[0]}, nil
	}
	return nil, core.ErrUnknownCommand(name)
}

// buildSet handles the option grammar of SET: [EX seconds | PX millis]
// [NX | XX] in any order. A condition or expiry may appear at most once, so
// a descriptor with both NX and XX can never be produced.
func buildSet(rest [][]byte) (core.Command, error) {
	if len(rest) < 2 {
		return nil, core.ErrWrongArity("set")
	}
	cmd := core.Set{Key: string(rest[0]), Value: rest[1]}
	opts := rest[2:]
	for i := 0; i < len(opts); i++ {
		switch strings.ToLower(string(opts[i])) {
		case "nx":
			if cmd.Cond != core.SetAlways {
				return nil, core.ErrSyntax
			}
			cmd.Cond = core.SetIfAbsent
		case "xx":
			if cmd.Cond != core.SetAlways {
				return nil, core.ErrSyntax
			}
			cmd.Cond = core.SetIfPresent
		case "ex", "px":
			if cmd.ExpireMillis != 0 || i+1 >= len(opts) {
				return nil, core.ErrSyntax
			}
			ttl, err := parseInt(opts[i+1])
			if err != nil {
				return nil, err
			}
			if ttl <= 0 {
				return nil, core.ErrInvalidExpire("set")
			}
			if strings.EqualFold(string(opts[i]), "ex") {
				ttl *= 1000
			}
			cmd.ExpireMillis = ttl
			i++
		default:
			return nil, core.ErrSyntax
		}
	}
	return cmd, nil
}

func parseInt(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, core.ErrOutOfRange
	}
	return n, nil
}

func keysOf(args [][]byte) []string {
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = string(a)
	}
	return keys
}
