// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"errors"
	"fmt"
)

// Typed command errors. All of them are detected before any mutation is
// applied and reported to the client; none of them terminate a thread.
var (
	// ErrWrongType: operation against a key holding a value of an
	// incompatible type.
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

	// ErrOutOfRange: negative offset or an argument that is not a valid
	// 64-bit integer.
	ErrOutOfRange = errors.New("ERR value is not an integer or out of range")

	// ErrOverflow: a signed 64-bit increment or decrement would wrap.
	ErrOverflow = errors.New("ERR increment or decrement would overflow")

	// ErrNotANumber: a float increment produced NaN or Infinity, or an
	// operand is not a valid float.
	ErrNotANumber = errors.New("ERR increment would produce NaN or Infinity")

	// ErrNotAFloat: an operand is not parseable as a float.
	ErrNotAFloat = errors.New("ERR value is not a valid float")

	// ErrLengthExceeded: the resulting value would exceed the configured
	// maximum size.
	ErrLengthExceeded = errors.New("ERR string exceeds maximum allowed size")

	// ErrSyntax: malformed command arguments.
	ErrSyntax = errors.New("ERR syntax error")

	// ErrShutdown: the writer loop stopped before the command was applied.
	ErrShutdown = errors.New("ERR server shutting down")

	// ErrOffsetRange: a range-write offset outside the allowed span.
	ErrOffsetRange = errors.New("ERR offset is out of range")
)

// ErrInvalidExpire is produced per-command so the message carries the
// command name.
func ErrInvalidExpire(cmd string) error {
	return fmt.Errorf("ERR invalid expire time in %s", cmd)
}

// ErrWrongArity reports a command called with the wrong argument count.
func ErrWrongArity(cmd string) error {
	return fmt.Errorf("ERR wrong number of arguments for '%s' command", cmd)
}

// ErrUnknownCommand reports an unrecognized command name.
func ErrUnknownCommand(cmd string) error {
	return fmt.Errorf("ERR unknown command '%s'", cmd)
}
