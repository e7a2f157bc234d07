// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

// ReplyKind discriminates the payload of a Reply.
type ReplyKind uint8

const (
	ReplyNil ReplyKind = iota
	ReplyOK
	ReplyInt
	ReplyBulk
	ReplyArray
	ReplyErr
)

// Reply is the result of one command. Bulk payloads are private copies made
// while the producing guard was still held, so a Reply is safe to retain and
// render outside any RCU section.
type Reply struct {
	Kind  ReplyKind
	Int   int64
	Bulk  []byte
	Array []Reply
	Err   error
}

// NilReply is the shared missing-value reply.
var NilReply = Reply{Kind: ReplyNil}

// OKReply is the shared simple-string success reply.
var OKReply = Reply{Kind: ReplyOK}

// SimpleReply builds a simple-string reply other than OK, such as PONG.
// The text rides in Bulk; a ReplyOK with nil Bulk renders as OK.
func SimpleReply(s string) Reply {
	return Reply{Kind: ReplyOK, Bulk: []byte(s)}
}

// IntReply builds an integer reply.
func IntReply(n int64) Reply {
	return Reply{Kind: ReplyInt, Int: n}
}

// BulkReply builds a bulk reply. The caller hands over ownership of b.
func BulkReply(b []byte) Reply {
	return Reply{Kind: ReplyBulk, Bulk: b}
}

// ArrayReply builds an array reply.
func ArrayReply(elems []Reply) Reply {
	return Reply{Kind: ReplyArray, Array: elems}
}

// ErrReply wraps a command error.
func ErrReply(err error) Reply {
	return Reply{Kind: ReplyErr, Err: err}
}

// IsError reports whether the reply carries an error.
func (r Reply) IsError() bool {
	return r.Kind == ReplyErr
}
