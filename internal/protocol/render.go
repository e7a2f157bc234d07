// Licensed under the MIT License. See LICENSE file in the project root for details.

package protocol

import (
	"strconv"

	"github.com/kzhao/qkv/internal/core"
)

// AppendReply renders a reply in wire format onto dst and returns the
// extended buffer. Nil values, integers, bulk strings, arrays and errors
// each have their own framing so clients can parse replies without knowing
// which command produced them.
func AppendReply(dst []byte, r core.Reply) []byte {
	switch r.Kind {
	case core.ReplyNil:
		return append(dst, "$-1\r\n"...)
	case core.ReplyOK:
		dst = append(dst, '+')
		if r.Bulk != nil {
			dst = append(dst, r.Bulk...)
		} else {
			dst = append(dst, "OK"...)
		}
		return append(dst, '\r', '\n')
	case core.ReplyInt:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, r.Int, 10)
		return append(dst, '\r', '\n')
	case core.ReplyBulk:
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(r.Bulk)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, r.Bulk...)
		return append(dst, '\r', '\n')
	case core.ReplyArray:
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(r.Array)), 10)
		dst = append(dst, '\r', '\n')
		for _, e := range r.Array {
			dst = AppendReply(dst, e)
		}
		return dst
	case core.ReplyErr:
		dst = append(dst, '-')
		dst = append(dst, r.Err.Error()...)
		return append(dst, '\r', '\n')
	}
	return append(dst, "-ERR unknown reply\r\n"...)
}
