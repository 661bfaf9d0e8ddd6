package codec

import (
	"github.com/younglifestyle/rsap4go/rsap"
)

// Reassembler accumulates transport chunks until they hold a complete frame.
// It is not safe for concurrent use; the dispatcher worker is its only user.
type Reassembler struct {
	buf    []byte
	limits rsap.Limits
}

func NewReassembler(limits rsap.Limits) *Reassembler {
	return &Reassembler{limits: limits}
}

// Accumulate appends chunk to the pending bytes.
func (r *Reassembler) Accumulate(chunk []byte) {
	r.buf = append(r.buf, chunk...)
}

// TryTakeFrame returns the first complete frame and removes exactly its bytes,
// keeping any surplus for the next call. It returns nil, nil while more input
// is needed.
//
// On a malformed frame of known length only that frame is dropped. When the
// length itself is inconsistent the whole accumulator is dropped, since there
// is no later boundary to resynchronise on.
func (r *Reassembler) TryTakeFrame() (*rsap.Frame, error) {
	n, complete, err := rsap.FrameLength(r.buf, r.limits)
	if err != nil {
		r.Reset()
		return nil, err
	}
	if !complete {
		return nil, nil
	}

	raw := r.buf[:n]
	f, err := rsap.DecodeWithLimits(raw, r.limits)
	r.consume(n)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Len returns the number of pending bytes.
func (r *Reassembler) Len() int {
	return len(r.buf)
}

// Reset drops all pending bytes.
func (r *Reassembler) Reset() {
	r.buf = nil
}

func (r *Reassembler) consume(n int) {
	if n >= len(r.buf) {
		r.buf = nil
		return
	}
	rest := make([]byte, len(r.buf)-n)
	copy(rest, r.buf[n:])
	r.buf = rest
}
