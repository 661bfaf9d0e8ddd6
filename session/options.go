package session

import (
	"github.com/younglifestyle/rsap4go/common"
	"github.com/younglifestyle/rsap4go/rsap"
)

// ConnectReply selects the frames answering a connect request.
type ConnectReply int

const (
	// ConnectReplyBoth answers CONNECT_RESP followed by STATUS_IND in one reply.
	ConnectReplyBoth ConnectReply = iota
	// ConnectReplyStatusOnly answers STATUS_IND alone, for peers that expect it.
	ConnectReplyStatusOnly
)

func (c ConnectReply) String() string {
	switch c {
	case ConnectReplyBoth:
		return "both"
	case ConnectReplyStatusOnly:
		return "status_only"
	default:
		return "unknown"
	}
}

// ParseConnectReply accepts "both" and "status_only".
func ParseConnectReply(s string) (ConnectReply, bool) {
	switch s {
	case "", "both":
		return ConnectReplyBoth, true
	case "status_only":
		return ConnectReplyStatusOnly, true
	default:
		return 0, false
	}
}

// Options configures a Session. The zero value is usable.
type Options struct {
	ConnectReply ConnectReply

	// StrictOrdering answers ERROR_RESP to requests the current phase does not
	// expect instead of logging them and running the phase handler.
	StrictOrdering bool

	// MaxMsgSize is advertised when a client's proposal is refused.
	MaxMsgSize uint16

	// MinMaxMsgSize refuses connect requests proposing a smaller MaxMsgSize.
	// Zero accepts any proposal.
	MinMaxMsgSize uint16

	Limits rsap.Limits
	Logger common.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxMsgSize == 0 {
		o.MaxMsgSize = rsap.DefaultMaxFrameSize
	}
	if o.Limits.MaxFrameSize <= 0 {
		o.Limits.MaxFrameSize = int(o.MaxMsgSize)
	}
	o.Logger = common.OrNop(o.Logger)
}
