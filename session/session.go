// Package session drives one remote SIM access connection: it reassembles
// inbound chunks into frames, walks the connect, ATR and APDU phases, and
// relays command APDUs to the card.
package session

import (
	"context"
	"io"

	"github.com/looplab/fsm"

	"github.com/younglifestyle/rsap4go/card"
	"github.com/younglifestyle/rsap4go/codec"
	"github.com/younglifestyle/rsap4go/common"
	"github.com/younglifestyle/rsap4go/rsap"
)

// Session owns the phase, the reassembly buffer and the card handle. It is
// not safe for concurrent use; the dispatcher worker is its only caller.
type Session struct {
	card   card.Card
	opts   Options
	logger common.Logger
	phase  *PhaseMachine
	buffer *codec.Reassembler

	// negotiated MaxMsgSize of the current connection
	maxMsgSize uint16

	// PhaseChanged fires with "previous" and "current" phases after every transition.
	PhaseChanged common.Event
}

func New(c card.Card, opts Options) *Session {
	opts.applyDefaults()
	s := &Session{
		card:       c,
		opts:       opts,
		logger:     opts.Logger,
		buffer:     codec.NewReassembler(opts.Limits),
		maxMsgSize: opts.MaxMsgSize,
	}
	s.phase = NewPhaseMachine(fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) { s.onPhaseChange(e) },
	})
	return s
}

func (s *Session) onPhaseChange(e *fsm.Event) {
	s.logger.Info("session phase changed", "previous", e.Src, "current", e.Dst, "event", e.Event)
	s.PhaseChanged.Fire(map[string]interface{}{
		"previous": Phase(e.Src),
		"current":  Phase(e.Dst),
	})
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase.Current()
}

// MaxMsgSize returns the MaxMsgSize agreed with the client. Reply frames
// larger than it are not sent.
func (s *Session) MaxMsgSize() uint16 {
	return s.maxMsgSize
}

// Process feeds one inbound chunk through reassembly and, once a frame is
// complete, through the phase handlers. It returns the encoded reply frames,
// or an empty reply while more fragments are needed. Protocol failures are
// answered with ERROR_RESP rather than returned as errors.
//
// At most one frame is handled per call; surplus bytes wait for the next call.
func (s *Session) Process(ctx context.Context, chunk []byte) ([]byte, error) {
	s.buffer.Accumulate(chunk)

	f, err := s.buffer.TryTakeFrame()
	if err != nil {
		s.logger.Error("malformed frame", "error", err, "buffered", s.buffer.Len())
		return rsap.Encode(rsap.NewErrorResp())
	}
	if f == nil {
		s.logger.Debug("frame incomplete, awaiting more data", "buffered", s.buffer.Len())
		return []byte{}, nil
	}

	s.logger.Debug("frame received", "frame", f.String(), "phase", s.Phase())
	replies := s.OnFrame(ctx, *f)
	return s.encodeReplies(replies)
}

// encodeReplies encodes each reply frame under the negotiated MaxMsgSize. A
// reply that does not fit is replaced by ERROR_RESP.
func (s *Session) encodeReplies(replies []rsap.Frame) ([]byte, error) {
	limits := rsap.Limits{MaxFrameSize: int(s.maxMsgSize)}
	out := []byte{}
	for _, r := range replies {
		b, err := rsap.EncodeWithLimits(r, limits)
		if err != nil {
			s.logger.Error("reply exceeds MaxMsgSize, answering with ERROR_RESP",
				"frame", r.MessageID, "size", r.Size(), "max_msg_size", s.maxMsgSize, "error", err)
			return rsap.Encode(rsap.NewErrorResp())
		}
		s.logger.Debug("frame sent", "frame", r.String())
		out = append(out, b...)
	}
	return out, nil
}

// DiscardPending drops the bytes of an incomplete frame, for when the peer
// that sent them has gone away.
func (s *Session) DiscardPending() {
	if n := s.buffer.Len(); n > 0 {
		s.logger.Warn("discarding partial frame", "buffered", n, "phase", s.Phase())
		s.buffer.Reset()
	}
}

// OnFrame handles one decoded frame and returns the reply frames in order.
func (s *Session) OnFrame(ctx context.Context, f rsap.Frame) []rsap.Frame {
	if f.MessageID == rsap.ConnectReq && s.Phase() != PhaseConnect {
		s.logger.Info("connect request outside connect phase, resetting session", "phase", s.Phase())
		s.advance(ctx, s.phase.Reset)
	}

	if handler, ok := s.controlHandler(f.MessageID); ok {
		return handler(ctx, f)
	}

	phase := s.Phase()
	if !phase.Expects(f.MessageID) {
		s.logger.Warn("unexpected message for phase", "message", f.MessageID, "phase", phase,
			"expected", ExpectedMessageIDs(phase), "strict", s.opts.StrictOrdering)
		if s.opts.StrictOrdering {
			return []rsap.Frame{rsap.NewErrorResp()}
		}
	}

	switch phase {
	case PhaseConnect:
		return s.onConnect(ctx, f)
	case PhaseAtrTransfer:
		return s.onAtrTransfer(ctx)
	default:
		return s.onApdu(f)
	}
}

func (s *Session) onConnect(ctx context.Context, f rsap.Frame) []rsap.Frame {
	if size, ok := rsap.MaxMsgSize(f); ok {
		if s.opts.MinMaxMsgSize > 0 && size < s.opts.MinMaxMsgSize {
			s.logger.Warn("client MaxMsgSize too small", "proposed", size, "minimum", s.opts.MinMaxMsgSize)
			return []rsap.Frame{
				rsap.NewConnectRespWithMaxMsgSize(rsap.ConnectionMaxMsgSizeTooSmall, s.opts.MaxMsgSize),
			}
		}
		s.maxMsgSize = min(size, s.opts.MaxMsgSize)
	}

	resp := rsap.NewConnectResp(rsap.ConnectionOK)
	ind := rsap.NewStatusInd(rsap.StatusCardReset)
	s.advance(ctx, s.phase.Connected)

	if s.opts.ConnectReply == ConnectReplyStatusOnly {
		return []rsap.Frame{ind}
	}
	return []rsap.Frame{resp, ind}
}

func (s *Session) onAtrTransfer(ctx context.Context) []rsap.Frame {
	atr, err := s.card.ATR()
	if err != nil {
		s.logger.Error("card ATR failed", "error", err)
		return []rsap.Frame{rsap.NewErrorResp()}
	}
	s.advance(ctx, s.phase.AtrSent)
	return []rsap.Frame{rsap.NewAtrResp(atr)}
}

func (s *Session) onApdu(f rsap.Frame) []rsap.Frame {
	apdu, err := rsap.ExtractCommandAPDU(f)
	if err != nil {
		s.logger.Warn("no command APDU in frame", "message", f.MessageID, "error", err)
		return []rsap.Frame{rsap.NewErrorResp()}
	}

	resp, err := card.Relay(s.card, apdu)
	if err != nil {
		s.logger.Error("card transmit failed", "error", err, "apdu", apdu)
		return []rsap.Frame{rsap.NewErrorResp()}
	}

	if data, sw, err := card.SplitResponse(resp); err == nil {
		s.logger.Debug("card response", "status", sw.Verbose(), "data", card.DescribeData(data))
	}
	return []rsap.Frame{rsap.NewApduResp(rsap.ResultOK, resp)}
}

// advance applies a phase transition unless the caller has abandoned the
// exchange, in which case the phase is left for a retry.
func (s *Session) advance(ctx context.Context, transition func() error) {
	if err := ctx.Err(); err != nil {
		s.logger.Warn("exchange abandoned, phase unchanged", "phase", s.Phase(), "error", err)
		return
	}
	if err := transition(); err != nil {
		s.logger.Warn("phase transition refused", "phase", s.Phase(), "error", err)
	}
}

// Init connects the card if it needs connecting. It is a no-op otherwise.
func (s *Session) Init(ctx context.Context) error {
	c, ok := s.card.(card.Connector)
	if !ok || c.Connected() {
		return nil
	}
	return c.Connect(ctx)
}

// Close releases the card.
func (s *Session) Close() error {
	s.buffer.Reset()
	if c, ok := s.card.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
