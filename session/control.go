package session

import (
	"context"
	"errors"

	"github.com/younglifestyle/rsap4go/card"
	"github.com/younglifestyle/rsap4go/rsap"
)

type frameHandler func(ctx context.Context, f rsap.Frame) []rsap.Frame

// controlHandler returns the handler for requests accepted in every phase.
func (s *Session) controlHandler(id rsap.MessageID) (frameHandler, bool) {
	switch id {
	case rsap.DisconnectReq:
		return s.onDisconnect, true
	case rsap.ResetSimReq:
		return s.onResetSim, true
	case rsap.PowerSimOffReq:
		return s.onPowerOff, true
	case rsap.PowerSimOnReq:
		return s.onPowerOn, true
	case rsap.TransferCardReaderStatusReq:
		return s.onReaderStatus, true
	case rsap.SetTransportProtocolReq:
		return s.onSetTransportProtocol, true
	default:
		return nil, false
	}
}

func (s *Session) onDisconnect(ctx context.Context, _ rsap.Frame) []rsap.Frame {
	if s.Phase() != PhaseConnect {
		s.advance(ctx, s.phase.Reset)
	}
	s.maxMsgSize = s.opts.MaxMsgSize
	s.logger.Info("client disconnected")
	return []rsap.Frame{rsap.NewDisconnectResp()}
}

func (s *Session) onResetSim(_ context.Context, _ rsap.Frame) []rsap.Frame {
	r, ok := s.card.(card.Resetter)
	if !ok {
		return []rsap.Frame{rsap.NewResetSimResp(rsap.ResultNotSupported)}
	}
	err := r.Reset()
	if err != nil {
		s.logger.Error("card reset failed", "error", err)
	}
	return []rsap.Frame{rsap.NewResetSimResp(resultFor(err))}
}

func (s *Session) onPowerOff(_ context.Context, _ rsap.Frame) []rsap.Frame {
	p, ok := s.card.(card.PowerSwitch)
	if !ok {
		return []rsap.Frame{rsap.NewPowerSimOffResp(rsap.ResultNotSupported)}
	}
	err := p.PowerOff()
	if err != nil && !errors.Is(err, card.ErrAlreadyOff) {
		s.logger.Error("card power off failed", "error", err)
	}
	return []rsap.Frame{rsap.NewPowerSimOffResp(resultFor(err))}
}

func (s *Session) onPowerOn(_ context.Context, _ rsap.Frame) []rsap.Frame {
	p, ok := s.card.(card.PowerSwitch)
	if !ok {
		return []rsap.Frame{rsap.NewPowerSimOnResp(rsap.ResultNotSupported)}
	}
	err := p.PowerOn()
	if err != nil && !errors.Is(err, card.ErrAlreadyOn) {
		s.logger.Error("card power on failed", "error", err)
	}
	return []rsap.Frame{rsap.NewPowerSimOnResp(resultFor(err))}
}

func (s *Session) onReaderStatus(_ context.Context, _ rsap.Frame) []rsap.Frame {
	r, ok := s.card.(card.StatusReporter)
	if !ok {
		return []rsap.Frame{rsap.NewCardReaderStatusResp(rsap.ResultDataNotAvailable, 0)}
	}
	state, err := r.ReaderState()
	if err != nil {
		s.logger.Error("reader status failed", "error", err)
		return []rsap.Frame{rsap.NewCardReaderStatusResp(resultFor(err), 0)}
	}
	return []rsap.Frame{rsap.NewCardReaderStatusResp(rsap.ResultOK, readerStatusBits(state))}
}

func (s *Session) onSetTransportProtocol(_ context.Context, f rsap.Frame) []rsap.Frame {
	s.logger.Warn("transport protocol change not supported", "frame", f.String())
	return []rsap.Frame{rsap.NewSetTransportProtocolResp(rsap.ResultNotSupported)}
}

func readerStatusBits(st card.ReaderState) rsap.CardReaderStatus {
	var bits rsap.CardReaderStatus
	if st.Removable {
		bits |= rsap.ReaderRemovable
	}
	if st.ReaderPresent {
		bits |= rsap.ReaderPresent
	}
	if st.CardPresent {
		bits |= rsap.ReaderCardInside
	}
	if st.CardPowered {
		bits |= rsap.ReaderCardPowered
	}
	return bits
}

func resultFor(err error) rsap.ResultCode {
	switch {
	case err == nil:
		return rsap.ResultOK
	case errors.Is(err, card.ErrAlreadyOff):
		return rsap.ResultCardAlreadyOff
	case errors.Is(err, card.ErrAlreadyOn):
		return rsap.ResultCardAlreadyOn
	case errors.Is(err, card.ErrNoCard):
		return rsap.ResultCardRemoved
	case errors.Is(err, card.ErrNotConnected), errors.Is(err, card.ErrNoReader):
		return rsap.ResultCardNotAccessible
	default:
		return rsap.ResultNoReason
	}
}
