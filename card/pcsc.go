package card

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebfe/scard"
	"go.uber.org/atomic"

	"github.com/younglifestyle/rsap4go/common"
)

const statusPollInterval = 500 * time.Millisecond

// PCSCOptions configures a PC/SC backed card.
type PCSCOptions struct {
	// Reader selects the first reader whose name contains this string.
	// Empty selects the first reader.
	Reader string
	// CardWait bounds the wait for a card to be inserted during Connect.
	CardWait time.Duration
	Logger   common.Logger
}

func (o *PCSCOptions) applyDefaults() {
	if o.CardWait <= 0 {
		o.CardWait = common.NewTimeouts().CardWait
	}
	o.Logger = common.OrNop(o.Logger)
}

// PCSC is a card reached through the platform PC/SC service. It is used by a
// single goroutine, the dispatcher worker.
type PCSC struct {
	opts    PCSCOptions
	logger  common.Logger
	ctx     *scard.Context
	card    *scard.Card
	reader  string
	powered *atomic.Bool
}

func NewPCSC(opts PCSCOptions) *PCSC {
	opts.applyDefaults()
	return &PCSC{
		opts:    opts,
		logger:  opts.Logger,
		powered: atomic.NewBool(false),
	}
}

// Connect establishes the PC/SC context, picks a reader, waits for a card and
// connects to it. It is a no-op when already connected.
func (p *PCSC) Connect(ctx context.Context) error {
	if p.card != nil {
		return nil
	}

	if p.ctx == nil {
		sctx, err := scard.EstablishContext()
		if err != nil {
			return fmt.Errorf("card: establish context: %w", err)
		}
		p.ctx = sctx
	}

	reader, err := p.selectReader()
	if err != nil {
		p.release()
		return err
	}
	p.reader = reader

	if err := p.waitForCard(ctx); err != nil {
		p.release()
		return err
	}

	if err := p.attach(); err != nil {
		p.release()
		return err
	}
	p.logger.Info("card connected", "reader", p.reader)
	return nil
}

func (p *PCSC) Connected() bool {
	return p.card != nil
}

func (p *PCSC) selectReader() (string, error) {
	readers, err := p.ctx.ListReaders()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoReader, err)
	}
	for _, r := range readers {
		if p.opts.Reader == "" || strings.Contains(r, p.opts.Reader) {
			return r, nil
		}
	}
	return "", ErrNoReader
}

func (p *PCSC) waitForCard(ctx context.Context) error {
	deadline := time.Now().Add(p.opts.CardWait)
	states := []scard.ReaderState{{Reader: p.reader, CurrentState: scard.StateUnaware}}

	for {
		wait := statusPollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if wait < 0 {
			wait = 0
		}

		err := p.ctx.GetStatusChange(states, wait)
		if err != nil && !errors.Is(err, scard.ErrTimeout) {
			return fmt.Errorf("card: reader status: %w", err)
		}
		if states[0].EventState&scard.StatePresent != 0 {
			return nil
		}
		states[0].CurrentState = states[0].EventState

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: waited %s on %s", ErrNoCard, p.opts.CardWait, p.reader)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p.logger.Debug("waiting for card", "reader", p.reader)
	}
}

func (p *PCSC) attach() error {
	c, err := p.ctx.Connect(p.reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		return fmt.Errorf("card: connect %s: %w", p.reader, err)
	}
	p.card = c
	p.powered.Store(true)
	return nil
}

// ATR returns the answer to reset reported by the reader.
func (p *PCSC) ATR() ([]byte, error) {
	if p.card == nil {
		return nil, ErrNotConnected
	}
	status, err := p.card.Status()
	if err != nil {
		return nil, fmt.Errorf("card: status: %w", err)
	}
	return status.Atr, nil
}

func (p *PCSC) Transmit(apdu []byte) ([]byte, byte, byte, error) {
	if p.card == nil {
		return nil, 0, 0, ErrNotConnected
	}
	raw, err := p.card.Transmit(apdu)
	if err != nil {
		return nil, 0, 0, err
	}
	body, sw, err := SplitResponse(raw)
	if err != nil {
		return nil, 0, 0, err
	}
	return body, sw.SW1(), sw.SW2(), nil
}

// Reset warm resets the card.
func (p *PCSC) Reset() error {
	if p.card == nil {
		return ErrNotConnected
	}
	if err := p.card.Reconnect(scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1, scard.ResetCard); err != nil {
		return fmt.Errorf("card: reset: %w", err)
	}
	p.powered.Store(true)
	return nil
}

func (p *PCSC) PowerOff() error {
	if !p.powered.Load() {
		return ErrAlreadyOff
	}
	if p.card == nil {
		return ErrNotConnected
	}
	if err := p.card.Disconnect(scard.UnpowerCard); err != nil {
		return fmt.Errorf("card: power off: %w", err)
	}
	p.card = nil
	p.powered.Store(false)
	return nil
}

func (p *PCSC) PowerOn() error {
	if p.powered.Load() {
		return ErrAlreadyOn
	}
	if p.ctx == nil {
		return ErrNotConnected
	}
	return p.attach()
}

// ReaderState reports the reader and card flags from the PC/SC status.
func (p *PCSC) ReaderState() (ReaderState, error) {
	state := ReaderState{ReaderPresent: p.ctx != nil && p.reader != "", Removable: true}
	if p.card == nil {
		return state, nil
	}
	status, err := p.card.Status()
	if err != nil {
		return state, fmt.Errorf("card: status: %w", err)
	}
	state.CardPresent = status.State&scard.Present != 0 || status.State&scard.Powered != 0
	state.CardPowered = status.State&scard.Powered != 0 || status.State&scard.Specific != 0
	return state, nil
}

// Close disconnects the card, leaving it powered, and releases the context.
func (p *PCSC) Close() error {
	var err error
	if p.card != nil {
		if dErr := p.card.Disconnect(scard.LeaveCard); dErr != nil {
			err = fmt.Errorf("card: disconnect: %w", dErr)
		}
		p.card = nil
		p.powered.Store(false)
	}
	if rErr := p.release(); rErr != nil && err == nil {
		err = rErr
	}
	p.logger.Info("card released", "reader", p.reader)
	return err
}

func (p *PCSC) release() error {
	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Release()
	p.ctx = nil
	if err != nil {
		return fmt.Errorf("card: release context: %w", err)
	}
	return nil
}
