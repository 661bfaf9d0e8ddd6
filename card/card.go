// Package card relays command APDUs to a smart card and defines the card
// capabilities a session can use.
package card

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoReader      = errors.New("card: no smart card reader found")
	ErrNoCard        = errors.New("card: no card present in reader")
	ErrNotConnected  = errors.New("card: not connected")
	ErrShortResponse = errors.New("card: response shorter than status word")
	ErrAlreadyOff    = errors.New("card: already powered off")
	ErrAlreadyOn     = errors.New("card: already powered on")
)

// Card is the minimum a session needs from a card.
type Card interface {
	// ATR returns the card's answer to reset.
	ATR() ([]byte, error)
	// Transmit sends one command APDU and splits the response into body and status word.
	Transmit(apdu []byte) (body []byte, sw1, sw2 byte, err error)
}

// Connector is implemented by cards that must be attached before use.
// Connect is a no-op when already connected.
type Connector interface {
	Connect(ctx context.Context) error
	Connected() bool
}

// Resetter is implemented by cards that can be warm reset.
type Resetter interface {
	Reset() error
}

// PowerSwitch is implemented by cards whose power can be switched.
// PowerOff returns ErrAlreadyOff and PowerOn ErrAlreadyOn when nothing changes.
type PowerSwitch interface {
	PowerOff() error
	PowerOn() error
}

// ReaderState describes the reader and the card inside it.
type ReaderState struct {
	ReaderPresent bool
	Removable     bool
	CardPresent   bool
	CardPowered   bool
}

// StatusReporter is implemented by cards that can describe their reader.
type StatusReporter interface {
	ReaderState() (ReaderState, error)
}

// SplitResponse separates a raw card response into data and status word.
func SplitResponse(raw []byte) ([]byte, StatusWord, error) {
	if len(raw) < 2 {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(raw))
	}
	n := len(raw) - 2
	data := make([]byte, n)
	copy(data, raw[:n])
	return data, NewStatusWord(raw[n], raw[n+1]), nil
}
